// Package capability defines the contract between the orchestrator core
// and the external operations steps invoke. The core never embeds vendor
// logic; hosts register implementations here.
package capability

import (
	"context"
	"fmt"
	"io"
	"sort"
)

// Request carries everything one invocation may draw on. Secrets are
// threaded explicitly per call; there is no ambient secret scope.
type Request struct {
	Args    map[string]string
	Env     map[string]string
	Secrets map[string]string
	WorkDir string
	Stdout  io.Writer
	Stderr  io.Writer
}

// Result is what a capability reports back. A non-zero exit code is an
// execution failure; an error return means the invocation itself broke.
type Result struct {
	ExitCode int
}

// Capability is a named external operation a step can invoke.
// Implementations must observe ctx cancellation.
type Capability interface {
	Invoke(ctx context.Context, req Request) (Result, error)
}

// Func adapts a plain function to the Capability interface.
type Func func(ctx context.Context, req Request) (Result, error)

func (f Func) Invoke(ctx context.Context, req Request) (Result, error) {
	return f(ctx, req)
}

// Registry maps capability names to implementations.
type Registry struct {
	caps map[string]Capability
}

func NewRegistry() *Registry {
	return &Registry{caps: make(map[string]Capability)}
}

// Register adds a named capability. Names must be unique.
func (r *Registry) Register(name string, c Capability) error {
	if name == "" {
		return fmt.Errorf("capability name cannot be empty")
	}
	if _, exists := r.caps[name]; exists {
		return fmt.Errorf("capability already registered: %s", name)
	}
	r.caps[name] = c
	return nil
}

// Lookup returns the capability registered under name.
func (r *Registry) Lookup(name string) (Capability, bool) {
	c, ok := r.caps[name]
	return c, ok
}

// List returns all registered names, sorted.
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.caps))
	for name := range r.caps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
