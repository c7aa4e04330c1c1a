// Package secrets supplies secret values to steps at execution time. The
// provider is threaded explicitly into every step execution rather than
// living in ambient process state.
package secrets

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Provider resolves secret names declared by steps.
type Provider interface {
	Get(name string) (string, bool)
}

// Static serves secrets from an in-memory map, typically loaded from a
// YAML file kept outside the pipeline definition.
type Static map[string]string

func (s Static) Get(name string) (string, bool) {
	v, ok := s[name]
	return v, ok
}

// LoadFile reads a flat name -> value YAML mapping.
func LoadFile(path string) (Static, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read secrets file: %w", err)
	}
	var values map[string]string
	if err := yaml.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("failed to parse secrets file: %w", err)
	}
	return Static(values), nil
}

// Env resolves secrets from prefixed environment variables. A secret named
// deploy-token with prefix STAGEHAND_SECRET_ maps to STAGEHAND_SECRET_DEPLOY_TOKEN.
type Env struct {
	Prefix string
}

var envKeyReplacer = strings.NewReplacer("-", "_", ".", "_")

func (e Env) Get(name string) (string, bool) {
	key := e.Prefix + strings.ToUpper(envKeyReplacer.Replace(name))
	return os.LookupEnv(key)
}

// Chain consults providers in order and returns the first hit.
type Chain []Provider

func (c Chain) Get(name string) (string, bool) {
	for _, p := range c {
		if v, ok := p.Get(name); ok {
			return v, true
		}
	}
	return "", false
}

// None is an empty provider for runs without secrets.
type None struct{}

func (None) Get(string) (string, bool) { return "", false }
