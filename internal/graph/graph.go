// Package graph holds the stage dependency DAG and the readiness
// computation that drives scheduling.
package graph

import (
	"errors"
	"fmt"

	"github.com/stagehand-ci/stagehand/internal/model"
)

var (
	// ErrCycle is returned when adding a dependency edge would close a cycle.
	ErrCycle = errors.New("dependency cycle")
	// ErrUnknownDependency is returned when an edge references an undeclared stage.
	ErrUnknownDependency = errors.New("unknown dependency")
	// ErrDuplicateStage is returned when a stage name is declared twice.
	ErrDuplicateStage = errors.New("duplicate stage")
)

// Graph is the stage DAG. Stages keep their declaration order so that
// scheduling among equally-ready stages is deterministic.
type Graph struct {
	order      []string
	deps       map[string][]string
	dependents map[string][]string
}

func New() *Graph {
	return &Graph{
		deps:       make(map[string][]string),
		dependents: make(map[string][]string),
	}
}

// Build constructs a graph from stage declarations in two passes: all names
// are declared first, then edges are resolved, so forward references are
// allowed.
func Build(stages []model.Stage) (*Graph, error) {
	g := New()
	for _, stage := range stages {
		if err := g.AddStage(stage.Name); err != nil {
			return nil, err
		}
	}
	for _, stage := range stages {
		for _, dep := range stage.DependsOn {
			if err := g.AddDependency(stage.Name, dep); err != nil {
				return nil, err
			}
		}
	}
	return g, nil
}

// AddStage declares a stage. Names must be unique.
func (g *Graph) AddStage(name string) error {
	if _, exists := g.deps[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateStage, name)
	}
	g.order = append(g.order, name)
	g.deps[name] = nil
	return nil
}

// AddDependency records that stage name depends on dep. Both stages must be
// declared. The add is atomic: if the edge would close a cycle the graph is
// left unchanged and ErrCycle is returned.
func (g *Graph) AddDependency(name, dep string) error {
	if _, exists := g.deps[name]; !exists {
		return fmt.Errorf("%w: stage %s is not declared", ErrUnknownDependency, name)
	}
	if _, exists := g.deps[dep]; !exists {
		return fmt.Errorf("%w: stage %s depends on undeclared stage %s", ErrUnknownDependency, name, dep)
	}
	if name == dep || g.reachable(dep, name) {
		return fmt.Errorf("%w: %s -> %s", ErrCycle, name, dep)
	}
	g.deps[name] = append(g.deps[name], dep)
	g.dependents[dep] = append(g.dependents[dep], name)
	return nil
}

// reachable reports whether target can be reached from start by following
// dependency edges, using DFS.
func (g *Graph) reachable(start, target string) bool {
	visited := make(map[string]bool)
	stack := []string{start}
	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if node == target {
			return true
		}
		if visited[node] {
			continue
		}
		visited[node] = true
		stack = append(stack, g.deps[node]...)
	}
	return false
}

// Stages returns all stage names in declaration order.
func (g *Graph) Stages() []string {
	out := make([]string, len(g.order))
	copy(out, g.order)
	return out
}

// DependsOn returns the direct dependencies of a stage.
func (g *Graph) DependsOn(name string) []string {
	return g.deps[name]
}

// Dependents returns the stages that directly depend on name.
func (g *Graph) Dependents(name string) []string {
	return g.dependents[name]
}

// Len returns the number of declared stages.
func (g *Graph) Len() int {
	return len(g.order)
}

// Ready returns the stages whose dependencies are all satisfied and which
// have not been started or blocked, in declaration order.
func (g *Graph) Ready(satisfied, blocked, started map[string]bool) []string {
	var ready []string
	for _, name := range g.order {
		if started[name] || satisfied[name] || blocked[name] {
			continue
		}
		ok := true
		for _, dep := range g.deps[name] {
			if !satisfied[dep] {
				ok = false
				break
			}
		}
		if ok {
			ready = append(ready, name)
		}
	}
	return ready
}

// TopoOrder returns a topological ordering of the stages using Kahn's
// algorithm. Ties are broken by declaration order so the result is stable.
func (g *Graph) TopoOrder() ([]string, error) {
	inDegree := make(map[string]int, len(g.order))
	for _, name := range g.order {
		inDegree[name] = len(g.deps[name])
	}

	done := make(map[string]bool, len(g.order))
	sorted := make([]string, 0, len(g.order))
	for len(sorted) < len(g.order) {
		progressed := false
		for _, name := range g.order {
			if done[name] || inDegree[name] != 0 {
				continue
			}
			done[name] = true
			sorted = append(sorted, name)
			progressed = true
			for _, dependent := range g.dependents[name] {
				inDegree[dependent]--
			}
		}
		if !progressed {
			return nil, fmt.Errorf("%w in stage dependencies", ErrCycle)
		}
	}
	return sorted, nil
}
