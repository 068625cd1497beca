// Package graph provides the section dependency graph for proposal workflows.
// The graph is built once at startup from the section configuration, is
// validated to be acyclic, and is immutable afterwards, so it can be shared
// across concurrent callers without locking.
package graph

import (
	"fmt"
	"sort"
)

// Graph is an immutable directed acyclic graph of section dependencies.
// An edge A -> B means section A depends on section B.
type Graph struct {
	// deps maps a section to the sections it depends on.
	deps map[string][]string

	// dependents maps a section to the sections that depend on it (reversed edges).
	dependents map[string][]string

	// order is the precomputed topological order (dependencies first).
	order []string
}

// New builds a dependency graph from an adjacency list mapping each section
// id to the ids it depends on. Every referenced id must appear as a key.
// Returns a ConfigError if the graph contains a cycle or an undefined id.
func New(deps map[string][]string) (*Graph, error) {
	g := &Graph{
		deps:       make(map[string][]string, len(deps)),
		dependents: make(map[string][]string, len(deps)),
	}

	// Copy edges and validate that every dependency is a defined section.
	for id, ds := range deps {
		for _, d := range ds {
			if _, ok := deps[d]; !ok {
				return nil, &ConfigError{
					Section: id,
					Message: fmt.Sprintf("depends on undefined section %q", d),
				}
			}
			if d == id {
				return nil, &ConfigError{Section: id, Message: "depends on itself"}
			}
			g.deps[id] = append(g.deps[id], d)
			g.dependents[d] = append(g.dependents[d], id)
		}
		if _, ok := g.deps[id]; !ok {
			g.deps[id] = nil
		}
		if _, ok := g.dependents[id]; !ok {
			g.dependents[id] = nil
		}
	}

	if cycle := g.findCycle(); cycle != nil {
		return nil, &ConfigError{
			Section: cycle[0],
			Message: fmt.Sprintf("dependency cycle: %v", cycle),
		}
	}

	g.order = g.computeTopologicalOrder()

	return g, nil
}

// Contains reports whether the section id is part of the graph.
func (g *Graph) Contains(id string) bool {
	_, ok := g.deps[id]
	return ok
}

// Sections returns all section ids in topological order.
func (g *Graph) Sections() []string {
	out := make([]string, len(g.order))
	copy(out, g.order)
	return out
}

// DependenciesOf returns the direct dependencies of a section, sorted.
func (g *Graph) DependenciesOf(id string) []string {
	return sortedCopy(g.deps[id])
}

// DependentsOf returns the sections directly depending on id, sorted.
func (g *Graph) DependentsOf(id string) []string {
	return sortedCopy(g.dependents[id])
}

// AllDependencies returns every section reachable from id via dependency
// edges (transitive closure), sorted.
func (g *Graph) AllDependencies(id string) []string {
	return g.reachable(id, g.deps)
}

// AllDependents returns every section that transitively depends on id,
// computed via reachability from id in the reversed graph, sorted.
func (g *Graph) AllDependents(id string) []string {
	return g.reachable(id, g.dependents)
}

// IsDependencyOf reports whether a is a direct or transitive dependency of b.
func (g *Graph) IsDependencyOf(a, b string) bool {
	for _, dep := range g.AllDependencies(b) {
		if dep == a {
			return true
		}
	}
	return false
}

// TopologicalOrder returns the sections with every dependency ordered before
// its dependents. Ties are broken lexicographically so the order is stable
// across runs and process restarts.
func (g *Graph) TopologicalOrder() []string {
	return g.Sections()
}

// reachable collects every node reachable from start via the given edge map.
func (g *Graph) reachable(start string, edges map[string][]string) []string {
	seen := make(map[string]bool)
	stack := append([]string(nil), edges[start]...)

	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[n] {
			continue
		}
		seen[n] = true
		stack = append(stack, edges[n]...)
	}

	out := make([]string, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// findCycle runs a three-color DFS over the dependency edges and returns the
// nodes of the first cycle found, or nil when the graph is acyclic.
func (g *Graph) findCycle() []string {
	const (
		white = 0 // unvisited
		gray  = 1 // on the current DFS path
		black = 2 // fully explored
	)

	color := make(map[string]int, len(g.deps))
	var path []string
	var cycle []string

	var visit func(string) bool
	visit = func(n string) bool {
		color[n] = gray
		path = append(path, n)

		for _, d := range g.deps[n] {
			switch color[d] {
			case gray:
				// Found a back edge; slice the current path from d onward.
				for i, p := range path {
					if p == d {
						cycle = append([]string(nil), path[i:]...)
						return true
					}
				}
				cycle = []string{d}
				return true
			case white:
				if visit(d) {
					return true
				}
			}
		}

		path = path[:len(path)-1]
		color[n] = black
		return false
	}

	// Iterate keys in sorted order so error reporting is deterministic.
	for _, n := range sortedKeys(g.deps) {
		if color[n] == white {
			if visit(n) {
				return cycle
			}
		}
	}
	return nil
}

// computeTopologicalOrder runs Kahn's algorithm with a lexicographically
// sorted ready set. Must only be called on a validated acyclic graph.
func (g *Graph) computeTopologicalOrder() []string {
	indegree := make(map[string]int, len(g.deps))
	for id, ds := range g.deps {
		indegree[id] = len(ds)
	}

	var ready []string
	for id, n := range indegree {
		if n == 0 {
			ready = append(ready, id)
		}
	}
	sort.Strings(ready)

	order := make([]string, 0, len(g.deps))
	for len(ready) > 0 {
		n := ready[0]
		ready = ready[1:]
		order = append(order, n)

		var unlocked []string
		for _, dep := range g.dependents[n] {
			indegree[dep]--
			if indegree[dep] == 0 {
				unlocked = append(unlocked, dep)
			}
		}
		if len(unlocked) > 0 {
			ready = append(ready, unlocked...)
			sort.Strings(ready)
		}
	}

	return order
}

func sortedCopy(in []string) []string {
	out := append([]string(nil), in...)
	sort.Strings(out)
	return out
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
