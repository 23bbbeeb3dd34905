package waiting

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// CycleError reports an edge insertion that would have made the dependency
// graph cyclic. Path holds the cycle: it starts at the member whose edge was
// rejected and follows existing dependencies back around to it.
type CycleError[M comparable] struct {
	Path []M
}

func (e *CycleError[M]) Error() string {
	parts := make([]string, 0, len(e.Path)+1)
	for _, m := range e.Path {
		parts = append(parts, fmt.Sprintf("%v", m))
	}
	if len(e.Path) > 0 {
		parts = append(parts, fmt.Sprintf("%v", e.Path[0]))
	}
	return "dependency cycle detected: " + strings.Join(parts, " -> ")
}

// Graph tracks which members must complete before others may begin. Edges
// are stored symmetrically as identity-keyed adjacency sets: each member
// knows both its dependencies and its dependents. The graph stays acyclic at
// all times; an insertion that would create a cycle is rejected without any
// mutation.
type Graph[M comparable] struct {
	mu           sync.RWMutex
	logger       *slog.Logger
	dependencies map[M]map[M]struct{}
	dependents   map[M]map[M]struct{}
}

// NewGraph returns an empty dependency graph logging through the given sink.
// A nil logger falls back to slog.Default.
func NewGraph[M comparable](logger *slog.Logger) *Graph[M] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Graph[M]{
		logger:       logger,
		dependencies: make(map[M]map[M]struct{}),
		dependents:   make(map[M]map[M]struct{}),
	}
}

// Add ensures the member exists as a node. Adding an existing member is a
// no-op.
func (g *Graph[M]) Add(member M) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ensure(member)
}

func (g *Graph[M]) ensure(member M) {
	if _, ok := g.dependencies[member]; !ok {
		g.dependencies[member] = make(map[M]struct{})
	}
	if _, ok := g.dependents[member]; !ok {
		g.dependents[member] = make(map[M]struct{})
	}
}

// Contains reports whether the member is a node of the graph.
func (g *Graph[M]) Contains(member M) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.dependencies[member]
	return ok
}

// AddDependency records that member depends on dependency, creating either
// node as needed. The check and the insertion happen atomically: if the edge
// would close a cycle, a CycleError carrying the full cyclic path is returned
// and the graph is left exactly as it was.
func (g *Graph[M]) AddDependency(member, dependency M) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if path := g.dependsOnLocked(dependency, member, nil, make(map[M]struct{})); path != nil {
		// path already terminates at member; keep each cycle node once and
		// let Error close the loop.
		return &CycleError[M]{Path: append([]M{member}, path[:len(path)-1]...)}
	}

	g.ensure(member)
	g.ensure(dependency)
	g.dependencies[member][dependency] = struct{}{}
	g.dependents[dependency][member] = struct{}{}
	return nil
}

// RemoveDependency removes the edge between member and dependency from both
// endpoints. Removing an edge that does not exist is logged and otherwise
// ignored.
func (g *Graph[M]) RemoveDependency(member, dependency M) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.dependencies[member][dependency]; !ok {
		g.logger.Warn("no such dependency edge to remove",
			"member", fmt.Sprintf("%v", member),
			"dependency", fmt.Sprintf("%v", dependency))
		return
	}
	delete(g.dependencies[member], dependency)
	delete(g.dependents[dependency], member)
}

// DependsOn searches depth-first for a dependency path from member to target.
// It returns the path inclusive of both endpoints, or nil when member does
// not transitively depend on target. A member trivially depends on itself.
func (g *Graph[M]) DependsOn(member, target M) []M {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.dependsOnLocked(member, target, nil, make(map[M]struct{}))
}

func (g *Graph[M]) dependsOnLocked(member, target M, path []M, seen map[M]struct{}) []M {
	// Full slice expression so sibling branches never share a backing array.
	path = append(path[:len(path):len(path)], member)
	if member == target {
		return path
	}
	if _, ok := seen[member]; ok {
		return nil
	}
	seen[member] = struct{}{}

	for dep := range g.dependencies[member] {
		if p := g.dependsOnLocked(dep, target, path, seen); p != nil {
			return p
		}
	}
	return nil
}

// FullDependencies returns the transitive closure of the member's
// dependencies. The closure is computed iteratively with an explicit stack so
// deep graphs do not exhaust the call stack.
func (g *Graph[M]) FullDependencies(member M) []M {
	g.mu.RLock()
	defer g.mu.RUnlock()

	seen := make(map[M]struct{})
	stack := make([]M, 0, len(g.dependencies[member]))
	for dep := range g.dependencies[member] {
		stack = append(stack, dep)
	}

	var all []M
	for len(stack) > 0 {
		m := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		all = append(all, m)
		for dep := range g.dependencies[m] {
			stack = append(stack, dep)
		}
	}
	return all
}

// HasDependencies reports whether the member has at least one dependency.
func (g *Graph[M]) HasDependencies(member M) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.dependencies[member]) > 0
}

// Dependencies returns the member's direct dependencies.
func (g *Graph[M]) Dependencies(member M) []M {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return keysOf(g.dependencies[member])
}

// Dependents returns the members that directly depend on the member.
func (g *Graph[M]) Dependents(member M) []M {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return keysOf(g.dependents[member])
}

func keysOf[M comparable](set map[M]struct{}) []M {
	out := make([]M, 0, len(set))
	for m := range set {
		out = append(out, m)
	}
	return out
}
