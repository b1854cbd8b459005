package compiler

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/orbit/internal/duration"
	"github.com/roach88/orbit/internal/ir"
)

// AnchorCycleError reports activities whose anchors lead back to
// themselves. Path starts and ends at the same id.
type AnchorCycleError struct {
	Path []string
}

func (e *AnchorCycleError) Error() string {
	return fmt.Sprintf("anchor cycle: %s", strings.Join(e.Path, " -> "))
}

// ResolveAnchors turns anchored offsets into offsets from the plan start,
// keeping entry order.
//
// An anchored activity starts Offset after its anchor starts. Chains are
// followed to the root. Unknown anchors and cycles are errors; when there
// are several cycles the one whose smallest id sorts first is reported.
func ResolveAnchors(entries []Entry) ([]ir.Directive, error) {
	byID := make(map[string]int, len(entries))
	for i, e := range entries {
		byID[e.ID] = i
	}
	for i, e := range entries {
		if e.Anchor == "" {
			continue
		}
		if _, ok := byID[e.Anchor]; !ok {
			return nil, &CompileError{
				Field:   fmt.Sprintf("activities[%d].anchor", i),
				Message: fmt.Sprintf("anchor %q does not name an activity of this plan", e.Anchor),
				Pos:     e.Pos,
			}
		}
	}

	if cycles := anchorCycles(entries); len(cycles) > 0 {
		return nil, &AnchorCycleError{Path: cycles[0]}
	}

	resolved := make(map[string]duration.Duration, len(entries))
	var resolve func(i int) duration.Duration
	resolve = func(i int) duration.Duration {
		e := entries[i]
		if at, ok := resolved[e.ID]; ok {
			return at
		}
		at := e.Offset
		if e.Anchor != "" {
			at = resolve(byID[e.Anchor]).Plus(e.Offset)
		}
		resolved[e.ID] = at
		return at
	}

	directives := make([]ir.Directive, len(entries))
	for i, e := range entries {
		directives[i] = ir.Directive{
			ID:     e.ID,
			Offset: resolve(i),
			Type:   e.Type,
			Args:   e.Args,
		}
	}
	return directives, nil
}

// anchorGraph maps an activity id to the id it is anchored to.
type anchorGraph map[string][]string

// anchorCycles finds every anchor cycle with Tarjan's algorithm. Each cycle
// is returned as a path that starts at its smallest id and closes on it;
// cycles are sorted by that id.
func anchorCycles(entries []Entry) [][]string {
	graph := make(anchorGraph, len(entries))
	for _, e := range entries {
		graph[e.ID] = nil
		if e.Anchor != "" {
			graph[e.ID] = []string{e.Anchor}
		}
	}

	var cycles [][]string
	for _, scc := range tarjanSCC(graph) {
		if len(scc) > 1 || hasSelfLoop(scc[0], graph) {
			cycles = append(cycles, cyclePath(scc, graph))
		}
	}
	slices.SortFunc(cycles, func(a, b []string) int { return strings.Compare(a[0], b[0]) })
	return cycles
}

func hasSelfLoop(node string, graph anchorGraph) bool {
	return slices.Contains(graph[node], node)
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
// Nodes are visited in sorted order so results do not depend on map order.
func tarjanSCC(graph anchorGraph) [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range graph[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		// v is the root of an SCC: pop it
		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	nodes := make([]string, 0, len(graph))
	for node := range graph {
		nodes = append(nodes, node)
	}
	slices.Sort(nodes)
	for _, node := range nodes {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}
	return sccs
}

// cyclePath walks anchors from the smallest id of an SCC back to itself.
// Every node has one anchor, so the walk is the cycle.
func cyclePath(scc []string, graph anchorGraph) []string {
	start := slices.Min(scc)
	path := []string{start}
	for current := graph[start][0]; current != start; current = graph[current][0] {
		path = append(path, current)
	}
	return append(path, start)
}
