package core

import (
	"container/heap"
	"sort"
)

// Resolution is the execution view of a graph.
type Resolution struct {
	Order          []string   `json:"order"`
	ParallelGroups [][]string `json:"parallel_groups"`
	CriticalPath   []string   `json:"critical_path"`
}

// Resolver computes execution order, parallel waves and the critical path.
// Results are deterministic for identical input and are never cached.
type Resolver interface {
	Resolve(g *Graph) (Resolution, error)
	Impact(g *Graph, ids []string) []string
}

type kahnResolver struct{}

// NewResolver creates a Resolver based on Kahn's algorithm.
func NewResolver() Resolver {
	return kahnResolver{}
}

// readyHeap orders node indices by (priority, insertion index).
type readyHeap struct {
	g   *Graph
	idx []int
}

func (h *readyHeap) Len() int           { return len(h.idx) }
func (h *readyHeap) Less(i, j int) bool { return h.g.before(h.idx[i], h.idx[j]) }
func (h *readyHeap) Swap(i, j int)      { h.idx[i], h.idx[j] = h.idx[j], h.idx[i] }
func (h *readyHeap) Push(x any)         { h.idx = append(h.idx, x.(int)) }
func (h *readyHeap) Pop() any {
	old := h.idx
	n := len(old)
	x := old[n-1]
	h.idx = old[:n-1]
	return x
}

// before reports whether node a sorts ahead of node b: lower priority value
// first, then earlier insertion.
func (g *Graph) before(a, b int) bool {
	pa, pb := g.nodes[a].Spec.Priority, g.nodes[b].Spec.Priority
	if pa != pb {
		return pa < pb
	}
	return a < b
}

func (g *Graph) indegrees() []int {
	indeg := make([]int, len(g.nodes))
	for i := range g.nodes {
		indeg[i] = len(g.deps[i])
	}
	return indeg
}

// topoOrder returns node indices in Kahn order with the priority heap.
func (g *Graph) topoOrder() []int {
	indeg := g.indegrees()
	ready := &readyHeap{g: g}
	for i, d := range indeg {
		if d == 0 {
			ready.idx = append(ready.idx, i)
		}
	}
	heap.Init(ready)

	out := make([]int, 0, len(g.nodes))
	for ready.Len() > 0 {
		n := heap.Pop(ready).(int)
		out = append(out, n)
		for _, m := range g.dependents[n] {
			indeg[m]--
			if indeg[m] == 0 {
				heap.Push(ready, m)
			}
		}
	}
	return out
}

func (kahnResolver) Resolve(g *Graph) (Resolution, error) {
	if g == nil || len(g.nodes) == 0 {
		return Resolution{}, nil
	}

	order := g.topoOrder()
	if len(order) != len(g.nodes) {
		return Resolution{}, &CycleError{Path: g.findCycle()}
	}

	res := Resolution{
		Order:          g.names(order),
		ParallelGroups: g.waves(),
		CriticalPath:   g.names(g.criticalPath(order)),
	}
	return res, nil
}

// waves groups nodes by Kahn level: every node in a wave has all of its
// dependencies in earlier waves.
func (g *Graph) waves() [][]string {
	indeg := g.indegrees()
	var current []int
	for i, d := range indeg {
		if d == 0 {
			current = append(current, i)
		}
	}

	var groups [][]string
	for len(current) > 0 {
		sort.Slice(current, func(i, j int) bool { return g.before(current[i], current[j]) })
		groups = append(groups, g.names(current))

		var next []int
		for _, n := range current {
			for _, m := range g.dependents[n] {
				indeg[m]--
				if indeg[m] == 0 {
					next = append(next, m)
				}
			}
		}
		current = next
	}
	return groups
}

// criticalPath returns the longest dependency chain by task count. Equal
// lengths prefer the chain whose sorted insertion indices are smallest, so
// the chain holding the earliest-inserted task wins.
func (g *Graph) criticalPath(order []int) []int {
	best := make([][]int, len(g.nodes))
	var overall []int
	for _, v := range order {
		var chain []int
		for _, u := range g.deps[v] {
			candidate := append(append([]int{}, best[u]...), v)
			if chain == nil || longerChain(candidate, chain) {
				chain = candidate
			}
		}
		if chain == nil {
			chain = []int{v}
		}
		best[v] = chain
		if overall == nil || longerChain(chain, overall) {
			overall = chain
		}
	}
	return overall
}

// longerChain reports whether a beats b as a critical path.
func longerChain(a, b []int) bool {
	if len(a) != len(b) {
		return len(a) > len(b)
	}
	sa := append([]int{}, a...)
	sb := append([]int{}, b...)
	sort.Ints(sa)
	sort.Ints(sb)
	for i := range sa {
		if sa[i] != sb[i] {
			return sa[i] < sb[i]
		}
	}
	return false
}

// Impact returns ids plus every task that transitively depends on them, in
// resolver order. Unknown ids are ignored.
func (kahnResolver) Impact(g *Graph, ids []string) []string {
	if g == nil {
		return nil
	}
	inSet := make([]bool, len(g.nodes))
	var queue []int
	for _, id := range ids {
		if i, ok := g.index[id]; ok && !inSet[i] {
			inSet[i] = true
			queue = append(queue, i)
		}
	}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		for _, m := range g.dependents[n] {
			if !inSet[m] {
				inSet[m] = true
				queue = append(queue, m)
			}
		}
	}

	var out []string
	for _, i := range g.topoOrder() {
		if inSet[i] {
			out = append(out, g.nodes[i].Spec.ID)
		}
	}
	return out
}
