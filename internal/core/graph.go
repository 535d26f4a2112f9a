package core

import (
	"regexp"
	"sort"
	"strings"

	"github.com/valter-silva-au/trackforge/pkg/models"
)

// DefaultMaxNesting is the deepest hierarchical level a task may sit at
// relative to its phase when no limit is configured.
const DefaultMaxNesting = 2

// validTaskIDPattern matches ids that are safe as file names.
var validTaskIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// Node is one validated task in a Graph. Spec.Dependencies holds the merged
// dependency set (declared dependencies plus inverse blocks edges) in
// insertion order; Spec.Blocks holds the derived dependents.
type Node struct {
	Spec  models.TaskSpec
	Index int
	Level int
}

// Graph is a validated dependency DAG. Edges run from a dependency to its
// dependent. Adjacency lists are sorted by insertion index.
type Graph struct {
	nodes      []Node
	index      map[string]int
	deps       [][]int
	dependents [][]int
}

// Len returns the number of tasks in the graph.
func (g *Graph) Len() int { return len(g.nodes) }

// IDs returns task ids in insertion order.
func (g *Graph) IDs() []string {
	ids := make([]string, len(g.nodes))
	for i, n := range g.nodes {
		ids[i] = n.Spec.ID
	}
	return ids
}

// Node returns the node for id.
func (g *Graph) Node(id string) (Node, bool) {
	i, ok := g.index[id]
	if !ok {
		return Node{}, false
	}
	return g.nodes[i], true
}

// Dependencies returns the ids id depends on.
func (g *Graph) Dependencies(id string) []string {
	i, ok := g.index[id]
	if !ok {
		return nil
	}
	return g.names(g.deps[i])
}

// Dependents returns the ids that depend directly on id.
func (g *Graph) Dependents(id string) []string {
	i, ok := g.index[id]
	if !ok {
		return nil
	}
	return g.names(g.dependents[i])
}

func (g *Graph) names(idx []int) []string {
	if len(idx) == 0 {
		return nil
	}
	out := make([]string, len(idx))
	for k, i := range idx {
		out[k] = g.nodes[i].Spec.ID
	}
	return out
}

// GraphBuilder turns a flat task list into a validated DAG.
type GraphBuilder interface {
	Build(specs []models.TaskSpec) (*Graph, error)
}

type graphBuilder struct {
	maxNesting int
}

// NewGraphBuilder creates a GraphBuilder. maxNesting bounds how many levels
// of parent/child nesting a task may sit at below its phase; values below 1
// fall back to DefaultMaxNesting.
func NewGraphBuilder(maxNesting int) GraphBuilder {
	if maxNesting < 1 {
		maxNesting = DefaultMaxNesting
	}
	return &graphBuilder{maxNesting: maxNesting}
}

// Build validates specs and returns the graph. It never returns a partial
// graph alongside an error.
func (b *graphBuilder) Build(specs []models.TaskSpec) (*Graph, error) {
	g := &Graph{
		nodes:      make([]Node, len(specs)),
		index:      make(map[string]int, len(specs)),
		deps:       make([][]int, len(specs)),
		dependents: make([][]int, len(specs)),
	}

	for i, spec := range specs {
		if !validTaskIDPattern.MatchString(spec.ID) {
			return nil, &InvalidSpecError{TaskID: spec.ID, Reason: "id must match " + validTaskIDPattern.String()}
		}
		if _, dup := g.index[spec.ID]; dup {
			return nil, &DuplicateTaskIDError{TaskID: spec.ID}
		}
		if strings.TrimSpace(spec.Title) == "" {
			return nil, &InvalidSpecError{TaskID: spec.ID, Reason: "title must not be empty"}
		}
		if concerns := nonEmpty(spec.Concerns); len(concerns) != 1 {
			return nil, &PrimaryConcernError{TaskID: spec.ID, Concerns: concerns}
		}
		g.index[spec.ID] = i
		g.nodes[i] = Node{Spec: spec, Index: i}
	}

	// Collect edges dep -> dependent. Blocks declarations are the inverse
	// view and land on the blocked task's dependency set.
	edges := make([]map[int]bool, len(specs))
	for i := range edges {
		edges[i] = make(map[int]bool)
	}
	for i, spec := range specs {
		for _, dep := range spec.Dependencies {
			j, ok := g.index[dep]
			if !ok {
				return nil, &UnknownDependencyError{TaskID: spec.ID, MissingDep: dep}
			}
			if j == i {
				return nil, &CycleError{Path: []string{spec.ID, spec.ID}}
			}
			edges[i][j] = true
		}
		for _, blocked := range spec.Blocks {
			j, ok := g.index[blocked]
			if !ok {
				return nil, &UnknownDependencyError{TaskID: spec.ID, MissingDep: blocked}
			}
			if j == i {
				return nil, &CycleError{Path: []string{spec.ID, spec.ID}}
			}
			edges[j][i] = true
		}
		if spec.Parent != "" {
			if _, ok := g.index[spec.Parent]; !ok {
				return nil, &UnknownDependencyError{TaskID: spec.ID, MissingDep: spec.Parent}
			}
		}
	}

	for i := range specs {
		for j := range edges[i] {
			g.deps[i] = append(g.deps[i], j)
			g.dependents[j] = append(g.dependents[j], i)
		}
	}
	for i := range specs {
		sort.Ints(g.deps[i])
		sort.Ints(g.dependents[i])
	}

	if path := g.findCycle(); path != nil {
		return nil, &CycleError{Path: path}
	}

	if err := b.assignLevels(g); err != nil {
		return nil, err
	}

	for i := range g.nodes {
		spec := g.nodes[i].Spec
		spec.Dependencies = g.names(g.deps[i])
		spec.Blocks = g.names(g.dependents[i])
		spec.Concerns = nonEmpty(spec.Concerns)
		g.nodes[i].Spec = spec
	}
	return g, nil
}

// assignLevels computes each task's nesting level below its phase (a task
// with no parent is level 1) and rejects anything deeper than maxNesting.
func (b *graphBuilder) assignLevels(g *Graph) error {
	for i := range g.nodes {
		spec := g.nodes[i].Spec
		level := 1
		seen := map[int]bool{i: true}
		cur := spec
		for cur.Parent != "" {
			p := g.index[cur.Parent]
			if seen[p] {
				return &InvalidSpecError{TaskID: spec.ID, Reason: "parent chain loops back on itself"}
			}
			seen[p] = true
			parent := g.nodes[p].Spec
			if parent.Phase != spec.Phase {
				return &InvalidSpecError{TaskID: spec.ID, Reason: "parent " + parent.ID + " belongs to a different phase"}
			}
			level++
			cur = parent
		}
		if level > b.maxNesting {
			return &NestingDepthError{TaskID: spec.ID, Depth: level, Max: b.maxNesting}
		}
		g.nodes[i].Level = level
	}
	return nil
}

// findCycle runs a three-color DFS in insertion order and returns one cycle
// path closed on its first node, or nil when the graph is acyclic.
func (g *Graph) findCycle() []string {
	const (
		white = 0
		gray  = 1
		black = 2
	)

	color := make([]int, len(g.nodes))
	parent := make([]int, len(g.nodes))
	for i := range parent {
		parent[i] = -1
	}

	var cycle []int
	var visit func(u int) bool
	visit = func(u int) bool {
		color[u] = gray
		for _, v := range g.dependents[u] {
			switch color[v] {
			case white:
				parent[v] = u
				if visit(v) {
					return true
				}
			case gray:
				// Back edge u -> v: walk parents from u back to v.
				cycle = append(cycle, v)
				for cur := u; cur != -1 && cur != v; cur = parent[cur] {
					cycle = append(cycle, cur)
				}
				cycle = append(cycle, v)
				return true
			}
		}
		color[u] = black
		return false
	}

	for i := range g.nodes {
		if color[i] == white && visit(i) {
			break
		}
	}
	if cycle == nil {
		return nil
	}

	// cycle is [v, u, ..., v] in reverse edge order.
	out := make([]string, len(cycle))
	for k := range cycle {
		out[k] = g.nodes[cycle[len(cycle)-1-k]].Spec.ID
	}
	return out
}

func nonEmpty(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// buildTaskGraph validates persisted tasks as a graph and refreshes each
// task's derived Blocks view from it.
func buildTaskGraph(b GraphBuilder, tasks []models.Task) (*Graph, error) {
	specs := make([]models.TaskSpec, len(tasks))
	for i, t := range tasks {
		specs[i] = models.SpecFromTask(t)
	}
	g, err := b.Build(specs)
	if err != nil {
		return nil, err
	}
	for i := range tasks {
		tasks[i].Blocks = g.Dependents(tasks[i].ID)
	}
	return g, nil
}
