package core

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
	"testing"

	"github.com/valter-silva-au/trackforge/pkg/models"
	"pgregory.net/rapid"
)

// genDAG draws an acyclic spec set: task i may only depend on tasks < i.
func genDAG(rt *rapid.T) []models.TaskSpec {
	n := rapid.IntRange(1, 12).Draw(rt, "n")
	specs := make([]models.TaskSpec, n)
	for i := range n {
		s := models.TaskSpec{
			ID:       fmt.Sprintf("T%02d", i),
			Title:    fmt.Sprintf("task %d", i),
			Phase:    "p1",
			Concerns: []string{"core"},
			Priority: rapid.IntRange(0, 3).Draw(rt, fmt.Sprintf("prio%d", i)),
		}
		for j := range i {
			if rapid.IntRange(0, 3).Draw(rt, fmt.Sprintf("edge%d_%d", i, j)) == 0 {
				s.Dependencies = append(s.Dependencies, specs[j].ID)
			}
		}
		specs[i] = s
	}
	return specs
}

func buildOrFail(rt *rapid.T, specs []models.TaskSpec) *Graph {
	g, err := NewGraphBuilder(0).Build(specs)
	if err != nil {
		rt.Fatalf("Build: %v", err)
	}
	return g
}

// Closing a dependency chain T_i <- ... <- T_j with the edge T_j -> T_i
// yields a cycle of length j-i+1 >= 2, which Build must reject with a path
// that follows real edges.
func TestProperty_BackEdgeIsRejectedAsCycle(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		specs := genDAG(rt)
		if len(specs) < 2 {
			specs = append(specs, models.TaskSpec{ID: "T01", Title: "task 1", Phase: "p1", Concerns: []string{"core"}})
		}
		i := rapid.IntRange(0, len(specs)-2).Draw(rt, "from")
		j := rapid.IntRange(i+1, len(specs)-1).Draw(rt, "to")
		for k := i + 1; k <= j; k++ {
			if !slices.Contains(specs[k].Dependencies, specs[k-1].ID) {
				specs[k].Dependencies = append(specs[k].Dependencies, specs[k-1].ID)
			}
		}
		specs[i].Dependencies = append(specs[i].Dependencies, specs[j].ID)

		_, err := NewGraphBuilder(0).Build(specs)
		var ce *CycleError
		if !errors.As(err, &ce) {
			rt.Fatalf("expected *CycleError for back edge %s -> %s, got %v", specs[j].ID, specs[i].ID, err)
		}
		path := ce.Path
		if len(path) < 3 || path[0] != path[len(path)-1] {
			rt.Fatalf("cycle path %v is not closed over at least two tasks", path)
		}

		deps := make(map[string][]string, len(specs))
		for _, s := range specs {
			deps[s.ID] = s.Dependencies
		}
		seen := make(map[string]bool)
		for k := 0; k+1 < len(path); k++ {
			if seen[path[k]] {
				rt.Fatalf("cycle path %v repeats %s", path, path[k])
			}
			seen[path[k]] = true
			if !slices.Contains(deps[path[k+1]], path[k]) {
				rt.Fatalf("cycle path %v: %s does not depend on %s", path, path[k+1], path[k])
			}
		}
	})
}

func TestProperty_OrderRespectsDependencies(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		specs := genDAG(rt)
		g := buildOrFail(rt, specs)
		res, err := NewResolver().Resolve(g)
		if err != nil {
			rt.Fatalf("Resolve: %v", err)
		}
		if len(res.Order) != len(specs) {
			rt.Fatalf("order has %d ids, want %d", len(res.Order), len(specs))
		}
		pos := make(map[string]int, len(res.Order))
		for i, id := range res.Order {
			pos[id] = i
		}
		for _, s := range specs {
			for _, dep := range s.Dependencies {
				if pos[dep] >= pos[s.ID] {
					rt.Fatalf("%s ordered before its dependency %s: %v", s.ID, dep, res.Order)
				}
			}
		}

		// Every member of a parallel group has its dependencies in an
		// earlier group.
		wave := make(map[string]int)
		for w, group := range res.ParallelGroups {
			for _, id := range group {
				wave[id] = w
			}
		}
		for _, s := range specs {
			for _, dep := range s.Dependencies {
				if wave[dep] >= wave[s.ID] {
					rt.Fatalf("%s shares or precedes the wave of dependency %s", s.ID, dep)
				}
			}
		}
	})
}

func TestProperty_ResolveDeterministic(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		specs := genDAG(rt)
		first, err := NewResolver().Resolve(buildOrFail(rt, specs))
		if err != nil {
			rt.Fatalf("Resolve: %v", err)
		}
		second, err := NewResolver().Resolve(buildOrFail(rt, specs))
		if err != nil {
			rt.Fatalf("Resolve: %v", err)
		}
		if !reflect.DeepEqual(first, second) {
			rt.Fatalf("resolutions differ:\n%+v\n%+v", first, second)
		}
	})
}

func TestProperty_ImpactIsDownwardClosed(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		specs := genDAG(rt)
		g := buildOrFail(rt, specs)
		target := rapid.SampledFrom(specs).Draw(rt, "target").ID

		impact := NewResolver().Impact(g, []string{target})
		if !slices.Contains(impact, target) {
			rt.Fatalf("impact %v misses its target %s", impact, target)
		}
		for _, s := range specs {
			for _, dep := range s.Dependencies {
				if slices.Contains(impact, dep) && !slices.Contains(impact, s.ID) {
					rt.Fatalf("%s depends on reverted %s but is not in impact %v", s.ID, dep, impact)
				}
			}
		}
	})
}

// Random operation sequences never leave a completed or in-progress task
// with an incomplete dependency, as long as resets go through Impact.
func TestProperty_DependencyInvariantHolds(t *testing.T) {
	events := []Event{EventStart, EventPass, EventBlock, EventOverride, EventFail, EventRetry, EventReset}

	rapid.Check(t, func(rt *rapid.T) {
		specs := genDAG(rt)
		g := buildOrFail(rt, specs)
		resolver := NewResolver()
		sm := NewStateMachine(fixedClock)

		tasks := make([]models.Task, len(specs))
		for i, s := range specs {
			tasks[i] = models.Task{ID: s.ID, Dependencies: s.Dependencies, Status: models.TaskPending}
		}

		steps := rapid.IntRange(1, 40).Draw(rt, "steps")
		for step := range steps {
			sm.PromoteReady(tasks)
			id := rapid.SampledFrom(specs).Draw(rt, fmt.Sprintf("task%d", step)).ID
			ev := rapid.SampledFrom(events).Draw(rt, fmt.Sprintf("event%d", step))

			if ev == EventReset {
				for _, affected := range resolver.Impact(g, []string{id}) {
					if _, err := sm.Apply(tasks, affected, EventReset); err != nil {
						rt.Fatalf("reset %s: %v", affected, err)
					}
				}
			} else {
				_, _ = sm.Apply(tasks, id, ev)
			}

			for _, task := range tasks {
				if task.Status != models.TaskCompleted && task.Status != models.TaskInProgress {
					continue
				}
				for _, dep := range task.Dependencies {
					if st := tasks[taskIndex(tasks, dep)].Status; st != models.TaskCompleted {
						rt.Fatalf("after %s %s: %s is %s but dependency %s is %s",
							ev, id, task.ID, task.Status, dep, st)
					}
				}
			}
		}
	})
}
