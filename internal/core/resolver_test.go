package core

import (
	"reflect"
	"testing"

	"github.com/valter-silva-au/trackforge/pkg/models"
)

func TestResolve_LinearChain(t *testing.T) {
	res, err := NewResolver().Resolve(mustBuild(t, chainSpecs()))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !reflect.DeepEqual(res.Order, []string{"A", "B", "C"}) {
		t.Errorf("Order = %v", res.Order)
	}
	if !reflect.DeepEqual(res.ParallelGroups, [][]string{{"A"}, {"B"}, {"C"}}) {
		t.Errorf("ParallelGroups = %v", res.ParallelGroups)
	}
	if !reflect.DeepEqual(res.CriticalPath, []string{"A", "B", "C"}) {
		t.Errorf("CriticalPath = %v", res.CriticalPath)
	}
}

func TestResolve_Diamond(t *testing.T) {
	res, err := NewResolver().Resolve(mustBuild(t, diamondSpecs()))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !reflect.DeepEqual(res.Order, []string{"A", "B", "C", "D"}) {
		t.Errorf("Order = %v", res.Order)
	}
	if !reflect.DeepEqual(res.ParallelGroups, [][]string{{"A"}, {"B", "C"}, {"D"}}) {
		t.Errorf("ParallelGroups = %v", res.ParallelGroups)
	}
	// A-B-D and A-C-D tie on length; the chain through B was inserted first.
	if !reflect.DeepEqual(res.CriticalPath, []string{"A", "B", "D"}) {
		t.Errorf("CriticalPath = %v", res.CriticalPath)
	}
}

func TestResolve_PriorityThenInsertion(t *testing.T) {
	specs := []models.TaskSpec{spec("A"), spec("B"), spec("C")}
	specs[2].Priority = -1
	specs[1].Priority = 5

	res, err := NewResolver().Resolve(mustBuild(t, specs))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !reflect.DeepEqual(res.Order, []string{"C", "A", "B"}) {
		t.Errorf("Order = %v, want [C A B]", res.Order)
	}
	if !reflect.DeepEqual(res.ParallelGroups, [][]string{{"C", "A", "B"}}) {
		t.Errorf("ParallelGroups = %v", res.ParallelGroups)
	}
}

func TestResolve_PriorityNeverBeatsDependencies(t *testing.T) {
	specs := []models.TaskSpec{spec("A"), spec("B", "A")}
	specs[1].Priority = -10

	res, err := NewResolver().Resolve(mustBuild(t, specs))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !reflect.DeepEqual(res.Order, []string{"A", "B"}) {
		t.Errorf("Order = %v, want [A B]", res.Order)
	}
}

func TestResolve_LongestChainWins(t *testing.T) {
	specs := []models.TaskSpec{
		spec("A"),
		spec("B", "A"),
		spec("X"),
		spec("Y", "X"),
		spec("Z", "Y"),
	}
	res, err := NewResolver().Resolve(mustBuild(t, specs))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !reflect.DeepEqual(res.CriticalPath, []string{"X", "Y", "Z"}) {
		t.Errorf("CriticalPath = %v, want [X Y Z]", res.CriticalPath)
	}
}

func TestResolve_Empty(t *testing.T) {
	res, err := NewResolver().Resolve(mustBuild(t, nil))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(res.Order) != 0 || len(res.ParallelGroups) != 0 || len(res.CriticalPath) != 0 {
		t.Errorf("expected empty resolution, got %+v", res)
	}
}

func TestResolve_Deterministic(t *testing.T) {
	g := mustBuild(t, diamondSpecs())
	r := NewResolver()
	first, err := r.Resolve(g)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := r.Resolve(g)
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("run %d differs: %+v vs %+v", i, first, again)
		}
	}
}

func TestImpact(t *testing.T) {
	g := mustBuild(t, diamondSpecs())
	r := NewResolver()

	tests := []struct {
		ids  []string
		want []string
	}{
		{[]string{"A"}, []string{"A", "B", "C", "D"}},
		{[]string{"B"}, []string{"B", "D"}},
		{[]string{"D"}, []string{"D"}},
		{[]string{"C", "B"}, []string{"B", "C", "D"}},
		{[]string{"nope"}, nil},
	}
	for _, tt := range tests {
		if got := r.Impact(g, tt.ids); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("Impact(%v) = %v, want %v", tt.ids, got, tt.want)
		}
	}
}
