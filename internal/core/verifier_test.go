package core

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/valter-silva-au/trackforge/pkg/models"
)

func writeWorkspaceFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", rel, err)
	}
}

func newTestVerifier(root string) Verifier {
	n := 0
	return NewVerifier(VerifierOptions{
		WorkspaceRoot: root,
		Now:           fixedClock,
		NewID: func() string {
			n++
			return "result-" + strings.Repeat("x", n)
		},
	})
}

const realContent = "package out\n\nfunc Answer() int { return 42 }\n"

func TestVerify_MissingArtifact(t *testing.T) {
	root := t.TempDir()
	task := models.Task{ID: "A", TargetArtifacts: []string{"out.txt"}}

	r, err := newTestVerifier(root).Verify(context.Background(), task)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if r.Passed {
		t.Error("expected passed=false")
	}
	if !reflect.DeepEqual(r.Gaps, []string{"missing: out.txt"}) {
		t.Errorf("Gaps = %v, want [missing: out.txt]", r.Gaps)
	}
	if r.Checks[models.CheckArtifactsExist] {
		t.Error("artifacts_exist should fail")
	}
	if !r.Checks[models.CheckArtifactsNontrivial] {
		t.Error("a missing artifact should not also be reported as trivial")
	}
}

func TestVerify_AllChecksPass(t *testing.T) {
	root := t.TempDir()
	writeWorkspaceFile(t, root, "pkg/out/out.go", realContent)
	writeWorkspaceFile(t, root, "pkg/out/out_test.go", "package out\n")

	task := models.Task{
		ID:              "A",
		TargetArtifacts: []string{"pkg/out/out.go"},
		Testable:        true,
		AcceptanceCriteria: []string{
			"exists: pkg/out/out.go",
			"contains: pkg/out/out.go => func Answer",
			"absent: pkg/out/legacy.go",
			"glob: pkg/**/*.go",
			"nonempty: pkg/out",
		},
	}
	r, err := newTestVerifier(root).Verify(context.Background(), task)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !r.Passed {
		t.Fatalf("expected pass, gaps = %v", r.Gaps)
	}
	for _, name := range []string{
		models.CheckArtifactsExist,
		models.CheckArtifactsNontrivial,
		models.CheckTestsPresent,
		models.CheckAcceptanceCriteria,
	} {
		if !r.Checks[name] {
			t.Errorf("check %s failed", name)
		}
	}
	if len(r.Gaps) != 0 || len(r.Warnings) != 0 {
		t.Errorf("unexpected gaps %v warnings %v", r.Gaps, r.Warnings)
	}
	if r.ID == "" || !r.Timestamp.Equal(smTime) || r.TaskID != "A" {
		t.Errorf("result metadata = %+v", r)
	}
}

func TestVerify_TrivialArtifact(t *testing.T) {
	root := t.TempDir()
	writeWorkspaceFile(t, root, "stub.go", "  \n\n package x \n")
	if err := os.Mkdir(filepath.Join(root, "emptydir"), 0o755); err != nil {
		t.Fatal(err)
	}

	task := models.Task{ID: "A", TargetArtifacts: []string{"stub.go", "emptydir"}}
	r, err := newTestVerifier(root).Verify(context.Background(), task)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	want := []string{"trivial: stub.go (8 bytes)", "trivial: emptydir (0 bytes)"}
	if !reflect.DeepEqual(r.Gaps, want) {
		t.Errorf("Gaps = %v, want %v", r.Gaps, want)
	}
	if r.Passed || r.Checks[models.CheckArtifactsNontrivial] {
		t.Error("trivial artifacts should fail the task")
	}
}

func TestVerify_TestsMissing(t *testing.T) {
	root := t.TempDir()
	writeWorkspaceFile(t, root, "svc/handler.go", realContent)
	// A test file elsewhere in the workspace does not count for svc/.
	writeWorkspaceFile(t, root, "other/thing_test.go", "package other\n")

	task := models.Task{ID: "T-007", TargetArtifacts: []string{"svc/handler.go"}, Testable: true}
	r, err := newTestVerifier(root).Verify(context.Background(), task)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if r.Passed || r.Checks[models.CheckTestsPresent] {
		t.Error("expected tests_present to fail")
	}
	if !reflect.DeepEqual(r.Gaps, []string{"no tests found for task T-007"}) {
		t.Errorf("Gaps = %v", r.Gaps)
	}

	task.Testable = false
	r, err = newTestVerifier(root).Verify(context.Background(), task)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !r.Passed {
		t.Errorf("untestable task should pass, gaps = %v", r.Gaps)
	}
}

func TestVerify_TestsAnywhereWithoutArtifacts(t *testing.T) {
	root := t.TempDir()
	writeWorkspaceFile(t, root, "deep/nested/test_api.py", "def test_x(): pass\n")

	r, err := newTestVerifier(root).Verify(context.Background(), models.Task{ID: "A", Testable: true})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !r.Checks[models.CheckTestsPresent] {
		t.Error("expected a test anywhere in the workspace to count")
	}
}

func TestVerify_CriteriaAdvisoryByDefault(t *testing.T) {
	root := t.TempDir()
	task := models.Task{
		ID: "A",
		AcceptanceCriteria: []string{
			"exists: docs/README.md",
			"Users can log in with SSO",
			"contains: missing-arrow",
		},
	}

	r, err := newTestVerifier(root).Verify(context.Background(), task)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !r.Passed {
		t.Error("advisory criteria must not fail the task")
	}
	if r.Checks[models.CheckAcceptanceCriteria] {
		t.Error("acceptance_criteria check should report failure")
	}
	if !reflect.DeepEqual(r.Gaps, []string{"criterion not met: exists: docs/README.md"}) {
		t.Errorf("Gaps = %v", r.Gaps)
	}
	wantWarnings := []string{
		"unverifiable: Users can log in with SSO",
		"unverifiable: contains: missing-arrow",
	}
	if !reflect.DeepEqual(r.Warnings, wantWarnings) {
		t.Errorf("Warnings = %v, want %v", r.Warnings, wantWarnings)
	}

	blocking := NewVerifier(VerifierOptions{WorkspaceRoot: root, CriteriaBlocking: true})
	r, err = blocking.Verify(context.Background(), task)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if r.Passed {
		t.Error("blocking criteria should fail the task")
	}
}

func TestVerify_Idempotent(t *testing.T) {
	root := t.TempDir()
	writeWorkspaceFile(t, root, "a.go", "x")
	task := models.Task{
		ID:                 "A",
		TargetArtifacts:    []string{"a.go", "b.go"},
		Testable:           true,
		AcceptanceCriteria: []string{"glob: **/*.rs", "free text"},
	}
	v := newTestVerifier(root)

	first, err := v.Verify(context.Background(), task)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	second, err := v.Verify(context.Background(), task)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !reflect.DeepEqual(first.Checks, second.Checks) ||
		!reflect.DeepEqual(first.Gaps, second.Gaps) ||
		!reflect.DeepEqual(first.Warnings, second.Warnings) {
		t.Errorf("results differ:\n%+v\n%+v", first, second)
	}
}

func TestVerify_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestVerifier(t.TempDir()).Verify(ctx, models.Task{ID: "A", TargetArtifacts: []string{"x"}})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestVerifyAll_InputOrder(t *testing.T) {
	root := t.TempDir()
	writeWorkspaceFile(t, root, "shared.go", realContent)
	writeWorkspaceFile(t, root, "solo.go", realContent)

	tasks := []models.Task{
		{ID: "A", TargetArtifacts: []string{"shared.go"}},
		{ID: "B", TargetArtifacts: []string{"missing.go"}},
		{ID: "C", TargetArtifacts: []string{"shared.go", "solo.go"}},
		{ID: "D"},
	}
	results, err := NewVerifier(VerifierOptions{WorkspaceRoot: root, Workers: 2}).VerifyAll(context.Background(), tasks)
	if err != nil {
		t.Fatalf("VerifyAll: %v", err)
	}
	if len(results) != len(tasks) {
		t.Fatalf("got %d results", len(results))
	}
	for i, r := range results {
		if r.TaskID != tasks[i].ID {
			t.Errorf("result %d is for %s, want %s", i, r.TaskID, tasks[i].ID)
		}
	}
	if results[1].Passed || !results[0].Passed || !results[2].Passed || !results[3].Passed {
		t.Errorf("unexpected pass pattern: %v %v %v %v", results[0].Passed, results[1].Passed, results[2].Passed, results[3].Passed)
	}
}

func TestOverlapGroups(t *testing.T) {
	tasks := []models.Task{
		{ID: "A", TargetArtifacts: []string{"pkg/a.go"}},
		{ID: "B", TargetArtifacts: []string{"cmd/main.go"}},
		{ID: "C", TargetArtifacts: []string{"pkg"}},
		{ID: "D", TargetArtifacts: []string{"docs/x.md"}},
		{ID: "E", TargetArtifacts: []string{"cmd/main.go"}},
	}
	got := overlapGroups(tasks)
	want := [][]int{{0, 2}, {1, 4}, {3}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("overlapGroups = %v, want %v", got, want)
	}
}

func TestParseCriterion(t *testing.T) {
	tests := []struct {
		raw  string
		ok   bool
		want criterion
	}{
		{"exists: a/b.go", true, criterion{kind: criterionExists, path: "a/b.go"}},
		{"EXISTS:a.go", true, criterion{kind: criterionExists, path: "a.go"}},
		{"absent: old.go", true, criterion{kind: criterionAbsent, path: "old.go"}},
		{"contains: a.go => func Main", true, criterion{kind: criterionContains, path: "a.go", text: "func Main"}},
		{"glob: **/*.go", true, criterion{kind: criterionGlob, path: "**/*.go"}},
		{"nonempty: out/", true, criterion{kind: criterionNonempty, path: "out/"}},
		{"glob: [", false, criterion{}},
		{"contains: a.go", false, criterion{}},
		{"exists:", false, criterion{}},
		{"Note: tidy up", false, criterion{}},
		{"works", false, criterion{}},
	}
	for _, tt := range tests {
		got, ok := parseCriterion(tt.raw)
		if ok != tt.ok || got != tt.want {
			t.Errorf("parseCriterion(%q) = %+v, %v; want %+v, %v", tt.raw, got, ok, tt.want, tt.ok)
		}
	}
}
