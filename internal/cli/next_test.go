package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/valter-silva-au/trackforge/internal/core"
	"github.com/valter-silva-au/trackforge/pkg/models"
)

func TestNextCmd(t *testing.T) {
	next := sampleTask("B", models.TaskInProgress)
	tests := []struct {
		name string
		peek bool
		res  *core.NextResult
		want []string
	}{
		{
			name: "verifies and starts",
			res: &core.NextResult{
				Verified: &models.VerificationResult{TaskID: "A", Passed: true, Checks: map[string]bool{models.CheckArtifactsExist: true}},
				Next:     &next,
				Started:  true,
			},
			want: []string{"[PASS] A", "ok artifacts_exist", "Started B: Task B", "artifacts: B.go"},
		},
		{
			name: "blocked with gaps",
			res: &core.NextResult{
				Verified: &models.VerificationResult{
					TaskID: "A",
					Checks: map[string]bool{models.CheckArtifactsExist: false},
					Gaps:   []string{"missing: A.go"},
				},
			},
			want: []string{"[GAPS] A", "-- artifacts_exist", "gap: missing: A.go", "No task is ready"},
		},
		{
			name: "peek",
			peek: true,
			res: func() *core.NextResult {
				ready := sampleTask("B", models.TaskReady)
				return &core.NextResult{Next: &ready}
			}(),
			want: []string{"Next: B: Task B"},
		},
		{
			name: "still in progress",
			res: func() *core.NextResult {
				current := sampleTask("A", models.TaskInProgress)
				return &core.NextResult{Next: &current}
			}(),
			want: []string{"Still working on A: Task A"},
		},
		{
			name: "track complete",
			res:  &core.NextResult{TrackComplete: true},
			want: []string{"Track auth is complete."},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotPeek bool
			useTracks(t, &fakeTracks{
				nextFn: func(trackID string, peek bool) (*core.NextResult, error) {
					gotPeek = peek
					return tt.res, nil
				},
			})
			setFlag(t, &nextPeek, tt.peek)

			out, err := runCmd(t, nextCmd)
			if err != nil {
				t.Fatalf("next: %v", err)
			}
			if gotPeek != tt.peek {
				t.Errorf("peek = %v, want %v", gotPeek, tt.peek)
			}
			for _, want := range tt.want {
				if !strings.Contains(out, want) {
					t.Errorf("output missing %q:\n%s", want, out)
				}
			}
		})
	}
}

func TestNextCmd_Error(t *testing.T) {
	useTracks(t, &fakeTracks{
		nextFn: func(string, bool) (*core.NextResult, error) {
			return nil, fmt.Errorf("track auth is locked")
		},
	})
	if _, err := runCmd(t, nextCmd); err == nil || !strings.Contains(err.Error(), "locked") {
		t.Errorf("expected lock error, got %v", err)
	}
}

func TestCheckCmd(t *testing.T) {
	var gotIDs []string
	useTracks(t, &fakeTracks{
		checkFn: func(trackID string, taskIDs []string) ([]models.VerificationResult, error) {
			gotIDs = taskIDs
			return []models.VerificationResult{
				{TaskID: "A", Passed: true},
				{TaskID: "B", Gaps: []string{"trivial: B.go"}, Warnings: []string{"criterion not evidenced: handles 401"}},
			}, nil
		},
	})

	setFlag(t, &checkTasks, []string{"A", "B"})
	setFlag(t, &checkAll, false)
	setFlag(t, &checkJSON, false)

	out, err := runCmd(t, checkCmd)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if strings.Join(gotIDs, ",") != "A,B" {
		t.Errorf("task ids = %v", gotIDs)
	}
	for _, want := range []string{"[PASS] A", "[GAPS] B", "warning: criterion not evidenced", "1 of 2 task(s) pass verification."} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	checkTasks, checkAll, checkJSON = nil, true, true
	out, err = runCmd(t, checkCmd)
	if err != nil {
		t.Fatalf("check --all --json: %v", err)
	}
	if len(gotIDs) != 0 {
		t.Errorf("--all should pass no ids, got %v", gotIDs)
	}
	var decoded []models.VerificationResult
	if err := json.Unmarshal([]byte(out), &decoded); err != nil || len(decoded) != 2 {
		t.Errorf("json output = %q, err = %v", out, err)
	}
}

func TestCheckCmd_FlagValidation(t *testing.T) {
	useTracks(t, &fakeTracks{})

	setFlag(t, &checkTasks, nil)
	setFlag(t, &checkAll, false)
	if _, err := runCmd(t, checkCmd); err == nil {
		t.Error("expected error without --task or --all")
	}

	checkTasks, checkAll = []string{"A"}, true
	if _, err := runCmd(t, checkCmd); err == nil || !strings.Contains(err.Error(), "mutually exclusive") {
		t.Errorf("expected mutually exclusive error, got %v", err)
	}
}

func TestPrintVerification_Override(t *testing.T) {
	var b strings.Builder
	printVerification(&b, models.VerificationResult{TaskID: "A", Passed: true, Override: true, Reason: "flaky fixture"})
	out := b.String()
	if !strings.Contains(out, "[OVERRIDE] A") || !strings.Contains(out, "reason: flaky fixture") {
		t.Errorf("unexpected output:\n%s", out)
	}
}
