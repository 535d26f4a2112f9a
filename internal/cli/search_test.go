package cli

import (
	"strings"
	"testing"
	"time"

	"github.com/valter-silva-au/trackforge/internal/core"
	"github.com/valter-silva-au/trackforge/pkg/models"
)

func TestSearchCmd(t *testing.T) {
	var gotQuery string
	var gotLimit int
	useTracks(t, &fakeTracks{
		searchFn: func(query string, limit int) ([]core.SearchHit, error) {
			gotQuery, gotLimit = query, limit
			return []core.SearchHit{
				{TrackID: "billing", Kind: "task", Ref: "INV", Title: "Invoice renderer", Snippet: "render [invoice] pdf"},
			}, nil
		},
	})
	setFlag(t, &searchLimit, 5)
	setFlag(t, &searchJSON, false)

	out, err := runCmd(t, searchCmd, "invoice", "pdf")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if gotQuery != "invoice pdf" || gotLimit != 5 {
		t.Errorf("query = %q, limit = %d", gotQuery, gotLimit)
	}
	if !strings.Contains(out, "billing/INV (task) Invoice renderer") || !strings.Contains(out, "render [invoice] pdf") {
		t.Errorf("unexpected output:\n%s", out)
	}
}

func TestSearchCmd_NoHits(t *testing.T) {
	useTracks(t, &fakeTracks{
		searchFn: func(string, int) ([]core.SearchHit, error) { return nil, nil },
	})
	setFlag(t, &searchJSON, false)

	out, err := runCmd(t, searchCmd, "nothing")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if !strings.Contains(out, `No matches for "nothing".`) {
		t.Errorf("unexpected output %q", out)
	}
}

func TestLogCmd(t *testing.T) {
	var gotTask string
	useTracks(t, &fakeTracks{
		logFn: func(trackID, taskID string) ([]models.VerificationResult, error) {
			gotTask = taskID
			return []models.VerificationResult{
				{TaskID: "A", Timestamp: cliTime, Gaps: []string{"missing: A.go"}},
				{TaskID: "A", Timestamp: cliTime.Add(time.Hour), Passed: true},
			}, nil
		},
	})
	setFlag(t, &logTask, "A")
	setFlag(t, &logJSON, false)

	out, err := runCmd(t, logCmd)
	if err != nil {
		t.Fatalf("log: %v", err)
	}
	if gotTask != "A" {
		t.Errorf("task = %q", gotTask)
	}
	for _, want := range []string{"2026-03-14 09:30:00  [GAPS] A", "2026-03-14 10:30:00  [PASS] A"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestLogCmd_Empty(t *testing.T) {
	useTracks(t, &fakeTracks{
		logFn: func(string, string) ([]models.VerificationResult, error) { return nil, nil },
	})
	setFlag(t, &logJSON, false)

	out, err := runCmd(t, logCmd)
	if err != nil {
		t.Fatalf("log: %v", err)
	}
	if !strings.Contains(out, "No verifications recorded.") {
		t.Errorf("unexpected output %q", out)
	}
}
