package storage

import (
	"context"
	"testing"
	"time"

	"github.com/valter-silva-au/trackforge/pkg/models"
)

func TestSearch_FindsTasksAndGaps(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	parser := sampleTask("parse")
	parser.Title = "Implement config parser"
	parser.Description = "Parse the YAML manifest into typed settings"
	writer := sampleTask("write", "parse")
	writer.Title = "Write output"
	tasks := []models.Task{parser, writer}
	if err := s.Create(ctx, sampleTrack("t1", tasks), tasks); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := s.AppendVerificationLog(ctx, "t1", models.VerificationResult{
		TaskID:    "write",
		Timestamp: testTime,
		Gaps:      []string{"missing: report.csv"},
	}); err != nil {
		t.Fatalf("AppendVerificationLog: %v", err)
	}

	hits, err := s.Search(ctx, "manifest", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 || hits[0].Ref != "parse" || hits[0].Kind != DocTask {
		t.Fatalf("unexpected hits for manifest: %+v", hits)
	}

	hits, err = s.Search(ctx, "report.csv", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 || hits[0].Kind != DocVerification || hits[0].Ref != "write" {
		t.Fatalf("unexpected hits for gap text: %+v", hits)
	}
}

func TestSearch_ReindexesChangedTracks(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	tasks := []models.Task{sampleTask("A")}
	if err := s.Create(ctx, sampleTrack("t1", tasks), tasks); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if hits, err := s.Search(ctx, "zebra", 10); err != nil || len(hits) != 0 {
		t.Fatalf("expected no hits before edit, got %+v (err %v)", hits, err)
	}

	err := s.Update(ctx, "t1", func(tx *Tx) error {
		tx.Tasks[0].Description = "zebra crossing"
		return nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	hits, err := s.Search(ctx, "zebra", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 || hits[0].Ref != "A" {
		t.Fatalf("expected reindexed hit, got %+v", hits)
	}
}

func TestSearch_IndexesGapsRecordedAfterFirstSearch(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	tasks := []models.Task{sampleTask("A")}
	if err := s.Create(ctx, sampleTrack("t1", tasks), tasks); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := s.Search(ctx, "anything", 10); err != nil {
		t.Fatalf("Search: %v", err)
	}

	err := s.Update(ctx, "t1", func(tx *Tx) error {
		tx.Tasks[0].Status = models.TaskBlocked
		tx.AppendVerification(models.VerificationResult{
			TaskID:    "A",
			Timestamp: testTime,
			Gaps:      []string{"missing: zebrafile.txt"},
		})
		return nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	hits, err := s.Search(ctx, "zebrafile", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 || hits[0].Kind != DocVerification || hits[0].Ref != "A" {
		t.Fatalf("expected the recorded gap, got %+v", hits)
	}

	// A result appended outside a transaction also invalidates the index.
	if err := s.AppendVerificationLog(ctx, "t1", models.VerificationResult{
		TaskID:    "A",
		Timestamp: testTime.Add(time.Minute),
		Gaps:      []string{"missing: okapi.txt"},
	}); err != nil {
		t.Fatalf("AppendVerificationLog: %v", err)
	}
	hits, err = s.Search(ctx, "okapi", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("expected the appended gap, got %+v", hits)
	}
}

func TestSearch_QuotesSpecialCharacters(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	tasks := []models.Task{sampleTask("A")}
	if err := s.Create(ctx, sampleTrack("t1", tasks), tasks); err != nil {
		t.Fatalf("Create: %v", err)
	}

	for _, q := range []string{`"unbalanced`, "a-b*", "NOT OR AND"} {
		if _, err := s.Search(ctx, q, 5); err != nil {
			t.Errorf("Search(%q) returned error: %v", q, err)
		}
	}
}

func TestSearch_EmptyQuery(t *testing.T) {
	s, _ := newTestStore(t)
	if _, err := s.Search(context.Background(), "   ", 5); err == nil {
		t.Fatal("expected error for empty query")
	}
}
