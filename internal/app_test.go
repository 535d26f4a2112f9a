package internal

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/valter-silva-au/trackforge/internal/core"
	"github.com/valter-silva-au/trackforge/internal/observability"
	"github.com/valter-silva-au/trackforge/internal/storage"
	"github.com/valter-silva-au/trackforge/pkg/models"
)

func newTestApp(t *testing.T, basePath string) *App {
	t.Helper()
	app, err := NewApp(basePath)
	if err != nil {
		t.Fatalf("NewApp() error = %v", err)
	}
	t.Cleanup(func() { _ = app.Close() })
	return app
}

func TestResolveBasePath_HomeSet(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("TRACKFORGE_HOME", tmpDir)

	got := ResolveBasePath()
	if got != tmpDir {
		t.Errorf("ResolveBasePath() = %q, want %q", got, tmpDir)
	}
}

func TestResolveBasePath_FindsTrackConfig(t *testing.T) {
	tmpDir := t.TempDir()
	subDir := filepath.Join(tmpDir, "sub", "nested")
	if err := os.MkdirAll(subDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(tmpDir, ".trackconfig"), []byte("task_id:\n  prefix: T\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("TRACKFORGE_HOME", "")
	t.Chdir(subDir)

	got := ResolveBasePath()
	if got != tmpDir {
		t.Errorf("ResolveBasePath() = %q, want %q (should find .trackconfig in parent)", got, tmpDir)
	}
}

func TestResolveBasePath_FallbackToCwd(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("TRACKFORGE_HOME", "")
	t.Chdir(tmpDir)

	got := ResolveBasePath()
	if got != tmpDir {
		t.Errorf("ResolveBasePath() = %q, want %q (should fall back to cwd)", got, tmpDir)
	}
}

func TestResolveWorkspaceRoot(t *testing.T) {
	tests := []struct {
		name string
		root string
		want string
	}{
		{"empty", "", "/base"},
		{"relative", "work", "/base/work"},
		{"absolute", "/src/app/", "/src/app"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := resolveWorkspaceRoot("/base", tt.root); got != tt.want {
				t.Errorf("resolveWorkspaceRoot(%q) = %q, want %q", tt.root, got, tt.want)
			}
		})
	}
}

func TestNewApp_Success(t *testing.T) {
	tmpDir := t.TempDir()
	app := newTestApp(t, tmpDir)

	if app.BasePath != tmpDir || app.WorkspaceRoot != tmpDir {
		t.Errorf("paths = %q / %q, want %q", app.BasePath, app.WorkspaceRoot, tmpDir)
	}
	if app.Tracks == nil || app.Store == nil || app.Verifier == nil {
		t.Error("core services are not wired")
	}
	if app.EventLog == nil || app.AlertEngine == nil || app.MetricsCalc == nil {
		t.Error("observability is not wired")
	}
	if app.Notifier != nil {
		t.Error("notifier should stay nil when notifications are disabled")
	}
	if _, err := os.Stat(filepath.Join(tmpDir, observability.DebugLogFile)); err != nil {
		t.Errorf("debug log not created: %v", err)
	}
}

func TestNewApp_InvalidConfig(t *testing.T) {
	tmpDir := t.TempDir()
	cfg := "task_id:\n  prefix: lower\nverify:\n  workers: 0\n"
	if err := os.WriteFile(filepath.Join(tmpDir, ".trackconfig.yaml"), []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := NewApp(tmpDir)
	if err == nil {
		t.Fatal("expected a validation error")
	}
	if !strings.Contains(err.Error(), "task_id.prefix") || !strings.Contains(err.Error(), "verify.workers") {
		t.Errorf("error should list every problem, got: %v", err)
	}
}

func TestNewApp_WorkspaceOverridesAndNotifier(t *testing.T) {
	tmpDir := t.TempDir()
	cfg := `defaults:
  track: auth
workspace:
  root: work
notifications:
  enabled: true
  slack:
    webhook_url: https://hooks.slack.com/services/T/B/X
`
	if err := os.WriteFile(filepath.Join(tmpDir, ".trackconfig.yaml"), []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}
	work := filepath.Join(tmpDir, "work")
	if err := os.MkdirAll(work, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(work, ".trackrc.yaml"), []byte("verify:\n  min_artifact_bytes: 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	app := newTestApp(t, tmpDir)
	if app.WorkspaceRoot != work {
		t.Errorf("WorkspaceRoot = %q, want %q", app.WorkspaceRoot, work)
	}
	if got := app.Config.EffectiveVerify().MinArtifactBytes; got != 1 {
		t.Errorf("effective min_artifact_bytes = %d, want the .trackrc value 1", got)
	}
	if app.Config.DefaultTrack != "auth" {
		t.Errorf("DefaultTrack = %q", app.Config.DefaultTrack)
	}
	if app.Notifier == nil {
		t.Error("notifier should be wired when enabled with a webhook")
	}
}

// A plan persisted through the adapters can be advanced end to end, and
// every step reaches the event log.
func TestApp_TrackLifecycle(t *testing.T) {
	tmpDir := t.TempDir()
	app := newTestApp(t, tmpDir)
	ctx := context.Background()

	doc := core.PlanDocument{
		Track: "auth",
		Title: "Auth rework",
		Tasks: []models.TaskSpec{
			{ID: "A", Title: "Store", Phase: "p1", Concerns: []string{"storage"}, TargetArtifacts: []string{"store.go"}},
			{ID: "B", Title: "Handler", Phase: "p1", Concerns: []string{"api"}, Dependencies: []string{"A"}, TargetArtifacts: []string{"handler.go"}},
		},
	}
	if _, err := app.Tracks.Plan(ctx, doc); err != nil {
		t.Fatalf("Plan: %v", err)
	}

	res, err := app.Tracks.Next(ctx, "auth", false)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if res.Next == nil || res.Next.ID != "A" || !res.Started {
		t.Fatalf("first Next = %+v, want A started", res)
	}

	// Nothing written yet: A is blocked with a gap.
	res, err = app.Tracks.Next(ctx, "auth", false)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if res.Verified == nil || res.Verified.Passed {
		t.Fatalf("verification = %+v, want a failure", res.Verified)
	}
	if len(res.Verified.Gaps) != 1 || res.Verified.Gaps[0] != "missing: store.go" {
		t.Errorf("gaps = %v", res.Verified.Gaps)
	}

	content := "package auth\n\nfunc Store() {}\n"
	if err := os.WriteFile(filepath.Join(tmpDir, "store.go"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	res, err = app.Tracks.Next(ctx, "auth", false)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if !res.Verified.Passed || res.Next == nil || res.Next.ID != "B" {
		t.Fatalf("Next after fix = %+v, want A passed and B started", res)
	}

	history, err := app.Tracks.Log(ctx, "auth", "A")
	if err != nil {
		t.Fatalf("Log: %v", err)
	}
	if len(history) != 2 {
		t.Errorf("verification log has %d entries for A, want 2", len(history))
	}

	tracks, err := app.Tracks.ListTracks(ctx)
	if err != nil {
		t.Fatalf("ListTracks: %v", err)
	}
	if len(tracks) != 1 || tracks[0].ID != "auth" || tracks[0].Completed != 1 {
		t.Errorf("tracks = %+v", tracks)
	}

	events, err := app.EventLog.Read(observability.EventFilter{TrackID: "auth"})
	if err != nil {
		t.Fatalf("reading events: %v", err)
	}
	var planned, verified int
	for _, e := range events {
		switch e.Type {
		case core.EventTypeTrackPlanned:
			planned++
		case core.EventTypeVerificationRecorded:
			verified++
		}
	}
	if planned != 1 || verified != 2 {
		t.Errorf("events: planned=%d verified=%d, want 1 and 2", planned, verified)
	}
}

func TestTrackStoreAdapter_SearchAndMissingTrack(t *testing.T) {
	tmpDir := t.TempDir()
	app := newTestApp(t, tmpDir)
	ctx := context.Background()

	if _, err := app.Tracks.Status(ctx, "nope"); err == nil {
		t.Error("expected error for a track that was never planned")
	}

	doc := core.PlanDocument{
		Track: "billing",
		Tasks: []models.TaskSpec{
			{ID: "INV", Title: "Invoice renderer", Phase: "p1", Concerns: []string{"pdf"}},
		},
	}
	if _, err := app.Tracks.Plan(ctx, doc); err != nil {
		t.Fatalf("Plan: %v", err)
	}

	hits, err := app.Tracks.Search(ctx, "invoice", 0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	found := false
	for _, h := range hits {
		if h.TrackID == "billing" && h.Ref == "INV" {
			found = true
		}
	}
	if !found {
		t.Errorf("search hits %+v do not include billing/INV", hits)
	}
}

func TestTrackStoreAdapter_SearchSeesLaterChecks(t *testing.T) {
	tmpDir := t.TempDir()
	app := newTestApp(t, tmpDir)
	ctx := context.Background()

	doc := core.PlanDocument{
		Track: "docs",
		Tasks: []models.TaskSpec{
			{ID: "GUIDE", Title: "User guide", Phase: "p1", Concerns: []string{"docs"}, TargetArtifacts: []string{"guide.md"}},
		},
	}
	if _, err := app.Tracks.Plan(ctx, doc); err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if _, err := app.Tracks.Search(ctx, "guide", 0); err != nil {
		t.Fatalf("Search: %v", err)
	}

	results, err := app.Tracks.Check(ctx, "docs", []string{"GUIDE"})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if len(results) != 1 || results[0].Passed {
		t.Fatalf("check results = %+v, want one failure", results)
	}

	hits, err := app.Tracks.Search(ctx, "guide", 0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	found := false
	for _, h := range hits {
		if h.Kind == storage.DocVerification && h.Ref == "GUIDE" {
			found = true
		}
	}
	if !found {
		t.Errorf("search hits %+v do not include the recorded gap for GUIDE", hits)
	}
}

func TestEventLogAdapter(t *testing.T) {
	tmpDir := t.TempDir()
	log, err := observability.NewJSONLEventLog(filepath.Join(tmpDir, EventLogFile))
	if err != nil {
		t.Fatal(err)
	}
	defer log.Close()

	at := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	adapter := &eventLogAdapter{log: log, now: func() time.Time { return at }}
	data := map[string]any{"track_id": "auth", "task_id": "A", "reason": "flaky fixture"}
	if err := adapter.LogEvent(core.EventTypeTaskOverridden, data); err != nil {
		t.Fatalf("LogEvent: %v", err)
	}

	events, err := log.Read(observability.EventFilter{Type: core.EventTypeTaskOverridden})
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	e := events[0]
	if !e.Time.Equal(at) || e.Level != "INFO" || e.TrackID() != "auth" || e.TaskID() != "A" {
		t.Errorf("unexpected event: %+v", e)
	}
}
