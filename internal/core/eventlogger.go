package core

// Event types written to the event log. Every payload carries track_id;
// task-scoped events also carry task_id.
const (
	EventTypeTrackPlanned         = "track.planned"
	EventTypeTaskTransitioned     = "task.transitioned"
	EventTypeVerificationRecorded = "verification.recorded"
	EventTypeTaskOverridden       = "task.overridden"
	EventTypeRollbackApplied      = "rollback.applied"
	EventTypeArtifactsCleaned     = "artifacts.cleaned"
)

// EventLogger receives domain events after the transaction that produced
// them commits. A failed write never fails the command.
type EventLogger interface {
	LogEvent(eventType string, data map[string]any) error
}
