package observability

import (
	"fmt"
	"time"
)

// Event types the engine writes. They mirror the constants in core.
const (
	typeTrackPlanned         = "track.planned"
	typeTaskTransitioned     = "task.transitioned"
	typeVerificationRecorded = "verification.recorded"
	typeTaskOverridden       = "task.overridden"
	typeRollbackApplied      = "rollback.applied"
	typeArtifactsCleaned     = "artifacts.cleaned"
)

// Metrics are counters derived from the event log.
type Metrics struct {
	TracksPlanned       int            `json:"tracks_planned"`
	Transitions         int            `json:"transitions"`
	TransitionsByStatus map[string]int `json:"transitions_by_status"`
	TasksCompleted      int            `json:"tasks_completed"`
	VerificationsPassed int            `json:"verifications_passed"`
	VerificationsFailed int            `json:"verifications_failed"`
	Overrides           int            `json:"overrides"`
	Rollbacks           int            `json:"rollbacks"`
	ArtifactsRemoved    int            `json:"artifacts_removed"`
	EventCount          int            `json:"event_count"`
	OldestEvent         *time.Time     `json:"oldest_event,omitempty"`
	NewestEvent         *time.Time     `json:"newest_event,omitempty"`
}

// PassRate is the share of verifications that passed, in percent. It is
// zero when nothing was verified.
func (m *Metrics) PassRate() int {
	total := m.VerificationsPassed + m.VerificationsFailed
	if total == 0 {
		return 0
	}
	return m.VerificationsPassed * 100 / total
}

// MetricsCalculator derives metrics from the event log.
type MetricsCalculator interface {
	// Calculate aggregates events since the given time. An empty trackID
	// covers every track.
	Calculate(since time.Time, trackID string) (*Metrics, error)
}

type metricsCalculator struct {
	eventLog EventLog
}

// NewMetricsCalculator creates a MetricsCalculator reading from eventLog.
func NewMetricsCalculator(eventLog EventLog) MetricsCalculator {
	return &metricsCalculator{eventLog: eventLog}
}

func (mc *metricsCalculator) Calculate(since time.Time, trackID string) (*Metrics, error) {
	events, err := mc.eventLog.Read(EventFilter{Since: &since, TrackID: trackID})
	if err != nil {
		return nil, fmt.Errorf("reading events for metrics: %w", err)
	}

	m := &Metrics{TransitionsByStatus: make(map[string]int)}
	m.EventCount = len(events)

	for i, event := range events {
		t := event.Time
		if i == 0 {
			m.OldestEvent = &t
		}
		m.NewestEvent = &t

		switch event.Type {
		case typeTrackPlanned:
			m.TracksPlanned++
		case typeTaskTransitioned:
			m.Transitions++
			if to, ok := event.Data["to"].(string); ok {
				m.TransitionsByStatus[to]++
				if to == "completed" {
					m.TasksCompleted++
				}
			}
		case typeVerificationRecorded:
			if override, _ := event.Data["override"].(bool); override {
				continue
			}
			if passed, _ := event.Data["passed"].(bool); passed {
				m.VerificationsPassed++
			} else {
				m.VerificationsFailed++
			}
		case typeTaskOverridden:
			m.Overrides++
		case typeRollbackApplied:
			m.Rollbacks++
		case typeArtifactsCleaned:
			if removed, ok := event.Data["removed"].([]any); ok {
				m.ArtifactsRemoved += len(removed)
			}
		}
	}
	return m, nil
}
