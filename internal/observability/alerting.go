package observability

import (
	"fmt"
	"sort"
	"time"
)

// AlertSeverity represents the urgency of an alert.
type AlertSeverity string

const (
	SeverityHigh   AlertSeverity = "high"
	SeverityMedium AlertSeverity = "medium"
	SeverityLow    AlertSeverity = "low"
)

// Alert conditions.
const (
	ConditionBlockedTooLong     = "task_blocked_too_long"
	ConditionStale              = "task_stale"
	ConditionRepeatedFailures   = "repeated_verification_failures"
	ConditionOverrideHeavyTrack = "override_heavy_track"
)

// Alert is a triggered condition.
type Alert struct {
	ID          string        `json:"id"`
	Condition   string        `json:"condition"`
	Severity    AlertSeverity `json:"severity"`
	TrackID     string        `json:"track_id"`
	TaskID      string        `json:"task_id,omitempty"`
	Message     string        `json:"message"`
	TriggeredAt time.Time     `json:"triggered_at"`
}

// AlertThresholds decide when conditions fire. Counts fire once they are
// reached.
type AlertThresholds struct {
	BlockedHours            int `yaml:"blocked_hours" json:"blocked_hours"`
	StaleDays               int `yaml:"stale_days" json:"stale_days"`
	MaxVerificationFailures int `yaml:"max_verification_failures" json:"max_verification_failures"`
	MaxOverrides            int `yaml:"max_overrides" json:"max_overrides"`
}

// DefaultAlertThresholds returns the thresholds used without configuration.
func DefaultAlertThresholds() AlertThresholds {
	return AlertThresholds{
		BlockedHours:            24,
		StaleDays:               3,
		MaxVerificationFailures: 3,
		MaxOverrides:            2,
	}
}

// AlertEngine evaluates alert conditions against the event log.
type AlertEngine interface {
	Evaluate() ([]Alert, error)
}

type alertEngine struct {
	eventLog   EventLog
	thresholds AlertThresholds
	now        func() time.Time
}

// NewAlertEngine creates an AlertEngine. now may be nil.
func NewAlertEngine(eventLog EventLog, thresholds AlertThresholds, now func() time.Time) AlertEngine {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &alertEngine{eventLog: eventLog, thresholds: thresholds, now: now}
}

// taskKey identifies a task across tracks.
type taskKey struct {
	track string
	task  string
}

// taskHistory is what the event log says about one task.
type taskHistory struct {
	status       string
	changedAt    time.Time
	lastActivity time.Time
	failStreak   int
}

// Evaluate replays the event log once and returns every triggered alert,
// ordered by id.
func (ae *alertEngine) Evaluate() ([]Alert, error) {
	events, err := ae.eventLog.Read(EventFilter{})
	if err != nil {
		return nil, fmt.Errorf("reading events for alerts: %w", err)
	}
	now := ae.now()

	tasks := make(map[taskKey]*taskHistory)
	overrides := make(map[string]int)
	history := func(e Event) *taskHistory {
		k := taskKey{track: e.TrackID(), task: e.TaskID()}
		h, ok := tasks[k]
		if !ok {
			h = &taskHistory{}
			tasks[k] = h
		}
		return h
	}

	for _, e := range events {
		if e.TaskID() == "" {
			continue
		}
		h := history(e)
		if e.Time.After(h.lastActivity) {
			h.lastActivity = e.Time
		}
		switch e.Type {
		case typeTaskTransitioned:
			if to, ok := e.Data["to"].(string); ok {
				h.status = to
				h.changedAt = e.Time
			}
			if ev, _ := e.Data["event"].(string); ev == "reset" {
				h.failStreak = 0
			}
		case typeVerificationRecorded:
			if override, _ := e.Data["override"].(bool); override {
				continue
			}
			if passed, _ := e.Data["passed"].(bool); passed {
				h.failStreak = 0
			} else {
				h.failStreak++
			}
		case typeTaskOverridden:
			overrides[e.TrackID()]++
		}
	}

	var alerts []Alert
	blocked := time.Duration(ae.thresholds.BlockedHours) * time.Hour
	stale := time.Duration(ae.thresholds.StaleDays) * 24 * time.Hour

	for k, h := range tasks {
		if h.status == "blocked" && now.Sub(h.changedAt) > blocked {
			alerts = append(alerts, Alert{
				ID:          fmt.Sprintf("blocked-%s-%s", k.track, k.task),
				Condition:   ConditionBlockedTooLong,
				Severity:    SeverityHigh,
				TrackID:     k.track,
				TaskID:      k.task,
				Message:     fmt.Sprintf("task %s in %s has been blocked for more than %d hours", k.task, k.track, ae.thresholds.BlockedHours),
				TriggeredAt: now,
			})
		}
		if h.status == "in_progress" && now.Sub(h.lastActivity) > stale {
			alerts = append(alerts, Alert{
				ID:          fmt.Sprintf("stale-%s-%s", k.track, k.task),
				Condition:   ConditionStale,
				Severity:    SeverityMedium,
				TrackID:     k.track,
				TaskID:      k.task,
				Message:     fmt.Sprintf("task %s in %s has had no activity for more than %d days", k.task, k.track, ae.thresholds.StaleDays),
				TriggeredAt: now,
			})
		}
		if h.status != "completed" && h.failStreak >= ae.thresholds.MaxVerificationFailures {
			alerts = append(alerts, Alert{
				ID:          fmt.Sprintf("failures-%s-%s", k.track, k.task),
				Condition:   ConditionRepeatedFailures,
				Severity:    SeverityMedium,
				TrackID:     k.track,
				TaskID:      k.task,
				Message:     fmt.Sprintf("task %s in %s failed verification %d times in a row", k.task, k.track, h.failStreak),
				TriggeredAt: now,
			})
		}
	}
	for track, n := range overrides {
		if n >= ae.thresholds.MaxOverrides {
			alerts = append(alerts, Alert{
				ID:          "overrides-" + track,
				Condition:   ConditionOverrideHeavyTrack,
				Severity:    SeverityLow,
				TrackID:     track,
				Message:     fmt.Sprintf("track %s has %d verification overrides", track, n),
				TriggeredAt: now,
			})
		}
	}

	sort.Slice(alerts, func(i, j int) bool { return alerts[i].ID < alerts[j].ID })
	return alerts, nil
}
