package observability

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// maxEventLine bounds a single JSONL record. Rollback events list every
// removed path, so lines can outgrow the scanner default.
const maxEventLine = 1 << 20

// Event is one entry of the event log.
type Event struct {
	Time    time.Time      `json:"time"`
	Level   string         `json:"level"` // INFO, WARN, ERROR
	Type    string         `json:"type"`  // e.g. "task.transitioned", "rollback.applied"
	Message string         `json:"msg"`
	Data    map[string]any `json:"data,omitempty"`
}

// TrackID returns the track an event belongs to, if it names one.
func (e Event) TrackID() string {
	id, _ := e.Data["track_id"].(string)
	return id
}

// TaskID returns the task an event belongs to, if it names one.
func (e Event) TaskID() string {
	id, _ := e.Data["task_id"].(string)
	return id
}

// EventFilter selects events on Read. Zero fields match everything.
type EventFilter struct {
	Since   *time.Time
	Until   *time.Time
	Type    string
	Level   string
	TrackID string
}

// EventLog writes and reads events.
type EventLog interface {
	Write(event Event) error
	Read(filter EventFilter) ([]Event, error)
	Close() error
}

type jsonlEventLog struct {
	path string
	file *os.File
	mu   sync.Mutex
}

// NewJSONLEventLog opens, or creates, the JSONL event log at path.
func NewJSONLEventLog(path string) (EventLog, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening event log: %w", err)
	}
	return &jsonlEventLog{path: path, file: f}, nil
}

// Write appends one event as a single line.
func (l *jsonlEventLog) Write(event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshalling event: %w", err)
	}
	data = append(data, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.file.Write(data); err != nil {
		return fmt.Errorf("writing event: %w", err)
	}
	return nil
}

// Read returns the events matching filter in the order they were written.
// Malformed lines are skipped.
func (l *jsonlEventLog) Read(filter EventFilter) ([]Event, error) {
	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening event log for reading: %w", err)
	}
	defer func() { _ = f.Close() }()

	var events []Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEventLine)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var event Event
		if err := json.Unmarshal(line, &event); err != nil {
			continue
		}
		if filter.matches(event) {
			events = append(events, event)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning event log: %w", err)
	}
	return events, nil
}

func (l *jsonlEventLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.file.Close(); err != nil {
		return fmt.Errorf("closing event log: %w", err)
	}
	return nil
}

func (f EventFilter) matches(event Event) bool {
	if f.Since != nil && event.Time.Before(*f.Since) {
		return false
	}
	if f.Until != nil && event.Time.After(*f.Until) {
		return false
	}
	if f.Type != "" && event.Type != f.Type {
		return false
	}
	if f.Level != "" && event.Level != f.Level {
		return false
	}
	if f.TrackID != "" && event.TrackID() != f.TrackID {
		return false
	}
	return true
}
