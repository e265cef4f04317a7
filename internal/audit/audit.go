// Package audit holds the fire-and-forget collaborators the gateway calls
// after each decision: a usage recorder and an audit log. Neither may block
// or fail the admission pipeline; implementations buffer and drop under
// pressure rather than push back.
package audit

import (
	"log/slog"
	"time"
)

// Event is one audited gateway decision.
type Event struct {
	ID         string
	At         time.Time
	Type       string
	Service    string
	Identifier string
	Role       string
	Status     int
	Detail     string
}

// Recorder tallies usage per identifier and event type.
type Recorder interface {
	Record(identifier, eventType string, n int64)
}

// Log persists audit events.
type Log interface {
	Log(ev Event)
}

// NopRecorder discards usage records.
type NopRecorder struct{}

func (NopRecorder) Record(string, string, int64) {}

// NopLog discards audit events.
type NopLog struct{}

func (NopLog) Log(Event) {}

// SlogLog writes audit events to the structured log. Used when no database
// is configured; the log stream is then the audit trail.
type SlogLog struct {
	Logger *slog.Logger
}

func (l SlogLog) Log(ev Event) {
	l.Logger.Info("audit",
		"audit_id", ev.ID,
		"event_type", ev.Type,
		"service", ev.Service,
		"identifier", ev.Identifier,
		"role", ev.Role,
		"status", ev.Status,
		"detail", ev.Detail,
	)
}
