package runlog

import "time"

// Event is an immutable, append-only run journal record. The journal is the
// operational history of the dialer: when runs started and stopped, which
// records were dispatched, what came back.
//
// Invariants:
// - Events are never updated or deleted.
// - Journaling is best-effort; a journal failure never blocks dispatch or
//   reconciliation.
//
// Storage recommendation (Postgres):
// - Table run_events with an INSERT-only policy.
// - Optional: partition by time for retention.

type Event struct {
	ID string `json:"id" db:"id"`

	// Type indicates the business category of the journal record.
	Type EventType `json:"type" db:"type"`

	// RunID groups events belonging to one scheduler run.
	RunID string `json:"run_id,omitempty" db:"run_id"`

	// Target identifiers (optional, depending on the event type).
	RecordID string `json:"record_id,omitempty" db:"record_id"`
	CallID   string `json:"call_id,omitempty" db:"call_id"`

	// Disposition is the outcome attached to completion events.
	Disposition string `json:"disposition,omitempty" db:"disposition"`

	// Message is a short human-readable description for internal ops.
	Message string `json:"message,omitempty" db:"message"`

	// Metadata is optional JSON for full details.
	Metadata string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventTypeRunStarted       EventType = "run_started"
	EventTypeRunFinished      EventType = "run_finished"
	EventTypeCallDispatched   EventType = "call_dispatched"
	EventTypePlacementFailed  EventType = "placement_failed"
	EventTypeCallCompleted    EventType = "call_completed"
	EventTypeReportIgnored    EventType = "report_ignored"
	EventTypeSuppressionAdded EventType = "suppression_added"
)
