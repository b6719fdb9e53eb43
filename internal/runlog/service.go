package runlog

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for run events.
//
// It MUST be append-only.
// No Update/Delete methods are provided.

type Repository interface {
	Append(ctx context.Context, e Event) error
	ListByRun(ctx context.Context, runID string) ([]Event, error)
}

// Service journals scheduler and reconciler activity.
//
// IMPORTANT:
// - Callers treat journaling as best-effort: log the error, keep going.

type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("runlog: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("runlog: repository not configured")
	}
	if e.Type == "" {
		return ErrInvalidEvent
	}

	now := s.clock().UTC()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	return s.repo.Append(ctx, e)
}

// RunStarted opens a run and returns its id for subsequent events.
func (s *Service) RunStarted(ctx context.Context, mode string) (string, error) {
	runID := uuid.NewString()
	err := s.Append(ctx, Event{
		Type:     EventTypeRunStarted,
		RunID:    runID,
		Message:  "dispatch run started",
		Metadata: `{"mode":"` + mode + `"}`,
	})
	return runID, err
}

// RunFinished closes a run with a summary payload.
func (s *Service) RunFinished(ctx context.Context, runID, summaryJSON string) error {
	return s.Append(ctx, Event{
		Type:     EventTypeRunFinished,
		RunID:    runID,
		Message:  "dispatch run finished",
		Metadata: summaryJSON,
	})
}

// CallDispatched records a successful placement.
func (s *Service) CallDispatched(ctx context.Context, runID, recordID, callID string) error {
	return s.Append(ctx, Event{
		Type:     EventTypeCallDispatched,
		RunID:    runID,
		RecordID: recordID,
		CallID:   callID,
		Message:  "call placed",
	})
}

// PlacementFailed records a call that never reached the provider.
func (s *Service) PlacementFailed(ctx context.Context, runID, recordID, reason string) error {
	return s.Append(ctx, Event{
		Type:     EventTypePlacementFailed,
		RunID:    runID,
		RecordID: recordID,
		Message:  reason,
	})
}

// CallCompleted records an applied completion report.
func (s *Service) CallCompleted(ctx context.Context, recordID, callID, disposition string) error {
	return s.Append(ctx, Event{
		Type:        EventTypeCallCompleted,
		RecordID:    recordID,
		CallID:      callID,
		Disposition: disposition,
		Message:     "completion applied",
	})
}

// ReportIgnored records an acknowledged-but-discarded webhook delivery
// (duplicate, stale, or unknown call id).
func (s *Service) ReportIgnored(ctx context.Context, callID, reason string) error {
	return s.Append(ctx, Event{
		Type:    EventTypeReportIgnored,
		CallID:  callID,
		Message: reason,
	})
}

// SuppressionAdded records a phone number entering the do-not-call list.
func (s *Service) SuppressionAdded(ctx context.Context, recordID, reason string) error {
	return s.Append(ctx, Event{
		Type:     EventTypeSuppressionAdded,
		RecordID: recordID,
		Message:  reason,
	})
}
