package runlog

import (
	"context"
	"testing"
)

func TestService_AppendRequiresType(t *testing.T) {
	svc := NewService(NewMemoryRepo())

	if err := svc.Append(context.Background(), Event{RecordID: "r1"}); err == nil {
		t.Fatalf("expected error for missing type")
	}
}

func TestService_AppendsImmutableEvents(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)

	runID, err := svc.RunStarted(context.Background(), "batch")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if runID == "" {
		t.Fatalf("expected a run id")
	}
	if err := svc.CallDispatched(context.Background(), runID, "rec-1", "call-1"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if err := svc.RunFinished(context.Background(), runID, `{"dispatched":1}`); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	evs := repo.Events()
	if len(evs) != 3 {
		t.Fatalf("expected 3 events, got %d", len(evs))
	}
	for _, e := range evs {
		if e.ID == "" || e.CreatedAt.IsZero() {
			t.Fatalf("event missing id or timestamp: %+v", e)
		}
		if e.RunID != runID {
			t.Fatalf("event not attributed to run: %+v", e)
		}
	}

	byRun, err := repo.ListByRun(context.Background(), runID)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(byRun) != 3 {
		t.Fatalf("expected 3 events for run, got %d", len(byRun))
	}
}

func TestService_CompletionAndIgnoredEvents(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)

	if err := svc.CallCompleted(context.Background(), "rec-1", "call-1", "ACTIVE_LOOKING"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if err := svc.ReportIgnored(context.Background(), "call-2", "duplicate delivery"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	evs := repo.Events()
	if evs[0].Type != EventTypeCallCompleted || evs[0].Disposition != "ACTIVE_LOOKING" {
		t.Fatalf("unexpected completion event: %+v", evs[0])
	}
	if evs[1].Type != EventTypeReportIgnored || evs[1].CallID != "call-2" {
		t.Fatalf("unexpected ignored event: %+v", evs[1])
	}
}
