package reconcile

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"dialer-platform/internal/records"
	"dialer-platform/internal/retry"
	"dialer-platform/internal/runlog"
	"dialer-platform/internal/telephony"
)

var t0 = time.Date(2024, time.March, 4, 10, 0, 0, 0, time.UTC)

func seedInProgress(t *testing.T, store *records.MemoryStore, id, phone, callID string) {
	t.Helper()
	ctx := context.Background()
	if _, err := store.UpsertFromIngestion(ctx, records.CandidateRecord{ID: id, PhoneE164: phone, UpdatedAt: t0}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	ok, err := store.MarkDispatched(ctx, id, callID, t0)
	if err != nil || !ok {
		t.Fatalf("seed dispatch: ok=%v err=%v", ok, err)
	}
}

func newReconciler(store records.Store, journal *runlog.Service) *Reconciler {
	r := New(store, retry.DefaultPolicy(), nil, journal)
	r.clock = func() time.Time { return t0.Add(5 * time.Minute) }
	return r
}

func TestHandle_AppliesTerminalOutcome(t *testing.T) {
	store := records.NewMemoryStore()
	seedInProgress(t, store, "rec-1", "+447700900001", "call-1")
	r := newReconciler(store, nil)

	err := r.Handle(context.Background(), telephony.CompletionReport{
		ProviderCallID: "call-1",
		EndedReason:    "customer-ended-call",
		Outcome:        records.DispositionActiveLooking,
		Summary:        "Open to new roles.",
		Location:       "Bristol",
	})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}

	rec, _, _ := store.Get(context.Background(), "rec-1")
	if rec.Status != records.DispositionActiveLooking {
		t.Fatalf("expected ACTIVE_LOOKING, got %s", rec.Status)
	}
	if rec.ShortSummary != "Open to new roles." || rec.ExtractedLocation != "Bristol" {
		t.Fatalf("metadata not persisted: %+v", rec)
	}
}

func TestHandle_RetryableOutcomeSchedulesNextAttempt(t *testing.T) {
	store := records.NewMemoryStore()
	seedInProgress(t, store, "rec-1", "+447700900001", "call-1")
	r := newReconciler(store, nil)

	err := r.Handle(context.Background(), telephony.CompletionReport{
		ProviderCallID: "call-1",
		Outcome:        records.DispositionNoAnswer,
	})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}

	rec, _, _ := store.Get(context.Background(), "rec-1")
	if rec.Status != records.DispositionPending {
		t.Fatalf("first NO_ANSWER should re-queue, got %s", rec.Status)
	}
	if rec.NextEligibleAt == nil {
		t.Fatalf("expected a retry slot")
	}
	wantSlot := t0.Add(5 * time.Minute).Add(60 * time.Minute)
	if !rec.NextEligibleAt.Equal(wantSlot) {
		t.Fatalf("expected slot %v, got %v", wantSlot, *rec.NextEligibleAt)
	}
}

func TestHandle_DuplicateDeliveryIsNoOp(t *testing.T) {
	store := records.NewMemoryStore()
	seedInProgress(t, store, "rec-1", "+447700900001", "call-1")
	journal := runlog.NewService(runlog.NewMemoryRepo())
	r := newReconciler(store, journal)

	report := telephony.CompletionReport{
		ProviderCallID: "call-1",
		Outcome:        records.DispositionNotLooking,
	}
	if err := r.Handle(context.Background(), report); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	if err := r.Handle(context.Background(), report); err != nil {
		t.Fatalf("duplicate delivery must still ack: %v", err)
	}

	rec, _, _ := store.Get(context.Background(), "rec-1")
	if rec.Status != records.DispositionNotLooking || rec.AttemptCount != 1 {
		t.Fatalf("duplicate changed state: %+v", rec)
	}
}

func TestHandle_UnknownCallIDIsAcked(t *testing.T) {
	store := records.NewMemoryStore()
	r := newReconciler(store, nil)

	err := r.Handle(context.Background(), telephony.CompletionReport{
		ProviderCallID: "never-seen",
		Outcome:        records.DispositionFailed,
	})
	if err != nil {
		t.Fatalf("unknown call must be acked: %v", err)
	}
}

func TestHandle_MetadataFallbackRequiresMatchingCallID(t *testing.T) {
	store := records.NewMemoryStore()
	seedInProgress(t, store, "rec-1", "+447700900001", "call-current")
	r := newReconciler(store, nil)

	// A report from an older attempt carries the record hint but a call id
	// the record no longer owns.
	err := r.Handle(context.Background(), telephony.CompletionReport{
		ProviderCallID: "call-old",
		Outcome:        records.DispositionNotLooking,
		RecordIDHint:   "rec-1",
	})
	if err != nil {
		t.Fatalf("stale report must be acked: %v", err)
	}

	rec, _, _ := store.Get(context.Background(), "rec-1")
	if rec.Status != records.DispositionInProgress {
		t.Fatalf("stale report must not transition the record, got %s", rec.Status)
	}
}

func TestHandle_DNCAddsSuppression(t *testing.T) {
	store := records.NewMemoryStore()
	seedInProgress(t, store, "rec-1", "+447700900001", "call-1")
	journal := runlog.NewService(runlog.NewMemoryRepo())
	r := newReconciler(store, journal)

	err := r.Handle(context.Background(), telephony.CompletionReport{
		ProviderCallID: "call-1",
		Outcome:        records.DispositionDNC,
	})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}

	blocked, _ := store.IsSuppressed(context.Background(), "+447700900001")
	if !blocked {
		t.Fatalf("DNC outcome must suppress the phone number")
	}
	rec, _, _ := store.Get(context.Background(), "rec-1")
	if rec.Status != records.DispositionDNC {
		t.Fatalf("expected DNC status, got %s", rec.Status)
	}
}

type memoryFilter struct {
	mu   sync.Mutex
	seen map[string]bool
}

func newMemoryFilter() *memoryFilter {
	return &memoryFilter{seen: map[string]bool{}}
}

func (f *memoryFilter) Seen(ctx context.Context, callID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.seen[callID], nil
}

func (f *memoryFilter) MarkDelivered(ctx context.Context, callID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen[callID] = true
	return nil
}

func TestHandle_FilterShortCircuitsRepeats(t *testing.T) {
	store := records.NewMemoryStore()
	seedInProgress(t, store, "rec-1", "+447700900001", "call-1")
	filter := newMemoryFilter()
	filter.seen["call-1"] = true
	r := New(store, retry.DefaultPolicy(), filter, nil)

	err := r.Handle(context.Background(), telephony.CompletionReport{
		ProviderCallID: "call-1",
		Outcome:        records.DispositionNotLooking,
	})
	if err != nil {
		t.Fatalf("filtered delivery must ack: %v", err)
	}

	rec, _, _ := store.Get(context.Background(), "rec-1")
	if rec.Status != records.DispositionInProgress {
		t.Fatalf("filtered delivery must not touch state, got %s", rec.Status)
	}
}

// flakyStore fails ApplyCompletion a configured number of times before
// delegating to the real store.
type flakyStore struct {
	records.Store
	applyFailures int
}

func (s *flakyStore) ApplyCompletion(ctx context.Context, id, callID string, res records.CompletionResult, now time.Time) (bool, error) {
	if s.applyFailures > 0 {
		s.applyFailures--
		return false, errors.New("store unavailable")
	}
	return s.Store.ApplyCompletion(ctx, id, callID, res, now)
}

func TestHandle_StoreFailureLeavesDeliveryUnmarked(t *testing.T) {
	base := records.NewMemoryStore()
	seedInProgress(t, base, "rec-1", "+447700900001", "call-1")
	store := &flakyStore{Store: base, applyFailures: 1}
	filter := newMemoryFilter()
	r := New(store, retry.DefaultPolicy(), filter, nil)
	r.clock = func() time.Time { return t0.Add(5 * time.Minute) }

	report := telephony.CompletionReport{
		ProviderCallID: "call-1",
		Outcome:        records.DispositionNotLooking,
	}

	// The store is down: the error must surface so the provider redelivers,
	// and the filter must not remember the failed delivery.
	if err := r.Handle(context.Background(), report); err == nil {
		t.Fatalf("expected store failure to propagate")
	}
	if seen, _ := filter.Seen(context.Background(), "call-1"); seen {
		t.Fatalf("failed delivery must not be marked as handled")
	}

	// Redelivery gets a full pass and applies the completion.
	if err := r.Handle(context.Background(), report); err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	rec, _, _ := base.Get(context.Background(), "rec-1")
	if rec.Status != records.DispositionNotLooking {
		t.Fatalf("completion lost after redelivery, status=%s", rec.Status)
	}
	if seen, _ := filter.Seen(context.Background(), "call-1"); !seen {
		t.Fatalf("applied delivery should be marked")
	}
}

func TestHandle_MarksDeliveryOnlyAfterApply(t *testing.T) {
	store := records.NewMemoryStore()
	seedInProgress(t, store, "rec-1", "+447700900001", "call-1")
	filter := newMemoryFilter()
	r := New(store, retry.DefaultPolicy(), filter, nil)
	r.clock = func() time.Time { return t0.Add(5 * time.Minute) }

	report := telephony.CompletionReport{
		ProviderCallID: "call-1",
		Outcome:        records.DispositionActiveLooking,
	}
	if err := r.Handle(context.Background(), report); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if seen, _ := filter.Seen(context.Background(), "call-1"); !seen {
		t.Fatalf("applied delivery should be marked")
	}
	if err := r.Handle(context.Background(), report); err != nil {
		t.Fatalf("duplicate delivery must still ack: %v", err)
	}
}
