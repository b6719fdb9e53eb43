package records

import (
	"context"
	"errors"
	"time"
)

var ErrInvalidRecord = errors.New("records: invalid record")

// Store is the single writer of truth for candidate records.
//
// Concurrency contract: MarkDispatched, MarkPlacementFailed and
// ApplyCompletion are conditional updates (compare-and-set on status /
// provider_call_id). When the guard fails the operation returns false with a
// nil error; losing a race is a scheduling fact, not a failure. The dispatch
// scheduler and the webhook reconciler run concurrently against the same
// store and rely on this for at-most-once effective transitions.
type Store interface {
	Get(ctx context.Context, id string) (CandidateRecord, bool, error)

	// UpsertFromIngestion inserts a new PENDING record or merges mutable
	// fields (phone, names) into an existing one. It never touches
	// attempt_count, status or disposition metadata.
	UpsertFromIngestion(ctx context.Context, rec CandidateRecord) (CandidateRecord, error)

	// FindEligibleForDispatch returns up to limit PENDING records whose
	// next_eligible_at is unset or <= now and whose phone is not suppressed,
	// oldest-eligible first with id as the deterministic tie-break.
	FindEligibleForDispatch(ctx context.Context, now time.Time, limit int) ([]CandidateRecord, error)

	// MarkDispatched transitions PENDING -> IN_PROGRESS, stores the provider
	// call id, increments attempt_count and stamps last_called_at. Returns
	// false if the record is no longer PENDING (double-dispatch guard).
	MarkDispatched(ctx context.Context, id, providerCallID string, now time.Time) (bool, error)

	// MarkPlacementFailed applies a retry decision for a call that never
	// reached the provider. The attempt still counts. Returns false if the
	// record is no longer PENDING.
	MarkPlacementFailed(ctx context.Context, id string, res CompletionResult, now time.Time) (bool, error)

	FindByProviderCallID(ctx context.Context, callID string) (CandidateRecord, bool, error)

	// ApplyCompletion persists a completion report outcome. The update only
	// succeeds while the record is IN_PROGRESS with a matching
	// provider_call_id; stale or duplicate reports return false.
	ApplyCompletion(ctx context.Context, id, callID string, res CompletionResult, now time.Time) (bool, error)

	CountInProgress(ctx context.Context) (int, error)
	CountDispatchedSince(ctx context.Context, since time.Time) (int, error)
	CountsByStatus(ctx context.Context) (map[Disposition]int, error)

	// NextEligibleAfter returns the earliest next_eligible_at strictly after
	// now across PENDING records, if any. Used for idle-wait planning.
	NextEligibleAfter(ctx context.Context, now time.Time) (*time.Time, error)

	ListAll(ctx context.Context) ([]CandidateRecord, error)

	AddSuppression(ctx context.Context, entry SuppressionEntry) error
	IsSuppressed(ctx context.Context, phoneE164 string) (bool, error)
}
