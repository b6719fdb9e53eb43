package reconcile

import (
	"context"
	"errors"
	"time"

	"dialer-platform/internal/records"
	"dialer-platform/internal/retry"
	"dialer-platform/internal/runlog"
	"dialer-platform/internal/telephony"
	"dialer-platform/pkg/logger"
)

// DeliveryFilter is a fast-path duplicate detector for webhook deliveries.
// Seen is consulted before any work; MarkDelivered runs only once the report
// has reached durable state, so a store failure leaves the delivery unmarked
// and the provider's redelivery gets a full retry instead of a duplicate ack.
// The filter is advisory: the store's conditional update is the real
// idempotency guard, so a filter error means "unknown, proceed".
type DeliveryFilter interface {
	Seen(ctx context.Context, callID string) (bool, error)
	MarkDelivered(ctx context.Context, callID string) error
}

// Reconciler folds provider completion reports into record state.
//
// Exactly-once-effective semantics: deliveries are at-least-once and
// unordered, so every path that cannot apply a report ends in an acknowledged
// no-op. Only a genuine store failure propagates an error (the provider will
// redeliver, and the conditional update keeps the retry harmless).
type Reconciler struct {
	store   records.Store
	policy  retry.Policy
	filter  DeliveryFilter  // optional
	journal *runlog.Service // optional
	clock   func() time.Time
}

func New(store records.Store, policy retry.Policy, filter DeliveryFilter, journal *runlog.Service) *Reconciler {
	return &Reconciler{
		store:   store,
		policy:  policy,
		filter:  filter,
		journal: journal,
		clock:   time.Now,
	}
}

var errNoStore = errors.New("reconcile: store not configured")

// Handle applies one completion report. A nil return always means the
// delivery may be acknowledged, including the discard paths.
func (r *Reconciler) Handle(ctx context.Context, report telephony.CompletionReport) error {
	if r.store == nil {
		return errNoStore
	}
	log := logger.From(ctx)
	now := r.clock().UTC()

	if report.ProviderCallID == "" {
		r.ignore(ctx, report.ProviderCallID, "report missing call id")
		return nil
	}

	if r.filter != nil {
		seen, err := r.filter.Seen(ctx, report.ProviderCallID)
		if err != nil {
			log.Warn("delivery filter unavailable, proceeding", "call_id", report.ProviderCallID, "err", err)
		} else if seen {
			r.ignore(ctx, report.ProviderCallID, "duplicate delivery")
			return nil
		}
	}

	rec, found, err := r.lookup(ctx, report)
	if err != nil {
		return err
	}
	if !found {
		log.Warn("completion report for unknown call", "call_id", report.ProviderCallID)
		r.ignore(ctx, report.ProviderCallID, "unknown call id")
		return nil
	}

	// Suppress before applying: suppression is idempotent, so if the apply
	// fails and the provider redelivers, nothing is lost; whereas a crash
	// between apply and suppress must not drop a do-not-call request.
	if report.Outcome == records.DispositionDNC {
		entry := records.SuppressionEntry{
			PhoneE164: rec.PhoneE164,
			Reason:    "requested during call " + report.ProviderCallID,
			CreatedAt: now,
		}
		if err := r.store.AddSuppression(ctx, entry); err != nil {
			return err
		}
		if r.journal != nil {
			if jerr := r.journal.SuppressionAdded(ctx, rec.ID, "dnc requested"); jerr != nil {
				log.Warn("runlog append failed", "err", jerr)
			}
		}
	}

	decision := r.policy.Decide(rec.AttemptCount, report.Outcome, now)
	res := decision.Result(
		report.Summary,
		report.EndedReason,
		report.Transcript,
		report.RecordingURL,
		report.Location,
		report.Availability,
	)

	applied, err := r.store.ApplyCompletion(ctx, rec.ID, report.ProviderCallID, res, now)
	if err != nil {
		return err
	}
	if !applied {
		r.markDelivered(ctx, report.ProviderCallID)
		r.ignore(ctx, report.ProviderCallID, "stale or already-applied report")
		return nil
	}
	r.markDelivered(ctx, report.ProviderCallID)

	log.Info("completion applied",
		"record_id", rec.ID,
		"call_id", report.ProviderCallID,
		"outcome", string(report.Outcome),
		"status", string(res.Status),
		"terminal", decision.Terminal,
	)
	if r.journal != nil {
		if jerr := r.journal.CallCompleted(ctx, rec.ID, report.ProviderCallID, string(report.Outcome)); jerr != nil {
			log.Warn("runlog append failed", "err", jerr)
		}
	}
	return nil
}

// lookup resolves the target record, preferring the call id index and
// falling back to the record id the provider echoes back in call metadata.
// The fallback only counts when the stored call id matches, otherwise the
// report belongs to an older attempt and is stale.
func (r *Reconciler) lookup(ctx context.Context, report telephony.CompletionReport) (records.CandidateRecord, bool, error) {
	rec, found, err := r.store.FindByProviderCallID(ctx, report.ProviderCallID)
	if err != nil || found {
		return rec, found, err
	}
	if report.RecordIDHint == "" {
		return records.CandidateRecord{}, false, nil
	}
	rec, found, err = r.store.Get(ctx, report.RecordIDHint)
	if err != nil || !found {
		return records.CandidateRecord{}, false, err
	}
	if rec.ProviderCallID != report.ProviderCallID {
		return records.CandidateRecord{}, false, nil
	}
	return rec, true, nil
}

// markDelivered is best-effort; a missed marker only costs one extra
// conditional-update no-op on the next delivery.
func (r *Reconciler) markDelivered(ctx context.Context, callID string) {
	if r.filter == nil {
		return
	}
	if err := r.filter.MarkDelivered(ctx, callID); err != nil {
		logger.From(ctx).Warn("delivery marker not set", "call_id", callID, "err", err)
	}
}

func (r *Reconciler) ignore(ctx context.Context, callID, reason string) {
	if r.journal == nil {
		return
	}
	if err := r.journal.ReportIgnored(ctx, callID, reason); err != nil {
		logger.From(ctx).Warn("runlog append failed", "err", err)
	}
}
