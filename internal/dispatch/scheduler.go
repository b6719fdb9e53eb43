package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"dialer-platform/internal/admission"
	"dialer-platform/internal/billing"
	"dialer-platform/internal/records"
	"dialer-platform/internal/retry"
	"dialer-platform/internal/runlog"
	"dialer-platform/internal/telephony"
	"dialer-platform/pkg/logger"

	"golang.org/x/sync/errgroup"
)

// Scheduler drains eligible records into outbound calls without ever
// exceeding the admission caps.
//
// Ordering of effects per record: admission check, provider placement, then
// the conditional MarkDispatched. Losing the MarkDispatched race is a logged
// conflict, never a second call; a store error there aborts the whole pass,
// because a live call the store cannot record would otherwise be re-dialed on
// the next poll. A placement that never reaches the provider consumes the
// attempt via MarkPlacementFailed so a flapping provider cannot spin on one
// record forever.
type Scheduler struct {
	Store  records.Store
	Placer telephony.CallPlacer
	Gate   *admission.Controller
	Window admission.Window
	Policy retry.Policy

	// Optional collaborators.
	Billing *billing.Service
	Journal *runlog.Service
	Lock    *RunLock

	Opts Options

	// Now is injectable for deterministic tests.
	Now func() time.Time
}

// Options bounds the dispatch loop. Zero values pick safe defaults.
type Options struct {
	// Mode is "continuous" or "batch"; informational, recorded in the journal.
	Mode string

	PollInterval     time.Duration
	MaxRuntime       time.Duration
	PlacementTimeout time.Duration

	// Parallelism caps simultaneous in-flight placements within one batch.
	Parallelism int
}

func (o Options) withDefaults() Options {
	out := o
	if out.Mode == "" {
		out.Mode = "continuous"
	}
	if out.PollInterval <= 0 {
		out.PollInterval = time.Minute
	}
	if out.MaxRuntime <= 0 {
		out.MaxRuntime = 12 * time.Hour
	}
	if out.PlacementTimeout <= 0 {
		out.PlacementTimeout = 30 * time.Second
	}
	if out.Parallelism <= 0 {
		out.Parallelism = 5
	}
	return out
}

// BatchStats summarizes one scheduler pass.
type BatchStats struct {
	Headroom   int `json:"headroom"`
	Eligible   int `json:"eligible"`
	Dispatched int `json:"dispatched"`
	Failed     int `json:"failed"`

	// Conflicts counts records another worker won between fetch and mark.
	Conflicts int `json:"conflicts"`

	// SkippedLock is set when another replica holds the run lease.
	SkippedLock bool `json:"skipped_lock,omitempty"`
}

func (s *Scheduler) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// RunBatch performs one dispatch pass: compute headroom, fetch that many
// eligible records, place calls in parallel. Returns an error only for
// store or admission failures; individual placement failures are absorbed
// into the stats.
func (s *Scheduler) RunBatch(ctx context.Context) (BatchStats, error) {
	log := logger.From(ctx)
	opts := s.Opts.withDefaults()
	now := s.now()
	var stats BatchStats

	if s.Lock != nil {
		held, release, err := s.Lock.Acquire(ctx)
		if err != nil {
			log.Warn("run lock unavailable, proceeding unlocked", "err", err)
		} else if !held {
			stats.SkippedLock = true
			return stats, nil
		} else {
			defer release()
		}
	}

	headroom, err := s.Gate.Headroom(ctx, now)
	if err != nil {
		return stats, fmt.Errorf("dispatch: headroom: %w", err)
	}
	stats.Headroom = headroom
	if headroom == 0 {
		return stats, nil
	}

	if s.Billing != nil && s.Billing.Enabled() {
		left, err := s.Billing.RemainingQuota(ctx)
		if err != nil {
			return stats, fmt.Errorf("dispatch: quota: %w", err)
		}
		if left < headroom {
			headroom = left
		}
		if headroom == 0 {
			log.Info("monthly call quota exhausted", "plan", string(s.Billing.PlanName()))
			return stats, nil
		}
	}

	batch, err := s.Store.FindEligibleForDispatch(ctx, now, headroom)
	if err != nil {
		return stats, fmt.Errorf("dispatch: fetch eligible: %w", err)
	}
	stats.Eligible = len(batch)
	if len(batch) == 0 {
		return stats, nil
	}

	runID := ""
	if s.Journal != nil {
		id, jerr := s.Journal.RunStarted(ctx, opts.Mode)
		if jerr != nil {
			log.Warn("runlog append failed", "err", jerr)
		}
		runID = id
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Parallelism)
	for _, rec := range batch {
		rec := rec
		g.Go(func() error {
			return s.placeOne(gctx, rec, runID, opts, &stats, &mu)
		})
	}
	runErr := g.Wait()

	log.Info("dispatch pass complete",
		"headroom", stats.Headroom,
		"eligible", stats.Eligible,
		"dispatched", stats.Dispatched,
		"failed", stats.Failed,
		"conflicts", stats.Conflicts,
	)
	if s.Journal != nil && runID != "" {
		summary := fmt.Sprintf(`{"eligible":%d,"dispatched":%d,"failed":%d,"conflicts":%d}`,
			stats.Eligible, stats.Dispatched, stats.Failed, stats.Conflicts)
		if jerr := s.Journal.RunFinished(ctx, runID, summary); jerr != nil {
			log.Warn("runlog append failed", "err", jerr)
		}
	}
	if runErr != nil {
		return stats, fmt.Errorf("dispatch: %w", runErr)
	}
	return stats, nil
}

func (s *Scheduler) placeOne(ctx context.Context, rec records.CandidateRecord, runID string, opts Options, stats *BatchStats, mu *sync.Mutex) error {
	// A sibling's store failure cancels the group; place nothing more.
	if err := ctx.Err(); err != nil {
		return err
	}
	log := logger.From(ctx)
	now := s.now()

	callCtx, cancel := context.WithTimeout(ctx, opts.PlacementTimeout)
	defer cancel()

	res, err := s.Placer.PlaceCall(callCtx, telephony.PlaceCallRequest{
		RecordID:  rec.ID,
		PhoneE164: rec.PhoneE164,
		FirstName: rec.FirstName,
	})
	if err != nil {
		// The attempt was consumed even though no call went out.
		decision := s.Policy.Decide(rec.AttemptCount+1, records.DispositionFailed, now)
		result := decision.Result("Call placement failed.", err.Error(), "", "", "", "")
		if _, uerr := s.Store.MarkPlacementFailed(ctx, rec.ID, result, now); uerr != nil {
			log.Error("placement failure not recorded", "record_id", rec.ID, "err", uerr)
			return fmt.Errorf("record store: %w", uerr)
		}
		log.Warn("call placement failed", "record_id", rec.ID, "err", err)
		if s.Journal != nil {
			if jerr := s.Journal.PlacementFailed(ctx, runID, rec.ID, err.Error()); jerr != nil {
				log.Warn("runlog append failed", "err", jerr)
			}
		}
		mu.Lock()
		stats.Failed++
		mu.Unlock()
		return nil
	}

	ok, err := s.Store.MarkDispatched(ctx, rec.ID, res.ProviderCallID, now)
	if err != nil {
		// The call is live but unrecorded. Abort the pass: continuing would
		// re-dial this record on the next poll and orphan more calls.
		log.Error("dispatched call not recorded", "record_id", rec.ID, "call_id", res.ProviderCallID, "err", err)
		mu.Lock()
		stats.Failed++
		mu.Unlock()
		return fmt.Errorf("record store: %w", err)
	}
	if !ok {
		// Another worker moved the record first; the extra call's completion
		// report will be acknowledged as unknown.
		log.Warn("record no longer pending after placement", "record_id", rec.ID, "call_id", res.ProviderCallID)
		mu.Lock()
		stats.Conflicts++
		mu.Unlock()
		return nil
	}

	if s.Billing != nil {
		if berr := s.Billing.RecordUsage(ctx, rec.ID, res.ProviderCallID); berr != nil {
			log.Warn("usage not recorded", "record_id", rec.ID, "err", berr)
		}
	}
	log.Info("call dispatched", "record_id", rec.ID, "call_id", res.ProviderCallID, "attempt", rec.AttemptCount+1)
	if s.Journal != nil {
		if jerr := s.Journal.CallDispatched(ctx, runID, rec.ID, res.ProviderCallID); jerr != nil {
			log.Warn("runlog append failed", "err", jerr)
		}
	}
	mu.Lock()
	stats.Dispatched++
	mu.Unlock()
	return nil
}

// RunContinuous polls RunBatch until the context is cancelled, the max
// runtime elapses, or a store failure makes further scheduling unsafe.
// Outside the calling window it sleeps toward the next opening instead of
// burning poll cycles.
func (s *Scheduler) RunContinuous(ctx context.Context) error {
	log := logger.From(ctx)
	opts := s.Opts.withDefaults()
	deadline := s.now().Add(opts.MaxRuntime)

	for {
		now := s.now()
		if !now.Before(deadline) {
			log.Info("dispatch loop reached max runtime")
			return nil
		}

		if !s.Window.Contains(now) {
			wait := s.Window.NextOpen(now).Sub(now)
			if until := deadline.Sub(now); until < wait {
				wait = until
			}
			log.Info("outside calling window, sleeping", "wait", wait.String())
			if err := sleepCtx(ctx, wait); err != nil {
				return nil
			}
			continue
		}

		stats, err := s.RunBatch(ctx)
		if err != nil {
			return err
		}

		wait := opts.PollInterval
		if stats.Eligible == 0 {
			// A retry slot inside the poll interval wakes the loop early. The
			// wait never stretches past the poll interval: records ingested
			// while asleep must be picked up on the next poll.
			if next, nerr := s.Store.NextEligibleAfter(ctx, s.now()); nerr == nil && next != nil {
				if d := next.Sub(s.now()); d > 0 && d < wait {
					wait = d
				}
			}
		}
		if until := deadline.Sub(s.now()); until < wait {
			wait = until
		}
		if err := sleepCtx(ctx, wait); err != nil {
			return nil
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
