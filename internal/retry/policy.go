package retry

import (
	"time"

	"dialer-platform/internal/records"
)

// Policy decides, from an outcome and the attempt history, whether a record
// gets another call. It is a pure function of its inputs so the scheduler and
// the reconciler share one source of transition logic.
//
// Attempt count is the single authority for "tried enough"; the previous
// status never decides retry eligibility on its own.
type Policy struct {
	// MaxAttempts is the total attempt ceiling, first call included.
	MaxAttempts int
	// Delay is how long a retryable record waits before the next attempt.
	Delay time.Duration
}

func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 3, Delay: 60 * time.Minute}
}

// Decision is the computed transition for one finished attempt.
type Decision struct {
	Status         records.Disposition
	NextEligibleAt *time.Time
	Terminal       bool
}

// Decide maps a call outcome to the record's next state. attemptCount is the
// number of attempts already made, including the one that produced outcome.
//
// - NO_ANSWER / BUSY / FAILED retry with a delay until the ceiling, then
//   freeze at the outcome's disposition.
// - ACTIVE_LOOKING / NOT_LOOKING / DNC / WRONG_NUMBER are terminal
//   immediately, whatever the attempt count.
// - CALL_BACK / VOICEMAIL are terminal for scheduling but are not failures;
//   they are recorded as-is and never auto-retried.
// - Anything unrecognized is treated as FAILED under the same arithmetic.
func (p Policy) Decide(attemptCount int, outcome records.Disposition, now time.Time) Decision {
	if !outcome.Valid() || outcome == records.DispositionPending || outcome == records.DispositionInProgress {
		outcome = records.DispositionFailed
	}

	switch outcome {
	case records.DispositionNoAnswer, records.DispositionBusy, records.DispositionFailed:
		if attemptCount < p.MaxAttempts {
			next := now.Add(p.Delay)
			return Decision{Status: records.DispositionPending, NextEligibleAt: &next}
		}
		return Decision{Status: outcome, Terminal: true}
	default:
		// ACTIVE_LOOKING, NOT_LOOKING, DNC, WRONG_NUMBER, CALL_BACK, VOICEMAIL.
		return Decision{Status: outcome, Terminal: true}
	}
}

// Result converts a decision plus report metadata into the store's
// completion payload.
func (d Decision) Result(summary, rawOutcome, transcript, recordingURL, location, availability string) records.CompletionResult {
	return records.CompletionResult{
		Status:                d.Status,
		NextEligibleAt:        d.NextEligibleAt,
		ShortSummary:          summary,
		RawOutcome:            rawOutcome,
		Transcript:            transcript,
		RecordingURL:          recordingURL,
		ExtractedLocation:     location,
		ExtractedAvailability: availability,
	}
}
