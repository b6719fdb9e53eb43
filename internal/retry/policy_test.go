package retry

import (
	"testing"
	"time"

	"dialer-platform/internal/records"
)

func TestDecide_RetryableOutcomes(t *testing.T) {
	p := DefaultPolicy()
	now := time.Unix(1700000000, 0).UTC()

	for _, outcome := range []records.Disposition{
		records.DispositionNoAnswer,
		records.DispositionBusy,
		records.DispositionFailed,
	} {
		d := p.Decide(1, outcome, now)
		if d.Terminal {
			t.Fatalf("%s on attempt 1 should retry", outcome)
		}
		if d.Status != records.DispositionPending {
			t.Fatalf("%s retry should go back to PENDING, got %s", outcome, d.Status)
		}
		if d.NextEligibleAt == nil || !d.NextEligibleAt.Equal(now.Add(60*time.Minute)) {
			t.Fatalf("%s retry should wait 60m, got %v", outcome, d.NextEligibleAt)
		}
	}
}

func TestDecide_RetryCeiling(t *testing.T) {
	p := DefaultPolicy()
	now := time.Unix(1700000000, 0).UTC()

	d := p.Decide(2, records.DispositionNoAnswer, now)
	if d.Terminal {
		t.Fatalf("attempt 2 of 3 should still retry")
	}

	d = p.Decide(3, records.DispositionNoAnswer, now)
	if !d.Terminal {
		t.Fatalf("attempt 3 should freeze")
	}
	if d.Status != records.DispositionNoAnswer {
		t.Fatalf("frozen record keeps the outcome disposition, got %s", d.Status)
	}
	if d.NextEligibleAt != nil {
		t.Fatalf("terminal decision must not schedule a retry")
	}
}

func TestDecide_ImmediatelyTerminal(t *testing.T) {
	p := DefaultPolicy()
	now := time.Unix(1700000000, 0).UTC()

	for _, outcome := range []records.Disposition{
		records.DispositionActiveLooking,
		records.DispositionNotLooking,
		records.DispositionDNC,
		records.DispositionWrongNumber,
	} {
		d := p.Decide(1, outcome, now)
		if !d.Terminal || d.Status != outcome {
			t.Fatalf("%s must be terminal on first attempt, got %+v", outcome, d)
		}
	}
}

func TestDecide_CallBackAndVoicemailNotAutoRetried(t *testing.T) {
	p := DefaultPolicy()
	now := time.Unix(1700000000, 0).UTC()

	for _, outcome := range []records.Disposition{
		records.DispositionCallBack,
		records.DispositionVoicemail,
	} {
		d := p.Decide(1, outcome, now)
		if !d.Terminal {
			t.Fatalf("%s is terminal for scheduling purposes", outcome)
		}
		if d.Status != outcome {
			t.Fatalf("%s is recorded as-is, got %s", outcome, d.Status)
		}
	}
}

func TestDecide_UnknownOutcomeMapsToFailed(t *testing.T) {
	p := DefaultPolicy()
	now := time.Unix(1700000000, 0).UTC()

	d := p.Decide(1, records.Disposition("SOMETHING_NEW"), now)
	if d.Terminal || d.Status != records.DispositionPending {
		t.Fatalf("unknown outcome should follow FAILED retry arithmetic, got %+v", d)
	}

	d = p.Decide(3, records.Disposition("SOMETHING_NEW"), now)
	if !d.Terminal || d.Status != records.DispositionFailed {
		t.Fatalf("unknown outcome at ceiling should freeze as FAILED, got %+v", d)
	}
}
