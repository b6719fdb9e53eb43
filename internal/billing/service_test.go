package billing

import (
	"context"
	"testing"
	"time"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

var midMonth = time.Date(2024, time.May, 15, 12, 0, 0, 0, time.UTC)

func TestRemainingQuota_CountsCurrentMonthOnly(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo, PlanFree)
	svc.clock = fixedClock(midMonth)

	// Two calls this month, one from April.
	repo.Append(context.Background(), UsageEntry{ID: "1", CallID: "a", CreatedAt: midMonth.Add(-time.Hour)})
	repo.Append(context.Background(), UsageEntry{ID: "2", CallID: "b", CreatedAt: midMonth.Add(-48 * time.Hour)})
	repo.Append(context.Background(), UsageEntry{ID: "3", CallID: "c", CreatedAt: time.Date(2024, time.April, 30, 23, 0, 0, 0, time.UTC)})

	left, err := svc.RemainingQuota(context.Background())
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if left != 48 {
		t.Fatalf("expected 48 remaining on free plan, got %d", left)
	}
}

func TestRemainingQuota_NeverNegative(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo, PlanFree)
	svc.clock = fixedClock(midMonth)

	for i := 0; i < 60; i++ {
		repo.Append(context.Background(), UsageEntry{
			ID:        string(rune('a' + i)),
			CallID:    time.Now().Add(time.Duration(i)).String(),
			CreatedAt: midMonth,
		})
	}

	left, err := svc.RemainingQuota(context.Background())
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if left != 0 {
		t.Fatalf("expected 0, got %d", left)
	}
}

func TestRecordUsage_IdempotentOnCallID(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo, PlanPro)
	svc.clock = fixedClock(midMonth)

	if err := svc.RecordUsage(context.Background(), "rec-1", "call-1"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if err := svc.RecordUsage(context.Background(), "rec-1", "call-1"); err != nil {
		t.Fatalf("retry must be absorbed: %v", err)
	}

	n, _ := repo.CountSince(context.Background(), time.Time{})
	if n != 1 {
		t.Fatalf("expected 1 ledger entry, got %d", n)
	}

	left, err := svc.RemainingQuota(context.Background())
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if left != 499 {
		t.Fatalf("expected 499 remaining on pro plan, got %d", left)
	}
}

func TestService_DisabledWithoutPlan(t *testing.T) {
	svc := NewService(NewMemoryRepo(), "")

	if svc.Enabled() {
		t.Fatalf("empty plan must disable billing")
	}
	if err := svc.RecordUsage(context.Background(), "rec-1", "call-1"); err != nil {
		t.Fatalf("disabled billing records nothing, errors nothing: %v", err)
	}
	if _, err := svc.RemainingQuota(context.Background()); err != ErrNoPlan {
		t.Fatalf("expected ErrNoPlan, got %v", err)
	}
}

func TestPlanQuotas(t *testing.T) {
	if PlanFree.MonthlyQuota() != 50 || PlanPro.MonthlyQuota() != 500 {
		t.Fatalf("plan quotas wrong: free=%d pro=%d", PlanFree.MonthlyQuota(), PlanPro.MonthlyQuota())
	}
	if Plan("enterprise").Valid() {
		t.Fatalf("unknown plan must be invalid")
	}
}
