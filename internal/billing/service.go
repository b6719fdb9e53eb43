package billing

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for the usage ledger.
//
// It MUST be append-only. Append returns false when an entry for the same
// call id already exists; that is the idempotency guard, not an error.

type Repository interface {
	Append(ctx context.Context, e UsageEntry) (bool, error)
	CountSince(ctx context.Context, since time.Time) (int, error)
}

var (
	ErrInvalidUsage = errors.New("billing: invalid usage entry")
	ErrNoPlan       = errors.New("billing: no plan configured")
)

// Service enforces the plan's monthly call allowance.
//
// Quota is a dispatch-time gate: a call consumes allowance when it is placed,
// whatever its outcome. Months are calendar months in UTC.
type Service struct {
	repo  Repository
	plan  Plan
	clock func() time.Time
}

func NewService(repo Repository, plan Plan) *Service {
	return &Service{repo: repo, plan: plan, clock: time.Now}
}

// Enabled reports whether quota enforcement is on. With no plan configured
// the scheduler skips the billing gate entirely.
func (s *Service) Enabled() bool { return s.plan.Valid() }

func (s *Service) PlanName() Plan { return s.plan }

// RemainingQuota returns how many calls the current month still allows.
// Never negative.
func (s *Service) RemainingQuota(ctx context.Context) (int, error) {
	if !s.Enabled() {
		return 0, ErrNoPlan
	}
	used, err := s.repo.CountSince(ctx, startOfMonth(s.clock().UTC()))
	if err != nil {
		return 0, err
	}
	left := s.plan.MonthlyQuota() - used
	if left < 0 {
		left = 0
	}
	return left, nil
}

// RecordUsage posts one placed call to the ledger. Safe to retry: a repeat
// call id is absorbed by the append-only store.
func (s *Service) RecordUsage(ctx context.Context, recordID, callID string) error {
	if !s.Enabled() {
		return nil
	}
	if recordID == "" || callID == "" {
		return ErrInvalidUsage
	}
	_, err := s.repo.Append(ctx, UsageEntry{
		ID:        uuid.NewString(),
		Plan:      s.plan,
		RecordID:  recordID,
		CallID:    callID,
		CreatedAt: s.clock().UTC(),
	})
	return err
}

func startOfMonth(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
}
