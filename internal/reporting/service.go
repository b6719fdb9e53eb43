package reporting

import (
	"context"
	"errors"
	"time"

	"dialer-platform/internal/admission"
	"dialer-platform/internal/billing"
	"dialer-platform/internal/records"
)

// Service answers read-only campaign status queries. It never mutates
// anything; all numbers are derived from the record store and the admission
// controller at call time.

type Service struct {
	store   records.Store
	gate    *admission.Controller
	window  admission.Window
	billing *billing.Service // optional
	clock   func() time.Time
}

func NewService(store records.Store, gate *admission.Controller, window admission.Window, billing *billing.Service) *Service {
	return &Service{
		store:   store,
		gate:    gate,
		window:  window,
		billing: billing,
		clock:   time.Now,
	}
}

func (s *Service) CampaignSummary(ctx context.Context) (CampaignSummary, error) {
	if s.store == nil {
		return CampaignSummary{}, errors.New("reporting: store not configured")
	}
	now := s.clock().UTC()

	counts, err := s.store.CountsByStatus(ctx)
	if err != nil {
		return CampaignSummary{}, err
	}

	out := CampaignSummary{
		GeneratedAt:  now,
		StatusCounts: map[string]int{},
		WindowOpen:   s.window.Contains(now),
	}
	for status, n := range counts {
		out.StatusCounts[string(status)] = n
		out.TotalRecords += n
		switch {
		case status == records.DispositionPending:
			out.Pending += n
		case status == records.DispositionInProgress:
			out.InProgress += n
		default:
			out.Terminal += n
		}
	}

	all, err := s.store.ListAll(ctx)
	if err != nil {
		return CampaignSummary{}, err
	}
	for _, rec := range all {
		out.TotalAttempts += rec.AttemptCount
	}

	if s.gate != nil {
		headroom, err := s.gate.Headroom(ctx, now)
		if err != nil {
			return CampaignSummary{}, err
		}
		out.Headroom = headroom
	}

	next, err := s.store.NextEligibleAfter(ctx, now)
	if err != nil {
		return CampaignSummary{}, err
	}
	out.NextEligibleAt = next

	if s.billing != nil && s.billing.Enabled() {
		left, err := s.billing.RemainingQuota(ctx)
		if err != nil {
			return CampaignSummary{}, err
		}
		out.QuotaRemaining = &left
	}
	return out, nil
}

func (s *Service) Outcomes(ctx context.Context) (OutcomeMetrics, error) {
	if s.store == nil {
		return OutcomeMetrics{}, errors.New("reporting: store not configured")
	}

	all, err := s.store.ListAll(ctx)
	if err != nil {
		return OutcomeMetrics{}, err
	}

	var out OutcomeMetrics
	for _, rec := range all {
		if rec.AttemptCount > 0 {
			out.Attempted++
		}
		switch rec.Status {
		case records.DispositionActiveLooking:
			out.ActiveLooking++
			out.Reached++
		case records.DispositionNotLooking:
			out.NotLooking++
			out.Reached++
		case records.DispositionCallBack, records.DispositionDNC, records.DispositionWrongNumber:
			out.Reached++
		}
	}
	if out.Attempted > 0 {
		out.ReachRate = float64(out.Reached) / float64(out.Attempted)
		out.InterestRate = float64(out.ActiveLooking) / float64(out.Attempted)
	}
	return out, nil
}
