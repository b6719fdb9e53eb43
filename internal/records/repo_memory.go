package records

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store used by tests and single-process runs.
// All conditional-update semantics match the Postgres implementation.

type MemoryStore struct {
	mu         sync.Mutex
	records    map[string]CandidateRecord
	byCallID   map[string]string // provider_call_id -> record id
	suppressed map[string]SuppressionEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records:    map[string]CandidateRecord{},
		byCallID:   map[string]string{},
		suppressed: map[string]SuppressionEntry{},
	}
}

func (s *MemoryStore) Get(ctx context.Context, id string) (CandidateRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	return rec, ok, nil
}

func (s *MemoryStore) UpsertFromIngestion(ctx context.Context, rec CandidateRecord) (CandidateRecord, error) {
	if rec.ID == "" || rec.PhoneE164 == "" {
		return CandidateRecord{}, ErrInvalidRecord
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := rec.UpdatedAt
	if now.IsZero() {
		now = time.Now().UTC()
	}

	existing, ok := s.records[rec.ID]
	if !ok {
		fresh := CandidateRecord{
			ID:        rec.ID,
			FirstName: rec.FirstName,
			LastName:  rec.LastName,
			PhoneE164: rec.PhoneE164,
			Status:    DispositionPending,
			CreatedAt: now,
			UpdatedAt: now,
		}
		s.records[rec.ID] = fresh
		return fresh, nil
	}

	// Merge: only identity-neutral, non-terminal-protected fields.
	existing.PhoneE164 = rec.PhoneE164
	if rec.FirstName != "" {
		existing.FirstName = rec.FirstName
	}
	if rec.LastName != "" {
		existing.LastName = rec.LastName
	}
	existing.UpdatedAt = now
	s.records[rec.ID] = existing
	return existing, nil
}

func (s *MemoryStore) FindEligibleForDispatch(ctx context.Context, now time.Time, limit int) ([]CandidateRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	eligible := make([]CandidateRecord, 0)
	for _, rec := range s.records {
		if rec.Status != DispositionPending {
			continue
		}
		if rec.NextEligibleAt != nil && rec.NextEligibleAt.After(now) {
			continue
		}
		if _, blocked := s.suppressed[rec.PhoneE164]; blocked {
			continue
		}
		eligible = append(eligible, rec)
	}

	sort.Slice(eligible, func(i, j int) bool {
		ki, kj := eligibleKey(eligible[i]), eligibleKey(eligible[j])
		if !ki.Equal(kj) {
			return ki.Before(kj)
		}
		return eligible[i].ID < eligible[j].ID
	})

	if limit > 0 && len(eligible) > limit {
		eligible = eligible[:limit]
	}
	return eligible, nil
}

func eligibleKey(rec CandidateRecord) time.Time {
	if rec.NextEligibleAt != nil {
		return *rec.NextEligibleAt
	}
	return rec.CreatedAt
}

func (s *MemoryStore) MarkDispatched(ctx context.Context, id, providerCallID string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok || rec.Status != DispositionPending {
		return false, nil
	}

	rec.Status = DispositionInProgress
	rec.ProviderCallID = providerCallID
	rec.AttemptCount++
	called := now
	rec.LastCalledAt = &called
	rec.NextEligibleAt = nil
	rec.UpdatedAt = now
	s.records[id] = rec
	s.byCallID[providerCallID] = id
	return true, nil
}

func (s *MemoryStore) MarkPlacementFailed(ctx context.Context, id string, res CompletionResult, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok || rec.Status != DispositionPending {
		return false, nil
	}

	rec.AttemptCount++
	called := now
	rec.LastCalledAt = &called
	applyResult(&rec, res, now)
	s.records[id] = rec
	return true, nil
}

func (s *MemoryStore) FindByProviderCallID(ctx context.Context, callID string) (CandidateRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byCallID[callID]
	if !ok {
		return CandidateRecord{}, false, nil
	}
	rec, ok := s.records[id]
	return rec, ok, nil
}

func (s *MemoryStore) ApplyCompletion(ctx context.Context, id, callID string, res CompletionResult, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return false, nil
	}
	// CAS guard: only one delivery per attempt takes effect.
	if rec.Status != DispositionInProgress || rec.ProviderCallID != callID {
		return false, nil
	}

	applyResult(&rec, res, now)
	s.records[id] = rec
	return true, nil
}

func applyResult(rec *CandidateRecord, res CompletionResult, now time.Time) {
	rec.Status = res.Status
	rec.NextEligibleAt = res.NextEligibleAt
	rec.ShortSummary = res.ShortSummary
	rec.RawOutcome = res.RawOutcome
	rec.Transcript = res.Transcript
	rec.RecordingURL = res.RecordingURL
	rec.ExtractedLocation = res.ExtractedLocation
	rec.ExtractedAvailability = res.ExtractedAvailability
	rec.UpdatedAt = now
}

func (s *MemoryStore) CountInProgress(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, rec := range s.records {
		if rec.Status == DispositionInProgress {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) CountDispatchedSince(ctx context.Context, since time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, rec := range s.records {
		if rec.LastCalledAt != nil && !rec.LastCalledAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) CountsByStatus(ctx context.Context) (map[Disposition]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[Disposition]int{}
	for _, rec := range s.records {
		out[rec.Status]++
	}
	return out, nil
}

func (s *MemoryStore) NextEligibleAfter(ctx context.Context, now time.Time) (*time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var next *time.Time
	for _, rec := range s.records {
		if rec.Status != DispositionPending || rec.NextEligibleAt == nil {
			continue
		}
		if !rec.NextEligibleAt.After(now) {
			continue
		}
		if next == nil || rec.NextEligibleAt.Before(*next) {
			t := *rec.NextEligibleAt
			next = &t
		}
	}
	return next, nil
}

func (s *MemoryStore) ListAll(ctx context.Context) ([]CandidateRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]CandidateRecord, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *MemoryStore) AddSuppression(ctx context.Context, entry SuppressionEntry) error {
	if entry.PhoneE164 == "" {
		return ErrInvalidRecord
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.suppressed[entry.PhoneE164]; ok {
		return nil
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.suppressed[entry.PhoneE164] = entry
	return nil
}

func (s *MemoryStore) IsSuppressed(ctx context.Context, phoneE164 string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.suppressed[phoneE164]
	return ok, nil
}
