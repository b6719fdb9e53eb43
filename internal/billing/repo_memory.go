package billing

import (
	"context"
	"sync"
	"time"
)

// MemoryRepo keeps the usage ledger in memory for tests and DB-less runs.

type MemoryRepo struct {
	mu      sync.Mutex
	entries []UsageEntry
	byCall  map[string]struct{}
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{byCall: map[string]struct{}{}}
}

func (r *MemoryRepo) Append(ctx context.Context, e UsageEntry) (bool, error) {
	if e.CallID == "" {
		return false, ErrInvalidUsage
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.byCall[e.CallID]; dup {
		return false, nil
	}
	r.byCall[e.CallID] = struct{}{}
	r.entries = append(r.entries, e)
	return true, nil
}

func (r *MemoryRepo) CountSince(ctx context.Context, since time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.entries {
		if !e.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}
