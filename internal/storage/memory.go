package storage

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps feed history in process memory. It backs tests and the
// "memory" snapshot driver.
type MemoryStore struct {
	mu      sync.RWMutex
	history map[string][]Snapshot
	loc     *time.Location

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// NewMemoryStore creates an empty store computing calendar days in loc.
func NewMemoryStore(loc *time.Location) *MemoryStore {
	if loc == nil {
		loc = time.UTC
	}
	return &MemoryStore{
		history: make(map[string][]Snapshot),
		loc:     loc,
		locks:   make(map[string]*sync.Mutex),
	}
}

var (
	_ SnapshotStore = (*MemoryStore)(nil)
	_ HistoryReader = (*MemoryStore)(nil)
	_ FeedLocker    = (*MemoryStore)(nil)
)

// Latest returns the most recent snapshot of the feed.
func (s *MemoryStore) Latest(_ context.Context, feedKey string) (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *Snapshot
	for i := range s.history[feedKey] {
		snap := s.history[feedKey][i]
		if latest == nil || newer(snap, *latest) {
			latest = &snap
		}
	}
	if latest == nil {
		return nil, nil
	}
	out := latest.Clone()
	return &out, nil
}

// LatestPerGroup returns the latest snapshot of each group.
func (s *MemoryStore) LatestPerGroup(_ context.Context, feedKey string, filter GroupFilter) ([]Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return ReduceLatestPerGroup(s.history[feedKey], filter), nil
}

// LatestPerDay returns the last snapshot of each calendar day in [from, to).
func (s *MemoryStore) LatestPerDay(_ context.Context, feedKey string, from, to time.Time) ([]Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return ReduceLatestPerDay(s.history[feedKey], from, to, s.loc), nil
}

// Insert appends a snapshot.
func (s *MemoryStore) Insert(_ context.Context, snap Snapshot) error {
	if err := snap.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history[snap.FeedKey] = append(s.history[snap.FeedKey], snap.Clone())
	return nil
}

// ListBetween returns history in [from, to) ordered by capture time.
func (s *MemoryStore) ListBetween(_ context.Context, feedKey string, from, to time.Time) ([]Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Snapshot, 0)
	for _, snap := range s.history[feedKey] {
		if snap.CapturedAt.Before(from) || !snap.CapturedAt.Before(to) {
			continue
		}
		out = append(out, snap.Clone())
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CapturedAt.Before(out[j].CapturedAt) })
	return out, nil
}

// ListRecent returns up to limit snapshots, newest first.
func (s *MemoryStore) ListRecent(_ context.Context, feedKey string, limit int) ([]Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.history[feedKey]
	out := make([]Snapshot, 0, min(limit, len(history)))
	for i := len(history) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, history[i].Clone())
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CapturedAt.After(out[j].CapturedAt) })
	return out, nil
}

// Count returns the number of snapshots stored for the feed.
func (s *MemoryStore) Count(feedKey string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.history[feedKey])
}

// LockFeed serialises writers of one feed within this process.
func (s *MemoryStore) LockFeed(ctx context.Context, feedKey string) (func(), error) {
	s.locksMu.Lock()
	mu, ok := s.locks[feedKey]
	if !ok {
		mu = &sync.Mutex{}
		s.locks[feedKey] = mu
	}
	s.locksMu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	mu.Lock()
	return mu.Unlock, nil
}
