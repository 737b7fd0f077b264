package storage

import (
	"context"
	"time"
)

// SnapshotStore is the narrow read/write/aggregate surface every feed backend implements.
type SnapshotStore interface {
	// Latest returns the most recent snapshot of the feed, or nil when it has no history.
	Latest(ctx context.Context, feedKey string) (*Snapshot, error)
	// LatestPerGroup returns the latest snapshot of each group, ordered by group.
	LatestPerGroup(ctx context.Context, feedKey string, filter GroupFilter) ([]Snapshot, error)
	// LatestPerDay returns the last snapshot of each calendar day (per group) in [from, to),
	// ordered ascending by day.
	LatestPerDay(ctx context.Context, feedKey string, from, to time.Time) ([]Snapshot, error)
	// Insert appends a snapshot. Identical content is not rejected.
	Insert(ctx context.Context, snap Snapshot) error
}

// HistoryReader lists raw history for operators.
type HistoryReader interface {
	ListBetween(ctx context.Context, feedKey string, from, to time.Time) ([]Snapshot, error)
	ListRecent(ctx context.Context, feedKey string, limit int) ([]Snapshot, error)
}

// FeedLocker serialises writers of one feed. The returned func releases the lock.
type FeedLocker interface {
	LockFeed(ctx context.Context, feedKey string) (unlock func(), err error)
}
