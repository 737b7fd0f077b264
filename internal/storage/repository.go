package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const (
	insertSnapshotSQL = `INSERT INTO feed_snapshots (
        feed_key,
        group_key,
        captured_at,
        fields
    ) VALUES (
        $1,$2,$3,$4::jsonb
    );`

	latestSnapshotSQL = `SELECT
        feed_key,
        group_key,
        captured_at,
        fields
    FROM feed_snapshots
    WHERE feed_key = $1
    ORDER BY captured_at DESC, id DESC
    LIMIT 1;`

	latestPerGroupSQL = `SELECT DISTINCT ON (group_key)
        feed_key,
        group_key,
        captured_at,
        fields
    FROM feed_snapshots
    WHERE feed_key = $1
      AND ($2 = '' OR group_key = $2)
      AND ($3::timestamptz IS NULL OR captured_at >= $3)
      AND ($4::timestamptz IS NULL OR captured_at < $4)
    ORDER BY group_key, captured_at DESC, id DESC;`

	latestPerDaySQL = `SELECT DISTINCT ON (day, group_key)
        feed_key,
        group_key,
        captured_at,
        fields
    FROM (
        SELECT *, (captured_at AT TIME ZONE $4)::date AS day
        FROM feed_snapshots
        WHERE feed_key = $1
          AND captured_at >= $2
          AND captured_at < $3
    ) windowed
    ORDER BY day, group_key, captured_at DESC, id DESC;`

	listSnapshotsBetweenSQL = `SELECT
        feed_key,
        group_key,
        captured_at,
        fields
    FROM feed_snapshots
    WHERE feed_key = $1
      AND captured_at >= $2
      AND captured_at < $3
    ORDER BY captured_at, id;`

	listRecentSnapshotsSQL = `SELECT
        feed_key,
        group_key,
        captured_at,
        fields
    FROM feed_snapshots
    WHERE feed_key = $1
    ORDER BY captured_at DESC, id DESC
    LIMIT $2;`

	countSnapshotsSQL = `SELECT COUNT(*) FROM feed_snapshots WHERE feed_key = $1;`

	advisoryLockSQL   = `SELECT pg_advisory_lock(hashtextextended($1, 0));`
	advisoryUnlockSQL = `SELECT pg_advisory_unlock(hashtextextended($1, 0));`
)

// Store persists feed snapshots in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
	loc  *time.Location
}

var (
	_ SnapshotStore = (*Store)(nil)
	_ HistoryReader = (*Store)(nil)
	_ FeedLocker    = (*Store)(nil)
)

// NewStore wires a pgx pool into a Store. Calendar days are computed in loc.
func NewStore(pool *pgxpool.Pool, loc *time.Location) *Store {
	if loc == nil {
		loc = time.UTC
	}
	return &Store{pool: pool, loc: loc}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// LockFeed takes a session advisory lock keyed by the feed on a dedicated
// connection. The connection returns to the pool when the lock is released.
func (s *Store) LockFeed(ctx context.Context, feedKey string) (func(), error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	if _, err := conn.Exec(ctx, advisoryLockSQL, feedKey); err != nil {
		conn.Release()
		return nil, fmt.Errorf("advisory lock %s: %w", feedKey, err)
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if _, err := conn.Exec(ctxUnlock, advisoryUnlockSQL, feedKey); err != nil {
			// a session that still holds the lock must not go back to the pool
			_ = conn.Conn().Close(ctxUnlock)
		}
		conn.Release()
	}
	return unlock, nil
}

// Insert appends a snapshot.
func (s *Store) Insert(ctx context.Context, snap Snapshot) error {
	if err := snap.Validate(); err != nil {
		return err
	}
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	fields, err := json.Marshal(snap.Fields)
	if err != nil {
		return fmt.Errorf("encode snapshot fields: %w", err)
	}
	if _, err := pool.Exec(ctx, insertSnapshotSQL, snap.FeedKey, snap.Group, snap.CapturedAt, string(fields)); err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

// Latest returns the most recent snapshot of the feed.
func (s *Store) Latest(ctx context.Context, feedKey string) (*Snapshot, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, err := pool.Query(ctx, latestSnapshotSQL, feedKey)
	if err != nil {
		return nil, fmt.Errorf("latest snapshot: %w", err)
	}
	snaps, err := collectSnapshots(rows)
	if err != nil {
		return nil, fmt.Errorf("latest snapshot: %w", err)
	}
	if len(snaps) == 0 {
		return nil, nil
	}
	return &snaps[0], nil
}

// LatestPerGroup returns the latest snapshot of each group.
func (s *Store) LatestPerGroup(ctx context.Context, feedKey string, filter GroupFilter) ([]Snapshot, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, err := pool.Query(ctx, latestPerGroupSQL, feedKey, filter.Group, nullableTime(filter.From), nullableTime(filter.To))
	if err != nil {
		return nil, fmt.Errorf("latest per group: %w", err)
	}
	snaps, err := collectSnapshots(rows)
	if err != nil {
		return nil, fmt.Errorf("latest per group: %w", err)
	}
	return snaps, nil
}

// LatestPerDay returns the last snapshot of each calendar day in [from, to).
func (s *Store) LatestPerDay(ctx context.Context, feedKey string, from, to time.Time) ([]Snapshot, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, err := pool.Query(ctx, latestPerDaySQL, feedKey, from, to, s.loc.String())
	if err != nil {
		return nil, fmt.Errorf("latest per day: %w", err)
	}
	snaps, err := collectSnapshots(rows)
	if err != nil {
		return nil, fmt.Errorf("latest per day: %w", err)
	}
	return snaps, nil
}

// ListBetween lists snapshots within a time window.
func (s *Store) ListBetween(ctx context.Context, feedKey string, from, to time.Time) ([]Snapshot, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, err := pool.Query(ctx, listSnapshotsBetweenSQL, feedKey, from, to)
	if err != nil {
		return nil, fmt.Errorf("list snapshots between: %w", err)
	}
	snaps, err := collectSnapshots(rows)
	if err != nil {
		return nil, fmt.Errorf("list snapshots between: %w", err)
	}
	return snaps, nil
}

// ListRecent lists the most recent snapshots, newest first.
func (s *Store) ListRecent(ctx context.Context, feedKey string, limit int) ([]Snapshot, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, err := pool.Query(ctx, listRecentSnapshotsSQL, feedKey, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent snapshots: %w", err)
	}
	snaps, err := collectSnapshots(rows)
	if err != nil {
		return nil, fmt.Errorf("list recent snapshots: %w", err)
	}
	return snaps, nil
}

// countSnapshots counts stored snapshots of a feed.
func (s *Store) countSnapshots(ctx context.Context, feedKey string) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countSnapshotsSQL, feedKey).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count snapshots: %w", scanErr)
	}
	return count, nil
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

func collectSnapshots(rows pgx.Rows) ([]Snapshot, error) {
	defer rows.Close()

	snaps := make([]Snapshot, 0)
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, snap)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return snaps, nil
}

func scanSnapshot(row pgx.Row) (Snapshot, error) {
	var (
		snap   Snapshot
		fields []byte
	)
	if err := row.Scan(&snap.FeedKey, &snap.Group, &snap.CapturedAt, &fields); err != nil {
		return Snapshot{}, err
	}

	// fields hold decimal strings; json numbers are accepted for hand-written rows
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(fields, &raw); err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot fields: %w", err)
	}
	snap.Fields = make(map[string]decimal.Decimal, len(raw))
	for k, v := range raw {
		var d decimal.Decimal
		if err := d.UnmarshalJSON(v); err != nil {
			return Snapshot{}, fmt.Errorf("parse field %s: %w", k, err)
		}
		snap.Fields[k] = d
	}
	return snap, nil
}
