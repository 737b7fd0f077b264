package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"vapi/internal/alerting"
	"vapi/internal/change"
	"vapi/internal/feed"
	"vapi/internal/metrics"
	"vapi/internal/storage"
	"vapi/internal/window"
)

// Enqueuer accepts notifications for asynchronous delivery.
type Enqueuer interface {
	Enqueue(msg alerting.Message) bool
}

// Options carries the optional collaborators of a Service.
type Options struct {
	Dispatcher  Enqueuer
	Formatter   *alerting.Formatter
	Metrics     *metrics.Metrics
	Now         func() time.Time
	DefaultSpan time.Duration
}

// Service runs the generic read and write pipeline shared by every feed.
type Service struct {
	store     storage.SnapshotStore
	locker    storage.FeedLocker
	detector  *change.Detector
	dispatch  Enqueuer
	formatter *alerting.Formatter
	metrics   *metrics.Metrics
	logger    zerolog.Logger
	now       func() time.Time
	span      time.Duration
}

// WriteResult summarises one write request.
type WriteResult struct {
	Changed   bool
	Persisted []storage.Snapshot
	Skipped   []string
	Queued    int
}

// New constructs the feed service over store. When the store can serialise
// writers of a feed, every write runs under that lock.
func New(store storage.SnapshotStore, opts Options, logger zerolog.Logger) *Service {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	formatter := opts.Formatter
	if formatter == nil {
		formatter = alerting.NewFormatter()
	}

	var locker storage.FeedLocker
	if l, ok := store.(storage.FeedLocker); ok {
		locker = l
	}

	return &Service{
		store:     store,
		locker:    locker,
		detector:  change.NewDetector(store, change.WithClock(now)),
		dispatch:  opts.Dispatcher,
		formatter: formatter,
		metrics:   opts.Metrics,
		logger:    logger.With().Str("component", "service").Logger(),
		now:       now,
		span:      opts.DefaultSpan,
	}
}

// Write compares candidates against the latest snapshots of def, appends the
// changed ones and, when notify is set, queues one notification per appended
// snapshot. Notification failures never fail the write.
func (s *Service) Write(ctx context.Context, def feed.Definition, candidates []feed.Candidate, notify bool) (WriteResult, error) {
	if s.locker != nil {
		unlock, err := s.locker.LockFeed(ctx, def.Key())
		if err != nil {
			s.metrics.ObserveWrite(def.Key(), "error", 0)
			return WriteResult{}, fmt.Errorf("lock feed %s: %w", def.Key(), err)
		}
		defer unlock()
	}

	res, err := s.detector.Record(ctx, def, candidates)
	persisted := res.Persisted()
	if err != nil {
		s.metrics.ObserveWrite(def.Key(), "error", len(persisted))
		s.logger.Error().Err(err).Str("feed", def.Key()).Int("persisted", len(persisted)).Msg("feed write failed")
		return WriteResult{Changed: len(persisted) > 0, Persisted: persisted}, err
	}

	out := WriteResult{
		Changed:   res.Changed(),
		Persisted: persisted,
		Skipped:   res.Skipped(),
	}
	outcome := "skipped"
	if out.Changed {
		outcome = "persisted"
	}
	s.metrics.ObserveWrite(def.Key(), outcome, len(persisted))

	for _, snap := range persisted {
		s.logger.Info().Str("feed", def.Key()).
			Str("group", snap.Group).
			Time("captured_at", snap.CapturedAt).
			Bool("changed", true).
			Msg("snapshot persisted")
	}
	if len(out.Skipped) > 0 {
		s.logger.Debug().Str("feed", def.Key()).Strs("groups", out.Skipped).Msg("unchanged candidates skipped")
	}

	if notify && out.Changed {
		out.Queued = s.enqueue(def, persisted)
	}
	return out, nil
}

func (s *Service) enqueue(def feed.Definition, persisted []storage.Snapshot) int {
	if s.dispatch == nil {
		s.logger.Debug().Str("feed", def.Key()).Msg("notification requested but no channel is configured")
		return 0
	}
	queued := 0
	for _, snap := range persisted {
		if s.dispatch.Enqueue(s.formatter.Format(def, snap)) {
			queued++
		}
	}
	return queued
}

// Read returns the latest view of def: one snapshot per day for per-day
// windows, one per group for grouped feeds, otherwise the single latest row.
func (s *Service) Read(ctx context.Context, def feed.Definition, w window.Window, filter storage.GroupFilter) ([]storage.Snapshot, error) {
	if w.PerDay {
		w = w.Bounded(s.now(), s.span)
		snaps, err := s.store.LatestPerDay(ctx, def.Key(), w.From, w.To)
		if err != nil {
			return nil, fmt.Errorf("read %s per day: %w", def.Key(), err)
		}
		if filter.Group == "" {
			return snaps, nil
		}
		out := make([]storage.Snapshot, 0, len(snaps))
		for _, snap := range snaps {
			if snap.Group == filter.Group {
				out = append(out, snap)
			}
		}
		return out, nil
	}

	if def.Grouped() {
		snaps, err := s.store.LatestPerGroup(ctx, def.Key(), filter)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", def.Key(), err)
		}
		return snaps, nil
	}

	latest, err := s.store.Latest(ctx, def.Key())
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", def.Key(), err)
	}
	if latest == nil {
		return []storage.Snapshot{}, nil
	}
	return []storage.Snapshot{*latest}, nil
}
