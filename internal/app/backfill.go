package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"vapi/internal/change"
	"vapi/internal/feed"
	"vapi/internal/legacy"
	"vapi/internal/scheduler"
	"vapi/internal/storage"
)

// BackfillReport summarises the import of one feed.
type BackfillReport struct {
	Feed     string
	Read     int
	Imported int
	Skipped  int
}

// Backfill copies legacy table history into the snapshot store. Rows that do
// not differ from the previous snapshot of their group, or that are not newer
// than what the store already holds, are skipped.
func (a *App) Backfill(ctx context.Context, opts BackfillOptions) ([]BackfillReport, error) {
	if !a.Config.Legacy.Enabled {
		return nil, errors.New("legacy.enabled 未开启，无法回填")
	}
	from, to := opts.From.UTC(), opts.To.UTC()
	if to.IsZero() {
		to = time.Now().UTC()
	}
	if !from.Before(to) {
		return nil, errors.New("回填范围为空，请检查 --from/--to")
	}

	lb, err := a.openLegacy()
	if err != nil {
		return nil, err
	}
	defer lb.close()

	be, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}
	defer be.close()

	if opts.DryRun {
		a.Logger.Warn().Msg("回填 dry-run：不会写入数据库")
	}
	opts.From, opts.To = from, to
	return a.runBackfill(ctx, lb, be.store, opts)
}

func (a *App) runBackfill(ctx context.Context, lb *legacyBackend, dst storage.SnapshotStore, opts BackfillOptions) ([]BackfillReport, error) {
	defs, err := selectBackfillFeeds(lb.defs, opts.Feeds)
	if err != nil {
		return nil, err
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = 1
	}

	reports := make([]BackfillReport, len(defs))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, def := range defs {
		i, def := i, def
		g.Go(func() error {
			report, err := a.backfillFeed(gctx, lb.feeds, dst, def, opts.From, opts.To, opts.DryRun)
			mu.Lock()
			reports[i] = report
			mu.Unlock()
			if err != nil {
				a.Logger.Error().Err(err).Str("feed", def.Key()).Msg("回填失败")
				return fmt.Errorf("backfill %s: %w", def.Key(), err)
			}
			a.Logger.Info().Str("feed", def.Key()).
				Int("read", report.Read).
				Int("imported", report.Imported).
				Int("skipped", report.Skipped).
				Bool("dry_run", opts.DryRun).
				Msg("回填完成")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return reports, err
	}
	return reports, nil
}

// mirrorLegacy returns the scheduled job copying recent legacy rows into dst.
// Each run looks back two intervals so a slow tick loses nothing.
func (a *App) mirrorLegacy(lb *legacyBackend, dst storage.SnapshotStore, interval time.Duration) scheduler.Job {
	return func(ctx context.Context, at time.Time) error {
		_, err := a.runBackfill(ctx, lb, dst, BackfillOptions{
			From:    at.Add(-2 * interval).UTC(),
			To:      time.Now().UTC().Add(time.Second),
			Workers: 1,
		})
		return err
	}
}

// startMirror runs mirrorLegacy in the background. The returned stop cancels
// the loop and waits for an in-flight tick to return.
func (a *App) startMirror(ctx context.Context, lb *legacyBackend, dst storage.SnapshotStore, interval time.Duration) (func(), error) {
	sched, err := scheduler.New(scheduler.Options{Name: "legacy_mirror", Interval: interval, Immediate: true}, a.Logger)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = sched.Run(ctx, a.mirrorLegacy(lb, dst, interval))
	}()
	return func() {
		cancel()
		<-done
	}, nil
}

func selectBackfillFeeds(defs []feed.Definition, keys []string) ([]feed.Definition, error) {
	if len(keys) == 0 {
		return defs, nil
	}
	byKey := make(map[string]feed.Definition, len(defs))
	for _, d := range defs {
		byKey[d.Key()] = d
	}
	out := make([]feed.Definition, 0, len(keys))
	for _, k := range keys {
		d, ok := byKey[k]
		if !ok {
			return nil, fmt.Errorf("%w: %s has no legacy table", feed.ErrUnknownFeed, k)
		}
		out = append(out, d)
	}
	return out, nil
}

func (a *App) backfillFeed(ctx context.Context, src *legacy.FeedStore, dst storage.SnapshotStore, def feed.Definition, from, to time.Time, dryRun bool) (BackfillReport, error) {
	report := BackfillReport{Feed: def.Key()}

	if locker, ok := dst.(storage.FeedLocker); ok && !dryRun {
		unlock, err := locker.LockFeed(ctx, def.Key())
		if err != nil {
			return report, err
		}
		defer unlock()
	}

	previous, err := latestByGroup(ctx, dst, def)
	if err != nil {
		return report, err
	}

	rows, err := src.ListBetween(ctx, def.Key(), from, to)
	if err != nil {
		return report, err
	}
	report.Read = len(rows)

	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		prev := previous[row.Group]
		if prev != nil && !row.CapturedAt.After(prev.CapturedAt) {
			report.Skipped++
			continue
		}
		if !change.Differs(prev, row.Fields) {
			report.Skipped++
			continue
		}
		if !dryRun {
			if err := dst.Insert(ctx, row); err != nil {
				return report, err
			}
		}
		snap := row.Clone()
		previous[row.Group] = &snap
		report.Imported++
	}
	return report, nil
}

func latestByGroup(ctx context.Context, store storage.SnapshotStore, def feed.Definition) (map[string]*storage.Snapshot, error) {
	out := make(map[string]*storage.Snapshot)
	if def.Grouped() {
		snaps, err := store.LatestPerGroup(ctx, def.Key(), storage.GroupFilter{})
		if err != nil {
			return nil, err
		}
		for i := range snaps {
			out[snaps[i].Group] = &snaps[i]
		}
		return out, nil
	}
	snap, err := store.Latest(ctx, def.Key())
	if err != nil {
		return nil, err
	}
	if snap != nil {
		out[""] = snap
	}
	return out, nil
}
