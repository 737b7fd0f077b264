// Package change decides whether an incoming observation differs from the
// last persisted snapshot and appends the ones that do.
package change

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"vapi/internal/feed"
	"vapi/internal/storage"
)

// Outcome is the detection result for one candidate (one group of a grouped feed).
type Outcome struct {
	Changed  bool
	Previous *storage.Snapshot
	New      storage.Snapshot
}

// Result aggregates the outcomes of one write request.
type Result struct {
	Outcomes []Outcome
}

// Changed reports whether at least one candidate changed.
func (r Result) Changed() bool {
	for _, o := range r.Outcomes {
		if o.Changed {
			return true
		}
	}
	return false
}

// Persisted returns the snapshots that were appended.
func (r Result) Persisted() []storage.Snapshot {
	var out []storage.Snapshot
	for _, o := range r.Outcomes {
		if o.Changed {
			out = append(out, o.New)
		}
	}
	return out
}

// Skipped returns the groups found unchanged.
func (r Result) Skipped() []string {
	var out []string
	for _, o := range r.Outcomes {
		if !o.Changed {
			out = append(out, o.New.Group)
		}
	}
	return out
}

// Differs compares candidate fields against the previous snapshot by numeric
// value. A missing previous snapshot, a candidate field absent from it, or a
// previous field absent from the candidate all count as a change.
func Differs(previous *storage.Snapshot, fields map[string]decimal.Decimal) bool {
	if previous == nil {
		return true
	}
	for name, value := range fields {
		old, ok := previous.Fields[name]
		if !ok || !old.Equal(value) {
			return true
		}
	}
	for name := range previous.Fields {
		if _, ok := fields[name]; !ok {
			return true
		}
	}
	return false
}

// Detector runs change detection against a snapshot store.
type Detector struct {
	store storage.SnapshotStore
	now   func() time.Time
}

// Option customizes a Detector.
type Option func(*Detector)

// WithClock overrides the capture-time source.
func WithClock(now func() time.Time) Option {
	return func(d *Detector) {
		if now != nil {
			d.now = now
		}
	}
}

// NewDetector returns a detector over store.
func NewDetector(store storage.SnapshotStore, opts ...Option) *Detector {
	d := &Detector{store: store, now: time.Now}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Detect compares every candidate against the latest snapshot of its feed or
// group. Nothing is written.
func (d *Detector) Detect(ctx context.Context, def feed.Definition, candidates []feed.Candidate) ([]Outcome, error) {
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: no candidates", feed.ErrInvalidCandidate)
	}

	previous, err := d.previous(ctx, def)
	if err != nil {
		return nil, err
	}

	now := d.now().UTC().Truncate(time.Millisecond)
	outcomes := make([]Outcome, 0, len(candidates))
	for _, c := range candidates {
		prev := previous[c.Group]
		next := storage.Snapshot{
			FeedKey:    def.Key(),
			Group:      c.Group,
			CapturedAt: stamp(now, prev),
			Fields:     c.Fields,
		}
		outcomes = append(outcomes, Outcome{
			Changed:  Differs(prev, c.Fields),
			Previous: prev,
			New:      next,
		})
	}
	return outcomes, nil
}

// Record detects and appends every changed candidate. Appends stop at the
// first store failure; snapshots appended before it stay.
func (d *Detector) Record(ctx context.Context, def feed.Definition, candidates []feed.Candidate) (Result, error) {
	outcomes, err := d.Detect(ctx, def, candidates)
	if err != nil {
		return Result{}, err
	}
	for i, o := range outcomes {
		if !o.Changed {
			continue
		}
		if err := d.store.Insert(ctx, o.New); err != nil {
			return Result{Outcomes: outcomes[:i]}, fmt.Errorf("insert %s %s: %w", def.Key(), o.New.Group, err)
		}
	}
	return Result{Outcomes: outcomes}, nil
}

func (d *Detector) previous(ctx context.Context, def feed.Definition) (map[string]*storage.Snapshot, error) {
	out := make(map[string]*storage.Snapshot)
	if !def.Grouped() {
		latest, err := d.store.Latest(ctx, def.Key())
		if err != nil {
			return nil, fmt.Errorf("read latest %s: %w", def.Key(), err)
		}
		if latest != nil {
			out[""] = latest
		}
		return out, nil
	}

	latest, err := d.store.LatestPerGroup(ctx, def.Key(), storage.GroupFilter{})
	if err != nil {
		return nil, fmt.Errorf("read latest %s: %w", def.Key(), err)
	}
	for i := range latest {
		out[latest[i].Group] = &latest[i]
	}
	return out, nil
}

// stamp keeps capture times strictly increasing within a feed or group even
// when the clock stalls or steps back.
func stamp(now time.Time, previous *storage.Snapshot) time.Time {
	if previous != nil && !now.After(previous.CapturedAt) {
		return previous.CapturedAt.Add(time.Millisecond)
	}
	return now
}
