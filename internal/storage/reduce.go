package storage

import (
	"sort"
	"time"
)

// newer reports whether a supersedes b. Ties on capture time go to the later
// insertion, which callers express through slice order.
func newer(a, b Snapshot) bool {
	return !a.CapturedAt.Before(b.CapturedAt)
}

// ReduceLatestPerGroup keeps the latest snapshot of each group among history,
// which must be in insertion order. The result is ordered by group.
func ReduceLatestPerGroup(history []Snapshot, filter GroupFilter) []Snapshot {
	latest := make(map[string]Snapshot)
	for _, s := range history {
		if !filter.Matches(s) {
			continue
		}
		if cur, ok := latest[s.Group]; !ok || newer(s, cur) {
			latest[s.Group] = s
		}
	}
	out := make([]Snapshot, 0, len(latest))
	for _, s := range latest {
		out = append(out, s.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Group < out[j].Group })
	return out
}

// ReduceLatestPerDay keeps the last snapshot of each (day, group) in [from, to),
// with days taken in loc. The result is ordered by day, then group.
func ReduceLatestPerDay(history []Snapshot, from, to time.Time, loc *time.Location) []Snapshot {
	if loc == nil {
		loc = time.UTC
	}
	type bucket struct{ day, group string }
	latest := make(map[bucket]Snapshot)
	for _, s := range history {
		if s.CapturedAt.Before(from) || !s.CapturedAt.Before(to) {
			continue
		}
		k := bucket{day: s.CapturedAt.In(loc).Format(time.DateOnly), group: s.Group}
		if cur, ok := latest[k]; !ok || newer(s, cur) {
			latest[k] = s
		}
	}
	keys := make([]bucket, 0, len(latest))
	for k := range latest {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].day != keys[j].day {
			return keys[i].day < keys[j].day
		}
		return keys[i].group < keys[j].group
	})
	out := make([]Snapshot, 0, len(keys))
	for _, k := range keys {
		out = append(out, latest[k].Clone())
	}
	return out
}
