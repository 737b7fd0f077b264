// Package window decides between the latest-only and latest-per-day read
// shapes from caller-supplied bounds.
package window

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DefaultSpan is the trailing range used when a per-day read has no bounds.
const DefaultSpan = 30 * 24 * time.Hour

// Window is a resolved read shape. When PerDay is false only the latest
// snapshot (or latest per group) is read.
type Window struct {
	PerDay bool
	From   time.Time
	To     time.Time
}

// Resolve picks the per-day shape when both bounds are non-zero unix seconds
// and from < to. Any other combination silently falls back to latest-only.
func Resolve(dateFrom, dateTo int64) Window {
	if dateFrom != 0 && dateTo != 0 && dateFrom < dateTo {
		return Window{
			PerDay: true,
			From:   time.Unix(dateFrom, 0).UTC(),
			To:     time.Unix(dateTo, 0).UTC(),
		}
	}
	return Window{}
}

// FromQuery reads date_from and date_to. Unparseable values count as zero.
func FromQuery(q url.Values) Window {
	return Resolve(queryInt(q, "date_from"), queryInt(q, "date_to"))
}

// Bounded fills missing per-day bounds with the trailing span ending at now.
func (w Window) Bounded(now time.Time, span time.Duration) Window {
	if !w.PerDay {
		return w
	}
	if span <= 0 {
		span = DefaultSpan
	}
	if w.To.IsZero() {
		w.To = now
	}
	if w.From.IsZero() {
		w.From = w.To.Add(-span)
	}
	return w
}

// Day returns the [start, end) bounds of a YYYY-MM-DD calendar day in loc.
func Day(date string, loc *time.Location) (time.Time, time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	start, err := time.ParseInLocation(time.DateOnly, strings.TrimSpace(date), loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("date must be YYYY-MM-DD: %w", err)
	}
	return start, start.AddDate(0, 0, 1), nil
}

func queryInt(q url.Values, key string) int64 {
	v, err := strconv.ParseInt(strings.TrimSpace(q.Get(key)), 10, 64)
	if err != nil {
		return 0
	}
	return v
}
