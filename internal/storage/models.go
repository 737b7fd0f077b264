package storage

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Snapshot is one persisted observation of a feed. Group holds the currency of
// grouped feeds and is empty otherwise.
type Snapshot struct {
	FeedKey    string
	Group      string
	CapturedAt time.Time
	Fields     map[string]decimal.Decimal
}

// Clone returns a deep copy of the snapshot.
func (s Snapshot) Clone() Snapshot {
	out := s
	out.Fields = make(map[string]decimal.Decimal, len(s.Fields))
	for k, v := range s.Fields {
		out.Fields[k] = v
	}
	return out
}

// FieldNames returns the snapshot field names sorted.
func (s Snapshot) FieldNames() []string {
	names := make([]string, 0, len(s.Fields))
	for k := range s.Fields {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Validate checks the snapshot can be appended.
func (s Snapshot) Validate() error {
	if s.FeedKey == "" {
		return fmt.Errorf("%w: snapshot feed key is empty", ErrInvalidInput)
	}
	if s.CapturedAt.IsZero() {
		return fmt.Errorf("%w: snapshot %s has no capture time", ErrInvalidInput, s.FeedKey)
	}
	if len(s.Fields) == 0 {
		return fmt.Errorf("%w: snapshot %s has no fields", ErrInvalidInput, s.FeedKey)
	}
	return nil
}

// GroupFilter narrows a latest-per-group read. Zero values disable a filter.
type GroupFilter struct {
	Group string
	From  time.Time
	To    time.Time
}

// Matches reports whether the snapshot passes the filter.
func (f GroupFilter) Matches(s Snapshot) bool {
	if f.Group != "" && s.Group != f.Group {
		return false
	}
	if !f.From.IsZero() && s.CapturedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !s.CapturedAt.Before(f.To) {
		return false
	}
	return true
}
