// Package feed describes the price feeds the API serves: their storage key,
// field schema, grouping and notification template.
package feed

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Scopes double as credential scopes.
const (
	ScopeGold         = "gold"
	ScopeExchangeRate = "exchange_rate"
	ScopeInterestRate = "interest_rate"
)

// Kind distinguishes single-row feeds from feeds keyed by a sub-group.
type Kind int

const (
	// Single feeds keep one row per observation.
	Single Kind = iota
	// Grouped feeds keep one row per group (currency) per observation.
	Grouped
)

var (
	// ErrUnknownFeed is returned for feed names outside the registry.
	ErrUnknownFeed = errors.New("unknown feed")
	// ErrInvalidCandidate is returned for request bodies that cannot become a snapshot.
	ErrInvalidCandidate = errors.New("invalid candidate")
)

// Part is one labelled value inside a notification line.
type Part struct {
	Label string
	Field string
}

// Line is one body line of a notification. When Label is set the line renders
// as "<Label>: <part> <value> - <part> <value>", otherwise as
// "<part>: <value> - <part>: <value>".
type Line struct {
	Label string
	Parts []Part
}

// Template drives the push-notification rendering of a feed.
type Template struct {
	Title string
	Lines []Line
	// Places is the number of decimals rendered; gold prices are whole dong.
	Places int32
}

// Definition is the static description of one feed.
type Definition struct {
	Scope string
	Name  string
	Kind  Kind
	// GroupField is the document field holding the group key of grouped feeds.
	GroupField string
	Fields     []string
	// Strict rejects candidate fields outside Fields.
	Strict   bool
	Template Template
}

// Key returns the feed key, "<scope>:<name>".
func (d Definition) Key() string {
	return d.Scope + ":" + d.Name
}

// Collection returns the storage collection backing the feed.
func (d Definition) Collection() string {
	return CollectionName(d.Key())
}

// Grouped reports whether the feed is keyed by a sub-group.
func (d Definition) Grouped() bool {
	return d.Kind == Grouped
}

// HasField reports whether name is part of the declared schema.
func (d Definition) HasField(name string) bool {
	for _, f := range d.Fields {
		if f == name {
			return true
		}
	}
	return false
}

// CollectionName maps a feed key to its collection name.
func CollectionName(key string) string {
	return strings.ReplaceAll(key, ":", "_")
}

// ScopeOf returns the scope part of a feed key.
func ScopeOf(key string) string {
	scope, _, _ := strings.Cut(key, ":")
	return scope
}

// Registry is an immutable set of feed definitions.
type Registry struct {
	defs map[string]Definition
}

// NewRegistry builds a registry from defs. Duplicate keys are rejected.
func NewRegistry(defs ...Definition) (*Registry, error) {
	r := &Registry{defs: make(map[string]Definition, len(defs))}
	for _, d := range defs {
		if d.Scope == "" || d.Name == "" {
			return nil, fmt.Errorf("feed definition needs scope and name")
		}
		if d.Kind == Grouped && d.GroupField == "" {
			return nil, fmt.Errorf("grouped feed %s needs a group field", d.Key())
		}
		if _, dup := r.defs[d.Key()]; dup {
			return nil, fmt.Errorf("duplicate feed %s", d.Key())
		}
		r.defs[d.Key()] = d
	}
	return r, nil
}

// Lookup returns the definition for a feed key. Interest-rate feeds are
// resolved dynamically from their bank code.
func (r *Registry) Lookup(key string) (Definition, error) {
	if d, ok := r.defs[key]; ok {
		return d, nil
	}
	scope, name, _ := strings.Cut(key, ":")
	if scope == ScopeInterestRate {
		return InterestRate(name)
	}
	return Definition{}, fmt.Errorf("%w: %s", ErrUnknownFeed, key)
}

// Get returns the definition of scope/name.
func (r *Registry) Get(scope, name string) (Definition, error) {
	return r.Lookup(scope + ":" + name)
}

// Scope lists the static feeds of one scope ordered by name.
func (r *Registry) Scope(scope string) []Definition {
	var out []Definition
	for _, d := range r.defs {
		if d.Scope == scope {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// GroupFields maps each scope to the group field used by its grouped feeds.
func (r *Registry) GroupFields() map[string]string {
	out := map[string]string{ScopeInterestRate: interestGroupField}
	for _, d := range r.defs {
		if d.Grouped() {
			out[d.Scope] = d.GroupField
		}
	}
	return out
}

var bankCodePattern = regexp.MustCompile(`^[a-z0-9_]{2,16}$`)

const interestGroupField = "currency"

// InterestRate returns the dynamic definition of one bank's rate table. Rows
// are keyed by currency and carry the same fields as the exchange rate feeds.
func InterestRate(bankcode string) (Definition, error) {
	if !bankCodePattern.MatchString(bankcode) {
		return Definition{}, fmt.Errorf("%w: interest rate bank code %q", ErrUnknownFeed, bankcode)
	}
	return Definition{
		Scope:      ScopeInterestRate,
		Name:       bankcode,
		Kind:       Grouped,
		GroupField: interestGroupField,
		Fields:     []string{"buy_cash", "buy_transfer", "sell"},
		Template: Template{
			Title:  "vPrice - Lãi suất " + strings.ToUpper(bankcode),
			Lines:  rateLines,
			Places: 2,
		},
	}, nil
}
