package feed

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// Candidate is one incoming observation before change detection.
type Candidate struct {
	Group  string
	Fields map[string]decimal.Decimal
}

// FieldNames returns the candidate field names sorted.
func (c Candidate) FieldNames() []string {
	names := make([]string, 0, len(c.Fields))
	for k := range c.Fields {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

type groupedBody struct {
	PostDatas []map[string]any `json:"post_datas"`
}

// ParseCandidates decodes a write request body for the feed. Single feeds take
// a flat object of numeric fields, grouped feeds take {"post_datas": [...]}.
func (d Definition) ParseCandidates(body io.Reader) ([]Candidate, error) {
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	if !d.Grouped() {
		var obj map[string]any
		if err := dec.Decode(&obj); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidCandidate, err)
		}
		c, err := d.candidate(obj)
		if err != nil {
			return nil, err
		}
		return []Candidate{c}, nil
	}

	var gb groupedBody
	if err := dec.Decode(&gb); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCandidate, err)
	}
	if len(gb.PostDatas) == 0 {
		return nil, fmt.Errorf("%w: post_datas is empty", ErrInvalidCandidate)
	}

	out := make([]Candidate, 0, len(gb.PostDatas))
	seen := make(map[string]struct{}, len(gb.PostDatas))
	for i, item := range gb.PostDatas {
		rawGroup, ok := item[d.GroupField]
		if !ok {
			return nil, fmt.Errorf("%w: post_datas[%d] has no %s", ErrInvalidCandidate, i, d.GroupField)
		}
		group, ok := rawGroup.(string)
		if !ok {
			return nil, fmt.Errorf("%w: post_datas[%d].%s must be a string", ErrInvalidCandidate, i, d.GroupField)
		}
		group = d.NormalizeGroup(group)
		if group == "" {
			return nil, fmt.Errorf("%w: post_datas[%d].%s is empty", ErrInvalidCandidate, i, d.GroupField)
		}
		if _, dup := seen[group]; dup {
			return nil, fmt.Errorf("%w: duplicate %s %q", ErrInvalidCandidate, d.GroupField, group)
		}
		seen[group] = struct{}{}

		delete(item, d.GroupField)
		c, err := d.candidate(item)
		if err != nil {
			return nil, err
		}
		c.Group = group
		out = append(out, c)
	}
	return out, nil
}

// NormalizeGroup trims a group key and upper-cases currency codes.
func (d Definition) NormalizeGroup(group string) string {
	group = strings.TrimSpace(group)
	if d.GroupField == "currency" {
		group = strings.ToUpper(group)
	}
	return group
}

func (d Definition) candidate(obj map[string]any) (Candidate, error) {
	if len(obj) == 0 {
		return Candidate{}, fmt.Errorf("%w: no fields", ErrInvalidCandidate)
	}
	fields := make(map[string]decimal.Decimal, len(obj))
	for k, v := range obj {
		if k == "datetime" || k == "_id" {
			return Candidate{}, fmt.Errorf("%w: field %q is reserved", ErrInvalidCandidate, k)
		}
		if d.Strict && !d.HasField(k) {
			return Candidate{}, fmt.Errorf("%w: unknown field %q", ErrInvalidCandidate, k)
		}
		val, err := toDecimal(v)
		if err != nil {
			return Candidate{}, fmt.Errorf("%w: field %q: %v", ErrInvalidCandidate, k, err)
		}
		fields[k] = val
	}
	return Candidate{Fields: fields}, nil
}

func toDecimal(v any) (decimal.Decimal, error) {
	switch t := v.(type) {
	case json.Number:
		return decimal.NewFromString(t.String())
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return decimal.Decimal{}, fmt.Errorf("empty value")
		}
		return decimal.NewFromString(s)
	default:
		return decimal.Decimal{}, fmt.Errorf("expected a number, got %T", v)
	}
}
