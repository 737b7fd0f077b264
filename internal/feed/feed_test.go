package feed

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRegistry(t *testing.T) {
	r := DefaultRegistry()

	sjc, err := r.Get(ScopeGold, "sjc")
	require.NoError(t, err)
	assert.Equal(t, "gold:sjc", sjc.Key())
	assert.Equal(t, "gold_sjc", sjc.Collection())
	assert.False(t, sjc.Grouped())

	vcb, err := r.Lookup("exchange_rate:vcb")
	require.NoError(t, err)
	assert.True(t, vcb.Grouped())
	assert.Equal(t, "currency", vcb.GroupField)

	_, err = r.Lookup("gold:unknown")
	require.ErrorIs(t, err, ErrUnknownFeed)

	names := []string{}
	for _, d := range r.Scope(ScopeExchangeRate) {
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{"bid", "ctg", "sbv", "stb", "tcb", "vcb"}, names)
}

func TestInterestRateLookup(t *testing.T) {
	r := DefaultRegistry()

	d, err := r.Lookup("interest_rate:vcb")
	require.NoError(t, err)
	assert.Equal(t, "interest_rate_vcb", d.Collection())
	assert.Equal(t, "currency", d.GroupField)
	assert.Equal(t, []string{"buy_cash", "buy_transfer", "sell"}, d.Fields)
	assert.Equal(t, "currency", r.GroupFields()[ScopeInterestRate])

	for _, bad := range []string{"", "a", "VCB", "vcb;drop", "x.y", strings.Repeat("a", 17)} {
		_, err := InterestRate(bad)
		assert.ErrorIs(t, err, ErrUnknownFeed, "bank code %q", bad)
	}
}

func TestNewRegistryRejectsDuplicates(t *testing.T) {
	defs := Builtin()
	_, err := NewRegistry(append(defs, defs[0])...)
	require.Error(t, err)

	_, err = NewRegistry(Definition{Scope: "x", Name: "y", Kind: Grouped})
	require.Error(t, err)
}

func TestParseSingleCandidate(t *testing.T) {
	d, _ := DefaultRegistry().Get(ScopeGold, "sjc")

	cands, err := d.ParseCandidates(strings.NewReader(`{"buy_1l": 42550000, "sell_1l": "42800000.50"}`))
	require.NoError(t, err)
	require.Len(t, cands, 1)
	assert.Empty(t, cands[0].Group)
	assert.True(t, cands[0].Fields["buy_1l"].Equal(decimal.NewFromInt(42550000)))
	assert.Equal(t, "42800000.5", cands[0].Fields["sell_1l"].String())
	assert.Equal(t, []string{"buy_1l", "sell_1l"}, cands[0].FieldNames())
}

func TestParseSingleCandidateRejects(t *testing.T) {
	d, _ := DefaultRegistry().Get(ScopeGold, "sjc")

	for _, body := range []string{
		``,
		`[]`,
		`{}`,
		`{"buy_1l": true}`,
		`{"buy_1l": "abc"}`,
		`{"buy_1l": null}`,
		`{"datetime": 1}`,
	} {
		_, err := d.ParseCandidates(strings.NewReader(body))
		assert.ErrorIs(t, err, ErrInvalidCandidate, "body %q", body)
	}
}

func TestParseStrictCandidate(t *testing.T) {
	d, _ := DefaultRegistry().Get(ScopeGold, "sjc")
	d.Strict = true

	_, err := d.ParseCandidates(strings.NewReader(`{"buy_1l": 1, "colour": 2}`))
	require.ErrorIs(t, err, ErrInvalidCandidate)
}

func TestParseGroupedCandidates(t *testing.T) {
	d, _ := DefaultRegistry().Get(ScopeExchangeRate, "vcb")

	body := `{"post_datas": [
		{"currency": " usd ", "buy_cash": 23130.00, "buy_transfer": 23160, "sell": 23250},
		{"currency": "EUR", "buy_cash": 25416.27, "buy_transfer": 25492.75, "sell": 26258.39}
	]}`
	cands, err := d.ParseCandidates(strings.NewReader(body))
	require.NoError(t, err)
	require.Len(t, cands, 2)
	assert.Equal(t, "USD", cands[0].Group)
	assert.NotContains(t, cands[0].Fields, "currency")
	assert.True(t, cands[0].Fields["buy_cash"].Equal(decimal.NewFromInt(23130)))
	assert.Equal(t, "EUR", cands[1].Group)
}

func TestParseGroupedCandidatesRejects(t *testing.T) {
	d, _ := DefaultRegistry().Get(ScopeExchangeRate, "vcb")

	for _, body := range []string{
		`{}`,
		`{"post_datas": []}`,
		`{"post_datas": [{"buy_cash": 1}]}`,
		`{"post_datas": [{"currency": 5, "buy_cash": 1}]}`,
		`{"post_datas": [{"currency": "  ", "buy_cash": 1}]}`,
		`{"post_datas": [{"currency": "USD"}]}`,
		`{"post_datas": [{"currency": "USD", "sell": 1}, {"currency": "usd", "sell": 2}]}`,
	} {
		_, err := d.ParseCandidates(strings.NewReader(body))
		assert.ErrorIs(t, err, ErrInvalidCandidate, "body %q", body)
	}
}

func TestInterestRateGroupsByCurrency(t *testing.T) {
	d, err := InterestRate("vcb")
	require.NoError(t, err)

	cands, err := d.ParseCandidates(strings.NewReader(`{"post_datas": [{"currency": " usd ", "buy_cash": 4.1, "buy_transfer": 4.2, "sell": 4.5}]}`))
	require.NoError(t, err)
	require.Len(t, cands, 1)
	assert.Equal(t, "USD", cands[0].Group)

	_, err = d.ParseCandidates(strings.NewReader(`{"post_datas": [{"period": "1 tháng", "rate": 4.10}]}`))
	assert.ErrorIs(t, err, ErrInvalidCandidate)
}
