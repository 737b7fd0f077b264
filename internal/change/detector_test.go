package change

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vapi/internal/feed"
	"vapi/internal/storage"
)

func fields(kv ...string) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal)
	for i := 0; i+1 < len(kv); i += 2 {
		out[kv[i]] = decimal.RequireFromString(kv[i+1])
	}
	return out
}

func TestDiffers(t *testing.T) {
	prev := &storage.Snapshot{Fields: fields("buy", "23130.00", "sell", "23250")}

	assert.True(t, Differs(nil, fields("buy", "1")))
	assert.False(t, Differs(prev, fields("buy", "23130.0", "sell", "23250.000")))
	assert.True(t, Differs(prev, fields("buy", "23131", "sell", "23250")))
	assert.True(t, Differs(prev, fields("buy", "23130", "sell", "23250", "extra", "1")))
	assert.True(t, Differs(prev, fields("buy", "23130")))
}

func sequence(start time.Time, step time.Duration) func() time.Time {
	next := start
	return func() time.Time {
		t := next
		next = next.Add(step)
		return t
	}
}

func TestRecordIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore(time.UTC)
	det := NewDetector(store, WithClock(sequence(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC), time.Minute)))
	def, err := feed.DefaultRegistry().Get(feed.ScopeGold, "sjc")
	require.NoError(t, err)

	parse := func(body string) []feed.Candidate {
		c, err := def.ParseCandidates(strings.NewReader(body))
		require.NoError(t, err)
		return c
	}

	res, err := det.Record(ctx, def, parse(`{"buy_1l": 42550000, "sell_1l": 42800000}`))
	require.NoError(t, err)
	assert.True(t, res.Changed())
	assert.Nil(t, res.Outcomes[0].Previous)

	res, err = det.Record(ctx, def, parse(`{"buy_1l": "42550000.00", "sell_1l": 42800000.0}`))
	require.NoError(t, err)
	assert.False(t, res.Changed())
	assert.Empty(t, res.Persisted())
	assert.Equal(t, 1, store.Count("gold:sjc"))

	// dropping a field forces a new snapshot
	res, err = det.Record(ctx, def, parse(`{"buy_1l": 42550000}`))
	require.NoError(t, err)
	assert.True(t, res.Changed())
	assert.Equal(t, 2, store.Count("gold:sjc"))
}

func TestRecordGroupedScenario(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore(time.UTC)
	det := NewDetector(store, WithClock(sequence(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC), time.Minute)))
	def, err := feed.DefaultRegistry().Get(feed.ScopeExchangeRate, "sbv")
	require.NoError(t, err)

	post := func(body string) Result {
		c, err := def.ParseCandidates(strings.NewReader(body))
		require.NoError(t, err)
		res, err := det.Record(ctx, def, c)
		require.NoError(t, err)
		return res
	}

	res := post(`{"post_datas": [{"currency": "USD", "buy": 23100, "sell": 23200}]}`)
	assert.True(t, res.Changed())
	assert.Equal(t, 1, store.Count("exchange_rate:sbv"))

	res = post(`{"post_datas": [{"currency": "USD", "buy": 23100, "sell": 23200}]}`)
	assert.False(t, res.Changed())
	assert.Equal(t, 1, store.Count("exchange_rate:sbv"))

	res = post(`{"post_datas": [
		{"currency": "USD", "buy": 23150, "sell": 23200},
		{"currency": "EUR", "buy": 25000, "sell": 25500}
	]}`)
	assert.True(t, res.Changed())
	require.Len(t, res.Persisted(), 2)
	assert.Equal(t, 3, store.Count("exchange_rate:sbv"))

	res = post(`{"post_datas": [
		{"currency": "USD", "buy": 23150, "sell": 23200},
		{"currency": "EUR", "buy": 25001, "sell": 25500}
	]}`)
	require.Len(t, res.Persisted(), 1)
	assert.Equal(t, "EUR", res.Persisted()[0].Group)
	assert.Equal(t, []string{"USD"}, res.Skipped())

	latest, err := store.LatestPerGroup(ctx, "exchange_rate:sbv", storage.GroupFilter{Group: "USD"})
	require.NoError(t, err)
	require.Len(t, latest, 1)
	assert.Equal(t, "23150", latest[0].Fields["buy"].String())
}

func TestCaptureTimesStayMonotonic(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore(time.UTC)
	frozen := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	det := NewDetector(store, WithClock(func() time.Time { return frozen }))
	def, _ := feed.DefaultRegistry().Get(feed.ScopeGold, "pnj")

	first, err := det.Record(ctx, def, []feed.Candidate{{Fields: fields("buy_hcm", "1")}})
	require.NoError(t, err)
	second, err := det.Record(ctx, def, []feed.Candidate{{Fields: fields("buy_hcm", "2")}})
	require.NoError(t, err)

	assert.True(t, second.Persisted()[0].CapturedAt.After(first.Persisted()[0].CapturedAt))
}

type failingStore struct {
	*storage.MemoryStore
	err error
}

func (f failingStore) Insert(context.Context, storage.Snapshot) error { return f.err }

func TestRecordSurfacesStoreErrors(t *testing.T) {
	boom := errors.New("connection refused")
	det := NewDetector(failingStore{MemoryStore: storage.NewMemoryStore(time.UTC), err: boom})
	def, _ := feed.DefaultRegistry().Get(feed.ScopeGold, "sjc")

	_, err := det.Record(context.Background(), def, []feed.Candidate{{Fields: fields("buy_1l", "1")}})
	require.ErrorIs(t, err, boom)

	_, err = det.Record(context.Background(), def, nil)
	require.ErrorIs(t, err, feed.ErrInvalidCandidate)
}
