package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vapi/internal/alerting"
	"vapi/internal/feed"
	"vapi/internal/metrics"
	"vapi/internal/storage"
	"vapi/internal/window"
)

type queue struct {
	mu  sync.Mutex
	got []alerting.Message
}

func (q *queue) Enqueue(msg alerting.Message) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.got = append(q.got, msg)
	return true
}

func ticking(start time.Time) func() time.Time {
	var mu sync.Mutex
	next := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t := next
		next = next.Add(time.Minute)
		return t
	}
}

func candidates(t *testing.T, def feed.Definition, body string) []feed.Candidate {
	t.Helper()
	c, err := def.ParseCandidates(strings.NewReader(body))
	require.NoError(t, err)
	return c
}

func fields(kv ...any) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		switch v := kv[i+1].(type) {
		case int:
			out[kv[i].(string)] = decimal.NewFromInt(int64(v))
		case int64:
			out[kv[i].(string)] = decimal.NewFromInt(v)
		}
	}
	return out
}

func TestWriteNotifiesOnlyOnChange(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore(time.UTC)
	q := &queue{}
	m := metrics.New("test")
	svc := New(store, Options{Dispatcher: q, Metrics: m, Now: ticking(time.Date(2024, 3, 1, 2, 0, 0, 0, time.UTC))}, zerolog.Nop())
	def, _ := feed.DefaultRegistry().Get(feed.ScopeExchangeRate, "sbv")

	body := `{"post_datas": [{"currency": "USD", "buy": 23100, "sell": 23200}]}`
	res, err := svc.Write(ctx, def, candidates(t, def, body), true)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, 1, res.Queued)

	res, err = svc.Write(ctx, def, candidates(t, def, body), true)
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.Equal(t, []string{"USD"}, res.Skipped)

	res, err = svc.Write(ctx, def, candidates(t, def, `{"post_datas": [{"currency": "USD", "buy": 23150, "sell": 23200}]}`), false)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Zero(t, res.Queued)

	require.Len(t, q.got, 1)
	assert.Equal(t, "exchange_rate.sbv.USD", q.got[0].Topic)
	assert.Equal(t, 2, store.Count(def.Key()))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.FeedWrites.WithLabelValues(def.Key(), "persisted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FeedWrites.WithLabelValues(def.Key(), "skipped")))
}

func TestConcurrentIdenticalWritesAppendOnce(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore(time.UTC)
	svc := New(store, Options{}, zerolog.Nop())
	def, _ := feed.DefaultRegistry().Get(feed.ScopeGold, "sjc")

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := []feed.Candidate{{Fields: fields("buy_1l", 1, "sell_1l", 2)}}
			if _, err := svc.Write(ctx, def, c, false); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, store.Count(def.Key()))
}

func TestReadShapes(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore(time.UTC)
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	svc := New(store, Options{Now: func() time.Time { return now }, DefaultSpan: 30 * 24 * time.Hour}, zerolog.Nop())
	reg := feed.DefaultRegistry()
	sjc, _ := reg.Get(feed.ScopeGold, "sjc")
	vcb, _ := reg.Get(feed.ScopeExchangeRate, "vcb")

	empty, err := svc.Read(ctx, sjc, window.Window{}, storage.GroupFilter{})
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	for day := 1; day <= 3; day++ {
		at := time.Date(2024, 3, day, 8, 0, 0, 0, time.UTC)
		for _, s := range []storage.Snapshot{
			{FeedKey: sjc.Key(), CapturedAt: at, Fields: fields("buy_1l", int64(day))},
			{FeedKey: vcb.Key(), Group: "USD", CapturedAt: at, Fields: fields("sell", 1)},
			{FeedKey: vcb.Key(), Group: "EUR", CapturedAt: at, Fields: fields("sell", 2)},
		} {
			require.NoError(t, store.Insert(ctx, s))
		}
	}

	latest, err := svc.Read(ctx, sjc, window.Window{}, storage.GroupFilter{})
	require.NoError(t, err)
	require.Len(t, latest, 1)
	assert.Equal(t, 3, latest[0].CapturedAt.Day())

	days, err := svc.Read(ctx, sjc, window.Window{PerDay: true}, storage.GroupFilter{})
	require.NoError(t, err)
	assert.Len(t, days, 3)

	groups, err := svc.Read(ctx, vcb, window.Window{}, storage.GroupFilter{})
	require.NoError(t, err)
	assert.Len(t, groups, 2)

	usdDays, err := svc.Read(ctx, vcb, window.Resolve(now.AddDate(0, 0, -30).Unix(), now.Unix()), storage.GroupFilter{Group: "USD"})
	require.NoError(t, err)
	assert.Len(t, usdDays, 3)
}
