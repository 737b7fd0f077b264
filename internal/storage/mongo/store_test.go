package mongo

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcmongo "github.com/testcontainers/testcontainers-go/modules/mongodb"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"vapi/internal/config"
	"vapi/internal/storage"
)

func TestLatestPipelineShape(t *testing.T) {
	p := LatestPipeline()
	require.Len(t, p, 2)
	assert.Equal(t, "$sort", p[0][0].Key)
	assert.Equal(t, newestFirst, p[0][0].Value)
	assert.Equal(t, bson.E{Key: "$limit", Value: 1}, p[1][0])
}

func TestLatestPerGroupPipelineFilters(t *testing.T) {
	from := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	p := LatestPerGroupPipeline("currency", storage.GroupFilter{Group: "USD", From: from, To: from.AddDate(0, 0, 1)})
	require.Len(t, p, 5)
	assert.Equal(t, "$match", p[0][0].Key)
	match := p[0][0].Value.(bson.D)
	assert.Equal(t, bson.E{Key: "currency", Value: "USD"}, match[0])
	assert.Equal(t, "$group", p[2][0].Key)

	unfiltered := LatestPerGroupPipeline("currency", storage.GroupFilter{})
	require.Len(t, unfiltered, 4)
	assert.Equal(t, "$sort", unfiltered[0][0].Key)
}

func TestLatestPerDayPipelineGroupsByLocalDay(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Ho_Chi_Minh")
	require.NoError(t, err)
	from := time.Date(2024, 3, 1, 0, 0, 0, 0, loc)

	p := LatestPerDayPipeline("", from, from.AddDate(0, 0, 30), loc)
	require.Len(t, p, 5)
	group := p[2][0].Value.(bson.D)
	key := group[0].Value.(bson.D)
	require.Len(t, key, 1)
	dateToString := key[0].Value.(bson.D)[0].Value.(bson.D)
	assert.Contains(t, dateToString, bson.E{Key: "timezone", Value: "Asia/Ho_Chi_Minh"})
	assert.Equal(t, bson.D{{Key: "$last", Value: "$$ROOT"}}, group[1].Value)

	grouped := LatestPerDayPipeline("currency", from, from.AddDate(0, 0, 30), loc)
	gkey := grouped[2][0].Value.(bson.D)[0].Value.(bson.D)
	assert.Len(t, gkey, 2)
}

func TestEncodeDecodeKeepsDecimals(t *testing.T) {
	at := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	snap := storage.Snapshot{
		FeedKey:    "exchange_rate:vcb",
		Group:      "EUR",
		CapturedAt: at,
		Fields: map[string]decimal.Decimal{
			"buy_cash": decimal.RequireFromString("25416.27"),
			"sell":     decimal.RequireFromString("0.1"),
		},
	}
	doc, err := encodeSnapshot("currency", snap)
	require.NoError(t, err)

	m := bson.M{"_id": primitive.NewObjectID()}
	for _, e := range doc {
		m[e.Key] = e.Value
	}
	m["datetime"] = primitive.NewDateTimeFromTime(at)

	got, err := decodeSnapshot("exchange_rate:vcb", "currency", m)
	require.NoError(t, err)
	assert.Equal(t, "EUR", got.Group)
	assert.True(t, got.CapturedAt.Equal(at))
	assert.Equal(t, "25416.27", got.Fields["buy_cash"].String())
	assert.Equal(t, "0.1", got.Fields["sell"].String())
}

func TestDecodeLegacyNumbers(t *testing.T) {
	at := primitive.NewDateTimeFromTime(time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC))
	got, err := decodeSnapshot("gold:sjc", "", bson.M{
		"datetime": at,
		"buy_1l":   int64(42550000),
		"sell_1l":  42800000.5,
		"note":     "ignored",
	})
	require.NoError(t, err)
	assert.Equal(t, "42550000", got.Fields["buy_1l"].String())
	assert.Equal(t, "42800000.5", got.Fields["sell_1l"].String())
	assert.NotContains(t, got.Fields, "note")

	_, err = decodeSnapshot("gold:sjc", "", bson.M{"buy_1l": int32(1)})
	require.Error(t, err)
}

func setupMongoStore(t *testing.T, loc *time.Location) *Store {
	t.Helper()
	if testing.Short() {
		t.Skip("mongodb container tests skipped in -short mode")
	}
	ctx := context.Background()

	container, err := tcmongo.Run(ctx, "mongo:7")
	require.NoError(t, err, "failed to start mongodb container")
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	store, err := Connect(ctx, config.MongoConfig{URI: uri, Database: "vapi_test", Timeout: 10 * time.Second}, loc,
		map[string]string{"exchange_rate": "currency"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close(context.Background()) })
	return store
}

func TestMongoStoreRoundTrip(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Ho_Chi_Minh")
	require.NoError(t, err)
	store := setupMongoStore(t, loc)
	ctx := context.Background()

	latest, err := store.Latest(ctx, "gold:sjc")
	require.NoError(t, err)
	assert.Nil(t, latest)

	day1 := time.Date(2024, 3, 1, 8, 0, 0, 0, loc)
	for _, s := range []storage.Snapshot{
		{FeedKey: "gold:sjc", CapturedAt: day1, Fields: map[string]decimal.Decimal{"buy_1l": decimal.NewFromInt(1)}},
		{FeedKey: "gold:sjc", CapturedAt: day1.Add(2 * time.Hour), Fields: map[string]decimal.Decimal{"buy_1l": decimal.NewFromInt(2)}},
		{FeedKey: "gold:sjc", CapturedAt: day1.AddDate(0, 0, 1), Fields: map[string]decimal.Decimal{"buy_1l": decimal.NewFromInt(3)}},
		{FeedKey: "gold:sjc", CapturedAt: day1.AddDate(0, 0, 5), Fields: map[string]decimal.Decimal{"buy_1l": decimal.NewFromInt(4)}},
	} {
		require.NoError(t, store.Insert(ctx, s))
	}

	latest, err = store.Latest(ctx, "gold:sjc")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "4", latest.Fields["buy_1l"].String())

	days, err := store.LatestPerDay(ctx, "gold:sjc", day1.AddDate(0, 0, -1), day1.AddDate(0, 0, 29))
	require.NoError(t, err)
	require.Len(t, days, 3)
	assert.Equal(t, "2", days[0].Fields["buy_1l"].String())
	assert.Equal(t, "3", days[1].Fields["buy_1l"].String())
	assert.Equal(t, "4", days[2].Fields["buy_1l"].String())

	recent, err := store.ListRecent(ctx, "gold:sjc", 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
}

func TestMongoStoreGroups(t *testing.T) {
	store := setupMongoStore(t, time.UTC)
	ctx := context.Background()
	at := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

	insert := func(group string, at time.Time, sell string) {
		require.NoError(t, store.Insert(ctx, storage.Snapshot{
			FeedKey: "exchange_rate:vcb", Group: group, CapturedAt: at,
			Fields: map[string]decimal.Decimal{"sell": decimal.RequireFromString(sell)},
		}))
	}
	insert("USD", at, "23250.00")
	insert("EUR", at, "26258.39")
	insert("USD", at.Add(time.Hour), "23260")

	groups, err := store.LatestPerGroup(ctx, "exchange_rate:vcb", storage.GroupFilter{})
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, "EUR", groups[0].Group)
	assert.Equal(t, "USD", groups[1].Group)
	assert.Equal(t, "23260", groups[1].Fields["sell"].String())

	_, err = store.LatestPerGroup(ctx, "gold:sjc", storage.GroupFilter{})
	require.ErrorIs(t, err, storage.ErrInvalidInput)
}
