// Package mongo stores feed snapshots in MongoDB, one collection per feed,
// with every numeric field kept as Decimal128.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	mongodrv "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"vapi/internal/config"
	"vapi/internal/feed"
	"vapi/internal/storage"
)

// Store implements storage.SnapshotStore over a MongoDB database.
type Store struct {
	client      *mongodrv.Client
	db          *mongodrv.Database
	loc         *time.Location
	groupFields map[string]string
}

var (
	_ storage.SnapshotStore = (*Store)(nil)
	_ storage.HistoryReader = (*Store)(nil)
)

// Connect dials MongoDB and verifies the primary is reachable. groupFields maps
// a feed scope to the document field holding the group key.
func Connect(ctx context.Context, cfg config.MongoConfig, loc *time.Location, groupFields map[string]string) (*Store, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("mongodb.uri is required")
	}
	opts := options.Client().ApplyURI(cfg.URI)
	if cfg.Timeout > 0 {
		opts.SetTimeout(cfg.Timeout)
	}

	client, err := mongodrv.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}

	store := New(client.Database(cfg.Database), loc, groupFields)
	store.client = client
	return store, nil
}

// New wraps an existing database handle.
func New(db *mongodrv.Database, loc *time.Location, groupFields map[string]string) *Store {
	if loc == nil {
		loc = time.UTC
	}
	fields := make(map[string]string, len(groupFields))
	for k, v := range groupFields {
		fields[k] = v
	}
	return &Store{db: db, loc: loc, groupFields: fields}
}

// Close disconnects the client created by Connect.
func (s *Store) Close(ctx context.Context) error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}

func (s *Store) collection(feedKey string) (*mongodrv.Collection, error) {
	if s == nil || s.db == nil {
		return nil, storage.ErrNotConfigured
	}
	return s.db.Collection(feed.CollectionName(feedKey)), nil
}

func (s *Store) groupField(feedKey string) string {
	return s.groupFields[feed.ScopeOf(feedKey)]
}

// Latest returns the most recent snapshot of the feed.
func (s *Store) Latest(ctx context.Context, feedKey string) (*storage.Snapshot, error) {
	snaps, err := s.aggregate(ctx, feedKey, LatestPipeline())
	if err != nil {
		return nil, fmt.Errorf("latest snapshot: %w", err)
	}
	if len(snaps) == 0 {
		return nil, nil
	}
	return &snaps[0], nil
}

// LatestPerGroup returns the latest snapshot of each group.
func (s *Store) LatestPerGroup(ctx context.Context, feedKey string, filter storage.GroupFilter) ([]storage.Snapshot, error) {
	gf := s.groupField(feedKey)
	if gf == "" {
		return nil, fmt.Errorf("%w: feed %s has no group field", storage.ErrInvalidInput, feedKey)
	}
	snaps, err := s.aggregate(ctx, feedKey, LatestPerGroupPipeline(gf, filter))
	if err != nil {
		return nil, fmt.Errorf("latest per group: %w", err)
	}
	return snaps, nil
}

// LatestPerDay returns the last snapshot of each calendar day in [from, to).
func (s *Store) LatestPerDay(ctx context.Context, feedKey string, from, to time.Time) ([]storage.Snapshot, error) {
	snaps, err := s.aggregate(ctx, feedKey, LatestPerDayPipeline(s.groupField(feedKey), from, to, s.loc))
	if err != nil {
		return nil, fmt.Errorf("latest per day: %w", err)
	}
	return snaps, nil
}

// Insert appends a snapshot document.
func (s *Store) Insert(ctx context.Context, snap storage.Snapshot) error {
	if err := snap.Validate(); err != nil {
		return err
	}
	coll, err := s.collection(snap.FeedKey)
	if err != nil {
		return err
	}
	doc, err := encodeSnapshot(s.groupField(snap.FeedKey), snap)
	if err != nil {
		return err
	}
	if _, err := coll.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

// ListBetween lists snapshots within a time window, oldest first.
func (s *Store) ListBetween(ctx context.Context, feedKey string, from, to time.Time) ([]storage.Snapshot, error) {
	filter := bson.D{{Key: timeField, Value: bson.D{{Key: "$gte", Value: from}, {Key: "$lt", Value: to}}}}
	opts := options.Find().SetSort(bson.D{{Key: timeField, Value: 1}, {Key: "_id", Value: 1}})
	snaps, err := s.find(ctx, feedKey, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("list snapshots between: %w", err)
	}
	return snaps, nil
}

// ListRecent lists the most recent snapshots, newest first.
func (s *Store) ListRecent(ctx context.Context, feedKey string, limit int) ([]storage.Snapshot, error) {
	opts := options.Find().SetSort(newestFirst).SetLimit(int64(limit))
	snaps, err := s.find(ctx, feedKey, bson.D{}, opts)
	if err != nil {
		return nil, fmt.Errorf("list recent snapshots: %w", err)
	}
	return snaps, nil
}

func (s *Store) aggregate(ctx context.Context, feedKey string, pipeline mongodrv.Pipeline) ([]storage.Snapshot, error) {
	coll, err := s.collection(feedKey)
	if err != nil {
		return nil, err
	}
	cursor, err := coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	return s.drain(ctx, feedKey, cursor)
}

func (s *Store) find(ctx context.Context, feedKey string, filter bson.D, opts *options.FindOptions) ([]storage.Snapshot, error) {
	coll, err := s.collection(feedKey)
	if err != nil {
		return nil, err
	}
	cursor, err := coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	return s.drain(ctx, feedKey, cursor)
}

func (s *Store) drain(ctx context.Context, feedKey string, cursor *mongodrv.Cursor) ([]storage.Snapshot, error) {
	var docs []bson.M
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	gf := s.groupField(feedKey)
	out := make([]storage.Snapshot, 0, len(docs))
	for _, doc := range docs {
		snap, err := decodeSnapshot(feedKey, gf, doc)
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, nil
}

func encodeSnapshot(groupField string, snap storage.Snapshot) (bson.D, error) {
	doc := bson.D{{Key: timeField, Value: snap.CapturedAt}}
	if groupField != "" && snap.Group != "" {
		doc = append(doc, bson.E{Key: groupField, Value: snap.Group})
	}
	for _, name := range snap.FieldNames() {
		value, err := primitive.ParseDecimal128(snap.Fields[name].String())
		if err != nil {
			return nil, fmt.Errorf("encode field %s: %w", name, err)
		}
		doc = append(doc, bson.E{Key: name, Value: value})
	}
	return doc, nil
}

var errNoTimestamp = errors.New("document has no datetime")

// decodeSnapshot accepts Decimal128 fields as written by Insert and the plain
// numbers found in older documents. Other non-numeric fields are ignored.
func decodeSnapshot(feedKey, groupField string, doc bson.M) (storage.Snapshot, error) {
	snap := storage.Snapshot{FeedKey: feedKey, Fields: make(map[string]decimal.Decimal)}
	for k, v := range doc {
		switch {
		case k == "_id":
			continue
		case k == timeField:
			switch t := v.(type) {
			case primitive.DateTime:
				snap.CapturedAt = t.Time().UTC()
			case time.Time:
				snap.CapturedAt = t.UTC()
			}
			continue
		case groupField != "" && k == groupField:
			if g, ok := v.(string); ok {
				snap.Group = g
			}
			continue
		}

		var (
			d   decimal.Decimal
			err error
		)
		switch n := v.(type) {
		case primitive.Decimal128:
			d, err = decimal.NewFromString(n.String())
		case float64:
			d = decimal.NewFromFloat(n)
		case int32:
			d = decimal.NewFromInt32(n)
		case int64:
			d = decimal.NewFromInt(n)
		default:
			continue
		}
		if err != nil {
			return storage.Snapshot{}, fmt.Errorf("decode field %s: %w", k, err)
		}
		snap.Fields[k] = d
	}
	if snap.CapturedAt.IsZero() {
		return storage.Snapshot{}, fmt.Errorf("decode %s: %w", feedKey, errNoTimestamp)
	}
	return snap, nil
}
