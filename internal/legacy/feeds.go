package legacy

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"vapi/internal/feed"
	"vapi/internal/storage"
)

const tablePrefix = "vnappmob_"

// legacyColumns lists the value columns each legacy table actually has.
var legacyColumns = map[string][]string{
	"gold:sjc":          {"buy_1l", "sell_1l", "buy_1c", "sell_1c", "buy_nhan1c", "sell_nhan1c", "buy_trangsuc49", "sell_trangsuc49"},
	"gold:doji":         {"buy_hcm", "sell_hcm", "buy_hn", "sell_hn"},
	"exchange_rate:vcb": {"buy_cash", "buy_transfer", "sell"},
}

// Feeds derives the legacy feed definitions from reg. Their schemas are
// narrowed to the table columns and unknown fields are rejected.
func Feeds(reg *feed.Registry) ([]feed.Definition, error) {
	keys := []string{"gold:sjc", "gold:doji", "exchange_rate:vcb"}
	out := make([]feed.Definition, 0, len(keys))
	for _, key := range keys {
		def, err := reg.Lookup(key)
		if err != nil {
			return nil, err
		}
		out = append(out, narrow(def, legacyColumns[key]))
	}
	return out, nil
}

func narrow(def feed.Definition, columns []string) feed.Definition {
	def.Fields = append([]string(nil), columns...)
	def.Strict = true

	lines := make([]feed.Line, 0, len(def.Template.Lines))
	for _, line := range def.Template.Lines {
		keep := true
		for _, p := range line.Parts {
			if !def.HasField(p.Field) {
				keep = false
				break
			}
		}
		if keep {
			lines = append(lines, line)
		}
	}
	def.Template.Lines = lines
	return def
}

// FeedStore implements the snapshot store over the legacy price tables. Only
// the columns of the narrowed definitions are read or written and every value
// is a bound parameter.
type FeedStore struct {
	db    *gorm.DB
	loc   *time.Location
	feeds map[string]feed.Definition
}

var (
	_ storage.SnapshotStore = (*FeedStore)(nil)
	_ storage.HistoryReader = (*FeedStore)(nil)
)

// NewFeedStore returns a store serving defs. Calendar days are computed in loc.
func NewFeedStore(db *gorm.DB, loc *time.Location, defs []feed.Definition) *FeedStore {
	if loc == nil {
		loc = time.UTC
	}
	feeds := make(map[string]feed.Definition, len(defs))
	for _, d := range defs {
		feeds[d.Key()] = d
	}
	return &FeedStore{db: db, loc: loc, feeds: feeds}
}

func tableName(def feed.Definition) string {
	return tablePrefix + def.Collection()
}

func (s *FeedStore) lookup(key string) (feed.Definition, error) {
	def, ok := s.feeds[key]
	if !ok {
		return feed.Definition{}, fmt.Errorf("%w: %s has no legacy table", feed.ErrUnknownFeed, key)
	}
	return def, nil
}

func selectColumns(def feed.Definition) []string {
	cols := []string{"id", "datetime"}
	if def.Grouped() {
		cols = append(cols, def.GroupField)
	}
	return append(cols, def.Fields...)
}

// CreateTables creates any missing legacy price table.
func (s *FeedStore) CreateTables(ctx context.Context) error {
	for _, def := range s.feeds {
		if err := s.db.WithContext(ctx).Exec(createTableSQL(def, isMySQL(s.db))).Error; err != nil {
			return fmt.Errorf("create %s: %w", tableName(def), err)
		}
	}
	return nil
}

// createTableSQL stores amounts as TEXT under sqlite, whose DECIMAL affinity
// would coerce them to REAL.
func createTableSQL(def feed.Definition, mysql bool) string {
	id, amount := "id INTEGER PRIMARY KEY AUTOINCREMENT", "TEXT"
	if mysql {
		id, amount = "id BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY", "DECIMAL(38,18)"
	}
	cols := []string{id, "datetime DATETIME NOT NULL"}
	if def.Grouped() {
		cols = append(cols, def.GroupField+" VARCHAR(16) NOT NULL")
	}
	for _, f := range def.Fields {
		cols = append(cols, f+" "+amount)
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", tableName(def), strings.Join(cols, ", "))
}

// Latest returns the newest row of the feed.
func (s *FeedStore) Latest(ctx context.Context, key string) (*storage.Snapshot, error) {
	def, err := s.lookup(key)
	if err != nil {
		return nil, err
	}
	var rows []map[string]any
	err = s.db.WithContext(ctx).Table(tableName(def)).
		Select(selectColumns(def)).
		Order("datetime DESC").Order("id DESC").
		Limit(1).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("latest %s: %w", key, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	snap, err := decodeRow(def, rows[0])
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

// LatestPerGroup returns the highest-id row of each group.
func (s *FeedStore) LatestPerGroup(ctx context.Context, key string, filter storage.GroupFilter) ([]storage.Snapshot, error) {
	def, err := s.lookup(key)
	if err != nil {
		return nil, err
	}
	if !def.Grouped() {
		return nil, fmt.Errorf("%w: %s is not grouped", storage.ErrInvalidInput, key)
	}
	table := tableName(def)

	sub := s.db.WithContext(ctx).Table(table).Select("MAX(id)").Group(def.GroupField)
	if filter.Group != "" {
		sub = sub.Where(def.GroupField+" = ?", filter.Group)
	}
	if !filter.From.IsZero() {
		sub = sub.Where("datetime >= ?", filter.From.UTC())
	}
	if !filter.To.IsZero() {
		sub = sub.Where("datetime < ?", filter.To.UTC())
	}

	var rows []map[string]any
	err = s.db.WithContext(ctx).Table(table).
		Select(selectColumns(def)).
		Where("id IN (?)", sub).
		Order(def.GroupField).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("latest per group %s: %w", key, err)
	}
	return decodeRows(def, rows)
}

// LatestPerDay returns the last row of each calendar day (per group) in [from, to).
func (s *FeedStore) LatestPerDay(ctx context.Context, key string, from, to time.Time) ([]storage.Snapshot, error) {
	history, err := s.ListBetween(ctx, key, from, to)
	if err != nil {
		return nil, err
	}
	return storage.ReduceLatestPerDay(history, from, to, s.loc), nil
}

// ListBetween returns rows captured in [from, to), oldest first.
func (s *FeedStore) ListBetween(ctx context.Context, key string, from, to time.Time) ([]storage.Snapshot, error) {
	def, err := s.lookup(key)
	if err != nil {
		return nil, err
	}
	var rows []map[string]any
	err = s.db.WithContext(ctx).Table(tableName(def)).
		Select(selectColumns(def)).
		Where("datetime >= ? AND datetime < ?", from.UTC(), to.UTC()).
		Order("datetime").Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", key, err)
	}
	return decodeRows(def, rows)
}

// ListRecent returns up to limit rows, newest first.
func (s *FeedStore) ListRecent(ctx context.Context, key string, limit int) ([]storage.Snapshot, error) {
	def, err := s.lookup(key)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}
	var rows []map[string]any
	err = s.db.WithContext(ctx).Table(tableName(def)).
		Select(selectColumns(def)).
		Order("datetime DESC").Order("id DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list recent %s: %w", key, err)
	}
	return decodeRows(def, rows)
}

// Insert appends a row. Every column of the table must be present.
func (s *FeedStore) Insert(ctx context.Context, snap storage.Snapshot) error {
	if err := snap.Validate(); err != nil {
		return err
	}
	def, err := s.lookup(snap.FeedKey)
	if err != nil {
		return err
	}

	row := map[string]any{"datetime": snap.CapturedAt.UTC()}
	if def.Grouped() {
		if snap.Group == "" {
			return fmt.Errorf("%w: %s needs a %s", storage.ErrInvalidInput, snap.FeedKey, def.GroupField)
		}
		row[def.GroupField] = snap.Group
	}
	for name := range snap.Fields {
		if !def.HasField(name) {
			return fmt.Errorf("%w: %s has no column %q", storage.ErrInvalidInput, tableName(def), name)
		}
	}
	for _, name := range def.Fields {
		v, ok := snap.Fields[name]
		if !ok {
			return fmt.Errorf("%w: %s missing %q", storage.ErrInvalidInput, snap.FeedKey, name)
		}
		row[name] = v.String()
	}

	if err := s.db.WithContext(ctx).Table(tableName(def)).Create(row).Error; err != nil {
		return fmt.Errorf("insert %s: %w", snap.FeedKey, err)
	}
	return nil
}

func decodeRows(def feed.Definition, rows []map[string]any) ([]storage.Snapshot, error) {
	out := make([]storage.Snapshot, 0, len(rows))
	for _, row := range rows {
		snap, err := decodeRow(def, row)
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, nil
}

func decodeRow(def feed.Definition, row map[string]any) (storage.Snapshot, error) {
	at, err := toTime(row["datetime"])
	if err != nil {
		return storage.Snapshot{}, fmt.Errorf("%s row datetime: %w", def.Key(), err)
	}
	snap := storage.Snapshot{
		FeedKey:    def.Key(),
		CapturedAt: at,
		Fields:     make(map[string]decimal.Decimal, len(def.Fields)),
	}
	if def.Grouped() {
		snap.Group = toString(row[def.GroupField])
	}
	for _, name := range def.Fields {
		raw, ok := row[name]
		if !ok || raw == nil {
			continue
		}
		v, err := toDecimal(raw)
		if err != nil {
			return storage.Snapshot{}, fmt.Errorf("%s row %s: %w", def.Key(), name, err)
		}
		snap.Fields[name] = v
	}
	return snap, nil
}

func toDecimal(v any) (decimal.Decimal, error) {
	switch x := v.(type) {
	case []byte:
		return decimal.NewFromString(string(x))
	case string:
		return decimal.NewFromString(x)
	case int64:
		return decimal.NewFromInt(x), nil
	case int32:
		return decimal.NewFromInt32(x), nil
	case int:
		return decimal.NewFromInt(int64(x)), nil
	case float64:
		return decimal.NewFromFloat(x), nil
	case float32:
		return decimal.NewFromFloat32(x), nil
	case decimal.Decimal:
		return x, nil
	default:
		return decimal.Decimal{}, fmt.Errorf("unsupported numeric type %T", v)
	}
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	time.DateTime,
}

func toTime(v any) (time.Time, error) {
	switch x := v.(type) {
	case time.Time:
		return x.UTC(), nil
	case int64:
		return time.Unix(x, 0).UTC(), nil
	case []byte:
		return parseTime(string(x))
	case string:
		return parseTime(x)
	default:
		return time.Time{}, fmt.Errorf("unsupported time type %T", v)
	}
}

func parseTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(n, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unrecognised time %q", s)
}

func toString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case []byte:
		return string(x)
	case nil:
		return ""
	default:
		return fmt.Sprint(x)
	}
}
