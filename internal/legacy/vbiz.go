package legacy

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"gorm.io/gorm"
)

const (
	searchLimit = 10
	// names shorter than this go through full-text matching
	fullTextMaxLen = 16
)

var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

// Businesses searches the business registry.
type Businesses struct {
	db *gorm.DB
}

func NewBusinesses(db *gorm.DB) *Businesses {
	return &Businesses{db: db}
}

// Search finds at most ten businesses. All-digit keywords match a tax code
// prefix, short keywords match the name through full-text search (a contains
// match outside MySQL) and longer keywords match a name prefix.
func (b *Businesses) Search(ctx context.Context, keyword string) ([]BusinessSummary, error) {
	keyword = strings.TrimSpace(keyword)
	out := []BusinessSummary{}
	if keyword == "" {
		return out, nil
	}

	q := b.db.WithContext(ctx).Model(&Business{}).Select("vbiz_code", "vbiz_name")
	switch {
	case isDigits(keyword):
		q = q.Where("vbiz_code LIKE ? ESCAPE '!'", likeEscaper.Replace(keyword)+"%")
	case utf8.RuneCountInString(keyword) < fullTextMaxLen:
		if isMySQL(b.db) {
			q = q.Where("MATCH(vbiz_name) AGAINST (? IN NATURAL LANGUAGE MODE)", `"`+keyword+`"`)
		} else {
			q = q.Where("vbiz_name LIKE ? ESCAPE '!'", "%"+likeEscaper.Replace(keyword)+"%")
		}
	default:
		q = q.Where("vbiz_name LIKE ? ESCAPE '!'", likeEscaper.Replace(keyword)+"%")
	}

	if err := q.Limit(searchLimit).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("search businesses: %w", err)
	}
	return out, nil
}

// Lookup returns the registry entries with the given tax code.
func (b *Businesses) Lookup(ctx context.Context, code string) ([]Business, error) {
	out := []Business{}
	if err := b.db.WithContext(ctx).Where("vbiz_code = ?", code).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("lookup business %s: %w", code, err)
	}
	return out, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
