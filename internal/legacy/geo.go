package legacy

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// APIKeySetting is the settings row holding the shared API key.
const APIKeySetting = "api"

// Directory reads administrative divisions and settings.
type Directory struct {
	db *gorm.DB
}

func NewDirectory(db *gorm.DB) *Directory {
	return &Directory{db: db}
}

// AutoMigrate creates the directory, settings and registry tables. Production
// schemas predate this service; it backs tests and local sqlite databases.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&Province{}, &District{}, &Ward{}, &Setting{}, &Business{})
}

// Provinces lists every province ordered by name.
func (d *Directory) Provinces(ctx context.Context) ([]Province, error) {
	out := []Province{}
	if err := d.db.WithContext(ctx).Order("province_name").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list provinces: %w", err)
	}
	return out, nil
}

// Districts lists the districts of a province ordered by name.
func (d *Directory) Districts(ctx context.Context, provinceID string) ([]District, error) {
	out := []District{}
	err := d.db.WithContext(ctx).
		Where("province_id = ?", provinceID).
		Order("district_name").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list districts of %s: %w", provinceID, err)
	}
	return out, nil
}

// Wards lists the wards of a district ordered by name.
func (d *Directory) Wards(ctx context.Context, districtID string) ([]Ward, error) {
	out := []Ward{}
	err := d.db.WithContext(ctx).
		Where("district_id = ?", districtID).
		Order("ward_name").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list wards of %s: %w", districtID, err)
	}
	return out, nil
}

// SharedKey returns the legacy API key. A missing row yields an empty key,
// which no request can match.
func (d *Directory) SharedKey(ctx context.Context) (string, error) {
	var s Setting
	err := d.db.WithContext(ctx).Where("setting_key = ?", APIKeySetting).Take(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read shared key: %w", err)
	}
	return s.Value, nil
}
