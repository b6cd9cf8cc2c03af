// Package gorm provides GORM-based database operations for caliber.
package gorm

import (
	"context"
	"errors"
	"fmt"

	"github.com/goccy/go-json"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/dialcraft/caliber/internal/db"
)

// SettingStore handles the shared key-value configuration table. Values are
// JSON-encoded documents.
type SettingStore struct {
	store *Store
	db    *gorm.DB
}

// NewSettingStore creates a new setting store.
func NewSettingStore(store *Store) *SettingStore {
	return &SettingStore{store: store, db: store.DB}
}

// GetJSON reads the entry for key and decodes it into dst. Returns false
// when the key does not exist. A malformed stored value is returned as an
// error so callers can decide their own fallback posture.
func (s *SettingStore) GetJSON(ctx context.Context, key string, dst interface{}) (bool, error) {
	var row Setting

	err := s.db.WithContext(ctx).Where("key = ?", key).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("get setting %q: %w", key, err)
	}

	if err := json.Unmarshal([]byte(row.Value), dst); err != nil {
		return true, fmt.Errorf("decode setting %q: %w", key, err)
	}

	return true, nil
}

// PutJSON encodes value and upserts it under key.
func (s *SettingStore) PutJSON(ctx context.Context, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode setting %q: %w", key, err)
	}

	row := &Setting{Key: key, Value: string(data)}

	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).
		Create(row).Error
}

// Ensure SettingStore satisfies the db interface.
var _ db.SettingStore = (*SettingStore)(nil)
