// Package gorm provides GORM-based database operations for caliber.
package gorm

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/dialcraft/caliber/internal/db"
	"github.com/dialcraft/caliber/pkg/models"
)

// TargetStore handles behavior target operations.
type TargetStore struct {
	store *Store
	db    *gorm.DB
}

// NewTargetStore creates a new target store.
func NewTargetStore(store *Store) *TargetStore {
	return &TargetStore{store: store, db: store.DB}
}

// FindActive returns the currently effective target version for the given
// (parameter, scope, scope key), or ErrNotFound when none exists.
func (s *TargetStore) FindActive(ctx context.Context, parameterID string, scope models.Scope, scopeKey string) (*models.BehaviorTarget, error) {
	var row BehaviorTarget

	err := s.db.WithContext(ctx).
		Where("parameter_id = ? AND scope = ? AND scope_key = ? AND effective_until_epoch IS NULL",
			parameterID, string(scope), scopeKey).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, db.ErrNotFound
		}
		return nil, fmt.Errorf("find active target: %w", err)
	}

	return toModelTarget(&row), nil
}

// History returns all versions for the given key, newest first. The active
// version, if any, is the first element.
func (s *TargetStore) History(ctx context.Context, parameterID string, scope models.Scope, scopeKey string) ([]*models.BehaviorTarget, error) {
	var rows []BehaviorTarget

	err := s.db.WithContext(ctx).
		Where("parameter_id = ? AND scope = ? AND scope_key = ?",
			parameterID, string(scope), scopeKey).
		Order("created_at_epoch DESC, id DESC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("target history: %w", err)
	}

	return toModelTargets(rows), nil
}

// CountActive returns the number of currently effective target versions.
func (s *TargetStore) CountActive(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&BehaviorTarget{}).
		Where("effective_until_epoch IS NULL").
		Count(&count).Error
	return count, err
}

// CreateVersion inserts a new active version where no prior version exists.
// Returns the stored target with its assigned ID.
func (s *TargetStore) CreateVersion(ctx context.Context, target *models.BehaviorTarget) (*models.BehaviorTarget, error) {
	row := fromModelTarget(target)

	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return nil, fmt.Errorf("create target version: %w", err)
	}

	return toModelTarget(row), nil
}

// SupersedeAndCreate stamps the old version and inserts its replacement as
// one transaction. The supersede is a compare-and-swap on the active flag:
// if the old row is no longer active the transaction aborts with
// ErrTargetSuperseded and nothing is written, so a lost race can never
// leave two readable "current" rows for the same key.
func (s *TargetStore) SupersedeAndCreate(ctx context.Context, oldID int64, target *models.BehaviorTarget) (*models.BehaviorTarget, error) {
	row := fromModelTarget(target)
	now := time.Now().UnixMilli()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(row).Error; err != nil {
			return fmt.Errorf("create replacement version: %w", err)
		}

		res := tx.Model(&BehaviorTarget{}).
			Where("id = ? AND effective_until_epoch IS NULL", oldID).
			Updates(map[string]interface{}{
				"effective_until_epoch": now,
				"superseded_by_id":      row.ID,
			})
		if res.Error != nil {
			return fmt.Errorf("supersede target %d: %w", oldID, res.Error)
		}
		if res.RowsAffected == 0 {
			return db.ErrTargetSuperseded
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return toModelTarget(row), nil
}

// SeedDefaults creates global-scope default versions for every parameter in
// values that has no active global target yet. Existing keys are left alone.
// Returns the number of versions created.
func (s *TargetStore) SeedDefaults(ctx context.Context, values map[string]float64, confidence float64) (int, error) {
	created := 0

	for parameterID, value := range values {
		_, err := s.FindActive(ctx, parameterID, models.ScopeGlobal, "")
		if err == nil {
			continue
		}
		if !errors.Is(err, db.ErrNotFound) {
			return created, err
		}

		_, err = s.CreateVersion(ctx, &models.BehaviorTarget{
			ParameterID: parameterID,
			Scope:       models.ScopeGlobal,
			Source:      models.SourceDefault,
			TargetValue: value,
			Confidence:  confidence,
		})
		if err != nil {
			return created, err
		}
		created++
	}

	return created, nil
}

// fromModelTarget converts a domain target to its GORM row.
func fromModelTarget(t *models.BehaviorTarget) *BehaviorTarget {
	row := &BehaviorTarget{
		ID:               t.ID,
		ParameterID:      t.ParameterID,
		Scope:            string(t.Scope),
		ScopeKey:         t.ScopeKey,
		Source:           string(t.Source),
		TargetValue:      t.TargetValue,
		Confidence:       t.Confidence,
		ObservationCount: t.ObservationCount,
		CreatedAt:        t.CreatedAt,
		CreatedAtEpoch:   t.CreatedAtEpoch,
	}
	if t.EffectiveUntil != nil {
		row.EffectiveUntil = sql.NullInt64{Int64: *t.EffectiveUntil, Valid: true}
	}
	if t.SupersededByID != nil {
		row.SupersededByID = sql.NullInt64{Int64: *t.SupersededByID, Valid: true}
	}
	if t.LastLearnedAtEpoch != nil {
		row.LastLearnedAtEpoch = sql.NullInt64{Int64: *t.LastLearnedAtEpoch, Valid: true}
	}
	return row
}

// Ensure TargetStore satisfies the db interface.
var _ db.TargetStore = (*TargetStore)(nil)
