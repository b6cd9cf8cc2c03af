// Package gorm provides GORM-based database operations for caliber.
package gorm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/dialcraft/caliber/internal/db"
	"github.com/dialcraft/caliber/pkg/models"
)

// RewardStore handles reward record operations. Reward records are created
// by the upstream reward-computation stage; the learning loop only selects
// unprocessed records and writes the updates-applied marker back.
type RewardStore struct {
	store *Store
	db    *gorm.DB
}

// NewRewardStore creates a new reward store.
func NewRewardStore(store *Store) *RewardStore {
	return &RewardStore{store: store, db: store.DB}
}

// SelectUnprocessed returns reward records that have not had target updates
// applied yet and carry both the diff map and the target snapshot map.
// Records missing either map are not yet learnable and stay out of the
// batch entirely. Newest first so a bounded batch shows recent behavior;
// ordering has no correctness impact since rewards are independent.
func (s *RewardStore) SelectUnprocessed(ctx context.Context, interactionID string, limit int) ([]*models.RewardRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	query := s.db.WithContext(ctx).
		Where("updates_applied_at_epoch IS NULL").
		Where("parameter_diffs IS NOT NULL AND parameter_diffs != ''").
		Where("target_snapshots IS NOT NULL AND target_snapshots != ''").
		Order("created_at_epoch DESC").
		Limit(limit)

	if interactionID != "" {
		query = query.Where("interaction_id = ?", interactionID)
	}

	var rows []RewardRecord
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("select unprocessed rewards: %w", err)
	}

	return toModelRewards(rows), nil
}

// GetByInteractionID returns the reward record for one interaction, or
// ErrNotFound when none exists.
func (s *RewardStore) GetByInteractionID(ctx context.Context, interactionID string) (*models.RewardRecord, error) {
	var row RewardRecord

	err := s.db.WithContext(ctx).
		Where("interaction_id = ?", interactionID).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, db.ErrNotFound
		}
		return nil, fmt.Errorf("get reward: %w", err)
	}

	return toModelReward(&row), nil
}

// Create stores a new reward record. Used by the intake path and tests; the
// loop itself never creates rewards.
func (s *RewardStore) Create(ctx context.Context, reward *models.RewardRecord) (int64, error) {
	row := &RewardRecord{
		InteractionID:   reward.InteractionID,
		CallerID:        reward.CallerID,
		SegmentKey:      reward.SegmentKey,
		OutcomeScore:    reward.OutcomeScore,
		ParameterDiffs:  reward.ParameterDiffs,
		TargetSnapshots: reward.TargetSnapshots,
		CreatedAt:       reward.CreatedAt,
		CreatedAtEpoch:  reward.CreatedAtEpoch,
	}

	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return 0, fmt.Errorf("create reward: %w", err)
	}

	return row.ID, nil
}

// MarkProcessed records the full adjustment list onto the reward and stamps
// the applied-at marker. Guarded so the marker is set exactly once: a second
// call returns ErrAlreadyProcessed and changes nothing. An empty adjustment
// list still marks the record, which is what makes re-runs no-ops at the
// selection stage.
func (s *RewardStore) MarkProcessed(ctx context.Context, id int64, adjustments []models.AppliedAdjustment) error {
	applied := models.JSONAdjustmentList(adjustments)
	if applied == nil {
		applied = models.JSONAdjustmentList{}
	}

	res := s.db.WithContext(ctx).
		Model(&RewardRecord{}).
		Where("id = ? AND updates_applied_at_epoch IS NULL", id).
		Updates(map[string]interface{}{
			"updates_applied":          applied,
			"updates_applied_at_epoch": time.Now().UnixMilli(),
		})
	if res.Error != nil {
		return fmt.Errorf("mark reward processed: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return db.ErrAlreadyProcessed
	}
	return nil
}

// Ensure RewardStore satisfies the db interface.
var _ db.RewardStore = (*RewardStore)(nil)
