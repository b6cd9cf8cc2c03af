// Package gorm provides GORM-based database operations for caliber.
package gorm

import (
	"database/sql"
	"time"

	"gorm.io/gorm"

	"github.com/dialcraft/caliber/pkg/models"
)

// GORM Models

// Note: JSON column types (JSONDiffMap, JSONSnapshotMap, JSONAdjustmentList)
// are imported from pkg/models and already implement sql.Scanner and
// driver.Valuer interfaces.

// BehaviorTarget is one version of a behavior target. The version chain is
// append-only: the active version per (parameter_id, scope, scope_key) is
// the one with effective_until_epoch IS NULL.
// Field order optimized for memory alignment (fieldalignment).
type BehaviorTarget struct {
	ParameterID        string         `gorm:"index:idx_targets_key,priority:1;not null"`
	Scope              string         `gorm:"type:text;check:scope IN ('global', 'segment', 'individual');index:idx_targets_key,priority:2;not null"`
	ScopeKey           string         `gorm:"type:text;default:'';index:idx_targets_key,priority:3"`
	Source             string         `gorm:"type:text;check:source IN ('default', 'learned', 'imported');default:'default';index"`
	CreatedAt          string         `gorm:"not null"`
	EffectiveUntil     sql.NullInt64  `gorm:"column:effective_until_epoch;index:idx_targets_active"`
	SupersededByID     sql.NullInt64  `gorm:"column:superseded_by_id"`
	LastLearnedAtEpoch sql.NullInt64  `gorm:"column:last_learned_at_epoch"`
	ID                 int64          `gorm:"primaryKey;autoIncrement"`
	TargetValue        float64        `gorm:"type:real;not null"`
	Confidence         float64        `gorm:"type:real;not null"`
	ObservationCount   int            `gorm:"default:0"`
	CreatedAtEpoch     int64          `gorm:"index:idx_targets_created,sort:desc;not null"`
}

func (BehaviorTarget) TableName() string { return "behavior_targets" }

// BeforeCreate hook to ensure timestamps are set.
func (t *BehaviorTarget) BeforeCreate(tx *gorm.DB) error {
	if t.CreatedAtEpoch == 0 {
		t.CreatedAtEpoch = time.Now().UnixMilli()
	}
	if t.CreatedAt == "" {
		t.CreatedAt = time.Now().Format(time.RFC3339)
	}
	return nil
}

// RewardRecord is one scored interaction produced by the upstream reward
// stage. The loop writes back only the updates_applied marker columns.
type RewardRecord struct {
	InteractionID   string                    `gorm:"uniqueIndex;not null"`
	CallerID        string                    `gorm:"type:text;default:'';index"`
	SegmentKey      string                    `gorm:"type:text;default:''"`
	CreatedAt       string                    `gorm:"not null"`
	ParameterDiffs  models.JSONDiffMap        `gorm:"type:text"`
	TargetSnapshots models.JSONSnapshotMap    `gorm:"type:text"`
	UpdatesApplied  models.JSONAdjustmentList `gorm:"type:text"`
	UpdatesAppliedAt sql.NullInt64            `gorm:"column:updates_applied_at_epoch;index:idx_rewards_unprocessed"`
	ID              int64                     `gorm:"primaryKey;autoIncrement"`
	OutcomeScore    float64                   `gorm:"type:real;not null"`
	CreatedAtEpoch  int64                     `gorm:"index:idx_rewards_created,sort:desc;not null"`
}

func (RewardRecord) TableName() string { return "reward_records" }

// BeforeCreate hook to ensure timestamps are set.
func (r *RewardRecord) BeforeCreate(tx *gorm.DB) error {
	if r.CreatedAtEpoch == 0 {
		r.CreatedAtEpoch = time.Now().UnixMilli()
	}
	if r.CreatedAt == "" {
		r.CreatedAt = time.Now().Format(time.RFC3339)
	}
	return nil
}

// Setting stores one JSON-encoded configuration document.
type Setting struct {
	Key       string `gorm:"primaryKey;type:text"`
	Value     string `gorm:"type:text;not null"`
	UpdatedAt string `gorm:"not null"`
}

func (Setting) TableName() string { return "settings" }

// BeforeSave hook to ensure the timestamp is set.
func (s *Setting) BeforeSave(tx *gorm.DB) error {
	s.UpdatedAt = time.Now().Format(time.RFC3339)
	return nil
}

// Model conversion helpers

func toModelTarget(t *BehaviorTarget) *models.BehaviorTarget {
	out := &models.BehaviorTarget{
		ID:               t.ID,
		ParameterID:      t.ParameterID,
		Scope:            models.Scope(t.Scope),
		ScopeKey:         t.ScopeKey,
		Source:           models.TargetSource(t.Source),
		TargetValue:      t.TargetValue,
		Confidence:       t.Confidence,
		ObservationCount: t.ObservationCount,
		CreatedAt:        t.CreatedAt,
		CreatedAtEpoch:   t.CreatedAtEpoch,
	}
	if t.EffectiveUntil.Valid {
		v := t.EffectiveUntil.Int64
		out.EffectiveUntil = &v
	}
	if t.SupersededByID.Valid {
		v := t.SupersededByID.Int64
		out.SupersededByID = &v
	}
	if t.LastLearnedAtEpoch.Valid {
		v := t.LastLearnedAtEpoch.Int64
		out.LastLearnedAtEpoch = &v
	}
	return out
}

func toModelTargets(rows []BehaviorTarget) []*models.BehaviorTarget {
	out := make([]*models.BehaviorTarget, len(rows))
	for i := range rows {
		out[i] = toModelTarget(&rows[i])
	}
	return out
}

func toModelReward(r *RewardRecord) *models.RewardRecord {
	out := &models.RewardRecord{
		ID:              r.ID,
		InteractionID:   r.InteractionID,
		CallerID:        r.CallerID,
		SegmentKey:      r.SegmentKey,
		OutcomeScore:    r.OutcomeScore,
		ParameterDiffs:  r.ParameterDiffs,
		TargetSnapshots: r.TargetSnapshots,
		UpdatesApplied:  r.UpdatesApplied,
		CreatedAt:       r.CreatedAt,
		CreatedAtEpoch:  r.CreatedAtEpoch,
	}
	if r.UpdatesAppliedAt.Valid {
		v := r.UpdatesAppliedAt.Int64
		out.UpdatesAppliedEpoch = &v
	}
	return out
}

func toModelRewards(rows []RewardRecord) []*models.RewardRecord {
	out := make([]*models.RewardRecord, len(rows))
	for i := range rows {
		out[i] = toModelReward(&rows[i])
	}
	return out
}
