// Package db defines database interfaces for the caliber stores.
package db

import (
	"context"

	"github.com/dialcraft/caliber/pkg/models"
)

// TargetReader defines read operations for behavior targets.
type TargetReader interface {
	FindActive(ctx context.Context, parameterID string, scope models.Scope, scopeKey string) (*models.BehaviorTarget, error)
	History(ctx context.Context, parameterID string, scope models.Scope, scopeKey string) ([]*models.BehaviorTarget, error)
	CountActive(ctx context.Context) (int64, error)
}

// TargetWriter defines write operations for behavior targets. Versions are
// append-only: superseding stamps the old row and creates a new one, rows
// are never mutated in place or deleted.
type TargetWriter interface {
	CreateVersion(ctx context.Context, target *models.BehaviorTarget) (*models.BehaviorTarget, error)
	SupersedeAndCreate(ctx context.Context, oldID int64, target *models.BehaviorTarget) (*models.BehaviorTarget, error)
	SeedDefaults(ctx context.Context, values map[string]float64, confidence float64) (int, error)
}

// TargetStore combines read and write operations for behavior targets.
type TargetStore interface {
	TargetReader
	TargetWriter
}

// RewardReader defines read operations for reward records.
type RewardReader interface {
	SelectUnprocessed(ctx context.Context, interactionID string, limit int) ([]*models.RewardRecord, error)
	GetByInteractionID(ctx context.Context, interactionID string) (*models.RewardRecord, error)
}

// RewardWriter defines the single write the learning loop performs on reward
// records, plus intake used by the upstream stage and tests.
type RewardWriter interface {
	Create(ctx context.Context, reward *models.RewardRecord) (int64, error)
	MarkProcessed(ctx context.Context, id int64, adjustments []models.AppliedAdjustment) error
}

// RewardStore combines read and write operations for reward records.
type RewardStore interface {
	RewardReader
	RewardWriter
}

// SettingStore is a typed get/put over the shared key-value configuration
// table. Values are JSON-encoded documents.
type SettingStore interface {
	GetJSON(ctx context.Context, key string, dst interface{}) (bool, error)
	PutJSON(ctx context.Context, key string, value interface{}) error
}
