// Package gorm provides GORM-based database operations for caliber.
package gorm

import (
	"encoding/json"
	"time"

	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"

	"github.com/dialcraft/caliber/pkg/models"
)

// runMigrations runs all database migrations using gormigrate.
func runMigrations(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		// Migration 001: Core tables (BehaviorTarget, RewardRecord)
		{
			ID: "001_core_tables",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&BehaviorTarget{}); err != nil {
					return err
				}
				return tx.AutoMigrate(&RewardRecord{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("behavior_targets", "reward_records")
			},
		},

		// Migration 002: Settings table
		{
			ID: "002_settings",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&Setting{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("settings")
			},
		},

		// Migration 003: Seed the learning config entry so operators have a
		// document to edit. The resolver falls back to the same defaults if
		// this row is missing, so skipping on conflict is safe.
		{
			ID: "003_seed_learning_config",
			Migrate: func(tx *gorm.DB) error {
				value, err := json.Marshal(models.DefaultLearningConfig())
				if err != nil {
					return err
				}
				var count int64
				if err := tx.Model(&Setting{}).
					Where("key = ?", models.SettingLearningAdjustment).
					Count(&count).Error; err != nil {
					return err
				}
				if count > 0 {
					return nil
				}
				return tx.Create(&Setting{
					Key:       models.SettingLearningAdjustment,
					Value:     string(value),
					UpdatedAt: time.Now().Format(time.RFC3339),
				}).Error
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Where("key = ?", models.SettingLearningAdjustment).
					Delete(&Setting{}).Error
			},
		},
	})

	return m.Migrate()
}
