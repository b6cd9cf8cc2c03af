package gorm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dialcraft/caliber/pkg/models"
)

func TestSettingStore_RoundTrip(t *testing.T) {
	store, cleanup := testStore(t)
	defer cleanup()
	settings := NewSettingStore(store)
	ctx := context.Background()

	in := models.LearningConfig{LearningRate: 0.25, Tolerance: 0.05}
	require.NoError(t, settings.PutJSON(ctx, "learning.test", in))

	var out models.LearningConfig
	found, err := settings.GetJSON(ctx, "learning.test", &out)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, in, out)
}

func TestSettingStore_MissingKey(t *testing.T) {
	store, cleanup := testStore(t)
	defer cleanup()
	settings := NewSettingStore(store)

	var out models.LearningConfig
	found, err := settings.GetJSON(context.Background(), "does.not.exist", &out)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestSettingStore_PutOverwrites(t *testing.T) {
	store, cleanup := testStore(t)
	defer cleanup()
	settings := NewSettingStore(store)
	ctx := context.Background()

	require.NoError(t, settings.PutJSON(ctx, "k", map[string]int{"v": 1}))
	require.NoError(t, settings.PutJSON(ctx, "k", map[string]int{"v": 2}))

	var out map[string]int
	found, err := settings.GetJSON(ctx, "k", &out)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 2, out["v"])
}

func TestSettingStore_MalformedValueSurfacesError(t *testing.T) {
	store, cleanup := testStore(t)
	defer cleanup()
	settings := NewSettingStore(store)
	ctx := context.Background()

	require.NoError(t, store.DB.Exec(
		"INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)",
		"broken", "{not json", time.Now().Format(time.RFC3339)).Error)

	var out models.LearningConfig
	found, err := settings.GetJSON(ctx, "broken", &out)
	assert.True(t, found)
	assert.Error(t, err)
}

func TestMigrations_SeedLearningConfig(t *testing.T) {
	store, cleanup := testStore(t)
	defer cleanup()
	settings := NewSettingStore(store)

	var cfg models.LearningConfig
	found, err := settings.GetJSON(context.Background(), models.SettingLearningAdjustment, &cfg)
	require.NoError(t, err)
	assert.True(t, found, "migrations should seed the learning config entry")
	assert.Equal(t, models.DefaultLearningConfig(), cfg)
}
