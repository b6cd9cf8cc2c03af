package learning

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dialcraft/caliber/pkg/models"
)

// fakeSettingStore is an in-memory db.SettingStore for resolver tests.
type fakeSettingStore struct {
	values map[string]string
	gets   int
}

func (f *fakeSettingStore) GetJSON(_ context.Context, key string, dst interface{}) (bool, error) {
	f.gets++
	raw, ok := f.values[key]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return true, fmt.Errorf("decode setting %q: %w", key, err)
	}
	return true, nil
}

func (f *fakeSettingStore) PutJSON(_ context.Context, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if f.values == nil {
		f.values = map[string]string{}
	}
	f.values[key] = string(data)
	return nil
}

func newTestResolver(store *fakeSettingStore, ttl time.Duration) *Resolver {
	return NewResolver(store, NewSettingCache(ttl), zerolog.Nop())
}

func TestResolver_DefaultsWhenNoStoredConfig(t *testing.T) {
	r := newTestResolver(&fakeSettingStore{}, time.Minute)

	cfg := r.Load(context.Background())

	assert.Equal(t, models.DefaultLearningConfig(), cfg)
}

func TestResolver_StoredFieldsOverlayDefaults(t *testing.T) {
	store := &fakeSettingStore{values: map[string]string{
		models.SettingLearningAdjustment: `{"learning_rate": 0.25, "tolerance": 0.05}`,
	}}
	r := newTestResolver(store, time.Minute)

	cfg := r.Load(context.Background())

	assert.Equal(t, 0.25, cfg.LearningRate)
	assert.Equal(t, 0.05, cfg.Tolerance)
	// Fields absent from the stored document keep their defaults.
	assert.Equal(t, models.DefaultLearningConfig().MaxConfidence, cfg.MaxConfidence)
	assert.Equal(t, models.DefaultLearningConfig().ReinforceMultiplier, cfg.ReinforceMultiplier)
}

func TestResolver_MalformedStoredConfigFallsBackToDefaults(t *testing.T) {
	store := &fakeSettingStore{values: map[string]string{
		models.SettingLearningAdjustment: `{"learning_rate": "not a number"`,
	}}
	r := newTestResolver(store, time.Minute)

	cfg := r.Load(context.Background())

	assert.Equal(t, models.DefaultLearningConfig(), cfg)
}

func TestResolver_CachesWithinTTL(t *testing.T) {
	store := &fakeSettingStore{}
	r := newTestResolver(store, time.Minute)
	ctx := context.Background()

	r.Load(ctx)
	r.Load(ctx)
	r.Load(ctx)

	assert.Equal(t, 1, store.gets, "store should be hit once within the TTL")
}

func TestResolver_InvalidateForcesReload(t *testing.T) {
	store := &fakeSettingStore{}
	r := newTestResolver(store, time.Minute)
	ctx := context.Background()

	first := r.Load(ctx)
	require.Equal(t, models.DefaultLearningConfig(), first)

	require.NoError(t, store.PutJSON(ctx, models.SettingLearningAdjustment,
		models.LearningConfig{LearningRate: 0.42}))

	// Still cached: the write is not visible yet.
	assert.Equal(t, models.DefaultLearningConfig().LearningRate, r.Load(ctx).LearningRate)

	r.Invalidate()

	assert.Equal(t, 0.42, r.Load(ctx).LearningRate)
}

func TestResolver_ExpiredEntryReloads(t *testing.T) {
	store := &fakeSettingStore{}
	r := newTestResolver(store, time.Nanosecond)
	ctx := context.Background()

	r.Load(ctx)
	time.Sleep(time.Millisecond)
	r.Load(ctx)

	assert.Equal(t, 2, store.gets)
}

func TestLearningOverrides_MergeOnlySetFields(t *testing.T) {
	base := models.DefaultLearningConfig()
	rate := 0.33

	merged := base.Merge(models.LearningOverrides{LearningRate: &rate})

	assert.Equal(t, 0.33, merged.LearningRate)
	assert.Equal(t, base.MinConfidence, merged.MinConfidence)
	assert.Equal(t, base.Tolerance, merged.Tolerance)
}
