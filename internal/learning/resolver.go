package learning

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/dialcraft/caliber/internal/db"
	"github.com/dialcraft/caliber/pkg/models"
)

// DefaultConfigTTL is how long a resolved learning config is served from
// cache before the settings store is consulted again.
const DefaultConfigTTL = 1 * time.Minute

// SettingCache is a small key -> (value, expiry) cache in front of the
// settings store. It is owned by the resolver and passed in explicitly at
// construction; there is no package-level state.
type SettingCache struct {
	entries map[string]cacheEntry
	ttl     time.Duration
	mu      sync.Mutex
}

type cacheEntry struct {
	value   models.LearningConfig
	expires time.Time
}

// NewSettingCache creates a cache with the given TTL. A non-positive TTL
// falls back to DefaultConfigTTL.
func NewSettingCache(ttl time.Duration) *SettingCache {
	if ttl <= 0 {
		ttl = DefaultConfigTTL
	}
	return &SettingCache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
	}
}

func (c *SettingCache) get(key string) (models.LearningConfig, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok || time.Now().After(entry.expires) {
		return models.LearningConfig{}, false
	}
	return entry.value, true
}

func (c *SettingCache) put(key string, value models.LearningConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = cacheEntry{value: value, expires: time.Now().Add(c.ttl)}
}

// Invalidate drops all cached entries. Call after writing the stored config
// so the next Load observes the change immediately.
func (c *SettingCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]cacheEntry)
}

// Resolver loads the learning configuration from the settings store with
// hardcoded fallback defaults. It never fails: an absent or malformed
// stored entry is logged and the defaults are used.
type Resolver struct {
	log      zerolog.Logger
	settings db.SettingStore
	cache    *SettingCache
}

// NewResolver creates a resolver over the given settings store and cache.
func NewResolver(settings db.SettingStore, cache *SettingCache, log zerolog.Logger) *Resolver {
	if cache == nil {
		cache = NewSettingCache(DefaultConfigTTL)
	}
	return &Resolver{
		settings: settings,
		cache:    cache,
		log:      log.With().Str("component", "config-resolver").Logger(),
	}
}

// Load resolves the effective learning configuration: hardcoded defaults,
// overlaid with whatever fields the stored entry supplies. Fields absent
// from the stored document keep their default values.
func (r *Resolver) Load(ctx context.Context) models.LearningConfig {
	if cached, ok := r.cache.get(models.SettingLearningAdjustment); ok {
		return cached
	}

	cfg := models.DefaultLearningConfig()

	found, err := r.settings.GetJSON(ctx, models.SettingLearningAdjustment, &cfg)
	if err != nil {
		r.log.Warn().Err(err).
			Str("key", models.SettingLearningAdjustment).
			Msg("stored learning config unusable, using defaults")
		cfg = models.DefaultLearningConfig()
	} else if !found {
		r.log.Debug().
			Str("key", models.SettingLearningAdjustment).
			Msg("no stored learning config, using defaults")
	}

	r.cache.put(models.SettingLearningAdjustment, cfg)
	return cfg
}

// Invalidate clears the resolver's cache.
func (r *Resolver) Invalidate() {
	r.cache.Invalidate()
}
