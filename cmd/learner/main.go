// Package main provides the caliber batch learner: one bounded cycle of the
// adaptive behavior target learning loop, runnable by hand or on a schedule.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm/logger"

	"github.com/dialcraft/caliber/internal/config"
	gormdb "github.com/dialcraft/caliber/internal/db/gorm"
	"github.com/dialcraft/caliber/internal/learning"
	"github.com/dialcraft/caliber/pkg/models"
)

var Version = "dev"

func main() {
	var (
		interactionID = flag.String("interaction", "", "process only this interaction id")
		limit         = flag.Int("limit", learning.DefaultBatchLimit, "maximum rewards per batch")
		rate          = flag.Float64("rate", -1, "learning rate override (0-1)")
		minConfidence = flag.Float64("min-confidence", -1, "minimum prior confidence override (0-1)")
		dryRun        = flag.Bool("dry-run", false, "select and preview only, apply nothing")
		verbose       = flag.Bool("verbose", false, "log every per-parameter decision")
		seedFile      = flag.String("seed", "", "seed global default targets from a JSON file and exit")
	)
	flag.Parse()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if cfg.Debug || *verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	store, err := gormdb.NewStore(gormdb.Config{
		DSN:      cfg.DatabaseDSN,
		MaxConns: cfg.MaxConns,
		LogLevel: logger.Silent,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open store")
	}
	defer store.Close()

	targets := gormdb.NewTargetStore(store)
	ctx := context.Background()

	if *seedFile != "" {
		created, err := seedTargets(ctx, targets, *seedFile)
		if err != nil {
			log.Fatal().Err(err).Str("file", *seedFile).Msg("Seeding failed")
		}
		log.Info().Int("created", created).Msg("Seeded default targets")
		return
	}

	rewards := gormdb.NewRewardStore(store)
	settings := gormdb.NewSettingStore(store)
	resolver := learning.NewResolver(settings, learning.NewSettingCache(cfg.ConfigTTL), log.Logger)
	engine := learning.NewEngine(rewards, targets, resolver, log.Logger)

	overrides := models.LearningOverrides{}
	if *rate >= 0 {
		overrides.LearningRate = rate
	}
	if *minConfidence >= 0 {
		overrides.MinConfidence = minConfidence
	}

	result := engine.Run(ctx, learning.Options{
		InteractionID: *interactionID,
		Limit:         *limit,
		Overrides:     overrides,
		DryRun:        *dryRun,
		Verbose:       *verbose,
	})

	out, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(out))

	if len(result.Errors) > 0 {
		os.Exit(1)
	}
}

// seedTargets loads a {"parameter_id": value} JSON document and creates
// global-scope default versions for parameters that have none yet.
func seedTargets(ctx context.Context, targets *gormdb.TargetStore, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}

	var values map[string]float64
	if err := json.Unmarshal(data, &values); err != nil {
		return 0, fmt.Errorf("parse seed file: %w", err)
	}

	// Seeded defaults start at the confidence floor: they are starting
	// points, not learned beliefs.
	return targets.SeedDefaults(ctx, values, models.DefaultLearningConfig().MinConfidence)
}
