package learning

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dialcraft/caliber/internal/db"
	"github.com/dialcraft/caliber/pkg/models"
)

// Epsilon is the minimum movement in both target and confidence required
// before a new version is written. Smaller drift is suppressed to avoid
// write amplification.
const Epsilon = 0.01

// DefaultBatchLimit bounds one invocation when no limit is given.
const DefaultBatchLimit = 100

// Options controls one loop invocation.
type Options struct {
	// InteractionID restricts the batch to a single interaction.
	InteractionID string
	// Limit bounds the batch size (default DefaultBatchLimit).
	Limit int
	// Overrides are merged on top of the resolved learning config.
	Overrides models.LearningOverrides
	// DryRun selects and previews the batch without computing or writing
	// anything.
	DryRun bool
	// Verbose logs every per-parameter decision at info level.
	Verbose bool
}

// PlannedReward is one preview entry of a dry run.
type PlannedReward struct {
	InteractionID string  `json:"interaction_id"`
	Parameters    int     `json:"parameters"`
	OutcomeScore  float64 `json:"outcome_score"`
}

// Result is the structured outcome of one loop invocation.
type Result struct {
	RunID string `json:"run_id"`
	// Processed counts rewards whose marker was set this run.
	Processed int `json:"processed"`
	// Updated counts target versions that superseded an existing one.
	Updated int `json:"updated"`
	// Created counts target versions written where none existed before.
	Created int `json:"created"`
	// Advisory counts computed recommendations at global or segment scope,
	// which are recorded but intentionally never applied.
	Advisory int `json:"advisory"`
	// Skipped counts parameters passed over: low-confidence priors,
	// sub-epsilon drift, or missing snapshot data. Kept separate from
	// Errors so the silent-skip policy stays observable.
	Skipped int `json:"skipped"`
	// Planned holds the dry-run preview; empty on real runs.
	Planned []PlannedReward `json:"planned,omitempty"`
	// Errors holds per-reward failures. Rewards listed here were left
	// unmarked and will be retried on the next invocation.
	Errors []string `json:"errors,omitempty"`
}

// Engine drives batch cycles of the learning loop.
type Engine struct {
	log      zerolog.Logger
	rewards  db.RewardStore
	targets  db.TargetStore
	resolver *Resolver
}

// NewEngine creates a new learning engine.
func NewEngine(rewards db.RewardStore, targets db.TargetStore, resolver *Resolver, log zerolog.Logger) *Engine {
	return &Engine{
		rewards:  rewards,
		targets:  targets,
		resolver: resolver,
		log:      log.With().Str("component", "learning-engine").Logger(),
	}
}

// Run executes one batch cycle: select unprocessed rewards, compute and
// apply per-parameter adjustments, mark each reward processed. Rewards are
// handled strictly sequentially; a failure in one reward is recorded and the
// batch continues. The invocation itself never fails: partial failure is
// communicated only through Result.Errors.
func (e *Engine) Run(ctx context.Context, opts Options) *Result {
	result := &Result{RunID: uuid.NewString()}

	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultBatchLimit
	}

	batch, err := e.rewards.SelectUnprocessed(ctx, opts.InteractionID, limit)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("select batch: %v", err))
		return result
	}

	if opts.DryRun {
		result.Planned = make([]PlannedReward, 0, len(batch))
		for _, reward := range batch {
			result.Planned = append(result.Planned, PlannedReward{
				InteractionID: reward.InteractionID,
				Parameters:    len(reward.ParameterDiffs),
				OutcomeScore:  reward.OutcomeScore,
			})
		}
		e.log.Info().
			Str("run_id", result.RunID).
			Int("batch_size", len(batch)).
			Msg("dry run, no adjustments applied")
		return result
	}

	cfg := e.resolver.Load(ctx).Merge(opts.Overrides)
	calc := NewCalculator(cfg)

	start := time.Now()
	for _, reward := range batch {
		if err := e.processReward(ctx, calc, reward, opts.Verbose, result); err != nil {
			result.Errors = append(result.Errors,
				fmt.Sprintf("interaction %s: %v", reward.InteractionID, err))
			e.log.Error().Err(err).
				Str("interaction_id", reward.InteractionID).
				Msg("reward left unprocessed, will retry next run")
		}
	}

	e.log.Info().
		Str("run_id", result.RunID).
		Int("batch_size", len(batch)).
		Int("processed", result.Processed).
		Int("updated", result.Updated).
		Int("created", result.Created).
		Int("advisory", result.Advisory).
		Int("skipped", result.Skipped).
		Int("errors", len(result.Errors)).
		Dur("elapsed", time.Since(start)).
		Msg("learning batch complete")

	return result
}

// processReward applies one reward record: compute an adjustment per
// parameter, write individual-scope versions, then set the marker. The
// marker is written only after every target write for the reward succeeded,
// so a crash mid-reward leaves it selectable for retry. Panics from
// malformed snapshot data are recovered into the returned error.
func (e *Engine) processReward(ctx context.Context, calc *Calculator, reward *models.RewardRecord, verbose bool, result *Result) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while processing reward: %v", r)
		}
	}()

	// Defensive re-check of the selection predicate: a record that lost its
	// maps between selection and processing is skipped, not errored.
	if !reward.Learnable() {
		result.Skipped++
		e.log.Debug().
			Str("interaction_id", reward.InteractionID).
			Msg("reward not learnable yet, skipping")
		return nil
	}

	cfg := calc.Config()
	adjustments := make([]models.AppliedAdjustment, 0, len(reward.ParameterDiffs))

	// Sorted for a deterministic audit trail.
	parameterIDs := make([]string, 0, len(reward.ParameterDiffs))
	for parameterID := range reward.ParameterDiffs {
		parameterIDs = append(parameterIDs, parameterID)
	}
	sort.Strings(parameterIDs)

	for _, parameterID := range parameterIDs {
		diff := reward.ParameterDiffs[parameterID]

		snap, ok := reward.TargetSnapshots[parameterID]
		if !ok {
			result.Skipped++
			e.log.Debug().
				Str("interaction_id", reward.InteractionID).
				Str("parameter", parameterID).
				Msg("no target snapshot for parameter, skipping")
			continue
		}

		// A noisy prior is not worth acting on.
		if snap.Confidence < cfg.MinConfidence {
			result.Skipped++
			e.log.Debug().
				Str("interaction_id", reward.InteractionID).
				Str("parameter", parameterID).
				Float64("confidence", snap.Confidence).
				Float64("min_confidence", cfg.MinConfidence).
				Msg("prior confidence below floor, skipping")
			continue
		}

		adj := calc.Compute(snap.Value, diff.Actual, reward.OutcomeScore, snap.Confidence)

		// Negligible drift in both dimensions is not worth a new version.
		if math.Abs(adj.NewTarget-snap.Value) < Epsilon &&
			math.Abs(adj.NewConfidence-snap.Confidence) < Epsilon {
			result.Skipped++
			continue
		}

		entry := models.AppliedAdjustment{
			ParameterID:   parameterID,
			Scope:         snap.Scope,
			Reason:        adj.Reason,
			OldTarget:     snap.Value,
			NewTarget:     adj.NewTarget,
			OldConfidence: snap.Confidence,
			NewConfidence: adj.NewConfidence,
		}

		// Only individual-scope targets are ever written by the loop. A
		// single interaction must not move shared or global policy, so
		// global and segment results stay advisory.
		if snap.Scope == models.ScopeIndividual && reward.CallerID != "" {
			if err := e.applyIndividual(ctx, reward, parameterID, adj, &entry, result); err != nil {
				return err
			}
		} else {
			result.Advisory++
		}

		if verbose {
			e.log.Info().
				Str("interaction_id", reward.InteractionID).
				Str("parameter", parameterID).
				Str("scope", string(entry.Scope)).
				Bool("applied", entry.Applied).
				Str("reason", entry.Reason).
				Float64("old_target", entry.OldTarget).
				Float64("new_target", entry.NewTarget).
				Msg("adjustment computed")
		}

		adjustments = append(adjustments, entry)
	}

	// Idempotency boundary: once the marker is set, this reward can never
	// be selected again, even with an empty adjustment list.
	if err := e.rewards.MarkProcessed(ctx, reward.ID, adjustments); err != nil {
		if errors.Is(err, db.ErrAlreadyProcessed) {
			// A concurrent invocation won the marker. The target writes
			// above are CAS-guarded, so nothing was double-applied.
			e.log.Warn().
				Str("interaction_id", reward.InteractionID).
				Msg("reward marked by concurrent run")
			return nil
		}
		return err
	}

	result.Processed++
	return nil
}

// applyIndividual writes one individual-scope adjustment through the target
// store: supersede the active version when one exists, otherwise create the
// first learned version for this caller.
func (e *Engine) applyIndividual(ctx context.Context, reward *models.RewardRecord, parameterID string, adj Adjustment, entry *models.AppliedAdjustment, result *Result) error {
	now := time.Now().UnixMilli()
	next := &models.BehaviorTarget{
		ParameterID:        parameterID,
		Scope:              models.ScopeIndividual,
		ScopeKey:           reward.CallerID,
		Source:             models.SourceLearned,
		TargetValue:        adj.NewTarget,
		Confidence:         adj.NewConfidence,
		LastLearnedAtEpoch: &now,
	}

	current, err := e.targets.FindActive(ctx, parameterID, models.ScopeIndividual, reward.CallerID)
	switch {
	case err == nil:
		next.ObservationCount = current.ObservationCount + 1
		created, err := e.targets.SupersedeAndCreate(ctx, current.ID, next)
		if err != nil {
			return fmt.Errorf("supersede %s for caller %s: %w", parameterID, reward.CallerID, err)
		}
		entry.Applied = true
		entry.ScopeKey = reward.CallerID
		entry.TargetID = created.ID
		result.Updated++

	case errors.Is(err, db.ErrNotFound):
		next.ObservationCount = 1
		created, err := e.targets.CreateVersion(ctx, next)
		if err != nil {
			return fmt.Errorf("create %s for caller %s: %w", parameterID, reward.CallerID, err)
		}
		entry.Applied = true
		entry.ScopeKey = reward.CallerID
		entry.TargetID = created.ID
		result.Created++

	default:
		return fmt.Errorf("find active %s for caller %s: %w", parameterID, reward.CallerID, err)
	}

	return nil
}
