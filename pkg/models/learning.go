package models

// LearningConfig contains the tunable hyperparameters of the adjustment
// calculator. The stored entry under SettingLearningAdjustment overrides
// these defaults field-by-field; per-invocation overrides sit on top.
type LearningConfig struct {
	// Tolerance is the maximum |actual - target| still counted as a hit.
	Tolerance float64 `json:"tolerance"`

	// LearningRate is the global step-size multiplier applied to every
	// target and confidence movement.
	LearningRate float64 `json:"learning_rate"`

	// MinConfidence and MaxConfidence clamp every confidence the loop
	// produces. MinConfidence is also the floor below which a recorded
	// confidence is considered too noisy to act on.
	MinConfidence float64 `json:"min_confidence"`
	MaxConfidence float64 `json:"max_confidence"`

	// ReinforceMultiplier scales the confidence gain when a good outcome
	// hit the target.
	ReinforceMultiplier float64 `json:"reinforce_multiplier"`

	// GoodMissedMultiplier scales the confidence gain when a good outcome
	// missed the target. We still learned something, just less.
	GoodMissedMultiplier float64 `json:"good_missed_multiplier"`

	// BadHitMultiplier scales both the counter-nudge and the confidence
	// drop when a bad outcome hit the target. The target itself may be
	// wrong even though it was met.
	BadHitMultiplier float64 `json:"bad_hit_multiplier"`

	// BadMissedMultiplier scales how far the target moves away from the
	// observed actual when a bad outcome missed the target.
	BadMissedMultiplier float64 `json:"bad_missed_multiplier"`

	// BadMissedConfidenceDrop scales the confidence drop for the
	// bad-and-missed case, independent of the target movement.
	BadMissedConfidenceDrop float64 `json:"bad_missed_confidence_drop"`
}

// SettingLearningAdjustment is the settings-store key holding the stored
// LearningConfig as a JSON document.
const SettingLearningAdjustment = "learning.adjustment"

// DefaultLearningConfig returns the hardcoded fallback configuration.
func DefaultLearningConfig() LearningConfig {
	return LearningConfig{
		Tolerance:               0.15, // within 15% of target counts as a hit
		LearningRate:            0.10,
		MinConfidence:           0.10,
		MaxConfidence:           0.95,
		ReinforceMultiplier:     0.50,
		GoodMissedMultiplier:    0.20,
		BadHitMultiplier:        0.30,
		BadMissedMultiplier:     0.50,
		BadMissedConfidenceDrop: 0.30,
	}
}

// LearningOverrides carries per-invocation caller overrides. Only fields
// that are explicitly set override the resolved configuration; nil fields
// leave it untouched.
type LearningOverrides struct {
	LearningRate  *float64 `json:"learning_rate,omitempty"`
	MinConfidence *float64 `json:"min_confidence,omitempty"`
	Tolerance     *float64 `json:"tolerance,omitempty"`
}

// Merge returns a copy of the config with the overrides applied on top.
func (c LearningConfig) Merge(o LearningOverrides) LearningConfig {
	merged := c
	if o.LearningRate != nil {
		merged.LearningRate = *o.LearningRate
	}
	if o.MinConfidence != nil {
		merged.MinConfidence = *o.MinConfidence
	}
	if o.Tolerance != nil {
		merged.Tolerance = *o.Tolerance
	}
	return merged
}
