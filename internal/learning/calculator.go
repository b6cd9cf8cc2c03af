// Package learning implements the adaptive behavior target learning loop:
// resolving the learning configuration, computing per-parameter adjustments
// from reward outcomes, and orchestrating batch runs over unprocessed
// reward records.
package learning

import (
	"fmt"
	"math"

	"github.com/dialcraft/caliber/pkg/models"
)

// Quadrant classifies one adjustment by outcome valence and target hit.
type Quadrant string

const (
	// QuadrantReinforce is a good outcome that hit the target.
	QuadrantReinforce Quadrant = "reinforce"
	// QuadrantGoodMissed is a good outcome that missed the target.
	QuadrantGoodMissed Quadrant = "good_missed"
	// QuadrantBadHit is a bad outcome even though the target was hit.
	QuadrantBadHit Quadrant = "bad_hit"
	// QuadrantBadMissed is a bad outcome that also missed the target.
	QuadrantBadMissed Quadrant = "bad_missed"
)

// Adjustment is the result of one calculator invocation.
type Adjustment struct {
	Quadrant      Quadrant `json:"quadrant"`
	Reason        string   `json:"reason"`
	NewTarget     float64  `json:"new_target"`
	NewConfidence float64  `json:"new_confidence"`
	Diff          float64  `json:"diff"`
}

// Calculator computes target adjustments from observed outcomes. Pure and
// deterministic; all persistence lives elsewhere.
type Calculator struct {
	config models.LearningConfig
}

// NewCalculator creates a calculator with the given configuration.
func NewCalculator(config models.LearningConfig) *Calculator {
	return &Calculator{config: config}
}

// Compute applies the four-quadrant rule to one (target, actual, outcome,
// confidence) observation.
//
// The quadrant is keyed by:
//
//	hit  = |actual - target| <= tolerance
//	good = outcomeScore > 0 (zero is neutral and takes the not-good path)
//
// Movements per quadrant:
//   - reinforce:   target unchanged, confidence += rate * reinforce
//   - good_missed: target += diff * rate * (1 - confidence), confidence += rate * goodMissed
//   - bad_hit:     target -= diff * rate * badHit, confidence -= rate * badHit
//   - bad_missed:  target -= diff * rate * badMissed, confidence -= rate * badMissedDrop
//
// Targets are clamped to [0,1], confidence to [minConfidence, maxConfidence],
// and every returned numeric field is rounded to two decimals.
func (c *Calculator) Compute(target, actual, outcomeScore, confidence float64) Adjustment {
	cfg := c.config
	diff := actual - target
	hit := math.Abs(diff) <= cfg.Tolerance
	good := outcomeScore > 0

	var (
		quadrant      Quadrant
		newTarget     float64
		newConfidence float64
	)

	switch {
	case good && hit:
		quadrant = QuadrantReinforce
		newTarget = target
		newConfidence = confidence + cfg.LearningRate*cfg.ReinforceMultiplier

	case good && !hit:
		// The less confident the current belief, the larger the correction
		// toward the observed actual.
		quadrant = QuadrantGoodMissed
		strength := cfg.LearningRate * (1 - confidence)
		newTarget = target + diff*strength
		newConfidence = confidence + cfg.LearningRate*cfg.GoodMissedMultiplier

	case !good && hit:
		// The target was met and the call still went badly: the target
		// itself may be wrong. Nudge opposite the observed diff.
		quadrant = QuadrantBadHit
		newTarget = target - diff*cfg.LearningRate*cfg.BadHitMultiplier
		newConfidence = confidence - cfg.LearningRate*cfg.BadHitMultiplier

	default:
		quadrant = QuadrantBadMissed
		newTarget = target - diff*cfg.LearningRate*cfg.BadMissedMultiplier
		newConfidence = confidence - cfg.LearningRate*cfg.BadMissedConfidenceDrop
	}

	newTarget = round2(clamp(newTarget, 0, 1))
	newConfidence = round2(clamp(newConfidence, cfg.MinConfidence, cfg.MaxConfidence))
	diff = round2(diff)

	return Adjustment{
		Quadrant:      quadrant,
		Diff:          diff,
		NewTarget:     newTarget,
		NewConfidence: newConfidence,
		Reason:        fmt.Sprintf("%s: diff=%.2f", quadrant, diff),
	}
}

// Config returns the calculator's configuration.
func (c *Calculator) Config() models.LearningConfig {
	return c.config
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
