// Package models contains domain models for caliber.
package models

import (
	"fmt"
	"strings"
)

// Scope represents the granularity of a behavior target.
type Scope string

const (
	// ScopeGlobal is one value for the whole system.
	ScopeGlobal Scope = "global"
	// ScopeSegment is one value per caller cohort.
	ScopeSegment Scope = "segment"
	// ScopeIndividual is one value per specific caller.
	ScopeIndividual Scope = "individual"
)

// ValidScopes contains all valid scope values.
var ValidScopes = []Scope{ScopeGlobal, ScopeSegment, ScopeIndividual}

// IsValid checks if the scope is a known value.
func (s Scope) IsValid() bool {
	switch s {
	case ScopeGlobal, ScopeSegment, ScopeIndividual:
		return true
	}
	return false
}

// ParseScope converts a string to a Scope, case-insensitively.
func ParseScope(s string) (Scope, error) {
	scope := Scope(strings.ToLower(strings.TrimSpace(s)))
	if !scope.IsValid() {
		return "", fmt.Errorf("unknown scope %q", s)
	}
	return scope, nil
}

// TargetSource represents how a behavior target version came to exist.
type TargetSource string

const (
	// SourceDefault marks targets seeded from the default catalog.
	SourceDefault TargetSource = "default"
	// SourceLearned marks targets written by the learning loop.
	SourceLearned TargetSource = "learned"
	// SourceImported marks targets imported from an external system.
	SourceImported TargetSource = "imported"
)

// BehaviorTarget is one version of the desired value for a behavioral
// parameter at a given scope. Versions form an append-only supersession
// chain: the active version has a null EffectiveUntilEpoch, superseded
// versions carry the timestamp at which they stopped being current and a
// back-reference to their replacement. Rows are never deleted.
type BehaviorTarget struct {
	ParameterID        string       `db:"parameter_id" json:"parameter_id"`
	Scope              Scope        `db:"scope" json:"scope"`
	ScopeKey           string       `db:"scope_key" json:"scope_key,omitempty"`
	Source             TargetSource `db:"source" json:"source"`
	CreatedAt          string       `db:"created_at" json:"created_at"`
	ID                 int64        `db:"id" json:"id"`
	TargetValue        float64      `db:"target_value" json:"target_value"`
	Confidence         float64      `db:"confidence" json:"confidence"`
	ObservationCount   int          `db:"observation_count" json:"observation_count"`
	LastLearnedAtEpoch *int64       `db:"last_learned_at_epoch" json:"last_learned_at_epoch,omitempty"`
	EffectiveUntil     *int64       `db:"effective_until_epoch" json:"effective_until_epoch,omitempty"`
	SupersededByID     *int64       `db:"superseded_by_id" json:"superseded_by_id,omitempty"`
	CreatedAtEpoch     int64        `db:"created_at_epoch" json:"created_at_epoch"`
}

// Active reports whether this version is the currently effective one.
func (t *BehaviorTarget) Active() bool {
	return t.EffectiveUntil == nil
}

// TargetSnapshot captures which target version was in effect for one
// parameter when an interaction ran. Stored on the reward record by the
// upstream reward stage.
type TargetSnapshot struct {
	Scope      Scope   `json:"scope"`
	Value      float64 `json:"value"`
	Confidence float64 `json:"confidence"`
}

// ParameterDiff captures the target-vs-actual comparison for one parameter
// of one scored interaction.
type ParameterDiff struct {
	Target          float64 `json:"target"`
	Actual          float64 `json:"actual"`
	WithinTolerance bool    `json:"within_tolerance"`
}

// AppliedAdjustment is one per-parameter entry of the audit trail recorded
// onto a reward record once the loop has processed it. Applied is false for
// advisory recommendations at global or segment scope, which are computed
// but intentionally never written.
type AppliedAdjustment struct {
	ParameterID   string  `json:"parameter_id"`
	Scope         Scope   `json:"scope"`
	ScopeKey      string  `json:"scope_key,omitempty"`
	Reason        string  `json:"reason"`
	OldTarget     float64 `json:"old_target"`
	NewTarget     float64 `json:"new_target"`
	OldConfidence float64 `json:"old_confidence"`
	NewConfidence float64 `json:"new_confidence"`
	TargetID      int64   `json:"target_id,omitempty"`
	Applied       bool    `json:"applied"`
}
