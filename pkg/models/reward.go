package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// RewardRecord is the outcome signal for one completed interaction, produced
// by the upstream reward-computation stage. The learning loop reads these
// and writes back exactly one field: the UpdatesApplied marker, set once
// when the record has been processed.
type RewardRecord struct {
	InteractionID        string             `db:"interaction_id" json:"interaction_id"`
	CallerID             string             `db:"caller_id" json:"caller_id,omitempty"`
	SegmentKey           string             `db:"segment_key" json:"segment_key,omitempty"`
	CreatedAt            string             `db:"created_at" json:"created_at"`
	ParameterDiffs       JSONDiffMap        `db:"parameter_diffs" json:"parameter_diffs,omitempty"`
	TargetSnapshots      JSONSnapshotMap    `db:"target_snapshots" json:"target_snapshots,omitempty"`
	UpdatesApplied       JSONAdjustmentList `db:"updates_applied" json:"updates_applied,omitempty"`
	ID                   int64              `db:"id" json:"id"`
	OutcomeScore         float64            `db:"outcome_score" json:"outcome_score"`
	UpdatesAppliedEpoch  *int64             `db:"updates_applied_at_epoch" json:"updates_applied_at_epoch,omitempty"`
	CreatedAtEpoch       int64              `db:"created_at_epoch" json:"created_at_epoch"`
}

// Processed reports whether the learning loop has already applied this
// reward. Once true, the record is permanently excluded from selection.
func (r *RewardRecord) Processed() bool {
	return r.UpdatesAppliedEpoch != nil
}

// Learnable reports whether the record carries both maps the loop needs.
// Records missing either are not yet learnable and are skipped, not errored.
func (r *RewardRecord) Learnable() bool {
	return len(r.ParameterDiffs) > 0 && len(r.TargetSnapshots) > 0
}

// JSONDiffMap is a custom type for storing parameter diff maps as JSON text.
type JSONDiffMap map[string]ParameterDiff

// Scan implements sql.Scanner for JSONDiffMap.
func (j *JSONDiffMap) Scan(src interface{}) error {
	return scanJSON(j, src, "JSONDiffMap")
}

// Value implements driver.Valuer for JSONDiffMap.
func (j JSONDiffMap) Value() (driver.Value, error) {
	if len(j) == 0 {
		return nil, nil
	}
	return json.Marshal(j)
}

// JSONSnapshotMap is a custom type for storing target snapshot maps as JSON text.
type JSONSnapshotMap map[string]TargetSnapshot

// Scan implements sql.Scanner for JSONSnapshotMap.
func (j *JSONSnapshotMap) Scan(src interface{}) error {
	return scanJSON(j, src, "JSONSnapshotMap")
}

// Value implements driver.Valuer for JSONSnapshotMap.
func (j JSONSnapshotMap) Value() (driver.Value, error) {
	if len(j) == 0 {
		return nil, nil
	}
	return json.Marshal(j)
}

// JSONAdjustmentList is a custom type for storing adjustment audit lists as
// JSON text. An empty (nil) value is stored as SQL NULL, which doubles as
// the "not yet processed" state together with the applied-at timestamp.
type JSONAdjustmentList []AppliedAdjustment

// Scan implements sql.Scanner for JSONAdjustmentList.
func (j *JSONAdjustmentList) Scan(src interface{}) error {
	return scanJSON(j, src, "JSONAdjustmentList")
}

// Value implements driver.Valuer for JSONAdjustmentList.
func (j JSONAdjustmentList) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// scanJSON decodes a JSON column value into dst, tolerating NULL and both
// string and byte representations across drivers.
func scanJSON(dst interface{}, src interface{}, typeName string) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		if len(v) == 0 {
			return nil
		}
		return json.Unmarshal(v, dst)
	case string:
		if v == "" {
			return nil
		}
		return json.Unmarshal([]byte(v), dst)
	default:
		return fmt.Errorf("%s: unsupported type %T", typeName, src)
	}
}
