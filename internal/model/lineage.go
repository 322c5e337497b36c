package model

import "time"

// LineageOperation names the transformation a LineageEntry records.
type LineageOperation string

const (
	LineageOpCreate LineageOperation = "create"
	LineageOpUpdate LineageOperation = "update"
	LineageOpMerge  LineageOperation = "merge"
	LineageOpSplit  LineageOperation = "split"
	LineageOpDerive LineageOperation = "derive"
)

// LineageEntry is an append-only audit row describing how one row
// produced or mutated another: (source_table, source_id) -> (target_table,
// target_id).
type LineageEntry struct {
	ID                 int64            `json:"id,omitempty"`
	TenantID           string           `json:"tenant_id"`
	SourceTable        string           `json:"source_table"`
	SourceID           string           `json:"source_id"`
	TargetTable        string           `json:"target_table"`
	TargetID           string           `json:"target_id"`
	Operation          LineageOperation `json:"operation"`
	TransformationType string           `json:"transformation_type,omitempty"`
	PerformedBy        string           `json:"performed_by,omitempty"`
	Details            map[string]any   `json:"details,omitempty"`
	CreatedAt          time.Time        `json:"created_at"`
}
