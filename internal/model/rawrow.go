package model

import "time"

// RawRow is one parsed CSV data row, immutable except for its back-pointers.
type RawRow struct {
	ID                string            `json:"id"`
	BatchID           string            `json:"batch_id"`
	RowNumber         int               `json:"row_number"`
	RawData           map[string]string `json:"raw_data"`
	IsValid           bool              `json:"is_valid"`
	ValidationErrors  []string          `json:"validation_errors,omitempty"`
	IsDuplicate       bool              `json:"is_duplicate"`
	DuplicateOf       *string           `json:"duplicate_of,omitempty"`
	CanonicalLeadID   *string           `json:"canonical_lead_id,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
}
