package model

import "time"

// BatchStatus is the lifecycle state of a received CSV file.
type BatchStatus string

const (
	BatchStatusPending     BatchStatus = "pending"
	BatchStatusProcessing  BatchStatus = "processing"
	BatchStatusParsed      BatchStatus = "parsed"
	BatchStatusTransforming BatchStatus = "transforming"
	BatchStatusCompleted   BatchStatus = "completed"
	BatchStatusFailed      BatchStatus = "failed"
	BatchStatusPartial     BatchStatus = "partial"
)

// BatchCounters tracks row-level progress through staging and parsing.
type BatchCounters struct {
	Total     int `json:"total"`
	Parsed    int `json:"parsed"`
	Valid     int `json:"valid"`
	Duplicate int `json:"duplicate"`
	Error     int `json:"error"`
}

// BatchLogEntry is one append-only note on a batch's history.
type BatchLogEntry struct {
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail,omitempty"`
	At        time.Time      `json:"at"`
}

// Batch represents one received CSV file and its processing state.
type Batch struct {
	ID           string          `json:"id"`
	TenantID     string          `json:"tenant_id"`
	LeadSourceID string          `json:"lead_source_id"`
	FileRef      string          `json:"file_ref"`
	FileHash     string          `json:"file_hash"`
	ReceivedAt   time.Time       `json:"received_at"`
	Status       BatchStatus     `json:"status"`
	Counters     BatchCounters   `json:"counters"`
	Log          []BatchLogEntry `json:"log,omitempty"`
	Errors       []string        `json:"errors,omitempty"`
	// Origin carries sender metadata: {channel, from_address} for
	// email-originated batches, {uploaded_by} for API uploads.
	Origin    map[string]any `json:"origin,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}
