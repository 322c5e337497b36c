package model

import "time"

// SyncStatus is the lifecycle state of one CRM sync run.
type SyncStatus string

const (
	SyncStatusRunning             SyncStatus = "running"
	SyncStatusCompleted           SyncStatus = "completed"
	SyncStatusCompletedWithErrors SyncStatus = "completed_with_errors"
	SyncStatusFailed              SyncStatus = "failed"
)

// SyncLog records one pull-sync run against a CrmConnection.
type SyncLog struct {
	ID              int64          `json:"id,omitempty"`
	TenantID        string         `json:"tenant_id"`
	CrmConnectionID string         `json:"crm_connection_id"`
	Status          SyncStatus     `json:"status"`
	StartedAt       time.Time      `json:"started_at"`
	CompletedAt     *time.Time     `json:"completed_at,omitempty"`
	DurationMs      int64          `json:"duration_ms"`
	Fetched         int            `json:"fetched"`
	Created         int            `json:"created"`
	Updated         int            `json:"updated"`
	Errors          []string       `json:"errors,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}
