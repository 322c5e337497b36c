package model

import "time"

// EmbeddingTaskStatus is the lifecycle state of a queued embedding task.
type EmbeddingTaskStatus string

const (
	EmbeddingTaskPending    EmbeddingTaskStatus = "pending"
	EmbeddingTaskProcessing EmbeddingTaskStatus = "processing"
	EmbeddingTaskCompleted  EmbeddingTaskStatus = "completed"
	EmbeddingTaskFailed     EmbeddingTaskStatus = "failed"
)

// EmbeddingTask is a work item requesting a vector embedding for one
// target row. Unique on (table_name, record_id); re-enqueuing an
// already-pending task is a no-op, re-enqueuing a completed one resets it.
type EmbeddingTask struct {
	ID            string              `json:"id"`
	TenantID      string              `json:"tenant_id"`
	TableName     string              `json:"table_name"`
	RecordID      string              `json:"record_id"`
	TextToEmbed   string              `json:"text_to_embed"`
	Status        EmbeddingTaskStatus `json:"status"`
	Attempts      int                 `json:"attempts"`
	LastError     string              `json:"last_error,omitempty"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
}
