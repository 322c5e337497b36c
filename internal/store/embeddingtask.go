package store

import (
	"context"

	"github.com/pgvector/pgvector-go"
	"github.com/rotisserie/eris"

	"github.com/leadpipeline/leadpipe/internal/model"
)

// EnqueueEmbeddingTask upserts a work item on (table_name, record_id).
// Re-enqueuing an already-pending task is a no-op; re-enqueuing a
// completed or failed one resets it to pending with the fresh text and
// zeroed attempts.
func (s *PostgresStore) EnqueueEmbeddingTask(ctx context.Context, t *model.EmbeddingTask) error {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO embedding_tasks (tenant_id, table_name, record_id, text_to_embed, status)
		VALUES ($1,$2,$3,$4,'pending')
		ON CONFLICT (table_name, record_id) DO UPDATE SET
			text_to_embed = EXCLUDED.text_to_embed,
			status = CASE WHEN embedding_tasks.status = 'pending' THEN embedding_tasks.status ELSE 'pending' END,
			attempts = CASE WHEN embedding_tasks.status = 'pending' THEN embedding_tasks.attempts ELSE 0 END,
			last_error = CASE WHEN embedding_tasks.status = 'pending' THEN embedding_tasks.last_error ELSE NULL END,
			updated_at = now()
		RETURNING id, status, attempts, created_at, updated_at`,
		t.TenantID, t.TableName, t.RecordID, t.TextToEmbed)
	if err := row.Scan(&t.ID, &t.Status, &t.Attempts, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return eris.Wrap(err, "store: enqueue embedding task")
	}
	return nil
}

// ClaimEmbeddingTasks atomically moves up to limit pending, retryable
// tasks to processing and returns them.
func (s *PostgresStore) ClaimEmbeddingTasks(ctx context.Context, limit, maxAttempts int) ([]*model.EmbeddingTask, error) {
	rows, err := s.pool.Query(ctx, `
		UPDATE embedding_tasks SET status = 'processing', updated_at = now()
		WHERE id IN (
			SELECT id FROM embedding_tasks
			WHERE status = 'pending' AND attempts < $2
			ORDER BY created_at
			FOR UPDATE SKIP LOCKED
			LIMIT $1
		)
		RETURNING id, tenant_id, table_name, record_id, text_to_embed, status, attempts, last_error, created_at, updated_at`,
		limit, maxAttempts)
	if err != nil {
		return nil, eris.Wrap(err, "store: claim embedding tasks")
	}
	defer rows.Close()

	var out []*model.EmbeddingTask
	for rows.Next() {
		t := &model.EmbeddingTask{}
		var lastErr *string
		if err := rows.Scan(&t.ID, &t.TenantID, &t.TableName, &t.RecordID, &t.TextToEmbed, &t.Status,
			&t.Attempts, &lastErr, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "store: scan claimed embedding task")
		}
		if lastErr != nil {
			t.LastError = *lastErr
		}
		out = append(out, t)
	}
	return out, eris.Wrap(rows.Err(), "store: iterate claimed embedding tasks")
}

// CompleteEmbeddingTask marks a claimed task completed.
func (s *PostgresStore) CompleteEmbeddingTask(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE embedding_tasks SET status = 'completed', updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return eris.Wrap(err, "store: complete embedding task")
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("store: embedding task %s not found", id)
	}
	return nil
}

// RetryEmbeddingTask reverts a claimed task to pending and records the
// failure, or leaves it failed permanently once attempts reaches
// maxAttempts.
func (s *PostgresStore) RetryEmbeddingTask(ctx context.Context, id, lastError string, maxAttempts int) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE embedding_tasks SET
			attempts = attempts + 1,
			last_error = $1,
			status = CASE WHEN attempts + 1 >= $2 THEN 'failed' ELSE 'pending' END,
			updated_at = now()
		WHERE id = $3`, lastError, maxAttempts, id)
	if err != nil {
		return eris.Wrap(err, "store: retry embedding task")
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("store: embedding task %s not found", id)
	}
	return nil
}

// EmbeddingTaskStats reports the current pending and failed task counts.
type EmbeddingTaskStats struct {
	Pending int64
	Failed  int64
}

// GetEmbeddingTaskStats reports the pool's current pending/failed
// counts, for the worker to expose after each run.
func (s *PostgresStore) GetEmbeddingTaskStats(ctx context.Context) (EmbeddingTaskStats, error) {
	var stats EmbeddingTaskStats
	err := s.pool.QueryRow(ctx, `
		SELECT
			count(*) FILTER (WHERE status = 'pending'),
			count(*) FILTER (WHERE status = 'failed')
		FROM embedding_tasks`).Scan(&stats.Pending, &stats.Failed)
	return stats, eris.Wrap(err, "store: embedding task stats")
}

// embeddingTargetTables whitelists which tables SetEmbeddingTarget may
// write to; table_name is data, never interpolated as identifier SQL
// beyond this fixed mapping.
var embeddingTargetTables = map[string]string{
	"canonical_leads": "canonical_leads",
	"crm_leads":       "crm_leads",
}

// SetEmbeddingTarget writes a computed vector onto the owning row named
// by an EmbeddingTask's (table_name, record_id).
func (s *PostgresStore) SetEmbeddingTarget(ctx context.Context, tableName, recordID string, embedding []float32, text string) error {
	table, ok := embeddingTargetTables[tableName]
	if !ok {
		return eris.Errorf("store: unknown embedding target table %q", tableName)
	}
	tag, err := s.pool.Exec(ctx, `UPDATE `+table+` SET embedding = $1, embedding_text = $2, embedded_at = now(), updated_at = now() WHERE id = $3`,
		pgvector.NewVector(embedding), text, recordID)
	if err != nil {
		return eris.Wrap(err, "store: set embedding target")
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("store: embedding target %s/%s not found", tableName, recordID)
	}
	return nil
}
