package store

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/leadpipeline/leadpipe/internal/model"
)

// CreateBatch registers a received file as a new batch, returning the
// existing row unchanged if file_hash already exists for the tenant
// (idempotent re-upload).
func (s *PostgresStore) CreateBatch(ctx context.Context, b *model.Batch) (created bool, err error) {
	counters, err := json.Marshal(b.Counters)
	if err != nil {
		return false, eris.Wrap(err, "store: marshal counters")
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO batches (tenant_id, lead_source_id, file_ref, file_hash, status, counters)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (tenant_id, file_hash) DO NOTHING
		RETURNING id, received_at, created_at, updated_at`,
		b.TenantID, b.LeadSourceID, b.FileRef, b.FileHash, b.Status, counters)

	if err := row.Scan(&b.ID, &b.ReceivedAt, &b.CreatedAt, &b.UpdatedAt); err != nil {
		if isNotFound(err) {
			return false, s.getBatchByHashInto(ctx, b)
		}
		return false, eris.Wrap(err, "store: create batch")
	}
	return true, nil
}

func (s *PostgresStore) getBatchByHashInto(ctx context.Context, b *model.Batch) error {
	existing, err := s.GetBatchByHash(ctx, b.TenantID, b.FileHash)
	if err != nil {
		return err
	}
	if existing == nil {
		return eris.New("store: batch conflicted but was not found on retry")
	}
	*b = *existing
	return nil
}

// GetBatchByHash looks up a batch by its dedup key.
func (s *PostgresStore) GetBatchByHash(ctx context.Context, tenantID, fileHash string) (*model.Batch, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, tenant_id, lead_source_id, file_ref, file_hash, received_at, status, counters, log, errors, origin, created_at, updated_at
		FROM batches WHERE tenant_id = $1 AND file_hash = $2`, tenantID, fileHash)
	return scanBatch(row)
}

// GetBatch fetches a batch by id.
func (s *PostgresStore) GetBatch(ctx context.Context, id string) (*model.Batch, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, tenant_id, lead_source_id, file_ref, file_hash, received_at, status, counters, log, errors, origin, created_at, updated_at
		FROM batches WHERE id = $1`, id)
	return scanBatch(row)
}

// ClaimPendingBatches atomically moves up to limit pending batches to
// processing and returns them, using SELECT ... FOR UPDATE SKIP LOCKED so
// concurrent stager workers never double-claim a row.
func (s *PostgresStore) ClaimPendingBatches(ctx context.Context, limit int) ([]*model.Batch, error) {
	rows, err := s.pool.Query(ctx, `
		UPDATE batches SET status = 'processing', updated_at = now()
		WHERE id IN (
			SELECT id FROM batches WHERE status = 'pending'
			ORDER BY received_at
			FOR UPDATE SKIP LOCKED
			LIMIT $1
		)
		RETURNING id, tenant_id, lead_source_id, file_ref, file_hash, received_at, status, counters, log, errors, origin, created_at, updated_at`,
		limit)
	if err != nil {
		return nil, eris.Wrap(err, "store: claim pending batches")
	}
	defer rows.Close()

	var out []*model.Batch
	for rows.Next() {
		b, err := scanBatchRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, eris.Wrap(rows.Err(), "store: iterate claimed batches")
}

// ClaimParsedBatches atomically moves up to limit parsed batches to
// transforming and returns them, for the transformer's claim loop.
func (s *PostgresStore) ClaimParsedBatches(ctx context.Context, limit int) ([]*model.Batch, error) {
	rows, err := s.pool.Query(ctx, `
		UPDATE batches SET status = 'transforming', updated_at = now()
		WHERE id IN (
			SELECT id FROM batches WHERE status = 'parsed'
			ORDER BY received_at
			FOR UPDATE SKIP LOCKED
			LIMIT $1
		)
		RETURNING id, tenant_id, lead_source_id, file_ref, file_hash, received_at, status, counters, log, errors, origin, created_at, updated_at`,
		limit)
	if err != nil {
		return nil, eris.Wrap(err, "store: claim parsed batches")
	}
	defer rows.Close()

	var out []*model.Batch
	for rows.Next() {
		b, err := scanBatchRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, eris.Wrap(rows.Err(), "store: iterate claimed batches")
}

// UpdateBatchStatus transitions a batch and appends a log entry.
func (s *PostgresStore) UpdateBatchStatus(ctx context.Context, id string, status model.BatchStatus, entry model.BatchLogEntry) error {
	entryJSON, err := json.Marshal(entry)
	if err != nil {
		return eris.Wrap(err, "store: marshal log entry")
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE batches SET status = $1, log = log || $2::jsonb, updated_at = now() WHERE id = $3`,
		status, entryJSON, id)
	if err != nil {
		return eris.Wrap(err, "store: update batch status")
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("store: batch %s not found", id)
	}
	return nil
}

// UpdateBatchCounters persists a batch's progress counters.
func (s *PostgresStore) UpdateBatchCounters(ctx context.Context, id string, counters model.BatchCounters) error {
	cJSON, err := json.Marshal(counters)
	if err != nil {
		return eris.Wrap(err, "store: marshal counters")
	}
	tag, err := s.pool.Exec(ctx, `UPDATE batches SET counters = $1, updated_at = now() WHERE id = $2`, cJSON, id)
	if err != nil {
		return eris.Wrap(err, "store: update batch counters")
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("store: batch %s not found", id)
	}
	return nil
}

func scanBatch(row interface{ Scan(dest ...any) error }) (*model.Batch, error) {
	b := &model.Batch{}
	var counters, log, errs []byte
	var origin []byte
	err := row.Scan(&b.ID, &b.TenantID, &b.LeadSourceID, &b.FileRef, &b.FileHash, &b.ReceivedAt,
		&b.Status, &counters, &log, &errs, &origin, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "store: scan batch")
	}
	if err := unmarshalBatchJSON(b, counters, log, errs, origin); err != nil {
		return nil, err
	}
	return b, nil
}

func scanBatchRow(rows interface{ Scan(dest ...any) error }) (*model.Batch, error) {
	b := &model.Batch{}
	var counters, log, errs, origin []byte
	err := rows.Scan(&b.ID, &b.TenantID, &b.LeadSourceID, &b.FileRef, &b.FileHash, &b.ReceivedAt,
		&b.Status, &counters, &log, &errs, &origin, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, eris.Wrap(err, "store: scan claimed batch")
	}
	if err := unmarshalBatchJSON(b, counters, log, errs, origin); err != nil {
		return nil, err
	}
	return b, nil
}

func unmarshalBatchJSON(b *model.Batch, counters, log, errs, origin []byte) error {
	if err := json.Unmarshal(counters, &b.Counters); err != nil {
		return eris.Wrap(err, "store: unmarshal counters")
	}
	if len(log) > 0 {
		if err := json.Unmarshal(log, &b.Log); err != nil {
			return eris.Wrap(err, "store: unmarshal log")
		}
	}
	if len(errs) > 0 {
		if err := json.Unmarshal(errs, &b.Errors); err != nil {
			return eris.Wrap(err, "store: unmarshal errors")
		}
	}
	if len(origin) > 0 {
		if err := json.Unmarshal(origin, &b.Origin); err != nil {
			return eris.Wrap(err, "store: unmarshal origin")
		}
	}
	return nil
}
