package store

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/leadpipeline/leadpipe/internal/model"
)

// StartSyncLog inserts a new running sync log row.
func (s *PostgresStore) StartSyncLog(ctx context.Context, l *model.SyncLog) error {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO sync_logs (tenant_id, crm_connection_id, status, started_at)
		VALUES ($1,$2,'running',$3)
		RETURNING id`, l.TenantID, l.CrmConnectionID, l.StartedAt)
	return eris.Wrap(row.Scan(&l.ID), "store: start sync log")
}

// CompleteSyncLog finalizes a sync log with its outcome counters.
func (s *PostgresStore) CompleteSyncLog(ctx context.Context, l *model.SyncLog) error {
	errs, err := json.Marshal(l.Errors)
	if err != nil {
		return eris.Wrap(err, "store: marshal sync log errors")
	}
	meta, err := json.Marshal(l.Metadata)
	if err != nil {
		return eris.Wrap(err, "store: marshal sync log metadata")
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE sync_logs SET status = $1, completed_at = $2, duration_ms = $3, fetched = $4, created = $5, updated = $6, errors = $7, metadata = $8
		WHERE id = $9`,
		l.Status, l.CompletedAt, l.DurationMs, l.Fetched, l.Created, l.Updated, errs, meta, l.ID)
	if err != nil {
		return eris.Wrap(err, "store: complete sync log")
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("store: sync log %d not found", l.ID)
	}
	return nil
}

// LatestSyncLog returns the most recent sync log for a connection, or
// nil if none exists.
func (s *PostgresStore) LatestSyncLog(ctx context.Context, crmConnectionID string) (*model.SyncLog, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, tenant_id, crm_connection_id, status, started_at, completed_at, duration_ms, fetched, created, updated, errors, metadata
		FROM sync_logs WHERE crm_connection_id = $1 ORDER BY started_at DESC LIMIT 1`, crmConnectionID)

	l := &model.SyncLog{}
	var errs, meta []byte
	err := row.Scan(&l.ID, &l.TenantID, &l.CrmConnectionID, &l.Status, &l.StartedAt, &l.CompletedAt,
		&l.DurationMs, &l.Fetched, &l.Created, &l.Updated, &errs, &meta)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "store: latest sync log")
	}
	if len(errs) > 0 {
		if err := json.Unmarshal(errs, &l.Errors); err != nil {
			return nil, eris.Wrap(err, "store: unmarshal sync log errors")
		}
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &l.Metadata); err != nil {
			return nil, eris.Wrap(err, "store: unmarshal sync log metadata")
		}
	}
	return l, nil
}
