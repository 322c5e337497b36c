package store

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/leadpipeline/leadpipe/internal/model"
)

// InsertLineage appends one audit row. Lineage is append-only: there is
// no update or delete.
func (s *PostgresStore) InsertLineage(ctx context.Context, entry *model.LineageEntry) error {
	return s.withTx(ctx, func(tx pgx.Tx) error { return insertLineageTx(ctx, tx, entry) })
}

func insertLineageTx(ctx context.Context, tx pgx.Tx, entry *model.LineageEntry) error {
	details, err := json.Marshal(entry.Details)
	if err != nil {
		return eris.Wrap(err, "store: marshal lineage details")
	}
	row := tx.QueryRow(ctx, `
		INSERT INTO lineage_entries (tenant_id, source_table, source_id, target_table, target_id, operation, transformation_type, performed_by, details)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING id, created_at`,
		entry.TenantID, entry.SourceTable, entry.SourceID, entry.TargetTable, entry.TargetID,
		entry.Operation, nullableString(entry.TransformationType), nullableString(entry.PerformedBy), details)
	if err := row.Scan(&entry.ID, &entry.CreatedAt); err != nil {
		return eris.Wrap(err, "store: insert lineage entry")
	}
	return nil
}
