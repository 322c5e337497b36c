package store

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/leadpipeline/leadpipe/internal/model"
)

// InsertRawRows bulk-inserts parsed rows for a batch via COPY.
func (s *PostgresStore) InsertRawRows(ctx context.Context, rows []*model.RawRow) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	copyRows := make([][]any, len(rows))
	for i, r := range rows {
		rawData, err := json.Marshal(r.RawData)
		if err != nil {
			return 0, eris.Wrap(err, "store: marshal raw_data")
		}
		validationErrors, err := json.Marshal(r.ValidationErrors)
		if err != nil {
			return 0, eris.Wrap(err, "store: marshal validation_errors")
		}
		copyRows[i] = []any{r.BatchID, r.RowNumber, rawData, r.IsValid, validationErrors, r.IsDuplicate, r.DuplicateOf, r.CanonicalLeadID}
	}
	n, err := s.pool.CopyFrom(ctx,
		pgx.Identifier{"raw_rows"},
		[]string{"batch_id", "row_number", "raw_data", "is_valid", "validation_errors", "is_duplicate", "duplicate_of", "canonical_lead_id"},
		pgx.CopyFromRows(copyRows))
	return n, eris.Wrap(err, "store: insert raw rows")
}

// ListUnresolvedRawRows returns valid, non-duplicate rows for a batch that
// have not yet produced a canonical lead, for the transform step to consume.
func (s *PostgresStore) ListUnresolvedRawRows(ctx context.Context, batchID string, limit int) ([]*model.RawRow, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, batch_id, row_number, raw_data, is_valid, validation_errors, is_duplicate, duplicate_of, canonical_lead_id, created_at
		FROM raw_rows
		WHERE batch_id = $1 AND is_valid AND NOT is_duplicate AND canonical_lead_id IS NULL
		ORDER BY row_number
		LIMIT $2`, batchID, limit)
	if err != nil {
		return nil, eris.Wrap(err, "store: list unresolved raw rows")
	}
	defer rows.Close()

	var out []*model.RawRow
	for rows.Next() {
		r := &model.RawRow{}
		var rawData, validationErrors []byte
		if err := rows.Scan(&r.ID, &r.BatchID, &r.RowNumber, &rawData, &r.IsValid, &validationErrors,
			&r.IsDuplicate, &r.DuplicateOf, &r.CanonicalLeadID, &r.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "store: scan raw row")
		}
		if err := json.Unmarshal(rawData, &r.RawData); err != nil {
			return nil, eris.Wrap(err, "store: unmarshal raw_data")
		}
		if len(validationErrors) > 0 {
			if err := json.Unmarshal(validationErrors, &r.ValidationErrors); err != nil {
				return nil, eris.Wrap(err, "store: unmarshal validation_errors")
			}
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "store: iterate raw rows")
}

// MarkRawRowResolved stamps a raw row with the canonical lead it produced.
func (s *PostgresStore) MarkRawRowResolved(ctx context.Context, id, canonicalLeadID string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE raw_rows SET canonical_lead_id = $1 WHERE id = $2`, canonicalLeadID, id)
	if err != nil {
		return eris.Wrap(err, "store: mark raw row resolved")
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("store: raw row %s not found", id)
	}
	return nil
}

// MarkRawRowDuplicate flags a row as a duplicate of an earlier row in the
// same batch without producing a new canonical lead for it.
func (s *PostgresStore) MarkRawRowDuplicate(ctx context.Context, id, duplicateOfID string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE raw_rows SET is_duplicate = true, duplicate_of = $1 WHERE id = $2`, duplicateOfID, id)
	if err != nil {
		return eris.Wrap(err, "store: mark raw row duplicate")
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("store: raw row %s not found", id)
	}
	return nil
}
