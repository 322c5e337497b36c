package store

import (
	"context"
	"encoding/json"

	"github.com/pgvector/pgvector-go"
	"github.com/rotisserie/eris"

	"github.com/leadpipeline/leadpipe/internal/model"
)

// InsertCanonicalLead creates a canonical lead derived from one raw row.
func (s *PostgresStore) InsertCanonicalLead(ctx context.Context, cl *model.CanonicalLead) error {
	rawData, err := json.Marshal(cl.RawData)
	if err != nil {
		return eris.Wrap(err, "store: marshal raw_data")
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO canonical_leads (
			tenant_id, lead_source_id, email, email_normalized, phone, phone_normalized,
			address, address_normalized, first_name, last_name, lead_type,
			source_record_id, source_created_at, match_status, raw_data
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		RETURNING id, created_at, updated_at`,
		cl.TenantID, cl.LeadSourceID, cl.Email, cl.EmailNormalized, cl.Phone, cl.PhoneNormalized,
		cl.Address, cl.AddressNormalized, cl.FirstName, cl.LastName, cl.LeadType,
		cl.SourceRecordID, cl.SourceCreatedAt, cl.MatchStatus, rawData)

	if err := row.Scan(&cl.ID, &cl.CreatedAt, &cl.UpdatedAt); err != nil {
		return eris.Wrap(err, "store: insert canonical lead")
	}
	return nil
}

// FindCanonicalLeadByEmail looks up an existing canonical lead within a
// (tenant, source, email) scope, the transformer's dedup key.
func (s *PostgresStore) FindCanonicalLeadByEmail(ctx context.Context, tenantID, leadSourceID, emailNormalized string) (*model.CanonicalLead, error) {
	row := s.pool.QueryRow(ctx, canonicalLeadSelect+`
		WHERE tenant_id = $1 AND lead_source_id = $2 AND email_normalized = $3
		LIMIT 1`, tenantID, leadSourceID, emailNormalized)
	return scanCanonicalLead(row)
}

// GetCanonicalLead fetches a canonical lead by id.
func (s *PostgresStore) GetCanonicalLead(ctx context.Context, id string) (*model.CanonicalLead, error) {
	row := s.pool.QueryRow(ctx, canonicalLeadSelect+` WHERE id = $1`, id)
	return scanCanonicalLead(row)
}

// ListCanonicalLeadsByMatchStatus returns canonical leads in a given match
// status for a tenant, oldest first, for the matcher's queue consumption.
func (s *PostgresStore) ListCanonicalLeadsByMatchStatus(ctx context.Context, tenantID string, status model.MatchStatus, limit int) ([]*model.CanonicalLead, error) {
	rows, err := s.pool.Query(ctx, canonicalLeadSelect+`
		WHERE tenant_id = $1 AND match_status = $2
		ORDER BY created_at
		LIMIT $3`, tenantID, status, limit)
	if err != nil {
		return nil, eris.Wrap(err, "store: list canonical leads by match status")
	}
	defer rows.Close()

	var out []*model.CanonicalLead
	for rows.Next() {
		cl, err := scanCanonicalLead(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cl)
	}
	return out, eris.Wrap(rows.Err(), "store: iterate canonical leads")
}

// UpdateCanonicalLeadMatchStatus sets the match status and optional
// confidence after a matcher decision.
func (s *PostgresStore) UpdateCanonicalLeadMatchStatus(ctx context.Context, id string, status model.MatchStatus, confidence *float64) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE canonical_leads SET match_status = $1, match_confidence = $2, updated_at = now() WHERE id = $3`,
		status, confidence, id)
	if err != nil {
		return eris.Wrap(err, "store: update canonical lead match status")
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("store: canonical lead %s not found", id)
	}
	return nil
}

// SetCanonicalLeadEmbedding stores a computed vector embedding.
func (s *PostgresStore) SetCanonicalLeadEmbedding(ctx context.Context, id string, embedding []float32) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE canonical_leads SET embedding = $1, embedded_at = now(), updated_at = now() WHERE id = $2`,
		pgvector.NewVector(embedding), id)
	if err != nil {
		return eris.Wrap(err, "store: set canonical lead embedding")
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("store: canonical lead %s not found", id)
	}
	return nil
}

const canonicalLeadSelect = `
	SELECT id, tenant_id, lead_source_id, email, email_normalized, phone, phone_normalized,
		address, address_normalized, first_name, last_name, lead_type, source_record_id,
		source_created_at, match_status, match_confidence, embedding_text, embedded_at, raw_data, created_at, updated_at
	FROM canonical_leads`

func scanCanonicalLead(row interface{ Scan(dest ...any) error }) (*model.CanonicalLead, error) {
	cl := &model.CanonicalLead{}
	var rawData []byte
	err := row.Scan(&cl.ID, &cl.TenantID, &cl.LeadSourceID, &cl.Email, &cl.EmailNormalized, &cl.Phone, &cl.PhoneNormalized,
		&cl.Address, &cl.AddressNormalized, &cl.FirstName, &cl.LastName, &cl.LeadType, &cl.SourceRecordID,
		&cl.SourceCreatedAt, &cl.MatchStatus, &cl.MatchConfidence, &cl.EmbeddingText, &cl.EmbeddedAt, &rawData, &cl.CreatedAt, &cl.UpdatedAt)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "store: scan canonical lead")
	}
	if len(rawData) > 0 {
		if err := json.Unmarshal(rawData, &cl.RawData); err != nil {
			return nil, eris.Wrap(err, "store: unmarshal raw_data")
		}
	}
	return cl, nil
}
