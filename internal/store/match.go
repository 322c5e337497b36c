package store

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/leadpipeline/leadpipe/internal/model"
)

// GetActiveMatchByCanonical returns the canonical lead's active match, or
// nil if it has none. Used by the matcher to make a re-run a no-op.
func (s *PostgresStore) GetActiveMatchByCanonical(ctx context.Context, canonicalLeadID string) (*model.Match, error) {
	row := s.pool.QueryRow(ctx, matchSelect+`
		WHERE canonical_lead_id = $1 AND status = 'active'`, canonicalLeadID)
	return scanMatch(row)
}

// GetMatch fetches a match by id.
func (s *PostgresStore) GetMatch(ctx context.Context, id string) (*model.Match, error) {
	row := s.pool.QueryRow(ctx, matchSelect+` WHERE id = $1`, id)
	return scanMatch(row)
}

// CommitAutoMatch atomically inserts the winning Match, advances the
// canonical lead to matched, and appends the create->match lineage row.
// All three writes happen in one transaction per spec.md §5.
func (s *PostgresStore) CommitAutoMatch(ctx context.Context, m *model.Match, lineage *model.LineageEntry) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		details, err := json.Marshal(m.MatchDetails)
		if err != nil {
			return eris.Wrap(err, "store: marshal match_details")
		}
		row := tx.QueryRow(ctx, `
			INSERT INTO matches (
				tenant_id, canonical_lead_id, crm_lead_id, match_type, confidence,
				match_details, matched_by, matched_by_user_id, attributed_team_id, attributed_agent_id, status
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,'active')
			RETURNING id, created_at, updated_at`,
			m.TenantID, m.CanonicalLeadID, m.CrmLeadID, m.MatchType, m.Confidence,
			details, m.MatchedBy, nullableString(m.MatchedByUserID), nullableString(m.AttributedTeamID), nullableString(m.AttributedAgentID))
		if err := row.Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return eris.Wrap(err, "store: insert match")
		}
		m.Status = model.MatchRecordStatusActive

		confidence := m.Confidence
		tag, err := tx.Exec(ctx, `
			UPDATE canonical_leads SET match_status = 'matched', match_confidence = $1, updated_at = now() WHERE id = $2`,
			confidence, m.CanonicalLeadID)
		if err != nil {
			return eris.Wrap(err, "store: update canonical lead to matched")
		}
		if tag.RowsAffected() == 0 {
			return eris.Errorf("store: canonical lead %s not found", m.CanonicalLeadID)
		}

		if err := insertLineageTx(ctx, tx, lineage); err != nil {
			return err
		}
		return nil
	})
}

// SyncReviewCandidates upserts the given candidates for one canonical
// lead, rejects with notes "superseded" any pending candidate not present
// in the new set (the re-score case), and sets the canonical's
// match_status/match_confidence accordingly — all in one transaction.
func (s *PostgresStore) SyncReviewCandidates(ctx context.Context, tenantID, canonicalLeadID string, candidates []*model.MatchCandidate, status model.MatchStatus, confidence float64) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		keep := make([]string, 0, len(candidates))
		for _, c := range candidates {
			reasons, err := json.Marshal(c.MatchReasons)
			if err != nil {
				return eris.Wrap(err, "store: marshal match_reasons")
			}
			row := tx.QueryRow(ctx, `
				INSERT INTO match_candidates (tenant_id, canonical_lead_id, crm_lead_id, confidence_score, match_reasons, status, expires_at)
				VALUES ($1,$2,$3,$4,$5,'pending', now() + interval '14 days')
				ON CONFLICT (canonical_lead_id, crm_lead_id) DO UPDATE SET
					confidence_score = EXCLUDED.confidence_score,
					match_reasons = EXCLUDED.match_reasons,
					status = 'pending',
					updated_at = now()
				RETURNING id, expires_at, created_at, updated_at`,
				tenantID, canonicalLeadID, c.CrmLeadID, c.ConfidenceScore, reasons)
			if err := row.Scan(&c.ID, &c.ExpiresAt, &c.CreatedAt, &c.UpdatedAt); err != nil {
				return eris.Wrap(err, "store: upsert match candidate")
			}
			c.TenantID = tenantID
			c.CanonicalLeadID = canonicalLeadID
			c.Status = model.CandidateStatusPending
			keep = append(keep, c.CrmLeadID)
		}

		if len(keep) == 0 {
			keep = []string{""}
		}
		if _, err := tx.Exec(ctx, `
			UPDATE match_candidates SET status = 'rejected', notes = 'superseded', updated_at = now()
			WHERE canonical_lead_id = $1 AND status = 'pending' AND crm_lead_id != ALL($2)`,
			canonicalLeadID, keep); err != nil {
			return eris.Wrap(err, "store: expire superseded candidates")
		}

		tag, err := tx.Exec(ctx, `
			UPDATE canonical_leads SET match_status = $1, match_confidence = $2, updated_at = now() WHERE id = $3`,
			status, confidence, canonicalLeadID)
		if err != nil {
			return eris.Wrap(err, "store: update canonical lead review status")
		}
		if tag.RowsAffected() == 0 {
			return eris.Errorf("store: canonical lead %s not found", canonicalLeadID)
		}
		return nil
	})
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

const matchSelect = `
	SELECT id, tenant_id, canonical_lead_id, crm_lead_id, match_type, confidence, match_details,
		matched_by, matched_by_user_id, attributed_team_id, attributed_agent_id, status, created_at, updated_at
	FROM matches`

func scanMatch(row interface{ Scan(dest ...any) error }) (*model.Match, error) {
	m := &model.Match{}
	var details []byte
	var matchedByUserID, attributedTeamID, attributedAgentID *string
	err := row.Scan(&m.ID, &m.TenantID, &m.CanonicalLeadID, &m.CrmLeadID, &m.MatchType, &m.Confidence, &details,
		&m.MatchedBy, &matchedByUserID, &attributedTeamID, &attributedAgentID, &m.Status, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "store: scan match")
	}
	if matchedByUserID != nil {
		m.MatchedByUserID = *matchedByUserID
	}
	if attributedTeamID != nil {
		m.AttributedTeamID = *attributedTeamID
	}
	if attributedAgentID != nil {
		m.AttributedAgentID = *attributedAgentID
	}
	if len(details) > 0 {
		if err := json.Unmarshal(details, &m.MatchDetails); err != nil {
			return nil, eris.Wrap(err, "store: unmarshal match_details")
		}
	}
	return m, nil
}
