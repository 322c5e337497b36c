package store

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/leadpipeline/leadpipe/internal/model"
)

// ErrCandidateNotPending is returned when an approve/reject is attempted
// on a candidate that is no longer pending.
var ErrCandidateNotPending = eris.New("store: candidate is not pending")

// GetCandidate fetches a match candidate by id.
func (s *PostgresStore) GetCandidate(ctx context.Context, id string) (*model.MatchCandidate, error) {
	row := s.pool.QueryRow(ctx, candidateSelect+` WHERE id = $1`, id)
	return scanCandidate(row)
}

// ListPendingCandidatesByCanonical returns every pending candidate for a
// canonical lead, for the review surface and the sibling-rejection step.
func (s *PostgresStore) ListPendingCandidatesByCanonical(ctx context.Context, canonicalLeadID string) ([]*model.MatchCandidate, error) {
	rows, err := s.pool.Query(ctx, candidateSelect+`
		WHERE canonical_lead_id = $1 AND status = 'pending'`, canonicalLeadID)
	if err != nil {
		return nil, eris.Wrap(err, "store: list pending candidates")
	}
	defer rows.Close()

	var out []*model.MatchCandidate
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "store: iterate pending candidates")
}

// ApproveCandidate commits the reviewer's decision: inserts a manual
// Match, marks the candidate approved, rejects its siblings, and
// advances the canonical lead to matched — in one transaction.
func (s *PostgresStore) ApproveCandidate(ctx context.Context, candidateID, reviewerID string) (*model.Match, error) {
	var match *model.Match
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, candidateSelect+` WHERE id = $1 FOR UPDATE`, candidateID)
		c, err := scanCandidate(row)
		if err != nil {
			return err
		}
		if c == nil {
			return eris.Wrapf(pgx.ErrNoRows, "store: candidate %s not found", candidateID)
		}
		if c.Status != model.CandidateStatusPending {
			return ErrCandidateNotPending
		}

		details, _ := json.Marshal(matchReasonsToDetails(c.MatchReasons))
		m := &model.Match{
			TenantID:        c.TenantID,
			CanonicalLeadID: c.CanonicalLeadID,
			CrmLeadID:       c.CrmLeadID,
			MatchType:       primaryMatchType(c.MatchReasons),
			Confidence:      c.ConfidenceScore,
			MatchedBy:       model.MatchedByManual,
			MatchedByUserID: reviewerID,
		}
		row = tx.QueryRow(ctx, `
			INSERT INTO matches (tenant_id, canonical_lead_id, crm_lead_id, match_type, confidence, match_details, matched_by, matched_by_user_id, status)
			VALUES ($1,$2,$3,$4,$5,$6,'manual',$7,'active')
			RETURNING id, created_at, updated_at`,
			m.TenantID, m.CanonicalLeadID, m.CrmLeadID, m.MatchType, m.Confidence, details, reviewerID)
		if err := row.Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return eris.Wrap(err, "store: insert manual match")
		}
		m.Status = model.MatchRecordStatusActive

		if _, err := tx.Exec(ctx, `
			UPDATE match_candidates SET status = 'approved', reviewed_by = $1, reviewed_at = now(), lead_match_id = $2, updated_at = now()
			WHERE id = $3`, reviewerID, m.ID, candidateID); err != nil {
			return eris.Wrap(err, "store: mark candidate approved")
		}

		if _, err := tx.Exec(ctx, `
			UPDATE match_candidates SET status = 'rejected', reviewed_by = $1, reviewed_at = now(), notes = 'sibling of approved candidate', updated_at = now()
			WHERE canonical_lead_id = $2 AND status = 'pending' AND id != $3`,
			reviewerID, c.CanonicalLeadID, candidateID); err != nil {
			return eris.Wrap(err, "store: reject sibling candidates")
		}

		if _, err := tx.Exec(ctx, `
			UPDATE canonical_leads SET match_status = 'matched', match_confidence = $1, updated_at = now() WHERE id = $2`,
			c.ConfidenceScore, c.CanonicalLeadID); err != nil {
			return eris.Wrap(err, "store: update canonical lead to matched")
		}

		match = m
		return nil
	})
	return match, err
}

// RejectCandidate marks a single candidate rejected. If it was the last
// pending candidate for its canonical lead and the lead has no active
// match, the canonical reverts to unmatched.
func (s *PostgresStore) RejectCandidate(ctx context.Context, candidateID, reviewerID, notes string) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, candidateSelect+` WHERE id = $1 FOR UPDATE`, candidateID)
		c, err := scanCandidate(row)
		if err != nil {
			return err
		}
		if c == nil {
			return eris.Wrapf(pgx.ErrNoRows, "store: candidate %s not found", candidateID)
		}
		if c.Status != model.CandidateStatusPending {
			return ErrCandidateNotPending
		}

		if _, err := tx.Exec(ctx, `
			UPDATE match_candidates SET status = 'rejected', reviewed_by = $1, reviewed_at = now(), notes = $2, updated_at = now()
			WHERE id = $3`, reviewerID, notes, candidateID); err != nil {
			return eris.Wrap(err, "store: reject candidate")
		}

		var remaining int
		if err := tx.QueryRow(ctx, `
			SELECT count(*) FROM match_candidates WHERE canonical_lead_id = $1 AND status = 'pending'`,
			c.CanonicalLeadID).Scan(&remaining); err != nil {
			return eris.Wrap(err, "store: count remaining candidates")
		}
		if remaining > 0 {
			return nil
		}

		var hasActive bool
		if err := tx.QueryRow(ctx, `
			SELECT EXISTS(SELECT 1 FROM matches WHERE canonical_lead_id = $1 AND status = 'active')`,
			c.CanonicalLeadID).Scan(&hasActive); err != nil {
			return eris.Wrap(err, "store: check active match")
		}
		if hasActive {
			return nil
		}

		if _, err := tx.Exec(ctx, `
			UPDATE canonical_leads SET match_status = 'unmatched', match_confidence = NULL, updated_at = now() WHERE id = $1`,
			c.CanonicalLeadID); err != nil {
			return eris.Wrap(err, "store: revert canonical lead to unmatched")
		}
		return nil
	})
}

// SweepExpiredCandidates moves every pending candidate past its
// expires_at to expired, then reverts any canonical lead left with no
// pending candidates and no active match to unmatched. Returns the
// number of candidates expired.
func (s *PostgresStore) SweepExpiredCandidates(ctx context.Context) (int64, error) {
	var expired int64
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			UPDATE match_candidates SET status = 'expired', updated_at = now()
			WHERE status = 'pending' AND expires_at < now()
			RETURNING canonical_lead_id`)
		if err != nil {
			return eris.Wrap(err, "store: sweep expired candidates")
		}
		var canonicalIDs []string
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return eris.Wrap(err, "store: scan expired candidate canonical id")
			}
			canonicalIDs = append(canonicalIDs, id)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return eris.Wrap(err, "store: iterate expired candidates")
		}
		expired = int64(len(canonicalIDs))

		for _, id := range canonicalIDs {
			var remaining int
			if err := tx.QueryRow(ctx, `
				SELECT count(*) FROM match_candidates WHERE canonical_lead_id = $1 AND status = 'pending'`, id).Scan(&remaining); err != nil {
				return eris.Wrap(err, "store: count remaining candidates after sweep")
			}
			if remaining > 0 {
				continue
			}
			var hasActive bool
			if err := tx.QueryRow(ctx, `
				SELECT EXISTS(SELECT 1 FROM matches WHERE canonical_lead_id = $1 AND status = 'active')`, id).Scan(&hasActive); err != nil {
				return eris.Wrap(err, "store: check active match after sweep")
			}
			if hasActive {
				continue
			}
			if _, err := tx.Exec(ctx, `
				UPDATE canonical_leads SET match_status = 'unmatched', match_confidence = NULL, updated_at = now() WHERE id = $1`, id); err != nil {
				return eris.Wrap(err, "store: revert canonical lead after sweep")
			}
		}
		return nil
	})
	return expired, err
}

const candidateSelect = `
	SELECT id, tenant_id, canonical_lead_id, crm_lead_id, confidence_score, match_reasons, status,
		reviewed_by, reviewed_at, lead_match_id, notes, expires_at, created_at, updated_at
	FROM match_candidates`

func scanCandidate(row interface{ Scan(dest ...any) error }) (*model.MatchCandidate, error) {
	c := &model.MatchCandidate{}
	var reasons []byte
	var reviewedBy, leadMatchID, notes *string
	err := row.Scan(&c.ID, &c.TenantID, &c.CanonicalLeadID, &c.CrmLeadID, &c.ConfidenceScore, &reasons, &c.Status,
		&reviewedBy, &c.ReviewedAt, &leadMatchID, &notes, &c.ExpiresAt, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "store: scan candidate")
	}
	if reviewedBy != nil {
		c.ReviewedBy = *reviewedBy
	}
	if leadMatchID != nil {
		c.LeadMatchID = *leadMatchID
	}
	if notes != nil {
		c.Notes = *notes
	}
	if len(reasons) > 0 {
		if err := json.Unmarshal(reasons, &c.MatchReasons); err != nil {
			return nil, eris.Wrap(err, "store: unmarshal match_reasons")
		}
	}
	return c, nil
}

func matchReasonsToDetails(reasons []model.MatchReason) map[string]any {
	return map[string]any{"reasons": reasons}
}

func primaryMatchType(reasons []model.MatchReason) model.MatchType {
	if len(reasons) == 0 {
		return model.MatchTypeAddressFuzzy
	}
	best := reasons[0]
	for _, r := range reasons[1:] {
		if r.Confidence > best.Confidence {
			best = r
		}
	}
	return best.MatchType
}
