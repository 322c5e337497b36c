// Package matcher scores each canonical lead against its tenant's CRM
// corpus and tiers the result into an auto-match, a set of review
// candidates, or unmatched, per spec.md §4.3.
package matcher

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/leadpipeline/leadpipe/internal/model"
	"github.com/leadpipeline/leadpipe/internal/resilience"
	"github.com/leadpipeline/leadpipe/internal/scorer"
)

// Tiering thresholds are module-level constants, never per-tenant
// configuration, per spec.md §4.3 and the design note in §9.
const (
	AutoThreshold   = 0.90
	ReviewLow       = 0.60
	ReviewHigh      = 0.90
	RejectThreshold = 0.40
)

// Store is the persistence surface the matcher needs.
type Store interface {
	GetCanonicalLead(ctx context.Context, id string) (*model.CanonicalLead, error)
	ListCanonicalLeadsByMatchStatus(ctx context.Context, tenantID string, status model.MatchStatus, limit int) ([]*model.CanonicalLead, error)
	GetCrmCorpus(ctx context.Context, tenantID string) ([]model.CrmLead, error)
	GetAgentByCrmUserID(ctx context.Context, tenantID, crmUserID string) (*model.Agent, error)
	GetActiveMatchByCanonical(ctx context.Context, canonicalLeadID string) (*model.Match, error)
	CommitAutoMatch(ctx context.Context, m *model.Match, lineage *model.LineageEntry) error
	SyncReviewCandidates(ctx context.Context, tenantID, canonicalLeadID string, candidates []*model.MatchCandidate, status model.MatchStatus, confidence float64) error
	UpdateCanonicalLeadMatchStatus(ctx context.Context, id string, status model.MatchStatus, confidence *float64) error
}

// Matcher runs the score-tier-attribute pipeline for canonical leads.
type Matcher struct {
	store  Store
	scorer *scorer.Scorer
	logger *zap.Logger
}

// New builds a Matcher.
func New(store Store, sc *scorer.Scorer, logger *zap.Logger) *Matcher {
	if sc == nil {
		sc = scorer.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Matcher{store: store, scorer: sc, logger: logger}
}

// ClaimForTenant returns a queue.ClaimFunc scoped to one tenant's pending
// canonical leads, for a per-tenant claim loop.
func (m *Matcher) ClaimForTenant(tenantID string) func(ctx context.Context, limit int) ([]*model.CanonicalLead, error) {
	return func(ctx context.Context, limit int) ([]*model.CanonicalLead, error) {
		return m.store.ListCanonicalLeadsByMatchStatus(ctx, tenantID, model.MatchStatusPending, limit)
	}
}

// Handle fulfills queue.HandleFunc for one canonical lead.
func (m *Matcher) Handle(ctx context.Context, cl *model.CanonicalLead) error {
	return m.MatchOne(ctx, cl.TenantID, cl.ID)
}

// MatchMany scores every canonical lead id in ids, continuing past
// per-lead failures per spec.md §4.3's failure semantics.
func (m *Matcher) MatchMany(ctx context.Context, tenantID string, ids []string) {
	for _, id := range ids {
		if err := m.MatchOne(ctx, tenantID, id); err != nil {
			m.logger.Error("matcher: lead failed", zap.String("canonical_lead_id", id), zap.Error(err))
		}
	}
}

// MatchOne scores, tiers, and attributes a single canonical lead. It is
// idempotent: a lead already carrying an active Match is a no-op.
func (m *Matcher) MatchOne(ctx context.Context, tenantID, canonicalLeadID string) error {
	existing, err := m.store.GetActiveMatchByCanonical(ctx, canonicalLeadID)
	if err != nil {
		return eris.Wrap(err, "matcher: check existing match")
	}
	if existing != nil {
		return nil
	}

	lead, err := m.store.GetCanonicalLead(ctx, canonicalLeadID)
	if err != nil {
		return eris.Wrap(err, "matcher: load canonical lead")
	}
	if lead == nil {
		return eris.Errorf("matcher: canonical lead %s not found", canonicalLeadID)
	}

	corpus, err := m.store.GetCrmCorpus(ctx, tenantID)
	if err != nil {
		return eris.Wrap(err, "matcher: load crm corpus")
	}
	if dup := duplicateCrmLeadID(corpus); dup != "" {
		violation := resilience.NewInvariantViolation("crm_corpus.unique_lead_id",
			"tenant "+tenantID+" has more than one crm lead row with id "+dup)
		m.logger.Error("matcher: invariant violated, aborting", zap.String("tenant_id", tenantID), zap.Error(violation))
		return violation
	}

	candidates := m.scorer.Score(*lead, corpus)

	top := topCandidate(candidates)
	switch {
	case top != nil && top.Confidence >= AutoThreshold:
		return m.autoMatch(ctx, tenantID, lead, *top, corpus)
	default:
		review := inBand(candidates, ReviewLow, ReviewHigh)
		if len(review) > 0 {
			return m.openReview(ctx, tenantID, lead, review)
		}
		return m.markUnmatched(ctx, lead)
	}
}

func (m *Matcher) autoMatch(ctx context.Context, tenantID string, lead *model.CanonicalLead, top scorer.Candidate, corpus []model.CrmLead) error {
	match := &model.Match{
		TenantID:        tenantID,
		CanonicalLeadID: lead.ID,
		CrmLeadID:       top.CrmLeadID,
		MatchType:       top.MatchType,
		Confidence:      top.Confidence,
		MatchDetails:    top.Details,
		MatchedBy:       model.MatchedBySystem,
	}

	crmLead := findCrmLead(corpus, top.CrmLeadID)
	if crmLead != nil && crmLead.AssignedUserID != "" {
		if agent, err := m.store.GetAgentByCrmUserID(ctx, tenantID, crmLead.AssignedUserID); err != nil {
			return eris.Wrap(err, "matcher: resolve agent")
		} else if agent != nil {
			match.AttributedAgentID = agent.ID
			match.AttributedTeamID = agent.TeamID
		}
	}

	lineage := &model.LineageEntry{
		TenantID:           tenantID,
		SourceTable:        "canonical_leads",
		SourceID:           lead.ID,
		TargetTable:        "matches",
		Operation:          model.LineageOpCreate,
		TransformationType: "match",
	}

	if err := m.store.CommitAutoMatch(ctx, match, lineage); err != nil {
		return eris.Wrap(err, "matcher: commit auto match")
	}
	lineage.TargetID = match.ID
	return nil
}

func (m *Matcher) openReview(ctx context.Context, tenantID string, lead *model.CanonicalLead, candidates []scorer.Candidate) error {
	status := model.MatchStatusReview
	if len(candidates) > 1 {
		status = model.MatchStatusMultiple
	}

	maxConf := 0.0
	rows := make([]*model.MatchCandidate, 0, len(candidates))
	for _, c := range candidates {
		if c.Confidence > maxConf {
			maxConf = c.Confidence
		}
		rows = append(rows, &model.MatchCandidate{
			CrmLeadID:       c.CrmLeadID,
			ConfidenceScore: c.Confidence,
			MatchReasons:    []model.MatchReason{{MatchType: c.MatchType, Confidence: c.Confidence}},
		})
	}

	return m.store.SyncReviewCandidates(ctx, tenantID, lead.ID, rows, status, maxConf)
}

func (m *Matcher) markUnmatched(ctx context.Context, lead *model.CanonicalLead) error {
	return m.store.UpdateCanonicalLeadMatchStatus(ctx, lead.ID, model.MatchStatusUnmatched, nil)
}

// duplicateCrmLeadID returns the id of the first crm lead that appears
// more than once in corpus, or "" if every id is unique. The corpus is
// keyed by the CRM's own lead id, so a duplicate means the store or the
// upstream sync produced two rows for one lead — a state the scorer
// cannot tier correctly and must not silently score twice.
func duplicateCrmLeadID(corpus []model.CrmLead) string {
	seen := make(map[string]struct{}, len(corpus))
	for _, cl := range corpus {
		if _, ok := seen[cl.ID]; ok {
			return cl.ID
		}
		seen[cl.ID] = struct{}{}
	}
	return ""
}

func findCrmLead(corpus []model.CrmLead, crmLeadID string) *model.CrmLead {
	for i := range corpus {
		if corpus[i].ID == crmLeadID {
			return &corpus[i]
		}
	}
	return nil
}

func topCandidate(candidates []scorer.Candidate) *scorer.Candidate {
	var best *scorer.Candidate
	for i := range candidates {
		if candidates[i].Confidence < RejectThreshold {
			continue
		}
		if best == nil || candidates[i].Confidence > best.Confidence {
			best = &candidates[i]
		}
	}
	return best
}

func inBand(candidates []scorer.Candidate, low, high float64) []scorer.Candidate {
	var out []scorer.Candidate
	for _, c := range candidates {
		if c.Confidence >= low && c.Confidence < high {
			out = append(out, c)
		}
	}
	return out
}
