package matcher

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadpipeline/leadpipe/internal/model"
	"github.com/leadpipeline/leadpipe/internal/resilience"
	"github.com/leadpipeline/leadpipe/internal/scorer"
)

type fakeStore struct {
	leads          map[string]*model.CanonicalLead
	corpus         []model.CrmLead
	agents         map[string]*model.Agent
	activeMatch    map[string]*model.Match
	committed      []*model.Match
	reviewSynced   []string
	unmatched      []string
}

func (f *fakeStore) GetCanonicalLead(_ context.Context, id string) (*model.CanonicalLead, error) {
	return f.leads[id], nil
}

func (f *fakeStore) ListCanonicalLeadsByMatchStatus(context.Context, string, model.MatchStatus, int) ([]*model.CanonicalLead, error) {
	return nil, nil
}

func (f *fakeStore) GetCrmCorpus(context.Context, string) ([]model.CrmLead, error) {
	return f.corpus, nil
}

func (f *fakeStore) GetAgentByCrmUserID(_ context.Context, _, crmUserID string) (*model.Agent, error) {
	return f.agents[crmUserID], nil
}

func (f *fakeStore) GetActiveMatchByCanonical(_ context.Context, canonicalLeadID string) (*model.Match, error) {
	return f.activeMatch[canonicalLeadID], nil
}

func (f *fakeStore) CommitAutoMatch(_ context.Context, m *model.Match, _ *model.LineageEntry) error {
	m.ID = "match-1"
	f.committed = append(f.committed, m)
	return nil
}

func (f *fakeStore) SyncReviewCandidates(_ context.Context, _, canonicalLeadID string, _ []*model.MatchCandidate, _ model.MatchStatus, _ float64) error {
	f.reviewSynced = append(f.reviewSynced, canonicalLeadID)
	return nil
}

func (f *fakeStore) UpdateCanonicalLeadMatchStatus(_ context.Context, id string, _ model.MatchStatus, _ *float64) error {
	f.unmatched = append(f.unmatched, id)
	return nil
}

func leadWithEmail(email string) *model.CanonicalLead {
	return &model.CanonicalLead{ID: "lead-1", TenantID: "tenant-1", Email: email, EmailNormalized: email}
}

func TestMatchOne_AutoMatchesOnExactEmail(t *testing.T) {
	store := &fakeStore{
		leads: map[string]*model.CanonicalLead{"lead-1": leadWithEmail("jane@example.com")},
		corpus: []model.CrmLead{
			{ID: "crm-1", EmailNormalized: "jane@example.com", AssignedUserID: "user-1"},
		},
		agents: map[string]*model.Agent{"user-1": {ID: "agent-1", TeamID: "team-1"}},
	}
	m := New(store, scorer.New(), nil)

	err := m.MatchOne(context.Background(), "tenant-1", "lead-1")

	require.NoError(t, err)
	require.Len(t, store.committed, 1)
	assert.Equal(t, "crm-1", store.committed[0].CrmLeadID)
	assert.Equal(t, "agent-1", store.committed[0].AttributedAgentID)
	assert.Equal(t, "team-1", store.committed[0].AttributedTeamID)
}

func TestMatchOne_IsIdempotentWhenAlreadyMatched(t *testing.T) {
	store := &fakeStore{
		leads:       map[string]*model.CanonicalLead{"lead-1": leadWithEmail("jane@example.com")},
		activeMatch: map[string]*model.Match{"lead-1": {ID: "match-existing"}},
	}
	m := New(store, scorer.New(), nil)

	err := m.MatchOne(context.Background(), "tenant-1", "lead-1")

	require.NoError(t, err)
	assert.Empty(t, store.committed)
}

func TestMatchOne_MidConfidenceGoesToReview(t *testing.T) {
	store := &fakeStore{
		leads: map[string]*model.CanonicalLead{
			"lead-1": {ID: "lead-1", TenantID: "tenant-1", AddressNormalized: "100 main st springfield il 62701"},
		},
		corpus: []model.CrmLead{
			{ID: "crm-1", AddressNormalized: "100 main street springfield il 62701"},
		},
	}
	m := New(store, scorer.New(), nil)

	err := m.MatchOne(context.Background(), "tenant-1", "lead-1")

	require.NoError(t, err)
	assert.Empty(t, store.committed)
	assert.Equal(t, []string{"lead-1"}, store.reviewSynced)
}

func TestMatchOne_NoSignalMarksUnmatched(t *testing.T) {
	store := &fakeStore{
		leads: map[string]*model.CanonicalLead{"lead-1": leadWithEmail("jane@example.com")},
		corpus: []model.CrmLead{
			{ID: "crm-1", EmailNormalized: "someone-else@example.com"},
		},
	}
	m := New(store, scorer.New(), nil)

	err := m.MatchOne(context.Background(), "tenant-1", "lead-1")

	require.NoError(t, err)
	assert.Empty(t, store.committed)
	assert.Empty(t, store.reviewSynced)
	assert.Equal(t, []string{"lead-1"}, store.unmatched)
}

func TestMatchOne_MissingLead(t *testing.T) {
	store := &fakeStore{leads: map[string]*model.CanonicalLead{}}
	m := New(store, scorer.New(), nil)

	err := m.MatchOne(context.Background(), "tenant-1", "missing")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestMatchMany_ContinuesPastPerLeadFailure(t *testing.T) {
	store := &fakeStore{
		leads: map[string]*model.CanonicalLead{
			"lead-1": leadWithEmail("jane@example.com"),
		},
		corpus: []model.CrmLead{{ID: "crm-1", EmailNormalized: "jane@example.com"}},
	}
	m := New(store, scorer.New(), nil)

	m.MatchMany(context.Background(), "tenant-1", []string{"missing", "lead-1"})

	require.Len(t, store.committed, 1)
}

func TestMatchOne_DuplicateCrmLeadIDInCorpusIsInvariantViolation(t *testing.T) {
	store := &fakeStore{
		leads: map[string]*model.CanonicalLead{"lead-1": leadWithEmail("jane@example.com")},
		corpus: []model.CrmLead{
			{ID: "crm-1", EmailNormalized: "jane@example.com"},
			{ID: "crm-1", EmailNormalized: "jane@example.com"},
		},
	}
	m := New(store, scorer.New(), nil)

	err := m.MatchOne(context.Background(), "tenant-1", "lead-1")

	require.Error(t, err)
	var violation *resilience.InvariantViolation
	require.True(t, errors.As(err, &violation))
	assert.Equal(t, "crm_corpus.unique_lead_id", violation.Invariant)
	assert.Empty(t, store.committed)
	assert.Empty(t, store.reviewSynced)
	assert.Empty(t, store.unmatched)
}

func TestDuplicateCrmLeadID_ReturnsEmptyWhenAllUnique(t *testing.T) {
	corpus := []model.CrmLead{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	assert.Equal(t, "", duplicateCrmLeadID(corpus))
}

func TestTopCandidate_DiscardsBelowRejectThreshold(t *testing.T) {
	candidates := []scorer.Candidate{
		{CrmLeadID: "a", Confidence: 0.30},
		{CrmLeadID: "b", Confidence: 0.95},
	}
	top := topCandidate(candidates)
	require.NotNil(t, top)
	assert.Equal(t, "b", top.CrmLeadID)

	assert.Nil(t, topCandidate([]scorer.Candidate{{CrmLeadID: "c", Confidence: 0.10}}))
}

func TestInBand_FiltersHalfOpenInterval(t *testing.T) {
	candidates := []scorer.Candidate{
		{CrmLeadID: "a", Confidence: 0.59},
		{CrmLeadID: "b", Confidence: 0.60},
		{CrmLeadID: "c", Confidence: 0.89},
		{CrmLeadID: "d", Confidence: 0.90},
	}
	band := inBand(candidates, ReviewLow, ReviewHigh)
	require.Len(t, band, 2)
	assert.Equal(t, "b", band[0].CrmLeadID)
	assert.Equal(t, "c", band[1].CrmLeadID)
}
