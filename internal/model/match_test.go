package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatch_JSONRoundTrip(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	m := Match{
		ID:                "match-1",
		TenantID:          "tenant-1",
		CanonicalLeadID:   "lead-1",
		CrmLeadID:         "crm-1",
		MatchType:         MatchTypeEmailExact,
		Confidence:        1.0,
		MatchedBy:         MatchedBySystem,
		AttributedTeamID:  "team-1",
		AttributedAgentID: "agent-1",
		Status:            MatchRecordStatusActive,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	data, err := json.Marshal(m)
	require.NoError(t, err)

	var decoded Match
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, MatchTypeEmailExact, decoded.MatchType)
	assert.InDelta(t, 1.0, decoded.Confidence, 0.0001)
	assert.Equal(t, MatchRecordStatusActive, decoded.Status)
	assert.Equal(t, "team-1", decoded.AttributedTeamID)
}

func TestMatchCandidate_ExpiresAtTTL(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	c := MatchCandidate{
		Status:    CandidateStatusPending,
		ExpiresAt: now.Add(-time.Hour),
	}

	assert.True(t, c.ExpiresAt.Before(now))
	assert.Equal(t, CandidateStatusPending, c.Status)
}
