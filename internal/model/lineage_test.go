package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLineageEntry_JSONRoundTrip(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	entry := LineageEntry{
		ID:                 1,
		TenantID:           "tenant-1",
		SourceTable:        "raw_rows",
		SourceID:           "row-1",
		TargetTable:        "canonical_leads",
		TargetID:           "lead-1",
		Operation:          LineageOpCreate,
		TransformationType: "normalize",
		PerformedBy:        "transformer",
		Details:            map[string]any{"lead_source": "zillow"},
		CreatedAt:          now,
	}

	data, err := json.Marshal(entry)
	require.NoError(t, err)

	var decoded LineageEntry
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, entry.SourceTable, decoded.SourceTable)
	assert.Equal(t, entry.TargetTable, decoded.TargetTable)
	assert.Equal(t, LineageOpCreate, decoded.Operation)
	assert.Equal(t, "normalize", decoded.TransformationType)
	assert.Equal(t, "zillow", decoded.Details["lead_source"])
}

func TestLineageEntry_AtMostOneCreatePerCanonical(t *testing.T) {
	t.Parallel()

	entries := []LineageEntry{
		{SourceTable: "raw_rows", TargetTable: "canonical_leads", TargetID: "lead-1", Operation: LineageOpCreate},
		{SourceTable: "canonical_leads", TargetTable: "matches", TargetID: "match-1", Operation: LineageOpCreate},
	}

	creates := 0
	for _, e := range entries {
		if e.Operation == LineageOpCreate && e.TargetTable == "canonical_leads" {
			creates++
		}
	}
	assert.Equal(t, 1, creates)
}
