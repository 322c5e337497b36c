package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatch_JSONRoundTrip(t *testing.T) {
	t.Parallel()

	b := Batch{
		ID:           "batch-1",
		TenantID:     "tenant-1",
		LeadSourceID: "source-1",
		FileHash:     "deadbeef",
		Status:       BatchStatusPending,
		Counters:     BatchCounters{Total: 10, Parsed: 10, Valid: 8, Duplicate: 1, Error: 1},
		Origin:       map[string]any{"uploaded_by": "ops@example.com"},
	}

	data, err := json.Marshal(b)
	require.NoError(t, err)

	var decoded Batch
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, b.FileHash, decoded.FileHash)
	assert.Equal(t, 10, decoded.Counters.Total)
	assert.Equal(t, "ops@example.com", decoded.Origin["uploaded_by"])
}
