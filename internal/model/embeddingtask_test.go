package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddingTask_JSONRoundTrip(t *testing.T) {
	t.Parallel()

	task := EmbeddingTask{
		ID:          "task-1",
		TenantID:    "tenant-1",
		TableName:   "canonical_leads",
		RecordID:    "lead-1",
		TextToEmbed: "john smith 123 main st",
		Status:      EmbeddingTaskPending,
		Attempts:    0,
	}

	data, err := json.Marshal(task)
	require.NoError(t, err)

	var decoded EmbeddingTask
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, task.TableName, decoded.TableName)
	assert.Equal(t, task.RecordID, decoded.RecordID)
	assert.Equal(t, EmbeddingTaskPending, decoded.Status)
}
