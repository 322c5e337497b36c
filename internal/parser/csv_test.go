package parser

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadpipeline/leadpipe/internal/model"
)

func TestStreamRows_HeaderAndSkipRows(t *testing.T) {
	data := []byte("ignore me\nEmail,First Name\njane@example.com,Jane\n,Bob\n")
	rowCh, errCh := StreamRows(context.Background(), data, CSVOptions{HasHeader: true, SkipRows: 1})

	var rows []map[string]string
	for r := range rowCh {
		rows = append(rows, r.data)
	}
	require.NoError(t, <-errCh)

	require.Len(t, rows, 2)
	assert.Equal(t, "jane@example.com", rows[0]["Email"])
	assert.Equal(t, "Jane", rows[0]["First Name"])
	assert.Equal(t, "Bob", rows[1]["First Name"])
}

func TestStreamRows_NoHeaderUsesPositionalColumns(t *testing.T) {
	data := []byte("a,b\nc,d\n")
	rowCh, errCh := StreamRows(context.Background(), data, CSVOptions{})

	var rows []map[string]string
	for r := range rowCh {
		rows = append(rows, r.data)
	}
	require.NoError(t, <-errCh)

	require.Len(t, rows, 2)
	assert.Equal(t, "a", rows[0]["col_0"])
	assert.Equal(t, "b", rows[0]["col_1"])
}

func TestStreamRows_CustomDelimiter(t *testing.T) {
	data := []byte("Email;Phone\njane@example.com;555-1234\n")
	rowCh, errCh := StreamRows(context.Background(), data, CSVOptions{HasHeader: true, Delimiter: ';'})

	var rows []map[string]string
	for r := range rowCh {
		rows = append(rows, r.data)
	}
	require.NoError(t, <-errCh)

	require.Len(t, rows, 1)
	assert.Equal(t, "555-1234", rows[0]["Phone"])
}

func testSource() *model.LeadSource {
	return &model.LeadSource{
		CSVConfig: model.CSVConfig{HasHeader: true},
		FieldMapping: map[string][]string{
			"email": {"Email"},
		},
		ValidationRules: model.ValidationRules{
			RequiredFields: []string{"email"},
			EmailRegex:     `^[^@]+@[^@]+\.[^@]+$`,
		},
	}
}

func TestParseBatch_MarksMissingRequiredFieldInvalid(t *testing.T) {
	data := []byte("Email,First Name\n,Jane\n")
	rows, err := ParseBatch(context.Background(), "batch-1", data, testSource())

	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.False(t, rows[0].IsValid)
	assert.Contains(t, rows[0].ValidationErrors[0], "missing required field")
}

func TestParseBatch_MarksMalformedEmailInvalid(t *testing.T) {
	data := []byte("Email,First Name\nnot-an-email,Jane\n")
	rows, err := ParseBatch(context.Background(), "batch-1", data, testSource())

	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.False(t, rows[0].IsValid)
	assert.Contains(t, rows[0].ValidationErrors[0], "invalid email format")
}

func TestParseBatch_ValidRowPasses(t *testing.T) {
	data := []byte("Email,First Name\njane@example.com,Jane\n")
	rows, err := ParseBatch(context.Background(), "batch-1", data, testSource())

	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].IsValid)
	assert.Empty(t, rows[0].ValidationErrors)
}

func TestFirstNonEmpty(t *testing.T) {
	row := map[string]string{"A": "", "B": " value "}
	assert.Equal(t, "value", FirstNonEmpty(row, []string{"A", "B"}))
	assert.Equal(t, "", FirstNonEmpty(row, []string{"missing"}))
}
