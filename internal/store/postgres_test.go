package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadpipeline/leadpipe/internal/model"
)

var fixedTime = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	s := &PostgresStore{pool: mock}
	return s, mock
}

func TestGetLeadSourceBySlug_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, tenant_id, slug, display_name, csv_config, field_mapping, validation_rules, created_at, updated_at\s+FROM lead_sources WHERE tenant_id = \$1 AND slug = \$2`).
		WithArgs("tenant-1", "zillow").
		WillReturnError(pgx.ErrNoRows)

	ls, err := s.GetLeadSourceBySlug(context.Background(), "tenant-1", "zillow")

	require.NoError(t, err)
	assert.Nil(t, ls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetLeadSourceBySlug_Found(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	rows := pgxmock.NewRows([]string{
		"id", "tenant_id", "slug", "display_name", "csv_config", "field_mapping", "validation_rules", "created_at", "updated_at",
	}).AddRow("src-1", "tenant-1", "zillow", "Zillow", []byte(`{}`), []byte(`{}`), []byte(`{}`), fixedTime, fixedTime)

	mock.ExpectQuery(`SELECT id, tenant_id, slug, display_name, csv_config, field_mapping, validation_rules, created_at, updated_at\s+FROM lead_sources WHERE tenant_id = \$1 AND slug = \$2`).
		WithArgs("tenant-1", "zillow").
		WillReturnRows(rows)

	ls, err := s.GetLeadSourceBySlug(context.Background(), "tenant-1", "zillow")

	require.NoError(t, err)
	require.NotNil(t, ls)
	assert.Equal(t, "src-1", ls.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateBatch_InsertsNewRow(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	rows := pgxmock.NewRows([]string{"id", "received_at", "created_at", "updated_at"}).
		AddRow("batch-1", fixedTime, fixedTime, fixedTime)

	mock.ExpectQuery(`INSERT INTO batches`).
		WithArgs("tenant-1", "src-1", "obj/path", "hash-abc", model.BatchStatusPending, []byte(`{"total":0,"parsed":0,"valid":0,"duplicate":0,"error":0}`)).
		WillReturnRows(rows)

	b := &model.Batch{
		TenantID:     "tenant-1",
		LeadSourceID: "src-1",
		FileRef:      "obj/path",
		FileHash:     "hash-abc",
		Status:       model.BatchStatusPending,
		Counters:     model.BatchCounters{},
	}

	created, err := s.CreateBatch(context.Background(), b)

	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "batch-1", b.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateBatch_ConflictReturnsExistingRow(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`INSERT INTO batches`).
		WithArgs("tenant-1", "src-1", "obj/path", "hash-abc", model.BatchStatusPending, []byte(`{"total":0,"parsed":0,"valid":0,"duplicate":0,"error":0}`)).
		WillReturnError(pgx.ErrNoRows)

	existingRows := pgxmock.NewRows([]string{
		"id", "tenant_id", "lead_source_id", "file_ref", "file_hash", "received_at", "status", "counters", "log", "errors", "origin", "created_at", "updated_at",
	}).AddRow("batch-existing", "tenant-1", "src-1", "obj/path", "hash-abc", fixedTime, model.BatchStatusPending, []byte("{}"), []byte("[]"), []byte("[]"), []byte("null"), fixedTime, fixedTime)

	mock.ExpectQuery(`SELECT (.|\n)*FROM batches WHERE tenant_id = \$1 AND file_hash = \$2`).
		WithArgs("tenant-1", "hash-abc").
		WillReturnRows(existingRows)

	b := &model.Batch{
		TenantID:     "tenant-1",
		LeadSourceID: "src-1",
		FileRef:      "obj/path",
		FileHash:     "hash-abc",
		Status:       model.BatchStatusPending,
		Counters:     model.BatchCounters{},
	}

	created, err := s.CreateBatch(context.Background(), b)

	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "batch-existing", b.ID)
}
