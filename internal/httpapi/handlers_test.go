package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/leadpipeline/leadpipe/internal/model"
	"github.com/leadpipeline/leadpipe/internal/review"
	"github.com/leadpipeline/leadpipe/internal/stager"
	"github.com/leadpipeline/leadpipe/internal/store"
)

func TestHealth_ReturnsOK(t *testing.T) {
	h := &Handlers{Logger: zap.NewNop()}
	srv := New(":0", h, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok"`)
}

func TestStageCSV_503WhenStagerNotConfigured(t *testing.T) {
	h := &Handlers{Logger: zap.NewNop()}
	srv := New(":0", h, zap.NewNop())

	req := httptest.NewRequest(http.MethodPost, "/api/lead-sources/zillow/uploads?tenant_id=t1&filename=leads.csv", strings.NewReader("a,b\n1,2\n"))
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRunMatcher_503WhenNotConfigured(t *testing.T) {
	h := &Handlers{Logger: zap.NewNop()}
	srv := New(":0", h, zap.NewNop())

	req := httptest.NewRequest(http.MethodPost, "/api/runs/matcher", strings.NewReader(`{"tenant_id":"t1"}`))
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

type fakeStagerStore struct {
	source *model.LeadSource
}

func (f *fakeStagerStore) GetLeadSourceBySlug(context.Context, string, string) (*model.LeadSource, error) {
	return f.source, nil
}
func (f *fakeStagerStore) GetBatchByHash(context.Context, string, string) (*model.Batch, error) {
	return nil, nil
}
func (f *fakeStagerStore) CreateBatch(_ context.Context, b *model.Batch) (bool, error) {
	b.ID = "batch-1"
	return true, nil
}
func (f *fakeStagerStore) UpdateBatchStatus(context.Context, string, model.BatchStatus, model.BatchLogEntry) error {
	return nil
}

func TestStageCSV_AcceptsUploadThroughRealStager(t *testing.T) {
	store := &fakeStagerStore{source: &model.LeadSource{ID: "src-1", TenantID: "t1", Slug: "zillow"}}
	h := &Handlers{Stager: stager.New(store, nil, zap.NewNop()), Logger: zap.NewNop()}
	srv := New(":0", h, zap.NewNop())

	req := httptest.NewRequest(http.MethodPost, "/api/lead-sources/zillow/uploads?tenant_id=t1&filename=leads.csv", strings.NewReader("a,b\n1,2\n"))
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, rec.Body.String(), "batch_id")
}

type fakeReviewStore struct {
	match     *model.Match
	approveErr error
	rejectErr  error
}

func (f *fakeReviewStore) ApproveCandidate(context.Context, string, string) (*model.Match, error) {
	if f.approveErr != nil {
		return nil, f.approveErr
	}
	return f.match, nil
}
func (f *fakeReviewStore) RejectCandidate(context.Context, string, string, string) error {
	return f.rejectErr
}
func (f *fakeReviewStore) SweepExpiredCandidates(context.Context) (int64, error) { return 0, nil }

func TestApproveCandidate_RequiresReviewerID(t *testing.T) {
	h := &Handlers{Resolver: review.New(&fakeReviewStore{}, zap.NewNop()), Logger: zap.NewNop()}
	srv := New(":0", h, zap.NewNop())

	req := httptest.NewRequest(http.MethodPost, "/api/candidates/cand-1/approve", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestApproveCandidate_Succeeds(t *testing.T) {
	store := &fakeReviewStore{match: &model.Match{ID: "match-1"}}
	h := &Handlers{Resolver: review.New(store, zap.NewNop()), Logger: zap.NewNop()}
	srv := New(":0", h, zap.NewNop())

	req := httptest.NewRequest(http.MethodPost, "/api/candidates/cand-1/approve", strings.NewReader(`{"reviewer_id":"rev-1"}`))
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "match-1")
}

func TestApproveCandidate_NotPendingReturnsConflict(t *testing.T) {
	rstore := &fakeReviewStore{approveErr: eris.Wrap(store.ErrCandidateNotPending, "store: approve candidate")}
	h := &Handlers{Resolver: review.New(rstore, zap.NewNop()), Logger: zap.NewNop()}
	srv := New(":0", h, zap.NewNop())

	req := httptest.NewRequest(http.MethodPost, "/api/candidates/cand-1/approve", strings.NewReader(`{"reviewer_id":"rev-1"}`))
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestApproveCandidate_NotFoundReturns404(t *testing.T) {
	rstore := &fakeReviewStore{approveErr: eris.Wrapf(pgx.ErrNoRows, "store: candidate %s not found", "cand-1")}
	h := &Handlers{Resolver: review.New(rstore, zap.NewNop()), Logger: zap.NewNop()}
	srv := New(":0", h, zap.NewNop())

	req := httptest.NewRequest(http.MethodPost, "/api/candidates/cand-1/approve", strings.NewReader(`{"reviewer_id":"rev-1"}`))
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestApproveCandidate_InfraFailureReturns500(t *testing.T) {
	rstore := &fakeReviewStore{approveErr: eris.New("store: connection refused")}
	h := &Handlers{Resolver: review.New(rstore, zap.NewNop()), Logger: zap.NewNop()}
	srv := New(":0", h, zap.NewNop())

	req := httptest.NewRequest(http.MethodPost, "/api/candidates/cand-1/approve", strings.NewReader(`{"reviewer_id":"rev-1"}`))
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRejectCandidate_NotPendingReturnsConflict(t *testing.T) {
	rstore := &fakeReviewStore{rejectErr: eris.Wrap(store.ErrCandidateNotPending, "store: reject candidate")}
	h := &Handlers{Resolver: review.New(rstore, zap.NewNop()), Logger: zap.NewNop()}
	srv := New(":0", h, zap.NewNop())

	req := httptest.NewRequest(http.MethodPost, "/api/candidates/cand-1/reject", strings.NewReader(`{"reviewer_id":"rev-1"}`))
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestRejectCandidate_NotFoundReturns404(t *testing.T) {
	rstore := &fakeReviewStore{rejectErr: eris.Wrapf(pgx.ErrNoRows, "store: candidate %s not found", "cand-1")}
	h := &Handlers{Resolver: review.New(rstore, zap.NewNop()), Logger: zap.NewNop()}
	srv := New(":0", h, zap.NewNop())

	req := httptest.NewRequest(http.MethodPost, "/api/candidates/cand-1/reject", strings.NewReader(`{"reviewer_id":"rev-1"}`))
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBatchSizeOrDefault(t *testing.T) {
	assert.Equal(t, defaultRunBatchSize, batchSizeOrDefault(0))
	assert.Equal(t, 25, batchSizeOrDefault(25))
}
