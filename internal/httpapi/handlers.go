package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/leadpipeline/leadpipe/internal/crmsync"
	"github.com/leadpipeline/leadpipe/internal/embedqueue"
	"github.com/leadpipeline/leadpipe/internal/matcher"
	"github.com/leadpipeline/leadpipe/internal/model"
	"github.com/leadpipeline/leadpipe/internal/queue"
	"github.com/leadpipeline/leadpipe/internal/review"
	"github.com/leadpipeline/leadpipe/internal/stager"
	"github.com/leadpipeline/leadpipe/internal/store"
	"github.com/leadpipeline/leadpipe/internal/transform"
)

// defaultRunBatchSize bounds one administrative kick when the caller
// does not specify batch_size.
const defaultRunBatchSize = 50

// ConnectionStore is the slice of persistence the CRM sync endpoint
// needs beyond the puller itself.
type ConnectionStore interface {
	ListActiveCrmConnections(ctx context.Context, tenantID string) ([]*model.CrmConnection, error)
}

// Handlers implements the pipeline's admin HTTP endpoints. Every field
// is optional except for logging: a nil dependency makes the endpoints
// that need it answer 503 rather than panic, so a partially-configured
// deployment can still serve the endpoints it has credentials for.
type Handlers struct {
	Stager      *stager.Stager
	Transformer *transform.Transformer
	Matcher     *matcher.Matcher
	Embedder    *embedqueue.Worker
	Puller      *crmsync.Puller
	Resolver    *review.Resolver
	Connections ConnectionStore
	Logger      *zap.Logger
}

// Health reports the server is up.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// StageCSV accepts a raw CSV upload for a lead source, per spec.md §4.2.
// tenant_id and filename are query parameters; the body is the file.
func (h *Handlers) StageCSV(w http.ResponseWriter, r *http.Request) {
	if h.Stager == nil {
		writeError(w, http.StatusServiceUnavailable, "staging is not configured", nil)
		return
	}
	slug := chi.URLParam(r, "slug")
	tenantID := r.URL.Query().Get("tenant_id")
	filename := r.URL.Query().Get("filename")
	if tenantID == "" || filename == "" {
		writeError(w, http.StatusBadRequest, "tenant_id and filename are required", nil)
		return
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, 64<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read upload body", err)
		return
	}

	origin := stager.Origin{"channel": "api", "remote_addr": r.RemoteAddr}
	result, err := h.Stager.Stage(r.Context(), tenantID, slug, filename, data, origin)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "staging failed", err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"batch_id":     result.Batch.ID,
		"deduplicated": result.Deduplicated,
	})
}

type reviewRequest struct {
	ReviewerID string `json:"reviewer_id"`
	Notes      string `json:"notes,omitempty"`
}

// ApproveCandidate applies an operator's approval to a pending match
// candidate, per spec.md §4.9.
func (h *Handlers) ApproveCandidate(w http.ResponseWriter, r *http.Request) {
	if h.Resolver == nil {
		writeError(w, http.StatusServiceUnavailable, "review is not configured", nil)
		return
	}
	candidateID := chi.URLParam(r, "candidateID")
	var body reviewRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.ReviewerID == "" {
		writeError(w, http.StatusBadRequest, "reviewer_id is required", err)
		return
	}
	m, err := h.Resolver.Approve(r.Context(), candidateID, body.ReviewerID)
	if err != nil {
		writeCandidateError(w, "approve failed", err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// RejectCandidate applies an operator's rejection to a pending match
// candidate, per spec.md §4.9.
func (h *Handlers) RejectCandidate(w http.ResponseWriter, r *http.Request) {
	if h.Resolver == nil {
		writeError(w, http.StatusServiceUnavailable, "review is not configured", nil)
		return
	}
	candidateID := chi.URLParam(r, "candidateID")
	var body reviewRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.ReviewerID == "" {
		writeError(w, http.StatusBadRequest, "reviewer_id is required", err)
		return
	}
	if err := h.Resolver.Reject(r.Context(), candidateID, body.ReviewerID, body.Notes); err != nil {
		writeCandidateError(w, "reject failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "rejected"})
}

// writeCandidateError maps a review.Resolver error to the right status:
// 409 only for the actual not-pending conflict, 404 when the candidate
// doesn't exist, 500 for anything else (store/infra failures).
func writeCandidateError(w http.ResponseWriter, msg string, err error) {
	switch {
	case errors.Is(err, store.ErrCandidateNotPending):
		writeError(w, http.StatusConflict, msg, err)
	case errors.Is(err, pgx.ErrNoRows):
		writeError(w, http.StatusNotFound, msg, err)
	default:
		writeError(w, http.StatusInternalServerError, msg, err)
	}
}

type runRequest struct {
	TenantID    string `json:"tenant_id"`
	BatchSize   int    `json:"batch_size,omitempty"`
	Incremental bool   `json:"incremental,omitempty"`
}

// RunTransformer runs one claim-and-transform pass over parsed batches.
func (h *Handlers) RunTransformer(w http.ResponseWriter, r *http.Request) {
	if h.Transformer == nil {
		writeError(w, http.StatusServiceUnavailable, "transformer is not configured", nil)
		return
	}
	body := decodeRunRequest(r)
	n, err := queue.RunOnce(r.Context(), h.Logger, h.Transformer.Claim, h.Transformer.Handle, batchSizeOrDefault(body.BatchSize))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "transformer run failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"claimed": n})
}

// RunMatcher runs one claim-and-match pass for a tenant's pending
// canonical leads. tenant_id is required: the matcher's claim is
// always scoped to one tenant.
func (h *Handlers) RunMatcher(w http.ResponseWriter, r *http.Request) {
	if h.Matcher == nil {
		writeError(w, http.StatusServiceUnavailable, "matcher is not configured", nil)
		return
	}
	body := decodeRunRequest(r)
	if body.TenantID == "" {
		writeError(w, http.StatusBadRequest, "tenant_id is required", nil)
		return
	}
	n, err := queue.RunOnce(r.Context(), h.Logger, h.Matcher.ClaimForTenant(body.TenantID), h.Matcher.Handle, batchSizeOrDefault(body.BatchSize))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "matcher run failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"claimed": n})
}

// RunEmbeddings runs one embedding batch.
func (h *Handlers) RunEmbeddings(w http.ResponseWriter, r *http.Request) {
	if h.Embedder == nil {
		writeError(w, http.StatusServiceUnavailable, "embedder is not configured", nil)
		return
	}
	body := decodeRunRequest(r)
	n, err := h.Embedder.Run(r.Context(), batchSizeOrDefault(body.BatchSize))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "embedding run failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"claimed": n})
}

// RunCrmSync pulls every active CRM connection for a tenant.
func (h *Handlers) RunCrmSync(w http.ResponseWriter, r *http.Request) {
	if h.Puller == nil || h.Connections == nil {
		writeError(w, http.StatusServiceUnavailable, "crm sync is not configured", nil)
		return
	}
	body := decodeRunRequest(r)
	if body.TenantID == "" {
		writeError(w, http.StatusBadRequest, "tenant_id is required", nil)
		return
	}
	conns, err := h.Connections.ListActiveCrmConnections(r.Context(), body.TenantID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list connections", err)
		return
	}

	results := make([]map[string]any, 0, len(conns))
	for _, conn := range conns {
		log, err := h.Puller.Sync(r.Context(), conn, body.Incremental)
		entry := map[string]any{"crm_connection_id": conn.ID}
		if err != nil {
			entry["error"] = err.Error()
		} else {
			entry["status"] = log.Status
			entry["fetched"] = log.Fetched
			entry["created"] = log.Created
			entry["updated"] = log.Updated
		}
		results = append(results, entry)
	}
	writeJSON(w, http.StatusOK, map[string]any{"connections": results})
}

func decodeRunRequest(r *http.Request) runRequest {
	var body runRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}
	return body
}

func batchSizeOrDefault(n int) int {
	if n <= 0 {
		return defaultRunBatchSize
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string, err error) {
	w.WriteHeader(status)
	resp := map[string]string{"error": msg}
	if err != nil {
		resp["detail"] = err.Error()
	}
	_ = json.NewEncoder(w).Encode(resp)
}
