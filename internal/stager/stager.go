// Package stager implements the ingestion entrypoint: it accepts raw CSV
// bytes handed off by an out-of-scope transport (email receiver, HTTP
// upload) and turns them into a Batch row ready for the parse step.
package stager

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/leadpipeline/leadpipe/internal/blob"
	"github.com/leadpipeline/leadpipe/internal/model"
)

// Store is the persistence surface the stager needs.
type Store interface {
	GetLeadSourceBySlug(ctx context.Context, tenantID, slug string) (*model.LeadSource, error)
	GetBatchByHash(ctx context.Context, tenantID, fileHash string) (*model.Batch, error)
	CreateBatch(ctx context.Context, b *model.Batch) (created bool, err error)
	UpdateBatchStatus(ctx context.Context, id string, status model.BatchStatus, entry model.BatchLogEntry) error
}

// Clock returns the current time; overridable in tests.
type Clock func() time.Time

// Stager writes staged batches and their bytes.
type Stager struct {
	store  Store
	blob   *blob.Store
	clock  Clock
	logger *zap.Logger
}

// New builds a Stager.
func New(store Store, blobStore *blob.Store, logger *zap.Logger) *Stager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Stager{store: store, blob: blobStore, clock: time.Now, logger: logger}
}

// Origin describes where a batch's bytes came from: {channel,
// from_address} for email, {uploaded_by} for API uploads.
type Origin map[string]any

// Result is what the caller of Stage sees.
type Result struct {
	Batch         *model.Batch
	Deduplicated  bool
}

// Stage computes the file hash, returns the existing batch unchanged if
// it has already been staged for this tenant, and otherwise writes the
// bytes to blob storage, inserts a pending Batch, and logs the origin.
// It never touches raw_rows — parsing happens as a separate claim step.
func (s *Stager) Stage(ctx context.Context, tenantID, sourceSlug, filename string, data []byte, origin Origin) (*Result, error) {
	source, err := s.store.GetLeadSourceBySlug(ctx, tenantID, sourceSlug)
	if err != nil {
		return nil, eris.Wrap(err, "stager: look up lead source")
	}
	if source == nil {
		return nil, eris.Errorf("stager: unknown lead source %q for tenant %s", sourceSlug, tenantID)
	}

	hash := sha256.Sum256(data)
	fileHash := hex.EncodeToString(hash[:])

	existing, err := s.store.GetBatchByHash(ctx, tenantID, fileHash)
	if err != nil {
		return nil, eris.Wrap(err, "stager: check existing batch")
	}
	if existing != nil {
		s.logger.Debug("stager: batch already staged, returning existing", zap.String("batch_id", existing.ID))
		return &Result{Batch: existing, Deduplicated: true}, nil
	}

	objectName := blob.ObjectName(s.clock().UnixMilli(), filename)
	if s.blob != nil {
		if err := s.blob.PutIfAbsent(ctx, objectName, data); err != nil {
			return nil, eris.Wrap(err, "stager: write blob")
		}
	}

	b := &model.Batch{
		TenantID:     tenantID,
		LeadSourceID: source.ID,
		FileRef:      objectName,
		FileHash:     fileHash,
		Status:       model.BatchStatusPending,
		Counters:     model.BatchCounters{},
		Origin:       origin,
	}
	created, err := s.store.CreateBatch(ctx, b)
	if err != nil {
		return nil, eris.Wrap(err, "stager: create batch")
	}
	if !created {
		// Lost the race with a concurrent stage of the same bytes.
		return &Result{Batch: b, Deduplicated: true}, nil
	}

	event := "api_upload"
	if origin != nil {
		if ch, ok := origin["channel"]; ok && ch == "email" {
			event = "email_received"
		}
	}
	logEntry := model.BatchLogEntry{Event: event, Detail: origin, At: s.clock()}
	if err := s.store.UpdateBatchStatus(ctx, b.ID, model.BatchStatusPending, logEntry); err != nil {
		return nil, eris.Wrap(err, "stager: log origin")
	}

	return &Result{Batch: b, Deduplicated: false}, nil
}
