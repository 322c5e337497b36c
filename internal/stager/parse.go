package stager

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/leadpipeline/leadpipe/internal/blob"
	"github.com/leadpipeline/leadpipe/internal/model"
	"github.com/leadpipeline/leadpipe/internal/parser"
)

// ParseStore is the persistence surface the parse step needs, on top of
// Store.
type ParseStore interface {
	Store
	ClaimPendingBatches(ctx context.Context, limit int) ([]*model.Batch, error)
	GetLeadSource(ctx context.Context, id string) (*model.LeadSource, error)
	InsertRawRows(ctx context.Context, rows []*model.RawRow) (int64, error)
	UpdateBatchCounters(ctx context.Context, id string, counters model.BatchCounters) error
}

// Parser drives the claim-parse-persist loop over pending batches
// (spec.md §4.5), the step between staging and transformation.
type Parser struct {
	store  ParseStore
	blob   *blob.Store
	clock  Clock
	logger *zap.Logger
}

// NewParser builds a batch Parser.
func NewParser(store ParseStore, blobStore *blob.Store, logger *zap.Logger) *Parser {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Parser{store: store, blob: blobStore, clock: time.Now, logger: logger}
}

// Claim fulfills queue.ClaimFunc for pending batches.
func (p *Parser) Claim(ctx context.Context, limit int) ([]*model.Batch, error) {
	return p.store.ClaimPendingBatches(ctx, limit)
}

// Handle fulfills queue.HandleFunc: parses one claimed batch end to end.
func (p *Parser) Handle(ctx context.Context, b *model.Batch) error {
	source, err := p.store.GetLeadSource(ctx, b.LeadSourceID)
	if err != nil {
		return p.fail(ctx, b, eris.Wrap(err, "stager: look up lead source"))
	}
	if source == nil {
		return p.fail(ctx, b, eris.Errorf("stager: lead source %s not found", b.LeadSourceID))
	}

	data, err := p.blob.Get(ctx, b.FileRef)
	if err != nil {
		return p.fail(ctx, b, eris.Wrap(err, "stager: fetch staged bytes"))
	}

	rows, err := parser.ParseBatch(ctx, b.ID, data, source)
	if err != nil {
		return p.fail(ctx, b, eris.Wrap(err, "stager: parse csv"))
	}

	if _, err := p.store.InsertRawRows(ctx, rows); err != nil {
		return p.fail(ctx, b, eris.Wrap(err, "stager: insert raw rows"))
	}

	counters := model.BatchCounters{Total: len(rows), Parsed: len(rows)}
	for _, r := range rows {
		if r.IsValid {
			counters.Valid++
		} else {
			counters.Error++
		}
	}
	if err := p.store.UpdateBatchCounters(ctx, b.ID, counters); err != nil {
		return eris.Wrap(err, "stager: update batch counters")
	}

	return p.store.UpdateBatchStatus(ctx, b.ID, model.BatchStatusParsed, model.BatchLogEntry{
		Event: "parsed",
		Detail: map[string]any{"total": counters.Total, "valid": counters.Valid, "error": counters.Error},
		At:    p.clock(),
	})
}

func (p *Parser) fail(ctx context.Context, b *model.Batch, cause error) error {
	p.logger.Error("stager: parse failed", zap.String("batch_id", b.ID), zap.Error(cause))
	if err := p.store.UpdateBatchStatus(ctx, b.ID, model.BatchStatusFailed, model.BatchLogEntry{
		Event:  "parse_failed",
		Detail: map[string]any{"error": cause.Error()},
		At:     p.clock(),
	}); err != nil {
		return eris.Wrap(err, "stager: record parse failure")
	}
	return cause
}
