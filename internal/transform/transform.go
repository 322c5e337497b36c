// Package transform consumes parsed batches, applies each lead source's
// field mapping, deduplicates within (tenant, source, email), and inserts
// canonical leads ready for matching and embedding.
package transform

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/leadpipeline/leadpipe/internal/model"
	"github.com/leadpipeline/leadpipe/internal/normalize"
	"github.com/leadpipeline/leadpipe/internal/parser"
)

// canonicalFields lists every mapped field the transformer resolves from
// a raw row's column set.
var canonicalFields = []string{"email", "phone", "address", "first_name", "last_name", "lead_type", "source_record_id", "source_created_at"}

// dateLayouts are tried, after ISO 8601, in order; unparsable dates
// become null rather than failing the row.
var dateLayouts = []string{
	"01/02/2006",
	"01-02-2006",
	"2006-01-02",
}

// Store is the persistence surface the transformer needs.
type Store interface {
	ClaimParsedBatches(ctx context.Context, limit int) ([]*model.Batch, error)
	ListUnresolvedRawRows(ctx context.Context, batchID string, limit int) ([]*model.RawRow, error)
	GetLeadSource(ctx context.Context, id string) (*model.LeadSource, error)
	FindCanonicalLeadByEmail(ctx context.Context, tenantID, leadSourceID, emailNormalized string) (*model.CanonicalLead, error)
	InsertCanonicalLead(ctx context.Context, cl *model.CanonicalLead) error
	MarkRawRowResolved(ctx context.Context, id, canonicalLeadID string) error
	MarkRawRowDuplicate(ctx context.Context, id, duplicateOfID string) error
	InsertLineage(ctx context.Context, entry *model.LineageEntry) error
	EnqueueEmbeddingTask(ctx context.Context, t *model.EmbeddingTask) error
	UpdateBatchStatus(ctx context.Context, id string, status model.BatchStatus, entry model.BatchLogEntry) error
	UpdateBatchCounters(ctx context.Context, id string, counters model.BatchCounters) error
}

// MatchTrigger is notified with the id of every newly-inserted canonical
// lead, so the caller can hand the batch's output to the matcher.
type MatchTrigger func(ctx context.Context, canonicalLeadIDs []string)

// Transformer drives the claim-transform-persist loop over parsed
// batches.
type Transformer struct {
	store        Store
	onTransformed MatchTrigger
	clock        func() time.Time
	rowBatchSize int
	logger       *zap.Logger
}

// New builds a Transformer.
func New(store Store, onTransformed MatchTrigger, logger *zap.Logger) *Transformer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Transformer{store: store, onTransformed: onTransformed, clock: time.Now, rowBatchSize: 500, logger: logger}
}

// Claim fulfills queue.ClaimFunc for parsed batches.
func (t *Transformer) Claim(ctx context.Context, limit int) ([]*model.Batch, error) {
	return t.store.ClaimParsedBatches(ctx, limit)
}

// Handle fulfills queue.HandleFunc: transforms every unresolved row of
// one claimed batch, in row_number order (guaranteed by
// ListUnresolvedRawRows).
func (t *Transformer) Handle(ctx context.Context, b *model.Batch) error {
	source, err := t.store.GetLeadSource(ctx, b.LeadSourceID)
	if err != nil {
		return eris.Wrap(err, "transform: look up lead source")
	}
	if source == nil {
		return eris.Errorf("transform: lead source %s not found", b.LeadSourceID)
	}

	var newCanonicalIDs []string
	var failed, duplicate int

	for {
		rows, err := t.store.ListUnresolvedRawRows(ctx, b.ID, t.rowBatchSize)
		if err != nil {
			return eris.Wrap(err, "transform: list unresolved rows")
		}
		if len(rows) == 0 {
			break
		}

		for _, row := range rows {
			canonicalID, dup, err := t.transformRow(ctx, b, source, row)
			if err != nil {
				t.logger.Error("transform: row failed", zap.String("batch_id", b.ID), zap.Int("row", row.RowNumber), zap.Error(err))
				failed++
				continue
			}
			if dup {
				duplicate++
				continue
			}
			if canonicalID != "" {
				newCanonicalIDs = append(newCanonicalIDs, canonicalID)
			}
		}
	}

	counters := b.Counters
	counters.Duplicate += duplicate
	if err := t.store.UpdateBatchCounters(ctx, b.ID, counters); err != nil {
		return eris.Wrap(err, "transform: update batch counters")
	}

	status := model.BatchStatusCompleted
	if failed > 0 {
		status = model.BatchStatusPartial
	}
	if err := t.store.UpdateBatchStatus(ctx, b.ID, status, model.BatchLogEntry{
		Event:  "transformed",
		Detail: map[string]any{"new_canonical_leads": len(newCanonicalIDs), "duplicate": duplicate, "failed": failed},
		At:     t.clock(),
	}); err != nil {
		return eris.Wrap(err, "transform: update batch status")
	}

	if t.onTransformed != nil && len(newCanonicalIDs) > 0 {
		t.onTransformed(ctx, newCanonicalIDs)
	}
	return nil
}

// transformRow maps, dedups, inserts, and enqueues embedding for one raw
// row. It returns (_, true, nil) when the row was a duplicate.
func (t *Transformer) transformRow(ctx context.Context, b *model.Batch, source *model.LeadSource, row *model.RawRow) (string, bool, error) {
	fields := mapFields(row.RawData, source.FieldMapping)

	emailNorm := normalize.Email(fields["email"])
	if emailNorm != "" {
		existing, err := t.store.FindCanonicalLeadByEmail(ctx, b.TenantID, b.LeadSourceID, emailNorm)
		if err != nil {
			return "", false, eris.Wrap(err, "transform: dedup lookup")
		}
		if existing != nil {
			if err := t.store.MarkRawRowDuplicate(ctx, row.ID, existing.ID); err != nil {
				return "", false, eris.Wrap(err, "transform: mark duplicate")
			}
			return "", true, nil
		}
	}

	cl := &model.CanonicalLead{
		TenantID:          b.TenantID,
		LeadSourceID:      b.LeadSourceID,
		Email:             fields["email"],
		EmailNormalized:   emailNorm,
		Phone:             fields["phone"],
		PhoneNormalized:   normalize.Phone(fields["phone"]),
		Address:           fields["address"],
		AddressNormalized: normalize.Address(fields["address"]),
		FirstName:         fields["first_name"],
		LastName:          fields["last_name"],
		LeadType:          fields["lead_type"],
		SourceRecordID:    fields["source_record_id"],
		SourceCreatedAt:   parseSourceDate(fields["source_created_at"], source.CSVConfig.DateFormat),
		MatchStatus:       model.MatchStatusPending,
		RawData:           toAnyMap(row.RawData),
	}

	if err := t.store.InsertCanonicalLead(ctx, cl); err != nil {
		return "", false, eris.Wrap(err, "transform: insert canonical lead")
	}

	if err := t.store.MarkRawRowResolved(ctx, row.ID, cl.ID); err != nil {
		return "", false, eris.Wrap(err, "transform: mark row resolved")
	}

	if err := t.store.InsertLineage(ctx, &model.LineageEntry{
		TenantID:           b.TenantID,
		SourceTable:        "raw_rows",
		SourceID:           row.ID,
		TargetTable:        "canonical_leads",
		TargetID:           cl.ID,
		Operation:          model.LineageOpCreate,
		TransformationType: "normalize",
	}); err != nil {
		return "", false, eris.Wrap(err, "transform: write lineage")
	}

	if err := t.store.EnqueueEmbeddingTask(ctx, &model.EmbeddingTask{
		TenantID:    b.TenantID,
		TableName:   "canonical_leads",
		RecordID:    cl.ID,
		TextToEmbed: EmbeddingText(cl),
	}); err != nil {
		return "", false, eris.Wrap(err, "transform: enqueue embedding")
	}

	return cl.ID, false, nil
}

// mapFields resolves every canonical field via the source's ordered
// candidate column list, first non-empty trimmed value wins.
func mapFields(row map[string]string, mapping map[string][]string) map[string]string {
	out := make(map[string]string, len(canonicalFields))
	for _, field := range canonicalFields {
		out[field] = parser.FirstNonEmpty(row, mapping[field])
	}
	return out
}

// parseSourceDate tries ISO 8601 first, then the source's configured
// date_format, then a fixed set of common fallbacks. An unparsable date
// is not a row-level failure — it becomes null.
func parseSourceDate(raw, sourceFormat string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return &ts
	}
	layouts := dateLayouts
	if sourceFormat != "" {
		layouts = append([]string{sourceFormat}, dateLayouts...)
	}
	for _, layout := range layouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return &ts
		}
	}
	return nil
}

func toAnyMap(m map[string]string) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// EmbeddingText composes the deterministic embedding input for a
// canonical lead: its non-empty attributes joined in a fixed order.
func EmbeddingText(cl *model.CanonicalLead) string {
	parts := []string{cl.FirstName, cl.LastName, cl.Email, cl.Phone, cl.Address, cl.LeadType}
	var nonEmpty []string
	for _, p := range parts {
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, " ")
}
