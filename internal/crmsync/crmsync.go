// Package crmsync implements the CRM puller: it verifies credentials,
// pages a CRM connection's people, transforms them into CrmLead rows,
// and enqueues embedding for anything new or changed, per spec.md §4.8.
package crmsync

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/leadpipeline/leadpipe/internal/model"
	"github.com/leadpipeline/leadpipe/internal/normalize"
	"github.com/leadpipeline/leadpipe/pkg/followupboss"
)

// pageSize is the number of people requested per CRM page.
const pageSize = 100

// maxErrors bounds how many per-record errors a sync log retains before
// it stops accumulating them, per spec.md §4.8.
const maxErrors = 100

// Store is the persistence surface the puller needs.
type Store interface {
	StartSyncLog(ctx context.Context, l *model.SyncLog) error
	CompleteSyncLog(ctx context.Context, l *model.SyncLog) error
	UpdateCrmConnectionSyncState(ctx context.Context, id string, status model.SyncStatus) error
	ListCrmLeadHashes(ctx context.Context, crmConnectionID string) (map[string]string, error)
	UpsertCrmLeads(ctx context.Context, leads []*model.CrmLead) (int64, error)
	GetCrmLeadByExternalID(ctx context.Context, crmConnectionID, externalID string) (*model.CrmLead, error)
	EnqueueEmbeddingTask(ctx context.Context, t *model.EmbeddingTask) error
}

// ClientFactory builds a followupboss.Client for a connection's stored
// credentials, resolved by the caller (config, secret store, etc).
type ClientFactory func(conn *model.CrmConnection) (followupboss.Client, error)

// Puller runs one sync per invocation, over one CrmConnection.
type Puller struct {
	store     Store
	newClient ClientFactory
	clock     func() time.Time
	logger    *zap.Logger
}

// New builds a Puller.
func New(store Store, newClient ClientFactory, logger *zap.Logger) *Puller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Puller{store: store, newClient: newClient, clock: time.Now, logger: logger}
}

// Sync runs the full pull for one connection: verify, page, transform,
// upsert, embed. incremental, when true, only requests people updated
// since conn.LastSyncAt, the start time of the connection's previous sync
// (whatever that sync's outcome).
func (p *Puller) Sync(ctx context.Context, conn *model.CrmConnection, incremental bool) (*model.SyncLog, error) {
	// syncStart is captured before any network call so duration_ms
	// reflects the full run, and is never confused with the CRM's own
	// updated_at watermark used for the next incremental pull.
	syncStart := p.clock().UTC()

	log := &model.SyncLog{
		TenantID:        conn.TenantID,
		CrmConnectionID: conn.ID,
		StartedAt:       syncStart,
	}
	if err := p.store.StartSyncLog(ctx, log); err != nil {
		return nil, eris.Wrap(err, "crmsync: start sync log")
	}

	client, err := p.newClient(conn)
	if err != nil {
		return p.fail(ctx, log, syncStart, eris.Wrap(err, "crmsync: build client"))
	}

	if err := client.Verify(ctx); err != nil {
		return p.fail(ctx, log, syncStart, eris.Wrap(err, "crmsync: verify credentials"))
	}

	users, err := client.ListUsers(ctx)
	if err != nil {
		return p.fail(ctx, log, syncStart, eris.Wrap(err, "crmsync: list users"))
	}
	userByID := make(map[string]followupboss.User, len(users))
	for _, u := range users {
		userByID[u.ID] = u
	}

	existingHashes, err := p.store.ListCrmLeadHashes(ctx, conn.ID)
	if err != nil {
		return p.fail(ctx, log, syncStart, eris.Wrap(err, "crmsync: load existing hashes"))
	}

	var updatedAfter *time.Time
	if incremental && conn.LastSyncAt != nil {
		updatedAfter = conn.LastSyncAt
	}

	var (
		fetched, created, updated int
		toEmbed                   []*model.CrmLead
		syncErrors                []string
	)

	offset := 0
	for {
		page, err := client.ListPeople(ctx, offset, pageSize, updatedAfter)
		if err != nil {
			return p.fail(ctx, log, syncStart, eris.Wrap(err, "crmsync: list people"))
		}

		var batch []*model.CrmLead
		for _, person := range page.People {
			fetched++
			lead := transformPerson(conn, person, userByID)
			if prevHash, ok := existingHashes[lead.ExternalID]; ok {
				if prevHash == lead.SyncHash {
					continue
				}
				updated++
			} else {
				created++
			}
			batch = append(batch, lead)
		}

		if len(batch) > 0 {
			if _, err := p.store.UpsertCrmLeads(ctx, batch); err != nil {
				if len(syncErrors) < maxErrors {
					syncErrors = append(syncErrors, err.Error())
				}
			} else {
				toEmbed = append(toEmbed, batch...)
			}
		}

		offset += len(page.People)
		if len(page.People) == 0 || offset >= page.Metadata.Total {
			break
		}
	}

	for _, lead := range toEmbed {
		row, err := p.store.GetCrmLeadByExternalID(ctx, conn.ID, lead.ExternalID)
		if err != nil || row == nil {
			if len(syncErrors) < maxErrors {
				syncErrors = append(syncErrors, "crmsync: resolve id for "+lead.ExternalID)
			}
			continue
		}
		if err := p.store.EnqueueEmbeddingTask(ctx, &model.EmbeddingTask{
			TenantID:    conn.TenantID,
			TableName:   "crm_leads",
			RecordID:    row.ID,
			TextToEmbed: EmbeddingText(lead),
		}); err != nil && len(syncErrors) < maxErrors {
			syncErrors = append(syncErrors, err.Error())
		}
	}

	status := model.SyncStatusCompleted
	if len(syncErrors) > 0 {
		status = model.SyncStatusCompletedWithErrors
	}
	return p.finish(ctx, log, syncStart, status, fetched, created, updated, syncErrors, conn)
}

func (p *Puller) fail(ctx context.Context, log *model.SyncLog, syncStart time.Time, cause error) (*model.SyncLog, error) {
	p.logger.Error("crmsync: sync failed", zap.String("crm_connection_id", log.CrmConnectionID), zap.Error(cause))
	completed := p.clock().UTC()
	log.Status = model.SyncStatusFailed
	log.CompletedAt = &completed
	log.DurationMs = completed.Sub(syncStart).Milliseconds()
	log.Errors = []string{cause.Error()}
	if err := p.store.CompleteSyncLog(ctx, log); err != nil {
		return nil, eris.Wrap(err, "crmsync: complete sync log after failure")
	}
	if err := p.store.UpdateCrmConnectionSyncState(ctx, log.CrmConnectionID, model.SyncStatusFailed); err != nil {
		p.logger.Error("crmsync: update connection sync state", zap.Error(err))
	}
	return log, cause
}

func (p *Puller) finish(ctx context.Context, log *model.SyncLog, syncStart time.Time, status model.SyncStatus, fetched, created, updated int, syncErrors []string, conn *model.CrmConnection) (*model.SyncLog, error) {
	completed := p.clock().UTC()
	log.Status = status
	log.CompletedAt = &completed
	log.DurationMs = completed.Sub(syncStart).Milliseconds()
	log.Fetched = fetched
	log.Created = created
	log.Updated = updated
	log.Errors = syncErrors

	if err := p.store.CompleteSyncLog(ctx, log); err != nil {
		return nil, eris.Wrap(err, "crmsync: complete sync log")
	}
	if err := p.store.UpdateCrmConnectionSyncState(ctx, conn.ID, status); err != nil {
		p.logger.Error("crmsync: update connection sync state", zap.Error(err))
	}
	p.logger.Info("crmsync: sync finished",
		zap.String("crm_connection_id", conn.ID),
		zap.Int("fetched", fetched), zap.Int("created", created), zap.Int("updated", updated),
		zap.Int("errors", len(syncErrors)))
	return log, nil
}

// transformPerson maps one CRM person into a CrmLead row: first
// email/phone/address wins, assigned user resolved from the id map, and
// a stable sync_hash computed over the fields that matter for change
// detection.
func transformPerson(conn *model.CrmConnection, person followupboss.Person, users map[string]followupboss.User) *model.CrmLead {
	lead := &model.CrmLead{
		TenantID:        conn.TenantID,
		CrmConnectionID: conn.ID,
		ExternalID:      person.ID,
		Email:           firstContact(person.Emails),
		Phone:           firstContact(person.Phones),
		FirstName:       person.FirstName,
		LastName:        person.LastName,
		AssignedUserID:  person.AssignedUserID,
		Stage:           person.Stage,
		Source:          person.Source,
		Tags:            person.Tags,
		SourceUpdatedAt: person.Updated,
	}
	if len(person.Addresses) > 0 {
		lead.Address = formatAddress(person.Addresses[0])
	}
	lead.EmailNormalized = normalize.Email(lead.Email)
	lead.PhoneNormalized = normalize.Phone(lead.Phone)
	lead.AddressNormalized = normalize.Address(lead.Address)

	if u, ok := users[person.AssignedUserID]; ok {
		lead.AssignedUserEmail = u.Email
		lead.AssignedUserName = u.Name
	}

	lead.SyncHash = syncHash(lead)
	return lead
}

func firstContact(contacts []followupboss.Contact) string {
	if len(contacts) == 0 {
		return ""
	}
	return contacts[0].Value
}

func formatAddress(a followupboss.Address) string {
	parts := []string{a.Street, a.City, a.State, a.Zip}
	var nonEmpty []string
	for _, p := range parts {
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, ", ")
}

// syncHash is a stable digest over the fields spec.md §4.8 defines as
// change detection input: email, phone, name, stage, assignment, and
// the CRM's own updated_at. Tags are not hashed, so a tag-only edit
// never triggers a needless re-embed.
func syncHash(l *model.CrmLead) string {
	h := sha256.New()
	for _, part := range []string{
		l.EmailNormalized, l.PhoneNormalized, l.FirstName, l.LastName,
		l.Stage, l.AssignedUserID, l.SourceUpdatedAt.UTC().Format(time.RFC3339Nano),
	} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// EmbeddingText composes the deterministic embedding input for a CRM
// lead, mirroring transform.EmbeddingText's field order for canonical
// leads so the two vector spaces stay comparable.
func EmbeddingText(l *model.CrmLead) string {
	parts := []string{l.FirstName, l.LastName, l.Email, l.Phone, l.Address, l.Stage}
	var nonEmpty []string
	for _, p := range parts {
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, " ")
}
