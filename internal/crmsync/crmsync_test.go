package crmsync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadpipeline/leadpipe/internal/model"
	"github.com/leadpipeline/leadpipe/pkg/followupboss"
)

type fakeStore struct {
	hashes         map[string]string
	upserted       []*model.CrmLead
	upsertErr      error
	byExternalID   map[string]*model.CrmLead
	enqueued       []*model.EmbeddingTask
	startedLog     *model.SyncLog
	completedLog   *model.SyncLog
	connStatus     model.SyncStatus
}

func (f *fakeStore) StartSyncLog(_ context.Context, l *model.SyncLog) error {
	l.ID = 1
	f.startedLog = l
	return nil
}

func (f *fakeStore) CompleteSyncLog(_ context.Context, l *model.SyncLog) error {
	f.completedLog = l
	return nil
}

func (f *fakeStore) UpdateCrmConnectionSyncState(_ context.Context, _ string, status model.SyncStatus) error {
	f.connStatus = status
	return nil
}

func (f *fakeStore) ListCrmLeadHashes(context.Context, string) (map[string]string, error) {
	return f.hashes, nil
}

func (f *fakeStore) UpsertCrmLeads(_ context.Context, leads []*model.CrmLead) (int64, error) {
	if f.upsertErr != nil {
		return 0, f.upsertErr
	}
	f.upserted = append(f.upserted, leads...)
	for _, l := range leads {
		if f.byExternalID == nil {
			f.byExternalID = map[string]*model.CrmLead{}
		}
		row := *l
		row.ID = "row-" + l.ExternalID
		f.byExternalID[l.ExternalID] = &row
	}
	return int64(len(leads)), nil
}

func (f *fakeStore) GetCrmLeadByExternalID(_ context.Context, _, externalID string) (*model.CrmLead, error) {
	return f.byExternalID[externalID], nil
}

func (f *fakeStore) EnqueueEmbeddingTask(_ context.Context, t *model.EmbeddingTask) error {
	f.enqueued = append(f.enqueued, t)
	return nil
}

type fakeClient struct {
	verifyErr error
	users     []followupboss.User
	pages     [][]followupboss.Person
	total     int
	calls     int

	updatedAfter *time.Time
}

func (f *fakeClient) Verify(context.Context) error { return f.verifyErr }

func (f *fakeClient) ListUsers(context.Context) ([]followupboss.User, error) { return f.users, nil }

func (f *fakeClient) ListPeople(_ context.Context, offset, _ int, updatedAfter *time.Time) (*followupboss.PeoplePage, error) {
	f.updatedAfter = updatedAfter
	idx := f.calls
	f.calls++
	if idx >= len(f.pages) {
		return &followupboss.PeoplePage{Metadata: followupboss.Metadata{Offset: offset, Total: f.total}}, nil
	}
	return &followupboss.PeoplePage{
		Metadata: followupboss.Metadata{Offset: offset, Total: f.total},
		People:   f.pages[idx],
	}, nil
}

func testConnection() *model.CrmConnection {
	return &model.CrmConnection{ID: "conn-1", TenantID: "tenant-1", Provider: "followupboss"}
}

func TestSync_NewLeadIsUpsertedAndEnqueuedForEmbedding(t *testing.T) {
	store := &fakeStore{hashes: map[string]string{}}
	client := &fakeClient{
		total: 1,
		pages: [][]followupboss.Person{
			{{ID: "p1", FirstName: "Jane", Emails: []followupboss.Contact{{Value: "jane@example.com"}}}},
		},
	}
	p := New(store, func(*model.CrmConnection) (followupboss.Client, error) { return client, nil }, nil)

	log, err := p.Sync(context.Background(), testConnection(), false)

	require.NoError(t, err)
	assert.Equal(t, model.SyncStatusCompleted, log.Status)
	assert.Equal(t, 1, log.Fetched)
	assert.Equal(t, 1, log.Created)
	require.Len(t, store.upserted, 1)
	require.Len(t, store.enqueued, 1)
	assert.Equal(t, "row-p1", store.enqueued[0].RecordID)
}

func TestSync_UnchangedLeadIsSkipped(t *testing.T) {
	person := followupboss.Person{ID: "p1", FirstName: "Jane", Emails: []followupboss.Contact{{Value: "jane@example.com"}}}
	lead := transformPerson(testConnection(), person, nil)

	store := &fakeStore{hashes: map[string]string{"p1": lead.SyncHash}}
	client := &fakeClient{total: 1, pages: [][]followupboss.Person{{person}}}
	p := New(store, func(*model.CrmConnection) (followupboss.Client, error) { return client, nil }, nil)

	log, err := p.Sync(context.Background(), testConnection(), false)

	require.NoError(t, err)
	assert.Equal(t, 1, log.Fetched)
	assert.Equal(t, 0, log.Created)
	assert.Equal(t, 0, log.Updated)
	assert.Empty(t, store.upserted)
}

func TestSync_ChangedLeadIsUpsertedAsUpdate(t *testing.T) {
	person := followupboss.Person{ID: "p1", FirstName: "Jane", Emails: []followupboss.Contact{{Value: "jane@example.com"}}}
	store := &fakeStore{hashes: map[string]string{"p1": "stale-hash"}}
	client := &fakeClient{total: 1, pages: [][]followupboss.Person{{person}}}
	p := New(store, func(*model.CrmConnection) (followupboss.Client, error) { return client, nil }, nil)

	log, err := p.Sync(context.Background(), testConnection(), false)

	require.NoError(t, err)
	assert.Equal(t, 1, log.Updated)
	assert.Equal(t, 0, log.Created)
}

func TestSync_UpdatedAtOnlyChangeIsDetectedAsUpdate(t *testing.T) {
	person := followupboss.Person{
		ID: "p1", FirstName: "Jane",
		Emails:  []followupboss.Contact{{Value: "jane@example.com"}},
		Updated: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	staleLead := transformPerson(testConnection(), person, nil)

	person.Updated = time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	store := &fakeStore{hashes: map[string]string{"p1": staleLead.SyncHash}}
	client := &fakeClient{total: 1, pages: [][]followupboss.Person{{person}}}
	p := New(store, func(*model.CrmConnection) (followupboss.Client, error) { return client, nil }, nil)

	log, err := p.Sync(context.Background(), testConnection(), false)

	require.NoError(t, err)
	assert.Equal(t, 1, log.Updated)
	assert.Equal(t, 0, log.Created)
}

func TestSync_TagOnlyChangeIsSkipped(t *testing.T) {
	person := followupboss.Person{
		ID: "p1", FirstName: "Jane",
		Emails: []followupboss.Contact{{Value: "jane@example.com"}},
		Tags:   []string{"hot"},
	}
	staleLead := transformPerson(testConnection(), person, nil)

	person.Tags = []string{"cold", "buyer"}
	store := &fakeStore{hashes: map[string]string{"p1": staleLead.SyncHash}}
	client := &fakeClient{total: 1, pages: [][]followupboss.Person{{person}}}
	p := New(store, func(*model.CrmConnection) (followupboss.Client, error) { return client, nil }, nil)

	log, err := p.Sync(context.Background(), testConnection(), false)

	require.NoError(t, err)
	assert.Equal(t, 0, log.Updated)
	assert.Equal(t, 0, log.Created)
	assert.Empty(t, store.upserted)
}

func TestSync_VerifyFailureFailsTheRun(t *testing.T) {
	store := &fakeStore{}
	client := &fakeClient{verifyErr: assert.AnError}
	p := New(store, func(*model.CrmConnection) (followupboss.Client, error) { return client, nil }, nil)

	log, err := p.Sync(context.Background(), testConnection(), false)

	require.Error(t, err)
	assert.Equal(t, model.SyncStatusFailed, log.Status)
	assert.Equal(t, model.SyncStatusFailed, store.connStatus)
}

func TestSync_IncrementalOnlyRequestsAfterLastSync(t *testing.T) {
	store := &fakeStore{hashes: map[string]string{}}
	client := &fakeClient{total: 0}
	p := New(store, func(*model.CrmConnection) (followupboss.Client, error) { return client, nil }, nil)

	last := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	conn := testConnection()
	conn.LastSyncAt = &last

	_, err := p.Sync(context.Background(), conn, true)

	require.NoError(t, err)
	require.NotNil(t, client.updatedAfter)
	assert.Equal(t, last, *client.updatedAfter)
}

func TestSyncHash_ChangesWhenSourceUpdatedAtChanges(t *testing.T) {
	base := &model.CrmLead{EmailNormalized: "jane@example.com", SourceUpdatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	later := &model.CrmLead{EmailNormalized: "jane@example.com", SourceUpdatedAt: time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)}

	assert.NotEqual(t, syncHash(base), syncHash(later))
}

func TestSyncHash_IgnoresTagOnlyChanges(t *testing.T) {
	updated := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	base := &model.CrmLead{EmailNormalized: "jane@example.com", SourceUpdatedAt: updated, Tags: []string{"hot", "buyer"}}
	retagged := &model.CrmLead{EmailNormalized: "jane@example.com", SourceUpdatedAt: updated, Tags: []string{"cold"}}

	assert.Equal(t, syncHash(base), syncHash(retagged))
}

func TestEmbeddingText_JoinsNonEmptyFields(t *testing.T) {
	l := &model.CrmLead{FirstName: "Jane", Email: "jane@example.com"}
	assert.Equal(t, "Jane jane@example.com", EmbeddingText(l))
}
