package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"

	"github.com/leadpipeline/leadpipe/internal/db"
	"github.com/leadpipeline/leadpipe/internal/model"
)

// ListActiveCrmConnections returns every enabled CRM connection for a
// tenant, for the puller's sync loop to iterate.
func (s *PostgresStore) ListActiveCrmConnections(ctx context.Context, tenantID string) ([]*model.CrmConnection, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, tenant_id, provider, base_url, credential_ref, active, last_sync_at, last_sync_status, created_at, updated_at
		FROM crm_connections WHERE tenant_id = $1 AND active ORDER BY provider`, tenantID)
	if err != nil {
		return nil, eris.Wrap(err, "store: list crm connections")
	}
	defer rows.Close()

	var out []*model.CrmConnection
	for rows.Next() {
		c := &model.CrmConnection{}
		if err := rows.Scan(&c.ID, &c.TenantID, &c.Provider, &c.BaseURL, &c.CredentialRef, &c.Active,
			&c.LastSyncAt, &c.LastSyncStatus, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "store: scan crm connection")
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "store: iterate crm connections")
}

// UpdateCrmConnectionSyncState records the outcome of the most recent sync
// and sets last_sync_at to that sync's start time, read from its sync log.
func (s *PostgresStore) UpdateCrmConnectionSyncState(ctx context.Context, id string, status model.SyncStatus) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE crm_connections SET
			last_sync_at = COALESCE((SELECT started_at FROM sync_logs WHERE crm_connection_id = $2 ORDER BY started_at DESC LIMIT 1), now()),
			last_sync_status = $1, updated_at = now()
		WHERE id = $2`,
		status, id)
	if err != nil {
		return eris.Wrap(err, "store: update crm connection sync state")
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("store: crm connection %s not found", id)
	}
	return nil
}

// UpsertCrmLeads bulk-upserts pulled CRM records keyed on
// (crm_connection_id, external_id), matching rows already carrying the
// latest sync_hash are left untouched by the caller before calling this.
func (s *PostgresStore) UpsertCrmLeads(ctx context.Context, leads []*model.CrmLead) (int64, error) {
	if len(leads) == 0 {
		return 0, nil
	}
	rows := make([][]any, len(leads))
	for i, l := range leads {
		rows[i] = []any{
			l.TenantID, l.CrmConnectionID, l.ExternalID, l.Email, l.EmailNormalized, l.Phone, l.PhoneNormalized,
			l.Address, l.AddressNormalized, l.FirstName, l.LastName, l.AssignedUserID, l.AssignedUserEmail,
			l.AssignedUserName, l.Stage, l.Source, tagsJSON(l.Tags), l.SourceUpdatedAt, l.SyncHash,
		}
	}
	return db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table: "crm_leads",
		Columns: []string{
			"tenant_id", "crm_connection_id", "external_id", "email", "email_normalized", "phone", "phone_normalized",
			"address", "address_normalized", "first_name", "last_name", "assigned_user_id", "assigned_user_email",
			"assigned_user_name", "stage", "source", "tags", "source_updated_at", "sync_hash",
		},
		ConflictKeys: []string{"crm_connection_id", "external_id"},
	}, rows)
}

// ListCrmLeadHashes returns the current sync_hash of every lead already
// stored for a connection, keyed by external_id, so the puller can tell
// new and changed records apart from unchanged ones before upserting.
func (s *PostgresStore) ListCrmLeadHashes(ctx context.Context, crmConnectionID string) (map[string]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT external_id, sync_hash FROM crm_leads WHERE crm_connection_id = $1`, crmConnectionID)
	if err != nil {
		return nil, eris.Wrap(err, "store: list crm lead hashes")
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var externalID, hash string
		if err := rows.Scan(&externalID, &hash); err != nil {
			return nil, eris.Wrap(err, "store: scan crm lead hash")
		}
		out[externalID] = hash
	}
	return out, eris.Wrap(rows.Err(), "store: iterate crm lead hashes")
}

// GetCrmLeadByExternalID looks up an upserted lead by its CRM-side id,
// so the puller can resolve ids for freshly-inserted rows.
func (s *PostgresStore) GetCrmLeadByExternalID(ctx context.Context, crmConnectionID, externalID string) (*model.CrmLead, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, tenant_id, crm_connection_id, external_id, email, email_normalized, phone, phone_normalized,
			address, address_normalized, first_name, last_name, assigned_user_id, assigned_user_email,
			assigned_user_name, stage, source, source_updated_at, last_synced_at, created_at, updated_at
		FROM crm_leads WHERE crm_connection_id = $1 AND external_id = $2`, crmConnectionID, externalID)

	c := &model.CrmLead{}
	var sourceUpdatedAt *time.Time
	err := row.Scan(&c.ID, &c.TenantID, &c.CrmConnectionID, &c.ExternalID, &c.Email, &c.EmailNormalized,
		&c.Phone, &c.PhoneNormalized, &c.Address, &c.AddressNormalized, &c.FirstName, &c.LastName,
		&c.AssignedUserID, &c.AssignedUserEmail, &c.AssignedUserName, &c.Stage, &c.Source, &sourceUpdatedAt,
		&c.LastSyncedAt, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "store: get crm lead by external id")
	}
	if sourceUpdatedAt != nil {
		c.SourceUpdatedAt = *sourceUpdatedAt
	}
	return c, nil
}

// GetCrmCorpus loads every CRM lead for a tenant, the candidate pool the
// matcher scores a canonical lead against.
func (s *PostgresStore) GetCrmCorpus(ctx context.Context, tenantID string) ([]model.CrmLead, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, tenant_id, crm_connection_id, external_id, email, email_normalized, phone, phone_normalized,
			address, address_normalized, first_name, last_name, assigned_user_id, assigned_user_email,
			assigned_user_name, stage, source, source_updated_at, last_synced_at, created_at, updated_at
		FROM crm_leads WHERE tenant_id = $1`, tenantID)
	if err != nil {
		return nil, eris.Wrap(err, "store: get crm corpus")
	}
	defer rows.Close()

	var out []model.CrmLead
	for rows.Next() {
		var c model.CrmLead
		var sourceUpdatedAt *time.Time
		if err := rows.Scan(&c.ID, &c.TenantID, &c.CrmConnectionID, &c.ExternalID, &c.Email, &c.EmailNormalized,
			&c.Phone, &c.PhoneNormalized, &c.Address, &c.AddressNormalized, &c.FirstName, &c.LastName,
			&c.AssignedUserID, &c.AssignedUserEmail, &c.AssignedUserName, &c.Stage, &c.Source, &sourceUpdatedAt,
			&c.LastSyncedAt, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "store: scan crm lead")
		}
		if sourceUpdatedAt != nil {
			c.SourceUpdatedAt = *sourceUpdatedAt
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "store: iterate crm corpus")
}

// GetCrmLead fetches one CRM lead by id.
func (s *PostgresStore) GetCrmLead(ctx context.Context, id string) (*model.CrmLead, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, tenant_id, crm_connection_id, external_id, email, email_normalized, phone, phone_normalized,
			address, address_normalized, first_name, last_name, assigned_user_id, assigned_user_email,
			assigned_user_name, stage, source, source_updated_at, last_synced_at, created_at, updated_at
		FROM crm_leads WHERE id = $1`, id)

	c := &model.CrmLead{}
	var sourceUpdatedAt *time.Time
	err := row.Scan(&c.ID, &c.TenantID, &c.CrmConnectionID, &c.ExternalID, &c.Email, &c.EmailNormalized,
		&c.Phone, &c.PhoneNormalized, &c.Address, &c.AddressNormalized, &c.FirstName, &c.LastName,
		&c.AssignedUserID, &c.AssignedUserEmail, &c.AssignedUserName, &c.Stage, &c.Source, &sourceUpdatedAt,
		&c.LastSyncedAt, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "store: get crm lead")
	}
	if sourceUpdatedAt != nil {
		c.SourceUpdatedAt = *sourceUpdatedAt
	}
	return c, nil
}

func tagsJSON(tags []string) []byte {
	if len(tags) == 0 {
		return []byte("[]")
	}
	b, _ := json.Marshal(tags)
	return b
}
