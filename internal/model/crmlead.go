package model

import "time"

// CrmLead mirrors one person record pulled from an external CRM.
type CrmLead struct {
	ID                string     `json:"id"`
	TenantID          string     `json:"tenant_id"`
	CrmConnectionID   string     `json:"crm_connection_id"`
	ExternalID        string     `json:"external_id"`
	Email             string     `json:"email,omitempty"`
	EmailNormalized   string     `json:"email_normalized,omitempty"`
	Phone             string     `json:"phone,omitempty"`
	PhoneNormalized   string     `json:"phone_normalized,omitempty"`
	Address           string     `json:"address,omitempty"`
	AddressNormalized string     `json:"address_normalized,omitempty"`
	FirstName         string     `json:"first_name,omitempty"`
	LastName          string     `json:"last_name,omitempty"`
	AssignedUserID    string     `json:"assigned_user_id,omitempty"`
	AssignedUserEmail string     `json:"assigned_user_email,omitempty"`
	AssignedUserName  string     `json:"assigned_user_name,omitempty"`
	Stage             string     `json:"stage,omitempty"`
	Source            string     `json:"source,omitempty"`
	Tags              []string   `json:"tags,omitempty"`
	// SourceUpdatedAt is the CRM's own updated_at for this person, used
	// as a sync_hash input so an edit the CRM reports but that leaves
	// every other tracked field unchanged still triggers re-embedding.
	SourceUpdatedAt time.Time    `json:"source_updated_at,omitempty"`
	SyncHash        string       `json:"sync_hash"`
	Embedding       []float32    `json:"embedding,omitempty"`
	EmbeddingText   string       `json:"embedding_text,omitempty"`
	EmbeddedAt      *time.Time   `json:"embedded_at,omitempty"`
	LastSyncedAt    time.Time    `json:"last_synced_at"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

// CrmConnection is one tenant's configured link to an external CRM.
type CrmConnection struct {
	ID              string     `json:"id"`
	TenantID        string     `json:"tenant_id"`
	Provider        string     `json:"provider"`
	BaseURL         string     `json:"base_url"`
	CredentialRef   string     `json:"credential_ref"`
	Active          bool       `json:"active"`
	LastSyncAt      *time.Time `json:"last_sync_at,omitempty"`
	LastSyncStatus  string     `json:"last_sync_status,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}
