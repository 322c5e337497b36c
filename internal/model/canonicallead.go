package model

import "time"

// MatchStatus is the current attribution state of a canonical lead.
type MatchStatus string

const (
	MatchStatusPending   MatchStatus = "pending"
	MatchStatusMatched   MatchStatus = "matched"
	MatchStatusUnmatched MatchStatus = "unmatched"
	MatchStatusMultiple  MatchStatus = "multiple"
	MatchStatusReview    MatchStatus = "review"
)

// CanonicalLead is a normalized lead derived from one valid RawRow.
type CanonicalLead struct {
	ID                string         `json:"id"`
	TenantID          string         `json:"tenant_id"`
	LeadSourceID      string         `json:"lead_source_id"`
	Email             string         `json:"email,omitempty"`
	EmailNormalized   string         `json:"email_normalized,omitempty"`
	Phone             string         `json:"phone,omitempty"`
	PhoneNormalized   string         `json:"phone_normalized,omitempty"`
	Address           string         `json:"address,omitempty"`
	AddressNormalized string         `json:"address_normalized,omitempty"`
	FirstName         string         `json:"first_name,omitempty"`
	LastName          string         `json:"last_name,omitempty"`
	LeadType          string         `json:"lead_type,omitempty"`
	SourceRecordID    string         `json:"source_record_id,omitempty"`
	SourceCreatedAt   *time.Time     `json:"source_created_at,omitempty"`
	MatchStatus       MatchStatus    `json:"match_status"`
	MatchConfidence   *float64       `json:"match_confidence,omitempty"`
	Embedding         []float32      `json:"embedding,omitempty"`
	EmbeddingText     string         `json:"embedding_text,omitempty"`
	EmbeddedAt        *time.Time     `json:"embedded_at,omitempty"`
	RawData           map[string]any `json:"raw_data,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}
