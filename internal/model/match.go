package model

import "time"

// MatchType names the signal that produced a match or candidate.
type MatchType string

const (
	MatchTypeEmailExact   MatchType = "email_exact"
	MatchTypePhoneExact   MatchType = "phone_exact"
	MatchTypeAddressFuzzy MatchType = "address_fuzzy"
)

// MatchedBy names who/what committed a Match.
type MatchedBy string

const (
	MatchedBySystem MatchedBy = "system"
	MatchedByAI     MatchedBy = "ai"
	MatchedByManual MatchedBy = "manual"
)

// MatchRecordStatus is the lifecycle state of a committed Match.
type MatchRecordStatus string

const (
	MatchRecordStatusActive      MatchRecordStatus = "active"
	MatchRecordStatusDisputed    MatchRecordStatus = "disputed"
	MatchRecordStatusInvalidated MatchRecordStatus = "invalidated"
)

// Match is a confirmed attribution between a canonical lead and a CRM lead.
type Match struct {
	ID                string            `json:"id"`
	TenantID          string            `json:"tenant_id"`
	CanonicalLeadID   string            `json:"canonical_lead_id"`
	CrmLeadID         string            `json:"crm_lead_id"`
	MatchType         MatchType         `json:"match_type"`
	Confidence        float64           `json:"confidence"`
	MatchDetails      map[string]any    `json:"match_details,omitempty"`
	MatchedBy         MatchedBy         `json:"matched_by"`
	MatchedByUserID   string            `json:"matched_by_user_id,omitempty"`
	AttributedTeamID  string            `json:"attributed_team_id,omitempty"`
	AttributedAgentID string            `json:"attributed_agent_id,omitempty"`
	Status            MatchRecordStatus `json:"status"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

// CandidateStatus is the lifecycle state of a MatchCandidate.
type CandidateStatus string

const (
	CandidateStatusPending  CandidateStatus = "pending"
	CandidateStatusApproved CandidateStatus = "approved"
	CandidateStatusRejected CandidateStatus = "rejected"
	CandidateStatusExpired  CandidateStatus = "expired"
)

// MatchReason is one scored signal that contributed to a candidate.
type MatchReason struct {
	MatchType  MatchType `json:"match_type"`
	Confidence float64   `json:"confidence"`
	Detail     string    `json:"detail,omitempty"`
}

// MatchCandidate is a mid-tier match awaiting human review.
type MatchCandidate struct {
	ID              string          `json:"id"`
	TenantID        string          `json:"tenant_id"`
	CanonicalLeadID string          `json:"canonical_lead_id"`
	CrmLeadID       string          `json:"crm_lead_id"`
	ConfidenceScore float64         `json:"confidence_score"`
	MatchReasons    []MatchReason   `json:"match_reasons,omitempty"`
	Status          CandidateStatus `json:"status"`
	ReviewedBy      string          `json:"reviewed_by,omitempty"`
	ReviewedAt      *time.Time      `json:"reviewed_at,omitempty"`
	LeadMatchID     string          `json:"lead_match_id,omitempty"`
	Notes           string          `json:"notes,omitempty"`
	ExpiresAt       time.Time       `json:"expires_at"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}
