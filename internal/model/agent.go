package model

import "time"

// Agent maps a CRM-side user id onto the tenant's team structure, so a
// Match can denormalize attribution without a join at read time.
type Agent struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	CrmUserID string    `json:"crm_user_id"`
	Name      string    `json:"name"`
	TeamID    string    `json:"team_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
