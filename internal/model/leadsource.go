package model

import "time"

// CSVConfig describes how to parse a lead source's feed files.
type CSVConfig struct {
	Delimiter  string `json:"delimiter"`
	HasHeader  bool   `json:"has_header"`
	DateFormat string `json:"date_format,omitempty"`
	SkipRows   int    `json:"skip_rows"`
}

// ValidationRules describes per-source row acceptance criteria.
type ValidationRules struct {
	RequiredFields []string `json:"required_fields"`
	EmailRegex     string   `json:"email_regex,omitempty"`
}

// LeadSource is a configured inbound feed (e.g. Zillow, Realtor.com, OpCity).
type LeadSource struct {
	ID              string              `json:"id"`
	TenantID        string              `json:"tenant_id"`
	Slug            string              `json:"slug"`
	DisplayName     string              `json:"display_name"`
	CSVConfig       CSVConfig           `json:"csv_config"`
	FieldMapping    map[string][]string `json:"field_mapping"`
	ValidationRules ValidationRules     `json:"validation_rules"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

// Column returns the ordered candidate column names configured for a
// canonical field, or nil if the source has no mapping for it.
func (s LeadSource) Column(field string) []string {
	return s.FieldMapping[field]
}
