package store

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/leadpipeline/leadpipe/internal/model"
)

// CreateLeadSource inserts a new lead source configuration.
func (s *PostgresStore) CreateLeadSource(ctx context.Context, ls *model.LeadSource) error {
	csvCfg, err := json.Marshal(ls.CSVConfig)
	if err != nil {
		return eris.Wrap(err, "store: marshal csv_config")
	}
	mapping, err := json.Marshal(ls.FieldMapping)
	if err != nil {
		return eris.Wrap(err, "store: marshal field_mapping")
	}
	rules, err := json.Marshal(ls.ValidationRules)
	if err != nil {
		return eris.Wrap(err, "store: marshal validation_rules")
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO lead_sources (tenant_id, slug, display_name, csv_config, field_mapping, validation_rules)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`,
		ls.TenantID, ls.Slug, ls.DisplayName, csvCfg, mapping, rules)

	if err := row.Scan(&ls.ID, &ls.CreatedAt, &ls.UpdatedAt); err != nil {
		return eris.Wrap(err, "store: create lead source")
	}
	return nil
}

// ListLeadSources returns every lead source configured for a tenant.
func (s *PostgresStore) ListLeadSources(ctx context.Context, tenantID string) ([]*model.LeadSource, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, tenant_id, slug, display_name, csv_config, field_mapping, validation_rules, created_at, updated_at
		FROM lead_sources WHERE tenant_id = $1 ORDER BY slug`, tenantID)
	if err != nil {
		return nil, eris.Wrap(err, "store: list lead sources")
	}
	defer rows.Close()

	var out []*model.LeadSource
	for rows.Next() {
		ls := &model.LeadSource{}
		var csvCfg, mapping, rules []byte
		if err := rows.Scan(&ls.ID, &ls.TenantID, &ls.Slug, &ls.DisplayName, &csvCfg, &mapping, &rules, &ls.CreatedAt, &ls.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "store: scan lead source")
		}
		if err := json.Unmarshal(csvCfg, &ls.CSVConfig); err != nil {
			return nil, eris.Wrap(err, "store: unmarshal csv_config")
		}
		if err := json.Unmarshal(mapping, &ls.FieldMapping); err != nil {
			return nil, eris.Wrap(err, "store: unmarshal field_mapping")
		}
		if err := json.Unmarshal(rules, &ls.ValidationRules); err != nil {
			return nil, eris.Wrap(err, "store: unmarshal validation_rules")
		}
		out = append(out, ls)
	}
	return out, eris.Wrap(rows.Err(), "store: iterate lead sources")
}
