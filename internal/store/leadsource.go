package store

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/leadpipeline/leadpipe/internal/model"
)

// GetLeadSourceBySlug looks up a configured feed by its tenant-scoped slug.
func (s *PostgresStore) GetLeadSourceBySlug(ctx context.Context, tenantID, slug string) (*model.LeadSource, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, tenant_id, slug, display_name, csv_config, field_mapping, validation_rules, created_at, updated_at
		FROM lead_sources WHERE tenant_id = $1 AND slug = $2`, tenantID, slug)
	return scanLeadSource(row)
}

// GetLeadSource fetches a lead source by id.
func (s *PostgresStore) GetLeadSource(ctx context.Context, id string) (*model.LeadSource, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, tenant_id, slug, display_name, csv_config, field_mapping, validation_rules, created_at, updated_at
		FROM lead_sources WHERE id = $1`, id)
	return scanLeadSource(row)
}

func scanLeadSource(row interface{ Scan(dest ...any) error }) (*model.LeadSource, error) {
	ls := &model.LeadSource{}
	var csvCfg, mapping, rules []byte
	err := row.Scan(&ls.ID, &ls.TenantID, &ls.Slug, &ls.DisplayName, &csvCfg, &mapping, &rules, &ls.CreatedAt, &ls.UpdatedAt)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
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
	return ls, nil
}
