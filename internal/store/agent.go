package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/leadpipeline/leadpipe/internal/model"
)

// GetAgentByCrmUserID resolves the tenant's team attribution for a CRM
// user id, or nil if no agent is mapped to it.
func (s *PostgresStore) GetAgentByCrmUserID(ctx context.Context, tenantID, crmUserID string) (*model.Agent, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, tenant_id, crm_user_id, name, team_id, created_at
		FROM agents WHERE tenant_id = $1 AND crm_user_id = $2`, tenantID, crmUserID)

	a := &model.Agent{}
	err := row.Scan(&a.ID, &a.TenantID, &a.CrmUserID, &a.Name, &a.TeamID, &a.CreatedAt)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "store: get agent by crm user id")
	}
	return a, nil
}
