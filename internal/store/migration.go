package store

const postgresMigration = `
CREATE EXTENSION IF NOT EXISTS pg_trgm;
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS lead_sources (
	id               TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	tenant_id        TEXT NOT NULL,
	slug             TEXT NOT NULL,
	display_name     TEXT NOT NULL,
	csv_config       JSONB NOT NULL DEFAULT '{}',
	field_mapping    JSONB NOT NULL DEFAULT '{}',
	validation_rules JSONB NOT NULL DEFAULT '{}',
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (tenant_id, slug)
);

CREATE TABLE IF NOT EXISTS batches (
	id             TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	tenant_id      TEXT NOT NULL,
	lead_source_id TEXT NOT NULL REFERENCES lead_sources(id),
	file_ref       TEXT NOT NULL,
	file_hash      TEXT NOT NULL,
	received_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	status         TEXT NOT NULL DEFAULT 'pending',
	counters       JSONB NOT NULL DEFAULT '{}',
	log            JSONB NOT NULL DEFAULT '[]',
	errors         JSONB NOT NULL DEFAULT '[]',
	origin         JSONB,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (tenant_id, file_hash)
);

CREATE INDEX IF NOT EXISTS idx_batches_status ON batches(status);
CREATE INDEX IF NOT EXISTS idx_batches_tenant ON batches(tenant_id);

CREATE TABLE IF NOT EXISTS raw_rows (
	id                TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	batch_id          TEXT NOT NULL REFERENCES batches(id),
	row_number        INTEGER NOT NULL,
	raw_data          JSONB NOT NULL,
	is_valid          BOOLEAN NOT NULL DEFAULT true,
	validation_errors JSONB NOT NULL DEFAULT '[]',
	is_duplicate      BOOLEAN NOT NULL DEFAULT false,
	duplicate_of      TEXT REFERENCES raw_rows(id),
	canonical_lead_id TEXT,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_raw_rows_batch ON raw_rows(batch_id);
CREATE INDEX IF NOT EXISTS idx_raw_rows_unresolved ON raw_rows(batch_id) WHERE is_valid AND canonical_lead_id IS NULL AND NOT is_duplicate;

CREATE TABLE IF NOT EXISTS canonical_leads (
	id                  TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	tenant_id           TEXT NOT NULL,
	lead_source_id      TEXT NOT NULL REFERENCES lead_sources(id),
	email               TEXT,
	email_normalized    TEXT,
	phone               TEXT,
	phone_normalized    TEXT,
	address             TEXT,
	address_normalized  TEXT,
	first_name          TEXT,
	last_name           TEXT,
	lead_type           TEXT,
	source_record_id    TEXT,
	source_created_at   TIMESTAMPTZ,
	match_status        TEXT NOT NULL DEFAULT 'pending',
	match_confidence    DOUBLE PRECISION,
	embedding           vector(1536),
	embedding_text      TEXT,
	embedded_at         TIMESTAMPTZ,
	raw_data            JSONB,
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_canonical_leads_tenant_source_email ON canonical_leads(tenant_id, lead_source_id, email_normalized);
CREATE INDEX IF NOT EXISTS idx_canonical_leads_match_status ON canonical_leads(match_status);
CREATE INDEX IF NOT EXISTS idx_canonical_leads_address_trgm ON canonical_leads USING gin (address_normalized gin_trgm_ops);

CREATE TABLE IF NOT EXISTS crm_connections (
	id                TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	tenant_id         TEXT NOT NULL,
	provider          TEXT NOT NULL,
	base_url          TEXT NOT NULL,
	credential_ref    TEXT NOT NULL,
	active            BOOLEAN NOT NULL DEFAULT true,
	last_sync_at      TIMESTAMPTZ,
	last_sync_status  TEXT,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_crm_connections_active ON crm_connections(active);

CREATE TABLE IF NOT EXISTS crm_leads (
	id                  TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	tenant_id           TEXT NOT NULL,
	crm_connection_id   TEXT NOT NULL REFERENCES crm_connections(id),
	external_id         TEXT NOT NULL,
	email               TEXT,
	email_normalized    TEXT,
	phone               TEXT,
	phone_normalized    TEXT,
	address             TEXT,
	address_normalized  TEXT,
	first_name          TEXT,
	last_name           TEXT,
	assigned_user_id    TEXT,
	assigned_user_email TEXT,
	assigned_user_name  TEXT,
	stage               TEXT,
	source              TEXT,
	tags                JSONB NOT NULL DEFAULT '[]',
	source_updated_at   TIMESTAMPTZ,
	sync_hash           TEXT NOT NULL,
	embedding           vector(1536),
	embedding_text      TEXT,
	embedded_at         TIMESTAMPTZ,
	last_synced_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (crm_connection_id, external_id)
);

CREATE INDEX IF NOT EXISTS idx_crm_leads_email ON crm_leads(tenant_id, email_normalized);
CREATE INDEX IF NOT EXISTS idx_crm_leads_phone ON crm_leads(tenant_id, phone_normalized);
CREATE INDEX IF NOT EXISTS idx_crm_leads_address_trgm ON crm_leads USING gin (address_normalized gin_trgm_ops);

CREATE TABLE IF NOT EXISTS agents (
	id            TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	tenant_id     TEXT NOT NULL,
	crm_user_id   TEXT NOT NULL,
	name          TEXT NOT NULL,
	team_id       TEXT,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (tenant_id, crm_user_id)
);

CREATE TABLE IF NOT EXISTS matches (
	id                  TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	tenant_id           TEXT NOT NULL,
	canonical_lead_id   TEXT NOT NULL REFERENCES canonical_leads(id),
	crm_lead_id         TEXT NOT NULL REFERENCES crm_leads(id),
	match_type          TEXT NOT NULL,
	confidence          DOUBLE PRECISION NOT NULL,
	match_details       JSONB,
	matched_by          TEXT NOT NULL,
	matched_by_user_id  TEXT,
	attributed_team_id  TEXT,
	attributed_agent_id TEXT,
	status              TEXT NOT NULL DEFAULT 'active',
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (canonical_lead_id, crm_lead_id)
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_matches_one_active_per_canonical
	ON matches(canonical_lead_id) WHERE status = 'active';

CREATE TABLE IF NOT EXISTS match_candidates (
	id                TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	tenant_id         TEXT NOT NULL,
	canonical_lead_id TEXT NOT NULL REFERENCES canonical_leads(id),
	crm_lead_id       TEXT NOT NULL REFERENCES crm_leads(id),
	confidence_score  DOUBLE PRECISION NOT NULL,
	match_reasons     JSONB,
	status            TEXT NOT NULL DEFAULT 'pending',
	reviewed_by       TEXT,
	reviewed_at       TIMESTAMPTZ,
	lead_match_id     TEXT,
	notes             TEXT,
	expires_at        TIMESTAMPTZ NOT NULL,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (canonical_lead_id, crm_lead_id)
);

CREATE INDEX IF NOT EXISTS idx_candidates_pending_by_canonical ON match_candidates(canonical_lead_id) WHERE status = 'pending';
CREATE INDEX IF NOT EXISTS idx_candidates_expiry_sweep ON match_candidates(expires_at) WHERE status = 'pending';

CREATE TABLE IF NOT EXISTS lineage_entries (
	id                  BIGSERIAL PRIMARY KEY,
	tenant_id           TEXT NOT NULL,
	source_table        TEXT NOT NULL,
	source_id           TEXT NOT NULL,
	target_table        TEXT NOT NULL,
	target_id           TEXT NOT NULL,
	operation           TEXT NOT NULL,
	transformation_type TEXT,
	performed_by        TEXT,
	details             JSONB,
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_lineage_source ON lineage_entries(source_table, source_id);
CREATE INDEX IF NOT EXISTS idx_lineage_target ON lineage_entries(target_table, target_id);

CREATE TABLE IF NOT EXISTS embedding_tasks (
	id            TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	tenant_id     TEXT NOT NULL,
	table_name    TEXT NOT NULL,
	record_id     TEXT NOT NULL,
	text_to_embed TEXT NOT NULL,
	status        TEXT NOT NULL DEFAULT 'pending',
	attempts      INTEGER NOT NULL DEFAULT 0,
	last_error    TEXT,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (table_name, record_id)
);

CREATE INDEX IF NOT EXISTS idx_embedding_tasks_claim ON embedding_tasks(created_at) WHERE status = 'pending';

CREATE TABLE IF NOT EXISTS sync_logs (
	id                BIGSERIAL PRIMARY KEY,
	tenant_id         TEXT NOT NULL,
	crm_connection_id TEXT NOT NULL REFERENCES crm_connections(id),
	status            TEXT NOT NULL DEFAULT 'running',
	started_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at      TIMESTAMPTZ,
	duration_ms       BIGINT NOT NULL DEFAULT 0,
	fetched           INTEGER NOT NULL DEFAULT 0,
	created           INTEGER NOT NULL DEFAULT 0,
	updated           INTEGER NOT NULL DEFAULT 0,
	errors            JSONB NOT NULL DEFAULT '[]',
	metadata          JSONB
);

CREATE INDEX IF NOT EXISTS idx_sync_logs_connection ON sync_logs(crm_connection_id, started_at DESC);
`
