package repository

// Schema definitions for the Kestrel database.
// Compatible with both SQLite and PostgreSQL.

const schemaSamples = `
CREATE TABLE IF NOT EXISTS samples (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    subject_id TEXT NOT NULL,
    session_id TEXT,
    payload TEXT NOT NULL,
    key_event_count INTEGER NOT NULL DEFAULT 0,
    touch_event_count INTEGER NOT NULL DEFAULT 0,
    sensor_sample_count INTEGER NOT NULL DEFAULT 0,
    received_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_samples_tenant ON samples(tenant_id);
CREATE INDEX IF NOT EXISTS idx_samples_subject ON samples(tenant_id, subject_id);
CREATE INDEX IF NOT EXISTS idx_samples_received ON samples(tenant_id, received_at);
`

const schemaAssessments = `
CREATE TABLE IF NOT EXISTS assessments (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    sample_id TEXT NOT NULL,
    subject_id TEXT NOT NULL,
    timestamp TIMESTAMP NOT NULL,
    indicators TEXT NOT NULL,
    model_available INTEGER NOT NULL DEFAULT 0,
    prediction TEXT,
    model_risk_score REAL NOT NULL DEFAULT 0,
    model_risk_level TEXT NOT NULL DEFAULT 'Low',
    quality TEXT NOT NULL,
    features TEXT NOT NULL,
    disposition TEXT NOT NULL,
    policy_results TEXT,
    metadata TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_assessments_tenant ON assessments(tenant_id);
CREATE INDEX IF NOT EXISTS idx_assessments_sample ON assessments(tenant_id, sample_id);
CREATE INDEX IF NOT EXISTS idx_assessments_subject ON assessments(tenant_id, subject_id);
CREATE INDEX IF NOT EXISTS idx_assessments_timestamp ON assessments(tenant_id, timestamp);
`

const schemaPolicies = `
CREATE TABLE IF NOT EXISTS policies (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    version TEXT NOT NULL,
    expression TEXT NOT NULL,
    bands TEXT NOT NULL,
    weight REAL NOT NULL DEFAULT 1.0,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, tenant_id, version)
);

CREATE INDEX IF NOT EXISTS idx_policies_tenant ON policies(tenant_id);
CREATE INDEX IF NOT EXISTS idx_policies_enabled ON policies(tenant_id, enabled);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaSamples,
		schemaAssessments,
		schemaPolicies,
	}
}
