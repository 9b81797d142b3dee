package repository

// Schema definitions for the Senninha database.
// Compatible with both SQLite and PostgreSQL.

const schemaBatches = `
CREATE TABLE IF NOT EXISTS batches (
    id TEXT PRIMARY KEY,
    created_at TIMESTAMP NOT NULL,
    lines TEXT NOT NULL
);
`

// debt_lines holds the evaluated lines, one row per line, written when an
// evaluation is saved. The line column is the full JSON shape of the line so
// the export and API read paths never re-derive fields.
const schemaDebtLines = `
CREATE TABLE IF NOT EXISTS debt_lines (
    batch_id TEXT NOT NULL,
    nif TEXT NOT NULL,
    position INTEGER NOT NULL,
    line TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    PRIMARY KEY (batch_id, position)
);

CREATE INDEX IF NOT EXISTS idx_debt_lines_nif ON debt_lines(nif);
`

const schemaEvaluations = `
CREATE TABLE IF NOT EXISTS evaluations (
    id TEXT PRIMARY KEY,
    batch_id TEXT NOT NULL,
    timestamp TIMESTAMP NOT NULL,
    lines TEXT NOT NULL,
    summaries TEXT NOT NULL,
    metadata TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_evaluations_batch ON evaluations(batch_id);
CREATE INDEX IF NOT EXISTS idx_evaluations_timestamp ON evaluations(timestamp);
`

const schemaClientSummaries = `
CREATE TABLE IF NOT EXISTS client_summaries (
    nif TEXT NOT NULL,
    batch_id TEXT NOT NULL,
    summary TEXT NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (nif, batch_id)
);

CREATE INDEX IF NOT EXISTS idx_client_summaries_nif ON client_summaries(nif, updated_at);
`

const schemaRuleConfigs = `
CREATE TABLE IF NOT EXISTS rule_configs (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    description TEXT,
    version TEXT NOT NULL,
    expression TEXT NOT NULL,
    reason TEXT,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_rule_configs_enabled ON rule_configs(enabled);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaBatches,
		schemaDebtLines,
		schemaEvaluations,
		schemaClientSummaries,
		schemaRuleConfigs,
	}
}
