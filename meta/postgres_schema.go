package meta

const (
	sourcesTable          = "data_warehouse_sources"
	pipelinesTable        = "etl_pipelines"
	qualityChecksTable    = "quality_checks"
	qualityMetricsTable   = "data_quality_metrics"
	executionsTable       = "data_warehouse_jobs"
	pipelineExecutionView = "pipeline_executions"
	lineageEdgesTable     = "lineage_edges"
)

//schemaStatements are executed on every start. All of them are idempotent
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS ` + sourcesTable + ` (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		status TEXT NOT NULL,
		run_id TEXT NOT NULL DEFAULT '',
		status_changed_at TIMESTAMPTZ NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		payload JSONB NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS ` + sourcesTable + `_tenant_idx ON ` + sourcesTable + ` (tenant_id, created_at)`,

	`CREATE TABLE IF NOT EXISTS ` + pipelinesTable + ` (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		source_id TEXT NOT NULL,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		status TEXT NOT NULL,
		run_id TEXT NOT NULL DEFAULT '',
		status_changed_at TIMESTAMPTZ NOT NULL,
		last_run_at TIMESTAMPTZ NULL,
		created_at TIMESTAMPTZ NOT NULL,
		payload JSONB NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS ` + pipelinesTable + `_tenant_idx ON ` + pipelinesTable + ` (tenant_id, source_id)`,

	`CREATE TABLE IF NOT EXISTS ` + qualityChecksTable + ` (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		source_id TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		payload JSONB NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS ` + qualityMetricsTable + ` (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		source_id TEXT NOT NULL,
		check_id TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		payload JSONB NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS ` + qualityMetricsTable + `_tenant_idx ON ` + qualityMetricsTable + ` (tenant_id, created_at)`,

	`CREATE TABLE IF NOT EXISTS ` + executionsTable + ` (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		source_id TEXT NOT NULL,
		pipeline_id TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		started_at TIMESTAMPTZ NOT NULL,
		payload JSONB NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS ` + executionsTable + `_tenant_idx ON ` + executionsTable + ` (tenant_id, started_at)`,
	`CREATE INDEX IF NOT EXISTS ` + executionsTable + `_source_idx ON ` + executionsTable + ` (source_id)`,
	`CREATE INDEX IF NOT EXISTS ` + executionsTable + `_pipeline_idx ON ` + executionsTable + ` (pipeline_id)`,
	`CREATE OR REPLACE VIEW ` + pipelineExecutionView + ` AS SELECT * FROM ` + executionsTable + ` WHERE kind = 'pipeline_run'`,

	`CREATE TABLE IF NOT EXISTS ` + lineageEdgesTable + ` (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		payload JSONB NOT NULL
	)`,
}
