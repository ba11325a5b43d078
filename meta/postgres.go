package meta

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ledgerops/warehouse/entities"
	"github.com/ledgerops/warehouse/logging"
	"github.com/lib/pq"
	"github.com/pkg/errors"
)

const uniqueViolationCode = "23505"

//Postgres is a lib/pq based Storage. Entities are stored as JSONB payload
//plus the columns which are used in conditional updates and filters
type Postgres struct {
	ctx        context.Context
	dataSource *sql.DB
}

//NewPostgres opens connection, pings it and creates schema
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	logging.Info("Initializing postgres meta storage...")
	if dsn == "" {
		return nil, errors.New("meta.storage.postgres.dsn is required")
	}

	dataSource, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	if err := dataSource.PingContext(ctx); err != nil {
		dataSource.Close()
		return nil, errors.Wrap(err, "error connecting to postgres")
	}

	dataSource.SetConnMaxLifetime(10 * time.Minute)

	p := &Postgres{ctx: ctx, dataSource: dataSource}
	if err := p.bootstrap(ctx); err != nil {
		dataSource.Close()
		return nil, err
	}
	return p, nil
}

func (p *Postgres) bootstrap(ctx context.Context) error {
	for _, statement := range schemaStatements {
		if _, err := p.dataSource.ExecContext(ctx, statement); err != nil {
			return errors.Wrapf(err, "error creating schema with statement: %s", statement)
		}
	}
	return nil
}

// ** Sources **

const sourceColumns = "payload, status, run_id, status_changed_at"

func (p *Postgres) CreateSource(ctx context.Context, source *entities.Source) error {
	payload, err := json.Marshal(source)
	if err != nil {
		return errors.Wrap(err, "error serializing source")
	}

	_, err = p.dataSource.ExecContext(ctx, `INSERT INTO `+sourcesTable+` (id, tenant_id, status, run_id, status_changed_at, created_at, payload) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		source.ID, source.TenantID, source.Status, source.RunID, source.StatusChangedAt.UTC(), source.CreatedAt.UTC(), payload)
	return wrapInsertErr(err, "source", source.ID)
}

func (p *Postgres) UpdateSource(ctx context.Context, source *entities.Source) error {
	return p.updatePayload(ctx, sourcesTable, source.TenantID, source.ID, source)
}

func (p *Postgres) GetSource(ctx context.Context, tenantID, id string) (*entities.Source, error) {
	row := p.dataSource.QueryRowContext(ctx, `SELECT `+sourceColumns+` FROM `+sourcesTable+` WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	return scanSource(row)
}

func (p *Postgres) ListSources(ctx context.Context, tenantID string) ([]*entities.Source, error) {
	return p.querySources(ctx, `SELECT `+sourceColumns+` FROM `+sourcesTable+` WHERE tenant_id = $1 ORDER BY created_at, id`, tenantID)
}

func (p *Postgres) ListAllSources(ctx context.Context) ([]*entities.Source, error) {
	return p.querySources(ctx, `SELECT `+sourceColumns+` FROM `+sourcesTable+` ORDER BY created_at, id`)
}

func (p *Postgres) DeleteSource(ctx context.Context, tenantID, id string) error {
	return p.deleteNotRunning(ctx, sourcesTable, tenantID, id, string(entities.SourceSyncing))
}

func (p *Postgres) BeginSourceRun(ctx context.Context, tenantID, id, runID string, at time.Time) (*entities.Source, error) {
	row := p.dataSource.QueryRowContext(ctx, `UPDATE `+sourcesTable+` SET status = $3, run_id = $4, status_changed_at = $5
		WHERE tenant_id = $1 AND id = $2 AND status <> $3 RETURNING `+sourceColumns,
		tenantID, id, entities.SourceSyncing, runID, at.UTC())

	source, err := scanSource(row)
	if err == ErrNotFound {
		return nil, p.notStartedReason(ctx, sourcesTable, tenantID, id)
	}
	return source, err
}

func (p *Postgres) FinishSourceRun(ctx context.Context, tenantID, id, runID string, status entities.SourceStatus, at time.Time) (bool, error) {
	return p.finishRun(ctx, sourcesTable, tenantID, id, runID, string(status), string(entities.SourceSyncing), at)
}

func (p *Postgres) ListStalledSources(ctx context.Context, olderThan time.Time) ([]*entities.Source, error) {
	return p.querySources(ctx, `SELECT `+sourceColumns+` FROM `+sourcesTable+` WHERE status = $1 AND status_changed_at < $2 ORDER BY status_changed_at`,
		entities.SourceSyncing, olderThan.UTC())
}

func (p *Postgres) querySources(ctx context.Context, query string, args ...interface{}) ([]*entities.Source, error) {
	rows, err := p.dataSource.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "error querying sources")
	}
	defer rows.Close()

	result := []*entities.Source{}
	for rows.Next() {
		source, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, source)
	}
	return result, rows.Err()
}

// ** Pipelines **

const pipelineColumns = "payload, active, status, run_id, status_changed_at, last_run_at"

func (p *Postgres) CreatePipeline(ctx context.Context, pipeline *entities.Pipeline) error {
	payload, err := json.Marshal(pipeline)
	if err != nil {
		return errors.Wrap(err, "error serializing pipeline")
	}

	lastRunAt := pq.NullTime{}
	if pipeline.LastRunAt != nil {
		lastRunAt = pq.NullTime{Time: pipeline.LastRunAt.UTC(), Valid: true}
	}

	_, err = p.dataSource.ExecContext(ctx, `INSERT INTO `+pipelinesTable+` (id, tenant_id, source_id, active, status, run_id, status_changed_at, last_run_at, created_at, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		pipeline.ID, pipeline.TenantID, pipeline.SourceID, pipeline.Active, pipeline.Status, pipeline.RunID,
		pipeline.StatusChangedAt.UTC(), lastRunAt, pipeline.CreatedAt.UTC(), payload)
	return wrapInsertErr(err, "pipeline", pipeline.ID)
}

func (p *Postgres) UpdatePipeline(ctx context.Context, pipeline *entities.Pipeline) error {
	return p.updatePayload(ctx, pipelinesTable, pipeline.TenantID, pipeline.ID, pipeline)
}

func (p *Postgres) GetPipeline(ctx context.Context, tenantID, id string) (*entities.Pipeline, error) {
	row := p.dataSource.QueryRowContext(ctx, `SELECT `+pipelineColumns+` FROM `+pipelinesTable+` WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	return scanPipeline(row)
}

func (p *Postgres) ListPipelines(ctx context.Context, tenantID, sourceID string) ([]*entities.Pipeline, error) {
	if sourceID == "" {
		return p.queryPipelines(ctx, `SELECT `+pipelineColumns+` FROM `+pipelinesTable+` WHERE tenant_id = $1 ORDER BY created_at, id`, tenantID)
	}
	return p.queryPipelines(ctx, `SELECT `+pipelineColumns+` FROM `+pipelinesTable+` WHERE tenant_id = $1 AND source_id = $2 ORDER BY created_at, id`, tenantID, sourceID)
}

func (p *Postgres) ListAllPipelines(ctx context.Context) ([]*entities.Pipeline, error) {
	return p.queryPipelines(ctx, `SELECT `+pipelineColumns+` FROM `+pipelinesTable+` ORDER BY created_at, id`)
}

func (p *Postgres) DeletePipeline(ctx context.Context, tenantID, id string) error {
	return p.deleteNotRunning(ctx, pipelinesTable, tenantID, id, string(entities.PipelineRunning))
}

func (p *Postgres) SetPipelineActive(ctx context.Context, tenantID, id string, active bool) error {
	result, err := p.dataSource.ExecContext(ctx, `UPDATE `+pipelinesTable+` SET active = $3 WHERE tenant_id = $1 AND id = $2`, tenantID, id, active)
	if err != nil {
		return errors.Wrapf(err, "error updating pipeline [%s] active flag", id)
	}
	return requireAffected(result)
}

func (p *Postgres) BeginPipelineRun(ctx context.Context, tenantID, id, runID string, at time.Time) (*entities.Pipeline, error) {
	row := p.dataSource.QueryRowContext(ctx, `UPDATE `+pipelinesTable+` SET status = $3, run_id = $4, status_changed_at = $5, last_run_at = $5
		WHERE tenant_id = $1 AND id = $2 AND status <> $3 RETURNING `+pipelineColumns,
		tenantID, id, entities.PipelineRunning, runID, at.UTC())

	pipeline, err := scanPipeline(row)
	if err == ErrNotFound {
		return nil, p.notStartedReason(ctx, pipelinesTable, tenantID, id)
	}
	return pipeline, err
}

func (p *Postgres) FinishPipelineRun(ctx context.Context, tenantID, id, runID string, status entities.PipelineStatus, at time.Time) (bool, error) {
	return p.finishRun(ctx, pipelinesTable, tenantID, id, runID, string(status), string(entities.PipelineRunning), at)
}

func (p *Postgres) ListStalledPipelines(ctx context.Context, olderThan time.Time) ([]*entities.Pipeline, error) {
	return p.queryPipelines(ctx, `SELECT `+pipelineColumns+` FROM `+pipelinesTable+` WHERE status = $1 AND status_changed_at < $2 ORDER BY status_changed_at`,
		entities.PipelineRunning, olderThan.UTC())
}

func (p *Postgres) queryPipelines(ctx context.Context, query string, args ...interface{}) ([]*entities.Pipeline, error) {
	rows, err := p.dataSource.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "error querying pipelines")
	}
	defer rows.Close()

	result := []*entities.Pipeline{}
	for rows.Next() {
		pipeline, err := scanPipeline(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, pipeline)
	}
	return result, rows.Err()
}

// ** Quality **

func (p *Postgres) CreateCheck(ctx context.Context, check *entities.QualityCheck) error {
	payload, err := json.Marshal(check)
	if err != nil {
		return errors.Wrap(err, "error serializing quality check")
	}

	_, err = p.dataSource.ExecContext(ctx, `INSERT INTO `+qualityChecksTable+` (id, tenant_id, source_id, created_at, payload) VALUES ($1, $2, $3, $4, $5)`,
		check.ID, check.TenantID, check.SourceID, check.CreatedAt.UTC(), payload)
	return wrapInsertErr(err, "quality check", check.ID)
}

func (p *Postgres) GetCheck(ctx context.Context, tenantID, id string) (*entities.QualityCheck, error) {
	check := &entities.QualityCheck{}
	row := p.dataSource.QueryRowContext(ctx, `SELECT payload FROM `+qualityChecksTable+` WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	if err := scanPayload(row, check); err != nil {
		return nil, err
	}
	return check, nil
}

func (p *Postgres) ListChecks(ctx context.Context, tenantID, sourceID string) ([]*entities.QualityCheck, error) {
	if sourceID == "" {
		return p.queryChecks(ctx, `SELECT payload FROM `+qualityChecksTable+` WHERE tenant_id = $1 ORDER BY created_at, id`, tenantID)
	}
	return p.queryChecks(ctx, `SELECT payload FROM `+qualityChecksTable+` WHERE tenant_id = $1 AND source_id = $2 ORDER BY created_at, id`, tenantID, sourceID)
}

func (p *Postgres) ListAllChecks(ctx context.Context) ([]*entities.QualityCheck, error) {
	return p.queryChecks(ctx, `SELECT payload FROM `+qualityChecksTable+` ORDER BY created_at, id`)
}

func (p *Postgres) DeleteCheck(ctx context.Context, tenantID, id string) error {
	result, err := p.dataSource.ExecContext(ctx, `DELETE FROM `+qualityChecksTable+` WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	if err != nil {
		return errors.Wrapf(err, "error deleting quality check [%s]", id)
	}
	return requireAffected(result)
}

func (p *Postgres) queryChecks(ctx context.Context, query string, args ...interface{}) ([]*entities.QualityCheck, error) {
	rows, err := p.dataSource.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "error querying quality checks")
	}
	defer rows.Close()

	result := []*entities.QualityCheck{}
	for rows.Next() {
		check := &entities.QualityCheck{}
		if err := scanPayload(rows, check); err != nil {
			return nil, err
		}
		result = append(result, check)
	}
	return result, rows.Err()
}

func (p *Postgres) SaveMetric(ctx context.Context, metric *entities.QualityMetric) error {
	payload, err := json.Marshal(metric)
	if err != nil {
		return errors.Wrap(err, "error serializing quality metric")
	}

	_, err = p.dataSource.ExecContext(ctx, `INSERT INTO `+qualityMetricsTable+` (id, tenant_id, source_id, check_id, created_at, payload) VALUES ($1, $2, $3, $4, $5, $6)`,
		metric.ID, metric.TenantID, metric.SourceID, metric.CheckID, metric.CreatedAt.UTC(), payload)
	return wrapInsertErr(err, "quality metric", metric.ID)
}

func (p *Postgres) ListMetrics(ctx context.Context, tenantID string, filter MetricFilter) ([]*entities.QualityMetric, error) {
	qb := newQueryBuilder(tenantID)
	qb.equal("source_id", filter.SourceID)
	qb.equal("check_id", filter.CheckID)
	qb.between("created_at", filter.Start, filter.End)

	query := `SELECT payload FROM ` + qualityMetricsTable + qb.where() + ` ORDER BY created_at DESC, id DESC` + qb.limit(filter.Limit)
	rows, err := p.dataSource.QueryContext(ctx, query, qb.args...)
	if err != nil {
		return nil, errors.Wrap(err, "error querying quality metrics")
	}
	defer rows.Close()

	result := []*entities.QualityMetric{}
	for rows.Next() {
		metric := &entities.QualityMetric{}
		if err := scanPayload(rows, metric); err != nil {
			return nil, err
		}
		result = append(result, metric)
	}
	return result, rows.Err()
}

// ** Executions **

func (p *Postgres) SaveExecution(ctx context.Context, execution *entities.Execution) error {
	payload, err := json.Marshal(execution)
	if err != nil {
		return errors.Wrap(err, "error serializing execution")
	}

	_, err = p.dataSource.ExecContext(ctx, `INSERT INTO `+executionsTable+` (id, tenant_id, kind, source_id, pipeline_id, status, started_at, payload) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		execution.ID, execution.TenantID, execution.Kind, execution.SourceID, execution.PipelineID, execution.Status, execution.StartedAt.UTC(), payload)
	return wrapInsertErr(err, "execution", execution.ID)
}

func (p *Postgres) GetExecution(ctx context.Context, tenantID, id string) (*entities.Execution, error) {
	execution := &entities.Execution{}
	row := p.dataSource.QueryRowContext(ctx, `SELECT payload FROM `+executionsTable+` WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	if err := scanPayload(row, execution); err != nil {
		return nil, err
	}
	return execution, nil
}

func (p *Postgres) ListExecutions(ctx context.Context, tenantID string, filter ExecutionFilter) ([]*entities.Execution, error) {
	qb := newQueryBuilder(tenantID)
	qb.equal("kind", string(filter.Kind))
	qb.equal("source_id", filter.SourceID)
	qb.equal("pipeline_id", filter.PipelineID)
	qb.equal("status", string(filter.Status))
	qb.between("started_at", filter.Start, filter.End)

	query := `SELECT payload FROM ` + executionsTable + qb.where() + ` ORDER BY started_at DESC, id DESC` + qb.limit(filter.Limit)
	rows, err := p.dataSource.QueryContext(ctx, query, qb.args...)
	if err != nil {
		return nil, errors.Wrap(err, "error querying executions")
	}
	defer rows.Close()

	result := []*entities.Execution{}
	for rows.Next() {
		execution := &entities.Execution{}
		if err := scanPayload(rows, execution); err != nil {
			return nil, err
		}
		result = append(result, execution)
	}
	return result, rows.Err()
}

// ** Lineage **

func (p *Postgres) AppendEdge(ctx context.Context, edge *entities.LineageEdge) error {
	payload, err := json.Marshal(edge)
	if err != nil {
		return errors.Wrap(err, "error serializing lineage edge")
	}

	_, err = p.dataSource.ExecContext(ctx, `INSERT INTO `+lineageEdgesTable+` (id, tenant_id, created_at, payload) VALUES ($1, $2, $3, $4)`,
		edge.ID, edge.TenantID, edge.CreatedAt.UTC(), payload)
	return wrapInsertErr(err, "lineage edge", edge.ID)
}

func (p *Postgres) ListEdges(ctx context.Context, tenantID string) ([]*entities.LineageEdge, error) {
	rows, err := p.dataSource.QueryContext(ctx, `SELECT payload FROM `+lineageEdgesTable+` WHERE tenant_id = $1 ORDER BY created_at, id`, tenantID)
	if err != nil {
		return nil, errors.Wrap(err, "error querying lineage edges")
	}
	defer rows.Close()

	result := []*entities.LineageEdge{}
	for rows.Next() {
		edge := &entities.LineageEdge{}
		if err := scanPayload(rows, edge); err != nil {
			return nil, err
		}
		result = append(result, edge)
	}
	return result, rows.Err()
}

func (p *Postgres) Type() string {
	return PostgresType
}

func (p *Postgres) Close() error {
	if err := p.dataSource.Close(); err != nil {
		return fmt.Errorf("Error closing postgres meta storage: %v", err)
	}
	return nil
}

// ** common **

func (p *Postgres) updatePayload(ctx context.Context, table, tenantID, id string, entity interface{}) error {
	payload, err := json.Marshal(entity)
	if err != nil {
		return errors.Wrapf(err, "error serializing [%s]", id)
	}

	result, err := p.dataSource.ExecContext(ctx, `UPDATE `+table+` SET payload = $3 WHERE tenant_id = $1 AND id = $2`, tenantID, id, payload)
	if err != nil {
		return errors.Wrapf(err, "error updating [%s] in %s", id, table)
	}
	return requireAffected(result)
}

func (p *Postgres) deleteNotRunning(ctx context.Context, table, tenantID, id, runningStatus string) error {
	result, err := p.dataSource.ExecContext(ctx, `DELETE FROM `+table+` WHERE tenant_id = $1 AND id = $2 AND status <> $3`, tenantID, id, runningStatus)
	if err != nil {
		return errors.Wrapf(err, "error deleting [%s] from %s", id, table)
	}
	if err := requireAffected(result); err != ErrNotFound {
		return err
	}
	return p.notStartedReason(ctx, table, tenantID, id)
}

func (p *Postgres) finishRun(ctx context.Context, table, tenantID, id, runID, status, runningStatus string, at time.Time) (bool, error) {
	result, err := p.dataSource.ExecContext(ctx, `UPDATE `+table+` SET status = $4, run_id = '', status_changed_at = $5
		WHERE tenant_id = $1 AND id = $2 AND run_id = $3 AND status = $6`, tenantID, id, runID, status, at.UTC(), runningStatus)
	if err != nil {
		return false, errors.Wrapf(err, "error finishing run [%s] of [%s]", runID, id)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

//notStartedReason distinguishes missing row from a row in the running status
func (p *Postgres) notStartedReason(ctx context.Context, table, tenantID, id string) error {
	var exists bool
	err := p.dataSource.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM `+table+` WHERE tenant_id = $1 AND id = $2)`, tenantID, id).Scan(&exists)
	if err != nil {
		return errors.Wrapf(err, "error checking [%s] existence", id)
	}
	if exists {
		return ErrAlreadyRunning
	}
	return ErrNotFound
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSource(row rowScanner) (*entities.Source, error) {
	var payload []byte
	var status, runID string
	var statusChangedAt time.Time
	if err := row.Scan(&payload, &status, &runID, &statusChangedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "error scanning source")
	}

	source := &entities.Source{}
	if err := json.Unmarshal(payload, source); err != nil {
		return nil, errors.Wrap(err, "error deserializing source")
	}
	source.Status = entities.SourceStatus(status)
	source.RunID = runID
	source.StatusChangedAt = statusChangedAt.UTC()
	return source, nil
}

func scanPipeline(row rowScanner) (*entities.Pipeline, error) {
	var payload []byte
	var active bool
	var status, runID string
	var statusChangedAt time.Time
	var lastRunAt pq.NullTime
	if err := row.Scan(&payload, &active, &status, &runID, &statusChangedAt, &lastRunAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "error scanning pipeline")
	}

	pipeline := &entities.Pipeline{}
	if err := json.Unmarshal(payload, pipeline); err != nil {
		return nil, errors.Wrap(err, "error deserializing pipeline")
	}
	pipeline.Active = active
	pipeline.Status = entities.PipelineStatus(status)
	pipeline.RunID = runID
	pipeline.StatusChangedAt = statusChangedAt.UTC()
	pipeline.LastRunAt = nil
	if lastRunAt.Valid {
		t := lastRunAt.Time.UTC()
		pipeline.LastRunAt = &t
	}
	return pipeline, nil
}

func scanPayload(row rowScanner, entity interface{}) error {
	var payload []byte
	if err := row.Scan(&payload); err != nil {
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		return errors.Wrap(err, "error scanning row")
	}
	if err := json.Unmarshal(payload, entity); err != nil {
		return errors.Wrap(err, "error deserializing row payload")
	}
	return nil
}

func requireAffected(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func wrapInsertErr(err error, entityType, id string) error {
	if err == nil {
		return nil
	}
	if pgErr, ok := err.(*pq.Error); ok && pgErr.Code == uniqueViolationCode {
		return ErrAlreadyExists
	}
	return errors.Wrapf(err, "error inserting %s [%s]", entityType, id)
}

//queryBuilder builds WHERE clause with positional parameters
type queryBuilder struct {
	conditions []string
	args       []interface{}
}

func newQueryBuilder(tenantID string) *queryBuilder {
	return &queryBuilder{conditions: []string{"tenant_id = $1"}, args: []interface{}{tenantID}}
}

func (qb *queryBuilder) equal(column, value string) {
	if value == "" {
		return
	}
	qb.args = append(qb.args, value)
	qb.conditions = append(qb.conditions, fmt.Sprintf("%s = $%d", column, len(qb.args)))
}

func (qb *queryBuilder) between(column string, start, end time.Time) {
	if !start.IsZero() {
		qb.args = append(qb.args, start.UTC())
		qb.conditions = append(qb.conditions, fmt.Sprintf("%s >= $%d", column, len(qb.args)))
	}
	if !end.IsZero() {
		qb.args = append(qb.args, end.UTC())
		qb.conditions = append(qb.conditions, fmt.Sprintf("%s < $%d", column, len(qb.args)))
	}
}

func (qb *queryBuilder) where() string {
	return " WHERE " + strings.Join(qb.conditions, " AND ")
}

func (qb *queryBuilder) limit(limit int) string {
	if limit <= 0 {
		return ""
	}
	return fmt.Sprintf(" LIMIT %d", limit)
}
