package meta

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/gomodule/redigo/redis"
	"github.com/ledgerops/warehouse/entities"
	"github.com/ledgerops/warehouse/logging"
	"github.com/ledgerops/warehouse/metrics"
	"github.com/pkg/errors"
)

const (
	sourcesPrefix        = "sources#"
	pipelinesPrefix      = "pipelines#"
	qualityChecksPrefix  = "quality_checks#"
	qualityMetricsPrefix = "quality_metrics#"
	executionsPrefix     = "executions#"
	lineageEdgesPrefix   = "lineage_edges#"

	sourcesIndex        = "sources_index"
	pipelinesIndex      = "pipelines_index"
	qualityChecksIndex  = "quality_checks_index"
	qualityMetricsIndex = "quality_metrics_index"
	executionsIndex     = "executions_index"
	lineageEdgesIndex   = "lineage_edges_index"

	sourcesInFlight   = "sources_in_flight"
	pipelinesInFlight = "pipelines_in_flight"

	payloadField = "payload"
)

//Redis is a redigo based Storage
//
//redis key [variables] - description
//
//** Sources **
//sources#sourceID [tenant_id, status, run_id, status_changed_at, payload] - hashtable with source JSON and its status
//sources_index:tenant#tenantID [created_at_ms sourceID] - sorted set of tenant sources
//sources_index [created_at_ms sourceID] - sorted set of all sources
//sources_in_flight [status_changed_at_ms sourceID] - sorted set of syncing sources
//
//** Pipelines **
//pipelines#pipelineID [tenant_id, source_id, active, status, run_id, status_changed_at, last_run_at, payload]
//pipelines_index:tenant#tenantID, pipelines_index:source#sourceID, pipelines_index [created_at_ms pipelineID]
//pipelines_in_flight [status_changed_at_ms pipelineID] - sorted set of running pipelines
//
//** Quality **
//quality_checks#checkID [tenant_id, source_id, payload]
//quality_checks_index:tenant#tenantID, quality_checks_index [created_at_ms checkID]
//quality_metrics#metricID [tenant_id, payload]
//quality_metrics_index:tenant#tenantID [created_at_ms metricID]
//
//** Ledger **
//executions#executionID [tenant_id, payload] - write once hashtable
//executions_index:tenant#tenantID [started_at_ms executionID]
//
//** Lineage **
//lineage_edges#edgeID [tenant_id, payload]
//lineage_edges_index:tenant#tenantID [created_at_ms edgeID]
type Redis struct {
	pool         *RedisPool
	errorMetrics *ErrorMetrics
}

func NewRedis(pool *RedisPool) *Redis {
	logging.Info("Initializing redis meta storage...")
	return &Redis{pool: pool, errorMetrics: NewErrorMetrics(metrics.MetaRedisErrors)}
}

// ** Sources **

func (r *Redis) CreateSource(ctx context.Context, source *entities.Source) error {
	fields := map[string]string{
		"status":            string(source.Status),
		"run_id":            source.RunID,
		"status_changed_at": formatTime(source.StatusChangedAt),
	}
	return r.createEntity(sourcesPrefix+source.ID, source.TenantID, source, fields, source.CreatedAt,
		tenantIndex(sourcesIndex, source.TenantID), sourcesIndex)
}

func (r *Redis) UpdateSource(ctx context.Context, source *entities.Source) error {
	return r.updatePayload(sourcesPrefix+source.ID, source.TenantID, source)
}

func (r *Redis) GetSource(ctx context.Context, tenantID, id string) (*entities.Source, error) {
	conn := r.pool.Get()
	defer conn.Close()

	source, err := r.loadSource(conn, id)
	if err != nil {
		return nil, err
	}
	if source.TenantID != tenantID {
		return nil, ErrNotFound
	}
	return source, nil
}

func (r *Redis) ListSources(ctx context.Context, tenantID string) ([]*entities.Source, error) {
	return r.listSources(tenantIndex(sourcesIndex, tenantID))
}

func (r *Redis) ListAllSources(ctx context.Context) ([]*entities.Source, error) {
	return r.listSources(sourcesIndex)
}

func (r *Redis) DeleteSource(ctx context.Context, tenantID, id string) error {
	if err := r.deleteEntity(sourcesPrefix+id, tenantID, string(entities.SourceSyncing)); err != nil {
		return err
	}
	return r.removeFromIndexes(id, tenantIndex(sourcesIndex, tenantID), sourcesIndex)
}

func (r *Redis) BeginSourceRun(ctx context.Context, tenantID, id, runID string, at time.Time) (*entities.Source, error) {
	if err := r.beginRun(sourcesPrefix+id, sourcesInFlight, tenantID, id, runID, string(entities.SourceSyncing), at, ""); err != nil {
		return nil, err
	}
	return r.GetSource(ctx, tenantID, id)
}

func (r *Redis) FinishSourceRun(ctx context.Context, tenantID, id, runID string, status entities.SourceStatus, at time.Time) (bool, error) {
	return r.finishRun(sourcesPrefix+id, sourcesInFlight, tenantID, id, runID, string(status), string(entities.SourceSyncing), at)
}

func (r *Redis) ListStalledSources(ctx context.Context, olderThan time.Time) ([]*entities.Source, error) {
	conn := r.pool.Get()
	defer conn.Close()

	ids, err := r.rangeIndex(conn, sourcesInFlight, time.Time{}, olderThan, false)
	if err != nil {
		return nil, err
	}

	result := []*entities.Source{}
	for _, id := range ids {
		source, err := r.loadSource(conn, id)
		if err == ErrNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		if source.Status == entities.SourceSyncing && source.StatusChangedAt.Before(olderThan) {
			result = append(result, source)
		}
	}
	return result, nil
}

func (r *Redis) listSources(indexKey string) ([]*entities.Source, error) {
	conn := r.pool.Get()
	defer conn.Close()

	ids, err := r.rangeIndex(conn, indexKey, time.Time{}, time.Time{}, false)
	if err != nil {
		return nil, err
	}

	result := []*entities.Source{}
	for _, id := range ids {
		source, err := r.loadSource(conn, id)
		if err == ErrNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		result = append(result, source)
	}
	return result, nil
}

func (r *Redis) loadSource(conn redis.Conn, id string) (*entities.Source, error) {
	fields, err := r.loadEntity(conn, sourcesPrefix+id)
	if err != nil {
		return nil, err
	}

	source := &entities.Source{}
	if err := json.Unmarshal([]byte(fields[payloadField]), source); err != nil {
		return nil, errors.Wrapf(err, "error deserializing source [%s]", id)
	}
	source.Status = entities.SourceStatus(fields["status"])
	source.RunID = fields["run_id"]
	source.StatusChangedAt = parseTime(fields["status_changed_at"])
	return source, nil
}

// ** Pipelines **

func (r *Redis) CreatePipeline(ctx context.Context, pipeline *entities.Pipeline) error {
	fields := map[string]string{
		"source_id":         pipeline.SourceID,
		"active":            strconv.FormatBool(pipeline.Active),
		"status":            string(pipeline.Status),
		"run_id":            pipeline.RunID,
		"status_changed_at": formatTime(pipeline.StatusChangedAt),
		"last_run_at":       "",
	}
	if pipeline.LastRunAt != nil {
		fields["last_run_at"] = formatTime(*pipeline.LastRunAt)
	}
	return r.createEntity(pipelinesPrefix+pipeline.ID, pipeline.TenantID, pipeline, fields, pipeline.CreatedAt,
		tenantIndex(pipelinesIndex, pipeline.TenantID), sourceIndex(pipelinesIndex, pipeline.SourceID), pipelinesIndex)
}

func (r *Redis) UpdatePipeline(ctx context.Context, pipeline *entities.Pipeline) error {
	return r.updatePayload(pipelinesPrefix+pipeline.ID, pipeline.TenantID, pipeline)
}

func (r *Redis) GetPipeline(ctx context.Context, tenantID, id string) (*entities.Pipeline, error) {
	conn := r.pool.Get()
	defer conn.Close()

	pipeline, err := r.loadPipeline(conn, id)
	if err != nil {
		return nil, err
	}
	if pipeline.TenantID != tenantID {
		return nil, ErrNotFound
	}
	return pipeline, nil
}

func (r *Redis) ListPipelines(ctx context.Context, tenantID, sourceID string) ([]*entities.Pipeline, error) {
	if sourceID == "" {
		return r.listPipelines(tenantIndex(pipelinesIndex, tenantID), tenantID)
	}
	return r.listPipelines(sourceIndex(pipelinesIndex, sourceID), tenantID)
}

func (r *Redis) ListAllPipelines(ctx context.Context) ([]*entities.Pipeline, error) {
	return r.listPipelines(pipelinesIndex, "")
}

func (r *Redis) DeletePipeline(ctx context.Context, tenantID, id string) error {
	pipeline, err := r.GetPipeline(ctx, tenantID, id)
	if err != nil {
		return err
	}
	if err := r.deleteEntity(pipelinesPrefix+id, tenantID, string(entities.PipelineRunning)); err != nil {
		return err
	}
	return r.removeFromIndexes(id, tenantIndex(pipelinesIndex, tenantID), sourceIndex(pipelinesIndex, pipeline.SourceID), pipelinesIndex)
}

func (r *Redis) SetPipelineActive(ctx context.Context, tenantID, id string, active bool) error {
	conn := r.pool.Get()
	defer conn.Close()

	result, err := redis.Int(setFieldScript.Do(conn, pipelinesPrefix+id, tenantID, "active", strconv.FormatBool(active)))
	if err != nil {
		r.errorMetrics.NoticeError(err)
		return errors.Wrapf(err, "error updating pipeline [%s] active flag", id)
	}
	if result < 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Redis) BeginPipelineRun(ctx context.Context, tenantID, id, runID string, at time.Time) (*entities.Pipeline, error) {
	if err := r.beginRun(pipelinesPrefix+id, pipelinesInFlight, tenantID, id, runID, string(entities.PipelineRunning), at, formatTime(at)); err != nil {
		return nil, err
	}
	return r.GetPipeline(ctx, tenantID, id)
}

func (r *Redis) FinishPipelineRun(ctx context.Context, tenantID, id, runID string, status entities.PipelineStatus, at time.Time) (bool, error) {
	return r.finishRun(pipelinesPrefix+id, pipelinesInFlight, tenantID, id, runID, string(status), string(entities.PipelineRunning), at)
}

func (r *Redis) ListStalledPipelines(ctx context.Context, olderThan time.Time) ([]*entities.Pipeline, error) {
	conn := r.pool.Get()
	defer conn.Close()

	ids, err := r.rangeIndex(conn, pipelinesInFlight, time.Time{}, olderThan, false)
	if err != nil {
		return nil, err
	}

	result := []*entities.Pipeline{}
	for _, id := range ids {
		pipeline, err := r.loadPipeline(conn, id)
		if err == ErrNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		if pipeline.Status == entities.PipelineRunning && pipeline.StatusChangedAt.Before(olderThan) {
			result = append(result, pipeline)
		}
	}
	return result, nil
}

func (r *Redis) listPipelines(indexKey, tenantID string) ([]*entities.Pipeline, error) {
	conn := r.pool.Get()
	defer conn.Close()

	ids, err := r.rangeIndex(conn, indexKey, time.Time{}, time.Time{}, false)
	if err != nil {
		return nil, err
	}

	result := []*entities.Pipeline{}
	for _, id := range ids {
		pipeline, err := r.loadPipeline(conn, id)
		if err == ErrNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		if tenantID != "" && pipeline.TenantID != tenantID {
			continue
		}
		result = append(result, pipeline)
	}
	return result, nil
}

func (r *Redis) loadPipeline(conn redis.Conn, id string) (*entities.Pipeline, error) {
	fields, err := r.loadEntity(conn, pipelinesPrefix+id)
	if err != nil {
		return nil, err
	}

	pipeline := &entities.Pipeline{}
	if err := json.Unmarshal([]byte(fields[payloadField]), pipeline); err != nil {
		return nil, errors.Wrapf(err, "error deserializing pipeline [%s]", id)
	}
	pipeline.Active = fields["active"] == "true"
	pipeline.Status = entities.PipelineStatus(fields["status"])
	pipeline.RunID = fields["run_id"]
	pipeline.StatusChangedAt = parseTime(fields["status_changed_at"])
	pipeline.LastRunAt = nil
	if lastRunAt := fields["last_run_at"]; lastRunAt != "" {
		t := parseTime(lastRunAt)
		pipeline.LastRunAt = &t
	}
	return pipeline, nil
}

// ** Quality **

func (r *Redis) CreateCheck(ctx context.Context, check *entities.QualityCheck) error {
	return r.createEntity(qualityChecksPrefix+check.ID, check.TenantID, check, map[string]string{"source_id": check.SourceID}, check.CreatedAt,
		tenantIndex(qualityChecksIndex, check.TenantID), qualityChecksIndex)
}

func (r *Redis) GetCheck(ctx context.Context, tenantID, id string) (*entities.QualityCheck, error) {
	conn := r.pool.Get()
	defer conn.Close()

	check := &entities.QualityCheck{}
	if err := r.loadPayload(conn, qualityChecksPrefix+id, check); err != nil {
		return nil, err
	}
	if check.TenantID != tenantID {
		return nil, ErrNotFound
	}
	return check, nil
}

func (r *Redis) ListChecks(ctx context.Context, tenantID, sourceID string) ([]*entities.QualityCheck, error) {
	checks, err := r.listChecks(tenantIndex(qualityChecksIndex, tenantID))
	if err != nil {
		return nil, err
	}

	result := []*entities.QualityCheck{}
	for _, check := range checks {
		if sourceID == "" || check.SourceID == sourceID {
			result = append(result, check)
		}
	}
	return result, nil
}

func (r *Redis) ListAllChecks(ctx context.Context) ([]*entities.QualityCheck, error) {
	return r.listChecks(qualityChecksIndex)
}

func (r *Redis) DeleteCheck(ctx context.Context, tenantID, id string) error {
	if err := r.deleteEntity(qualityChecksPrefix+id, tenantID, ""); err != nil {
		return err
	}
	return r.removeFromIndexes(id, tenantIndex(qualityChecksIndex, tenantID), qualityChecksIndex)
}

func (r *Redis) listChecks(indexKey string) ([]*entities.QualityCheck, error) {
	conn := r.pool.Get()
	defer conn.Close()

	ids, err := r.rangeIndex(conn, indexKey, time.Time{}, time.Time{}, false)
	if err != nil {
		return nil, err
	}

	result := []*entities.QualityCheck{}
	for _, id := range ids {
		check := &entities.QualityCheck{}
		err := r.loadPayload(conn, qualityChecksPrefix+id, check)
		if err == ErrNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		result = append(result, check)
	}
	return result, nil
}

func (r *Redis) SaveMetric(ctx context.Context, metric *entities.QualityMetric) error {
	return r.createEntity(qualityMetricsPrefix+metric.ID, metric.TenantID, metric, nil, metric.CreatedAt,
		tenantIndex(qualityMetricsIndex, metric.TenantID))
}

func (r *Redis) ListMetrics(ctx context.Context, tenantID string, filter MetricFilter) ([]*entities.QualityMetric, error) {
	conn := r.pool.Get()
	defer conn.Close()

	ids, err := r.rangeIndex(conn, tenantIndex(qualityMetricsIndex, tenantID), filter.Start, filter.End, true)
	if err != nil {
		return nil, err
	}

	result := []*entities.QualityMetric{}
	for _, id := range ids {
		if filter.Limit > 0 && len(result) >= filter.Limit {
			break
		}

		metric := &entities.QualityMetric{}
		err := r.loadPayload(conn, qualityMetricsPrefix+id, metric)
		if err == ErrNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		if filter.Match(metric) {
			result = append(result, metric)
		}
	}
	return result, nil
}

// ** Executions **

//SaveExecution writes the row once and puts it into tenant, source and pipeline indexes
func (r *Redis) SaveExecution(ctx context.Context, execution *entities.Execution) error {
	indexes := []string{tenantIndex(executionsIndex, execution.TenantID)}
	if execution.SourceID != "" {
		indexes = append(indexes, sourceIndex(executionsIndex, execution.SourceID))
	}
	if execution.PipelineID != "" {
		indexes = append(indexes, pipelineIndex(executionsIndex, execution.PipelineID))
	}
	return r.createEntity(executionsPrefix+execution.ID, execution.TenantID, execution, nil, execution.StartedAt, indexes...)
}

func (r *Redis) GetExecution(ctx context.Context, tenantID, id string) (*entities.Execution, error) {
	conn := r.pool.Get()
	defer conn.Close()

	execution := &entities.Execution{}
	if err := r.loadPayload(conn, executionsPrefix+id, execution); err != nil {
		return nil, err
	}
	if execution.TenantID != tenantID {
		return nil, ErrNotFound
	}
	return execution, nil
}

//ListExecutions reads the narrowest index (pipeline, source or tenant) newest first and stops as soon as
//filter.Limit rows are collected
func (r *Redis) ListExecutions(ctx context.Context, tenantID string, filter ExecutionFilter) ([]*entities.Execution, error) {
	conn := r.pool.Get()
	defer conn.Close()

	indexKey := tenantIndex(executionsIndex, tenantID)
	switch {
	case filter.PipelineID != "":
		indexKey = pipelineIndex(executionsIndex, filter.PipelineID)
	case filter.SourceID != "":
		indexKey = sourceIndex(executionsIndex, filter.SourceID)
	}

	ids, err := r.rangeIndex(conn, indexKey, filter.Start, filter.End, true)
	if err != nil {
		return nil, err
	}

	result := []*entities.Execution{}
	for _, id := range ids {
		execution := &entities.Execution{}
		err := r.loadPayload(conn, executionsPrefix+id, execution)
		if err == ErrNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		if execution.TenantID != tenantID || !filter.Match(execution) {
			continue
		}

		//index score has millisecond precision: rows of the same millisecond as the last one are still collected
		if filter.Limit > 0 && len(result) >= filter.Limit && toScore(execution.StartedAt) < toScore(result[len(result)-1].StartedAt) {
			break
		}
		result = append(result, execution)
	}

	sortExecutions(result)
	return result[:applyLimit(len(result), filter.Limit)], nil
}

// ** Lineage **

func (r *Redis) AppendEdge(ctx context.Context, edge *entities.LineageEdge) error {
	return r.createEntity(lineageEdgesPrefix+edge.ID, edge.TenantID, edge, nil, edge.CreatedAt,
		tenantIndex(lineageEdgesIndex, edge.TenantID))
}

func (r *Redis) ListEdges(ctx context.Context, tenantID string) ([]*entities.LineageEdge, error) {
	conn := r.pool.Get()
	defer conn.Close()

	ids, err := r.rangeIndex(conn, tenantIndex(lineageEdgesIndex, tenantID), time.Time{}, time.Time{}, false)
	if err != nil {
		return nil, err
	}

	result := []*entities.LineageEdge{}
	for _, id := range ids {
		edge := &entities.LineageEdge{}
		err := r.loadPayload(conn, lineageEdgesPrefix+id, edge)
		if err == ErrNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		result = append(result, edge)
	}
	return result, nil
}

func (r *Redis) Type() string {
	return RedisType
}

func (r *Redis) Close() error {
	return r.pool.Close()
}

// ** common **

//createEntity writes payload with HSETNX (write once) and then additional fields and indexes
func (r *Redis) createEntity(key, tenantID string, entity interface{}, fields map[string]string, createdAt time.Time, indexes ...string) error {
	payload, err := json.Marshal(entity)
	if err != nil {
		return errors.Wrapf(err, "error serializing [%s]", key)
	}

	conn := r.pool.Get()
	defer conn.Close()

	created, err := redis.Int(conn.Do("HSETNX", key, payloadField, payload))
	if err != nil {
		r.errorMetrics.NoticeError(err)
		return errors.Wrapf(err, "error saving [%s]", key)
	}
	if created == 0 {
		return ErrAlreadyExists
	}

	args := redis.Args{}.Add(key).Add("tenant_id", tenantID)
	for name, value := range fields {
		args = args.Add(name, value)
	}
	if _, err := conn.Do("HMSET", args...); err != nil {
		r.errorMetrics.NoticeError(err)
		return errors.Wrapf(err, "error saving [%s] fields", key)
	}

	id := entityID(key)
	for _, index := range indexes {
		if _, err := conn.Do("ZADD", index, toScore(createdAt), id); err != nil {
			r.errorMetrics.NoticeError(err)
			logging.SystemErrorf("[%s] was saved but failed to save in index [%s]: %v", key, index, err)
			return errors.Wrapf(err, "error saving [%s] in index", key)
		}
	}
	return nil
}

func (r *Redis) updatePayload(key, tenantID string, entity interface{}) error {
	payload, err := json.Marshal(entity)
	if err != nil {
		return errors.Wrapf(err, "error serializing [%s]", key)
	}

	conn := r.pool.Get()
	defer conn.Close()

	result, err := redis.Int(setFieldScript.Do(conn, key, tenantID, payloadField, payload))
	if err != nil {
		r.errorMetrics.NoticeError(err)
		return errors.Wrapf(err, "error updating [%s]", key)
	}
	if result < 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Redis) deleteEntity(key, tenantID, runningStatus string) error {
	conn := r.pool.Get()
	defer conn.Close()

	result, err := redis.Int(deleteEntityScript.Do(conn, key, tenantID, runningStatus))
	if err != nil {
		r.errorMetrics.NoticeError(err)
		return errors.Wrapf(err, "error deleting [%s]", key)
	}

	switch result {
	case -1:
		return ErrNotFound
	case 0:
		return ErrAlreadyRunning
	default:
		return nil
	}
}

func (r *Redis) removeFromIndexes(id string, indexes ...string) error {
	conn := r.pool.Get()
	defer conn.Close()

	for _, index := range indexes {
		if _, err := conn.Do("ZREM", index, id); err != nil && err != redis.ErrNil {
			r.errorMetrics.NoticeError(err)
			return errors.Wrapf(err, "error removing [%s] from index [%s]", id, index)
		}
	}
	return nil
}

func (r *Redis) beginRun(key, inFlightKey, tenantID, id, runID, runningStatus string, at time.Time, lastRunAt string) error {
	conn := r.pool.Get()
	defer conn.Close()

	result, err := redis.Int(beginRunScript.Do(conn, key, inFlightKey, tenantID, runID, formatTime(at), toScore(at), runningStatus, lastRunAt, id))
	if err != nil {
		r.errorMetrics.NoticeError(err)
		return errors.Wrapf(err, "error starting run of [%s]", key)
	}

	switch result {
	case -1:
		return ErrNotFound
	case 0:
		return ErrAlreadyRunning
	default:
		return nil
	}
}

func (r *Redis) finishRun(key, inFlightKey, tenantID, id, runID, status, runningStatus string, at time.Time) (bool, error) {
	conn := r.pool.Get()
	defer conn.Close()

	result, err := redis.Int(finishRunScript.Do(conn, key, inFlightKey, tenantID, runID, status, formatTime(at), runningStatus, id))
	if err != nil {
		r.errorMetrics.NoticeError(err)
		return false, errors.Wrapf(err, "error finishing run [%s] of [%s]", runID, key)
	}
	return result == 1, nil
}

func (r *Redis) loadEntity(conn redis.Conn, key string) (map[string]string, error) {
	fields, err := redis.StringMap(conn.Do("HGETALL", key))
	if err != nil && err != redis.ErrNil {
		r.errorMetrics.NoticeError(err)
		return nil, errors.Wrapf(err, "error getting [%s]", key)
	}
	if len(fields) == 0 || fields[payloadField] == "" {
		return nil, ErrNotFound
	}
	return fields, nil
}

func (r *Redis) loadPayload(conn redis.Conn, key string, entity interface{}) error {
	fields, err := r.loadEntity(conn, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(fields[payloadField]), entity); err != nil {
		return errors.Wrapf(err, "error deserializing [%s]", key)
	}
	return nil
}

//rangeIndex returns ids from the sorted set with score in [start, end). Zero times mean unbounded
func (r *Redis) rangeIndex(conn redis.Conn, indexKey string, start, end time.Time, newestFirst bool) ([]string, error) {
	min, max := "-inf", "+inf"
	if !start.IsZero() {
		min = strconv.FormatInt(toScore(start), 10)
	}
	if !end.IsZero() {
		max = "(" + strconv.FormatInt(toScore(end), 10)
	}

	var ids []string
	var err error
	if newestFirst {
		ids, err = redis.Strings(conn.Do("ZREVRANGEBYSCORE", indexKey, max, min))
	} else {
		ids, err = redis.Strings(conn.Do("ZRANGEBYSCORE", indexKey, min, max))
	}
	if err != nil && err != redis.ErrNil {
		r.errorMetrics.NoticeError(err)
		return nil, errors.Wrapf(err, "error getting index [%s]", indexKey)
	}
	return ids, nil
}

func tenantIndex(index, tenantID string) string {
	return index + ":tenant#" + tenantID
}

func sourceIndex(index, sourceID string) string {
	return index + ":source#" + sourceID
}

func pipelineIndex(index, pipelineID string) string {
	return index + ":pipeline#" + pipelineID
}

//entityID returns id part of the key: prefix#id
func entityID(key string) string {
	for i := 0; i < len(key); i++ {
		if key[i] == '#' {
			return key[i+1:]
		}
	}
	return key
}

func toScore(t time.Time) int64 {
	return t.UTC().UnixNano() / int64(time.Millisecond)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		logging.SystemErrorf("Error parsing time [%s]: %v", value, err)
		return time.Time{}
	}
	return t
}

