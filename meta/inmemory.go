package meta

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ledgerops/warehouse/entities"
)

//InMemory is a mutex guarded Storage. All returned entities are copies
type InMemory struct {
	mutex sync.RWMutex

	sources    map[string]*entities.Source
	pipelines  map[string]*entities.Pipeline
	checks     map[string]*entities.QualityCheck
	metrics    []*entities.QualityMetric
	executions map[string]*entities.Execution
	edges      []*entities.LineageEdge
}

func NewInMemory() *InMemory {
	return &InMemory{
		sources:    map[string]*entities.Source{},
		pipelines:  map[string]*entities.Pipeline{},
		checks:     map[string]*entities.QualityCheck{},
		executions: map[string]*entities.Execution{},
	}
}

// ** Sources **

func (im *InMemory) CreateSource(ctx context.Context, source *entities.Source) error {
	im.mutex.Lock()
	defer im.mutex.Unlock()

	if _, ok := im.sources[source.ID]; ok {
		return ErrAlreadyExists
	}
	im.sources[source.ID] = source.Clone()
	return nil
}

func (im *InMemory) UpdateSource(ctx context.Context, source *entities.Source) error {
	im.mutex.Lock()
	defer im.mutex.Unlock()

	stored, ok := im.sources[source.ID]
	if !ok || stored.TenantID != source.TenantID {
		return ErrNotFound
	}

	updated := source.Clone()
	updated.Status = stored.Status
	updated.RunID = stored.RunID
	updated.StatusChangedAt = stored.StatusChangedAt
	updated.CreatedAt = stored.CreatedAt
	im.sources[source.ID] = updated
	return nil
}

func (im *InMemory) GetSource(ctx context.Context, tenantID, id string) (*entities.Source, error) {
	im.mutex.RLock()
	defer im.mutex.RUnlock()

	source, ok := im.sources[id]
	if !ok || source.TenantID != tenantID {
		return nil, ErrNotFound
	}
	return source.Clone(), nil
}

func (im *InMemory) ListSources(ctx context.Context, tenantID string) ([]*entities.Source, error) {
	return im.filterSources(func(s *entities.Source) bool { return s.TenantID == tenantID }), nil
}

func (im *InMemory) ListAllSources(ctx context.Context) ([]*entities.Source, error) {
	return im.filterSources(func(s *entities.Source) bool { return true }), nil
}

func (im *InMemory) DeleteSource(ctx context.Context, tenantID, id string) error {
	im.mutex.Lock()
	defer im.mutex.Unlock()

	source, ok := im.sources[id]
	if !ok || source.TenantID != tenantID {
		return ErrNotFound
	}
	if source.Status == entities.SourceSyncing {
		return ErrAlreadyRunning
	}
	delete(im.sources, id)
	return nil
}

func (im *InMemory) BeginSourceRun(ctx context.Context, tenantID, id, runID string, at time.Time) (*entities.Source, error) {
	im.mutex.Lock()
	defer im.mutex.Unlock()

	source, ok := im.sources[id]
	if !ok || source.TenantID != tenantID {
		return nil, ErrNotFound
	}
	if source.Status == entities.SourceSyncing {
		return nil, ErrAlreadyRunning
	}

	source.Status = entities.SourceSyncing
	source.RunID = runID
	source.StatusChangedAt = at
	return source.Clone(), nil
}

func (im *InMemory) FinishSourceRun(ctx context.Context, tenantID, id, runID string, status entities.SourceStatus, at time.Time) (bool, error) {
	im.mutex.Lock()
	defer im.mutex.Unlock()

	source, ok := im.sources[id]
	if !ok || source.TenantID != tenantID || source.Status != entities.SourceSyncing || source.RunID != runID {
		return false, nil
	}

	source.Status = status
	source.RunID = ""
	source.StatusChangedAt = at
	return true, nil
}

func (im *InMemory) ListStalledSources(ctx context.Context, olderThan time.Time) ([]*entities.Source, error) {
	return im.filterSources(func(s *entities.Source) bool {
		return s.Status == entities.SourceSyncing && s.StatusChangedAt.Before(olderThan)
	}), nil
}

func (im *InMemory) filterSources(predicate func(*entities.Source) bool) []*entities.Source {
	im.mutex.RLock()
	defer im.mutex.RUnlock()

	result := []*entities.Source{}
	for _, source := range im.sources {
		if predicate(source) {
			result = append(result, source.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool { return createdBefore(result[i].CreatedAt, result[j].CreatedAt, result[i].ID, result[j].ID) })
	return result
}

// ** Pipelines **

func (im *InMemory) CreatePipeline(ctx context.Context, pipeline *entities.Pipeline) error {
	im.mutex.Lock()
	defer im.mutex.Unlock()

	if _, ok := im.pipelines[pipeline.ID]; ok {
		return ErrAlreadyExists
	}
	im.pipelines[pipeline.ID] = pipeline.Clone()
	return nil
}

func (im *InMemory) UpdatePipeline(ctx context.Context, pipeline *entities.Pipeline) error {
	im.mutex.Lock()
	defer im.mutex.Unlock()

	stored, ok := im.pipelines[pipeline.ID]
	if !ok || stored.TenantID != pipeline.TenantID {
		return ErrNotFound
	}

	updated := pipeline.Clone()
	updated.Active = stored.Active
	updated.Status = stored.Status
	updated.RunID = stored.RunID
	updated.StatusChangedAt = stored.StatusChangedAt
	updated.LastRunAt = stored.LastRunAt
	updated.CreatedAt = stored.CreatedAt
	im.pipelines[pipeline.ID] = updated
	return nil
}

func (im *InMemory) GetPipeline(ctx context.Context, tenantID, id string) (*entities.Pipeline, error) {
	im.mutex.RLock()
	defer im.mutex.RUnlock()

	pipeline, ok := im.pipelines[id]
	if !ok || pipeline.TenantID != tenantID {
		return nil, ErrNotFound
	}
	return pipeline.Clone(), nil
}

func (im *InMemory) ListPipelines(ctx context.Context, tenantID, sourceID string) ([]*entities.Pipeline, error) {
	return im.filterPipelines(func(p *entities.Pipeline) bool {
		return p.TenantID == tenantID && (sourceID == "" || p.SourceID == sourceID)
	}), nil
}

func (im *InMemory) ListAllPipelines(ctx context.Context) ([]*entities.Pipeline, error) {
	return im.filterPipelines(func(p *entities.Pipeline) bool { return true }), nil
}

func (im *InMemory) DeletePipeline(ctx context.Context, tenantID, id string) error {
	im.mutex.Lock()
	defer im.mutex.Unlock()

	pipeline, ok := im.pipelines[id]
	if !ok || pipeline.TenantID != tenantID {
		return ErrNotFound
	}
	if pipeline.Status == entities.PipelineRunning {
		return ErrAlreadyRunning
	}
	delete(im.pipelines, id)
	return nil
}

func (im *InMemory) SetPipelineActive(ctx context.Context, tenantID, id string, active bool) error {
	im.mutex.Lock()
	defer im.mutex.Unlock()

	pipeline, ok := im.pipelines[id]
	if !ok || pipeline.TenantID != tenantID {
		return ErrNotFound
	}
	pipeline.Active = active
	return nil
}

func (im *InMemory) BeginPipelineRun(ctx context.Context, tenantID, id, runID string, at time.Time) (*entities.Pipeline, error) {
	im.mutex.Lock()
	defer im.mutex.Unlock()

	pipeline, ok := im.pipelines[id]
	if !ok || pipeline.TenantID != tenantID {
		return nil, ErrNotFound
	}
	if pipeline.Status == entities.PipelineRunning {
		return nil, ErrAlreadyRunning
	}

	pipeline.Status = entities.PipelineRunning
	pipeline.RunID = runID
	pipeline.StatusChangedAt = at
	lastRunAt := at
	pipeline.LastRunAt = &lastRunAt
	return pipeline.Clone(), nil
}

func (im *InMemory) FinishPipelineRun(ctx context.Context, tenantID, id, runID string, status entities.PipelineStatus, at time.Time) (bool, error) {
	im.mutex.Lock()
	defer im.mutex.Unlock()

	pipeline, ok := im.pipelines[id]
	if !ok || pipeline.TenantID != tenantID || pipeline.Status != entities.PipelineRunning || pipeline.RunID != runID {
		return false, nil
	}

	pipeline.Status = status
	pipeline.RunID = ""
	pipeline.StatusChangedAt = at
	return true, nil
}

func (im *InMemory) ListStalledPipelines(ctx context.Context, olderThan time.Time) ([]*entities.Pipeline, error) {
	return im.filterPipelines(func(p *entities.Pipeline) bool {
		return p.Status == entities.PipelineRunning && p.StatusChangedAt.Before(olderThan)
	}), nil
}

func (im *InMemory) filterPipelines(predicate func(*entities.Pipeline) bool) []*entities.Pipeline {
	im.mutex.RLock()
	defer im.mutex.RUnlock()

	result := []*entities.Pipeline{}
	for _, pipeline := range im.pipelines {
		if predicate(pipeline) {
			result = append(result, pipeline.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool { return createdBefore(result[i].CreatedAt, result[j].CreatedAt, result[i].ID, result[j].ID) })
	return result
}

// ** Quality **

func (im *InMemory) CreateCheck(ctx context.Context, check *entities.QualityCheck) error {
	im.mutex.Lock()
	defer im.mutex.Unlock()

	if _, ok := im.checks[check.ID]; ok {
		return ErrAlreadyExists
	}
	im.checks[check.ID] = check.Clone()
	return nil
}

func (im *InMemory) GetCheck(ctx context.Context, tenantID, id string) (*entities.QualityCheck, error) {
	im.mutex.RLock()
	defer im.mutex.RUnlock()

	check, ok := im.checks[id]
	if !ok || check.TenantID != tenantID {
		return nil, ErrNotFound
	}
	return check.Clone(), nil
}

func (im *InMemory) ListChecks(ctx context.Context, tenantID, sourceID string) ([]*entities.QualityCheck, error) {
	return im.filterChecks(func(c *entities.QualityCheck) bool {
		return c.TenantID == tenantID && (sourceID == "" || c.SourceID == sourceID)
	}), nil
}

func (im *InMemory) ListAllChecks(ctx context.Context) ([]*entities.QualityCheck, error) {
	return im.filterChecks(func(c *entities.QualityCheck) bool { return true }), nil
}

func (im *InMemory) DeleteCheck(ctx context.Context, tenantID, id string) error {
	im.mutex.Lock()
	defer im.mutex.Unlock()

	check, ok := im.checks[id]
	if !ok || check.TenantID != tenantID {
		return ErrNotFound
	}
	delete(im.checks, id)
	return nil
}

func (im *InMemory) filterChecks(predicate func(*entities.QualityCheck) bool) []*entities.QualityCheck {
	im.mutex.RLock()
	defer im.mutex.RUnlock()

	result := []*entities.QualityCheck{}
	for _, check := range im.checks {
		if predicate(check) {
			result = append(result, check.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool { return createdBefore(result[i].CreatedAt, result[j].CreatedAt, result[i].ID, result[j].ID) })
	return result
}

func (im *InMemory) SaveMetric(ctx context.Context, metric *entities.QualityMetric) error {
	im.mutex.Lock()
	defer im.mutex.Unlock()

	copied := *metric
	im.metrics = append(im.metrics, &copied)
	return nil
}

func (im *InMemory) ListMetrics(ctx context.Context, tenantID string, filter MetricFilter) ([]*entities.QualityMetric, error) {
	im.mutex.RLock()
	defer im.mutex.RUnlock()

	result := []*entities.QualityMetric{}
	//metrics slice is append-only: iterate from the end for newest first
	for i := len(im.metrics) - 1; i >= 0; i-- {
		metric := im.metrics[i]
		if metric.TenantID == tenantID && filter.Match(metric) {
			copied := *metric
			result = append(result, &copied)
		}
	}
	sort.SliceStable(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result[:applyLimit(len(result), filter.Limit)], nil
}

// ** Executions **

func (im *InMemory) SaveExecution(ctx context.Context, execution *entities.Execution) error {
	im.mutex.Lock()
	defer im.mutex.Unlock()

	if _, ok := im.executions[execution.ID]; ok {
		return ErrAlreadyExists
	}
	copied := *execution
	im.executions[execution.ID] = &copied
	return nil
}

func (im *InMemory) GetExecution(ctx context.Context, tenantID, id string) (*entities.Execution, error) {
	im.mutex.RLock()
	defer im.mutex.RUnlock()

	execution, ok := im.executions[id]
	if !ok || execution.TenantID != tenantID {
		return nil, ErrNotFound
	}
	copied := *execution
	return &copied, nil
}

func (im *InMemory) ListExecutions(ctx context.Context, tenantID string, filter ExecutionFilter) ([]*entities.Execution, error) {
	im.mutex.RLock()
	defer im.mutex.RUnlock()

	result := []*entities.Execution{}
	for _, execution := range im.executions {
		if execution.TenantID == tenantID && filter.Match(execution) {
			copied := *execution
			result = append(result, &copied)
		}
	}
	sortExecutions(result)
	return result[:applyLimit(len(result), filter.Limit)], nil
}

// ** Lineage **

func (im *InMemory) AppendEdge(ctx context.Context, edge *entities.LineageEdge) error {
	im.mutex.Lock()
	defer im.mutex.Unlock()

	copied := *edge
	im.edges = append(im.edges, &copied)
	return nil
}

func (im *InMemory) ListEdges(ctx context.Context, tenantID string) ([]*entities.LineageEdge, error) {
	im.mutex.RLock()
	defer im.mutex.RUnlock()

	result := []*entities.LineageEdge{}
	for _, edge := range im.edges {
		if edge.TenantID == tenantID {
			copied := *edge
			result = append(result, &copied)
		}
	}
	return result, nil
}

func (im *InMemory) Type() string {
	return InMemoryType
}

func (im *InMemory) Close() error {
	return nil
}

//sortExecutions sorts newest first with ID as a tie-breaker
func sortExecutions(executions []*entities.Execution) {
	sort.Slice(executions, func(i, j int) bool {
		if executions[i].StartedAt.Equal(executions[j].StartedAt) {
			return executions[i].ID > executions[j].ID
		}
		return executions[i].StartedAt.After(executions[j].StartedAt)
	})
}

func createdBefore(a, b time.Time, aID, bID string) bool {
	if a.Equal(b) {
		return aID < bID
	}
	return a.Before(b)
}
