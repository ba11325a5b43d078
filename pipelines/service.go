package pipelines

import (
	"context"
	"strings"

	"github.com/ledgerops/warehouse/audit"
	"github.com/ledgerops/warehouse/drivers"
	"github.com/ledgerops/warehouse/entities"
	"github.com/ledgerops/warehouse/errorj"
	"github.com/ledgerops/warehouse/logging"
	"github.com/ledgerops/warehouse/meta"
	"github.com/ledgerops/warehouse/timestamp"
	"github.com/ledgerops/warehouse/uuid"
)

const (
	pipelineEntity = "pipeline"
	sourceEntity   = "source"
)

//Scheduler registers cron triggers of pipelines
type Scheduler interface {
	ValidateSchedule(schedule string) error
	SchedulePipeline(pipeline *entities.Pipeline) error
	UnschedulePipeline(pipeline *entities.Pipeline)
}

//PipelineRequest is a body of pipeline creation request
type PipelineRequest struct {
	SourceID    string          `json:"source_id"`
	Name        string          `json:"name"`
	Steps       []entities.Step `json:"steps"`
	Schedule    string          `json:"schedule,omitempty"`
	Enabled     *bool           `json:"enabled,omitempty"`
	Mode        string          `json:"mode,omitempty"`
	Destination string          `json:"destination,omitempty"`
}

//PipelinePatch contains only fields which should be changed
type PipelinePatch struct {
	Name        *string          `json:"name,omitempty"`
	Steps       *[]entities.Step `json:"steps,omitempty"`
	Schedule    *string          `json:"schedule,omitempty"`
	Enabled     *bool            `json:"enabled,omitempty"`
	Destination *string          `json:"destination,omitempty"`
	Status      *string          `json:"status,omitempty"`
}

//Service is a tenant scoped pipeline store
type Service struct {
	storage   meta.Storage
	factory   *drivers.Factory
	auditSink audit.Sink
	scheduler Scheduler
}

func NewService(storage meta.Storage, factory *drivers.Factory, auditSink audit.Sink) *Service {
	return &Service{storage: storage, factory: factory, auditSink: auditSink}
}

//AttachScheduler enables cron triggers. Must be called before serving requests
func (s *Service) AttachScheduler(scheduler Scheduler) {
	s.scheduler = scheduler
}

func (s *Service) Create(ctx context.Context, tenantID string, req *PipelineRequest) (*entities.Pipeline, error) {
	if strings.TrimSpace(tenantID) == "" {
		return nil, errorj.ValidationError.New("tenant id is required")
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, errorj.ValidationError.New("'name' is required")
	}
	if req.SourceID == "" {
		return nil, errorj.ValidationError.New("'source_id' is required")
	}

	mode, err := entities.PipelineModeFromString(req.Mode)
	if err != nil {
		return nil, err
	}

	steps, err := s.normalizeSteps(req.Steps)
	if err != nil {
		return nil, err
	}

	schedule := strings.TrimSpace(req.Schedule)
	if err := s.validateSchedule(schedule); err != nil {
		return nil, err
	}

	if _, err := s.storage.GetSource(ctx, tenantID, req.SourceID); err != nil {
		return nil, meta.Classify(err, sourceEntity, req.SourceID)
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	now := timestamp.Now().UTC()
	pipeline := &entities.Pipeline{
		ID:              uuid.New(),
		TenantID:        tenantID,
		SourceID:        req.SourceID,
		Name:            name,
		Steps:           steps,
		Schedule:        schedule,
		Enabled:         enabled,
		Mode:            mode,
		Destination:     strings.TrimSpace(req.Destination),
		Active:          mode == entities.StreamingMode,
		Status:          entities.PipelineIdle,
		StatusChangedAt: now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.storage.CreatePipeline(ctx, pipeline); err != nil {
		return nil, meta.Classify(err, pipelineEntity, pipeline.ID)
	}

	s.audit(tenantID, entities.PipelineCreated, pipeline.ID, map[string]interface{}{"name": pipeline.Name, "source_id": pipeline.SourceID, "steps": len(pipeline.Steps), "mode": pipeline.Mode})
	s.schedule(pipeline)

	logging.Infof("[%s] pipeline [%s] with %d steps has been created for source [%s]", tenantID, pipeline.ID, len(steps), pipeline.SourceID)
	return pipeline, nil
}

func (s *Service) Update(ctx context.Context, tenantID, id string, patch *PipelinePatch) (*entities.Pipeline, error) {
	if patch.Status != nil {
		return nil, errorj.ValidationError.New("'status' is changed only by pipeline runs and can't be patched")
	}

	pipeline, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	scheduleBefore, enabledBefore := pipeline.Schedule, pipeline.Enabled

	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return nil, errorj.ValidationError.New("'name' can't be empty")
		}
		pipeline.Name = name
	}
	if patch.Steps != nil {
		steps, err := s.normalizeSteps(*patch.Steps)
		if err != nil {
			return nil, err
		}
		pipeline.Steps = steps
	}
	if patch.Schedule != nil {
		schedule := strings.TrimSpace(*patch.Schedule)
		if err := s.validateSchedule(schedule); err != nil {
			return nil, err
		}
		pipeline.Schedule = schedule
	}
	if patch.Enabled != nil {
		pipeline.Enabled = *patch.Enabled
	}
	if patch.Destination != nil {
		pipeline.Destination = strings.TrimSpace(*patch.Destination)
	}

	pipeline.UpdatedAt = timestamp.Now().UTC()
	if err := s.storage.UpdatePipeline(ctx, pipeline); err != nil {
		return nil, meta.Classify(err, pipelineEntity, id)
	}

	if pipeline.Schedule != scheduleBefore || pipeline.Enabled != enabledBefore {
		s.schedule(pipeline)
	}

	s.audit(tenantID, entities.PipelineUpdated, id, map[string]interface{}{"name": pipeline.Name, "steps": len(pipeline.Steps), "enabled": pipeline.Enabled})

	return s.Get(ctx, tenantID, id)
}

//Delete removes the pipeline. It is rejected while the pipeline is running
func (s *Service) Delete(ctx context.Context, tenantID, id string) error {
	pipeline, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return err
	}

	if err := s.storage.DeletePipeline(ctx, tenantID, id); err != nil {
		return meta.Classify(err, pipelineEntity, id)
	}

	if s.scheduler != nil {
		s.scheduler.UnschedulePipeline(pipeline)
	}

	s.audit(tenantID, entities.PipelineDeleted, id, map[string]interface{}{"name": pipeline.Name, "source_id": pipeline.SourceID})
	logging.Infof("[%s] pipeline [%s] has been deleted", tenantID, id)
	return nil
}

//List returns tenant pipelines. If sourceID isn't empty only pipelines of the source are returned
func (s *Service) List(ctx context.Context, tenantID, sourceID string) ([]*entities.Pipeline, error) {
	if strings.TrimSpace(tenantID) == "" {
		return nil, errorj.ValidationError.New("tenant id is required")
	}

	pipelines, err := s.storage.ListPipelines(ctx, tenantID, sourceID)
	if err != nil {
		return nil, errorj.StorageError.Wrap(err, "error listing pipelines")
	}
	return pipelines, nil
}

func (s *Service) Get(ctx context.Context, tenantID, id string) (*entities.Pipeline, error) {
	if strings.TrimSpace(tenantID) == "" {
		return nil, errorj.ValidationError.New("tenant id is required")
	}

	pipeline, err := s.storage.GetPipeline(ctx, tenantID, id)
	if err != nil {
		return nil, meta.Classify(err, pipelineEntity, id)
	}
	return pipeline, nil
}

//ScheduleAll registers cron triggers of all stored pipelines. It is called once on startup
func (s *Service) ScheduleAll(ctx context.Context) error {
	if s.scheduler == nil {
		return nil
	}

	pipelines, err := s.storage.ListAllPipelines(ctx)
	if err != nil {
		return err
	}

	for _, pipeline := range pipelines {
		s.schedule(pipeline)
	}
	return nil
}

//normalizeSteps checks step kinds and decodes every step config with the kind's transformer
func (s *Service) normalizeSteps(steps []entities.Step) ([]entities.Step, error) {
	result := make([]entities.Step, 0, len(steps))
	for _, step := range steps {
		kind, err := entities.StepKindFromString(string(step.Kind))
		if err != nil {
			return nil, err
		}
		result = append(result, entities.Step{Kind: kind, Name: strings.TrimSpace(step.Name), Config: step.Config})
	}

	if err := s.factory.ValidateSteps(result); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Service) validateSchedule(schedule string) error {
	if schedule == "" || s.scheduler == nil {
		return nil
	}

	if err := s.scheduler.ValidateSchedule(schedule); err != nil {
		return errorj.ValidationError.New("invalid schedule [%s]: %v", schedule, err)
	}
	return nil
}

func (s *Service) schedule(pipeline *entities.Pipeline) {
	if s.scheduler == nil {
		return
	}

	if err := s.scheduler.SchedulePipeline(pipeline); err != nil {
		logging.Errorf("[%s] error scheduling pipeline [%s]: %v", pipeline.TenantID, pipeline.ID, err)
	}
}

func (s *Service) audit(tenantID, action, id string, details map[string]interface{}) {
	if err := s.auditSink.Append(audit.NewEvent(tenantID, action, entities.PipelineEntity, id, details)); err != nil {
		logging.SystemErrorf("[%s] error writing audit event %s [%s]: %v", tenantID, action, id, err)
	}
}
