package synchronization

import (
	"context"
	"errors"
	"strings"

	"github.com/ledgerops/warehouse/entities"
	"github.com/ledgerops/warehouse/errorj"
	"github.com/ledgerops/warehouse/logging"
	"github.com/ledgerops/warehouse/meta"
	"github.com/ledgerops/warehouse/metrics"
	"github.com/ledgerops/warehouse/queue"
	"github.com/ledgerops/warehouse/timestamp"
	"github.com/ledgerops/warehouse/uuid"
)

//TaskService accepts sync and pipeline triggers: flips status atomically and enqueues a job without waiting
type TaskService struct {
	storage meta.Storage
	queue   queue.Queue
	lineage LineageRecorder
}

func NewTaskService(storage meta.Storage, jobsQueue queue.Queue, lineage LineageRecorder) *TaskService {
	return &TaskService{storage: storage, queue: jobsQueue, lineage: lineage}
}

//TriggerSync starts source synchronization. Returns conflict error if the source is already syncing
func (ts *TaskService) TriggerSync(ctx context.Context, tenantID, sourceID string, jobType entities.JobType, origin entities.Origin) (*TaskAccepted, error) {
	if strings.TrimSpace(tenantID) == "" {
		return nil, errorj.ValidationError.New("tenant id is required")
	}
	if jobType == "" {
		jobType = entities.FullSync
	}
	if origin == "" {
		origin = entities.ManualOrigin
	}

	//check source exists
	if _, err := ts.storage.GetSource(ctx, tenantID, sourceID); err != nil {
		return nil, meta.Classify(err, "source", sourceID)
	}

	now := timestamp.Now().UTC()
	job := &Job{
		ID:        uuid.New(),
		TenantID:  tenantID,
		Kind:      entities.SourceSyncKind,
		SourceID:  sourceID,
		JobType:   jobType,
		Origin:    origin,
		Priority:  jobPriority(origin, now),
		CreatedAt: now,
	}

	if _, err := ts.storage.BeginSourceRun(ctx, tenantID, sourceID, job.ID, now); err != nil {
		if errors.Is(err, meta.ErrAlreadyRunning) {
			return nil, errorj.ConflictError.New("source [%s] is already syncing", sourceID).
				WithProperty(errorj.TenantID, tenantID).WithProperty(errorj.EntityID, sourceID)
		}
		return nil, meta.Classify(err, "source", sourceID)
	}

	return ts.enqueue(job)
}

//ExecutePipeline starts pipeline run. Returns conflict error if the pipeline is already running
func (ts *TaskService) ExecutePipeline(ctx context.Context, tenantID, pipelineID string, origin entities.Origin) (*TaskAccepted, error) {
	if strings.TrimSpace(tenantID) == "" {
		return nil, errorj.ValidationError.New("tenant id is required")
	}
	if origin == "" {
		origin = entities.ManualOrigin
	}

	pipeline, err := ts.storage.GetPipeline(ctx, tenantID, pipelineID)
	if err != nil {
		return nil, meta.Classify(err, "pipeline", pipelineID)
	}
	if !pipeline.Enabled {
		return nil, errorj.ValidationError.New("pipeline [%s] is disabled", pipelineID).WithProperty(errorj.EntityID, pipelineID)
	}
	if _, err := ts.storage.GetSource(ctx, tenantID, pipeline.SourceID); err != nil {
		return nil, meta.Classify(err, "source", pipeline.SourceID)
	}

	now := timestamp.Now().UTC()
	job := &Job{
		ID:         uuid.New(),
		TenantID:   tenantID,
		Kind:       entities.PipelineRunKind,
		SourceID:   pipeline.SourceID,
		PipelineID: pipelineID,
		JobType:    entities.FullSync,
		Origin:     origin,
		Priority:   jobPriority(origin, now),
		CreatedAt:  now,
	}

	if _, err := ts.storage.BeginPipelineRun(ctx, tenantID, pipelineID, job.ID, now); err != nil {
		if errors.Is(err, meta.ErrAlreadyRunning) {
			return nil, errorj.ConflictError.New("pipeline [%s] is already running", pipelineID).
				WithProperty(errorj.TenantID, tenantID).WithProperty(errorj.EntityID, pipelineID)
		}
		return nil, meta.Classify(err, "pipeline", pipelineID)
	}

	return ts.enqueue(job)
}

//ScheduleSyncFunc is used in cron triggers. Conflicts with in-flight runs are skipped with a warning
func (ts *TaskService) ScheduleSyncFunc(tenantID, sourceID string) {
	accepted, err := ts.TriggerSync(context.Background(), tenantID, sourceID, entities.FullSync, entities.ScheduleOrigin)
	ts.logScheduled("source", tenantID, sourceID, accepted, err)
}

//SchedulePipelineFunc is used in cron triggers. Conflicts with in-flight runs are skipped with a warning
func (ts *TaskService) SchedulePipelineFunc(tenantID, pipelineID string) {
	accepted, err := ts.ExecutePipeline(context.Background(), tenantID, pipelineID, entities.ScheduleOrigin)
	ts.logScheduled("pipeline", tenantID, pipelineID, accepted, err)
}

func (ts *TaskService) logScheduled(entityType, tenantID, id string, accepted *TaskAccepted, err error) {
	if err != nil {
		if errorj.IsConflict(err) {
			logging.Warnf("[%s] Scheduled %s [%s] run is skipped: %v", tenantID, entityType, id, err)
			return
		}
		logging.Errorf("[%s] Error scheduling %s [%s] run: %v", tenantID, entityType, id, err)
		return
	}

	logging.Infof("[%s] %s [%s] run has been scheduled! execution id: %s", tenantID, entityType, id, accepted.ExecutionID)
}

//enqueue pushes the job. If it fails the run is closed as failed so it doesn't stay in progress
func (ts *TaskService) enqueue(job *Job) (*TaskAccepted, error) {
	if err := ts.queue.Push(job, job.Priority); err != nil {
		pushErr := errorj.ExecutionError.Wrap(err, "error enqueueing job").WithProperty(errorj.ExecutionID, job.ID)
		NewTaskCloser(job, NewTaskLogger(job.ID), ts.storage, ts.lineage).CloseWithError(pushErr, true)
		return nil, pushErr
	}

	metrics.JobsQueueSize(ts.queue.Size())
	NewTaskLogger(job.ID).INFO("%s of [%s] has been accepted (origin: %s)", job.Kind, job.EntityID(), job.Origin)

	return &TaskAccepted{
		ExecutionID: job.ID,
		Kind:        job.Kind,
		Status:      entities.ExecutionPending,
		AcceptedAt:  job.CreatedAt,
	}, nil
}
