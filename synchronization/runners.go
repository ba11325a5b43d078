package synchronization

import (
	"context"

	"github.com/ledgerops/warehouse/drivers"
	"github.com/ledgerops/warehouse/entities"
	"github.com/ledgerops/warehouse/errorj"
	"github.com/ledgerops/warehouse/meta"
)

//Runner executes one kind of jobs. Runners are resolved by job kind from a closed dispatch table
type Runner interface {
	Kind() entities.ExecutionKind
	Execute(ctx context.Context, job *Job, taskLogger *TaskLogger) (drivers.Result, error)
}

//NewRunners returns the dispatch table of all job kinds
func NewRunners(storage meta.Storage, factory *drivers.Factory) map[entities.ExecutionKind]Runner {
	runners := map[entities.ExecutionKind]Runner{}
	for _, runner := range []Runner{&SourceSyncRunner{storage: storage, factory: factory}, &PipelineRunner{storage: storage, factory: factory}} {
		runners[runner.Kind()] = runner
	}
	return runners
}

//SourceSyncRunner extracts data from the source with its connector
type SourceSyncRunner struct {
	storage meta.Storage
	factory *drivers.Factory
}

func (ssr *SourceSyncRunner) Kind() entities.ExecutionKind {
	return entities.SourceSyncKind
}

func (ssr *SourceSyncRunner) Execute(ctx context.Context, job *Job, taskLogger *TaskLogger) (drivers.Result, error) {
	source, err := ssr.storage.GetSource(ctx, job.TenantID, job.SourceID)
	if err != nil {
		return drivers.Result{}, meta.Classify(err, "source", job.SourceID)
	}

	return extract(ctx, ssr.factory, source, job.JobType, taskLogger)
}

//PipelineRunner extracts data from the pipeline source and applies all steps in order
type PipelineRunner struct {
	storage meta.Storage
	factory *drivers.Factory
}

func (pr *PipelineRunner) Kind() entities.ExecutionKind {
	return entities.PipelineRunKind
}

func (pr *PipelineRunner) Execute(ctx context.Context, job *Job, taskLogger *TaskLogger) (drivers.Result, error) {
	pipeline, err := pr.storage.GetPipeline(ctx, job.TenantID, job.PipelineID)
	if err != nil {
		return drivers.Result{}, meta.Classify(err, "pipeline", job.PipelineID)
	}

	source, err := pr.storage.GetSource(ctx, job.TenantID, pipeline.SourceID)
	if err != nil {
		return drivers.Result{}, meta.Classify(err, "source", pipeline.SourceID)
	}

	result, err := extract(ctx, pr.factory, source, job.JobType, taskLogger)
	if err != nil {
		return result, err
	}

	for i := range pipeline.Steps {
		step := &pipeline.Steps[i]
		transformer, err := pr.factory.Transformer(step.Kind)
		if err != nil {
			return result, err
		}

		if err := ctx.Err(); err != nil {
			return result, err
		}

		result, err = transformer.Transform(ctx, step, result)
		if err != nil {
			return result, errorj.Decorate(err, "step #%d (%s) failed", i, step.Kind)
		}
		taskLogger.INFO("step #%d (%s) done: processed [%d] failed [%d]", i, step.Kind, result.Processed, result.Failed)
	}

	return result, nil
}

func extract(ctx context.Context, factory *drivers.Factory, source *entities.Source, jobType entities.JobType, taskLogger *TaskLogger) (drivers.Result, error) {
	connector, err := factory.Connector(source.Type)
	if err != nil {
		return drivers.Result{}, err
	}

	if jobType == "" {
		jobType = entities.FullSync
	}

	result, err := connector.Extract(ctx, source, jobType)
	if err != nil {
		return result, err
	}

	if result.Processed < 0 || result.Failed < 0 {
		return drivers.Result{}, errorj.ConnectorError.New("connector returned negative records counters")
	}

	taskLogger.INFO("extracted from source [%s] (%s): processed [%d] failed [%d]", source.ID, jobType, result.Processed, result.Failed)
	return result, nil
}
