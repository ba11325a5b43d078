package synchronization

import (
	"context"

	"github.com/ledgerops/warehouse/entities"
	"github.com/ledgerops/warehouse/logging"
	"github.com/ledgerops/warehouse/scheduling"
)

//QualityRunner runs quality checks synchronously (quality.Engine)
type QualityRunner interface {
	Run(ctx context.Context, tenantID, checkID string) (*entities.QualityMetric, error)
}

//CronTriggers binds entity schedules to the CronScheduler. Sources and pipelines are triggered with
//schedule origin through TaskService. Enabled quality checks are run directly
type CronTriggers struct {
	cronScheduler *scheduling.CronScheduler
	taskService   *TaskService
	qualityRunner QualityRunner
}

func NewCronTriggers(cronScheduler *scheduling.CronScheduler, taskService *TaskService, qualityRunner QualityRunner) *CronTriggers {
	return &CronTriggers{cronScheduler: cronScheduler, taskService: taskService, qualityRunner: qualityRunner}
}

func (ct *CronTriggers) ValidateSchedule(schedule string) error {
	return scheduling.Validate(schedule)
}

func (ct *CronTriggers) ScheduleSource(source *entities.Source) error {
	tenantID, sourceID := source.TenantID, source.ID
	return ct.cronScheduler.Reschedule(scheduling.Key(scheduling.SourceEntity, tenantID, sourceID), source.Schedule, func() {
		ct.taskService.ScheduleSyncFunc(tenantID, sourceID)
	})
}

func (ct *CronTriggers) UnscheduleSource(source *entities.Source) {
	ct.cronScheduler.Remove(scheduling.Key(scheduling.SourceEntity, source.TenantID, source.ID))
}

//SchedulePipeline registers enabled pipelines only. Disabled ones are removed from the scheduler
func (ct *CronTriggers) SchedulePipeline(pipeline *entities.Pipeline) error {
	tenantID, pipelineID := pipeline.TenantID, pipeline.ID
	schedule := pipeline.Schedule
	if !pipeline.Enabled {
		schedule = ""
	}

	return ct.cronScheduler.Reschedule(scheduling.Key(scheduling.PipelineEntity, tenantID, pipelineID), schedule, func() {
		ct.taskService.SchedulePipelineFunc(tenantID, pipelineID)
	})
}

func (ct *CronTriggers) UnschedulePipeline(pipeline *entities.Pipeline) {
	ct.cronScheduler.Remove(scheduling.Key(scheduling.PipelineEntity, pipeline.TenantID, pipeline.ID))
}

func (ct *CronTriggers) ScheduleCheck(check *entities.QualityCheck) error {
	tenantID, checkID := check.TenantID, check.ID
	schedule := check.Schedule
	if !check.Enabled {
		schedule = ""
	}

	return ct.cronScheduler.Reschedule(scheduling.Key(scheduling.QualityCheckEntity, tenantID, checkID), schedule, func() {
		if _, err := ct.qualityRunner.Run(context.Background(), tenantID, checkID); err != nil {
			logging.Errorf("[%s] Error running scheduled quality check [%s]: %v", tenantID, checkID, err)
		}
	})
}

func (ct *CronTriggers) UnscheduleCheck(check *entities.QualityCheck) {
	ct.cronScheduler.Remove(scheduling.Key(scheduling.QualityCheckEntity, check.TenantID, check.ID))
}
