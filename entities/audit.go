package entities

import "time"

const (
	DataSourceCreated   = "data_source_created"
	DataSourceUpdated   = "data_source_updated"
	DataSourceDeleted   = "data_source_deleted"
	PipelineCreated     = "pipeline_created"
	PipelineUpdated     = "pipeline_updated"
	PipelineDeleted     = "pipeline_deleted"
	QualityCheckCreated = "quality_check_created"
	QualityCheckDeleted = "quality_check_deleted"

	DataSourceEntity   = "data_source"
	PipelineEntity     = "pipeline"
	QualityCheckEntity = "quality_check"
)

//AuditEvent is a structured record appended to the external audit log
type AuditEvent struct {
	BusinessID string                 `json:"businessId"`
	Action     string                 `json:"action"`
	EntityType string                 `json:"entityType"`
	EntityID   string                 `json:"entityId"`
	Details    map[string]interface{} `json:"details,omitempty"`
	CreatedAt  time.Time              `json:"createdAt"`
}
