package sources

import (
	"context"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/ledgerops/warehouse/audit"
	"github.com/ledgerops/warehouse/drivers"
	"github.com/ledgerops/warehouse/entities"
	"github.com/ledgerops/warehouse/errorj"
	"github.com/ledgerops/warehouse/logging"
	"github.com/ledgerops/warehouse/meta"
	"github.com/ledgerops/warehouse/timestamp"
	"github.com/ledgerops/warehouse/uuid"
	"github.com/mitchellh/hashstructure/v2"
)

const sourceEntity = "source"

//Scheduler registers cron triggers of sources
type Scheduler interface {
	ValidateSchedule(schedule string) error
	ScheduleSource(source *entities.Source) error
	UnscheduleSource(source *entities.Source)
	UnscheduleCheck(check *entities.QualityCheck)
}

//SourceRequest is a body of source creation request
type SourceRequest struct {
	Name             string                 `json:"name"`
	Type             string                 `json:"type"`
	ConnectionString string                 `json:"connection_string,omitempty"`
	Credentials      string                 `json:"credentials,omitempty"`
	Schedule         string                 `json:"schedule,omitempty"`
	Config           map[string]interface{} `json:"config,omitempty"`
}

//SourcePatch contains only fields which should be changed. Status is rejected if present
type SourcePatch struct {
	Name             *string                `json:"name,omitempty"`
	ConnectionString *string                `json:"connection_string,omitempty"`
	Credentials      *string                `json:"credentials,omitempty"`
	Schedule         *string                `json:"schedule,omitempty"`
	Config           map[string]interface{} `json:"config,omitempty"`
	Status           *string                `json:"status,omitempty"`
}

//connectionSettings is a part of the source which requires connector validation when changed
type connectionSettings struct {
	ConnectionString string
	Credentials      string
	Config           map[string]interface{}
}

//Service is a tenant scoped source registry
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

func (s *Service) Create(ctx context.Context, tenantID string, req *SourceRequest) (*entities.Source, error) {
	if err := validateTenant(tenantID); err != nil {
		return nil, err
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, errorj.ValidationError.New("'name' is required")
	}

	connectorType, engine, err := entities.ConnectorTypeFromString(req.Type)
	if err != nil {
		return nil, err
	}

	if err := s.validateSchedule(req.Schedule); err != nil {
		return nil, err
	}

	now := timestamp.Now().UTC()
	source := &entities.Source{
		ID:               uuid.New(),
		TenantID:         tenantID,
		Name:             name,
		Type:             connectorType,
		Engine:           engine,
		ConnectionString: req.ConnectionString,
		Credentials:      req.Credentials,
		Schedule:         strings.TrimSpace(req.Schedule),
		Config:           req.Config,
		Status:           entities.SourceDisconnected,
		StatusChangedAt:  now,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := s.validateConnection(ctx, source); err != nil {
		return nil, err
	}

	if err := s.storage.CreateSource(ctx, source); err != nil {
		return nil, meta.Classify(err, sourceEntity, source.ID)
	}

	s.audit(tenantID, entities.DataSourceCreated, source.ID, map[string]interface{}{"name": source.Name, "type": source.Type, "engine": source.Engine})
	s.schedule(source)

	logging.Infof("[%s] source [%s] of type %s has been created", tenantID, source.ID, source.Type)
	return source, nil
}

func (s *Service) Update(ctx context.Context, tenantID, id string, patch *SourcePatch) (*entities.Source, error) {
	if patch.Status != nil {
		return nil, errorj.ValidationError.New("'status' is changed only by synchronization and can't be patched")
	}

	source, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	connectionBefore := hash(connectionSettings{source.ConnectionString, source.Credentials, source.Config})
	scheduleBefore := source.Schedule

	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return nil, errorj.ValidationError.New("'name' can't be empty")
		}
		source.Name = name
	}
	if patch.ConnectionString != nil {
		source.ConnectionString = *patch.ConnectionString
	}
	if patch.Credentials != nil {
		source.Credentials = *patch.Credentials
	}
	if patch.Config != nil {
		source.Config = patch.Config
	}
	if patch.Schedule != nil {
		schedule := strings.TrimSpace(*patch.Schedule)
		if err := s.validateSchedule(schedule); err != nil {
			return nil, err
		}
		source.Schedule = schedule
	}

	if hash(connectionSettings{source.ConnectionString, source.Credentials, source.Config}) != connectionBefore {
		if err := s.validateConnection(ctx, source); err != nil {
			return nil, err
		}
	}

	source.UpdatedAt = timestamp.Now().UTC()
	if err := s.storage.UpdateSource(ctx, source); err != nil {
		return nil, meta.Classify(err, sourceEntity, id)
	}

	if source.Schedule != scheduleBefore {
		s.schedule(source)
	}

	s.audit(tenantID, entities.DataSourceUpdated, id, map[string]interface{}{"name": source.Name, "schedule_changed": source.Schedule != scheduleBefore})

	return s.Get(ctx, tenantID, id)
}

//Delete removes the source and its quality checks. It is rejected while pipelines reference the source
//or while the source is syncing
func (s *Service) Delete(ctx context.Context, tenantID, id string) error {
	source, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return err
	}

	dependents, err := s.storage.ListPipelines(ctx, tenantID, id)
	if err != nil {
		return meta.Classify(err, sourceEntity, id)
	}
	if len(dependents) > 0 {
		return errorj.ConflictError.New("source has %d dependent pipelines", len(dependents)).WithProperty(errorj.EntityID, id)
	}

	if source.Status == entities.SourceSyncing {
		return errorj.ConflictError.New("source [%s] is syncing and can't be deleted", id).WithProperty(errorj.EntityID, id)
	}

	if err := s.storage.DeleteSource(ctx, tenantID, id); err != nil {
		return meta.Classify(err, sourceEntity, id)
	}

	if s.scheduler != nil {
		s.scheduler.UnscheduleSource(source)
	}

	if err := s.deleteChecks(ctx, tenantID, id); err != nil {
		logging.Errorf("[%s] error deleting quality checks of removed source [%s]: %v", tenantID, id, err)
	}

	s.audit(tenantID, entities.DataSourceDeleted, id, map[string]interface{}{"name": source.Name, "type": source.Type})
	logging.Infof("[%s] source [%s] has been deleted", tenantID, id)
	return nil
}

func (s *Service) List(ctx context.Context, tenantID string) ([]*entities.Source, error) {
	if err := validateTenant(tenantID); err != nil {
		return nil, err
	}

	sources, err := s.storage.ListSources(ctx, tenantID)
	if err != nil {
		return nil, errorj.StorageError.Wrap(err, "error listing sources")
	}
	return sources, nil
}

func (s *Service) Get(ctx context.Context, tenantID, id string) (*entities.Source, error) {
	if err := validateTenant(tenantID); err != nil {
		return nil, err
	}

	source, err := s.storage.GetSource(ctx, tenantID, id)
	if err != nil {
		return nil, meta.Classify(err, sourceEntity, id)
	}
	return source, nil
}

//ScheduleAll registers cron triggers of all stored sources. It is called once on startup
func (s *Service) ScheduleAll(ctx context.Context) error {
	if s.scheduler == nil {
		return nil
	}

	sources, err := s.storage.ListAllSources(ctx)
	if err != nil {
		return err
	}

	for _, source := range sources {
		s.schedule(source)
	}
	return nil
}

func (s *Service) deleteChecks(ctx context.Context, tenantID, sourceID string) error {
	checks, err := s.storage.ListChecks(ctx, tenantID, sourceID)
	if err != nil {
		return err
	}

	var multiErr error
	for _, check := range checks {
		if err := s.storage.DeleteCheck(ctx, tenantID, check.ID); err != nil {
			multiErr = multierror.Append(multiErr, err)
			continue
		}
		if s.scheduler != nil {
			s.scheduler.UnscheduleCheck(check)
		}
		s.auditEntity(tenantID, entities.QualityCheckDeleted, entities.QualityCheckEntity, check.ID, map[string]interface{}{"source_id": sourceID, "cascade": true})
	}
	return multiErr
}

func (s *Service) validateConnection(ctx context.Context, source *entities.Source) error {
	connector, err := s.factory.Connector(source.Type)
	if err != nil {
		return err
	}

	if err := connector.Validate(ctx, source); err != nil {
		if errorj.IsValidation(err) {
			return err
		}
		return errorj.ValidationError.Wrap(err, "connection config validation failed")
	}
	return nil
}

func (s *Service) validateSchedule(schedule string) error {
	schedule = strings.TrimSpace(schedule)
	if schedule == "" || s.scheduler == nil {
		return nil
	}

	if err := s.scheduler.ValidateSchedule(schedule); err != nil {
		return errorj.ValidationError.New("invalid schedule [%s]: %v", schedule, err)
	}
	return nil
}

func (s *Service) schedule(source *entities.Source) {
	if s.scheduler == nil {
		return
	}

	if err := s.scheduler.ScheduleSource(source); err != nil {
		logging.Errorf("[%s] error scheduling source [%s] sync: %v", source.TenantID, source.ID, err)
	}
}

func (s *Service) audit(tenantID, action, id string, details map[string]interface{}) {
	s.auditEntity(tenantID, action, entities.DataSourceEntity, id, details)
}

func (s *Service) auditEntity(tenantID, action, entityType, id string, details map[string]interface{}) {
	if err := s.auditSink.Append(audit.NewEvent(tenantID, action, entityType, id, details)); err != nil {
		logging.SystemErrorf("[%s] error writing audit event %s [%s]: %v", tenantID, action, id, err)
	}
}

func validateTenant(tenantID string) error {
	if strings.TrimSpace(tenantID) == "" {
		return errorj.ValidationError.New("tenant id is required")
	}
	return nil
}

//hash returns structure hash or 0 if the structure can't be hashed
func hash(value interface{}) uint64 {
	h, err := hashstructure.Hash(value, hashstructure.FormatV2, nil)
	if err != nil {
		logging.Debugf("error hashing %T: %v", value, err)
		return 0
	}
	return h
}
