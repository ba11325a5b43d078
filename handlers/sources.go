package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ledgerops/warehouse/entities"
	"github.com/ledgerops/warehouse/middleware"
	"github.com/ledgerops/warehouse/sources"
	"github.com/ledgerops/warehouse/synchronization"
)

//SourceView is a source representation without credentials
type SourceView struct {
	ID               string                 `json:"id"`
	TenantID         string                 `json:"tenant_id"`
	Name             string                 `json:"name"`
	Type             entities.ConnectorType `json:"type"`
	Engine           string                 `json:"engine,omitempty"`
	ConnectionString string                 `json:"connection_string,omitempty"`
	HasCredentials   bool                   `json:"has_credentials"`
	Schedule         string                 `json:"schedule,omitempty"`
	Config           map[string]interface{} `json:"config,omitempty"`
	Status           entities.SourceStatus  `json:"status"`
	RunID            string                 `json:"run_id,omitempty"`
	StatusChangedAt  time.Time              `json:"status_changed_at"`
	CreatedAt        time.Time              `json:"created_at"`
	UpdatedAt        time.Time              `json:"updated_at"`
}

func NewSourceView(source *entities.Source) *SourceView {
	return &SourceView{
		ID:               source.ID,
		TenantID:         source.TenantID,
		Name:             source.Name,
		Type:             source.Type,
		Engine:           source.Engine,
		ConnectionString: source.ConnectionString,
		HasCredentials:   source.Credentials != "",
		Schedule:         source.Schedule,
		Config:           source.Config,
		Status:           source.Status,
		RunID:            source.RunID,
		StatusChangedAt:  source.StatusChangedAt,
		CreatedAt:        source.CreatedAt,
		UpdatedAt:        source.UpdatedAt,
	}
}

type SourcesResponse struct {
	Sources []*SourceView `json:"sources"`
}

//SyncRequest is an optional body of the sync request. full_sync is used by default
type SyncRequest struct {
	JobType string `json:"job_type,omitempty"`
}

type SourcesHandler struct {
	sourcesService *sources.Service
	taskService    *synchronization.TaskService
}

func NewSourcesHandler(sourcesService *sources.Service, taskService *synchronization.TaskService) *SourcesHandler {
	return &SourcesHandler{sourcesService: sourcesService, taskService: taskService}
}

func (sh *SourcesHandler) ListHandler(c *gin.Context) {
	result, err := sh.sourcesService.List(c.Request.Context(), middleware.TenantID(c))
	if err != nil {
		middleware.AbortWithError(c, "Error listing sources", err)
		return
	}

	views := make([]*SourceView, 0, len(result))
	for _, source := range result {
		views = append(views, NewSourceView(source))
	}
	c.JSON(http.StatusOK, SourcesResponse{Sources: views})
}

func (sh *SourcesHandler) GetHandler(c *gin.Context) {
	source, err := sh.sourcesService.Get(c.Request.Context(), middleware.TenantID(c), c.Param("id"))
	if err != nil {
		middleware.AbortWithError(c, "Error getting source", err)
		return
	}

	c.JSON(http.StatusOK, NewSourceView(source))
}

func (sh *SourcesHandler) CreateHandler(c *gin.Context) {
	req := &sources.SourceRequest{}
	if err := c.BindJSON(req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, middleware.ErrResponse("Failed to parse body", err))
		return
	}

	source, err := sh.sourcesService.Create(c.Request.Context(), middleware.TenantID(c), req)
	if err != nil {
		middleware.AbortWithError(c, "Error creating source", err)
		return
	}

	c.JSON(http.StatusCreated, NewSourceView(source))
}

func (sh *SourcesHandler) UpdateHandler(c *gin.Context) {
	patch := &sources.SourcePatch{}
	if err := c.BindJSON(patch); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, middleware.ErrResponse("Failed to parse body", err))
		return
	}

	source, err := sh.sourcesService.Update(c.Request.Context(), middleware.TenantID(c), c.Param("id"), patch)
	if err != nil {
		middleware.AbortWithError(c, "Error updating source", err)
		return
	}

	c.JSON(http.StatusOK, NewSourceView(source))
}

func (sh *SourcesHandler) DeleteHandler(c *gin.Context) {
	if err := sh.sourcesService.Delete(c.Request.Context(), middleware.TenantID(c), c.Param("id")); err != nil {
		middleware.AbortWithError(c, "Error deleting source", err)
		return
	}

	c.JSON(http.StatusOK, middleware.OKResponse())
}

//SyncHandler enqueues the source synchronization and returns 202 with the execution id
func (sh *SourcesHandler) SyncHandler(c *gin.Context) {
	req := &SyncRequest{}
	if c.Request.ContentLength > 0 {
		if err := c.BindJSON(req); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, middleware.ErrResponse("Failed to parse body", err))
			return
		}
	}

	jobType, err := entities.JobTypeFromString(req.JobType)
	if err != nil {
		middleware.AbortWithError(c, "Error parsing job type", err)
		return
	}

	accepted, err := sh.taskService.TriggerSync(c.Request.Context(), middleware.TenantID(c), c.Param("id"), jobType, entities.ManualOrigin)
	if err != nil {
		middleware.AbortWithError(c, "Error starting sync", err)
		return
	}

	c.JSON(http.StatusAccepted, accepted)
}
