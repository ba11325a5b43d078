package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/ledgerops/warehouse/entities"
	"github.com/ledgerops/warehouse/middleware"
	"github.com/ledgerops/warehouse/pipelines"
	"github.com/ledgerops/warehouse/streaming"
	"github.com/ledgerops/warehouse/synchronization"
)

type PipelinesResponse struct {
	Pipelines []*entities.Pipeline `json:"pipelines"`
}

type PipelinesHandler struct {
	pipelinesService *pipelines.Service
	taskService      *synchronization.TaskService
	monitor          *streaming.Monitor
}

func NewPipelinesHandler(pipelinesService *pipelines.Service, taskService *synchronization.TaskService, monitor *streaming.Monitor) *PipelinesHandler {
	return &PipelinesHandler{pipelinesService: pipelinesService, taskService: taskService, monitor: monitor}
}

//ListHandler returns all tenant pipelines or pipelines of ?source_id=
func (ph *PipelinesHandler) ListHandler(c *gin.Context) {
	result, err := ph.pipelinesService.List(c.Request.Context(), middleware.TenantID(c), c.Query("source_id"))
	if err != nil {
		middleware.AbortWithError(c, "Error listing pipelines", err)
		return
	}

	if result == nil {
		result = []*entities.Pipeline{}
	}
	c.JSON(http.StatusOK, PipelinesResponse{Pipelines: result})
}

func (ph *PipelinesHandler) GetHandler(c *gin.Context) {
	pipeline, err := ph.pipelinesService.Get(c.Request.Context(), middleware.TenantID(c), c.Param("id"))
	if err != nil {
		middleware.AbortWithError(c, "Error getting pipeline", err)
		return
	}

	c.JSON(http.StatusOK, pipeline)
}

func (ph *PipelinesHandler) CreateHandler(c *gin.Context) {
	req := &pipelines.PipelineRequest{}
	if err := c.BindJSON(req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, middleware.ErrResponse("Failed to parse body", err))
		return
	}

	pipeline, err := ph.pipelinesService.Create(c.Request.Context(), middleware.TenantID(c), req)
	if err != nil {
		middleware.AbortWithError(c, "Error creating pipeline", err)
		return
	}

	c.JSON(http.StatusCreated, pipeline)
}

func (ph *PipelinesHandler) UpdateHandler(c *gin.Context) {
	patch := &pipelines.PipelinePatch{}
	if err := c.BindJSON(patch); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, middleware.ErrResponse("Failed to parse body", err))
		return
	}

	pipeline, err := ph.pipelinesService.Update(c.Request.Context(), middleware.TenantID(c), c.Param("id"), patch)
	if err != nil {
		middleware.AbortWithError(c, "Error updating pipeline", err)
		return
	}

	c.JSON(http.StatusOK, pipeline)
}

func (ph *PipelinesHandler) DeleteHandler(c *gin.Context) {
	tenantID, id := middleware.TenantID(c), c.Param("id")
	if err := ph.pipelinesService.Delete(c.Request.Context(), tenantID, id); err != nil {
		middleware.AbortWithError(c, "Error deleting pipeline", err)
		return
	}

	ph.monitor.Forget(tenantID, id)
	c.JSON(http.StatusOK, middleware.OKResponse())
}

//RunHandler enqueues the pipeline run and returns 202 with the execution id
func (ph *PipelinesHandler) RunHandler(c *gin.Context) {
	accepted, err := ph.taskService.ExecutePipeline(c.Request.Context(), middleware.TenantID(c), c.Param("id"), entities.ManualOrigin)
	if err != nil {
		middleware.AbortWithError(c, "Error starting pipeline run", err)
		return
	}

	c.JSON(http.StatusAccepted, accepted)
}
