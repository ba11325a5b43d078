package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/ledgerops/warehouse/entities"
	"github.com/ledgerops/warehouse/middleware"
	"github.com/ledgerops/warehouse/streaming"
)

type StreamingResponse struct {
	Pipelines []entities.StreamingStatus `json:"pipelines"`
}

type StreamingHandler struct {
	monitor *streaming.Monitor
}

func NewStreamingHandler(monitor *streaming.Monitor) *StreamingHandler {
	return &StreamingHandler{monitor: monitor}
}

func (sh *StreamingHandler) StatusHandler(c *gin.Context) {
	statuses, err := sh.monitor.Status(c.Request.Context(), middleware.TenantID(c))
	if err != nil {
		middleware.AbortWithError(c, "Error getting streaming status", err)
		return
	}

	if statuses == nil {
		statuses = []entities.StreamingStatus{}
	}
	c.JSON(http.StatusOK, StreamingResponse{Pipelines: statuses})
}

//ObserveHandler accepts a telemetry sample of a streaming pipeline worker
func (sh *StreamingHandler) ObserveHandler(c *gin.Context) {
	sample := entities.StreamingSample{}
	if err := c.BindJSON(&sample); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, middleware.ErrResponse("Failed to parse body", err))
		return
	}

	if err := sh.monitor.Observe(c.Request.Context(), middleware.TenantID(c), c.Param("id"), sample); err != nil {
		middleware.AbortWithError(c, "Error observing streaming sample", err)
		return
	}

	c.JSON(http.StatusOK, middleware.OKResponse())
}

func (sh *StreamingHandler) PauseHandler(c *gin.Context) {
	pipeline, err := sh.monitor.Pause(c.Request.Context(), middleware.TenantID(c), c.Param("id"))
	if err != nil {
		middleware.AbortWithError(c, "Error pausing pipeline", err)
		return
	}

	c.JSON(http.StatusOK, pipeline)
}

func (sh *StreamingHandler) ResumeHandler(c *gin.Context) {
	pipeline, err := sh.monitor.Resume(c.Request.Context(), middleware.TenantID(c), c.Param("id"))
	if err != nil {
		middleware.AbortWithError(c, "Error resuming pipeline", err)
		return
	}

	c.JSON(http.StatusOK, pipeline)
}
