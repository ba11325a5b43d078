package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/ledgerops/warehouse/entities"
	"github.com/ledgerops/warehouse/errorj"
	"github.com/ledgerops/warehouse/middleware"
	"github.com/ledgerops/warehouse/quality"
	"github.com/spf13/cast"
)

type ChecksResponse struct {
	Checks []*entities.QualityCheck `json:"checks"`
}

type MetricsResponse struct {
	Metrics []*entities.QualityMetric `json:"metrics"`
}

type QualityHandler struct {
	engine *quality.Engine
}

func NewQualityHandler(engine *quality.Engine) *QualityHandler {
	return &QualityHandler{engine: engine}
}

func (qh *QualityHandler) ListHandler(c *gin.Context) {
	result, err := qh.engine.List(c.Request.Context(), middleware.TenantID(c), c.Query("source_id"))
	if err != nil {
		middleware.AbortWithError(c, "Error listing quality checks", err)
		return
	}

	if result == nil {
		result = []*entities.QualityCheck{}
	}
	c.JSON(http.StatusOK, ChecksResponse{Checks: result})
}

func (qh *QualityHandler) GetHandler(c *gin.Context) {
	check, err := qh.engine.Get(c.Request.Context(), middleware.TenantID(c), c.Param("id"))
	if err != nil {
		middleware.AbortWithError(c, "Error getting quality check", err)
		return
	}

	c.JSON(http.StatusOK, check)
}

func (qh *QualityHandler) CreateHandler(c *gin.Context) {
	req := &quality.CheckRequest{}
	if err := c.BindJSON(req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, middleware.ErrResponse("Failed to parse body", err))
		return
	}

	check, err := qh.engine.Create(c.Request.Context(), middleware.TenantID(c), req)
	if err != nil {
		middleware.AbortWithError(c, "Error creating quality check", err)
		return
	}

	c.JSON(http.StatusCreated, check)
}

func (qh *QualityHandler) DeleteHandler(c *gin.Context) {
	if err := qh.engine.Delete(c.Request.Context(), middleware.TenantID(c), c.Param("id")); err != nil {
		middleware.AbortWithError(c, "Error deleting quality check", err)
		return
	}

	c.JSON(http.StatusOK, middleware.OKResponse())
}

//RunHandler runs the check synchronously and returns the produced metric
func (qh *QualityHandler) RunHandler(c *gin.Context) {
	metric, err := qh.engine.Run(c.Request.Context(), middleware.TenantID(c), c.Param("id"))
	if err != nil {
		middleware.AbortWithError(c, "Error running quality check", err)
		return
	}

	c.JSON(http.StatusOK, metric)
}

//MetricsHandler returns newest first metrics of ?source_id= (all tenant sources if empty), ?limit= is optional
func (qh *QualityHandler) MetricsHandler(c *gin.Context) {
	limit, err := queryInt(c, "limit")
	if err != nil {
		middleware.AbortWithError(c, "Error parsing limit", err)
		return
	}

	result, err := qh.engine.Metrics(c.Request.Context(), middleware.TenantID(c), c.Query("source_id"), limit)
	if err != nil {
		middleware.AbortWithError(c, "Error listing quality metrics", err)
		return
	}

	if result == nil {
		result = []*entities.QualityMetric{}
	}
	c.JSON(http.StatusOK, MetricsResponse{Metrics: result})
}

//queryInt returns 0 if the query parameter is absent
func queryInt(c *gin.Context, name string) (int, error) {
	value := c.Query(name)
	if value == "" {
		return 0, nil
	}

	parsed, err := cast.ToIntE(value)
	if err != nil || parsed < 0 {
		return 0, errorj.ValidationError.New("'%s' must be a non-negative integer, got: [%s]", name, value)
	}
	return parsed, nil
}
