package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/ledgerops/warehouse/lineage"
	"github.com/ledgerops/warehouse/middleware"
)

type ImpactResponse struct {
	NodeID     string   `json:"node_id"`
	Downstream []string `json:"downstream"`
}

type LineageHandler struct {
	tracker *lineage.Tracker
}

func NewLineageHandler(tracker *lineage.Tracker) *LineageHandler {
	return &LineageHandler{tracker: tracker}
}

func (lh *LineageHandler) GraphHandler(c *gin.Context) {
	graph, err := lh.tracker.Graph(c.Request.Context(), middleware.TenantID(c))
	if err != nil {
		middleware.AbortWithError(c, "Error building lineage graph", err)
		return
	}

	c.JSON(http.StatusOK, graph)
}

func (lh *LineageHandler) ImpactHandler(c *gin.Context) {
	nodeID := c.Param("id")
	downstream, err := lh.tracker.Impact(c.Request.Context(), middleware.TenantID(c), nodeID)
	if err != nil {
		middleware.AbortWithError(c, "Error analyzing lineage impact", err)
		return
	}

	c.JSON(http.StatusOK, ImpactResponse{NodeID: nodeID, Downstream: downstream})
}

func (lh *LineageHandler) RecordHandler(c *gin.Context) {
	req := &lineage.TransformationRequest{}
	if err := c.BindJSON(req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, middleware.ErrResponse("Failed to parse body", err))
		return
	}

	edge, err := lh.tracker.RecordTransformation(c.Request.Context(), middleware.TenantID(c), req)
	if err != nil {
		middleware.AbortWithError(c, "Error recording transformation", err)
		return
	}

	c.JSON(http.StatusCreated, edge)
}
