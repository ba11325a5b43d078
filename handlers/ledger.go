package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/ledgerops/warehouse/entities"
	"github.com/ledgerops/warehouse/ledger"
	"github.com/ledgerops/warehouse/middleware"
)

const defaultTrendDays = 30

type HistoryResponse struct {
	Executions []*entities.Execution `json:"executions"`
}

type TrendsResponse struct {
	Days    int                  `json:"days"`
	Buckets []ledger.TrendBucket `json:"buckets"`
}

type LedgerHandler struct {
	ledger *ledger.Ledger
}

func NewLedgerHandler(ledger *ledger.Ledger) *LedgerHandler {
	return &LedgerHandler{ledger: ledger}
}

//HistoryHandler supports ?source_id=, ?pipeline_id=, ?kind=, ?status=, ?limit= filters
func (lh *LedgerHandler) HistoryHandler(c *gin.Context) {
	filter := ledger.Filter{SourceID: c.Query("source_id"), PipelineID: c.Query("pipeline_id")}

	if kind := c.Query("kind"); kind != "" {
		parsed, err := entities.ExecutionKindFromString(kind)
		if err != nil {
			middleware.AbortWithError(c, "Error parsing kind", err)
			return
		}
		filter.Kind = parsed
	}

	if status := c.Query("status"); status != "" {
		parsed, err := entities.ExecutionStatusFromString(status)
		if err != nil {
			middleware.AbortWithError(c, "Error parsing status", err)
			return
		}
		filter.Status = parsed
	}

	limit, err := queryInt(c, "limit")
	if err != nil {
		middleware.AbortWithError(c, "Error parsing limit", err)
		return
	}
	filter.Limit = limit

	executions, err := lh.ledger.History(c.Request.Context(), middleware.TenantID(c), filter)
	if err != nil {
		middleware.AbortWithError(c, "Error getting history", err)
		return
	}

	if executions == nil {
		executions = []*entities.Execution{}
	}
	c.JSON(http.StatusOK, HistoryResponse{Executions: executions})
}

//TrendsHandler returns ?days= daily buckets (30 by default)
func (lh *LedgerHandler) TrendsHandler(c *gin.Context) {
	days, err := queryInt(c, "days")
	if err != nil {
		middleware.AbortWithError(c, "Error parsing days", err)
		return
	}
	if c.Query("days") == "" {
		days = defaultTrendDays
	}

	buckets, err := lh.ledger.Trends(c.Request.Context(), middleware.TenantID(c), days)
	if err != nil {
		middleware.AbortWithError(c, "Error getting trends", err)
		return
	}

	c.JSON(http.StatusOK, TrendsResponse{Days: days, Buckets: buckets})
}

func (lh *LedgerHandler) ExecutionHandler(c *gin.Context) {
	execution, err := lh.ledger.Get(c.Request.Context(), middleware.TenantID(c), c.Param("id"))
	if err != nil {
		middleware.AbortWithError(c, "Error getting execution", err)
		return
	}

	c.JSON(http.StatusOK, execution)
}
