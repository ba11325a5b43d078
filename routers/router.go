package routers

import (
	"net/http"
	"net/http/pprof"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/ledgerops/warehouse/handlers"
	"github.com/ledgerops/warehouse/ledger"
	"github.com/ledgerops/warehouse/lineage"
	"github.com/ledgerops/warehouse/logging"
	"github.com/ledgerops/warehouse/metrics"
	"github.com/ledgerops/warehouse/middleware"
	"github.com/ledgerops/warehouse/pipelines"
	"github.com/ledgerops/warehouse/quality"
	"github.com/ledgerops/warehouse/sources"
	"github.com/ledgerops/warehouse/streaming"
	"github.com/ledgerops/warehouse/synchronization"
	"github.com/penglongli/gin-metrics/ginmetrics"
	"github.com/spf13/viper"
)

func SetupRouter(adminToken string, sourcesService *sources.Service, pipelinesService *pipelines.Service,
	taskService *synchronization.TaskService, qualityEngine *quality.Engine, executionsLedger *ledger.Ledger,
	lineageTracker *lineage.Tracker, streamingMonitor *streaming.Monitor) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New() //gin.Default()
	if metrics.Enabled() {
		// get global Monitor object
		m := ginmetrics.GetMonitor()
		m.SetSlowTime(5)
		// set request duration, default {0.1, 0.3, 1.2, 5, 10}
		// used to p95, p99
		m.SetDuration([]float64{0.1, 0.3, 1.2, 5, 10})
		m.UseWithoutExposingEndpoint(router)
	}

	router.Use(gin.RecoveryWithWriter(logging.GlobalLogsWriter, func(c *gin.Context, err interface{}) {
		logging.SystemErrorf("Panic:\n%s\n%s", err, string(debug.Stack()))
		c.AbortWithStatus(http.StatusInternalServerError)
	}))

	if viper.GetBool("server.log_http_errors") {
		router.Use(middleware.ErrorLogWriter)
	}

	router.Use(middleware.Cors)

	router.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})

	sourcesHandler := handlers.NewSourcesHandler(sourcesService, taskService)
	pipelinesHandler := handlers.NewPipelinesHandler(pipelinesService, taskService, streamingMonitor)
	qualityHandler := handlers.NewQualityHandler(qualityEngine)
	ledgerHandler := handlers.NewLedgerHandler(executionsLedger)
	lineageHandler := handlers.NewLineageHandler(lineageTracker)
	streamingHandler := handlers.NewStreamingHandler(streamingMonitor)

	adminTokenMiddleware := middleware.AdminToken{Token: adminToken}
	apiV1 := router.Group("/api/v1", middleware.Tenant)
	{
		sourcesRoute := apiV1.Group("/sources")
		{
			sourcesRoute.GET("", adminTokenMiddleware.AdminAuth(sourcesHandler.ListHandler))
			sourcesRoute.POST("", adminTokenMiddleware.AdminAuth(sourcesHandler.CreateHandler))
			sourcesRoute.GET("/:id", adminTokenMiddleware.AdminAuth(sourcesHandler.GetHandler))
			sourcesRoute.PATCH("/:id", adminTokenMiddleware.AdminAuth(sourcesHandler.UpdateHandler))
			sourcesRoute.DELETE("/:id", adminTokenMiddleware.AdminAuth(sourcesHandler.DeleteHandler))
			sourcesRoute.POST("/:id/sync", adminTokenMiddleware.AdminAuth(sourcesHandler.SyncHandler))
		}

		pipelinesRoute := apiV1.Group("/pipelines")
		{
			pipelinesRoute.GET("", adminTokenMiddleware.AdminAuth(pipelinesHandler.ListHandler))
			pipelinesRoute.POST("", adminTokenMiddleware.AdminAuth(pipelinesHandler.CreateHandler))
			pipelinesRoute.GET("/:id", adminTokenMiddleware.AdminAuth(pipelinesHandler.GetHandler))
			pipelinesRoute.PATCH("/:id", adminTokenMiddleware.AdminAuth(pipelinesHandler.UpdateHandler))
			pipelinesRoute.DELETE("/:id", adminTokenMiddleware.AdminAuth(pipelinesHandler.DeleteHandler))
			pipelinesRoute.POST("/:id/run", adminTokenMiddleware.AdminAuth(pipelinesHandler.RunHandler))
		}

		qualityRoute := apiV1.Group("/quality")
		{
			qualityRoute.GET("/checks", adminTokenMiddleware.AdminAuth(qualityHandler.ListHandler))
			qualityRoute.POST("/checks", adminTokenMiddleware.AdminAuth(qualityHandler.CreateHandler))
			qualityRoute.GET("/checks/:id", adminTokenMiddleware.AdminAuth(qualityHandler.GetHandler))
			qualityRoute.DELETE("/checks/:id", adminTokenMiddleware.AdminAuth(qualityHandler.DeleteHandler))
			qualityRoute.POST("/checks/:id/run", adminTokenMiddleware.AdminAuth(qualityHandler.RunHandler))
			qualityRoute.GET("/metrics", adminTokenMiddleware.AdminAuth(qualityHandler.MetricsHandler))
		}

		apiV1.GET("/history", adminTokenMiddleware.AdminAuth(ledgerHandler.HistoryHandler))
		apiV1.GET("/trends", adminTokenMiddleware.AdminAuth(ledgerHandler.TrendsHandler))
		apiV1.GET("/executions/:id", adminTokenMiddleware.AdminAuth(ledgerHandler.ExecutionHandler))

		lineageRoute := apiV1.Group("/lineage")
		{
			lineageRoute.GET("", adminTokenMiddleware.AdminAuth(lineageHandler.GraphHandler))
			lineageRoute.POST("", adminTokenMiddleware.AdminAuth(lineageHandler.RecordHandler))
			lineageRoute.GET("/:id/impact", adminTokenMiddleware.AdminAuth(lineageHandler.ImpactHandler))
		}

		streamingRoute := apiV1.Group("/streaming")
		{
			streamingRoute.GET("", adminTokenMiddleware.AdminAuth(streamingHandler.StatusHandler))
			streamingRoute.POST("/:id/samples", adminTokenMiddleware.AdminAuth(streamingHandler.ObserveHandler))
			streamingRoute.POST("/:id/pause", adminTokenMiddleware.AdminAuth(streamingHandler.PauseHandler))
			streamingRoute.POST("/:id/resume", adminTokenMiddleware.AdminAuth(streamingHandler.ResumeHandler))
		}
	}

	if metrics.Exported {
		router.GET("/prometheus", adminTokenMiddleware.AdminAuth(gin.WrapH(metrics.Handler())))
	}

	statsPprof := router.Group("/stats/pprof")
	{
		statsPprof.GET("/", adminTokenMiddleware.AdminAuth(gin.WrapF(pprof.Index)))
		statsPprof.GET("/cmdline", adminTokenMiddleware.AdminAuth(gin.WrapF(pprof.Cmdline)))
		statsPprof.GET("/profile", adminTokenMiddleware.AdminAuth(gin.WrapF(pprof.Profile)))
		statsPprof.GET("/symbol", adminTokenMiddleware.AdminAuth(gin.WrapF(pprof.Symbol)))
		statsPprof.GET("/trace", adminTokenMiddleware.AdminAuth(gin.WrapF(pprof.Trace)))
		statsPprof.GET("/goroutine", adminTokenMiddleware.AdminAuth(gin.WrapF(pprof.Handler("goroutine").ServeHTTP)))
		statsPprof.GET("/heap", adminTokenMiddleware.AdminAuth(gin.WrapF(pprof.Handler("heap").ServeHTTP)))
	}

	return router
}
