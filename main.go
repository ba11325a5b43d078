package main

import (
	"context"
	"flag"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/ledgerops/warehouse/appconfig"
	"github.com/ledgerops/warehouse/audit"
	"github.com/ledgerops/warehouse/coordination"
	"github.com/ledgerops/warehouse/drivers"
	"github.com/ledgerops/warehouse/ledger"
	"github.com/ledgerops/warehouse/lineage"
	"github.com/ledgerops/warehouse/logging"
	"github.com/ledgerops/warehouse/meta"
	"github.com/ledgerops/warehouse/metrics"
	"github.com/ledgerops/warehouse/pipelines"
	"github.com/ledgerops/warehouse/quality"
	"github.com/ledgerops/warehouse/queue"
	"github.com/ledgerops/warehouse/routers"
	"github.com/ledgerops/warehouse/safego"
	"github.com/ledgerops/warehouse/scheduling"
	"github.com/ledgerops/warehouse/sources"
	"github.com/ledgerops/warehouse/streaming"
	"github.com/ledgerops/warehouse/synchronization"
	"github.com/spf13/viper"
)

const configNotFound = "! Custom warehouse.yaml wasn't provided\n                            " +
	"Warehouse will start with in-memory meta storage and without audit log files."

//some inner parameters
const (
	shutdownTimeout = 5 * time.Second
)

var (
	//ldflags
	tag     string
	builtAt string
)

var (
	configSource     = flag.String("cfg", "", "config source")
	containerizedRun = flag.Bool("cr", false, "containerised run marker")
)

func main() {
	flag.Parse()

	//Setup seed for globalRand
	rand.Seed(time.Now().Unix())

	//Setup default timezone for time.Now() calls
	time.Local = time.UTC

	if err := appconfig.Read(*configSource, *containerizedRun, configNotFound); err != nil {
		logging.Fatal("Error while reading application config:", err)
	}

	appconfig.RawVersion = tag
	appconfig.BuiltAt = builtAt
	if err := appconfig.Init(*containerizedRun); err != nil {
		logging.Fatal(err)
	}

	safego.GlobalRecoverHandler = func(value interface{}) {
		logging.SystemErrorf("Panic:\n%s\n%s", value, string(debug.Stack()))
	}

	if viper.GetBool("server.metrics.enabled") {
		metrics.Init(viper.GetBool("server.metrics.prometheus.enabled"))
	}

	//listen to shutdown signal to free up all resources
	ctx, cancel := context.WithCancel(context.Background())
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)
	go func() {
		<-c
		logging.Info("* Service is shutting down.. *")
		cancel()
		appconfig.Instance.Close()
		time.Sleep(shutdownTimeout)
		appconfig.Instance.CloseLast()
		os.Exit(0)
	}()

	//meta storage
	metaStorage, err := meta.NewStorage(ctx, viper.Sub("meta.storage"))
	if err != nil {
		logging.Fatalf("Error initializing meta storage: %v", err)
	}
	//close after all for saving runs statuses
	appconfig.Instance.ScheduleLastClosing(metaStorage)
	logging.Infof("📦 Meta storage: %s", metaStorage.Type())

	//coordination service
	coordinationService, err := coordination.NewService(ctx, viper.GetViper())
	if err != nil {
		logging.Fatal("Failed to initiate coordination service", err)
	}
	appconfig.Instance.ScheduleLastClosing(coordinationService)

	auditSink, err := audit.NewSink(viper.Sub("audit"), appconfig.Instance.ServerName)
	if err != nil {
		logging.Fatalf("Error initializing audit sink: %v", err)
	}
	appconfig.Instance.ScheduleLastClosing(auditSink)

	factory := drivers.NewFactory()
	lineageTracker := lineage.NewTracker(metaStorage)

	sourcesService := sources.NewService(metaStorage, factory, auditSink)
	pipelinesService := pipelines.NewService(metaStorage, factory, auditSink)
	qualityEngine := quality.NewEngine(metaStorage, factory, auditSink, viper.GetDuration("quality.run_timeout"))

	//jobs
	jobsQueue := queue.NewInMemory()
	taskService := synchronization.NewTaskService(metaStorage, jobsQueue, lineageTracker)

	syncTasks := viper.Sub("server.sync_tasks")
	executorConfig := synchronization.ExecutorConfig{
		PoolSize:    syncTasks.GetInt("pool.size"),
		TenantLimit: syncTasks.GetInt64("tenant_limit"),
		Timeout:     syncTasks.GetDuration("timeout"),
		Retry: synchronization.RetryConfig{
			MaxAttempts:     syncTasks.GetInt("retry.max_attempts"),
			InitialInterval: syncTasks.GetDuration("retry.initial_interval"),
			MaxInterval:     syncTasks.GetDuration("retry.max_interval"),
		},
	}
	taskExecutor, err := synchronization.NewTaskExecutor(executorConfig, jobsQueue, metaStorage, coordinationService,
		synchronization.NewRunners(metaStorage, factory), lineageTracker)
	if err != nil {
		logging.Fatalf("Error creating sync tasks executor: %v", err)
	}
	appconfig.Instance.ScheduleClosing(taskExecutor)
	appconfig.Instance.ScheduleClosing(jobsQueue)

	reaper := synchronization.NewStalledRunsReaper(metaStorage, lineageTracker, executorConfig.Timeout,
		syncTasks.GetDuration("stalled.grace_period"), syncTasks.GetDuration("stalled.observe_every"))
	reaper.Start()
	appconfig.Instance.ScheduleClosing(reaper)

	//cron triggers
	cronScheduler := scheduling.NewCronScheduler()
	cronTriggers := synchronization.NewCronTriggers(cronScheduler, taskService, qualityEngine)
	sourcesService.AttachScheduler(cronTriggers)
	pipelinesService.AttachScheduler(cronTriggers)
	qualityEngine.AttachScheduler(cronTriggers)

	if err := sourcesService.ScheduleAll(ctx); err != nil {
		logging.Errorf("Error scheduling sources syncs: %v", err)
	}
	if err := pipelinesService.ScheduleAll(ctx); err != nil {
		logging.Errorf("Error scheduling pipelines runs: %v", err)
	}
	if err := qualityEngine.ScheduleAll(ctx); err != nil {
		logging.Errorf("Error scheduling quality checks: %v", err)
	}
	cronScheduler.Start()
	appconfig.Instance.ScheduleClosing(cronScheduler)

	streamingMonitor := streaming.NewMonitor(metaStorage, viper.GetDuration("streaming.window"), viper.GetInt("streaming.max_samples"))

	router := routers.SetupRouter(appconfig.Instance.AdminToken, sourcesService, pipelinesService, taskService, qualityEngine,
		ledger.NewLedger(metaStorage), lineageTracker, streamingMonitor)

	logging.Info("Started server: " + appconfig.Instance.Authority)
	server := &http.Server{
		Addr:              appconfig.Instance.Authority,
		Handler:           router,
		ReadTimeout:       time.Second * 60,
		ReadHeaderTimeout: time.Second * 60,
		IdleTimeout:       time.Second * 65,
	}
	logging.Fatal(server.ListenAndServe())
}
