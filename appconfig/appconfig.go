package appconfig

import (
	"io"
	"os"

	"github.com/ledgerops/warehouse/logging"
	"github.com/spf13/viper"
)

//AppConfig is a main Application Global Configuration
type AppConfig struct {
	ServerName string
	Authority  string
	AdminToken string

	closeMe     []io.Closer
	lastCloseMe []io.Closer
}

var (
	Instance   *AppConfig
	RawVersion string
	BuiltAt    string
)

func setDefaultParams(containerized bool) {
	defaultServerName, _ := os.Hostname()
	if defaultServerName == "" {
		defaultServerName = "unnamed-server"
	}
	viper.SetDefault("server.name", defaultServerName)
	viper.SetDefault("server.port", "8001")
	viper.SetDefault("server.log.level", "info")
	viper.SetDefault("server.log.rotation_min", 1440)
	viper.SetDefault("server.log_http_errors", false)
	viper.SetDefault("server.metrics.enabled", true)
	viper.SetDefault("server.metrics.prometheus.enabled", true)

	viper.SetDefault("server.sync_tasks.pool.size", 16)
	viper.SetDefault("server.sync_tasks.tenant_limit", 4)
	viper.SetDefault("server.sync_tasks.timeout", "30m")
	viper.SetDefault("server.sync_tasks.retry.max_attempts", 3)
	viper.SetDefault("server.sync_tasks.retry.initial_interval", "1s")
	viper.SetDefault("server.sync_tasks.retry.max_interval", "30s")
	viper.SetDefault("server.sync_tasks.stalled.grace_period", "5m")
	viper.SetDefault("server.sync_tasks.stalled.observe_every", "1m")

	viper.SetDefault("quality.run_timeout", "1m")

	viper.SetDefault("streaming.window", "1m")
	viper.SetDefault("streaming.max_samples", 1000)

	viper.SetDefault("meta.storage.type", "inmemory")
	viper.SetDefault("coordination.type", "inmemory")
	viper.SetDefault("audit.type", "log")
	viper.SetDefault("audit.rotation_min", 1440)

	if containerized {
		viper.SetDefault("server.log.path", "/home/warehouse/data/logs")
		viper.SetDefault("audit.path", "/home/warehouse/data/logs/audit")
	} else {
		viper.SetDefault("server.log.path", logging.GlobalType)
		viper.SetDefault("audit.path", "./logs/audit")
	}
}

//Init sets defaults, creates the global logger and the AppConfig Instance
func Init(containerized bool) error {
	setDefaultParams(containerized)

	serverName := viper.GetString("server.name")
	globalLoggerConfig := logging.Config{
		LoggerName:    "main",
		ServerName:    serverName,
		FileDir:       viper.GetString("server.log.path"),
		RotationMin:   viper.GetInt64("server.log.rotation_min"),
		MaxFileSizeMb: viper.GetInt("server.log.max_file_size_mb"),
		MaxBackups:    viper.GetInt("server.log.max_backups")}

	//Global logger writes logs and sends system error notifications
	//
	//   configured file logger            no file logger configured
	//     /             \                            |
	// os.Stdout      FileWriter                  os.Stdout
	var appConfig AppConfig
	if globalLoggerConfig.FileDir != "" && globalLoggerConfig.FileDir != logging.GlobalType {
		fileWriter := logging.NewRollingWriter(globalLoggerConfig)
		logging.GlobalLogsWriter = io.MultiWriter(fileWriter, os.Stdout)
		appConfig.ScheduleLastClosing(fileWriter)
	} else {
		logging.GlobalLogsWriter = os.Stdout
	}
	if err := logging.InitGlobalLogger(logging.GlobalLogsWriter, viper.GetString("server.log.level")); err != nil {
		return err
	}

	logWelcomeBanner(RawVersion)
	if globalLoggerConfig.FileDir != "" && globalLoggerConfig.FileDir != logging.GlobalType {
		logging.Infof("📂 Using server.log.path directory: %q", globalLoggerConfig.FileDir)
	}
	logging.Infof("🚀 Starting Warehouse Server. Server name: %s", serverName)

	appConfig.ServerName = serverName
	appConfig.Authority = "0.0.0.0:" + viper.GetString("server.port")
	appConfig.AdminToken = viper.GetString("server.admin_token")
	if appConfig.AdminToken == "" {
		logging.Warn("⚠️ server.admin_token isn't configured: all /api/v1 requests will be rejected")
	}

	Instance = &appConfig
	return nil
}

//ScheduleClosing adds closer which is closed in Close in the order of adding
func (a *AppConfig) ScheduleClosing(c io.Closer) {
	a.closeMe = append(a.closeMe, c)
}

//ScheduleLastClosing adds closer which is closed after all others (e.g. log writers)
func (a *AppConfig) ScheduleLastClosing(c io.Closer) {
	a.lastCloseMe = append(a.lastCloseMe, c)
}

func (a *AppConfig) Close() {
	for _, cl := range a.closeMe {
		if err := cl.Close(); err != nil {
			logging.Error(err)
		}
	}
}

func (a *AppConfig) CloseLast() {
	for _, cl := range a.lastCloseMe {
		if err := cl.Close(); err != nil {
			logging.Error(err)
		}
	}
}

func logWelcomeBanner(version string) {
	if version == "" {
		version = "dev"
	}
	logging.Infof("\nWelcome to Warehouse %s (built at: %s)\n", version, BuiltAt)
}
