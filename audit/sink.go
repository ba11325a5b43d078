package audit

import (
	"fmt"
	"strings"
	"sync"

	"github.com/ledgerops/warehouse/entities"
	"github.com/ledgerops/warehouse/logging"
	"github.com/ledgerops/warehouse/timestamp"
	"github.com/spf13/viper"
)

const (
	FileType   = "file"
	LogType    = "log"
	MemoryType = "memory"

	auditLoggerName      = "audit"
	defaultQueueCapacity = 1000
)

//Sink is an external audit log. Append must not block callers for long
type Sink interface {
	Append(event *entities.AuditEvent) error
	Close() error
}

//NewEvent returns audit event timestamped now
func NewEvent(tenantID, action, entityType, entityID string, details map[string]interface{}) *entities.AuditEvent {
	return &entities.AuditEvent{
		BusinessID: tenantID,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Details:    details,
		CreatedAt:  timestamp.Now().UTC(),
	}
}

//NewSink creates Sink from the audit config section. Logging sink is used by default
func NewSink(auditConfig *viper.Viper, serverName string) (Sink, error) {
	if auditConfig == nil {
		return NewLoggingSink(), nil
	}

	sinkType := strings.ToLower(auditConfig.GetString("type"))
	switch sinkType {
	case "", LogType:
		return NewLoggingSink(), nil
	case MemoryType:
		return NewMemorySink(), nil
	case FileType:
		path := auditConfig.GetString("path")
		if path == "" {
			return nil, fmt.Errorf("audit.path is required for [%s] audit sink", FileType)
		}
		writer := logging.NewRollingWriter(logging.Config{
			LoggerName:  auditLoggerName,
			ServerName:  serverName,
			FileDir:     path,
			RotationMin: auditConfig.GetInt64("rotation_min"),
			MaxBackups:  auditConfig.GetInt("max_backups"),
			Compress:    auditConfig.GetBool("compress"),
		})
		return NewFileSink(logging.NewAsyncLogger(writer, auditConfig.GetBool("show_in_server"), defaultQueueCapacity)), nil
	default:
		return nil, fmt.Errorf("unknown audit.type: [%s]. Supported: [%s, %s, %s]", sinkType, FileType, LogType, MemoryType)
	}
}

//FileSink writes events as JSON lines through the async logger
type FileSink struct {
	logger *logging.AsyncLogger
}

func NewFileSink(logger *logging.AsyncLogger) *FileSink {
	return &FileSink{logger: logger}
}

func (fs *FileSink) Append(event *entities.AuditEvent) error {
	return fs.logger.ConsumeAny(event)
}

func (fs *FileSink) Close() error {
	return fs.logger.Close()
}

//LoggingSink writes events to the global logger
type LoggingSink struct{}

func NewLoggingSink() *LoggingSink {
	return &LoggingSink{}
}

func (ls *LoggingSink) Append(event *entities.AuditEvent) error {
	logging.Infof("[audit] tenant [%s] %s %s [%s] %v", event.BusinessID, event.Action, event.EntityType, event.EntityID, event.Details)
	return nil
}

func (ls *LoggingSink) Close() error {
	return nil
}

//MemorySink keeps events in memory
type MemorySink struct {
	mutex  sync.RWMutex
	events []entities.AuditEvent
}

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (ms *MemorySink) Append(event *entities.AuditEvent) error {
	ms.mutex.Lock()
	ms.events = append(ms.events, *event)
	ms.mutex.Unlock()
	return nil
}

//Events returns a copy of all appended events
func (ms *MemorySink) Events() []entities.AuditEvent {
	ms.mutex.RLock()
	defer ms.mutex.RUnlock()

	result := make([]entities.AuditEvent, len(ms.events))
	copy(result, ms.events)
	return result
}

//Find returns events with the action and entity id
func (ms *MemorySink) Find(action, entityID string) []entities.AuditEvent {
	var result []entities.AuditEvent
	for _, event := range ms.Events() {
		if event.Action == action && event.EntityID == entityID {
			result = append(result, event)
		}
	}
	return result
}

func (ms *MemorySink) Close() error {
	return nil
}
