package synchronization

import (
	"fmt"

	"github.com/ledgerops/warehouse/logging"
)

//TaskLogger writes job scoped records into the global logger with [execution id] prefix
type TaskLogger struct {
	taskID string
}

//NewTaskLogger returns configured TaskLogger instance
func NewTaskLogger(taskID string) *TaskLogger {
	return &TaskLogger{taskID: taskID}
}

//INFO writes record with log level INFO
func (tl *TaskLogger) INFO(format string, v ...interface{}) {
	logging.Info(tl.format(format, v...))
}

//WARN writes record with log level WARN
func (tl *TaskLogger) WARN(format string, v ...interface{}) {
	logging.Warn(tl.format(format, v...))
}

//ERROR writes record with log level ERROR
func (tl *TaskLogger) ERROR(format string, v ...interface{}) {
	logging.Error(tl.format(format, v...))
}

func (tl *TaskLogger) format(format string, v ...interface{}) string {
	return "[" + tl.taskID + "] " + fmt.Sprintf(format, v...)
}
