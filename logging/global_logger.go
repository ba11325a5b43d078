package logging

import (
	"errors"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/gookit/color"
)

//GlobalType is a log path value which means stdout only
const GlobalType = "global"

var (
	GlobalLogsWriter io.Writer
	//ConfigErr and ConfigWarn are collected before the logger is initialized and written right after
	ConfigErr  string
	ConfigWarn string

	minLevel = DEBUG
)

//Config is a rolling file writer configuration
type Config struct {
	LoggerName    string
	ServerName    string
	FileDir       string
	RotationMin   int64
	MaxBackups    int
	MaxFileSizeMb int
	Compress      bool

	RotateOnClose bool
}

func (c Config) Validate() error {
	switch {
	case c.LoggerName == "":
		return errors.New("logger name can't be empty")
	case c.FileDir == "":
		return errors.New("logger file dir can't be empty")
	}
	return nil
}

//InitGlobalLogger sets output of the standard logger and the minimal written level
func InitGlobalLogger(writer io.Writer, levelStr string) error {
	level, err := ParseLevel(levelStr)
	if err != nil {
		return err
	}

	log.SetOutput(dateTimeWriter{writer: writer})
	log.SetFlags(0)
	GlobalLogsWriter = writer
	minLevel = level

	if ConfigErr != "" {
		Error(ConfigErr)
	}
	if ConfigWarn != "" {
		Warn(ConfigWarn)
	}
	return nil
}

//Enabled returns true if messages of the level are written
func Enabled(level Level) bool {
	return level >= minLevel
}

func Debug(v ...interface{})                 { write(DEBUG, v...) }
func Debugf(format string, v ...interface{}) { write(DEBUG, fmt.Sprintf(format, v...)) }
func Info(v ...interface{})                  { write(INFO, v...) }
func Infof(format string, v ...interface{})  { write(INFO, fmt.Sprintf(format, v...)) }
func Warn(v ...interface{})                  { write(WARN, v...) }
func Warnf(format string, v ...interface{})  { write(WARN, fmt.Sprintf(format, v...)) }
func Error(v ...interface{})                 { write(ERROR, v...) }
func Errorf(format string, v ...interface{}) { write(ERROR, fmt.Sprintf(format, v...)) }

//SystemError writes errors which aren't caused by users input (storage failures, broken invariants)
func SystemError(v ...interface{}) {
	write(ERROR, append([]interface{}{"System error:"}, v...)...)
}

func SystemErrorf(format string, v ...interface{}) {
	SystemError(fmt.Sprintf(format, v...))
}

//Fatal writes the message and exits regardless of the level
func Fatal(v ...interface{}) {
	log.Fatal(format(FATAL, v...))
}

func Fatalf(format string, v ...interface{}) {
	Fatal(fmt.Sprintf(format, v...))
}

func write(level Level, v ...interface{}) {
	if !Enabled(level) {
		return
	}
	log.Println(format(level, v...))
}

func format(level Level, values ...interface{}) string {
	parts := make([]string, 0, len(values)+1)
	parts = append(parts, level.prefix())
	for _, v := range values {
		parts = append(parts, fmt.Sprint(v))
	}
	line := strings.Join(parts, " ")

	switch level {
	case ERROR, FATAL:
		return color.Red.Sprint(line)
	case WARN:
		return color.Yellow.Sprint(line)
	default:
		return line
	}
}
