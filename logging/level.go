package logging

import (
	"fmt"
	"strings"
)

type Level int

const (
	UNKNOWN Level = iota
	DEBUG
	INFO
	WARN
	ERROR
	FATAL
)

var levelNames = map[Level]string{
	DEBUG: "debug",
	INFO:  "info",
	WARN:  "warn",
	ERROR: "error",
	FATAL: "fatal",
}

func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return "unknown"
}

//prefix is a log line marker e.g. [WARN]:
func (l Level) prefix() string {
	return "[" + strings.ToUpper(l.String()) + "]:"
}

//ParseLevel returns level by name. Empty string means debug (everything is written)
func ParseLevel(levelStr string) (Level, error) {
	name := strings.ToLower(strings.TrimSpace(levelStr))
	if name == "" {
		return DEBUG, nil
	}
	if name == "warning" {
		return WARN, nil
	}

	for level, levelName := range levelNames {
		if levelName == name {
			return level, nil
		}
	}
	return UNKNOWN, fmt.Errorf("unknown log level [%s]. Supported: debug, info, warn, error, fatal", levelStr)
}
