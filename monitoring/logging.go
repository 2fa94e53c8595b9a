package monitoring

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
)

// Log levels, lowest to highest severity.
type LogLevel int

const (
	LogLevelDebug LogLevel = iota
	LogLevelInfo
	LogLevelWarn
	LogLevelError
	LogLevelFatal
)

var (
	logLevel = LogLevelInfo
	logFile  *os.File
)

// ParseLogLevel maps a config string to a LogLevel, defaulting to info.
func ParseLogLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LogLevelDebug
	case "warn", "warning":
		return LogLevelWarn
	case "error":
		return LogLevelError
	case "fatal":
		return LogLevelFatal
	default:
		return LogLevelInfo
	}
}

// InitializeLogging sets the global level and, when logFilePath is not
// empty, mirrors log output to that file in addition to stdout.
func InitializeLogging(level LogLevel, logFilePath string) error {
	logLevel = level

	if logFilePath != "" {
		var err error
		logFile, err = os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return fmt.Errorf("failed to open log file: %v", err)
		}
		log.SetOutput(io.MultiWriter(os.Stdout, logFile))
	}

	log.SetFlags(log.LstdFlags | log.Lshortfile)
	LogInfo("Logging system initialized", "level", level, "file", logFilePath)
	return nil
}

// CloseLogging releases the log file, if any.
func CloseLogging() {
	if logFile != nil {
		logFile.Close()
	}
}

func LogDebug(message string, keyvals ...interface{}) {
	if logLevel <= LogLevelDebug {
		args := []interface{}{"[DEBUG]", message}
		args = append(args, keyvals...)
		log.Println(args...)
	}
}

func LogInfo(message string, keyvals ...interface{}) {
	if logLevel <= LogLevelInfo {
		args := []interface{}{"[INFO]", message}
		args = append(args, keyvals...)
		log.Println(args...)
	}
}

func LogWarn(message string, keyvals ...interface{}) {
	if logLevel <= LogLevelWarn {
		args := []interface{}{"[WARN]", message}
		args = append(args, keyvals...)
		log.Println(args...)
	}
}

func LogError(message string, keyvals ...interface{}) {
	if logLevel <= LogLevelError {
		args := []interface{}{"[ERROR]", message}
		args = append(args, keyvals...)
		log.Println(args...)
	}
}

func LogFatal(message string, keyvals ...interface{}) {
	args := []interface{}{"[FATAL]", message}
	args = append(args, keyvals...)
	log.Fatalln(args...)
}
