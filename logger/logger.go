// Package logger provides structured logging for accessplane.
//
// The logger supports multiple log levels (TRACE, DEBUG, INFO, WARN, ERROR)
// and automatically includes contextual information such as file, function,
// and line numbers. It's designed for high-performance concurrent access
// with atomic operations for level checking — writers and readers call
// into it from many goroutines per §5's concurrency model.
//
// Log output format:
//   YYYY/MM/DD HH:MM:SS.ssssss [PID:GID] [LEVEL] function.file:line: Message
package logger

import (
	"fmt"
	"log"
	"os"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// LogLevel represents the severity level of log messages. Log level
// checking uses atomic operations for minimal overhead when logging is
// disabled for a particular level.
type LogLevel int32

const (
	TRACE LogLevel = iota
	DEBUG
	INFO
	WARN
	ERROR
)

var (
	currentLevel atomic.Int32

	levelNames = map[LogLevel]string{
		TRACE: "TRACE",
		DEBUG: "DEBUG",
		INFO:  "INFO",
		WARN:  "WARN",
		ERROR: "ERROR",
	}

	// traceSubsystems tracks which debugging subsystems are currently
	// enabled, e.g. "buffer", "graph", "orchestrator" — fine-grained
	// control so developers can isolate one component's trace output.
	traceSubsystems = make(map[string]bool)
	traceMutex      sync.RWMutex

	processID = os.Getpid()

	logger *log.Logger
)

func init() {
	logger = log.New(os.Stdout, "", 0)
	currentLevel.Store(int32(INFO))
}

// SetLogLevel sets the minimum log level.
func SetLogLevel(level string) error {
	switch strings.ToUpper(level) {
	case "TRACE":
		currentLevel.Store(int32(TRACE))
	case "DEBUG":
		currentLevel.Store(int32(DEBUG))
	case "INFO":
		currentLevel.Store(int32(INFO))
	case "WARN":
		currentLevel.Store(int32(WARN))
	case "ERROR":
		currentLevel.Store(int32(ERROR))
	default:
		return fmt.Errorf("invalid log level: %s", level)
	}
	return nil
}

// GetLogLevel returns the current log level.
func GetLogLevel() string {
	return levelNames[LogLevel(currentLevel.Load())]
}

// EnableTrace enables trace logging for specific subsystems.
func EnableTrace(subsystems ...string) {
	traceMutex.Lock()
	defer traceMutex.Unlock()
	for _, s := range subsystems {
		traceSubsystems[s] = true
	}
}

// DisableTrace disables trace logging for specific subsystems.
func DisableTrace(subsystems ...string) {
	traceMutex.Lock()
	defer traceMutex.Unlock()
	for _, s := range subsystems {
		delete(traceSubsystems, s)
	}
}

func isTraceEnabled(subsystem string) bool {
	traceMutex.RLock()
	defer traceMutex.RUnlock()
	return traceSubsystems[subsystem]
}

func formatMessage(level LogLevel, skip int, format string, args ...interface{}) string {
	pc, file, line, ok := runtime.Caller(skip)
	if !ok {
		file = "unknown"
		line = 0
	}
	if idx := strings.LastIndex(file, "/"); idx != -1 {
		file = file[idx+1:]
	}
	if idx := strings.LastIndex(file, ".go"); idx != -1 {
		file = file[:idx]
	}

	funcName := "unknown"
	if fn := runtime.FuncForPC(pc); fn != nil {
		fullName := fn.Name()
		if idx := strings.LastIndex(fullName, "."); idx != -1 {
			funcName = fullName[idx+1:]
		}
	}

	msg := fmt.Sprintf(format, args...)
	threadID := getGoroutineID()
	timestamp := time.Now().Format("2006/01/02 15:04:05.000000")
	return fmt.Sprintf("%s [%d:%d] [%s] %s.%s:%d: %s",
		timestamp, processID, threadID, levelNames[level], funcName, file, line, msg)
}

func getGoroutineID() int {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	idField := strings.Fields(string(buf[:n]))[1]
	id := 0
	fmt.Sscanf(idField, "%d", &id)
	return id
}

func logMessage(level LogLevel, skip int, format string, args ...interface{}) {
	if level < LogLevel(currentLevel.Load()) {
		return
	}
	logger.Println(formatMessage(level, skip, format, args...))
}

// TraceIf logs a trace message only if the named subsystem is enabled.
func TraceIf(subsystem string, format string, args ...interface{}) {
	if LogLevel(currentLevel.Load()) > TRACE || !isTraceEnabled(subsystem) {
		return
	}
	logMessage(TRACE, 3, "[%s] %s", subsystem, fmt.Sprintf(format, args...))
}

func Trace(format string, args ...interface{}) { logMessage(TRACE, 3, format, args...) }
func Debug(format string, args ...interface{}) { logMessage(DEBUG, 3, format, args...) }
func Info(format string, args ...interface{})  { logMessage(INFO, 3, format, args...) }
func Warn(format string, args ...interface{})  { logMessage(WARN, 3, format, args...) }
func Error(format string, args ...interface{}) { logMessage(ERROR, 3, format, args...) }

// Fatal logs an error message and exits.
func Fatal(format string, args ...interface{}) {
	logger.Println(formatMessage(ERROR, 2, format, args...))
	os.Exit(1)
}

// Configure sets up logging from environment variables.
func Configure() {
	if level := os.Getenv("ACCESSPLANE_LOG_LEVEL"); level != "" {
		SetLogLevel(level)
	}
	if trace := os.Getenv("ACCESSPLANE_TRACE_SUBSYSTEMS"); trace != "" {
		subsystems := strings.Split(trace, ",")
		for i, s := range subsystems {
			subsystems[i] = strings.TrimSpace(s)
		}
		EnableTrace(subsystems...)
	}
}
