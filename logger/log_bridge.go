package logger

import (
	"log"
	"strings"
)

// logWriter implements io.Writer to redirect standard library log output
// into the structured logger above (used for database/sql driver logs and
// the admin HTTP server's ErrorLog).
type logWriter struct{}

func (lw *logWriter) Write(p []byte) (n int, err error) {
	message := strings.TrimSpace(string(p))
	if message == "" {
		return len(p), nil
	}
	switch {
	case strings.Contains(message, "error"), strings.Contains(message, "Error"):
		Error("%s", message)
	default:
		Info("%s", message)
	}
	return len(p), nil
}

// InitLogBridge redirects standard library log output through this package.
func InitLogBridge() {
	log.SetOutput(&logWriter{})
	log.SetFlags(0)
}

// NewStdLogger returns a *log.Logger backed by this package, suitable for
// http.Server.ErrorLog.
func NewStdLogger() *log.Logger {
	return log.New(&logWriter{}, "", 0)
}
