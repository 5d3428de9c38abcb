package logger

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// TraceContext represents a traced operation's lifetime: a split/merge
// orchestrator run, a flush cycle, a reader refresh tick. Spans record
// the sub-steps within it (e.g. the orchestrator's Provision/DrainSource/
// CopyBatches states, §4.9).
type TraceContext struct {
	TraceID     string
	Operation   string
	StartTime   time.Time
	GoroutineID int
	mu          sync.Mutex
	spans       []TraceSpan
	isActive    bool
}

// TraceSpan represents a named sub-step within a trace.
type TraceSpan struct {
	Name        string
	StartTime   time.Time
	EndTime     time.Time
	GoroutineID int
	Attributes  map[string]string
}

var (
	activeTraces   = make(map[string]*TraceContext)
	activeTracesMu sync.RWMutex
	traceCounter   uint64
	tracingEnabled atomic.Bool
)

// EnableTracing turns on span-level tracing.
func EnableTracing(enabled bool) {
	tracingEnabled.Store(enabled)
}

// IsTracingEnabled reports whether tracing is currently on.
func IsTracingEnabled() bool {
	return tracingEnabled.Load()
}

// StartTrace begins a new trace context; returns nil when tracing is disabled.
func StartTrace(operation string) *TraceContext {
	if !IsTracingEnabled() {
		return nil
	}
	traceID := fmt.Sprintf("trace_%d_%d", time.Now().UnixNano(), atomic.AddUint64(&traceCounter, 1))
	ctx := &TraceContext{
		TraceID:     traceID,
		Operation:   operation,
		StartTime:   time.Now(),
		GoroutineID: getGoroutineID(),
		isActive:    true,
	}
	activeTracesMu.Lock()
	activeTraces[traceID] = ctx
	activeTracesMu.Unlock()
	Trace("[TRACE_START] ID=%s Op=%s", traceID, operation)
	return ctx
}

// StartSpan begins a new span within a trace.
func (tc *TraceContext) StartSpan(name string, attributes ...string) {
	if tc == nil || !tc.isActive {
		return
	}
	tc.mu.Lock()
	defer tc.mu.Unlock()

	span := TraceSpan{
		Name:        name,
		StartTime:   time.Now(),
		GoroutineID: getGoroutineID(),
		Attributes:  make(map[string]string),
	}
	for _, attr := range attributes {
		if parts := strings.SplitN(attr, "=", 2); len(parts) == 2 {
			span.Attributes[parts[0]] = parts[1]
		}
	}
	tc.spans = append(tc.spans, span)
	Trace("[SPAN_START] Trace=%s Span=%s Attrs=%v", tc.TraceID, name, span.Attributes)
}

// EndSpan completes the most recent open span with the given name.
func (tc *TraceContext) EndSpan(name string) {
	if tc == nil || !tc.isActive {
		return
	}
	tc.mu.Lock()
	defer tc.mu.Unlock()
	for i := len(tc.spans) - 1; i >= 0; i-- {
		if tc.spans[i].Name == name && tc.spans[i].EndTime.IsZero() {
			tc.spans[i].EndTime = time.Now()
			Trace("[SPAN_END] Trace=%s Span=%s Duration=%v", tc.TraceID, name,
				tc.spans[i].EndTime.Sub(tc.spans[i].StartTime))
			return
		}
	}
}

// EndTrace completes the trace and logs any span left unclosed.
func (tc *TraceContext) EndTrace() {
	if tc == nil || !tc.isActive {
		return
	}
	tc.mu.Lock()
	tc.isActive = false
	duration := time.Since(tc.StartTime)
	spans := tc.spans
	tc.mu.Unlock()

	activeTracesMu.Lock()
	delete(activeTraces, tc.TraceID)
	activeTracesMu.Unlock()

	Trace("[TRACE_END] ID=%s Op=%s Duration=%v Spans=%d", tc.TraceID, tc.Operation, duration, len(spans))
	for _, span := range spans {
		if span.EndTime.IsZero() {
			Warn("[UNCLOSED_SPAN] Trace=%s Span=%s Started=%v", tc.TraceID, span.Name, span.StartTime)
		}
	}
}

// LogLockOperation logs a lock acquire/release against the four-lock
// hierarchy of §4.1/§4.2, to help diagnose lock-ordering regressions.
func LogLockOperation(lockType, lockName, operation string) {
	if !IsTracingEnabled() {
		return
	}
	Trace("[LOCK_%s] Type=%s Name=%s Goroutine=%d", strings.ToUpper(operation), lockType, lockName, getGoroutineID())
}
