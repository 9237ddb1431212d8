package logger

import (
	"context"
	"time"
)

type contextKey struct{}

var logContextKey = contextKey{}

// LogContext holds request-scoped logging context.
//
// A LogContext is created at the edge of the authority (admin API request,
// client call in the minicluster, sweep tick) and carried through the lease
// and recovery code so every log line of one operation can be correlated.
type LogContext struct {
	TraceID   string    // OpenTelemetry trace ID
	SpanID    string    // OpenTelemetry span ID
	Operation string    // open, sync, close, recover, sweep, commit...
	Holder    string    // lease holder on whose behalf the call runs
	FileID    uint64    // file identity, 0 when not file-scoped
	ClientIP  string    // remote address for API requests
	StartTime time.Time // For duration calculation
}

// WithContext returns a new context with the given LogContext
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, logContextKey, lc)
}

// FromContext retrieves the LogContext from context, or nil if not present
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(logContextKey).(*LogContext)
	return lc
}

// NewLogContext creates a new LogContext for the named operation
func NewLogContext(operation string) *LogContext {
	return &LogContext{
		Operation: operation,
		StartTime: time.Now(),
	}
}

// Clone creates a copy of the LogContext
func (lc *LogContext) Clone() *LogContext {
	if lc == nil {
		return nil
	}
	c := *lc
	return &c
}

// WithFile returns a copy scoped to the given file identity
func (lc *LogContext) WithFile(fileID uint64) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.FileID = fileID
	}
	return clone
}

// WithHolder returns a copy with the lease holder set
func (lc *LogContext) WithHolder(holder string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.Holder = holder
	}
	return clone
}

// WithTrace returns a copy with trace info set
func (lc *LogContext) WithTrace(traceID, spanID string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.TraceID = traceID
		clone.SpanID = spanID
	}
	return clone
}

// DurationMs returns the duration since StartTime in milliseconds
func (lc *LogContext) DurationMs() float64 {
	if lc == nil || lc.StartTime.IsZero() {
		return 0
	}
	return float64(time.Since(lc.StartTime).Microseconds()) / 1000.0
}
