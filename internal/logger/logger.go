// Package logger is the process-wide structured logger.
//
// It wraps log/slog behind package-level functions so that every component
// of the authority logs with the same handler, level and field vocabulary
// (see fields.go). The level and format can be changed at runtime.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Level represents log levels
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// Config holds logger configuration
type Config struct {
	Level  string // DEBUG, INFO, WARN, ERROR
	Format string // text, json
	Output string // stdout, stderr, or file path
}

var (
	currentLevel  atomic.Int32
	currentFormat atomic.Value // "text" or "json"

	mu       sync.RWMutex
	slogger  *slog.Logger
	output   io.Writer = os.Stdout
	useColor           = true
)

func init() {
	currentLevel.Store(int32(LevelInfo))
	currentFormat.Store("text")

	if f, ok := output.(*os.File); ok {
		useColor = isTerminal(f.Fd())
	}

	reconfigure()
}

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func (l Level) slog() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ParseLevel converts a level name to a Level. Unknown names report false.
func ParseLevel(level string) (Level, bool) {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return LevelDebug, true
	case "INFO":
		return LevelInfo, true
	case "WARN":
		return LevelWarn, true
	case "ERROR":
		return LevelError, true
	}
	return LevelInfo, false
}

// reconfigure rebuilds the slog handler based on current settings
func reconfigure() {
	mu.Lock()
	defer mu.Unlock()

	opts := &slog.HandlerOptions{Level: Level(currentLevel.Load()).slog()}

	var h slog.Handler
	if format, _ := currentFormat.Load().(string); format == "json" {
		h = slog.NewJSONHandler(output, opts)
	} else {
		h = NewColorTextHandler(output, opts, useColor)
	}
	slogger = slog.New(h)
}

// Init initializes the logger with the given configuration.
// Output can be "stdout", "stderr", or a file path.
func Init(cfg Config) error {
	if cfg.Output != "" {
		var (
			w     io.Writer
			color bool
		)
		switch strings.ToLower(cfg.Output) {
		case "stdout":
			w, color = os.Stdout, isTerminal(os.Stdout.Fd())
		case "stderr":
			w, color = os.Stderr, isTerminal(os.Stderr.Fd())
		default:
			f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
			if err != nil {
				return fmt.Errorf("failed to open log file %q: %w", cfg.Output, err)
			}
			w = f
		}

		mu.Lock()
		output = w
		useColor = color
		mu.Unlock()
	}

	if cfg.Level != "" {
		SetLevel(cfg.Level)
	}
	if cfg.Format != "" {
		SetFormat(cfg.Format)
	}
	reconfigure()
	return nil
}

// InitWithWriter initializes the logger with a custom io.Writer.
// This is primarily useful for testing.
func InitWithWriter(w io.Writer, level, format string, enableColor bool) {
	mu.Lock()
	output = w
	useColor = enableColor
	mu.Unlock()

	if level != "" {
		SetLevel(level)
	}
	if format != "" {
		SetFormat(format)
	}
	reconfigure()
}

// SetLevel sets the minimum log level. Invalid levels are ignored.
func SetLevel(level string) {
	l, ok := ParseLevel(level)
	if !ok {
		return
	}
	currentLevel.Store(int32(l))
	reconfigure()
}

// SetFormat sets the output format (text or json). Invalid formats are ignored.
func SetFormat(format string) {
	format = strings.ToLower(format)
	if format != "text" && format != "json" {
		return
	}
	currentFormat.Store(format)
	reconfigure()
}

func enabled(l Level) bool {
	return l >= Level(currentLevel.Load())
}

func getLogger() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return slogger
}

// ============================================================================
// Structured Logging API
// ============================================================================

// Debug logs at debug level with structured fields
// Usage: Debug("message", "key1", value1, "key2", value2)
func Debug(msg string, args ...any) {
	if enabled(LevelDebug) {
		getLogger().Debug(msg, args...)
	}
}

// Info logs at info level with structured fields
func Info(msg string, args ...any) {
	if enabled(LevelInfo) {
		getLogger().Info(msg, args...)
	}
}

// Warn logs at warn level with structured fields
func Warn(msg string, args ...any) {
	if enabled(LevelWarn) {
		getLogger().Warn(msg, args...)
	}
}

// Error logs at error level with structured fields
func Error(msg string, args ...any) {
	getLogger().Error(msg, args...)
}

// ============================================================================
// Context-aware Logging API
// ============================================================================

// DebugCtx logs at debug level with context (auto-injects trace_id, file_id, etc.)
func DebugCtx(ctx context.Context, msg string, args ...any) {
	if enabled(LevelDebug) {
		getLogger().Debug(msg, appendContextFields(ctx, args)...)
	}
}

// InfoCtx logs at info level with context
func InfoCtx(ctx context.Context, msg string, args ...any) {
	if enabled(LevelInfo) {
		getLogger().Info(msg, appendContextFields(ctx, args)...)
	}
}

// WarnCtx logs at warn level with context
func WarnCtx(ctx context.Context, msg string, args ...any) {
	if enabled(LevelWarn) {
		getLogger().Warn(msg, appendContextFields(ctx, args)...)
	}
}

// ErrorCtx logs at error level with context
func ErrorCtx(ctx context.Context, msg string, args ...any) {
	getLogger().Error(msg, appendContextFields(ctx, args)...)
}

// appendContextFields prepends LogContext fields so they appear first in output
func appendContextFields(ctx context.Context, args []any) []any {
	lc := FromContext(ctx)
	if lc == nil {
		return args
	}

	ctxArgs := make([]any, 0, 12+len(args))
	if lc.TraceID != "" {
		ctxArgs = append(ctxArgs, KeyTraceID, lc.TraceID)
	}
	if lc.SpanID != "" {
		ctxArgs = append(ctxArgs, KeySpanID, lc.SpanID)
	}
	if lc.Operation != "" {
		ctxArgs = append(ctxArgs, KeyOperation, lc.Operation)
	}
	if lc.Holder != "" {
		ctxArgs = append(ctxArgs, KeyHolder, lc.Holder)
	}
	if lc.FileID != 0 {
		ctxArgs = append(ctxArgs, KeyFileID, lc.FileID)
	}
	if lc.ClientIP != "" {
		ctxArgs = append(ctxArgs, KeyClientIP, lc.ClientIP)
	}
	return append(ctxArgs, args...)
}

// With returns a new slog.Logger with additional attributes
func With(args ...any) *slog.Logger {
	return getLogger().With(args...)
}

// Duration returns duration since start time in milliseconds
func Duration(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}

// Infof logs at info level with printf-style formatting
func Infof(format string, v ...any) {
	if enabled(LevelInfo) {
		getLogger().Info(fmt.Sprintf(format, v...))
	}
}

// Warnf logs at warn level with printf-style formatting
func Warnf(format string, v ...any) {
	if enabled(LevelWarn) {
		getLogger().Warn(fmt.Sprintf(format, v...))
	}
}
