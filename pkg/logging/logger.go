package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"
)

// LogLevel represents different logging levels
type LogLevel int

const (
	LevelTrace LogLevel = iota - 1
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
)

// LogConfig holds logging configuration
type LogConfig struct {
	Level  LogLevel `json:"level"`
	Format string   `json:"format"` // "json" or "text"
	Output string   `json:"output"` // "stdout", "stderr", or file path
	// Writer overrides Output when set.
	Writer io.Writer `json:"-"`
}

// DefaultLogConfig returns the default logging configuration
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:  LevelInfo,
		Format: "json",
		Output: "stdout",
	}
}

// Logger provides structured logging on top of slog
type Logger struct {
	config  LogConfig
	slogger *slog.Logger
	file    *os.File
	mu      sync.Mutex
}

// NewLogger creates a new structured logger
func NewLogger(config LogConfig) (*Logger, error) {
	logger := &Logger{config: config}

	writer := config.Writer
	if writer == nil {
		switch config.Output {
		case "", "stdout":
			writer = os.Stdout
		case "stderr":
			writer = os.Stderr
		default:
			if err := os.MkdirAll(filepath.Dir(config.Output), 0o755); err != nil {
				return nil, fmt.Errorf("failed to create log directory: %w", err)
			}
			f, err := os.OpenFile(config.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				return nil, fmt.Errorf("failed to open log file: %w", err)
			}
			logger.file = f
			writer = f
		}
	}

	opts := &slog.HandlerOptions{Level: config.Level.slogLevel()}
	var handler slog.Handler
	if config.Format == "text" {
		handler = slog.NewTextHandler(writer, opts)
	} else {
		handler = slog.NewJSONHandler(writer, opts)
	}
	logger.slogger = slog.New(handler)
	return logger, nil
}

// Nop returns a logger that discards everything. Used by tests and as a fallback.
func Nop() *Logger {
	l, _ := NewLogger(LogConfig{Level: LevelError, Writer: io.Discard})
	return l
}

// Close releases the log file, if any
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		return err
	}
	return nil
}

// WithComponent returns a logger tagged with a component name
func (l *Logger) WithComponent(component string) *ComponentLogger {
	return &ComponentLogger{logger: l, component: component}
}

// ComponentLogger provides component-specific logging
type ComponentLogger struct {
	logger    *Logger
	component string
}

func (l *Logger) Debug(msg string, fields ...Field) {
	l.log(context.Background(), LevelDebug, msg, nil, "", fields)
}

func (l *Logger) Info(msg string, fields ...Field) {
	l.log(context.Background(), LevelInfo, msg, nil, "", fields)
}

func (l *Logger) Warn(msg string, fields ...Field) {
	l.log(context.Background(), LevelWarn, msg, nil, "", fields)
}

func (l *Logger) Error(msg string, err error, fields ...Field) {
	l.log(context.Background(), LevelError, msg, err, "", fields)
}

// Fatal logs at error level and exits
func (l *Logger) Fatal(msg string, err error, fields ...Field) {
	l.log(context.Background(), LevelError, msg, err, "", fields)
	_ = l.Close()
	os.Exit(1)
}

func (cl *ComponentLogger) Debug(msg string, fields ...Field) {
	cl.logger.log(context.Background(), LevelDebug, msg, nil, cl.component, fields)
}

func (cl *ComponentLogger) Info(msg string, fields ...Field) {
	cl.logger.log(context.Background(), LevelInfo, msg, nil, cl.component, fields)
}

func (cl *ComponentLogger) Warn(msg string, fields ...Field) {
	cl.logger.log(context.Background(), LevelWarn, msg, nil, cl.component, fields)
}

func (cl *ComponentLogger) Error(msg string, err error, fields ...Field) {
	cl.logger.log(context.Background(), LevelError, msg, err, cl.component, fields)
}

// DebugCtx and friends add request-scoped values carried by ctx.
func (cl *ComponentLogger) DebugCtx(ctx context.Context, msg string, fields ...Field) {
	cl.logger.log(ctx, LevelDebug, msg, nil, cl.component, fields)
}

func (cl *ComponentLogger) InfoCtx(ctx context.Context, msg string, fields ...Field) {
	cl.logger.log(ctx, LevelInfo, msg, nil, cl.component, fields)
}

func (cl *ComponentLogger) WarnCtx(ctx context.Context, msg string, fields ...Field) {
	cl.logger.log(ctx, LevelWarn, msg, nil, cl.component, fields)
}

func (l *Logger) log(ctx context.Context, level LogLevel, msg string, err error, component string, fields []Field) {
	attrs := make([]slog.Attr, 0, len(fields)+4)
	if component != "" {
		attrs = append(attrs, slog.String("component", component))
	}
	if id, ok := ctx.Value(requestIDKey{}).(string); ok && id != "" {
		attrs = append(attrs, slog.String("request_id", id))
	}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	if level >= LevelWarn {
		if _, file, line, ok := runtime.Caller(3); ok {
			attrs = append(attrs, slog.String("caller", fmt.Sprintf("%s:%d", filepath.Base(file), line)))
		}
	}
	for _, f := range fields {
		attrs = append(attrs, slog.Any(f.Key, f.Value))
	}
	l.slogger.LogAttrs(ctx, level.slogLevel(), msg, attrs...)
}

type requestIDKey struct{}

// WithRequestID stores a request id for later log lines.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// Field represents a structured log field
type Field struct {
	Key   string
	Value interface{}
}

func String(key, value string) Field                 { return Field{Key: key, Value: value} }
func Int(key string, value int) Field                { return Field{Key: key, Value: value} }
func Int64(key string, value int64) Field            { return Field{Key: key, Value: value} }
func Float64(key string, value float64) Field        { return Field{Key: key, Value: value} }
func Bool(key string, value bool) Field              { return Field{Key: key, Value: value} }
func Duration(key string, value time.Duration) Field { return Field{Key: key, Value: value.String()} }
func Strings(key string, value []string) Field       { return Field{Key: key, Value: value} }
func Any(key string, value interface{}) Field        { return Field{Key: key, Value: value} }

func (l LogLevel) slogLevel() slog.Level { return slog.Level((int(l) - 1) * 4) }

// ParseLevel maps LOG_LEVEL values to a LogLevel. Unknown values fall back to info.
func ParseLevel(level string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return LevelTrace
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}
