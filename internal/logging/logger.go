// Package logging provides the zap-based structured logger shared by
// every component of the coordinator, plus context helpers for
// threading an entry's correlation id through a tick, a handler
// invocation, and the reply that eventually resolves it.
package logging

import (
	"context"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type ctxKey string

const ctxKeyEntryID ctxKey = "entry_id"

// Component names for structured logging, one per subsystem.
const (
	ComponentCoordinator = "coordinator"
	ComponentLedger      = "ledger"
	ComponentWorker      = "worker"
	ComponentDispatcher  = "dispatcher"
	ComponentRedisFacade = "redisfacade"
	ComponentAdminAPI    = "adminapi"
	ComponentAuditTrail  = "audittrail"
)

// Canonical field names for consistency across components.
const (
	FieldEntryID    = "entry_id"
	FieldRedisID    = "redis_id"
	FieldGroup      = "group"
	FieldInstanceID = "instance_id"
	FieldConsumer   = "consumer"
	FieldStream     = "stream"
	FieldStatus     = "status"
	FieldComponent  = "component"
	FieldDurationMs = "duration_ms"
	FieldAddr       = "addr"
	FieldOutcome    = "outcome"
)

// NewLogger builds a zap.Logger with the given level, format
// (json/console) and optional file output. Empty filePath writes to
// stdout.
func NewLogger(level, format, filePath string) (*zap.Logger, error) {
	var lvl zapcore.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = zapcore.DebugLevel
	case "info", "":
		lvl = zapcore.InfoLevel
	case "warn":
		lvl = zapcore.WarnLevel
	case "error":
		lvl = zapcore.ErrorLevel
	default:
		lvl = zapcore.InfoLevel
	}

	encCfg := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		MessageKey:     "msg",
		CallerKey:      "caller",
		StacktraceKey:  "stacktrace",
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
	}

	var encoder zapcore.Encoder
	if strings.ToLower(format) == "console" {
		encoder = zapcore.NewConsoleEncoder(encCfg)
	} else {
		encoder = zapcore.NewJSONEncoder(encCfg)
	}

	ws := zapcore.AddSync(os.Stdout)
	if filePath != "" {
		f, err := os.OpenFile(filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, err
		}
		ws = f
	}

	core := zapcore.NewCore(encoder, ws, lvl)
	return zap.New(core), nil
}

// externalSinkWriter adapts an ExternalLogger to zapcore.WriteSyncer so
// it can be teed alongside the primary file/stdout core.
type externalSinkWriter struct {
	sink *ExternalLogger
}

func (w externalSinkWriter) Write(p []byte) (int, error) {
	entry := make([]byte, len(p))
	copy(entry, p)
	w.sink.Log(entry)
	return len(p), nil
}

func (w externalSinkWriter) Sync() error { return nil }

// NewLoggerWithExternalSink is NewLogger plus an additional core that
// tees every log line to sink, when sink is non-nil and enabled. A
// disabled or nil sink leaves behavior identical to NewLogger.
func NewLoggerWithExternalSink(level, format, filePath string, sink *ExternalLogger) (*zap.Logger, error) {
	logger, err := NewLogger(level, format, filePath)
	if err != nil {
		return nil, err
	}
	if sink == nil || !sink.Enabled() {
		return logger, nil
	}

	primary := logger.Core()
	encCfg := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		MessageKey:     "msg",
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
	}
	sinkCore := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), externalSinkWriter{sink: sink}, zapcore.DebugLevel)
	return zap.New(zapcore.NewTee(primary, sinkCore)), nil
}

// NewComponentLogger builds a logger with a component field pre-populated.
func NewComponentLogger(level, format, filePath, component string) (*zap.Logger, error) {
	logger, err := NewLogger(level, format, filePath)
	if err != nil {
		return nil, err
	}
	return logger.With(zap.String(FieldComponent, component)), nil
}

// NewRotatingComponentLogger is like NewComponentLogger but writes to a
// size-rotated file instead of a single ever-growing one. Nothing in this
// module calls it; cmd/redis-ipc builds its logger with
// NewLoggerWithExternalSink.
func NewRotatingComponentLogger(level, format, filePath string, maxSizeBytes int64, maxBackups int, component string) (*zap.Logger, error) {
	var lvl zapcore.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = zapcore.DebugLevel
	case "warn":
		lvl = zapcore.WarnLevel
	case "error":
		lvl = zapcore.ErrorLevel
	default:
		lvl = zapcore.InfoLevel
	}

	encCfg := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		MessageKey:     "msg",
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
	}

	var encoder zapcore.Encoder
	if strings.ToLower(format) == "console" {
		encoder = zapcore.NewConsoleEncoder(encCfg)
	} else {
		encoder = zapcore.NewJSONEncoder(encCfg)
	}

	rw, err := newRotateWriter(filePath, maxSizeBytes, maxBackups)
	if err != nil {
		return nil, err
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(rw), lvl)
	return zap.New(core).With(zap.String(FieldComponent, component)), nil
}

// WithEntryID adds an entry id to context for downstream logging.
func WithEntryID(ctx context.Context, entryID string) context.Context {
	return context.WithValue(ctx, ctxKeyEntryID, entryID)
}

// EntryIDFromContext extracts the entry id stashed by WithEntryID, if any.
func EntryIDFromContext(ctx context.Context) string {
	if v := ctx.Value(ctxKeyEntryID); v != nil {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

// WithContext enriches logger with fields extracted from ctx.
func WithContext(logger *zap.Logger, ctx context.Context) *zap.Logger {
	if id := EntryIDFromContext(ctx); id != "" {
		return logger.With(zap.String(FieldEntryID, id))
	}
	return logger
}
