package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/itsthedevman/redis-ipc/internal/audittrail"
	"github.com/itsthedevman/redis-ipc/internal/config"
	"github.com/itsthedevman/redis-ipc/internal/coordinator"
	"github.com/itsthedevman/redis-ipc/internal/entry"
	"github.com/itsthedevman/redis-ipc/internal/logging"
)

// buildCoordinator loads configuration, builds the structured logger
// (optionally teed to an external log sink) and (optionally) the audit
// trail store, and returns an unconnected coordinator along with the
// options Connect expects and the loaded configuration (for callers,
// like admin, that need fields Options doesn't carry).
func buildCoordinator() (*coordinator.Coordinator, coordinator.Options, *config.Config, *zap.Logger, *audittrail.Store, *logging.ExternalLogger, error) {
	cfg, err := config.New()
	if err != nil {
		return nil, coordinator.Options{}, nil, nil, nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	var fallback *zap.Logger
	sink := logging.NewExternalSink(logging.ExternalSinkOptions{
		Enabled:         cfg.ExternalLogEnabled,
		Endpoint:        cfg.ExternalLogEndpoint,
		BufferSize:      cfg.ExternalLogBufferSize,
		BatchSize:       cfg.ExternalLogBatchSize,
		FlushInterval:   cfg.ExternalLogFlushInterval,
		RequestTimeout:  cfg.ExternalLogRequestTimeout,
		RetryInterval:   cfg.ExternalLogRetryInterval,
		MaxRetries:      cfg.ExternalLogMaxRetries,
		FallbackToLocal: cfg.ExternalLogFallbackLocal,
	}, func(batch [][]byte) {
		if fallback == nil {
			return
		}
		for _, line := range batch {
			fallback.Info(string(line))
		}
	})

	logger, err := logging.NewLoggerWithExternalSink(cfg.LogLevel, cfg.LogFormat, cfg.LogFile, sink)
	if err != nil {
		return nil, coordinator.Options{}, nil, nil, nil, nil, fmt.Errorf("failed to build logger: %w", err)
	}
	fallback = logger

	var store *audittrail.Store
	if cfg.AuditTrailEnabled {
		store, err = audittrail.NewStore(audittrail.Config{
			FilePath:     cfg.AuditDatabasePath + ".jsonl",
			DatabasePath: cfg.AuditDatabasePath,
		})
		if err != nil {
			return nil, coordinator.Options{}, nil, nil, nil, nil, fmt.Errorf("failed to open audit trail: %w", err)
		}
	}

	c := coordinator.New(cfg.Stream, cfg.Group)
	opts := coordinator.Options{
		Redis: coordinator.RedisOptions{
			Addr:     cfg.RedisAddr,
			URL:      cfg.RedisURL,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		},
		Ledger: coordinator.LedgerOptions{
			EntryTimeout:    cfg.LedgerEntryTimeout,
			CleanupInterval: cfg.LedgerCleanupInterval,
		},
		Consumer: coordinator.PoolOptions{
			Size:              cfg.ConsumerPoolSize,
			ExecutionInterval: cfg.ConsumerExecutionInterval,
		},
		Dispatcher: coordinator.PoolOptions{
			Size:              cfg.DispatcherPoolSize,
			ExecutionInterval: cfg.DispatcherExecutionInterval,
		},
		SendPoolSize:        cfg.PoolSize,
		ReclaimMinIdle:      cfg.ReclaimMinIdle,
		AvailabilityTTL:     cfg.AvailabilityTTL,
		PublishFailureReply: cfg.PublishRejectOnNoWorkers,
		AuditTrail:          store,
		Logger:              logger,
	}
	return c, opts, cfg, logger, store, sink, nil
}

// echoHandler fulfills every request by returning its content unchanged.
// Used by the listen command when no application-specific handler is
// wired, so the process is still a useful smoke-test target.
func echoHandler(ctx context.Context, c *coordinator.Coordinator, e entry.Entry) {
	c.FulfillRequest(ctx, e, e.Content)
}

// logErrorHandler logs a worker-surfaced error via the process logger.
func logErrorHandler(logger *zap.Logger) coordinator.ErrorHandler {
	return func(e entry.Entry, err error) {
		logger.Warn("entry processing error", zap.String(logging.FieldEntryID, e.ID), zap.Error(err))
	}
}
