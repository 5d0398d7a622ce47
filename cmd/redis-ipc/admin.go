package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/itsthedevman/redis-ipc/internal/adminapi"
	"github.com/itsthedevman/redis-ipc/internal/coordinator"
)

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Join a group and expose its stats over the admin API",
	Long:  `admin connects a coordinator the same way listen does, but additionally serves a read-only JSON stats API gated by a management token.`,
	Run:   runAdmin,
}

// coordinatorStatsSource adapts *coordinator.Coordinator to
// adminapi.StatsSource.
type coordinatorStatsSource struct {
	c *coordinator.Coordinator
}

func (s coordinatorStatsSource) LedgerStats() adminapi.LedgerStats {
	return adminapi.LedgerStats{OutstandingCount: s.c.LedgerOutstanding()}
}

func (s coordinatorStatsSource) WorkerStats() []adminapi.WorkerStats {
	raw := s.c.WorkerStats(context.Background())
	out := make([]adminapi.WorkerStats, 0, len(raw))
	for _, w := range raw {
		out = append(out, adminapi.WorkerStats{
			Name:     w.Name,
			Pending:  w.Pending,
			IdleMs:   w.IdleMs,
			Inactive: w.Inactive,
		})
	}
	return out
}

func (s coordinatorStatsSource) DispatcherStats() []adminapi.DispatcherStats {
	raw := s.c.DispatcherStats()
	out := make([]adminapi.DispatcherStats, 0, len(raw))
	for _, d := range raw {
		out = append(out, adminapi.DispatcherStats{Name: d.Name, State: d.State})
	}
	return out
}

func runAdmin(cmd *cobra.Command, args []string) {
	loadEnvFile()

	c, opts, cfg, logger, store, sink, err := buildCoordinator()
	if err != nil {
		log.Fatalf("%v", err)
	}
	if store != nil {
		defer func() { _ = store.Close() }()
	}
	defer sink.Close()

	c.Configure(echoHandler, logErrorHandler(logger))

	ctx := context.Background()
	if err := c.Connect(ctx, opts); err != nil {
		logger.Fatal("failed to connect", zap.Error(err))
	}

	server, err := adminapi.NewServer(cfg.AdminListenAddr, coordinatorStatsSource{c: c}, cfg.ManagementToken, logger)
	if err != nil {
		logger.Fatal("failed to build admin API", zap.Error(err))
	}

	go func() {
		if err := server.ListenAndServe(); err != nil {
			logger.Fatal("admin API error", zap.Error(err))
		}
	}()

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	<-done

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("error shutting down admin API", zap.Error(err))
	}
	if err := c.Disconnect(shutdownCtx); err != nil {
		logger.Warn("error during shutdown", zap.Error(err))
	}
	logger.Info("exited gracefully")
}
