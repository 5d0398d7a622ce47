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
)

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Join a group and process requests until interrupted",
	Long:  `listen connects a coordinator to the configured stream and group, handling every request with an echo reply until the process receives an interrupt signal.`,
	Run:   runListen,
}

func runListen(cmd *cobra.Command, args []string) {
	loadEnvFile()

	c, opts, _, logger, store, sink, err := buildCoordinator()
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
	logger.Info("listening", zap.String("instance_id", c.InstanceID()))

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	<-done

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := c.Disconnect(shutdownCtx); err != nil {
		logger.Warn("error during shutdown", zap.Error(err))
	}
	logger.Info("exited gracefully")
}
