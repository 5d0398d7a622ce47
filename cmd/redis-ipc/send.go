package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/itsthedevman/redis-ipc/internal/coordinator"
	"github.com/itsthedevman/redis-ipc/internal/entry"
)

var sendTo string

var sendCmd = &cobra.Command{
	Use:   "send [content]",
	Short: "Send one request to a group and print the reply",
	Long:  `send connects a coordinator, publishes one request to the group named by --to, waits for a reply (or entry_timeout), prints the result, and exits.`,
	Args:  cobra.ExactArgs(1),
	Run:   runSend,
}

func init() {
	sendCmd.Flags().StringVar(&sendTo, "to", "", "destination group name")
	if err := sendCmd.MarkFlagRequired("to"); err != nil {
		log.Printf("warning: could not mark 'to' flag as required: %v", err)
	}
}

func runSend(cmd *cobra.Command, args []string) {
	loadEnvFile()

	c, opts, _, logger, store, sink, err := buildCoordinator()
	if err != nil {
		log.Fatalf("%v", err)
	}
	if store != nil {
		defer func() { _ = store.Close() }()
	}
	defer sink.Close()

	// send never receives requests of its own, but Connect still
	// requires handlers to be configured; a no-op handler is correct
	// here since this instance's group never appears as a destination.
	c.Configure(
		func(ctx context.Context, c *coordinator.Coordinator, e entry.Entry) {},
		func(e entry.Entry, err error) {},
	)

	ctx := context.Background()
	if err := c.Connect(ctx, opts); err != nil {
		logger.Fatal("failed to connect", zap.Error(err))
	}
	defer func() {
		shutdownCtx := context.Background()
		if err := c.Disconnect(shutdownCtx); err != nil {
			logger.Warn("error during shutdown", zap.Error(err))
		}
	}()

	resp := c.SendToGroup(ctx, []byte(args[0]), sendTo)
	if resp.IsFulfilled() {
		fmt.Printf("fulfilled: %s\n", string(resp.Value()))
		return
	}
	fmt.Printf("rejected: %v\n", resp.Reason())
	os.Exit(1)
}
