// Command redis-ipc-repl is an interactive shell for exercising a
// running redis-ipc deployment: it connects a throwaway coordinator,
// then sends one request per line of input to a configured group and
// prints the reply.
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/itsthedevman/redis-ipc/internal/config"
	"github.com/itsthedevman/redis-ipc/internal/coordinator"
	"github.com/itsthedevman/redis-ipc/internal/entry"
	"github.com/itsthedevman/redis-ipc/internal/logging"
)

var (
	envFile string
	toGroup string
)

var rootCmd = &cobra.Command{
	Use:   "redis-ipc-repl",
	Short: "Interactively send requests to a group",
	Long:  `redis-ipc-repl reads one line at a time and sends it as a request to the group named by --to, printing each reply.`,
	Run:   runREPL,
}

func init() {
	rootCmd.Flags().StringVar(&envFile, "env", ".env", "Path to .env file")
	rootCmd.Flags().StringVar(&toGroup, "to", "", "destination group name")
	if err := rootCmd.MarkFlagRequired("to"); err != nil {
		log.Printf("warning: could not mark 'to' flag as required: %v", err)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func runREPL(cmd *cobra.Command, args []string) {
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			log.Printf("warning: error loading %s: %v", envFile, err)
		}
	}

	cfg, err := config.New()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	logger, err := logging.NewLogger(cfg.LogLevel, cfg.LogFormat, cfg.LogFile)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}

	c := coordinator.New(cfg.Stream, cfg.Group)
	c.Configure(
		func(ctx context.Context, c *coordinator.Coordinator, e entry.Entry) {},
		func(e entry.Entry, err error) {},
	)

	ctx := context.Background()
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
		Consumer:        coordinator.PoolOptions{Size: 1, ExecutionInterval: cfg.ConsumerExecutionInterval},
		Dispatcher:      coordinator.PoolOptions{Size: 1, ExecutionInterval: cfg.DispatcherExecutionInterval},
		SendPoolSize:    cfg.PoolSize,
		ReclaimMinIdle:  cfg.ReclaimMinIdle,
		AvailabilityTTL: cfg.AvailabilityTTL,
		Logger:          logger,
	}
	if err := c.Connect(ctx, opts); err != nil {
		logger.Fatal("failed to connect", zap.Error(err))
	}
	defer func() {
		if err := c.Disconnect(context.Background()); err != nil {
			logger.Warn("error during shutdown", zap.Error(err))
		}
	}()

	prompt := "> "
	if term.IsTerminal(int(os.Stdout.Fd())) {
		fmt.Printf("Sending requests to group %q. Type 'exit' or 'quit' to end the session.\n", toGroup)
	}

	rl, err := readline.New(prompt)
	if err != nil {
		fmt.Printf("error initializing readline: %v\n", err)
		return
	}
	defer func() {
		if err := rl.Close(); err != nil {
			fmt.Printf("error closing readline: %v\n", err)
		}
	}()

	for {
		input, err := rl.Readline()
		if err == readline.ErrInterrupt {
			if len(input) == 0 {
				fmt.Println("ending session")
				break
			}
			continue
		} else if err == io.EOF {
			fmt.Println("ending session")
			break
		} else if err != nil {
			fmt.Printf("error reading input: %v\n", err)
			continue
		}

		input = strings.TrimSpace(input)
		if input == "exit" || input == "quit" {
			fmt.Println("ending session")
			break
		}
		if input == "" {
			continue
		}

		start := time.Now()
		resp := c.SendToGroup(ctx, []byte(input), toGroup)
		elapsed := time.Since(start)

		if resp.IsFulfilled() {
			fmt.Printf("fulfilled (%s): %s\n", elapsed, string(resp.Value()))
		} else {
			fmt.Printf("rejected (%s): %v\n", elapsed, resp.Reason())
		}
	}
}
