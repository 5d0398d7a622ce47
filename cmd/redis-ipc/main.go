// Command redis-ipc runs a coordinator process joining a Redis stream
// under one group: listening for requests, or sending one request and
// printing the response.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// Root command flags, shared across subcommands.
var (
	envFile string
)

var rootCmd = &cobra.Command{
	Use:   "redis-ipc",
	Short: "Join a Redis Streams request/response mesh",
	Long:  `redis-ipc connects a group of workers and dispatchers to a Redis stream and exchanges typed request/response entries with other groups.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env", ".env", "Path to .env file")
	rootCmd.AddCommand(listenCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(adminCmd)
}

func loadEnvFile() {
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			log.Printf("warning: error loading %s: %v", envFile, err)
		} else {
			log.Printf("loaded environment from %s", envFile)
		}
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
