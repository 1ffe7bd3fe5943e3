package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	configFile string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "a2aflow",
	Short: "a2aflow - serve declarative agent workflows over the A2A protocol",
	Long: `a2aflow hosts workflows of typed tasks (chat, database, Lua scripts,
calls to other agents) behind an A2A compatible HTTP server with agent card
discovery, health and invoke endpoints.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command with signal handling.
func Execute(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "a2aflow.yaml", "configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the configured log level")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(cardCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(invokeCmd)
	rootCmd.AddCommand(versionCmd)
}
