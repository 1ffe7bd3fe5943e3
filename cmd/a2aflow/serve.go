package main

import (
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the A2A server",
	Long: `Start the A2A server for every workflow listed in the configuration.

The manifest is validated and the registries are frozen before the listener
opens. SIGINT or SIGTERM drains in-flight requests and stops the server;
SIGUSR1 logs health and statistics.`,
	Example: `  a2aflow serve --config a2aflow.yaml
  a2aflow serve --port 9000 --token "$A2AFLOW_TOKEN"
  a2aflow serve --cert server.crt --key server.key`,
	RunE: runServe,
}

func init() {
	addServerFlags(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	rt, err := loadRuntime(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	return rt.app.Serve(cmd.Context())
}
