package main

import (
	"database/sql"
	"fmt"

	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"

	"github.com/hupe1980/a2aflow"
	"github.com/hupe1980/a2aflow/config"
	"github.com/hupe1980/a2aflow/logging"
	"github.com/hupe1980/a2aflow/registry"
	"github.com/hupe1980/a2aflow/task"
)

// runtime bundles what a command needs. Close releases the database.
type runtime struct {
	cfg    *config.Config
	app    *a2aflow.App
	logger *logging.FlowLogger
	db     *sql.DB
}

func (r *runtime) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// loadRuntime loads the configuration, builds the app and registers the
// configured workflows. The app is not booted.
func loadRuntime(cmd *cobra.Command) (*runtime, error) {
	cfg, err := config.LoadWithDefaults(configFile)
	if err != nil {
		return nil, err
	}

	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if err := applyServerFlags(cmd, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := cfg.NewLogger()

	models, err := cfg.BuildModels()
	if err != nil {
		return nil, err
	}

	db, err := cfg.OpenDatabase()
	if err != nil {
		return nil, err
	}

	rt := &runtime{cfg: cfg, logger: logger, db: db}

	app, err := a2aflow.New(func(o *a2aflow.Options) {
		o.EngineConfig = cfg.EngineConfig()
		cfg.ServerOptions(&o.Server)
		// Execute already turns SIGINT/SIGTERM into context cancellation.
		o.Server.HandleSignals = false
		o.Manifest = registry.Manifest{Required: cfg.Manifest}
		o.Builtins = []func(o *task.BuiltinOptions){cfg.BuiltinOptions(models, db, logger)}
		o.Logger = logger
	})
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	rt.app = app

	files, err := cfg.WorkflowFiles()
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	if err := app.LoadWorkflows(files...); err != nil {
		_ = rt.Close()
		return nil, fmt.Errorf("load workflows: %w", err)
	}

	logger.Debug("cli.runtime.loaded",
		"config", configFile,
		"workflow_files", len(files),
		"models", len(models),
		"database", db != nil,
	)

	return rt, nil
}

// addServerFlags registers the flags that override the server section.
func addServerFlags(cmd *cobra.Command) {
	cmd.Flags().String("host", "", "bind host")
	cmd.Flags().Int("port", 0, "bind port")
	cmd.Flags().String("token", "", "bearer token required by invoke endpoints")
	cmd.Flags().String("cert", "", "TLS certificate file")
	cmd.Flags().String("key", "", "TLS key file")
}

func applyServerFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Lookup("port") == nil {
		return nil
	}

	var err error
	if flags.Changed("host") {
		cfg.Server.Host, err = flags.GetString("host")
	}
	if err == nil && flags.Changed("port") {
		cfg.Server.Port, err = flags.GetInt("port")
	}
	if err == nil && flags.Changed("token") {
		cfg.Server.Token, err = flags.GetString("token")
	}
	if err == nil && flags.Changed("cert") {
		cfg.Server.CertFile, err = flags.GetString("cert")
	}
	if err == nil && flags.Changed("key") {
		cfg.Server.KeyFile, err = flags.GetString("key")
	}

	return err
}
