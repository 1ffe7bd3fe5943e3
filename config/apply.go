package config

import (
	"database/sql"
	"fmt"
	"net/http"
	"os"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"

	"github.com/hupe1980/a2aflow/engine"
	"github.com/hupe1980/a2aflow/logging"
	"github.com/hupe1980/a2aflow/model"
	"github.com/hupe1980/a2aflow/model/anthropic"
	"github.com/hupe1980/a2aflow/model/openai"
	"github.com/hupe1980/a2aflow/server"
	"github.com/hupe1980/a2aflow/task"
)

// NewLogger builds the process logger.
func (c *Config) NewLogger() *logging.FlowLogger {
	level, _ := logging.ParseLevel(c.Logging.Level)
	return logging.NewLogger(&logging.LoggerConfig{
		Level:     level,
		Format:    c.Logging.Format,
		Output:    os.Stderr,
		AddSource: c.Logging.AddSource,
	})
}

// ServerOptions copies the server settings onto o.
func (c *Config) ServerOptions(o *server.Options) {
	s := c.Server
	o.Host = s.Host
	o.Port = s.Port
	o.Token = s.Token
	o.CertFile = s.CertFile
	o.KeyFile = s.KeyFile
	o.Name = s.Name
	o.Description = s.Description
	o.Version = s.Version
	o.ShutdownTimeout = s.ShutdownTimeout
	o.RequestTimeout = s.RequestTimeout
	o.ReadHeaderTimeout = s.ReadHeaderTimeout
	o.MaxBodyBytes = s.MaxBodyBytes
	o.RateLimit = s.RateLimit
	o.RateBurst = s.RateBurst
	if len(s.AllowedOrigins) > 0 {
		o.AllowedOrigins = append([]string(nil), s.AllowedOrigins...)
	}
}

// EngineConfig returns the engine tuning parameters.
func (c *Config) EngineConfig() engine.Config {
	return engine.Config{
		MaxConcurrentRuns:   c.Engine.MaxConcurrentRuns,
		MaxParallelBranches: c.Engine.MaxParallelBranches,
		DefaultTaskTimeout:  c.Engine.DefaultTaskTimeout,
	}
}

// EngineOptions copies the engine settings onto o.
func (c *Config) EngineOptions(o *engine.Options) {
	o.Config = c.EngineConfig()
}

// BuildModels constructs one chat model per configured provider.
func (c *Config) BuildModels() (map[string]model.Model, error) {
	models := make(map[string]model.Model, len(c.Models.Providers))

	for _, p := range c.Models.Providers {
		switch p.Type {
		case ProviderOpenAI:
			models[p.Name] = openai.NewModel(func(o *openai.Options) {
				if p.Model != "" {
					o.Model = p.Model
				}
				if p.Temperature != 0 {
					o.Temperature = p.Temperature
				}
				if p.MaxTokens != 0 {
					o.MaxCompletionTokens = p.MaxTokens
				}
				o.APIKey = p.APIKey
				o.BaseURL = p.BaseURL
			})
		case ProviderAnthropic:
			models[p.Name] = anthropic.NewModel(func(o *anthropic.Options) {
				if p.Model != "" {
					o.Model = anthropicsdk.Model(p.Model)
				}
				if p.Temperature != 0 {
					o.Temperature = p.Temperature
				}
				if p.MaxTokens != 0 {
					o.MaxTokens = p.MaxTokens
				}
				o.APIKey = p.APIKey
				o.BaseURL = p.BaseURL
			})
		default:
			return nil, fmt.Errorf("models: unknown provider type %q", p.Type)
		}
	}

	return models, nil
}

// OpenDatabase opens the configured database, or returns nil when no DSN is
// set. The driver must be registered by the caller.
func (c *Config) OpenDatabase() (*sql.DB, error) {
	if c.Database.DSN == "" {
		return nil, nil
	}

	db, err := sql.Open(c.Database.Driver, c.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if c.Database.MaxOpenConns > 0 {
		db.SetMaxOpenConns(c.Database.MaxOpenConns)
	}

	return db, nil
}

// BuiltinOptions returns the task registration options for the given models
// and database.
func (c *Config) BuiltinOptions(models map[string]model.Model, db *sql.DB, logger logging.Logger) func(o *task.BuiltinOptions) {
	return func(o *task.BuiltinOptions) {
		o.Models = models
		o.DefaultProvider = c.Models.Default
		o.DB = db
		o.MaxRows = c.Database.MaxRows
		o.AgentToken = c.AgentCall.Token
		if c.AgentCall.Timeout > 0 {
			o.HTTPClient = &http.Client{Timeout: c.AgentCall.Timeout}
		}
		if logger != nil {
			o.Logger = logger
		}
	}
}
