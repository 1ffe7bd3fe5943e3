package config

import (
	"database/sql"
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/hupe1980/a2aflow/engine"
	"github.com/hupe1980/a2aflow/logging"
	"github.com/hupe1980/a2aflow/server"
)

// Provider types understood by BuildModels.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Config is the root configuration of an a2aflow process.
type Config struct {
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
	Engine    EngineConfig    `mapstructure:"engine" yaml:"engine"`
	Database  DatabaseConfig  `mapstructure:"database" yaml:"database"`
	Models    ModelsConfig    `mapstructure:"models" yaml:"models"`
	AgentCall AgentCallConfig `mapstructure:"agent_call" yaml:"agent_call"`

	// Workflows lists YAML workflow files or glob patterns, relative to the
	// configuration file.
	Workflows []string `mapstructure:"workflows" yaml:"workflows"`

	// Manifest lists task types that must be registered at boot.
	Manifest []string `mapstructure:"manifest" yaml:"manifest"`

	// Dir is the directory of the loaded file, or "" for defaults.
	Dir string `mapstructure:"-" yaml:"-"`
}

// ServerConfig mirrors server.Options.
type ServerConfig struct {
	Host              string        `mapstructure:"host" yaml:"host"`
	Port              int           `mapstructure:"port" yaml:"port"`
	Token             string        `mapstructure:"token" yaml:"token"`
	CertFile          string        `mapstructure:"cert_file" yaml:"cert_file"`
	KeyFile           string        `mapstructure:"key_file" yaml:"key_file"`
	Name              string        `mapstructure:"name" yaml:"name"`
	Description       string        `mapstructure:"description" yaml:"description"`
	Version           string        `mapstructure:"version" yaml:"version"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	MaxBodyBytes      int64         `mapstructure:"max_body_bytes" yaml:"max_body_bytes"`
	RateLimit         float64       `mapstructure:"rate_limit" yaml:"rate_limit"`
	RateBurst         int           `mapstructure:"rate_burst" yaml:"rate_burst"`
	AllowedOrigins    []string      `mapstructure:"allowed_origins" yaml:"allowed_origins"`
}

// LoggingConfig selects the log level and format.
type LoggingConfig struct {
	Level     string `mapstructure:"level" yaml:"level"`
	Format    string `mapstructure:"format" yaml:"format"`
	AddSource bool   `mapstructure:"add_source" yaml:"add_source"`
}

// EngineConfig mirrors engine.Config.
type EngineConfig struct {
	MaxConcurrentRuns   int           `mapstructure:"max_concurrent_runs" yaml:"max_concurrent_runs"`
	MaxParallelBranches int           `mapstructure:"max_parallel_branches" yaml:"max_parallel_branches"`
	DefaultTaskTimeout  time.Duration `mapstructure:"default_task_timeout" yaml:"default_task_timeout"`
}

// DatabaseConfig enables the database tasks when DSN is set.
type DatabaseConfig struct {
	Driver       string `mapstructure:"driver" yaml:"driver"`
	DSN          string `mapstructure:"dsn" yaml:"dsn"`
	MaxRows      int    `mapstructure:"max_rows" yaml:"max_rows"`
	MaxOpenConns int    `mapstructure:"max_open_conns" yaml:"max_open_conns"`
}

// ModelsConfig enables the chat task when providers are configured.
type ModelsConfig struct {
	Default   string           `mapstructure:"default" yaml:"default"`
	Providers []ProviderConfig `mapstructure:"providers" yaml:"providers"`
}

// ProviderConfig describes one chat model.
type ProviderConfig struct {
	Name        string  `mapstructure:"name" yaml:"name"`
	Type        string  `mapstructure:"type" yaml:"type"`
	Model       string  `mapstructure:"model" yaml:"model"`
	APIKey      string  `mapstructure:"api_key" yaml:"api_key"`
	BaseURL     string  `mapstructure:"base_url" yaml:"base_url"`
	Temperature float64 `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens   int64   `mapstructure:"max_tokens" yaml:"max_tokens"`
}

// AgentCallConfig configures outbound calls to other agents.
type AgentCallConfig struct {
	Token   string        `mapstructure:"token" yaml:"token"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	so := server.DefaultOptions()
	return &Config{
		Server: ServerConfig{
			Host:              so.Host,
			Port:              so.Port,
			Name:              so.Name,
			Version:           so.Version,
			ShutdownTimeout:   so.ShutdownTimeout,
			RequestTimeout:    so.RequestTimeout,
			ReadHeaderTimeout: so.ReadHeaderTimeout,
			MaxBodyBytes:      so.MaxBodyBytes,
			AllowedOrigins:    so.AllowedOrigins,
		},
		Logging: LoggingConfig{Level: "info", Format: "json"},
		Engine: EngineConfig{
			MaxConcurrentRuns:   engine.DefaultConfig.MaxConcurrentRuns,
			MaxParallelBranches: engine.DefaultConfig.MaxParallelBranches,
			DefaultTaskTimeout:  engine.DefaultConfig.DefaultTaskTimeout,
		},
		Database:  DatabaseConfig{Driver: "sqlite", MaxRows: 1000, MaxOpenConns: 1},
		AgentCall: AgentCallConfig{Timeout: 30 * time.Second},
	}
}

var unresolved = regexp.MustCompile(`\$\{[^}]+\}`)

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) { errs = append(errs, fmt.Errorf(format, args...)) }

	s := c.Server
	if s.Port < 0 || s.Port > 65535 {
		add("server.port: %d out of range", s.Port)
	}
	if s.Host != "" && net.ParseIP(s.Host) == nil && strings.ContainsAny(s.Host, " /:") {
		add("server.host: invalid host %q", s.Host)
	}
	if (s.CertFile == "") != (s.KeyFile == "") {
		add("server: cert_file and key_file must be set together")
	}
	if s.RateLimit < 0 {
		add("server.rate_limit: must not be negative")
	}
	if s.RateBurst < 0 {
		add("server.rate_burst: must not be negative")
	}
	if s.ShutdownTimeout < 0 || s.RequestTimeout < 0 {
		add("server: timeouts must not be negative")
	}
	if unresolved.MatchString(s.Token) {
		add("server.token: unresolved environment reference %s", s.Token)
	}

	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		add("logging.level: %v", err)
	}
	if f := c.Logging.Format; f != "" && f != "json" && f != "text" {
		add("logging.format: must be json or text, got %q", f)
	}

	if c.Engine.MaxConcurrentRuns < 0 || c.Engine.MaxParallelBranches < 0 || c.Engine.DefaultTaskTimeout < 0 {
		add("engine: limits must not be negative")
	}

	if c.Database.DSN != "" && !slices.Contains(sql.Drivers(), c.Database.Driver) {
		add("database.driver: %q is not registered", c.Database.Driver)
	}

	names := map[string]bool{}
	for i, p := range c.Models.Providers {
		switch {
		case p.Name == "":
			add("models.providers[%d]: name is required", i)
		case names[p.Name]:
			add("models.providers[%d]: duplicate name %q", i, p.Name)
		}
		names[p.Name] = true
		if p.Type != ProviderOpenAI && p.Type != ProviderAnthropic {
			add("models.providers[%d]: unknown type %q", i, p.Type)
		}
		if unresolved.MatchString(p.APIKey) {
			add("models.providers[%d].api_key: unresolved environment reference %s", i, p.APIKey)
		}
	}
	if d := c.Models.Default; d != "" && !names[d] {
		add("models.default: no provider named %q", d)
	}

	if unresolved.MatchString(c.AgentCall.Token) {
		add("agent_call.token: unresolved environment reference %s", c.AgentCall.Token)
	}

	return errors.Join(errs...)
}

// WorkflowFiles expands the workflow patterns relative to Dir. Patterns
// without glob characters must name an existing file.
func (c *Config) WorkflowFiles() ([]string, error) {
	var out []string
	seen := map[string]bool{}

	for _, pattern := range c.Workflows {
		if !filepath.IsAbs(pattern) && c.Dir != "" {
			pattern = filepath.Join(c.Dir, pattern)
		}

		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("workflows: %w", err)
		}
		if len(matches) == 0 && !strings.ContainsAny(pattern, "*?[") {
			return nil, fmt.Errorf("workflows: %s does not exist", pattern)
		}

		slices.Sort(matches)
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				out = append(out, m)
			}
		}
	}

	return out, nil
}
