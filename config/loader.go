package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides.
const EnvPrefix = "A2AFLOW"

// Load reads the configuration at path, applies environment overrides and
// validates the result. An empty path yields the defaults plus environment
// overrides.
func Load(path string) (*Config, error) {
	v := newViper()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := v.MergeConfigMap(interpolateEnvVars(v.AllSettings()).(map[string]any)); err != nil {
		return nil, fmt.Errorf("failed to apply environment interpolation: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if path != "" {
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, err
		}
		cfg.Dir = filepath.Dir(abs)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadWithDefaults behaves like Load but falls back to the defaults when the
// file does not exist.
func LoadWithDefaults(path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return Load("")
		}
	}
	return Load(path)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	def := DefaultConfig()

	// Every key needs a default so AutomaticEnv can override it on Unmarshal.
	v.SetDefault("server.host", def.Server.Host)
	v.SetDefault("server.port", def.Server.Port)
	v.SetDefault("server.token", "")
	v.SetDefault("server.cert_file", "")
	v.SetDefault("server.key_file", "")
	v.SetDefault("server.name", def.Server.Name)
	v.SetDefault("server.description", "")
	v.SetDefault("server.version", def.Server.Version)
	v.SetDefault("server.shutdown_timeout", def.Server.ShutdownTimeout)
	v.SetDefault("server.request_timeout", def.Server.RequestTimeout)
	v.SetDefault("server.read_header_timeout", def.Server.ReadHeaderTimeout)
	v.SetDefault("server.max_body_bytes", def.Server.MaxBodyBytes)
	v.SetDefault("server.rate_limit", 0.0)
	v.SetDefault("server.rate_burst", 0)
	v.SetDefault("server.allowed_origins", def.Server.AllowedOrigins)

	v.SetDefault("logging.level", def.Logging.Level)
	v.SetDefault("logging.format", def.Logging.Format)
	v.SetDefault("logging.add_source", false)

	v.SetDefault("engine.max_concurrent_runs", def.Engine.MaxConcurrentRuns)
	v.SetDefault("engine.max_parallel_branches", def.Engine.MaxParallelBranches)
	v.SetDefault("engine.default_task_timeout", def.Engine.DefaultTaskTimeout)

	v.SetDefault("database.driver", def.Database.Driver)
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_rows", def.Database.MaxRows)
	v.SetDefault("database.max_open_conns", def.Database.MaxOpenConns)

	v.SetDefault("models.default", "")

	v.SetDefault("agent_call.token", "")
	v.SetDefault("agent_call.timeout", def.AgentCall.Timeout)

	v.SetDefault("workflows", []string{})
	v.SetDefault("manifest", []string{})

	return v
}

// interpolateEnvVars recursively expands environment references in string
// values.
func interpolateEnvVars(data any) any {
	switch v := data.(type) {
	case map[string]any:
		result := make(map[string]any, len(v))
		for key, value := range v {
			result[key] = interpolateEnvVars(value)
		}
		return result
	case []any:
		result := make([]any, len(v))
		for i, value := range v {
			result[i] = interpolateEnvVars(value)
		}
		return result
	case []string:
		result := make([]string, len(v))
		for i, value := range v {
			result[i] = interpolateString(value)
		}
		return result
	case string:
		return interpolateString(v)
	default:
		return v
	}
}

var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// interpolateString replaces ${VAR} and ${VAR:-fallback}. Unset variables
// without a fallback are left in place so Validate can report them.
func interpolateString(s string) string {
	return envRef.ReplaceAllStringFunc(s, func(match string) string {
		m := envRef.FindStringSubmatch(match)
		if val, ok := os.LookupEnv(m[1]); ok && val != "" {
			return val
		}
		if m[2] != "" {
			return m[3]
		}
		return match
	})
}
