package server

import (
	"time"

	"github.com/hupe1980/a2aflow/logging"
	"github.com/hupe1980/a2aflow/registry"
)

// Options configures a Server.
type Options struct {
	Host string
	// Port to bind; zero picks a free port (see Addr).
	Port int

	// Token enables bearer authentication when non-empty.
	Token string

	// CertFile and KeyFile enable TLS. Both or neither must be set.
	CertFile string
	KeyFile  string

	// Name, Description and Version describe the server in the Agent Card.
	Name        string
	Description string
	Version     string

	// ShutdownTimeout bounds the drain of in-flight requests on Stop.
	ShutdownTimeout time.Duration
	// RequestTimeout bounds one workflow run; zero means unbounded.
	RequestTimeout time.Duration
	// ReadHeaderTimeout bounds reading request headers.
	ReadHeaderTimeout time.Duration
	// MaxBodyBytes bounds request bodies.
	MaxBodyBytes int64

	// RateLimit is the sustained request rate per second; zero disables
	// rate limiting. RateBurst defaults to the rounded-up rate.
	RateLimit float64
	RateBurst int

	// AllowedOrigins lists the CORS origins; "*" allows any.
	AllowedOrigins []string

	// HandleSignals installs SIGINT/SIGTERM handlers in Start.
	HandleSignals bool
	// DiagnosticSignal installs the SIGUSR1 health and stats dump (unix only).
	DiagnosticSignal bool

	// Workflows is the route table. A fresh registry is created when nil.
	Workflows *registry.WorkflowRegistry

	Logger logging.Logger
}

// DefaultOptions returns the baseline configuration.
func DefaultOptions() Options {
	return Options{
		Host:              "0.0.0.0",
		Port:              8080,
		Name:              "a2aflow",
		Version:           "1.0.0",
		ShutdownTimeout:   10 * time.Second,
		RequestTimeout:    5 * time.Minute,
		ReadHeaderTimeout: 10 * time.Second,
		MaxBodyBytes:      1 << 20,
		AllowedOrigins:    []string{"*"},
		HandleSignals:     true,
		DiagnosticSignal:  true,
		Logger:            logging.NoOpLogger{},
	}
}
