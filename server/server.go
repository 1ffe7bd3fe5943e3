package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hupe1980/a2aflow/core"
	"github.com/hupe1980/a2aflow/engine"
	"github.com/hupe1980/a2aflow/logging"
	"github.com/hupe1980/a2aflow/registry"
)

// ErrAlreadyStarted is returned by Start on a running server.
var ErrAlreadyStarted = errors.New("server already started")

// Executor runs workflow definitions. *engine.Engine implements it.
type Executor interface {
	Run(ctx context.Context, def *core.WorkflowDefinition, ec *core.ExecutionContext, optFns ...func(o *engine.RunOptions)) *core.WorkflowResult
	Stats() engine.Stats
}

// Stats is a snapshot of server counters.
type Stats struct {
	Requests     int64        `json:"requests"`
	ClientErrors int64        `json:"client_errors"`
	ServerErrors int64        `json:"server_errors"`
	Engine       engine.Stats `json:"engine"`
}

// Server serves the A2A protocol for the workflows in its route table.
type Server struct {
	exec      Executor
	workflows *registry.WorkflowRegistry
	opts      Options
	logger    logging.Logger

	handlerOnce sync.Once
	handler     http.Handler

	mu       sync.Mutex
	httpSrv  *http.Server
	listener net.Listener
	started  time.Time
	ready    chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once
	stopErr  error

	requests, clientErrors, serverErrors atomic.Int64
}

// New creates a server executing workflows with exec.
func New(exec Executor, optFns ...func(o *Options)) *Server {
	opts := DefaultOptions()

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	if opts.Workflows == nil {
		opts.Workflows = registry.NewWorkflowRegistry()
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}

	logger := opts.Logger
	if fl, ok := logger.(*logging.FlowLogger); ok {
		logger = fl.WithComponent("server")
	}

	return &Server{
		exec:      exec,
		workflows: opts.Workflows,
		opts:      opts,
		logger:    logger,
		started:   time.Now(),
		ready:     make(chan struct{}),
		stopped:   make(chan struct{}),
	}
}

// Workflows returns the route table.
func (s *Server) Workflows() *registry.WorkflowRegistry { return s.workflows }

// RegisterWorkflow mounts def at path, deriving the path from the workflow
// name when empty. The effective path is returned.
func (s *Server) RegisterWorkflow(def *core.WorkflowDefinition, path string) (string, error) {
	path, err := s.workflows.Register(def, path)
	if err != nil {
		return "", err
	}
	s.logger.Info("server.workflow.registered", "workflow", def.Name, "path", path)
	return path, nil
}

// RegisterAllWorkflows mounts every route of reg at its path.
func (s *Server) RegisterAllWorkflows(reg *registry.WorkflowRegistry) error {
	if reg == s.workflows {
		return nil
	}
	var errs []error
	for _, route := range reg.Routes() {
		if _, err := s.RegisterWorkflow(route.Definition, route.Path); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Handler returns the routes wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	s.handlerOnce.Do(func() {
		s.handler = Chain(
			s.logging,
			s.cors,
			s.auth,
			s.rateLimit(),
			s.recoverer,
		)(s.routes())
	})
	return s.handler
}

// Validate checks the bind address and TLS material without starting.
func (s *Server) Validate() error {
	if _, err := s.tlsConfig(); err != nil {
		return err
	}
	_, err := s.bindAddress()
	return err
}

// Start validates the configuration, listens and serves until the server is
// stopped. It returns nil after an orderly stop and a
// *core.ServerConfigurationError for bad TLS material or bind addresses.
func (s *Server) Start(ctx context.Context) error {
	tlsCfg, err := s.tlsConfig()
	if err != nil {
		return err
	}

	addr, err := s.bindAddress()
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.httpSrv != nil {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		s.mu.Unlock()
		return &core.ServerConfigurationError{Field: "address", Message: "cannot listen on " + addr, Err: err}
	}
	if tlsCfg != nil {
		ln = tls.NewListener(ln, tlsCfg)
	}

	s.workflows.Freeze()

	s.httpSrv = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.opts.ReadHeaderTimeout,
		TLSConfig:         tlsCfg,
	}
	s.listener = ln
	s.started = time.Now()
	srv := s.httpSrv
	s.mu.Unlock()

	stopSignals := s.watchSignals()
	defer stopSignals()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Serve(ln)
	}()

	s.logger.Info("server.started",
		"addr", ln.Addr().String(),
		"tls", tlsCfg != nil,
		"auth", s.opts.Token != "",
		"workflows", s.workflows.Len(),
	)
	close(s.ready)

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
	case <-ctx.Done():
		_ = s.Stop(context.Background())
	}

	<-s.stopped

	return s.stopErr
}

// Ready is closed once Start is listening.
func (s *Server) Ready() <-chan struct{} { return s.ready }

// Addr returns the listening address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop drains in-flight requests for ShutdownTimeout and then closes all
// connections. It is idempotent, safe to call concurrently (including from a
// signal handler) and returns nil when the server was never started.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpSrv
	s.mu.Unlock()

	if srv == nil {
		return nil
	}

	s.stopOnce.Do(func() {
		sctx, cancel := context.WithTimeout(ctx, s.opts.ShutdownTimeout)
		defer cancel()

		s.logger.Info("server.stopping", "grace", s.opts.ShutdownTimeout)

		if err := srv.Shutdown(sctx); err != nil {
			s.logger.Warn("server.shutdown.forced", "error", err.Error())
			if cerr := srv.Close(); cerr != nil && !errors.Is(cerr, http.ErrServerClosed) {
				s.stopErr = cerr
			}
		}

		s.logger.Info("server.stopped")
		close(s.stopped)
	})

	return s.stopErr
}

// Stats returns the server and engine counters.
func (s *Server) Stats() Stats {
	st := Stats{
		Requests:     s.requests.Load(),
		ClientErrors: s.clientErrors.Load(),
		ServerErrors: s.serverErrors.Load(),
	}
	if s.exec != nil {
		st.Engine = s.exec.Stats()
	}
	return st
}

func (s *Server) watchSignals() func() {
	var sigs []os.Signal
	if s.opts.HandleSignals {
		sigs = append(sigs, shutdownSignals...)
	}
	if s.opts.DiagnosticSignal {
		sigs = append(sigs, diagnosticSignals...)
	}
	if len(sigs) == 0 {
		return func() {}
	}

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, sigs...)

	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			case sig := <-ch:
				if slices.Contains(diagnosticSignals, sig) {
					s.logDiagnostics()
					continue
				}
				s.logger.Info("server.signal", "signal", sig.String())
				go func() { _ = s.Stop(context.Background()) }()
			}
		}
	}()

	return func() {
		signal.Stop(ch)
		close(done)
	}
}

func (s *Server) logDiagnostics() {
	h := s.health()
	st := s.Stats()
	s.logger.Info("server.diagnostics",
		"status", h.Status,
		"uptime", h.UptimeHuman,
		"registered_workflows", h.RegisteredWorkflows,
		"requests", st.Requests,
		"client_errors", st.ClientErrors,
		"server_errors", st.ServerErrors,
		"runs", st.Engine.Runs,
		"runs_failed", st.Engine.Failed,
		"runs_active", st.Engine.Active,
	)
}

func (s *Server) tlsConfig() (*tls.Config, error) {
	cert, key := s.opts.CertFile, s.opts.KeyFile
	switch {
	case cert == "" && key == "":
		return nil, nil
	case cert == "" || key == "":
		return nil, &core.ServerConfigurationError{Field: "tls", Message: "both certificate and key files are required"}
	}

	pair, err := tls.LoadX509KeyPair(cert, key)
	if err != nil {
		return nil, &core.ServerConfigurationError{Field: "tls", Message: "cannot load certificate/key pair", Err: err}
	}

	return &tls.Config{
		Certificates: []tls.Certificate{pair},
		MinVersion:   tls.VersionTLS12,
	}, nil
}

func (s *Server) bindAddress() (string, error) {
	if s.opts.Port < 0 || s.opts.Port > 65535 {
		return "", &core.ServerConfigurationError{Field: "port", Message: fmt.Sprintf("port %d out of range", s.opts.Port)}
	}
	host := s.opts.Host
	if host != "" && net.ParseIP(host) == nil && !validHostname(host) {
		return "", &core.ServerConfigurationError{Field: "host", Message: fmt.Sprintf("invalid host %q", host)}
	}
	return net.JoinHostPort(host, strconv.Itoa(s.opts.Port)), nil
}

func validHostname(h string) bool {
	if len(h) > 253 {
		return false
	}
	label := 0
	for i := 0; i < len(h); i++ {
		c := h[i]
		switch {
		case c == '.':
			if label == 0 {
				return false
			}
			label = 0
		case c == '-':
			if label == 0 {
				return false
			}
			label++
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
			label++
		default:
			return false
		}
		if label > 63 {
			return false
		}
	}
	return label > 0
}
