// Package a2aflow provides a high-level façade over the task and workflow
// registries, the execution engine and the A2A protocol server. Most
// applications interact with this package by:
//  1. Creating an App via New() (the reference task handlers are registered)
//  2. Registering workflows built with the dsl package or loaded from YAML
//  3. Calling Boot to validate the manifest and freeze the registries
//  4. Serving the workflows over HTTP (Serve) or running them in-process (Invoke)
//
// Registries follow a populate-then-freeze lifecycle: every registration
// happens before Boot, after which both registries are read-only.
package a2aflow

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/trace"

	"github.com/hupe1980/a2aflow/core"
	"github.com/hupe1980/a2aflow/dsl"
	"github.com/hupe1980/a2aflow/engine"
	"github.com/hupe1980/a2aflow/logging"
	"github.com/hupe1980/a2aflow/registry"
	"github.com/hupe1980/a2aflow/server"
	"github.com/hupe1980/a2aflow/task"
)

// Version is the framework version reported by the CLI.
const Version = "0.1.0"

// ErrBooted is returned when registering after Boot.
var ErrBooted = errors.New("app already booted")

// Options configures the App instance.
type Options struct {
	// Engine configuration (concurrency, parallel fan-out, task timeouts).
	EngineConfig engine.Config

	// Server options; Workflows and Logger are managed by the App.
	Server server.Options

	// Manifest lists task types that must be registered in addition to the
	// ones the registered workflows use.
	Manifest registry.Manifest

	// SkipBuiltins disables registration of the reference task handlers.
	SkipBuiltins bool
	// Builtins configures the reference task handlers.
	Builtins []func(o *task.BuiltinOptions)

	Tracer    trace.Tracer
	Callbacks *engine.CallbackManager

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// App aggregates the registries, engine and server of one process.
type App struct {
	opts      Options
	tasks     *registry.TaskRegistry
	workflows *registry.WorkflowRegistry
	engine    *engine.Engine
	server    *server.Server

	mu      sync.Mutex
	booted  bool
	bootErr error
}

// New creates an App. Unless SkipBuiltins is set the reference handlers are
// registered immediately.
func New(optFns ...func(o *Options)) (*App, error) {
	opts := Options{
		EngineConfig: engine.DefaultConfig,
		Server:       server.DefaultOptions(),
		Logger:       logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	tasks := registry.NewTaskRegistry()
	workflows := registry.NewWorkflowRegistry()

	eng := engine.New(tasks, func(o *engine.Options) {
		o.Config = opts.EngineConfig
		o.Logger = opts.Logger
		o.Tracer = opts.Tracer
		o.Callbacks = opts.Callbacks
	})

	srvOpts := opts.Server
	srv := server.New(eng, func(o *server.Options) {
		*o = srvOpts
		o.Workflows = workflows
		o.Logger = opts.Logger
	})

	app := &App{
		opts:      opts,
		tasks:     tasks,
		workflows: workflows,
		engine:    eng,
		server:    srv,
	}

	if !opts.SkipBuiltins {
		builtinFns := append([]func(o *task.BuiltinOptions){func(o *task.BuiltinOptions) { o.Logger = opts.Logger }}, opts.Builtins...)
		if _, err := task.RegisterBuiltins(tasks, builtinFns...); err != nil {
			return nil, fmt.Errorf("register builtins: %w", err)
		}
	}

	return app, nil
}

// Tasks returns the task registry.
func (a *App) Tasks() *registry.TaskRegistry { return a.tasks }

// Workflows returns the workflow registry.
func (a *App) Workflows() *registry.WorkflowRegistry { return a.workflows }

// Engine returns the execution engine.
func (a *App) Engine() *engine.Engine { return a.engine }

// Server returns the protocol server.
func (a *App) Server() *server.Server { return a.server }

// RegisterTask binds a task implementation to a type tag.
func (a *App) RegisterTask(tag string, impl core.Task) error {
	if a.isBooted() {
		return ErrBooted
	}
	return a.tasks.Register(tag, impl)
}

// RegisterFunctions registers function tasks under their names.
func (a *App) RegisterFunctions(fns ...*task.FunctionTask) error {
	if a.isBooted() {
		return ErrBooted
	}
	return task.RegisterFunctions(a.tasks, fns...)
}

// RegisterWorkflow mounts def at path (derived from the name when empty).
func (a *App) RegisterWorkflow(def *core.WorkflowDefinition, path string) (string, error) {
	if a.isBooted() {
		return "", ErrBooted
	}
	return a.server.RegisterWorkflow(def, path)
}

// LoadWorkflows builds and registers every workflow declared in the YAML
// files. All files are processed; the errors are joined.
func (a *App) LoadWorkflows(files ...string) error {
	var errs []error

	for _, file := range files {
		loaded, err := dsl.LoadFile(file)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for _, l := range loaded {
			def, err := l.Build()
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", file, err))
				continue
			}
			if _, err := a.RegisterWorkflow(def, l.Path); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", file, err))
			}
		}
	}

	return errors.Join(errs...)
}

// Validate checks the manifest and every registered workflow against the
// task registry without freezing anything.
func (a *App) Validate() error {
	defs := make([]*core.WorkflowDefinition, 0, a.workflows.Len())
	for _, route := range a.workflows.Routes() {
		defs = append(defs, route.Definition)
	}

	manifest := a.opts.Manifest.Merge(registry.ManifestFor(defs...))
	if err := a.tasks.Validate(manifest); err != nil {
		return err
	}

	return registry.ValidateWorkflows(a.tasks, a.workflows)
}

// Boot validates the manifest and freezes both registries. It is
// idempotent; later calls return the first result.
func (a *App) Boot() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.booted {
		return a.bootErr
	}

	a.booted = true
	if err := a.Validate(); err != nil {
		a.bootErr = err
		return err
	}

	a.tasks.Freeze()
	a.workflows.Freeze()

	a.opts.Logger.Info("app.booted",
		"task_types", a.tasks.Tags(),
		"workflows", a.workflows.Len(),
	)

	return nil
}

func (a *App) isBooted() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.booted
}

// Invoke boots the app if necessary and runs the workflow named or mounted
// at nameOrPath with input.
func (a *App) Invoke(ctx context.Context, nameOrPath string, input map[string]any) (*core.WorkflowResult, error) {
	if err := a.Boot(); err != nil {
		return nil, err
	}

	route, err := a.workflows.Lookup(nameOrPath)
	if err != nil {
		return nil, err
	}

	return a.engine.Run(ctx, route.Definition, core.NewExecutionContext(input)), nil
}

// Serve boots the app and blocks serving the protocol until ctx is done or
// the server is stopped.
func (a *App) Serve(ctx context.Context) error {
	if err := a.Boot(); err != nil {
		return err
	}
	return a.server.Start(ctx)
}

// Stop stops the server.
func (a *App) Stop(ctx context.Context) error {
	return a.server.Stop(ctx)
}
