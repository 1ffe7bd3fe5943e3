package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hupe1980/a2aflow/core"
	"github.com/hupe1980/a2aflow/internal/util"
	"github.com/hupe1980/a2aflow/logging"
	"github.com/hupe1980/a2aflow/registry"
)

// TracerName is the instrumentation scope used for engine spans.
const TracerName = "github.com/hupe1980/a2aflow/engine"

var (
	// ErrTaskTimeout is wrapped by errors for attempts exceeding their timeout.
	ErrTaskTimeout = errors.New("task timed out")

	// ErrOutputCollision is wrapped when two parallel branches produce the same key.
	ErrOutputCollision = errors.New("parallel output collision")

	// ErrRunNotFound is returned by Cancel for unknown run ids.
	ErrRunNotFound = errors.New("run not found")
)

// Config defines tuning parameters for the Engine.
type Config struct {
	// MaxConcurrentRuns limits the number of runs executing simultaneously.
	// Zero means unlimited.
	MaxConcurrentRuns int

	// MaxParallelBranches limits the goroutines used by one parallel group.
	// Zero means one goroutine per branch.
	MaxParallelBranches int

	// DefaultTaskTimeout bounds each attempt of tasks without their own
	// timeout. Zero means no bound.
	DefaultTaskTimeout time.Duration
}

// DefaultConfig provides the default engine configuration.
var DefaultConfig = Config{
	MaxConcurrentRuns:   0,
	MaxParallelBranches: 0,
	DefaultTaskTimeout:  0,
}

// Options configures an Engine instance.
type Options struct {
	// Config contains operational parameters. Defaults to DefaultConfig.
	Config Config

	// Logger provides structured logging. Defaults to NoOpLogger.
	Logger logging.Logger

	// Tracer creates workflow and task spans. Defaults to the global
	// OpenTelemetry tracer, which is a no-op unless a provider is installed.
	Tracer trace.Tracer

	// Callbacks receives lifecycle callbacks. Optional.
	Callbacks *CallbackManager
}

// Stats is a snapshot of engine counters.
type Stats struct {
	Runs      int64 `json:"runs"`
	Succeeded int64 `json:"succeeded"`
	Failed    int64 `json:"failed"`
	Active    int64 `json:"active"`
}

// Engine interprets workflow definitions against a per-run ExecutionContext.
//
// The engine resolves task implementations through the task registry and
// applies conditions, retries, timeouts, hooks and error handlers. It never
// returns an error from Run: every failure is converted into a
// WorkflowResult carrying the partial context and all recorded task results.
//
// Example:
//
//	tasks := registry.NewTaskRegistry()
//	tasks.MustRegister(core.TypeDirectHandler, task.NewDirectHandler())
//
//	eng := engine.New(tasks, func(o *engine.Options) {
//	    o.Logger = logger
//	})
//
//	res := eng.Run(ctx, def, core.NewExecutionContext(map[string]any{"question": "hi"}))
//	if !res.Succeeded() {
//	    return res.Err
//	}
type Engine struct {
	tasks     *registry.TaskRegistry
	logger    logging.Logger
	tracer    trace.Tracer
	callbacks *CallbackManager
	config    Config

	slots chan struct{}

	active   map[string]context.CancelFunc
	activeMu sync.Mutex

	runs, succeeded, failed, running atomic.Int64
}

// New creates an Engine resolving task implementations from tasks.
func New(tasks *registry.TaskRegistry, optFns ...func(o *Options)) *Engine {
	opts := Options{
		Config: DefaultConfig,
		Logger: logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer(TracerName)
	}
	if tasks == nil {
		tasks = registry.NewTaskRegistry()
	}

	e := &Engine{
		tasks:     tasks,
		logger:    opts.Logger,
		tracer:    opts.Tracer,
		callbacks: opts.Callbacks,
		config:    opts.Config,
		active:    make(map[string]context.CancelFunc),
	}
	if opts.Config.MaxConcurrentRuns > 0 {
		e.slots = make(chan struct{}, opts.Config.MaxConcurrentRuns)
	}
	return e
}

// Tasks returns the task registry used by the engine.
func (e *Engine) Tasks() *registry.TaskRegistry { return e.tasks }

// RunOptions configures a single run.
type RunOptions struct {
	// ID overrides the generated run id.
	ID string
}

// Run executes def against ec. The context is mutated in place; the result's
// Output is a snapshot of it after the run.
func (e *Engine) Run(ctx context.Context, def *core.WorkflowDefinition, ec *core.ExecutionContext, optFns ...func(o *RunOptions)) *core.WorkflowResult {
	ro := RunOptions{}
	for _, fn := range optFns {
		fn(&ro)
	}
	if ro.ID == "" {
		ro.ID = util.NewID()
	}
	if ec == nil {
		ec = core.NewExecutionContext(nil)
	}

	start := time.Now()
	e.runs.Add(1)
	e.running.Add(1)
	defer e.running.Add(-1)

	rs := &runState{
		def:    def,
		runID:  ro.ID,
		ec:     ec,
		logger: e.runLogger(def.Name, ro.ID),
		result: &core.WorkflowResult{ID: ro.ID, Workflow: def.Name},
	}

	ctx, span := e.tracer.Start(ctx, "a2aflow.workflow", trace.WithAttributes(
		attribute.String("a2aflow.workflow", def.Name),
		attribute.String("a2aflow.run_id", ro.ID),
		attribute.Int("a2aflow.task_count", len(def.Tasks)),
	))
	defer span.End()

	rs.logger.Info("engine.workflow.start", "task_count", len(def.Tasks))

	err := e.execute(ctx, rs)

	res := rs.result
	res.Output = ec.Snapshot()
	res.Duration = time.Since(start)
	res.DurationMS = res.Duration.Milliseconds()
	if err != nil {
		res.Status = core.StatusFailure
		res.Err = err
		res.Error = err.Error()
		e.failed.Add(1)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		res.Status = core.StatusSuccess
		e.succeeded.Add(1)
		span.SetStatus(codes.Ok, "")
	}

	if fl, ok := rs.logger.(*logging.FlowLogger); ok {
		fl.LogWorkflowExecution(def.Name, len(res.Tasks), res.Duration, err)
	} else if err != nil {
		rs.logger.Error("engine.workflow.failed", "duration", res.Duration, "error", err.Error())
	} else {
		rs.logger.Info("engine.workflow.completed", "duration", res.Duration)
	}

	if cbErr := e.callbacks.ExecuteCallbacks(context.WithoutCancel(ctx), CallbackAfterWorkflow, &CallbackContext{
		Workflow: def.Name, RunID: ro.ID, Context: ec, Result: res, Err: err,
	}); cbErr != nil {
		rs.logger.Warn("engine.callback.failed", "callback", CallbackAfterWorkflow, "error", cbErr.Error())
	}

	return res
}

// execute runs hooks and tasks. After hooks run even when the sequence failed
// or the run context is done.
func (e *Engine) execute(ctx context.Context, rs *runState) error {
	if err := e.acquire(ctx); err != nil {
		return fmt.Errorf("waiting for a run slot: %w", err)
	}
	defer e.release()

	var (
		runCtx context.Context
		cancel context.CancelFunc
	)
	if rs.def.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, rs.def.Timeout)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	e.track(rs.runID, cancel)
	defer e.untrack(rs.runID)

	err := e.callbacks.ExecuteCallbacks(runCtx, CallbackBeforeWorkflow, &CallbackContext{
		Workflow: rs.def.Name, RunID: rs.runID, Context: rs.ec,
	})
	if err == nil {
		err = e.runHooks(runCtx, rs, "before_all", rs.def.BeforeHooks)
	}
	if err == nil {
		err = e.runSequence(runCtx, rs)
	}

	if herr := e.runHooks(context.WithoutCancel(ctx), rs, "after_all", rs.def.AfterHooks); herr != nil && err == nil {
		err = herr
	}

	return err
}

func (e *Engine) runHooks(ctx context.Context, rs *runState, phase string, hooks []core.Hook) error {
	for i, h := range hooks {
		if err := safeHook(ctx, h, rs.ec); err != nil {
			rs.logger.Error("engine.hook.failed", "phase", phase, "index", i, "error", err.Error())
			return fmt.Errorf("%s hook %d: %w", phase, i, err)
		}
	}
	return nil
}

func (e *Engine) runSequence(ctx context.Context, rs *runState) error {
	for i := range rs.def.Tasks {
		spec := &rs.def.Tasks[i]

		if err := ctx.Err(); err != nil {
			return runContextError(rs.def, err)
		}

		run, err := safeCondition(spec, rs.ec)
		if err == nil && !run {
			rs.logger.Debug("engine.task.skipped", "task", spec.Name)
			rs.record(core.TaskResult{Name: spec.Name, Type: spec.Type, Status: core.StatusSkipped})
			continue
		}

		var out map[string]any
		var tr core.TaskResult
		switch {
		case err != nil:
			tr = core.TaskResult{Name: spec.Name, Type: spec.Type, Status: core.StatusFailure}
			err = &core.TaskExecutionError{Task: spec.Name, Type: spec.Type, Err: err}
		case spec.IsParallel():
			tr, out, err = e.runParallel(ctx, rs, spec)
		default:
			tr, out, err = e.runTask(ctx, rs, spec, rs.ec)
		}

		if err == nil {
			rs.ec.Merge(out)
			rs.record(tr)
			continue
		}

		recovered, ferr := e.handleFailure(ctx, rs, spec, err)
		tr.Status = core.StatusFailure
		tr.Error = err.Error()
		tr.Recovered = recovered
		rs.record(tr)
		if !recovered {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return errors.Join(ferr, runContextError(rs.def, ctxErr))
			}
			return ferr
		}
	}
	return nil
}

// handleFailure consults the task's error handler, else the global handler.
func (e *Engine) handleFailure(ctx context.Context, rs *runState, spec *core.TaskSpec, err error) (bool, error) {
	var texErr *core.TaskExecutionError
	if !errors.As(err, &texErr) {
		texErr = &core.TaskExecutionError{Task: spec.Name, Type: spec.Type, Err: err}
	}

	h, ok := rs.def.ErrorHandlerFor(spec.Name)
	if !ok {
		return false, texErr
	}

	herr := safeErrorHandler(ctx, h, rs.ec, texErr)
	if herr == nil {
		rs.logger.Warn("engine.task.recovered", "task", spec.Name, "error", texErr.Error())
		return true, nil
	}
	if errors.Is(herr, texErr) {
		return false, herr
	}
	return false, errors.Join(texErr, herr)
}

// runTask executes all attempts of a single task against the given context.
// The returned map is already filtered to the declared outputs.
func (e *Engine) runTask(ctx context.Context, rs *runState, spec *core.TaskSpec, ec *core.ExecutionContext) (core.TaskResult, map[string]any, error) {
	start := time.Now()
	tr := core.TaskResult{Name: spec.Name, Type: spec.Type}

	ctx, span := e.tracer.Start(ctx, "a2aflow.task", trace.WithAttributes(
		attribute.String("a2aflow.task", spec.Name),
		attribute.String("a2aflow.task_type", spec.Type),
	))
	defer span.End()

	finish := func(out map[string]any, err error) (core.TaskResult, map[string]any, error) {
		tr.Duration = time.Since(start)
		tr.DurationMS = tr.Duration.Milliseconds()
		span.SetAttributes(attribute.Int("a2aflow.attempts", tr.Attempts))

		cbCtx := &CallbackContext{Workflow: rs.def.Name, RunID: rs.runID, Context: ec, Task: spec, TaskResult: &tr, Err: err}
		if err != nil {
			tr.Status = core.StatusFailure
			tr.Error = err.Error()
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			if cbErr := e.callbacks.ExecuteCallbacks(ctx, CallbackOnTaskError, cbCtx); cbErr != nil {
				rs.logger.Warn("engine.callback.failed", "callback", CallbackOnTaskError, "task", spec.Name, "error", cbErr.Error())
			}
		} else {
			tr.Status = core.StatusSuccess
		}
		if cbErr := e.callbacks.ExecuteCallbacks(ctx, CallbackAfterTask, cbCtx); cbErr != nil {
			rs.logger.Warn("engine.callback.failed", "callback", CallbackAfterTask, "task", spec.Name, "error", cbErr.Error())
		}

		if fl, ok := rs.logger.(*logging.FlowLogger); ok {
			fl.LogTaskExecution(spec.Name, spec.Type, tr.Attempts, tr.Duration, err)
		}
		return tr, out, err
	}

	if err := e.callbacks.ExecuteCallbacks(ctx, CallbackBeforeTask, &CallbackContext{
		Workflow: rs.def.Name, RunID: rs.runID, Context: ec, Task: spec,
	}); err != nil {
		return finish(nil, &core.TaskExecutionError{Task: spec.Name, Type: spec.Type, Err: err})
	}

	impl, err := e.tasks.Get(spec.Type)
	if err != nil {
		return finish(nil, &core.TaskExecutionError{Task: spec.Name, Type: spec.Type, Err: err})
	}

	retries := spec.RetryCount(rs.def.RetryPolicy)
	timeout := spec.Timeout
	if timeout == 0 {
		timeout = e.config.DefaultTaskTimeout
	}

	var out map[string]any
	for attempt := 1; attempt <= retries+1; attempt++ {
		if attempt > 1 {
			delay := rs.def.RetryPolicy.Delay(attempt - 1)
			rs.logger.Debug("engine.task.retry", "task", spec.Name, "attempt", attempt, "delay", delay, "error", err.Error())
			if werr := sleep(ctx, delay); werr != nil {
				break
			}
		}

		tr.Attempts = attempt
		rs.logger.Debug("engine.task.start", "task", spec.Name, "type", spec.Type, "attempt", attempt)

		out, err = e.attempt(ctx, rs, impl, spec, ec, attempt, timeout)
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			break
		}
	}
	if err != nil {
		return finish(nil, &core.TaskExecutionError{Task: spec.Name, Type: spec.Type, Attempts: tr.Attempts, Err: err})
	}

	return finish(selectOutputs(spec, out), nil)
}

type outcome struct {
	out map[string]any
	err error
}

// attempt runs one attempt on its own goroutine. A handler that ignores
// cancellation is abandoned when the timeout elapses.
func (e *Engine) attempt(ctx context.Context, rs *runState, impl core.Task, spec *core.TaskSpec, ec *core.ExecutionContext, attempt int, timeout time.Duration) (map[string]any, error) {
	var (
		actx   context.Context
		cancel context.CancelFunc
	)
	if timeout > 0 {
		actx, cancel = context.WithTimeout(ctx, timeout)
	} else {
		actx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	var input *core.ExecutionContext
	if len(spec.Inputs) > 0 {
		input = ec.Restrict(spec.Inputs...)
	} else {
		input = ec.Clone()
	}
	inv := core.NewInvocation(rs.def.Name, rs.runID, spec, input, attempt, rs.logger)

	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("task panicked: %v", r)}
			}
		}()

		out, err := impl.Execute(actx, inv)
		if err == nil && spec.Process != nil {
			out, err = spec.Process(input, out)
		}
		done <- outcome{out: out, err: err}
	}()

	select {
	case o := <-done:
		return o.out, o.err
	case <-actx.Done():
		if errors.Is(actx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			rs.logger.Warn("engine.task.timeout", "task", spec.Name, "attempt", attempt, "timeout", timeout)
			return nil, fmt.Errorf("%w after %s", ErrTaskTimeout, timeout)
		}
		return nil, actx.Err()
	}
}

// Cancel cancels an in-flight run.
func (e *Engine) Cancel(runID string) error {
	e.activeMu.Lock()
	cancel, ok := e.active[runID]
	e.activeMu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}

	cancel()
	return nil
}

// Stats returns a snapshot of the engine counters.
func (e *Engine) Stats() Stats {
	return Stats{
		Runs:      e.runs.Load(),
		Succeeded: e.succeeded.Load(),
		Failed:    e.failed.Load(),
		Active:    e.running.Load(),
	}
}

func (e *Engine) acquire(ctx context.Context) error {
	if e.slots == nil {
		return nil
	}
	select {
	case e.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) release() {
	if e.slots != nil {
		<-e.slots
	}
}

func (e *Engine) track(runID string, cancel context.CancelFunc) {
	e.activeMu.Lock()
	e.active[runID] = cancel
	e.activeMu.Unlock()
}

func (e *Engine) untrack(runID string) {
	e.activeMu.Lock()
	delete(e.active, runID)
	e.activeMu.Unlock()
}

func (e *Engine) runLogger(workflow, runID string) logging.Logger {
	if fl, ok := e.logger.(*logging.FlowLogger); ok {
		return fl.WithComponent("engine").WithRun(workflow, runID)
	}
	return e.logger
}

type runState struct {
	def    *core.WorkflowDefinition
	runID  string
	ec     *core.ExecutionContext
	logger logging.Logger

	mu     sync.Mutex
	result *core.WorkflowResult
}

func (rs *runState) record(tr core.TaskResult) {
	rs.mu.Lock()
	rs.result.Tasks = append(rs.result.Tasks, tr)
	rs.mu.Unlock()
}

func selectOutputs(spec *core.TaskSpec, out map[string]any) map[string]any {
	if len(spec.Outputs) == 0 {
		return out
	}
	selected := make(map[string]any, len(spec.Outputs))
	for _, key := range spec.Outputs {
		if v, ok := out[key]; ok {
			selected[key] = v
		}
	}
	return selected
}

func runContextError(def *core.WorkflowDefinition, err error) error {
	if errors.Is(err, context.DeadlineExceeded) && def.Timeout > 0 {
		return fmt.Errorf("workflow %s exceeded its timeout of %s: %w", def.Name, def.Timeout, err)
	}
	return fmt.Errorf("workflow %s cancelled: %w", def.Name, err)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func safeCondition(spec *core.TaskSpec, ec *core.ExecutionContext) (run bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("condition panicked: %v", r)
		}
	}()
	return spec.ShouldRun(ec), nil
}

func safeHook(ctx context.Context, h core.Hook, ec *core.ExecutionContext) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("hook panicked: %v", r)
		}
	}()
	return h(ctx, ec)
}

func safeErrorHandler(ctx context.Context, h core.ErrorHandler, ec *core.ExecutionContext, texErr *core.TaskExecutionError) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("error handler panicked: %v", r)
		}
	}()
	return h(ctx, ec, texErr)
}
