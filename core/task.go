package core

import (
	"context"
	"maps"
	"time"

	"github.com/hupe1980/a2aflow/logging"
)

// Well-known task type tags.
const (
	TypeDirectHandler = "direct_handler"
	TypeChat          = "chat"
	TypeDatabaseFetch = "database_fetch"
	TypeDatabaseQuery = "database_query"
	TypeEmail         = "email"
	TypeImage         = "image_generation"
	TypeUpload        = "file_upload"
	TypeSearch        = "web_search"
	TypeStreamUpdate  = "stream_update"
	TypeAgentCall     = "agent_call"
	TypeScript        = "lua_script"
	TypeParallel      = "parallel"
)

// Task is the uniform contract implemented by every task-type handler.
//
// Execute runs one attempt of a task. The returned map holds the produced
// values; the engine decides which of them are merged into the run's
// ExecutionContext. Implementations should honor ctx cancellation; a handler
// that blocks without observing ctx is abandoned (not interrupted) when its
// timeout elapses.
type Task interface {
	Execute(ctx context.Context, inv *Invocation) (map[string]any, error)
}

// TaskFunc adapts a plain function to the Task interface.
type TaskFunc func(ctx context.Context, inv *Invocation) (map[string]any, error)

// Execute implements Task.
func (f TaskFunc) Execute(ctx context.Context, inv *Invocation) (map[string]any, error) {
	return f(ctx, inv)
}

// Invocation is the per-attempt handle passed to a Task.
type Invocation struct {
	Workflow string
	RunID    string
	Spec     *TaskSpec
	// Context is a copy of the run context, restricted to the task's declared
	// inputs when inputs are declared.
	Context *ExecutionContext
	Attempt int

	*loggerAdapter
}

// NewInvocation constructs an Invocation.
func NewInvocation(workflow, runID string, spec *TaskSpec, ec *ExecutionContext, attempt int, logger logging.Logger) *Invocation {
	return &Invocation{
		Workflow:      workflow,
		RunID:         runID,
		Spec:          spec,
		Context:       ec,
		Attempt:       attempt,
		loggerAdapter: newLoggerAdapter(logger),
	}
}

// Condition decides whether a task runs for the current context.
type Condition func(ec *ExecutionContext) bool

// ProcessFunc post-processes the map produced by a task before it is merged.
type ProcessFunc func(ec *ExecutionContext, out map[string]any) (map[string]any, error)

// TaskSpec is one declarative workflow step. It is produced once by the DSL
// builder and treated as immutable afterwards.
type TaskSpec struct {
	Name      string
	Type      string
	Config    TaskConfig
	Inputs    []string
	Outputs   []string
	Condition Condition
	Retries   int
	// RetriesSet tells an explicit zero apart from an undeclared count.
	RetriesSet  bool
	Timeout     time.Duration
	Description string
	Tags        []string
	Metadata    map[string]any
	Process     ProcessFunc
	// Branches holds the concurrently executed members of a parallel group.
	Branches []TaskSpec
}

// ShouldRun evaluates the condition; a nil condition always runs.
func (s *TaskSpec) ShouldRun(ec *ExecutionContext) bool {
	return s.Condition == nil || s.Condition(ec)
}

// RetryCount returns the declared retries, or the policy's when the task
// declares none.
func (s *TaskSpec) RetryCount(policy RetryPolicy) int {
	if s.RetriesSet {
		return s.Retries
	}
	return policy.MaxRetries
}

// IsParallel reports whether the task is a parallel group.
func (s *TaskSpec) IsParallel() bool { return s.Type == TypeParallel }

// Clone returns a deep copy of the task's slices, maps, configuration and branches.
// Callbacks are shared.
func (s TaskSpec) Clone() TaskSpec {
	cp := s
	cp.Inputs = append([]string(nil), s.Inputs...)
	cp.Outputs = append([]string(nil), s.Outputs...)
	cp.Tags = append([]string(nil), s.Tags...)
	if s.Metadata != nil {
		cp.Metadata = maps.Clone(s.Metadata)
	}
	if s.Config != nil {
		cp.Config = s.Config.Clone()
	}
	if s.Branches != nil {
		cp.Branches = make([]TaskSpec, len(s.Branches))
		for i, b := range s.Branches {
			cp.Branches[i] = b.Clone()
		}
	}
	return cp
}
