package dsl

import (
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/a2aflow/core"
)

// Builder compiles a declarative workflow description.
type Builder struct {
	taskSet

	name          string
	description   string
	version       string
	capabilities  []string
	before        []core.Hook
	after         []core.Hook
	errorHandlers map[string]core.ErrorHandler
	timeout       time.Duration
	retryPolicy   core.RetryPolicy

	names map[string]bool
	errs  []error
}

// New starts a workflow definition named name.
func New(name string) *Builder {
	b := &Builder{
		name:          name,
		errorHandlers: map[string]core.ErrorHandler{},
		names:         map[string]bool{},
	}
	b.taskSet = taskSet{b: b}
	if name == "" {
		b.fail("", "workflow name must not be empty")
	}
	return b
}

func (b *Builder) fail(task, format string, args ...any) {
	b.errs = append(b.errs, &core.DefinitionError{Workflow: b.name, Task: task, Message: fmt.Sprintf(format, args...)})
}

// Do calls fn with the builder, allowing task declarations to be grouped in
// a block while keeping the workflow-level chain intact.
func (b *Builder) Do(fn func(b *Builder)) *Builder {
	fn(b)
	return b
}

// Describe sets the human readable description.
func (b *Builder) Describe(desc string) *Builder {
	b.description = desc
	return b
}

// Version sets the workflow version advertised in discovery.
func (b *Builder) Version(v string) *Builder {
	b.version = v
	return b
}

// Capabilities overrides the advertised capability list.
func (b *Builder) Capabilities(caps ...string) *Builder {
	b.capabilities = append(b.capabilities, caps...)
	return b
}

// BeforeAll registers a hook that runs once before the task sequence.
func (b *Builder) BeforeAll(h core.Hook) *Builder {
	if h == nil {
		b.fail("", "before_all hook must not be nil")
		return b
	}
	b.before = append(b.before, h)
	return b
}

// AfterAll registers a hook that runs once after the task sequence, even
// when a task failed.
func (b *Builder) AfterAll(h core.Hook) *Builder {
	if h == nil {
		b.fail("", "after_all hook must not be nil")
		return b
	}
	b.after = append(b.after, h)
	return b
}

// OnError registers the error handler for the named task.
func (b *Builder) OnError(task string, h core.ErrorHandler) *Builder {
	if h == nil {
		b.fail(task, "on_error handler must not be nil")
		return b
	}
	if task == "" {
		task = core.GlobalErrorHandler
	}
	b.errorHandlers[task] = h
	return b
}

// OnAnyError registers the global error handler.
func (b *Builder) OnAnyError(h core.ErrorHandler) *Builder {
	return b.OnError(core.GlobalErrorHandler, h)
}

// Timeout bounds the whole run.
func (b *Builder) Timeout(d time.Duration) *Builder {
	if d < 0 {
		b.fail("", "timeout must not be negative")
		return b
	}
	b.timeout = d
	return b
}

// RetryPolicy sets the default retry behavior for tasks without explicit retries.
func (b *Builder) RetryPolicy(p core.RetryPolicy) *Builder {
	if p.MaxRetries < 0 || p.Backoff < 0 || p.MaxBackoff < 0 {
		b.fail("", "retry policy values must not be negative")
		return b
	}
	b.retryPolicy = p
	return b
}

// Build compiles the definition. It is pure: calling it twice yields two
// independent, equivalent definitions.
func (b *Builder) Build() (*core.WorkflowDefinition, error) {
	errs := append([]error(nil), b.errs...)

	for task := range b.errorHandlers {
		if task != core.GlobalErrorHandler && !b.names[task] {
			errs = append(errs, &core.DefinitionError{
				Workflow: b.name,
				Task:     task,
				Message:  "on_error references an undeclared task",
			})
		}
	}

	tasks, terrs := b.taskSet.compile(b.name)
	errs = append(errs, terrs...)

	if len(errs) == 1 {
		return nil, errs[0]
	}
	if len(errs) > 1 {
		return nil, errors.Join(errs...)
	}

	handlers := make(map[string]core.ErrorHandler, len(b.errorHandlers))
	for k, v := range b.errorHandlers {
		handlers[k] = v
	}

	return &core.WorkflowDefinition{
		Name:          b.name,
		Description:   b.description,
		Version:       b.version,
		Capabilities:  append([]string(nil), b.capabilities...),
		Tasks:         tasks,
		ErrorHandlers: handlers,
		BeforeHooks:   append([]core.Hook(nil), b.before...),
		AfterHooks:    append([]core.Hook(nil), b.after...),
		Timeout:       b.timeout,
		RetryPolicy:   b.retryPolicy,
	}, nil
}

// MustBuild is like Build but panics on definition errors. Intended for
// package-level workflow declarations.
func (b *Builder) MustBuild() *core.WorkflowDefinition {
	def, err := b.Build()
	if err != nil {
		panic(err)
	}
	return def
}
