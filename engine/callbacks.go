package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/a2aflow/core"
)

// CallbackType defines the lifecycle points where callbacks are executed.
//
// Callbacks hook into the engine's execution pipeline without modifying
// workflow definitions:
//   - BeforeWorkflow/AfterWorkflow: around a complete run
//   - BeforeTask/AfterTask: around each task that passes its condition
//   - OnTaskError: when a task failed after exhausting its attempts
//
// Callbacks run synchronously. An error returned from a before_* callback
// fails the associated run or task; errors from the remaining types are
// logged and otherwise ignored.
type CallbackType string

const (
	// CallbackBeforeWorkflow is triggered after the run context is prepared
	// and before the before_all hooks.
	CallbackBeforeWorkflow CallbackType = "before_workflow"

	// CallbackAfterWorkflow is triggered once the result is final.
	CallbackAfterWorkflow CallbackType = "after_workflow"

	// CallbackBeforeTask is triggered before the first attempt of a task.
	CallbackBeforeTask CallbackType = "before_task"

	// CallbackAfterTask is triggered after a task finished, whatever its status.
	CallbackAfterTask CallbackType = "after_task"

	// CallbackOnTaskError is triggered when a task failed, before error
	// handlers are consulted.
	CallbackOnTaskError CallbackType = "on_task_error"
)

// CallbackContext carries the information available to a callback.
type CallbackContext struct {
	// Workflow is the name of the running workflow.
	Workflow string

	// RunID identifies the run.
	RunID string

	// Context is the run's execution context. Callbacks must treat it as
	// read-only while parallel branches are running.
	Context *core.ExecutionContext

	// Task is the task being executed. Nil for workflow level callbacks.
	Task *core.TaskSpec

	// TaskResult is set for after_task and on_task_error callbacks.
	TaskResult *core.TaskResult

	// Result is set for after_workflow callbacks.
	Result *core.WorkflowResult

	// Err is the failure that triggered on_task_error, or the run error
	// for after_workflow.
	Err error

	// CallbackType indicates which callback type triggered this execution.
	CallbackType CallbackType

	// Metadata provides extensible storage for custom callback data.
	Metadata map[string]any
}

// Callback defines the interface for execution lifecycle hooks.
//
// Implementations should be fast and safe for concurrent use: task
// callbacks of parallel branches run on separate goroutines.
type Callback interface {
	// Type returns the callback type this implementation handles.
	Type() CallbackType

	// Execute performs the callback logic with the provided context.
	Execute(ctx context.Context, callbackCtx *CallbackContext) error
}

// FunctionCallback wraps a function as a callback implementation.
//
// Example:
//
//	cb := NewFunctionCallback(
//	    CallbackBeforeTask,
//	    func(ctx context.Context, callbackCtx *CallbackContext) error {
//	        log.Printf("starting task: %s", callbackCtx.Task.Name)
//	        return nil
//	    },
//	)
type FunctionCallback struct {
	callbackType CallbackType
	fn           func(ctx context.Context, callbackCtx *CallbackContext) error
}

// NewFunctionCallback creates a new function-based callback.
func NewFunctionCallback(
	callbackType CallbackType,
	fn func(ctx context.Context, callbackCtx *CallbackContext) error,
) *FunctionCallback {
	return &FunctionCallback{
		callbackType: callbackType,
		fn:           fn,
	}
}

// Type returns the callback type this function handles.
func (c *FunctionCallback) Type() CallbackType {
	return c.callbackType
}

// Execute calls the wrapped function with the provided context.
func (c *FunctionCallback) Execute(ctx context.Context, callbackCtx *CallbackContext) error {
	return c.fn(ctx, callbackCtx)
}

// CallbackManager orchestrates callback execution throughout the engine lifecycle.
//
// Callbacks are executed in registration order, and any callback returning
// an error stops the remaining callbacks of that type. Registration and
// execution are safe for concurrent use.
type CallbackManager struct {
	mu        sync.RWMutex
	callbacks map[CallbackType][]Callback
}

// NewCallbackManager creates a new callback manager instance.
func NewCallbackManager() *CallbackManager {
	return &CallbackManager{
		callbacks: make(map[CallbackType][]Callback),
	}
}

// RegisterCallback adds a callback to the manager for its type.
func (cm *CallbackManager) RegisterCallback(callback Callback) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	callbackType := callback.Type()
	cm.callbacks[callbackType] = append(cm.callbacks[callbackType], callback)
}

// ExecuteCallbacks executes all registered callbacks for the specified type.
//
// Returns the first error returned by any callback, or nil if all succeed.
// A panicking callback is reported as an error.
func (cm *CallbackManager) ExecuteCallbacks(
	ctx context.Context,
	callbackType CallbackType,
	callbackCtx *CallbackContext,
) (err error) {
	if cm == nil {
		return nil
	}

	cm.mu.RLock()
	callbacks := append([]Callback(nil), cm.callbacks[callbackType]...)
	cm.mu.RUnlock()

	if len(callbacks) == 0 {
		return nil
	}

	callbackCtx.CallbackType = callbackType

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s callback panicked: %v", callbackType, r)
		}
	}()

	for _, callback := range callbacks {
		if err := callback.Execute(ctx, callbackCtx); err != nil {
			return err
		}
	}

	return nil
}

// LoggingCallback forwards lifecycle events to a logging function.
//
// Example:
//
//	logger := func(message string) {
//	    log.Printf("[ENGINE] %s", message)
//	}
//	callback := NewLoggingCallback(CallbackAfterTask, logger)
type LoggingCallback struct {
	callbackType CallbackType
	logger       func(message string)
}

// NewLoggingCallback creates a new logging callback.
func NewLoggingCallback(callbackType CallbackType, logger func(message string)) *LoggingCallback {
	return &LoggingCallback{
		callbackType: callbackType,
		logger:       logger,
	}
}

// Type returns the callback type this logger handles.
func (c *LoggingCallback) Type() CallbackType {
	return c.callbackType
}

// Execute logs the lifecycle event. Without a logger function the callback
// silently succeeds.
func (c *LoggingCallback) Execute(_ context.Context, callbackCtx *CallbackContext) error {
	if c.logger == nil {
		return nil
	}

	message := fmt.Sprintf("[%s] workflow=%s run=%s", c.callbackType, callbackCtx.Workflow, callbackCtx.RunID)
	if callbackCtx.Task != nil {
		message += fmt.Sprintf(" task=%s", callbackCtx.Task.Name)
	}
	if callbackCtx.TaskResult != nil {
		message += fmt.Sprintf(" status=%s", callbackCtx.TaskResult.Status)
	}
	if callbackCtx.Err != nil {
		message += fmt.Sprintf(" error=%v", callbackCtx.Err)
	}
	c.logger(message)

	return nil
}

// OutputValidationCallback validates the context after each task.
//
// The validator receives a snapshot of the run context and can return an
// error to reject it. Registered as an after_task callback its error is
// logged; to fail the run, call the validator from a task's Process function
// instead.
type OutputValidationCallback struct {
	validator func(snapshot map[string]any) error
}

// NewOutputValidationCallback creates a new output validation callback.
func NewOutputValidationCallback(validator func(snapshot map[string]any) error) *OutputValidationCallback {
	return &OutputValidationCallback{
		validator: validator,
	}
}

// Type returns the callback type (always CallbackAfterTask).
func (c *OutputValidationCallback) Type() CallbackType {
	return CallbackAfterTask
}

// Execute runs the validator against the current context.
func (c *OutputValidationCallback) Execute(_ context.Context, callbackCtx *CallbackContext) error {
	if c.validator != nil && callbackCtx.Context != nil {
		return c.validator(callbackCtx.Context.Snapshot())
	}
	return nil
}
