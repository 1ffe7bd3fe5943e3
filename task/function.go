package task

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/a2aflow/core"
	"github.com/hupe1980/a2aflow/internal/util"
)

// Function is the body of a FunctionTask. args holds the validated context
// snapshot merged with the task's resolved options.
type Function func(ctx context.Context, inv *core.Invocation, args map[string]any) (map[string]any, error)

// FunctionTask exposes a plain Go function as a task type whose arguments are
// validated against a minimal JSON schema before every call.
//
// Error semantics:
//
//	*Error returned by fn      -> forwarded unchanged
//	schema mismatch            -> *Error{Code: VALIDATION_ERROR}
//	any other error            -> *Error{Code: EXECUTION_ERROR}
//
// A FunctionTask holds no mutable state and is safe for concurrent use.
type FunctionTask struct {
	name        string
	description string
	parameters  map[string]any
	fn          Function
}

// NewFunctionTask constructs a FunctionTask from an explicit schema.
//
//	sum := task.NewFunctionTask(
//	  "sum",
//	  "Add a and b",
//	  map[string]any{
//	    "type": "object",
//	    "properties": map[string]any{
//	      "a": map[string]any{"type": "number"},
//	      "b": map[string]any{"type": "number"},
//	    },
//	    "required": []string{"a", "b"},
//	  },
//	  func(ctx context.Context, inv *core.Invocation, args map[string]any) (map[string]any, error) {
//	    return map[string]any{"sum": args["a"].(float64) + args["b"].(float64)}, nil
//	  },
//	)
func NewFunctionTask(name, description string, parameters map[string]any, fn Function) *FunctionTask {
	return &FunctionTask{
		name:        name,
		description: description,
		parameters:  parameters,
		fn:          fn,
	}
}

// NewFunctionTaskFromStruct derives the schema from a struct's json tags.
func NewFunctionTaskFromStruct(name, description string, structType any, fn Function) *FunctionTask {
	return NewFunctionTask(name, description, util.CreateSchema(structType), fn)
}

// Name returns the task type tag the function is registered under.
func (t *FunctionTask) Name() string { return t.name }

// Description returns the human readable description.
func (t *FunctionTask) Description() string { return t.description }

// Parameters returns the argument schema.
func (t *FunctionTask) Parameters() map[string]any { return t.parameters }

// Execute implements core.Task.
func (t *FunctionTask) Execute(ctx context.Context, inv *core.Invocation) (map[string]any, error) {
	start := time.Now()

	args := inv.Context.Snapshot()
	if inv.Spec != nil && inv.Spec.Config != nil {
		for k, v := range inv.Spec.Config.Extra().Resolve(inv.Context) {
			args[k] = v
		}
	}

	inv.LogDebug("task.function.start", "function", t.name, "attempt", inv.Attempt)

	if err := util.ValidateParameters(args, t.parameters); err != nil {
		inv.LogWarn("task.function.validation_failed", "function", t.name, "error", err.Error())

		te := NewError(inv, CodeValidation, "parameter validation failed: %v", err)
		te.Details = err
		te.Err = err
		return nil, te
	}

	out, err := t.fn(ctx, inv, args)
	if err != nil {
		var te *Error
		if errors.As(err, &te) {
			inv.LogError("task.function.error", "function", t.name, "error", te.Message)
			return nil, err
		}

		inv.LogError("task.function.error", "function", t.name, "error", err.Error())
		return nil, executionError(inv, fmt.Errorf("%s: %w", t.name, err))
	}

	inv.LogInfo("task.function.success", "function", t.name, "duration_ms", time.Since(start).Milliseconds())

	return out, nil
}
