package task

import (
	"errors"
	"fmt"

	"github.com/hupe1980/a2aflow/core"
	"github.com/hupe1980/a2aflow/internal/util"
)

// Error codes reported by the reference handlers.
const (
	CodeValidation = "VALIDATION_ERROR"
	CodeConfig     = "CONFIG_ERROR"
	CodeExecution  = "EXECUTION_ERROR"
)

// ValidationError describes an argument that failed schema validation.
type ValidationError = util.ValidationError

// Error is a failure reported by a task handler.
type Error struct {
	Task    string `json:"task"`
	Type    string `json:"type"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Details any    `json:"details,omitempty"`
	Err     error  `json:"-"`
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("task error [%s] in %s: %s", e.Code, e.Task, e.Message)
	}
	return fmt.Sprintf("task error in %s: %s", e.Task, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// NewError creates an Error for the task of inv.
func NewError(inv *core.Invocation, code, format string, args ...any) *Error {
	name, typ := specOf(inv)
	return &Error{
		Task:    name,
		Type:    typ,
		Message: fmt.Sprintf(format, args...),
		Code:    code,
	}
}

// configError reports a missing or mistyped task configuration.
func configError(inv *core.Invocation, format string, args ...any) *Error {
	return NewError(inv, CodeConfig, format, args...)
}

// executionError wraps err unless it already is an *Error.
func executionError(inv *core.Invocation, err error) error {
	var te *Error
	if errors.As(err, &te) {
		return err
	}
	name, typ := specOf(inv)
	return &Error{
		Task:    name,
		Type:    typ,
		Message: err.Error(),
		Code:    CodeExecution,
		Err:     err,
	}
}

func specOf(inv *core.Invocation) (string, string) {
	if inv == nil || inv.Spec == nil {
		return "", ""
	}
	return inv.Spec.Name, inv.Spec.Type
}

// configAs returns the typed configuration of inv's spec.
func configAs[T core.TaskConfig](inv *core.Invocation) (T, error) {
	var zero T
	if inv == nil || inv.Spec == nil || inv.Spec.Config == nil {
		return zero, configError(inv, "task has no configuration")
	}
	cfg, ok := inv.Spec.Config.(T)
	if !ok {
		return zero, configError(inv, "unexpected configuration %T", inv.Spec.Config)
	}
	return cfg, nil
}
