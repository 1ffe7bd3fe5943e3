package core

import (
	"errors"
	"fmt"
)

// Stable error codes surfaced in logs and HTTP error bodies.
const (
	CodeDefinition          = "DEFINITION_ERROR"
	CodeRegistryLookup      = "REGISTRY_LOOKUP_ERROR"
	CodeTaskExecution       = "TASK_EXECUTION_ERROR"
	CodeServerConfiguration = "SERVER_CONFIGURATION_ERROR"
	CodeInternal            = "INTERNAL_ERROR"
)

// Coder is implemented by errors carrying a stable code.
type Coder interface {
	Code() string
}

// ErrorCode returns the code of the first Coder in err's chain, or
// CodeInternal.
func ErrorCode(err error) string {
	var c Coder
	if errors.As(err, &c) {
		return c.Code()
	}
	return CodeInternal
}

// DefinitionError reports DSL misuse. It is raised at definition time and
// never reaches a request.
type DefinitionError struct {
	Workflow string
	Task     string
	Message  string
}

func (e *DefinitionError) Error() string {
	switch {
	case e.Workflow != "" && e.Task != "":
		return fmt.Sprintf("definition error in workflow %s, task %s: %s", e.Workflow, e.Task, e.Message)
	case e.Workflow != "":
		return fmt.Sprintf("definition error in workflow %s: %s", e.Workflow, e.Message)
	default:
		return fmt.Sprintf("definition error: %s", e.Message)
	}
}

// Code implements Coder.
func (e *DefinitionError) Code() string { return CodeDefinition }

// RegistryLookupError reports an unregistered task type or an unresolved
// workflow route.
type RegistryLookupError struct {
	Kind string // "task type" or "workflow"
	Key  string
}

func (e *RegistryLookupError) Error() string {
	return fmt.Sprintf("%s %q is not registered", e.Kind, e.Key)
}

// Code implements Coder.
func (e *RegistryLookupError) Code() string { return CodeRegistryLookup }

// TaskExecutionError reports a task that failed after all attempts.
type TaskExecutionError struct {
	Task     string
	Type     string
	Attempts int
	Err      error
}

func (e *TaskExecutionError) Error() string {
	return fmt.Sprintf("task %s (%s) failed after %d attempt(s): %v", e.Task, e.Type, e.Attempts, e.Err)
}

// Unwrap returns the underlying cause.
func (e *TaskExecutionError) Unwrap() error { return e.Err }

// Code implements Coder.
func (e *TaskExecutionError) Code() string { return CodeTaskExecution }

// ServerConfigurationError reports bad TLS material or an invalid bind
// address. It is fatal at startup.
type ServerConfigurationError struct {
	Field   string
	Message string
	Err     error
}

func (e *ServerConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("server configuration error (%s): %s: %v", e.Field, e.Message, e.Err)
	}
	return fmt.Sprintf("server configuration error (%s): %s", e.Field, e.Message)
}

// Unwrap returns the underlying cause.
func (e *ServerConfigurationError) Unwrap() error { return e.Err }

// Code implements Coder.
func (e *ServerConfigurationError) Code() string { return CodeServerConfiguration }
