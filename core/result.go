package core

import "time"

// Status is the outcome of a task or a workflow run.
type Status string

const (
	// StatusSuccess marks a completed task or run.
	StatusSuccess Status = "success"
	// StatusFailure marks a failed task or run.
	StatusFailure Status = "failure"
	// StatusSkipped marks a task whose condition evaluated false.
	StatusSkipped Status = "skipped"
)

// TaskResult records the outcome of one task.
type TaskResult struct {
	Name       string        `json:"name"`
	Type       string        `json:"type"`
	Status     Status        `json:"status"`
	Duration   time.Duration `json:"-"`
	DurationMS int64         `json:"duration_ms"`
	Attempts   int           `json:"attempts"`
	Recovered  bool          `json:"recovered,omitempty"`
	Group      string        `json:"group,omitempty"`
	Error      string        `json:"error,omitempty"`
}

// WorkflowResult is the outcome of one workflow run.
type WorkflowResult struct {
	ID         string         `json:"id"`
	Workflow   string         `json:"workflow"`
	Status     Status         `json:"status"`
	Output     map[string]any `json:"output_context"`
	Tasks      []TaskResult   `json:"per_task_results"`
	Error      string         `json:"error,omitempty"`
	Err        error          `json:"-"`
	Duration   time.Duration  `json:"-"`
	DurationMS int64          `json:"duration_ms"`
}

// Succeeded reports whether the run completed without a fatal failure.
func (r *WorkflowResult) Succeeded() bool { return r.Status == StatusSuccess }

// Task returns the result recorded for the named task.
func (r *WorkflowResult) Task(name string) (TaskResult, bool) {
	for _, t := range r.Tasks {
		if t.Name == name {
			return t, true
		}
	}
	return TaskResult{}, false
}
