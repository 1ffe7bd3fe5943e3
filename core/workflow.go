package core

import (
	"context"
	"math"
	"time"
)

// GlobalErrorHandler is the ErrorHandlers key consulted when no task specific
// handler is registered.
const GlobalErrorHandler = "*"

// Hook runs once before or after the task sequence.
type Hook func(ctx context.Context, ec *ExecutionContext) error

// ErrorHandler is consulted when a task fails after exhausting its retries.
// Returning nil recovers the failure and the run continues; returning an
// error fails the run.
type ErrorHandler func(ctx context.Context, ec *ExecutionContext, err *TaskExecutionError) error

// RetryPolicy is the workflow-wide default for tasks that declare no retries.
type RetryPolicy struct {
	MaxRetries int
	Backoff    time.Duration
	Multiplier float64
	MaxBackoff time.Duration
}

// Delay returns the wait before the given retry (1-based).
func (p RetryPolicy) Delay(retry int) time.Duration {
	if p.Backoff <= 0 || retry < 1 {
		return 0
	}
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	d := time.Duration(float64(p.Backoff) * math.Pow(mult, float64(retry-1)))
	if p.MaxBackoff > 0 && d > p.MaxBackoff {
		d = p.MaxBackoff
	}
	return d
}

// WorkflowDefinition is the compiled, ordered form of a workflow.
type WorkflowDefinition struct {
	Name          string
	Description   string
	Version       string
	Capabilities  []string
	Tasks         []TaskSpec
	ErrorHandlers map[string]ErrorHandler
	BeforeHooks   []Hook
	AfterHooks    []Hook
	Timeout       time.Duration
	RetryPolicy   RetryPolicy
}

// Task returns the top-level or branch task with the given name.
func (d *WorkflowDefinition) Task(name string) (*TaskSpec, bool) {
	for i := range d.Tasks {
		if d.Tasks[i].Name == name {
			return &d.Tasks[i], true
		}
		for j := range d.Tasks[i].Branches {
			if d.Tasks[i].Branches[j].Name == name {
				return &d.Tasks[i].Branches[j], true
			}
		}
	}
	return nil, false
}

// TaskTypes returns the distinct handler tags used by the workflow in
// declaration order. Parallel groups contribute their branches' types.
func (d *WorkflowDefinition) TaskTypes() []string {
	seen := map[string]bool{}
	var out []string
	add := func(t string) {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	for _, t := range d.Tasks {
		if t.IsParallel() {
			for _, b := range t.Branches {
				add(b.Type)
			}
			continue
		}
		add(t.Type)
	}
	return out
}

// SkillCapabilities returns the advertised capabilities, defaulting to the
// top-level task names.
func (d *WorkflowDefinition) SkillCapabilities() []string {
	if len(d.Capabilities) > 0 {
		return append([]string(nil), d.Capabilities...)
	}
	out := make([]string, 0, len(d.Tasks))
	for _, t := range d.Tasks {
		out = append(out, t.Name)
	}
	return out
}

// ErrorHandlerFor returns the task specific handler, else the global one.
func (d *WorkflowDefinition) ErrorHandlerFor(task string) (ErrorHandler, bool) {
	if h, ok := d.ErrorHandlers[task]; ok && h != nil {
		return h, true
	}
	if h, ok := d.ErrorHandlers[GlobalErrorHandler]; ok && h != nil {
		return h, true
	}
	return nil, false
}
