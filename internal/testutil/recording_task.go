package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/hupe1980/a2aflow/core"
)

// Call is one recorded task invocation.
type Call struct {
	Task    string
	Attempt int
	Input   map[string]any
}

// RecordingTask is a core.Task stub that records every invocation and
// returns scripted results.
//
//	stub := NewRecordingTask().Returns(map[string]any{"answer": 42}).FailTimes(1, errors.New("flaky"))
type RecordingTask struct {
	mu       sync.Mutex
	calls    []Call
	outputs  map[string]any
	failures int
	err      error
	block    time.Duration
	fn       func(ctx context.Context, inv *core.Invocation) (map[string]any, error)
}

// NewRecordingTask creates a stub returning an empty map.
func NewRecordingTask() *RecordingTask { return &RecordingTask{} }

// Returns sets the output map (chainable).
func (t *RecordingTask) Returns(out map[string]any) *RecordingTask { t.outputs = out; return t }

// FailTimes makes the first n calls fail with err (chainable). A negative n fails every call.
func (t *RecordingTask) FailTimes(n int, err error) *RecordingTask {
	t.failures = n
	t.err = err
	return t
}

// Blocks makes every call sleep for d without observing cancellation (chainable).
func (t *RecordingTask) Blocks(d time.Duration) *RecordingTask { t.block = d; return t }

// Func replaces the scripted behavior with fn (chainable). Calls are still recorded.
func (t *RecordingTask) Func(fn func(ctx context.Context, inv *core.Invocation) (map[string]any, error)) *RecordingTask {
	t.fn = fn
	return t
}

// Execute implements core.Task.
func (t *RecordingTask) Execute(ctx context.Context, inv *core.Invocation) (map[string]any, error) {
	t.mu.Lock()
	t.calls = append(t.calls, Call{Task: inv.Spec.Name, Attempt: inv.Attempt, Input: inv.Context.Snapshot()})
	fail := t.failures != 0
	if t.failures > 0 {
		t.failures--
	}
	t.mu.Unlock()

	if t.block > 0 {
		time.Sleep(t.block)
	}
	if t.fn != nil {
		return t.fn(ctx, inv)
	}
	if fail {
		return nil, t.err
	}
	out := make(map[string]any, len(t.outputs))
	for k, v := range t.outputs {
		out[k] = v
	}
	return out, nil
}

// Calls returns a copy of the recorded calls.
func (t *RecordingTask) Calls() []Call {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Call(nil), t.calls...)
}

// CallCount returns the number of recorded calls.
func (t *RecordingTask) CallCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.calls)
}

// CallsFor returns the calls recorded for the named task.
func (t *RecordingTask) CallsFor(task string) []Call {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []Call
	for _, c := range t.calls {
		if c.Task == task {
			out = append(out, c)
		}
	}
	return out
}
