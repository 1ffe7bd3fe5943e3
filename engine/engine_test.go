package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/hupe1980/a2aflow/core"
	"github.com/hupe1980/a2aflow/dsl"
	"github.com/hupe1980/a2aflow/internal/testutil"
	"github.com/hupe1980/a2aflow/registry"
)

const stubType = "stub"

func newEngine(t *testing.T, impl core.Task, optFns ...func(o *Options)) *Engine {
	t.Helper()
	tasks := registry.NewTaskRegistry()
	tasks.MustRegister(stubType, impl)
	return New(tasks, optFns...)
}

func handle(fn func(ec *core.ExecutionContext) (map[string]any, error)) core.HandlerFunc {
	return func(_ context.Context, ec *core.ExecutionContext) (map[string]any, error) { return fn(ec) }
}

// directHandler mirrors the built-in handler without importing the task package.
var directHandler = core.TaskFunc(func(ctx context.Context, inv *core.Invocation) (map[string]any, error) {
	return inv.Spec.Config.(*core.HandlerConfig).Fn(ctx, inv.Context)
})

func newHandlerEngine(optFns ...func(o *Options)) *Engine {
	tasks := registry.NewTaskRegistry()
	tasks.MustRegister(core.TypeDirectHandler, directHandler)
	return New(tasks, optFns...)
}

func TestRunSequentialMerge(t *testing.T) {
	stub := testutil.NewRecordingTask().Returns(map[string]any{"a": 1, "b": 2})
	eng := newEngine(t, stub)

	def := dsl.New("W").Do(func(b *dsl.Builder) {
		b.Task("first", stubType).Output("a")
		b.Task("second", stubType).Input("a")
	}).MustBuild()

	res := eng.Run(context.Background(), def, testutil.NewContextBuilder().Set("seed", true).Build())

	require.True(t, res.Succeeded(), res.Error)
	assert.NotEmpty(t, res.ID)
	assert.Equal(t, "W", res.Workflow)
	require.Len(t, res.Tasks, 2)
	assert.Equal(t, core.StatusSuccess, res.Tasks[0].Status)
	assert.Equal(t, 1, res.Tasks[0].Attempts)

	// first declares outputs, second merges everything
	assert.Equal(t, map[string]any{"seed": true, "a": 1, "b": 2}, res.Output)

	calls := stub.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, map[string]any{"seed": true}, calls[0].Input)
	assert.Equal(t, map[string]any{"a": 1}, calls[1].Input)
}

func TestRunUsesProvidedID(t *testing.T) {
	eng := newEngine(t, testutil.NewRecordingTask())
	def := dsl.New("W").MustBuild()

	res := eng.Run(context.Background(), def, nil, func(o *RunOptions) { o.ID = "run-1" })
	assert.Equal(t, "run-1", res.ID)
	assert.True(t, res.Succeeded())
	assert.Empty(t, res.Output)
}

func TestSkippedTaskNeverCallsHandler(t *testing.T) {
	stub := testutil.NewRecordingTask().Returns(map[string]any{"x": 1})
	eng := newEngine(t, stub)

	var afterRan bool
	def := dsl.New("W").
		AfterAll(func(context.Context, *core.ExecutionContext) error { afterRan = true; return nil }).
		Do(func(b *dsl.Builder) {
			b.Task("guarded", stubType).RunIf(func(*core.ExecutionContext) bool { return false })
		}).MustBuild()

	res := eng.Run(context.Background(), def, nil)

	require.True(t, res.Succeeded())
	assert.Equal(t, 0, stub.CallCount())
	assert.Equal(t, core.StatusSkipped, res.Tasks[0].Status)
	assert.NotContains(t, res.Output, "x")
	assert.True(t, afterRan)
}

func TestSkippedTaskDoesNotResolveHandler(t *testing.T) {
	eng := New(registry.NewTaskRegistry())
	def := dsl.New("W").Do(func(b *dsl.Builder) {
		b.Task("missing", "unregistered").SkipIf(func(*core.ExecutionContext) bool { return true })
	}).MustBuild()

	res := eng.Run(context.Background(), def, nil)
	require.True(t, res.Succeeded())
	assert.Equal(t, core.StatusSkipped, res.Tasks[0].Status)
}

func TestFailureWithoutHandlerIsFatal(t *testing.T) {
	boom := errors.New("boom")
	stub := testutil.NewRecordingTask().Func(func(_ context.Context, inv *core.Invocation) (map[string]any, error) {
		if inv.Spec.Name == "fails" {
			return nil, boom
		}
		return map[string]any{inv.Spec.Name: true}, nil
	})
	eng := newEngine(t, stub)

	var afterRan bool
	def := dsl.New("W").
		AfterAll(func(context.Context, *core.ExecutionContext) error { afterRan = true; return nil }).
		Do(func(b *dsl.Builder) {
			b.Task("ok", stubType)
			b.Task("fails", stubType)
			b.Task("never", stubType)
		}).MustBuild()

	res := eng.Run(context.Background(), def, nil)

	assert.Equal(t, core.StatusFailure, res.Status)
	assert.True(t, afterRan)
	require.Len(t, res.Tasks, 2)
	assert.Equal(t, core.StatusSuccess, res.Tasks[0].Status)
	assert.Equal(t, core.StatusFailure, res.Tasks[1].Status)
	assert.Contains(t, res.Tasks[1].Error, "boom")
	assert.Equal(t, map[string]any{"ok": true}, res.Output)
	assert.Empty(t, stub.CallsFor("never"))

	require.ErrorIs(t, res.Err, boom)
	var texErr *core.TaskExecutionError
	require.ErrorAs(t, res.Err, &texErr)
	assert.Equal(t, "fails", texErr.Task)
	assert.Equal(t, core.CodeTaskExecution, core.ErrorCode(res.Err))
}

func TestErrorHandlers(t *testing.T) {
	fail := testutil.NewRecordingTask().FailTimes(-1, errors.New("nope"))

	t.Run("task handler recovers", func(t *testing.T) {
		eng := newEngine(t, fail)
		var seen *core.TaskExecutionError
		def := dsl.New("W").
			OnError("a", func(_ context.Context, ec *core.ExecutionContext, err *core.TaskExecutionError) error {
				seen = err
				ec.Set("fallback", true)
				return nil
			}).
			Do(func(b *dsl.Builder) {
				b.Task("a", stubType)
				b.Handle("b", handle(func(*core.ExecutionContext) (map[string]any, error) {
					return map[string]any{"b": 1}, nil
				}))
			}).MustBuild()
		eng.Tasks().MustRegister(core.TypeDirectHandler, directHandler)

		res := eng.Run(context.Background(), def, nil)

		require.True(t, res.Succeeded(), res.Error)
		require.NotNil(t, seen)
		assert.Equal(t, "a", seen.Task)
		assert.True(t, res.Tasks[0].Recovered)
		assert.Equal(t, core.StatusFailure, res.Tasks[0].Status)
		assert.Equal(t, core.StatusSuccess, res.Tasks[1].Status)
		assert.Equal(t, map[string]any{"fallback": true, "b": 1}, res.Output)
	})

	t.Run("global handler is the fallback", func(t *testing.T) {
		eng := newEngine(t, fail)
		var calls int
		def := dsl.New("W").
			OnAnyError(func(context.Context, *core.ExecutionContext, *core.TaskExecutionError) error {
				calls++
				return nil
			}).
			Do(func(b *dsl.Builder) {
				b.Task("a", stubType)
				b.Task("b", stubType)
			}).MustBuild()

		res := eng.Run(context.Background(), def, nil)
		require.True(t, res.Succeeded())
		assert.Equal(t, 2, calls)
	})

	t.Run("task handler wins over global", func(t *testing.T) {
		eng := newEngine(t, fail)
		var global bool
		def := dsl.New("W").
			OnError("a", func(context.Context, *core.ExecutionContext, *core.TaskExecutionError) error { return nil }).
			OnAnyError(func(context.Context, *core.ExecutionContext, *core.TaskExecutionError) error {
				global = true
				return nil
			}).
			Do(func(b *dsl.Builder) { b.Task("a", stubType) }).
			MustBuild()

		res := eng.Run(context.Background(), def, nil)
		require.True(t, res.Succeeded())
		assert.False(t, global)
	})

	t.Run("handler returning an error fails the run", func(t *testing.T) {
		eng := newEngine(t, fail)
		escalated := errors.New("escalated")
		def := dsl.New("W").
			OnError("a", func(context.Context, *core.ExecutionContext, *core.TaskExecutionError) error { return escalated }).
			Do(func(b *dsl.Builder) {
				b.Task("a", stubType)
				b.Task("b", stubType)
			}).MustBuild()

		res := eng.Run(context.Background(), def, nil)
		assert.False(t, res.Succeeded())
		assert.ErrorIs(t, res.Err, escalated)
		assert.Len(t, res.Tasks, 1)
		assert.False(t, res.Tasks[0].Recovered)
	})
}

func TestRetries(t *testing.T) {
	t.Run("task retries", func(t *testing.T) {
		stub := testutil.NewRecordingTask().FailTimes(2, errors.New("flaky")).Returns(map[string]any{"ok": true})
		eng := newEngine(t, stub)
		def := dsl.New("W").Do(func(b *dsl.Builder) { b.Task("a", stubType).Retries(2) }).MustBuild()

		res := eng.Run(context.Background(), def, nil)
		require.True(t, res.Succeeded(), res.Error)
		assert.Equal(t, 3, res.Tasks[0].Attempts)

		calls := stub.Calls()
		require.Len(t, calls, 3)
		assert.Equal(t, []int{1, 2, 3}, []int{calls[0].Attempt, calls[1].Attempt, calls[2].Attempt})
	})

	t.Run("exhausted retries", func(t *testing.T) {
		stub := testutil.NewRecordingTask().FailTimes(-1, errors.New("down"))
		eng := newEngine(t, stub)
		def := dsl.New("W").Do(func(b *dsl.Builder) { b.Task("a", stubType).Retries(1) }).MustBuild()

		res := eng.Run(context.Background(), def, nil)
		assert.False(t, res.Succeeded())
		assert.Equal(t, 2, res.Tasks[0].Attempts)

		var texErr *core.TaskExecutionError
		require.ErrorAs(t, res.Err, &texErr)
		assert.Equal(t, 2, texErr.Attempts)
	})

	t.Run("workflow policy applies without task retries", func(t *testing.T) {
		stub := testutil.NewRecordingTask().FailTimes(1, errors.New("flaky"))
		eng := newEngine(t, stub)
		def := dsl.New("W").
			RetryPolicy(core.RetryPolicy{MaxRetries: 1, Backoff: time.Millisecond}).
			Do(func(b *dsl.Builder) { b.Task("a", stubType) }).
			MustBuild()

		res := eng.Run(context.Background(), def, nil)
		require.True(t, res.Succeeded(), res.Error)
		assert.Equal(t, 2, stub.CallCount())
	})

	t.Run("explicit zero overrides the workflow policy", func(t *testing.T) {
		stub := testutil.NewRecordingTask().FailTimes(-1, errors.New("down"))
		eng := newEngine(t, stub)
		def := dsl.New("W").
			RetryPolicy(core.RetryPolicy{MaxRetries: 3, Backoff: time.Millisecond}).
			Do(func(b *dsl.Builder) { b.Task("a", stubType).Retries(0) }).
			MustBuild()

		res := eng.Run(context.Background(), def, nil)
		assert.False(t, res.Succeeded())
		assert.Equal(t, 1, stub.CallCount())
		assert.Equal(t, 1, res.Tasks[0].Attempts)
	})
}

func TestTaskTimeoutAbandonsBlockingHandler(t *testing.T) {
	stub := testutil.NewRecordingTask().Blocks(300 * time.Millisecond)
	eng := newEngine(t, stub)
	def := dsl.New("W").Do(func(b *dsl.Builder) { b.Task("slow", stubType).Timeout(20 * time.Millisecond) }).MustBuild()

	start := time.Now()
	res := eng.Run(context.Background(), def, nil)

	assert.Less(t, time.Since(start), 250*time.Millisecond)
	assert.False(t, res.Succeeded())
	assert.ErrorIs(t, res.Err, ErrTaskTimeout)
}

func TestDefaultTaskTimeout(t *testing.T) {
	stub := testutil.NewRecordingTask().Func(func(ctx context.Context, _ *core.Invocation) (map[string]any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	eng := newEngine(t, stub, func(o *Options) { o.Config.DefaultTaskTimeout = 10 * time.Millisecond })
	def := dsl.New("W").Do(func(b *dsl.Builder) { b.Task("a", stubType) }).MustBuild()

	res := eng.Run(context.Background(), def, nil)
	assert.ErrorIs(t, res.Err, ErrTaskTimeout)
}

func TestWorkflowTimeoutStillRunsAfterHooks(t *testing.T) {
	stub := testutil.NewRecordingTask().Func(func(ctx context.Context, _ *core.Invocation) (map[string]any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	eng := newEngine(t, stub)

	var afterErr error
	afterRan := false
	def := dsl.New("W").
		Timeout(20 * time.Millisecond).
		AfterAll(func(ctx context.Context, _ *core.ExecutionContext) error {
			afterRan = true
			afterErr = ctx.Err()
			return nil
		}).
		Do(func(b *dsl.Builder) { b.Task("a", stubType) }).
		MustBuild()

	res := eng.Run(context.Background(), def, nil)

	assert.False(t, res.Succeeded())
	assert.ErrorIs(t, res.Err, context.DeadlineExceeded)
	assert.Contains(t, res.Error, "exceeded its timeout")
	assert.True(t, afterRan)
	assert.NoError(t, afterErr)
}

func TestPanicsAreRecovered(t *testing.T) {
	stub := testutil.NewRecordingTask().Func(func(context.Context, *core.Invocation) (map[string]any, error) {
		panic("kaboom")
	})
	eng := newEngine(t, stub)
	def := dsl.New("W").Do(func(b *dsl.Builder) { b.Task("a", stubType) }).MustBuild()

	res := eng.Run(context.Background(), def, nil)
	assert.False(t, res.Succeeded())
	assert.Contains(t, res.Error, "task panicked: kaboom")
}

func TestHookPanicIsRecovered(t *testing.T) {
	eng := newEngine(t, testutil.NewRecordingTask())
	def := dsl.New("W").
		BeforeAll(func(context.Context, *core.ExecutionContext) error { panic("hook") }).
		MustBuild()

	res := eng.Run(context.Background(), def, nil)
	assert.False(t, res.Succeeded())
	assert.Contains(t, res.Error, "hook panicked")
}

func TestUnregisteredTaskTypeFailsTask(t *testing.T) {
	eng := New(registry.NewTaskRegistry())
	def := dsl.New("W").Do(func(b *dsl.Builder) { b.Task("a", "unknown") }).MustBuild()

	res := eng.Run(context.Background(), def, nil)
	assert.False(t, res.Succeeded())
	assert.Equal(t, 0, res.Tasks[0].Attempts)

	var lookup *core.RegistryLookupError
	require.ErrorAs(t, res.Err, &lookup)
	assert.Equal(t, "unknown", lookup.Key)
}

func TestBeforeHookFailureSkipsTasks(t *testing.T) {
	stub := testutil.NewRecordingTask()
	eng := newEngine(t, stub)

	var afterRan bool
	def := dsl.New("W").
		BeforeAll(func(context.Context, *core.ExecutionContext) error { return errors.New("not ready") }).
		AfterAll(func(context.Context, *core.ExecutionContext) error { afterRan = true; return nil }).
		Do(func(b *dsl.Builder) { b.Task("a", stubType) }).
		MustBuild()

	res := eng.Run(context.Background(), def, nil)
	assert.False(t, res.Succeeded())
	assert.Contains(t, res.Error, "before_all hook 0")
	assert.Equal(t, 0, stub.CallCount())
	assert.True(t, afterRan)
}

func TestHooksShareRunContext(t *testing.T) {
	eng := newHandlerEngine()
	def := dsl.New("W").
		BeforeAll(func(_ context.Context, ec *core.ExecutionContext) error { ec.Set("opened", true); return nil }).
		AfterAll(func(_ context.Context, ec *core.ExecutionContext) error {
			ec.Set("closed", ec.Has("answer"))
			return nil
		}).
		Do(func(b *dsl.Builder) {
			b.Handle("answer", handle(func(ec *core.ExecutionContext) (map[string]any, error) {
				return map[string]any{"answer": ec.Has("opened")}, nil
			}))
		}).MustBuild()

	res := eng.Run(context.Background(), def, nil)
	require.True(t, res.Succeeded())
	assert.Equal(t, map[string]any{"opened": true, "answer": true, "closed": true}, res.Output)
}

func TestProcessRunsBeforeMerge(t *testing.T) {
	eng := newEngine(t, testutil.NewRecordingTask().Returns(map[string]any{"raw": "hello"}))
	def := dsl.New("W").Do(func(b *dsl.Builder) {
		b.Task("a", stubType).Output("shout").
			Process(func(_ *core.ExecutionContext, out map[string]any) (map[string]any, error) {
				return map[string]any{"shout": out["raw"].(string) + "!"}, nil
			})
	}).MustBuild()

	res := eng.Run(context.Background(), def, nil)
	require.True(t, res.Succeeded())
	assert.Equal(t, map[string]any{"shout": "hello!"}, res.Output)
}

func TestDeterministicReruns(t *testing.T) {
	eng := newEngine(t, testutil.NewRecordingTask().Returns(map[string]any{"v": 1}))
	def := dsl.New("W").Do(func(b *dsl.Builder) {
		b.Task("a", stubType)
		b.Task("b", stubType).SkipWhen("v", 1)
	}).MustBuild()

	r1 := eng.Run(context.Background(), def, testutil.NewContextBuilder().Set("in", "x").Build())
	r2 := eng.Run(context.Background(), def, testutil.NewContextBuilder().Set("in", "x").Build())

	assert.Equal(t, r1.Output, r2.Output)
	require.Len(t, r2.Tasks, len(r1.Tasks))
	for i := range r1.Tasks {
		assert.Equal(t, r1.Tasks[i].Status, r2.Tasks[i].Status)
	}
}

func TestParallelBranchesRunConcurrently(t *testing.T) {
	var started sync.WaitGroup
	started.Add(2)
	barrier := func(key string) core.HandlerFunc {
		return func(ctx context.Context, _ *core.ExecutionContext) (map[string]any, error) {
			started.Done()
			waited := make(chan struct{})
			go func() { started.Wait(); close(waited) }()
			select {
			case <-waited:
				return map[string]any{key: true}, nil
			case <-time.After(time.Second):
				return nil, errors.New("branches did not overlap")
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}

	eng := newHandlerEngine()
	def := dsl.New("W").Do(func(b *dsl.Builder) {
		b.Parallel("fan", func(g *dsl.Group) {
			g.Handle("left", barrier("l"))
			g.Handle("right", barrier("r"))
		})
	}).MustBuild()

	res := eng.Run(context.Background(), def, nil)
	require.True(t, res.Succeeded(), res.Error)
	assert.Equal(t, map[string]any{"l": true, "r": true}, res.Output)

	require.Len(t, res.Tasks, 3)
	assert.Equal(t, "left", res.Tasks[0].Name)
	assert.Equal(t, "fan", res.Tasks[0].Group)
	assert.Equal(t, "right", res.Tasks[1].Name)
	assert.Equal(t, "fan", res.Tasks[2].Name)
	assert.Equal(t, core.TypeParallel, res.Tasks[2].Type)
}

func TestParallelBranchesGetPrivateContexts(t *testing.T) {
	eng := newHandlerEngine()
	def := dsl.New("W").Do(func(b *dsl.Builder) {
		b.Parallel("fan", func(g *dsl.Group) {
			g.Handle("writer", func(_ context.Context, ec *core.ExecutionContext) (map[string]any, error) {
				ec.Set("leak", true)
				return map[string]any{"w": 1}, nil
			})
			g.Handle("reader", func(_ context.Context, ec *core.ExecutionContext) (map[string]any, error) {
				return map[string]any{"saw_seed": ec.Has("seed")}, nil
			})
		})
	}).MustBuild()

	res := eng.Run(context.Background(), def, testutil.NewContextBuilder().Set("seed", 1).Build())
	require.True(t, res.Succeeded(), res.Error)
	assert.NotContains(t, res.Output, "leak")
	assert.Equal(t, true, res.Output["saw_seed"])
	assert.Equal(t, 1, res.Output["w"])
}

func TestParallelOutputCollisionFails(t *testing.T) {
	same := func(context.Context, *core.ExecutionContext) (map[string]any, error) {
		return map[string]any{"dup": 1}, nil
	}
	eng := newHandlerEngine()
	def := dsl.New("W").Do(func(b *dsl.Builder) {
		b.Parallel("fan", func(g *dsl.Group) {
			g.Handle("a", same)
			g.Handle("b", same)
		})
	}).MustBuild()

	res := eng.Run(context.Background(), def, nil)
	assert.False(t, res.Succeeded())
	assert.ErrorIs(t, res.Err, ErrOutputCollision)
	assert.NotContains(t, res.Output, "dup")
}

func TestParallelBranchRecovery(t *testing.T) {
	eng := newHandlerEngine()
	def := dsl.New("W").
		OnError("bad", func(context.Context, *core.ExecutionContext, *core.TaskExecutionError) error { return nil }).
		Do(func(b *dsl.Builder) {
			b.Parallel("fan", func(g *dsl.Group) {
				g.Handle("good", func(context.Context, *core.ExecutionContext) (map[string]any, error) {
					return map[string]any{"good": true}, nil
				})
				g.Handle("bad", func(context.Context, *core.ExecutionContext) (map[string]any, error) {
					return nil, errors.New("bad branch")
				})
			})
		}).MustBuild()

	res := eng.Run(context.Background(), def, nil)
	require.True(t, res.Succeeded(), res.Error)
	bad, ok := res.Task("bad")
	require.True(t, ok)
	assert.True(t, bad.Recovered)
	assert.Equal(t, map[string]any{"good": true}, res.Output)
}

func TestParallelGroupTimeout(t *testing.T) {
	eng := newHandlerEngine()
	def := dsl.New("W").Do(func(b *dsl.Builder) {
		b.Parallel("fan", func(g *dsl.Group) {
			g.Handle("fast", func(context.Context, *core.ExecutionContext) (map[string]any, error) {
				return map[string]any{"fast": true}, nil
			})
			g.Handle("slow", func(context.Context, *core.ExecutionContext) (map[string]any, error) {
				time.Sleep(500 * time.Millisecond)
				return map[string]any{"slow": true}, nil
			})
		}).Timeout(50 * time.Millisecond).Retries(1)
	}).MustBuild()

	start := time.Now()
	res := eng.Run(context.Background(), def, nil)

	assert.Less(t, time.Since(start), 400*time.Millisecond)
	assert.False(t, res.Succeeded())
	assert.ErrorIs(t, res.Err, ErrTaskTimeout)

	group, ok := res.Task("fan")
	require.True(t, ok)
	assert.Equal(t, 2, group.Attempts)
	assert.Equal(t, core.StatusFailure, group.Status)
	assert.Len(t, res.Tasks, 3)
}

func TestParallelGroupRetries(t *testing.T) {
	var calls atomic.Int32
	eng := newHandlerEngine()
	def := dsl.New("W").Do(func(b *dsl.Builder) {
		b.Parallel("fan", func(g *dsl.Group) {
			g.Handle("steady", func(context.Context, *core.ExecutionContext) (map[string]any, error) {
				return map[string]any{"steady": true}, nil
			})
			g.Handle("flaky", func(context.Context, *core.ExecutionContext) (map[string]any, error) {
				if calls.Add(1) == 1 {
					return nil, errors.New("flaky")
				}
				return map[string]any{"flaky": true}, nil
			})
		}).Retries(1)
	}).MustBuild()

	res := eng.Run(context.Background(), def, nil)
	require.True(t, res.Succeeded(), res.Error)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, map[string]any{"steady": true, "flaky": true}, res.Output)

	require.Len(t, res.Tasks, 3)
	assert.Equal(t, core.StatusSuccess, res.Tasks[1].Status)
	assert.Equal(t, 2, res.Tasks[2].Attempts)
}

func TestCallbacksOrder(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	record := func(ct CallbackType) Callback {
		return NewFunctionCallback(ct, func(_ context.Context, cc *CallbackContext) error {
			mu.Lock()
			defer mu.Unlock()
			name := string(ct)
			if cc.Task != nil {
				name += ":" + cc.Task.Name
			}
			seen = append(seen, name)
			return nil
		})
	}

	cm := NewCallbackManager()
	for _, ct := range []CallbackType{CallbackBeforeWorkflow, CallbackAfterWorkflow, CallbackBeforeTask, CallbackAfterTask, CallbackOnTaskError} {
		cm.RegisterCallback(record(ct))
	}

	stub := testutil.NewRecordingTask().Func(func(_ context.Context, inv *core.Invocation) (map[string]any, error) {
		if inv.Spec.Name == "b" {
			return nil, errors.New("fail")
		}
		return nil, nil
	})
	eng := newEngine(t, stub, func(o *Options) { o.Callbacks = cm })
	def := dsl.New("W").
		OnAnyError(func(context.Context, *core.ExecutionContext, *core.TaskExecutionError) error { return nil }).
		Do(func(b *dsl.Builder) {
			b.Task("a", stubType)
			b.Task("b", stubType)
		}).MustBuild()

	eng.Run(context.Background(), def, nil)

	assert.Equal(t, []string{
		"before_workflow",
		"before_task:a", "after_task:a",
		"before_task:b", "on_task_error:b", "after_task:b",
		"after_workflow",
	}, seen)
}

func TestBeforeTaskCallbackErrorFailsTask(t *testing.T) {
	cm := NewCallbackManager()
	cm.RegisterCallback(NewFunctionCallback(CallbackBeforeTask, func(context.Context, *CallbackContext) error {
		return errors.New("denied")
	}))
	stub := testutil.NewRecordingTask()
	eng := newEngine(t, stub, func(o *Options) { o.Callbacks = cm })
	def := dsl.New("W").Do(func(b *dsl.Builder) { b.Task("a", stubType) }).MustBuild()

	res := eng.Run(context.Background(), def, nil)
	assert.False(t, res.Succeeded())
	assert.Contains(t, res.Error, "denied")
	assert.Equal(t, 0, stub.CallCount())
}

func TestLoggingCallback(t *testing.T) {
	var messages []string
	cb := NewLoggingCallback(CallbackAfterTask, func(m string) { messages = append(messages, m) })
	cm := NewCallbackManager()
	cm.RegisterCallback(cb)

	eng := newEngine(t, testutil.NewRecordingTask(), func(o *Options) { o.Callbacks = cm })
	def := dsl.New("W").Do(func(b *dsl.Builder) { b.Task("a", stubType) }).MustBuild()
	res := eng.Run(context.Background(), def, nil, func(o *RunOptions) { o.ID = "r1" })
	require.True(t, res.Succeeded())

	require.Len(t, messages, 1)
	assert.Equal(t, "[after_task] workflow=W run=r1 task=a status=success", messages[0])
}

func TestSpans(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	stub := testutil.NewRecordingTask().FailTimes(-1, errors.New("fail"))
	eng := newEngine(t, stub, func(o *Options) { o.Tracer = tp.Tracer("test") })
	def := dsl.New("W").Do(func(b *dsl.Builder) { b.Task("a", stubType) }).MustBuild()

	eng.Run(context.Background(), def, nil)

	spans := sr.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "a2aflow.task", spans[0].Name())
	assert.Equal(t, "a2aflow.workflow", spans[1].Name())
	assert.Equal(t, spans[1].SpanContext().SpanID(), spans[0].Parent().SpanID())
	assert.Equal(t, "Error", spans[1].Status().Code.String())
}

func TestCancelAndStats(t *testing.T) {
	started := make(chan struct{})
	stub := testutil.NewRecordingTask().Func(func(ctx context.Context, _ *core.Invocation) (map[string]any, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})
	eng := newEngine(t, stub)
	def := dsl.New("W").Do(func(b *dsl.Builder) { b.Task("a", stubType) }).MustBuild()

	assert.ErrorIs(t, eng.Cancel("nope"), ErrRunNotFound)

	done := make(chan *core.WorkflowResult, 1)
	go func() { done <- eng.Run(context.Background(), def, nil, func(o *RunOptions) { o.ID = "r1" }) }()

	<-started
	assert.EqualValues(t, 1, eng.Stats().Active)
	require.NoError(t, eng.Cancel("r1"))

	res := <-done
	assert.False(t, res.Succeeded())
	assert.ErrorIs(t, res.Err, context.Canceled)

	stats := eng.Stats()
	assert.EqualValues(t, 1, stats.Runs)
	assert.EqualValues(t, 1, stats.Failed)
	assert.EqualValues(t, 0, stats.Active)
}

func TestMaxConcurrentRuns(t *testing.T) {
	var inFlight, peak atomic.Int64
	stub := testutil.NewRecordingTask().Func(func(context.Context, *core.Invocation) (map[string]any, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		inFlight.Add(-1)
		return nil, nil
	})
	eng := newEngine(t, stub, func(o *Options) { o.Config.MaxConcurrentRuns = 1 })
	def := dsl.New("W").Do(func(b *dsl.Builder) { b.Task("a", stubType) }).MustBuild()

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			eng.Run(context.Background(), def, nil)
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, peak.Load())
	assert.EqualValues(t, 4, eng.Stats().Succeeded)
}
