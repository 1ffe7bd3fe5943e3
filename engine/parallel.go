package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/a2aflow/core"
)

// runParallel runs a parallel group. The group's Timeout bounds each attempt
// of the whole fan-out and its Retries re-run every branch after a failed
// attempt. Only the branch results of the final attempt are recorded.
func (e *Engine) runParallel(ctx context.Context, rs *runState, spec *core.TaskSpec) (core.TaskResult, map[string]any, error) {
	start := time.Now()

	ctx, span := e.tracer.Start(ctx, "a2aflow.parallel", trace.WithAttributes(
		attribute.String("a2aflow.task", spec.Name),
		attribute.Int("a2aflow.branch_count", len(spec.Branches)),
	))
	defer span.End()

	group := core.TaskResult{Name: spec.Name, Type: spec.Type, Status: core.StatusSuccess}

	var (
		branches []core.TaskResult
		merged   map[string]any
		err      error
	)
	for attempt := 1; attempt <= spec.Retries+1; attempt++ {
		if attempt > 1 {
			delay := rs.def.RetryPolicy.Delay(attempt - 1)
			rs.logger.Debug("engine.group.retry", "task", spec.Name, "attempt", attempt, "delay", delay, "error", err.Error())
			if werr := sleep(ctx, delay); werr != nil {
				break
			}
		}

		group.Attempts = attempt
		branches, merged, err = e.parallelAttempt(ctx, rs, spec)
		if err == nil || ctx.Err() != nil {
			break
		}
	}
	for _, tr := range branches {
		rs.record(tr)
	}

	group.Duration = time.Since(start)
	group.DurationMS = group.Duration.Milliseconds()
	span.SetAttributes(attribute.Int("a2aflow.attempts", group.Attempts))

	if err != nil {
		err = &core.TaskExecutionError{Task: spec.Name, Type: spec.Type, Attempts: group.Attempts, Err: err}
		group.Status = core.StatusFailure
		group.Error = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return group, nil, err
	}
	return group, selectOutputs(spec, merged), nil
}

// parallelAttempt runs the branches concurrently, each against its own copy
// of the run context, and merges their outputs in declaration order after all
// branches finished. A branch failure is first offered to the branch's own
// error handler; unrecovered failures, output collisions and an elapsed group
// timeout fail the attempt.
func (e *Engine) parallelAttempt(ctx context.Context, rs *runState, spec *core.TaskSpec) ([]core.TaskResult, map[string]any, error) {
	gctx, cancel := ctx, context.CancelFunc(func() {})
	if spec.Timeout > 0 {
		gctx, cancel = context.WithTimeout(ctx, spec.Timeout)
	}
	defer cancel()

	n := len(spec.Branches)
	results := make([]core.TaskResult, n)
	outs := make([]map[string]any, n)
	errs := make([]error, n)

	var g errgroup.Group
	if e.config.MaxParallelBranches > 0 {
		g.SetLimit(e.config.MaxParallelBranches)
	}

	for i := range spec.Branches {
		branch := &spec.Branches[i]
		g.Go(func() error {
			bec := rs.ec.Clone()
			run, err := safeCondition(branch, bec)
			switch {
			case err != nil:
				results[i] = core.TaskResult{Name: branch.Name, Type: branch.Type}
				errs[i] = &core.TaskExecutionError{Task: branch.Name, Type: branch.Type, Err: err}
			case !run:
				rs.logger.Debug("engine.task.skipped", "task", branch.Name, "group", spec.Name)
				results[i] = core.TaskResult{Name: branch.Name, Type: branch.Type, Status: core.StatusSkipped}
			default:
				results[i], outs[i], errs[i] = e.runTask(gctx, rs, branch, bec)
			}
			return nil
		})
	}
	_ = g.Wait()

	var failures []error
	timedOut := errors.Is(gctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil
	if timedOut {
		rs.logger.Warn("engine.group.timeout", "task", spec.Name, "timeout", spec.Timeout)
		failures = append(failures, fmt.Errorf("%w after %s", ErrTaskTimeout, spec.Timeout))
	}

	merged := map[string]any{}
	owner := map[string]string{}

	for i := range spec.Branches {
		branch := &spec.Branches[i]
		results[i].Group = spec.Name

		if err := errs[i]; err != nil {
			results[i].Status = core.StatusFailure
			results[i].Error = err.Error()
			if !timedOut {
				results[i].Recovered = e.recoverBranch(ctx, rs, branch, err)
			}
			if !results[i].Recovered {
				failures = append(failures, err)
			}
			continue
		}

		keys := make([]string, 0, len(outs[i]))
		for k := range outs[i] {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if prev, ok := owner[k]; ok {
				failures = append(failures, fmt.Errorf("%w: key %q produced by %s and %s", ErrOutputCollision, k, prev, branch.Name))
				continue
			}
			owner[k] = branch.Name
			merged[k] = outs[i][k]
		}
	}

	if len(failures) > 0 {
		return results, nil, errors.Join(failures...)
	}
	if spec.Process != nil {
		out, err := spec.Process(rs.ec, merged)
		if err != nil {
			return results, nil, err
		}
		merged = out
	}
	return results, merged, nil
}

// recoverBranch offers a branch failure to the handler registered for the
// branch name. The global handler is consulted at group level.
func (e *Engine) recoverBranch(ctx context.Context, rs *runState, branch *core.TaskSpec, err error) bool {
	h, ok := rs.def.ErrorHandlers[branch.Name]
	if !ok || h == nil {
		return false
	}

	var texErr *core.TaskExecutionError
	if !errors.As(err, &texErr) {
		texErr = &core.TaskExecutionError{Task: branch.Name, Type: branch.Type, Err: err}
	}
	if herr := safeErrorHandler(ctx, h, rs.ec, texErr); herr != nil {
		return false
	}
	rs.logger.Warn("engine.task.recovered", "task", branch.Name, "error", texErr.Error())
	return true
}
