// Package engine executes compiled workflow definitions.
//
// A run walks the definition's tasks strictly in declaration order:
//
//  1. The task's condition is evaluated; a false condition marks the task
//     skipped without resolving a handler or touching the context.
//  2. The implementation is resolved from the task registry by type tag.
//  3. The implementation receives a copy of the context, restricted to the
//     declared inputs when inputs are declared.
//  4. Produced values (filtered to the declared outputs, if any) are
//     merged into the run context after the optional Process function.
//  5. A failure after all attempts is offered to the task's error handler,
//     else the global one. A handler returning nil recovers the failure;
//     otherwise the run fails and the remaining tasks do not run.
//
// Before hooks run once ahead of the sequence and after hooks once behind
// it, even when a task failed or the workflow timeout elapsed.
//
// Parallel groups run their branches concurrently on private context copies
// and merge outputs after a join barrier; two branches producing the same
// key fail the group.
//
// Every run and task is wrapped in an OpenTelemetry span, and a
// CallbackManager receives lifecycle callbacks for instrumentation.
package engine
