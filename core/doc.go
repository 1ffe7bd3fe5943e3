// Package core provides the foundational domain types and contracts used by
// a2aflow. It defines:
//
//   - TaskSpec and the typed per-task-type configurations produced by the DSL
//   - WorkflowDefinition (ordered tasks plus hooks, error handlers and policies)
//   - ExecutionContext (the per-invocation key/value state threaded through a run)
//   - Task, the uniform "execute against a context" contract implemented by handlers
//   - WorkflowResult and the error taxonomy shared by engine and server
//
// The package keeps orchestration (engine), lookup (registry) and transport
// (server) out of scope, exposing small types so those layers stay decoupled.
package core
