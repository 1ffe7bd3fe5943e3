// Package registry holds the two process-wide lookup tables of a2aflow:
//
//   - TaskRegistry maps a task type tag to its core.Task implementation
//   - WorkflowRegistry maps a route path to a compiled core.WorkflowDefinition
//
// Both tables are explicit objects passed through constructors rather than
// hidden globals. They follow a populate-then-freeze lifecycle: registrations
// happen during boot, a Manifest is validated eagerly, and Freeze makes the
// tables read-only before the server starts accepting connections.
package registry
