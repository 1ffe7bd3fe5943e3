package core

import (
	"fmt"
	"maps"
	"slices"
)

// ExecutionContext is the mutable key/value state threaded through one
// workflow run. One instance exists per invocation; it is not safe for
// concurrent use and must never be shared between runs. Copies produced by
// Clone, Restrict and Snapshot are shallow: nested maps and slices are shared.
type ExecutionContext struct {
	values map[string]any
}

// NewExecutionContext creates a context seeded with a copy of initial.
func NewExecutionContext(initial map[string]any) *ExecutionContext {
	values := make(map[string]any, len(initial))
	maps.Copy(values, initial)
	return &ExecutionContext{values: values}
}

// Get returns the value stored under k.
func (ec *ExecutionContext) Get(k string) (any, bool) {
	v, ok := ec.values[k]
	return v, ok
}

// GetString returns the value under k rendered as a string. Non-string
// values are formatted with fmt; missing keys report false.
func (ec *ExecutionContext) GetString(k string) (string, bool) {
	v, ok := ec.values[k]
	if !ok || v == nil {
		return "", false
	}
	if s, ok := v.(string); ok {
		return s, true
	}
	return fmt.Sprintf("%v", v), true
}

// Has reports whether k is present.
func (ec *ExecutionContext) Has(k string) bool {
	_, ok := ec.values[k]
	return ok
}

// Set stores v under k.
func (ec *ExecutionContext) Set(k string, v any) { ec.values[k] = v }

// Delete removes k.
func (ec *ExecutionContext) Delete(k string) { delete(ec.values, k) }

// Merge copies every pair of m into the context, overwriting existing keys.
func (ec *ExecutionContext) Merge(m map[string]any) { maps.Copy(ec.values, m) }

// Len returns the number of stored keys.
func (ec *ExecutionContext) Len() int { return len(ec.values) }

// Keys returns the stored keys in sorted order.
func (ec *ExecutionContext) Keys() []string {
	return slices.Sorted(maps.Keys(ec.values))
}

// Snapshot returns a copy of the underlying map.
func (ec *ExecutionContext) Snapshot() map[string]any {
	out := make(map[string]any, len(ec.values))
	maps.Copy(out, ec.values)
	return out
}

// Clone returns an independent context holding the same pairs.
func (ec *ExecutionContext) Clone() *ExecutionContext {
	return NewExecutionContext(ec.values)
}

// Restrict returns a new context containing only the given keys. Keys that
// are absent in ec are absent in the result.
func (ec *ExecutionContext) Restrict(keys ...string) *ExecutionContext {
	out := &ExecutionContext{values: make(map[string]any, len(keys))}
	for _, k := range keys {
		if v, ok := ec.values[k]; ok {
			out.values[k] = v
		}
	}
	return out
}
