package testutil

import "github.com/hupe1980/a2aflow/core"

// ContextBuilder helps construct execution contexts with fluent chaining.
// Example:
//
//	ec := NewContextBuilder().Set("question", "hi").Set("count", 2).Build()
type ContextBuilder struct {
	values map[string]any
}

// NewContextBuilder creates an empty builder.
func NewContextBuilder() *ContextBuilder {
	return &ContextBuilder{values: map[string]any{}}
}

// Set sets or overwrites a key (chainable).
func (b *ContextBuilder) Set(key string, val any) *ContextBuilder {
	b.values[key] = val
	return b
}

// Merge copies all pairs of m (chainable).
func (b *ContextBuilder) Merge(m map[string]any) *ContextBuilder {
	for k, v := range m {
		b.values[k] = v
	}
	return b
}

// Build returns a fresh *core.ExecutionContext.
func (b *ContextBuilder) Build() *core.ExecutionContext {
	return core.NewExecutionContext(b.values)
}
