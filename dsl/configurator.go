package dsl

import (
	"time"

	"github.com/hupe1980/a2aflow/core"
)

// Configurator holds the setters shared by every task verb. Typed
// configurators embed it with themselves as T so that chained calls keep the
// concrete type.
type Configurator[T any] struct {
	self T
	spec *core.TaskSpec
	b    *Builder
}

func newConfigurator[T any](self T, spec *core.TaskSpec, b *Builder) Configurator[T] {
	return Configurator[T]{self: self, spec: spec, b: b}
}

// Name returns the task name.
func (c *Configurator[T]) Name() string { return c.spec.Name }

// Input declares the context keys visible to the task. Without declared
// inputs the task sees the whole context.
func (c *Configurator[T]) Input(keys ...string) T {
	c.spec.Inputs = append(c.spec.Inputs, keys...)
	return c.self
}

// Output declares the keys merged back into the context. Without declared
// outputs every produced key is merged.
func (c *Configurator[T]) Output(keys ...string) T {
	c.spec.Outputs = append(c.spec.Outputs, keys...)
	return c.self
}

// Description documents the task.
func (c *Configurator[T]) Description(desc string) T {
	c.spec.Description = desc
	return c.self
}

// Tags attaches free form labels.
func (c *Configurator[T]) Tags(tags ...string) T {
	c.spec.Tags = append(c.spec.Tags, tags...)
	return c.self
}

// Retries sets the number of additional attempts after the first failure.
func (c *Configurator[T]) Retries(n int) T {
	if n < 0 {
		c.b.fail(c.spec.Name, "retries must not be negative")
		return c.self
	}
	c.spec.Retries = n
	c.spec.RetriesSet = true
	return c.self
}

// Timeout bounds each attempt.
func (c *Configurator[T]) Timeout(d time.Duration) T {
	if d < 0 {
		c.b.fail(c.spec.Name, "timeout must not be negative")
		return c.self
	}
	c.spec.Timeout = d
	return c.self
}

// Meta stores a metadata entry.
func (c *Configurator[T]) Meta(key string, value any) T {
	if c.spec.Metadata == nil {
		c.spec.Metadata = map[string]any{}
	}
	c.spec.Metadata[key] = value
	return c.self
}

// Set stores a setting without a first-class setter in the configuration's
// option bag. Values of type core.Deferred are evaluated at execution time.
func (c *Configurator[T]) Set(key string, value any) T {
	c.spec.Config.Extra().Set(key, value)
	return c.self
}

// SetFunc stores a deferred setting evaluated against the context.
func (c *Configurator[T]) SetFunc(key string, fn func(ec *core.ExecutionContext) any) T {
	return c.Set(key, core.Deferred(fn))
}

// RunIf runs the task only when cond holds. Multiple conditions must all hold.
func (c *Configurator[T]) RunIf(cond core.Condition) T {
	if cond == nil {
		c.b.fail(c.spec.Name, "condition must not be nil")
		return c.self
	}
	c.addCondition(cond)
	return c.self
}

// SkipIf skips the task when cond holds.
func (c *Configurator[T]) SkipIf(cond core.Condition) T {
	if cond == nil {
		c.b.fail(c.spec.Name, "condition must not be nil")
		return c.self
	}
	c.addCondition(func(ec *core.ExecutionContext) bool { return !cond(ec) })
	return c.self
}

// RunWhen runs the task only when the context holds value under key.
func (c *Configurator[T]) RunWhen(key string, value any) T {
	c.addCondition(func(ec *core.ExecutionContext) bool {
		v, ok := ec.Get(key)
		return ok && valuesEqual(v, value)
	})
	return c.self
}

// SkipWhen skips the task when the context holds value under key.
func (c *Configurator[T]) SkipWhen(key string, value any) T {
	c.addCondition(func(ec *core.ExecutionContext) bool {
		v, ok := ec.Get(key)
		return !ok || !valuesEqual(v, value)
	})
	return c.self
}

// Process post-processes the produced map before it is merged.
func (c *Configurator[T]) Process(fn core.ProcessFunc) T {
	if fn == nil {
		c.b.fail(c.spec.Name, "process function must not be nil")
		return c.self
	}
	if prev := c.spec.Process; prev != nil {
		c.spec.Process = func(ec *core.ExecutionContext, out map[string]any) (map[string]any, error) {
			out, err := prev(ec, out)
			if err != nil {
				return nil, err
			}
			return fn(ec, out)
		}
		return c.self
	}
	c.spec.Process = fn
	return c.self
}

func (c *Configurator[T]) addCondition(cond core.Condition) {
	prev := c.spec.Condition
	if prev == nil {
		c.spec.Condition = cond
		return
	}
	c.spec.Condition = func(ec *core.ExecutionContext) bool {
		return prev(ec) && cond(ec)
	}
}
