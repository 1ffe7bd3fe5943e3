package core

import (
	"maps"

	"github.com/hupe1980/a2aflow/internal/util"
)

// Deferred is a configuration value evaluated at execution time against the
// run's ExecutionContext.
type Deferred func(ec *ExecutionContext) any

// Text is a string configuration value that is either a literal or a
// callback evaluated against the ExecutionContext. Literals containing
// template markers ({{ }}) are rendered with the context snapshot as data.
type Text struct {
	literal string
	fn      func(ec *ExecutionContext) string
}

// Literal returns a Text holding s.
func Literal(s string) Text { return Text{literal: s} }

// TextFunc returns a Text computed by fn at execution time.
func TextFunc(fn func(ec *ExecutionContext) string) Text { return Text{fn: fn} }

// IsZero reports whether the Text holds neither a literal nor a callback.
func (t Text) IsZero() bool { return t.literal == "" && t.fn == nil }

// IsDeferred reports whether the Text is computed by a callback.
func (t Text) IsDeferred() bool { return t.fn != nil }

// Resolve evaluates the Text against ec.
func (t Text) Resolve(ec *ExecutionContext) (string, error) {
	if t.fn != nil {
		return t.fn(ec), nil
	}
	if ec == nil {
		return t.literal, nil
	}
	return util.RenderTemplate(t.literal, ec.Snapshot())
}

// String returns the literal, or a placeholder for deferred values.
func (t Text) String() string {
	if t.fn != nil {
		return "<deferred>"
	}
	return t.literal
}

// Options is the open key/value bag attached to every task configuration.
// Values of type Deferred (or func(*ExecutionContext) any) are evaluated by Resolve.
type Options map[string]any

// Set stores value under key and returns the bag, allocating it when nil.
func (o Options) Set(key string, value any) Options {
	if o == nil {
		o = Options{}
	}
	o[key] = value
	return o
}

// Get returns the raw (unresolved) value under key.
func (o Options) Get(key string) (any, bool) {
	v, ok := o[key]
	return v, ok
}

// Clone returns a shallow copy. The copy is never nil, so configurations
// cloned by the builder can be read concurrently through Extra.
func (o Options) Clone() Options {
	out := make(Options, len(o))
	maps.Copy(out, o)
	return out
}

// Resolve returns a copy of the bag with every deferred value evaluated against ec.
func (o Options) Resolve(ec *ExecutionContext) map[string]any {
	out := make(map[string]any, len(o))
	for k, v := range o {
		switch fn := v.(type) {
		case Deferred:
			out[k] = fn(ec)
		case func(*ExecutionContext) any:
			out[k] = fn(ec)
		case Text:
			s, err := fn.Resolve(ec)
			if err != nil {
				out[k] = fn.String()
				continue
			}
			out[k] = s
		default:
			out[k] = v
		}
	}
	return out
}
