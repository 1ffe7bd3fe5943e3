package task

import (
	"context"

	"github.com/hupe1980/a2aflow/core"
)

// DirectHandler runs the inline Go function attached to a direct_handler
// task. The function sees the invocation's context copy.
type DirectHandler struct{}

// NewDirectHandler creates a DirectHandler.
func NewDirectHandler() *DirectHandler { return &DirectHandler{} }

// Execute implements core.Task.
func (h *DirectHandler) Execute(ctx context.Context, inv *core.Invocation) (map[string]any, error) {
	cfg, err := configAs[*core.HandlerConfig](inv)
	if err != nil {
		return nil, err
	}
	if cfg.Fn == nil {
		return nil, configError(inv, "direct_handler requires a handler function")
	}

	out, err := cfg.Fn(ctx, inv.Context)
	if err != nil {
		return nil, executionError(inv, err)
	}

	return out, nil
}
