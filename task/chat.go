package task

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/hupe1980/a2aflow/core"
	"github.com/hupe1980/a2aflow/logging"
	"github.com/hupe1980/a2aflow/model"
)

// DefaultChatOutputKey receives the completion text when no output key is configured.
const DefaultChatOutputKey = "response"

// ChatOptions configures a ChatTask.
type ChatOptions struct {
	// DefaultProvider names the model used when a task selects none. When
	// empty and exactly one model is registered, that model is used.
	DefaultProvider string
	Logger          logging.Logger
}

// ChatTask sends a prompt rendered from the context to a model.Model.
//
// The task's ChatConfig selects the provider and overrides model, sampling
// temperature and token limit. Options set through the DSL's Set are honored
// as fallbacks: "prompt", "system", "stream" and "include_usage".
type ChatTask struct {
	models          map[string]model.Model
	defaultProvider string
	logger          logging.Logger
}

// NewChatTask creates a chat task over the given providers.
func NewChatTask(models map[string]model.Model, optFns ...func(o *ChatOptions)) *ChatTask {
	opts := ChatOptions{
		Logger: logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &ChatTask{
		models:          maps.Clone(models),
		defaultProvider: opts.DefaultProvider,
		logger:          opts.Logger,
	}
}

// Providers returns the registered provider names, sorted.
func (t *ChatTask) Providers() []string {
	return slices.Sorted(maps.Keys(t.models))
}

// Execute implements core.Task.
func (t *ChatTask) Execute(ctx context.Context, inv *core.Invocation) (map[string]any, error) {
	cfg, err := configAs[*core.ChatConfig](inv)
	if err != nil {
		return nil, err
	}

	m, err := t.resolve(inv, cfg.Provider)
	if err != nil {
		return nil, err
	}

	req, err := buildChatRequest(inv, cfg)
	if err != nil {
		return nil, err
	}

	info := m.Info()
	inv.LogDebug("task.chat.request",
		"provider", info.Provider,
		"model", info.Name,
		"stream", req.Stream,
		"prompt_length", len(req.LastUserText()),
	)

	var chunks int
	resp, err := model.Collect(ctx, m, req, func(model.Response) { chunks++ })
	if err != nil {
		t.logger.Warn("task.chat.failed", "task", inv.Spec.Name, "provider", info.Provider, "error", err)
		return nil, executionError(inv, fmt.Errorf("%s: %w", info.Provider, err))
	}

	inv.LogDebug("task.chat.response",
		"provider", info.Provider,
		"finish_reason", resp.FinishReason,
		"chunks", chunks,
	)

	key := cfg.OutputKey
	if key == "" {
		key = DefaultChatOutputKey
	}

	out := map[string]any{key: resp.Text}
	if optBool(cfg.Extra(), "include_usage") && resp.Usage != nil {
		out["usage"] = map[string]any{
			"prompt_tokens":     resp.Usage.PromptTokens,
			"completion_tokens": resp.Usage.CompletionTokens,
			"total_tokens":      resp.Usage.TotalTokens,
		}
	}

	return out, nil
}

func (t *ChatTask) resolve(inv *core.Invocation, provider string) (model.Model, error) {
	if provider == "" {
		provider = t.defaultProvider
	}
	if provider == "" && len(t.models) == 1 {
		for _, m := range t.models {
			return m, nil
		}
	}
	if provider == "" {
		return nil, configError(inv, "chat task selects no provider (available: %s)", strings.Join(t.Providers(), ", "))
	}
	m, ok := t.models[provider]
	if !ok || m == nil {
		return nil, configError(inv, "unknown chat provider %q", provider)
	}
	return m, nil
}

func buildChatRequest(inv *core.Invocation, cfg *core.ChatConfig) (model.Request, error) {
	extra := cfg.Extra()

	promptText := cfg.Prompt
	if promptText.IsZero() {
		if s, ok := extra.Get("prompt"); ok {
			promptText = core.Literal(fmt.Sprint(s))
		}
	}
	if promptText.IsZero() {
		return model.Request{}, configError(inv, "chat requires a prompt")
	}

	prompt, err := promptText.Resolve(inv.Context)
	if err != nil {
		return model.Request{}, configError(inv, "render prompt: %v", err)
	}

	systemText := cfg.System
	if systemText.IsZero() {
		if s, ok := extra.Get("system"); ok {
			systemText = core.Literal(fmt.Sprint(s))
		}
	}

	system, err := systemText.Resolve(inv.Context)
	if err != nil {
		return model.Request{}, configError(inv, "render system prompt: %v", err)
	}

	req := model.Prompt(system, prompt)
	req.Model = cfg.Model
	req.Temperature = cfg.Temperature
	req.MaxTokens = cfg.MaxTokens
	req.Stream = optBool(extra, "stream")

	return req, nil
}

func optBool(o core.Options, key string) bool {
	v, ok := o.Get(key)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}
