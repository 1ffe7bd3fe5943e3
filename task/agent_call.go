package task

import (
	"context"
	"errors"
	"maps"
	"net/http"

	"github.com/hupe1980/a2aflow/a2a"
	"github.com/hupe1980/a2aflow/core"
)

// AgentCallOptions configures an AgentCall task.
type AgentCallOptions struct {
	HTTPClient *http.Client
	// Token is used for agents whose task configuration carries none.
	Token string
}

// AgentCall invokes a remote a2aflow agent.
//
// With a Workflow or Skill configured the request goes to the remote
// generic invoke endpoint at URL; otherwise URL is treated as a direct
// workflow endpoint. The payload is built by Payload when set, else taken
// from the "payload" option, else the invocation's context copy is sent.
type AgentCall struct {
	httpClient *http.Client
	token      string
}

// NewAgentCall creates an agent call task.
func NewAgentCall(optFns ...func(o *AgentCallOptions)) *AgentCall {
	opts := AgentCallOptions{}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &AgentCall{httpClient: opts.HTTPClient, token: opts.Token}
}

// Execute implements core.Task.
func (a *AgentCall) Execute(ctx context.Context, inv *core.Invocation) (map[string]any, error) {
	cfg, err := configAs[*core.AgentCallConfig](inv)
	if err != nil {
		return nil, err
	}

	opts := cfg.Extra().Resolve(inv.Context)

	url := cfg.URL
	if url == "" {
		url, _ = opts["url"].(string)
	}
	if url == "" {
		return nil, configError(inv, "agent_call requires a url")
	}

	payload, err := agentPayload(inv, cfg, opts)
	if err != nil {
		return nil, err
	}

	token := cfg.Token
	if token == "" {
		token = a.token
	}

	client := a2a.NewClient(url, func(o *a2a.ClientOptions) {
		o.Token = token
		if a.httpClient != nil {
			o.HTTPClient = a.httpClient
		}
	})

	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	inv.LogDebug("task.agent_call.request", "url", url, "workflow", cfg.Workflow, "skill", cfg.Skill)

	var resp *a2a.InvokeResponse
	if cfg.Workflow != "" || cfg.Skill != "" {
		resp, err = client.Invoke(ctx, a2a.InvokeRequest{
			Workflow: cfg.Workflow,
			Skill:    cfg.Skill,
			ID:       inv.RunID,
			Input:    payload,
		})
	} else {
		resp, err = client.InvokePath(ctx, url, payload)
	}

	if err != nil {
		te := NewError(inv, CodeExecution, "call %s: %v", url, err)
		te.Err = err
		var apiErr *a2a.Error
		if errors.As(err, &apiErr) {
			te.Details = apiErr.Body
		}
		return nil, te
	}

	inv.LogDebug("task.agent_call.response", "url", url, "status", resp.Status, "remote_id", resp.ID)

	if cfg.OutputKey != "" {
		return map[string]any{cfg.OutputKey: resp.Result}, nil
	}

	return resp.Result, nil
}

func agentPayload(inv *core.Invocation, cfg *core.AgentCallConfig, opts map[string]any) (map[string]any, error) {
	if cfg.Payload != nil {
		return cfg.Payload(inv.Context), nil
	}
	if raw, ok := opts["payload"]; ok {
		m, ok := raw.(map[string]any)
		if !ok {
			return nil, configError(inv, "payload option must be an object, got %T", raw)
		}
		return maps.Clone(m), nil
	}
	return inv.Context.Snapshot(), nil
}
