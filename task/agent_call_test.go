package task

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/a2aflow/a2a"
	"github.com/hupe1980/a2aflow/core"
)

type remoteCall struct {
	Path  string
	Auth  string
	Body  map[string]any
	Input map[string]any
}

type remoteAgent struct {
	mu    sync.Mutex
	calls []remoteCall
}

func (a *remoteAgent) Calls() []remoteCall {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]remoteCall(nil), a.calls...)
}

func newRemoteAgent(t *testing.T) (*httptest.Server, *remoteAgent) {
	t.Helper()

	agent := &remoteAgent{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&body)) {
			return
		}

		call := remoteCall{Path: r.URL.Path, Auth: r.Header.Get("Authorization"), Body: body, Input: body}
		if r.URL.Path == a2a.InvokePath {
			call.Input, _ = body["input"].(map[string]any)
		}
		agent.mu.Lock()
		agent.calls = append(agent.calls, call)
		agent.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if call.Input["fail"] == true {
			w.WriteHeader(http.StatusInternalServerError)
			_ = json.NewEncoder(w).Encode(a2a.ErrorBody{Error: "remote failed", Code: a2a.CodeTaskExecutionError, Path: r.URL.Path})
			return
		}
		if call.Input["slow"] == true {
			time.Sleep(200 * time.Millisecond)
		}
		_ = json.NewEncoder(w).Encode(a2a.InvokeResponse{
			ID:       "remote-1",
			Workflow: "Echo",
			Status:   "success",
			Result:   map[string]any{"echo": call.Input["text"]},
		})
	}))
	t.Cleanup(srv.Close)
	return srv, agent
}

func agentSpec(cfg *core.AgentCallConfig) *core.TaskSpec {
	return &core.TaskSpec{Name: "remote", Type: core.TypeAgentCall, Config: cfg}
}

func TestAgentCall_DirectEndpoint(t *testing.T) {
	srv, agent := newRemoteAgent(t)

	out, err := NewAgentCall().Execute(t.Context(), invocation(agentSpec(&core.AgentCallConfig{
		URL:   srv.URL + "/agents/echo",
		Token: "tkn",
	}), map[string]any{"text": "hi"}))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"echo": "hi"}, out)

	calls := agent.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "/agents/echo", calls[0].Path)
	assert.Equal(t, "Bearer tkn", calls[0].Auth)
	assert.Equal(t, map[string]any{"text": "hi"}, calls[0].Body)
}

func TestAgentCall_InvokeEnvelope(t *testing.T) {
	srv, agent := newRemoteAgent(t)

	call := NewAgentCall(func(o *AgentCallOptions) { o.Token = "default" })
	out, err := call.Execute(t.Context(), invocation(agentSpec(&core.AgentCallConfig{
		URL:      srv.URL,
		Workflow: "Echo",
		Payload: func(ec *core.ExecutionContext) map[string]any {
			q, _ := ec.Get("question")
			return map[string]any{"text": q}
		},
		OutputKey: "remote",
	}), map[string]any{"question": "why", "secret": "x"}))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"remote": map[string]any{"echo": "why"}}, out)

	calls := agent.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, a2a.InvokePath, calls[0].Path)
	assert.Equal(t, "Bearer default", calls[0].Auth)
	assert.Equal(t, "Echo", calls[0].Body["workflow"])
	assert.Equal(t, "run-1", calls[0].Body["id"])
	assert.Equal(t, map[string]any{"text": "why"}, calls[0].Input)
}

func TestAgentCall_OptionsFallback(t *testing.T) {
	srv, agent := newRemoteAgent(t)

	cfg := &core.AgentCallConfig{}
	cfg.Extra().Set("url", srv.URL+"/agents/echo").Set("payload", map[string]any{"text": "opt"})

	out, err := NewAgentCall().Execute(t.Context(), invocation(agentSpec(cfg), nil))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"echo": "opt"}, out)
	require.Len(t, agent.Calls(), 1)
	assert.Empty(t, agent.Calls()[0].Auth)
}

func TestAgentCall_Errors(t *testing.T) {
	srv, _ := newRemoteAgent(t)

	_, err := NewAgentCall().Execute(t.Context(), invocation(agentSpec(&core.AgentCallConfig{}), nil))
	requireCode(t, err, CodeConfig)

	bad := &core.AgentCallConfig{URL: srv.URL}
	bad.Extra().Set("payload", "not an object")
	_, err = NewAgentCall().Execute(t.Context(), invocation(agentSpec(bad), nil))
	requireCode(t, err, CodeConfig)

	_, err = NewAgentCall().Execute(t.Context(), invocation(agentSpec(&core.AgentCallConfig{URL: srv.URL + "/agents/echo"}),
		map[string]any{"fail": true}))
	te := requireCode(t, err, CodeExecution)
	body, ok := te.Details.(a2a.ErrorBody)
	require.True(t, ok)
	assert.Equal(t, a2a.CodeTaskExecutionError, body.Code)
	var apiErr *a2a.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)

	_, err = NewAgentCall().Execute(t.Context(), invocation(agentSpec(&core.AgentCallConfig{
		URL:     srv.URL + "/agents/echo",
		Timeout: 20 * time.Millisecond,
	}), map[string]any{"slow": true}))
	requireCode(t, err, CodeExecution)
}
