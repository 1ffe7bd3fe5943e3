package a2a

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/a2aflow/core"
)

func newTestServer(t *testing.T, token string) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc(DiscoveryPath, func(w http.ResponseWriter, r *http.Request) {
		writeTestJSON(w, http.StatusOK, AgentCard{
			Name:         "demo",
			Version:      "1.0.0",
			Status:       "active",
			Capabilities: []string{"EchoWorkflow"},
			Endpoints: Endpoints{
				Discovery: DiscoveryPath,
				Health:    HealthPath,
				Invoke:    InvokePath,
				Workflows: map[string]string{"EchoWorkflow": "/agents/echo"},
			},
			Skills: []Skill{{Name: "EchoWorkflow", Endpoint: "/agents/echo", Capabilities: []string{"echo"}}},
		})
	})
	mux.HandleFunc(HealthPath, func(w http.ResponseWriter, r *http.Request) {
		writeTestJSON(w, http.StatusOK, HealthResponse{Status: "healthy", RegisteredWorkflows: 1})
	})
	mux.HandleFunc(InvokePath, func(w http.ResponseWriter, r *http.Request) {
		if token != "" && r.Header.Get("Authorization") != "Bearer "+token {
			writeTestJSON(w, http.StatusUnauthorized, ErrorBody{Error: "Unauthorized", Code: CodeUnauthorized, Path: r.URL.Path})
			return
		}
		var req InvokeRequest
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) {
			return
		}
		if req.Target() != "EchoWorkflow" {
			writeTestJSON(w, http.StatusNotFound, ErrorBody{Error: "workflow not found", Code: CodeWorkflowNotFound, Path: r.URL.Path})
			return
		}
		writeTestJSON(w, http.StatusOK, InvokeResponse{ID: req.ID, Workflow: "EchoWorkflow", Status: "success", Result: req.Input})
	})
	mux.HandleFunc("/agents/echo", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			writeTestJSON(w, http.StatusOK, WorkflowInfo{Name: "EchoWorkflow", Endpoint: "/agents/echo"})
			return
		}
		var in map[string]any
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&in)) {
			return
		}
		writeTestJSON(w, http.StatusInternalServerError, ErrorBody{
			Error:  "task echo failed",
			Code:   CodeTaskExecutionError,
			Path:   r.URL.Path,
			Result: in,
			Tasks:  []TaskStatus{{Name: "echo", Status: "failure"}},
		})
	})
	mux.HandleFunc("/plain", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func writeTestJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestClient_CardAndHealth(t *testing.T) {
	srv := newTestServer(t, "")
	c := NewClient(srv.URL + "/")

	card, err := c.Card(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "demo", card.Name)
	assert.Equal(t, "/agents/echo", card.Endpoints.Workflows["EchoWorkflow"])

	skill, ok := card.Skill("EchoWorkflow")
	require.True(t, ok)
	assert.Equal(t, []string{"echo"}, skill.Capabilities)

	_, ok = card.Skill("missing")
	assert.False(t, ok)

	h, err := c.Health(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "healthy", h.Status)
	assert.Equal(t, 1, h.RegisteredWorkflows)

	info, err := c.Workflow(t.Context(), "agents/echo")
	require.NoError(t, err)
	assert.Equal(t, "EchoWorkflow", info.Name)
}

func TestClient_InvokeWithToken(t *testing.T) {
	srv := newTestServer(t, "secret")

	resp, err := NewClient(srv.URL, func(o *ClientOptions) { o.Token = "secret" }).
		Invoke(t.Context(), InvokeRequest{Skill: "EchoWorkflow", ID: "run-1", Input: map[string]any{"text": "hi"}})
	require.NoError(t, err)
	assert.Equal(t, "run-1", resp.ID)
	assert.Equal(t, map[string]any{"text": "hi"}, resp.Result)

	_, err = NewClient(srv.URL).Invoke(t.Context(), InvokeRequest{Workflow: "EchoWorkflow"})
	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, CodeUnauthorized, apiErr.Body.Code)
	assert.Contains(t, apiErr.Error(), "UNAUTHORIZED")
}

func TestClient_ErrorBodies(t *testing.T) {
	srv := newTestServer(t, "")
	c := NewClient(srv.URL)

	_, err := c.Invoke(t.Context(), InvokeRequest{Workflow: "Nope"})
	var apiErr *Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, CodeWorkflowNotFound, apiErr.Body.Code)

	_, err = c.InvokePath(t.Context(), "/agents/echo", map[string]any{"x": 1.0})
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
	assert.Equal(t, map[string]any{"x": 1.0}, apiErr.Body.Result)
	require.Len(t, apiErr.Body.Tasks, 1)
	assert.Equal(t, "failure", apiErr.Body.Tasks[0].Status)

	err = c.do(t.Context(), http.MethodGet, "/plain", nil, nil)
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	assert.Equal(t, "boom", apiErr.Body.Error)
	assert.Equal(t, "a2a: 502: boom", apiErr.Error())
}

func TestClient_ContextCancelled(t *testing.T) {
	srv := newTestServer(t, "")
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	_, err := NewClient(srv.URL).Card(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewInvokeResponse(t *testing.T) {
	res := &core.WorkflowResult{
		ID:       "r1",
		Workflow: "Demo",
		Status:   core.StatusFailure,
		Tasks: []core.TaskResult{
			{Name: "a", Type: "stub", Status: core.StatusSuccess, Duration: time.Millisecond, DurationMS: 1, Attempts: 1},
			{Name: "b", Type: "stub", Status: core.StatusFailure, Attempts: 2, Recovered: true, Error: "boom"},
		},
	}

	resp := NewInvokeResponse(res)
	assert.Equal(t, "failure", resp.Status)
	assert.NotNil(t, resp.Result)
	require.Len(t, resp.Tasks, 2)
	assert.Equal(t, TaskStatus{Name: "b", Type: "stub", Status: "failure", Attempts: 2, Recovered: true, Error: "boom"}, resp.Tasks[1])
}
