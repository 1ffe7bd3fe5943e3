package server

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"math/big"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/a2aflow/a2a"
	"github.com/hupe1980/a2aflow/core"
	"github.com/hupe1980/a2aflow/dsl"
	"github.com/hupe1980/a2aflow/engine"
	"github.com/hupe1980/a2aflow/registry"
	"github.com/hupe1980/a2aflow/task"
)

func echoWorkflow(t *testing.T) *core.WorkflowDefinition {
	t.Helper()
	def, err := dsl.New("EchoWorkflow").Do(func(b *dsl.Builder) {
		b.Handle("echo", func(_ context.Context, ec *core.ExecutionContext) (map[string]any, error) {
			return ec.Snapshot(), nil
		})
	}).Describe("Echoes its input").Build()
	require.NoError(t, err)
	return def
}

func failingWorkflow(t *testing.T) *core.WorkflowDefinition {
	t.Helper()
	def, err := dsl.New("FailingWorkflow").Do(func(b *dsl.Builder) {
		b.Handle("prepare", func(context.Context, *core.ExecutionContext) (map[string]any, error) {
			return map[string]any{"prepared": true}, nil
		})
		b.Handle("explode", func(context.Context, *core.ExecutionContext) (map[string]any, error) {
			return nil, errors.New("boom")
		})
	}).Build()
	require.NoError(t, err)
	return def
}

func newEngine(t *testing.T) *engine.Engine {
	t.Helper()
	tasks := registry.NewTaskRegistry()
	_, err := task.RegisterBuiltins(tasks)
	require.NoError(t, err)
	return engine.New(tasks)
}

func newTestServer(t *testing.T, optFns ...func(o *Options)) (*Server, *httptest.Server) {
	t.Helper()
	srv := New(newEngine(t), optFns...)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts
}

func TestEchoWorkflowScenario(t *testing.T) {
	srv, ts := newTestServer(t)

	path, err := srv.RegisterWorkflow(echoWorkflow(t), "/agents/echo")
	require.NoError(t, err)
	require.Equal(t, "/agents/echo", path)

	client := a2a.NewClient(ts.URL)
	resp, err := client.InvokePath(t.Context(), "/agents/echo", map[string]any{"text": "hi"})
	require.NoError(t, err)

	assert.Equal(t, "success", resp.Status)
	assert.Equal(t, "EchoWorkflow", resp.Workflow)
	assert.Equal(t, map[string]any{"text": "hi"}, resp.Result)
	require.Len(t, resp.Tasks, 1)
	assert.Equal(t, "echo", resp.Tasks[0].Name)
	assert.Equal(t, core.TypeDirectHandler, resp.Tasks[0].Type)
}

func TestDirectAndInvokeAgree(t *testing.T) {
	srv, ts := newTestServer(t)
	_, err := srv.RegisterWorkflow(echoWorkflow(t), "/agents/echo")
	require.NoError(t, err)

	client := a2a.NewClient(ts.URL)
	input := map[string]any{"text": "hi", "n": 3.0}

	direct, err := client.InvokePath(t.Context(), "/agents/echo", input)
	require.NoError(t, err)

	for _, target := range []a2a.InvokeRequest{
		{Workflow: "EchoWorkflow", Input: input},
		{Workflow: "/agents/echo", Input: input},
		{Skill: "EchoWorkflow", Input: input},
	} {
		viaInvoke, err := client.Invoke(t.Context(), target)
		require.NoError(t, err)

		assert.Equal(t, direct.Status, viaInvoke.Status)
		assert.Equal(t, direct.Workflow, viaInvoke.Workflow)
		assert.Equal(t, direct.Result, viaInvoke.Result)
		require.Len(t, viaInvoke.Tasks, len(direct.Tasks))
		for i := range direct.Tasks {
			assert.Equal(t, direct.Tasks[i].Name, viaInvoke.Tasks[i].Name)
			assert.Equal(t, direct.Tasks[i].Status, viaInvoke.Tasks[i].Status)
		}
	}
}

func TestInvokeUsesRequestID(t *testing.T) {
	srv, ts := newTestServer(t)
	_, err := srv.RegisterWorkflow(echoWorkflow(t), "")
	require.NoError(t, err)

	resp, err := a2a.NewClient(ts.URL).Invoke(t.Context(), a2a.InvokeRequest{Workflow: "EchoWorkflow", ID: "run-42"})
	require.NoError(t, err)
	assert.Equal(t, "run-42", resp.ID)
	assert.Equal(t, map[string]any{}, resp.Result)
}

func TestDiscoveryAndHealthWithoutWorkflows(t *testing.T) {
	_, ts := newTestServer(t, func(o *Options) {
		o.Name = "empty"
		o.Version = "0.1.0"
		o.Token = "secret"
	})
	client := a2a.NewClient(ts.URL)

	card, err := client.Card(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "empty", card.Name)
	assert.Equal(t, "active", card.Status)
	assert.Empty(t, card.Skills)
	assert.NotNil(t, card.Capabilities)
	assert.Equal(t, a2a.InvokePath, card.Endpoints.Invoke)

	health, err := client.Health(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, 0, health.RegisteredWorkflows)
	assert.Equal(t, "0.1.0", health.Version)
	assert.True(t, health.ServerInfo.Authentication)
	assert.False(t, health.ServerInfo.SSL)
}

func TestCardListsSkills(t *testing.T) {
	srv, ts := newTestServer(t)
	_, err := srv.RegisterWorkflow(echoWorkflow(t), "/agents/echo")
	require.NoError(t, err)

	card, err := a2a.NewClient(ts.URL).Card(t.Context())
	require.NoError(t, err)

	assert.Equal(t, []string{"EchoWorkflow"}, card.Capabilities)
	assert.Equal(t, map[string]string{"EchoWorkflow": "/agents/echo"}, card.Endpoints.Workflows)

	skill, ok := card.Skill("EchoWorkflow")
	require.True(t, ok)
	assert.Equal(t, "/agents/echo", skill.Endpoint)
	assert.Equal(t, "Echoes its input", skill.Description)
	assert.Equal(t, []string{"echo"}, skill.Capabilities)
}

func TestWorkflowInfo(t *testing.T) {
	srv, ts := newTestServer(t)
	_, err := srv.RegisterWorkflow(echoWorkflow(t), "/agents/echo")
	require.NoError(t, err)

	info, err := a2a.NewClient(ts.URL).Workflow(t.Context(), "/agents/echo")
	require.NoError(t, err)
	assert.Equal(t, "EchoWorkflow", info.Name)
	assert.Equal(t, "/agents/echo", info.Endpoint)
	assert.Equal(t, []string{"echo"}, info.Capabilities)
}

func TestAuth(t *testing.T) {
	srv, ts := newTestServer(t, func(o *Options) { o.Token = "secret" })
	_, err := srv.RegisterWorkflow(echoWorkflow(t), "/agents/echo")
	require.NoError(t, err)

	var apiErr *a2a.Error

	_, err = a2a.NewClient(ts.URL).Invoke(t.Context(), a2a.InvokeRequest{Workflow: "EchoWorkflow"})
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, a2a.CodeUnauthorized, apiErr.Body.Code)

	_, err = a2a.NewClient(ts.URL, func(o *a2a.ClientOptions) { o.Token = "wrong" }).InvokePath(t.Context(), "/agents/echo", nil)
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)

	authed := a2a.NewClient(ts.URL, func(o *a2a.ClientOptions) { o.Token = "secret" })

	_, err = authed.Invoke(t.Context(), a2a.InvokeRequest{})
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, a2a.CodeWorkflowNotFound, apiErr.Body.Code)

	resp, err := authed.InvokePath(t.Context(), "/agents/echo", map[string]any{"text": "hi"})
	require.NoError(t, err)
	assert.Equal(t, "success", resp.Status)
}

func TestUnknownTargetIs404(t *testing.T) {
	_, ts := newTestServer(t)

	_, err := a2a.NewClient(ts.URL).Invoke(t.Context(), a2a.InvokeRequest{Workflow: "Nope"})

	var apiErr *a2a.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, a2a.CodeWorkflowNotFound, apiErr.Body.Code)
}

func TestUnmatchedPath(t *testing.T) {
	srv, ts := newTestServer(t)
	_, err := srv.RegisterWorkflow(echoWorkflow(t), "/agents/echo")
	require.NoError(t, err)

	resp, err := http.Get(ts.URL + "/missing")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	var body a2a.ErrorBody
	require.NoError(t, decode(resp, &body))
	assert.Equal(t, "Endpoint not found", body.Error)
	assert.Equal(t, "/missing", body.Path)
	assert.False(t, body.Timestamp.IsZero())
	assert.NotEmpty(t, body.RequestID)
	assert.Equal(t, []string{a2a.DiscoveryPath, a2a.HealthPath, a2a.InvokePath, "/agents/echo"}, body.AvailableEndpoints)
}

func TestInvalidJSON(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Post(ts.URL+a2a.InvokePath, "application/json", strings.NewReader("{not json"))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var body a2a.ErrorBody
	require.NoError(t, decode(resp, &body))
	assert.Equal(t, a2a.CodeInvalidRequest, body.Code)
}

func TestBodyTooLarge(t *testing.T) {
	srv, ts := newTestServer(t, func(o *Options) { o.MaxBodyBytes = 16 })
	_, err := srv.RegisterWorkflow(echoWorkflow(t), "/agents/echo")
	require.NoError(t, err)

	resp, err := http.Post(ts.URL+"/agents/echo", "application/json", strings.NewReader(`{"text":"this is far too long"}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
}

func TestMethodNotAllowed(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + a2a.InvokePath)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	assert.Equal(t, http.MethodPost, resp.Header.Get("Allow"))
}

func TestFailedRunReturnsPartialResult(t *testing.T) {
	srv, ts := newTestServer(t)
	_, err := srv.RegisterWorkflow(failingWorkflow(t), "")
	require.NoError(t, err)

	_, err = a2a.NewClient(ts.URL).Invoke(t.Context(), a2a.InvokeRequest{Workflow: "FailingWorkflow", Input: map[string]any{"x": 1.0}})

	var apiErr *a2a.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
	assert.Equal(t, a2a.CodeTaskExecutionError, apiErr.Body.Code)
	assert.Contains(t, apiErr.Body.Error, "boom")
	assert.Equal(t, "FailingWorkflow", apiErr.Body.Workflow)
	assert.Equal(t, true, apiErr.Body.Result["prepared"])
	assert.Equal(t, 1.0, apiErr.Body.Result["x"])
	require.Len(t, apiErr.Body.Tasks, 2)
	assert.Equal(t, "success", apiErr.Body.Tasks[0].Status)
	assert.Equal(t, "failure", apiErr.Body.Tasks[1].Status)
	assert.NotContains(t, apiErr.Body.Error, "goroutine")

	assert.Equal(t, int64(1), srv.Stats().ServerErrors)
	assert.Equal(t, int64(1), srv.Stats().Engine.Failed)
}

func TestRegisterAllWorkflows(t *testing.T) {
	reg := registry.NewWorkflowRegistry()
	_, err := reg.Register(echoWorkflow(t), "")
	require.NoError(t, err)
	_, err = reg.Register(failingWorkflow(t), "/agents/fail")
	require.NoError(t, err)

	srv := New(newEngine(t))
	require.NoError(t, srv.RegisterAllWorkflows(reg))

	routes := srv.Workflows().Routes()
	require.Len(t, routes, 2)
	assert.Equal(t, registry.DefaultPath("EchoWorkflow"), routes[0].Path)
	assert.Equal(t, "/agents/fail", routes[1].Path)

	err = srv.RegisterAllWorkflows(reg)
	assert.Error(t, err)
}

func TestRegisterRejectsReservedPath(t *testing.T) {
	srv := New(newEngine(t))

	_, err := srv.RegisterWorkflow(echoWorkflow(t), a2a.HealthPath)

	var defErr *core.DefinitionError
	assert.ErrorAs(t, err, &defErr)
}

func TestTLSMisconfiguration(t *testing.T) {
	dir := t.TempDir()
	certFile, keyFile := writeSelfSigned(t, dir)

	tests := []struct {
		name      string
		cert, key string
		wantErr   bool
	}{
		{name: "plaintext", wantErr: false},
		{name: "cert only", cert: certFile, wantErr: true},
		{name: "key only", key: keyFile, wantErr: true},
		{name: "missing files", cert: filepath.Join(dir, "nope.pem"), key: filepath.Join(dir, "nope.key"), wantErr: true},
		{name: "swapped", cert: keyFile, key: certFile, wantErr: true},
		{name: "valid pair", cert: certFile, key: keyFile, wantErr: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := New(nil, func(o *Options) {
				o.CertFile = tt.cert
				o.KeyFile = tt.key
			})

			err := srv.Validate()
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}

			var cfgErr *core.ServerConfigurationError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, "tls", cfgErr.Field)
			assert.Equal(t, core.CodeServerConfiguration, core.ErrorCode(err))

			assert.ErrorAs(t, srv.Start(t.Context()), &cfgErr)
		})
	}
}

func TestBindValidation(t *testing.T) {
	tests := []struct {
		name  string
		host  string
		port  int
		field string
	}{
		{name: "negative port", host: "127.0.0.1", port: -1, field: "port"},
		{name: "port too large", host: "127.0.0.1", port: 70000, field: "port"},
		{name: "bad host", host: "not a host!", port: 8080, field: "host"},
		{name: "empty label", host: "a..b", port: 8080, field: "host"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := New(nil, func(o *Options) {
				o.Host = tt.host
				o.Port = tt.port
			})

			var cfgErr *core.ServerConfigurationError
			require.ErrorAs(t, srv.Start(t.Context()), &cfgErr)
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}

	assert.NoError(t, New(nil, func(o *Options) { o.Host = "localhost" }).Validate())
	assert.NoError(t, New(nil, func(o *Options) { o.Host = "::1" }).Validate())
}

func TestStopWithoutStart(t *testing.T) {
	srv := New(nil)
	assert.NoError(t, srv.Stop(t.Context()))
	assert.NoError(t, srv.Stop(t.Context()))
	assert.Empty(t, srv.Addr())
}

func TestStartStopLifecycle(t *testing.T) {
	srv := New(newEngine(t), func(o *Options) {
		o.Host = "127.0.0.1"
		o.Port = 0
		o.HandleSignals = false
		o.DiagnosticSignal = false
		o.ShutdownTimeout = time.Second
	})
	_, err := srv.RegisterWorkflow(echoWorkflow(t), "/agents/echo")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- srv.Start(context.Background()) }()

	select {
	case <-srv.Ready():
	case err := <-done:
		t.Fatalf("start failed: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not become ready")
	}

	client := a2a.NewClient("http://" + srv.Addr())
	resp, err := client.InvokePath(t.Context(), "/agents/echo", map[string]any{"text": "hi"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"text": "hi"}, resp.Result)

	health, err := client.Health(t.Context())
	require.NoError(t, err)
	_, port, err := net.SplitHostPort(srv.Addr())
	require.NoError(t, err)
	assert.NotZero(t, health.ServerInfo.Port)
	assert.Equal(t, port, strconv.Itoa(health.ServerInfo.Port))

	// The route table is frozen once serving.
	_, err = srv.RegisterWorkflow(failingWorkflow(t), "")
	assert.Error(t, err)

	assert.ErrorIs(t, srv.Start(context.Background()), ErrAlreadyStarted)

	require.NoError(t, srv.Stop(context.Background()))
	require.NoError(t, srv.Stop(context.Background()))

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestStartStopsWhenContextDone(t *testing.T) {
	srv := New(newEngine(t), func(o *Options) {
		o.Host = "127.0.0.1"
		o.Port = 0
		o.HandleSignals = false
		o.DiagnosticSignal = false
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()

	<-srv.Ready()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func writeSelfSigned(t *testing.T, dir string) (string, string) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "localhost"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		DNSNames:     []string{"localhost"},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)

	keyDER, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)

	certFile := filepath.Join(dir, "cert.pem")
	keyFile := filepath.Join(dir, "key.pem")
	require.NoError(t, os.WriteFile(certFile, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o600))
	require.NoError(t, os.WriteFile(keyFile, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0o600))

	return certFile, keyFile
}
