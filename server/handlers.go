package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/hupe1980/a2aflow/a2a"
	"github.com/hupe1980/a2aflow/core"
	"github.com/hupe1980/a2aflow/engine"
)

func (s *Server) routes() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case a2a.DiscoveryPath:
			if !allowMethod(w, r, http.MethodGet) {
				return
			}
			s.handleDiscovery(w, r)
		case a2a.HealthPath:
			if !allowMethod(w, r, http.MethodGet) {
				return
			}
			s.handleHealth(w, r)
		case a2a.InvokePath:
			if !allowMethod(w, r, http.MethodPost) {
				return
			}
			s.handleInvoke(w, r)
		default:
			def, err := s.workflows.Get(r.URL.Path)
			if err != nil {
				s.handleNotFound(w, r)
				return
			}
			switch r.Method {
			case http.MethodGet:
				s.handleWorkflowInfo(w, r, def)
			case http.MethodPost:
				s.handleWorkflowInvoke(w, r, def)
			default:
				allowMethod(w, r, http.MethodGet, http.MethodPost)
			}
		}
	})
}

func allowMethod(w http.ResponseWriter, r *http.Request, methods ...string) bool {
	for _, m := range methods {
		if r.Method == m {
			return true
		}
	}
	for _, m := range methods {
		w.Header().Add("Allow", m)
	}
	writeError(w, r, http.StatusMethodNotAllowed, a2a.CodeInvalidRequest, "method "+r.Method+" not allowed")
	return false
}

// Card builds the agent card from the current route table.
func (s *Server) Card() *a2a.AgentCard {
	routes := s.workflows.Routes()

	card := &a2a.AgentCard{
		Name:         s.opts.Name,
		Description:  s.opts.Description,
		Version:      s.opts.Version,
		Status:       "active",
		Capabilities: make([]string, 0, len(routes)),
		Endpoints: a2a.Endpoints{
			Discovery: a2a.DiscoveryPath,
			Health:    a2a.HealthPath,
			Invoke:    a2a.InvokePath,
			Workflows: make(map[string]string, len(routes)),
		},
		Skills: make([]a2a.Skill, 0, len(routes)),
	}

	for _, route := range routes {
		def := route.Definition
		card.Capabilities = append(card.Capabilities, def.Name)
		card.Endpoints.Workflows[def.Name] = route.Path
		card.Skills = append(card.Skills, a2a.Skill{
			Name:         def.Name,
			Description:  def.Description,
			Version:      def.Version,
			Endpoint:     route.Path,
			Capabilities: def.SkillCapabilities(),
			InputModes:   []string{"application/json"},
			OutputModes:  []string{"application/json"},
		})
	}

	return card
}

func (s *Server) health() *a2a.HealthResponse {
	uptime := time.Since(s.startedAt())
	return &a2a.HealthResponse{
		Status:              "healthy",
		UptimeSeconds:       uptime.Seconds(),
		UptimeHuman:         uptime.Truncate(time.Second).String(),
		RegisteredWorkflows: s.workflows.Len(),
		Version:             s.opts.Version,
		Timestamp:           time.Now().UTC(),
		ServerInfo: a2a.ServerInfo{
			Host:           s.opts.Host,
			Port:           s.port(),
			SSL:            s.opts.CertFile != "" && s.opts.KeyFile != "",
			Authentication: s.opts.Token != "",
		},
	}
}

// Health returns the current health report.
func (s *Server) Health() *a2a.HealthResponse { return s.health() }

// port reports the bound port once listening, else the configured one.
func (s *Server) port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		if addr, ok := s.listener.Addr().(*net.TCPAddr); ok {
			return addr.Port
		}
	}
	return s.opts.Port
}

func (s *Server) startedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

func (s *Server) handleDiscovery(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.Card())
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.health())
}

func (s *Server) handleWorkflowInfo(w http.ResponseWriter, r *http.Request, def *core.WorkflowDefinition) {
	writeJSON(w, http.StatusOK, a2a.WorkflowInfo{
		Name:         def.Name,
		Description:  def.Description,
		Version:      def.Version,
		Capabilities: def.SkillCapabilities(),
		Endpoint:     r.URL.Path,
	})
}

func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	var req a2a.InvokeRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	target := req.Target()
	if target == "" {
		writeError(w, r, http.StatusNotFound, a2a.CodeWorkflowNotFound, "no workflow or skill given")
		return
	}

	route, err := s.workflows.Lookup(target)
	if err != nil {
		writeError(w, r, http.StatusNotFound, a2a.CodeWorkflowNotFound, "workflow "+target+" not found")
		return
	}

	s.execute(w, r, route.Definition, req.ID, req.Input)
}

func (s *Server) handleWorkflowInvoke(w http.ResponseWriter, r *http.Request, def *core.WorkflowDefinition) {
	var input map[string]any
	if !s.decodeBody(w, r, &input) {
		return
	}
	s.execute(w, r, def, "", input)
}

func (s *Server) execute(w http.ResponseWriter, r *http.Request, def *core.WorkflowDefinition, id string, input map[string]any) {
	if s.exec == nil {
		writeError(w, r, http.StatusInternalServerError, a2a.CodeInternalError, "no engine configured")
		return
	}

	ctx := r.Context()
	if s.opts.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.RequestTimeout)
		defer cancel()
	}

	res := s.exec.Run(ctx, def, core.NewExecutionContext(input), func(o *engine.RunOptions) {
		o.ID = id
	})

	resp := a2a.NewInvokeResponse(res)
	if res.Succeeded() {
		writeJSON(w, http.StatusOK, resp)
		return
	}

	msg := res.Error
	if msg == "" {
		msg = "workflow " + def.Name + " failed"
	}

	writeJSON(w, http.StatusInternalServerError, &a2a.ErrorBody{
		Error:     msg,
		Code:      a2a.CodeTaskExecutionError,
		Path:      r.URL.Path,
		Timestamp: time.Now().UTC(),
		RequestID: requestID(r.Context()),
		ID:        resp.ID,
		Workflow:  resp.Workflow,
		Result:    resp.Result,
		Tasks:     resp.Tasks,
	})
}

// decodeBody reads a JSON object into v. An empty body decodes as {}.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	body := io.Reader(r.Body)
	if s.opts.MaxBodyBytes > 0 {
		body = http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes)
	}

	data, err := io.ReadAll(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, http.StatusRequestEntityTooLarge, a2a.CodeInvalidRequest, "request body too large")
			return false
		}
		writeError(w, r, http.StatusBadRequest, a2a.CodeInvalidRequest, "cannot read request body")
		return false
	}

	if len(data) == 0 {
		data = []byte("{}")
	}

	if err := json.Unmarshal(data, v); err != nil {
		writeError(w, r, http.StatusBadRequest, a2a.CodeInvalidRequest, "invalid JSON: "+err.Error())
		return false
	}

	return true
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, &a2a.ErrorBody{
		Error:              "Endpoint not found",
		Code:               a2a.CodeNotFound,
		Path:               r.URL.Path,
		Timestamp:          time.Now().UTC(),
		RequestID:          requestID(r.Context()),
		AvailableEndpoints: s.availableEndpoints(),
	})
}

func (s *Server) availableEndpoints() []string {
	out := []string{a2a.DiscoveryPath, a2a.HealthPath, a2a.InvokePath}
	for _, route := range s.workflows.Routes() {
		out = append(out, route.Path)
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, msg string) {
	writeJSON(w, status, &a2a.ErrorBody{
		Error:     msg,
		Code:      code,
		Path:      r.URL.Path,
		Timestamp: time.Now().UTC(),
		RequestID: requestID(r.Context()),
	})
}
