package a2a

import (
	"time"
)

// Well-known endpoint paths.
const (
	DiscoveryPath = "/.well-known/agent.json"
	HealthPath    = "/health"
	InvokePath    = "/invoke"
)

// Error codes carried in ErrorBody.Code.
const (
	CodeInvalidRequest     = "INVALID_REQUEST"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeWorkflowNotFound   = "WORKFLOW_NOT_FOUND"
	CodeTaskExecutionError = "TASK_EXECUTION_ERROR"
	CodeRateLimited        = "RATE_LIMITED"
	CodeInternalError      = "INTERNAL_ERROR"
	CodeNotFound           = "NOT_FOUND"
)

// AgentCard describes a server and the skills (workflows) it offers.
type AgentCard struct {
	Name         string    `json:"name"`
	Description  string    `json:"description,omitempty"`
	Version      string    `json:"version"`
	Status       string    `json:"status"`
	Capabilities []string  `json:"capabilities"`
	Endpoints    Endpoints `json:"endpoints"`
	Skills       []Skill   `json:"skills"`
}

// Skill returns the skill with the given name.
func (c *AgentCard) Skill(name string) (Skill, bool) {
	for _, s := range c.Skills {
		if s.Name == name {
			return s, true
		}
	}
	return Skill{}, false
}

// Endpoints lists the paths exposed by a server.
type Endpoints struct {
	Discovery string            `json:"discovery"`
	Health    string            `json:"health"`
	Invoke    string            `json:"invoke"`
	Workflows map[string]string `json:"workflows"`
}

// Skill is one invocable workflow.
type Skill struct {
	Name         string   `json:"name"`
	Description  string   `json:"description,omitempty"`
	Version      string   `json:"version,omitempty"`
	Endpoint     string   `json:"endpoint"`
	Capabilities []string `json:"capabilities"`
	InputModes   []string `json:"input_modes,omitempty"`
	OutputModes  []string `json:"output_modes,omitempty"`
}

// InvokeRequest is the body of POST /invoke. Workflow accepts a workflow
// name or route path; Skill is an alias kept for A2A clients that address
// skills by name.
type InvokeRequest struct {
	Workflow string         `json:"workflow,omitempty"`
	Skill    string         `json:"skill,omitempty"`
	ID       string         `json:"id,omitempty"`
	Input    map[string]any `json:"input"`
}

// Target returns the requested workflow, preferring Workflow over Skill.
func (r InvokeRequest) Target() string {
	if r.Workflow != "" {
		return r.Workflow
	}
	return r.Skill
}

// TaskStatus is the per-task entry of an invoke response.
type TaskStatus struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	Status     string `json:"status"`
	DurationMS int64  `json:"duration_ms"`
	Attempts   int    `json:"attempts"`
	Recovered  bool   `json:"recovered,omitempty"`
	Group      string `json:"group,omitempty"`
	Error      string `json:"error,omitempty"`
}

// InvokeResponse is returned by POST /invoke and POST <workflow path>. On
// failure the server answers with an ErrorBody that embeds the same partial
// Result and Tasks.
type InvokeResponse struct {
	ID         string         `json:"id"`
	Workflow   string         `json:"workflow"`
	Status     string         `json:"status"`
	Result     map[string]any `json:"result"`
	Tasks      []TaskStatus   `json:"tasks"`
	DurationMS int64          `json:"duration_ms"`
}

// ErrorBody is the JSON body of every non-2xx response.
type ErrorBody struct {
	Error              string         `json:"error"`
	Code               string         `json:"code,omitempty"`
	Path               string         `json:"path"`
	Timestamp          time.Time      `json:"timestamp"`
	RequestID          string         `json:"request_id,omitempty"`
	AvailableEndpoints []string       `json:"available_endpoints,omitempty"`
	ID                 string         `json:"id,omitempty"`
	Workflow           string         `json:"workflow,omitempty"`
	Result             map[string]any `json:"result,omitempty"`
	Tasks              []TaskStatus   `json:"tasks,omitempty"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status              string     `json:"status"`
	UptimeSeconds       float64    `json:"uptime_seconds"`
	UptimeHuman         string     `json:"uptime_human"`
	RegisteredWorkflows int        `json:"registered_workflows"`
	Version             string     `json:"version"`
	Timestamp           time.Time  `json:"timestamp"`
	ServerInfo          ServerInfo `json:"server_info"`
}

// ServerInfo describes the listening server.
type ServerInfo struct {
	Host           string `json:"host"`
	Port           int    `json:"port"`
	SSL            bool   `json:"ssl"`
	Authentication bool   `json:"authentication"`
}

// WorkflowInfo is the body of GET <workflow path>.
type WorkflowInfo struct {
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	Version      string   `json:"version,omitempty"`
	Capabilities []string `json:"capabilities"`
	Endpoint     string   `json:"endpoint"`
}
