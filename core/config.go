package core

import (
	"context"
	"time"
)

// TaskConfig is the typed configuration attached to a TaskSpec. Every
// variant carries a generic Options bag for settings without a first-class
// setter.
type TaskConfig interface {
	// Kind returns the task type tag the configuration belongs to.
	Kind() string
	// Extra returns the generic option bag, never nil.
	Extra() Options
	// Clone returns an independent copy.
	Clone() TaskConfig
}

// Extras implements the generic option bag shared by all config variants.
type Extras struct {
	Options Options
}

// Extra returns the option bag, allocating it on first use.
func (e *Extras) Extra() Options {
	if e.Options == nil {
		e.Options = Options{}
	}
	return e.Options
}

// GenericConfig configures task types without a dedicated variant.
type GenericConfig struct {
	Extras
	Type string
}

// Kind implements TaskConfig.
func (c *GenericConfig) Kind() string { return c.Type }

// Clone implements TaskConfig.
func (c *GenericConfig) Clone() TaskConfig {
	cp := *c
	cp.Options = c.Options.Clone()
	return &cp
}

// HandlerFunc is an inline task body evaluated against the (possibly
// input-restricted) context copy.
type HandlerFunc func(ctx context.Context, ec *ExecutionContext) (map[string]any, error)

// HandlerConfig configures a direct_handler task.
type HandlerConfig struct {
	Extras
	Fn HandlerFunc
}

// Kind implements TaskConfig.
func (c *HandlerConfig) Kind() string { return TypeDirectHandler }

// Clone implements TaskConfig.
func (c *HandlerConfig) Clone() TaskConfig {
	cp := *c
	cp.Options = c.Options.Clone()
	return &cp
}

// ChatConfig configures a chat/completion task.
type ChatConfig struct {
	Extras
	Provider    string
	Model       string
	System      Text
	Prompt      Text
	Temperature *float64
	MaxTokens   int64
	OutputKey   string
}

// Kind implements TaskConfig.
func (c *ChatConfig) Kind() string { return TypeChat }

// Clone implements TaskConfig.
func (c *ChatConfig) Clone() TaskConfig {
	cp := *c
	cp.Options = c.Options.Clone()
	if c.Temperature != nil {
		t := *c.Temperature
		cp.Temperature = &t
	}
	return &cp
}

// DatabaseConfig configures database_fetch and database_query tasks.
type DatabaseConfig struct {
	Extras
	Operation string // TypeDatabaseFetch or TypeDatabaseQuery
	Table     string
	Query     Text
	ArgKeys   []string
	ArgsFunc  func(ec *ExecutionContext) []any
	Single    bool
	OutputKey string
}

// Kind implements TaskConfig.
func (c *DatabaseConfig) Kind() string { return c.Operation }

// Clone implements TaskConfig.
func (c *DatabaseConfig) Clone() TaskConfig {
	cp := *c
	cp.Options = c.Options.Clone()
	cp.ArgKeys = append([]string(nil), c.ArgKeys...)
	return &cp
}

// EmailConfig configures an email task.
type EmailConfig struct {
	Extras
	To       []Text
	Subject  Text
	Body     Text
	Template string
}

// Kind implements TaskConfig.
func (c *EmailConfig) Kind() string { return TypeEmail }

// Clone implements TaskConfig.
func (c *EmailConfig) Clone() TaskConfig {
	cp := *c
	cp.Options = c.Options.Clone()
	cp.To = append([]Text(nil), c.To...)
	return &cp
}

// ImageConfig configures an image_generation task.
type ImageConfig struct {
	Extras
	Prompt    Text
	Model     string
	Size      string
	OutputKey string
}

// Kind implements TaskConfig.
func (c *ImageConfig) Kind() string { return TypeImage }

// Clone implements TaskConfig.
func (c *ImageConfig) Clone() TaskConfig {
	cp := *c
	cp.Options = c.Options.Clone()
	return &cp
}

// UploadConfig configures a file_upload task.
type UploadConfig struct {
	Extras
	Source      Text
	Destination Text
	ContentType string
}

// Kind implements TaskConfig.
func (c *UploadConfig) Kind() string { return TypeUpload }

// Clone implements TaskConfig.
func (c *UploadConfig) Clone() TaskConfig {
	cp := *c
	cp.Options = c.Options.Clone()
	return &cp
}

// SearchConfig configures a web_search task.
type SearchConfig struct {
	Extras
	Query      Text
	MaxResults int
	OutputKey  string
}

// Kind implements TaskConfig.
func (c *SearchConfig) Kind() string { return TypeSearch }

// Clone implements TaskConfig.
func (c *SearchConfig) Clone() TaskConfig {
	cp := *c
	cp.Options = c.Options.Clone()
	return &cp
}

// StreamConfig configures a stream_update task.
type StreamConfig struct {
	Extras
	Channel string
	Message Text
}

// Kind implements TaskConfig.
func (c *StreamConfig) Kind() string { return TypeStreamUpdate }

// Clone implements TaskConfig.
func (c *StreamConfig) Clone() TaskConfig {
	cp := *c
	cp.Options = c.Options.Clone()
	return &cp
}

// AgentCallConfig configures a call to a remote A2A agent.
type AgentCallConfig struct {
	Extras
	URL       string
	Workflow  string
	Skill     string
	Token     string
	Payload   func(ec *ExecutionContext) map[string]any
	Timeout   time.Duration
	OutputKey string
}

// Kind implements TaskConfig.
func (c *AgentCallConfig) Kind() string { return TypeAgentCall }

// Clone implements TaskConfig.
func (c *AgentCallConfig) Clone() TaskConfig {
	cp := *c
	cp.Options = c.Options.Clone()
	return &cp
}

// ScriptConfig configures a lua_script task.
type ScriptConfig struct {
	Extras
	Source string
}

// Kind implements TaskConfig.
func (c *ScriptConfig) Kind() string { return TypeScript }

// Clone implements TaskConfig.
func (c *ScriptConfig) Clone() TaskConfig {
	cp := *c
	cp.Options = c.Options.Clone()
	return &cp
}
