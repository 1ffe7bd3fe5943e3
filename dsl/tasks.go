package dsl

import (
	"time"

	"github.com/hupe1980/a2aflow/core"
)

// GenericTask configures a task whose type has no dedicated verb.
type GenericTask struct {
	Configurator[*GenericTask]
}

// HandlerTask configures a direct_handler task.
type HandlerTask struct {
	Configurator[*HandlerTask]
	cfg *core.HandlerConfig
}

// Handler replaces the inline function.
func (t *HandlerTask) Handler(fn core.HandlerFunc) *HandlerTask {
	t.cfg.Fn = fn
	return t
}

// ChatTask configures a chat completion.
type ChatTask struct {
	Configurator[*ChatTask]
	cfg *core.ChatConfig
}

// Provider selects the model provider (openai, anthropic, ...).
func (t *ChatTask) Provider(p string) *ChatTask {
	t.cfg.Provider = p
	return t
}

// Model selects the provider model.
func (t *ChatTask) Model(m string) *ChatTask {
	t.cfg.Model = m
	return t
}

// System sets the system prompt template.
func (t *ChatTask) System(s string) *ChatTask {
	t.cfg.System = core.Literal(s)
	return t
}

// SystemFunc computes the system prompt from the context.
func (t *ChatTask) SystemFunc(fn func(ec *core.ExecutionContext) string) *ChatTask {
	t.cfg.System = core.TextFunc(fn)
	return t
}

// Prompt sets the user prompt template.
func (t *ChatTask) Prompt(p string) *ChatTask {
	t.cfg.Prompt = core.Literal(p)
	return t
}

// PromptFunc computes the user prompt from the context.
func (t *ChatTask) PromptFunc(fn func(ec *core.ExecutionContext) string) *ChatTask {
	t.cfg.Prompt = core.TextFunc(fn)
	return t
}

// Temperature sets the sampling temperature.
func (t *ChatTask) Temperature(v float64) *ChatTask {
	t.cfg.Temperature = &v
	return t
}

// MaxTokens bounds the completion length.
func (t *ChatTask) MaxTokens(n int64) *ChatTask {
	t.cfg.MaxTokens = n
	return t
}

// OutputKey names the key receiving the completion text.
func (t *ChatTask) OutputKey(key string) *ChatTask {
	t.cfg.OutputKey = key
	return t
}

// DatabaseTask configures database_fetch and database_query tasks.
type DatabaseTask struct {
	Configurator[*DatabaseTask]
	cfg *core.DatabaseConfig
}

// Table names the table used when no query is given.
func (t *DatabaseTask) Table(name string) *DatabaseTask {
	t.cfg.Table = name
	return t
}

// Query sets the SQL statement template.
func (t *DatabaseTask) Query(q string) *DatabaseTask {
	t.cfg.Query = core.Literal(q)
	return t
}

// QueryFunc computes the SQL statement from the context.
func (t *DatabaseTask) QueryFunc(fn func(ec *core.ExecutionContext) string) *DatabaseTask {
	t.cfg.Query = core.TextFunc(fn)
	return t
}

// Args binds statement parameters to context keys, in order.
func (t *DatabaseTask) Args(keys ...string) *DatabaseTask {
	t.cfg.ArgKeys = append(t.cfg.ArgKeys, keys...)
	return t
}

// ArgsFunc computes the statement parameters from the context.
func (t *DatabaseTask) ArgsFunc(fn func(ec *core.ExecutionContext) []any) *DatabaseTask {
	t.cfg.ArgsFunc = fn
	return t
}

// Single returns the first row instead of a row list.
func (t *DatabaseTask) Single() *DatabaseTask {
	t.cfg.Single = true
	return t
}

// OutputKey names the key receiving the rows.
func (t *DatabaseTask) OutputKey(key string) *DatabaseTask {
	t.cfg.OutputKey = key
	return t
}

// EmailTask configures an email task.
type EmailTask struct {
	Configurator[*EmailTask]
	cfg *core.EmailConfig
}

// To adds recipient address templates.
func (t *EmailTask) To(addrs ...string) *EmailTask {
	for _, a := range addrs {
		t.cfg.To = append(t.cfg.To, core.Literal(a))
	}
	return t
}

// ToFunc adds a recipient computed from the context.
func (t *EmailTask) ToFunc(fn func(ec *core.ExecutionContext) string) *EmailTask {
	t.cfg.To = append(t.cfg.To, core.TextFunc(fn))
	return t
}

// Subject sets the subject template.
func (t *EmailTask) Subject(s string) *EmailTask {
	t.cfg.Subject = core.Literal(s)
	return t
}

// SubjectFunc computes the subject from the context.
func (t *EmailTask) SubjectFunc(fn func(ec *core.ExecutionContext) string) *EmailTask {
	t.cfg.Subject = core.TextFunc(fn)
	return t
}

// Body sets the body template.
func (t *EmailTask) Body(s string) *EmailTask {
	t.cfg.Body = core.Literal(s)
	return t
}

// BodyFunc computes the body from the context.
func (t *EmailTask) BodyFunc(fn func(ec *core.ExecutionContext) string) *EmailTask {
	t.cfg.Body = core.TextFunc(fn)
	return t
}

// Template names a provider side template.
func (t *EmailTask) Template(name string) *EmailTask {
	t.cfg.Template = name
	return t
}

// ImageTask configures an image_generation task.
type ImageTask struct {
	Configurator[*ImageTask]
	cfg *core.ImageConfig
}

// Prompt sets the image prompt template.
func (t *ImageTask) Prompt(p string) *ImageTask {
	t.cfg.Prompt = core.Literal(p)
	return t
}

// PromptFunc computes the image prompt from the context.
func (t *ImageTask) PromptFunc(fn func(ec *core.ExecutionContext) string) *ImageTask {
	t.cfg.Prompt = core.TextFunc(fn)
	return t
}

// Model selects the image model.
func (t *ImageTask) Model(m string) *ImageTask {
	t.cfg.Model = m
	return t
}

// Size sets the requested image size, e.g. 1024x1024.
func (t *ImageTask) Size(s string) *ImageTask {
	t.cfg.Size = s
	return t
}

// OutputKey names the key receiving the image reference.
func (t *ImageTask) OutputKey(key string) *ImageTask {
	t.cfg.OutputKey = key
	return t
}

// UploadTask configures a file_upload task.
type UploadTask struct {
	Configurator[*UploadTask]
	cfg *core.UploadConfig
}

// Source sets the source template.
func (t *UploadTask) Source(s string) *UploadTask {
	t.cfg.Source = core.Literal(s)
	return t
}

// SourceFunc computes the source from the context.
func (t *UploadTask) SourceFunc(fn func(ec *core.ExecutionContext) string) *UploadTask {
	t.cfg.Source = core.TextFunc(fn)
	return t
}

// Destination sets the destination template.
func (t *UploadTask) Destination(d string) *UploadTask {
	t.cfg.Destination = core.Literal(d)
	return t
}

// DestinationFunc computes the destination from the context.
func (t *UploadTask) DestinationFunc(fn func(ec *core.ExecutionContext) string) *UploadTask {
	t.cfg.Destination = core.TextFunc(fn)
	return t
}

// ContentType sets the uploaded content type.
func (t *UploadTask) ContentType(ct string) *UploadTask {
	t.cfg.ContentType = ct
	return t
}

// SearchTask configures a web_search task.
type SearchTask struct {
	Configurator[*SearchTask]
	cfg *core.SearchConfig
}

// Query sets the search query template.
func (t *SearchTask) Query(q string) *SearchTask {
	t.cfg.Query = core.Literal(q)
	return t
}

// QueryFunc computes the search query from the context.
func (t *SearchTask) QueryFunc(fn func(ec *core.ExecutionContext) string) *SearchTask {
	t.cfg.Query = core.TextFunc(fn)
	return t
}

// MaxResults bounds the number of results.
func (t *SearchTask) MaxResults(n int) *SearchTask {
	t.cfg.MaxResults = n
	return t
}

// OutputKey names the key receiving the results.
func (t *SearchTask) OutputKey(key string) *SearchTask {
	t.cfg.OutputKey = key
	return t
}

// StreamTask configures a stream_update task.
type StreamTask struct {
	Configurator[*StreamTask]
	cfg *core.StreamConfig
}

// Channel names the update channel.
func (t *StreamTask) Channel(ch string) *StreamTask {
	t.cfg.Channel = ch
	return t
}

// Message sets the message template.
func (t *StreamTask) Message(m string) *StreamTask {
	t.cfg.Message = core.Literal(m)
	return t
}

// MessageFunc computes the message from the context.
func (t *StreamTask) MessageFunc(fn func(ec *core.ExecutionContext) string) *StreamTask {
	t.cfg.Message = core.TextFunc(fn)
	return t
}

// AgentCallTask configures a call to a remote A2A agent.
type AgentCallTask struct {
	Configurator[*AgentCallTask]
	cfg *core.AgentCallConfig
}

// Workflow selects the remote workflow by name or path.
func (t *AgentCallTask) Workflow(w string) *AgentCallTask {
	t.cfg.Workflow = w
	return t
}

// Skill selects the remote skill.
func (t *AgentCallTask) Skill(s string) *AgentCallTask {
	t.cfg.Skill = s
	return t
}

// Token sets the bearer token sent to the remote agent.
func (t *AgentCallTask) Token(tok string) *AgentCallTask {
	t.cfg.Token = tok
	return t
}

// Payload computes the remote input from the context. Without a payload
// function the (input-restricted) context snapshot is sent.
func (t *AgentCallTask) Payload(fn func(ec *core.ExecutionContext) map[string]any) *AgentCallTask {
	t.cfg.Payload = fn
	return t
}

// CallTimeout bounds the HTTP exchange.
func (t *AgentCallTask) CallTimeout(d time.Duration) *AgentCallTask {
	t.cfg.Timeout = d
	return t
}

// OutputKey names the key receiving the remote result.
func (t *AgentCallTask) OutputKey(key string) *AgentCallTask {
	t.cfg.OutputKey = key
	return t
}

// ScriptTask configures a lua_script task.
type ScriptTask struct {
	Configurator[*ScriptTask]
	cfg *core.ScriptConfig
}

// Source replaces the script source.
func (t *ScriptTask) Source(src string) *ScriptTask {
	t.cfg.Source = src
	return t
}

// ParallelTask configures a parallel group.
type ParallelTask struct {
	Configurator[*ParallelTask]
}
