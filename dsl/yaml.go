package dsl

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/a2aflow/core"
)

// WorkflowYAML is the document form of a workflow.
type WorkflowYAML struct {
	Name         string           `yaml:"name"`
	Path         string           `yaml:"path,omitempty"`
	Description  string           `yaml:"description,omitempty"`
	Version      string           `yaml:"version,omitempty"`
	Capabilities []string         `yaml:"capabilities,omitempty"`
	Timeout      string           `yaml:"timeout,omitempty"`
	RetryPolicy  *RetryPolicyYAML `yaml:"retry_policy,omitempty"`
	Tasks        []TaskYAML       `yaml:"tasks"`
}

// RetryPolicyYAML is the document form of core.RetryPolicy.
type RetryPolicyYAML struct {
	MaxRetries int     `yaml:"max_retries"`
	Backoff    string  `yaml:"backoff,omitempty"`
	Multiplier float64 `yaml:"multiplier,omitempty"`
	MaxBackoff string  `yaml:"max_backoff,omitempty"`
}

// TaskYAML is the document form of one task.
type TaskYAML struct {
	Name        string         `yaml:"name"`
	Type        string         `yaml:"type"`
	Inputs      []string       `yaml:"inputs,omitempty"`
	Outputs     []string       `yaml:"outputs,omitempty"`
	Retries     *int           `yaml:"retries,omitempty"`
	Timeout     string         `yaml:"timeout,omitempty"`
	Description string         `yaml:"description,omitempty"`
	Tags        []string       `yaml:"tags,omitempty"`
	RunWhen     map[string]any `yaml:"run_when,omitempty"`
	SkipWhen    map[string]any `yaml:"skip_when,omitempty"`
	Config      map[string]any `yaml:"config,omitempty"`
	Branches    []TaskYAML     `yaml:"branches,omitempty"`
}

type fileYAML struct {
	WorkflowYAML `yaml:",inline"`
	Workflows    []WorkflowYAML `yaml:"workflows,omitempty"`
}

// Loaded is a workflow read from a document, not yet built. Callers may
// attach hooks and error handlers before calling Build.
type Loaded struct {
	Path    string
	Builder *Builder
}

// Build compiles the loaded workflow.
func (l Loaded) Build() (*core.WorkflowDefinition, error) {
	return l.Builder.Build()
}

// LoadFile reads a YAML workflow file. The file holds either a single
// workflow or a `workflows:` list.
func LoadFile(filename string) ([]Loaded, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read workflow file %s: %w", filename, err)
	}
	loaded, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return loaded, nil
}

// Parse decodes YAML workflow documents.
func Parse(data []byte) ([]Loaded, error) {
	var doc fileYAML
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse workflow YAML: %w", err)
	}

	docs := doc.Workflows
	if doc.Name != "" || len(doc.Tasks) > 0 {
		docs = append([]WorkflowYAML{doc.WorkflowYAML}, docs...)
	}
	if len(docs) == 0 {
		return nil, &core.DefinitionError{Message: "document declares no workflows"}
	}

	out := make([]Loaded, 0, len(docs))
	for _, w := range docs {
		out = append(out, Loaded{Path: w.Path, Builder: w.Builder()})
	}
	return out, nil
}

// Builder converts the document into a builder. Malformed values are
// reported by Build.
func (w WorkflowYAML) Builder() *Builder {
	b := New(w.Name).Describe(w.Description).Version(w.Version)
	if len(w.Capabilities) > 0 {
		b.Capabilities(w.Capabilities...)
	}
	if d, ok := parseDuration(b, "", "timeout", w.Timeout); ok {
		b.Timeout(d)
	}
	if rp := w.RetryPolicy; rp != nil {
		p := core.RetryPolicy{MaxRetries: rp.MaxRetries, Multiplier: rp.Multiplier}
		p.Backoff, _ = parseDuration(b, "", "retry_policy.backoff", rp.Backoff)
		p.MaxBackoff, _ = parseDuration(b, "", "retry_policy.max_backoff", rp.MaxBackoff)
		b.RetryPolicy(p)
	}
	for _, t := range w.Tasks {
		declare(&b.taskSet, t)
	}
	return b
}

func declare(s *taskSet, t TaskYAML) {
	b := s.b
	if t.Type == core.TypeDirectHandler {
		b.fail(t.Name, "direct_handler tasks need a Go function and cannot be declared in YAML")
		return
	}

	var c *GenericTask
	if t.Type == core.TypeParallel {
		p := s.Parallel(t.Name, func(g *Group) {
			for _, br := range t.Branches {
				declare(&g.taskSet, br)
			}
		})
		c = &GenericTask{Configurator: Configurator[*GenericTask]{spec: p.spec, b: b}}
	} else {
		c = s.Task(t.Name, t.Type)
	}
	c.self = c

	c.Input(t.Inputs...).Output(t.Outputs...).Tags(t.Tags...).Description(t.Description)
	if t.Retries != nil {
		c.Retries(*t.Retries)
	}
	if d, ok := parseDuration(b, t.Name, "timeout", t.Timeout); ok {
		c.Timeout(d)
	}
	for k, v := range t.RunWhen {
		c.RunWhen(k, v)
	}
	for k, v := range t.SkipWhen {
		c.SkipWhen(k, v)
	}
	applyConfig(b, c.spec, t.Config)
}

// applyConfig maps document config keys onto the typed configuration.
// Unknown keys land in the option bag.
func applyConfig(b *Builder, spec *core.TaskSpec, m map[string]any) {
	r := configReader{b: b, task: spec.Name}
	for key, v := range m {
		if !r.apply(spec.Config, key, v) {
			spec.Config.Extra().Set(key, v)
		}
	}
}

type configReader struct {
	b    *Builder
	task string
}

func (r configReader) apply(cfg core.TaskConfig, key string, v any) bool {
	switch c := cfg.(type) {
	case *core.ChatConfig:
		switch key {
		case "provider":
			c.Provider = r.asString(key, v)
		case "model":
			c.Model = r.asString(key, v)
		case "system":
			c.System = core.Literal(r.asString(key, v))
		case "prompt":
			c.Prompt = core.Literal(r.asString(key, v))
		case "temperature":
			f := r.asFloat(key, v)
			c.Temperature = &f
		case "max_tokens":
			c.MaxTokens = int64(r.asInt(key, v))
		case "output_key":
			c.OutputKey = r.asString(key, v)
		default:
			return false
		}
	case *core.DatabaseConfig:
		switch key {
		case "table":
			c.Table = r.asString(key, v)
		case "query":
			c.Query = core.Literal(r.asString(key, v))
		case "args":
			c.ArgKeys = r.asStrings(key, v)
		case "single":
			c.Single = r.asBool(key, v)
		case "output_key":
			c.OutputKey = r.asString(key, v)
		default:
			return false
		}
	case *core.EmailConfig:
		switch key {
		case "to":
			for _, a := range r.asStrings(key, v) {
				c.To = append(c.To, core.Literal(a))
			}
		case "subject":
			c.Subject = core.Literal(r.asString(key, v))
		case "body":
			c.Body = core.Literal(r.asString(key, v))
		case "template":
			c.Template = r.asString(key, v)
		default:
			return false
		}
	case *core.ImageConfig:
		switch key {
		case "prompt":
			c.Prompt = core.Literal(r.asString(key, v))
		case "model":
			c.Model = r.asString(key, v)
		case "size":
			c.Size = r.asString(key, v)
		case "output_key":
			c.OutputKey = r.asString(key, v)
		default:
			return false
		}
	case *core.UploadConfig:
		switch key {
		case "source":
			c.Source = core.Literal(r.asString(key, v))
		case "destination":
			c.Destination = core.Literal(r.asString(key, v))
		case "content_type":
			c.ContentType = r.asString(key, v)
		default:
			return false
		}
	case *core.SearchConfig:
		switch key {
		case "query":
			c.Query = core.Literal(r.asString(key, v))
		case "max_results":
			c.MaxResults = r.asInt(key, v)
		case "output_key":
			c.OutputKey = r.asString(key, v)
		default:
			return false
		}
	case *core.StreamConfig:
		switch key {
		case "channel":
			c.Channel = r.asString(key, v)
		case "message":
			c.Message = core.Literal(r.asString(key, v))
		default:
			return false
		}
	case *core.AgentCallConfig:
		switch key {
		case "url":
			c.URL = r.asString(key, v)
		case "workflow":
			c.Workflow = r.asString(key, v)
		case "skill":
			c.Skill = r.asString(key, v)
		case "token":
			c.Token = r.asString(key, v)
		case "timeout":
			c.Timeout, _ = parseDuration(r.b, r.task, key, r.asString(key, v))
		case "output_key":
			c.OutputKey = r.asString(key, v)
		default:
			return false
		}
	case *core.ScriptConfig:
		if key != "source" {
			return false
		}
		c.Source = r.asString(key, v)
	default:
		return false
	}
	return true
}

func (r configReader) asString(key string, v any) string {
	switch s := v.(type) {
	case string:
		return s
	case int, int64, float64, bool:
		return fmt.Sprint(s)
	default:
		r.b.fail(r.task, "config %s: expected a string, got %T", key, v)
		return ""
	}
}

func (r configReader) asStrings(key string, v any) []string {
	switch s := v.(type) {
	case string:
		return []string{s}
	case []any:
		out := make([]string, 0, len(s))
		for _, item := range s {
			out = append(out, r.asString(key, item))
		}
		return out
	default:
		r.b.fail(r.task, "config %s: expected a string list, got %T", key, v)
		return nil
	}
}

func (r configReader) asInt(key string, v any) int {
	if f, ok := toFloat(v); ok {
		return int(f)
	}
	r.b.fail(r.task, "config %s: expected a number, got %T", key, v)
	return 0
}

func (r configReader) asFloat(key string, v any) float64 {
	if f, ok := toFloat(v); ok {
		return f
	}
	r.b.fail(r.task, "config %s: expected a number, got %T", key, v)
	return 0
}

func (r configReader) asBool(key string, v any) bool {
	if b, ok := v.(bool); ok {
		return b
	}
	r.b.fail(r.task, "config %s: expected a boolean, got %T", key, v)
	return false
}

func parseDuration(b *Builder, task, field, s string) (time.Duration, bool) {
	if s == "" {
		return 0, false
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		b.fail(task, "%s: invalid duration %q", field, s)
		return 0, false
	}
	return d, true
}
