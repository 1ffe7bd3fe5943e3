package dsl

import (
	"fmt"

	"github.com/hupe1980/a2aflow/core"
)

type entry struct {
	spec  *core.TaskSpec
	group *Group
}

// taskSet holds the task verbs shared by the workflow builder and parallel groups.
type taskSet struct {
	b       *Builder
	entries []*entry
	group   string
}

func (s *taskSet) add(name, typ string, cfg core.TaskConfig) *core.TaskSpec {
	switch {
	case name == "":
		s.b.fail("", "task name must not be empty")
	case s.b.names[name]:
		s.b.fail(name, "duplicate task name")
	}
	s.b.names[name] = true

	spec := &core.TaskSpec{Name: name, Type: typ, Config: cfg}
	s.entries = append(s.entries, &entry{spec: spec})
	return spec
}

// Task declares a task of an arbitrary registered type.
func (s *taskSet) Task(name, typ string) *GenericTask {
	spec := s.add(name, typ, newConfig(typ))
	t := &GenericTask{}
	t.Configurator = newConfigurator(t, spec, s.b)
	return t
}

// Handle declares a direct_handler task running fn.
func (s *taskSet) Handle(name string, fn core.HandlerFunc) *HandlerTask {
	cfg := &core.HandlerConfig{Fn: fn}
	spec := s.add(name, core.TypeDirectHandler, cfg)
	t := &HandlerTask{cfg: cfg}
	t.Configurator = newConfigurator(t, spec, s.b)
	return t
}

// Chat declares a chat completion task.
func (s *taskSet) Chat(name string) *ChatTask {
	cfg := &core.ChatConfig{}
	spec := s.add(name, core.TypeChat, cfg)
	t := &ChatTask{cfg: cfg}
	t.Configurator = newConfigurator(t, spec, s.b)
	return t
}

// DBFetch declares a database_fetch task.
func (s *taskSet) DBFetch(name string) *DatabaseTask {
	return s.database(name, core.TypeDatabaseFetch)
}

// DBQuery declares a database_query task.
func (s *taskSet) DBQuery(name string) *DatabaseTask {
	return s.database(name, core.TypeDatabaseQuery)
}

func (s *taskSet) database(name, op string) *DatabaseTask {
	cfg := &core.DatabaseConfig{Operation: op}
	spec := s.add(name, op, cfg)
	t := &DatabaseTask{cfg: cfg}
	t.Configurator = newConfigurator(t, spec, s.b)
	return t
}

// Email declares an email task.
func (s *taskSet) Email(name string) *EmailTask {
	cfg := &core.EmailConfig{}
	spec := s.add(name, core.TypeEmail, cfg)
	t := &EmailTask{cfg: cfg}
	t.Configurator = newConfigurator(t, spec, s.b)
	return t
}

// Image declares an image_generation task.
func (s *taskSet) Image(name string) *ImageTask {
	cfg := &core.ImageConfig{}
	spec := s.add(name, core.TypeImage, cfg)
	t := &ImageTask{cfg: cfg}
	t.Configurator = newConfigurator(t, spec, s.b)
	return t
}

// Upload declares a file_upload task.
func (s *taskSet) Upload(name string) *UploadTask {
	cfg := &core.UploadConfig{}
	spec := s.add(name, core.TypeUpload, cfg)
	t := &UploadTask{cfg: cfg}
	t.Configurator = newConfigurator(t, spec, s.b)
	return t
}

// Search declares a web_search task.
func (s *taskSet) Search(name string) *SearchTask {
	cfg := &core.SearchConfig{}
	spec := s.add(name, core.TypeSearch, cfg)
	t := &SearchTask{cfg: cfg}
	t.Configurator = newConfigurator(t, spec, s.b)
	return t
}

// Stream declares a stream_update task.
func (s *taskSet) Stream(name string) *StreamTask {
	cfg := &core.StreamConfig{}
	spec := s.add(name, core.TypeStreamUpdate, cfg)
	t := &StreamTask{cfg: cfg}
	t.Configurator = newConfigurator(t, spec, s.b)
	return t
}

// CallAgent declares a call to the remote A2A agent at url.
func (s *taskSet) CallAgent(name, url string) *AgentCallTask {
	return s.CallAgentWith(name, core.AgentCallConfig{URL: url})
}

// CallAgentWith declares a remote agent call from a configuration block.
func (s *taskSet) CallAgentWith(name string, cfg core.AgentCallConfig) *AgentCallTask {
	c := cfg.Clone().(*core.AgentCallConfig)
	spec := s.add(name, core.TypeAgentCall, c)
	t := &AgentCallTask{cfg: c}
	t.Configurator = newConfigurator(t, spec, s.b)
	return t
}

// Script declares a lua_script task.
func (s *taskSet) Script(name, source string) *ScriptTask {
	cfg := &core.ScriptConfig{Source: source}
	spec := s.add(name, core.TypeScript, cfg)
	t := &ScriptTask{cfg: cfg}
	t.Configurator = newConfigurator(t, spec, s.b)
	return t
}

// Parallel declares a group whose branches run concurrently, each against
// its own copy of the context. Branch outputs are merged in declaration order.
func (s *taskSet) Parallel(name string, fn func(g *Group)) *ParallelTask {
	spec := s.add(name, core.TypeParallel, &core.GenericConfig{Type: core.TypeParallel})
	if s.group != "" {
		s.b.fail(name, "parallel groups cannot be nested (inside %s)", s.group)
	}
	g := &Group{taskSet: taskSet{b: s.b, group: name}}
	if fn == nil {
		s.b.fail(name, "parallel group body must not be nil")
	} else {
		fn(g)
	}
	s.entries[len(s.entries)-1].group = g

	t := &ParallelTask{}
	t.Configurator = newConfigurator(t, spec, s.b)
	return t
}

// compile clones and validates the declared entries.
func (s *taskSet) compile(workflow string) ([]core.TaskSpec, []error) {
	var errs []error
	specs := make([]core.TaskSpec, 0, len(s.entries))
	for _, e := range s.entries {
		spec := e.spec.Clone()
		for _, msg := range validateSpec(&spec) {
			errs = append(errs, &core.DefinitionError{Workflow: workflow, Task: spec.Name, Message: msg})
		}
		if e.group != nil {
			branches, berrs := e.group.compile(workflow)
			errs = append(errs, berrs...)
			spec.Branches = branches
			for _, msg := range validateGroup(branches) {
				errs = append(errs, &core.DefinitionError{Workflow: workflow, Task: spec.Name, Message: msg})
			}
		}
		specs = append(specs, spec)
	}
	return specs, errs
}

// Group collects the branches of a parallel task.
type Group struct {
	taskSet
}

func newConfig(typ string) core.TaskConfig {
	switch typ {
	case core.TypeDirectHandler:
		return &core.HandlerConfig{}
	case core.TypeChat:
		return &core.ChatConfig{}
	case core.TypeDatabaseFetch, core.TypeDatabaseQuery:
		return &core.DatabaseConfig{Operation: typ}
	case core.TypeEmail:
		return &core.EmailConfig{}
	case core.TypeImage:
		return &core.ImageConfig{}
	case core.TypeUpload:
		return &core.UploadConfig{}
	case core.TypeSearch:
		return &core.SearchConfig{}
	case core.TypeStreamUpdate:
		return &core.StreamConfig{}
	case core.TypeAgentCall:
		return &core.AgentCallConfig{}
	case core.TypeScript:
		return &core.ScriptConfig{}
	default:
		return &core.GenericConfig{Type: typ}
	}
}

func validateSpec(spec *core.TaskSpec) []string {
	var msgs []string
	if spec.Type == "" {
		msgs = append(msgs, "task type must not be empty")
	}
	switch cfg := spec.Config.(type) {
	case *core.HandlerConfig:
		if cfg.Fn == nil {
			msgs = append(msgs, "direct_handler requires a handler function")
		}
	case *core.AgentCallConfig:
		if cfg.URL == "" {
			if _, ok := cfg.Extra().Get("url"); !ok {
				msgs = append(msgs, "agent_call requires a url")
			}
		}
	case *core.ScriptConfig:
		if cfg.Source == "" {
			msgs = append(msgs, "lua_script requires a source")
		}
	}
	return msgs
}

func validateGroup(branches []core.TaskSpec) []string {
	if len(branches) == 0 {
		return []string{"parallel group has no branches"}
	}
	var msgs []string
	owner := map[string]string{}
	for _, b := range branches {
		for _, key := range b.Outputs {
			if prev, ok := owner[key]; ok {
				msgs = append(msgs, fmt.Sprintf("output %q is declared by both %s and %s", key, prev, b.Name))
				continue
			}
			owner[key] = b.Name
		}
	}
	return msgs
}
