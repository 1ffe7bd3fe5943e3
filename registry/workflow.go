package registry

import (
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strings"
	"sync"
	"unicode"

	"github.com/hupe1980/a2aflow/core"
)

// Route binds a path to a workflow definition.
type Route struct {
	Path       string
	Definition *core.WorkflowDefinition
}

// reserved paths cannot be claimed by workflows.
var reserved = []string{"/", "/health", "/invoke", "/.well-known/agent.json"}

var validPath = regexp.MustCompile(`^(/[A-Za-z0-9._~-]+)+$`)

// WorkflowRegistry maps route paths to workflow definitions. It is safe for
// concurrent use.
type WorkflowRegistry struct {
	mu     sync.RWMutex
	routes map[string]*core.WorkflowDefinition
	frozen bool
}

// NewWorkflowRegistry creates an empty registry.
func NewWorkflowRegistry() *WorkflowRegistry {
	return &WorkflowRegistry{routes: make(map[string]*core.WorkflowDefinition)}
}

// Register adds def under path; an empty path derives DefaultPath(def.Name).
// The path is returned. Duplicate and reserved paths are definition errors.
func (r *WorkflowRegistry) Register(def *core.WorkflowDefinition, path string) (string, error) {
	if def == nil || def.Name == "" {
		return "", &core.DefinitionError{Message: "workflow must have a name"}
	}

	if path == "" {
		path = DefaultPath(def.Name)
	}

	if err := ValidatePath(path); err != nil {
		return "", &core.DefinitionError{Workflow: def.Name, Message: err.Error()}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return "", fmt.Errorf("register workflow %s: %w", def.Name, ErrFrozen)
	}

	if existing, ok := r.routes[path]; ok {
		return "", &core.DefinitionError{
			Workflow: def.Name,
			Message:  fmt.Sprintf("path %s already registered by %s", path, existing.Name),
		}
	}

	r.routes[path] = def

	return path, nil
}

// Get returns the definition mounted at path.
func (r *WorkflowRegistry) Get(path string) (*core.WorkflowDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.routes[path]
	if !ok {
		return nil, &core.RegistryLookupError{Kind: "workflow", Key: path}
	}

	return def, nil
}

// Lookup resolves a workflow by path or by name.
func (r *WorkflowRegistry) Lookup(nameOrPath string) (Route, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if def, ok := r.routes[nameOrPath]; ok {
		return Route{Path: nameOrPath, Definition: def}, nil
	}

	for _, path := range slices.Sorted(maps.Keys(r.routes)) {
		if r.routes[path].Name == nameOrPath {
			return Route{Path: path, Definition: r.routes[path]}, nil
		}
	}

	return Route{}, &core.RegistryLookupError{Kind: "workflow", Key: nameOrPath}
}

// Routes returns all routes sorted by path.
func (r *WorkflowRegistry) Routes() []Route {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Route, 0, len(r.routes))
	for _, path := range slices.Sorted(maps.Keys(r.routes)) {
		out = append(out, Route{Path: path, Definition: r.routes[path]})
	}

	return out
}

// Len returns the number of routes.
func (r *WorkflowRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.routes)
}

// Freeze makes the registry read-only.
func (r *WorkflowRegistry) Freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}

// ValidatePath checks a workflow route path.
func ValidatePath(path string) error {
	if !validPath.MatchString(path) {
		return fmt.Errorf("invalid route path %q", path)
	}
	if slices.Contains(reserved, path) {
		return fmt.Errorf("route path %s is reserved", path)
	}
	return nil
}

// DefaultPath derives the route of a workflow from its name: a trailing
// "Workflow" suffix is dropped and the rest is kebab-cased under /agents
// (EchoWorkflow -> /agents/echo, ResearchAssistant -> /agents/research-assistant).
func DefaultPath(name string) string {
	base := strings.TrimSuffix(name, "Workflow")
	if base == "" {
		base = name
	}
	return "/agents/" + kebab(base)
}

func kebab(s string) string {
	var b strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		switch {
		case unicode.IsUpper(r):
			if i > 0 && (unicode.IsLower(runes[i-1]) || unicode.IsDigit(runes[i-1]) ||
				(i+1 < len(runes) && unicode.IsLower(runes[i+1]) && unicode.IsUpper(runes[i-1]))) {
				b.WriteByte('-')
			}
			b.WriteRune(unicode.ToLower(r))
		case r == '_' || r == ' ' || r == '-':
			if b.Len() > 0 && !strings.HasSuffix(b.String(), "-") {
				b.WriteByte('-')
			}
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		}
	}
	return strings.Trim(b.String(), "-")
}
