package registry

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/hupe1980/a2aflow/core"
)

// ErrFrozen is returned when registering into a frozen registry.
var ErrFrozen = errors.New("registry is frozen")

// TaskRegistry maps task type tags to implementations. It is safe for
// concurrent use.
type TaskRegistry struct {
	mu     sync.RWMutex
	tasks  map[string]core.Task
	frozen bool
}

// NewTaskRegistry creates an empty registry.
func NewTaskRegistry() *TaskRegistry {
	return &TaskRegistry{tasks: make(map[string]core.Task)}
}

// Register maps tag to impl, replacing any previous mapping (last write wins).
func (r *TaskRegistry) Register(tag string, impl core.Task) error {
	if strings.TrimSpace(tag) == "" {
		return &core.DefinitionError{Message: "task type tag must not be empty"}
	}
	if impl == nil {
		return &core.DefinitionError{Message: fmt.Sprintf("task type %q has a nil implementation", tag)}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return fmt.Errorf("register task type %q: %w", tag, ErrFrozen)
	}

	r.tasks[tag] = impl

	return nil
}

// MustRegister is like Register but panics on error. Intended for boot code.
func (r *TaskRegistry) MustRegister(tag string, impl core.Task) {
	if err := r.Register(tag, impl); err != nil {
		panic(err)
	}
}

// Get returns the implementation for tag or a *core.RegistryLookupError.
func (r *TaskRegistry) Get(tag string) (core.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	impl, ok := r.tasks[tag]
	if !ok {
		return nil, &core.RegistryLookupError{Kind: "task type", Key: tag}
	}

	return impl, nil
}

// Has reports whether tag is registered.
func (r *TaskRegistry) Has(tag string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tasks[tag]
	return ok
}

// Tags returns the registered tags in sorted order.
func (r *TaskRegistry) Tags() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.tasks))
}

// Freeze makes the registry read-only.
func (r *TaskRegistry) Freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}

// Frozen reports whether Freeze was called.
func (r *TaskRegistry) Frozen() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.frozen
}

// Validate checks that every tag required by m is registered. All missing
// tags are reported in a single *core.DefinitionError.
func (r *TaskRegistry) Validate(m Manifest) error {
	var missing []string
	for _, tag := range m.Required {
		if !r.Has(tag) {
			missing = append(missing, tag)
		}
	}
	if len(missing) > 0 {
		return &core.DefinitionError{
			Message: fmt.Sprintf("required task types not registered: %s", strings.Join(missing, ", ")),
		}
	}
	return nil
}
