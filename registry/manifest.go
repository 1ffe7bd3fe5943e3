package registry

import (
	"fmt"
	"slices"
	"strings"

	"github.com/hupe1980/a2aflow/core"
)

// Manifest is the explicit startup contract listing the task types that must
// be available before the server starts.
type Manifest struct {
	Required []string `yaml:"required" mapstructure:"required"`
}

// ManifestFor derives a manifest covering every task type used by the
// given workflows.
func ManifestFor(defs ...*core.WorkflowDefinition) Manifest {
	var required []string
	for _, def := range defs {
		for _, t := range def.TaskTypes() {
			if !slices.Contains(required, t) {
				required = append(required, t)
			}
		}
	}
	slices.Sort(required)
	return Manifest{Required: required}
}

// Merge returns the union of both manifests, sorted.
func (m Manifest) Merge(other Manifest) Manifest {
	out := append([]string(nil), m.Required...)
	for _, t := range other.Required {
		if !slices.Contains(out, t) {
			out = append(out, t)
		}
	}
	slices.Sort(out)
	return Manifest{Required: out}
}

// ValidateWorkflows checks that every task type referenced by a registered
// workflow is present in tasks.
func ValidateWorkflows(tasks *TaskRegistry, workflows *WorkflowRegistry) error {
	var problems []string
	for _, route := range workflows.Routes() {
		for _, t := range route.Definition.TaskTypes() {
			if !tasks.Has(t) {
				problems = append(problems, fmt.Sprintf("%s uses %q", route.Definition.Name, t))
			}
		}
	}
	if len(problems) > 0 {
		return &core.DefinitionError{
			Message: "workflows reference unregistered task types: " + strings.Join(problems, "; "),
		}
	}
	return nil
}
