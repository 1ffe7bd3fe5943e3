package a2a

import "github.com/hupe1980/a2aflow/core"

// NewInvokeResponse converts a workflow result into its wire form.
func NewInvokeResponse(res *core.WorkflowResult) *InvokeResponse {
	output := res.Output
	if output == nil {
		output = map[string]any{}
	}
	return &InvokeResponse{
		ID:         res.ID,
		Workflow:   res.Workflow,
		Status:     string(res.Status),
		Result:     output,
		Tasks:      TaskStatuses(res.Tasks),
		DurationMS: res.DurationMS,
	}
}

// TaskStatuses converts per-task results into their wire form.
func TaskStatuses(results []core.TaskResult) []TaskStatus {
	out := make([]TaskStatus, 0, len(results))
	for _, r := range results {
		out = append(out, TaskStatus{
			Name:       r.Name,
			Type:       r.Type,
			Status:     string(r.Status),
			DurationMS: r.DurationMS,
			Attempts:   r.Attempts,
			Recovered:  r.Recovered,
			Group:      r.Group,
			Error:      r.Error,
		})
	}
	return out
}
