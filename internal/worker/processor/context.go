package processor

import (
	"sync"

	"github.com/google/uuid"
	"github.com/linkflow-ai/scriptflow/internal/domain/models"
	"github.com/linkflow-ai/scriptflow/internal/domain/params"
)

// ExecutionContext is the mutable state of one running execution: the
// trigger data and the outputs of the nodes that have completed. It is
// shared by the node goroutines of that execution only.
type ExecutionContext struct {
	Execution *models.Execution

	mu          sync.RWMutex
	triggerData map[string]interface{}
	outputs     map[uuid.UUID]map[string]interface{}
	results     map[uuid.UUID]models.NodeResult
}

func NewExecutionContext(execution *models.Execution) *ExecutionContext {
	data, _ := models.CloneValue(map[string]interface{}(execution.TriggerData)).(map[string]interface{})
	if data == nil {
		data = map[string]interface{}{}
	}
	return &ExecutionContext{
		Execution:   execution,
		triggerData: data,
		outputs:     make(map[uuid.UUID]map[string]interface{}),
		results:     make(map[uuid.UUID]models.NodeResult),
	}
}

// Snapshot returns a deep copy of the state a resolver reads.
func (c *ExecutionContext) Snapshot() params.Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	outputs := make(map[uuid.UUID]map[string]interface{}, len(c.outputs))
	for id, out := range c.outputs {
		outputs[id] = models.CloneValue(out).(map[string]interface{})
	}
	return params.Snapshot{
		WorkspaceID: c.Execution.WorkspaceID,
		TriggerData: models.CloneValue(c.triggerData).(map[string]interface{}),
		Outputs:     outputs,
	}
}

// Complete stores a node's output. Outputs are written once per node.
func (c *ExecutionContext) Complete(nodeID uuid.UUID, output map[string]interface{}) {
	if output == nil {
		output = map[string]interface{}{}
	}
	c.mu.Lock()
	c.outputs[nodeID] = models.CloneValue(output).(map[string]interface{})
	c.mu.Unlock()
}

// Output returns a copy of a completed node's output.
func (c *ExecutionContext) Output(nodeID uuid.UUID) (map[string]interface{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out, ok := c.outputs[nodeID]
	if !ok {
		return nil, false
	}
	return models.CloneValue(out).(map[string]interface{}), true
}

// Record keeps the per-node result reported in Execution.Results.
func (c *ExecutionContext) Record(result models.NodeResult) {
	c.mu.Lock()
	c.results[result.NodeID] = result
	c.mu.Unlock()
}

// Results renders the recorded node results keyed by node id.
func (c *ExecutionContext) Results() models.JSON {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(models.JSON, len(c.results))
	for id, r := range c.results {
		entry := map[string]interface{}{
			"node_name": r.NodeName,
			"status":    r.Status,
			"attempts":  r.Attempts,
		}
		if r.Output != nil {
			entry["output"] = models.CloneValue(r.Output)
		}
		if r.Error != "" {
			entry["error"] = r.Error
		}
		if r.Code != "" {
			entry["code"] = r.Code
		}
		out[id.String()] = entry
	}
	return out
}
