// Package bulk applies batches of lifecycle operations. Unlock batches run
// per-item so one bad item cannot abort the cleanup of the rest; create
// batches are all-or-nothing because a malformed item usually signals a
// caller bug that should fail loudly.
package bulk

import (
	"context"

	"github.com/loomworks/loom/internal/app/lifecycle"
	"github.com/loomworks/loom/internal/domain"
)

// UnlockItem names one task/agent pair in an unlock batch.
type UnlockItem struct {
	TaskID  string `json:"task_id"`
	AgentID string `json:"agent_id"`
}

// ItemResult reports the outcome of one item in a batch.
type ItemResult struct {
	TaskID string `json:"task_id"`
	OK     bool   `json:"ok"`
	Error  string `json:"error,omitempty"`
}

// Coordinator drives batch operations through the lifecycle engine.
type Coordinator struct {
	engine *lifecycle.Engine
}

// New creates a Coordinator.
func New(engine *lifecycle.Engine) *Coordinator {
	return &Coordinator{engine: engine}
}

// Unlock applies unlock to each item independently. Per-item failures
// (ownership mismatch, invalid state, not found) are reported, not fatal:
// partial cleanup progress is strictly better than none.
func (c *Coordinator) Unlock(ctx context.Context, items []UnlockItem) []ItemResult {
	results := make([]ItemResult, 0, len(items))
	for _, item := range items {
		res := ItemResult{TaskID: item.TaskID, OK: true}
		if _, err := c.engine.Unlock(ctx, item.TaskID, item.AgentID); err != nil {
			res.OK = false
			res.Error = err.Error()
		}
		results = append(results, res)
	}
	return results
}

// Create inserts a batch of tasks all-or-nothing. If any item fails
// validation the whole batch is rejected before any insert occurs.
func (c *Coordinator) Create(ctx context.Context, specs []domain.TaskSpec) ([]domain.Task, error) {
	return c.engine.CreateMany(ctx, specs)
}
