// Package query is the read-only reporting surface over the task store:
// filtered listing, available-work discovery, stale-reservation monitoring,
// and per-agent performance aggregation. It mutates nothing.
package query

import (
	"context"
	"fmt"
	"time"

	"github.com/loomworks/loom/internal/domain"
)

// DefaultLimit caps result sets when the caller does not supply a limit.
const DefaultLimit = 100

// Engine answers queries against the shared store.
type Engine struct {
	store domain.Store
	clock domain.Clock
}

// New creates a query Engine.
func New(store domain.Store, clock domain.Clock) *Engine {
	if clock == nil {
		clock = domain.SystemClock{}
	}
	return &Engine{store: store, clock: clock}
}

// Tasks returns tasks matching all supplied filters, ordered by priority
// descending then created_at ascending.
func (e *Engine) Tasks(ctx context.Context, f domain.TaskFilter) ([]domain.Task, error) {
	if f.Limit <= 0 {
		f.Limit = DefaultLimit
	}
	var tasks []domain.Task
	err := e.store.InTx(ctx, func(tx domain.Tx) error {
		var err error
		tasks, err = tx.ListTasks(f)
		return err
	})
	if err != nil {
		return nil, err
	}
	return tasks, nil
}

// Available returns available tasks whose type matches the requesting
// agent's declared capability, highest priority first.
func (e *Engine) Available(ctx context.Context, agentType domain.AgentType, projectID string, limit int) ([]domain.Task, error) {
	if !agentType.Valid() {
		return nil, fmt.Errorf("%w: unknown agent_type %q", domain.ErrValidation, agentType)
	}
	status := domain.StatusAvailable
	return e.Tasks(ctx, domain.TaskFilter{
		Status:    &status,
		Types:     agentType.TaskTypes(),
		ProjectID: projectID,
		Limit:     limit,
	})
}

// Stale returns in_progress tasks whose reservation is older than timeout.
// Read-only mirror of the reclamation criterion, for monitoring.
func (e *Engine) Stale(ctx context.Context, timeout time.Duration) ([]domain.Task, error) {
	cutoff := e.clock.Now().Add(-timeout)
	return e.Tasks(ctx, domain.TaskFilter{StaleBefore: &cutoff})
}

// AgentPerformance aggregates completed-task counts and mean completion
// latency for one agent, optionally restricted to a task type.
func (e *Engine) AgentPerformance(ctx context.Context, agentID string, taskType *domain.TaskType) (*domain.AgentPerformance, error) {
	if agentID == "" {
		return nil, fmt.Errorf("%w: agent_id is required", domain.ErrValidation)
	}
	if taskType != nil && !taskType.Valid() {
		return nil, fmt.Errorf("%w: unknown task_type %q", domain.ErrValidation, *taskType)
	}
	var perf *domain.AgentPerformance
	err := e.store.InTx(ctx, func(tx domain.Tx) error {
		var err error
		perf, err = tx.AgentPerformance(agentID, taskType)
		return err
	})
	if err != nil {
		return nil, err
	}
	return perf, nil
}
