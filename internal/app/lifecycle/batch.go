package lifecycle

import (
	"context"
	"fmt"

	"github.com/loomworks/loom/internal/domain"
	"github.com/loomworks/loom/internal/infra/metrics"
)

// CreateMany inserts a batch of tasks all-or-nothing: every spec is
// validated before any insert, and all inserts (plus any relationship
// edges) share one transaction. A single invalid item rejects the batch.
func (e *Engine) CreateMany(ctx context.Context, specs []domain.TaskSpec) ([]domain.Task, error) {
	if len(specs) == 0 {
		return nil, fmt.Errorf("%w: empty batch", domain.ErrValidation)
	}
	for i := range specs {
		if err := specs[i].Validate(); err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
	}

	var tasks []domain.Task
	err := e.store.InTx(ctx, func(tx domain.Tx) error {
		tasks = tasks[:0]
		for i := range specs {
			task, err := e.insertTask(tx, specs[i])
			if err != nil {
				return fmt.Errorf("item %d: %w", i, err)
			}
			tasks = append(tasks, *task)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for i := range tasks {
		metrics.TasksCreated.WithLabelValues(string(tasks[i].Type)).Inc()
		e.emit(domain.Event{Kind: domain.EventCreated, Task: tasks[i], AgentID: specs[i].AgentID, At: tasks[i].CreatedAt})
	}
	return tasks, nil
}
