// Package relation creates and traverses links between tasks: decomposition
// (subtask), consequence (followup), and informational (related, blocks)
// edges, plus the ancestry chain built by walking hierarchy edges upward.
package relation

import (
	"context"
	"fmt"

	"github.com/loomworks/loom/internal/domain"
)

// DefaultMaxDepth bounds ancestry traversal. Subtask/followup edges should
// form a forest but nothing hard-enforces acyclicity, so the walk must
// terminate even over a cycle.
const DefaultMaxDepth = 64

// Manager creates and queries task relationships.
type Manager struct {
	store    domain.Store
	clock    domain.Clock
	maxDepth int
}

// New creates a Manager. maxDepth <= 0 selects DefaultMaxDepth.
func New(store domain.Store, clock domain.Clock, maxDepth int) *Manager {
	if clock == nil {
		clock = domain.SystemClock{}
	}
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return &Manager{store: store, clock: clock, maxDepth: maxDepth}
}

// Link inserts a directed parent→child edge. Both tasks must exist.
func (m *Manager) Link(ctx context.Context, parentID, childID string, typ domain.RelationshipType) (*domain.Relationship, error) {
	if !typ.Valid() {
		return nil, fmt.Errorf("%w: unknown relationship_type %q", domain.ErrValidation, typ)
	}
	if parentID == childID {
		return nil, fmt.Errorf("%w: a task cannot be linked to itself", domain.ErrValidation)
	}

	rel := &domain.Relationship{
		ParentTaskID: parentID,
		ChildTaskID:  childID,
		Type:         typ,
		CreatedAt:    m.clock.Now(),
	}
	err := m.store.InTx(ctx, func(tx domain.Tx) error {
		if _, err := tx.GetTask(parentID); err != nil {
			return err
		}
		if _, err := tx.GetTask(childID); err != nil {
			return err
		}
		return tx.InsertRelationship(rel)
	})
	if err != nil {
		return nil, err
	}
	return rel, nil
}

// Ancestry returns the chain of ancestor tasks reachable by following
// subtask/followup edges upward, nearest parent first. When a cycle is
// encountered the chain built so far is returned together with
// domain.ErrCycleDetected as an advisory.
func (m *Manager) Ancestry(ctx context.Context, taskID string) ([]domain.Task, error) {
	var chain []domain.Task
	var cycle bool
	err := m.store.InTx(ctx, func(tx domain.Tx) error {
		if _, err := tx.GetTask(taskID); err != nil {
			return err
		}
		var err error
		chain, cycle, err = Chain(tx, taskID, m.maxDepth)
		return err
	})
	if err != nil {
		return nil, err
	}
	if cycle {
		return chain, fmt.Errorf("%w: ancestry of task %s", domain.ErrCycleDetected, taskID)
	}
	return chain, nil
}

// Chain walks hierarchy edges upward inside an existing transaction,
// following the earliest-created parent at each level. It terminates after
// maxDepth hops or on revisiting a task, reporting the cycle rather than
// looping forever.
func Chain(tx domain.Tx, taskID string, maxDepth int) ([]domain.Task, bool, error) {
	var chain []domain.Task
	seen := map[string]bool{taskID: true}
	current := taskID

	for depth := 0; depth < maxDepth; depth++ {
		parents, err := tx.ParentIDs(current)
		if err != nil {
			return nil, false, err
		}
		if len(parents) == 0 {
			return chain, false, nil
		}
		next := parents[0]
		if seen[next] {
			return chain, true, nil
		}
		seen[next] = true

		parent, err := tx.GetTask(next)
		if err != nil {
			return nil, false, err
		}
		chain = append(chain, *parent)
		current = next
	}
	// Depth exhausted: treat as a cycle, the forest should never be this deep.
	return chain, true, nil
}
