// Package lifecycle implements the task state machine: creation,
// reservation, completion, release, and stale-claim reclamation. Every
// operation runs inside one store transaction; the store's compare-and-swap
// update is the only synchronization primitive, so any number of callers may
// act concurrently without a scheduler process.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/loomworks/loom/internal/app/relation"
	"github.com/loomworks/loom/internal/domain"
	"github.com/loomworks/loom/internal/infra/metrics"
)

// SystemAgent is the identity recorded on updates written by the engine
// itself rather than by a calling agent.
const SystemAgent = "system"

// FollowupSpec is the optional new task created atomically with a completion.
type FollowupSpec struct {
	Title                   string          `json:"title"`
	Type                    domain.TaskType `json:"task_type"`
	Instruction             string          `json:"task_instruction"`
	VerificationInstruction string          `json:"verification_instruction"`
}

// Engine owns the task lifecycle. It is stateless between calls; all state
// lives in the injected store.
type Engine struct {
	store domain.Store
	clock domain.Clock

	mu        sync.Mutex
	observers []domain.Observer
}

// New creates an Engine over the given store and clock.
func New(store domain.Store, clock domain.Clock) *Engine {
	if clock == nil {
		clock = domain.SystemClock{}
	}
	return &Engine{store: store, clock: clock}
}

// Subscribe registers a post-commit event observer. Observers run on their
// own goroutine and cannot fail or block a lifecycle operation.
func (e *Engine) Subscribe(fn domain.Observer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.observers = append(e.observers, fn)
}

func (e *Engine) emit(ev domain.Event) {
	e.mu.Lock()
	observers := make([]domain.Observer, len(e.observers))
	copy(observers, e.observers)
	e.mu.Unlock()
	for _, fn := range observers {
		go fn(ev)
	}
}

// Create validates the spec and inserts a new available task. When a parent
// link is requested, the relationship edge is inserted in the same
// transaction — either both persist or neither does.
func (e *Engine) Create(ctx context.Context, spec domain.TaskSpec) (*domain.Task, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	var task *domain.Task
	err := e.store.InTx(ctx, func(tx domain.Tx) error {
		var err error
		task, err = e.insertTask(tx, spec)
		return err
	})
	if err != nil {
		return nil, err
	}

	metrics.TasksCreated.WithLabelValues(string(task.Type)).Inc()
	e.emit(domain.Event{Kind: domain.EventCreated, Task: *task, AgentID: spec.AgentID, At: task.CreatedAt})
	return task, nil
}

// insertTask performs the in-transaction part of task creation. Shared with
// Complete's followup path so both run under the caller's transaction.
func (e *Engine) insertTask(tx domain.Tx, spec domain.TaskSpec) (*domain.Task, error) {
	if spec.ProjectID != "" {
		if _, err := tx.GetProject(spec.ProjectID); err != nil {
			return nil, err
		}
	}
	if spec.ParentTaskID != "" {
		if _, err := tx.GetTask(spec.ParentTaskID); err != nil {
			return nil, err
		}
	}

	now := e.clock.Now()
	priority := domain.PriorityMedium
	if spec.Priority != nil {
		priority = *spec.Priority
	}
	task := &domain.Task{
		ID:                      uuid.NewString(),
		Title:                   spec.Title,
		Type:                    spec.Type,
		Instruction:             spec.Instruction,
		VerificationInstruction: spec.VerificationInstruction,
		Status:                  domain.StatusAvailable,
		Priority:                priority,
		ProjectID:               spec.ProjectID,
		ParentTaskID:            spec.ParentTaskID,
		Notes:                   spec.Notes,
		EstimatedHours:          spec.EstimatedHours,
		CreatedBy:               spec.AgentID,
		CreatedAt:               now,
		UpdatedAt:               now,
	}
	if err := tx.InsertTask(task); err != nil {
		return nil, err
	}

	if spec.Relationship != "" {
		rel := &domain.Relationship{
			ParentTaskID: spec.ParentTaskID,
			ChildTaskID:  task.ID,
			Type:         spec.Relationship,
			CreatedAt:    now,
		}
		if err := tx.InsertRelationship(rel); err != nil {
			return nil, err
		}
	}

	return task, tx.InsertHistory(&domain.HistoryEntry{
		TaskID:    task.ID,
		Type:      domain.ChangeStatus,
		FieldName: "status",
		NewValue:  string(domain.StatusAvailable),
		ChangedBy: spec.AgentID,
		ChangedAt: now,
	})
}

// Reserve claims exclusive ownership of an available task and returns its
// enriched context. Exactly one of two racing reserves succeeds; the loser
// sees ErrAlreadyReserved and should pick a different task rather than retry.
func (e *Engine) Reserve(ctx context.Context, taskID, agentID string) (*domain.TaskContext, error) {
	if agentID == "" {
		return nil, fmt.Errorf("%w: agent_id is required", domain.ErrValidation)
	}

	var tc *domain.TaskContext
	err := e.store.InTx(ctx, func(tx domain.Tx) error {
		task, err := tx.GetTask(taskID)
		if err != nil {
			return err
		}
		if task.Status != domain.StatusAvailable {
			return fmt.Errorf("%w: task %s is %s", domain.ErrAlreadyReserved, taskID, task.Status)
		}

		// The previous release, if any, decides the stale warning: a
		// timeout_release means the prior owner never confirmed its work.
		var warning *domain.StaleWarning
		last, err := tx.LastRelease(taskID)
		if err != nil {
			return err
		}
		if last != nil && last.Type == domain.ChangeTimeoutRelease {
			warning = &domain.StaleWarning{PriorAgent: last.ChangedBy, ReleasedAt: last.ChangedAt}
		}

		now := e.clock.Now()
		task.Status = domain.StatusInProgress
		task.AssignedAgent = agentID
		task.ReservedAt = &now
		task.StartedAt = &now
		task.UpdatedAt = now
		if err := tx.UpdateTask(task, domain.StatusAvailable); err != nil {
			if errors.Is(err, domain.ErrConflict) {
				return fmt.Errorf("%w: task %s", domain.ErrAlreadyReserved, taskID)
			}
			return err
		}

		if err := tx.InsertHistory(&domain.HistoryEntry{
			TaskID:    taskID,
			Type:      domain.ChangeStatus,
			FieldName: "status",
			OldValue:  string(domain.StatusAvailable),
			NewValue:  string(domain.StatusInProgress),
			ChangedBy: agentID,
			ChangedAt: now,
		}); err != nil {
			return err
		}

		tc, err = buildContext(tx, task, warning)
		return err
	})
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyReserved) {
			metrics.ReserveConflicts.Inc()
		}
		return nil, err
	}

	metrics.TasksReserved.Inc()
	metrics.TasksInProgress.Inc()
	e.emit(domain.Event{Kind: domain.EventReserved, Task: tc.Task, AgentID: agentID, At: e.clock.Now()})
	return tc, nil
}

// Complete marks a task finished and optionally creates a followup task in
// the same transaction. If the followup fails validation, neither the
// completion nor the followup persists.
func (e *Engine) Complete(ctx context.Context, taskID, agentID, notes string, followup *FollowupSpec) (*domain.Task, *domain.Task, error) {
	var task, followupTask *domain.Task
	err := e.store.InTx(ctx, func(tx domain.Tx) error {
		var err error
		task, err = e.guardOwner(tx, taskID, agentID)
		if err != nil {
			return err
		}

		now := e.clock.Now()
		task.Status = domain.StatusCompleted
		task.AssignedAgent = ""
		task.ReservedAt = nil
		task.CompletedAt = &now
		task.CompletedBy = agentID
		task.UpdatedAt = now
		if notes != "" {
			task.Notes = notes
		}
		if err := tx.UpdateTask(task, domain.StatusInProgress); err != nil {
			if errors.Is(err, domain.ErrConflict) {
				return fmt.Errorf("%w: task %s changed concurrently", domain.ErrInvalidState, taskID)
			}
			return err
		}

		if err := tx.InsertHistory(&domain.HistoryEntry{
			TaskID:    taskID,
			Type:      domain.ChangeStatus,
			FieldName: "status",
			OldValue:  string(domain.StatusInProgress),
			NewValue:  string(domain.StatusCompleted),
			ChangedBy: agentID,
			ChangedAt: now,
		}); err != nil {
			return err
		}

		if followup != nil {
			spec := domain.TaskSpec{
				Title:                   followup.Title,
				Type:                    followup.Type,
				Instruction:             followup.Instruction,
				VerificationInstruction: followup.VerificationInstruction,
				AgentID:                 agentID,
				ProjectID:               task.ProjectID,
				ParentTaskID:            task.ID,
				Relationship:            domain.RelFollowup,
			}
			if err := spec.Validate(); err != nil {
				return err
			}
			followupTask, err = e.insertTask(tx, spec)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	metrics.TasksCompleted.WithLabelValues(string(task.Type)).Inc()
	metrics.TasksInProgress.Dec()
	if task.StartedAt != nil && task.CompletedAt != nil {
		metrics.CompletionLatency.Observe(task.CompletedAt.Sub(*task.StartedAt).Seconds())
	}
	e.emit(domain.Event{Kind: domain.EventCompleted, Task: *task, AgentID: agentID, At: e.clock.Now()})
	if followupTask != nil {
		metrics.TasksCreated.WithLabelValues(string(followupTask.Type)).Inc()
		e.emit(domain.Event{Kind: domain.EventCreated, Task: *followupTask, AgentID: agentID, At: e.clock.Now()})
	}
	return task, followupTask, nil
}

// Unlock releases a claim back to the queue. The history entry records an
// explicit release, so the next owner gets no stale warning.
func (e *Engine) Unlock(ctx context.Context, taskID, agentID string) (*domain.Task, error) {
	var task *domain.Task
	err := e.store.InTx(ctx, func(tx domain.Tx) error {
		var err error
		task, err = e.guardOwner(tx, taskID, agentID)
		if err != nil {
			return err
		}
		return e.release(tx, task, agentID, domain.ChangeStatus)
	})
	if err != nil {
		return nil, err
	}

	metrics.TasksUnlocked.Inc()
	metrics.TasksInProgress.Dec()
	e.emit(domain.Event{Kind: domain.EventUnlocked, Task: *task, AgentID: agentID, At: e.clock.Now()})
	return task, nil
}

// AdminUnlock forces a task back to available from any non-available state,
// bypassing the ownership guard. Operator use only.
func (e *Engine) AdminUnlock(ctx context.Context, taskID, operator string) (*domain.Task, error) {
	var task *domain.Task
	err := e.store.InTx(ctx, func(tx domain.Tx) error {
		var err error
		task, err = tx.GetTask(taskID)
		if err != nil {
			return err
		}
		if task.Status == domain.StatusAvailable {
			return fmt.Errorf("%w: task %s is already available", domain.ErrInvalidState, taskID)
		}

		prior := task.Status
		now := e.clock.Now()
		task.Status = domain.StatusAvailable
		task.AssignedAgent = ""
		task.ReservedAt = nil
		task.CompletedAt = nil
		task.CompletedBy = ""
		task.UpdatedAt = now
		if err := tx.UpdateTask(task, prior); err != nil {
			return err
		}
		return tx.InsertHistory(&domain.HistoryEntry{
			TaskID:    taskID,
			Type:      domain.ChangeStatus,
			FieldName: "status",
			OldValue:  string(prior),
			NewValue:  string(domain.StatusAvailable),
			ChangedBy: operator,
			ChangedAt: now,
		})
	})
	if err != nil {
		return nil, err
	}

	e.emit(domain.Event{Kind: domain.EventUnlocked, Task: *task, AgentID: operator, At: e.clock.Now()})
	return task, nil
}

// guardOwner loads a task and enforces the in_progress + ownership guards
// shared by Complete and Unlock.
func (e *Engine) guardOwner(tx domain.Tx, taskID, agentID string) (*domain.Task, error) {
	if agentID == "" {
		return nil, fmt.Errorf("%w: agent_id is required", domain.ErrValidation)
	}
	task, err := tx.GetTask(taskID)
	if err != nil {
		return nil, err
	}
	if task.Status != domain.StatusInProgress {
		return nil, fmt.Errorf("%w: task %s is %s, not in_progress", domain.ErrInvalidState, taskID, task.Status)
	}
	if task.AssignedAgent != agentID {
		return nil, fmt.Errorf("%w: task %s belongs to %s", domain.ErrNotOwner, taskID, task.AssignedAgent)
	}
	return task, nil
}

// release moves an in_progress task back to available. changeType
// distinguishes an explicit unlock from a timeout-driven reclamation.
func (e *Engine) release(tx domain.Tx, task *domain.Task, changedBy string, changeType domain.ChangeType) error {
	now := e.clock.Now()
	task.Status = domain.StatusAvailable
	task.AssignedAgent = ""
	task.ReservedAt = nil
	task.UpdatedAt = now
	if err := tx.UpdateTask(task, domain.StatusInProgress); err != nil {
		return err
	}
	return tx.InsertHistory(&domain.HistoryEntry{
		TaskID:    task.ID,
		Type:      changeType,
		FieldName: "status",
		OldValue:  string(domain.StatusInProgress),
		NewValue:  string(domain.StatusAvailable),
		ChangedBy: changedBy,
		ChangedAt: now,
	})
}

// buildContext assembles the enriched view returned by Reserve and Context.
func buildContext(tx domain.Tx, task *domain.Task, warning *domain.StaleWarning) (*domain.TaskContext, error) {
	tc := &domain.TaskContext{Task: *task, StaleWarning: warning}

	if task.ProjectID != "" {
		project, err := tx.GetProject(task.ProjectID)
		if err != nil && !errors.Is(err, domain.ErrProjectNotFound) {
			return nil, err
		}
		tc.Project = project
	}

	ancestry, cycle, err := relation.Chain(tx, task.ID, relation.DefaultMaxDepth)
	if err != nil {
		return nil, err
	}
	tc.Ancestry = ancestry
	tc.CycleDetected = cycle

	tc.Updates, err = tx.ListUpdates(task.ID)
	return tc, err
}

// Context returns the enriched view of a task without reserving it.
func (e *Engine) Context(ctx context.Context, taskID string) (*domain.TaskContext, error) {
	var tc *domain.TaskContext
	err := e.store.InTx(ctx, func(tx domain.Tx) error {
		task, err := tx.GetTask(taskID)
		if err != nil {
			return err
		}
		var warning *domain.StaleWarning
		last, err := tx.LastRelease(taskID)
		if err != nil {
			return err
		}
		if last != nil && last.Type == domain.ChangeTimeoutRelease {
			warning = &domain.StaleWarning{PriorAgent: last.ChangedBy, ReleasedAt: last.ChangedAt}
		}
		tc, err = buildContext(tx, task, warning)
		return err
	})
	if err != nil {
		return nil, err
	}
	return tc, nil
}

// AddUpdate appends a progress note to a task.
func (e *Engine) AddUpdate(ctx context.Context, taskID, agentID, content string, typ domain.UpdateType, metadata map[string]string) (*domain.Update, error) {
	switch {
	case agentID == "":
		return nil, fmt.Errorf("%w: agent_id is required", domain.ErrValidation)
	case content == "":
		return nil, fmt.Errorf("%w: content is required", domain.ErrValidation)
	case !typ.Valid():
		return nil, fmt.Errorf("%w: unknown update_type %q", domain.ErrValidation, typ)
	}

	update := &domain.Update{
		ID:        uuid.NewString(),
		TaskID:    taskID,
		AgentID:   agentID,
		Content:   content,
		Type:      typ,
		Metadata:  metadata,
		CreatedAt: e.clock.Now(),
	}
	err := e.store.InTx(ctx, func(tx domain.Tx) error {
		if _, err := tx.GetTask(taskID); err != nil {
			return err
		}
		return tx.InsertUpdate(update)
	})
	if err != nil {
		return nil, err
	}
	return update, nil
}

// ReclaimStale releases every in_progress task whose reservation is older
// than timeout. Safe to run concurrently with reservation attempts and
// idempotent: a second run with no intervening reservations is a no-op.
func (e *Engine) ReclaimStale(ctx context.Context, timeout time.Duration) ([]domain.Task, error) {
	var reclaimed []domain.Task
	err := e.store.InTx(ctx, func(tx domain.Tx) error {
		cutoff := e.clock.Now().Add(-timeout)
		stale, err := tx.ListTasks(domain.TaskFilter{StaleBefore: &cutoff})
		if err != nil {
			return err
		}

		for i := range stale {
			task := stale[i]
			displaced := task.AssignedAgent

			update := &domain.Update{
				ID:      uuid.NewString(),
				TaskID:  task.ID,
				AgentID: SystemAgent,
				Content: fmt.Sprintf("reservation by agent %s exceeded %s and was automatically released", displaced, timeout),
				Type:    domain.UpdateFinding,
				Metadata: map[string]string{
					"displaced_agent": displaced,
				},
				CreatedAt: e.clock.Now(),
			}

			if err := e.release(tx, &task, displaced, domain.ChangeTimeoutRelease); err != nil {
				if errors.Is(err, domain.ErrConflict) {
					// Another transaction moved the task first; it is no
					// longer stale from its point of view.
					continue
				}
				return err
			}
			if err := tx.InsertUpdate(update); err != nil {
				return err
			}
			reclaimed = append(reclaimed, task)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, task := range reclaimed {
		metrics.TasksReclaimed.Inc()
		metrics.TasksInProgress.Dec()
		e.emit(domain.Event{Kind: domain.EventReclaimed, Task: task, At: e.clock.Now()})
	}
	return reclaimed, nil
}

// History returns a task's full change history.
func (e *Engine) History(ctx context.Context, taskID string) ([]domain.HistoryEntry, error) {
	var entries []domain.HistoryEntry
	err := e.store.InTx(ctx, func(tx domain.Tx) error {
		if _, err := tx.GetTask(taskID); err != nil {
			return err
		}
		var err error
		entries, err = tx.ListHistory(taskID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Updates returns a task's progress notes in chronological order.
func (e *Engine) Updates(ctx context.Context, taskID string) ([]domain.Update, error) {
	var updates []domain.Update
	err := e.store.InTx(ctx, func(tx domain.Tx) error {
		if _, err := tx.GetTask(taskID); err != nil {
			return err
		}
		var err error
		updates, err = tx.ListUpdates(taskID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updates, nil
}
