package domain

import "context"

// ─── Store Interfaces ───────────────────────────────────────────────────────
// These interfaces define the boundary between the lifecycle engine and the
// persistent store. Infrastructure implements them; application packages
// receive them by injection — never a package-level connection.

// Store exposes the transaction scope inside which all lifecycle reads and
// writes occur. The implementation must provide serializable isolation: two
// concurrent transactions may not both observe a task as available and both
// transition it to in_progress.
type Store interface {
	// InTx runs fn inside a single transaction, committing on nil return and
	// rolling back on error. I/O failures surface as ErrStoreUnavailable
	// wrapped errors; prior state is left unchanged.
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the set of read-modify-write primitives available inside one
// transaction.
type Tx interface {
	// GetTask is a point read. Returns ErrTaskNotFound when id is absent.
	GetTask(id string) (*Task, error)

	// InsertTask persists a new task.
	InsertTask(t *Task) error

	// UpdateTask writes t's mutable fields, succeeding only if the persisted
	// status still equals expect (compare-and-swap). Returns ErrConflict when
	// the precondition no longer holds, ErrTaskNotFound when id is absent.
	UpdateTask(t *Task, expect Status) error

	// ListTasks is an ordered, filtered scan: priority descending, then
	// created_at ascending, capped at f.Limit.
	ListTasks(f TaskFilter) ([]Task, error)

	// InsertRelationship adds a parent→child edge.
	InsertRelationship(r *Relationship) error

	// ParentIDs returns the hierarchical (subtask/followup) parents of a task.
	ParentIDs(taskID string) ([]string, error)

	// InsertUpdate appends a progress note.
	InsertUpdate(u *Update) error

	// ListUpdates returns a task's updates ordered by created_at ascending.
	ListUpdates(taskID string) ([]Update, error)

	// InsertHistory appends a field-level audit record.
	InsertHistory(h *HistoryEntry) error

	// ListHistory returns a task's audit records ordered by changed_at
	// ascending.
	ListHistory(taskID string) ([]HistoryEntry, error)

	// LastRelease returns the most recent history entry that moved the task
	// back to available, or nil if the task was never released.
	LastRelease(taskID string) (*HistoryEntry, error)

	// InsertProject persists a new project. Returns ErrDuplicate when the
	// name is taken.
	InsertProject(p *Project) error

	// GetProject is a point read. Returns ErrProjectNotFound when absent.
	GetProject(id string) (*Project, error)

	// GetProjectByName looks a project up by its unique name.
	GetProjectByName(name string) (*Project, error)

	// ListProjects returns all projects ordered by name.
	ListProjects() ([]Project, error)

	// AgentPerformance aggregates completed-task counts and mean completion
	// latency for one agent, optionally restricted to a task type.
	AgentPerformance(agentID string, taskType *TaskType) (*AgentPerformance, error)
}
