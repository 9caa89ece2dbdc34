// Package domain defines the task coordination model: tasks, reservations,
// relationships, updates, and change history. A Task is a unit of work that
// flows through the queue: create → reserve → progress → complete/unlock,
// with stale reservations reclaimed by a periodic sweep.
package domain

import (
	"fmt"
	"time"
)

// Status tracks task lifecycle.
type Status string

const (
	StatusAvailable  Status = "available"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusBlocked    Status = "blocked"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusAvailable, StatusInProgress, StatusCompleted, StatusBlocked:
		return true
	}
	return false
}

// TaskType categorizes the kind of work.
// Concrete tasks are directly executable; abstract and epic tasks exist to be
// decomposed into smaller ones.
type TaskType string

const (
	TypeConcrete TaskType = "concrete"
	TypeAbstract TaskType = "abstract"
	TypeEpic     TaskType = "epic"
)

// Valid reports whether t is a known task type.
func (t TaskType) Valid() bool {
	switch t {
	case TypeConcrete, TypeAbstract, TypeEpic:
		return true
	}
	return false
}

// AgentType is the declared capability of a requesting agent.
type AgentType string

const (
	AgentImplementation AgentType = "implementation"
	AgentBreakdown      AgentType = "breakdown"
)

// TaskTypes returns the task types an agent of this capability may work on.
// Implementation agents execute concrete tasks; breakdown agents decompose
// abstract and epic tasks.
func (a AgentType) TaskTypes() []TaskType {
	switch a {
	case AgentImplementation:
		return []TaskType{TypeConcrete}
	case AgentBreakdown:
		return []TaskType{TypeAbstract, TypeEpic}
	}
	return nil
}

// Valid reports whether a is a known agent type.
func (a AgentType) Valid() bool {
	return a == AgentImplementation || a == AgentBreakdown
}

// Priority determines listing order. Higher values sort first.
type Priority int

const (
	PriorityLow      Priority = 0
	PriorityMedium   Priority = 1
	PriorityHigh     Priority = 2
	PriorityCritical Priority = 3
)

var priorityNames = map[Priority]string{
	PriorityLow:      "low",
	PriorityMedium:   "medium",
	PriorityHigh:     "high",
	PriorityCritical: "critical",
}

func (p Priority) String() string {
	if name, ok := priorityNames[p]; ok {
		return name
	}
	return fmt.Sprintf("priority(%d)", int(p))
}

// ParsePriority converts a priority name to its ordered value.
func ParsePriority(s string) (Priority, error) {
	for p, name := range priorityNames {
		if name == s {
			return p, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown priority %q", ErrValidation, s)
}

// MarshalText renders the priority by name so JSON carries "high", not 2.
func (p Priority) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText accepts a priority name.
func (p *Priority) UnmarshalText(b []byte) error {
	v, err := ParsePriority(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// Task is a unit of work with exclusive, time-stamped ownership while
// in progress. Title, type, and instructions are immutable after creation.
type Task struct {
	ID                      string     `json:"id"`
	Title                   string     `json:"title"`
	Type                    TaskType   `json:"task_type"`
	Instruction             string     `json:"task_instruction"`
	VerificationInstruction string     `json:"verification_instruction"`
	Status                  Status     `json:"status"`
	Priority                Priority   `json:"priority"`
	AssignedAgent           string     `json:"assigned_agent_id,omitempty"`
	ReservedAt              *time.Time `json:"reserved_at,omitempty"`
	StartedAt               *time.Time `json:"started_at,omitempty"`
	CompletedAt             *time.Time `json:"completed_at,omitempty"`
	CompletedBy             string     `json:"completed_by,omitempty"`
	ProjectID               string     `json:"project_id,omitempty"`
	ParentTaskID            string     `json:"parent_task_id,omitempty"`
	Notes                   string     `json:"notes,omitempty"`
	EstimatedHours          float64    `json:"estimated_hours,omitempty"`
	CreatedBy               string     `json:"created_by"`
	CreatedAt               time.Time  `json:"created_at"`
	UpdatedAt               time.Time  `json:"updated_at"`
}

// IsTerminal returns true if the task has reached a final state.
func (t *Task) IsTerminal() bool {
	return t.Status == StatusCompleted || t.Status == StatusBlocked
}

// TaskSpec carries the caller-supplied fields for task creation.
type TaskSpec struct {
	Title                   string           `json:"title"`
	Type                    TaskType         `json:"task_type"`
	Instruction             string           `json:"task_instruction"`
	VerificationInstruction string           `json:"verification_instruction"`
	AgentID                 string           `json:"agent_id"`
	ProjectID               string           `json:"project_id,omitempty"`
	ParentTaskID            string           `json:"parent_task_id,omitempty"`
	Relationship            RelationshipType `json:"relationship_type,omitempty"`
	Notes                   string           `json:"notes,omitempty"`
	Priority                *Priority        `json:"priority,omitempty"`
	EstimatedHours          float64          `json:"estimated_hours,omitempty"`
}

// Validate checks required fields and enum membership.
func (s *TaskSpec) Validate() error {
	switch {
	case s.Title == "":
		return fmt.Errorf("%w: title is required", ErrValidation)
	case s.Instruction == "":
		return fmt.Errorf("%w: task_instruction is required", ErrValidation)
	case s.VerificationInstruction == "":
		return fmt.Errorf("%w: verification_instruction is required", ErrValidation)
	case s.AgentID == "":
		return fmt.Errorf("%w: agent_id is required", ErrValidation)
	case !s.Type.Valid():
		return fmt.Errorf("%w: unknown task_type %q", ErrValidation, s.Type)
	}
	if s.Relationship != "" && !s.Relationship.Valid() {
		return fmt.Errorf("%w: unknown relationship_type %q", ErrValidation, s.Relationship)
	}
	if s.Relationship != "" && s.ParentTaskID == "" {
		return fmt.Errorf("%w: relationship_type requires parent_task_id", ErrValidation)
	}
	return nil
}

// TaskFilter controls which tasks a scan returns. Nil/zero fields are
// ignored; supplied fields combine with AND semantics.
type TaskFilter struct {
	ProjectID   string
	Type        *TaskType
	Types       []TaskType
	Status      *Status
	AgentID     string
	Priority    *Priority
	StaleBefore *time.Time // in_progress tasks reserved before this instant
	Limit       int
}

// StaleWarning tells a new owner that the previous reservation ended by
// timeout rather than an explicit release, so prior partial work may exist.
type StaleWarning struct {
	PriorAgent string    `json:"prior_agent_id"`
	ReleasedAt time.Time `json:"released_at"`
}

// TaskContext is the enriched view returned by reserve and context lookups:
// the task, its project, its ancestor chain, and its update history.
type TaskContext struct {
	Task          Task          `json:"task"`
	Project       *Project      `json:"project,omitempty"`
	Ancestry      []Task        `json:"ancestry,omitempty"`
	Updates       []Update      `json:"updates,omitempty"`
	StaleWarning  *StaleWarning `json:"stale_warning,omitempty"`
	CycleDetected bool          `json:"cycle_detected,omitempty"`
}
