package domain

import "time"

// UpdateType labels an append-only progress note.
type UpdateType string

const (
	UpdateProgress UpdateType = "progress"
	UpdateNote     UpdateType = "note"
	UpdateBlocker  UpdateType = "blocker"
	UpdateQuestion UpdateType = "question"
	UpdateFinding  UpdateType = "finding"
)

// Valid reports whether u is a known update type.
func (u UpdateType) Valid() bool {
	switch u {
	case UpdateProgress, UpdateNote, UpdateBlocker, UpdateQuestion, UpdateFinding:
		return true
	}
	return false
}

// Update is an append-only note attached to a task. Updates are never
// mutated or deleted; ordering is by CreatedAt ascending.
type Update struct {
	ID        string            `json:"id"`
	TaskID    string            `json:"task_id"`
	AgentID   string            `json:"agent_id"`
	Content   string            `json:"content"`
	Type      UpdateType        `json:"update_type"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// ChangeType labels a field-level audit record.
type ChangeType string

const (
	ChangeStatus ChangeType = "status_change"
	ChangeField  ChangeType = "field_update"

	// ChangeTimeoutRelease marks a status change forced by stale-claim
	// reclamation. It is what distinguishes a timed-out reservation from an
	// explicit unlock when the next owner asks for a stale warning.
	ChangeTimeoutRelease ChangeType = "timeout_release"
)

// HistoryEntry is an append-only field-level audit record. Entries are
// generated by lifecycle mutations only, never written directly by callers.
type HistoryEntry struct {
	ID        int64      `json:"id"`
	TaskID    string     `json:"task_id"`
	Type      ChangeType `json:"change_type"`
	FieldName string     `json:"field_name"`
	OldValue  string     `json:"old_value"`
	NewValue  string     `json:"new_value"`
	ChangedBy string     `json:"changed_by"`
	ChangedAt time.Time  `json:"changed_at"`
}
