package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/loomworks/loom/internal/domain"
)

// ─── Relationships ──────────────────────────────────────────────────────────

// InsertRelationship adds a parent→child edge. Duplicate edges are rejected
// by the composite primary key.
func (t *Tx) InsertRelationship(r *domain.Relationship) error {
	_, err := t.tx.Exec(`
		INSERT INTO task_relationships (parent_task_id, child_task_id, relationship_type, created_at)
		VALUES (?,?,?,?)`,
		r.ParentTaskID, r.ChildTaskID, string(r.Type), r.CreatedAt.Unix(),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return domain.ErrDuplicate
		}
		return storeErr("insert relationship", err)
	}
	return nil
}

// ParentIDs returns the hierarchical (subtask/followup) parents of a task.
func (t *Tx) ParentIDs(taskID string) ([]string, error) {
	rows, err := t.tx.Query(`
		SELECT parent_task_id FROM task_relationships
		WHERE child_task_id = ? AND relationship_type IN (?, ?)
		ORDER BY created_at ASC`,
		taskID, string(domain.RelSubtask), string(domain.RelFollowup),
	)
	if err != nil {
		return nil, storeErr("parent ids", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, storeErr("parent ids", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("parent ids", err)
	}
	return ids, nil
}

// ─── Updates ────────────────────────────────────────────────────────────────

// InsertUpdate appends a progress note. Updates are append-only.
func (t *Tx) InsertUpdate(u *domain.Update) error {
	meta := "{}"
	if len(u.Metadata) > 0 {
		b, err := json.Marshal(u.Metadata)
		if err != nil {
			return storeErr("encode update metadata", err)
		}
		meta = string(b)
	}
	_, err := t.tx.Exec(`
		INSERT INTO task_updates (id, task_id, agent_id, content, update_type, metadata, created_at)
		VALUES (?,?,?,?,?,?,?)`,
		u.ID, u.TaskID, u.AgentID, u.Content, string(u.Type), meta, u.CreatedAt.Unix(),
	)
	if err != nil {
		return storeErr("insert update", err)
	}
	return nil
}

// ListUpdates returns a task's updates ordered by created_at ascending.
func (t *Tx) ListUpdates(taskID string) ([]domain.Update, error) {
	rows, err := t.tx.Query(`
		SELECT id, task_id, agent_id, content, update_type, metadata, created_at
		FROM task_updates WHERE task_id = ? ORDER BY created_at ASC, id ASC`,
		taskID,
	)
	if err != nil {
		return nil, storeErr("list updates", err)
	}
	defer rows.Close()

	var updates []domain.Update
	for rows.Next() {
		var u domain.Update
		var updateType, meta string
		var createdAt int64
		if err := rows.Scan(&u.ID, &u.TaskID, &u.AgentID, &u.Content, &updateType, &meta, &createdAt); err != nil {
			return nil, storeErr("scan update", err)
		}
		u.Type = domain.UpdateType(updateType)
		u.CreatedAt = time.Unix(createdAt, 0).UTC()
		if meta != "" && meta != "{}" {
			_ = json.Unmarshal([]byte(meta), &u.Metadata)
		}
		updates = append(updates, u)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list updates", err)
	}
	return updates, nil
}

// ─── Change History ─────────────────────────────────────────────────────────

// InsertHistory appends a field-level audit record.
func (t *Tx) InsertHistory(h *domain.HistoryEntry) error {
	res, err := t.tx.Exec(`
		INSERT INTO change_history (task_id, change_type, field_name, old_value, new_value, changed_by, changed_at)
		VALUES (?,?,?,?,?,?,?)`,
		h.TaskID, string(h.Type), h.FieldName, h.OldValue, h.NewValue, h.ChangedBy, h.ChangedAt.Unix(),
	)
	if err != nil {
		return storeErr("insert history", err)
	}
	h.ID, _ = res.LastInsertId()
	return nil
}

// ListHistory returns a task's audit records in insertion order.
func (t *Tx) ListHistory(taskID string) ([]domain.HistoryEntry, error) {
	rows, err := t.tx.Query(`
		SELECT id, task_id, change_type, field_name, old_value, new_value, changed_by, changed_at
		FROM change_history WHERE task_id = ? ORDER BY id ASC`,
		taskID,
	)
	if err != nil {
		return nil, storeErr("list history", err)
	}
	defer rows.Close()

	var entries []domain.HistoryEntry
	for rows.Next() {
		h, err := scanHistory(rows)
		if err != nil {
			return nil, storeErr("scan history", err)
		}
		entries = append(entries, *h)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list history", err)
	}
	return entries, nil
}

// LastRelease returns the most recent history entry that moved the task back
// to available, or nil if the task has never been released. Its change type
// tells reservation whether the previous claim timed out.
func (t *Tx) LastRelease(taskID string) (*domain.HistoryEntry, error) {
	row := t.tx.QueryRow(`
		SELECT id, task_id, change_type, field_name, old_value, new_value, changed_by, changed_at
		FROM change_history
		WHERE task_id = ? AND field_name = 'status' AND new_value = ?
		ORDER BY id DESC LIMIT 1`,
		taskID, string(domain.StatusAvailable),
	)
	h, err := scanHistory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("last release", err)
	}
	return h, nil
}

func scanHistory(s scanner) (*domain.HistoryEntry, error) {
	var h domain.HistoryEntry
	var changeType string
	var changedAt int64
	err := s.Scan(&h.ID, &h.TaskID, &changeType, &h.FieldName, &h.OldValue, &h.NewValue, &h.ChangedBy, &changedAt)
	if err != nil {
		return nil, err
	}
	h.Type = domain.ChangeType(changeType)
	h.ChangedAt = time.Unix(changedAt, 0).UTC()
	return &h, nil
}
