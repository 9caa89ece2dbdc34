package sqlite

import (
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/loomworks/loom/internal/domain"
)

const taskColumns = `id, title, task_type, task_instruction, verification_instruction,
	status, priority, assigned_agent, reserved_at, started_at, completed_at, completed_by,
	project_id, parent_task_id, notes, estimated_hours, created_by, created_at, updated_at`

// GetTask retrieves a task by ID.
func (t *Tx) GetTask(id string) (*domain.Task, error) {
	row := t.tx.QueryRow(`SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrTaskNotFound
	}
	if err != nil {
		return nil, storeErr("get task", err)
	}
	return task, nil
}

// InsertTask persists a new task.
func (t *Tx) InsertTask(task *domain.Task) error {
	_, err := t.tx.Exec(`
		INSERT INTO tasks
			(id, title, task_type, task_instruction, verification_instruction,
			 status, priority, assigned_agent, reserved_at, started_at, completed_at, completed_by,
			 project_id, parent_task_id, notes, estimated_hours, created_by, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		task.ID, task.Title, string(task.Type), task.Instruction, task.VerificationInstruction,
		string(task.Status), int(task.Priority), task.AssignedAgent,
		nullableUnix(task.ReservedAt), nullableUnix(task.StartedAt), nullableUnix(task.CompletedAt),
		task.CompletedBy,
		task.ProjectID, task.ParentTaskID, task.Notes, task.EstimatedHours,
		task.CreatedBy, task.CreatedAt.Unix(), task.UpdatedAt.Unix(),
	)
	if err != nil {
		return storeErr("insert task", err)
	}
	return nil
}

// UpdateTask writes a task's mutable fields with a status precondition.
// The WHERE clause is the compare-and-swap: zero rows affected means either
// the task vanished or another transaction moved it first.
func (t *Tx) UpdateTask(task *domain.Task, expect domain.Status) error {
	res, err := t.tx.Exec(`
		UPDATE tasks SET
			status=?, priority=?, assigned_agent=?,
			reserved_at=?, started_at=?, completed_at=?, completed_by=?,
			notes=?, estimated_hours=?, updated_at=?
		WHERE id=? AND status=?`,
		string(task.Status), int(task.Priority), task.AssignedAgent,
		nullableUnix(task.ReservedAt), nullableUnix(task.StartedAt), nullableUnix(task.CompletedAt),
		task.CompletedBy,
		task.Notes, task.EstimatedHours, task.UpdatedAt.Unix(),
		task.ID, string(expect),
	)
	if err != nil {
		return storeErr("update task", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return storeErr("update task", err)
	}
	if rows == 0 {
		var one int
		err := t.tx.QueryRow(`SELECT 1 FROM tasks WHERE id = ?`, task.ID).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrTaskNotFound
		}
		if err != nil {
			return storeErr("update task", err)
		}
		return domain.ErrConflict
	}
	return nil
}

// ListTasks returns tasks matching the filter, ordered by priority
// descending then created_at ascending.
func (t *Tx) ListTasks(f domain.TaskFilter) ([]domain.Task, error) {
	q := strings.Builder{}
	q.WriteString(`SELECT ` + taskColumns + ` FROM tasks WHERE 1=1`)
	args := []any{}

	if f.ProjectID != "" {
		q.WriteString(" AND project_id=?")
		args = append(args, f.ProjectID)
	}
	if f.Type != nil {
		q.WriteString(" AND task_type=?")
		args = append(args, string(*f.Type))
	}
	if len(f.Types) > 0 {
		q.WriteString(" AND task_type IN (?" + strings.Repeat(",?", len(f.Types)-1) + ")")
		for _, tt := range f.Types {
			args = append(args, string(tt))
		}
	}
	if f.Status != nil {
		q.WriteString(" AND status=?")
		args = append(args, string(*f.Status))
	}
	if f.AgentID != "" {
		q.WriteString(" AND assigned_agent=?")
		args = append(args, f.AgentID)
	}
	if f.Priority != nil {
		q.WriteString(" AND priority=?")
		args = append(args, int(*f.Priority))
	}
	if f.StaleBefore != nil {
		q.WriteString(" AND status=? AND reserved_at IS NOT NULL AND reserved_at < ?")
		args = append(args, string(domain.StatusInProgress), f.StaleBefore.Unix())
	}
	q.WriteString(" ORDER BY priority DESC, created_at ASC")
	if f.Limit > 0 {
		q.WriteString(" LIMIT ?")
		args = append(args, f.Limit)
	}

	rows, err := t.tx.Query(q.String(), args...)
	if err != nil {
		return nil, storeErr("list tasks", err)
	}
	defer rows.Close()

	var tasks []domain.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, storeErr("scan task", err)
		}
		tasks = append(tasks, *task)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list tasks", err)
	}
	return tasks, nil
}

// AgentPerformance aggregates completed-task counts and mean latency from
// retained started_at/completed_at stamps, grouped by task type.
func (t *Tx) AgentPerformance(agentID string, taskType *domain.TaskType) (*domain.AgentPerformance, error) {
	q := `SELECT task_type, COUNT(*),
			COALESCE(AVG(completed_at - started_at), 0)
		FROM tasks
		WHERE status=? AND completed_by=? AND started_at IS NOT NULL AND completed_at IS NOT NULL`
	args := []any{string(domain.StatusCompleted), agentID}
	if taskType != nil {
		q += " AND task_type=?"
		args = append(args, string(*taskType))
	}
	q += " GROUP BY task_type"

	rows, err := t.tx.Query(q, args...)
	if err != nil {
		return nil, storeErr("agent performance", err)
	}
	defer rows.Close()

	perf := &domain.AgentPerformance{
		AgentID: agentID,
		ByType:  map[domain.TaskType]domain.TypeBreakdown{},
	}
	var totalSecs float64
	for rows.Next() {
		var tt string
		var count int
		var avg float64
		if err := rows.Scan(&tt, &count, &avg); err != nil {
			return nil, storeErr("agent performance", err)
		}
		perf.ByType[domain.TaskType(tt)] = domain.TypeBreakdown{
			CompletedCount:    count,
			AvgCompletionSecs: avg,
		}
		perf.CompletedCount += count
		totalSecs += avg * float64(count)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("agent performance", err)
	}
	if perf.CompletedCount > 0 {
		perf.AvgCompletionSecs = totalSecs / float64(perf.CompletedCount)
	}
	return perf, nil
}

func scanTask(s scanner) (*domain.Task, error) {
	var t domain.Task
	var status, taskType string
	var priority int
	var reservedAt, startedAt, completedAt sql.NullInt64
	var createdAt, updatedAt int64

	err := s.Scan(
		&t.ID, &t.Title, &taskType, &t.Instruction, &t.VerificationInstruction,
		&status, &priority, &t.AssignedAgent,
		&reservedAt, &startedAt, &completedAt, &t.CompletedBy,
		&t.ProjectID, &t.ParentTaskID, &t.Notes, &t.EstimatedHours,
		&t.CreatedBy, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	t.Status = domain.Status(status)
	t.Type = domain.TaskType(taskType)
	t.Priority = domain.Priority(priority)
	t.ReservedAt = unixPtr(reservedAt)
	t.StartedAt = unixPtr(startedAt)
	t.CompletedAt = unixPtr(completedAt)
	t.CreatedAt = time.Unix(createdAt, 0).UTC()
	t.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &t, nil
}
