package domain

import "time"

// Project groups related tasks.
type Project struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// AgentPerformance is the derived per-agent view aggregated from completed
// tasks. It is computed on demand, never stored.
type AgentPerformance struct {
	AgentID           string                     `json:"agent_id"`
	CompletedCount    int                        `json:"completed_count"`
	AvgCompletionSecs float64                    `json:"avg_completion_seconds"`
	ByType            map[TaskType]TypeBreakdown `json:"by_type,omitempty"`
}

// TypeBreakdown is the per-task-type slice of an agent's performance.
type TypeBreakdown struct {
	CompletedCount    int     `json:"completed_count"`
	AvgCompletionSecs float64 `json:"avg_completion_seconds"`
}
