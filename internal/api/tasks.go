package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/loomworks/loom/internal/app/lifecycle"
	"github.com/loomworks/loom/internal/domain"
)

// ─── Lifecycle ───

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var spec domain.TaskSpec
	if err := decode(r, &spec); err != nil {
		writeError(w, err)
		return
	}
	task, err := s.engine.Create(r.Context(), spec)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

func (s *Server) handleReserve(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AgentID string `json:"agent_id"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	tc, err := s.engine.Reserve(r.Context(), chi.URLParam(r, "id"), req.AgentID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tc)
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AgentID  string                  `json:"agent_id"`
		Notes    string                  `json:"completion_notes"`
		Followup *lifecycle.FollowupSpec `json:"followup,omitempty"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	task, followup, err := s.engine.Complete(r.Context(), chi.URLParam(r, "id"), req.AgentID, req.Notes, req.Followup)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"task":     task,
		"followup": followup,
	})
}

func (s *Server) handleUnlock(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AgentID string `json:"agent_id"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	task, err := s.engine.Unlock(r.Context(), chi.URLParam(r, "id"), req.AgentID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleAdminUnlock(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Operator string `json:"operator"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Operator == "" {
		req.Operator = lifecycle.SystemAgent
	}
	task, err := s.engine.AdminUnlock(r.Context(), chi.URLParam(r, "id"), req.Operator)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleReclaim(w http.ResponseWriter, r *http.Request) {
	timeout := s.reservationTimeout
	if v := r.URL.Query().Get("timeout"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			writeError(w, fmt.Errorf("%w: bad timeout %q", domain.ErrValidation, v))
			return
		}
		timeout = d
	}
	reclaimed, err := s.engine.ReclaimStale(r.Context(), timeout)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"reclaimed_count": len(reclaimed),
		"tasks":           reclaimed,
	})
}

// ─── Context, updates, history ───

func (s *Server) handleContext(w http.ResponseWriter, r *http.Request) {
	tc, err := s.engine.Context(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tc)
}

func (s *Server) handleAddUpdate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AgentID  string            `json:"agent_id"`
		Content  string            `json:"content"`
		Type     domain.UpdateType `json:"update_type"`
		Metadata map[string]string `json:"metadata,omitempty"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Type == "" {
		req.Type = domain.UpdateProgress
	}
	update, err := s.engine.AddUpdate(r.Context(), chi.URLParam(r, "id"), req.AgentID, req.Content, req.Type, req.Metadata)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, update)
}

func (s *Server) handleListUpdates(w http.ResponseWriter, r *http.Request) {
	updates, err := s.engine.Updates(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updates)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := s.engine.History(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// ─── Relationships ───

func (s *Server) handleLink(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ChildTaskID string                  `json:"child_task_id"`
		Type        domain.RelationshipType `json:"relationship_type"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	rel, err := s.relations.Link(r.Context(), chi.URLParam(r, "id"), req.ChildTaskID, req.Type)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rel)
}

func (s *Server) handleAncestry(w http.ResponseWriter, r *http.Request) {
	chain, err := s.relations.Ancestry(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, chain)
}

// ─── Queries ───

// handleQueryTasks supports filtering by project_id, task_type, status,
// agent_id, priority, and limit via query parameters.
func (s *Server) handleQueryTasks(w http.ResponseWriter, r *http.Request) {
	f, err := filterFromQuery(r)
	if err != nil {
		writeError(w, err)
		return
	}
	tasks, err := s.queries.Tasks(r.Context(), f)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (s *Server) handleAvailable(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 0
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, fmt.Errorf("%w: bad limit %q", domain.ErrValidation, v))
			return
		}
		limit = n
	}
	tasks, err := s.queries.Available(r.Context(), domain.AgentType(q.Get("agent_type")), q.Get("project_id"), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (s *Server) handleStale(w http.ResponseWriter, r *http.Request) {
	timeout := s.reservationTimeout
	if v := r.URL.Query().Get("timeout"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			writeError(w, fmt.Errorf("%w: bad timeout %q", domain.ErrValidation, v))
			return
		}
		timeout = d
	}
	tasks, err := s.queries.Stale(r.Context(), timeout)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (s *Server) handlePerformance(w http.ResponseWriter, r *http.Request) {
	var taskType *domain.TaskType
	if v := r.URL.Query().Get("task_type"); v != "" {
		tt := domain.TaskType(v)
		taskType = &tt
	}
	perf, err := s.queries.AgentPerformance(r.Context(), chi.URLParam(r, "id"), taskType)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, perf)
}

func filterFromQuery(r *http.Request) (domain.TaskFilter, error) {
	q := r.URL.Query()
	f := domain.TaskFilter{
		ProjectID: q.Get("project_id"),
		AgentID:   q.Get("agent_id"),
	}
	if v := q.Get("task_type"); v != "" {
		tt := domain.TaskType(v)
		if !tt.Valid() {
			return f, fmt.Errorf("%w: unknown task_type %q", domain.ErrValidation, v)
		}
		f.Type = &tt
	}
	if v := q.Get("status"); v != "" {
		st := domain.Status(v)
		if !st.Valid() {
			return f, fmt.Errorf("%w: unknown status %q", domain.ErrValidation, v)
		}
		f.Status = &st
	}
	if v := q.Get("priority"); v != "" {
		p, err := domain.ParsePriority(v)
		if err != nil {
			return f, err
		}
		f.Priority = &p
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return f, fmt.Errorf("%w: bad limit %q", domain.ErrValidation, v)
		}
		f.Limit = n
	}
	return f, nil
}
