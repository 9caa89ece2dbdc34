package api

import (
	"net/http"

	"github.com/loomworks/loom/internal/app/bulk"
	"github.com/loomworks/loom/internal/domain"
)

// handleBulkCreate inserts a batch of tasks atomically: one bad spec rejects
// the whole batch.
func (s *Server) handleBulkCreate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Tasks []domain.TaskSpec `json:"tasks"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	tasks, err := s.bulk.Create(r.Context(), req.Tasks)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"created_count": len(tasks),
		"tasks":         tasks,
	})
}

// handleBulkUnlock releases a batch of claims. Unlike bulk create, failures
// are per-item: each result carries its own outcome.
func (s *Server) handleBulkUnlock(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Items []bulk.UnlockItem `json:"items"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	results := s.bulk.Unlock(r.Context(), req.Items)
	writeJSON(w, http.StatusOK, map[string]any{
		"results": results,
	})
}
