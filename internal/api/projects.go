package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	p, err := s.projects.Create(r.Context(), req.Name, req.Description)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// handleGetProject resolves by ID first, then by name, so both
// /projects/<uuid> and /projects/<name> work.
func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "id")
	p, err := s.projects.Get(r.Context(), key)
	if err != nil {
		p, err = s.projects.GetByName(r.Context(), key)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.projects.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, projects)
}
