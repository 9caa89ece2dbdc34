// Package api provides the HTTP server for loom. It is a thin transport
// boundary: it parses requests, invokes the engine packages, and translates
// typed engine errors into status codes. The engine itself knows nothing
// about HTTP.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/loomworks/loom/internal/app/bulk"
	"github.com/loomworks/loom/internal/app/lifecycle"
	"github.com/loomworks/loom/internal/app/project"
	"github.com/loomworks/loom/internal/app/query"
	"github.com/loomworks/loom/internal/app/relation"
	"github.com/loomworks/loom/internal/domain"
)

// Server is the loom HTTP API server.
type Server struct {
	engine    *lifecycle.Engine
	relations *relation.Manager
	queries   *query.Engine
	bulk      *bulk.Coordinator
	projects  *project.Service

	// Default reservation timeout used by stale queries and on-demand
	// reclamation when the caller supplies none.
	reservationTimeout time.Duration

	metricsEnabled bool
}

// NewServer creates a new API server.
func NewServer(
	engine *lifecycle.Engine,
	relations *relation.Manager,
	queries *query.Engine,
	bulkOps *bulk.Coordinator,
	projects *project.Service,
	reservationTimeout time.Duration,
) *Server {
	return &Server{
		engine:             engine,
		relations:          relations,
		queries:            queries,
		bulk:               bulkOps,
		projects:           projects,
		reservationTimeout: reservationTimeout,
	}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/tasks", func(r chi.Router) {
			r.Post("/", s.handleCreateTask)
			r.Get("/", s.handleQueryTasks)
			r.Get("/available", s.handleAvailable)
			r.Get("/stale", s.handleStale)
			r.Post("/reclaim", s.handleReclaim)
			r.Post("/bulk", s.handleBulkCreate)
			r.Post("/bulk-unlock", s.handleBulkUnlock)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/context", s.handleContext)
				r.Get("/ancestry", s.handleAncestry)
				r.Get("/updates", s.handleListUpdates)
				r.Get("/history", s.handleHistory)
				r.Post("/reserve", s.handleReserve)
				r.Post("/complete", s.handleComplete)
				r.Post("/unlock", s.handleUnlock)
				r.Post("/admin-unlock", s.handleAdminUnlock)
				r.Post("/updates", s.handleAddUpdate)
				r.Post("/links", s.handleLink)
			})
		})

		r.Get("/agents/{id}/performance", s.handlePerformance)

		r.Route("/projects", func(r chi.Router) {
			r.Post("/", s.handleCreateProject)
			r.Get("/", s.handleListProjects)
			r.Get("/{id}", s.handleGetProject)
		})
	})

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError translates a typed engine error into a status code and a JSON
// error body.
func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), map[string]any{
		"error": map[string]any{
			"message": err.Error(),
		},
	})
}

// statusFor maps the engine's error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrTaskNotFound),
		errors.Is(err, domain.ErrProjectNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrAlreadyReserved),
		errors.Is(err, domain.ErrConflict),
		errors.Is(err, domain.ErrDuplicate):
		return http.StatusConflict
	case errors.Is(err, domain.ErrNotOwner):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrInvalidState),
		errors.Is(err, domain.ErrValidation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// decode parses a JSON request body into v.
func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.Join(domain.ErrValidation, err)
	}
	return nil
}
