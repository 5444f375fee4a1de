// Package server exposes the memory engine over HTTP.
package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/engramdb/engram/internal/engine"
	"github.com/engramdb/engram/internal/extract"
	"github.com/engramdb/engram/internal/store"
)

// Server is the engram HTTP API server.
type Server struct {
	db      *store.DB
	engine  *engine.Engine
	worker  *extract.Worker
	router  chi.Router
	version string
	started time.Time
}

// New creates a new Server. worker may be nil when no LLM is configured;
// extraction endpoints then report the pipeline as unavailable.
func New(db *store.DB, eng *engine.Engine, worker *extract.Worker, version string) *Server {
	s := &Server{
		db:      db,
		engine:  eng,
		worker:  worker,
		version: version,
		started: time.Now(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/stats", s.handleStats)

		r.Post("/memories", s.handleStoreMemory)
		r.Get("/memories/{id}", s.handleGetMemory)
		r.Delete("/memories/{id}", s.handleDeleteMemory)
		r.Post("/memories/{id}/invalidate", s.handleInvalidate)
		r.Post("/memories/promote", s.handlePromote)
		r.Post("/memories/demote", s.handleDemote)

		r.Get("/search", s.handleSearch)

		r.Post("/sweeps/decay", s.handleDecaySweep)
		r.Post("/sweeps/dedup", s.handleDedupSweep)
		r.Get("/sweeps/conflicts", s.handleConflicts)
		r.Get("/sweeps/orphans", s.handleOrphans)
		r.Delete("/sweeps/orphans", s.handleDeleteOrphans)

		r.Get("/extraction/stats", s.handleExtractionStats)
		r.Post("/extraction/run", s.handleExtractionRun)
		r.Post("/extraction/retry", s.handleExtractionRetry)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbOK := true
	if err := s.db.Ping(); err != nil {
		dbOK = false
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
		"uptime":  time.Since(s.started).Seconds(),
		"db":      dbOK,
		"db_path": s.db.Path,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
