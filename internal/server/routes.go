package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/engramdb/engram/internal/engine"
	"github.com/engramdb/engram/internal/model"
	"github.com/engramdb/engram/internal/store"
)

func (s *Server) handleStoreMemory(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Content    string   `json:"content"`
		Role       string   `json:"role"`
		Importance *float64 `json:"importance"`
		Category   string   `json:"category"`
		Source     string  `json:"source"`
		AgentID    string  `json:"agent_id"`
		SessionKey string  `json:"session_key"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Content == "" {
		writeError(w, http.StatusBadRequest, "content required")
		return
	}

	role := engine.Role(req.Role)
	if role == "" {
		role = engine.RoleUser
	}
	if !engine.PassesGate(req.Content, role, s.engine.Gate) {
		// Gate rejection is not an error — the turn just isn't worth keeping.
		writeJSON(w, http.StatusOK, map[string]any{"stored": false})
		return
	}

	var embedding []float64
	var embModel string
	if s.engine.Embedder != nil {
		if vec, err := s.engine.Embedder.Embed(r.Context(), req.Content); err == nil {
			embedding = vec
			embModel = s.engine.Embedder.Model()
		}
	}

	// Default only when the field was absent; an explicit 0 sticks.
	importance := 0.5
	if req.Importance != nil {
		importance = *req.Importance
	}

	id, err := s.db.StoreMemory(store.StoreMemoryParams{
		Content:    req.Content,
		Embedding:  embedding,
		Model:      embModel,
		Importance: importance,
		Category:   model.Category(req.Category),
		Source:     req.Source,
		AgentID:    req.AgentID,
		SessionKey: req.SessionKey,
	})
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"stored": true, "id": id})
}

func (s *Server) handleGetMemory(w http.ResponseWriter, r *http.Request) {
	m, err := s.db.GetMemory(chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if m == nil {
		writeError(w, http.StatusNotFound, "memory not found")
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleDeleteMemory(w http.ResponseWriter, r *http.Request) {
	existed, err := s.db.DeleteMemory(chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"existed": existed})
}

func (s *Server) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	existed, err := s.db.InvalidateMemory(chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if !existed {
		writeError(w, http.StatusNotFound, "memory not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

func (s *Server) handlePromote(w http.ResponseWriter, r *http.Request) {
	s.handleCategoryShift(w, r, s.db.PromoteToCore)
}

func (s *Server) handleDemote(w http.ResponseWriter, r *http.Request) {
	s.handleCategoryShift(w, r, s.db.DemoteFromCore)
}

func (s *Server) handleCategoryShift(w http.ResponseWriter, r *http.Request, op func([]string) (int, error)) {
	var req struct {
		IDs []string `json:"ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	changed, err := op(req.IDs)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"changed": changed})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, "q parameter required")
		return
	}

	limit := 10
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			limit = n
		}
	}
	opts := engine.FusionOpts{Limit: limit, MinVectorSim: 0.3}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	var hits []engine.Hit
	var err error
	switch r.URL.Query().Get("strategy") {
	case "vector":
		hits = s.engine.SearchVector(ctx, query, opts)
	case "lexical":
		hits, err = s.engine.SearchLexical(query, opts)
	case "graph":
		hits, err = s.engine.SearchGraph(query, opts)
	default:
		hits, err = s.engine.Search(ctx, query, opts)
	}
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": hits})
}

func (s *Server) handleDecaySweep(w http.ResponseWriter, r *http.Request) {
	threshold := 0.05
	if t := r.URL.Query().Get("threshold"); t != "" {
		if v, err := strconv.ParseFloat(t, 64); err == nil && v > 0 {
			threshold = v
		}
	}

	if r.URL.Query().Get("dry_run") == "true" {
		decayed, err := s.engine.FindDecayed(threshold)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"would_prune": len(decayed), "memories": decayed})
		return
	}

	pruned, err := s.engine.Prune(threshold)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"pruned": pruned})
}

func (s *Server) handleDedupSweep(w http.ResponseWriter, r *http.Request) {
	threshold := 0.92
	if t := r.URL.Query().Get("threshold"); t != "" {
		if v, err := strconv.ParseFloat(t, 64); err == nil && v > 0 {
			threshold = v
		}
	}
	merged, deleted, err := s.engine.RunDedupSweep(threshold)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"clusters_merged": merged, "deleted": deleted})
}

func (s *Server) handleConflicts(w http.ResponseWriter, r *http.Request) {
	pairs, err := s.engine.FindConflicts()
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(pairs), "pairs": pairs})
}

func (s *Server) handleOrphans(w http.ResponseWriter, r *http.Request) {
	entities, err := s.db.OrphanEntities()
	if err != nil {
		writeStoreError(w, err)
		return
	}
	tags, err := s.db.OrphanTags()
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entities": entities, "tags": tags})
}

func (s *Server) handleDeleteOrphans(w http.ResponseWriter, r *http.Request) {
	entities, err := s.db.OrphanEntities()
	if err != nil {
		writeStoreError(w, err)
		return
	}
	deletedEntities := 0
	for _, e := range entities {
		if err := s.db.DeleteEntity(e.ID); err == nil {
			deletedEntities++
		}
	}

	tags, err := s.db.OrphanTags()
	if err != nil {
		writeStoreError(w, err)
		return
	}
	deletedTags := 0
	for _, t := range tags {
		if err := s.db.DeleteTag(t.ID); err == nil {
			deletedTags++
		}
	}
	writeJSON(w, http.StatusOK, map[string]int{"entities_deleted": deletedEntities, "tags_deleted": deletedTags})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.db.GetStats()
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleExtractionStats(w http.ResponseWriter, r *http.Request) {
	counts, err := s.db.CountByExtractionStatus()
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

func (s *Server) handleExtractionRun(w http.ResponseWriter, r *http.Request) {
	if s.worker == nil {
		writeError(w, http.StatusServiceUnavailable, "extraction pipeline not configured")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 120*time.Second)
	defer cancel()

	done, err := s.worker.RunOnce(ctx)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"processed": done})
}

func (s *Server) handleExtractionRetry(w http.ResponseWriter, r *http.Request) {
	if s.worker == nil {
		writeError(w, http.StatusServiceUnavailable, "extraction pipeline not configured")
		return
	}
	reset, err := s.worker.RetryFailed()
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"reset": reset})
}

// writeStoreError maps store error kinds to HTTP statuses.
func writeStoreError(w http.ResponseWriter, err error) {
	var se *store.Error
	if errors.As(err, &se) {
		switch se.Kind {
		case store.KindInvalidInput:
			writeError(w, http.StatusBadRequest, err.Error())
			return
		case store.KindNotFound:
			writeError(w, http.StatusNotFound, err.Error())
			return
		case store.KindTransient:
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}
