package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/lazypower/mnemo/internal/engine"
	"github.com/lazypower/mnemo/internal/memory"
	"github.com/lazypower/mnemo/internal/store"
)

func (s *Server) handleListMemories(w http.ResponseWriter, r *http.Request) {
	records := s.eng.List(r.URL.Query().Get("category"))
	writeJSON(w, http.StatusOK, map[string]any{
		"count":   len(records),
		"records": records,
	})
}

func (s *Server) handleAddMemory(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Content        string            `json:"content" validate:"notblank"`
		BaseImportance *float64          `json:"base_importance" validate:"required,min=0,max=1"`
		Category       string            `json:"category" validate:"max=64"`
		Kind           memory.Kind       `json:"kind" validate:"omitempty,oneof=episodic semantic procedural"`
		Context        map[string]string `json:"context"`
	}
	if !s.decode(w, r, &req) {
		return
	}

	rec, err := s.eng.Add(memory.NewRecord{
		Content:        req.Content,
		BaseImportance: *req.BaseImportance,
		Category:       req.Category,
		Kind:           req.Kind,
		Context:        req.Context,
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) handleGetMemory(w http.ResponseWriter, r *http.Request) {
	rec, err := s.eng.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleRemoveMemory(w http.ResponseWriter, r *http.Request) {
	removed := s.eng.Remove(chi.URLParam(r, "id"))
	writeJSON(w, http.StatusOK, map[string]bool{"removed": removed})
}

func (s *Server) handleRecall(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := q.Get("q")
	if strings.TrimSpace(query) == "" {
		writeError(w, http.StatusBadRequest, "q parameter required")
		return
	}

	opts := engine.RecallOpts{Category: q.Get("category")}
	if l := q.Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			opts.Limit = n
		}
	}
	if raw := q.Get("weights"); raw != "" {
		weights, err := engine.ParseWeights(raw)
		if err != nil {
			s.fail(w, err)
			return
		}
		opts.Weights = &weights
	}

	matches := s.eng.Recall(query, opts)
	writeJSON(w, http.StatusOK, map[string]any{
		"query":   query,
		"count":   len(matches),
		"results": matches,
	})
}

func (s *Server) handleDecay(w http.ResponseWriter, r *http.Request) {
	res := s.eng.Decay()
	writeJSON(w, http.StatusOK, map[string]any{
		"scanned":   res.Scanned,
		"updated":   res.Updated,
		"skipped":   res.Skipped,
		"evicted":   evictedIDs(res),
		"remaining": s.eng.Len(),
	})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Mode memory.ResetMode `json:"mode" validate:"required,oneof=soft hard"`
	}
	if !s.decode(w, r, &req) {
		return
	}

	res, backup, err := s.eng.Reset(r.Context(), req.Mode)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"mode":      req.Mode,
		"evicted":   evictedIDs(res),
		"remaining": s.eng.Len(),
		"backup":    backup,
	})
}

func evictedIDs(res memory.DecayResult) []string {
	ids := make([]string, 0, len(res.Evicted))
	for _, r := range res.Evicted {
		ids = append(ids, r.ID)
	}
	return ids
}

func (s *Server) handleListSnapshots(w http.ResponseWriter, r *http.Request) {
	handles, err := s.eng.Snapshots(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count":     len(handles),
		"snapshots": handles,
	})
}

func (s *Server) handleSaveSnapshot(w http.ResponseWriter, r *http.Request) {
	h, err := s.eng.Save(r.Context(), store.ReasonManual)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, h)
}

func (s *Server) handlePrune(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Keep *int `json:"keep" validate:"required,min=0"`
	}
	if !s.decode(w, r, &req) {
		return
	}

	removed, err := s.eng.Prune(r.Context(), *req.Keep)
	if err != nil {
		s.fail(w, err)
		return
	}
	names := make([]string, 0, len(removed))
	for _, h := range removed {
		names = append(names, h.Name)
	}
	writeJSON(w, http.StatusOK, map[string]any{"removed": names})
}

func (s *Server) handleInspectSnapshot(w http.ResponseWriter, r *http.Request) {
	info, err := s.eng.Inspect(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	h, err := s.eng.Restore(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"restored": h.Name,
		"records":  s.eng.Len(),
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			limit = n
		}
	}

	passes, evictions, err := s.eng.History(limit)
	if err != nil {
		s.fail(w, err)
		return
	}
	if passes == nil {
		passes = []store.DecayPass{}
	}
	if evictions == nil {
		evictions = []store.Eviction{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"passes":    passes,
		"evictions": evictions,
	})
}
