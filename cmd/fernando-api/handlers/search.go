package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/fernando-x/platform/libs/intelligence-engine/internal/knowledge"
	"github.com/fernando-x/platform/libs/intelligence-engine/internal/observability"
	"github.com/fernando-x/platform/libs/intelligence-engine/internal/search"
)

// SearchEngine ranks knowledge nodes.
type SearchEngine interface {
	Search(ctx context.Context, query string, opts search.Options) ([]search.Result, error)
	KeywordSearch(query string, limit int) []search.Result
	HybridSearch(ctx context.Context, query string, opts search.Options) ([]search.Result, error)
	FindSimilar(ctx context.Context, nodeID string, limit int) ([]search.Result, error)
	Stats() search.Stats
}

// SearchHandler serves search and knowledge lookups.
type SearchHandler struct {
	logger *observability.Logger
	engine SearchEngine
	kb     *knowledge.Base
}

// NewSearchHandler creates a new search handler.
func NewSearchHandler(logger *observability.Logger, engine SearchEngine, kb *knowledge.Base) *SearchHandler {
	return &SearchHandler{logger: logger, engine: engine, kb: kb}
}

// SearchResponse is the body of GET /search.
type SearchResponse struct {
	Query   string          `json:"query"`
	Mode    search.Mode     `json:"mode"`
	Count   int             `json:"count"`
	Results []search.Result `json:"results"`
}

// Search handles GET /search?q=&mode=&limit=&types=.
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeError(w, http.StatusBadRequest, "q is required", "")
		return
	}
	mode, err := search.ParseMode(r.URL.Query().Get("mode"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid mode", err.Error())
		return
	}

	opts := search.Options{
		Limit:          queryInt(r, "limit", 0),
		IncludeContext: r.URL.Query().Get("context") == "true",
	}
	if t := r.URL.Query().Get("types"); t != "" {
		opts.Types = strings.Split(t, ",")
	}

	var results []search.Result
	switch mode {
	case search.ModeKeyword:
		results = h.engine.KeywordSearch(q, opts.Limit)
	case search.ModeHybrid:
		results, err = h.engine.HybridSearch(r.Context(), q, opts)
	default:
		results, err = h.engine.Search(r.Context(), q, opts)
	}
	if err != nil {
		h.logger.Error().Err(err).Str("query", q).Str("mode", string(mode)).Msg("Search failed")
		writeError(w, http.StatusInternalServerError, "search failed", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, SearchResponse{Query: q, Mode: mode, Count: len(results), Results: results})
}

// Stats handles GET /search/stats.
func (h *SearchHandler) Stats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.Stats())
}

// Node handles GET /knowledge/nodes/{id}.
func (h *SearchHandler) Node(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	node, ok := h.kb.Node(id)
	if !ok {
		writeError(w, http.StatusNotFound, "knowledge node not found", id)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"node":    node,
		"related": h.kb.Related(id),
	})
}

// Similar handles GET /knowledge/nodes/{id}/similar.
func (h *SearchHandler) Similar(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	results, err := h.engine.FindSimilar(r.Context(), id, queryInt(r, "limit", 5))
	if errors.Is(err, search.ErrNodeNotFound) {
		writeError(w, http.StatusNotFound, "knowledge node not found", id)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "similarity search failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"node_id": id, "results": results})
}

// Neighborhoods handles GET /knowledge/neighborhoods.
func (h *SearchHandler) Neighborhoods(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"neighborhoods": h.kb.Neighborhoods()})
}

// Neighborhood handles GET /knowledge/neighborhoods/{name}.
func (h *SearchHandler) Neighborhood(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	insights, ok := h.kb.NeighborhoodInsights(name)
	if !ok {
		writeError(w, http.StatusNotFound, "neighborhood not found", name)
		return
	}
	writeJSON(w, http.StatusOK, insights)
}
