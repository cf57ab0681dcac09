package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/fernando-x/platform/libs/intelligence-engine/internal/memory"
	"github.com/fernando-x/platform/libs/intelligence-engine/internal/observability"
	"github.com/fernando-x/platform/libs/intelligence-engine/internal/storage"
)

// Memories reads the persistent memory store.
type Memories interface {
	SearchMemories(ctx context.Context, filter storage.MemoryFilter) ([]*storage.Memory, error)
	SearchTrainingData(ctx context.Context, query string, limit int) ([]memory.TrainingMatch, error)
	Counts(ctx context.Context) (map[string]int, error)
}

// MemoryHandler handles memory lookups.
type MemoryHandler struct {
	logger   *observability.Logger
	memories Memories
}

// NewMemoryHandler creates a new memory handler.
func NewMemoryHandler(logger *observability.Logger, memories Memories) *MemoryHandler {
	return &MemoryHandler{logger: logger, memories: memories}
}

// MemorySearchRequest is the body of POST /memories/search.
type MemorySearchRequest struct {
	UserID        string   `json:"user_id,omitempty"`
	SessionID     string   `json:"session_id,omitempty"`
	MemoryType    string   `json:"memory_type,omitempty"`
	MinImportance *float64 `json:"min_importance,omitempty"`
	Limit         int      `json:"limit,omitempty"`
}

// Search handles POST /memories/search.
func (h *MemoryHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req MemorySearchRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.MinImportance != nil && (*req.MinImportance < 0 || *req.MinImportance > 1) {
		writeError(w, http.StatusBadRequest, "min_importance must be between 0 and 1", "")
		return
	}
	if req.Limit <= 0 || req.Limit > 100 {
		req.Limit = 20
	}

	found, err := h.memories.SearchMemories(r.Context(), storage.MemoryFilter{
		UserID:        req.UserID,
		SessionID:     req.SessionID,
		MemoryType:    req.MemoryType,
		MinImportance: req.MinImportance,
		Limit:         req.Limit,
	})
	if err != nil {
		h.logger.Error().Err(err).Msg("Memory search failed")
		writeError(w, http.StatusInternalServerError, "memory search failed", err.Error())
		return
	}
	if found == nil {
		found = []*storage.Memory{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"count": len(found), "memories": found})
}

// TrainingSearchRequest is the body of POST /memories/training/search.
type TrainingSearchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
}

// SearchTraining handles POST /memories/training/search.
func (h *MemoryHandler) SearchTraining(w http.ResponseWriter, r *http.Request) {
	var req TrainingSearchRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "query is required", "")
		return
	}

	matches, err := h.memories.SearchTrainingData(r.Context(), req.Query, req.Limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "training search failed", err.Error())
		return
	}
	if matches == nil {
		matches = []memory.TrainingMatch{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"count": len(matches), "matches": matches})
}

// Counts handles GET /memories/stats.
func (h *MemoryHandler) Counts(w http.ResponseWriter, r *http.Request) {
	counts, err := h.memories.Counts(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "memory stats failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, counts)
}
