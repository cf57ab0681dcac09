package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/fernando-x/platform/libs/intelligence-engine/internal/observability"
	"github.com/fernando-x/platform/libs/intelligence-engine/internal/vision"
)

// PhotoAnalyzer analyzes property photos.
type PhotoAnalyzer interface {
	AnalyzePhoto(ctx context.Context, url string, pc vision.PhotoContext) (*vision.PhotoAnalysis, error)
	AnalyzePropertyPhotos(ctx context.Context, set vision.PhotoSet) (*vision.PropertyReport, error)
	CacheStats() vision.CacheStats
	ClearCache(ctx context.Context) error
}

// SiteAgent reads construction and aerial imagery. It is only available
// when hosted inference is configured.
type SiteAgent interface {
	DetectConstruction(ctx context.Context, url string) (*vision.ConstructionDetection, error)
	AnalyzeSatellite(ctx context.Context, url, previousURL string) (*vision.SatelliteAnalysis, error)
}

// VisionHandler handles image analysis.
type VisionHandler struct {
	logger   *observability.Logger
	analyzer PhotoAnalyzer
	agent    SiteAgent
}

// NewVisionHandler creates a new vision handler. agent may be nil.
func NewVisionHandler(logger *observability.Logger, analyzer PhotoAnalyzer, agent SiteAgent) *VisionHandler {
	return &VisionHandler{logger: logger, analyzer: analyzer, agent: agent}
}

// PhotoRequest is the body of POST /vision/photos.
type PhotoRequest struct {
	URL     string              `json:"url"`
	Context vision.PhotoContext `json:"context"`
}

// Photo handles POST /vision/photos.
func (h *VisionHandler) Photo(w http.ResponseWriter, r *http.Request) {
	var req PhotoRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		writeError(w, http.StatusBadRequest, "url is required", "")
		return
	}

	analysis, err := h.analyzer.AnalyzePhoto(r.Context(), req.URL, req.Context)
	if err != nil {
		h.logger.Error().Err(err).Str("url", req.URL).Msg("Photo analysis failed")
		writeError(w, http.StatusInternalServerError, "photo analysis failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, analysis)
}

// Property handles POST /vision/property.
func (h *VisionHandler) Property(w http.ResponseWriter, r *http.Request) {
	var set vision.PhotoSet
	if !decodeBody(w, r, &set) {
		return
	}
	if len(set.Photos) == 0 {
		writeError(w, http.StatusBadRequest, "photos are required", "")
		return
	}

	rep, err := h.analyzer.AnalyzePropertyPhotos(r.Context(), set)
	if err != nil {
		h.logger.Error().Err(err).Str("property_id", set.PropertyID).Msg("Property analysis failed")
		writeError(w, http.StatusInternalServerError, "property analysis failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// SiteRequest is the body of the construction and satellite endpoints.
type SiteRequest struct {
	URL         string `json:"url"`
	PreviousURL string `json:"previous_url,omitempty"`
}

// Construction handles POST /vision/construction.
func (h *VisionHandler) Construction(w http.ResponseWriter, r *http.Request) {
	req, ok := h.siteRequest(w, r)
	if !ok {
		return
	}
	res, err := h.agent.DetectConstruction(r.Context(), req.URL)
	if err != nil {
		writeError(w, http.StatusBadGateway, "construction detection failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Satellite handles POST /vision/satellite.
func (h *VisionHandler) Satellite(w http.ResponseWriter, r *http.Request) {
	req, ok := h.siteRequest(w, r)
	if !ok {
		return
	}
	res, err := h.agent.AnalyzeSatellite(r.Context(), req.URL, req.PreviousURL)
	if err != nil {
		writeError(w, http.StatusBadGateway, "satellite analysis failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *VisionHandler) siteRequest(w http.ResponseWriter, r *http.Request) (SiteRequest, bool) {
	var req SiteRequest
	if h.agent == nil {
		writeError(w, http.StatusServiceUnavailable, "hosted image inference is not configured", "")
		return req, false
	}
	if !decodeBody(w, r, &req) {
		return req, false
	}
	if strings.TrimSpace(req.URL) == "" {
		writeError(w, http.StatusBadRequest, "url is required", "")
		return req, false
	}
	return req, true
}

// CacheStats handles GET /vision/cache.
func (h *VisionHandler) CacheStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.analyzer.CacheStats())
}

// ClearCache handles DELETE /vision/cache.
func (h *VisionHandler) ClearCache(w http.ResponseWriter, r *http.Request) {
	if err := h.analyzer.ClearCache(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "cache clear failed", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
