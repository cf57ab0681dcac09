package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fernando-x/platform/libs/intelligence-engine/internal/monitoring"
	"github.com/fernando-x/platform/libs/intelligence-engine/internal/observability"
	"github.com/fernando-x/platform/libs/intelligence-engine/internal/refresh"
)

// RefreshManager runs refresh sources.
type RefreshManager interface {
	Sources(ctx context.Context) ([]refresh.SourceStatus, error)
	RefreshAll(ctx context.Context, force bool) ([]refresh.Result, error)
	RefreshSource(ctx context.Context, name string) (*refresh.Result, error)
}

// JobScheduler exposes the scheduled refresh jobs.
type JobScheduler interface {
	JobStatus() []refresh.JobStatus
	RunJob(ctx context.Context, name string) error
}

// AlertSettings reads and replaces the alert configuration.
type AlertSettings interface {
	Config() refresh.AlertConfig
	UpdateConfig(cfg refresh.AlertConfig)
}

// RefreshHandler handles refresh operations.
type RefreshHandler struct {
	logger    *observability.Logger
	manager   RefreshManager
	scheduler JobScheduler
	alerts    AlertSettings
	audit     *monitoring.AuditLogger
}

// NewRefreshHandler creates a new refresh handler.
func NewRefreshHandler(logger *observability.Logger, manager RefreshManager, scheduler JobScheduler, alerts AlertSettings, audit *monitoring.AuditLogger) *RefreshHandler {
	return &RefreshHandler{logger: logger, manager: manager, scheduler: scheduler, alerts: alerts, audit: audit}
}

// Sources handles GET /refresh/sources.
func (h *RefreshHandler) Sources(w http.ResponseWriter, r *http.Request) {
	sources, err := h.manager.Sources(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list refresh sources failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"sources": sources})
}

// RunRequest is the body of POST /refresh/run.
type RunRequest struct {
	Force  bool   `json:"force"`
	Source string `json:"source,omitempty"`
}

// Run handles POST /refresh/run.
func (h *RefreshHandler) Run(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if r.ContentLength != 0 && !decodeBody(w, r, &req) {
		return
	}
	ctx := r.Context()

	var results []refresh.Result
	if req.Source != "" {
		res, err := h.manager.RefreshSource(ctx, req.Source)
		if errors.Is(err, refresh.ErrUnknownSource) {
			writeError(w, http.StatusBadRequest, "unknown refresh source", req.Source)
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "refresh failed", err.Error())
			return
		}
		results = []refresh.Result{*res}
	} else {
		all, err := h.manager.RefreshAll(ctx, req.Force)
		if err != nil {
			h.logger.Error().Err(err).Bool("force", req.Force).Msg("Refresh failed")
			writeError(w, http.StatusInternalServerError, "refresh failed", err.Error())
			return
		}
		results = all
	}

	for _, res := range results {
		_ = h.audit.LogRefresh(ctx, res.Source, "api", res.Success, res.RecordsUpdated, res.Errors)
	}
	if results == nil {
		results = []refresh.Result{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"count": len(results), "results": results})
}

// Jobs handles GET /refresh/jobs.
func (h *RefreshHandler) Jobs(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"jobs": h.scheduler.JobStatus()})
}

// RunJob handles POST /refresh/jobs/{name}/run.
func (h *RefreshHandler) RunJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	err := h.scheduler.RunJob(r.Context(), name)
	if errors.Is(err, refresh.ErrJobNotFound) {
		writeError(w, http.StatusNotFound, "job not found", name)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "job failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"job": name, "success": true})
}

// AlertConfig handles GET /refresh/alerts/config.
func (h *RefreshHandler) AlertConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.alerts.Config())
}

// UpdateAlertConfig handles PUT /refresh/alerts/config.
func (h *RefreshHandler) UpdateAlertConfig(w http.ResponseWriter, r *http.Request) {
	var cfg refresh.AlertConfig
	if !decodeBody(w, r, &cfg) {
		return
	}
	if cfg.MinSignificance != "" && cfg.MinSignificance.Rank() == 0 {
		writeError(w, http.StatusBadRequest, "invalid min_significance", string(cfg.MinSignificance))
		return
	}
	h.alerts.UpdateConfig(cfg)
	writeJSON(w, http.StatusOK, h.alerts.Config())
}

// AuditEvents handles GET /audit/events.
func (h *RefreshHandler) AuditEvents(w http.ResponseWriter, r *http.Request) {
	events := h.audit.Recent(queryInt(r, "limit", 50))
	if events == nil {
		events = []monitoring.AuditEvent{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": events})
}
