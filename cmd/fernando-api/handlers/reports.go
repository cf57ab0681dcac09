package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/fernando-x/platform/libs/intelligence-engine/internal/observability"
	"github.com/fernando-x/platform/libs/intelligence-engine/internal/report"
)

// ReportGenerator builds reports.
type ReportGenerator interface {
	Generate(ctx context.Context, req report.Request) (*report.Report, error)
}

// ReportHandler handles report generation.
type ReportHandler struct {
	logger    *observability.Logger
	generator ReportGenerator
}

// NewReportHandler creates a new report handler.
func NewReportHandler(logger *observability.Logger, generator ReportGenerator) *ReportHandler {
	return &ReportHandler{logger: logger, generator: generator}
}

// Generate handles POST /reports. When config.format is set the rendered
// document is returned with a matching content type instead of JSON.
func (h *ReportHandler) Generate(w http.ResponseWriter, r *http.Request) {
	var req report.Request
	if !decodeBody(w, r, &req) {
		return
	}

	rep, err := h.generator.Generate(r.Context(), req)
	switch {
	case errors.Is(err, report.ErrUnknownTemplate), errors.Is(err, report.ErrEmptyTopic):
		writeError(w, http.StatusBadRequest, "invalid report request", err.Error())
		return
	case err != nil:
		h.logger.Error().Err(err).Str("type", string(req.Config.Type)).Msg("Report generation failed")
		writeError(w, http.StatusInternalServerError, "report generation failed", err.Error())
		return
	}

	h.logger.Info().
		Str("report_id", rep.ID).
		Str("type", string(rep.Type)).
		Int("sections", len(rep.Sections)).
		Msg("Report generated")

	var contentType string
	switch req.Config.Format {
	case "":
		writeJSON(w, http.StatusCreated, rep)
		return
	case report.FormatMarkdown:
		contentType = "text/markdown; charset=utf-8"
	case report.FormatHTML:
		contentType = "text/html; charset=utf-8"
	default:
		contentType = "text/plain; charset=utf-8"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusCreated)
	_, _ = w.Write([]byte(report.Render(rep, req.Config.Format)))
}

// Templates handles GET /reports/templates.
func (h *ReportHandler) Templates(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"templates": report.Templates()})
}
