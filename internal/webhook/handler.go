// Package webhook receives data-refresh events from external systems.
package webhook

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"slices"
	"time"

	"github.com/fernando-x/platform/libs/intelligence-engine/internal/ingest"
	"github.com/fernando-x/platform/libs/intelligence-engine/internal/monitoring"
	"github.com/fernando-x/platform/libs/intelligence-engine/internal/observability"
	"github.com/fernando-x/platform/libs/intelligence-engine/internal/refresh"
)

// SecretHeader carries the shared webhook secret.
const SecretHeader = "X-Webhook-Secret"

// Event types.
const (
	TypePerplexityUpdate = "perplexity_update"
	TypeMarketAlert      = "market_alert"
	TypeDataImport       = "data_import"
	TypeCSVUpload        = "csv_upload"
)

// SupportedTypes lists the accepted event types.
var SupportedTypes = []string{TypePerplexityUpdate, TypeMarketAlert, TypeDataImport, TypeCSVUpload}

var errUnknownType = errors.New("unknown webhook type")

// Refresher runs data refreshes.
type Refresher interface {
	RefreshAll(ctx context.Context, force bool) ([]refresh.Result, error)
}

// Importer runs DataProcess3 imports.
type Importer interface {
	ImportAll(ctx context.Context) ([]*ingest.ImportResult, error)
	ImportCategory(ctx context.Context, name string) (*ingest.ImportResult, error)
}

// Handler serves the data-refresh webhook.
type Handler struct {
	logger    *observability.Logger
	secret    string
	refresher Refresher
	importer  Importer
	alerts    refresh.Alerter
	audit     *monitoring.AuditLogger
	now       func() time.Time
}

// Deps wires a Handler. Importer and Alerts may be nil; the event types
// that need them then fail.
type Deps struct {
	Secret    string
	Refresher Refresher
	Importer  Importer
	Alerts    refresh.Alerter
	Audit     *monitoring.AuditLogger
}

// NewHandler creates a webhook handler.
func NewHandler(logger *observability.Logger, deps Deps) *Handler {
	return &Handler{
		logger:    logger.WithComponent("data_refresh_webhook"),
		secret:    deps.Secret,
		refresher: deps.Refresher,
		importer:  deps.Importer,
		alerts:    deps.Alerts,
		audit:     deps.Audit,
		now:       time.Now,
	}
}

// Event is the webhook request body.
type Event struct {
	Type string    `json:"type"`
	Data EventData `json:"data"`
}

// EventData holds the optional arguments of every event type.
type EventData struct {
	Source      string  `json:"source,omitempty"`
	Count       int     `json:"count,omitempty"`
	Category    string  `json:"category,omitempty"`
	Metric      string  `json:"metric,omitempty"`
	Value       float64 `json:"value,omitempty"`
	Change      float64 `json:"change,omitempty"`
	Description string  `json:"description,omitempty"`
}

// Response is returned for a processed event.
type Response struct {
	Success        bool        `json:"success"`
	Message        string      `json:"message"`
	RecordsUpdated *int        `json:"records_updated,omitempty"`
	Results        interface{} `json:"results,omitempty"`
}

// Info describes the endpoint for GET requests.
type Info struct {
	Endpoint        string   `json:"endpoint"`
	Description     string   `json:"description"`
	SupportedTypes  []string `json:"supported_types"`
	SecretRequired  bool     `json:"secret_required"`
	SecretHeader    string   `json:"secret_header"`
	ExampleRequests []Event  `json:"example_requests"`
}

// Describe handles GET /api/data-refresh/webhook.
func (h *Handler) Describe(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, Info{
		Endpoint:       "/api/data-refresh/webhook",
		Description:    "Triggers data refreshes, CSV imports and market alerts from external systems",
		SupportedTypes: SupportedTypes,
		SecretRequired: h.secret != "",
		SecretHeader:   SecretHeader,
		ExampleRequests: []Event{
			{Type: TypePerplexityUpdate},
			{Type: TypeMarketAlert, Data: EventData{Metric: "Median Home Price", Value: 525000, Change: 5.2, Description: "Heights median price rose"}},
			{Type: TypeDataImport, Data: EventData{Source: "har", Count: 120}},
			{Type: TypeCSVUpload, Data: EventData{Category: ingest.CategoryMicroMarket}},
		},
	})
}

// Receive handles POST /api/data-refresh/webhook.
func (h *Handler) Receive(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if !h.authorized(r) {
		h.logger.Warn().Str("remote_addr", r.RemoteAddr).Msg("Webhook rejected: bad secret")
		_ = h.audit.LogWebhook(ctx, "", r.RemoteAddr, monitoring.ActionRejected, nil)
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
		return
	}

	var ev Event
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid JSON body", "details": err.Error()})
		return
	}

	h.logger.Info().Str("type", ev.Type).Str("remote_addr", r.RemoteAddr).Msg("Webhook received")

	resp, err := h.dispatch(ctx, ev)
	switch {
	case errors.Is(err, errUnknownType):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Unknown webhook type"})
		return
	case err != nil:
		h.logger.Error().Err(err).Str("type", ev.Type).Msg("Webhook processing failed")
		_ = h.audit.LogWebhook(ctx, ev.Type, r.RemoteAddr, monitoring.ActionFailed, map[string]interface{}{"error": err.Error()})
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Webhook processing failed", "details": err.Error()})
		return
	}

	_ = h.audit.LogWebhook(ctx, ev.Type, r.RemoteAddr, monitoring.ActionReceived, map[string]interface{}{
		"source":   ev.Data.Source,
		"count":    ev.Data.Count,
		"category": ev.Data.Category,
	})
	writeJSON(w, http.StatusOK, resp)
}

// authorized compares the secret header in constant time. An unset secret
// accepts every request.
func (h *Handler) authorized(r *http.Request) bool {
	if h.secret == "" {
		return true
	}
	got := r.Header.Get(SecretHeader)
	return subtle.ConstantTimeCompare([]byte(got), []byte(h.secret)) == 1
}

func (h *Handler) dispatch(ctx context.Context, ev Event) (*Response, error) {
	switch ev.Type {
	case TypePerplexityUpdate:
		return h.perplexityUpdate(ctx)
	case TypeMarketAlert:
		return h.marketAlert(ctx, ev.Data)
	case TypeDataImport:
		return h.dataImport(ctx, ev.Data)
	case TypeCSVUpload:
		return h.csvUpload(ctx, ev.Data)
	default:
		return nil, fmt.Errorf("%w: %q", errUnknownType, ev.Type)
	}
}

// perplexityUpdate forces a full refresh and announces new research records
// with a medium alert.
func (h *Handler) perplexityUpdate(ctx context.Context) (*Response, error) {
	results, err := h.refresher.RefreshAll(ctx, true)
	if err != nil {
		return nil, err
	}

	var records int
	for _, r := range results {
		if r.Success && slices.Contains(refresh.PerplexitySources, r.Source) {
			records += r.RecordsUpdated
		}
	}
	if records > 0 && h.alerts != nil {
		h.alerts.SendAlerts(ctx, []refresh.Change{{
			Metric:        "Perplexity Research Update",
			Category:      refresh.CategoryMarket,
			CurrentValue:  float64(records),
			ChangePercent: 100,
			Significance:  refresh.SignificanceMedium,
			Description:   "New market intelligence data received from Perplexity research",
			Timestamp:     h.now().UTC(),
		}})
	}
	return &Response{Success: true, Message: "Perplexity data refreshed", RecordsUpdated: &records}, nil
}

// dataImport acknowledges an external import by forcing a full refresh.
func (h *Handler) dataImport(ctx context.Context, data EventData) (*Response, error) {
	h.logger.Info().Str("source", data.Source).Int("count", data.Count).Msg("Data import notification")
	results, err := h.refresher.RefreshAll(ctx, true)
	if err != nil {
		return nil, err
	}
	return &Response{Success: true, Message: "Data import processed", Results: results}, nil
}

func (h *Handler) csvUpload(ctx context.Context, data EventData) (*Response, error) {
	if h.importer == nil {
		return nil, refresh.ErrNoImporter
	}

	var results []*ingest.ImportResult
	if data.Category != "" {
		res, err := h.importer.ImportCategory(ctx, data.Category)
		if err != nil {
			return nil, err
		}
		results = []*ingest.ImportResult{res}
	} else {
		all, err := h.importer.ImportAll(ctx)
		if err != nil {
			return nil, err
		}
		results = all
	}

	var imported int
	for _, res := range results {
		imported += res.RecordsImported
		_ = h.audit.LogImport(ctx, res.Category, "webhook", res.RecordsImported, res.Failed)
	}
	return &Response{
		Success: true,
		Message: fmt.Sprintf("Imported %d records from %d categories", imported, len(results)),
		Results: results,
	}, nil
}

// marketAlert forwards an externally detected change to the alert sinks.
func (h *Handler) marketAlert(ctx context.Context, data EventData) (*Response, error) {
	if h.alerts == nil {
		return nil, errors.New("alerting not configured")
	}
	if data.Metric == "" {
		return nil, errors.New("market alert requires a metric")
	}

	significance := refresh.SignificanceMedium
	if math.Abs(data.Change) > 10 {
		significance = refresh.SignificanceHigh
	}
	change := refresh.Change{
		Metric:        data.Metric,
		Category:      refresh.CategoryMarket,
		PreviousValue: data.Value - data.Value*data.Change/100,
		CurrentValue:  data.Value,
		ChangePercent: data.Change,
		Significance:  significance,
		Description:   data.Description,
		Timestamp:     h.now().UTC(),
	}
	results := h.alerts.SendAlerts(ctx, []refresh.Change{change})
	return &Response{Success: true, Message: "Market alert processed", Results: results}, nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
