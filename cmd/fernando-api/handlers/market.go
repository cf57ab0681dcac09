package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/fernando-x/platform/libs/intelligence-engine/internal/ingest"
	"github.com/fernando-x/platform/libs/intelligence-engine/internal/observability"
	"github.com/fernando-x/platform/libs/intelligence-engine/internal/storage"
)

// MarketView reads stored market intelligence.
type MarketView interface {
	Query(ctx context.Context, q storage.MarketViewQuery) (*storage.MarketViewResult, error)
	SearchByKeyword(ctx context.Context, keyword string, limit int) ([]*storage.MarketIntelligence, error)
	DataTypes(ctx context.Context) ([]string, error)
}

// ImportStatus reports imported HAR MLS reports.
type ImportStatus interface {
	Status(ctx context.Context) ([]ingest.ReportStatus, error)
}

// MarketHandler serves stored market data and import status.
type MarketHandler struct {
	logger *observability.Logger
	view   MarketView
	har    ImportStatus
}

// NewMarketHandler creates a new market handler.
func NewMarketHandler(logger *observability.Logger, view MarketView, har ImportStatus) *MarketHandler {
	return &MarketHandler{logger: logger, view: view, har: har}
}

// Query handles GET /market?type=&neighborhood=&zip=&category=&q=&limit=&offset=.
// A q parameter switches to keyword search over neighborhood and metric.
func (h *MarketHandler) Query(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	limit := queryInt(r, "limit", 50)

	if kw := strings.TrimSpace(params.Get("q")); kw != "" {
		rows, err := h.view.SearchByKeyword(r.Context(), kw, limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "market search failed", err.Error())
			return
		}
		if rows == nil {
			rows = []*storage.MarketIntelligence{}
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"rows": rows, "total_count": len(rows)})
		return
	}

	q := storage.MarketViewQuery{
		DataTypes:     splitParam(params.Get("type")),
		Neighborhoods: splitParam(params.Get("neighborhood")),
		Limit:         limit,
		Offset:        queryInt(r, "offset", 0),
	}
	if zip := params.Get("zip"); zip != "" {
		q.ZipCode = &zip
	}
	if cat := params.Get("category"); cat != "" {
		q.Category = &cat
	}

	res, err := h.view.Query(r.Context(), q)
	if err != nil {
		h.logger.Error().Err(err).Msg("Market query failed")
		writeError(w, http.StatusInternalServerError, "market query failed", err.Error())
		return
	}
	if res.CacheHint.Cacheable {
		w.Header().Set("Cache-Control", fmt.Sprintf("private, max-age=%d", int(res.CacheHint.TTL.Seconds())))
		w.Header().Set("ETag", fmt.Sprintf(`"%s-%d"`, res.CacheHint.Key, res.CacheHint.Version))
	}
	writeJSON(w, http.StatusOK, res)
}

// DataTypes handles GET /market/types.
func (h *MarketHandler) DataTypes(w http.ResponseWriter, r *http.Request) {
	types, err := h.view.DataTypes(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list data types failed", err.Error())
		return
	}
	if types == nil {
		types = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"data_types": types})
}

// HarStatus handles GET /imports/har/status.
func (h *MarketHandler) HarStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.har.Status(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "import status failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"reports": status})
}

func splitParam(v string) []string {
	if v == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
