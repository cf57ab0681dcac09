package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fernando-x/platform/libs/intelligence-engine/internal/ingest"
	"github.com/fernando-x/platform/libs/intelligence-engine/internal/monitoring"
	"github.com/fernando-x/platform/libs/intelligence-engine/internal/observability"
	"github.com/fernando-x/platform/libs/intelligence-engine/internal/refresh"
)

type fakeRefresher struct {
	forced  []bool
	results []refresh.Result
	err     error
}

func (f *fakeRefresher) RefreshAll(_ context.Context, force bool) ([]refresh.Result, error) {
	f.forced = append(f.forced, force)
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

type fakeImporter struct {
	categories []string
	all        int
}

func (f *fakeImporter) ImportAll(context.Context) ([]*ingest.ImportResult, error) {
	f.all++
	return []*ingest.ImportResult{
		{Category: ingest.CategoryCompetitive, Success: true, RecordsImported: 4},
		{Category: ingest.CategoryMicroMarket, Success: true, RecordsImported: 6},
	}, nil
}

func (f *fakeImporter) ImportCategory(_ context.Context, name string) (*ingest.ImportResult, error) {
	f.categories = append(f.categories, name)
	if name == "nope" {
		return nil, fmt.Errorf("%w %q", ingest.ErrUnknownCategory, name)
	}
	return &ingest.ImportResult{Category: name, Success: true, RecordsImported: 7}, nil
}

type fakeAlerter struct{ changes []refresh.Change }

func (f *fakeAlerter) SendAlerts(_ context.Context, changes []refresh.Change) []refresh.AlertResult {
	f.changes = append(f.changes, changes...)
	return []refresh.AlertResult{{Sent: true, Channel: refresh.ChannelConsole}}
}

type fixture struct {
	handler   *Handler
	refresher *fakeRefresher
	importer  *fakeImporter
	alerts    *fakeAlerter
	audit     *monitoring.AuditLogger
}

func newFixture(secret string) *fixture {
	f := &fixture{
		refresher: &fakeRefresher{results: []refresh.Result{
			{Source: refresh.SourceMarketTrends, Success: true, RecordsUpdated: 3},
			{Source: refresh.SourceEconomicData, Success: false, RecordsUpdated: 5},
			{Source: refresh.SourceDevelopmentNews, Success: true, RecordsUpdated: 2},
			{Source: refresh.SourcePermits, Success: true, RecordsUpdated: 7},
		}},
		importer:  &fakeImporter{},
		alerts:    &fakeAlerter{},
		audit:     monitoring.NewAuditLogger(observability.NewNopLogger(), nil),
	}
	f.handler = NewHandler(observability.NewNopLogger(), Deps{
		Secret:    secret,
		Refresher: f.refresher,
		Importer:  f.importer,
		Alerts:    f.alerts,
		Audit:     f.audit,
	})
	return f
}

func post(h *Handler, body, secret string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/data-refresh/webhook", strings.NewReader(body))
	if secret != "" {
		req.Header.Set(SecretHeader, secret)
	}
	rec := httptest.NewRecorder()
	h.Receive(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestReceiveSecret(t *testing.T) {
	tests := []struct {
		name   string
		secret string
		header string
		status int
	}{
		{"no secret configured", "", "", http.StatusOK},
		{"matching secret", "s3cret", "s3cret", http.StatusOK},
		{"missing header", "s3cret", "", http.StatusUnauthorized},
		{"wrong secret", "s3cret", "s3cret!", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(tt.secret)
			rec := post(f.handler, `{"type":"data_import","data":{"source":"har","count":12}}`, tt.header)
			assert.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusUnauthorized {
				assert.Equal(t, "Unauthorized", decode(t, rec)["error"])
				assert.Empty(t, f.refresher.forced)
				require.Len(t, f.audit.Recent(1), 1)
				assert.Equal(t, monitoring.ActionRejected, f.audit.Recent(1)[0].Action)
			}
		})
	}
}

func TestReceivePerplexityUpdate(t *testing.T) {
	f := newFixture("")

	rec := post(f.handler, `{"type":"perplexity_update","data":{}}`, "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "Perplexity data refreshed", body["message"])
	// Only successful research sources count.
	assert.Equal(t, float64(5), body["records_updated"])
	assert.Equal(t, []bool{true}, f.refresher.forced)

	require.Len(t, f.alerts.changes, 1)
	c := f.alerts.changes[0]
	assert.Equal(t, "Perplexity Research Update", c.Metric)
	assert.Equal(t, refresh.SignificanceMedium, c.Significance)
	assert.Zero(t, c.PreviousValue)
	assert.Equal(t, float64(5), c.CurrentValue)
	assert.Equal(t, float64(100), c.ChangePercent)

	events := f.audit.Recent(0)
	require.Len(t, events, 1)
	assert.Equal(t, TypePerplexityUpdate, events[0].ResourceID)
	assert.Equal(t, monitoring.ActionReceived, events[0].Action)
}

func TestReceivePerplexityUpdateWithoutNewRecords(t *testing.T) {
	f := newFixture("")
	f.refresher.results = []refresh.Result{
		{Source: refresh.SourceMarketTrends, Success: true},
		{Source: refresh.SourcePermits, Success: true, RecordsUpdated: 9},
	}

	rec := post(f.handler, `{"type":"perplexity_update"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(0), decode(t, rec)["records_updated"])
	assert.Empty(t, f.alerts.changes)
}

func TestReceiveDataImport(t *testing.T) {
	f := newFixture("")

	rec := post(f.handler, `{"type":"data_import","data":{"source":"har","count":12}}`, "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "Data import processed", body["message"])
	assert.Equal(t, []bool{true}, f.refresher.forced)
	assert.Empty(t, f.alerts.changes)

	ev := f.audit.Recent(1)[0]
	assert.Equal(t, TypeDataImport, ev.ResourceID)
	assert.Equal(t, "har", ev.Payload["source"])
	assert.Equal(t, 12, ev.Payload["count"])

	f.refresher.err = errors.New("database is locked")
	rec = post(f.handler, `{"type":"data_import","data":{"source":"har"}}`, "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "database is locked", decode(t, rec)["details"])
	assert.Equal(t, monitoring.ActionFailed, f.audit.Recent(1)[0].Action)
}

func TestReceiveCSVUpload(t *testing.T) {
	f := newFixture("")

	rec := post(f.handler, `{"type":"csv_upload","data":{"category":"micro-market"}}`, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Imported 7 records from 1 categories", decode(t, rec)["message"])
	assert.Equal(t, []string{"micro-market"}, f.importer.categories)

	rec = post(f.handler, `{"type":"csv_upload"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Imported 10 records from 2 categories", decode(t, rec)["message"])
	assert.Equal(t, 1, f.importer.all)

	rec = post(f.handler, `{"type":"csv_upload","data":{"category":"nope"}}`, "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "Webhook processing failed", body["error"])
	assert.Contains(t, body["details"], "unknown category")
}

func TestReceiveMarketAlert(t *testing.T) {
	f := newFixture("")

	rec := post(f.handler, `{"type":"market_alert","data":{"metric":"median_price","value":550000,"change":12.5,"description":"Prices jumped"}}`, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, f.alerts.changes, 1)
	c := f.alerts.changes[0]
	assert.Equal(t, refresh.SignificanceHigh, c.Significance)
	assert.InDelta(t, 481250, c.PreviousValue, 0.01)
	assert.Equal(t, "Prices jumped", c.Description)

	rec = post(f.handler, `{"type":"market_alert","data":{"value":1}}`, "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestReceiveBadRequests(t *testing.T) {
	f := newFixture("")

	rec := post(f.handler, `{"type":"reindex"}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Unknown webhook type", decode(t, rec)["error"])

	rec = post(f.handler, `{"type":`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid JSON body", decode(t, rec)["error"])
	assert.Empty(t, f.audit.Recent(0))
}

func TestDescribe(t *testing.T) {
	for _, secret := range []string{"", "s3cret"} {
		f := newFixture(secret)
		rec := httptest.NewRecorder()
		f.handler.Describe(rec, httptest.NewRequest(http.MethodGet, "/api/data-refresh/webhook", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		var info Info
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
		assert.Equal(t, SupportedTypes, info.SupportedTypes)
		assert.Subset(t, info.SupportedTypes, []string{"perplexity_update", "market_alert", "data_import"})
		assert.Equal(t, secret != "", info.SecretRequired)
		assert.Equal(t, SecretHeader, info.SecretHeader)
	}
}
