package refresh

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fernando-x/platform/libs/intelligence-engine/internal/cache"
	"github.com/fernando-x/platform/libs/intelligence-engine/internal/config"
	"github.com/fernando-x/platform/libs/intelligence-engine/internal/observability"
)

type fakePublisher struct {
	channel string
	message interface{}
}

func (f *fakePublisher) Publish(_ context.Context, channel string, message interface{}) error {
	f.channel = channel
	f.message = message
	return nil
}

func sampleChanges() []Change {
	return []Change{
		{Metric: "median_price", Category: CategoryMarket, PreviousValue: 500000, CurrentValue: 531000, ChangePercent: 6.2,
			Significance: SignificanceMedium, Description: "Median home price in Heights increased by 6.2%"},
		{Metric: "active_listings", Category: CategoryMarket, PreviousValue: 100, CurrentValue: 125, ChangePercent: 25,
			Significance: SignificanceHigh, Description: "Active listings in Heights increased by 25.0%"},
		{Metric: "rental_rate", Category: CategoryRental, PreviousValue: 1800, CurrentValue: 1900, ChangePercent: 5.6,
			Significance: SignificanceMedium, Description: "Average rent in Montrose increased by 5.6% to $1900"},
		{Metric: "days_on_market", Category: CategoryMarket, PreviousValue: 30, CurrentValue: 34, ChangePercent: 13.3,
			Significance: SignificanceLow, Description: "Days on market in Heights increased by 4 days"},
	}
}

func newTestAlertService(cfg AlertConfig, pub *fakePublisher) *AlertService {
	var p cache.Publisher
	if pub != nil {
		p = pub
	}
	s := NewAlertService(observability.NewNopLogger(), cfg, p)
	s.now = func() time.Time { return time.Date(2025, 10, 6, 15, 4, 5, 0, time.UTC) }
	s.retry = func() backoff.BackOff { return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 1) }
	return s
}

func captureServer(t *testing.T, status int, hits *int32, body *[]byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		raw, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		*body = raw
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestSendAlertsAllChannels(t *testing.T) {
	var webhookHits, slackHits int32
	var webhookBody, slackBody []byte
	webhook := captureServer(t, http.StatusOK, &webhookHits, &webhookBody)
	slack := captureServer(t, http.StatusOK, &slackHits, &slackBody)
	pub := &fakePublisher{}

	s := newTestAlertService(AlertConfigFrom(config.AlertsConfig{
		MinSignificance: "medium",
		WebhookURL:      webhook.URL,
		SlackWebhookURL: slack.URL,
		RedisChannel:    "market.alerts",
		EmailRecipients: []string{"ops@example.com"},
	}), pub)

	results := s.SendAlerts(context.Background(), sampleChanges())
	require.Len(t, results, 5)
	channels := []string{ChannelEmail, ChannelWebhook, ChannelSlack, ChannelRedis, ChannelConsole}
	for i, r := range results {
		assert.Equal(t, channels[i], r.Channel)
		assert.Equal(t, r.Channel != ChannelEmail, r.Sent, r.Channel)
	}

	var payload webhookMessage
	require.NoError(t, json.Unmarshal(webhookBody, &payload))
	assert.Equal(t, "market_change", payload.AlertType)
	assert.Equal(t, SignificanceHigh, payload.Significance)
	assert.Equal(t, 3, payload.ChangeCount)
	require.Len(t, payload.Changes, 3)
	assert.Equal(t, webhookChange{Metric: "median_price", Previous: 500000, Current: 531000, ChangePercent: 6.2, Significance: SignificanceMedium}, payload.Changes[0])
	assert.Contains(t, payload.Message, "3 Significant Changes Detected")

	var blocks map[string][]slackBlock
	require.NoError(t, json.Unmarshal(slackBody, &blocks))
	require.Len(t, blocks["blocks"], 5)
	assert.Equal(t, "header", blocks["blocks"][0].Type)
	assert.Equal(t, "*3 significant changes detected*", blocks["blocks"][1].Text.Text)
	assert.Equal(t, "▲ *median_price*\nMedian home price in Heights increased by 6.2%", blocks["blocks"][2].Text.Text)

	assert.Equal(t, "market.alerts", pub.channel)
	assert.IsType(t, webhookMessage{}, pub.message)
}

func TestSendAlertsFilters(t *testing.T) {
	s := newTestAlertService(AlertConfig{MinSignificance: SignificanceHigh}, nil)
	results := s.SendAlerts(context.Background(), sampleChanges())
	require.Len(t, results, 1)
	assert.Equal(t, ChannelConsole, results[0].Channel)

	s.UpdateConfig(AlertConfig{Categories: []string{CategoryRental}})
	assert.Equal(t, SignificanceMedium, s.Config().MinSignificance, "unset significance defaults to medium")
	msg := s.FormatMessage(filterChanges(sampleChanges(), s.Config()))
	assert.Contains(t, msg, "1 Significant Changes Detected")
	assert.Contains(t, msg, "rental_rate")

	s.UpdateConfig(AlertConfig{Categories: []string{"permits"}})
	assert.Nil(t, s.SendAlerts(context.Background(), sampleChanges()))
}

func TestSendAlertsFailingSinkDoesNotStopOthers(t *testing.T) {
	var webhookHits, slackHits int32
	var webhookBody, slackBody []byte
	webhook := captureServer(t, http.StatusBadGateway, &webhookHits, &webhookBody)
	slack := captureServer(t, http.StatusOK, &slackHits, &slackBody)

	s := newTestAlertService(AlertConfig{WebhookURL: webhook.URL, SlackWebhookURL: slack.URL}, nil)
	results := s.SendAlerts(context.Background(), sampleChanges())
	require.Len(t, results, 3)

	assert.Equal(t, ChannelWebhook, results[0].Channel)
	assert.False(t, results[0].Sent)
	assert.Contains(t, results[0].Error, "502")
	assert.Equal(t, int32(2), atomic.LoadInt32(&webhookHits), "server errors are retried")

	assert.True(t, results[1].Sent)
	assert.True(t, results[2].Sent)
}

func TestSendAlertsClientErrorNotRetried(t *testing.T) {
	var hits int32
	var body []byte
	webhook := captureServer(t, http.StatusBadRequest, &hits, &body)

	s := newTestAlertService(AlertConfig{WebhookURL: webhook.URL}, nil)
	results := s.SendAlerts(context.Background(), sampleChanges())
	require.Len(t, results, 2)
	assert.False(t, results[0].Sent)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestFormatMessage(t *testing.T) {
	s := newTestAlertService(AlertConfig{}, nil)
	msg := s.FormatMessage(filterChanges(sampleChanges(), s.Config()))

	assert.True(t, strings.HasPrefix(msg, "Houston Real Estate Market Alert - 3 Significant Changes Detected\nGenerated: 10/6/2025, 3:04:05 PM\n"))
	high := strings.Index(msg, "HIGH SIGNIFICANCE CHANGES:\n▲ active_listings: 125 (+25.0%)\n   Active listings in Heights increased by 25.0%")
	medium := strings.Index(msg, "MEDIUM SIGNIFICANCE CHANGES:\n▲ median_price: $531.0K (+6.2%)")
	require.GreaterOrEqual(t, high, 0)
	require.Greater(t, medium, high)
	assert.Contains(t, msg, "▲ rental_rate: $1.9K (+5.6%)")
	assert.NotContains(t, msg, "days_on_market")
	assert.True(t, strings.HasSuffix(msg, "Access the Houston Development Intelligence platform for detailed analysis.\n"))
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "$2.5M", formatValue(2_500_000))
	assert.Equal(t, "$1.8K", formatValue(1840))
	assert.Equal(t, "1000", formatValue(1000))
	assert.Equal(t, "95.5", formatValue(95.5))
	assert.Equal(t, "+6.2", signedPercent(6.2))
	assert.Equal(t, "-3.7", signedPercent(-3.7))
	assert.Equal(t, "0.0", signedPercent(0))
}
