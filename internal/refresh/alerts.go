package refresh

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/fernando-x/platform/libs/intelligence-engine/internal/cache"
	"github.com/fernando-x/platform/libs/intelligence-engine/internal/config"
	"github.com/fernando-x/platform/libs/intelligence-engine/internal/observability"
)

// Alert channels.
const (
	ChannelConsole = "console"
	ChannelWebhook = "webhook"
	ChannelSlack   = "slack"
	ChannelRedis   = "redis"
	ChannelEmail   = "email"
)

// AlertConfig selects which changes are sent and where.
type AlertConfig struct {
	MinSignificance Significance `json:"min_significance"`
	Categories      []string     `json:"categories,omitempty"` // empty or "all" passes every category
	WebhookURL      string       `json:"webhook_url,omitempty"`
	SlackWebhookURL string       `json:"slack_webhook_url,omitempty"`
	RedisChannel    string       `json:"redis_channel,omitempty"`
	EmailRecipients []string     `json:"email_recipients,omitempty"`
}

// AlertConfigFrom converts loaded configuration.
func AlertConfigFrom(cfg config.AlertsConfig) AlertConfig {
	return AlertConfig{
		MinSignificance: Significance(cfg.MinSignificance),
		Categories:      cfg.Categories,
		WebhookURL:      cfg.WebhookURL,
		SlackWebhookURL: cfg.SlackWebhookURL,
		RedisChannel:    cfg.RedisChannel,
		EmailRecipients: cfg.EmailRecipients,
	}
}

// AlertResult is the outcome of one channel.
type AlertResult struct {
	Sent      bool      `json:"sent"`
	Channel   string    `json:"channel"`
	Timestamp time.Time `json:"timestamp"`
	Error     string    `json:"error,omitempty"`
}

// AlertService fans significant changes out to the configured channels.
type AlertService struct {
	mu        sync.RWMutex
	cfg       AlertConfig
	http      *http.Client
	publisher cache.Publisher
	logger    *observability.Logger
	now       func() time.Time
	retry     func() backoff.BackOff
}

// NewAlertService creates an alert service. publisher may be nil when no
// Redis is configured.
func NewAlertService(logger *observability.Logger, cfg AlertConfig, publisher cache.Publisher) *AlertService {
	if cfg.MinSignificance.Rank() == 0 {
		cfg.MinSignificance = SignificanceMedium
	}
	return &AlertService{
		cfg:       cfg,
		http:      &http.Client{Timeout: 10 * time.Second},
		publisher: publisher,
		logger:    logger.WithComponent("alert_service"),
		now:       time.Now,
		retry: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 200 * time.Millisecond
			return backoff.WithMaxRetries(b, 2)
		},
	}
}

// Config returns the current configuration.
func (s *AlertService) Config() AlertConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// UpdateConfig replaces the configuration.
func (s *AlertService) UpdateConfig(cfg AlertConfig) {
	if cfg.MinSignificance.Rank() == 0 {
		cfg.MinSignificance = SignificanceMedium
	}
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
	s.logger.Info().Str("min_significance", string(cfg.MinSignificance)).Strs("categories", cfg.Categories).Msg("Alert config updated")
}

// SendAlerts filters changes and sends them to every configured channel. A
// failing channel is reported in its result and does not stop the others.
// Nothing is sent when no change passes the filter.
func (s *AlertService) SendAlerts(ctx context.Context, changes []Change) []AlertResult {
	cfg := s.Config()
	selected := filterChanges(changes, cfg)
	if len(selected) == 0 {
		return nil
	}
	message := s.FormatMessage(selected)

	var results []AlertResult
	if len(cfg.EmailRecipients) > 0 {
		results = append(results, s.logEmail(cfg.EmailRecipients, selected))
	}
	if cfg.WebhookURL != "" {
		results = append(results, s.result(ChannelWebhook, s.postJSON(ctx, cfg.WebhookURL, webhookPayload(selected, message, s.now()))))
	}
	if cfg.SlackWebhookURL != "" {
		results = append(results, s.result(ChannelSlack, s.postJSON(ctx, cfg.SlackWebhookURL, slackPayload(selected))))
	}
	if s.publisher != nil && cfg.RedisChannel != "" {
		results = append(results, s.result(ChannelRedis, s.publisher.Publish(ctx, cfg.RedisChannel, webhookPayload(selected, message, s.now()))))
	}

	s.logger.Info().Int("changes", len(selected)).Str("channel", ChannelConsole).Msg(message)
	results = append(results, AlertResult{Sent: true, Channel: ChannelConsole, Timestamp: s.now().UTC()})
	return results
}

func filterChanges(changes []Change, cfg AlertConfig) []Change {
	all := len(cfg.Categories) == 0 || slices.Contains(cfg.Categories, "all")
	var out []Change
	for _, c := range changes {
		if c.Significance.Rank() < cfg.MinSignificance.Rank() {
			continue
		}
		if !all && !slices.Contains(cfg.Categories, c.Category) {
			continue
		}
		out = append(out, c)
	}
	return out
}

// FormatMessage renders changes as a plain-text alert grouped by
// significance.
func (s *AlertService) FormatMessage(changes []Change) string {
	separator := strings.Repeat("━", 50) + "\n"
	var b strings.Builder
	fmt.Fprintf(&b, "Houston Real Estate Market Alert - %d Significant Changes Detected\n", len(changes))
	fmt.Fprintf(&b, "Generated: %s\n", s.now().Format("1/2/2006, 3:04:05 PM"))
	b.WriteString(separator)

	groups := []struct {
		sig   Significance
		title string
	}{
		{SignificanceHigh, "HIGH SIGNIFICANCE CHANGES:"},
		{SignificanceMedium, "MEDIUM SIGNIFICANCE CHANGES:"},
	}
	for _, g := range groups {
		first := true
		for _, c := range changes {
			if c.Significance != g.sig {
				continue
			}
			if first {
				fmt.Fprintf(&b, "\n%s\n", g.title)
				first = false
			}
			b.WriteString(formatChange(c))
			b.WriteString("\n")
		}
	}
	b.WriteString("\n")
	b.WriteString(separator)
	b.WriteString("Access the Houston Development Intelligence platform for detailed analysis.\n")
	return b.String()
}

func formatChange(c Change) string {
	arrow := "▼"
	if c.ChangePercent > 0 {
		arrow = "▲"
	}
	return fmt.Sprintf("%s %s: %s (%s%%)\n   %s", arrow, c.Metric, formatValue(c.CurrentValue), signedPercent(c.ChangePercent), c.Description)
}

func formatValue(v float64) string {
	switch {
	case v > 1_000_000:
		return fmt.Sprintf("$%.1fM", v/1_000_000)
	case v > 1000:
		return fmt.Sprintf("$%.1fK", v/1000)
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func signedPercent(v float64) string {
	s := strconv.FormatFloat(v, 'f', 1, 64)
	if v > 0 {
		return "+" + s
	}
	return s
}

type webhookChange struct {
	Metric        string       `json:"metric"`
	Previous      float64      `json:"previous"`
	Current       float64      `json:"current"`
	ChangePercent float64      `json:"change_percent"`
	Significance  Significance `json:"significance"`
}

type webhookMessage struct {
	Timestamp    time.Time       `json:"timestamp"`
	AlertType    string          `json:"alert_type"`
	Significance Significance    `json:"significance"`
	ChangeCount  int             `json:"change_count"`
	Message      string          `json:"message"`
	Changes      []webhookChange `json:"changes"`
}

func webhookPayload(changes []Change, message string, now time.Time) webhookMessage {
	out := webhookMessage{
		Timestamp:    now.UTC(),
		AlertType:    "market_change",
		Significance: SignificanceMedium,
		ChangeCount:  len(changes),
		Message:      message,
	}
	for _, c := range changes {
		if c.Significance == SignificanceHigh {
			out.Significance = SignificanceHigh
		}
		out.Changes = append(out.Changes, webhookChange{
			Metric:        c.Metric,
			Previous:      c.PreviousValue,
			Current:       c.CurrentValue,
			ChangePercent: c.ChangePercent,
			Significance:  c.Significance,
		})
	}
	return out
}

type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type slackBlock struct {
	Type string    `json:"type"`
	Text slackText `json:"text"`
}

func slackPayload(changes []Change) map[string][]slackBlock {
	blocks := []slackBlock{
		{Type: "header", Text: slackText{Type: "plain_text", Text: "Houston Market Alert"}},
		{Type: "section", Text: slackText{Type: "mrkdwn", Text: fmt.Sprintf("*%d significant changes detected*", len(changes))}},
	}
	for _, c := range changes[:min(3, len(changes))] {
		arrow := "▼"
		if c.ChangePercent > 0 {
			arrow = "▲"
		}
		blocks = append(blocks, slackBlock{
			Type: "section",
			Text: slackText{Type: "mrkdwn", Text: fmt.Sprintf("%s *%s*\n%s", arrow, c.Metric, c.Description)},
		})
	}
	return map[string][]slackBlock{"blocks": blocks}
}

// postJSON posts body and retries transient failures. 4xx responses are
// not retried.
func (s *AlertService) postJSON(ctx context.Context, url string, body interface{}) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode alert: %w", err)
	}
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := s.http.Do(req)
		if err != nil {
			return err
		}
		resp.Body.Close()
		switch {
		case resp.StatusCode >= 500:
			return fmt.Errorf("alert endpoint returned %d", resp.StatusCode)
		case resp.StatusCode >= 300:
			return backoff.Permanent(fmt.Errorf("alert endpoint returned %d", resp.StatusCode))
		}
		return nil
	}
	return backoff.Retry(op, backoff.WithContext(s.retry(), ctx))
}

func (s *AlertService) logEmail(recipients []string, changes []Change) AlertResult {
	s.logger.Warn().
		Strs("recipients", recipients).
		Int("changes", len(changes)).
		Msg("Email alerts have no transport; recipients logged only")
	return AlertResult{
		Sent:      false,
		Channel:   ChannelEmail,
		Timestamp: s.now().UTC(),
		Error:     "email transport not configured",
	}
}

func (s *AlertService) result(channel string, err error) AlertResult {
	r := AlertResult{Sent: err == nil, Channel: channel, Timestamp: s.now().UTC()}
	if err != nil {
		r.Error = err.Error()
		s.logger.Error().Err(err).Str("channel", channel).Msg("Alert delivery failed")
	}
	return r
}
