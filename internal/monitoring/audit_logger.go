// Package monitoring provides audit logging for operator-triggered actions.
package monitoring

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fernando-x/platform/libs/intelligence-engine/internal/cache"
	"github.com/fernando-x/platform/libs/intelligence-engine/internal/observability"
)

// DefaultAuditChannel is the pub/sub channel audit events are published on.
const DefaultAuditChannel = "audit.events"

const recentLimit = 200

// Action names what happened to a resource.
type Action string

const (
	ActionReceived  Action = "received"
	ActionRefreshed Action = "refreshed"
	ActionImported  Action = "imported"
	ActionRejected  Action = "rejected"
	ActionFailed    Action = "failed"
)

// AuditLogger handles audit event logging.
type AuditLogger struct {
	logger    *observability.Logger
	publisher cache.Publisher
	channel   string

	mu     sync.Mutex
	recent []AuditEvent
	now    func() time.Time
}

// AuditEvent represents an auditable action.
type AuditEvent struct {
	ID           uuid.UUID              `json:"id"`
	ResourceType string                 `json:"resource_type"`
	ResourceID   string                 `json:"resource_id"`
	Action       Action                 `json:"action"`
	Operator     string                 `json:"operator"`
	Payload      map[string]interface{} `json:"payload,omitempty"`
	OccurredAt   time.Time              `json:"occurred_at"`
}

// NewAuditLogger creates a new audit logger. publisher may be nil, in which
// case events are only logged and kept in memory.
func NewAuditLogger(logger *observability.Logger, publisher cache.Publisher) *AuditLogger {
	return &AuditLogger{
		logger:    logger.WithComponent("audit"),
		publisher: publisher,
		channel:   DefaultAuditChannel,
		now:       time.Now,
	}
}

// LogEvent records an audit event. A nil logger discards it.
func (a *AuditLogger) LogEvent(ctx context.Context, event AuditEvent) error {
	if a == nil {
		return nil
	}
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = a.now().UTC()
	}

	a.logger.Info().
		Str("event_id", event.ID.String()).
		Str("resource_type", event.ResourceType).
		Str("resource_id", event.ResourceID).
		Str("action", string(event.Action)).
		Str("operator", event.Operator).
		Msg("Audit event")

	a.mu.Lock()
	a.recent = append(a.recent, event)
	if len(a.recent) > recentLimit {
		a.recent = a.recent[len(a.recent)-recentLimit:]
	}
	a.mu.Unlock()

	if a.publisher == nil {
		return nil
	}
	if err := a.publisher.Publish(ctx, a.channel, event); err != nil {
		a.logger.Warn().Err(err).Str("event_id", event.ID.String()).Msg("Failed to publish audit event")
		return err
	}
	return nil
}

// LogWebhook records an inbound data-refresh webhook.
func (a *AuditLogger) LogWebhook(ctx context.Context, eventType, remoteAddr string, action Action, payload map[string]interface{}) error {
	p := map[string]interface{}{"remote_addr": remoteAddr}
	for k, v := range payload {
		p[k] = v
	}
	return a.LogEvent(ctx, AuditEvent{
		ResourceType: "data_refresh_webhook",
		ResourceID:   eventType,
		Action:       action,
		Operator:     "webhook",
		Payload:      p,
	})
}

// LogRefresh records the outcome of a refresh run for one source.
func (a *AuditLogger) LogRefresh(ctx context.Context, source, operator string, success bool, records int, errs []string) error {
	action := ActionRefreshed
	if !success {
		action = ActionFailed
	}
	return a.LogEvent(ctx, AuditEvent{
		ResourceType: "refresh_source",
		ResourceID:   source,
		Action:       action,
		Operator:     operator,
		Payload: map[string]interface{}{
			"records": records,
			"errors":  errs,
		},
	})
}

// LogImport records a CSV import for one category.
func (a *AuditLogger) LogImport(ctx context.Context, category, operator string, imported, failed int) error {
	return a.LogEvent(ctx, AuditEvent{
		ResourceType: "csv_import",
		ResourceID:   category,
		Action:       ActionImported,
		Operator:     operator,
		Payload: map[string]interface{}{
			"imported": imported,
			"failed":   failed,
		},
	})
}

// Recent returns up to limit of the most recent events, newest first.
func (a *AuditLogger) Recent(limit int) []AuditEvent {
	if a == nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	if limit <= 0 || limit > len(a.recent) {
		limit = len(a.recent)
	}
	out := make([]AuditEvent, 0, limit)
	for i := len(a.recent) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, a.recent[i])
	}
	return out
}
