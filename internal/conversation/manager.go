package conversation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fernando-x/platform/libs/intelligence-engine/internal/knowledge"
	"github.com/fernando-x/platform/libs/intelligence-engine/internal/memory"
	"github.com/fernando-x/platform/libs/intelligence-engine/internal/observability"
	"github.com/fernando-x/platform/libs/intelligence-engine/internal/search"
	"github.com/fernando-x/platform/libs/intelligence-engine/internal/storage"
)

// ErrEmptyMessage is returned for blank input.
var ErrEmptyMessage = errors.New("message is empty")

const (
	maxMessages  = 100
	keepMessages = 50
	// trainingThreshold is the confidence above which a stored training
	// answer is used verbatim.
	trainingThreshold = 0.6
)

// Role of a message author.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of a session.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Intent    Intent    `json:"intent,omitempty"`
	Entities  *Entities `json:"entities,omitempty"`
}

// PriceRange is a budget window in dollars.
type PriceRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Preferences accumulate across a session.
type Preferences struct {
	PropertyTypes []string    `json:"property_types,omitempty"`
	Locations     []string    `json:"locations,omitempty"`
	PriceRange    *PriceRange `json:"price_range,omitempty"`
}

// Context is the state of one conversation.
type Context struct {
	SessionID    string      `json:"session_id"`
	UserID       string      `json:"user_id,omitempty"`
	Messages     []Message   `json:"messages"`
	Entities     Entities    `json:"entities"`
	Preferences  Preferences `json:"preferences"`
	CurrentTopic Intent      `json:"current_topic,omitempty"`
	StartedAt    time.Time   `json:"started_at"`
	LastActive   time.Time   `json:"last_active"`
}

func (c *Context) clone() *Context {
	cp := *c
	cp.Messages = append([]Message(nil), c.Messages...)
	cp.Entities.Locations = append([]string(nil), c.Entities.Locations...)
	cp.Preferences.PropertyTypes = append([]string(nil), c.Preferences.PropertyTypes...)
	cp.Preferences.Locations = append([]string(nil), c.Preferences.Locations...)
	if c.Preferences.PriceRange != nil {
		pr := *c.Preferences.PriceRange
		cp.Preferences.PriceRange = &pr
	}
	return &cp
}

// Reply is the assistant's answer to a message.
type Reply struct {
	SessionID   string   `json:"session_id"`
	Response    string   `json:"response"`
	Intent      Intent   `json:"intent"`
	Confidence  float64  `json:"confidence"`
	Entities    Entities `json:"entities"`
	Suggestions []string `json:"suggestions"`
	FollowUp    string   `json:"follow_up,omitempty"`
	Sources     []string `json:"sources,omitempty"`
}

// Searcher finds knowledge relevant to a message.
type Searcher interface {
	HybridSearch(ctx context.Context, query string, opts search.Options) ([]search.Result, error)
}

// MemoryStore persists exchanges and recalls training answers.
type MemoryStore interface {
	StoreConversation(ctx context.Context, ex memory.Exchange) (*storage.Conversation, error)
	ExtractAndStoreFacts(ctx context.Context, userID, sessionID, text string) ([]*storage.Memory, error)
	SearchTrainingData(ctx context.Context, query string, limit int) ([]memory.TrainingMatch, error)
}

// Manager holds in-memory sessions and answers messages.
type Manager struct {
	logger   *observability.Logger
	kb       *knowledge.Base
	searcher Searcher
	memory   MemoryStore
	now      func() time.Time

	mu       sync.Mutex
	sessions map[string]*Context
}

// NewManager creates a manager. searcher and mem may be nil.
func NewManager(logger *observability.Logger, kb *knowledge.Base, searcher Searcher, mem MemoryStore) *Manager {
	return &Manager{
		logger:   logger.WithComponent("conversation"),
		kb:       kb,
		searcher: searcher,
		memory:   mem,
		now:      time.Now,
		sessions: make(map[string]*Context),
	}
}

// ProcessMessage classifies text, updates the session and builds a reply.
func (m *Manager) ProcessMessage(ctx context.Context, sessionID, userID, text string) (*Reply, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	start := m.now()

	class := ClassifyIntent(text)
	entities := ExtractEntities(text)

	m.mu.Lock()
	conv := m.session(sessionID, userID)
	m.appendMessage(conv, Message{Role: RoleUser, Content: text, Intent: class.Intent, Entities: &entities})
	conv.Entities.merge(entities)
	updatePreferences(&conv.Preferences, entities)
	conv.CurrentTopic = class.Intent
	snapshot := conv.clone()
	m.mu.Unlock()

	reply := &Reply{
		SessionID:  sessionID,
		Intent:     class.Intent,
		Confidence: class.Confidence,
		Entities:   entities,
	}

	if answer, ok := m.trainingAnswer(ctx, text); ok {
		reply.Response = answer.Answer
		reply.Confidence = answer.Confidence
		reply.Sources = []string{"training"}
	} else {
		r := m.respond(ctx, class.Intent, text, snapshot)
		reply.Response = r.text
		reply.Sources = r.sources
	}
	reply.Suggestions = suggestions(class.Intent, snapshot)
	reply.FollowUp = followUp(class.Intent, snapshot)

	m.mu.Lock()
	m.appendMessage(conv, Message{Role: RoleAssistant, Content: reply.Response, Intent: class.Intent})
	m.mu.Unlock()

	m.remember(ctx, userID, sessionID, text, reply, m.now().Sub(start))

	m.logger.Debug().
		Str("session_id", sessionID).
		Str("intent", string(class.Intent)).
		Float64("confidence", reply.Confidence).
		Msg("Processed message")
	return reply, nil
}

func (m *Manager) trainingAnswer(ctx context.Context, text string) (memory.TrainingMatch, bool) {
	if m.memory == nil {
		return memory.TrainingMatch{}, false
	}
	matches, err := m.memory.SearchTrainingData(ctx, text, 1)
	if err != nil {
		m.logger.Warn().Err(err).Msg("Training data lookup failed")
		return memory.TrainingMatch{}, false
	}
	if len(matches) == 0 || matches[0].Confidence <= trainingThreshold {
		return memory.TrainingMatch{}, false
	}
	return matches[0], true
}

func (m *Manager) remember(ctx context.Context, userID, sessionID, text string, reply *Reply, took time.Duration) {
	if m.memory == nil {
		return
	}
	if _, err := m.memory.StoreConversation(ctx, memory.Exchange{
		UserID:    userID,
		SessionID: sessionID,
		Message:   text,
		Response:  reply.Response,
		Intent:    string(reply.Intent),
		Entities:  reply.Entities,
		Duration:  took,
	}); err != nil {
		m.logger.Warn().Err(err).Str("session_id", sessionID).Msg("Failed to store conversation")
	}
	if _, err := m.memory.ExtractAndStoreFacts(ctx, userID, sessionID, text); err != nil {
		m.logger.Warn().Err(err).Str("session_id", sessionID).Msg("Failed to store facts")
	}
}

// session returns the session, creating it. Callers hold m.mu.
func (m *Manager) session(sessionID, userID string) *Context {
	conv, ok := m.sessions[sessionID]
	if !ok {
		now := m.now()
		conv = &Context{SessionID: sessionID, UserID: userID, StartedAt: now, LastActive: now}
		m.sessions[sessionID] = conv
	}
	if conv.UserID == "" {
		conv.UserID = userID
	}
	return conv
}

// appendMessage adds msg, keeping the latest 50 once the history passes
// 100 messages. Callers hold m.mu.
func (m *Manager) appendMessage(conv *Context, msg Message) {
	msg.ID = "msg_" + uuid.NewString()
	msg.Timestamp = m.now()
	conv.Messages = append(conv.Messages, msg)
	conv.LastActive = msg.Timestamp
	if len(conv.Messages) > maxMessages {
		conv.Messages = append([]Message(nil), conv.Messages[len(conv.Messages)-keepMessages:]...)
	}
}

func updatePreferences(p *Preferences, e Entities) {
	p.Locations = appendUnique(p.Locations, e.Locations...)
	if e.PropertyType != "" {
		p.PropertyTypes = appendUnique(p.PropertyTypes, e.PropertyType)
	}
	if e.Price != nil {
		lo, hi := *e.Price*0.8, *e.Price*1.2
		if p.PriceRange == nil {
			p.PriceRange = &PriceRange{Min: lo, Max: hi}
		} else {
			p.PriceRange.Min = min(p.PriceRange.Min, lo)
			p.PriceRange.Max = max(p.PriceRange.Max, hi)
		}
	}
}

// Context returns a copy of a session.
func (m *Manager) Context(sessionID string) (*Context, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	conv, ok := m.sessions[sessionID]
	if !ok {
		return nil, false
	}
	return conv.clone(), true
}

// Reset forgets a session. It reports whether the session existed.
func (m *Manager) Reset(sessionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions[sessionID]
	delete(m.sessions, sessionID)
	return ok
}

// CleanupInactive drops sessions idle for longer than maxIdle and returns
// how many were removed.
func (m *Manager) CleanupInactive(maxIdle time.Duration) int {
	cutoff := m.now().Add(-maxIdle)
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, conv := range m.sessions {
		if conv.LastActive.Before(cutoff) {
			delete(m.sessions, id)
			n++
		}
	}
	return n
}

// Summary describes the topics and preferences of a session in one line.
func (m *Manager) Summary(sessionID string) string {
	conv, ok := m.Context(sessionID)
	if !ok || len(conv.Messages) == 0 {
		return "No conversation history"
	}

	var topics []string
	seen := map[Intent]bool{}
	for _, msg := range conv.Messages {
		if msg.Role == RoleUser && !seen[msg.Intent] {
			seen[msg.Intent] = true
			topics = append(topics, string(msg.Intent))
		}
	}
	parts := []string{"Topics discussed: " + strings.Join(topics, ", ")}
	if len(conv.Preferences.Locations) > 0 {
		parts = append(parts, "Interested in: "+strings.Join(conv.Preferences.Locations, ", "))
	}
	if len(conv.Preferences.PropertyTypes) > 0 {
		parts = append(parts, "Property types: "+strings.Join(conv.Preferences.PropertyTypes, ", "))
	}
	if pr := conv.Preferences.PriceRange; pr != nil {
		parts = append(parts, fmt.Sprintf("Budget: %s-%s", dollars(pr.Min), dollars(pr.Max)))
	}
	return strings.Join(parts, ". ")
}

// SessionCount returns the number of live sessions.
func (m *Manager) SessionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func sortedIntents(counts map[Intent]int) []Intent {
	out := make([]Intent, 0, len(counts))
	for i := range counts {
		out = append(out, i)
	}
	sort.Slice(out, func(a, b int) bool {
		if counts[out[a]] != counts[out[b]] {
			return counts[out[a]] > counts[out[b]]
		}
		return out[a] < out[b]
	})
	return out
}
