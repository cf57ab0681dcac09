// Package memory persists what the assistant learns across conversations:
// user facts, exchanges, insights and curated training Q&A.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fernando-x/platform/libs/intelligence-engine/internal/embedding"
	"github.com/fernando-x/platform/libs/intelligence-engine/internal/observability"
	"github.com/fernando-x/platform/libs/intelligence-engine/internal/storage"
)

const (
	// TypePreference marks facts extracted from user messages.
	TypePreference = "preference"
	// TypeTrainingQA marks curated question/answer pairs.
	TypeTrainingQA = "training_qa_v3_complete"
	// TypeQuestionVariation marks alternate phrasings of a training question.
	TypeQuestionVariation = "question_variation_v3"

	defaultImportance    = 0.5
	defaultRetentionDays = 90
	staleImportance      = 0.5
)

// StoreRequest describes a memory to persist.
type StoreRequest struct {
	UserID     string
	SessionID  string
	MemoryType string
	Content    interface{}
	// Importance defaults to 0.5 when zero.
	Importance float64
	Metadata   interface{}
}

// Exchange is one user message and the reply it received.
type Exchange struct {
	UserID    string
	SessionID string
	Message   string
	Response  string
	Intent    string
	Entities  interface{}
	Duration  time.Duration
}

// Service reads and writes the memory tables.
type Service struct {
	logger        *observability.Logger
	memories      *storage.MemoryRepository
	conversations *storage.ConversationRepository
	insights      *storage.InsightRepository
	embedder      embedding.Embedder
	now           func() time.Time
}

// NewService creates a memory service. A nil embedder stores memories
// without vectors.
func NewService(logger *observability.Logger, repos *storage.Repositories, embedder embedding.Embedder) *Service {
	return &Service{
		logger:        logger.WithComponent("memory"),
		memories:      repos.Memories,
		conversations: repos.Conversations,
		insights:      repos.Insights,
		embedder:      embedder,
		now:           time.Now,
	}
}

// StoreMemory persists a memory with an embedding of its content.
func (s *Service) StoreMemory(ctx context.Context, req StoreRequest) (*storage.Memory, error) {
	if req.MemoryType == "" {
		return nil, fmt.Errorf("memory type is required")
	}
	importance := req.Importance
	if importance == 0 {
		importance = defaultImportance
	}

	m := &storage.Memory{
		UserID:     optional(req.UserID),
		SessionID:  optional(req.SessionID),
		MemoryType: req.MemoryType,
		Content:    storage.NewJSON(req.Content),
		Importance: importance,
		Metadata:   storage.NewJSON(req.Metadata),
	}
	if m.Content == nil {
		m.Content = storage.JSON("{}")
	}
	m.Embedding = s.embed(ctx, embeddingText(req.Content))

	if err := s.memories.Create(ctx, m); err != nil {
		return nil, fmt.Errorf("store memory: %w", err)
	}
	return m, nil
}

// SearchMemories returns matching memories, most important first, and
// records the access on each returned row.
func (s *Service) SearchMemories(ctx context.Context, filter storage.MemoryFilter) ([]*storage.Memory, error) {
	found, err := s.memories.Search(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("search memories: %w", err)
	}
	if len(found) == 0 {
		return found, nil
	}

	ids := make([]uuid.UUID, len(found))
	for i, m := range found {
		ids[i] = m.ID
	}
	if err := s.memories.Touch(ctx, ids); err != nil {
		return nil, fmt.Errorf("touch memories: %w", err)
	}
	now := s.now().UTC()
	for _, m := range found {
		m.AccessCount++
		m.LastAccessed = now
	}
	return found, nil
}

// StoreConversation persists an exchange.
func (s *Service) StoreConversation(ctx context.Context, ex Exchange) (*storage.Conversation, error) {
	c := &storage.Conversation{
		UserID:           optional(ex.UserID),
		SessionID:        ex.SessionID,
		UserMessage:      ex.Message,
		FernandoResponse: ex.Response,
		Intent:           optional(ex.Intent),
		Entities:         storage.NewJSON(ex.Entities),
		DurationMS:       ex.Duration.Milliseconds(),
	}
	if err := s.conversations.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("store conversation: %w", err)
	}
	return c, nil
}

// ConversationHistory returns the latest exchanges of a session, newest
// first.
func (s *Service) ConversationHistory(ctx context.Context, userID, sessionID string, limit int) ([]*storage.Conversation, error) {
	out, err := s.conversations.History(ctx, userID, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("conversation history: %w", err)
	}
	return out, nil
}

// StoreInsight persists an insight.
func (s *Service) StoreInsight(ctx context.Context, in *storage.Insight) error {
	if err := s.insights.Create(ctx, in); err != nil {
		return fmt.Errorf("store insight: %w", err)
	}
	return nil
}

// RelevantInsights returns currently valid insights sharing a tag.
func (s *Service) RelevantInsights(ctx context.Context, tags []string, limit int) ([]*storage.Insight, error) {
	out, err := s.insights.Relevant(ctx, tags, s.now(), limit)
	if err != nil {
		return nil, fmt.Errorf("relevant insights: %w", err)
	}
	return out, nil
}

var budgetPattern = regexp.MustCompile(`(?i)budget.{0,20}?\$?([\d,]+k?m?)`)

var factNeighborhoods = []string{"heights", "montrose", "river oaks", "memorial", "katy", "woodlands", "cypress"}

var factPropertyTypes = []string{"single family", "townhome", "condo", "land", "commercial", "mixed use"}

// Fact is the content of a preference memory.
type Fact struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// ExtractAndStoreFacts stores budget, location and property type
// preferences mentioned in text.
func (s *Service) ExtractAndStoreFacts(ctx context.Context, userID, sessionID, text string) ([]*storage.Memory, error) {
	var facts []*storage.Memory
	store := func(f Fact, importance float64) error {
		m, err := s.StoreMemory(ctx, StoreRequest{
			UserID:     userID,
			SessionID:  sessionID,
			MemoryType: TypePreference,
			Content:    f,
			Importance: importance,
		})
		if err != nil {
			return err
		}
		facts = append(facts, m)
		return nil
	}

	lower := strings.ToLower(text)
	if m := budgetPattern.FindStringSubmatch(lower); m != nil {
		if err := store(Fact{Type: "budget", Value: m[1]}, 0.8); err != nil {
			return facts, err
		}
	}
	for _, loc := range factNeighborhoods {
		if strings.Contains(lower, loc) {
			if err := store(Fact{Type: "location", Value: loc}, 0.7); err != nil {
				return facts, err
			}
		}
	}
	for _, pt := range factPropertyTypes {
		if strings.Contains(lower, pt) {
			if err := store(Fact{Type: "property_type", Value: pt}, 0.7); err != nil {
				return facts, err
			}
		}
	}

	if len(facts) > 0 {
		s.logger.Debug().Str("session_id", sessionID).Int("facts", len(facts)).Msg("Stored preference facts")
	}
	return facts, nil
}

// TrainingMatch is a training pair scored against a query.
type TrainingMatch struct {
	Question   string  `json:"question"`
	Answer     string  `json:"answer"`
	Category   string  `json:"category,omitempty"`
	Confidence float64 `json:"confidence"`
}

type trainingContent struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
	Category string `json:"category"`
}

// SearchTrainingData scores stored training pairs against query. Each
// keyword in the question scores 2, in the answer 1, and a shared
// what/how/where opener scores 1. Confidence is score/(keywords+2), capped
// at 1; matches at or below 0.3 are dropped. Only the limit*2 most
// important rows containing a keyword are scored.
func (s *Service) SearchTrainingData(ctx context.Context, query string, limit int) ([]TrainingMatch, error) {
	if limit <= 0 {
		limit = 5
	}
	queryLower := strings.ToLower(query)
	keywords := trainingKeywords(queryLower)
	if len(keywords) == 0 {
		return nil, nil
	}

	records, err := s.memories.SearchByContent(ctx, "%training%", keywords, limit*2)
	if err != nil {
		return nil, fmt.Errorf("list training data: %w", err)
	}

	var out []TrainingMatch
	for _, r := range records {
		var c trainingContent
		if err := r.Content.Decode(&c); err != nil || c.Question == "" || c.Answer == "" {
			continue
		}
		q := strings.ToLower(c.Question)
		a := strings.ToLower(c.Answer)

		score := 0
		for _, kw := range keywords {
			if strings.Contains(q, kw) {
				score += 2
			}
			if strings.Contains(a, kw) {
				score++
			}
		}
		for _, opener := range []string{"what", "how", "where"} {
			if strings.Contains(q, opener) && strings.Contains(queryLower, opener) {
				score++
			}
		}

		confidence := min(float64(score)/float64(len(keywords)+2), 1.0)
		if confidence > 0.3 {
			out = append(out, TrainingMatch{Question: c.Question, Answer: c.Answer, Category: c.Category, Confidence: confidence})
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// CleanupOldMemories deletes memories below 0.5 importance that have not
// been accessed for days (default 90).
func (s *Service) CleanupOldMemories(ctx context.Context, days int) (int64, error) {
	if days <= 0 {
		days = defaultRetentionDays
	}
	cutoff := s.now().AddDate(0, 0, -days)
	n, err := s.memories.DeleteStale(ctx, cutoff, staleImportance)
	if err != nil {
		return 0, fmt.Errorf("cleanup memories: %w", err)
	}
	s.logger.Info().Int64("deleted", n).Int("days", days).Msg("Cleaned up old memories")
	return n, nil
}

// Counts returns the number of memories per type.
func (s *Service) Counts(ctx context.Context) (map[string]int, error) {
	return s.memories.CountByType(ctx)
}

func (s *Service) embed(ctx context.Context, text string) storage.JSON {
	if s.embedder == nil || text == "" {
		return storage.JSON("[]")
	}
	v, err := s.embedder.EmbedSingle(ctx, text)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to embed memory, storing without vector")
		return storage.JSON("[]")
	}
	return storage.NewJSON(v)
}

func embeddingText(content interface{}) string {
	switch c := content.(type) {
	case nil:
		return ""
	case string:
		return c
	default:
		b, err := json.Marshal(c)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

func trainingKeywords(q string) []string {
	var out []string
	for _, w := range strings.Fields(q) {
		w = strings.Trim(w, ".,;:!?\"'()")
		if len(w) > 2 {
			out = append(out, w)
		}
	}
	return out
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
