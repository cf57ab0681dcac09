package conversation

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fernando-x/platform/libs/intelligence-engine/internal/embedding"
	"github.com/fernando-x/platform/libs/intelligence-engine/internal/knowledge"
	"github.com/fernando-x/platform/libs/intelligence-engine/internal/memory"
	"github.com/fernando-x/platform/libs/intelligence-engine/internal/observability"
	"github.com/fernando-x/platform/libs/intelligence-engine/internal/search"
	"github.com/fernando-x/platform/libs/intelligence-engine/internal/storage"
)

type fakeMemory struct {
	training  []memory.TrainingMatch
	exchanges []memory.Exchange
	facts     []string
	storeErr  error
}

func (f *fakeMemory) StoreConversation(_ context.Context, ex memory.Exchange) (*storage.Conversation, error) {
	if f.storeErr != nil {
		return nil, f.storeErr
	}
	f.exchanges = append(f.exchanges, ex)
	return &storage.Conversation{SessionID: ex.SessionID}, nil
}

func (f *fakeMemory) ExtractAndStoreFacts(_ context.Context, _, _, text string) ([]*storage.Memory, error) {
	f.facts = append(f.facts, text)
	return nil, nil
}

func (f *fakeMemory) SearchTrainingData(context.Context, string, int) ([]memory.TrainingMatch, error) {
	return f.training, nil
}

func newTestManager(t *testing.T, mem MemoryStore) *Manager {
	t.Helper()
	return NewManager(observability.NewNopLogger(), knowledge.MustNew(), nil, mem)
}

func TestProcessMessageNeighborhood(t *testing.T) {
	m := newTestManager(t, nil)

	reply, err := m.ProcessMessage(context.Background(), "s1", "u1", "Tell me about the Heights neighborhood")
	require.NoError(t, err)
	assert.Equal(t, IntentNeighborhoodInfo, reply.Intent)
	assert.Contains(t, reply.Response, "Heights: median price $817,285")
	assert.Contains(t, reply.Response, "Strengths:")
	assert.Equal(t, "Heights", reply.Entities.Neighborhood)
	assert.NotEmpty(t, reply.Suggestions)
	assert.Contains(t, reply.Suggestions, "Get the Heights market report")

	conv, ok := m.Context("s1")
	require.True(t, ok)
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, RoleUser, conv.Messages[0].Role)
	assert.Equal(t, RoleAssistant, conv.Messages[1].Role)
	assert.Equal(t, []string{"Heights"}, conv.Preferences.Locations)
	assert.Equal(t, IntentNeighborhoodInfo, conv.CurrentTopic)
	assert.Equal(t, "u1", conv.UserID)
}

func TestProcessMessageErrors(t *testing.T) {
	m := newTestManager(t, nil)
	_, err := m.ProcessMessage(context.Background(), "s1", "", "   ")
	assert.ErrorIs(t, err, ErrEmptyMessage)

	reply, err := m.ProcessMessage(context.Background(), "", "", "hi")
	require.NoError(t, err)
	assert.NotEmpty(t, reply.SessionID, "a session id is assigned")
}

func TestPriceRangeWidens(t *testing.T) {
	m := newTestManager(t, nil)
	ctx := context.Background()

	_, err := m.ProcessMessage(ctx, "s1", "", "I can spend $500k")
	require.NoError(t, err)
	_, err = m.ProcessMessage(ctx, "s1", "", "maybe up to $600k")
	require.NoError(t, err)

	conv, _ := m.Context("s1")
	require.NotNil(t, conv.Preferences.PriceRange)
	assert.InDelta(t, 400000, conv.Preferences.PriceRange.Min, 1e-6)
	assert.InDelta(t, 720000, conv.Preferences.PriceRange.Max, 1e-6)
	require.NotNil(t, conv.Entities.Price)
	assert.Equal(t, 600000.0, *conv.Entities.Price)
}

func TestFinancingResponse(t *testing.T) {
	m := newTestManager(t, nil)

	reply, err := m.ProcessMessage(context.Background(), "s1", "", "What's the monthly payment on a $500k home?")
	require.NoError(t, err)
	assert.Equal(t, IntentFinancialCalculation, reply.Intent)
	assert.Contains(t, reply.Response, "$400,000")
	assert.Contains(t, reply.Response, "$2,661 per month")
}

func TestTimingResponse(t *testing.T) {
	m := newTestManager(t, nil)
	m.now = func() time.Time { return time.Date(2024, time.December, 10, 12, 0, 0, 0, time.UTC) }

	reply, err := m.ProcessMessage(context.Background(), "s1", "", "Is now a good time to buy or should I wait?")
	require.NoError(t, err)
	assert.Equal(t, IntentTimingAdvice, reply.Intent)
	assert.Contains(t, reply.Response, "activity index")
	assert.Equal(t, []string{"seasonal-patterns"}, reply.Sources)
}

func TestComparisonResponse(t *testing.T) {
	m := newTestManager(t, nil)

	reply, err := m.ProcessMessage(context.Background(), "s1", "", "Compare Heights vs Montrose")
	require.NoError(t, err)
	assert.Equal(t, IntentComparison, reply.Intent)
	assert.Contains(t, reply.Response, "Side by side")
	assert.Contains(t, reply.Response, "- Heights: median $817,285")
	assert.Contains(t, reply.Response, "- Montrose: median")
}

func TestGeneralResponseUsesSearch(t *testing.T) {
	kb := knowledge.MustNew()
	engine := search.NewEngine(observability.NewNopLogger(), kb, embedding.NewHashEmbedder(embedding.DefaultDimension), nil, search.Config{})
	m := NewManager(observability.NewNopLogger(), kb, engine, nil)

	reply, err := m.ProcessMessage(context.Background(), "s1", "", "Buffalo Bayou East")
	require.NoError(t, err)
	assert.Equal(t, IntentGeneral, reply.Intent)
	assert.Contains(t, reply.Response, "Here's what I found")
	assert.NotEmpty(t, reply.Sources)
}

func TestTrainingAnswerAndMemory(t *testing.T) {
	mem := &fakeMemory{training: []memory.TrainingMatch{{Question: "Q", Answer: "Trained answer", Confidence: 0.9}}}
	m := newTestManager(t, mem)

	reply, err := m.ProcessMessage(context.Background(), "s1", "u1", "What are the market trends?")
	require.NoError(t, err)
	assert.Equal(t, "Trained answer", reply.Response)
	assert.Equal(t, 0.9, reply.Confidence)
	assert.Equal(t, []string{"training"}, reply.Sources)

	require.Len(t, mem.exchanges, 1)
	assert.Equal(t, "Trained answer", mem.exchanges[0].Response)
	assert.Equal(t, string(IntentMarketAnalysis), mem.exchanges[0].Intent)
	assert.Equal(t, []string{"What are the market trends?"}, mem.facts)

	mem.training[0].Confidence = 0.6
	reply, err = m.ProcessMessage(context.Background(), "s1", "u1", "What are the market trends?")
	require.NoError(t, err)
	assert.NotEqual(t, "Trained answer", reply.Response, "answers at 0.6 or below are not used")

	mem.storeErr = errors.New("db down")
	_, err = m.ProcessMessage(context.Background(), "s1", "u1", "hi")
	assert.NoError(t, err, "memory failures do not fail the reply")
}

func TestHistoryIsTrimmed(t *testing.T) {
	m := newTestManager(t, nil)
	ctx := context.Background()

	for i := 0; i < 51; i++ {
		_, err := m.ProcessMessage(ctx, "s1", "", fmt.Sprintf("message %d", i))
		require.NoError(t, err)
	}
	conv, _ := m.Context("s1")
	assert.Len(t, conv.Messages, keepMessages+1)
	assert.Equal(t, "message 50", conv.Messages[len(conv.Messages)-2].Content)
}

func TestResetAndCleanup(t *testing.T) {
	m := newTestManager(t, nil)
	ctx := context.Background()

	_, err := m.ProcessMessage(ctx, "s1", "", "hi")
	require.NoError(t, err)
	_, err = m.ProcessMessage(ctx, "s2", "", "hi")
	require.NoError(t, err)
	assert.Equal(t, 2, m.SessionCount())

	assert.True(t, m.Reset("s1"))
	assert.False(t, m.Reset("s1"))
	_, ok := m.Context("s1")
	assert.False(t, ok)

	m.now = func() time.Time { return time.Now().Add(48 * time.Hour) }
	assert.Equal(t, 1, m.CleanupInactive(24*time.Hour))
	assert.Zero(t, m.SessionCount())
}

func TestAnalyzeAndSummary(t *testing.T) {
	m := newTestManager(t, nil)
	ctx := context.Background()

	for _, msg := range []string{
		"Tell me about the Heights neighborhood",
		"What schools are in the area?",
		"I'm ready to make an offer around $800k",
	} {
		_, err := m.ProcessMessage(ctx, "s1", "", msg)
		require.NoError(t, err)
	}

	a, ok := m.Analyze("s1")
	require.True(t, ok)
	assert.Equal(t, 6, a.MessageCount)
	assert.Equal(t, 2, a.IntentCounts[IntentNeighborhoodInfo])
	assert.Equal(t, IntentNeighborhoodInfo, a.Topics[0])
	assert.Equal(t, "ready", a.DecisionStage)
	assert.Equal(t, "beginner", a.ExperienceLevel)
	assert.Contains(t, a.NextActions, "Get Heights market report")
	assert.Greater(t, a.EngagementScore, 0.3)
	assert.LessOrEqual(t, a.EngagementScore, 1.0)

	summary := m.Summary("s1")
	assert.Contains(t, summary, "Topics discussed: neighborhood_info")
	assert.Contains(t, summary, "Interested in: Heights")
	assert.Contains(t, summary, "Budget: $640,000-$960,000")

	a, ok = m.Analyze("missing")
	assert.False(t, ok)
	assert.Equal(t, "research", a.DecisionStage)
	assert.Equal(t, "No conversation history", m.Summary("missing"))
}

func TestDollars(t *testing.T) {
	assert.Equal(t, "$1,234,567", dollars(1234567.4))
	assert.Equal(t, "$950", dollars(950))
	assert.Equal(t, "-$1,000", dollars(-1000))
	assert.Equal(t, "$1.9B", compactDollars(1.9e9))
	assert.Equal(t, "$310M", compactDollars(3.1e8))
}
