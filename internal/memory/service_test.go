package memory

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fernando-x/platform/libs/intelligence-engine/internal/embedding"
	"github.com/fernando-x/platform/libs/intelligence-engine/internal/observability"
	"github.com/fernando-x/platform/libs/intelligence-engine/internal/storage"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "memory.db"))
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	_, err = storage.NewMigrationManager(db, "sqlite").Migrate(context.Background())
	require.NoError(t, err)
	return NewService(observability.NewNopLogger(), storage.NewRepositories(db), embedding.NewHashEmbedder(embedding.DefaultDimension))
}

func TestStoreMemory(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	m, err := s.StoreMemory(ctx, StoreRequest{UserID: "u1", MemoryType: "note", Content: "likes bungalows"})
	require.NoError(t, err)
	assert.Equal(t, 0.5, m.Importance)
	assert.Nil(t, m.SessionID)

	var vec []float32
	require.NoError(t, m.Embedding.Decode(&vec))
	assert.Len(t, vec, embedding.DefaultDimension)

	_, err = s.StoreMemory(ctx, StoreRequest{Content: "x"})
	assert.Error(t, err)
}

func TestSearchMemories(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	for _, imp := range []float64{0.2, 0.9, 0.5} {
		_, err := s.StoreMemory(ctx, StoreRequest{UserID: "u1", SessionID: "s1", MemoryType: "note", Content: map[string]float64{"imp": imp}, Importance: imp})
		require.NoError(t, err)
	}
	_, err := s.StoreMemory(ctx, StoreRequest{UserID: "u2", MemoryType: "note", Content: "other user"})
	require.NoError(t, err)

	found, err := s.SearchMemories(ctx, storage.MemoryFilter{UserID: "u1"})
	require.NoError(t, err)
	require.Len(t, found, 3)
	assert.Equal(t, []float64{0.9, 0.5, 0.2}, []float64{found[0].Importance, found[1].Importance, found[2].Importance})
	for _, m := range found {
		assert.Equal(t, 1, m.AccessCount)
	}

	again, err := s.SearchMemories(ctx, storage.MemoryFilter{UserID: "u1", Limit: 1})
	require.NoError(t, err)
	require.Len(t, again, 1)
	assert.Equal(t, 2, again[0].AccessCount, "access is recorded on every search")

	minImp := 0.5
	found, err = s.SearchMemories(ctx, storage.MemoryFilter{SessionID: "s1", MinImportance: &minImp})
	require.NoError(t, err)
	assert.Len(t, found, 2)

	found, err = s.SearchMemories(ctx, storage.MemoryFilter{MemoryType: "missing"})
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestConversationHistory(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	for _, msg := range []string{"first", "second"} {
		_, err := s.StoreConversation(ctx, Exchange{
			UserID:    "u1",
			SessionID: "s1",
			Message:   msg,
			Response:  "reply to " + msg,
			Intent:    "greeting",
			Entities:  map[string]string{"k": "v"},
			Duration:  25 * time.Millisecond,
		})
		require.NoError(t, err)
		time.Sleep(2 * time.Millisecond)
	}

	history, err := s.ConversationHistory(ctx, "", "s1", 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "second", history[0].UserMessage)
	assert.Equal(t, int64(25), history[0].DurationMS)
	require.NotNil(t, history[0].Intent)
	assert.Equal(t, "greeting", *history[0].Intent)

	history, err = s.ConversationHistory(ctx, "u2", "s1", 10)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestRelevantInsights(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	past := time.Now().Add(-time.Hour)

	insights := []*storage.Insight{
		{InsightType: "market", Content: "low confidence", Confidence: 0.4, Tags: []string{"heights"}},
		{InsightType: "market", Content: "high confidence", Confidence: 0.9, Tags: []string{"Heights", "prices"}},
		{InsightType: "market", Content: "expired", Confidence: 0.95, Tags: []string{"heights"}, ValidUntil: &past},
		{InsightType: "market", Content: "other tag", Confidence: 0.8, Tags: []string{"katy"}},
	}
	for _, in := range insights {
		require.NoError(t, s.StoreInsight(ctx, in))
	}

	got, err := s.RelevantInsights(ctx, []string{"heights"}, 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "high confidence", got[0].Content)
	assert.Equal(t, "low confidence", got[1].Content)
}

func TestExtractAndStoreFacts(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	facts, err := s.ExtractAndStoreFacts(ctx, "u1", "s1", "My budget is about $500k for a townhome in the Heights or Montrose")
	require.NoError(t, err)
	require.Len(t, facts, 4)

	var got []Fact
	for _, m := range facts {
		var f Fact
		require.NoError(t, m.Content.Decode(&f))
		got = append(got, f)
		assert.Equal(t, TypePreference, m.MemoryType)
	}
	assert.Equal(t, Fact{Type: "budget", Value: "500k"}, got[0])
	assert.Equal(t, 0.8, facts[0].Importance)
	assert.Contains(t, got, Fact{Type: "location", Value: "heights"})
	assert.Contains(t, got, Fact{Type: "location", Value: "montrose"})
	assert.Contains(t, got, Fact{Type: "property_type", Value: "townhome"})

	facts, err = s.ExtractAndStoreFacts(ctx, "u1", "s1", "hello there")
	require.NoError(t, err)
	assert.Empty(t, facts)
}

func TestSeedAndSearchTrainingData(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	pairs, err := LoadTrainingPairs("")
	require.NoError(t, err)
	require.Len(t, pairs, 7)

	var calls int
	stored, err := s.SeedTraining(ctx, pairs, func(done, total int) {
		calls++
		assert.Equal(t, len(pairs), total)
	})
	require.NoError(t, err)
	assert.Equal(t, 7, stored)
	assert.Equal(t, 7, calls)

	counts, err := s.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 7, counts[TypeTrainingQA])
	assert.Equal(t, 13, counts[TypeQuestionVariation])

	matches, err := s.SearchTrainingData(ctx, "What are the market trends in Houston?", 5)
	require.NoError(t, err)
	require.NotEmpty(t, matches)
	assert.LessOrEqual(t, len(matches), 5)

	var questions []string
	for i, m := range matches {
		questions = append(questions, m.Question)
		assert.Greater(t, m.Confidence, 0.3)
		assert.LessOrEqual(t, m.Confidence, 1.0)
		if i > 0 {
			assert.GreaterOrEqual(t, matches[i-1].Confidence, m.Confidence)
		}
	}
	assert.Contains(t, questions, "What are the current market trends in Houston?")
	assert.Equal(t, 1.0, matches[0].Confidence)

	matches, err = s.SearchTrainingData(ctx, "zz qq", 5)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestLoadTrainingPairsFromFile(t *testing.T) {
	dir := t.TempDir()

	good := filepath.Join(dir, "good.yaml")
	require.NoError(t, os.WriteFile(good, []byte("pairs:\n  - question: Q?\n    answer: A.\n    importance: 5\n"), 0o644))
	pairs, err := LoadTrainingPairs(good)
	require.NoError(t, err)
	require.Len(t, pairs, 1)
	assert.Equal(t, 5.0, pairs[0].Importance)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("pairs:\n  - question: Q?\n"), 0o644))
	_, err = LoadTrainingPairs(bad)
	assert.Error(t, err)

	_, err = LoadTrainingPairs(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestCleanupOldMemories(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	_, err := s.StoreMemory(ctx, StoreRequest{MemoryType: "note", Content: "minor", Importance: 0.2})
	require.NoError(t, err)
	_, err = s.StoreMemory(ctx, StoreRequest{MemoryType: "note", Content: "major", Importance: 0.9})
	require.NoError(t, err)

	n, err := s.CleanupOldMemories(ctx, 0)
	require.NoError(t, err)
	assert.Zero(t, n, "recent memories are kept")

	s.now = func() time.Time { return time.Now().AddDate(0, 0, 100) }
	n, err = s.CleanupOldMemories(ctx, 90)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	counts, err := s.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts["note"])
}
