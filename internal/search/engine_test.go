package search

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fernando-x/platform/libs/intelligence-engine/internal/cache"
	"github.com/fernando-x/platform/libs/intelligence-engine/internal/embedding"
	"github.com/fernando-x/platform/libs/intelligence-engine/internal/knowledge"
	"github.com/fernando-x/platform/libs/intelligence-engine/internal/observability"
)

func newTestEngine(t *testing.T) (*Engine, *cache.MemoryClient) {
	t.Helper()
	mc := cache.NewMemoryClient(100)
	t.Cleanup(func() { _ = mc.Close() })
	e := NewEngine(observability.NewNopLogger(), knowledge.MustNew(), embedding.NewHashEmbedder(embedding.DefaultDimension), mc, Config{})
	return e, mc
}

func TestSearchRanksTitleMatchFirst(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	results, err := e.Search(ctx, "Heights market", Options{})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "market-heights", results[0].Node.ID)

	seen := map[string]bool{}
	for i, r := range results {
		assert.GreaterOrEqual(t, r.Score, 0.3)
		assert.False(t, seen[r.Node.ID], "nodes are grouped")
		seen[r.Node.ID] = true
		if i > 0 {
			assert.GreaterOrEqual(t, results[i-1].Score, r.Score)
		}
	}
}

func TestSearchOptions(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	t.Run("type filter", func(t *testing.T) {
		results, err := e.Search(ctx, "Heights flood risk", Options{Types: []string{"environmental"}})
		require.NoError(t, err)
		require.NotEmpty(t, results)
		assert.Equal(t, "flood-heights", results[0].Node.ID)
		for _, r := range results {
			assert.Equal(t, knowledge.NodeEnvironmental, r.Node.Type)
		}
	})

	t.Run("limit", func(t *testing.T) {
		results, err := e.Search(ctx, "market intelligence", Options{Limit: 2})
		require.NoError(t, err)
		assert.LessOrEqual(t, len(results), 2)
	})

	t.Run("context", func(t *testing.T) {
		results, err := e.Search(ctx, "Heights market", Options{Limit: 1, IncludeContext: true})
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.True(t, strings.HasPrefix(results[0].Context, "Market perspective"))
		assert.NotEmpty(t, results[0].Related)
	})

	t.Run("blank query", func(t *testing.T) {
		results, err := e.Search(ctx, "  ", Options{})
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("high threshold", func(t *testing.T) {
		results, err := e.Search(ctx, "zzqx unrelated gibberish", Options{MinSimilarity: 0.99})
		require.NoError(t, err)
		assert.Empty(t, results)
	})
}

func TestSearchUsesCache(t *testing.T) {
	e, mc := newTestEngine(t)
	ctx := context.Background()

	_, err := e.Search(ctx, "Heights market", Options{})
	require.NoError(t, err)
	_, err = e.Search(ctx, "heights market ", Options{})
	require.NoError(t, err)

	stats := e.Stats()
	assert.Equal(t, int64(1), stats.Cache.Hits)
	assert.Equal(t, int64(1), stats.Cache.Stored)
	assert.Equal(t, 1, mc.Len())

	require.NoError(t, e.Clear(ctx))
	assert.Equal(t, 0, mc.Len())
	assert.Equal(t, 0, e.Stats().Documents)
}

func TestKeywordSearch(t *testing.T) {
	e, _ := newTestEngine(t)

	results := e.KeywordSearch("Montrose", 3)
	require.NotEmpty(t, results)
	assert.Equal(t, "market-montrose", results[0].Node.ID)
	assert.Equal(t, 17.0, results[0].Score)
	assert.NotEmpty(t, results[0].Highlights)
}

func TestHybridSearch(t *testing.T) {
	e, _ := newTestEngine(t)

	results, err := e.HybridSearch(context.Background(), "Montrose market", Options{Limit: 5})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "market-montrose", results[0].Node.ID)
	assert.LessOrEqual(t, len(results), 5)
	// both halves contribute to the top node
	assert.Greater(t, results[0].Score, keywordWeight)

	seen := map[string]bool{}
	for _, r := range results {
		assert.False(t, seen[r.Node.ID])
		seen[r.Node.ID] = true
	}
}

func TestFindSimilar(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	results, err := e.FindSimilar(ctx, "market-heights", 3)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	for _, r := range results {
		assert.NotEqual(t, "market-heights", r.Node.ID)
	}
	// titles sharing the neighborhood name outrank other market titles
	assert.Contains(t, results[0].Node.Title, "Heights")

	_, err = e.FindSimilar(ctx, "missing", 3)
	assert.ErrorIs(t, err, ErrNodeNotFound)
}

func TestStatsAfterIndexing(t *testing.T) {
	e, _ := newTestEngine(t)
	kb := knowledge.MustNew()

	n, err := e.IndexAll(context.Background(), kb.Nodes())
	require.NoError(t, err)
	assert.Equal(t, len(kb.Nodes()), n)

	stats := e.Stats()
	assert.Equal(t, len(kb.Nodes()), stats.Nodes)
	assert.Greater(t, stats.Documents, stats.Nodes)
	assert.Equal(t, embedding.DefaultDimension, stats.Dimension)
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"", ModeSemantic, false},
		{"Keyword", ModeKeyword, false},
		{"hybrid", ModeHybrid, false},
		{"fuzzy", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMode(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
