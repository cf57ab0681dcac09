package integration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fernando-x/platform/libs/intelligence-engine/internal/app"
	"github.com/fernando-x/platform/libs/intelligence-engine/internal/memory"
	"github.com/fernando-x/platform/libs/intelligence-engine/internal/observability"
	"github.com/fernando-x/platform/libs/intelligence-engine/internal/refresh"
	"github.com/fernando-x/platform/libs/intelligence-engine/internal/storage"
)

func strPtr(s string) *string { return &s }

func TestPostgresStorage(t *testing.T) {
	requireDocker(t)

	setup := SetupTestContainers(t)
	defer setup.Cleanup()

	a := setup.NewApp(t)
	ctx := context.Background()

	t.Run("migrations are idempotent", func(t *testing.T) {
		again, err := app.New(setup.Config(), observability.NewNopLogger(), app.Options{})
		require.NoError(t, err)
		defer again.Close()

		status, err := again.Migrate(ctx)
		require.NoError(t, err)
		assert.True(t, status.UpToDate)
		assert.Empty(t, status.Ran)
		assert.Len(t, status.Applied, status.Total)
		assert.Greater(t, status.Total, 0)
	})

	t.Run("refresh sources are seeded", func(t *testing.T) {
		sources, err := a.Refresh.Sources(ctx)
		require.NoError(t, err)
		require.Len(t, sources, len(refresh.DefaultSources))

		names := make([]string, 0, len(sources))
		for _, s := range sources {
			names = append(names, s.Source)
			assert.True(t, s.Due, "new source %s should be due", s.Source)
		}
		assert.Contains(t, names, refresh.SourceMarketTrends)
	})

	t.Run("market view filters and hints", func(t *testing.T) {
		rows := []*storage.MarketIntelligence{
			{DataType: "market_trends", Neighborhood: strPtr("Heights"), ZipCode: strPtr("77008"), MetricName: strPtr("median_price"), NumericValue: floatPtr(485000), Category: strPtr("pricing")},
			{DataType: "market_trends", Neighborhood: strPtr("Montrose"), ZipCode: strPtr("77006"), MetricName: strPtr("median_price"), NumericValue: floatPtr(520000), Category: strPtr("pricing")},
			{DataType: "rental_market", Neighborhood: strPtr("Heights"), MetricName: strPtr("occupancy_rate"), NumericValue: floatPtr(94.5), Category: strPtr("rental")},
		}
		for _, r := range rows {
			require.NoError(t, a.Repos.Market.Create(ctx, r))
		}

		res, err := a.Repos.MarketView.Query(ctx, storage.MarketViewQuery{
			DataTypes:     []string{"market_trends"},
			Neighborhoods: []string{"Heights"},
			Limit:         10,
		})
		require.NoError(t, err)
		require.Len(t, res.Rows, 1)
		assert.Equal(t, 1, res.TotalCount)
		assert.Equal(t, "Heights", *res.Rows[0].Neighborhood)
		assert.True(t, res.CacheHint.Cacheable)
		assert.NotEmpty(t, res.CacheHint.Key)

		types, err := a.Repos.MarketView.DataTypes(ctx)
		require.NoError(t, err)
		assert.Subset(t, types, []string{"market_trends", "rental_market"})

		found, err := a.Repos.MarketView.SearchByKeyword(ctx, "occupancy", 5)
		require.NoError(t, err)
		require.NotEmpty(t, found)
		assert.Equal(t, "rental_market", found[0].DataType)
	})

	t.Run("training data round trip", func(t *testing.T) {
		pairs, err := memory.LoadTrainingPairs("")
		require.NoError(t, err)
		require.NotEmpty(t, pairs)

		stored, err := a.Memory.SeedTraining(ctx, pairs, nil)
		require.NoError(t, err)
		assert.Equal(t, len(pairs), stored)

		matches, err := a.Memory.SearchTrainingData(ctx, "Houston market trends", 3)
		require.NoError(t, err)
		require.NotEmpty(t, matches)
		assert.NotEmpty(t, matches[0].Answer)
	})

	t.Run("redis cache round trip", func(t *testing.T) {
		require.NoError(t, a.Cache.Set(ctx, "integration:key", []byte("value"), time.Minute))
		got, err := a.Cache.Get(ctx, "integration:key")
		require.NoError(t, err)
		assert.Equal(t, []byte("value"), got)
	})
}

func floatPtr(f float64) *float64 { return &f }
