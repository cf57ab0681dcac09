package storage

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "test.db")+"?_foreign_keys=on")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	status, err := NewMigrationManager(db, "sqlite").Migrate(context.Background())
	require.NoError(t, err)
	require.True(t, status.UpToDate)
	return db
}

func strPtr(s string) *string      { return &s }
func floatPtr(f float64) *float64 { return &f }

func TestMigrationsAreIdempotent(t *testing.T) {
	ctx := context.Background()
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "fresh.db")+"?_foreign_keys=on")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	first, err := NewMigrationManager(db, "sqlite").Migrate(ctx)
	require.NoError(t, err)
	assert.True(t, first.UpToDate)
	assert.Empty(t, first.Pending)
	require.NotEmpty(t, first.Ran)
	assert.Equal(t, first.Applied, first.Ran)

	again, err := NewMigrationManager(db, "sqlite").Migrate(ctx)
	require.NoError(t, err)
	assert.True(t, again.UpToDate)
	assert.Empty(t, again.Ran)
	assert.Len(t, again.Applied, again.Total)
}

func TestMarketIntelligenceRepository(t *testing.T) {
	ctx := context.Background()
	repos := NewRepositories(openTestDB(t))

	older := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2024, 10, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, repos.Market.Create(ctx, &MarketIntelligence{
		DataType:     DataTypeMicroMarket,
		Neighborhood: strPtr("Heights"),
		SchoolRating: floatPtr(8.5),
		DataDate:     &older,
		Metadata:     NewJSON(map[string]string{"source": "test"}),
	}))
	require.NoError(t, repos.Market.Create(ctx, &MarketIntelligence{
		DataType:     DataTypeMicroMarket,
		Neighborhood: strPtr("Montrose"),
		DataDate:     &newer,
	}))
	require.NoError(t, repos.Market.Create(ctx, &MarketIntelligence{
		DataType:     DataTypeRental,
		Neighborhood: strPtr("heights"),
		NumericValue: floatPtr(1850),
		DataDate:     &newer,
	}))

	latest, err := repos.Market.LatestByType(ctx, DataTypeMicroMarket, 10)
	require.NoError(t, err)
	require.Len(t, latest, 2)
	assert.Equal(t, "Montrose", *latest[0].Neighborhood)
	assert.InDelta(t, 8.5, *latest[1].SchoolRating, 1e-9)

	var meta map[string]string
	require.NoError(t, latest[1].Metadata.Decode(&meta))
	assert.Equal(t, "test", meta["source"])

	byArea, err := repos.Market.ListByNeighborhood(ctx, "HEIGHTS", 10)
	require.NoError(t, err)
	assert.Len(t, byArea, 2)

	counts, err := repos.Market.CountByType(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{DataTypeMicroMarket: 2, DataTypeRental: 1}, counts)

	view, err := repos.MarketView.Query(ctx, MarketViewQuery{Neighborhoods: []string{"Heights"}})
	require.NoError(t, err)
	assert.Equal(t, 2, view.TotalCount)
	assert.True(t, view.CacheHint.Cacheable)
	assert.Equal(t, 2*time.Minute, view.CacheHint.TTL)
	assert.Contains(t, view.CacheHint.Key, "areas:heights")

	hits, err := repos.MarketView.SearchByKeyword(ctx, "mont", 10)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestConstructionRepository(t *testing.T) {
	ctx := context.Background()
	repos := NewRepositories(openTestDB(t))

	start := time.Now().Add(-time.Minute)
	require.NoError(t, repos.Construction.Create(ctx, &ConstructionActivity{
		PermitNumber: "INFRA-1",
		PermitType:   "infrastructure",
		Address:      "Harris County, TX",
		ZipCode:      "77001",
		ProjectName:  strPtr("Ship Channel Expansion"),
		PermitDate:   time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		Status:       "active",
	}))

	exists, err := repos.Construction.ExistsByProjectName(ctx, "Ship Channel Expansion")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = repos.Construction.ExistsByProjectName(ctx, "Unknown Tower")
	require.NoError(t, err)
	assert.False(t, exists)

	n, err := repos.Construction.CountSince(ctx, start)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	recent, err := repos.Construction.ListRecent(ctx, 5)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "INFRA-1", recent[0].PermitNumber)
}

func TestHarMlsRepositoryUpsertAndStatus(t *testing.T) {
	ctx := context.Background()
	repos := NewRepositories(openTestDB(t))

	id, err := repos.HarMls.UpsertReport(ctx, &HarMlsReport{Month: 1, Year: 2025, ReportType: "monthly", TotalSales: 5000})
	require.NoError(t, err)

	again, err := repos.HarMls.UpsertReport(ctx, &HarMlsReport{Month: 1, Year: 2025, ReportType: "monthly", TotalSales: 5200, AvgSalePrice: 410000})
	require.NoError(t, err)
	assert.Equal(t, id, again, "upsert keeps the original row id")

	rep, err := repos.HarMls.GetReport(ctx, 1, 2025, "monthly")
	require.NoError(t, err)
	assert.Equal(t, 5200, rep.TotalSales)

	defID, err := repos.HarMls.EnsureDefaultReport(ctx, 1, 2025, "monthly", NewJSON(map[string]string{"note": "default"}))
	require.NoError(t, err)
	assert.Equal(t, id, defID)
	rep, err = repos.HarMls.GetReport(ctx, 1, 2025, "monthly")
	require.NoError(t, err)
	assert.Equal(t, 5200, rep.TotalSales, "default report must not clobber figures")

	_, err = repos.HarMls.GetReport(ctx, 2, 2025, "monthly")
	assert.ErrorIs(t, err, ErrNotFound)

	febID, err := repos.HarMls.EnsureDefaultReport(ctx, 2, 2025, "monthly", nil)
	require.NoError(t, err)

	for _, row := range []struct {
		report uuid.UUID
		name   string
		median float64
	}{
		{id, "Heights", 500000},
		{febID, "Heights", 540000},
		{febID, "Katy", 350000},
	} {
		require.NoError(t, repos.HarMls.CreateNeighborhood(ctx, &HarNeighborhoodData{
			ReportID: row.report, Neighborhood: row.name, MedianSalePrice: row.median,
		}))
	}

	status, err := repos.HarMls.ImportStatus(ctx, 2025)
	require.NoError(t, err)
	require.Len(t, status, 2)
	assert.Equal(t, 1, status[0].Month)
	assert.Equal(t, 1, status[0].NeighborhoodCount)
	assert.Equal(t, 2, status[1].NeighborhoodCount)

	series, err := repos.HarMls.NeighborhoodSeries(ctx, "heights", 10)
	require.NoError(t, err)
	require.Len(t, series, 2)
	assert.Equal(t, 2, series[0].Month)
	assert.InDelta(t, 540000, series[0].MedianSalePrice, 1e-9)

	points, err := repos.HarMls.NeighborhoodPoints(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, points, 3)

	reports, err := repos.HarMls.LatestReports(ctx, 1)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, 2, reports[0].Month)
}

func TestMemorySearchByContent(t *testing.T) {
	ctx := context.Background()
	repos := NewRepositories(openTestDB(t))

	seed := []struct {
		memoryType string
		question   string
		importance float64
	}{
		{"training_qa_v3_complete", "What are the market trends in Houston?", 9},
		{"training_qa_v3_complete", "How does FLOODING affect prices?", 8},
		{"training_qa_v3_complete", "Is 100% financing possible?", 7},
		{"training_qa_v3_complete", "Where should I invest?", 6},
		{"training_qa_v3_complete", "Which MARKET has the best schools?", 5},
		{"question_variation_v3", "Houston market outlook", 9},
	}
	for _, s := range seed {
		require.NoError(t, repos.Memories.Create(ctx, &Memory{
			MemoryType: s.memoryType,
			Content:    NewJSON(map[string]string{"question": s.question}),
			Importance: s.importance,
		}))
	}

	tests := []struct {
		name     string
		keywords []string
		limit    int
		want     []float64
	}{
		{"single keyword ignores case", []string{"market"}, 10, []float64{9, 5}},
		{"any keyword matches", []string{"flooding", "invest"}, 10, []float64{8, 6}},
		{"limit keeps most important", []string{"the", "market", "flooding"}, 2, []float64{9, 8}},
		{"wildcards are literal", []string{"100%"}, 10, []float64{7}},
		{"underscore is literal", []string{"mark_t"}, 10, nil},
		{"no match", []string{"zoning"}, 10, nil},
		{"no keywords", nil, 10, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			found, err := repos.Memories.SearchByContent(ctx, "%training%", tt.keywords, tt.limit)
			require.NoError(t, err)
			var got []float64
			for _, m := range found {
				assert.Equal(t, "training_qa_v3_complete", m.MemoryType)
				got = append(got, m.Importance)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMemoryRepository(t *testing.T) {
	ctx := context.Background()
	repos := NewRepositories(openTestDB(t))

	stale := time.Now().Add(-100 * 24 * time.Hour)
	require.NoError(t, repos.Memories.Create(ctx, &Memory{
		UserID: strPtr("u1"), MemoryType: "fact", Content: NewJSON("budget 500k"), Importance: 0.8,
	}))
	require.NoError(t, repos.Memories.Create(ctx, &Memory{
		UserID: strPtr("u1"), MemoryType: "fact", Content: NewJSON("likes heights"), Importance: 0.3,
		LastAccessed: stale,
	}))
	require.NoError(t, repos.Memories.Create(ctx, &Memory{
		MemoryType: "training_qa_v3_complete", Content: NewJSON(map[string]string{"question": "Flood zones"}), Importance: 1,
	}))

	min := 0.5
	found, err := repos.Memories.Search(ctx, MemoryFilter{UserID: "u1", MinImportance: &min})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.InDelta(t, 0.8, found[0].Importance, 1e-9)

	require.NoError(t, repos.Memories.Touch(ctx, []uuid.UUID{found[0].ID}))
	found, err = repos.Memories.Search(ctx, MemoryFilter{UserID: "u1", MinImportance: &min})
	require.NoError(t, err)
	assert.Equal(t, 1, found[0].AccessCount)

	training, err := repos.Memories.SearchByContent(ctx, "%training%", []string{"flood"}, 5)
	require.NoError(t, err)
	assert.Len(t, training, 1)

	removed, err := repos.Memories.DeleteStale(ctx, time.Now().Add(-90*24*time.Hour), 0.5)
	require.NoError(t, err)
	assert.EqualValues(t, 1, removed)

	counts, err := repos.Memories.CountByType(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts["fact"])
}

func TestConversationAndInsightRepositories(t *testing.T) {
	ctx := context.Background()
	repos := NewRepositories(openTestDB(t))

	for _, msg := range []string{"hi", "what about heights"} {
		require.NoError(t, repos.Conversations.Create(ctx, &Conversation{
			UserID: strPtr("u1"), SessionID: "s1", UserMessage: msg, FernandoResponse: "ok",
		}))
		time.Sleep(2 * time.Millisecond)
	}
	history, err := repos.Conversations.History(ctx, "", "s1", 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "what about heights", history[0].UserMessage)

	past := time.Now().Add(-time.Hour)
	require.NoError(t, repos.Insights.Create(ctx, &Insight{
		InsightType: "market", Content: "Heights prices rising", Confidence: 0.6, Tags: []string{"heights", "price"},
	}))
	require.NoError(t, repos.Insights.Create(ctx, &Insight{
		InsightType: "market", Content: "Heights inventory tight", Confidence: 0.9, Tags: []string{"Heights"},
	}))
	require.NoError(t, repos.Insights.Create(ctx, &Insight{
		InsightType: "market", Content: "expired", Confidence: 1, Tags: []string{"heights"},
		ValidFrom: past.Add(-time.Hour), ValidUntil: &past,
	}))

	relevant, err := repos.Insights.Relevant(ctx, []string{"heights"}, time.Now(), 0)
	require.NoError(t, err)
	require.Len(t, relevant, 2)
	assert.Equal(t, "Heights inventory tight", relevant[0].Content)
}

func TestRefreshSourceRepository(t *testing.T) {
	ctx := context.Background()
	repos := NewRepositories(openTestDB(t))

	require.NoError(t, repos.Refresh.Seed(ctx, &RefreshSource{Source: "csv_imports", Frequency: FrequencyMonthly, Enabled: true}))
	require.NoError(t, repos.Refresh.Seed(ctx, &RefreshSource{Source: "csv_imports", Frequency: FrequencyDaily, Enabled: false}))

	src, err := repos.Refresh.Get(ctx, "csv_imports")
	require.NoError(t, err)
	assert.Equal(t, FrequencyMonthly, src.Frequency)
	assert.True(t, src.Enabled)
	assert.Nil(t, src.LastRun)

	now := time.Now()
	require.NoError(t, repos.Refresh.MarkRun(ctx, "csv_imports", now, "success"))
	src, err = repos.Refresh.Get(ctx, "csv_imports")
	require.NoError(t, err)
	require.NotNil(t, src.LastRun)
	assert.WithinDuration(t, now, *src.LastRun, time.Second)
	assert.Equal(t, "success", *src.LastStatus)

	assert.ErrorIs(t, repos.Refresh.MarkRun(ctx, "nope", now, "x"), ErrNotFound)

	require.NoError(t, repos.Refresh.Upsert(ctx, &RefreshSource{Source: "csv_imports", Frequency: FrequencyWeekly, Enabled: false}))
	all, err := repos.Refresh.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, FrequencyWeekly, all[0].Frequency)
	assert.False(t, all[0].Enabled)
}
