package vision

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fernando-x/platform/libs/intelligence-engine/internal/cache"
	"github.com/fernando-x/platform/libs/intelligence-engine/internal/observability"
)

type fakeAgent struct {
	calls  int
	result *PropertyAnalysis
	err    error
}

func (f *fakeAgent) AnalyzeProperty(_ context.Context, url string) (*PropertyAnalysis, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	r := *f.result
	r.ImageURL = url
	return &r, nil
}

func TestAnalyzePhotoReference(t *testing.T) {
	tests := []struct {
		url        string
		feature    string
		minimum    float64
		maximum    float64
		issues     int
		breakdowns int
		roomType   string
	}{
		{"https://cdn.example.com/p/front-exterior.jpg", "Brick exterior", 700, 3000, 2, 5, ""},
		{"https://cdn.example.com/p/kitchen-1.jpg", "Granite countertops", 2500, 8000, 1, 5, "kitchen"},
		{"https://cdn.example.com/p/master-bath.jpg", "Double vanity", 500, 2000, 2, 5, "bathroom"},
		{"https://cdn.example.com/p/living.jpg", "Hardwood floors", 500, 2000, 0, 4, "living area"},
	}
	a := NewAnalyzer(observability.NewNopLogger(), nil, nil)
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			got, err := a.AnalyzePhoto(context.Background(), tt.url, PhotoContext{})
			require.NoError(t, err)
			assert.Equal(t, tt.feature, got.Features[0].Name)
			assert.Equal(t, tt.minimum, got.RenovationEstimate.Minimum)
			assert.Equal(t, tt.maximum, got.RenovationEstimate.Maximum)
			assert.Len(t, got.Issues, tt.issues)
			assert.Len(t, got.RenovationEstimate.Breakdown, tt.breakdowns)
			assert.Equal(t, 7.5, got.Condition.Score)
			assert.Equal(t, "single-family", got.PropertyType.Type)
			assert.Equal(t, SourceReference, got.Source)
			if tt.roomType != "" {
				require.Len(t, got.Rooms, 1)
				assert.Equal(t, tt.roomType, got.Rooms[0].Type)
			}
		})
	}
}

func TestAnalyzePhotoCachesByFileName(t *testing.T) {
	mc := cache.NewMemoryClient(100)
	agent := &fakeAgent{result: &PropertyAnalysis{ConditionScore: 8, Features: []string{"Pool", "Garage"}, RenovationEstimate: 15000}}
	a := NewAnalyzer(observability.NewNopLogger(), agent, mc)
	ctx := context.Background()

	first, err := a.AnalyzePhoto(ctx, "https://cdn.example.com/a/pool.jpg", PhotoContext{PropertyType: "townhome"})
	require.NoError(t, err)
	assert.Equal(t, SourceReplicate, first.Source)
	assert.Equal(t, "good", first.Condition.Overall)
	assert.Equal(t, "townhome", first.PropertyType.Type)
	assert.Equal(t, 11250.0, first.RenovationEstimate.Minimum)
	assert.Equal(t, 18750.0, first.RenovationEstimate.Maximum)
	assert.Equal(t, []string{"Pool", "Garage"}, first.MarketAppeal.Strengths)

	second, err := a.AnalyzePhoto(ctx, "https://other-host/b/pool.jpg", PhotoContext{})
	require.NoError(t, err)
	assert.Equal(t, 1, agent.calls, "same file name is served from cache")
	assert.Equal(t, first.Features, second.Features)

	stats := a.CacheStats()
	assert.Equal(t, 1, stats.Size)
	assert.Equal(t, []string{"vision_pool.jpg"}, stats.Entries)

	require.NoError(t, a.ClearCache(ctx))
	assert.Zero(t, a.CacheStats().Size)
	assert.Zero(t, mc.Len())
}

func TestAnalyzePhotoFallsBackOnAgentError(t *testing.T) {
	mc := cache.NewMemoryClient(100)
	agent := &fakeAgent{err: errors.New("replicate down")}
	a := NewAnalyzer(observability.NewNopLogger(), agent, mc)

	got, err := a.AnalyzePhoto(context.Background(), "https://cdn.example.com/kitchen.jpg", PhotoContext{})
	require.NoError(t, err)
	assert.Equal(t, SourceReference, got.Source)
	assert.Equal(t, "Granite countertops", got.Features[0].Name)
	assert.Zero(t, a.CacheStats().Size, "fallback results are not cached")
}

func TestAnalyzePropertyPhotosReference(t *testing.T) {
	a := NewAnalyzer(observability.NewNopLogger(), nil, nil)

	got, err := a.AnalyzePropertyPhotos(context.Background(), PhotoSet{
		PropertyID: "prop-1",
		Photos: []Photo{
			{URL: "https://cdn/p/front-exterior.jpg", Type: "exterior"},
			{URL: "https://cdn/p/kitchen.jpg", Type: "interior"},
			{URL: "https://cdn/p/bath.jpg", Type: "interior"},
			{URL: "https://cdn/p/living.jpg", Type: "interior"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "prop-1", got.PropertyID)
	assert.Equal(t, "good", got.OverallCondition)
	assert.Equal(t, 7.5, got.ConditionScore)
	assert.Equal(t, "single-family", got.PropertyType)
	assert.Equal(t, CostRange{Min: 4200, Max: 15000}, got.EstimatedRenovationCost)
	assert.Equal(t, 7.0, got.MarketAppealScore)
	assert.Equal(t, "good", got.InvestmentPotential)
	require.Len(t, got.KeyFeatures, 10)
	assert.Equal(t, "Brick exterior", got.KeyFeatures[0])
	assert.Empty(t, got.MajorIssues)
	assert.Empty(t, got.RenovationNeeded)
	assert.Equal(t, []string{
		"Address minor repairs before listing for best results",
		"Consider strategic updates to maximize value",
		"Highlight premium features in marketing materials",
		"Compare with recent sales in neighborhood for pricing",
		"Consider seasonal market timing for listing",
	}, got.Recommendations)
	assert.Len(t, got.Photos, 4)
}

func TestAnalyzePropertyPhotosWithMajorIssues(t *testing.T) {
	agent := &fakeAgent{result: &PropertyAnalysis{
		ConditionScore:     3,
		Issues:             []string{"Foundation crack with water damage", "Peeling paint on trim"},
		RenovationEstimate: 50000,
	}}
	a := NewAnalyzer(observability.NewNopLogger(), agent, nil)

	got, err := a.AnalyzePropertyPhotos(context.Background(), PhotoSet{
		PropertyID: "prop-2",
		Photos:     []Photo{{URL: "https://cdn/q/1.jpg"}, {URL: "https://cdn/q/2.jpg"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "poor", got.OverallCondition)
	assert.Equal(t, "poor", got.InvestmentPotential)
	assert.Equal(t, []string{"Foundation crack with water damage"}, got.MajorIssues)
	assert.Equal(t, []string{"Foundation repair", "Interior/exterior painting"}, got.RenovationNeeded)
	assert.Contains(t, got.Recommendations, "Address major issues before listing: Foundation crack with water damage")
	assert.Equal(t, "Property needs significant work - price accordingly", got.Recommendations[0])
	assert.Equal(t, CostRange{Min: 75000, Max: 125000}, got.EstimatedRenovationCost)
}

func TestAnalyzePropertyPhotosEmpty(t *testing.T) {
	a := NewAnalyzer(observability.NewNopLogger(), nil, nil)
	_, err := a.AnalyzePropertyPhotos(context.Background(), PhotoSet{PropertyID: "x"})
	assert.Error(t, err)
}

func TestIssueSeverity(t *testing.T) {
	assert.Equal(t, SeverityMajor, issueSeverity("Water leak under sink"))
	assert.Equal(t, SeverityModerate, issueSeverity("Broken window latch"))
	assert.Equal(t, SeverityMinor, issueSeverity("Outdated light fixtures"))
}
