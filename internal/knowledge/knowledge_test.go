package knowledge

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBuildsGraph(t *testing.T) {
	b, err := New()
	require.NoError(t, err)

	assert.Len(t, b.MicroMarkets(), 5)
	assert.NotEmpty(t, b.Nodes())

	heights, ok := b.Node("market-heights")
	require.True(t, ok)
	assert.Equal(t, NodeMarket, heights.Type)
	assert.Equal(t, "Heights Market Intelligence", heights.Title)
	assert.Contains(t, heights.Content, "Median Price: $817,285 (+0.3% YoY)")
	assert.Equal(t, 0.95, heights.Metadata.Confidence)

	tmc, ok := b.Node("dev-tmc3")
	require.True(t, ok)
	assert.Contains(t, tmc.Content, "Investment: $1.9B")

	_, ok = b.Node("missing")
	assert.False(t, ok)
}

func TestCrossReferences(t *testing.T) {
	b := MustNew()

	tests := []struct {
		from string
		to   string
	}{
		{"dev-buffalo-bayou-east", "market-eado-east-end"},
		{"flood-heights", "market-heights"},
		{"impact-metronext-transit-plan", "market-heights"},
		{"incentive-historic-tax-credits", "market-montrose"},
		{"financial-capital-flows", "market-river-oaks"},
	}
	for _, tt := range tests {
		t.Run(tt.from+"->"+tt.to, func(t *testing.T) {
			assert.Contains(t, ids(b.Related(tt.from)), tt.to)
			assert.Contains(t, ids(b.Related(tt.to)), tt.from, "links are bidirectional")
		})
	}

	assert.Nil(t, b.Related("missing"))
}

func TestSearchScoring(t *testing.T) {
	b := MustNew()

	hits := b.Search("Montrose", 3)
	require.NotEmpty(t, hits)
	assert.Equal(t, "market-montrose", hits[0].Node.ID)
	// title 10 + content 5 + word 2
	assert.Equal(t, 17.0, hits[0].Score)

	for i := 1; i < len(hits); i++ {
		assert.GreaterOrEqual(t, hits[i-1].Score, hits[i].Score)
	}

	assert.Empty(t, b.Search("   ", 5))
	assert.Empty(t, b.Search("zzqx", 5))
	assert.LessOrEqual(t, len(b.Search("houston", 2)), 2)
}

func TestNeighborhoodInsights(t *testing.T) {
	b := MustNew()

	ins, ok := b.NeighborhoodInsights("heights")
	require.True(t, ok)
	assert.Equal(t, "Heights", ins.Neighborhood)
	require.NotNil(t, ins.Environmental)
	assert.Equal(t, "X500", ins.Environmental.Zone)
	assert.Contains(t, ins.Concerns, "Flood risk: moderate")
	assert.Contains(t, ins.Strengths, "Highly walkable (Walk Score 78)")
	assert.Contains(t, ins.Summary, "median price $817,285")

	ins, ok = b.NeighborhoodInsights("East End")
	require.True(t, ok)
	assert.Equal(t, "EaDo/East End", ins.Neighborhood)
	require.Len(t, ins.Development, 1)
	assert.Equal(t, "BUFFALO-BAYOU-EAST", ins.Development[0].ID)
	assert.Contains(t, ins.Opportunities, "Bayou-adjacent development")

	ins, ok = b.NeighborhoodInsights("River Oaks")
	require.True(t, ok)
	assert.Contains(t, ins.Strengths, "Top-rated schools (A+)")
	assert.Contains(t, ins.Strengths, "Low flood risk")
	assert.Nil(t, ins.Environmental)

	_, ok = b.NeighborhoodInsights("Atlantis")
	assert.False(t, ok)
}

func TestIntelligenceGetters(t *testing.T) {
	b := MustNew()

	p, ok := b.SeasonalPattern(time.June)
	require.True(t, ok)
	assert.Equal(t, 1.25, p.ActivityIndex)

	assert.Len(t, b.CapitalFlows(), 5)
	assert.Len(t, b.DevelopmentIntelligence().ActiveProjects, 3)
	assert.Len(t, b.RegulatoryIntelligence().TaxIncentives, 3)
	assert.Len(t, b.EnvironmentalIntelligence().FloodZones, 2)
	assert.NotEmpty(t, b.EconomicIndicators())
	assert.Contains(t, b.Neighborhoods(), "east end")
	assert.Contains(t, b.Neighborhoods(), "river oaks")
}

func TestParseRejectsInvalidYAML(t *testing.T) {
	_, err := Parse([]byte("market: [unclosed"))
	assert.Error(t, err)
}

func TestFormatting(t *testing.T) {
	assert.Equal(t, "1,234,567", thousands(1234567))
	assert.Equal(t, "-950", thousands(-950))
	assert.Equal(t, "$4.2B", compactMoney(4230000000))
	assert.Equal(t, "$310M", compactMoney(310000000))
	assert.Equal(t, "+2.5%", signedPct(2.5))
	assert.Equal(t, "-6.6%", signedPct(-6.6))
	assert.Equal(t, "eado-east-end", slug("EaDo/East End"))
}

func ids(nodes []*Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.ID
	}
	return out
}
