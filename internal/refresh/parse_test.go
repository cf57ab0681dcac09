package refresh

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractNumbers(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []float64
	}{
		{"amounts, percentages and durations", "Median price rose to $450,000, up 5.2% in 30 days", []float64{450000, 5.2, 30, 5.2, 30}},
		{"scaled amounts", "$2.5 billion and $400M", []float64{2.5e9, 4e8}},
		{"lone separators are ignored", "Houston, TX", nil},
		{"no figures", "no figures here", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractNumbers(tt.text))
		})
	}
}

func TestExtractTopic(t *testing.T) {
	want := []string{"Market Update", "Home Prices", "Housing Inventory", "Rental Market", "Construction Permits"}
	for i, q := range MarketQueries {
		assert.Equal(t, want[i], ExtractTopic(q), q)
	}
	assert.Equal(t, "Employment", ExtractTopic("Houston job growth statistics recent"))
}

func TestExtractUnit(t *testing.T) {
	assert.Equal(t, "%", ExtractUnit("up 5% from $300"))
	assert.Equal(t, "$", ExtractUnit("$300 average"))
	assert.Equal(t, "days", ExtractUnit("45 days"))
	assert.Equal(t, "$/sqft", ExtractUnit("180 per square foot"))
	assert.Equal(t, "units", ExtractUnit("steady"))
}

func TestExtractNeighborhoodData(t *testing.T) {
	got := ExtractNeighborhoodData("Heights averages $1,850 while Montrose sits at 2,100 and River Oaks: $4,500 per month.")
	assert.Equal(t, map[string]float64{"Heights": 1850, "Montrose": 2100, "River Oaks": 4500}, got)
	assert.Empty(t, ExtractNeighborhoodData("Rents were flat."))
}

func TestExtractPermitCount(t *testing.T) {
	tests := []struct {
		text string
		want int
		ok   bool
	}{
		{"The city issued 1,245 permits last month", 1245, true},
		{"3,400 permits approved in Harris County", 3400, true},
		{"Permit count: 980 in September", 980, true},
		{"No data available", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			n, ok := ExtractPermitCount(tt.text)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, n)
		})
	}
}

func TestExtractOccupancy(t *testing.T) {
	got := ExtractOccupancy("Average occupancy stands at 92.5% across the metro")
	require.NotNil(t, got)
	assert.Equal(t, 92.5, *got)
	assert.Nil(t, ExtractOccupancy("Rents rose 3%"))
}

const projectAnswer = "1. \"Midtown Commons\" by Hines will bring a $250 million mixed-use tower in Midtown, opening 2027\n" +
	"2. East River Phase 2: residential lofts by Midway in Fifth Ward, valued at $900 million\n" +
	"3. Short"

func TestExtractProjects(t *testing.T) {
	got := ExtractProjects(projectAnswer)
	require.Len(t, got, 2)

	assert.Equal(t, "Midtown Commons", got[0].Name)
	assert.Equal(t, "Hines", got[0].Developer)
	require.NotNil(t, got[0].Value)
	assert.Equal(t, 250e6, *got[0].Value)
	assert.Equal(t, "mixed-use", got[0].Type)
	assert.Equal(t, "Midtown", got[0].Location)
	assert.Equal(t, `"Midtown Commons" by Hines will bring a $250 million mixed-use tower in Midtown, opening 2027`, got[0].Description)

	assert.Equal(t, "East River Phase 2", got[1].Name)
	assert.Equal(t, "Midway", got[1].Developer)
	require.NotNil(t, got[1].Value)
	assert.Equal(t, 900e6, *got[1].Value)
	assert.Equal(t, "residential", got[1].Type)
	assert.Equal(t, "Fifth Ward", got[1].Location)
}

func TestExtractEconomicData(t *testing.T) {
	t.Run("rate with decrease", func(t *testing.T) {
		got, ok := ExtractEconomicData("Houston's unemployment rate is 4.1%, a 0.3% decrease from last year.", "Houston unemployment rate latest")
		require.True(t, ok)
		assert.Equal(t, "Unemployment Rate", got.Indicator)
		assert.Equal(t, 4.1, got.Value)
		require.NotNil(t, got.Change)
		assert.Equal(t, -0.3, *got.Change)
		assert.Equal(t, "%", got.Unit)
		assert.Equal(t, "latest", got.Period)
	})
	t.Run("income", func(t *testing.T) {
		got, ok := ExtractEconomicData("Median household income reached $72,500", "Houston median household income current")
		require.True(t, ok)
		assert.Equal(t, "Median Household Income", got.Indicator)
		assert.Equal(t, 72500.0, got.Value)
		assert.Nil(t, got.Change)
		assert.Equal(t, "$", got.Unit)
	})
	t.Run("no figures", func(t *testing.T) {
		_, ok := ExtractEconomicData("Data is not available.", "Houston GDP growth rate")
		assert.False(t, ok)
	})
}
