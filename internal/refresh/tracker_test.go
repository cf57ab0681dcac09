package refresh

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fernando-x/platform/libs/intelligence-engine/internal/observability"
	"github.com/fernando-x/platform/libs/intelligence-engine/internal/storage"
)

type fakeHar struct {
	points []storage.NeighborhoodPoint
	err    error
}

func (f *fakeHar) NeighborhoodPoints(context.Context, int) ([]storage.NeighborhoodPoint, error) {
	return f.points, f.err
}

func harPoint(name string, month int, median float64, listings, dom int) storage.NeighborhoodPoint {
	return storage.NeighborhoodPoint{
		HarNeighborhoodData: storage.HarNeighborhoodData{
			Neighborhood:    name,
			MedianSalePrice: median,
			ActiveListings:  listings,
			AvgDaysOnMarket: dom,
		},
		Month: month,
		Year:  2025,
	}
}

func metricRow(dataType, area, metric string, v float64) *storage.MarketIntelligence {
	row := &storage.MarketIntelligence{DataType: dataType, NumericValue: ptr(v)}
	if area != "" {
		row.Neighborhood = ptr(area)
	}
	if metric != "" {
		row.MetricName = ptr(metric)
	}
	return row
}

func trackerFixture() (*Tracker, *fakeHar, *memMetrics) {
	har := &fakeHar{points: []storage.NeighborhoodPoint{
		harPoint("Heights", 9, 531000, 125, 35),
		harPoint("Montrose", 9, 400000, 80, 40),
		harPoint("Katy", 9, 350000, 300, 25),
		harPoint("Heights", 8, 500000, 100, 30),
		harPoint("Montrose", 8, 398000, 80, 20),
	}}
	metrics := &memMetrics{rows: map[string][]*storage.MarketIntelligence{
		storage.DataTypeRental: {
			metricRow(storage.DataTypeRental, "Montrose", "", 1900),
			metricRow(storage.DataTypeRental, "Heights", "", 1850),
			metricRow(storage.DataTypeRental, "Montrose", "", 1800),
			metricRow(storage.DataTypeRental, "Heights", "", 1840),
		},
		storage.DataTypePermits: {
			metricRow(storage.DataTypePermits, "", "", 1300),
			metricRow(storage.DataTypePermits, "", "", 1000),
		},
		storage.DataTypeOccupancy: {
			metricRow(storage.DataTypeOccupancy, "Houston", "", 91.5),
			metricRow(storage.DataTypeOccupancy, "Houston", "", 95),
		},
		storage.DataTypeEconomic: {
			metricRow(storage.DataTypeEconomic, "Houston", "Unemployment Rate", 4.1),
			metricRow(storage.DataTypeEconomic, "Houston", "Median Household Income", 72500),
			metricRow(storage.DataTypeEconomic, "Houston", "Unemployment Rate", 4.0),
			metricRow(storage.DataTypeEconomic, "Houston", "Median Household Income", 65000),
		},
	}}
	tr := NewTracker(observability.NewNopLogger(), har, metrics)
	tr.now = func() time.Time { return refreshNow }
	return tr, har, metrics
}

func TestDetectSignificantChanges(t *testing.T) {
	tr, _, _ := trackerFixture()

	changes, err := tr.DetectSignificantChanges(context.Background())
	require.NoError(t, err)

	want := []struct {
		metric       string
		category     string
		significance Significance
		percent      float64
		description  string
	}{
		{"median_price", CategoryMarket, SignificanceMedium, 6.2, "Median home price in Heights increased by 6.2%"},
		{"active_listings", CategoryMarket, SignificanceHigh, 25, "Active listings in Heights increased by 25.0%"},
		{"days_on_market", CategoryMarket, SignificanceHigh, 100, "Days on market in Montrose increased by 20 days"},
		{"rental_rate", CategoryRental, SignificanceMedium, 5.56, "Average rent in Montrose increased by 5.6% to $1900"},
		{"permit_count", CategoryPermits, SignificanceMedium, 30, "Construction permits in Houston increased by 30.0%"},
		{"occupancy_rate", CategoryOccupancy, SignificanceMedium, -3.68, "Occupancy in Houston decreased by 3.7% to 91.5%"},
		{"Median Household Income", CategoryEconomic, SignificanceHigh, 11.54, "Median Household Income increased by 11.5%"},
	}
	require.Len(t, changes, len(want))
	for i, w := range want {
		c := changes[i]
		assert.Equal(t, w.metric, c.Metric)
		assert.Equal(t, w.category, c.Category)
		assert.Equal(t, w.significance, c.Significance, w.metric)
		assert.InDelta(t, w.percent, c.ChangePercent, 0.01, w.metric)
		assert.Equal(t, w.description, c.Description)
		assert.Equal(t, refreshNow, c.Timestamp)
	}
	assert.Equal(t, 500000.0, changes[0].PreviousValue)
	assert.Equal(t, 531000.0, changes[0].CurrentValue)
}

func TestDetectSignificantChangesSkipsFailingSeries(t *testing.T) {
	tr, har, _ := trackerFixture()
	har.err = errors.New("connection refused")

	changes, err := tr.DetectSignificantChanges(context.Background())
	require.NoError(t, err)
	require.Len(t, changes, 4)
	assert.Equal(t, "rental_rate", changes[0].Metric)
}

func TestDetectSignificantChangesIgnoresBlankHarFields(t *testing.T) {
	tr, har, metrics := trackerFixture()
	metrics.err = errors.New("down")
	har.points = []storage.NeighborhoodPoint{
		harPoint("Bellaire", 9, 0, 0, 0),
		harPoint("Bellaire", 8, 650000, 40, 30),
	}

	changes, err := tr.DetectSignificantChanges(context.Background())
	require.NoError(t, err)
	assert.Empty(t, changes)
}

func TestStoreChanges(t *testing.T) {
	tr, _, metrics := trackerFixture()
	changes, err := tr.DetectSignificantChanges(context.Background())
	require.NoError(t, err)

	require.NoError(t, tr.StoreChanges(context.Background(), changes[:2]))
	rows := metrics.byType(storage.DataTypeTrendAlert)
	require.Len(t, rows, 2)
	assert.Equal(t, "median_price", *rows[0].MetricName)
	assert.Equal(t, "Heights", *rows[0].Neighborhood)
	assert.Equal(t, "medium", *rows[0].SubCategory)
	assert.Equal(t, "Median home price in Heights increased by 6.2%", *rows[0].MetricValue)
	assert.JSONEq(t, `{"previous":500000,"current":531000}`, string(rows[0].Metadata))
}

func TestThresholdGrade(t *testing.T) {
	assert.Equal(t, SignificanceHigh, PriceThreshold.grade(-10))
	assert.Equal(t, SignificanceMedium, PriceThreshold.grade(5))
	assert.Equal(t, SignificanceLow, PriceThreshold.grade(2))
	assert.Equal(t, Significance(""), PriceThreshold.grade(1.9))
	assert.Equal(t, 3, SignificanceHigh.Rank())
	assert.Zero(t, Significance("urgent").Rank())
}
