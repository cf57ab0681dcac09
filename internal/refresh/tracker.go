package refresh

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/fernando-x/platform/libs/intelligence-engine/internal/observability"
	"github.com/fernando-x/platform/libs/intelligence-engine/internal/storage"
)

// Significance grades a market change.
type Significance string

const (
	SignificanceLow    Significance = "low"
	SignificanceMedium Significance = "medium"
	SignificanceHigh   Significance = "high"
)

// Rank orders significance levels: low 1, medium 2, high 3. Unknown levels
// rank 0.
func (s Significance) Rank() int {
	switch s {
	case SignificanceLow:
		return 1
	case SignificanceMedium:
		return 2
	case SignificanceHigh:
		return 3
	}
	return 0
}

// Change categories used for alert filtering.
const (
	CategoryMarket    = "market"
	CategoryRental    = "rental"
	CategoryPermits   = "permits"
	CategoryOccupancy = "occupancy"
	CategoryEconomic  = "economic"
)

// Change is one detected market move.
type Change struct {
	Metric        string       `json:"metric"`
	Category      string       `json:"category"`
	Area          string       `json:"area"`
	PreviousValue float64      `json:"previous_value"`
	CurrentValue  float64      `json:"current_value"`
	ChangePercent float64      `json:"change_percent"`
	Significance  Significance `json:"significance"`
	Description   string       `json:"description"`
	Timestamp     time.Time    `json:"timestamp"`
}

// Threshold holds the low, medium and high cut-offs of one metric.
type Threshold struct {
	Low, Medium, High float64
}

func (t Threshold) grade(v float64) Significance {
	v = math.Abs(v)
	switch {
	case v >= t.High:
		return SignificanceHigh
	case v >= t.Medium:
		return SignificanceMedium
	case v >= t.Low:
		return SignificanceLow
	}
	return ""
}

// Thresholds per tracked metric. Days on market compares the absolute
// difference in days, the rest percentage changes.
var (
	PriceThreshold     = Threshold{Low: 2, Medium: 5, High: 10}
	InventoryThreshold = Threshold{Low: 5, Medium: 10, High: 20}
	DaysThreshold      = Threshold{Low: 3, Medium: 7, High: 14}
	PermitThreshold    = Threshold{Low: 10, Medium: 25, High: 50}
	RentalThreshold    = Threshold{Low: 2, Medium: 5, High: 8}
	OccupancyThreshold = Threshold{Low: 1, Medium: 3, High: 5}
)

const (
	trackerWindow = 500
	defaultArea   = "Houston"
)

// NeighborhoodSource lists HAR neighborhood rows, newest period first.
type NeighborhoodSource interface {
	NeighborhoodPoints(ctx context.Context, limit int) ([]storage.NeighborhoodPoint, error)
}

// MetricSource lists and stores market_intelligence rows.
type MetricSource interface {
	LatestByType(ctx context.Context, dataType string, limit int) ([]*storage.MarketIntelligence, error)
	Create(ctx context.Context, m *storage.MarketIntelligence) error
}

// Tracker compares the two latest observations of each tracked series.
type Tracker struct {
	har     NeighborhoodSource
	metrics MetricSource
	logger  *observability.Logger
	now     func() time.Time
}

// NewTracker creates a tracker.
func NewTracker(logger *observability.Logger, har NeighborhoodSource, metrics MetricSource) *Tracker {
	return &Tracker{
		har:     har,
		metrics: metrics,
		logger:  logger.WithComponent("trend_tracker"),
		now:     time.Now,
	}
}

// DetectSignificantChanges returns the medium and high changes across HAR
// neighborhoods, rents, permits, occupancy and economic indicators. A failing
// series is logged and skipped.
func (t *Tracker) DetectSignificantChanges(ctx context.Context) ([]Change, error) {
	var all []Change
	checks := []struct {
		name string
		run  func(context.Context) ([]Change, error)
	}{
		{"har", t.neighborhoodChanges},
		{"rental", t.rentalChanges},
		{"permits", t.permitChanges},
		{"occupancy", t.occupancyChanges},
		{"economic", t.economicChanges},
	}
	for _, c := range checks {
		if err := ctx.Err(); err != nil {
			return all, err
		}
		changes, err := c.run(ctx)
		if err != nil {
			t.logger.Warn().Err(err).Str("series", c.name).Msg("Change detection failed")
			continue
		}
		all = append(all, changes...)
	}

	out := all[:0]
	for _, c := range all {
		if c.Significance.Rank() >= SignificanceMedium.Rank() {
			out = append(out, c)
		}
	}
	t.logger.Info().Int("changes", len(out)).Msg("Change detection complete")
	return out, nil
}

// StoreChanges records changes as trend alerts in market_intelligence.
func (t *Tracker) StoreChanges(ctx context.Context, changes []Change) error {
	for _, c := range changes {
		metric := c.Metric
		desc := c.Description
		value := c.ChangePercent
		unit := "%"
		category := c.Category
		sub := string(c.Significance)
		date := c.Timestamp
		area := c.Area
		row := &storage.MarketIntelligence{
			DataType:     storage.DataTypeTrendAlert,
			Neighborhood: &area,
			MetricName:   &metric,
			MetricValue:  &desc,
			NumericValue: &value,
			Unit:         &unit,
			Category:     &category,
			SubCategory:  &sub,
			DataDate:     &date,
			Metadata: storage.NewJSON(map[string]float64{
				"previous": c.PreviousValue,
				"current":  c.CurrentValue,
			}),
		}
		if err := t.metrics.Create(ctx, row); err != nil {
			return fmt.Errorf("store change %s: %w", c.Metric, err)
		}
	}
	return nil
}

func (t *Tracker) neighborhoodChanges(ctx context.Context) ([]Change, error) {
	points, err := t.har.NeighborhoodPoints(ctx, trackerWindow)
	if err != nil {
		return nil, err
	}
	series := make(map[string][]storage.NeighborhoodPoint)
	var order []string
	for _, p := range points {
		key := strings.ToLower(p.Neighborhood)
		if _, ok := series[key]; !ok {
			order = append(order, key)
		}
		series[key] = append(series[key], p)
	}

	var out []Change
	for _, key := range order {
		s := series[key]
		if len(s) < 2 {
			continue
		}
		cur, prev := s[0], s[1]
		name := cur.Neighborhood
		if pct, ok := reportedChange(prev.MedianSalePrice, cur.MedianSalePrice); ok {
			if sig := PriceThreshold.grade(pct); sig != "" {
				out = append(out, t.change("median_price", CategoryMarket, name, prev.MedianSalePrice, cur.MedianSalePrice, pct, sig,
					fmt.Sprintf("Median home price in %s %s by %.1f%%", name, direction(pct), math.Abs(pct))))
			}
		}
		prevInv, curInv := float64(prev.ActiveListings), float64(cur.ActiveListings)
		if pct, ok := reportedChange(prevInv, curInv); ok {
			if sig := InventoryThreshold.grade(pct); sig != "" {
				out = append(out, t.change("active_listings", CategoryMarket, name, prevInv, curInv, pct, sig,
					fmt.Sprintf("Active listings in %s %s by %.1f%%", name, direction(pct), math.Abs(pct))))
			}
		}
		prevDom, curDom := float64(prev.AvgDaysOnMarket), float64(cur.AvgDaysOnMarket)
		if prevDom > 0 && curDom > 0 {
			diff := curDom - prevDom
			if sig := DaysThreshold.grade(diff); sig != "" {
				pct, _ := percentChange(prevDom, curDom)
				out = append(out, t.change("days_on_market", CategoryMarket, name, prevDom, curDom, pct, sig,
					fmt.Sprintf("Days on market in %s %s by %.0f days", name, direction(diff), math.Abs(diff))))
			}
		}
	}
	return out, nil
}

func (t *Tracker) rentalChanges(ctx context.Context) ([]Change, error) {
	return t.metricChanges(ctx, storage.DataTypeRental, func(area string, prev, cur float64) *Change {
		pct, ok := percentChange(prev, cur)
		if !ok {
			return nil
		}
		sig := RentalThreshold.grade(pct)
		if sig == "" {
			return nil
		}
		c := t.change("rental_rate", CategoryRental, area, prev, cur, pct, sig,
			fmt.Sprintf("Average rent in %s %s by %.1f%% to $%.0f", area, direction(pct), math.Abs(pct), cur))
		return &c
	})
}

func (t *Tracker) permitChanges(ctx context.Context) ([]Change, error) {
	return t.metricChanges(ctx, storage.DataTypePermits, func(area string, prev, cur float64) *Change {
		pct, ok := percentChange(prev, cur)
		if !ok {
			return nil
		}
		sig := PermitThreshold.grade(pct)
		if sig == "" {
			return nil
		}
		c := t.change("permit_count", CategoryPermits, area, prev, cur, pct, sig,
			fmt.Sprintf("Construction permits in %s %s by %.1f%%", area, direction(pct), math.Abs(pct)))
		return &c
	})
}

func (t *Tracker) occupancyChanges(ctx context.Context) ([]Change, error) {
	return t.metricChanges(ctx, storage.DataTypeOccupancy, func(area string, prev, cur float64) *Change {
		pct, ok := percentChange(prev, cur)
		if !ok {
			return nil
		}
		sig := OccupancyThreshold.grade(pct)
		if sig == "" {
			return nil
		}
		c := t.change("occupancy_rate", CategoryOccupancy, area, prev, cur, pct, sig,
			fmt.Sprintf("Occupancy in %s %s by %.1f%% to %.1f%%", area, direction(pct), math.Abs(pct), cur))
		return &c
	})
}

// economicChanges groups indicators by metric name. Rates use the occupancy
// scale, everything else the price scale.
func (t *Tracker) economicChanges(ctx context.Context) ([]Change, error) {
	rows, err := t.metrics.LatestByType(ctx, storage.DataTypeEconomic, trackerWindow)
	if err != nil {
		return nil, err
	}
	var out []Change
	for _, s := range groupRows(rows, func(m *storage.MarketIntelligence) string { return deref(m.MetricName, "") }) {
		if s.key == "" || len(s.values) < 2 {
			continue
		}
		cur, prev := s.values[0], s.values[1]
		pct, ok := percentChange(prev, cur)
		if !ok {
			continue
		}
		th := PriceThreshold
		if strings.Contains(s.key, "Rate") {
			th = OccupancyThreshold
		}
		sig := th.grade(pct)
		if sig == "" {
			continue
		}
		out = append(out, t.change(s.key, CategoryEconomic, defaultArea, prev, cur, pct, sig,
			fmt.Sprintf("%s %s by %.1f%%", s.key, direction(pct), math.Abs(pct))))
	}
	return out, nil
}

func (t *Tracker) metricChanges(ctx context.Context, dataType string, compare func(area string, prev, cur float64) *Change) ([]Change, error) {
	rows, err := t.metrics.LatestByType(ctx, dataType, trackerWindow)
	if err != nil {
		return nil, err
	}
	var out []Change
	for _, s := range groupRows(rows, func(m *storage.MarketIntelligence) string { return deref(m.Neighborhood, defaultArea) }) {
		if len(s.values) < 2 {
			continue
		}
		if c := compare(s.key, s.values[1], s.values[0]); c != nil {
			out = append(out, *c)
		}
	}
	return out, nil
}

type rowSeries struct {
	key    string
	values []float64
}

// groupRows keeps numeric rows in input order, grouped by key in order of
// first appearance.
func groupRows(rows []*storage.MarketIntelligence, key func(*storage.MarketIntelligence) string) []rowSeries {
	index := make(map[string]int)
	var out []rowSeries
	for _, r := range rows {
		if r.NumericValue == nil {
			continue
		}
		k := key(r)
		i, ok := index[k]
		if !ok {
			i = len(out)
			index[k] = i
			out = append(out, rowSeries{key: k})
		}
		out[i].values = append(out[i].values, *r.NumericValue)
	}
	return out
}

func (t *Tracker) change(metric, category, area string, prev, cur, pct float64, sig Significance, desc string) Change {
	return Change{
		Metric:        metric,
		Category:      category,
		Area:          area,
		PreviousValue: prev,
		CurrentValue:  cur,
		ChangePercent: pct,
		Significance:  sig,
		Description:   desc,
		Timestamp:     t.now().UTC(),
	}
}

func percentChange(prev, cur float64) (float64, bool) {
	if prev == 0 {
		return 0, false
	}
	return (cur - prev) / prev * 100, true
}

// reportedChange ignores HAR fields coerced to zero when a report left them
// blank.
func reportedChange(prev, cur float64) (float64, bool) {
	if cur <= 0 {
		return 0, false
	}
	return percentChange(prev, cur)
}

func direction(v float64) string {
	if v < 0 {
		return "decreased"
	}
	return "increased"
}

func deref(s *string, fallback string) string {
	if s == nil || *s == "" {
		return fallback
	}
	return *s
}
