package refresh

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fernando-x/platform/libs/intelligence-engine/internal/ingest"
	"github.com/fernando-x/platform/libs/intelligence-engine/internal/observability"
	"github.com/fernando-x/platform/libs/intelligence-engine/internal/storage"
)

var refreshNow = time.Date(2025, 10, 6, 12, 0, 0, 0, time.UTC)

type memSources struct {
	rows  map[string]*storage.RefreshSource
	marks map[string]string
}

func newMemSources() *memSources {
	return &memSources{rows: map[string]*storage.RefreshSource{}, marks: map[string]string{}}
}

func (m *memSources) List(context.Context) ([]*storage.RefreshSource, error) {
	var out []*storage.RefreshSource
	for _, s := range m.rows {
		c := *s
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Source < out[j].Source })
	return out, nil
}

func (m *memSources) Seed(_ context.Context, s *storage.RefreshSource) error {
	if _, ok := m.rows[s.Source]; !ok {
		c := *s
		m.rows[s.Source] = &c
	}
	return nil
}

func (m *memSources) MarkRun(_ context.Context, source string, at time.Time, status string) error {
	s, ok := m.rows[source]
	if !ok {
		return storage.ErrNotFound
	}
	s.LastRun = &at
	s.LastStatus = &status
	m.marks[source] = status
	return nil
}

type memMetrics struct {
	rows    map[string][]*storage.MarketIntelligence
	created []*storage.MarketIntelligence
	err     error
}

func (m *memMetrics) LatestByType(_ context.Context, dataType string, _ int) ([]*storage.MarketIntelligence, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.rows[dataType], nil
}

func (m *memMetrics) Create(_ context.Context, row *storage.MarketIntelligence) error {
	m.created = append(m.created, row)
	return nil
}

func (m *memMetrics) byType(dataType string) []*storage.MarketIntelligence {
	var out []*storage.MarketIntelligence
	for _, r := range m.created {
		if r.DataType == dataType {
			out = append(out, r)
		}
	}
	return out
}

type memProjects struct {
	existing map[string]bool
	created  []*storage.ConstructionActivity
}

func (m *memProjects) Create(_ context.Context, c *storage.ConstructionActivity) error {
	m.created = append(m.created, c)
	return nil
}

func (m *memProjects) ExistsByProjectName(_ context.Context, name string) (bool, error) {
	return m.existing[name], nil
}

type fakeImporter struct {
	results []*ingest.ImportResult
	calls   int
}

func (f *fakeImporter) ImportAll(context.Context) ([]*ingest.ImportResult, error) {
	f.calls++
	return f.results, nil
}

type fakeDetector struct {
	changes []Change
	stored  []Change
}

func (f *fakeDetector) DetectSignificantChanges(context.Context) ([]Change, error) {
	return f.changes, nil
}

func (f *fakeDetector) StoreChanges(_ context.Context, changes []Change) error {
	f.stored = append(f.stored, changes...)
	return nil
}

type fakeAlerter struct {
	sent [][]Change
}

func (f *fakeAlerter) SendAlerts(_ context.Context, changes []Change) []AlertResult {
	f.sent = append(f.sent, changes)
	return nil
}

type managerFixture struct {
	mgr      *Manager
	sources  *memSources
	metrics  *memMetrics
	projects *memProjects
	importer *fakeImporter
	detector *fakeDetector
	alerter  *fakeAlerter
}

func newManagerFixture(t *testing.T) *managerFixture {
	t.Helper()
	f := &managerFixture{
		sources:  newMemSources(),
		metrics:  &memMetrics{},
		projects: &memProjects{existing: map[string]bool{"East River Phase 2": true}},
		importer: &fakeImporter{results: []*ingest.ImportResult{
			{Category: "market-intelligence", Success: true, RecordsImported: 10},
			{Category: "construction-activity", Success: false, RecordsImported: 2, Errors: []string{"bad row"}},
		}},
		detector: &fakeDetector{changes: []Change{{Metric: "median_price", Significance: SignificanceMedium}}},
		alerter:  &fakeAlerter{},
	}
	asker := &fakeAsker{answers: map[string]string{
		rentalQuery:           "Heights averages $1,850 and Montrose $2,100. Occupancy held at 91.5% metro-wide.",
		permitsQuery:          "The city issued 1,245 permits last month.",
		DevelopmentQueries[0]: projectAnswer,
		EconomicQueries[0]:    "Houston's unemployment rate is 4.1%, a 0.3% decrease from last year.",
	}, fallback: "Median price rose to $450,000, up 5.2% in 30 days"}
	for _, q := range EconomicQueries[1:] {
		asker.answers[q] = "Not reported."
	}
	for _, q := range DevelopmentQueries[1:] {
		asker.answers[q] = "Nothing new this month."
	}

	f.mgr = NewManager(observability.NewNopLogger(), Deps{
		Sources:  f.sources,
		Metrics:  f.metrics,
		Projects: f.projects,
		Importer: f.importer,
		Fetcher:  NewFetcher(asker),
		Tracker:  f.detector,
		Alerts:   f.alerter,
	})
	f.mgr.now = func() time.Time { return refreshNow }
	require.NoError(t, f.mgr.Seed(context.Background()))
	return f
}

func TestShouldRefresh(t *testing.T) {
	ago := func(d time.Duration) *time.Time { v := refreshNow.Add(-d); return &v }
	tests := []struct {
		name string
		src  storage.RefreshSource
		want bool
	}{
		{"never run", storage.RefreshSource{Frequency: storage.FrequencyMonthly}, true},
		{"daily due", storage.RefreshSource{Frequency: storage.FrequencyDaily, LastRun: ago(24 * time.Hour)}, true},
		{"daily fresh", storage.RefreshSource{Frequency: storage.FrequencyDaily, LastRun: ago(23 * time.Hour)}, false},
		{"weekly due", storage.RefreshSource{Frequency: storage.FrequencyWeekly, LastRun: ago(168 * time.Hour)}, true},
		{"weekly fresh", storage.RefreshSource{Frequency: storage.FrequencyWeekly, LastRun: ago(100 * time.Hour)}, false},
		{"monthly due", storage.RefreshSource{Frequency: storage.FrequencyMonthly, LastRun: ago(720 * time.Hour)}, true},
		{"monthly fresh", storage.RefreshSource{Frequency: storage.FrequencyMonthly, LastRun: ago(700 * time.Hour)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ShouldRefresh(&tt.src, refreshNow))
		})
	}
}

func TestManagerSeedKeepsState(t *testing.T) {
	f := newManagerFixture(t)
	require.Len(t, f.sources.rows, 6)

	f.sources.rows[SourceCSVImports].Enabled = false
	require.NoError(t, f.mgr.Seed(context.Background()))
	assert.False(t, f.sources.rows[SourceCSVImports].Enabled)
}

func TestRefreshAllRunsDueSources(t *testing.T) {
	f := newManagerFixture(t)
	recent := refreshNow.Add(-time.Hour)
	f.sources.rows[SourceMarketTrends].LastRun = &recent
	f.sources.rows[SourceEconomicData].Enabled = false

	results, err := f.mgr.RefreshAll(context.Background(), false)
	require.NoError(t, err)

	var names []string
	for _, r := range results {
		names = append(names, r.Source)
		assert.True(t, r.Success, r.Source)
	}
	assert.Equal(t, []string{SourcePermits, SourceCSVImports, SourceDevelopmentNews, SourceRentalMarket}, names)

	assert.Equal(t, 1, results[0].RecordsUpdated)
	assert.Equal(t, 12, results[1].RecordsUpdated)
	assert.Equal(t, []string{"construction-activity: bad row"}, results[1].Errors)
	assert.Equal(t, 1, results[2].RecordsUpdated, "known projects are not stored twice")
	assert.Equal(t, 3, results[3].RecordsUpdated)

	require.Len(t, f.projects.created, 1)
	p := f.projects.created[0]
	assert.Equal(t, "Midtown Commons", *p.ProjectName)
	assert.Equal(t, "Hines", *p.Developer)
	assert.Equal(t, "Midtown, Houston, TX", p.Address)
	assert.Equal(t, 250e6, *p.EstimatedCost)
	assert.Equal(t, "announced", p.Status)
	assert.Regexp(t, `^PPLX-[0-9A-F]{8}$`, p.PermitNumber)

	permits := f.metrics.byType(storage.DataTypePermits)
	require.Len(t, permits, 1)
	assert.Equal(t, 1245.0, *permits[0].NumericValue)

	rents := f.metrics.byType(storage.DataTypeRental)
	require.Len(t, rents, 2)
	assert.Equal(t, "Heights", *rents[0].Neighborhood)
	assert.Equal(t, 1850.0, *rents[0].NumericValue)
	occ := f.metrics.byType(storage.DataTypeOccupancy)
	require.Len(t, occ, 1)
	assert.Equal(t, 91.5, *occ[0].NumericValue)

	assert.Equal(t, map[string]string{
		SourcePermits:         "success",
		SourceCSVImports:      "success",
		SourceDevelopmentNews: "success",
		SourceRentalMarket:    "success",
	}, f.sources.marks)
	assert.Equal(t, 1, f.importer.calls)
	assert.Len(t, f.detector.stored, 1)
	require.Len(t, f.alerter.sent, 1)
	assert.Equal(t, "median_price", f.alerter.sent[0][0].Metric)
}

func TestRefreshAllForce(t *testing.T) {
	f := newManagerFixture(t)
	recent := refreshNow.Add(-time.Hour)
	for _, s := range f.sources.rows {
		s.LastRun = &recent
	}
	f.sources.rows[SourceEconomicData].Enabled = false

	results, err := f.mgr.RefreshAll(context.Background(), true)
	require.NoError(t, err)
	assert.Len(t, results, 6)

	trends := f.metrics.byType(storage.DataTypeMarketTrend)
	require.Len(t, trends, 5)
	assert.Equal(t, "Market Update", *trends[0].MetricName)
	assert.Equal(t, 450000.0, *trends[0].NumericValue)
	assert.Equal(t, "%", *trends[0].Unit)

	econ := f.metrics.byType(storage.DataTypeEconomic)
	require.Len(t, econ, 1, "answers without figures are skipped")
	assert.Equal(t, "Unemployment Rate", *econ[0].MetricName)
	assert.Equal(t, 4.1, *econ[0].NumericValue)
}

func TestRefreshSource(t *testing.T) {
	f := newManagerFixture(t)

	r, err := f.mgr.RefreshSource(context.Background(), SourcePermits)
	require.NoError(t, err)
	assert.True(t, r.Success)
	assert.Equal(t, 1, r.RecordsUpdated)
	assert.Equal(t, refreshNow, *f.sources.rows[SourcePermits].LastRun)
	assert.Empty(t, f.alerter.sent, "single-source runs do not alert")

	_, err = f.mgr.RefreshSource(context.Background(), "zillow")
	assert.ErrorIs(t, err, ErrUnknownSource)
}

func TestRefreshSourceWithoutResearchClient(t *testing.T) {
	f := newManagerFixture(t)
	f.mgr.deps.Fetcher = nil

	r, err := f.mgr.RefreshSource(context.Background(), SourceMarketTrends)
	require.NoError(t, err)
	assert.False(t, r.Success)
	assert.Equal(t, []string{ErrNoResearchClient.Error()}, r.Errors)
	assert.Equal(t, "failed", f.sources.marks[SourceMarketTrends])

	r, err = f.mgr.RefreshSource(context.Background(), SourceCSVImports)
	require.NoError(t, err)
	assert.True(t, r.Success, "csv imports do not need research")
}

func TestRefreshSourceResearchFailure(t *testing.T) {
	f := newManagerFixture(t)
	f.mgr.deps.Fetcher = NewFetcher(&fakeAsker{err: errors.New("rate limited")})

	r, err := f.mgr.RefreshSource(context.Background(), SourceMarketTrends)
	require.NoError(t, err)
	assert.False(t, r.Success)
	assert.Len(t, r.Errors, len(MarketQueries))
}

func TestSources(t *testing.T) {
	f := newManagerFixture(t)
	last := refreshNow.Add(-2 * time.Hour)
	f.sources.rows[SourceEconomicData].LastRun = &last

	list, err := f.mgr.Sources(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 6)
	for _, s := range list {
		if s.Source == SourceEconomicData {
			assert.False(t, s.Due)
			require.NotNil(t, s.NextDue)
			assert.Equal(t, last.Add(720*time.Hour), *s.NextDue)
			continue
		}
		assert.True(t, s.Due, s.Source)
		assert.Nil(t, s.NextDue)
	}
}
