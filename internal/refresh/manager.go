package refresh

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fernando-x/platform/libs/intelligence-engine/internal/ingest"
	"github.com/fernando-x/platform/libs/intelligence-engine/internal/observability"
	"github.com/fernando-x/platform/libs/intelligence-engine/internal/storage"
)

// Refresh source names.
const (
	SourceMarketTrends    = "perplexity_market_trends"
	SourceDevelopmentNews = "perplexity_development_news"
	SourceEconomicData    = "perplexity_economic_data"
	SourceCSVImports      = "csv_imports"
	SourceRentalMarket    = "rental_market_data"
	SourcePermits         = "construction_permits"
)

var (
	// ErrUnknownSource is returned for a source name outside DefaultSources.
	ErrUnknownSource = errors.New("unknown refresh source")
	// ErrNoResearchClient is returned when a research source runs without a
	// Perplexity key.
	ErrNoResearchClient = errors.New("perplexity client not configured")
	// ErrNoImporter is returned when csv_imports runs without an importer.
	ErrNoImporter = errors.New("csv importer not configured")
)

// DefaultSources are seeded on first start, all enabled.
var DefaultSources = []storage.RefreshSource{
	{Source: SourceMarketTrends, Frequency: storage.FrequencyWeekly, Enabled: true},
	{Source: SourceDevelopmentNews, Frequency: storage.FrequencyWeekly, Enabled: true},
	{Source: SourceEconomicData, Frequency: storage.FrequencyMonthly, Enabled: true},
	{Source: SourceCSVImports, Frequency: storage.FrequencyMonthly, Enabled: true},
	{Source: SourceRentalMarket, Frequency: storage.FrequencyWeekly, Enabled: true},
	{Source: SourcePermits, Frequency: storage.FrequencyWeekly, Enabled: true},
}

// PerplexitySources are the sources answered by research queries.
var PerplexitySources = []string{SourceMarketTrends, SourceDevelopmentNews, SourceEconomicData}

// Interval returns how long a source stays fresh.
func Interval(f storage.RefreshFrequency) time.Duration {
	switch f {
	case storage.FrequencyDaily:
		return 24 * time.Hour
	case storage.FrequencyMonthly:
		return 720 * time.Hour
	default:
		return 168 * time.Hour
	}
}

// ShouldRefresh reports whether a source is due at now.
func ShouldRefresh(s *storage.RefreshSource, now time.Time) bool {
	if s.LastRun == nil {
		return true
	}
	return now.Sub(*s.LastRun) >= Interval(s.Frequency)
}

// SourceStore persists refresh schedule state.
type SourceStore interface {
	List(ctx context.Context) ([]*storage.RefreshSource, error)
	Seed(ctx context.Context, s *storage.RefreshSource) error
	MarkRun(ctx context.Context, source string, at time.Time, status string) error
}

// MetricWriter stores market_intelligence rows.
type MetricWriter interface {
	Create(ctx context.Context, m *storage.MarketIntelligence) error
}

// ProjectStore stores announced projects in construction_activity.
type ProjectStore interface {
	Create(ctx context.Context, c *storage.ConstructionActivity) error
	ExistsByProjectName(ctx context.Context, name string) (bool, error)
}

// CSVImporter re-imports the DataProcess3 CSV exports.
type CSVImporter interface {
	ImportAll(ctx context.Context) ([]*ingest.ImportResult, error)
}

// ChangeDetector finds and records significant market moves.
type ChangeDetector interface {
	DetectSignificantChanges(ctx context.Context) ([]Change, error)
	StoreChanges(ctx context.Context, changes []Change) error
}

// Alerter delivers changes.
type Alerter interface {
	SendAlerts(ctx context.Context, changes []Change) []AlertResult
}

// Deps wires a Manager. Fetcher and Importer may be nil; the sources that
// need them then fail.
type Deps struct {
	Sources  SourceStore
	Metrics  MetricWriter
	Projects ProjectStore
	Importer CSVImporter
	Fetcher  *Fetcher
	Tracker  ChangeDetector
	Alerts   Alerter
}

// Result is the outcome of refreshing one source.
type Result struct {
	Source         string        `json:"source"`
	Success        bool          `json:"success"`
	RecordsUpdated int           `json:"records_updated"`
	Errors         []string      `json:"errors,omitempty"`
	Duration       time.Duration `json:"duration"`
	Timestamp      time.Time     `json:"timestamp"`
}

// SourceStatus is a source with its due state.
type SourceStatus struct {
	storage.RefreshSource
	Due     bool       `json:"due"`
	NextDue *time.Time `json:"next_due,omitempty"`
}

// Manager runs refresh sources and follows them with change detection.
type Manager struct {
	deps   Deps
	logger *observability.Logger
	now    func() time.Time
}

// NewManager creates a refresh manager.
func NewManager(logger *observability.Logger, deps Deps) *Manager {
	return &Manager{
		deps:   deps,
		logger: logger.WithComponent("refresh_manager"),
		now:    time.Now,
	}
}

// Seed inserts the default sources, keeping existing state.
func (m *Manager) Seed(ctx context.Context) error {
	for i := range DefaultSources {
		s := DefaultSources[i]
		if err := m.deps.Sources.Seed(ctx, &s); err != nil {
			return fmt.Errorf("seed %s: %w", s.Source, err)
		}
	}
	return nil
}

// Sources lists every source with its due state.
func (m *Manager) Sources(ctx context.Context) ([]SourceStatus, error) {
	list, err := m.deps.Sources.List(ctx)
	if err != nil {
		return nil, err
	}
	now := m.now()
	out := make([]SourceStatus, 0, len(list))
	for _, s := range list {
		st := SourceStatus{RefreshSource: *s, Due: ShouldRefresh(s, now)}
		if s.LastRun != nil {
			next := s.LastRun.Add(Interval(s.Frequency))
			st.NextDue = &next
		}
		out = append(out, st)
	}
	return out, nil
}

// RefreshAll runs every enabled source that is due. force runs every source
// regardless of schedule or enabled flag. Change detection and alerting
// follow the runs.
func (m *Manager) RefreshAll(ctx context.Context, force bool) ([]Result, error) {
	list, err := m.deps.Sources.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list refresh sources: %w", err)
	}
	m.logger.Info().Bool("force", force).Int("sources", len(list)).Msg("Starting data refresh")

	var results []Result
	for _, s := range list {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		if !force && (!s.Enabled || !ShouldRefresh(s, m.now())) {
			m.logger.Debug().Str("source", s.Source).Msg("Source skipped")
			continue
		}
		results = append(results, m.runAndMark(ctx, s.Source))
	}

	m.detectAndAlert(ctx)

	ok := 0
	for _, r := range results {
		if r.Success {
			ok++
		}
	}
	m.logger.Info().Int("refreshed", len(results)).Int("succeeded", ok).Msg("Data refresh complete")
	return results, nil
}

// RefreshSource runs one source immediately.
func (m *Manager) RefreshSource(ctx context.Context, name string) (*Result, error) {
	if !slices.ContainsFunc(DefaultSources, func(s storage.RefreshSource) bool { return s.Source == name }) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSource, name)
	}
	r := m.runAndMark(ctx, name)
	return &r, nil
}

func (m *Manager) runAndMark(ctx context.Context, name string) Result {
	start := m.now()
	n, errs := m.run(ctx, name)
	r := Result{
		Source:         name,
		Success:        n > 0 || len(errs) == 0,
		RecordsUpdated: n,
		Duration:       m.now().Sub(start),
		Timestamp:      start.UTC(),
	}
	for _, err := range errs {
		r.Errors = append(r.Errors, err.Error())
	}

	status := "success"
	if !r.Success {
		status = "failed"
	}
	if err := m.deps.Sources.MarkRun(ctx, name, start, status); err != nil {
		m.logger.Warn().Err(err).Str("source", name).Msg("Could not record refresh run")
	}
	var ev *observability.LogEvent
	if r.Success {
		ev = m.logger.Info()
	} else {
		ev = m.logger.Warn().Strs("errors", r.Errors)
	}
	ev.Str("source", name).Int("records", n).Dur("duration", r.Duration).Msg("Source refreshed")
	return r
}

func (m *Manager) detectAndAlert(ctx context.Context) {
	if m.deps.Tracker == nil {
		return
	}
	changes, err := m.deps.Tracker.DetectSignificantChanges(ctx)
	if err != nil {
		m.logger.Error().Err(err).Msg("Change detection failed")
		return
	}
	if len(changes) == 0 {
		return
	}
	if err := m.deps.Tracker.StoreChanges(ctx, changes); err != nil {
		m.logger.Warn().Err(err).Msg("Could not store detected changes")
	}
	if m.deps.Alerts != nil {
		m.deps.Alerts.SendAlerts(ctx, changes)
	}
}

// run returns the records written and the per-item errors.
func (m *Manager) run(ctx context.Context, name string) (int, []error) {
	switch name {
	case SourceCSVImports:
		return m.importCSV(ctx)
	}
	if m.deps.Fetcher == nil {
		return 0, []error{ErrNoResearchClient}
	}
	switch name {
	case SourceMarketTrends:
		return m.marketTrends(ctx)
	case SourceDevelopmentNews:
		return m.developmentNews(ctx)
	case SourceEconomicData:
		return m.economicData(ctx)
	case SourceRentalMarket:
		return m.rentalMarket(ctx)
	case SourcePermits:
		return m.permits(ctx)
	}
	return 0, []error{fmt.Errorf("%w: %s", ErrUnknownSource, name)}
}

func (m *Manager) marketTrends(ctx context.Context) (int, []error) {
	var n int
	var errs []error
	for _, q := range MarketQueries {
		data, err := m.deps.Fetcher.FetchMarketData(ctx, q)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", q, err))
			continue
		}
		row := &storage.MarketIntelligence{
			DataType:    storage.DataTypeMarketTrend,
			MetricName:  ptr(data.Topic),
			MetricValue: ptr(data.Summary),
			Unit:        ptr(data.Unit),
			Period:      ptr("monthly"),
			Category:    ptr("perplexity_research"),
			SubCategory: ptr("market_trends"),
			DataDate:    ptr(data.FetchedAt),
			Metadata: storage.NewJSON(map[string]interface{}{
				"query":         data.Query,
				"numbers":       data.Numbers,
				"neighborhoods": data.Neighborhoods,
			}),
		}
		if len(data.Numbers) > 0 {
			row.NumericValue = ptr(data.Numbers[0])
		}
		if err := m.deps.Metrics.Create(ctx, row); err != nil {
			errs = append(errs, fmt.Errorf("store %s: %w", data.Topic, err))
			continue
		}
		n++
	}
	return n, errs
}

func (m *Manager) developmentNews(ctx context.Context) (int, []error) {
	var n int
	var errs []error
	for _, q := range DevelopmentQueries {
		news, err := m.deps.Fetcher.FetchDevelopmentNews(ctx, q)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", q, err))
			continue
		}
		for _, p := range news.Projects {
			exists, err := m.deps.Projects.ExistsByProjectName(ctx, p.Name)
			if err != nil {
				errs = append(errs, fmt.Errorf("lookup %s: %w", p.Name, err))
				continue
			}
			if exists {
				continue
			}
			if err := m.deps.Projects.Create(ctx, announcedProject(p, news.FetchedAt)); err != nil {
				errs = append(errs, fmt.Errorf("store %s: %w", p.Name, err))
				continue
			}
			n++
		}
	}
	return n, errs
}

func announcedProject(p Project, at time.Time) *storage.ConstructionActivity {
	address := "Houston, TX"
	var neighborhood *string
	if p.Location != "" {
		address = p.Location + ", Houston, TX"
		neighborhood = ptr(p.Location)
	}
	c := &storage.ConstructionActivity{
		PermitNumber:  "PPLX-" + strings.ToUpper(uuid.NewString()[:8]),
		PermitType:    "announced_project",
		SubType:       ptr(p.Type),
		Address:       address,
		Neighborhood:  neighborhood,
		ProjectName:   ptr(p.Name),
		EstimatedCost: p.Value,
		PermitDate:    at,
		Status:        "announced",
		Description:   ptr(p.Description),
		Metadata:      storage.NewJSON(map[string]string{"source": "perplexity"}),
	}
	if p.Developer != "" {
		c.Developer = ptr(p.Developer)
	}
	return c
}

func (m *Manager) economicData(ctx context.Context) (int, []error) {
	var n int
	var errs []error
	for _, q := range EconomicQueries {
		data, err := m.deps.Fetcher.FetchEconomicData(ctx, q)
		if errors.Is(err, ErrNoFigures) {
			continue
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", q, err))
			continue
		}
		meta := map[string]interface{}{"query": data.Query}
		if data.Change != nil {
			meta["change"] = *data.Change
		}
		row := &storage.MarketIntelligence{
			DataType:     storage.DataTypeEconomic,
			Neighborhood: ptr(defaultArea),
			MetricName:   ptr(data.Indicator),
			NumericValue: ptr(data.Value),
			Unit:         ptr(data.Unit),
			Period:       ptr(data.Period),
			Category:     ptr("economic"),
			SubCategory:  ptr("perplexity_research"),
			DataDate:     ptr(data.FetchedAt),
			Metadata:     storage.NewJSON(meta),
		}
		if err := m.deps.Metrics.Create(ctx, row); err != nil {
			errs = append(errs, fmt.Errorf("store %s: %w", data.Indicator, err))
			continue
		}
		n++
	}
	return n, errs
}

func (m *Manager) rentalMarket(ctx context.Context) (int, []error) {
	rents, occupancy, err := m.deps.Fetcher.FetchRentalRates(ctx)
	if err != nil {
		return 0, []error{err}
	}
	at := m.now().UTC()
	var rows []*storage.MarketIntelligence
	for _, name := range Neighborhoods {
		rent, ok := rents[name]
		if !ok {
			continue
		}
		rows = append(rows, &storage.MarketIntelligence{
			DataType:     storage.DataTypeRental,
			Neighborhood: ptr(name),
			MetricName:   ptr("Average Rent"),
			NumericValue: ptr(rent),
			Unit:         ptr("$"),
			Period:       ptr("monthly"),
			Category:     ptr("perplexity_research"),
			SubCategory:  ptr("rental"),
			DataDate:     ptr(at),
		})
	}
	if occupancy != nil {
		rows = append(rows, &storage.MarketIntelligence{
			DataType:     storage.DataTypeOccupancy,
			Neighborhood: ptr(defaultArea),
			MetricName:   ptr("Occupancy Rate"),
			NumericValue: occupancy,
			Unit:         ptr("%"),
			Period:       ptr("monthly"),
			Category:     ptr("perplexity_research"),
			SubCategory:  ptr("occupancy"),
			DataDate:     ptr(at),
		})
	}
	return m.storeRows(ctx, rows)
}

func (m *Manager) permits(ctx context.Context) (int, []error) {
	count, ok, err := m.deps.Fetcher.FetchPermitCount(ctx)
	if err != nil {
		return 0, []error{err}
	}
	if !ok {
		return 0, nil
	}
	return m.storeRows(ctx, []*storage.MarketIntelligence{{
		DataType:     storage.DataTypePermits,
		Neighborhood: ptr(defaultArea),
		MetricName:   ptr("Construction Permits"),
		NumericValue: ptr(float64(count)),
		Unit:         ptr("permits"),
		Period:       ptr("monthly"),
		Category:     ptr("perplexity_research"),
		SubCategory:  ptr("permits"),
		DataDate:     ptr(m.now().UTC()),
	}})
}

func (m *Manager) storeRows(ctx context.Context, rows []*storage.MarketIntelligence) (int, []error) {
	var n int
	var errs []error
	for _, row := range rows {
		if err := m.deps.Metrics.Create(ctx, row); err != nil {
			errs = append(errs, fmt.Errorf("store %s: %w", deref(row.MetricName, row.DataType), err))
			continue
		}
		n++
	}
	return n, errs
}

func (m *Manager) importCSV(ctx context.Context) (int, []error) {
	if m.deps.Importer == nil {
		return 0, []error{ErrNoImporter}
	}
	results, err := m.deps.Importer.ImportAll(ctx)
	if err != nil {
		return 0, []error{err}
	}
	var n int
	var errs []error
	for _, r := range results {
		if r == nil {
			continue
		}
		n += r.RecordsImported
		if !r.Success {
			errs = append(errs, fmt.Errorf("%s: %s", r.Category, strings.Join(r.Errors, "; ")))
		}
	}
	return n, errs
}

func ptr[T any](v T) *T { return &v }
