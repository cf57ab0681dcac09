package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fernando-x/platform/libs/intelligence-engine/internal/observability"
	"github.com/fernando-x/platform/libs/intelligence-engine/internal/storage"
)

// HarReportYear is the year every HAR MLS folder reports on.
const HarReportYear = 2025

// MonthMapping ties a report folder to its period.
type MonthMapping struct {
	Folder      string `json:"folder"`
	Month       int    `json:"month"`
	ReportType  string `json:"report_type"`
	Description string `json:"description"`
}

// Key names the mapping as <MonthName>_<reportType>.
func (m MonthMapping) Key() string {
	return MonthName(m.Month) + "_" + m.ReportType
}

// DefaultMonthMappings lists the HAR MLS report folders.
var DefaultMonthMappings = []MonthMapping{
	{"Houston Association of Realtors (HAR) MLS Data Rep", 1, "monthly", "January 2025 HAR MLS Report"},
	{"Houston Association of Realtors MLS Market Report", 2, "monthly", "February 2025 HAR MLS Market Report"},
	{"Houston Association of Realtors (HAR) MLS Data Ana", 3, "monthly", "March 2025 HAR MLS Data Analysis"},
	{"Houston Association of Realtors MLS Market Analysi", 4, "monthly", "April 2025 HAR MLS Market Analysis"},
	{"Houston Association of Realtors MLS Market Analysi-June", 6, "monthly", "June 2025 HAR MLS Market Analysis"},
	{"Houston Association of Realtors MLS Data Report_ J", 7, "monthly", "July 2025 HAR MLS Data Report"},
	{"Houston Metro Area Real Estate Market Analysis_ Ju", 7, "monthly", "July 2025 Houston Metro Market Analysis"},
	{"Houston Real Estate Market Analysis_ August-Decemb", 8, "seasonal", "August-December 2025 Seasonal Analysis"},
	{"Harris County Texas Summer 2025 Real Estate Market", 6, "seasonal", "Summer 2025 Real Estate Market Analysis"},
}

var monthNames = []string{
	"January", "February", "March", "April", "May", "June",
	"July", "August", "September", "October", "November", "December",
}

// MonthName returns the English month name, or Unknown.
func MonthName(month int) string {
	if month < 1 || month > 12 {
		return "Unknown"
	}
	return monthNames[month-1]
}

var (
	summaryTokens      = []string{"summary", "metrics", "houston_mls", "market_summary"}
	neighborhoodTokens = []string{"neighborhood", "zip_code", "regional", "areas"}
)

// MonthResult is the import outcome for one mapping.
type MonthResult struct {
	ImportResult
	Key         string    `json:"key"`
	Month       int       `json:"month"`
	ReportType  string    `json:"report_type"`
	Description string    `json:"description"`
	ReportID    uuid.UUID `json:"report_id"`
}

// ReportStatus is one line of the import status listing.
type ReportStatus struct {
	Month             string    `json:"month"`
	Type              string    `json:"type"`
	TotalSales        int       `json:"total_sales"`
	AvgPrice          float64   `json:"avg_price"`
	NeighborhoodCount int       `json:"neighborhood_count"`
	ImportedAt        time.Time `json:"imported_at"`
}

// HarMlsImporter loads the monthly HAR MLS report folders.
type HarMlsImporter struct {
	logger   *observability.Logger
	repo     *storage.HarMlsRepository
	baseDir  string
	mappings []MonthMapping
	now      func() time.Time
}

// NewHarMlsImporter creates an importer over baseDir using the default mappings.
func NewHarMlsImporter(logger *observability.Logger, repo *storage.HarMlsRepository, baseDir string) *HarMlsImporter {
	return &HarMlsImporter{
		logger:   logger.WithComponent("har_mls"),
		repo:     repo,
		baseDir:  baseDir,
		mappings: DefaultMonthMappings,
		now:      time.Now,
	}
}

// Mappings returns the folder mappings in import order.
func (h *HarMlsImporter) Mappings() []MonthMapping {
	return h.mappings
}

// ImportAll imports every mapping in order. Months run sequentially because
// several mappings share a report key.
func (h *HarMlsImporter) ImportAll(ctx context.Context) ([]*MonthResult, error) {
	results := make([]*MonthResult, 0, len(h.mappings))
	var imported, failed int
	for _, m := range h.mappings {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res := h.importMapping(ctx, m)
		results = append(results, res)
		imported += res.RecordsImported
		failed += res.Failed
	}

	h.logger.Info().
		Int("reports", len(results)).
		Int("imported", imported).
		Int("failed", failed).
		Msg("HAR MLS import completed")
	return results, nil
}

// ImportMonth imports the first mapping for month.
func (h *HarMlsImporter) ImportMonth(ctx context.Context, month int) *MonthResult {
	for _, m := range h.mappings {
		if m.Month == month {
			return h.importMapping(ctx, m)
		}
	}
	return &MonthResult{
		ImportResult: ImportResult{
			Category: "har-mls",
			Errors:   []string{fmt.Sprintf("No mapping found for month %d", month)},
		},
		Month: month,
	}
}

// Status summarises the imported reports of the HAR year.
func (h *HarMlsImporter) Status(ctx context.Context) ([]ReportStatus, error) {
	rows, err := h.repo.ImportStatus(ctx, HarReportYear)
	if err != nil {
		return nil, fmt.Errorf("import status: %w", err)
	}
	out := make([]ReportStatus, len(rows))
	for i, r := range rows {
		out[i] = ReportStatus{
			Month:             MonthName(r.Month),
			Type:              r.ReportType,
			TotalSales:        r.TotalSales,
			AvgPrice:          r.AvgSalePrice,
			NeighborhoodCount: r.NeighborhoodCount,
			ImportedAt:        r.ImportedAt,
		}
	}
	return out, nil
}

func (h *HarMlsImporter) importMapping(ctx context.Context, m MonthMapping) *MonthResult {
	start := h.now()
	res := &MonthResult{
		ImportResult: ImportResult{Category: "har-mls", Success: true},
		Key:          m.Key(),
		Month:        m.Month,
		ReportType:   m.ReportType,
		Description:  m.Description,
	}
	log := h.logger.With().Str("folder", m.Folder).Int("month", m.Month).Str("report_type", m.ReportType).Logger()

	dir := filepath.Join(h.baseDir, m.Folder)
	files, err := csvFiles(dir)
	if os.IsNotExist(err) {
		log.Warn().Msg("Folder not found")
		res.Success = false
		res.Errors = append(res.Errors, "Folder not found: "+m.Folder)
		return res
	}
	if err != nil {
		res.Success = false
		res.Errors = append(res.Errors, err.Error())
		return res
	}

	var reportID uuid.UUID
	for _, file := range files {
		if !containsAny(file, summaryTokens) {
			continue
		}
		id, err := h.importSummary(ctx, filepath.Join(dir, file), m)
		if err != nil {
			res.fail("%s: %v", file, err)
			log.Warn().Err(err).Str("file", file).Msg("Summary import failed")
			continue
		}
		reportID = id
		res.RecordsImported++
	}

	if reportID == uuid.Nil {
		id, err := h.repo.EnsureDefaultReport(ctx, m.Month, HarReportYear, m.ReportType, storage.NewJSON(map[string]interface{}{
			"source":      "default_creation",
			"importDate":  h.now().UTC(),
			"description": m.Description,
			"note":        "Created as default when no summary data found",
		}))
		if err != nil {
			res.Success = false
			res.Errors = append(res.Errors, fmt.Sprintf("create default report: %v", err))
			log.Error().Err(err).Msg("Default report creation failed")
			return res
		}
		reportID = id
		res.RecordsImported++
	}
	res.ReportID = reportID

	for _, file := range files {
		if !containsAny(file, neighborhoodTokens) {
			continue
		}
		rows, err := ReadCSVFile(filepath.Join(dir, file))
		if err != nil {
			res.fail("%s: %v", file, err)
			continue
		}
		for _, row := range rows {
			if err := h.repo.CreateNeighborhood(ctx, neighborhoodFromRow(reportID, file, row, h.now())); err != nil {
				res.fail("Neighborhood %s: %v", stringOr(row["Neighborhood"], "Unknown"), err)
				continue
			}
			res.RecordsImported++
		}
		log.Debug().Str("file", file).Int("rows", len(rows)).Msg("Processed neighborhood file")
	}

	res.Duration = h.now().Sub(start)
	log.Info().
		Int("imported", res.RecordsImported).
		Int("failed", res.Failed).
		Msg("Imported " + m.Description)
	return res
}

func (h *HarMlsImporter) importSummary(ctx context.Context, path string, m MonthMapping) (uuid.UUID, error) {
	rows, err := ReadCSVFile(path)
	if err != nil {
		return uuid.Nil, err
	}
	summary := Row{}
	if len(rows) > 0 {
		summary = rows[0]
	}

	report := reportFromRow(summary)
	report.Month = m.Month
	report.Year = HarReportYear
	report.ReportType = m.ReportType
	report.Metadata = storage.NewJSON(map[string]interface{}{
		"source":       filepath.Base(path),
		"importDate":   h.now().UTC(),
		"originalData": summary,
		"description":  m.Description,
	})
	return h.repo.UpsertReport(ctx, report)
}

func reportFromRow(r Row) *storage.HarMlsReport {
	return &storage.HarMlsReport{
		TotalSales:      IntOrZero(Field(r, "Total_Sales", "Sales", "Closed_Sales")),
		TotalVolume:     FloatOrZero(Field(r, "Total_Volume", "Sales_Volume")),
		AvgSalePrice:    FloatOrZero(Field(r, "Avg_Sale_Price", "Average_Price", "Avg_Price")),
		MedianSalePrice: FloatOrZero(Field(r, "Median_Sale_Price", "Median_Price")),
		PricePerSqft:    FloatOrZero(Field(r, "Price_Per_Sqft", "Price_Per_SF")),
		SalesChangeYoY:  FloatOrZero(Field(r, "Sales_Change_YoY", "Sales_YoY")),
		PriceChangeYoY:  FloatOrZero(Field(r, "Price_Change_YoY", "Price_YoY")),
		VolumeChangeYoY: FloatOrZero(Field(r, "Volume_Change_YoY", "Volume_YoY")),
		ActiveListings:  IntOrZero(Field(r, "Active_Listings", "Active", "For_Sale")),
		NewListings:     IntOrZero(Field(r, "New_Listings", "New")),
		PendingSales:    IntOrZero(Field(r, "Pending_Sales", "Pending", "Under_Contract")),
		MonthsInventory: FloatOrZero(Field(r, "Months_Inventory", "Months_Supply", "Inventory")),
		AvgDaysOnMarket: IntOrZero(Field(r, "Days_On_Market", "DOM", "Avg_DOM")),
		Under200k:       IntOrZero(Field(r, "Under_200k", "<$200k")),
		From200to400k:   IntOrZero(Field(r, "From_200k_400k", "$200k-$400k")),
		From400to600k:   IntOrZero(Field(r, "From_400k_600k", "$400k-$600k")),
		From600to800k:   IntOrZero(Field(r, "From_600k_800k", "$600k-$800k")),
		From800kTo1M:    IntOrZero(Field(r, "From_800k_1M", "$800k-$1M")),
		Over1M:          IntOrZero(Field(r, "Over_1M", ">$1M")),
		SingleFamily:    IntOrZero(Field(r, "Single_Family", "SF")),
		Townhouse:       IntOrZero(Field(r, "Townhouse", "TH")),
		Condo:           IntOrZero(Field(r, "Condo", "Condominium")),
	}
}

func neighborhoodFromRow(reportID uuid.UUID, file string, r Row, now time.Time) *storage.HarNeighborhoodData {
	ratio := FloatOrZero(Field(r, "List_To_Sale_Ratio", "SP_LP_Ratio"))
	concessions := FloatOrZero(Field(r, "Seller_Concessions", "Concessions"))
	return &storage.HarNeighborhoodData{
		ReportID:          reportID,
		Neighborhood:      stringOr(Field(r, "Neighborhood", "Area", "Submarket", "Market_Area"), "Unknown"),
		ZipCode:           SafeString(Field(r, "ZIP_Code", "Zip", "zipCode")),
		TotalSales:        IntOrZero(Field(r, "Total_Sales", "Sales", "Closed_Sales")),
		AvgSalePrice:      FloatOrZero(Field(r, "Avg_Sale_Price", "Average_Price", "Avg_Price")),
		MedianSalePrice:   FloatOrZero(Field(r, "Median_Sale_Price", "Median_Price")),
		PricePerSqft:      FloatOrZero(Field(r, "Price_Per_Sqft", "Price_Per_SF")),
		ActiveListings:    IntOrZero(Field(r, "Active_Listings", "Active", "For_Sale")),
		MonthsInventory:   FloatOrZero(Field(r, "Months_Inventory", "Months_Supply", "Inventory")),
		AvgDaysOnMarket:   IntOrZero(Field(r, "Days_On_Market", "DOM", "Avg_DOM")),
		ListToSaleRatio:   &ratio,
		SellerConcessions: &concessions,
		Metadata: storage.NewJSON(map[string]interface{}{
			"source":       file,
			"importDate":   now.UTC(),
			"originalData": r,
		}),
	}
}

func csvFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".csv") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func containsAny(name string, tokens []string) bool {
	for _, t := range tokens {
		if strings.Contains(name, t) {
			return true
		}
	}
	return false
}
