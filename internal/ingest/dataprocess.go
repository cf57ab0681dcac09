// Package ingest imports the DataProcess3 research exports and HAR MLS
// reports into the Fernando-X database.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fernando-x/platform/libs/intelligence-engine/internal/observability"
	"github.com/fernando-x/platform/libs/intelligence-engine/internal/storage"
)

// DataProcess3 categories in import order.
const (
	CategoryCompetitive         = "competitive-analysis"
	CategoryConstruction        = "construction-activity"
	CategoryFinancial           = "financial-performance"
	CategoryCost                = "cost-analysis"
	CategoryMicroMarket         = "micro-market"
	CategoryInvestmentSentiment = "investment-sentiment"
	CategoryMLSRealtime         = "mls-realtime"
	CategoryInfrastructure      = "infrastructure"
	CategoryQualityOfLife       = "quality-of-life"
)

// ErrUnknownCategory is returned by ImportCategory for a name outside Categories.
var ErrUnknownCategory = errors.New("unknown category")

var (
	defaultDataDate = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	q4DataDate      = time.Date(2024, 10, 1, 0, 0, 0, 0, time.UTC)
)

// ImportResult reports the outcome of importing one category or month.
type ImportResult struct {
	Category        string        `json:"category"`
	Success         bool          `json:"success"`
	RecordsImported int           `json:"records_imported"`
	Failed          int           `json:"failed"`
	Errors          []string      `json:"errors,omitempty"`
	Duration        time.Duration `json:"duration"`
}

// Total is imported plus failed rows.
func (r *ImportResult) Total() int {
	return r.RecordsImported + r.Failed
}

func (r *ImportResult) fail(format string, args ...interface{}) {
	r.Failed++
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// ProgressEvent is emitted after each file of a category is processed.
type ProgressEvent struct {
	Category  string
	File      string
	FileIndex int
	FileCount int
	Imported  int
}

// ProgressFunc observes import progress. It may be called concurrently for
// different categories.
type ProgressFunc func(ProgressEvent)

// rowFunc stores one CSV row. file is relative to the base directory.
type rowFunc func(ctx context.Context, file string, row Row) error

type category struct {
	name  string
	files func(base string) ([]string, error)
	store rowFunc
}

// DataProcessImporter loads the DataProcess3 folder tree.
type DataProcessImporter struct {
	logger      *observability.Logger
	repos       *storage.Repositories
	baseDir     string
	concurrency int
	progress    ProgressFunc
	seq         atomic.Int64
	categories  []category
}

// DataProcessConfig configures the importer.
type DataProcessConfig struct {
	BaseDir     string
	Concurrency int
	Progress    ProgressFunc
}

// NewDataProcessImporter creates an importer over cfg.BaseDir.
func NewDataProcessImporter(logger *observability.Logger, repos *storage.Repositories, cfg DataProcessConfig) *DataProcessImporter {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 3
	}
	imp := &DataProcessImporter{
		logger:      logger.WithComponent("dataprocess3"),
		repos:       repos,
		baseDir:     cfg.BaseDir,
		concurrency: cfg.Concurrency,
		progress:    cfg.Progress,
	}
	imp.categories = []category{
		{CategoryCompetitive, fixedFiles(
			"Competitive Intelligence_ Texas Real Estate Market/houston_development_platforms.csv",
			"Competitive Intelligence_ Texas Real Estate Market/texas_county_comparison_2024.csv",
			"Competitive Intelligence_ Texas Real Estate Market/texas_investment_metrics_2024.csv",
		), imp.storeCompetitive},
		{CategoryConstruction, scanDirs(
			[]string{"Harris County Texas Construction Activity Report_", "Houston Micro-Market Intelligence Report 2024"},
			func(name string) bool {
				return strings.Contains(name, "construction") || strings.Contains(name, "permit") || strings.Contains(name, "activity")
			},
		), imp.storeConstruction},
		{CategoryFinancial, fixedFiles(
			"Harris County Real Estate Financial Performance An/harris_county_real_estate_performance_2024.csv",
		), imp.storeFinancial},
		{CategoryCost, fixedFiles(
			"Harris County Texas and Houston Metro Area Cost An/construction_costs_2024.csv",
			"Harris County Texas and Houston Metro Area Cost An/labor_rates_2024.csv",
			"Harris County Texas and Houston Metro Area Cost An/land_prices_2024.csv",
			"Harris County Texas and Houston Metro Area Cost An/permit_fees_2024.csv",
		), imp.storeCost},
		{CategoryMicroMarket, fixedFiles(
			"Houston Micro-Market Intelligence Report 2024/houston_micro_market_intelligence.csv",
			"Houston Micro-Market Intelligence Report 2024/houston_gentrification_indicators.csv",
			"Houston Micro-Market Intelligence Report 2024/houston_isd_ratings.csv",
			"Houston Micro-Market Intelligence Report 2024/school_district_property_impact.csv",
			"Houston Micro-Market Intelligence Report 2024/houston_property_values.csv",
		), imp.storeMicroMarket},
		{CategoryInvestmentSentiment, fixedFiles(
			"Investment Sentiment and International Capital Flo/houston_institutional_investor_activity.csv",
			"Investment Sentiment and International Capital Flo/houston_international_investment.csv",
			"Investment Sentiment and International Capital Flo/houston_market_outlook_2024.csv",
		), imp.storeInvestmentSentiment},
		{CategoryMLSRealtime, fixedFiles(
			"MLS-Real-Time/harris_county_real_estate_market_data_q4_2024.csv",
			"MLS-Real-Time/houston_zip_code_breakdown_q4_2024.csv",
		), imp.storeMLSRealtime},
		{CategoryInfrastructure, fixedFiles(
			"Major Infrastructure and Climate Resilience Invest/harris_county_major_projects.csv",
		), imp.storeInfrastructure},
		{CategoryQualityOfLife, scanDirs(
			[]string{"Quality of Life Metrics_ Houston and Harris County"},
			func(string) bool { return true },
		), imp.storeQualityOfLife},
	}
	return imp
}

// Categories lists the category names in import order.
func (imp *DataProcessImporter) Categories() []string {
	names := make([]string, len(imp.categories))
	for i, c := range imp.categories {
		names[i] = c.name
	}
	return names
}

// ImportAll imports every category concurrently and returns results in
// category order.
func (imp *DataProcessImporter) ImportAll(ctx context.Context) ([]*ImportResult, error) {
	results := make([]*ImportResult, len(imp.categories))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(imp.concurrency)
	for i, c := range imp.categories {
		i, c := i, c
		g.Go(func() error {
			results[i] = imp.run(gctx, c)
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}

	var imported, failed int
	for _, r := range results {
		imported += r.RecordsImported
		failed += r.Failed
	}
	imp.logger.Info().
		Int("categories", len(results)).
		Int("imported", imported).
		Int("failed", failed).
		Msg("DataProcess3 import completed")
	return results, nil
}

// ImportCategory imports a single category by name.
func (imp *DataProcessImporter) ImportCategory(ctx context.Context, name string) (*ImportResult, error) {
	for _, c := range imp.categories {
		if c.name == name {
			return imp.run(ctx, c), nil
		}
	}
	return nil, fmt.Errorf("%w %q", ErrUnknownCategory, name)
}

func (imp *DataProcessImporter) run(ctx context.Context, c category) *ImportResult {
	start := time.Now()
	result := &ImportResult{Category: c.name, Success: true}
	log := imp.logger.With().Str("category", c.name).Logger()

	files, err := c.files(imp.baseDir)
	if err != nil {
		result.Success = false
		result.Errors = append(result.Errors, err.Error())
		log.Error().Err(err).Msg("List category files failed")
		return result
	}

	for i, file := range files {
		if ctx.Err() != nil {
			result.Success = false
			result.Errors = append(result.Errors, ctx.Err().Error())
			break
		}

		path := filepath.Join(imp.baseDir, filepath.FromSlash(file))
		if _, err := os.Stat(path); err != nil {
			log.Debug().Str("file", file).Msg("File not found, skipping")
			imp.emit(c.name, file, i, len(files), 0)
			continue
		}

		rows, err := ReadCSVFile(path)
		if err != nil {
			result.Success = false
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", file, err))
			log.Warn().Err(err).Str("file", file).Msg("Read CSV failed")
			imp.emit(c.name, file, i, len(files), 0)
			continue
		}

		before := result.RecordsImported
		for _, row := range rows {
			if err := c.store(ctx, file, row); err != nil {
				result.fail("%s: %v", file, err)
				continue
			}
			result.RecordsImported++
		}

		log.Info().
			Str("file", file).
			Int("rows", len(rows)).
			Int("imported", result.RecordsImported-before).
			Msg("Processed file")
		imp.emit(c.name, file, i, len(files), result.RecordsImported-before)
	}

	result.Duration = time.Since(start)
	return result
}

func (imp *DataProcessImporter) emit(category, file string, idx, count, imported int) {
	if imp.progress == nil {
		return
	}
	imp.progress(ProgressEvent{Category: category, File: file, FileIndex: idx, FileCount: count, Imported: imported})
}

func fixedFiles(files ...string) func(string) ([]string, error) {
	return func(string) ([]string, error) { return files, nil }
}

// scanDirs lists *.csv files in dirs whose lower-cased name passes match.
// Missing directories are skipped.
func scanDirs(dirs []string, match func(name string) bool) func(string) ([]string, error) {
	return func(base string) ([]string, error) {
		var files []string
		for _, dir := range dirs {
			entries, err := os.ReadDir(filepath.Join(base, dir))
			if os.IsNotExist(err) {
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("read dir %s: %w", dir, err)
			}
			var names []string
			for _, e := range entries {
				name := e.Name()
				if e.IsDir() || !strings.HasSuffix(strings.ToLower(name), ".csv") {
					continue
				}
				if match(strings.ToLower(name)) {
					names = append(names, name)
				}
			}
			sort.Strings(names)
			for _, n := range names {
				files = append(files, dir+"/"+n)
			}
		}
		return files, nil
	}
}

func (imp *DataProcessImporter) nextID(prefix string) string {
	return fmt.Sprintf("%s-%d-%d", prefix, time.Now().Unix(), imp.seq.Add(1))
}

func metadata(file string, row Row, extra map[string]interface{}) storage.JSON {
	m := map[string]interface{}{"source": file, "originalData": row}
	for k, v := range extra {
		m[k] = v
	}
	return storage.NewJSON(m)
}

func dataDate(t time.Time) *time.Time {
	return &t
}

func (imp *DataProcessImporter) storeCompetitive(ctx context.Context, file string, row Row) error {
	return imp.repos.Market.Create(ctx, &storage.MarketIntelligence{
		DataType:        storage.DataTypeCompetitive,
		ZipCode:         SafeString(Field(row, "ZIP_Code", "zipCode")),
		Neighborhood:    SafeString(Field(row, "Area", "County", "Platform", "City")),
		MarketShare:     SafeFloat(Field(row, "Market_Share", "market_share")),
		Competitors:     SafeInt(Field(row, "Competitors", "Platform_Count")),
		CapRate:         SafeFloat(Field(row, "Cap_Rate", "cap_rate")),
		ROI:             SafeFloat(Field(row, "ROI", "roi", "Return_Rate")),
		InvestmentScore: SafeFloat(Field(row, "Investment_Score", "Score")),
		DataDate:        dataDate(defaultDataDate),
		Metadata: metadata(file, row, map[string]interface{}{
			"platformType": SafeString(Field(row, "Platform_Type", "Type")),
			"county":       SafeString(row["County"]),
		}),
	})
}

func (imp *DataProcessImporter) storeConstruction(ctx context.Context, file string, row Row) error {
	return imp.repos.Construction.Create(ctx, &storage.ConstructionActivity{
		PermitNumber:  stringOr(row["Permit_Number"], imp.nextID("AUTO")),
		PermitType:    stringOr(Field(row, "Type", "Permit_Type", "Project_Type"), "residential"),
		SubType:       SafeString(Field(row, "Sub_Type", "Construction_Type")),
		Address:       stringOr(Field(row, "Address", "Location"), "Harris County, TX"),
		ZipCode:       stringOr(Field(row, "ZIP_Code", "zipCode"), "77001"),
		Neighborhood:  SafeString(Field(row, "Neighborhood", "Area")),
		Precinct:      SafeString(row["Precinct"]),
		ProjectName:   SafeString(Field(row, "Project_Name", "Development")),
		Developer:     SafeString(row["Developer"]),
		Contractor:    SafeString(row["Contractor"]),
		EstimatedCost: SafeFloat(Field(row, "Estimated_Cost", "Cost", "Value")),
		SquareFootage: SafeInt(Field(row, "Square_Footage", "sqft", "SF")),
		Units:         SafeInt(Field(row, "Units", "Dwelling_Units")),
		PermitDate:    dateOr(Field(row, "Permit_Date", "Date", "Issue_Date"), defaultDataDate),
		Status:        stringOr(row["Status"], "active"),
		Metadata: metadata(file, row, map[string]interface{}{
			"permitFee": SafeFloat(row["Permit_Fee"]),
		}),
	})
}

func (imp *DataProcessImporter) storeFinancial(ctx context.Context, file string, row Row) error {
	return imp.repos.Market.Create(ctx, &storage.MarketIntelligence{
		DataType:        storage.DataTypeFinancial,
		ZipCode:         SafeString(Field(row, "ZIP_Code", "zipCode")),
		Neighborhood:    SafeString(Field(row, "Area", "Submarket", "Market")),
		CapRate:         SafeFloat(Field(row, "Cap_Rate", "cap_rate", "CapRate")),
		ROI:             SafeFloat(Field(row, "ROI", "Annual_Return", "Return")),
		InvestmentScore: SafeFloat(Field(row, "Performance_Score", "Score")),
		DataDate:        dataDate(defaultDataDate),
		Metadata: metadata(file, row, map[string]interface{}{
			"avgRent":           SafeFloat(Field(row, "Avg_Rent", "Average_Rent")),
			"occupancyRate":     SafeFloat(Field(row, "Occupancy", "Occupancy_Rate")),
			"priceAppreciation": SafeFloat(row["Price_Appreciation"]),
		}),
	})
}

func costAnalysisType(file string) string {
	switch {
	case strings.Contains(file, "labor"):
		return "labor"
	case strings.Contains(file, "land"):
		return "land"
	case strings.Contains(file, "permit"):
		return "permits"
	default:
		return "construction"
	}
}

func (imp *DataProcessImporter) storeCost(ctx context.Context, file string, row Row) error {
	var fees storage.JSON
	if raw := strings.TrimSpace(row["Additional_Fees"]); raw != "" {
		if !json.Valid([]byte(raw)) {
			return fmt.Errorf("additional fees is not valid JSON")
		}
		fees = storage.JSON(raw)
	}

	return imp.repos.Costs.Create(ctx, &storage.CostAnalysis{
		AnalysisType:   costAnalysisType(filepath.Base(file)),
		Location:       stringOr(Field(row, "ZIP_Code", "Area", "Location"), "Houston"),
		CostPerSqft:    SafeFloat(Field(row, "Cost_Per_Sqft", "Price_Per_Sqft")),
		MaterialsCost:  SafeFloat(Field(row, "Materials_Cost", "Material_Cost")),
		LaborCost:      SafeFloat(row["Labor_Cost"]),
		HourlyRate:     SafeFloat(Field(row, "Hourly_Rate", "Rate")),
		SkillLevel:     SafeString(Field(row, "Skill_Level", "Trade_Level")),
		TradeType:      SafeString(Field(row, "Trade_Type", "Trade")),
		PricePerAcre:   SafeFloat(Field(row, "Price_Per_Acre", "Land_Price_Acre")),
		PricePerSqft:   SafeFloat(Field(row, "Land_Price_Sqft", "Price_SF")),
		PermitType:     SafeString(row["Permit_Type"]),
		BaseFee:        SafeFloat(Field(row, "Base_Fee", "Fee")),
		AdditionalFees: fees,
		EffectiveDate:  dateOr(row["Effective_Date"], defaultDataDate),
		Metadata:       metadata(file, row, nil),
	})
}

func (imp *DataProcessImporter) storeMicroMarket(ctx context.Context, file string, row Row) error {
	return imp.repos.Market.Create(ctx, &storage.MarketIntelligence{
		DataType:            storage.DataTypeMicroMarket,
		ZipCode:             SafeString(Field(row, "ZIP_Code", "zipCode")),
		Neighborhood:        SafeString(Field(row, "Neighborhood", "Area", "Micro_Market")),
		GentrificationScore: SafeFloat(Field(row, "Gentrification_Score", "Change_Index")),
		SchoolRating:        SafeFloat(Field(row, "Rating", "School_Rating", "ISD_Rating")),
		InvestmentScore:     SafeFloat(row["Investment_Score"]),
		DataDate:            dataDate(defaultDataDate),
		Metadata: metadata(file, row, map[string]interface{}{
			"avgValue":          SafeFloat(Field(row, "Avg_Value", "Property_Value")),
			"schoolImprovement": SafeString(row["School_Ratings_Improvement"]),
			"marketResponse":    SafeString(row["Market_Response_2024"]),
		}),
	})
}

func (imp *DataProcessImporter) storeInvestmentSentiment(ctx context.Context, file string, row Row) error {
	return imp.repos.Market.Create(ctx, &storage.MarketIntelligence{
		DataType:             storage.DataTypeInvestmentSentiment,
		ZipCode:              SafeString(Field(row, "ZIP_Code", "zipCode")),
		Neighborhood:         SafeString(Field(row, "Area", "Submarket")),
		ForeignInvestmentPct: SafeFloat(Field(row, "Foreign_Investment_Pct", "International_Pct")),
		InstitutionalPct:     SafeFloat(Field(row, "Institutional_Pct", "Institutional_Share")),
		DataDate:             dataDate(defaultDataDate),
		Metadata: metadata(file, row, map[string]interface{}{
			"sentiment":        SafeString(Field(row, "Sentiment", "Outlook")),
			"investmentVolume": SafeFloat(Field(row, "Volume", "Investment_Volume")),
		}),
	})
}

func (imp *DataProcessImporter) storeMLSRealtime(ctx context.Context, file string, row Row) error {
	return imp.repos.Market.Create(ctx, &storage.MarketIntelligence{
		DataType:     storage.DataTypeMLSRealtime,
		ZipCode:      SafeString(Field(row, "ZIP_Code", "zipCode")),
		Neighborhood: SafeString(Field(row, "Neighborhood", "Area")),
		DataDate:     dataDate(q4DataDate),
		Metadata: metadata(file, row, map[string]interface{}{
			"avgPrice":          SafeFloat(Field(row, "Avg_Price", "Average_Price", "Median_Home_Value")),
			"medianPrice":       SafeFloat(Field(row, "Median_Price", "Median_Home_Value")),
			"pricePerSqft":      SafeFloat(row["Price_Per_Sq_Ft"]),
			"totalSales":        SafeInt(Field(row, "Total_Sales", "Sales")),
			"daysOnMarket":      SafeInt(Field(row, "DOM", "Days_On_Market")),
			"marketTier":        SafeString(row["Market_Tier"]),
			"transactionVolume": SafeString(row["Q4_2024_Transaction_Volume"]),
		}),
	})
}

func (imp *DataProcessImporter) storeInfrastructure(ctx context.Context, file string, row Row) error {
	return imp.repos.Construction.Create(ctx, &storage.ConstructionActivity{
		PermitNumber:   imp.nextID("INFRA"),
		PermitType:     "infrastructure",
		SubType:        SafeString(stringOr(row["Project_Type"], "major-infrastructure")),
		Address:        stringOr(row["Location"], "Harris County, TX"),
		ZipCode:        stringOr(row["ZIP_Code"], "77001"),
		Neighborhood:   SafeString(row["Area"]),
		ProjectName:    SafeString(Field(row, "Project_Name", "Project")),
		Developer:      SafeString(stringOr(row["Agency"], "Harris County")),
		EstimatedCost:  SafeFloat(Field(row, "Budget", "Cost")),
		PermitDate:     dateOr(row["Start_Date"], defaultDataDate),
		CompletionDate: SafeDate(row["Completion_Date"]),
		Status:         stringOr(row["Status"], "active"),
		Metadata: metadata(file, row, map[string]interface{}{
			"fundingSource":     SafeString(row["Funding_Source"]),
			"climateResilience": strings.TrimSpace(row["Climate_Component"]) == "Yes",
		}),
	})
}

func (imp *DataProcessImporter) storeQualityOfLife(ctx context.Context, file string, row Row) error {
	return imp.repos.QualityOfLife.Create(ctx, &storage.QualityOfLife{
		ZipCode:        stringOr(Field(row, "ZIP_Code", "zipCode"), "77001"),
		Neighborhood:   SafeString(Field(row, "Neighborhood", "Area")),
		CrimeRate:      floatOr(Field(row, "Crime_Rate", "Crime_Index"), 0),
		CrimeReduction: SafeFloat(Field(row, "Crime_Reduction", "YoY_Change")),
		SafetyScore:    floatOr(row["Safety_Score"], 70),
		WalkScore:      floatOr(Field(row, "Walk_Score", "Walkability"), 50),
		TransitScore:   SafeFloat(row["Transit_Score"]),
		BikeScore:      SafeFloat(row["Bike_Score"]),
		DataDate:       defaultDataDate,
		Metadata:       metadata(file, row, nil),
	})
}
