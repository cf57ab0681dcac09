// Package storage provides database models and repositories for Fernando-X.
package storage

import (
	"time"

	"github.com/google/uuid"
)

// Market intelligence data types written by the importers and refreshers.
const (
	DataTypeCompetitive         = "competitive"
	DataTypeFinancial           = "financial-performance"
	DataTypeMicroMarket         = "micro-market"
	DataTypeInvestmentSentiment = "investment-sentiment"
	DataTypeMLSRealtime         = "mls-realtime"
	DataTypeMarketTrend         = "market-trend"
	DataTypeEconomic            = "economic"
	DataTypeRental              = "rental"
	DataTypeOccupancy           = "occupancy"
	DataTypePermits             = "permits"
	DataTypeTrendAlert          = "trend-alert"
)

// RefreshFrequency is how often a refresh source is due.
type RefreshFrequency string

const (
	FrequencyDaily   RefreshFrequency = "daily"
	FrequencyWeekly  RefreshFrequency = "weekly"
	FrequencyMonthly RefreshFrequency = "monthly"
)

// MarketIntelligence is a flat market metric row. Imported rows fill the
// typed columns; research rows fill the generic metric columns.
type MarketIntelligence struct {
	ID                   uuid.UUID  `json:"id"`
	DataType             string     `json:"data_type"`
	Neighborhood         *string    `json:"neighborhood,omitempty"`
	ZipCode              *string    `json:"zip_code,omitempty"`
	MarketShare          *float64   `json:"market_share,omitempty"`
	Competitors          *int       `json:"competitors,omitempty"`
	CapRate              *float64   `json:"cap_rate,omitempty"`
	ROI                  *float64   `json:"roi,omitempty"`
	InvestmentScore      *float64   `json:"investment_score,omitempty"`
	GentrificationScore  *float64   `json:"gentrification_score,omitempty"`
	SchoolRating         *float64   `json:"school_rating,omitempty"`
	ForeignInvestmentPct *float64   `json:"foreign_investment_pct,omitempty"`
	InstitutionalPct     *float64   `json:"institutional_pct,omitempty"`
	MetricName           *string    `json:"metric_name,omitempty"`
	MetricValue          *string    `json:"metric_value,omitempty"`
	NumericValue         *float64   `json:"numeric_value,omitempty"`
	Unit                 *string    `json:"unit,omitempty"`
	Period               *string    `json:"period,omitempty"`
	Category             *string    `json:"category,omitempty"`
	SubCategory          *string    `json:"sub_category,omitempty"`
	DataDate             *time.Time `json:"data_date,omitempty"`
	Metadata             JSON       `json:"metadata,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
}

// ConstructionActivity is a building permit or announced project.
type ConstructionActivity struct {
	ID             uuid.UUID  `json:"id"`
	PermitNumber   string     `json:"permit_number"`
	PermitType     string     `json:"permit_type"`
	SubType        *string    `json:"sub_type,omitempty"`
	Address        string     `json:"address"`
	ZipCode        string     `json:"zip_code"`
	Neighborhood   *string    `json:"neighborhood,omitempty"`
	Precinct       *string    `json:"precinct,omitempty"`
	ProjectName    *string    `json:"project_name,omitempty"`
	Developer      *string    `json:"developer,omitempty"`
	Contractor     *string    `json:"contractor,omitempty"`
	EstimatedCost  *float64   `json:"estimated_cost,omitempty"`
	SquareFootage  *int       `json:"square_footage,omitempty"`
	Units          *int       `json:"units,omitempty"`
	PermitDate     time.Time  `json:"permit_date"`
	CompletionDate *time.Time `json:"completion_date,omitempty"`
	Status         string     `json:"status"`
	Description    *string    `json:"description,omitempty"`
	Metadata       JSON       `json:"metadata,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// CostAnalysis is a construction, labor, land or permit cost record.
type CostAnalysis struct {
	ID             uuid.UUID `json:"id"`
	AnalysisType   string    `json:"analysis_type"`
	Location       string    `json:"location"`
	CostPerSqft    *float64  `json:"cost_per_sqft,omitempty"`
	MaterialsCost  *float64  `json:"materials_cost,omitempty"`
	LaborCost      *float64  `json:"labor_cost,omitempty"`
	HourlyRate     *float64  `json:"hourly_rate,omitempty"`
	SkillLevel     *string   `json:"skill_level,omitempty"`
	TradeType      *string   `json:"trade_type,omitempty"`
	PricePerAcre   *float64  `json:"price_per_acre,omitempty"`
	PricePerSqft   *float64  `json:"price_per_sqft,omitempty"`
	PermitType     *string   `json:"permit_type,omitempty"`
	BaseFee        *float64  `json:"base_fee,omitempty"`
	AdditionalFees JSON      `json:"additional_fees,omitempty"`
	EffectiveDate  time.Time `json:"effective_date"`
	Metadata       JSON      `json:"metadata,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// QualityOfLife holds safety and walkability metrics for an area.
type QualityOfLife struct {
	ID             uuid.UUID `json:"id"`
	ZipCode        string    `json:"zip_code"`
	Neighborhood   *string   `json:"neighborhood,omitempty"`
	CrimeRate      float64   `json:"crime_rate"`
	CrimeReduction *float64  `json:"crime_reduction,omitempty"`
	SafetyScore    float64   `json:"safety_score"`
	WalkScore      float64   `json:"walk_score"`
	TransitScore   *float64  `json:"transit_score,omitempty"`
	BikeScore      *float64  `json:"bike_score,omitempty"`
	DataDate       time.Time `json:"data_date"`
	Metadata       JSON      `json:"metadata,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// HarMlsReport is a monthly or seasonal HAR MLS market summary.
type HarMlsReport struct {
	ID              uuid.UUID `json:"id"`
	Month           int       `json:"month"`
	Year            int       `json:"year"`
	ReportType      string    `json:"report_type"`
	TotalSales      int       `json:"total_sales"`
	TotalVolume     float64   `json:"total_volume"`
	AvgSalePrice    float64   `json:"avg_sale_price"`
	MedianSalePrice float64   `json:"median_sale_price"`
	PricePerSqft    float64   `json:"price_per_sqft"`
	SalesChangeYoY  float64   `json:"sales_change_yoy"`
	PriceChangeYoY  float64   `json:"price_change_yoy"`
	VolumeChangeYoY float64   `json:"volume_change_yoy"`
	ActiveListings  int       `json:"active_listings"`
	NewListings     int       `json:"new_listings"`
	PendingSales    int       `json:"pending_sales"`
	MonthsInventory float64   `json:"months_inventory"`
	AvgDaysOnMarket int       `json:"avg_days_on_market"`
	Under200k       int       `json:"under_200k"`
	From200to400k   int       `json:"from_200_to_400k"`
	From400to600k   int       `json:"from_400_to_600k"`
	From600to800k   int       `json:"from_600_to_800k"`
	From800kTo1M    int       `json:"from_800k_to_1m"`
	Over1M          int       `json:"over_1m"`
	SingleFamily    int       `json:"single_family"`
	Townhouse       int       `json:"townhouse"`
	Condo           int       `json:"condo"`
	Metadata        JSON      `json:"metadata,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// HarNeighborhoodData is a per-area row of a HAR MLS report.
type HarNeighborhoodData struct {
	ID                uuid.UUID `json:"id"`
	ReportID          uuid.UUID `json:"report_id"`
	Neighborhood      string    `json:"neighborhood"`
	ZipCode           *string   `json:"zip_code,omitempty"`
	TotalSales        int       `json:"total_sales"`
	AvgSalePrice      float64   `json:"avg_sale_price"`
	MedianSalePrice   float64   `json:"median_sale_price"`
	PricePerSqft      float64   `json:"price_per_sqft"`
	ActiveListings    int       `json:"active_listings"`
	MonthsInventory   float64   `json:"months_inventory"`
	AvgDaysOnMarket   int       `json:"avg_days_on_market"`
	ListToSaleRatio   *float64  `json:"list_to_sale_ratio,omitempty"`
	SellerConcessions *float64  `json:"seller_concessions,omitempty"`
	Metadata          JSON      `json:"metadata,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// NeighborhoodPoint is a neighborhood row tagged with its report period.
type NeighborhoodPoint struct {
	HarNeighborhoodData
	Month      int    `json:"month"`
	Year       int    `json:"year"`
	ReportType string `json:"report_type"`
}

// ReportStatus summarises one imported HAR report.
type ReportStatus struct {
	Month             int       `json:"month"`
	Year              int       `json:"year"`
	ReportType        string    `json:"type"`
	TotalSales        int       `json:"total_sales"`
	AvgSalePrice      float64   `json:"avg_price"`
	NeighborhoodCount int       `json:"neighborhood_count"`
	ImportedAt        time.Time `json:"imported_at"`
}

// Memory is a stored fact, preference, training pair or other recollection.
type Memory struct {
	ID           uuid.UUID `json:"id"`
	UserID       *string   `json:"user_id,omitempty"`
	SessionID    *string   `json:"session_id,omitempty"`
	MemoryType   string    `json:"memory_type"`
	Content      JSON      `json:"content"`
	Importance   float64   `json:"importance"`
	Embedding    JSON      `json:"-"`
	AccessCount  int       `json:"access_count"`
	LastAccessed time.Time `json:"last_accessed"`
	Metadata     JSON      `json:"metadata,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// MemoryFilter narrows a memory search. Zero values are ignored.
type MemoryFilter struct {
	UserID        string
	SessionID     string
	MemoryType    string
	MinImportance *float64
	Limit         int
}

// Conversation is one persisted user/assistant exchange.
type Conversation struct {
	ID               uuid.UUID `json:"id"`
	UserID           *string   `json:"user_id,omitempty"`
	SessionID        string    `json:"session_id"`
	UserMessage      string    `json:"user_message"`
	FernandoResponse string    `json:"fernando_response"`
	Intent           *string   `json:"intent,omitempty"`
	Entities         JSON      `json:"entities,omitempty"`
	DurationMS       int64     `json:"duration_ms"`
	CreatedAt        time.Time `json:"created_at"`
}

// Insight is a time-bounded learned observation.
type Insight struct {
	ID          uuid.UUID  `json:"id"`
	InsightType string     `json:"insight_type"`
	Content     string     `json:"content"`
	Confidence  float64    `json:"confidence"`
	Tags        []string   `json:"tags"`
	ValidFrom   time.Time  `json:"valid_from"`
	ValidUntil  *time.Time `json:"valid_until,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// RefreshSource is the persisted schedule state of one refresh source.
type RefreshSource struct {
	Source     string           `json:"source"`
	Frequency  RefreshFrequency `json:"frequency"`
	Enabled    bool             `json:"enabled"`
	LastRun    *time.Time       `json:"last_run,omitempty"`
	LastStatus *string          `json:"last_status,omitempty"`
}
