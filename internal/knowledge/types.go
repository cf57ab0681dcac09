package knowledge

import "time"

// NodeType classifies knowledge nodes.
type NodeType string

const (
	NodeMarket         NodeType = "market"
	NodeInfrastructure NodeType = "infrastructure"
	NodeRegulatory     NodeType = "regulatory"
	NodeEnvironmental  NodeType = "environmental"
	NodeFinancial      NodeType = "financial"
)

// Node is one searchable unit of the knowledge graph.
type Node struct {
	ID       string       `json:"id"`
	Type     NodeType     `json:"type"`
	Title    string       `json:"title"`
	Content  string       `json:"content"`
	Metadata NodeMetadata `json:"metadata"`
	Related  []string     `json:"related"`
}

// NodeMetadata describes where a node came from.
type NodeMetadata struct {
	Source     string    `json:"source"`
	UpdatedAt  time.Time `json:"updated_at"`
	Confidence float64   `json:"confidence"`
	Tags       []string  `json:"tags"`
	Location   string    `json:"location,omitempty"`
}

// Hit is a scored search result.
type Hit struct {
	Node  *Node   `json:"node"`
	Score float64 `json:"score"`
}

// MarketIntelligence covers neighborhoods, seasonality and capital flows.
type MarketIntelligence struct {
	MicroMarkets       []MicroMarket       `yaml:"micro_markets" json:"micro_markets"`
	SeasonalPatterns   []SeasonalPattern   `yaml:"seasonal_patterns" json:"seasonal_patterns"`
	InvestmentFlows    []InvestmentFlow    `yaml:"investment_flows" json:"investment_flows"`
	EconomicIndicators []EconomicIndicator `yaml:"economic_indicators" json:"economic_indicators"`
}

type MicroMarket struct {
	Neighborhood  string       `yaml:"neighborhood" json:"neighborhood"`
	Stats         MarketStats  `yaml:"stats" json:"stats"`
	Trends        MarketTrends `yaml:"trends" json:"trends"`
	Opportunities []string     `yaml:"opportunities" json:"opportunities"`
	Risks         []string     `yaml:"risks" json:"risks"`
}

type MarketStats struct {
	MedianPrice        float64 `yaml:"median_price" json:"median_price"`
	PriceGrowth        float64 `yaml:"price_growth" json:"price_growth"`
	DaysOnMarket       int     `yaml:"days_on_market" json:"days_on_market"`
	Inventory          int     `yaml:"inventory" json:"inventory"`
	GentrificationRisk string  `yaml:"gentrification_risk" json:"gentrification_risk"`
	SchoolRating       string  `yaml:"school_rating" json:"school_rating"`
	CrimeIndex         float64 `yaml:"crime_index" json:"crime_index"`
	WalkScore          int     `yaml:"walk_score" json:"walk_score"`
	TransitScore       int     `yaml:"transit_score" json:"transit_score"`
	FloodRisk          string  `yaml:"flood_risk" json:"flood_risk"`
}

type MarketTrends struct {
	PriceTrend          string  `yaml:"price_trend" json:"price_trend"`
	DemandLevel         string  `yaml:"demand_level" json:"demand_level"`
	DevelopmentActivity string  `yaml:"development_activity" json:"development_activity"`
	ForeignInvestment   float64 `yaml:"foreign_investment" json:"foreign_investment"`
}

type SeasonalPattern struct {
	Month         string   `yaml:"month" json:"month"`
	ActivityIndex float64  `yaml:"activity_index" json:"activity_index"`
	BestFor       []string `yaml:"best_for" json:"best_for"`
	Avoid         []string `yaml:"avoid" json:"avoid"`
}

type InvestmentFlow struct {
	Source              string   `yaml:"source" json:"source"`
	Amount              float64  `yaml:"amount" json:"amount"`
	TargetNeighborhoods []string `yaml:"target_neighborhoods" json:"target_neighborhoods"`
	PropertyTypes       []string `yaml:"property_types" json:"property_types"`
	Trend               string   `yaml:"trend" json:"trend"`
}

type EconomicIndicator struct {
	Name  string  `yaml:"name" json:"name"`
	Value float64 `yaml:"value" json:"value"`
	Unit  string  `yaml:"unit" json:"unit"`
	Trend string  `yaml:"trend" json:"trend"`
}

// DevelopmentIntelligence covers projects, permits and infrastructure.
type DevelopmentIntelligence struct {
	ActiveProjects       []Project              `yaml:"active_projects" json:"active_projects"`
	PermitTrends         []PermitTrend          `yaml:"permit_trends" json:"permit_trends"`
	InfrastructureImpact []InfrastructureImpact `yaml:"infrastructure_impact" json:"infrastructure_impact"`
}

type Project struct {
	ID                   string   `yaml:"id" json:"id"`
	Name                 string   `yaml:"name" json:"name"`
	Type                 string   `yaml:"type" json:"type"`
	Location             string   `yaml:"location" json:"location"`
	Investment           float64  `yaml:"investment" json:"investment"`
	Timeline             string   `yaml:"timeline" json:"timeline"`
	Impact               []string `yaml:"impact" json:"impact"`
	RelatedOpportunities []string `yaml:"related_opportunities" json:"related_opportunities"`
}

type PermitTrend struct {
	Area         string   `yaml:"area" json:"area"`
	PermitCount  int      `yaml:"permit_count" json:"permit_count"`
	TotalValue   float64  `yaml:"total_value" json:"total_value"`
	AverageValue float64  `yaml:"average_value" json:"average_value"`
	TopTypes     []string `yaml:"top_types" json:"top_types"`
	GrowthRate   float64  `yaml:"growth_rate" json:"growth_rate"`
}

type InfrastructureImpact struct {
	Project       string   `yaml:"project" json:"project"`
	AffectedAreas []string `yaml:"affected_areas" json:"affected_areas"`
	ValueImpact   float64  `yaml:"value_impact" json:"value_impact"`
	Timeframe     string   `yaml:"timeframe" json:"timeframe"`
	Opportunities []string `yaml:"opportunities" json:"opportunities"`
}

// RegulatoryIntelligence covers zoning, incentives and codes.
type RegulatoryIntelligence struct {
	ZoningChanges []ZoningChange `yaml:"zoning_changes" json:"zoning_changes"`
	TaxIncentives []TaxIncentive `yaml:"tax_incentives" json:"tax_incentives"`
	BuildingCodes []BuildingCode `yaml:"building_codes" json:"building_codes"`
}

type ZoningChange struct {
	Area           string   `yaml:"area" json:"area"`
	CurrentZoning  string   `yaml:"current_zoning" json:"current_zoning"`
	ProposedZoning string   `yaml:"proposed_zoning" json:"proposed_zoning"`
	Status         string   `yaml:"status" json:"status"`
	Impact         string   `yaml:"impact" json:"impact"`
	Opportunities  []string `yaml:"opportunities" json:"opportunities"`
	Timeline       string   `yaml:"timeline" json:"timeline"`
}

type TaxIncentive struct {
	Program       string   `yaml:"program" json:"program"`
	EligibleAreas []string `yaml:"eligible_areas" json:"eligible_areas"`
	Benefits      []string `yaml:"benefits" json:"benefits"`
	Requirements  []string `yaml:"requirements" json:"requirements"`
	Deadline      string   `yaml:"deadline" json:"deadline"`
}

type BuildingCode struct {
	Requirement    string   `yaml:"requirement" json:"requirement"`
	EffectiveDate  string   `yaml:"effective_date" json:"effective_date"`
	Impact         string   `yaml:"impact" json:"impact"`
	ComplianceTips []string `yaml:"compliance_tips" json:"compliance_tips"`
}

// EnvironmentalIntelligence covers flood exposure and resilience programs.
type EnvironmentalIntelligence struct {
	FloodZones               []FloodZone               `yaml:"flood_zones" json:"flood_zones"`
	ClimateResilience        []ResilienceMetric        `yaml:"climate_resilience" json:"climate_resilience"`
	SustainabilityIncentives []SustainabilityIncentive `yaml:"sustainability_incentives" json:"sustainability_incentives"`
}

type FloodZone struct {
	Area                 string       `yaml:"area" json:"area"`
	Zone                 string       `yaml:"zone" json:"zone"`
	Risk                 string       `yaml:"risk" json:"risk"`
	HistoricalEvents     []FloodEvent `yaml:"historical_events" json:"historical_events"`
	MitigationStrategies []string     `yaml:"mitigation_strategies" json:"mitigation_strategies"`
}

type FloodEvent struct {
	Event  string `yaml:"event" json:"event"`
	Date   string `yaml:"date" json:"date"`
	Impact string `yaml:"impact" json:"impact"`
}

type ResilienceMetric struct {
	Metric          string   `yaml:"metric" json:"metric"`
	Score           float64  `yaml:"score" json:"score"`
	Trend           string   `yaml:"trend" json:"trend"`
	Recommendations []string `yaml:"recommendations" json:"recommendations"`
}

type SustainabilityIncentive struct {
	Program      string   `yaml:"program" json:"program"`
	Benefits     []string `yaml:"benefits" json:"benefits"`
	Requirements []string `yaml:"requirements" json:"requirements"`
	ROI          float64  `yaml:"roi" json:"roi"`
}

// NeighborhoodInsights gathers everything known about one neighborhood.
type NeighborhoodInsights struct {
	Neighborhood  string         `json:"neighborhood"`
	Summary       string         `json:"summary"`
	Market        MicroMarket    `json:"market"`
	Development   []Project      `json:"development"`
	Regulatory    []ZoningChange `json:"regulatory"`
	Environmental *FloodZone     `json:"environmental,omitempty"`
	Strengths     []string       `json:"strengths"`
	Concerns      []string       `json:"concerns"`
	Opportunities []string       `json:"opportunities"`
}
