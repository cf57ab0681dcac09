package vision

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fernando-x/platform/libs/intelligence-engine/internal/cache"
	"github.com/fernando-x/platform/libs/intelligence-engine/internal/observability"
)

// Severity of a visible issue.
type Severity string

const (
	SeverityMinor    Severity = "minor"
	SeverityModerate Severity = "moderate"
	SeverityMajor    Severity = "major"
)

func (s Severity) level() int {
	switch s {
	case SeverityMajor:
		return 3
	case SeverityModerate:
		return 2
	case SeverityMinor:
		return 1
	}
	return 0
}

// Analysis sources.
const (
	SourceReplicate = "replicate"
	SourceReference = "reference"
)

const (
	cachePrefix = "vision_"
	cacheTTL    = 24 * time.Hour
)

type Condition struct {
	Overall    string  `json:"overall"`
	Score      float64 `json:"score"`
	Confidence float64 `json:"confidence"`
}

type TypeGuess struct {
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence"`
}

type Feature struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

type Issue struct {
	Type          string   `json:"type"`
	Severity      Severity `json:"severity"`
	EstimatedCost float64  `json:"estimated_cost,omitempty"`
}

type Room struct {
	Type      string   `json:"type"`
	Condition string   `json:"condition"`
	Features  []string `json:"features"`
}

type Exterior struct {
	RoofCondition   string `json:"roof_condition"`
	SidingCondition string `json:"siding_condition"`
	Landscaping     string `json:"landscaping"`
	Driveway        string `json:"driveway"`
	Pool            string `json:"pool,omitempty"`
}

type MarketAppeal struct {
	Score        float64  `json:"score"`
	Strengths    []string `json:"strengths"`
	Improvements []string `json:"improvements"`
}

type CostItem struct {
	Item string  `json:"item"`
	Cost float64 `json:"cost"`
}

type Renovation struct {
	Minimum   float64    `json:"minimum"`
	Maximum   float64    `json:"maximum"`
	Breakdown []CostItem `json:"breakdown"`
}

// PhotoAnalysis is the structured reading of one property photo.
type PhotoAnalysis struct {
	ImageURL           string       `json:"image_url"`
	Condition          Condition    `json:"condition"`
	PropertyType       TypeGuess    `json:"property_type"`
	Features           []Feature    `json:"features"`
	Issues             []Issue      `json:"issues"`
	Rooms              []Room       `json:"rooms"`
	Exterior           Exterior     `json:"exterior"`
	MarketAppeal       MarketAppeal `json:"market_appeal"`
	RenovationEstimate Renovation   `json:"renovation_estimate"`
	Source             string       `json:"source"`
}

// PhotoContext carries optional hints about the photographed property.
type PhotoContext struct {
	PropertyType string  `json:"property_type,omitempty"`
	AskingPrice  float64 `json:"asking_price,omitempty"`
	Location     string  `json:"location,omitempty"`
}

// Photo is one image in a property photo set.
type Photo struct {
	URL   string `json:"url"`
	Type  string `json:"type"` // exterior, interior, aerial or floorplan
	Room  string `json:"room,omitempty"`
	Angle string `json:"angle,omitempty"`
}

// PhotoSet groups the photos of one property.
type PhotoSet struct {
	PropertyID   string  `json:"property_id"`
	PropertyType string  `json:"property_type,omitempty"`
	Photos       []Photo `json:"photos"`
}

// CostRange is a renovation budget window.
type CostRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// PropertyReport aggregates the analyses of a photo set.
type PropertyReport struct {
	PropertyID              string           `json:"property_id"`
	OverallCondition        string           `json:"overall_condition"`
	ConditionScore          float64          `json:"condition_score"`
	PropertyType            string           `json:"property_type"`
	KeyFeatures             []string         `json:"key_features"`
	MajorIssues             []string         `json:"major_issues"`
	RenovationNeeded        []string         `json:"renovation_needed"`
	EstimatedRenovationCost CostRange        `json:"estimated_renovation_cost"`
	MarketAppealScore       float64          `json:"market_appeal_score"`
	InvestmentPotential     string           `json:"investment_potential"`
	Recommendations         []string         `json:"recommendations"`
	Photos                  []*PhotoAnalysis `json:"photos"`
}

// PropertyAgent analyzes a single property photo.
type PropertyAgent interface {
	AnalyzeProperty(ctx context.Context, url string) (*PropertyAnalysis, error)
}

// CacheStats describes the analysis cache.
type CacheStats struct {
	Size    int      `json:"size"`
	Entries []string `json:"entries"`
}

// Analyzer produces photo analyses, using the agent when one is configured
// and the reference analyses otherwise. Results are cached per image name.
type Analyzer struct {
	agent  PropertyAgent
	cache  cache.Client
	logger *observability.Logger

	mu   sync.Mutex
	keys map[string]struct{}
}

// NewAnalyzer creates an analyzer. agent may be nil, which serves
// reference analyses only. A nil cache disables caching.
func NewAnalyzer(logger *observability.Logger, agent PropertyAgent, c cache.Client) *Analyzer {
	return &Analyzer{
		agent:  agent,
		cache:  c,
		logger: logger.WithComponent("vision"),
		keys:   make(map[string]struct{}),
	}
}

// CacheKey is the cache key for an image URL: the file name after the last
// slash, prefixed with vision_.
func CacheKey(url string) string {
	return cachePrefix + url[strings.LastIndex(url, "/")+1:]
}

// AnalyzePhoto analyzes one photo. Agent failures fall back to the reference
// analysis, which is then not cached.
func (a *Analyzer) AnalyzePhoto(ctx context.Context, url string, pc PhotoContext) (*PhotoAnalysis, error) {
	key := CacheKey(url)
	if a.cache != nil {
		var cached PhotoAnalysis
		err := cache.GetJSON(ctx, a.cache, key, &cached)
		if err == nil {
			return &cached, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			a.logger.Warn().Err(err).Str("key", key).Msg("Vision cache read failed")
		}
	}

	if a.agent == nil {
		result := referenceAnalysis(url, pc)
		a.store(ctx, key, result)
		return result, nil
	}

	pa, err := a.agent.AnalyzeProperty(ctx, url)
	if err != nil {
		a.logger.Warn().Err(err).Str("url", url).Msg("Photo analysis failed, using reference analysis")
		return referenceAnalysis(url, pc), nil
	}
	result := fromAgent(pa, pc)
	a.store(ctx, key, result)
	return result, nil
}

func (a *Analyzer) store(ctx context.Context, key string, result *PhotoAnalysis) {
	if a.cache == nil {
		return
	}
	if err := cache.SetJSON(ctx, a.cache, key, result, cacheTTL); err != nil {
		a.logger.Warn().Err(err).Str("key", key).Msg("Vision cache write failed")
		return
	}
	a.mu.Lock()
	a.keys[key] = struct{}{}
	a.mu.Unlock()
}

// fromAgent maps an agent reading onto the photo analysis shape.
func fromAgent(pa *PropertyAnalysis, pc PhotoContext) *PhotoAnalysis {
	propertyType := pc.PropertyType
	if propertyType == "" {
		propertyType = "single-family"
	}
	out := &PhotoAnalysis{
		ImageURL:     pa.ImageURL,
		Condition:    Condition{Overall: conditionLabel(pa.ConditionScore), Score: pa.ConditionScore, Confidence: 0.75},
		PropertyType: TypeGuess{Type: propertyType, Confidence: 0.7},
		MarketAppeal: MarketAppeal{Score: pa.ConditionScore},
		RenovationEstimate: Renovation{
			Minimum:   pa.RenovationEstimate * 0.75,
			Maximum:   pa.RenovationEstimate * 1.25,
			Breakdown: []CostItem{{"General renovation", pa.RenovationEstimate}},
		},
		Source: SourceReplicate,
	}
	for _, f := range pa.Features {
		out.Features = append(out.Features, Feature{Name: f, Confidence: 0.8})
	}
	for _, s := range pa.Issues {
		out.Issues = append(out.Issues, Issue{Type: s, Severity: issueSeverity(s)})
	}
	if len(pa.Features) > 0 {
		out.MarketAppeal.Strengths = pa.Features[:min(3, len(pa.Features))]
	}
	return out
}

func issueSeverity(issue string) Severity {
	lower := strings.ToLower(issue)
	switch {
	case containsAny(lower, []string{"major", "damage", "leak", "mold", "rot", "foundation"}):
		return SeverityMajor
	case containsAny(lower, []string{"repair", "broken", "missing", "crack"}):
		return SeverityModerate
	}
	return SeverityMinor
}

// AnalyzePropertyPhotos analyzes every photo of a set in order and
// aggregates the results.
func (a *Analyzer) AnalyzePropertyPhotos(ctx context.Context, set PhotoSet) (*PropertyReport, error) {
	if len(set.Photos) == 0 {
		return nil, errors.New("photo set is empty")
	}
	analyses := make([]*PhotoAnalysis, 0, len(set.Photos))
	for _, p := range set.Photos {
		pa, err := a.AnalyzePhoto(ctx, p.URL, PhotoContext{PropertyType: set.PropertyType})
		if err != nil {
			return nil, err
		}
		analyses = append(analyses, pa)
	}
	return aggregate(set.PropertyID, analyses), nil
}

type issueTally struct {
	severity Severity
	count    int
}

func aggregate(propertyID string, analyses []*PhotoAnalysis) *PropertyReport {
	n := float64(len(analyses))
	var conditionSum, appealSum float64
	var cost CostRange

	featureCounts := map[string]int{}
	var featureOrder []string
	issues := map[string]*issueTally{}
	var issueOrder []string

	for _, pa := range analyses {
		conditionSum += pa.Condition.Score
		appealSum += pa.MarketAppeal.Score
		cost.Min += pa.RenovationEstimate.Minimum
		cost.Max += pa.RenovationEstimate.Maximum
		for _, f := range pa.Features {
			if _, ok := featureCounts[f.Name]; !ok {
				featureOrder = append(featureOrder, f.Name)
			}
			featureCounts[f.Name]++
		}
		for _, is := range pa.Issues {
			t, ok := issues[is.Type]
			if !ok {
				t = &issueTally{severity: is.Severity}
				issues[is.Type] = t
				issueOrder = append(issueOrder, is.Type)
			}
			t.count++
			if is.Severity.level() > t.severity.level() {
				t.severity = is.Severity
			}
		}
	}

	condition := conditionSum / n
	appeal := appealSum / n

	sort.SliceStable(featureOrder, func(i, j int) bool {
		return featureCounts[featureOrder[i]] > featureCounts[featureOrder[j]]
	})
	keyFeatures := featureOrder
	if len(keyFeatures) > 10 {
		keyFeatures = keyFeatures[:10]
	}

	var major []string
	for _, name := range issueOrder {
		if issues[name].severity == SeverityMajor {
			major = append(major, name)
		}
	}

	return &PropertyReport{
		PropertyID:              propertyID,
		OverallCondition:        conditionLabel(condition),
		ConditionScore:          condition,
		PropertyType:            dominantType(analyses),
		KeyFeatures:             keyFeatures,
		MajorIssues:             major,
		RenovationNeeded:        renovations(issueOrder, analyses),
		EstimatedRenovationCost: cost,
		MarketAppealScore:       appeal,
		InvestmentPotential:     investmentPotential(condition, appeal, cost.Max),
		Recommendations:         recommendations(condition, major, featureOrder),
		Photos:                  analyses,
	}
}

func conditionLabel(score float64) string {
	switch {
	case score >= 8.5:
		return "excellent"
	case score >= 7:
		return "good"
	case score >= 5:
		return "fair"
	}
	return "poor"
}

func investmentPotential(condition, appeal, maxRenovation float64) string {
	avg := (condition + appeal) / 2
	switch {
	case avg >= 8 && maxRenovation < 20000:
		return "excellent"
	case avg >= 7 && maxRenovation < 50000:
		return "good"
	case avg >= 5:
		return "fair"
	}
	return "poor"
}

// dominantType picks the property type with the highest summed confidence.
func dominantType(analyses []*PhotoAnalysis) string {
	weights := map[string]float64{}
	var order []string
	for _, pa := range analyses {
		t := pa.PropertyType.Type
		if _, ok := weights[t]; !ok {
			order = append(order, t)
		}
		weights[t] += pa.PropertyType.Confidence
	}
	best, bestScore := "unknown", 0.0
	for _, t := range order {
		if weights[t] > bestScore {
			best, bestScore = t, weights[t]
		}
	}
	return best
}

var renovationKeywords = []struct{ keyword, work string }{
	{"roof", "Roof repair/replacement"},
	{"foundation", "Foundation repair"},
	{"plumbing", "Plumbing updates"},
	{"electrical", "Electrical updates"},
	{"hvac", "HVAC service/replacement"},
	{"paint", "Interior/exterior painting"},
	{"flooring", "Flooring replacement"},
	{"kitchen", "Kitchen update"},
	{"bathroom", "Bathroom renovation"},
}

func renovations(issueNames []string, analyses []*PhotoAnalysis) []string {
	var out []string
	seen := map[string]bool{}
	add := func(s string) {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	for _, name := range issueNames {
		lower := strings.ToLower(name)
		for _, rk := range renovationKeywords {
			if strings.Contains(lower, rk.keyword) {
				add(rk.work)
			}
		}
	}
	for _, pa := range analyses {
		if pa.Condition.Score >= 6 {
			continue
		}
		for _, r := range pa.Rooms {
			if r.Condition == "poor" || r.Condition == "fair" {
				add(r.Type + " renovation")
			}
		}
	}
	return out
}

var premiumFeatures = []string{"pool", "granite", "stainless steel", "hardwood", "smart home"}

func recommendations(condition float64, majorIssues, featureNames []string) []string {
	var out []string
	switch {
	case condition >= 8:
		out = append(out, "Property is in excellent condition - consider premium pricing", "Focus marketing on move-in ready status")
	case condition >= 6:
		out = append(out, "Address minor repairs before listing for best results", "Consider strategic updates to maximize value")
	default:
		out = append(out, "Property needs significant work - price accordingly", "Market as renovation opportunity or to investors")
	}
	if len(majorIssues) > 0 {
		out = append(out, "Address major issues before listing: "+strings.Join(majorIssues, ", "))
	}
	for _, f := range featureNames {
		if containsAny(strings.ToLower(f), premiumFeatures) {
			out = append(out, "Highlight premium features in marketing materials")
			break
		}
	}
	return append(out, "Compare with recent sales in neighborhood for pricing", "Consider seasonal market timing for listing")
}

// ClearCache drops every cached analysis.
func (a *Analyzer) ClearCache(ctx context.Context) error {
	a.mu.Lock()
	a.keys = make(map[string]struct{})
	a.mu.Unlock()
	if a.cache == nil {
		return nil
	}
	return a.cache.DeleteByPrefix(ctx, cachePrefix)
}

// CacheStats lists the analyses this analyzer has cached.
func (a *Analyzer) CacheStats() CacheStats {
	a.mu.Lock()
	defer a.mu.Unlock()
	entries := make([]string, 0, len(a.keys))
	for k := range a.keys {
		entries = append(entries, k)
	}
	sort.Strings(entries)
	return CacheStats{Size: len(entries), Entries: entries}
}
