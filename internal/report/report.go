// Package report builds investment memos, market analyses, feasibility
// studies, portfolio reviews and development proposals from the knowledge
// base and caller supplied context.
package report

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fernando-x/platform/libs/intelligence-engine/internal/knowledge"
	"github.com/fernando-x/platform/libs/intelligence-engine/internal/observability"
	"github.com/fernando-x/platform/libs/intelligence-engine/internal/vision"
)

var (
	// ErrUnknownTemplate is returned for a report type with no template.
	ErrUnknownTemplate = errors.New("unknown report type")
	ErrEmptyTopic      = errors.New("report topic is required")
)

// Type identifies a report template.
type Type string

const (
	TypeInvestmentMemo      Type = "investment-memo"
	TypeMarketAnalysis      Type = "market-analysis"
	TypeFeasibilityStudy    Type = "feasibility-study"
	TypePortfolioReview     Type = "portfolio-review"
	TypeDevelopmentProposal Type = "development-proposal"
)

// Style controls how much detail a report carries.
type Style string

const (
	StyleExecutive Style = "executive"
	StyleDetailed  Style = "detailed"
	StyleTechnical Style = "technical"
)

const (
	wordsPerMinute = 200
	knowledgeLimit = 10
)

// Config selects the template and presentation of a report.
type Config struct {
	Type           Type     `json:"type"`
	Format         Format   `json:"format,omitempty"`
	Style          Style    `json:"style,omitempty"`
	Sections       []string `json:"sections,omitempty"`
	IncludeVisuals bool     `json:"include_visuals"`
}

// Property describes the subject property of a memo or proposal.
type Property struct {
	Address      string  `json:"address,omitempty"`
	PropertyType string  `json:"property_type,omitempty"`
	Neighborhood string  `json:"neighborhood,omitempty"`
	AskingPrice  float64 `json:"asking_price,omitempty"`
	SquareFeet   float64 `json:"square_feet,omitempty"`
	LotSize      float64 `json:"lot_size,omitempty"`
	YearBuilt    int     `json:"year_built,omitempty"`
	Bedrooms     int     `json:"bedrooms,omitempty"`
	Bathrooms    float64 `json:"bathrooms,omitempty"`
}

// Context carries caller supplied inputs.
type Context struct {
	Property      *Property               `json:"property,omitempty"`
	MarketData    map[string]any          `json:"market_data,omitempty"`
	PhotoAnalysis []*vision.PhotoAnalysis `json:"photo_analysis,omitempty"`
	CustomData    map[string]any          `json:"custom_data,omitempty"`
}

// Request asks for one report.
type Request struct {
	Config  Config  `json:"config"`
	Topic   string  `json:"topic"`
	Context Context `json:"context"`
}

// Chart is the data behind a visualization.
type Chart struct {
	Type   string    `json:"type"`
	Title  string    `json:"title"`
	Labels []string  `json:"labels"`
	Values []float64 `json:"values"`
}

type Visualization struct {
	Type    string `json:"type"`
	Data    Chart  `json:"data"`
	Caption string `json:"caption"`
}

// Section is one titled block of a report.
type Section struct {
	Title          string          `json:"title"`
	Content        string          `json:"content"`
	Subsections    []Section       `json:"subsections,omitempty"`
	Visualizations []Visualization `json:"visualizations,omitempty"`
	Confidence     float64         `json:"confidence"`
	Sources        []string        `json:"sources"`
}

type Metadata struct {
	WordCount       int      `json:"word_count"`
	ReadingTime     int      `json:"reading_time"`
	Confidence      float64  `json:"confidence"`
	DataSources     []string `json:"data_sources"`
	KeyFindings     []string `json:"key_findings"`
	Recommendations []string `json:"recommendations"`
}

// Report is a generated document.
type Report struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Type        Type      `json:"type"`
	GeneratedAt time.Time `json:"generated_at"`
	Sections    []Section `json:"sections"`
	Metadata    Metadata  `json:"metadata"`
	Summary     string    `json:"summary"`
}

// Template lists the sections and inputs of a report type.
type Template struct {
	Type         Type     `json:"type"`
	Sections     []string `json:"sections"`
	RequiredData []string `json:"required_data"`
	Style        string   `json:"style"`
}

var templates = []Template{
	{
		Type: TypeInvestmentMemo,
		Sections: []string{
			"Executive Summary", "Investment Thesis", "Property Overview", "Market Analysis",
			"Financial Analysis", "Risk Assessment", "Exit Strategy", "Recommendation",
		},
		RequiredData: []string{"property", "market", "financials"},
		Style:        "professional",
	},
	{
		Type: TypeMarketAnalysis,
		Sections: []string{
			"Executive Summary", "Market Overview", "Supply & Demand Dynamics", "Competitive Landscape",
			"Demographic Trends", "Economic Indicators", "Future Outlook", "Investment Opportunities",
		},
		RequiredData: []string{"market", "demographics", "economics"},
		Style:        "analytical",
	},
	{
		Type: TypeFeasibilityStudy,
		Sections: []string{
			"Executive Summary", "Project Description", "Market Feasibility", "Technical Feasibility",
			"Financial Feasibility", "Risk Analysis", "Implementation Timeline", "Conclusions & Recommendations",
		},
		RequiredData: []string{"project", "market", "financials", "regulatory"},
		Style:        "technical",
	},
	{
		Type: TypePortfolioReview,
		Sections: []string{
			"Portfolio Summary", "Performance Analysis", "Asset Allocation", "Market Exposure",
			"Risk Profile", "Optimization Opportunities", "Rebalancing Recommendations", "Action Items",
		},
		RequiredData: []string{"portfolio", "market", "performance"},
		Style:        "executive",
	},
	{
		Type: TypeDevelopmentProposal,
		Sections: []string{
			"Executive Summary", "Site Analysis", "Development Concept", "Market Justification",
			"Design & Planning", "Financial Projections", "Development Timeline", "Risk Mitigation",
			"Approvals & Permits", "Investment Structure",
		},
		RequiredData: []string{"site", "market", "development", "regulatory"},
		Style:        "comprehensive",
	},
}

var titles = map[Type]string{
	TypeInvestmentMemo:      "Investment Memorandum: %s",
	TypeMarketAnalysis:      "Market Analysis Report: %s",
	TypeFeasibilityStudy:    "Feasibility Study: %s",
	TypePortfolioReview:     "Portfolio Performance Review: %s",
	TypeDevelopmentProposal: "Development Proposal: %s",
}

// Templates returns copies of the available report templates.
func Templates() []Template {
	out := make([]Template, len(templates))
	for i, tpl := range templates {
		out[i] = tpl.clone()
	}
	return out
}

// TemplateFor looks up a copy of the template for t.
func TemplateFor(t Type) (Template, bool) {
	for _, tpl := range templates {
		if tpl.Type == t {
			return tpl.clone(), true
		}
	}
	return Template{}, false
}

func (t Template) clone() Template {
	t.Sections = slices.Clone(t.Sections)
	t.RequiredData = slices.Clone(t.RequiredData)
	return t
}

// Generator renders reports from the knowledge base.
type Generator struct {
	kb     *knowledge.Base
	logger *observability.Logger
	now    func() time.Time
}

// NewGenerator creates a report generator.
func NewGenerator(logger *observability.Logger, kb *knowledge.Base) *Generator {
	return &Generator{
		kb:     kb,
		logger: logger.WithComponent("report_generator"),
		now:    time.Now,
	}
}

// inputs is everything a section generator may draw on.
type inputs struct {
	topic         string
	config        Config
	hits          []knowledge.Hit
	market        *knowledge.MarketIntelligence
	development   *knowledge.DevelopmentIntelligence
	regulatory    *knowledge.RegulatoryIntelligence
	environmental *knowledge.EnvironmentalIntelligence
	property      *Property
	marketData    map[string]any
	photos        []*vision.PhotoAnalysis
	custom        map[string]any
	month         time.Month
}

func (in *inputs) firstMarket() *knowledge.MicroMarket {
	if in.market == nil || len(in.market.MicroMarkets) == 0 {
		return nil
	}
	return &in.market.MicroMarkets[0]
}

// Generate builds a report for req.
func (g *Generator) Generate(ctx context.Context, req Request) (*Report, error) {
	tpl, ok := TemplateFor(req.Config.Type)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTemplate, req.Config.Type)
	}
	topic := strings.TrimSpace(req.Topic)
	if topic == "" {
		return nil, ErrEmptyTopic
	}

	in := g.gather(topic, req, tpl)

	titlesToBuild := req.Config.Sections
	if len(titlesToBuild) == 0 {
		titlesToBuild = tpl.Sections
	}

	confidence := sectionConfidence(in)
	sources := hitSources(in.hits)

	sections := make([]Section, 0, len(titlesToBuild))
	for _, title := range titlesToBuild {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s := Section{
			Title:      title,
			Content:    sectionContent(title, in),
			Confidence: confidence,
			Sources:    sources,
		}
		if req.Config.IncludeVisuals {
			s.Visualizations = visualizations(title, in)
		}
		s.Subsections = subsections(title, in)
		sections = append(sections, s)
	}

	words := wordCount(sections)
	r := &Report{
		ID:          g.newID(),
		Title:       fmt.Sprintf(titles[tpl.Type], topic),
		Type:        tpl.Type,
		GeneratedAt: g.now(),
		Sections:    sections,
		Summary:     summarize(sections),
		Metadata: Metadata{
			WordCount:       words,
			ReadingTime:     int(math.Ceil(float64(words) / wordsPerMinute)),
			Confidence:      overallConfidence(sections),
			DataSources:     dataSources(sections),
			KeyFindings:     keyFindings(sections),
			Recommendations: recommendations(sections),
		},
	}

	g.logger.Info().
		Str("report_id", r.ID).
		Str("type", string(r.Type)).
		Int("sections", len(r.Sections)).
		Int("words", words).
		Msg("Report generated")
	return r, nil
}

func (g *Generator) gather(topic string, req Request, tpl Template) *inputs {
	in := &inputs{
		topic:      topic,
		config:     req.Config,
		hits:       g.kb.Search(topic, knowledgeLimit),
		property:   req.Context.Property,
		marketData: req.Context.MarketData,
		photos:     req.Context.PhotoAnalysis,
		custom:     req.Context.CustomData,
		month:      g.now().Month(),
	}
	needs := func(kind string) bool {
		for _, r := range tpl.RequiredData {
			if r == kind {
				return true
			}
		}
		return false
	}
	if needs("market") {
		m := g.kb.MarketIntelligence()
		in.market = &m
	}
	if needs("development") {
		d := g.kb.DevelopmentIntelligence()
		in.development = &d
	}
	if needs("regulatory") {
		r := g.kb.RegulatoryIntelligence()
		in.regulatory = &r
	}
	if needs("environmental") || mentionsRisk(in.config.Sections, tpl.Sections) {
		e := g.kb.EnvironmentalIntelligence()
		in.environmental = &e
	}
	return in
}

// mentionsRisk reports whether any section to be built covers risk, which
// needs flood exposure even when the template does not ask for it.
func mentionsRisk(override, sections []string) bool {
	if len(override) > 0 {
		sections = override
	}
	for _, s := range sections {
		if strings.Contains(strings.ToLower(s), "risk") {
			return true
		}
	}
	return false
}

func (g *Generator) newID() string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
	return fmt.Sprintf("report_%d_%s", g.now().UnixMilli(), suffix)
}

func sectionConfidence(in *inputs) float64 {
	c := 0.7
	if len(in.hits) > 3 {
		c += 0.1
	}
	if in.market != nil || len(in.marketData) > 0 {
		c += 0.1
	}
	if in.property != nil {
		c += 0.05
	}
	if len(in.photos) > 0 {
		c += 0.05
	}
	return math.Min(c, 0.95)
}

func hitSources(hits []knowledge.Hit) []string {
	seen := make(map[string]bool)
	out := []string{}
	for _, h := range hits {
		src := h.Node.Metadata.Source
		if src == "" || seen[src] {
			continue
		}
		seen[src] = true
		out = append(out, src)
	}
	return out
}

func overallConfidence(sections []Section) float64 {
	if len(sections) == 0 {
		return 0
	}
	var sum float64
	for _, s := range sections {
		sum += s.Confidence
	}
	return sum / float64(len(sections))
}

func wordCount(sections []Section) int {
	n := 0
	for _, s := range sections {
		n += len(strings.Fields(s.Content))
		n += wordCount(s.Subsections)
	}
	return n
}

// summarize joins the opening paragraphs of the thesis and recommendation.
func summarize(sections []Section) string {
	var points []string
	for _, s := range sections {
		if s.Title != "Investment Thesis" && s.Title != "Recommendation" {
			continue
		}
		if first := strings.TrimSpace(strings.SplitN(s.Content, "\n\n", 2)[0]); first != "" {
			points = append(points, first)
		}
	}
	return strings.Join(points, "\n\n")
}

var (
	bulletLine   = regexp.MustCompile(`(?m)^- (.+)$`)
	numberedLine = regexp.MustCompile(`(?m)^[\d\-*]\. (.+)$`)
)

const maxFindings = 5

func keyFindings(sections []Section) []string {
	out := []string{}
	for _, s := range sections {
		for _, m := range bulletLine.FindAllStringSubmatch(s.Content, 2) {
			out = append(out, m[1])
		}
	}
	if len(out) > maxFindings {
		out = out[:maxFindings]
	}
	return out
}

// recommendations reads the numbered lines of the first section whose title
// mentions recommendations or actions.
func recommendations(sections []Section) []string {
	out := []string{}
	for _, s := range sections {
		title := strings.ToLower(s.Title)
		if !strings.Contains(title, "recommendation") && !strings.Contains(title, "action") {
			continue
		}
		for _, m := range numberedLine.FindAllStringSubmatch(s.Content, -1) {
			out = append(out, m[1])
		}
		break
	}
	return out
}

func dataSources(sections []Section) []string {
	seen := make(map[string]bool)
	out := []string{}
	var walk func([]Section)
	walk = func(ss []Section) {
		for _, s := range ss {
			for _, src := range s.Sources {
				if !seen[src] {
					seen[src] = true
					out = append(out, src)
				}
			}
			walk(s.Subsections)
		}
	}
	walk(sections)
	return out
}
