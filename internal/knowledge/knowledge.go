// Package knowledge holds the curated Houston market facts and the node
// graph built from them.
package knowledge

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed data/houston.yaml
var houstonYAML []byte

type document struct {
	Updated       time.Time                 `yaml:"updated"`
	Market        MarketIntelligence        `yaml:"market"`
	Development   DevelopmentIntelligence   `yaml:"development"`
	Regulatory    RegulatoryIntelligence    `yaml:"regulatory"`
	Environmental EnvironmentalIntelligence `yaml:"environmental"`
}

// Base is the in-memory knowledge graph. It is immutable after construction
// and safe for concurrent use.
type Base struct {
	doc   document
	nodes []*Node
	byID  map[string]*Node
}

// New builds the knowledge base from the embedded Houston fact set.
func New() (*Base, error) {
	return Parse(houstonYAML)
}

// Parse builds a knowledge base from a YAML fact document.
func Parse(data []byte) (*Base, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse knowledge document: %w", err)
	}
	if doc.Updated.IsZero() {
		doc.Updated = time.Now().UTC()
	}
	b := &Base{doc: doc, byID: make(map[string]*Node)}
	b.build()
	return b, nil
}

// MustNew is New for program start-up, where a broken embedded document is
// a build defect.
func MustNew() *Base {
	b, err := New()
	if err != nil {
		panic(err)
	}
	return b
}

// Nodes returns every node in build order.
func (b *Base) Nodes() []*Node {
	return b.nodes
}

// Node returns a node by id.
func (b *Base) Node(id string) (*Node, bool) {
	n, ok := b.byID[id]
	return n, ok
}

// Related returns the nodes linked to id.
func (b *Base) Related(id string) []*Node {
	n, ok := b.byID[id]
	if !ok {
		return nil
	}
	out := make([]*Node, 0, len(n.Related))
	for _, rid := range n.Related {
		if r, ok := b.byID[rid]; ok {
			out = append(out, r)
		}
	}
	return out
}

// Search scores every node against query: +10 when the title contains the
// query, +5 when the content does, and +2 for each query word found in the
// content. Only positive scores are returned, best first.
func (b *Base) Search(query string, limit int) []Hit {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil
	}
	if limit <= 0 {
		limit = 10
	}
	words := queryWords(q)

	var hits []Hit
	for _, n := range b.nodes {
		title := strings.ToLower(n.Title)
		content := strings.ToLower(n.Content)

		var score float64
		if strings.Contains(title, q) {
			score += 10
		}
		if strings.Contains(content, q) {
			score += 5
		}
		for _, w := range words {
			if strings.Contains(content, w) {
				score += 2
			}
		}
		if score > 0 {
			hits = append(hits, Hit{Node: n, Score: score})
		}
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}

// MarketIntelligence returns the market section of the fact set.
func (b *Base) MarketIntelligence() MarketIntelligence {
	return b.doc.Market
}

// DevelopmentIntelligence returns projects, permit trends and infrastructure.
func (b *Base) DevelopmentIntelligence() DevelopmentIntelligence {
	return b.doc.Development
}

// RegulatoryIntelligence returns zoning, incentives and building codes.
func (b *Base) RegulatoryIntelligence() RegulatoryIntelligence {
	return b.doc.Regulatory
}

// EnvironmentalIntelligence returns flood zones and resilience programs.
func (b *Base) EnvironmentalIntelligence() EnvironmentalIntelligence {
	return b.doc.Environmental
}

// MicroMarkets returns the neighborhood profiles.
func (b *Base) MicroMarkets() []MicroMarket {
	return b.doc.Market.MicroMarkets
}

// CapitalFlows returns the investment sources active in Houston.
func (b *Base) CapitalFlows() []InvestmentFlow {
	return b.doc.Market.InvestmentFlows
}

// EconomicIndicators returns the regional economic figures.
func (b *Base) EconomicIndicators() []EconomicIndicator {
	return b.doc.Market.EconomicIndicators
}

// SeasonalPattern returns the activity pattern for a month.
func (b *Base) SeasonalPattern(month time.Month) (SeasonalPattern, bool) {
	for _, p := range b.doc.Market.SeasonalPatterns {
		if strings.EqualFold(p.Month, month.String()) {
			return p, true
		}
	}
	return SeasonalPattern{}, false
}

// Neighborhoods lists every neighborhood name and alias the base knows,
// lower-cased.
func (b *Base) Neighborhoods() []string {
	var out []string
	for _, m := range b.doc.Market.MicroMarkets {
		out = append(out, aliases(m.Neighborhood)...)
	}
	return out
}

// NeighborhoodInsights combines market, development, zoning and flood data
// for one neighborhood. The name matches case-insensitively, including
// either half of a combined name such as "EaDo/East End".
func (b *Base) NeighborhoodInsights(name string) (*NeighborhoodInsights, bool) {
	market, ok := b.findMarket(name)
	if !ok {
		return nil, false
	}
	names := aliases(market.Neighborhood)

	ins := &NeighborhoodInsights{
		Neighborhood: market.Neighborhood,
		Market:       market,
		Summary:      neighborhoodSummary(market),
		Strengths:    strengths(market),
	}

	for _, p := range b.doc.Development.ActiveProjects {
		if mentionsAny(p.Location, names) || anyMentions(p.RelatedOpportunities, names) {
			ins.Development = append(ins.Development, p)
		}
	}
	for _, z := range b.doc.Regulatory.ZoningChanges {
		if mentionsAny(z.Area, names) {
			ins.Regulatory = append(ins.Regulatory, z)
		}
	}
	for i, f := range b.doc.Environmental.FloodZones {
		if mentionsAny(f.Area, names) {
			ins.Environmental = &b.doc.Environmental.FloodZones[i]
			break
		}
	}

	seen := map[string]bool{}
	add := func(items []string) {
		for _, s := range items {
			if !seen[s] {
				seen[s] = true
				ins.Opportunities = append(ins.Opportunities, s)
			}
		}
	}
	add(market.Opportunities)
	for _, d := range ins.Development {
		add(d.RelatedOpportunities)
	}
	for _, z := range ins.Regulatory {
		add(z.Opportunities)
	}

	ins.Concerns = append(ins.Concerns, market.Risks...)
	if ins.Environmental != nil {
		ins.Concerns = append(ins.Concerns, "Flood risk: "+ins.Environmental.Risk)
	}
	return ins, true
}

func (b *Base) findMarket(name string) (MicroMarket, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, m := range b.doc.Market.MicroMarkets {
		if strings.ToLower(m.Neighborhood) == name {
			return m, true
		}
		for _, a := range aliases(m.Neighborhood) {
			if a == name {
				return m, true
			}
		}
	}
	return MicroMarket{}, false
}

func strengths(m MicroMarket) []string {
	var out []string
	if m.Trends.PriceTrend == "rising" {
		out = append(out, fmt.Sprintf("Rising prices (%s YoY)", signedPct(m.Stats.PriceGrowth)))
	}
	if strings.Contains(m.Trends.DemandLevel, "high") {
		out = append(out, "Strong buyer demand ("+m.Trends.DemandLevel+")")
	}
	if m.Stats.WalkScore >= 75 {
		out = append(out, fmt.Sprintf("Highly walkable (Walk Score %d)", m.Stats.WalkScore))
	}
	if strings.HasPrefix(m.Stats.SchoolRating, "A") {
		out = append(out, "Top-rated schools ("+m.Stats.SchoolRating+")")
	}
	if m.Stats.CrimeIndex < 3 {
		out = append(out, fmt.Sprintf("Low crime index (%.1f)", m.Stats.CrimeIndex))
	}
	if m.Stats.FloodRisk == "low" {
		out = append(out, "Low flood risk")
	}
	if m.Trends.ForeignInvestment >= 15 {
		out = append(out, fmt.Sprintf("Strong international investor interest (%.0f%% of transactions)", m.Trends.ForeignInvestment))
	}
	if m.Trends.DevelopmentActivity == "very active" {
		out = append(out, "Very active development pipeline")
	}
	return out
}

func neighborhoodSummary(m MicroMarket) string {
	return fmt.Sprintf("%s: median price %s (%s YoY), %d days on market, %d active listings. Prices are %s with %s demand.",
		m.Neighborhood, money(m.Stats.MedianPrice), signedPct(m.Stats.PriceGrowth),
		m.Stats.DaysOnMarket, m.Stats.Inventory, m.Trends.PriceTrend, m.Trends.DemandLevel)
}

func queryWords(q string) []string {
	seen := map[string]bool{}
	var out []string
	for _, w := range strings.Fields(q) {
		w = strings.Trim(w, ".,;:!?\"'()")
		if len(w) > 2 && !seen[w] {
			seen[w] = true
			out = append(out, w)
		}
	}
	return out
}

// aliases splits combined names like "EaDo/East End" and lower-cases them.
func aliases(name string) []string {
	var out []string
	for _, part := range strings.Split(name, "/") {
		if p := strings.ToLower(strings.TrimSpace(part)); len(p) >= 4 {
			out = append(out, p)
		}
	}
	return out
}

func mentionsAny(text string, names []string) bool {
	t := strings.ToLower(text)
	for _, n := range names {
		if strings.Contains(t, n) {
			return true
		}
	}
	return false
}

func anyMentions(texts []string, names []string) bool {
	for _, t := range texts {
		if mentionsAny(t, names) {
			return true
		}
	}
	return false
}
