package knowledge

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	sourceMicroMarket   = "Houston Micro-Market Intelligence Report 2024"
	sourceConstruction  = "Harris County Construction Activity Report"
	sourceRegulatory    = "Houston Regulatory and Zoning Updates"
	sourceEnvironmental = "Houston Climate Resilience Assessment"
	sourceEconomic      = "Houston Economic Indicators"
)

// MicroMarketSource names the research behind the neighborhood figures.
const MicroMarketSource = sourceMicroMarket

func (b *Base) build() {
	d := b.doc
	for _, m := range d.Market.MicroMarkets {
		b.add(&Node{
			ID:      "market-" + slug(m.Neighborhood),
			Type:    NodeMarket,
			Title:   m.Neighborhood + " Market Intelligence",
			Content: marketContent(m),
			Metadata: b.meta(sourceMicroMarket, 0.95, m.Neighborhood,
				"market", "neighborhood", strings.ToLower(m.Neighborhood)),
		})
	}

	if len(d.Market.SeasonalPatterns) > 0 {
		b.add(&Node{
			ID:       "market-seasonal-patterns",
			Type:     NodeMarket,
			Title:    "Houston Seasonal Market Patterns",
			Content:  seasonalContent(d.Market.SeasonalPatterns),
			Metadata: b.meta(sourceMicroMarket, 0.9, "Houston", "market", "seasonal", "timing"),
		})
	}
	if len(d.Market.InvestmentFlows) > 0 {
		b.add(&Node{
			ID:       "financial-capital-flows",
			Type:     NodeFinancial,
			Title:    "Houston Investment Capital Flows",
			Content:  flowsContent(d.Market.InvestmentFlows),
			Metadata: b.meta(sourceMicroMarket, 0.85, "Houston", "investment", "capital", "foreign investment"),
		})
	}
	if len(d.Market.EconomicIndicators) > 0 {
		b.add(&Node{
			ID:       "financial-economic-indicators",
			Type:     NodeFinancial,
			Title:    "Houston Economic Indicators",
			Content:  economicContent(d.Market.EconomicIndicators),
			Metadata: b.meta(sourceEconomic, 0.85, "Houston", "economy", "jobs", "rates"),
		})
	}

	for _, p := range d.Development.ActiveProjects {
		b.add(&Node{
			ID:      "dev-" + strings.ToLower(p.ID),
			Type:    NodeInfrastructure,
			Title:   p.Name,
			Content: projectContent(p),
			Metadata: b.meta(sourceConstruction, 0.98, p.Location,
				"development", "infrastructure", strings.ToLower(p.Type)),
		})
	}
	for _, t := range d.Development.PermitTrends {
		b.add(&Node{
			ID:       "permits-" + slug(t.Area),
			Type:     NodeInfrastructure,
			Title:    t.Area + " Permit Activity",
			Content:  permitContent(t),
			Metadata: b.meta(sourceConstruction, 0.95, t.Area, "development", "permits"),
		})
	}
	for _, im := range d.Development.InfrastructureImpact {
		b.add(&Node{
			ID:       "impact-" + slug(im.Project),
			Type:     NodeInfrastructure,
			Title:    im.Project,
			Content:  impactContent(im),
			Metadata: b.meta(sourceConstruction, 0.9, strings.Join(im.AffectedAreas, ", "), "infrastructure", "value impact"),
		})
	}

	for _, z := range d.Regulatory.ZoningChanges {
		b.add(&Node{
			ID:       "zoning-" + slug(z.Area),
			Type:     NodeRegulatory,
			Title:    z.Area + " Zoning Change",
			Content:  zoningContent(z),
			Metadata: b.meta(sourceRegulatory, 0.9, z.Area, "regulatory", "zoning"),
		})
	}
	for _, t := range d.Regulatory.TaxIncentives {
		b.add(&Node{
			ID:       "incentive-" + slug(t.Program),
			Type:     NodeRegulatory,
			Title:    t.Program,
			Content:  incentiveContent(t),
			Metadata: b.meta(sourceRegulatory, 0.9, strings.Join(t.EligibleAreas, ", "), "regulatory", "tax", "incentive"),
		})
	}
	for _, c := range d.Regulatory.BuildingCodes {
		b.add(&Node{
			ID:       "code-" + slug(c.Requirement),
			Type:     NodeRegulatory,
			Title:    c.Requirement,
			Content:  codeContent(c),
			Metadata: b.meta(sourceRegulatory, 0.9, "Houston", "regulatory", "building code"),
		})
	}

	for _, f := range d.Environmental.FloodZones {
		b.add(&Node{
			ID:       "flood-" + slug(f.Area),
			Type:     NodeEnvironmental,
			Title:    f.Area + " Flood Risk Profile",
			Content:  floodContent(f),
			Metadata: b.meta(sourceEnvironmental, 0.95, f.Area, "environmental", "flood", f.Risk),
		})
	}
	for _, r := range d.Environmental.ClimateResilience {
		b.add(&Node{
			ID:       "resilience-" + slug(r.Metric),
			Type:     NodeEnvironmental,
			Title:    r.Metric,
			Content:  resilienceContent(r),
			Metadata: b.meta(sourceEnvironmental, 0.85, "Houston", "environmental", "resilience"),
		})
	}
	for _, s := range d.Environmental.SustainabilityIncentives {
		b.add(&Node{
			ID:       "green-" + slug(s.Program),
			Type:     NodeEnvironmental,
			Title:    s.Program,
			Content:  sustainabilityContent(s),
			Metadata: b.meta(sourceEnvironmental, 0.85, "Houston", "environmental", "sustainability", "incentive"),
		})
	}

	b.crossReference()
}

func (b *Base) add(n *Node) {
	if n.Related == nil {
		n.Related = []string{}
	}
	b.nodes = append(b.nodes, n)
	b.byID[n.ID] = n
}

func (b *Base) meta(source string, confidence float64, location string, tags ...string) NodeMetadata {
	return NodeMetadata{
		Source:     source,
		UpdatedAt:  b.doc.Updated,
		Confidence: confidence,
		Tags:       tags,
		Location:   location,
	}
}

// crossReference links every non-market node to the neighborhoods its
// location or content mentions, in both directions.
func (b *Base) crossReference() {
	type market struct {
		id    string
		names []string
	}
	var markets []market
	for _, m := range b.doc.Market.MicroMarkets {
		markets = append(markets, market{id: "market-" + slug(m.Neighborhood), names: aliases(m.Neighborhood)})
	}

	for _, n := range b.nodes {
		if n.Type == NodeMarket {
			continue
		}
		text := n.Metadata.Location + "\n" + n.Content
		for _, m := range markets {
			if mentionsAny(text, m.names) {
				link(n, b.byID[m.id])
			}
		}
	}
}

func link(a, b *Node) {
	if a == nil || b == nil || a == b {
		return
	}
	if !contains(a.Related, b.ID) {
		a.Related = append(a.Related, b.ID)
	}
	if !contains(b.Related, a.ID) {
		b.Related = append(b.Related, a.ID)
	}
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

func slug(s string) string {
	return strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(s), "-"), "-")
}

func bullets(items []string) string {
	var sb strings.Builder
	for i, it := range items {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString("- ")
		sb.WriteString(it)
	}
	return sb.String()
}

func marketContent(m MicroMarket) string {
	return fmt.Sprintf(`%s Real Estate Market Analysis

Current Market Conditions:
- Median Price: %s (%s YoY)
- Days on Market: %d days
- Inventory: %d active listings
- Gentrification Risk: %s
- School Rating: %s
- Walk Score: %d/100
- Flood Risk: %s

Market Trends:
- Price Trend: %s
- Demand Level: %s
- Development Activity: %s
- Foreign Investment: %.0f%% of transactions

Investment Opportunities:
%s

Key Risks:
%s`,
		m.Neighborhood, money(m.Stats.MedianPrice), signedPct(m.Stats.PriceGrowth),
		m.Stats.DaysOnMarket, m.Stats.Inventory, m.Stats.GentrificationRisk, m.Stats.SchoolRating,
		m.Stats.WalkScore, m.Stats.FloodRisk,
		m.Trends.PriceTrend, m.Trends.DemandLevel, m.Trends.DevelopmentActivity, m.Trends.ForeignInvestment,
		bullets(m.Opportunities), bullets(m.Risks))
}

func projectContent(p Project) string {
	return fmt.Sprintf(`%s

Project Overview:
- Type: %s
- Location: %s
- Investment: %s
- Timeline: %s

Expected Impact:
%s

Related Real Estate Opportunities:
%s`,
		p.Name, p.Type, p.Location, compactMoney(p.Investment), p.Timeline,
		bullets(p.Impact), bullets(p.RelatedOpportunities))
}

func permitContent(t PermitTrend) string {
	return fmt.Sprintf(`%s building permits: %s permits worth %s (average %s), growth %s.
Top permit types: %s.`,
		t.Area, thousands(float64(t.PermitCount)), compactMoney(t.TotalValue), money(t.AverageValue),
		signedPct(t.GrowthRate), strings.Join(t.TopTypes, ", "))
}

func impactContent(im InfrastructureImpact) string {
	return fmt.Sprintf(`%s (%s) is expected to lift property values by about %.0f%% in %s.

Opportunities:
%s`,
		im.Project, im.Timeframe, im.ValueImpact, strings.Join(im.AffectedAreas, ", "), bullets(im.Opportunities))
}

func zoningContent(z ZoningChange) string {
	return fmt.Sprintf(`%s zoning change from %s to %s.
Status: %s (%s).
Impact: %s.

Opportunities:
%s`,
		z.Area, z.CurrentZoning, z.ProposedZoning, z.Status, z.Timeline, z.Impact, bullets(z.Opportunities))
}

func incentiveContent(t TaxIncentive) string {
	return fmt.Sprintf(`%s tax incentive for %s. Deadline: %s.

Benefits:
%s

Requirements:
%s`,
		t.Program, strings.Join(t.EligibleAreas, ", "), t.Deadline, bullets(t.Benefits), bullets(t.Requirements))
}

func codeContent(c BuildingCode) string {
	return fmt.Sprintf(`%s, effective %s: %s.

Compliance tips:
%s`,
		c.Requirement, c.EffectiveDate, c.Impact, bullets(c.ComplianceTips))
}

func floodContent(f FloodZone) string {
	events := make([]string, len(f.HistoricalEvents))
	for i, e := range f.HistoricalEvents {
		events[i] = fmt.Sprintf("%s (%s): %s", e.Event, e.Date, e.Impact)
	}
	return fmt.Sprintf(`%s lies in flood zone %s with %s flood risk.

Historical events:
%s

Mitigation strategies:
%s`,
		f.Area, f.Zone, f.Risk, bullets(events), bullets(f.MitigationStrategies))
}

func resilienceContent(r ResilienceMetric) string {
	return fmt.Sprintf(`%s score %.1f/10, trend %s.

Recommendations:
%s`,
		r.Metric, r.Score, r.Trend, bullets(r.Recommendations))
}

func sustainabilityContent(s SustainabilityIncentive) string {
	return fmt.Sprintf(`%s sustainability program with an expected ROI of %.2fx.

Benefits:
%s

Requirements:
%s`,
		s.Program, s.ROI, bullets(s.Benefits), bullets(s.Requirements))
}

func seasonalContent(patterns []SeasonalPattern) string {
	lines := make([]string, len(patterns))
	for i, p := range patterns {
		lines[i] = fmt.Sprintf("%s (activity %.2f): best for %s; avoid %s",
			p.Month, p.ActivityIndex, strings.Join(p.BestFor, ", "), strings.Join(p.Avoid, ", "))
	}
	return "Houston market activity follows a seasonal cycle.\n\n" + bullets(lines)
}

func flowsContent(flows []InvestmentFlow) string {
	lines := make([]string, len(flows))
	for i, f := range flows {
		lines[i] = fmt.Sprintf("%s: %s, %s, targeting %s (%s)",
			f.Source, compactMoney(f.Amount), f.Trend, strings.Join(f.TargetNeighborhoods, ", "),
			strings.Join(f.PropertyTypes, ", "))
	}
	return "Capital flowing into Houston real estate by source.\n\n" + bullets(lines)
}

func economicContent(ind []EconomicIndicator) string {
	lines := make([]string, len(ind))
	for i, e := range ind {
		lines[i] = fmt.Sprintf("%s: %s (%s)", e.Name, formatIndicator(e), e.Trend)
	}
	return "Houston regional economy at a glance.\n\n" + bullets(lines)
}

func formatIndicator(e EconomicIndicator) string {
	switch e.Unit {
	case "%":
		return fmt.Sprintf("%.1f%%", e.Value)
	case "USD":
		return money(e.Value)
	case "jobs":
		return thousands(e.Value) + " jobs"
	default:
		return fmt.Sprintf("%.2f %s", e.Value, e.Unit)
	}
}

func signedPct(v float64) string {
	if v > 0 {
		return fmt.Sprintf("+%.1f%%", v)
	}
	return fmt.Sprintf("%.1f%%", v)
}

func money(v float64) string {
	return "$" + thousands(v)
}

func compactMoney(v float64) string {
	switch {
	case v >= 1e9:
		return fmt.Sprintf("$%.1fB", v/1e9)
	case v >= 1e6:
		return fmt.Sprintf("$%.0fM", v/1e6)
	default:
		return money(v)
	}
}

// thousands renders a rounded number with comma separators.
func thousands(v float64) string {
	neg := v < 0
	if neg {
		v = -v
	}
	s := fmt.Sprintf("%.0f", v)
	var sb strings.Builder
	if neg {
		sb.WriteByte('-')
	}
	for i, c := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			sb.WriteByte(',')
		}
		sb.WriteRune(c)
	}
	return sb.String()
}
