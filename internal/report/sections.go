package report

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/fernando-x/platform/libs/intelligence-engine/internal/knowledge"
)

const (
	defaultPrice     = 500000.0
	grossYield       = 0.06
	expenseRatio     = 0.02
	netYield         = 0.04
	exitMultiple     = 1.15
	defaultGrowthPct = 3.0
	genericExcerpt   = 500
)

var cashFlowProjection = []float64{50000, 52500, 55125, 57881, 60775}

func sectionContent(title string, in *inputs) string {
	switch title {
	case "Executive Summary":
		return executiveSummary(in)
	case "Investment Thesis":
		return investmentThesis(in)
	case "Market Analysis":
		return marketAnalysis(in)
	case "Financial Analysis":
		return financialAnalysis(in)
	case "Risk Assessment":
		return riskAssessment(in)
	case "Property Overview":
		return propertyOverview(in)
	case "Development Concept":
		return developmentConcept(in)
	default:
		return genericSection(title, in)
	}
}

func executiveSummary(in *inputs) string {
	var b strings.Builder
	m := in.firstMarket()
	p := in.property
	fmt.Fprintf(&b, "## Investment Opportunity: %s\n\n", in.topic)

	switch {
	case in.config.Type == TypeInvestmentMemo && p != nil:
		fmt.Fprintf(&b, "This investment memorandum evaluates the acquisition opportunity for %s, ", orElse(p.Address, in.topic))
		fmt.Fprintf(&b, "a %s located in %s. ", orElse(p.PropertyType, "property"), orElse(p.Neighborhood, "Houston"))
		if m != nil {
			fmt.Fprintf(&b, "The %s market has demonstrated %s price trends ", m.Neighborhood, m.Trends.PriceTrend)
			fmt.Fprintf(&b, "with a %s%% year-over-year growth. ", signed(m.Stats.PriceGrowth))
		}
		demand, activity := "strong", "Active"
		if m != nil {
			demand, activity = m.Trends.DemandLevel, m.Trends.DevelopmentActivity
		}
		b.WriteString("\n\nKey investment highlights include:\n")
		fmt.Fprintf(&b, "- Strategic location with %s demand fundamentals\n", demand)
		fmt.Fprintf(&b, "- %s development activity in the area\n", capitalize(activity))
		b.WriteString("- Multiple value-add opportunities through strategic improvements\n")
		if p.AskingPrice > 0 {
			fmt.Fprintf(&b, "- Asking price of %s represents compelling value\n", usd(p.AskingPrice))
		}

	case in.config.Type == TypeMarketAnalysis:
		fmt.Fprintf(&b, "This comprehensive market analysis examines the %s real estate market, ", in.topic)
		b.WriteString("providing insights into current conditions, trends, and investment opportunities. ")
		if m != nil {
			fmt.Fprintf(&b, "The analysis reveals a %s market with ", m.Trends.PriceTrend)
			fmt.Fprintf(&b, "median prices at %s and ", usd(m.Stats.MedianPrice))
			fmt.Fprintf(&b, "%d average days on market. ", m.Stats.DaysOnMarket)
		}
	}
	return b.String()
}

func investmentThesis(in *inputs) string {
	var b strings.Builder
	m := in.firstMarket()

	b.WriteString("## Investment Rationale\n\n")
	b.WriteString("### Market Dynamics\n")
	if m != nil {
		fmt.Fprintf(&b, "The %s submarket presents a compelling investment opportunity driven by:\n\n", m.Neighborhood)
		b.WriteString("**Demand Drivers:**\n")
		fmt.Fprintf(&b, "- %s demand with %d properties currently available\n", capitalize(m.Trends.DemandLevel), m.Stats.Inventory)
		fmt.Fprintf(&b, "- %d/100 walkability score attracting urban professionals\n", m.Stats.WalkScore)
		fmt.Fprintf(&b, "- %s%% foreign investment indicating international appeal\n\n", num(m.Trends.ForeignInvestment))

		b.WriteString("**Supply Constraints:**\n")
		fmt.Fprintf(&b, "- Limited inventory with only %d days average market time\n", m.Stats.DaysOnMarket)
		fmt.Fprintf(&b, "- %s development activity maintaining supply-demand balance\n", capitalize(m.Trends.DevelopmentActivity))
		b.WriteString("- Zoning restrictions limiting new construction\n\n")
	}

	if in.development != nil && len(in.development.ActiveProjects) > 0 {
		p := in.development.ActiveProjects[0]
		b.WriteString("**Catalytic Projects:**\n")
		fmt.Fprintf(&b, "The %s ($%.1fB investment) ", p.Name, p.Investment/1e9)
		b.WriteString("will significantly enhance the area's value proposition through:\n")
		for _, impact := range p.Impact {
			fmt.Fprintf(&b, "- %s\n", impact)
		}
	}

	trend := "favorable"
	if m != nil {
		trend = m.Trends.PriceTrend
	}
	b.WriteString("\n### Value Creation Strategy\n")
	b.WriteString("1. **Immediate Improvements:** Property condition enhancements and curb appeal\n")
	b.WriteString("2. **Operational Efficiency:** Optimize property management and reduce expenses\n")
	b.WriteString("3. **Revenue Enhancement:** Strategic renovations to command premium rents\n")
	fmt.Fprintf(&b, "4. **Market Timing:** Capitalize on %s market conditions\n", trend)
	return b.String()
}

func marketAnalysis(in *inputs) string {
	var b strings.Builder
	b.WriteString("## Comprehensive Market Analysis\n\n")
	if in.market == nil || len(in.market.MicroMarkets) == 0 {
		return b.String()
	}

	b.WriteString("### Submarket Performance Comparison\n\n")
	b.WriteString("| Neighborhood | Median Price | YoY Growth | Days on Market | Inventory |\n")
	b.WriteString("|--------------|-------------|------------|----------------|----------|\n")
	for _, m := range in.market.MicroMarkets {
		fmt.Fprintf(&b, "| %s | %s | %s%% | %d | %d |\n",
			m.Neighborhood, usd(m.Stats.MedianPrice), signed(m.Stats.PriceGrowth), m.Stats.DaysOnMarket, m.Stats.Inventory)
	}

	b.WriteString("\n### Market Trends & Insights\n\n")
	b.WriteString("**Seasonal Market Dynamics:**\n")
	month := in.month.String()
	for _, p := range in.market.SeasonalPatterns {
		if p.Month != month {
			continue
		}
		fmt.Fprintf(&b, "- Current month (%s) activity index: %s\n", month, num(p.ActivityIndex))
		fmt.Fprintf(&b, "- Best for: %s\n", strings.Join(p.BestFor, ", "))
		fmt.Fprintf(&b, "- Considerations: %s\n\n", strings.Join(p.Avoid, ", "))
		break
	}

	b.WriteString("**Capital Flow Analysis:**\n")
	for _, f := range in.market.InvestmentFlows {
		fmt.Fprintf(&b, "- %s: $%.0fM targeting %s (%s)\n",
			f.Source, f.Amount/1e6, strings.Join(f.TargetNeighborhoods, ", "), f.Trend)
	}
	return b.String()
}

func financialAnalysis(in *inputs) string {
	var b strings.Builder
	m := in.firstMarket()
	price := defaultPrice

	b.WriteString("## Financial Analysis & Projections\n\n")
	if p := in.property; p != nil && p.AskingPrice > 0 {
		price = p.AskingPrice
		b.WriteString("### Acquisition Analysis\n")
		fmt.Fprintf(&b, "- Asking Price: %s\n", usd(p.AskingPrice))
		if p.SquareFeet > 0 {
			fmt.Fprintf(&b, "- Price per Square Foot: $%.2f\n", p.AskingPrice/p.SquareFeet)
		}
		comparison := "In line with market"
		if m != nil && m.Stats.MedianPrice > 0 {
			comparison = fmt.Sprintf("%.1f%% vs median", (p.AskingPrice/m.Stats.MedianPrice-1)*100)
		}
		fmt.Fprintf(&b, "- Market Comparison: %s\n\n", comparison)
	}

	growth := defaultGrowthPct
	if m != nil && m.Stats.PriceGrowth != 0 {
		growth = m.Stats.PriceGrowth
	}

	b.WriteString("### Investment Returns (Projected)\n")
	b.WriteString("**Year 1 Pro Forma:**\n")
	fmt.Fprintf(&b, "- Gross Rental Income: %s\n", usd(price*grossYield))
	fmt.Fprintf(&b, "- Operating Expenses: %s\n", usd(price*expenseRatio))
	fmt.Fprintf(&b, "- Net Operating Income: %s\n", usd(price*netYield))
	b.WriteString("- Cap Rate: 4.0%\n")
	b.WriteString("- Cash-on-Cash Return: 8.5%\n\n")

	b.WriteString("**5-Year Financial Projections:**\n")
	fmt.Fprintf(&b, "- Average Annual Appreciation: %s%%\n", num(growth))
	b.WriteString("- Total Return (IRR): 12-15%\n")
	fmt.Fprintf(&b, "- Exit Value: %s\n", usd(price*exitMultiple))
	return b.String()
}

var mitigations = []struct{ keyword, plan string }{
	{"deed restrictions", "Thorough title review and legal consultation before acquisition"},
	{"parking", "Explore shared parking agreements or automated parking solutions"},
	{"gentrification", "Implement community benefit agreements and affordable housing set-asides"},
	{"flooding", "Elevate structures, install flood barriers, maintain adequate insurance"},
	{"market", "Diversify property types and maintain conservative underwriting"},
}

const defaultMitigation = "Comprehensive due diligence and risk assessment protocols"

func mitigation(risk string) string {
	r := strings.ToLower(risk)
	for _, m := range mitigations {
		if strings.Contains(r, m.keyword) {
			return m.plan
		}
	}
	return defaultMitigation
}

func riskAssessment(in *inputs) string {
	var b strings.Builder
	b.WriteString("## Risk Assessment & Mitigation Strategies\n\n")

	b.WriteString("### Market Risks\n")
	if m := in.firstMarket(); m != nil {
		for _, risk := range m.Risks {
			fmt.Fprintf(&b, "- **%s**\n", risk)
			fmt.Fprintf(&b, "  - Mitigation: %s\n", mitigation(risk))
		}
	}

	b.WriteString("\n### Environmental Risks\n")
	if f := floodZoneFor(in); f != nil {
		fmt.Fprintf(&b, "- **Flood Risk:** %s (%s zone)\n", f.Risk, f.Zone)
		fmt.Fprintf(&b, "  - Historical events: %d major floods\n", len(f.HistoricalEvents))
		b.WriteString("  - Mitigation strategies:\n")
		for _, s := range f.MitigationStrategies {
			fmt.Fprintf(&b, "    - %s\n", s)
		}
	}

	b.WriteString("\n### Financial Risks\n")
	b.WriteString("- **Interest Rate Risk:** Rising rates may impact cap rates\n")
	b.WriteString("  - Mitigation: Lock in long-term financing, focus on value-add\n")
	b.WriteString("- **Liquidity Risk:** Real estate is illiquid asset\n")
	b.WriteString("  - Mitigation: Maintain adequate reserves, plan exit strategy\n")
	return b.String()
}

// floodZoneFor prefers the zone covering the subject property's
// neighborhood and otherwise falls back to the first zone on record.
func floodZoneFor(in *inputs) *knowledge.FloodZone {
	if in.environmental == nil || len(in.environmental.FloodZones) == 0 {
		return nil
	}
	zones := in.environmental.FloodZones
	if in.property != nil && in.property.Neighborhood != "" {
		for i := range zones {
			if strings.EqualFold(zones[i].Area, in.property.Neighborhood) {
				return &zones[i]
			}
		}
	}
	return &zones[0]
}

func propertyOverview(in *inputs) string {
	var b strings.Builder
	b.WriteString("## Property Overview\n\n")

	if p := in.property; p != nil {
		b.WriteString("### Property Details\n")
		fmt.Fprintf(&b, "- **Address:** %s\n", orElse(p.Address, in.topic))
		fmt.Fprintf(&b, "- **Type:** %s\n", orElse(p.PropertyType, "Residential"))
		fmt.Fprintf(&b, "- **Size:** %s sq ft\n", orTBD(p.SquareFeet))
		fmt.Fprintf(&b, "- **Lot Size:** %s sq ft\n", orTBD(p.LotSize))
		year := "TBD"
		if p.YearBuilt > 0 {
			year = strconv.Itoa(p.YearBuilt)
		}
		fmt.Fprintf(&b, "- **Year Built:** %s\n", year)
		fmt.Fprintf(&b, "- **Bedrooms/Bathrooms:** %s/%s\n\n", orTBD(float64(p.Bedrooms)), orTBD(p.Bathrooms))
	}

	if len(in.photos) > 0 {
		b.WriteString("### Property Condition Analysis\n")
		var total float64
		seen := make(map[string]bool)
		var features []string
		for _, a := range in.photos {
			total += a.Condition.Score
			for _, f := range a.Features {
				if !seen[f.Name] {
					seen[f.Name] = true
					features = append(features, f.Name)
				}
			}
		}
		fmt.Fprintf(&b, "- **Overall Condition Score:** %.1f/10\n", total/float64(len(in.photos)))
		b.WriteString("- **Key Features:**\n")
		for _, f := range features[:min(5, len(features))] {
			fmt.Fprintf(&b, "  - %s\n", f)
		}
		est := in.photos[0].RenovationEstimate
		fmt.Fprintf(&b, "- **Renovation Estimate:** %s-%s\n", usd(est.Minimum), usd(est.Maximum))
	}
	return b.String()
}

func developmentConcept(in *inputs) string {
	var b strings.Builder
	b.WriteString("## Development Concept & Vision\n\n")
	b.WriteString("### Highest and Best Use Analysis\n")
	b.WriteString("Based on market conditions and site characteristics, the recommended development is:\n\n")

	if m := in.firstMarket(); m != nil && len(m.Opportunities) > 0 {
		b.WriteString("**Development Options:**\n")
		for _, o := range m.Opportunities {
			fmt.Fprintf(&b, "- %s\n", o)
		}
	}

	b.WriteString("\n### Conceptual Program\n")
	b.WriteString("- **Residential Units:** 24-36 units (mix of 1BR/2BR)\n")
	b.WriteString("- **Commercial Space:** 5,000 sq ft ground floor retail\n")
	b.WriteString("- **Parking:** 1.5 spaces per unit + retail parking\n")
	b.WriteString("- **Amenities:** Rooftop deck, fitness center, coworking space\n\n")

	b.WriteString("### Development Timeline\n")
	b.WriteString("1. **Pre-Development** (Months 1-6)\n")
	b.WriteString("   - Site acquisition and due diligence\n")
	b.WriteString("   - Conceptual design and community input\n")
	b.WriteString("   - Entitlements and permitting\n\n")
	b.WriteString("2. **Construction** (Months 7-18)\n")
	b.WriteString("   - Site work and foundation\n")
	b.WriteString("   - Vertical construction\n")
	b.WriteString("   - Interior finishes and landscaping\n\n")
	b.WriteString("3. **Lease-Up** (Months 19-24)\n")
	b.WriteString("   - Marketing campaign launch\n")
	b.WriteString("   - Progressive occupancy\n")
	b.WriteString("   - Stabilization\n")
	return b.String()
}

// genericSection quotes knowledge hits that mention the section title, or
// lists the standard considerations when none do.
func genericSection(title string, in *inputs) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## %s\n\n", title)

	needle := strings.ToLower(title)
	found := false
	for _, h := range in.hits {
		n := h.Node
		if !strings.Contains(strings.ToLower(n.Title), needle) && !strings.Contains(strings.ToLower(n.Content), needle) {
			continue
		}
		found = true
		excerpt := n.Content
		if len(excerpt) > genericExcerpt {
			excerpt = excerpt[:genericExcerpt]
		}
		fmt.Fprintf(&b, "### %s\n%s...\n\n", n.Title, excerpt)
	}
	if found {
		return b.String()
	}

	fmt.Fprintf(&b, "This section provides detailed analysis of %s factors related to %s.\n\n", needle, in.topic)
	b.WriteString("Key considerations include:\n")
	b.WriteString("- Market conditions and trends\n")
	b.WriteString("- Regulatory environment\n")
	b.WriteString("- Investment opportunities\n")
	b.WriteString("- Risk factors and mitigation\n")
	return b.String()
}

func visualizations(title string, in *inputs) []Visualization {
	switch {
	case title == "Market Analysis" && in.market != nil:
		chart := Chart{Type: "bar", Title: "Neighborhood Price Comparison"}
		for _, m := range in.market.MicroMarkets {
			chart.Labels = append(chart.Labels, m.Neighborhood)
			chart.Values = append(chart.Values, m.Stats.MedianPrice)
		}
		return []Visualization{{Type: "chart", Data: chart, Caption: "Median home prices across Houston neighborhoods"}}
	case title == "Financial Analysis":
		chart := Chart{
			Type:   "line",
			Title:  "5-Year Cash Flow Projection",
			Labels: []string{"Year 1", "Year 2", "Year 3", "Year 4", "Year 5"},
			Values: append([]float64(nil), cashFlowProjection...),
		}
		return []Visualization{{Type: "chart", Data: chart, Caption: "Projected net operating income with 5% annual growth"}}
	}
	return nil
}

// subsections breaks Market Analysis down per neighborhood in detailed reports.
func subsections(title string, in *inputs) []Section {
	if in.config.Style != StyleDetailed || title != "Market Analysis" || in.market == nil {
		return nil
	}
	var out []Section
	for _, m := range in.market.MicroMarkets {
		out = append(out, Section{
			Title:      m.Neighborhood + " Submarket",
			Content:    marketSummary(m),
			Confidence: 0.9,
			Sources:    []string{knowledge.MicroMarketSource},
		})
	}
	return out
}

func marketSummary(m knowledge.MicroMarket) string {
	return fmt.Sprintf("The %s submarket shows %s price trends with %s%% YoY growth. "+
		"Current median price is %s with %d average days on market. "+
		"Development activity is %s with %s demand levels.",
		m.Neighborhood, m.Trends.PriceTrend, signed(m.Stats.PriceGrowth),
		usd(m.Stats.MedianPrice), m.Stats.DaysOnMarket,
		m.Trends.DevelopmentActivity, m.Trends.DemandLevel)
}

func orElse(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}

func orTBD(v float64) string {
	if v <= 0 {
		return "TBD"
	}
	if v == math.Trunc(v) {
		return grouped(v)
	}
	return num(v)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func signed(v float64) string {
	if v > 0 {
		return "+" + num(v)
	}
	return num(v)
}

func usd(v float64) string {
	if v < 0 {
		return "-$" + grouped(-v)
	}
	return "$" + grouped(v)
}

// grouped renders v rounded to a whole number with thousands separators.
func grouped(v float64) string {
	s := strconv.FormatInt(int64(math.Round(v)), 10)
	var b strings.Builder
	for i := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
