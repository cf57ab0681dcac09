package conversation

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/fernando-x/platform/libs/intelligence-engine/internal/knowledge"
	"github.com/fernando-x/platform/libs/intelligence-engine/internal/search"
)

type response struct {
	text    string
	sources []string
}

const (
	mortgageRate  = 0.07
	mortgageYears = 30
	downPayment   = 0.20
)

func (m *Manager) respond(ctx context.Context, intent Intent, text string, conv *Context) response {
	hood := conv.Entities.Neighborhood
	switch intent {
	case IntentGreeting:
		return response{text: "Hello! I'm Fernando-X, your Houston real estate expert. I can walk you through market trends, neighborhoods, investment opportunities, development activity and financing. What would you like to explore?"}
	case IntentMarketAnalysis:
		return m.marketResponse(hood)
	case IntentNeighborhoodInfo:
		if r, ok := m.neighborhoodResponse(hood); ok {
			return r
		}
	case IntentPropertySearch:
		return m.propertySearchResponse(ctx, text, conv)
	case IntentInvestmentAdvice:
		return m.investmentResponse(hood)
	case IntentDevelopmentOpportunity:
		return m.developmentResponse(hood)
	case IntentFinancialCalculation:
		return financingResponse(conv.Entities.Price)
	case IntentTimingAdvice:
		return m.timingResponse()
	case IntentComparison:
		if r, ok := m.comparisonResponse(conv.Entities.Locations); ok {
			return r
		}
		return response{text: "Happy to compare. Name two Houston neighborhoods, for example \"Heights vs Montrose\", and I'll line up prices, days on market and growth side by side."}
	case IntentReportRequest:
		return response{text: "I can prepare an investment memo, market analysis, feasibility study, portfolio review or development proposal. Tell me the property or area and the report type, and I'll generate it in markdown, HTML or plain text."}
	case IntentPhotoAnalysis:
		return response{text: "Send me the property photo URLs and I'll assess condition, notable features, likely repairs and a renovation budget, then roll them up into an overall investment view."}
	case IntentHelp:
		return response{text: "Here is what I can do:\n- Market trends and seasonal timing\n- Neighborhood profiles with strengths and risks\n- Investment and development opportunities\n- Mortgage payment estimates\n- Side-by-side neighborhood comparisons\n- Reports and property photo analysis\nJust ask in plain English."}
	}
	return m.generalResponse(ctx, text)
}

func (m *Manager) marketResponse(hood string) response {
	if ins, ok := m.kb.NeighborhoodInsights(hood); ok {
		text := ins.Summary
		if len(ins.Strengths) > 0 {
			text += "\n\nWhat stands out: " + strings.Join(ins.Strengths, "; ") + "."
		}
		return response{text: text, sources: []string{"market-intelligence"}}
	}

	var sb strings.Builder
	sb.WriteString("Here's the current Houston picture:\n")
	if p, ok := m.kb.SeasonalPattern(m.now().Month()); ok {
		fmt.Fprintf(&sb, "- %s activity index %.2f, best for %s\n", p.Month, p.ActivityIndex, strings.Join(p.BestFor, ", "))
	}
	for i, ind := range m.kb.EconomicIndicators() {
		if i == 3 {
			break
		}
		fmt.Fprintf(&sb, "- %s: %s\n", ind.Name, formatIndicator(ind))
	}
	for _, mm := range m.kb.MicroMarkets() {
		fmt.Fprintf(&sb, "- %s median %s (%+.1f%% YoY)\n", mm.Neighborhood, dollars(mm.Stats.MedianPrice), mm.Stats.PriceGrowth)
	}
	sb.WriteString("Ask about a neighborhood for a deeper read.")
	return response{text: sb.String(), sources: []string{"market-intelligence", "economic-indicators"}}
}

// timingResponse reads the current month against the seasonal calendar.
func (m *Manager) timingResponse() response {
	month := m.now().Month()
	p, ok := m.kb.SeasonalPattern(month)
	if !ok {
		return response{text: "Houston activity peaks in spring and early summer and slows from November through January, when motivated sellers give buyers the most leverage."}
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s runs at a %.2f activity index", p.Month, p.ActivityIndex)
	switch {
	case p.ActivityIndex >= 1.1:
		sb.WriteString(", a busy month: expect competition and firmer prices.")
	case p.ActivityIndex <= 0.9:
		sb.WriteString(", a quiet month: buyers have more room to negotiate.")
	default:
		sb.WriteString(", close to the yearly average.")
	}
	writeList(&sb, "Good for", p.BestFor)
	writeList(&sb, "Watch out for", p.Avoid)
	return response{text: sb.String(), sources: []string{"seasonal-patterns"}}
}

func (m *Manager) neighborhoodResponse(hood string) (response, bool) {
	ins, ok := m.kb.NeighborhoodInsights(hood)
	if !ok {
		return response{}, false
	}
	var sb strings.Builder
	sb.WriteString(ins.Summary)
	writeList(&sb, "Strengths", ins.Strengths)
	writeList(&sb, "Concerns", ins.Concerns)
	writeList(&sb, "Opportunities", ins.Opportunities)
	return response{text: sb.String(), sources: []string{"market-intelligence", "neighborhood-insights"}}, true
}

func (m *Manager) propertySearchResponse(ctx context.Context, text string, conv *Context) response {
	var sb strings.Builder
	criteria := []string{}
	if pt := conv.Entities.PropertyType; pt != "" {
		criteria = append(criteria, pt)
	}
	if conv.Entities.Bedrooms > 0 {
		criteria = append(criteria, fmt.Sprintf("%d bedrooms", conv.Entities.Bedrooms))
	}
	if pr := conv.Preferences.PriceRange; pr != nil {
		criteria = append(criteria, fmt.Sprintf("%s to %s", dollars(pr.Min), dollars(pr.Max)))
	}
	if len(conv.Preferences.Locations) > 0 {
		criteria = append(criteria, "in "+strings.Join(conv.Preferences.Locations, " or "))
	}
	if len(criteria) > 0 {
		sb.WriteString("Searching for " + strings.Join(criteria, ", ") + ".\n")
	}

	if ins, ok := m.kb.NeighborhoodInsights(conv.Entities.Neighborhood); ok {
		mk := ins.Market
		fmt.Fprintf(&sb, "%s homes sell for a median %s and spend about %d days on market with %d active listings.",
			mk.Neighborhood, dollars(mk.Stats.MedianPrice), mk.Stats.DaysOnMarket, mk.Stats.Inventory)
		if pr := conv.Preferences.PriceRange; pr != nil && pr.Max < mk.Stats.MedianPrice {
			sb.WriteString(" Your budget sits below the area median, so expect smaller or older homes.")
		}
		return response{text: sb.String(), sources: []string{"market-intelligence"}}
	}

	r := m.generalResponse(ctx, text)
	sb.WriteString(r.text)
	return response{text: sb.String(), sources: r.sources}
}

func (m *Manager) investmentResponse(hood string) response {
	if ins, ok := m.kb.NeighborhoodInsights(hood); ok {
		var sb strings.Builder
		fmt.Fprintf(&sb, "Investment view for %s: %s", ins.Neighborhood, ins.Summary)
		writeList(&sb, "Opportunities", ins.Opportunities)
		writeList(&sb, "Risks to underwrite", ins.Concerns)
		return response{text: sb.String(), sources: []string{"market-intelligence", "development-intelligence"}}
	}

	var sb strings.Builder
	sb.WriteString("Capital active in Houston right now:\n")
	for _, f := range m.kb.CapitalFlows() {
		fmt.Fprintf(&sb, "- %s: %s (%s), focused on %s\n", f.Source, compactDollars(f.Amount), f.Trend, strings.Join(f.TargetNeighborhoods, ", "))
	}
	sb.WriteString("Tell me your budget and target area and I'll narrow it down.")
	return response{text: sb.String(), sources: []string{"capital-flows"}}
}

func (m *Manager) developmentResponse(hood string) response {
	projects := m.kb.DevelopmentIntelligence().ActiveProjects
	if ins, ok := m.kb.NeighborhoodInsights(hood); ok && len(ins.Development) > 0 {
		projects = ins.Development
	}
	var sb strings.Builder
	sb.WriteString("Major development activity:\n")
	for _, p := range projects {
		fmt.Fprintf(&sb, "- %s (%s, %s): %s\n", p.Name, p.Type, compactDollars(p.Investment), p.Timeline)
	}
	sb.WriteString("Houston has no zoning, but deed restrictions and Chapter 19 floodplain rules still shape what you can build.")
	return response{text: sb.String(), sources: []string{"development-intelligence"}}
}

func financingResponse(price *float64) response {
	if price == nil {
		return response{text: "Share a purchase price and I'll estimate the monthly payment. I assume 20% down and a 30-year fixed loan at 7%."}
	}
	loan := *price * (1 - downPayment)
	payment := monthlyPayment(loan, mortgageRate, mortgageYears)
	return response{text: fmt.Sprintf(
		"For a %s purchase with 20%% down (%s), a %s 30-year loan at 7%% runs about %s per month in principal and interest. Budget another 2-3%% of the price each year for Harris County taxes and insurance.",
		dollars(*price), dollars(*price*downPayment), dollars(loan), dollars(payment),
	), sources: []string{"financing-calculator"}}
}

func monthlyPayment(principal, annualRate float64, years int) float64 {
	r := annualRate / 12
	n := float64(years * 12)
	if r == 0 {
		return principal / n
	}
	return principal * r / (1 - math.Pow(1+r, -n))
}

func (m *Manager) comparisonResponse(locations []string) (response, bool) {
	var rows []*knowledge.NeighborhoodInsights
	for _, loc := range locations {
		if ins, ok := m.kb.NeighborhoodInsights(loc); ok {
			rows = append(rows, ins)
		}
	}
	if len(rows) < 2 {
		return response{}, false
	}
	var sb strings.Builder
	sb.WriteString("Side by side:\n")
	for _, ins := range rows {
		s := ins.Market.Stats
		fmt.Fprintf(&sb, "- %s: median %s (%+.1f%% YoY), %d days on market, walk score %d, schools %s, flood risk %s\n",
			ins.Neighborhood, dollars(s.MedianPrice), s.PriceGrowth, s.DaysOnMarket, s.WalkScore, s.SchoolRating, s.FloodRisk)
	}
	return response{text: sb.String(), sources: []string{"market-intelligence"}}, true
}

func (m *Manager) generalResponse(ctx context.Context, text string) response {
	if m.searcher != nil {
		results, err := m.searcher.HybridSearch(ctx, text, search.Options{Limit: 3})
		if err != nil {
			m.logger.Warn().Err(err).Msg("Knowledge search failed")
		} else if len(results) > 0 {
			var sb strings.Builder
			sb.WriteString("Here's what I found:\n")
			var sources []string
			for _, r := range results {
				fmt.Fprintf(&sb, "- %s", r.Node.Title)
				if len(r.Highlights) > 0 {
					sb.WriteString(": " + r.Highlights[0])
				}
				sb.WriteByte('\n')
				sources = append(sources, r.Node.ID)
			}
			return response{text: strings.TrimRight(sb.String(), "\n"), sources: sources}
		}
	}
	return response{text: "I can help with Houston market trends, neighborhoods, investments, development and financing. What would you like to know?"}
}

func suggestions(intent Intent, conv *Context) []string {
	var out []string
	switch intent {
	case IntentGreeting, IntentHelp, IntentGeneral:
		out = []string{"How's the Houston market?", "Tell me about the Heights", "Where should I invest?"}
	case IntentMarketAnalysis:
		out = []string{"Compare two neighborhoods", "Show seasonal buying trends", "Generate a market analysis report"}
	case IntentPropertySearch:
		out = []string{"Estimate my monthly payment", "What's the flood risk there?", "Show nearby development"}
	case IntentInvestmentAdvice:
		out = []string{"Generate an investment memo", "Where is capital flowing?", "What are the risks?"}
	case IntentNeighborhoodInfo:
		out = []string{"Compare with another neighborhood", "What's being built nearby?", "Is it a good investment?"}
	case IntentDevelopmentOpportunity:
		out = []string{"Generate a feasibility study", "What incentives apply?", "Which areas benefit most?"}
	case IntentFinancialCalculation:
		out = []string{"What can I afford?", "Show homes in my budget", "Compare neighborhoods in my range"}
	case IntentTimingAdvice:
		out = []string{"How's the Houston market?", "Estimate my monthly payment", "Where should I invest?"}
	case IntentComparison:
		out = []string{"Which has better schools?", "Which is the better investment?", "Generate a market analysis report"}
	case IntentReportRequest:
		out = []string{"Investment memo", "Market analysis", "Feasibility study"}
	case IntentPhotoAnalysis:
		out = []string{"Estimate renovation costs", "What's the property worth after repairs?", "Analyze more photos"}
	}
	if len(conv.Preferences.Locations) > 0 {
		out = append(out, "Get the "+conv.Preferences.Locations[0]+" market report")
	}
	return out
}

func followUp(intent Intent, conv *Context) string {
	switch {
	case intent == IntentPropertySearch && conv.Preferences.PriceRange == nil:
		return "What price range are you considering?"
	case intent == IntentPropertySearch && len(conv.Preferences.Locations) == 0:
		return "Which neighborhoods should I focus on?"
	case intent == IntentInvestmentAdvice && conv.Entities.Timeline == "":
		return "What is your investment time horizon?"
	case intent == IntentMarketAnalysis && conv.Entities.Neighborhood == "":
		return "Would you like neighborhood-specific data?"
	case intent == IntentFinancialCalculation && conv.Entities.Price == nil:
		return "What purchase price should I use?"
	case intent == IntentComparison && len(conv.Entities.Locations) < 2:
		return "Which two neighborhoods should I compare?"
	}
	if conv.Entities.Neighborhood != "" {
		return "Would you like an investment analysis for " + conv.Entities.Neighborhood + "?"
	}
	return "Can I help you with anything else?"
}

func writeList(sb *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	sb.WriteString("\n\n" + title + ":")
	for _, it := range items {
		sb.WriteString("\n- " + it)
	}
}

func formatIndicator(ind knowledge.EconomicIndicator) string {
	s := fmt.Sprintf("%g", ind.Value)
	if ind.Unit != "" {
		s += " " + ind.Unit
	}
	if ind.Trend != "" {
		s += ", " + ind.Trend
	}
	return s
}

// dollars renders whole dollars with thousands separators.
func dollars(v float64) string {
	n := int64(math.Round(v))
	neg := n < 0
	if neg {
		n = -n
	}
	s := fmt.Sprintf("%d", n)
	var out []byte
	for i := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, s[i])
	}
	if neg {
		return "-$" + string(out)
	}
	return "$" + string(out)
}

func compactDollars(v float64) string {
	switch {
	case v >= 1e9:
		return fmt.Sprintf("$%.1fB", v/1e9)
	case v >= 1e6:
		return fmt.Sprintf("$%.0fM", v/1e6)
	default:
		return dollars(v)
	}
}
