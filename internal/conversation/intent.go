// Package conversation classifies user messages and keeps per-session
// dialogue state for the assistant.
package conversation

import "regexp"

// Intent is what a user message is asking for.
type Intent string

const (
	IntentPropertySearch         Intent = "property_search"
	IntentMarketAnalysis         Intent = "market_analysis"
	IntentInvestmentAdvice       Intent = "investment_advice"
	IntentDevelopmentOpportunity Intent = "development_opportunity"
	IntentNeighborhoodInfo       Intent = "neighborhood_info"
	IntentFinancialCalculation   Intent = "financial_calculation"
	IntentComparison             Intent = "comparison"
	IntentTimingAdvice           Intent = "timing_advice"
	IntentGreeting               Intent = "greeting"
	IntentReportRequest          Intent = "report_request"
	IntentPhotoAnalysis          Intent = "photo_analysis"
	IntentHelp                   Intent = "help"
	IntentGeneral                Intent = "general"
)

type intentPatterns struct {
	intent   Intent
	patterns []*regexp.Regexp
}

func compile(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(exprs))
	for i, e := range exprs {
		out[i] = regexp.MustCompile(`(?i)` + e)
	}
	return out
}

// intentTable is evaluated in order; on equal match counts the earlier
// intent wins. The assistant-specific intents come last so they only win
// with strictly more matches than a market intent.
var intentTable = []intentPatterns{
	{IntentPropertySearch, compile(
		`looking for|searching|find me|show me|properties|homes|real estate`,
		`what's available|what properties|any properties`,
		`\b(house|home|property|condo|townhome|land)\b.*\b(in|near|around)\b`,
	)},
	{IntentMarketAnalysis, compile(
		`market|trends?|analysis|statistics|data`,
		`how's the market|market condition|market report`,
		`appreciation|growth|declining|stable`,
	)},
	{IntentInvestmentAdvice, compile(
		`invest|roi|return|cash flow|cap rate`,
		`good investment|worth investing|should i invest`,
		`rental income|passive income|investment property`,
	)},
	{IntentDevelopmentOpportunity, compile(
		`develop|build|construction|zoning|permits?`,
		`vacant land|tear down|redevelop|subdivide`,
		`highest and best use|development potential`,
	)},
	{IntentNeighborhoodInfo, compile(
		`neighborhood|area|community|location`,
		`what's it like|tell me about|information about`,
		`schools|crime|safety|amenities|walkability`,
	)},
	{IntentFinancialCalculation, compile(
		`calculat|mortgage|payment|afford|finance|loan`,
		`how much|monthly payment|down payment|closing cost`,
		`budget|qualify for|pre-approval`,
	)},
	{IntentComparison, compile(
		`compare|versus|vs|better|difference between`,
		`which is better|should i choose|pros and cons`,
		`side by side|comparison|evaluate`,
	)},
	{IntentTimingAdvice, compile(
		`when|timing|best time|should i wait`,
		`market timing|buy now or wait|seasonal`,
		`right time|good time|bad time`,
	)},
	{IntentGreeting, compile(
		`\b(hi|hello|hey|howdy)\b`,
		`\bgood (morning|afternoon|evening)\b`,
		`^\s*(thanks|thank you)\b`,
	)},
	{IntentReportRequest, compile(
		`\breports?\b`,
		`investment memo|market analysis|feasibility( study)?|portfolio review|development proposal`,
		`\bgenerate\b|\bcreate\b|\bprepare\b|write up`,
	)},
	{IntentPhotoAnalysis, compile(
		`\bphotos?\b|\bpictures?\b|\bimages?\b`,
		`analy[sz]e (this|the|my) (property|house|home)|condition of`,
		`renovat|\brepairs?\b|curb appeal`,
	)},
	{IntentHelp, compile(
		`\bhelp\b`,
		`what can you do|how does this work|how do i use`,
		`\bcommands\b|\bfeatures\b|\bcapabilities\b`,
	)},
}

// Classification is the outcome of ClassifyIntent.
type Classification struct {
	Intent     Intent  `json:"intent"`
	Confidence float64 `json:"confidence"`
	Matches    int     `json:"matches"`
}

// ClassifyIntent counts matching patterns per intent and returns the intent
// with the most matches. Confidence is 0.5 + 0.15 per match, capped at
// 0.95. Text matching nothing is general with confidence 0.3.
func ClassifyIntent(text string) Classification {
	best := Classification{Intent: IntentGeneral, Confidence: 0.3}
	for _, ip := range intentTable {
		n := 0
		for _, p := range ip.patterns {
			if p.MatchString(text) {
				n++
			}
		}
		if n > best.Matches {
			best = Classification{
				Intent:     ip.intent,
				Matches:    n,
				Confidence: min(0.5+0.15*float64(n), 0.95),
			}
		}
	}
	return best
}

// Intents lists the classifiable intents in evaluation order.
func Intents() []Intent {
	out := make([]Intent, len(intentTable))
	for i, ip := range intentTable {
		out[i] = ip.intent
	}
	return out
}
