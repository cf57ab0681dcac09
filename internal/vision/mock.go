package vision

import "strings"

// referenceAnalysis returns the built-in analysis for url, chosen by the
// room hinted at in the URL: exterior or front, kitchen, bath, or a generic
// interior.
func referenceAnalysis(url string, pc PhotoContext) *PhotoAnalysis {
	propertyType := pc.PropertyType
	if propertyType == "" {
		propertyType = "single-family"
	}
	a := &PhotoAnalysis{
		ImageURL:     url,
		Condition:    Condition{Overall: "good", Score: 7.5, Confidence: 0.85},
		PropertyType: TypeGuess{Type: propertyType, Confidence: 0.9},
		Exterior: Exterior{
			RoofCondition:   "good",
			SidingCondition: "good",
			Landscaping:     "well-maintained",
			Driveway:        "concrete, good condition",
		},
		MarketAppeal: MarketAppeal{Score: 7},
		Source:       SourceReference,
	}

	switch {
	case strings.Contains(url, "exterior") || strings.Contains(url, "front"):
		a.Features = features(
			"Brick exterior", 0.95,
			"Two-car garage", 0.92,
			"Covered porch", 0.88,
			"Mature trees", 0.85,
			"Professional landscaping", 0.82,
		)
		a.Issues = []Issue{
			{Type: "Gutter cleaning needed", Severity: SeverityMinor, EstimatedCost: 200},
			{Type: "Driveway crack", Severity: SeverityMinor, EstimatedCost: 500},
		}
		a.MarketAppeal.Strengths = []string{"Excellent curb appeal", "Well-maintained landscaping", "Attractive brick facade"}
		a.MarketAppeal.Improvements = []string{"Power wash exterior", "Update front door", "Add outdoor lighting"}
		a.RenovationEstimate = Renovation{Minimum: 700, Maximum: 3000, Breakdown: []CostItem{
			{"Gutter cleaning", 200},
			{"Driveway repair", 500},
			{"Power washing", 300},
			{"Front door", 1500},
			{"Landscape lighting", 1000},
		}}

	case strings.Contains(url, "kitchen"):
		a.Features = features(
			"Granite countertops", 0.93,
			"Stainless steel appliances", 0.95,
			"Kitchen island", 0.91,
			"Tile backsplash", 0.87,
			"Recessed lighting", 0.84,
		)
		a.Rooms = []Room{{Type: "kitchen", Condition: "good", Features: []string{"Updated appliances", "Good storage", "Natural light"}}}
		a.Issues = []Issue{{Type: "Cabinet refinishing recommended", Severity: SeverityMinor, EstimatedCost: 2500}}
		a.MarketAppeal.Strengths = []string{"Modern appliances", "Functional layout", "Quality finishes"}
		a.RenovationEstimate = Renovation{Minimum: 2500, Maximum: 8000, Breakdown: []CostItem{
			{"Cabinet refinishing", 2500},
			{"Hardware update", 500},
			{"Paint", 1000},
			{"Minor repairs", 1000},
			{"Optional upgrades", 3000},
		}}

	case strings.Contains(url, "bath"):
		a.Features = features(
			"Double vanity", 0.88,
			"Tile flooring", 0.92,
			"Glass shower enclosure", 0.85,
			"Updated fixtures", 0.83,
		)
		a.Rooms = []Room{{Type: "bathroom", Condition: "good", Features: []string{"Modern fixtures", "Good ventilation", "Tile surfaces"}}}
		a.Issues = []Issue{
			{Type: "Grout cleaning needed", Severity: SeverityMinor, EstimatedCost: 300},
			{Type: "Caulk replacement", Severity: SeverityMinor, EstimatedCost: 200},
		}
		a.RenovationEstimate = Renovation{Minimum: 500, Maximum: 2000, Breakdown: []CostItem{
			{"Grout cleaning", 300},
			{"Caulk replacement", 200},
			{"Fixture updates", 1000},
			{"Vanity hardware", 200},
			{"Mirror frame", 300},
		}}

	default:
		a.Features = features(
			"Hardwood floors", 0.89,
			"Crown molding", 0.82,
			"Ceiling fan", 0.94,
			"Large windows", 0.87,
			"Neutral paint", 0.91,
		)
		a.Rooms = []Room{{Type: "living area", Condition: "good", Features: []string{"Good natural light", "Open layout", "Quality flooring"}}}
		a.MarketAppeal.Strengths = []string{"Move-in ready condition", "Quality finishes", "Neutral decor"}
		a.RenovationEstimate = Renovation{Minimum: 500, Maximum: 2000, Breakdown: []CostItem{
			{"Touch-up paint", 500},
			{"Minor repairs", 500},
			{"Cleaning", 200},
			{"Optional updates", 800},
		}}
	}
	return a
}

// features builds a feature list from alternating name, confidence pairs.
func features(pairs ...any) []Feature {
	out := make([]Feature, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, Feature{Name: pairs[i].(string), Confidence: pairs[i+1].(float64)})
	}
	return out
}
