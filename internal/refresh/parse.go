package refresh

import (
	"regexp"
	"strconv"
	"strings"
)

// Neighborhoods looked up in research answers.
var Neighborhoods = []string{
	"River Oaks", "Heights", "Montrose", "Downtown", "Galleria",
	"Memorial", "West University", "Bellaire", "Katy", "Sugar Land",
	"The Woodlands", "Cypress", "Spring", "Pearland",
}

var (
	amountPattern   = regexp.MustCompile(`(?i)\$?([\d,]+\.?\d*)\s*(million|billion|M|B)?`)
	percentPattern  = regexp.MustCompile(`(\d+\.?\d*)\s*%`)
	durationPattern = regexp.MustCompile(`(?i)(\d+,?\d*)\s*(days|months|years)`)

	permitPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(\d+,?\d*)\s*permits?\s*(?:issued|filed|approved)`),
		regexp.MustCompile(`(?i)issued\s*(\d+,?\d*)\s*permits?`),
		regexp.MustCompile(`(?i)permit\s*count[:\s]+(\d+,?\d*)`),
	}

	projectSplit     = regexp.MustCompile(`\n|;|\d+\.|•|-\s`)
	projectName      = regexp.MustCompile(`"([^"]+)"|^([^,\-:]+?)(?:\s+by|\s+from|\s*-|\s*:)`)
	projectDeveloper = regexp.MustCompile(`(?i)by\s+([^,\-]+?)(?:\s+will|\s+is|\s+plans|\s+in\s|,|$)`)
	projectValue     = regexp.MustCompile(`(?i)\$(\d+\.?\d*)\s*(million|billion|M|B)`)
	projectLocation  = regexp.MustCompile(`(?i)in\s+([^,]+?)(?:\s+will|\s+is|,|$)`)

	changePattern    = regexp.MustCompile(`(?i)(\d+\.?\d*)\s*%\s*(increase|decrease|growth|decline|change)`)
	occupancyPattern = regexp.MustCompile(`(?i)occupancy[^\d%]*(\d+\.?\d*)\s*%`)

	neighborhoodPatterns = compileNeighborhoods()
)

func compileNeighborhoods() map[string]*regexp.Regexp {
	out := make(map[string]*regexp.Regexp, len(Neighborhoods))
	for _, n := range Neighborhoods {
		out[n] = regexp.MustCompile(`(?i)` + regexp.QuoteMeta(n) + `[^\d]*(\$?[\d,]+)`)
	}
	return out
}

// ExtractTopic names the subject of a research query.
func ExtractTopic(query string) string {
	switch {
	case strings.Contains(query, "rental"):
		return "Rental Market"
	case strings.Contains(query, "median home price"):
		return "Home Prices"
	case strings.Contains(query, "inventory"):
		return "Housing Inventory"
	case strings.Contains(query, "permit"):
		return "Construction Permits"
	case strings.Contains(query, "employment"), strings.Contains(query, "job"):
		return "Employment"
	}
	return "Market Update"
}

// ExtractNumbers returns every amount, then every percentage, then every
// duration found in text. Amounts followed by "million" or "M" (and
// "billion" or "B") are scaled.
func ExtractNumbers(text string) []float64 {
	var out []float64
	for _, m := range amountPattern.FindAllStringSubmatch(text, -1) {
		v, ok := parseNumber(m[1])
		if !ok {
			continue
		}
		switch {
		case strings.EqualFold(m[2], "million") || m[2] == "M":
			v *= 1e6
		case strings.EqualFold(m[2], "billion") || m[2] == "B":
			v *= 1e9
		}
		out = append(out, v)
	}
	for _, p := range []*regexp.Regexp{percentPattern, durationPattern} {
		for _, m := range p.FindAllStringSubmatch(text, -1) {
			if v, ok := parseNumber(m[1]); ok {
				out = append(out, v)
			}
		}
	}
	return out
}

// ExtractUnit guesses the unit of the figures in text.
func ExtractUnit(text string) string {
	switch {
	case strings.Contains(text, "%"):
		return "%"
	case strings.Contains(text, "$"):
		return "$"
	case strings.Contains(text, "days"):
		return "days"
	case strings.Contains(text, "months"):
		return "months"
	case strings.Contains(text, "per square foot"):
		return "$/sqft"
	}
	return "units"
}

// ExtractNeighborhoodData returns the first figure stated after each known
// neighborhood name.
func ExtractNeighborhoodData(text string) map[string]float64 {
	out := make(map[string]float64)
	for _, name := range Neighborhoods {
		m := neighborhoodPatterns[name].FindStringSubmatch(text)
		if m == nil {
			continue
		}
		if v, ok := parseNumber(strings.TrimPrefix(m[1], "$")); ok {
			out[name] = v
		}
	}
	return out
}

// ExtractPermitCount finds a stated number of permits.
func ExtractPermitCount(text string) (int, bool) {
	for _, p := range permitPatterns {
		m := p.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(strings.ReplaceAll(m[1], ",", ""))
		if err == nil {
			return n, true
		}
	}
	return 0, false
}

// ExtractOccupancy finds a stated occupancy percentage.
func ExtractOccupancy(text string) *float64 {
	m := occupancyPattern.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	v, ok := parseNumber(m[1])
	if !ok {
		return nil
	}
	return &v
}

// Project is a development project mentioned in a research answer.
type Project struct {
	Name        string   `json:"name"`
	Developer   string   `json:"developer,omitempty"`
	Value       *float64 `json:"value,omitempty"`
	Type        string   `json:"type"`
	Location    string   `json:"location,omitempty"`
	Description string   `json:"description"`
}

// ExtractProjects splits text into list items and keeps the ones that name a
// project.
func ExtractProjects(text string) []Project {
	var out []Project
	for _, line := range projectSplit.Split(text, -1) {
		if len(line) < 20 {
			continue
		}
		var p Project
		if m := projectName.FindStringSubmatch(line); m != nil {
			p.Name = strings.Trim(m[1]+m[2], "\" \t")
		}
		if p.Name == "" {
			continue
		}
		if m := projectDeveloper.FindStringSubmatch(line); m != nil {
			p.Developer = strings.TrimSpace(m[1])
		}
		if m := projectValue.FindStringSubmatch(line); m != nil {
			if v, err := strconv.ParseFloat(m[1], 64); err == nil {
				unit := strings.ToLower(m[2])
				if unit == "billion" || unit == "b" {
					v *= 1e9
				} else {
					v *= 1e6
				}
				p.Value = &v
			}
		}
		p.Type = projectType(line)
		if m := projectLocation.FindStringSubmatch(line); m != nil {
			p.Location = strings.TrimSpace(m[1])
		}
		desc := strings.TrimSpace(line)
		if len(desc) > 200 {
			desc = desc[:200]
		}
		p.Description = desc
		out = append(out, p)
	}
	return out
}

func projectType(line string) string {
	l := strings.ToLower(line)
	for _, t := range []string{"residential", "commercial", "mixed-use", "office", "retail"} {
		if strings.Contains(l, t) {
			return t
		}
	}
	return "development"
}

// ExtractEconomicData reads an indicator value, and its change when stated,
// from an answer to query.
func ExtractEconomicData(text, query string) (*EconomicData, bool) {
	numbers := ExtractNumbers(text)
	if len(numbers) == 0 {
		return nil, false
	}
	indicator := economicIndicator(query)
	data := &EconomicData{
		Indicator: indicator,
		Value:     numbers[0],
		Period:    "latest",
		Query:     query,
	}
	if m := changePattern.FindStringSubmatch(text); m != nil {
		if v, ok := parseNumber(m[1]); ok {
			word := strings.ToLower(m[2])
			if word == "decrease" || word == "decline" {
				v = -v
			}
			data.Change = &v
		}
	}
	switch {
	case strings.Contains(text, "%") || strings.Contains(indicator, "Rate"):
		data.Unit = "%"
	case strings.Contains(text, "$") || strings.Contains(indicator, "Income"):
		data.Unit = "$"
	case strings.Contains(indicator, "Population"):
		data.Unit = "people"
	default:
		data.Unit = "value"
	}
	return data, true
}

func economicIndicator(query string) string {
	switch {
	case strings.Contains(query, "unemployment"):
		return "Unemployment Rate"
	case strings.Contains(query, "job growth"):
		return "Job Growth Rate"
	case strings.Contains(query, "GDP"):
		return "GDP Growth"
	case strings.Contains(query, "population"):
		return "Population Growth"
	case strings.Contains(query, "income"):
		return "Median Household Income"
	}
	return "Economic Indicator"
}

func parseNumber(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
