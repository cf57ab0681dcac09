package conversation

import (
	"regexp"
	"strconv"
	"strings"
)

// Entities are the structured values found in a message.
type Entities struct {
	Price        *float64 `json:"price,omitempty"`
	Neighborhood string   `json:"neighborhood,omitempty"`
	Locations    []string `json:"locations,omitempty"`
	PropertyType string   `json:"property_type,omitempty"`
	Bedrooms     int      `json:"bedrooms,omitempty"`
	Timeline     string   `json:"timeline,omitempty"`
}

// Empty reports whether nothing was extracted.
func (e Entities) Empty() bool {
	return e.Price == nil && e.Neighborhood == "" && len(e.Locations) == 0 &&
		e.PropertyType == "" && e.Bedrooms == 0 && e.Timeline == ""
}

// merge overlays the non-zero fields of other onto e.
func (e *Entities) merge(other Entities) {
	if other.Price != nil {
		e.Price = other.Price
	}
	if other.Neighborhood != "" {
		e.Neighborhood = other.Neighborhood
	}
	e.Locations = appendUnique(e.Locations, other.Locations...)
	if other.PropertyType != "" {
		e.PropertyType = other.PropertyType
	}
	if other.Bedrooms != 0 {
		e.Bedrooms = other.Bedrooms
	}
	if other.Timeline != "" {
		e.Timeline = other.Timeline
	}
}

// KnownNeighborhoods are the Houston areas recognised in messages.
var KnownNeighborhoods = []string{
	"Heights", "River Oaks", "Montrose", "Memorial", "Galleria",
	"Katy", "Sugar Land", "The Woodlands", "Cypress", "Spring",
	"Pearland", "Clear Lake", "Downtown", "Midtown", "EaDo",
	"East End", "Third Ward", "Fifth Ward", "Museum District",
}

var neighborhoodPatterns = func() []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(KnownNeighborhoods))
	for i, n := range KnownNeighborhoods {
		out[i] = regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(n) + `\b`)
	}
	return out
}()

var propertyTypes = []struct {
	name     string
	patterns []*regexp.Regexp
}{
	{"single family", compile(`\bsingle[- ]family\b`, `\bhouse\b`, `\bhome\b`)},
	{"townhome", compile(`\btownhomes?\b`, `\btownhouses?\b`, `\btown home\b`)},
	{"condo", compile(`\bcondos?\b`, `\bcondominiums?\b`)},
	{"land", compile(`\bland\b`, `\blots?\b`, `\bacreage\b`)},
	{"multifamily", compile(`\bmulti-?family\b`, `\bapartments?\b`, `\bduplex\b`, `\btriplex\b`)},
	{"commercial", compile(`\bcommercial\b`, `\bretail\b`, `\boffice\b`, `\bindustrial\b`)},
}

var (
	dollarPrice  = regexp.MustCompile(`(?i)\$\s?(\d+(?:,\d{3})*(?:\.\d+)?)\s*(k|m|million|thousand)?\b`)
	groupedPrice = regexp.MustCompile(`\b(\d{1,3}(?:,\d{3})+)\b`)
	bedrooms     = regexp.MustCompile(`(?i)\b(\d+)\s*-?\s*(?:bed(?:room)?s?|br|bd)\b`)
	inMonths     = regexp.MustCompile(`(?i)\bin (\d+) months?\b`)
	nextYear     = regexp.MustCompile(`(?i)\bnext year\b`)
	timeframes   = []struct {
		label   string
		pattern *regexp.Regexp
	}{
		{"now", regexp.MustCompile(`(?i)\b(now|today|immediately|asap)\b`)},
		{"soon", regexp.MustCompile(`(?i)\b(soon|shortly|coming months?)\b`)},
	}
)

// ExtractEntities pulls price, neighborhoods, property type, bedroom count
// and timeline from text.
func ExtractEntities(text string) Entities {
	var e Entities

	if p, ok := parsePrice(text); ok {
		e.Price = &p
	}

	for i, re := range neighborhoodPatterns {
		if re.MatchString(text) {
			e.Locations = append(e.Locations, KnownNeighborhoods[i])
		}
	}
	if len(e.Locations) > 0 {
		e.Neighborhood = e.Locations[0]
	}

	for _, pt := range propertyTypes {
		if matchesAny(text, pt.patterns) {
			e.PropertyType = pt.name
			break
		}
	}

	if m := bedrooms.FindStringSubmatch(text); m != nil {
		e.Bedrooms, _ = strconv.Atoi(m[1])
	}

	switch {
	case inMonths.MatchString(text):
		e.Timeline = inMonths.FindStringSubmatch(text)[1] + " months"
	case nextYear.MatchString(text):
		e.Timeline = "next year"
	default:
		for _, tf := range timeframes {
			if tf.pattern.MatchString(text) {
				e.Timeline = tf.label
				break
			}
		}
	}
	return e
}

// parsePrice accepts $500k, $1.2M, $450,000 and 450,000 and returns
// dollars.
func parsePrice(text string) (float64, bool) {
	if m := dollarPrice.FindStringSubmatch(text); m != nil {
		v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
		if err != nil {
			return 0, false
		}
		switch strings.ToLower(m[2]) {
		case "k", "thousand":
			v *= 1_000
		case "m", "million":
			v *= 1_000_000
		}
		return v, true
	}
	if m := groupedPrice.FindStringSubmatch(text); m != nil {
		v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
		return v, err == nil
	}
	return 0, false
}

func matchesAny(text string, patterns []*regexp.Regexp) bool {
	for _, p := range patterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

func appendUnique(dst []string, items ...string) []string {
	for _, it := range items {
		found := false
		for _, d := range dst {
			if strings.EqualFold(d, it) {
				found = true
				break
			}
		}
		if !found {
			dst = append(dst, it)
		}
	}
	return dst
}
