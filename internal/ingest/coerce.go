package ingest

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	floatPrefix = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?`)
	intPrefix   = regexp.MustCompile(`^[+-]?\d+`)

	floatStrip = strings.NewReplacer(",", "", "$", "", "%", "")
	intStrip   = strings.NewReplacer(",", "", "$", "")
)

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02",
	"2006-01-02 15:04:05",
	"01/02/2006",
	"1/2/2006",
	"Jan 2006",
	"January 2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"2006",
}

// Field returns the first non-empty value among alternate header names.
func Field(row Row, names ...string) string {
	for _, n := range names {
		if v := strings.TrimSpace(row[n]); v != "" {
			return v
		}
	}
	return ""
}

// SafeString returns nil for empty input.
func SafeString(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}

// SafeFloat parses the longest numeric prefix after removing thousands
// separators, currency and percent signs. Unparseable input yields nil.
func SafeFloat(v string) *float64 {
	s := strings.TrimSpace(floatStrip.Replace(v))
	m := floatPrefix.FindString(s)
	if m == "" {
		return nil
	}
	f, err := strconv.ParseFloat(m, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

// SafeInt parses an integer prefix after removing separators and currency.
func SafeInt(v string) *int {
	s := strings.TrimSpace(intStrip.Replace(v))
	m := intPrefix.FindString(s)
	if m == "" {
		return nil
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return nil
	}
	return &n
}

// SafeDate accepts a handful of common layouts and returns nil otherwise.
func SafeDate(v string) *time.Time {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

// FloatOrZero is SafeFloat with a zero default.
func FloatOrZero(v string) float64 {
	if f := SafeFloat(v); f != nil {
		return *f
	}
	return 0
}

// IntOrZero is SafeInt with a zero default.
func IntOrZero(v string) int {
	if n := SafeInt(v); n != nil {
		return *n
	}
	return 0
}

func stringOr(v string, def string) string {
	if s := SafeString(v); s != nil {
		return *s
	}
	return def
}

func floatOr(v string, def float64) float64 {
	if f := SafeFloat(v); f != nil {
		return *f
	}
	return def
}

func dateOr(v string, def time.Time) time.Time {
	if t := SafeDate(v); t != nil {
		return *t
	}
	return def
}
