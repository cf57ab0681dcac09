package vision

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fernando-x/platform/libs/intelligence-engine/internal/observability"
)

const (
	conditionQuestion = "What is the condition of this property? Describe any visible features and issues."
	featuresQuestion  = "List the key features of this property like garage, pool, landscaping, and any maintenance issues."
	aerialQuestion    = "Describe the land use, vegetation, and development visible in this aerial view."
)

// PropertyAnalysis is the agent's reading of one property photo.
type PropertyAnalysis struct {
	ImageURL           string   `json:"image_url"`
	ConditionScore     float64  `json:"condition_score"`
	Features           []string `json:"features"`
	Issues             []string `json:"issues"`
	RenovationEstimate float64  `json:"renovation_estimate"`
	ConstructionType   []string `json:"construction_type"`
	Description        string   `json:"description"`
}

// ConstructionDetection reports construction activity seen in a photo.
type ConstructionDetection struct {
	HasConstruction  bool     `json:"has_construction"`
	ConstructionType []string `json:"construction_type"`
	Equipment        []string `json:"equipment_detected"`
	Confidence       float64  `json:"confidence_score"`
}

// SatelliteAnalysis describes an aerial image and, when a previous image
// is given, what changed between the two.
type SatelliteAnalysis struct {
	LandUse            string `json:"land_use"`
	VegetationCoverage int    `json:"vegetation_coverage"`
	DevelopmentStage   string `json:"development_stage"`
	ChangesDetected    bool   `json:"changes_detected"`
	ChangeDescription  string `json:"change_description,omitempty"`
}

// Agent turns captioning model output into structured property readings.
type Agent struct {
	runner Runner
	logger *observability.Logger
}

// NewAgent creates an agent backed by runner.
func NewAgent(runner Runner, logger *observability.Logger) *Agent {
	return &Agent{runner: runner, logger: logger.WithComponent("vision_agent")}
}

// AnalyzeProperty captions url with BLIP-2 (two questions), CLIP
// interrogator and img2prompt in parallel and derives condition, features,
// issues and a renovation estimate from the combined text. Any failed model
// call fails the analysis.
func (a *Agent) AnalyzeProperty(ctx context.Context, url string) (*PropertyAnalysis, error) {
	start := time.Now()
	captions := make([]string, 4)

	g, gctx := errgroup.WithContext(ctx)
	calls := []struct {
		version string
		input   map[string]any
	}{
		{BLIP2Version, map[string]any{"image": url, "question": conditionQuestion}},
		{BLIP2Version, map[string]any{"image": url, "question": featuresQuestion}},
		{ClipInterrogatorVersion, map[string]any{"image": url, "mode": "fast"}},
		{Img2PromptVersion, map[string]any{"image": url}},
	}
	for i, call := range calls {
		i, call := i, call
		g.Go(func() error {
			out, err := a.runner.Run(gctx, call.version, call.input)
			if err != nil {
				return err
			}
			captions[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("analyze property photo: %w", err)
	}

	combined := strings.Join(captions, " ")
	lower := strings.ToLower(combined)
	result := &PropertyAnalysis{
		ImageURL:           url,
		ConditionScore:     conditionScore(lower),
		Features:           extractFeatures(lower),
		Issues:             extractIssues(combined),
		RenovationEstimate: renovationEstimate(lower),
		ConstructionType:   constructionTypes(lower, equipment(lower)),
		Description:        captions[0] + "\n\nAdditional details: " + captions[1],
	}

	a.logger.Debug().
		Str("url", url).
		Float64("condition", result.ConditionScore).
		Int("features", len(result.Features)).
		Int("issues", len(result.Issues)).
		Dur("elapsed", time.Since(start)).
		Msg("Analyzed property photo")
	return result, nil
}

// DetectConstruction looks for construction activity with CLIP interrogator.
func (a *Agent) DetectConstruction(ctx context.Context, url string) (*ConstructionDetection, error) {
	out, err := a.runner.Run(ctx, ClipInterrogatorVersion, map[string]any{"image": url, "mode": "fast"})
	if err != nil {
		return nil, fmt.Errorf("detect construction: %w", err)
	}
	desc := strings.ToLower(out)
	eq := equipment(desc)
	d := &ConstructionDetection{
		HasConstruction:  containsAny(desc, constructionKeywords),
		ConstructionType: constructionTypes(desc, eq),
		Equipment:        eq,
		Confidence:       0.2,
	}
	if d.HasConstruction {
		d.Confidence = 0.8
	}
	return d, nil
}

// AnalyzeSatellite reads land use, vegetation and development stage from an
// aerial image. When previousURL is set both images are read and a change
// is reported if land use or development stage differ.
func (a *Agent) AnalyzeSatellite(ctx context.Context, url, previousURL string) (*SatelliteAnalysis, error) {
	var current, previous string

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		out, err := a.runner.Run(gctx, BLIP2Version, map[string]any{"image": url, "question": aerialQuestion})
		current = out
		return err
	})
	if previousURL != "" {
		g.Go(func() error {
			out, err := a.runner.Run(gctx, BLIP2Version, map[string]any{"image": previousURL, "question": aerialQuestion})
			previous = out
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("analyze satellite image: %w", err)
	}

	lower := strings.ToLower(current)
	result := &SatelliteAnalysis{
		LandUse:            landUse(lower),
		VegetationCoverage: vegetationCoverage(lower),
		DevelopmentStage:   developmentStage(lower),
	}
	if previousURL == "" {
		return result, nil
	}

	prevLower := strings.ToLower(previous)
	var changes []string
	if prev := landUse(prevLower); prev != result.LandUse {
		changes = append(changes, fmt.Sprintf("Land use changed from %s to %s", prev, result.LandUse))
	}
	if prev := developmentStage(prevLower); prev != result.DevelopmentStage {
		changes = append(changes, fmt.Sprintf("Development stage changed from %s to %s", prev, result.DevelopmentStage))
	}
	if len(changes) > 0 {
		result.ChangesDetected = true
		result.ChangeDescription = strings.Join(changes, "; ")
	}
	return result, nil
}

var (
	featureKeywords = []string{
		"garage", "pool", "patio", "deck", "fence", "landscaping", "driveway",
		"windows", "roof", "siding", "garden", "trees", "lawn", "porch",
	}
	issueKeywords = []string{
		"damage", "repair", "crack", "leak", "rust", "rot", "mold", "peeling",
		"broken", "missing", "worn", "old", "outdated", "needs", "issue", "problem",
	}
	constructionKeywords = []string{
		"construction", "building", "crane", "excavator", "equipment",
		"machinery", "worker", "scaffold", "site",
	}
	sentenceSplit = regexp.MustCompile(`[.!?]`)
)

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

func conditionScore(lower string) float64 {
	switch {
	case containsAny(lower, []string{"excellent", "pristine"}):
		return 9
	case containsAny(lower, []string{"very good", "great"}):
		return 8
	case strings.Contains(lower, "good"):
		return 7
	case containsAny(lower, []string{"fair", "average"}):
		return 5
	case containsAny(lower, []string{"poor", "needs work"}):
		return 3
	}
	return 5
}

func extractFeatures(lower string) []string {
	var out []string
	for _, k := range featureKeywords {
		if strings.Contains(lower, k) {
			out = append(out, strings.ToUpper(k[:1])+k[1:])
		}
	}
	return out
}

// extractIssues returns the caption sentences longer than ten characters
// that mention an issue keyword.
func extractIssues(text string) []string {
	var out []string
	seen := map[string]bool{}
	for _, s := range sentenceSplit.Split(text, -1) {
		s = strings.TrimSpace(s)
		if len(s) <= 10 || seen[s] {
			continue
		}
		if containsAny(strings.ToLower(s), issueKeywords) {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func renovationEstimate(lower string) float64 {
	switch {
	case containsAny(lower, []string{"excellent", "pristine"}):
		return 5000
	case strings.Contains(lower, "good"):
		return 15000
	case strings.Contains(lower, "fair"):
		return 25000
	case containsAny(lower, []string{"poor", "major"}):
		return 50000
	}
	return 20000
}

func equipment(lower string) []string {
	var out []string
	for _, e := range []struct{ keyword, name string }{
		{"crane", "crane"},
		{"excavator", "excavator"},
		{"truck", "truck"},
		{"machinery", "heavy machinery"},
	} {
		if strings.Contains(lower, e.keyword) {
			out = append(out, e.name)
		}
	}
	return out
}

func constructionTypes(lower string, eq []string) []string {
	var out []string
	if containsAny(lower, []string{"residential", "home", "house"}) {
		out = append(out, "Residential Construction")
	}
	if containsAny(lower, []string{"commercial", "office", "crane"}) {
		out = append(out, "Commercial Development")
	}
	if containsAny(lower, []string{"road", "infrastructure"}) {
		out = append(out, "Infrastructure")
	}
	excavation := strings.Contains(lower, "excavat")
	for _, e := range eq {
		if e == "excavator" {
			excavation = true
		}
	}
	if excavation {
		out = append(out, "Excavation/Site Preparation")
	}
	if len(out) == 0 {
		return []string{"General Construction"}
	}
	return out
}

func landUse(lower string) string {
	switch {
	case containsAny(lower, []string{"residential", "homes", "houses"}):
		return "Residential"
	case containsAny(lower, []string{"commercial", "business"}):
		return "Commercial"
	case strings.Contains(lower, "industrial"):
		return "Industrial"
	case containsAny(lower, []string{"agricultural", "farm"}):
		return "Agricultural"
	case containsAny(lower, []string{"vacant", "undeveloped"}):
		return "Vacant/Undeveloped"
	}
	return "Mixed Use"
}

func vegetationCoverage(lower string) int {
	switch {
	case containsAny(lower, []string{"dense", "heavily", "forest"}):
		return 75
	case containsAny(lower, []string{"moderate", "some"}):
		return 50
	case containsAny(lower, []string{"sparse", "little"}):
		return 25
	case containsAny(lower, []string{"no vegetation", "bare"}):
		return 5
	}
	return 40
}

func developmentStage(lower string) string {
	switch {
	case containsAny(lower, []string{"complete", "finished"}):
		return "Completed"
	case containsAny(lower, []string{"construction", "building"}):
		return "Under Construction"
	case containsAny(lower, []string{"planning", "proposed"}):
		return "Planning"
	case containsAny(lower, []string{"vacant", "undeveloped"}):
		return "Undeveloped"
	}
	return "Established"
}
