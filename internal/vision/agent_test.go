package vision

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fernando-x/platform/libs/intelligence-engine/internal/observability"
)

// fakeRunner answers by model version and, for BLIP-2, by question or image.
type fakeRunner struct {
	mu      sync.Mutex
	calls   int
	answers map[string]string
	fail    string
}

func (f *fakeRunner) Run(_ context.Context, version string, input map[string]any) (string, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if version == f.fail {
		return "", errors.New("model unavailable")
	}
	if q, ok := input["question"].(string); ok {
		if out, ok := f.answers[q]; ok {
			return out, nil
		}
		return f.answers[input["image"].(string)], nil
	}
	return f.answers[version], nil
}

func TestAgentAnalyzeProperty(t *testing.T) {
	runner := &fakeRunner{answers: map[string]string{
		conditionQuestion:       "The house is in good condition with a large garage. The roof shows some damage near the gutters.",
		featuresQuestion:        "Features a pool and landscaping",
		ClipInterrogatorVersion: "a residential house with a lawn",
		Img2PromptVersion:       "photo of a home, trees",
	}}
	agent := NewAgent(runner, observability.NewNopLogger())

	got, err := agent.AnalyzeProperty(context.Background(), "https://img/front.jpg")
	require.NoError(t, err)
	assert.Equal(t, 4, runner.calls)
	assert.Equal(t, 7.0, got.ConditionScore)
	assert.Equal(t, []string{"Garage", "Pool", "Landscaping", "Roof", "Trees", "Lawn"}, got.Features)
	assert.Equal(t, []string{"The roof shows some damage near the gutters"}, got.Issues)
	assert.Equal(t, 15000.0, got.RenovationEstimate)
	assert.Equal(t, []string{"Residential Construction"}, got.ConstructionType)
	assert.Contains(t, got.Description, "Additional details: Features a pool")
}

func TestAgentAnalyzePropertyFailsWhenAModelFails(t *testing.T) {
	runner := &fakeRunner{answers: map[string]string{}, fail: ClipInterrogatorVersion}
	agent := NewAgent(runner, observability.NewNopLogger())

	_, err := agent.AnalyzeProperty(context.Background(), "https://img/front.jpg")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model unavailable")
}

func TestAgentAnalyzeSatellite(t *testing.T) {
	runner := &fakeRunner{answers: map[string]string{
		"https://img/2024.jpg": "dense residential homes with construction cranes",
		"https://img/2022.jpg": "vacant undeveloped land with sparse trees",
	}}
	agent := NewAgent(runner, observability.NewNopLogger())

	got, err := agent.AnalyzeSatellite(context.Background(), "https://img/2024.jpg", "")
	require.NoError(t, err)
	assert.Equal(t, "Residential", got.LandUse)
	assert.Equal(t, 75, got.VegetationCoverage)
	assert.Equal(t, "Under Construction", got.DevelopmentStage)
	assert.False(t, got.ChangesDetected)

	got, err = agent.AnalyzeSatellite(context.Background(), "https://img/2024.jpg", "https://img/2022.jpg")
	require.NoError(t, err)
	assert.True(t, got.ChangesDetected)
	assert.Equal(t,
		"Land use changed from Vacant/Undeveloped to Residential; Development stage changed from Undeveloped to Under Construction",
		got.ChangeDescription)

	got, err = agent.AnalyzeSatellite(context.Background(), "https://img/2024.jpg", "https://img/2024.jpg")
	require.NoError(t, err)
	assert.False(t, got.ChangesDetected, "identical readings report no change")
}

func TestAgentDetectConstruction(t *testing.T) {
	runner := &fakeRunner{answers: map[string]string{
		ClipInterrogatorVersion: "a crane over a building site",
	}}
	agent := NewAgent(runner, observability.NewNopLogger())

	got, err := agent.DetectConstruction(context.Background(), "https://img/site.jpg")
	require.NoError(t, err)
	assert.True(t, got.HasConstruction)
	assert.Equal(t, []string{"crane"}, got.Equipment)
	assert.Equal(t, []string{"Commercial Development"}, got.ConstructionType)
	assert.Equal(t, 0.8, got.Confidence)
}

func TestCaptionHeuristics(t *testing.T) {
	tests := []struct {
		text      string
		condition float64
		estimate  float64
	}{
		{"a pristine modern home", 9, 5000},
		{"a great kitchen", 8, 20000},
		{"fair condition overall", 5, 25000},
		{"poor shape with major issues", 3, 50000},
		{"a photo", 5, 20000},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.condition, conditionScore(tt.text))
			assert.Equal(t, tt.estimate, renovationEstimate(tt.text))
		})
	}
}
