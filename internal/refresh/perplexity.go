// Package refresh keeps the market knowledge current: it researches fresh
// data through Perplexity, re-runs CSV imports, detects significant market
// moves and fans alerts out to the configured channels on a schedule.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/fernando-x/platform/libs/intelligence-engine/internal/config"
)

var (
	// ErrEmptyAnswer is returned when the research API answers without content.
	ErrEmptyAnswer = errors.New("empty research answer")
	// ErrNoFigures is returned when an answer carries no usable number.
	ErrNoFigures = errors.New("no figures in answer")
)

const (
	marketPrompt = "You are a real estate market analyst specializing in Houston, Texas. " +
		"Provide accurate, current data with specific numbers and sources when available."
	developmentPrompt = "You are a real estate development analyst. " +
		"Provide specific project details including names, developers, values, and timelines."
	economicPrompt = "You are an economic analyst. " +
		"Provide specific economic indicators with exact numbers and recent changes."
)

// Query sets sent on every run of the matching source.
var (
	MarketQueries = []string{
		"Houston real estate market trends latest month",
		"Houston median home prices by neighborhood current",
		"Houston housing inventory levels and days on market",
		"Houston rental market trends and occupancy rates",
		"Houston new construction permits recent",
	}
	DevelopmentQueries = []string{
		"Houston major real estate development projects announced this month",
		"Houston commercial real estate developments under construction",
		"Houston residential development projects new",
		"Houston mixed-use developments planned",
	}
	EconomicQueries = []string{
		"Houston unemployment rate latest",
		"Houston job growth statistics recent",
		"Houston GDP growth rate",
		"Houston population growth latest census",
		"Houston median household income current",
	}
)

const (
	rentalQuery  = "Houston apartment rental rates by neighborhood current month average"
	permitsQuery = "Houston construction permits issued last month statistics"
)

// Asker answers one research question.
type Asker interface {
	Ask(ctx context.Context, systemPrompt, query string) (string, error)
}

// PerplexityClient talks to the Perplexity OpenAI-compatible chat endpoint.
type PerplexityClient struct {
	api         *openai.Client
	model       string
	temperature float32
	maxTokens   int
}

// NewPerplexityClient builds a client from configuration. The API key is
// required.
func NewPerplexityClient(cfg config.PerplexityConfig) (*PerplexityClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("perplexity API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.perplexity.ai"
	}
	if cfg.Model == "" {
		cfg.Model = "pplx-7b-online"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1000
	}

	apiCfg := openai.DefaultConfig(cfg.APIKey)
	apiCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	apiCfg.HTTPClient = &http.Client{Timeout: 60 * time.Second}

	return &PerplexityClient{
		api:         openai.NewClientWithConfig(apiCfg),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}, nil
}

// Ask sends one chat completion and returns the answer text.
func (c *PerplexityClient) Ask(ctx context.Context, systemPrompt, query string) (string, error) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: query},
		},
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("perplexity chat completion: %w", err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", ErrEmptyAnswer
	}
	return resp.Choices[0].Message.Content, nil
}

// MarketData is a researched market trend answer.
type MarketData struct {
	Topic         string             `json:"topic"`
	Summary       string             `json:"summary"`
	Numbers       []float64          `json:"numbers"`
	Unit          string             `json:"unit"`
	Neighborhoods map[string]float64 `json:"neighborhoods,omitempty"`
	PermitCount   *int               `json:"permit_count,omitempty"`
	Query         string             `json:"query"`
	FetchedAt     time.Time          `json:"fetched_at"`
}

// DevelopmentNews is a researched development answer with the projects
// found in it.
type DevelopmentNews struct {
	Query     string    `json:"query"`
	Summary   string    `json:"summary"`
	Projects  []Project `json:"projects"`
	FetchedAt time.Time `json:"fetched_at"`
}

// EconomicData is a researched economic indicator.
type EconomicData struct {
	Indicator string    `json:"indicator"`
	Value     float64   `json:"value"`
	Change    *float64  `json:"change,omitempty"`
	Unit      string    `json:"unit"`
	Period    string    `json:"period"`
	Query     string    `json:"query"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Fetcher turns research answers into structured data.
type Fetcher struct {
	asker Asker
	now   func() time.Time
}

// NewFetcher wraps an Asker.
func NewFetcher(asker Asker) *Fetcher {
	return &Fetcher{asker: asker, now: time.Now}
}

// FetchMarketData researches one market trend question.
func (f *Fetcher) FetchMarketData(ctx context.Context, query string) (*MarketData, error) {
	answer, err := f.asker.Ask(ctx, marketPrompt, query)
	if err != nil {
		return nil, err
	}
	data := &MarketData{
		Topic:         ExtractTopic(query),
		Summary:       answer,
		Numbers:       ExtractNumbers(answer),
		Unit:          ExtractUnit(answer),
		Neighborhoods: ExtractNeighborhoodData(answer),
		Query:         query,
		FetchedAt:     f.now().UTC(),
	}
	if n, ok := ExtractPermitCount(answer); ok {
		data.PermitCount = &n
	}
	return data, nil
}

// FetchDevelopmentNews researches one development question.
func (f *Fetcher) FetchDevelopmentNews(ctx context.Context, query string) (*DevelopmentNews, error) {
	answer, err := f.asker.Ask(ctx, developmentPrompt, query)
	if err != nil {
		return nil, err
	}
	return &DevelopmentNews{
		Query:     query,
		Summary:   answer,
		Projects:  ExtractProjects(answer),
		FetchedAt: f.now().UTC(),
	}, nil
}

// FetchEconomicData researches one economic indicator.
func (f *Fetcher) FetchEconomicData(ctx context.Context, query string) (*EconomicData, error) {
	answer, err := f.asker.Ask(ctx, economicPrompt, query)
	if err != nil {
		return nil, err
	}
	data, ok := ExtractEconomicData(answer, query)
	if !ok {
		return nil, ErrNoFigures
	}
	data.FetchedAt = f.now().UTC()
	return data, nil
}

// FetchRentalRates returns average rents per neighborhood and the metro
// occupancy rate when the answer states one.
func (f *Fetcher) FetchRentalRates(ctx context.Context) (map[string]float64, *float64, error) {
	answer, err := f.asker.Ask(ctx, marketPrompt, rentalQuery)
	if err != nil {
		return nil, nil, err
	}
	return ExtractNeighborhoodData(answer), ExtractOccupancy(answer), nil
}

// FetchPermitCount returns the permit count stated in the answer, if any.
func (f *Fetcher) FetchPermitCount(ctx context.Context) (int, bool, error) {
	answer, err := f.asker.Ask(ctx, marketPrompt, permitsQuery)
	if err != nil {
		return 0, false, err
	}
	n, ok := ExtractPermitCount(answer)
	return n, ok, nil
}
