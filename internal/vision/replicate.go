// Package vision analyzes property and aerial photos, either through hosted
// captioning models on Replicate or through built-in reference analyses.
package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"github.com/fernando-x/platform/libs/intelligence-engine/internal/config"
	"github.com/fernando-x/platform/libs/intelligence-engine/internal/observability"
)

// ErrNoToken is returned when the Replicate API token is not configured.
var ErrNoToken = errors.New("replicate api token not configured")

// errPending marks a prediction that has not finished yet.
var errPending = errors.New("prediction pending")

// Model versions used by the agent.
const (
	BLIP2Version            = "f677695e5e89f8b236e52ecd1d3f01beb44c34606419bcc19345e046d8f786f9"
	ClipInterrogatorVersion = "a4a8bafd6089e1716b06057c42b19378250d008b80fe87caa5cd36d40c1eda90"
	Img2PromptVersion       = "50adaf2d3ad20a6f911a8a9e3ccf777b263b8596fbd2c8fc26e8888f8a0edbb5"
)

// Runner runs a model version to completion and returns its text output.
type Runner interface {
	Run(ctx context.Context, version string, input map[string]any) (string, error)
}

type prediction struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output"`
	Error  json.RawMessage `json:"error"`
}

// ReplicateClient creates predictions and polls them until they settle.
type ReplicateClient struct {
	http         *http.Client
	baseURL      string
	token        string
	pollInterval time.Duration
	timeout      time.Duration
	limiter      *rate.Limiter
	logger       *observability.Logger
}

// NewReplicateClient builds a client from configuration. It returns
// ErrNoToken when no API token is set.
func NewReplicateClient(cfg config.ReplicateConfig, logger *observability.Logger) (*ReplicateClient, error) {
	if cfg.APIToken == "" {
		return nil, ErrNoToken
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.replicate.com"
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 5
	}
	return &ReplicateClient{
		http:         &http.Client{Timeout: 30 * time.Second},
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		token:        cfg.APIToken,
		pollInterval: cfg.PollInterval,
		timeout:      cfg.Timeout,
		limiter:      rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		logger:       logger.WithComponent("replicate"),
	}, nil
}

// Run creates a prediction for version and waits for it to succeed.
func (c *ReplicateClient) Run(ctx context.Context, version string, input map[string]any) (string, error) {
	p, err := c.create(ctx, version, input)
	if err != nil {
		return "", err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.pollInterval
	b.MaxInterval = 10 * c.pollInterval
	b.MaxElapsedTime = c.timeout

	start := time.Now()
	err = backoff.Retry(func() error {
		if !settled(p.Status) {
			next, err := c.get(ctx, p.ID)
			if err != nil {
				return backoff.Permanent(err)
			}
			p = next
		}
		switch p.Status {
		case "succeeded":
			return nil
		case "failed", "canceled":
			return backoff.Permanent(fmt.Errorf("prediction %s %s: %s", p.ID, p.Status, strings.Trim(string(p.Error), `"`)))
		}
		return errPending
	}, backoff.WithContext(b, ctx))
	if errors.Is(err, errPending) {
		return "", fmt.Errorf("prediction %s timed out after %s", p.ID, c.timeout)
	}
	if err != nil {
		return "", err
	}

	c.logger.Debug().
		Str("prediction_id", p.ID).
		Dur("elapsed", time.Since(start)).
		Msg("Prediction succeeded")
	return outputText(p.Output), nil
}

func settled(status string) bool {
	return status == "succeeded" || status == "failed" || status == "canceled"
}

func (c *ReplicateClient) create(ctx context.Context, version string, input map[string]any) (*prediction, error) {
	body, err := json.Marshal(map[string]any{"version": version, "input": input})
	if err != nil {
		return nil, fmt.Errorf("encode prediction: %w", err)
	}
	return c.do(ctx, http.MethodPost, "/v1/predictions", body)
}

func (c *ReplicateClient) get(ctx context.Context, id string) (*prediction, error) {
	return c.do(ctx, http.MethodGet, "/v1/predictions/"+id, nil)
}

func (c *ReplicateClient) do(ctx context.Context, method, path string, body []byte) (*prediction, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Token "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("replicate %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read replicate response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("replicate %s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var p prediction
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode prediction: %w", err)
	}
	return &p, nil
}

// outputText flattens a prediction output, which is either a string or a
// list of streamed string fragments.
func outputText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var parts []string
	if err := json.Unmarshal(raw, &parts); err == nil {
		return strings.TrimSpace(strings.Join(parts, ""))
	}
	return strings.TrimSpace(string(raw))
}
