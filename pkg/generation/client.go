// Package generation talks to the external text-generation service.
package generation

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

	"github.com/personaforge/personaforge/pkg/errs"
	"github.com/personaforge/personaforge/pkg/logger"
	"github.com/personaforge/personaforge/pkg/telemetry/tracing"
	"golang.org/x/time/rate"
)

// Defaults used when Config leaves a field zero.
const (
	DefaultMaxTokens   = 100
	DefaultTemperature = 0.7
	DefaultTimeout     = 30 * time.Second

	maxResponseBytes = 1 << 20
)

// Generator turns an assembled prompt into a reply.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

type durationRecorder interface {
	RecordGeneration(duration time.Duration, success bool)
}

// Config configures an HTTPClient.
type Config struct {
	Endpoint    string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration

	// RateLimit is requests per second; zero disables limiting.
	RateLimit float64
	Burst     int
}

// HTTPClient posts prompts to a JSON endpoint. One attempt per call.
type HTTPClient struct {
	cfg     Config
	client  *http.Client
	limiter *rate.Limiter
	metrics durationRecorder
}

// Option configures an HTTPClient.
type Option func(*HTTPClient)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(c *http.Client) Option {
	return func(h *HTTPClient) { h.client = c }
}

// WithMetrics records call durations.
func WithMetrics(m durationRecorder) Option {
	return func(h *HTTPClient) { h.metrics = m }
}

// NewHTTPClient creates a client for cfg.Endpoint.
func NewHTTPClient(cfg Config, opts ...Option) (*HTTPClient, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, fmt.Errorf("%w: generation endpoint is required", errs.ErrInvalidInput)
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = DefaultTemperature
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	h := &HTTPClient{cfg: cfg, client: &http.Client{}}
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		h.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

type request struct {
	Prompt      string  `json:"prompt"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
}

// Generate sends prompt and returns the reply text. Transport failures,
// timeouts and non-200 statuses are reported as errs.ErrUpstreamUnavailable.
func (h *HTTPClient) Generate(ctx context.Context, prompt string) (text string, err error) {
	start := time.Now()
	defer func() {
		if h.metrics != nil {
			h.metrics.RecordGeneration(time.Since(start), err == nil)
		}
	}()

	if h.limiter != nil {
		if err := h.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("%w: rate limit wait: %v", errs.ErrUpstreamUnavailable, err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, h.cfg.Timeout)
	defer cancel()

	body, err := json.Marshal(request{
		Prompt:      prompt,
		MaxTokens:   h.cfg.MaxTokens,
		Temperature: h.cfg.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("generation: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: build request: %v", errs.ErrInvalidInput, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	tracing.InjectHTTP(req)

	resp, err := h.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: request timed out after %s", errs.ErrUpstreamUnavailable, h.cfg.Timeout)
		}
		return "", fmt.Errorf("%w: %v", errs.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("%w: read response: %v", errs.ErrUpstreamUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: request failed with status code %d: %s",
			errs.ErrUpstreamUnavailable, resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	text, err = parseResponse(raw)
	if err != nil {
		return "", err
	}
	logger.FromContext(ctx).DebugContext(ctx, "generation completed",
		"duration", time.Since(start),
		"prompt_chars", len(prompt),
		"reply_chars", len(text),
	)
	return text, nil
}

var responseFields = []string{"response", "text", "output"}

// parseResponse extracts the reply from a JSON body. Objects yield the first
// present of response, text or output; otherwise the raw JSON is the reply.
func parseResponse(raw []byte) (string, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", fmt.Errorf("%w: invalid JSON response: %v", errs.ErrUpstreamUnavailable, err)
	}

	switch t := v.(type) {
	case map[string]any:
		for _, f := range responseFields {
			val, ok := t[f]
			if !ok {
				continue
			}
			if s, ok := val.(string); ok {
				return s, nil
			}
			b, _ := json.Marshal(val)
			return string(b), nil
		}
	case string:
		return t, nil
	}
	return strings.TrimSpace(string(raw)), nil
}
