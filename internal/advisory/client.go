// Package advisory provides the best-effort generative scoring collaborator.
//
// The advisory service only ever augments the algorithmic result: callers
// blend a successful advisory score in and silently fall back on any
// failure. Nothing in this package is authoritative, and no caller may
// treat its errors as fatal to a matching run.
//
// The production client talks to an OpenRouter-style OpenAI-compatible
// endpoint through langchaingo, with client-side rate limiting and a
// per-call timeout so a stalled provider cannot block a run.
package advisory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/tribed/internal/profile"
)

// Failure taxonomy, mirrored from the upstream provider's error classes.
// All of them collapse to graceful fallback at the call site; they exist
// so logs and metrics can distinguish why the advisor was skipped.
var (
	// ErrDisabled indicates no advisory provider is configured.
	ErrDisabled = errors.New("advisory: disabled")

	// ErrTimeout indicates the provider did not answer in time.
	ErrTimeout = errors.New("advisory: request timed out")

	// ErrAuthentication indicates the provider rejected the credentials.
	ErrAuthentication = errors.New("advisory: authentication failed")

	// ErrRateLimited indicates the provider throttled the request.
	ErrRateLimited = errors.New("advisory: rate limit exceeded")

	// ErrContentFiltered indicates the provider refused the prompt on
	// content-policy grounds.
	ErrContentFiltered = errors.New("advisory: content filtered")

	// ErrBadResponse indicates the provider answered with something the
	// score parser could not use.
	ErrBadResponse = errors.New("advisory: unusable response")
)

// Client is the advisory capability consumed by the engines. Injected via
// constructors so the engines stay testable without network access.
type Client interface {
	// ScorePair returns a 0-100 second-opinion compatibility score.
	ScorePair(ctx context.Context, a, b *profile.Profile) (float64, error)

	// SuggestAdjustments returns free-text adjustment suggestions for a
	// completed assignment set. Advisory only; never applied.
	SuggestAdjustments(ctx context.Context, summary string) (string, error)
}

// Config holds advisory client configuration.
type Config struct {
	// BaseURL is the OpenAI-compatible endpoint
	// (default: https://openrouter.ai/api/v1).
	BaseURL string `koanf:"base_url"`

	// Model is the provider model identifier (default: openai/gpt-4).
	Model string `koanf:"model"`

	// APIKey authenticates against the provider.
	APIKey string `koanf:"api_key"`

	// Timeout bounds each request (default: 30s).
	Timeout time.Duration `koanf:"timeout"`

	// RequestsPerSecond caps the client-side request rate (default: 2).
	RequestsPerSecond float64 `koanf:"requests_per_second"`

	// Burst is the rate limiter burst size (default: 1).
	Burst int `koanf:"burst"`
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		BaseURL:           "https://openrouter.ai/api/v1",
		Model:             "openai/gpt-4",
		Timeout:           30 * time.Second,
		RequestsPerSecond: 2,
		Burst:             1,
	}
}

// Validate checks that the configuration can produce a working client.
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return errors.New("advisory: base URL required")
	}
	if c.Model == "" {
		return errors.New("advisory: model required")
	}
	if c.APIKey == "" {
		return errors.New("advisory: API key required")
	}
	return nil
}

// LLMClient implements Client against an OpenAI-compatible endpoint.
type LLMClient struct {
	model   llms.Model
	limiter *rate.Limiter
	timeout time.Duration
	logger  *zap.Logger
}

// NewLLMClient creates an advisory client from config.
func NewLLMClient(cfg Config, logger *zap.Logger) (*LLMClient, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = DefaultConfig().RequestsPerSecond
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}

	llm, err := openai.New(
		openai.WithBaseURL(cfg.BaseURL),
		openai.WithModel(cfg.Model),
		openai.WithToken(cfg.APIKey),
	)
	if err != nil {
		return nil, fmt.Errorf("creating advisory LLM client: %w", err)
	}

	return &LLMClient{
		model:   llm,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		timeout: cfg.Timeout,
		logger:  logger,
	}, nil
}

// ScorePair asks the provider for a 0-100 compatibility score for two
// profiles.
func (c *LLMClient) ScorePair(ctx context.Context, a, b *profile.Profile) (float64, error) {
	response, err := c.generate(ctx, pairScorePrompt(a, b))
	if err != nil {
		return 0, err
	}

	score, err := extractScore(response)
	if err != nil {
		c.logger.Debug("advisory response unparseable",
			zap.String("response", truncate(response, 200)),
			zap.Error(err))
		return 0, err
	}
	return score, nil
}

// SuggestAdjustments asks the provider for free-text improvement notes on
// an assignment summary.
func (c *LLMClient) SuggestAdjustments(ctx context.Context, summary string) (string, error) {
	response, err := c.generate(ctx, adjustmentPrompt(summary))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(response), nil
}

// generate applies rate limiting and the per-call timeout around one
// completion request, classifying provider failures.
func (c *LLMClient) generate(ctx context.Context, prompt string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", classifyErr(err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	out, err := llms.GenerateFromSinglePrompt(ctx, c.model, prompt,
		llms.WithTemperature(0.2),
		llms.WithMaxTokens(512),
	)
	if err != nil {
		return "", classifyErr(err)
	}
	return out, nil
}

// classifyErr maps transport and provider errors onto the package taxonomy.
func classifyErr(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	case errors.Is(err, context.Canceled):
		return err
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "401") || strings.Contains(msg, "403") || strings.Contains(msg, "unauthorized"):
		return fmt.Errorf("%w: %v", ErrAuthentication, err)
	case strings.Contains(msg, "429") || strings.Contains(msg, "rate limit"):
		return fmt.Errorf("%w: %v", ErrRateLimited, err)
	case strings.Contains(msg, "content_filter") || strings.Contains(msg, "content policy"):
		return fmt.Errorf("%w: %v", ErrContentFiltered, err)
	}
	return err
}

// extractScore pulls a {"score": N} object out of a model response that
// may wrap the JSON in prose or code fences.
func extractScore(response string) (float64, error) {
	raw, ok := extractJSONObject(response)
	if !ok {
		return 0, fmt.Errorf("%w: no JSON object found", ErrBadResponse)
	}

	var payload struct {
		Score float64 `json:"score"`
	}
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	if payload.Score < 0 || payload.Score > 100 {
		return 0, fmt.Errorf("%w: score %v out of range", ErrBadResponse, payload.Score)
	}
	return payload.Score, nil
}

// extractJSONObject returns the outermost {...} span in s.
func extractJSONObject(s string) (string, bool) {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// NoopClient is an advisory client that always declines. Used when no
// provider is configured; the engines then run purely algorithmic.
type NoopClient struct{}

// ScorePair implements Client.
func (NoopClient) ScorePair(ctx context.Context, a, b *profile.Profile) (float64, error) {
	return 0, ErrDisabled
}

// SuggestAdjustments implements Client.
func (NoopClient) SuggestAdjustments(ctx context.Context, summary string) (string, error) {
	return "", ErrDisabled
}
