// internal/llmclient/gemini_client.go
package llmclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/xkilldash9x/walkthrough/internal/config"
)

// ErrRateLimited marks a request that was still throttled (HTTP 429) after all retries.
var ErrRateLimited = errors.New("gemini API rate limit exceeded")

// contentGenerator is the slice of genai.Models the client uses.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiClient sends multimodal prompts to Gemini through the genai SDK,
// with client-side rate limiting and retry on transient API errors.
type GeminiClient struct {
	gen        contentGenerator
	cfg        config.LLMModelConfig
	limiter    *rate.Limiter
	newBackOff func() backoff.BackOff
	logger     *zap.Logger
}

// NewGeminiClient builds a client against the Gemini Developer API.
func NewGeminiClient(ctx context.Context, cfg config.LLMModelConfig, logger *zap.Logger) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("Gemini API Key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return newGeminiClient(client.Models, cfg, logger), nil
}

func newGeminiClient(gen contentGenerator, cfg config.LLMModelConfig, logger *zap.Logger) *GeminiClient {
	limit := rate.Inf
	if cfg.RequestsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(cfg.RequestsPerMinute))
	}

	c := &GeminiClient{
		gen:     gen,
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger.Named("llm_client.gemini"),
	}
	c.newBackOff = func() backoff.BackOff {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = time.Second
		b.MaxInterval = 30 * time.Second
		b.MaxElapsedTime = 2 * time.Minute
		return b
	}
	return c
}

// Generate sends prompt, plus the image when one is given, and returns the model's text.
func (c *GeminiClient) Generate(ctx context.Context, req GenerationRequest) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter wait aborted: %w", err)
	}

	contents := []*genai.Content{genai.NewContentFromParts(c.buildParts(req), genai.RoleUser)}
	genConfig := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(c.cfg.Temperature),
		MaxOutputTokens: int32(c.cfg.MaxTokens),
	}

	var text string
	operation := func() error {
		attemptCtx := ctx
		if c.cfg.APITimeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, c.cfg.APITimeout)
			defer cancel()
		}

		start := time.Now()
		resp, err := c.gen.GenerateContent(attemptCtx, c.cfg.Model, contents, genConfig)
		if err != nil {
			return c.handleAPIError(err)
		}

		text = resp.Text()
		if text == "" {
			return backoff.Permanent(fmt.Errorf("gemini API returned empty content"))
		}

		fields := []zap.Field{zap.Duration("duration", time.Since(start)), zap.String("model", c.cfg.Model)}
		if usage := resp.UsageMetadata; usage != nil {
			fields = append(fields,
				zap.Int32("prompt_tokens", usage.PromptTokenCount),
				zap.Int32("completion_tokens", usage.CandidatesTokenCount),
				zap.Int32("total_tokens", usage.TotalTokenCount),
			)
		}
		c.logger.Debug("LLM generation complete (Gemini)", fields...)
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(c.newBackOff(), uint64(c.cfg.MaxRetries)), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return "", err
	}
	return text, nil
}

func (c *GeminiClient) buildParts(req GenerationRequest) []*genai.Part {
	parts := []*genai.Part{genai.NewPartFromText(req.Prompt)}
	if len(req.Image) > 0 {
		mime := req.ImageMIME
		if mime == "" {
			mime = "image/png"
		}
		parts = append(parts, genai.NewPartFromBytes(req.Image, mime))
	}
	return parts
}

// handleAPIError decides whether err is worth another attempt.
func (c *GeminiClient) handleAPIError(err error) error {
	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		// Transport level failure (DNS, reset, deadline on this attempt).
		c.logger.Warn("Network error during LLM request, retrying...", zap.Error(err))
		return err
	}

	switch apiErr.Code {
	case http.StatusTooManyRequests:
		c.logger.Warn("Rate limit exceeded, backing off", zap.String("status", apiErr.Status))
		return fmt.Errorf("%w: %s", ErrRateLimited, apiErr.Message)
	case http.StatusServiceUnavailable, http.StatusInternalServerError:
		c.logger.Warn("Transient Gemini API error, retrying", zap.Int("status", apiErr.Code))
		return fmt.Errorf("gemini API error: status %d: %w", apiErr.Code, err)
	default:
		c.logger.Error("Gemini API returned error status", zap.Int("status", apiErr.Code), zap.String("message", apiErr.Message))
		return backoff.Permanent(fmt.Errorf("gemini API error: status %d: %w", apiErr.Code, err))
	}
}
