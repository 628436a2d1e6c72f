// internal/llmclient/factory.go
package llmclient

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/walkthrough/internal/config"
)

// GenerationRequest is one prompt, optionally paired with an image.
type GenerationRequest struct {
	Prompt    string
	Image     []byte
	ImageMIME string // Defaults to image/png when Image is set.
}

// Client is implemented by every model backend.
type Client interface {
	Generate(ctx context.Context, req GenerationRequest) (string, error)
}

// NewClient creates a Client for the configured provider.
func NewClient(ctx context.Context, cfg config.LLMModelConfig, logger *zap.Logger) (Client, error) {
	switch cfg.Provider {
	case config.ProviderGemini:
		return NewGeminiClient(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unknown or unsupported LLM provider configured: '%s'. Supported: [%s]", cfg.Provider, config.ProviderGemini)
	}
}
