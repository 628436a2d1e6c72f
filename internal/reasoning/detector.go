// Package reasoning turns screenshots into directives and judgments by asking a multimodal model.
package reasoning

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/walkthrough/api/schemas"
	"github.com/xkilldash9x/walkthrough/internal/llmclient"
	"github.com/xkilldash9x/walkthrough/internal/llmutil"
)

// directivePayload is the JSON shape the model is asked to produce.
type directivePayload struct {
	NextAction  string `json:"nextAction"`
	Selector    string `json:"selector"`
	Text        string `json:"text"`
	Description string `json:"description"`
	URL         string `json:"url"`
	WaitTime    int    `json:"waitTime"`
}

func (p directivePayload) toDirective() *schemas.ActionDirective {
	d := schemas.NewDirective(p.NextAction)
	d.Selector = p.Selector
	d.Text = p.Text
	d.Description = p.Description
	d.URL = p.URL
	d.WaitMillis = p.WaitTime
	return &d
}

// Detector implements schemas.ReasoningClient on top of an llmclient.Client.
type Detector struct {
	llm    llmclient.Client
	logger *zap.Logger
}

var _ schemas.ReasoningClient = (*Detector)(nil)

// NewDetector wraps llm.
func NewDetector(llm llmclient.Client, logger *zap.Logger) *Detector {
	return &Detector{llm: llm, logger: logger.Named("reasoning")}
}

// NextDirective asks the model for the next step toward task. Unparseable
// answers fall back to keyword heuristics; transport failures yield nil.
func (d *Detector) NextDirective(ctx context.Context, screenshotPath, task string) *schemas.ActionDirective {
	raw, err := d.ask(ctx, screenshotPath, buildNextStepPrompt(task))
	if err != nil {
		d.logFailure("Failed to get next steps", err)
		return nil
	}
	d.logger.Debug("Raw next-step response", zap.String("response", raw))

	payload, err := llmutil.ParseJSONResponse[directivePayload](raw)
	if err != nil {
		d.logger.Info("Could not parse directive JSON, using text heuristics", zap.Error(err))
		return FallbackDirective(raw)
	}
	return payload.toDirective()
}

// Classify returns the model's free-text analysis of the screenshot, framed by prompt.
func (d *Detector) Classify(ctx context.Context, screenshotPath, prompt string) (string, error) {
	return d.Describe(ctx, screenshotPath, prompt)
}

// Describe runs the general UI analysis prompt, optionally scoped by focus.
func (d *Detector) Describe(ctx context.Context, screenshotPath, focus string) (string, error) {
	out, err := d.ask(ctx, screenshotPath, buildAnalyzePrompt(focus))
	if err != nil {
		d.logFailure("Failed to analyze screenshot", err)
		return "", err
	}
	return out, nil
}

// ShouldCapture asks whether the state in the screenshot is worth a walkthrough
// step. Any failure answers yes, so a flaky model never loses a capture.
func (d *Detector) ShouldCapture(ctx context.Context, screenshotPath, previous string) bool {
	analysis, err := d.Describe(ctx, screenshotPath, "")
	if err != nil {
		return true
	}
	decision, err := d.llm.Generate(ctx, llmclient.GenerationRequest{Prompt: buildCapturePrompt(analysis, previous)})
	if err != nil {
		d.logger.Warn("Capture decision failed, capturing anyway", zap.Error(err))
		return true
	}
	return strings.Contains(strings.ToUpper(strings.TrimSpace(decision)), "YES")
}

func (d *Detector) ask(ctx context.Context, screenshotPath, prompt string) (string, error) {
	image, err := os.ReadFile(screenshotPath)
	if err != nil {
		return "", fmt.Errorf("failed to read screenshot %s: %w", screenshotPath, err)
	}
	return d.llm.Generate(ctx, llmclient.GenerationRequest{Prompt: prompt, Image: image, ImageMIME: "image/png"})
}

func (d *Detector) logFailure(msg string, err error) {
	if errors.Is(err, llmclient.ErrRateLimited) {
		d.logger.Error("Gemini API quota exceeded; screenshots are still captured but cannot be analyzed", zap.Error(err))
		return
	}
	d.logger.Error(msg, zap.Error(err))
}
