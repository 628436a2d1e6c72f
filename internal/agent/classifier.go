// internal/agent/classifier.go
package agent

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/walkthrough/api/schemas"
	"github.com/xkilldash9x/walkthrough/internal/config"
	"github.com/xkilldash9x/walkthrough/internal/llmutil"
)

const completionPromptTemplate = `Task: "%s". Analyze if this task is actually complete. Look for:
1. Success states (project created, task saved, etc.) - MUST see actual project/task creation confirmation
2. Error states (login required, access denied, etc.)
3. Authentication pages (login, sign in, Google OAuth, etc.) - these are NOT task completion
4. Intermediate states (login pages, forms, modals)

IMPORTANT: Login/authentication pages are NOT task completion. Only return "COMPLETE" when you see:
- A project actually created with name/description visible
- Success message saying "Project created" or similar
- The actual task result, not just authentication

Respond with ONLY: "COMPLETE" if task is actually done, "CONTINUE" if more steps needed, or "FAILED" if there's an error.`

// Classifier turns the reasoning service's free-text judgment of a screenshot
// into a Verdict using an ordered keyword policy.
type Classifier struct {
	reasoning schemas.ReasoningClient
	policy    config.ClassifierPolicy
	logger    *zap.Logger
}

// NewClassifier creates a classifier over policy.
func NewClassifier(reasoning schemas.ReasoningClient, policy config.ClassifierPolicy, logger *zap.Logger) *Classifier {
	return &Classifier{
		reasoning: reasoning,
		policy:    policy,
		logger:    logger.Named("classifier"),
	}
}

// Classify asks whether task is complete in obs. A failed reasoning call
// yields VerdictContinue.
func (c *Classifier) Classify(ctx context.Context, obs schemas.Observation, task string) schemas.Verdict {
	response, err := c.reasoning.Classify(ctx, obs.ScreenshotPath, fmt.Sprintf(completionPromptTemplate, task))
	if err != nil || response == "" {
		c.logger.Info("Could not determine task completion, continuing", zap.Error(err))
		return schemas.VerdictContinue
	}
	return c.Judge(response)
}

// Judge applies the policy to a response. First match wins:
// completion phrases (done), auth terms (continue), failure terms (failed),
// progress terms (continue), then continue by default.
func (c *Classifier) Judge(response string) schemas.Verdict {
	text := strings.ToLower(llmutil.StripFences(response))

	switch {
	case containsAny(text, c.policy.CompletionPhrases):
		return schemas.VerdictDone
	case containsAny(text, c.policy.AuthTerms):
		c.logger.Debug("Authentication page, task not complete")
		return schemas.VerdictContinue
	case containsAny(text, c.policy.FailureTerms):
		c.logger.Info("Task cannot continue due to an error state")
		return schemas.VerdictFailed
	case containsAny(text, c.policy.ProgressTerms):
		return schemas.VerdictContinue
	default:
		return schemas.VerdictContinue
	}
}

func containsAny(text string, terms []string) bool {
	for _, t := range terms {
		if t != "" && strings.Contains(text, strings.ToLower(t)) {
			return true
		}
	}
	return false
}
