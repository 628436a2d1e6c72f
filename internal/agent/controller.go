// internal/agent/controller.go
package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/walkthrough/api/schemas"
	"github.com/xkilldash9x/walkthrough/internal/config"
)

const (
	labelInitial  = "initial_page"
	labelComplete = "task_complete"

	authRequiredMessage = "Authentication required - please log in manually"
)

// Controller runs the perception-action loop for one browser surface.
type Controller struct {
	browser    schemas.BrowserSurface
	reasoning  schemas.ReasoningClient
	dispatcher *Dispatcher
	classifier *Classifier
	detector   *StateDetector
	cfg        config.AgentConfig
	logger     *zap.Logger

	runID string
	now   func() time.Time
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithRunID fixes the run identifier instead of generating one.
func WithRunID(id string) ControllerOption {
	return func(c *Controller) { c.runID = id }
}

// WithClock replaces time.Now for state change detection.
func WithClock(now func() time.Time) ControllerOption {
	return func(c *Controller) { c.now = now }
}

// NewController wires the loop's helpers around browser and reasoning.
func NewController(browser schemas.BrowserSurface, reasoning schemas.ReasoningClient, cfg config.AgentConfig, logger *zap.Logger, opts ...ControllerOption) *Controller {
	c := &Controller{
		browser:    browser,
		reasoning:  reasoning,
		dispatcher: NewDispatcher(browser, cfg.DefaultWait, logger),
		classifier: NewClassifier(reasoning, cfg.Classifier, logger),
		detector:   NewStateDetector(cfg.CaptureInterval),
		cfg:        cfg,
		logger:     logger.Named("controller"),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.runID == "" {
		c.runID = uuid.NewString()
	}
	return c
}

// runState is everything one Run mutates.
type runState struct {
	observations []schemas.Observation
	current      schemas.Observation
	auth         *AuthBreaker
	steps        int
}

func (st *runState) append(obs schemas.Observation) {
	st.observations = append(st.observations, obs)
	st.current = obs
}

func (c *Controller) result(st *runState, succeeded bool, term schemas.Termination, msg string) *schemas.TaskResult {
	return &schemas.TaskResult{
		RunID:        c.runID,
		Succeeded:    succeeded,
		Termination:  term,
		Observations: st.observations,
		WorkflowDir:  c.browser.WorkflowDir(),
		ErrorMessage: msg,
		StepsTaken:   st.steps,
	}
}

// Run drives the browser toward req. Only a failure to open and capture the
// application's start page is returned as an error; every other ending is a
// TaskResult carrying the observations captured so far.
func (c *Controller) Run(ctx context.Context, req schemas.TaskRequest) (*schemas.TaskResult, error) {
	logger := c.logger.With(zap.String("run_id", c.runID))
	app := req.Application
	task := req.Description
	st := &runState{auth: NewAuthBreaker(c.cfg.Classifier.AuthURLMarkers, c.cfg.MaxAuthSteps)}

	logger.Info("Executing task", zap.String("task", task), zap.String("app", app.Name), zap.String("url", app.BaseURL))

	if err := c.browser.Navigate(ctx, app.BaseURL); err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", app.BaseURL, err)
	}
	c.waitForStable(ctx, logger)
	initial, err := c.browser.CaptureScreenshot(ctx, labelInitial, map[string]interface{}{
		schemas.MetaTask:     task,
		schemas.MetaStep:     "initial",
		schemas.MetaHasModal: c.modalVisible(ctx, logger),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to capture initial page: %w", err)
	}
	st.append(initial)

	for step := 1; step <= c.cfg.MaxSteps; step++ {
		if err := ctx.Err(); err != nil {
			return c.canceled(st, err, logger), nil
		}
		st.steps = step
		stepLog := logger.With(zap.Int("step", step))
		stepLog.Info("Analyzing current state")

		directive := c.reasoning.NextDirective(ctx, st.current.ScreenshotPath, task)
		if directive == nil || directive.Kind == "" {
			stepLog.Info("Could not determine next step, task may be complete or failed")
			return c.result(st, false, schemas.TerminationNoDirective, ""), nil
		}
		stepLog = stepLog.With(zap.String("action", directive.RawKind))
		stepLog.Info("Executing directive", zap.String("description", directive.Description))

		if outcome := c.dispatcher.Execute(ctx, *directive, app); !outcome.Succeeded {
			stepLog.Warn("Directive failed", zap.String("error", outcome.ErrorMessage))
			if err := c.pause(ctx, c.cfg.RecoveryPause); err != nil {
				return c.canceled(st, err, logger), nil
			}
		}

		c.waitForStable(ctx, stepLog)
		hasModal := c.modalVisible(ctx, stepLog)
		url, urlKnown := c.currentURL(ctx, st.current.URL, stepLog)

		if c.detector.IsSignificant(hasModal, url, st.current, c.now()) {
			label := LabelStep(*directive, hasModal, url)
			obs, err := c.browser.CaptureScreenshot(ctx, label, map[string]interface{}{
				schemas.MetaTask:        task,
				schemas.MetaStep:        step,
				schemas.MetaAction:      directive.RawKind,
				schemas.MetaDescription: directive.Description,
				schemas.MetaHasModal:    hasModal,
			})
			if err != nil {
				stepLog.Warn("Capture failed, keeping previous state", zap.String("label", label), zap.Error(err))
			} else {
				st.append(obs)
				stepLog.Info("Captured", zap.String("label", label), zap.Int("sequence", obs.Sequence))
			}
		}

		verdict := c.classifier.Classify(ctx, st.current, task)
		stepLog.Debug("Classified", zap.String("verdict", string(verdict)))

		authURL := url
		if !urlKnown {
			authURL = ""
		}
		if st.auth.Observe(authURL) {
			stepLog.Warn("Authentication appears to be blocking progress, task requires manual login",
				zap.Int("auth_streak", st.auth.Streak()))
			return c.result(st, false, schemas.TerminationAuthRequired, authRequiredMessage), nil
		}

		switch verdict {
		case schemas.VerdictDone:
			stepLog.Info("Task appears to be complete")
			if err := c.pause(ctx, c.cfg.CompletionPause); err != nil {
				return c.canceled(st, err, logger), nil
			}
			final, err := c.browser.CaptureScreenshot(ctx, labelComplete, map[string]interface{}{
				schemas.MetaTask:     task,
				schemas.MetaStep:     "complete",
				schemas.MetaHasModal: c.modalVisible(ctx, stepLog),
			})
			if err != nil {
				stepLog.Warn("Final capture failed", zap.Error(err))
			} else {
				st.append(final)
			}
			return c.result(st, true, schemas.TerminationCompleted, ""), nil
		case schemas.VerdictFailed:
			stepLog.Info("Classifier reported a failure state, stopping")
			return c.result(st, false, schemas.TerminationClassifiedFailed, ""), nil
		}

		if err := c.pause(ctx, c.cfg.StepPause); err != nil {
			return c.canceled(st, err, logger), nil
		}
	}

	logger.Info("Reached maximum step limit, task may not be complete", zap.Int("max_steps", c.cfg.MaxSteps))
	return c.result(st, false, schemas.TerminationExhausted, ""), nil
}

func (c *Controller) canceled(st *runState, err error, logger *zap.Logger) *schemas.TaskResult {
	logger.Warn("Run canceled", zap.Error(err), zap.Int("steps", st.steps))
	return c.result(st, false, schemas.TerminationCanceled, err.Error())
}

// pause waits d on the browser. Only cancellation of ctx is reported.
func (c *Controller) pause(ctx context.Context, d time.Duration) error {
	err := c.browser.WaitForTimeout(ctx, d)
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	c.logger.Debug("Pause interrupted", zap.Error(err))
	return nil
}

func (c *Controller) waitForStable(ctx context.Context, logger *zap.Logger) {
	if err := c.browser.WaitForUIStable(ctx, c.cfg.StableWait); err != nil {
		logger.Debug("UI stability wait failed", zap.Error(err))
	}
}

func (c *Controller) modalVisible(ctx context.Context, logger *zap.Logger) bool {
	visible, err := c.browser.HasModalVisible(ctx)
	if err != nil {
		logger.Debug("Modal probe failed, assuming none", zap.Error(err))
		return false
	}
	return visible
}

func (c *Controller) currentURL(ctx context.Context, previous string, logger *zap.Logger) (string, bool) {
	url, err := c.browser.CurrentURL(ctx)
	if err != nil {
		logger.Debug("Could not read current URL, keeping previous", zap.Error(err))
		return previous, false
	}
	return url, true
}
