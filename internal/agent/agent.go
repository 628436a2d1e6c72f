// internal/agent/agent.go
package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/walkthrough/api/schemas"
	"github.com/xkilldash9x/walkthrough/internal/apps"
	"github.com/xkilldash9x/walkthrough/internal/browser"
	"github.com/xkilldash9x/walkthrough/internal/config"
	"github.com/xkilldash9x/walkthrough/internal/llmclient"
	"github.com/xkilldash9x/walkthrough/internal/reasoning"
	"github.com/xkilldash9x/walkthrough/internal/recorder"
)

// ErrAPIKeyMissing is returned by Initialize when no reasoning client was
// injected and no Gemini API key is configured.
var ErrAPIKeyMissing = errors.New("GEMINI_API_KEY environment variable is required")

// Session is a browser surface the agent can close when the run ends.
type Session interface {
	schemas.BrowserSurface
	Close()
}

// SessionOpener opens a browser session whose captures go to workflow.
type SessionOpener func(ctx context.Context, workflow *recorder.Workflow) (Session, error)

// Agent answers "how do I ..." requests by running the step loop in a fresh
// browser tab and summarizing the captured walkthrough.
type Agent struct {
	cfg    config.Interface
	logger *zap.Logger

	reasoning   schemas.ReasoningClient
	openSession SessionOpener
	store       schemas.RunStore
	manager     *browser.Manager
	newRunID    func() string
	now         func() time.Time

	mu          sync.Mutex
	initialized bool
}

// Option configures an Agent.
type Option func(*Agent)

// WithReasoning injects the reasoning client instead of building a Gemini one.
func WithReasoning(r schemas.ReasoningClient) Option {
	return func(a *Agent) { a.reasoning = r }
}

// WithSessionOpener injects the browser instead of launching Chromium.
func WithSessionOpener(open SessionOpener) Option {
	return func(a *Agent) { a.openSession = open }
}

// WithRunStore persists every finished run.
func WithRunStore(s schemas.RunStore) Option {
	return func(a *Agent) { a.store = s }
}

// WithRunIDGenerator replaces uuid-based run IDs.
func WithRunIDGenerator(gen func() string) Option {
	return func(a *Agent) { a.newRunID = gen }
}

// New creates an agent. Call Initialize before ProcessTask, or let ProcessTask do it.
func New(cfg config.Interface, logger *zap.Logger, opts ...Option) *Agent {
	a := &Agent{
		cfg:      cfg,
		logger:   logger.Named("agent"),
		newRunID: uuid.NewString,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Initialize builds the reasoning client and launches the browser unless
// either was injected. It is safe to call more than once.
func (a *Agent) Initialize(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.initialized {
		return nil
	}
	a.logger.Info("Initializing agent...")

	if a.reasoning == nil {
		llmCfg := a.cfg.LLM()
		if llmCfg.APIKey == "" {
			return ErrAPIKeyMissing
		}
		client, err := llmclient.NewClient(ctx, llmCfg, a.logger)
		if err != nil {
			return fmt.Errorf("failed to create reasoning client: %w", err)
		}
		a.reasoning = reasoning.NewDetector(client, a.logger)
	}

	if a.openSession == nil {
		manager, err := browser.NewManager(ctx, a.cfg.Browser(), a.logger)
		if err != nil {
			return err
		}
		a.manager = manager
		a.openSession = func(ctx context.Context, wf *recorder.Workflow) (Session, error) {
			s, err := manager.NewSession(ctx, wf)
			if err != nil {
				return nil, err
			}
			return s, nil
		}
	}

	a.initialized = true
	a.logger.Info("Agent initialized successfully")
	return nil
}

// ProcessTask resolves the target application, runs the loop in a new tab
// and returns the walkthrough summary. appOverride may be empty.
func (a *Agent) ProcessTask(ctx context.Context, task, appOverride string) (*Summary, error) {
	if err := a.Initialize(ctx); err != nil {
		return nil, err
	}

	app := apps.ForTask(task, appOverride)
	runID := a.newRunID()
	logger := a.logger.With(zap.String("run_id", runID))
	logger.Info("Task request", zap.String("task", task), zap.String("app", app.Name))

	workflow, err := recorder.New(a.cfg.Browser().ScreenshotDir, runID)
	if err != nil {
		return nil, err
	}
	session, err := a.openSession(ctx, workflow)
	if err != nil {
		return nil, fmt.Errorf("failed to open browser session: %w", err)
	}
	defer session.Close()

	started := a.now()
	ctrl := NewController(session, a.reasoning, a.cfg.Agent(), a.logger, WithRunID(runID))
	result, err := ctrl.Run(ctx, schemas.TaskRequest{Description: task, Application: app})
	if err != nil {
		return nil, err
	}

	a.persist(ctx, logger, &schemas.RunRecord{
		RunID:        runID,
		Task:         task,
		AppKey:       app.Key,
		Succeeded:    result.Succeeded,
		Termination:  result.Termination,
		ErrorMessage: result.ErrorMessage,
		WorkflowDir:  result.WorkflowDir,
		StartedAt:    started,
		FinishedAt:   a.now(),
		Observations: result.Observations,
	})

	summary := NewSummary(task, app, result)
	logger.Info("Task summary",
		zap.Bool("success", summary.Success),
		zap.String("termination", string(summary.Termination)),
		zap.Int("steps_captured", summary.StepsCaptured),
		zap.String("workflow_dir", summary.WorkflowDir))
	return summary, nil
}

const persistTimeout = 10 * time.Second

// persist stores the run when a store is configured. Failures are logged only;
// the filesystem record is already complete.
func (a *Agent) persist(ctx context.Context, logger *zap.Logger, run *schemas.RunRecord) {
	if a.store == nil {
		return
	}
	// A canceled run is still recorded.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	if err := a.store.SaveRun(ctx, run); err != nil {
		logger.Error("Failed to persist run", zap.Error(err))
	}
}

// Close shuts the browser down if this agent launched it.
func (a *Agent) Close(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.manager == nil {
		return nil
	}
	err := a.manager.Shutdown(ctx)
	a.manager = nil
	a.initialized = false
	return err
}
