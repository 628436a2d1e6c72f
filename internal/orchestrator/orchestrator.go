// File: internal/orchestrator/orchestrator.go
// Description: Feeds a list of task requests to the agent and collects their
// summaries. Plays the requesting side of the agent conversation.

package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/walkthrough/internal/agent"
	"github.com/xkilldash9x/walkthrough/internal/config"
)

// TaskProcessor is the agent side of a batch.
type TaskProcessor interface {
	ProcessTask(ctx context.Context, task, appOverride string) (*agent.Summary, error)
}

// Task is one request in a batch.
type Task struct {
	Description   string `mapstructure:"description" json:"description"`
	App           string `mapstructure:"app" json:"app,omitempty"`
	ExpectedSteps int    `mapstructure:"expected_steps" json:"expected_steps,omitempty"`
}

// Outcome is the result of one batch task. Err is set when the agent could
// not run the task at all.
type Outcome struct {
	Task    Task           `json:"task"`
	Summary *agent.Summary `json:"summary,omitempty"`
	Err     error          `json:"-"`
	Error   string         `json:"error,omitempty"`
}

// Passed reports whether the task produced a usable walkthrough. A task
// without an expected step count passes when it ran at all.
func (o Outcome) Passed() bool {
	if o.Err != nil || o.Summary == nil {
		return false
	}
	if o.Task.ExpectedSteps <= 0 {
		return true
	}
	return o.Summary.Passed(o.Task.ExpectedSteps)
}

// DemoTasks are sent when a batch is started without a task file.
func DemoTasks() []Task {
	return []Task{
		{Description: "How do I create a project in Linear?"},
		{Description: "How do I filter a database in Notion?"},
	}
}

// SuiteTasks is the acceptance suite with per-task step expectations.
func SuiteTasks() []Task {
	return []Task{
		{Description: "How do I create a project in Linear?", App: "linear", ExpectedSteps: 3},
		{Description: "How do I filter a database in Notion?", App: "notion", ExpectedSteps: 3},
		{Description: "How do I create a task in Linear?", App: "linear", ExpectedSteps: 3},
		{Description: "How do I change settings in Notion?", App: "notion", ExpectedSteps: 3},
		{Description: "How do I view my projects in Linear?", App: "linear", ExpectedSteps: 2},
	}
}

// Orchestrator runs batches of tasks against a TaskProcessor.
type Orchestrator struct {
	processor TaskProcessor
	cfg       config.BatchConfig
	logger    *zap.Logger
	sleep     func(ctx context.Context, d time.Duration) error
}

// New creates an Orchestrator.
func New(processor TaskProcessor, cfg config.BatchConfig, logger *zap.Logger) (*Orchestrator, error) {
	if processor == nil || logger == nil {
		return nil, fmt.Errorf("cannot initialize orchestrator with nil dependencies")
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 1
	}
	return &Orchestrator{
		processor: processor,
		cfg:       cfg,
		logger:    logger.Named("orchestrator"),
		sleep:     sleepContext,
	}, nil
}

// RunBatch sends every task to the processor, at most Parallelism at a time.
// Run one at a time, each task waits Pause after the previous one finished.
// Run in parallel, each task after the first waits Pause once it holds a
// slot. Task failures are recorded in their Outcome and never stop the
// batch; only cancellation of ctx does.
func (o *Orchestrator) RunBatch(ctx context.Context, tasks []Task) ([]Outcome, error) {
	outcomes := make([]Outcome, len(tasks))
	for i, task := range tasks {
		outcomes[i].Task = task
	}

	if o.cfg.Parallelism == 1 {
		for i, task := range tasks {
			if i > 0 && !o.pause(ctx) {
				break
			}
			if ctx.Err() != nil {
				break
			}
			outcomes[i] = o.runTask(ctx, i, len(tasks), task)
		}
		return outcomes, interrupted(ctx)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Parallelism)

	var mu sync.Mutex
	for i, task := range tasks {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if i > 0 && !o.pause(gctx) {
				return nil
			}
			out := o.runTask(gctx, i, len(tasks), task)
			mu.Lock()
			outcomes[i] = out
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return outcomes, err
	}
	return outcomes, interrupted(ctx)
}

// pause waits out the configured pause and reports whether the batch may go on.
func (o *Orchestrator) pause(ctx context.Context) bool {
	if o.cfg.Pause <= 0 {
		return true
	}
	o.logger.Info("Waiting before next task", zap.Duration("pause", o.cfg.Pause))
	return o.sleep(ctx, o.cfg.Pause) == nil
}

func (o *Orchestrator) runTask(ctx context.Context, i, total int, task Task) Outcome {
	o.logger.Info("Sending task to agent", zap.Int("index", i+1), zap.Int("total", total), zap.String("task", task.Description))
	summary, err := o.processor.ProcessTask(ctx, task.Description, task.App)

	out := Outcome{Task: task, Summary: summary, Err: err}
	if err != nil {
		out.Error = err.Error()
		o.logger.Error("Agent failed to process task", zap.String("task", task.Description), zap.Error(err))
		return out
	}
	o.logger.Info("Received response from agent",
		zap.String("task", task.Description),
		zap.Bool("success", summary.Success),
		zap.Int("steps_captured", summary.StepsCaptured),
		zap.String("workflow_dir", summary.WorkflowDir))
	return out
}

func interrupted(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("batch interrupted: %w", err)
	}
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
