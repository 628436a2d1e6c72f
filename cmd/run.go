// File: cmd/run.go
package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/walkthrough/internal/agent"
	"github.com/xkilldash9x/walkthrough/internal/config"
	"github.com/xkilldash9x/walkthrough/internal/observability"
	"github.com/xkilldash9x/walkthrough/internal/orchestrator"
	"github.com/xkilldash9x/walkthrough/internal/store"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const shutdownTimeout = 15 * time.Second

// taskAgent is the agent surface the run and batch commands drive.
type taskAgent interface {
	orchestrator.TaskProcessor
	Close(ctx context.Context) error
}

// agentProvider builds the agent for a command. Tests inject a fake one.
type agentProvider interface {
	// Create returns the agent and a cleanup function that releases the
	// browser and any database pool.
	Create(ctx context.Context, cfg config.Interface, logger *zap.Logger) (taskAgent, func(), error)
}

type defaultAgentProvider struct{}

// Create wires an agent with Chromium and Gemini, persisting runs to
// PostgreSQL when database.url is set.
func (defaultAgentProvider) Create(ctx context.Context, cfg config.Interface, logger *zap.Logger) (taskAgent, func(), error) {
	var opts []agent.Option
	var closePool func()

	if url := cfg.Database().URL; url != "" {
		runStore, pool, err := store.Connect(ctx, url, logger)
		if err != nil {
			return nil, nil, err
		}
		if err := runStore.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		opts = append(opts, agent.WithRunStore(runStore))
		closePool = pool.Close
	}

	a := agent.New(cfg, logger, opts...)
	if err := a.Initialize(ctx); err != nil {
		if closePool != nil {
			closePool()
		}
		return nil, nil, err
	}

	cleanup := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := a.Close(shutdownCtx); err != nil {
			logger.Warn("Error during browser shutdown", zap.Error(err))
		}
		if closePool != nil {
			closePool()
			logger.Debug("Database connection pool closed.")
		}
	}
	return a, cleanup, nil
}

func newRunCmd(provider agentProvider) *cobra.Command {
	return &cobra.Command{
		Use:   "run <task> [app]",
		Short: "Runs one task and prints the captured walkthrough summary",
		Long: `Opens the target application in a browser, lets the model choose one action
per step until the task is done, and captures a screenshot for every
significant UI state. The optional app argument overrides app detection.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			var app string
			if len(args) > 1 {
				app = args[1]
			}
			return runTask(ctx, observability.GetLogger(), cfg, provider, args[0], app, cmd.OutOrStdout())
		},
	}
}

func runTask(ctx context.Context, logger *zap.Logger, cfg config.Interface, provider agentProvider, task, app string, out io.Writer) error {
	a, cleanup, err := provider.Create(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize agent: %w", err)
	}
	if cleanup != nil {
		defer cleanup()
	}

	summary, err := a.ProcessTask(ctx, task, app)
	if err != nil {
		return fmt.Errorf("task failed: %w", err)
	}
	return writeJSON(out, summary)
}

func writeJSON(out io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize output to JSON: %w", err)
	}
	_, err = fmt.Fprintln(out, string(data))
	return err
}
