// File: cmd/batch.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/walkthrough/internal/config"
	"github.com/xkilldash9x/walkthrough/internal/observability"
	"github.com/xkilldash9x/walkthrough/internal/orchestrator"
)

func newBatchCmd(provider agentProvider) *cobra.Command {
	var suite bool

	batchCmd := &cobra.Command{
		Use:   "batch [tasks-file]",
		Short: "Sends a list of tasks to the agent and reports which produced walkthroughs",
		Long: `Reads tasks from a YAML or JSON file with a top-level "tasks" list
(description, app, expected_steps). Without a file the two demo tasks are sent.
With --suite the built-in acceptance tasks run and any failure fails the command.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}

			var tasks []orchestrator.Task
			switch {
			case suite:
				tasks = orchestrator.SuiteTasks()
			case len(args) == 1:
				if tasks, err = loadTasks(args[0]); err != nil {
					return err
				}
			default:
				tasks = orchestrator.DemoTasks()
			}

			return runBatch(ctx, observability.GetLogger(), cfg, provider, tasks, suite, cmd.OutOrStdout())
		},
	}

	batchCmd.Flags().BoolVar(&suite, "suite", false, "Run the built-in acceptance suite")
	return batchCmd
}

// loadTasks reads a task list file. The format follows the file extension.
func loadTasks(path string) ([]orchestrator.Task, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read tasks file: %w", err)
	}

	var tasks []orchestrator.Task
	if err := v.UnmarshalKey("tasks", &tasks); err != nil {
		return nil, fmt.Errorf("failed to decode tasks file: %w", err)
	}
	if len(tasks) == 0 {
		return nil, fmt.Errorf("tasks file %s contains no tasks", path)
	}
	for i, t := range tasks {
		if t.Description == "" {
			return nil, fmt.Errorf("task %d in %s has no description", i+1, path)
		}
	}
	return tasks, nil
}

func runBatch(ctx context.Context, logger *zap.Logger, cfg config.Interface, provider agentProvider, tasks []orchestrator.Task, strict bool, out io.Writer) error {
	a, cleanup, err := provider.Create(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize agent: %w", err)
	}
	if cleanup != nil {
		defer cleanup()
	}

	orch, err := orchestrator.New(a, cfg.Batch(), logger)
	if err != nil {
		return err
	}

	outcomes, runErr := orch.RunBatch(ctx, tasks)
	passed := printOutcomes(out, outcomes)

	if runErr != nil {
		if errors.Is(runErr, context.Canceled) {
			logger.Warn("Batch aborted by user signal")
		}
		return runErr
	}
	if strict && passed < len(outcomes) {
		return fmt.Errorf("%d of %d tasks failed", len(outcomes)-passed, len(outcomes))
	}
	return nil
}

// printOutcomes writes one line per task and a closing tally. It returns the
// number of passing tasks.
func printOutcomes(out io.Writer, outcomes []orchestrator.Outcome) int {
	passed := 0
	fmt.Fprintln(out)
	for _, o := range outcomes {
		status := "FAIL"
		if o.Passed() {
			status = "PASS"
			passed++
		}
		switch {
		case o.Summary != nil:
			fmt.Fprintf(out, "%s  %-45s steps=%d termination=%s dir=%s\n",
				status, o.Task.Description, o.Summary.StepsCaptured, o.Summary.Termination, o.Summary.WorkflowDir)
		case o.Err != nil:
			fmt.Fprintf(out, "%s  %-45s error=%s\n", status, o.Task.Description, o.Err)
		default:
			fmt.Fprintf(out, "%s  %-45s not run\n", status, o.Task.Description)
		}
	}
	fmt.Fprintf(out, "\nResults: %d/%d passed\n", passed, len(outcomes))
	return passed
}
