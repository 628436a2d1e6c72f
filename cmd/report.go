// File: cmd/report.go
package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/walkthrough/api/schemas"
	"github.com/xkilldash9x/walkthrough/internal/config"
	"github.com/xkilldash9x/walkthrough/internal/llmclient"
	"github.com/xkilldash9x/walkthrough/internal/observability"
	"github.com/xkilldash9x/walkthrough/internal/reasoning"
	"github.com/xkilldash9x/walkthrough/internal/recorder"
	"github.com/xkilldash9x/walkthrough/internal/store"
)

// storeProvider creates the run store for the report command, so tests can
// inject a mock instead of a live database connection.
type storeProvider interface {
	// Create returns the store and a cleanup function releasing its pool.
	Create(ctx context.Context, cfg config.Interface) (schemas.RunStore, func(), error)
}

type defaultStoreProvider struct{}

// NewStoreProvider returns the PostgreSQL-backed provider.
func NewStoreProvider() storeProvider {
	return &defaultStoreProvider{}
}

func (p *defaultStoreProvider) Create(ctx context.Context, cfg config.Interface) (schemas.RunStore, func(), error) {
	logger := observability.GetLogger()
	if cfg.Database().URL == "" {
		return nil, nil, fmt.Errorf("database URL is not configured (WALKTHROUGH_DATABASE_URL)")
	}

	runStore, pool, err := store.Connect(ctx, cfg.Database().URL, logger)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		pool.Close()
		logger.Debug("Database connection pool closed (via report cleanup).")
	}
	return runStore, cleanup, nil
}

// captureReviewer decides whether a recorded step is worth keeping.
type captureReviewer interface {
	ShouldCapture(ctx context.Context, screenshotPath, previous string) bool
}

type reviewerProvider interface {
	Create(ctx context.Context, cfg config.Interface, logger *zap.Logger) (captureReviewer, error)
}

type defaultReviewerProvider struct{}

func (defaultReviewerProvider) Create(ctx context.Context, cfg config.Interface, logger *zap.Logger) (captureReviewer, error) {
	llmCfg := cfg.LLM()
	if llmCfg.APIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY environment variable is required for --review")
	}
	client, err := llmclient.NewClient(ctx, llmCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create reasoning client: %w", err)
	}
	return reasoning.NewDetector(client, logger), nil
}

// stepReview is the keep/drop verdict for one recorded step.
type stepReview struct {
	Step  int    `json:"step"`
	Label string `json:"label"`
	Keep  bool   `json:"keep"`
}

// runReport is the printed form of a run.
type runReport struct {
	schemas.RunRecord
	Review []stepReview `json:"review,omitempty"`
}

type reportOptions struct {
	runID  string
	dir    string
	review bool
}

func newReportCmd(stores storeProvider, reviewers reviewerProvider) *cobra.Command {
	var opts reportOptions

	reportCmd := &cobra.Command{
		Use:   "report [run-id]",
		Short: "Prints the recorded steps of a finished run",
		Long: `Loads a run from the database by its ID, or straight from a workflow
directory with --dir. With --review the model is asked, step by step, whether
each capture adds anything over the one before it.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			if len(args) == 1 {
				opts.runID = args[0]
			}
			if (opts.runID == "") == (opts.dir == "") {
				return fmt.Errorf("exactly one of a run ID or --dir is required")
			}
			return runReportCmd(ctx, observability.GetLogger(), cfg, opts, stores, reviewers, cmd.OutOrStdout())
		},
	}

	reportCmd.Flags().StringVar(&opts.dir, "dir", "", "Workflow directory to read instead of the database")
	reportCmd.Flags().BoolVar(&opts.review, "review", false, "Ask the model which captured steps are worth keeping")
	return reportCmd
}

func runReportCmd(
	ctx context.Context,
	logger *zap.Logger,
	cfg config.Interface,
	opts reportOptions,
	stores storeProvider,
	reviewers reviewerProvider,
	out io.Writer,
) error {
	run, err := loadRun(ctx, cfg, opts, stores)
	if err != nil {
		return err
	}

	report := runReport{RunRecord: *run}
	if opts.review {
		reviewer, err := reviewers.Create(ctx, cfg, logger)
		if err != nil {
			return err
		}
		report.Review = reviewSteps(ctx, reviewer, run.Observations)
	}
	return writeJSON(out, report)
}

func loadRun(ctx context.Context, cfg config.Interface, opts reportOptions, stores storeProvider) (*schemas.RunRecord, error) {
	if opts.dir != "" {
		observations, err := recorder.Load(opts.dir)
		if err != nil {
			return nil, err
		}
		return &schemas.RunRecord{WorkflowDir: opts.dir, Observations: observations}, nil
	}

	runStore, cleanup, err := stores.Create(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}
	if cleanup != nil {
		defer cleanup()
	}
	return runStore.GetRun(ctx, opts.runID)
}

// reviewSteps compares each step with the label of the step before it. The
// first step is always kept.
func reviewSteps(ctx context.Context, reviewer captureReviewer, observations []schemas.Observation) []stepReview {
	reviews := make([]stepReview, 0, len(observations))
	previous := ""
	for i, o := range observations {
		keep := i == 0 || reviewer.ShouldCapture(ctx, o.ScreenshotPath, previous)
		reviews = append(reviews, stepReview{Step: o.Sequence, Label: o.Label, Keep: keep})
		previous = o.Label
	}
	return reviews
}
