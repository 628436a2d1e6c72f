// internal/agent/agent_test.go
package agent

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/walkthrough/api/schemas"
	"github.com/xkilldash9x/walkthrough/internal/config"
	"github.com/xkilldash9x/walkthrough/internal/recorder"
)

type MockRunStore struct {
	mock.Mock
}

func (m *MockRunStore) SaveRun(ctx context.Context, run *schemas.RunRecord) error {
	return m.Called(ctx, run).Error(0)
}

func (m *MockRunStore) GetRun(ctx context.Context, runID string) (*schemas.RunRecord, error) {
	args := m.Called(ctx, runID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*schemas.RunRecord), args.Error(1)
}

func testConfig(t *testing.T) *config.Config {
	cfg := config.NewDefaultConfig()
	cfg.BrowserCfg.ScreenshotDir = t.TempDir()
	return cfg
}

func TestAgentProcessTask(t *testing.T) {
	cfg := testConfig(t)
	clock := newFakeClock()
	b := newFakeBrowser(clock)
	reasoning := new(MockReasoning)
	store := new(MockRunStore)

	var openedDir string
	opener := func(ctx context.Context, wf *recorder.Workflow) (Session, error) {
		openedDir = wf.Dir()
		return b, nil
	}

	reasoning.On("NextDirective", mock.Anything, mock.Anything, testTask).Return(nil)
	store.On("SaveRun", mock.Anything, mock.MatchedBy(func(r *schemas.RunRecord) bool {
		return r.RunID == "fixed-id" && r.AppKey == "linear" && r.Termination == schemas.TerminationNoDirective &&
			len(r.Observations) == 1 && !r.FinishedAt.Before(r.StartedAt)
	})).Return(nil).Once()

	a := New(cfg, zaptest.NewLogger(t),
		WithReasoning(reasoning),
		WithSessionOpener(opener),
		WithRunStore(store),
		WithRunIDGenerator(func() string { return "fixed-id" }),
	)

	summary, err := a.ProcessTask(context.Background(), testTask, "")
	require.NoError(t, err)

	assert.Equal(t, "Linear", summary.App)
	assert.Equal(t, "fixed-id", summary.RunID)
	assert.False(t, summary.Success)
	assert.Equal(t, 1, summary.StepsCaptured)
	assert.Equal(t, "initial_page", summary.Screenshots[0].Label)
	assert.Equal(t, filepath.Join(cfg.BrowserCfg.ScreenshotDir, "workflow_fixed-id"), openedDir)
	assert.Contains(t, b.Calls(), "navigate:https://linear.app")
	assert.True(t, b.closed, "session must be closed after the run")

	info, err := os.Stat(openedDir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	store.AssertExpectations(t)
	assert.NoError(t, a.Close(context.Background()))
}

func TestAgentAppOverride(t *testing.T) {
	cfg := testConfig(t)
	b := newFakeBrowser(newFakeClock())
	reasoning := new(MockReasoning)
	reasoning.On("NextDirective", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	a := New(cfg, zaptest.NewLogger(t),
		WithReasoning(reasoning),
		WithSessionOpener(func(ctx context.Context, wf *recorder.Workflow) (Session, error) { return b, nil }),
	)

	summary, err := a.ProcessTask(context.Background(), "How do I filter a database?", "notion")
	require.NoError(t, err)
	assert.Equal(t, "Notion", summary.App)
}

func TestAgentPersistFailureIsNotFatal(t *testing.T) {
	cfg := testConfig(t)
	b := newFakeBrowser(newFakeClock())
	reasoning := new(MockReasoning)
	reasoning.On("NextDirective", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	store := new(MockRunStore)
	store.On("SaveRun", mock.Anything, mock.Anything).Return(errors.New("connection refused"))

	a := New(cfg, zaptest.NewLogger(t),
		WithReasoning(reasoning),
		WithRunStore(store),
		WithSessionOpener(func(ctx context.Context, wf *recorder.Workflow) (Session, error) { return b, nil }),
	)

	summary, err := a.ProcessTask(context.Background(), testTask, "")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.StepsCaptured)
}

func TestAgentPersistsCanceledRun(t *testing.T) {
	cfg := testConfig(t)
	b := newFakeBrowser(newFakeClock())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b.onWait = func(d time.Duration) {
		if d == cfg.Agent().StepPause {
			cancel()
		}
	}

	reasoning := new(MockReasoning)
	reasoning.On("NextDirective", mock.Anything, mock.Anything, mock.Anything).
		Return(directive("click", func(d *schemas.ActionDirective) { d.Selector = "#ok" }))
	reasoning.On("Classify", mock.Anything, mock.Anything, mock.Anything).Return("CONTINUE", nil)

	store := new(MockRunStore)
	store.On("SaveRun",
		mock.MatchedBy(func(ctx context.Context) bool {
			_, hasDeadline := ctx.Deadline()
			return ctx.Err() == nil && hasDeadline
		}),
		mock.MatchedBy(func(r *schemas.RunRecord) bool {
			return r.Termination == schemas.TerminationCanceled && !r.Succeeded
		}),
	).Return(nil).Once()

	a := New(cfg, zaptest.NewLogger(t),
		WithReasoning(reasoning),
		WithRunStore(store),
		WithSessionOpener(func(ctx context.Context, wf *recorder.Workflow) (Session, error) { return b, nil }),
	)

	summary, err := a.ProcessTask(ctx, testTask, "")
	require.NoError(t, err)
	assert.False(t, summary.Success)
	assert.Equal(t, schemas.TerminationCanceled, summary.Termination)
	store.AssertExpectations(t)
}

func TestAgentInitialize(t *testing.T) {
	t.Run("missing api key", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.LLMCfg.APIKey = ""
		a := New(cfg, zaptest.NewLogger(t),
			WithSessionOpener(func(ctx context.Context, wf *recorder.Workflow) (Session, error) {
				return nil, errors.New("unused")
			}))

		err := a.Initialize(context.Background())
		assert.ErrorIs(t, err, ErrAPIKeyMissing)

		_, err = a.ProcessTask(context.Background(), testTask, "")
		assert.ErrorIs(t, err, ErrAPIKeyMissing)
	})

	t.Run("session failure is returned", func(t *testing.T) {
		cfg := testConfig(t)
		reasoning := new(MockReasoning)
		a := New(cfg, zaptest.NewLogger(t),
			WithReasoning(reasoning),
			WithSessionOpener(func(ctx context.Context, wf *recorder.Workflow) (Session, error) {
				return nil, errors.New("target closed")
			}))

		require.NoError(t, a.Initialize(context.Background()))
		require.NoError(t, a.Initialize(context.Background()))

		_, err := a.ProcessTask(context.Background(), testTask, "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "target closed")
		reasoning.AssertNotCalled(t, "NextDirective", mock.Anything, mock.Anything, mock.Anything)
	})
}
