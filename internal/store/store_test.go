package store

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/walkthrough/api/schemas"
)

// flexibleSQLMatcher creates a regex that is insensitive to whitespace for more robust SQL mock testing.
func flexibleSQLMatcher(sql string) string {
	trimmed := strings.TrimSpace(sql)
	return regexp.MustCompile(`\s+`).ReplaceAllString(regexp.QuoteMeta(trimmed), `\s+`)
}

func newMockStore(t *testing.T, logger *zap.Logger) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mockPool.Close)

	mockPool.ExpectPing()
	s, err := New(context.Background(), mockPool, logger)
	require.NoError(t, err)
	return s, mockPool
}

func sampleRun() *schemas.RunRecord {
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	return &schemas.RunRecord{
		RunID:       "run-1",
		Task:        "How do I create a project in Linear?",
		AppKey:      "linear",
		Succeeded:   true,
		Termination: schemas.TerminationCompleted,
		WorkflowDir: "/tmp/screens/workflow_run-1",
		StartedAt:   started,
		FinishedAt:  started.Add(time.Minute),
		Observations: []schemas.Observation{
			{Sequence: 1, Label: "initial_page", ScreenshotPath: "/tmp/a.png", URL: "https://linear.app", CapturedAt: started,
				Metadata: map[string]interface{}{schemas.MetaTask: "t", schemas.MetaStep: "initial"}},
			{Sequence: 2, Label: "task_complete", ScreenshotPath: "/tmp/b.png", URL: "https://linear.app/p", CapturedAt: started.Add(time.Second)},
		},
	}
}

// expectRunExec expects the run upsert with the run's column values. Timestamps
// are converted to UTC by the store, so they match any value.
func expectRunExec(mockPool pgxmock.PgxPoolIface, run *schemas.RunRecord) *pgxmock.ExpectedExec {
	return mockPool.ExpectExec(flexibleSQLMatcher(insertRunSQL)).
		WithArgs(run.RunID, run.Task, run.AppKey, run.Succeeded, string(run.Termination),
			run.ErrorMessage, run.WorkflowDir, pgxmock.AnyArg(), pgxmock.AnyArg())
}

func expectRunInsert(mockPool pgxmock.PgxPoolIface, run *schemas.RunRecord) {
	expectRunExec(mockPool, run).WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mockPool.ExpectExec(flexibleSQLMatcher(deleteStepsSQL)).
		WithArgs(run.RunID).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
}

func TestNewStore(t *testing.T) {
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockPool.Close()

	pingErr := errors.New("database unavailable")
	mockPool.ExpectPing().WillReturnError(pingErr)

	_, err = New(context.Background(), mockPool, zap.NewNop())
	require.Error(t, err)
	assert.ErrorIs(t, err, pingErr, "Error from ping should be propagated")
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestEnsureSchema(t *testing.T) {
	s, mockPool := newMockStore(t, zap.NewNop())
	mockPool.ExpectExec(flexibleSQLMatcher(schemaSQL)).WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))

	require.NoError(t, s.EnsureSchema(context.Background()))
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestSaveRun(t *testing.T) {
	ctx := context.Background()

	t.Run("should persist run and steps without rollback errors", func(t *testing.T) {
		observedZapCore, observedLogs := observer.New(zapcore.ErrorLevel)
		s, mockPool := newMockStore(t, zap.New(observedZapCore))
		run := sampleRun()

		mockPool.ExpectBegin()
		expectRunInsert(mockPool, run)
		mockPool.ExpectCopyFrom(pgx.Identifier{"workflow_steps"}, stepColumns).WillReturnResult(2)
		mockPool.ExpectCommit()
		mockPool.ExpectRollback().WillReturnError(pgx.ErrTxClosed)

		require.NoError(t, s.SaveRun(ctx, run))
		assert.NoError(t, mockPool.ExpectationsWereMet())
		assert.Empty(t, observedLogs.All(), "Expected no errors logged on successful commit")
	})

	t.Run("should skip copy when there are no observations", func(t *testing.T) {
		s, mockPool := newMockStore(t, zap.NewNop())
		run := sampleRun()
		run.Observations = nil

		mockPool.ExpectBegin()
		expectRunInsert(mockPool, run)
		mockPool.ExpectCommit()
		mockPool.ExpectRollback().WillReturnError(pgx.ErrTxClosed)

		require.NoError(t, s.SaveRun(ctx, run))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should fail if begin fails", func(t *testing.T) {
		s, mockPool := newMockStore(t, zap.NewNop())
		beginErr := errors.New("connection reset")
		mockPool.ExpectBegin().WillReturnError(beginErr)

		err := s.SaveRun(ctx, sampleRun())
		assert.ErrorIs(t, err, beginErr)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should rollback if run insert fails", func(t *testing.T) {
		s, mockPool := newMockStore(t, zap.NewNop())
		run := sampleRun()
		insertErr := errors.New("unique violation")

		mockPool.ExpectBegin()
		expectRunExec(mockPool, run).WillReturnError(insertErr)
		mockPool.ExpectRollback()

		err := s.SaveRun(ctx, run)
		require.Error(t, err)
		assert.ErrorIs(t, err, insertErr)
		assert.Contains(t, err.Error(), "failed to insert run run-1")
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should rollback on copy count mismatch", func(t *testing.T) {
		s, mockPool := newMockStore(t, zap.NewNop())
		run := sampleRun()

		mockPool.ExpectBegin()
		expectRunInsert(mockPool, run)
		mockPool.ExpectCopyFrom(pgx.Identifier{"workflow_steps"}, stepColumns).WillReturnResult(1)
		mockPool.ExpectRollback()

		err := s.SaveRun(ctx, run)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "mismatch in copied steps count")
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should log rollback failures", func(t *testing.T) {
		observedZapCore, observedLogs := observer.New(zapcore.ErrorLevel)
		s, mockPool := newMockStore(t, zap.New(observedZapCore))
		run := sampleRun()

		mockPool.ExpectBegin()
		expectRunExec(mockPool, run).WillReturnError(errors.New("boom"))
		mockPool.ExpectRollback().WillReturnError(errors.New("rollback failed"))

		err := s.SaveRun(ctx, run)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "boom")
		assert.NoError(t, mockPool.ExpectationsWereMet())
		require.Equal(t, 1, observedLogs.Len())
		assert.Equal(t, "Failed to rollback transaction", observedLogs.All()[0].Message)
	})
}

func TestGetRun(t *testing.T) {
	ctx := context.Background()
	runCols := []string{"task", "app_key", "succeeded", "termination", "error_message", "workflow_dir", "started_at", "finished_at"}
	stepCols := []string{"step", "label", "filepath", "url", "captured_at", "metadata"}

	t.Run("should load run with ordered steps", func(t *testing.T) {
		s, mockPool := newMockStore(t, zap.NewNop())
		want := sampleRun()

		mockPool.ExpectQuery(flexibleSQLMatcher(selectRunSQL)).WithArgs("run-1").
			WillReturnRows(mockPool.NewRows(runCols).AddRow(
				want.Task, want.AppKey, true, "completed", "", want.WorkflowDir, want.StartedAt, want.FinishedAt))
		mockPool.ExpectQuery(flexibleSQLMatcher(selectStepsSQL)).WithArgs("run-1").
			WillReturnRows(mockPool.NewRows(stepCols).
				AddRow(1, "initial_page", "/tmp/a.png", "https://linear.app", want.StartedAt, []byte(`{"step":"initial","task":"t"}`)).
				AddRow(2, "task_complete", "/tmp/b.png", "https://linear.app/p", want.StartedAt.Add(time.Second), []byte(`{}`)))

		got, err := s.GetRun(ctx, "run-1")
		require.NoError(t, err)
		assert.Equal(t, want.Task, got.Task)
		assert.Equal(t, schemas.TerminationCompleted, got.Termination)
		assert.True(t, got.Succeeded)
		require.Len(t, got.Observations, 2)
		assert.Equal(t, "initial_page", got.Observations[0].Label)
		assert.Equal(t, "initial", got.Observations[0].Metadata[schemas.MetaStep])
		assert.Equal(t, 2, got.Observations[1].Sequence)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should return ErrRunNotFound for unknown id", func(t *testing.T) {
		s, mockPool := newMockStore(t, zap.NewNop())
		mockPool.ExpectQuery(flexibleSQLMatcher(selectRunSQL)).WithArgs("missing").
			WillReturnRows(mockPool.NewRows(runCols))

		_, err := s.GetRun(ctx, "missing")
		assert.ErrorIs(t, err, ErrRunNotFound)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should wrap query errors", func(t *testing.T) {
		s, mockPool := newMockStore(t, zap.NewNop())
		queryErr := errors.New("relation does not exist")
		mockPool.ExpectQuery(flexibleSQLMatcher(selectRunSQL)).WithArgs("run-1").WillReturnError(queryErr)

		_, err := s.GetRun(ctx, "run-1")
		require.Error(t, err)
		assert.ErrorIs(t, err, queryErr)
		assert.Contains(t, err.Error(), "failed to query run")
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}
