package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/walkthrough/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrRunNotFound is returned by GetRun when no row matches the run ID.
var ErrRunNotFound = errors.New("run not found")

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const (
	schemaSQL = `
        CREATE TABLE IF NOT EXISTS workflow_runs (
            run_id        TEXT PRIMARY KEY,
            task          TEXT NOT NULL,
            app_key       TEXT NOT NULL,
            succeeded     BOOLEAN NOT NULL,
            termination   TEXT NOT NULL,
            error_message TEXT NOT NULL DEFAULT '',
            workflow_dir  TEXT NOT NULL,
            started_at    TIMESTAMPTZ NOT NULL,
            finished_at   TIMESTAMPTZ NOT NULL
        );
        CREATE TABLE IF NOT EXISTS workflow_steps (
            run_id      TEXT NOT NULL REFERENCES workflow_runs(run_id) ON DELETE CASCADE,
            step        INTEGER NOT NULL,
            label       TEXT NOT NULL,
            filepath    TEXT NOT NULL,
            url         TEXT NOT NULL,
            captured_at TIMESTAMPTZ NOT NULL,
            metadata    JSONB NOT NULL DEFAULT '{}',
            PRIMARY KEY (run_id, step)
        );
    `

	insertRunSQL = `
        INSERT INTO workflow_runs (run_id, task, app_key, succeeded, termination, error_message, workflow_dir, started_at, finished_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        ON CONFLICT (run_id) DO UPDATE SET
            succeeded = EXCLUDED.succeeded,
            termination = EXCLUDED.termination,
            error_message = EXCLUDED.error_message,
            finished_at = EXCLUDED.finished_at;
    `

	deleteStepsSQL = `DELETE FROM workflow_steps WHERE run_id = $1;`

	selectRunSQL = `
        SELECT task, app_key, succeeded, termination, error_message, workflow_dir, started_at, finished_at
        FROM workflow_runs
        WHERE run_id = $1;
    `

	selectStepsSQL = `
        SELECT step, label, filepath, url, captured_at, metadata
        FROM workflow_steps
        WHERE run_id = $1
        ORDER BY step ASC;
    `
)

var stepColumns = []string{"run_id", "step", "label", "filepath", "url", "captured_at", "metadata"}

// Store persists finished runs to PostgreSQL. It implements schemas.RunStore.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

var _ schemas.RunStore = (*Store)(nil)

// New creates a new store instance and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{
		pool: pool,
		log:  logger.Named("store"),
	}, nil
}

// Connect opens a pgx pool for url and wraps it in a Store. The caller closes the pool.
func Connect(ctx context.Context, url string, logger *zap.Logger) (*Store, *pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create database pool: %w", err)
	}
	s, err := New(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	return s, pool, nil
}

// EnsureSchema creates the run tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// SaveRun writes the run row and replaces its steps in one transaction.
func (s *Store) SaveRun(ctx context.Context, run *schemas.RunRecord) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	if _, err := tx.Exec(ctx, insertRunSQL,
		run.RunID, run.Task, run.AppKey, run.Succeeded, string(run.Termination),
		run.ErrorMessage, run.WorkflowDir, run.StartedAt.UTC(), run.FinishedAt.UTC(),
	); err != nil {
		return fmt.Errorf("failed to insert run %s: %w", run.RunID, err)
	}

	if _, err := tx.Exec(ctx, deleteStepsSQL, run.RunID); err != nil {
		return fmt.Errorf("failed to clear steps for run %s: %w", run.RunID, err)
	}

	if len(run.Observations) > 0 {
		if err := s.persistSteps(ctx, tx, run.RunID, run.Observations); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.log.Debug("Run persisted", zap.String("run_id", run.RunID), zap.Int("steps", len(run.Observations)))
	return nil
}

func (s *Store) persistSteps(ctx context.Context, tx pgx.Tx, runID string, observations []schemas.Observation) error {
	rows := make([][]interface{}, len(observations))
	for i, o := range observations {
		metadata := []byte("{}")
		if len(o.Metadata) > 0 {
			encoded, err := json.Marshal(o.Metadata)
			if err != nil {
				return fmt.Errorf("failed to encode metadata for step %d: %w", o.Sequence, err)
			}
			metadata = encoded
		}
		rows[i] = []interface{}{
			runID, o.Sequence, o.Label, o.ScreenshotPath, o.URL, o.CapturedAt.UTC(), metadata,
		}
	}

	copyCount, err := tx.CopyFrom(ctx, pgx.Identifier{"workflow_steps"}, stepColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("failed to copy steps: %w", err)
	}
	if int(copyCount) != len(observations) {
		return fmt.Errorf("mismatch in copied steps count: expected %d, got %d", len(observations), copyCount)
	}
	return nil
}

// GetRun loads a run and its ordered steps.
func (s *Store) GetRun(ctx context.Context, runID string) (*schemas.RunRecord, error) {
	rows, err := s.pool.Query(ctx, selectRunSQL, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query run: %w", err)
	}

	run := &schemas.RunRecord{RunID: runID}
	found := false
	for rows.Next() {
		var termination string
		if err := rows.Scan(
			&run.Task, &run.AppKey, &run.Succeeded, &termination,
			&run.ErrorMessage, &run.WorkflowDir, &run.StartedAt, &run.FinishedAt,
		); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		run.Termination = schemas.Termination(termination)
		found = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}

	steps, err := s.getSteps(ctx, runID)
	if err != nil {
		return nil, err
	}
	run.Observations = steps
	return run, nil
}

func (s *Store) getSteps(ctx context.Context, runID string) ([]schemas.Observation, error) {
	rows, err := s.pool.Query(ctx, selectStepsSQL, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query steps: %w", err)
	}
	defer rows.Close()

	var steps []schemas.Observation
	for rows.Next() {
		var (
			o        schemas.Observation
			metadata []byte
		)
		if err := rows.Scan(&o.Sequence, &o.Label, &o.ScreenshotPath, &o.URL, &o.CapturedAt, &metadata); err != nil {
			return nil, fmt.Errorf("failed to scan step row: %w", err)
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &o.Metadata); err != nil {
				return nil, fmt.Errorf("failed to decode metadata for step %d: %w", o.Sequence, err)
			}
		}
		steps = append(steps, o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return steps, nil
}
