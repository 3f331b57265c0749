package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xkilldash9x/stepwise/api/schemas"
	"github.com/xkilldash9x/stepwise/internal/textnorm"
)

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const (
	sqlCreateSchema = `
        CREATE TABLE IF NOT EXISTS target_mappings (
            target_key  TEXT PRIMARY KEY,
            target_text TEXT NOT NULL,
            selector    TEXT NOT NULL,
            updated_at  TIMESTAMPTZ NOT NULL
        );
        CREATE TABLE IF NOT EXISTS walkthrough_runs (
            id          TEXT PRIMARY KEY,
            steps       TEXT NOT NULL,
            page        TEXT NOT NULL,
            started_at  TIMESTAMPTZ NOT NULL,
            finished_at TIMESTAMPTZ NOT NULL
        );
        CREATE TABLE IF NOT EXISTS step_outcomes (
            run_id      TEXT NOT NULL REFERENCES walkthrough_runs(id),
            step_index  INTEGER NOT NULL,
            step_id     TEXT NOT NULL,
            action      TEXT NOT NULL,
            target_text TEXT NOT NULL,
            status      TEXT NOT NULL,
            stage       TEXT NOT NULL,
            selector    TEXT NOT NULL,
            detail      TEXT NOT NULL,
            PRIMARY KEY (run_id, step_index)
        );
    `
	sqlLookupSelector = `
        SELECT selector FROM target_mappings WHERE target_key = $1;
    `
	sqlUpsertMapping = `
        INSERT INTO target_mappings (target_key, target_text, selector, updated_at)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (target_key) DO UPDATE SET
            target_text = EXCLUDED.target_text,
            selector = EXCLUDED.selector,
            updated_at = EXCLUDED.updated_at;
    `
	sqlInsertRun = `
        INSERT INTO walkthrough_runs (id, steps, page, started_at, finished_at)
        VALUES ($1, $2, $3, $4, $5);
    `
)

var outcomeColumns = []string{"run_id", "step_index", "step_id", "action", "target_text", "status", "stage", "selector", "detail"}

// Store persists target mappings and run reports in PostgreSQL.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

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

// Connect opens a pgx pool, retrying with exponential backoff until the
// database answers a ping or maxElapsed passes. A malformed URL fails at once.
func Connect(ctx context.Context, url string, maxElapsed time.Duration, logger *zap.Logger) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("invalid database url: %w", err)
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = maxElapsed
	b.MaxInterval = 5 * time.Second

	var pool *pgxpool.Pool
	operation := func() error {
		p, err := pgxpool.NewWithConfig(ctx, cfg)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create pool: %w", err))
		}
		if err := p.Ping(ctx); err != nil {
			p.Close()
			logger.Warn("Database not reachable yet, retrying", zap.Error(err))
			return err
		}
		pool = p
		return nil
	}
	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return pool, nil
}

// EnsureSchema creates the tables the store relies on.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, sqlCreateSchema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// LookupSelector returns the selector mapped to a target label. The label is
// normalized before lookup. found is false when no row matches.
func (s *Store) LookupSelector(ctx context.Context, targetText string) (selector string, found bool, err error) {
	key := textnorm.Normalize(targetText)
	if err := s.pool.QueryRow(ctx, sqlLookupSelector, key).Scan(&selector); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to look up selector for '%s': %w", key, err)
	}
	return selector, true, nil
}

// ImportMappings upserts every mapping in a single transaction and returns the
// number of rows written. Mappings without a target or selector are skipped.
func (s *Store) ImportMappings(ctx context.Context, mappings []schemas.TargetMapping) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	batch := &pgx.Batch{}
	now := time.Now().UTC()
	var queued []schemas.TargetMapping
	for _, m := range mappings {
		key := textnorm.Normalize(m.TargetText)
		if key == "" || m.Selector == "" {
			s.log.Warn("Skipping incomplete mapping", zap.String("target_text", m.TargetText))
			continue
		}
		batch.Queue(sqlUpsertMapping, key, m.TargetText, m.Selector, now)
		queued = append(queued, m)
	}
	if len(queued) == 0 {
		return 0, nil
	}

	br := tx.SendBatch(ctx, batch)
	if br == nil {
		return 0, fmt.Errorf("failed to send batch: batch results is nil")
	}
	for i := range queued {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return 0, fmt.Errorf("failed to upsert mapping '%s' (index %d): %w", queued[i].TargetText, i, err)
		}
	}
	if err := br.Close(); err != nil {
		return 0, fmt.Errorf("failed to close batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return len(queued), nil
}

// PersistRun stores a run report and its step outcomes in one transaction.
func (s *Store) PersistRun(ctx context.Context, report *schemas.RunReport) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	if _, err := tx.Exec(ctx, sqlInsertRun, report.RunID, report.Steps, report.Page,
		report.StartedAt.UTC(), report.FinishedAt.UTC()); err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	if len(report.Outcomes) > 0 {
		rows := make([][]interface{}, len(report.Outcomes))
		for i, o := range report.Outcomes {
			rows[i] = []interface{}{
				report.RunID, o.Index, o.StepID, o.Action, o.TargetText,
				o.Status, o.Stage, o.Selector, o.Detail,
			}
		}
		copied, err := tx.CopyFrom(ctx, pgx.Identifier{"step_outcomes"}, outcomeColumns, pgx.CopyFromRows(rows))
		if err != nil {
			return fmt.Errorf("failed to copy step outcomes: %w", err)
		}
		if int(copied) != len(rows) {
			return fmt.Errorf("mismatch in copied outcomes count: expected %d, got %d", len(rows), copied)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.log.Info("Persisted run report", zap.String("run_id", report.RunID), zap.Int("outcomes", len(report.Outcomes)))
	return nil
}
