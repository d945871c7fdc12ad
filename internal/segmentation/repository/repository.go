// Package repository persists segmentation state in PostgreSQL: the internal
// user directory, batch run reports and per-rule observations.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"segmentation_backend/internal/segmentation/domain"
	"segmentation_backend/internal/segmentation/rules"
	"segmentation_backend/platform/apperr"
)

// ErrNotFound is wrapped by every not-found error this package returns.
var ErrNotFound = errors.New("not found")

const (
	userNotFoundMessage = "user not found"
	runNotFoundMessage  = "sync run not found"
)

const findUserByIDQuery = `
		SELECT id, name, email
		FROM users
		WHERE id = $1`

const insertRunQuery = `
		INSERT INTO segment_sync_runs (id, trigger, status, started_at)
		VALUES ($1, $2, $3, $4)`

const finishRunQuery = `
		UPDATE segment_sync_runs
		SET status = $2,
			finished_at = $3,
			users_total = $4,
			users_synced = $5,
			users_skipped = $6,
			users_failed = $7,
			error = $8,
			archive_key = $9
		WHERE id = $1`

const getRunQuery = `
		SELECT id, trigger, status, started_at, finished_at,
			users_total, users_synced, users_skipped, users_failed, error, archive_key
		FROM segment_sync_runs
		WHERE id = $1`

const listRunResultsQuery = `
		SELECT pass, user_id, email, state, segments, errors
		FROM segment_sync_run_results
		WHERE run_id = $1
		ORDER BY pass, user_id`

const deleteFinishedRunsBeforeQuery = `
		DELETE FROM segment_sync_runs
		WHERE status <> 'running'
			AND finished_at IS NOT NULL
			AND finished_at < $1`

const lastObservationQuery = `
		SELECT last_value
		FROM segment_rule_observations
		WHERE user_id = $1 AND rule_key = $2`

const recordObservationQuery = `
		INSERT INTO segment_rule_observations (user_id, rule_key, last_value, observed_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, rule_key)
		DO UPDATE SET last_value = EXCLUDED.last_value, observed_at = EXCLUDED.observed_at`

var runResultColumns = []string{"run_id", "pass", "user_id", "email", "state", "segments", "errors"}

// Repo implements the segmentation repository.
type Repo struct {
	pool *pgxpool.Pool
}

// New creates a new segmentation repository.
func New(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

// Compile-time check that Repo can back rule observations.
var _ rules.ObservationStore = (*Repo)(nil)

// FindUserByID looks a user up in the internal user table.
func (r *Repo) FindUserByID(ctx context.Context, userID string) (domain.UserIdentity, error) {
	var id, name, email string
	if err := r.pool.QueryRow(ctx, findUserByIDQuery, userID).Scan(&id, &name, &email); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.UserIdentity{}, apperr.Wrap(apperr.KindNotFound, userNotFoundMessage, ErrNotFound)
		}
		return domain.UserIdentity{}, fmt.Errorf("find user by id: %w", err)
	}
	return domain.UserIdentity{UserID: id, Name: name, Email: domain.NormalizeEmail(email)}, nil
}

// CreateRun records the start of a batch run.
func (r *Repo) CreateRun(ctx context.Context, run RunRecord) error {
	if _, err := r.pool.Exec(ctx, insertRunQuery, run.ID, run.Trigger, run.Status, run.StartedAt); err != nil {
		return fmt.Errorf("create sync run: %w", err)
	}
	return nil
}

// FinishRun stores the run outcome and its per-user results in one transaction.
func (r *Repo) FinishRun(ctx context.Context, run RunRecord, results []ResultRecord) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin finish sync run: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, finishRunQuery,
		run.ID,
		run.Status,
		run.FinishedAt,
		run.UsersTotal,
		run.UsersSynced,
		run.UsersSkipped,
		run.UsersFailed,
		run.Error,
		run.ArchiveKey,
	)
	if err != nil {
		return fmt.Errorf("finish sync run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.Wrap(apperr.KindNotFound, runNotFoundMessage, ErrNotFound)
	}

	if len(results) > 0 {
		rows := make([][]any, 0, len(results))
		for _, res := range results {
			rows = append(rows, []any{run.ID, res.Pass, res.UserID, res.Email, res.State, nonNilInts(res.Segments), nonNilStrings(res.Errors)})
		}
		if _, err := tx.CopyFrom(ctx, pgx.Identifier{"segment_sync_run_results"}, runResultColumns, pgx.CopyFromRows(rows)); err != nil {
			return fmt.Errorf("insert sync run results: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit finish sync run: %w", err)
	}
	return nil
}

// GetRun loads a run and its results.
func (r *Repo) GetRun(ctx context.Context, id uuid.UUID) (RunRecord, []ResultRecord, error) {
	var run RunRecord
	if err := r.pool.QueryRow(ctx, getRunQuery, id).Scan(
		&run.ID,
		&run.Trigger,
		&run.Status,
		&run.StartedAt,
		&run.FinishedAt,
		&run.UsersTotal,
		&run.UsersSynced,
		&run.UsersSkipped,
		&run.UsersFailed,
		&run.Error,
		&run.ArchiveKey,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return RunRecord{}, nil, apperr.Wrap(apperr.KindNotFound, runNotFoundMessage, ErrNotFound)
		}
		return RunRecord{}, nil, fmt.Errorf("get sync run: %w", err)
	}

	rows, err := r.pool.Query(ctx, listRunResultsQuery, id)
	if err != nil {
		return RunRecord{}, nil, fmt.Errorf("list sync run results: %w", err)
	}
	results, err := pgx.CollectRows(rows, pgx.RowToStructByName[ResultRecord])
	if err != nil {
		return RunRecord{}, nil, fmt.Errorf("scan sync run results: %w", err)
	}
	return run, results, nil
}

// DeleteFinishedRunsBefore removes finished runs older than before. Results
// go with them through the foreign key cascade.
func (r *Repo) DeleteFinishedRunsBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, deleteFinishedRunsBeforeQuery, before)
	if err != nil {
		return 0, fmt.Errorf("delete finished sync runs: %w", err)
	}
	return tag.RowsAffected(), nil
}

// LastObservation returns the last value recorded for (user, key).
func (r *Repo) LastObservation(ctx context.Context, userID, key string) (float64, bool, error) {
	var value float64
	if err := r.pool.QueryRow(ctx, lastObservationQuery, userID, key).Scan(&value); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("get rule observation: %w", err)
	}
	return value, true, nil
}

// RecordObservation upserts the value seen for (user, key).
func (r *Repo) RecordObservation(ctx context.Context, userID, key string, value float64, observedAt time.Time) error {
	if _, err := r.pool.Exec(ctx, recordObservationQuery, userID, key, value, observedAt); err != nil {
		return fmt.Errorf("record rule observation: %w", err)
	}
	return nil
}

func nonNilInts(values []int32) []int32 {
	if values == nil {
		return []int32{}
	}
	return values
}

func nonNilStrings(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
