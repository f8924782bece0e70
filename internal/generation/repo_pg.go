package generation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"storygen-backend/internal/pipeline"
)

// PGRepo implements Repo using Postgres. The gate is a conditional upsert, so it holds across processes.
type PGRepo struct {
	DB *sql.DB
}

const stateColumns = `subject_id, stage, in_progress, lease_token, last_error, error_code, rate_limit_retries, started_at, last_activity_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanState(row rowScanner) (State, error) {
	var st State
	var stage string
	var lastError, errorCode sql.NullString
	var startedAt, lastActivityAt sql.NullTime
	if err := row.Scan(
		&st.SubjectID,
		&stage,
		&st.InProgress,
		&st.LeaseToken,
		&lastError,
		&errorCode,
		&st.RateLimitRetries,
		&startedAt,
		&lastActivityAt,
		&st.UpdatedAt,
	); err != nil {
		return State{}, err
	}
	st.Stage = pipeline.Stage(stage)
	if lastError.Valid {
		st.LastError = lastError.String
	}
	if errorCode.Valid {
		st.ErrorCode = pipeline.Code(errorCode.String)
	}
	if startedAt.Valid {
		st.StartedAt = startedAt.Time
	}
	if lastActivityAt.Valid {
		st.LastActivityAt = lastActivityAt.Time
	}
	return st, nil
}

// Get returns the state for a subject.
func (r *PGRepo) Get(ctx context.Context, subjectID string) (State, error) {
	query := `SELECT ` + stateColumns + ` FROM generation_states WHERE subject_id = $1`
	st, err := scanState(r.DB.QueryRowContext(ctx, query, subjectID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return State{}, ErrNotFound
		}
		return State{}, err
	}
	return st, nil
}

// Begin takes the gate with a single conditional upsert.
func (r *PGRepo) Begin(ctx context.Context, subjectID, lease string, now, staleBefore time.Time) (State, error) {
	query := `
INSERT INTO generation_states (subject_id, stage, in_progress, lease_token, started_at, last_activity_at, updated_at)
VALUES ($1, $2, true, $3, $4, $4, $4)
ON CONFLICT (subject_id) DO UPDATE
SET in_progress = true,
    lease_token = EXCLUDED.lease_token,
    stage = CASE WHEN generation_states.stage = '' THEN EXCLUDED.stage ELSE generation_states.stage END,
    started_at = CASE WHEN generation_states.stage = '' THEN EXCLUDED.started_at ELSE generation_states.started_at END,
    last_activity_at = EXCLUDED.last_activity_at,
    updated_at = EXCLUDED.updated_at
WHERE NOT generation_states.in_progress OR generation_states.last_activity_at < $5
RETURNING ` + stateColumns

	st, err := scanState(r.DB.QueryRowContext(ctx, query, subjectID, string(pipeline.First()), lease, now, staleBefore))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return State{}, ErrInProgress
		}
		return State{}, err
	}
	return st, nil
}

// Artifacts returns the stored artifacts for a subject.
func (r *PGRepo) Artifacts(ctx context.Context, subjectID string) (map[pipeline.Stage]pipeline.Artifact, error) {
	const query = `
SELECT stage, text, display, created_at
FROM generation_artifacts
WHERE subject_id = $1`

	rows, err := r.DB.QueryContext(ctx, query, subjectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[pipeline.Stage]pipeline.Artifact)
	for rows.Next() {
		var a pipeline.Artifact
		var stage string
		if err := rows.Scan(&stage, &a.Text, &a.Display, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.Stage = pipeline.Stage(stage)
		out[a.Stage] = a
	}
	return out, rows.Err()
}

// CommitStage stores the artifact and moves the stage in one transaction.
func (r *PGRepo) CommitStage(ctx context.Context, subjectID, lease string, artifact pipeline.Artifact, next pipeline.Stage, now time.Time) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		const update = `
UPDATE generation_states
SET stage = $3,
    last_error = NULL,
    error_code = NULL,
    rate_limit_retries = 0,
    last_activity_at = $4,
    updated_at = $4
WHERE subject_id = $1 AND lease_token = $2 AND in_progress`
		if err := expectOne(tx.ExecContext(ctx, update, subjectID, lease, string(next), now)); err != nil {
			return err
		}

		const insert = `
INSERT INTO generation_artifacts (subject_id, stage, text, display, created_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (subject_id, stage) DO UPDATE
SET text = EXCLUDED.text,
    display = EXCLUDED.display,
    created_at = EXCLUDED.created_at`
		_, err := tx.ExecContext(ctx, insert, subjectID, string(artifact.Stage), artifact.Text, artifact.Display, artifact.CreatedAt)
		return err
	})
}

// Complete marks the subject done and purges its artifacts.
func (r *PGRepo) Complete(ctx context.Context, subjectID, lease string, now time.Time) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		const update = `
UPDATE generation_states
SET stage = $3,
    in_progress = false,
    lease_token = '',
    last_error = NULL,
    error_code = NULL,
    rate_limit_retries = 0,
    last_activity_at = $4,
    updated_at = $4
WHERE subject_id = $1 AND lease_token = $2 AND in_progress`
		if err := expectOne(tx.ExecContext(ctx, update, subjectID, lease, string(pipeline.StageDone), now)); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `DELETE FROM generation_artifacts WHERE subject_id = $1`, subjectID)
		return err
	})
}

// Defer releases the gate and counts a rate-limit retry.
func (r *PGRepo) Defer(ctx context.Context, subjectID, lease string, now time.Time) (int, error) {
	const query = `
UPDATE generation_states
SET in_progress = false,
    rate_limit_retries = rate_limit_retries + 1,
    last_activity_at = $3,
    updated_at = $3
WHERE subject_id = $1 AND lease_token = $2 AND in_progress
RETURNING rate_limit_retries`

	var retries int
	if err := r.DB.QueryRowContext(ctx, query, subjectID, lease, now).Scan(&retries); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrStaleLease
		}
		return 0, err
	}
	return retries, nil
}

// Fail records a failure and releases the gate.
func (r *PGRepo) Fail(ctx context.Context, subjectID, lease string, code pipeline.Code, message string, now time.Time) error {
	const query = `
UPDATE generation_states
SET in_progress = false,
    lease_token = '',
    last_error = $3,
    error_code = $4,
    last_activity_at = $5,
    updated_at = $5
WHERE subject_id = $1 AND lease_token = $2`
	return expectOne(r.DB.ExecContext(ctx, query, subjectID, lease, message, string(code), now))
}

// Release clears the gate.
func (r *PGRepo) Release(ctx context.Context, subjectID, lease string, now time.Time) error {
	const query = `
UPDATE generation_states
SET in_progress = false,
    lease_token = '',
    updated_at = $3
WHERE subject_id = $1 AND lease_token = $2`
	return expectOne(r.DB.ExecContext(ctx, query, subjectID, lease, now))
}

// Reset deletes the state row; artifacts cascade.
func (r *PGRepo) Reset(ctx context.Context, subjectID string) error {
	_, err := r.DB.ExecContext(ctx, `DELETE FROM generation_states WHERE subject_id = $1`, subjectID)
	return err
}

func (r *PGRepo) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func expectOne(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrStaleLease
	}
	return nil
}
