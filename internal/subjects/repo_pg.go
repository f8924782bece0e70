package subjects

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"storygen-backend/internal/pipeline"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

// Get returns a subject by id.
func (r *PGRepo) Get(ctx context.Context, id string) (Subject, error) {
	const query = `
SELECT id, raw_input, target_list, created_at, updated_at
FROM subjects
WHERE id = $1`

	var s Subject
	var rawInput, targets []byte
	err := r.DB.QueryRowContext(ctx, query, id).Scan(&s.ID, &rawInput, &targets, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Subject{}, ErrNotFound
		}
		return Subject{}, err
	}
	s.RawInput = pipeline.RawInput{}
	if len(rawInput) > 0 {
		if err := json.Unmarshal(rawInput, &s.RawInput); err != nil {
			return Subject{}, fmt.Errorf("decode raw_input: %w", err)
		}
	}
	if len(targets) > 0 {
		if err := json.Unmarshal(targets, &s.Targets); err != nil {
			return Subject{}, fmt.Errorf("decode target_list: %w", err)
		}
	}
	return s, nil
}

// Save upserts the subject unless generation state or a final document exists for it,
// in which case it returns ErrLocked. The guard and the write are one statement.
func (r *PGRepo) Save(ctx context.Context, s Subject) (Subject, error) {
	const query = `
INSERT INTO subjects (id, raw_input, target_list, created_at, updated_at)
SELECT $1, $2::jsonb, $3::jsonb, $4::timestamptz, $5::timestamptz
WHERE NOT EXISTS (SELECT 1 FROM generation_states WHERE subject_id = $1 AND stage <> '')
  AND NOT EXISTS (SELECT 1 FROM final_documents WHERE subject_id = $1)
ON CONFLICT (id) DO UPDATE
SET raw_input = EXCLUDED.raw_input,
    target_list = EXCLUDED.target_list,
    updated_at = EXCLUDED.updated_at
RETURNING created_at`

	rawInput, err := json.Marshal(s.RawInput)
	if err != nil {
		return Subject{}, err
	}
	targets := s.Targets
	if targets == nil {
		targets = []string{}
	}
	targetJSON, err := json.Marshal(targets)
	if err != nil {
		return Subject{}, err
	}
	if err := r.DB.QueryRowContext(ctx, query, s.ID, string(rawInput), string(targetJSON), s.CreatedAt, s.UpdatedAt).Scan(&s.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Subject{}, ErrLocked
		}
		return Subject{}, err
	}
	return s, nil
}
