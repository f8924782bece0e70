package documents

import (
	"context"
	"database/sql"
	"errors"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

// Put upserts the metadata row.
func (r *PGRepo) Put(ctx context.Context, rec Record) error {
	const query = `
INSERT INTO final_documents (subject_id, storage_key, size_bytes, created_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (subject_id) DO UPDATE
SET storage_key = EXCLUDED.storage_key,
    size_bytes = EXCLUDED.size_bytes,
    created_at = EXCLUDED.created_at`

	_, err := r.DB.ExecContext(ctx, query, rec.SubjectID, rec.StorageKey, rec.SizeBytes, rec.CreatedAt)
	return err
}

// Get returns the metadata row for a subject.
func (r *PGRepo) Get(ctx context.Context, subjectID string) (Record, error) {
	const query = `
SELECT subject_id, storage_key, size_bytes, created_at
FROM final_documents
WHERE subject_id = $1`

	var rec Record
	err := r.DB.QueryRowContext(ctx, query, subjectID).Scan(&rec.SubjectID, &rec.StorageKey, &rec.SizeBytes, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, err
	}
	return rec, nil
}

// Delete removes the metadata row.
func (r *PGRepo) Delete(ctx context.Context, subjectID string) error {
	_, err := r.DB.ExecContext(ctx, `DELETE FROM final_documents WHERE subject_id = $1`, subjectID)
	return err
}
