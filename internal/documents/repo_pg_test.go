package documents

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestPGRepoPutUpserts(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	rec := Record{SubjectID: "subject-1", StorageKey: StorageKey("subject-1"), SizeBytes: 42, CreatedAt: time.Now().UTC()}
	mock.ExpectExec("INSERT INTO final_documents").
		WithArgs(rec.SubjectID, rec.StorageKey, rec.SizeBytes, rec.CreatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := (&PGRepo{DB: db}).Put(context.Background(), rec); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoGetNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	mock.ExpectQuery("SELECT subject_id, storage_key").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"subject_id", "storage_key", "size_bytes", "created_at"}))

	if _, err := (&PGRepo{DB: db}).Get(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPGRepoDelete(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	mock.ExpectExec("DELETE FROM final_documents").
		WithArgs("subject-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := (&PGRepo{DB: db}).Delete(context.Background(), "subject-1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
}
