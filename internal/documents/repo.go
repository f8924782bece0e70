package documents

import "context"

// Repo persists document metadata.
type Repo interface {
	Put(ctx context.Context, rec Record) error
	Get(ctx context.Context, subjectID string) (Record, error)
	Delete(ctx context.Context, subjectID string) error
}
