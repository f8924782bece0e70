package subjects

import "context"

// Repo persists subjects.
type Repo interface {
	Get(ctx context.Context, id string) (Subject, error)
	// Save inserts or replaces raw input and targets; CreatedAt is preserved on replace.
	// Implementations that can see generation state refuse the write with ErrLocked.
	Save(ctx context.Context, s Subject) (Subject, error)
}
