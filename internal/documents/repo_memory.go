package documents

import (
	"context"
	"sync"
)

// MemoryRepo is an in-memory implementation of Repo.
type MemoryRepo struct {
	mu   sync.RWMutex
	data map[string]Record
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{data: make(map[string]Record)}
}

// Put stores or overwrites the record for a subject.
func (r *MemoryRepo) Put(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data[rec.SubjectID] = rec
	return nil
}

// Get returns the record for a subject.
func (r *MemoryRepo) Get(ctx context.Context, subjectID string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.data[subjectID]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

// Delete removes the record. Missing records are not an error.
func (r *MemoryRepo) Delete(ctx context.Context, subjectID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.data, subjectID)
	return nil
}
