package subjects

import (
	"context"
	"sync"
)

// MemoryRepo is an in-memory implementation of Repo.
type MemoryRepo struct {
	mu   sync.RWMutex
	data map[string]Subject
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{data: make(map[string]Subject)}
}

// Get returns a subject by id.
func (r *MemoryRepo) Get(ctx context.Context, id string) (Subject, error) {
	if err := ctx.Err(); err != nil {
		return Subject{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.data[id]
	if !ok {
		return Subject{}, ErrNotFound
	}
	return s, nil
}

// Save stores the subject.
func (r *MemoryRepo) Save(ctx context.Context, s Subject) (Subject, error) {
	if err := ctx.Err(); err != nil {
		return Subject{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.data[s.ID]; ok {
		s.CreatedAt = existing.CreatedAt
	}
	r.data[s.ID] = s
	return s, nil
}
