package generation

import (
	"context"
	"sync"
	"time"

	"storygen-backend/internal/pipeline"
)

// MemoryRepo is an in-memory implementation of Repo. The gate is only exclusive within one process.
type MemoryRepo struct {
	mu        sync.Mutex
	states    map[string]State
	artifacts map[string]map[pipeline.Stage]pipeline.Artifact
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		states:    make(map[string]State),
		artifacts: make(map[string]map[pipeline.Stage]pipeline.Artifact),
	}
}

// Get returns the state for a subject.
func (r *MemoryRepo) Get(ctx context.Context, subjectID string) (State, error) {
	if err := ctx.Err(); err != nil {
		return State{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.states[subjectID]
	if !ok {
		return State{}, ErrNotFound
	}
	return st, nil
}

// Begin takes the gate.
func (r *MemoryRepo) Begin(ctx context.Context, subjectID, lease string, now, staleBefore time.Time) (State, error) {
	if err := ctx.Err(); err != nil {
		return State{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.states[subjectID]
	if ok && st.InProgress && !st.LastActivityAt.Before(staleBefore) {
		return State{}, ErrInProgress
	}
	if !ok {
		st = State{SubjectID: subjectID}
	}
	if st.Stage == pipeline.StageNone {
		st.Stage = pipeline.First()
		st.StartedAt = now
	}
	st.InProgress = true
	st.LeaseToken = lease
	st.LastActivityAt = now
	st.UpdatedAt = now
	r.states[subjectID] = st
	return st, nil
}

// Artifacts returns a copy of the stored artifacts.
func (r *MemoryRepo) Artifacts(ctx context.Context, subjectID string) (map[pipeline.Stage]pipeline.Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[pipeline.Stage]pipeline.Artifact, len(r.artifacts[subjectID]))
	for k, v := range r.artifacts[subjectID] {
		out[k] = v
	}
	return out, nil
}

// CommitStage stores the artifact and moves the stage.
func (r *MemoryRepo) CommitStage(ctx context.Context, subjectID, lease string, artifact pipeline.Artifact, next pipeline.Stage, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	st, err := r.heldLocked(subjectID, lease)
	if err != nil {
		return err
	}
	if r.artifacts[subjectID] == nil {
		r.artifacts[subjectID] = make(map[pipeline.Stage]pipeline.Artifact)
	}
	r.artifacts[subjectID][artifact.Stage] = artifact
	st.Stage = next
	st.LastError = ""
	st.ErrorCode = ""
	st.RateLimitRetries = 0
	st.LastActivityAt = now
	st.UpdatedAt = now
	r.states[subjectID] = st
	return nil
}

// Complete marks the subject done.
func (r *MemoryRepo) Complete(ctx context.Context, subjectID, lease string, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	st, err := r.heldLocked(subjectID, lease)
	if err != nil {
		return err
	}
	delete(r.artifacts, subjectID)
	st.Stage = pipeline.StageDone
	st.InProgress = false
	st.LeaseToken = ""
	st.LastError = ""
	st.ErrorCode = ""
	st.RateLimitRetries = 0
	st.LastActivityAt = now
	st.UpdatedAt = now
	r.states[subjectID] = st
	return nil
}

// Defer releases the gate and counts a rate-limit retry.
func (r *MemoryRepo) Defer(ctx context.Context, subjectID, lease string, now time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	st, err := r.heldLocked(subjectID, lease)
	if err != nil {
		return 0, err
	}
	st.InProgress = false
	st.RateLimitRetries++
	st.LastActivityAt = now
	st.UpdatedAt = now
	r.states[subjectID] = st
	return st.RateLimitRetries, nil
}

// Fail records a failure and releases the gate.
func (r *MemoryRepo) Fail(ctx context.Context, subjectID, lease string, code pipeline.Code, message string, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	st, err := r.leasedLocked(subjectID, lease)
	if err != nil {
		return err
	}
	st.InProgress = false
	st.LeaseToken = ""
	st.LastError = message
	st.ErrorCode = code
	st.LastActivityAt = now
	st.UpdatedAt = now
	r.states[subjectID] = st
	return nil
}

// Release clears the gate without other changes.
func (r *MemoryRepo) Release(ctx context.Context, subjectID, lease string, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	st, err := r.leasedLocked(subjectID, lease)
	if err != nil {
		return err
	}
	st.InProgress = false
	st.LeaseToken = ""
	st.UpdatedAt = now
	r.states[subjectID] = st
	return nil
}

// Reset deletes state and artifacts.
func (r *MemoryRepo) Reset(ctx context.Context, subjectID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.states, subjectID)
	delete(r.artifacts, subjectID)
	return nil
}

func (r *MemoryRepo) leasedLocked(subjectID, lease string) (State, error) {
	st, ok := r.states[subjectID]
	if !ok || lease == "" || st.LeaseToken != lease {
		return State{}, ErrStaleLease
	}
	return st, nil
}

func (r *MemoryRepo) heldLocked(subjectID, lease string) (State, error) {
	st, err := r.leasedLocked(subjectID, lease)
	if err != nil {
		return State{}, err
	}
	if !st.InProgress {
		return State{}, ErrStaleLease
	}
	return st, nil
}
