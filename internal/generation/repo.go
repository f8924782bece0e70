package generation

import (
	"context"
	"time"

	"storygen-backend/internal/pipeline"
)

// Repo persists generation state and stage artifacts. Every write made by a pass is
// conditioned on the lease token handed to Begin.
type Repo interface {
	Get(ctx context.Context, subjectID string) (State, error)
	// Begin atomically takes the subject's gate. It creates the state on first use, sets the
	// first stage when none is set, and fails with ErrInProgress while a gate whose last
	// activity is not before staleBefore is held.
	Begin(ctx context.Context, subjectID, lease string, now, staleBefore time.Time) (State, error)
	Artifacts(ctx context.Context, subjectID string) (map[pipeline.Stage]pipeline.Artifact, error)
	// CommitStage stores the artifact, moves to next, clears the error and the rate-limit count.
	// The gate stays held.
	CommitStage(ctx context.Context, subjectID, lease string, artifact pipeline.Artifact, next pipeline.Stage, now time.Time) error
	// Complete marks the subject done, purges artifacts and releases the gate.
	Complete(ctx context.Context, subjectID, lease string, now time.Time) error
	// Defer releases the gate for a deferred continuation and returns the new rate-limit count.
	Defer(ctx context.Context, subjectID, lease string, now time.Time) (int, error)
	// Fail records the failure and releases the gate.
	Fail(ctx context.Context, subjectID, lease string, code pipeline.Code, message string, now time.Time) error
	Release(ctx context.Context, subjectID, lease string, now time.Time) error
	// Reset deletes state and artifacts. Missing state is not an error.
	Reset(ctx context.Context, subjectID string) error
}
