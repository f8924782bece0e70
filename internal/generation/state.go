package generation

import (
	"errors"
	"time"

	"storygen-backend/internal/pipeline"
)

var (
	ErrNotFound = errors.New("generation state not found")
	// ErrInProgress means another pass holds the subject's gate.
	ErrInProgress = errors.New("generation already in progress")
	// ErrStaleLease means the pass lost its gate to a reset or a takeover.
	ErrStaleLease = errors.New("generation lease no longer held")
)

// State is the durable per-subject generation record.
type State struct {
	SubjectID        string
	Stage            pipeline.Stage
	InProgress       bool
	LeaseToken       string
	LastError        string
	ErrorCode        pipeline.Code
	RateLimitRetries int
	StartedAt        time.Time
	LastActivityAt   time.Time
	UpdatedAt        time.Time
}
