package subjects

import (
	"errors"
	"time"

	"storygen-backend/internal/pipeline"
)

var (
	ErrNotFound     = errors.New("subject not found")
	ErrInvalidInput = errors.New("invalid subject input")
	// ErrLocked means generation has started and the raw input can no longer change.
	ErrLocked = errors.New("subject input is locked while generation exists")
)

// Subject is the entity a document is generated for.
type Subject struct {
	ID        string
	RawInput  pipeline.RawInput
	Targets   []string
	CreatedAt time.Time
	UpdatedAt time.Time
}
