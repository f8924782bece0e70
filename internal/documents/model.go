package documents

import (
	"errors"
	"time"

	"storygen-backend/internal/pipeline"
)

var (
	ErrNotFound   = errors.New("document not found")
	ErrIncomplete = errors.New("document requires every stage artifact")
)

// Section is one stage's contribution to the final document.
type Section struct {
	Stage   pipeline.Stage `json:"stage"`
	Title   string         `json:"title"`
	Text    string         `json:"text"`
	Display string         `json:"display"`
}

// Document is the assembled output of a completed pipeline.
type Document struct {
	SubjectID  string    `json:"subjectId"`
	Body       string    `json:"body"`
	Sections   []Section `json:"sections"`
	StorageKey string    `json:"-"`
	SizeBytes  int64     `json:"-"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Record is the metadata row kept for a stored document.
type Record struct {
	SubjectID  string
	StorageKey string
	SizeBytes  int64
	CreatedAt  time.Time
}
