package generation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storygen-backend/internal/pipeline"
	"storygen-backend/internal/subjects"
)

const (
	SnapshotComplete   = "complete"
	SnapshotNotStarted = "not_started"
	SnapshotInProgress = "in_progress"
	SnapshotError      = "error"
	SnapshotWaiting    = "waiting"
)

// StatusSnapshot is the read-only view served to pollers.
type StatusSnapshot struct {
	Status           string     `json:"status"`
	Progress         int        `json:"progress"`
	Stage            string     `json:"stage"`
	StageIndex       int        `json:"stageIndex"`
	StageLabel       string     `json:"stageLabel"`
	Message          string     `json:"message"`
	InProgress       bool       `json:"inProgress"`
	Error            string     `json:"error,omitempty"`
	ErrorCode        string     `json:"errorCode,omitempty"`
	StartedAt        *time.Time `json:"startedAt,omitempty"`
	LastActivityAt   *time.Time `json:"lastActivityAt,omitempty"`
	RateLimitRetries int        `json:"rateLimitRetries"`
}

// Status reports progress without side effects.
func (m *Machine) Status(ctx context.Context, subjectID string) (StatusSnapshot, error) {
	if err := subjects.ValidateID(subjectID); err != nil {
		return StatusSnapshot{}, err
	}
	state, err := m.Repo.Get(ctx, subjectID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return StatusSnapshot{}, fmt.Errorf("load generation state: %w", err)
	}
	if errors.Is(err, ErrNotFound) || state.Stage == pipeline.StageNone {
		exists, err := m.Documents.Exists(ctx, subjectID)
		if err != nil {
			return StatusSnapshot{}, fmt.Errorf("check document: %w", err)
		}
		if exists {
			return completeSnapshot(), nil
		}
		return StatusSnapshot{
			Status:  SnapshotNotStarted,
			Message: "Not started",
		}, nil
	}
	return snapshotOf(state), nil
}

func completeSnapshot() StatusSnapshot {
	return StatusSnapshot{
		Status:     SnapshotComplete,
		Progress:   pipeline.Progress(pipeline.StageDone),
		Stage:      string(pipeline.StageDone),
		StageIndex: pipeline.Index(pipeline.StageDone),
		StageLabel: pipeline.Label(pipeline.StageDone),
		Message:    "Generation complete",
	}
}

func snapshotOf(state State) StatusSnapshot {
	if pipeline.IsTerminal(state.Stage) {
		snap := completeSnapshot()
		snap.StartedAt = timePtr(state.StartedAt)
		snap.LastActivityAt = timePtr(state.LastActivityAt)
		return snap
	}
	label := pipeline.Label(state.Stage)
	snap := StatusSnapshot{
		Progress:         pipeline.Progress(state.Stage),
		Stage:            string(state.Stage),
		StageIndex:       pipeline.Index(state.Stage),
		StageLabel:       label,
		InProgress:       state.InProgress,
		StartedAt:        timePtr(state.StartedAt),
		LastActivityAt:   timePtr(state.LastActivityAt),
		RateLimitRetries: state.RateLimitRetries,
	}
	switch {
	case state.LastError != "" && !state.InProgress:
		snap.Status = SnapshotError
		snap.Error = state.LastError
		snap.ErrorCode = string(state.ErrorCode)
		snap.Message = fmt.Sprintf("Error during %s: %s", label, state.LastError)
	case state.InProgress:
		snap.Status = SnapshotInProgress
		snap.Message = fmt.Sprintf("Processing %s...", label)
	default:
		snap.Status = SnapshotWaiting
		snap.Message = fmt.Sprintf("Waiting to process %s", label)
	}
	return snap
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
