// Package generation owns the per-subject state machine that walks a subject through the
// pipeline stages, defers on upstream rate limits and records failures.
package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"storygen-backend/internal/documents"
	"storygen-backend/internal/pipeline"
	"storygen-backend/internal/shared/metrics"
	"storygen-backend/internal/shared/telemetry"
	"storygen-backend/internal/shared/util"
	"storygen-backend/internal/subjects"
)

// DefaultLeaseStaleAfter is how long a held gate may go without activity before a new pass may take it.
const DefaultLeaseStaleAfter = 15 * time.Minute

// Scheduler arranges a later Advance for a subject. Delivery may repeat; the gate absorbs duplicates.
type Scheduler interface {
	Schedule(ctx context.Context, delay time.Duration, subjectID string) error
}

// Processor runs one stage.
type Processor interface {
	Process(ctx context.Context, stage pipeline.Stage, in pipeline.Input) pipeline.Result
}

// SubjectSource loads the raw input and targets of a subject.
type SubjectSource interface {
	Get(ctx context.Context, id string) (subjects.Subject, error)
}

// DocumentStore persists final documents.
type DocumentStore interface {
	Put(ctx context.Context, doc documents.Document) (documents.Document, error)
	Exists(ctx context.Context, subjectID string) (bool, error)
	Delete(ctx context.Context, subjectID string) error
}

// Settings tune the machine.
type Settings struct {
	// MaxRateLimitRetries caps consecutive deferrals of one stage. Zero means unbounded.
	MaxRateLimitRetries int
	LeaseStaleAfter     time.Duration
}

// Status is the kind of an Outcome.
type Status string

const (
	StatusReady      Status = "ready"
	StatusInProgress Status = "in_progress"
	StatusScheduled  Status = "scheduled"
	StatusError      Status = "error"
)

// Outcome is the result of one Advance call.
type Outcome struct {
	Status  Status
	Stage   pipeline.Stage
	Wait    time.Duration
	Code    pipeline.Code
	Message string
}

// Machine drives subjects through the pipeline.
type Machine struct {
	Repo       Repo
	Subjects   SubjectSource
	Processors Processor
	Documents  DocumentStore
	Scheduler  Scheduler
	Settings   Settings

	now      func() time.Time
	newLease func() string
}

// NewMachine constructs a Machine.
func NewMachine(repo Repo, subjectSrc SubjectSource, processors Processor, docs DocumentStore, scheduler Scheduler, settings Settings) *Machine {
	if settings.LeaseStaleAfter <= 0 {
		settings.LeaseStaleAfter = DefaultLeaseStaleAfter
	}
	if settings.MaxRateLimitRetries < 0 {
		settings.MaxRateLimitRetries = 0
	}
	return &Machine{
		Repo:       repo,
		Subjects:   subjectSrc,
		Processors: processors,
		Documents:  docs,
		Scheduler:  scheduler,
		Settings:   settings,
		now:        func() time.Time { return time.Now().UTC() },
		newLease:   uuid.NewString,
	}
}

type pass struct {
	subjectID string
	lease     string
	fields    map[string]any
}

// Advance runs stages back to back until the pipeline completes, a stage is rate limited or a
// stage fails. A call made while another pass holds the gate returns StatusInProgress and
// changes nothing. A subject with a recorded failure stays failed until Reset.
func (m *Machine) Advance(ctx context.Context, subjectID string) (Outcome, error) {
	if err := subjects.ValidateID(subjectID); err != nil {
		return Outcome{}, err
	}

	state, err := m.Repo.Get(ctx, subjectID)
	switch {
	case err == nil:
		if out, done := settled(state); done {
			return out, nil
		}
	case errors.Is(err, ErrNotFound):
	default:
		return Outcome{}, fmt.Errorf("load generation state: %w", err)
	}
	if state.Stage == pipeline.StageNone {
		exists, err := m.Documents.Exists(ctx, subjectID)
		if err != nil {
			return Outcome{}, fmt.Errorf("check document: %w", err)
		}
		if exists {
			return Outcome{Status: StatusReady, Stage: pipeline.StageDone}, nil
		}
	}

	subject, err := m.Subjects.Get(ctx, subjectID)
	if err != nil && !errors.Is(err, subjects.ErrNotFound) {
		return Outcome{}, fmt.Errorf("load subject: %w", err)
	}
	if err != nil || subject.RawInput.Empty() {
		return Outcome{Status: StatusError, Code: pipeline.CodeMissingInput, Message: "subject has no raw input"}, nil
	}

	p := pass{subjectID: subjectID, lease: m.newLease()}
	state, err = m.Repo.Begin(ctx, subjectID, p.lease, m.now(), m.now().Add(-m.Settings.LeaseStaleAfter))
	if err != nil {
		if errors.Is(err, ErrInProgress) {
			metrics.IncPassRejected()
			telemetry.Info("generation.pass.rejected", map[string]any{"subject_id": subjectID})
			return Outcome{Status: StatusInProgress, Stage: state.Stage}, nil
		}
		return Outcome{}, fmt.Errorf("begin pass: %w", err)
	}
	p.fields = map[string]any{"subject_id": subjectID, "lease": p.lease}
	metrics.IncPassStarted()
	telemetry.Info("generation.pass.started", telemetry.Merge(p.fields, map[string]any{"stage": string(state.Stage)}))

	// Bookkeeping writes must land even if the caller goes away mid-pass.
	bg := context.WithoutCancel(ctx)

	if out, done := settled(state); done {
		m.release(bg, p)
		return out, nil
	}

	// Input saved before the gate was taken is the input this pass runs on.
	subject, err = m.Subjects.Get(ctx, subjectID)
	if err != nil || subject.RawInput.Empty() {
		if err == nil || errors.Is(err, subjects.ErrNotFound) {
			return m.fail(bg, p, state.Stage, pipeline.CodeMissingInput, errors.New("subject has no raw input")), nil
		}
		return m.fail(bg, p, state.Stage, pipeline.CodeStorageError, fmt.Errorf("load subject: %w", err)), nil
	}

	artifacts, err := m.Repo.Artifacts(ctx, subjectID)
	if err != nil {
		return m.fail(bg, p, state.Stage, pipeline.CodeStorageError, fmt.Errorf("load artifacts: %w", err)), nil
	}

	retries := state.RateLimitRetries
	bound := len(pipeline.Stages()) + 1
	for i := 0; i < bound; i++ {
		stage := state.Stage
		if !pipeline.Valid(stage) || pipeline.IsTerminal(stage) {
			return m.fail(bg, p, stage, pipeline.CodeInternalError, fmt.Errorf("cannot process stage %q", stage)), nil
		}

		res := m.Processors.Process(ctx, stage, pipeline.Input{
			SubjectID: subjectID,
			RawInput:  subject.RawInput,
			Targets:   subject.Targets,
			Artifacts: artifacts,
		})

		switch res.Kind {
		case pipeline.KindSuccess:
			metrics.IncStageCompleted(string(stage))
			artifacts[stage] = res.Artifact
			next := pipeline.Next(stage)
			if pipeline.IsTerminal(next) {
				return m.finish(bg, p, artifacts), nil
			}
			if err := m.Repo.CommitStage(bg, subjectID, p.lease, res.Artifact, next, m.now()); err != nil {
				if errors.Is(err, ErrStaleLease) {
					return m.lost(p, stage), nil
				}
				return m.fail(bg, p, stage, pipeline.CodeStorageError, fmt.Errorf("commit %s: %w", stage, err)), nil
			}
			telemetry.Info("generation.stage.completed", telemetry.Merge(p.fields, map[string]any{
				"stage": string(stage),
				"next":  string(next),
			}))
			state.Stage = next
			retries = 0

		case pipeline.KindRateLimited:
			metrics.IncRateLimited(string(stage))
			if m.Settings.MaxRateLimitRetries > 0 && retries+1 > m.Settings.MaxRateLimitRetries {
				return m.fail(bg, p, stage, pipeline.CodeRateLimitExhausted,
					fmt.Errorf("rate limited %d times: %v", retries+1, res.Err)), nil
			}
			return m.deferStage(bg, p, stage, res), nil

		default:
			code := res.Code
			if code == "" {
				code = pipeline.CodeInternalError
			}
			err := res.Err
			if err == nil {
				err = errors.New("stage failed")
			}
			return m.fail(bg, p, stage, code, err), nil
		}
	}
	return m.fail(bg, p, state.Stage, pipeline.CodeInternalError, errors.New("pass exceeded stage bound")), nil
}

// settled maps a state that needs no work to its outcome.
func settled(state State) (Outcome, bool) {
	if pipeline.IsTerminal(state.Stage) {
		return Outcome{Status: StatusReady, Stage: pipeline.StageDone}, true
	}
	if state.LastError != "" {
		code := state.ErrorCode
		if code == "" {
			code = pipeline.CodeInternalError
		}
		return Outcome{Status: StatusError, Stage: state.Stage, Code: code, Message: state.LastError}, true
	}
	return Outcome{}, false
}

func (m *Machine) finish(ctx context.Context, p pass, artifacts map[pipeline.Stage]pipeline.Artifact) Outcome {
	last := pipeline.WorkStages()[len(pipeline.WorkStages())-1]
	doc, err := documents.Assemble(p.subjectID, artifacts, m.now())
	if err != nil {
		return m.fail(ctx, p, last, pipeline.CodeInternalError, err)
	}
	stored, err := m.Documents.Put(ctx, doc)
	if err != nil {
		return m.fail(ctx, p, last, pipeline.CodeStorageError, err)
	}
	if err := m.Repo.Complete(ctx, p.subjectID, p.lease, m.now()); err != nil {
		if errors.Is(err, ErrStaleLease) {
			// A reset while the document was written leaves no state; drop the orphan.
			if _, getErr := m.Repo.Get(ctx, p.subjectID); errors.Is(getErr, ErrNotFound) {
				if delErr := m.Documents.Delete(ctx, p.subjectID); delErr != nil {
					telemetry.Error("generation.document.orphaned", telemetry.Merge(p.fields, map[string]any{"error": delErr}))
				}
			}
			return m.lost(p, last)
		}
		return m.fail(ctx, p, last, pipeline.CodeStorageError, err)
	}
	metrics.IncDocumentCompleted()
	telemetry.Info("generation.completed", telemetry.Merge(p.fields, map[string]any{
		"size_bytes":  stored.SizeBytes,
		"storage_key": stored.StorageKey,
	}))
	return Outcome{Status: StatusReady, Stage: pipeline.StageDone}
}

func (m *Machine) deferStage(ctx context.Context, p pass, stage pipeline.Stage, res pipeline.Result) Outcome {
	count, err := m.Repo.Defer(ctx, p.subjectID, p.lease, m.now())
	if err != nil {
		if errors.Is(err, ErrStaleLease) {
			return m.lost(p, stage)
		}
		return m.fail(ctx, p, stage, pipeline.CodeStorageError, fmt.Errorf("defer %s: %w", stage, err))
	}
	if err := m.Scheduler.Schedule(ctx, res.Wait, p.subjectID); err != nil {
		return m.fail(ctx, p, stage, pipeline.CodeScheduleFailed, fmt.Errorf("schedule continuation: %w", err))
	}
	telemetry.Warn("generation.stage.rate_limited", telemetry.Merge(p.fields, map[string]any{
		"stage":        string(stage),
		"wait_seconds": res.Wait.Seconds(),
		"retries":      count,
		"error":        res.Err,
	}))
	return Outcome{Status: StatusScheduled, Stage: stage, Wait: res.Wait, Code: pipeline.CodeRateLimited}
}

func (m *Machine) fail(ctx context.Context, p pass, stage pipeline.Stage, code pipeline.Code, cause error) Outcome {
	msg := util.SanitizeMessage(cause.Error(), util.DefaultMessageLimit)
	metrics.IncFailure(string(code))
	telemetry.Error("generation.stage.failed", telemetry.Merge(p.fields, map[string]any{
		"stage": string(stage),
		"code":  string(code),
		"error": msg,
	}))
	if err := m.Repo.Fail(ctx, p.subjectID, p.lease, code, msg, m.now()); err != nil {
		if errors.Is(err, ErrStaleLease) {
			return m.lost(p, stage)
		}
		telemetry.Error("generation.fail.unrecorded", telemetry.Merge(p.fields, map[string]any{"error": err}))
	}
	return Outcome{Status: StatusError, Stage: stage, Code: code, Message: msg}
}

func (m *Machine) release(ctx context.Context, p pass) {
	if err := m.Repo.Release(ctx, p.subjectID, p.lease, m.now()); err != nil && !errors.Is(err, ErrStaleLease) {
		telemetry.Error("generation.release.failed", telemetry.Merge(p.fields, map[string]any{"error": err}))
	}
}

// lost reports a pass whose gate was taken by a reset or a newer pass.
func (m *Machine) lost(p pass, stage pipeline.Stage) Outcome {
	telemetry.Warn("generation.lease.lost", telemetry.Merge(p.fields, map[string]any{"stage": string(stage)}))
	return Outcome{Status: StatusInProgress, Stage: stage}
}

// Reset clears state, artifacts and the final document. It is idempotent.
func (m *Machine) Reset(ctx context.Context, subjectID string) error {
	if err := subjects.ValidateID(subjectID); err != nil {
		return err
	}
	if err := m.Repo.Reset(ctx, subjectID); err != nil {
		return fmt.Errorf("reset state: %w", err)
	}
	if err := m.Documents.Delete(ctx, subjectID); err != nil {
		return fmt.Errorf("reset document: %w", err)
	}
	telemetry.Info("generation.reset", map[string]any{"subject_id": subjectID})
	return nil
}

// Regenerate resets the subject and runs a fresh pass.
func (m *Machine) Regenerate(ctx context.Context, subjectID string) (Outcome, error) {
	if err := m.Reset(ctx, subjectID); err != nil {
		return Outcome{}, err
	}
	return m.Advance(ctx, subjectID)
}

// Enqueue schedules an immediate continuation instead of running a pass in the caller.
func (m *Machine) Enqueue(ctx context.Context, subjectID string) (Outcome, error) {
	if err := subjects.ValidateID(subjectID); err != nil {
		return Outcome{}, err
	}
	subject, err := m.Subjects.Get(ctx, subjectID)
	if err != nil && !errors.Is(err, subjects.ErrNotFound) {
		return Outcome{}, fmt.Errorf("load subject: %w", err)
	}
	if err != nil || subject.RawInput.Empty() {
		return Outcome{Status: StatusError, Code: pipeline.CodeMissingInput, Message: "subject has no raw input"}, nil
	}
	if err := m.Scheduler.Schedule(ctx, 0, subjectID); err != nil {
		return Outcome{}, fmt.Errorf("schedule continuation: %w", err)
	}
	return Outcome{Status: StatusScheduled}, nil
}

// Started reports whether a subject has generation state or a final document.
func (m *Machine) Started(ctx context.Context, subjectID string) (bool, error) {
	state, err := m.Repo.Get(ctx, subjectID)
	switch {
	case err == nil && strings.TrimSpace(string(state.Stage)) != "":
		return true, nil
	case err != nil && !errors.Is(err, ErrNotFound):
		return false, err
	}
	return m.Documents.Exists(ctx, subjectID)
}
