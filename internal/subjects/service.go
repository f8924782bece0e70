package subjects

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"storygen-backend/internal/pipeline"
)

// StartChecker reports whether generation has started for a subject.
type StartChecker interface {
	Started(ctx context.Context, subjectID string) (bool, error)
}

// Input is the caller-supplied part of a subject.
type Input struct {
	RawInput pipeline.RawInput `validate:"required,max=4,dive,keys,oneof=early_childhood elementary middle_school high_school,endkeys,max=50,dive"`
	Targets  []string          `validate:"max=20,dive,max=200"`
}

// Service contains business logic for subject intake.
type Service struct {
	Repo     Repo
	Started  StartChecker
	validate *validator.Validate
	now      func() time.Time
}

// NewService constructs a Service. started may be nil, which never locks input.
func NewService(repo Repo, started StartChecker) *Service {
	return &Service{
		Repo:     repo,
		Started:  started,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// ValidateID checks that id is usable as a subject key.
func ValidateID(id string) error {
	id = strings.TrimSpace(id)
	if id == "" || len(id) > 128 || strings.ContainsAny(id, " /\\\t\n") {
		return fmt.Errorf("%w: subject id must be 1-128 characters without spaces or slashes", ErrInvalidInput)
	}
	return nil
}

// Get returns a subject.
func (s *Service) Get(ctx context.Context, id string) (Subject, error) {
	if err := ValidateID(id); err != nil {
		return Subject{}, err
	}
	return s.Repo.Get(ctx, id)
}

// Save validates and stores raw input and targets. It fails with ErrLocked once generation has started.
func (s *Service) Save(ctx context.Context, id string, in Input) (Subject, error) {
	if err := ValidateID(id); err != nil {
		return Subject{}, err
	}
	in.Targets = NormalizeTargets(in.Targets)
	if err := s.validate.Struct(in); err != nil {
		return Subject{}, fmt.Errorf("%w: %s", ErrInvalidInput, describe(err))
	}
	if in.RawInput.Empty() {
		return Subject{}, fmt.Errorf("%w: raw input has no fragments", ErrInvalidInput)
	}

	// The repo write repeats this check atomically where it can; this one covers repos that
	// cannot see generation state.
	if s.Started != nil {
		started, err := s.Started.Started(ctx, id)
		if err != nil {
			return Subject{}, err
		}
		if started {
			return Subject{}, ErrLocked
		}
	}

	now := s.now()
	return s.Repo.Save(ctx, Subject{
		ID:        id,
		RawInput:  in.RawInput,
		Targets:   in.Targets,
		CreatedAt: now,
		UpdatedAt: now,
	})
}

func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}
