package subjects

import (
	"context"
	"errors"
	"testing"

	"storygen-backend/internal/pipeline"
)

type stubStarted struct {
	started bool
	err     error
}

func (s stubStarted) Started(ctx context.Context, subjectID string) (bool, error) {
	return s.started, s.err
}

func validInput() Input {
	return Input{
		RawInput: pipeline.RawInput{
			pipeline.PeriodMiddleSchool: {{Title: "Joined choir", Polarity: "positive", Rating: 4}},
		},
		Targets: []string{"Acme U, Example College", "acme u"},
	}
}

func TestSaveNormalizesTargetsAndKeepsCreatedAt(t *testing.T) {
	svc := NewService(NewMemoryRepo(), stubStarted{})
	ctx := context.Background()

	first, err := svc.Save(ctx, "subject-1", validInput())
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if len(first.Targets) != 2 || first.Targets[0] != "Acme U" || first.Targets[1] != "Example College" {
		t.Fatalf("unexpected targets: %v", first.Targets)
	}

	second, err := svc.Save(ctx, "subject-1", validInput())
	if err != nil {
		t.Fatalf("Save again: %v", err)
	}
	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Fatalf("created_at changed on replace")
	}
}

func TestSaveRejectsInvalidInput(t *testing.T) {
	svc := NewService(NewMemoryRepo(), nil)
	ctx := context.Background()

	tests := map[string]Input{
		"empty":        {RawInput: pipeline.RawInput{}},
		"bad period":   {RawInput: pipeline.RawInput{"college": {{Title: "x", Polarity: "positive", Rating: 3}}}},
		"bad polarity": {RawInput: pipeline.RawInput{pipeline.PeriodHighSchool: {{Title: "x", Polarity: "meh", Rating: 3}}}},
		"bad rating":   {RawInput: pipeline.RawInput{pipeline.PeriodHighSchool: {{Title: "x", Polarity: "negative", Rating: 9}}}},
		"no title":     {RawInput: pipeline.RawInput{pipeline.PeriodHighSchool: {{Polarity: "negative", Rating: 2}}}},
	}
	for name, in := range tests {
		if _, err := svc.Save(ctx, "subject-1", in); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("%s: expected ErrInvalidInput, got %v", name, err)
		}
	}
	if _, err := svc.Save(ctx, "bad/id", validInput()); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected id rejection, got %v", err)
	}
}

func TestSaveLockedOnceGenerationStarted(t *testing.T) {
	svc := NewService(NewMemoryRepo(), stubStarted{started: true})
	if _, err := svc.Save(context.Background(), "subject-1", validInput()); !errors.Is(err, ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}
}

func TestGetMissing(t *testing.T) {
	svc := NewService(NewMemoryRepo(), nil)
	if _, err := svc.Get(context.Background(), "nobody"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestNormalizeTargets(t *testing.T) {
	got := NormalizeTargets([]string{" Acme  U ,\nExample College\r\n", "", "EXAMPLE COLLEGE", "Third"})
	want := []string{"Acme U", "Example College", "Third"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}
