// Package stages runs one pipeline stage: dependency check, prompt, completion call and
// post-processing into an artifact. Processors are stateless; persistence belongs to the caller.
package stages

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"storygen-backend/internal/llm"
	"storygen-backend/internal/pipeline"
	"storygen-backend/internal/prompts"
	"storygen-backend/internal/shared/metrics"
)

// PromptBuilder assembles the message sequence for a stage.
type PromptBuilder interface {
	Build(stage pipeline.Stage, raw pipeline.RawInput, prior map[pipeline.Stage]pipeline.Artifact, targets []string) ([]llm.Message, error)
}

// Shaped is the post-processed form of a model answer.
type Shaped struct {
	Text    string
	Display string
}

type shaper func(raw string) Shaped

// Processor produces the artifact of a single stage.
type Processor struct {
	stage  pipeline.Stage
	client llm.Client
	prompt PromptBuilder
	shape  shaper
	now    func() time.Time
}

// NewProcessor builds the processor for a non-terminal stage.
func NewProcessor(stage pipeline.Stage, client llm.Client, prompt PromptBuilder) (*Processor, error) {
	if client == nil {
		return nil, errors.New("stages: llm client is required")
	}
	if prompt == nil {
		return nil, errors.New("stages: prompt builder is required")
	}
	shape, ok := shapers[stage]
	if !ok {
		return nil, fmt.Errorf("stages: no processor for stage %q", stage)
	}
	return &Processor{
		stage:  stage,
		client: client,
		prompt: prompt,
		shape:  shape,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// Stage returns the stage this processor handles.
func (p *Processor) Stage() pipeline.Stage {
	return p.stage
}

// Process runs the stage. It never returns an error; failures are classified in the Result.
func (p *Processor) Process(ctx context.Context, in pipeline.Input) pipeline.Result {
	for _, dep := range pipeline.Dependencies(p.stage) {
		if strings.TrimSpace(in.Artifacts[dep].Text) == "" {
			return pipeline.Failed(pipeline.CodeMissingDependency, fmt.Errorf("%s requires the %s artifact", p.stage, dep))
		}
	}

	messages, err := p.prompt.Build(p.stage, in.RawInput, in.Artifacts, in.Targets)
	if err != nil {
		return pipeline.Failed(pipeline.CodeInternalError, fmt.Errorf("build prompt: %w", err))
	}

	started := time.Now()
	raw, err := p.client.Complete(ctx, messages, prompts.Options(p.stage))
	metrics.ObserveStageDurationMs(float64(time.Since(started).Milliseconds()))
	if err != nil {
		return classify(err)
	}

	shaped := p.shape(raw)
	if strings.TrimSpace(shaped.Text) == "" {
		return pipeline.Failed(pipeline.CodeEmptyResponse, llm.ErrEmptyResponse)
	}
	return pipeline.Success(pipeline.Artifact{
		Stage:     p.stage,
		Text:      shaped.Text,
		Display:   shaped.Display,
		CreatedAt: p.now(),
	})
}

func classify(err error) pipeline.Result {
	var rle *llm.RateLimitError
	if errors.As(err, &rle) {
		return pipeline.RateLimited(llm.WaitFor(rle.RetryAfter), err)
	}
	return pipeline.Failed(pipeline.Code(llm.Classify(err)), err)
}

// Set holds one processor per non-terminal stage.
type Set map[pipeline.Stage]*Processor

// NewSet builds processors for every work stage.
func NewSet(client llm.Client, prompt PromptBuilder) (Set, error) {
	set := make(Set, len(pipeline.WorkStages()))
	for _, stage := range pipeline.WorkStages() {
		p, err := NewProcessor(stage, client, prompt)
		if err != nil {
			return nil, err
		}
		set[stage] = p
	}
	return set, nil
}

// Process dispatches to the processor for stage.
func (s Set) Process(ctx context.Context, stage pipeline.Stage, in pipeline.Input) pipeline.Result {
	p, ok := s[stage]
	if !ok {
		return pipeline.Failed(pipeline.CodeInternalError, fmt.Errorf("no processor for stage %q", stage))
	}
	return p.Process(ctx, in)
}
