package stages

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storygen-backend/internal/llm"
	"storygen-backend/internal/pipeline"
	"storygen-backend/internal/prompts"
)

type fakeClient struct {
	reply string
	err   error
	calls int
	opts  llm.Options
}

func (f *fakeClient) Complete(ctx context.Context, messages []llm.Message, opts llm.Options) (string, error) {
	f.calls++
	f.opts = opts
	return f.reply, f.err
}

func newProcessor(t *testing.T, stage pipeline.Stage, client llm.Client) *Processor {
	t.Helper()
	a, err := prompts.New()
	require.NoError(t, err)
	p, err := NewProcessor(stage, client, a)
	require.NoError(t, err)
	p.now = func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) }
	return p
}

func input(artifacts map[pipeline.Stage]pipeline.Artifact) pipeline.Input {
	return pipeline.Input{
		SubjectID: "subject-1",
		RawInput: pipeline.RawInput{
			pipeline.PeriodHighSchool: {{Title: "Debate finals", Polarity: "positive", Rating: 4}},
		},
		Artifacts: artifacts,
	}
}

func TestMissingDependencyNeverCallsClient(t *testing.T) {
	client := &fakeClient{reply: "- On Grit: keep going."}
	p := newProcessor(t, pipeline.StageMessageDerivation, client)

	res := p.Process(context.Background(), input(nil))

	assert.Equal(t, pipeline.KindFailed, res.Kind)
	assert.Equal(t, pipeline.CodeMissingDependency, res.Code)
	assert.Zero(t, client.calls)
}

func TestStakeExtractionSuccessUsesStageOptions(t *testing.T) {
	client := &fakeClient{reply: "- Resilience\n* Family\n1. Mentorship\n\n"}
	p := newProcessor(t, pipeline.StageStakeExtraction, client)

	res := p.Process(context.Background(), input(nil))

	require.Equal(t, pipeline.KindSuccess, res.Kind)
	assert.Equal(t, pipeline.StageStakeExtraction, res.Artifact.Stage)
	assert.Equal(t, "- Resilience\n- Family\n- Mentorship", res.Artifact.Text)
	assert.Equal(t, "<ul><li>Resilience</li><li>Family</li><li>Mentorship</li></ul>", res.Artifact.Display)
	assert.False(t, res.Artifact.CreatedAt.IsZero())
	require.NotNil(t, client.opts.Temperature)
	assert.InDelta(t, 0.3, *client.opts.Temperature, 1e-9)
	assert.Equal(t, 900, client.opts.MaxTokens)
}

func TestRateLimitHintBecomesWait(t *testing.T) {
	client := &fakeClient{err: &llm.RateLimitError{StatusCode: 429, Message: "try again in 12s", RetryAfter: 12 * time.Second}}
	p := newProcessor(t, pipeline.StageStakeExtraction, client)

	res := p.Process(context.Background(), input(nil))

	assert.Equal(t, pipeline.KindRateLimited, res.Kind)
	assert.Equal(t, 17*time.Second, res.Wait)
	assert.Equal(t, pipeline.CodeRateLimited, res.Code)
}

func TestRateLimitWithoutHintDefaults(t *testing.T) {
	client := &fakeClient{err: &llm.RateLimitError{StatusCode: 429, Message: "Too many requests"}}
	p := newProcessor(t, pipeline.StageStakeExtraction, client)

	res := p.Process(context.Background(), input(nil))

	assert.Equal(t, pipeline.KindRateLimited, res.Kind)
	assert.Equal(t, 30*time.Second, res.Wait)
}

func TestClientFailuresAreClassified(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want pipeline.Code
	}{
		{name: "empty", err: llm.ErrEmptyResponse, want: pipeline.CodeEmptyResponse},
		{name: "credential", err: llm.ErrMissingCredential, want: pipeline.CodeMissingCredential},
		{name: "timeout", err: &llm.TransportError{Err: context.DeadlineExceeded, Timeout: true}, want: pipeline.CodeTransportError},
		{name: "upstream", err: &llm.UpstreamError{StatusCode: 500, Message: "boom"}, want: pipeline.CodeUpstreamError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newProcessor(t, pipeline.StageStakeExtraction, &fakeClient{err: tt.err})
			res := p.Process(context.Background(), input(nil))
			assert.Equal(t, pipeline.KindFailed, res.Kind)
			assert.Equal(t, tt.want, res.Code)
			assert.True(t, errors.Is(res.Err, tt.err) || res.Err == tt.err)
		})
	}
}

func TestNewProcessorRejectsTerminalStage(t *testing.T) {
	a, err := prompts.New()
	require.NoError(t, err)
	_, err = NewProcessor(pipeline.StageDone, &fakeClient{}, a)
	assert.Error(t, err)
}

func TestSetCoversEveryWorkStage(t *testing.T) {
	a, err := prompts.New()
	require.NoError(t, err)
	set, err := NewSet(&fakeClient{reply: "x"}, a)
	require.NoError(t, err)
	for _, stage := range pipeline.WorkStages() {
		assert.Contains(t, set, stage)
	}
	res := set.Process(context.Background(), pipeline.StageDone, input(nil))
	assert.Equal(t, pipeline.CodeInternalError, res.Code)
}
