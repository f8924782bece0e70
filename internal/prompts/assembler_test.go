package prompts

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storygen-backend/internal/llm"
	"storygen-backend/internal/pipeline"
)

func sampleInput() pipeline.RawInput {
	return pipeline.RawInput{
		pipeline.PeriodHighSchool: {
			{Title: "Robotics finals", Description: "Rebuilt the arm\n overnight", Polarity: "positive", Rating: 5},
		},
		pipeline.PeriodEarlyChildhood: {
			{Title: "Moved to Lisbon", Polarity: "negative", Rating: 3},
		},
	}
}

func allPrior() map[pipeline.Stage]pipeline.Artifact {
	return map[pipeline.Stage]pipeline.Artifact{
		pipeline.StageStakeExtraction:   {Stage: pipeline.StageStakeExtraction, Text: "- Curiosity\n- Grit"},
		pipeline.StageMessageDerivation: {Stage: pipeline.StageMessageDerivation, Text: "- On Curiosity: keep asking."},
		pipeline.StageThemeSynthesis:    {Stage: pipeline.StageThemeSynthesis, Text: "Thread #1: TRUTH — you look for it."},
		pipeline.StageSummarySynthesis:  {Stage: pipeline.StageSummarySynthesis, Text: "You build things."},
	}
}

func TestBuildOrdersSystemExemplarsThenLive(t *testing.T) {
	a, err := New()
	require.NoError(t, err)

	for _, stage := range pipeline.WorkStages() {
		msgs, err := a.Build(stage, sampleInput(), allPrior(), nil)
		require.NoError(t, err, stage)

		pairs := 2
		if stage == pipeline.StageTopicGeneration {
			pairs = 1
		}
		require.Len(t, msgs, 2+2*pairs, stage)
		assert.Equal(t, llm.RoleSystem, msgs[0].Role)
		for i := 0; i < pairs; i++ {
			in, out := msgs[1+2*i], msgs[2+2*i]
			assert.Equal(t, llm.RoleUser, in.Role)
			assert.True(t, strings.HasPrefix(in.Content, "EXAMPLE "), "exemplar input must be labelled")
			assert.Equal(t, llm.RoleAssistant, out.Role)
		}
		live := msgs[len(msgs)-1]
		assert.Equal(t, llm.RoleUser, live.Role)
		assert.True(t, strings.HasPrefix(live.Content, "ACTUAL SUBJECT DATA (analyze only this):"))
	}
}

func TestLiveMessageCarriesOnlySubjectData(t *testing.T) {
	a, err := New()
	require.NoError(t, err)

	msgs, err := a.Build(pipeline.StageMessageDerivation, sampleInput(), allPrior(), nil)
	require.NoError(t, err)
	live := msgs[len(msgs)-1].Content

	assert.Contains(t, live, "Robotics finals")
	assert.Contains(t, live, "Rebuilt the arm overnight")
	assert.Contains(t, live, "- Curiosity")
	assert.NotContains(t, live, "EXAMPLE")
	for _, stageExamples := range a.exemplars {
		for _, ex := range stageExamples {
			assert.NotContains(t, live, strings.TrimSpace(ex.Output))
		}
	}
	assert.Less(t, strings.Index(live, "Early childhood"), strings.Index(live, "High school"), "periods must keep chronological order")
}

func TestTopicPromptListsEveryTarget(t *testing.T) {
	a, err := New()
	require.NoError(t, err)

	msgs, err := a.Build(pipeline.StageTopicGeneration, sampleInput(), allPrior(), []string{"Acme U", " Example College "})
	require.NoError(t, err)
	system := msgs[0].Content

	assert.Contains(t, system, "- Acme U\n")
	assert.Contains(t, system, "- Example College\n")
	assert.Contains(t, system, "exactly one item per target")
	assert.Contains(t, system, "tailoring-tips")
	assert.NotContains(t, system, "There are no targets")
}

func TestTopicPromptOmitsTailoringWithoutTargets(t *testing.T) {
	a, err := New()
	require.NoError(t, err)

	msgs, err := a.Build(pipeline.StageTopicGeneration, sampleInput(), allPrior(), []string{"  "})
	require.NoError(t, err)
	system := msgs[0].Content

	assert.Contains(t, system, "Omit the tailoring section entirely")
	assert.NotContains(t, system, "Target list")
	assert.NotContains(t, system, "Tailoring Tips")
	assert.NotContains(t, system, "tailoring-tips")
}

func TestBuildRejectsTerminalStage(t *testing.T) {
	a, err := New()
	require.NoError(t, err)

	_, err = a.Build(pipeline.StageDone, sampleInput(), nil, nil)
	assert.Error(t, err)
	_, err = a.Build("bogus", sampleInput(), nil, nil)
	assert.Error(t, err)
}

func TestOptionsPerStage(t *testing.T) {
	stake := Options(pipeline.StageStakeExtraction)
	require.NotNil(t, stake.Temperature)
	assert.InDelta(t, 0.3, *stake.Temperature, 1e-9)
	assert.Equal(t, 900, stake.MaxTokens)

	topics := Options(pipeline.StageTopicGeneration)
	assert.Equal(t, 3500, topics.MaxTokens)

	*topics.Temperature = 2
	assert.InDelta(t, 0.5, *Options(pipeline.StageTopicGeneration).Temperature, 1e-9)

	assert.Equal(t, llm.Options{}, Options(pipeline.StageDone))
}
