package prompts

import (
	"storygen-backend/internal/llm"
	"storygen-backend/internal/pipeline"
)

var stageOptions = map[pipeline.Stage]llm.Options{
	pipeline.StageStakeExtraction:   {Temperature: llm.Float(0.3), MaxTokens: 900},
	pipeline.StageMessageDerivation: {Temperature: llm.Float(0.5), MaxTokens: 1200},
	pipeline.StageThemeSynthesis:    {Temperature: llm.Float(0.5), MaxTokens: 900},
	pipeline.StageSummarySynthesis:  {Temperature: llm.Float(0.5), MaxTokens: 900},
	pipeline.StageTopicGeneration:   {Temperature: llm.Float(0.5), MaxTokens: 3500},
}

// Options returns the sampling settings for a stage. Model is left to the client so LLM_MODEL applies.
// Unknown stages get client defaults.
// The returned Temperature pointer is a fresh copy.
func Options(stage pipeline.Stage) llm.Options {
	opts, ok := stageOptions[stage]
	if !ok {
		return llm.Options{}
	}
	if opts.Temperature != nil {
		opts.Temperature = llm.Float(*opts.Temperature)
	}
	return opts
}
