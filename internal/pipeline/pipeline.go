package pipeline

import (
	"math"
	"time"
)

// Stage names one step of the generation pipeline.
type Stage string

const (
	StageNone              Stage = ""
	StageStakeExtraction   Stage = "stake_extraction"
	StageMessageDerivation Stage = "message_derivation"
	StageThemeSynthesis    Stage = "theme_synthesis"
	StageSummarySynthesis  Stage = "summary_synthesis"
	StageTopicGeneration   Stage = "topic_generation"
	StageDone              Stage = "done"
)

type definition struct {
	stage Stage
	label string
	title string
	deps  []Stage
}

var order = []definition{
	{stage: StageStakeExtraction, label: "ownership stakes", title: "Ownership Stakes"},
	{stage: StageMessageDerivation, label: "life messages", title: "Life Messages",
		deps: []Stage{StageStakeExtraction}},
	{stage: StageThemeSynthesis, label: "transcendent threads", title: "Transcendent Threads",
		deps: []Stage{StageStakeExtraction, StageMessageDerivation}},
	{stage: StageSummarySynthesis, label: "summary", title: "Sum of Your Story",
		deps: []Stage{StageStakeExtraction, StageMessageDerivation, StageThemeSynthesis}},
	{stage: StageTopicGeneration, label: "essay topics", title: "Essay Topics",
		deps: []Stage{StageStakeExtraction, StageMessageDerivation, StageThemeSynthesis, StageSummarySynthesis}},
	{stage: StageDone, label: "final document", title: ""},
}

// Stages returns every stage in pipeline order, terminal last.
func Stages() []Stage {
	out := make([]Stage, len(order))
	for i, d := range order {
		out[i] = d.stage
	}
	return out
}

// WorkStages returns the non-terminal stages in pipeline order.
func WorkStages() []Stage {
	all := Stages()
	return all[:len(all)-1]
}

// First returns the entry stage.
func First() Stage {
	return order[0].stage
}

// Valid reports whether s is a known stage, terminal included.
func Valid(s Stage) bool {
	return Index(s) >= 0
}

// Index returns the position of s in pipeline order, or -1.
func Index(s Stage) int {
	for i, d := range order {
		if d.stage == s {
			return i
		}
	}
	return -1
}

// IsTerminal reports whether s is the final stage.
func IsTerminal(s Stage) bool {
	return s == StageDone
}

// Next returns the stage after s. The terminal stage and unknown stages map to StageDone.
func Next(s Stage) Stage {
	idx := Index(s)
	if idx < 0 || idx+1 >= len(order) {
		return StageDone
	}
	return order[idx+1].stage
}

// Dependencies lists the stages whose artifacts s consumes.
func Dependencies(s Stage) []Stage {
	idx := Index(s)
	if idx < 0 {
		return nil
	}
	return append([]Stage(nil), order[idx].deps...)
}

// Label is the human-readable stage name used in status messages.
func Label(s Stage) string {
	idx := Index(s)
	if idx < 0 {
		return "generation"
	}
	return order[idx].label
}

// Title is the section heading the stage's artifact gets in the final document.
func Title(s Stage) string {
	idx := Index(s)
	if idx < 0 {
		return ""
	}
	return order[idx].title
}

// Progress is the stage position as a percentage of the pipeline, 0 when unset, 100 at terminal.
func Progress(s Stage) int {
	idx := Index(s)
	if idx <= 0 {
		return 0
	}
	if IsTerminal(s) {
		return 100
	}
	pct := int(math.Round(float64(idx) / float64(len(order)-1) * 100))
	if pct > 100 {
		return 100
	}
	return pct
}

// Artifact is the persisted output of one completed stage.
type Artifact struct {
	Stage     Stage     `json:"stage"`
	Text      string    `json:"text"`
	Display   string    `json:"display"`
	CreatedAt time.Time `json:"createdAt"`
}

// Input is everything a stage processor may read.
type Input struct {
	SubjectID string
	RawInput  RawInput
	Targets   []string
	Artifacts map[Stage]Artifact
}
