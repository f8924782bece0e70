// Package prompts assembles the few-shot message sequence sent for each pipeline stage.
// Instructions and exemplar transcripts are embedded at compile time.
package prompts

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	"storygen-backend/internal/llm"
	"storygen-backend/internal/pipeline"
)

const (
	livePrefix    = "ACTUAL SUBJECT DATA (analyze only this):"
	examplePrefix = "EXAMPLE %d (not the current subject):"
)

//go:embed templates/*.tmpl templates/exemplars.json
var files embed.FS

// Exemplar is one worked input/output pair used for style conditioning.
type Exemplar struct {
	Input  string `json:"input"`
	Output string `json:"output"`
}

// Assembler renders stage prompts. It is safe for concurrent use.
type Assembler struct {
	tmpl      *template.Template
	exemplars map[pipeline.Stage][]Exemplar
}

// New parses the embedded templates and exemplars.
func New() (*Assembler, error) {
	tmpl, err := template.New("prompts").Option("missingkey=error").ParseFS(files, "templates/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse prompt templates: %w", err)
	}
	raw, err := files.ReadFile("templates/exemplars.json")
	if err != nil {
		return nil, fmt.Errorf("read exemplars: %w", err)
	}
	var exemplars map[pipeline.Stage][]Exemplar
	if err := json.Unmarshal(raw, &exemplars); err != nil {
		return nil, fmt.Errorf("parse exemplars: %w", err)
	}
	for _, stage := range pipeline.WorkStages() {
		if tmpl.Lookup(string(stage)+".system") == nil || tmpl.Lookup(string(stage)+".live") == nil {
			return nil, fmt.Errorf("missing templates for stage %s", stage)
		}
		if len(exemplars[stage]) == 0 {
			return nil, fmt.Errorf("missing exemplars for stage %s", stage)
		}
	}
	return &Assembler{tmpl: tmpl, exemplars: exemplars}, nil
}

type fragmentView struct {
	Title       string
	Description string
	Polarity    string
	Rating      int
}

type periodView struct {
	Label     string
	Fragments []fragmentView
}

type promptData struct {
	Periods    []periodView
	Stakes     string
	Messages   string
	Threads    string
	Summary    string
	Targets    []string
	HasTargets bool
}

// Build returns system instructions, the stage's exemplar pairs and the live subject message, in that order.
func (a *Assembler) Build(stage pipeline.Stage, raw pipeline.RawInput, prior map[pipeline.Stage]pipeline.Artifact, targets []string) ([]llm.Message, error) {
	if !pipeline.Valid(stage) || pipeline.IsTerminal(stage) {
		return nil, fmt.Errorf("no prompt for stage %q", stage)
	}
	data := newPromptData(raw, prior, targets)

	system, err := a.render(string(stage)+".system", data)
	if err != nil {
		return nil, err
	}
	live, err := a.render(string(stage)+".live", data)
	if err != nil {
		return nil, err
	}

	exemplars := a.exemplars[stage]
	messages := make([]llm.Message, 0, 2+2*len(exemplars))
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: system})
	for i, ex := range exemplars {
		messages = append(messages,
			llm.Message{Role: llm.RoleUser, Content: fmt.Sprintf(examplePrefix, i+1) + "\n" + strings.TrimSpace(ex.Input)},
			llm.Message{Role: llm.RoleAssistant, Content: strings.TrimSpace(ex.Output)},
		)
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: livePrefix + "\n" + live})
	return messages, nil
}

func (a *Assembler) render(name string, data promptData) (string, error) {
	var buf bytes.Buffer
	if err := a.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return strings.TrimSpace(buf.String()), nil
}

func newPromptData(raw pipeline.RawInput, prior map[pipeline.Stage]pipeline.Artifact, targets []string) promptData {
	data := promptData{
		Stakes:   strings.TrimSpace(prior[pipeline.StageStakeExtraction].Text),
		Messages: strings.TrimSpace(prior[pipeline.StageMessageDerivation].Text),
		Threads:  strings.TrimSpace(prior[pipeline.StageThemeSynthesis].Text),
		Summary:  strings.TrimSpace(prior[pipeline.StageSummarySynthesis].Text),
	}
	for _, period := range pipeline.Periods() {
		view := periodView{Label: periodLabel(period)}
		for _, f := range raw[period] {
			view.Fragments = append(view.Fragments, fragmentView{
				Title:       oneLine(f.Title),
				Description: oneLine(f.Description),
				Polarity:    f.Polarity,
				Rating:      f.Rating,
			})
		}
		data.Periods = append(data.Periods, view)
	}
	for _, t := range targets {
		if t = strings.TrimSpace(t); t != "" {
			data.Targets = append(data.Targets, t)
		}
	}
	data.HasTargets = len(data.Targets) > 0
	return data
}

func periodLabel(p pipeline.Period) string {
	switch p {
	case pipeline.PeriodEarlyChildhood:
		return "Early childhood"
	case pipeline.PeriodElementary:
		return "Elementary school"
	case pipeline.PeriodMiddleSchool:
		return "Middle school"
	case pipeline.PeriodHighSchool:
		return "High school"
	default:
		return string(p)
	}
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
