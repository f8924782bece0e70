package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"storygen-backend/internal/llm"
	"storygen-backend/internal/pipeline"
	"storygen-backend/internal/prompts"
	"storygen-backend/internal/subjects"
)

var promptCmd = &cobra.Command{
	Use:   "prompt <stage> <subject-id>",
	Short: "Print the messages a stage would send for a subject",
	Long:  "Assembles the prompt from the subject's raw input, targets and the stage artifacts stored so far. Nothing is sent.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := loadApp()
		if err != nil {
			return err
		}
		defer app.Close()
		return printPrompt(cmd.Context(), cmd.OutOrStdout(), app.Prompts, app.SubjectsService, app.Machine.Repo, pipeline.Stage(args[0]), args[1])
	},
}

func init() {
	rootCmd.AddCommand(promptCmd)
}

type subjectGetter interface {
	Get(ctx context.Context, id string) (subjects.Subject, error)
}

type artifactReader interface {
	Artifacts(ctx context.Context, subjectID string) (map[pipeline.Stage]pipeline.Artifact, error)
}

func printPrompt(ctx context.Context, w io.Writer, assembler *prompts.Assembler, subjectSrc subjectGetter, artifacts artifactReader, stage pipeline.Stage, subjectID string) error {
	if !pipeline.Valid(stage) || pipeline.IsTerminal(stage) {
		return fmt.Errorf("unknown stage %q", stage)
	}
	subject, err := subjectSrc.Get(ctx, subjectID)
	if err != nil {
		return fmt.Errorf("load subject: %w", err)
	}
	prior, err := artifacts.Artifacts(ctx, subjectID)
	if err != nil {
		return fmt.Errorf("load artifacts: %w", err)
	}

	messages, err := assembler.Build(stage, subject.RawInput, prior, subject.Targets)
	if err != nil {
		return err
	}
	opts := prompts.Options(stage)
	fmt.Fprintf(w, "# stage=%s messages=%d max_tokens=%d hash=%s\n\n", stage, len(messages), opts.MaxTokens, llm.PromptHash(messages))
	fmt.Fprintln(w, llm.Transcript(messages))
	return nil
}
