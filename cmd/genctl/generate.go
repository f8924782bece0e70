package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"storygen-backend/internal/generation"
)

const followPollInterval = 2 * time.Second

var generateCmd = &cobra.Command{
	Use:   "generate <subject-id>",
	Short: "Run a generation pass for a subject",
	Long: "Runs stages until the document is ready, a stage is rate limited or a stage fails. " +
		"With --follow the command stays attached across rate-limit waits until the subject settles.",
	Args: cobra.ExactArgs(1),
	RunE: runGenerate,
}

var (
	generateForce  bool
	generateFollow bool
)

func init() {
	generateCmd.Flags().BoolVar(&generateForce, "force", false, "reset the subject before generating")
	generateCmd.Flags().BoolVar(&generateFollow, "follow", false, "wait out rate limits until the document is ready or generation fails")
	rootCmd.AddCommand(generateCmd)
}

func runGenerate(cmd *cobra.Command, args []string) error {
	app, err := loadApp()
	if err != nil {
		return err
	}
	defer app.Close()

	ctx := cmd.Context()
	if generateForce {
		if err := app.Machine.Reset(ctx, args[0]); err != nil {
			return err
		}
	}
	d := driver{machine: app.Machine, out: cmd.OutOrStdout(), sleep: sleepCtx, poll: followPollInterval}
	return d.run(ctx, args[0], generateFollow)
}

type machine interface {
	Advance(ctx context.Context, subjectID string) (generation.Outcome, error)
	Status(ctx context.Context, subjectID string) (generation.StatusSnapshot, error)
}

type driver struct {
	machine machine
	out     io.Writer
	sleep   func(ctx context.Context, d time.Duration) error
	poll    time.Duration
}

// run advances once. With follow it sleeps through scheduled waits and, when another
// runner holds the gate, polls status until that pass lets go.
func (d driver) run(ctx context.Context, subjectID string, follow bool) error {
	for {
		out, err := d.machine.Advance(ctx, subjectID)
		if err != nil {
			return err
		}
		d.print(out)
		if out.Status == generation.StatusError {
			return fmt.Errorf("generation failed: %s", out.Code)
		}
		if !follow || out.Status == generation.StatusReady {
			return nil
		}

		wait := out.Wait
		if out.Status == generation.StatusInProgress {
			wait = d.poll
		}
		if err := d.sleep(ctx, wait); err != nil {
			return err
		}
		if err := d.awaitIdle(ctx, subjectID); err != nil {
			return err
		}
	}
}

func (d driver) awaitIdle(ctx context.Context, subjectID string) error {
	for {
		snap, err := d.machine.Status(ctx, subjectID)
		if err != nil {
			return err
		}
		if !snap.InProgress {
			return nil
		}
		fmt.Fprintf(d.out, "running %s (%d%%)\n", snap.Stage, snap.Progress)
		if err := d.sleep(ctx, d.poll); err != nil {
			return err
		}
	}
}

func (d driver) print(out generation.Outcome) {
	switch out.Status {
	case generation.StatusScheduled:
		fmt.Fprintf(d.out, "%s at %s, retry in %s\n", out.Status, out.Stage, out.Wait)
	case generation.StatusError:
		fmt.Fprintf(d.out, "%s at %s: %s (%s)\n", out.Status, out.Stage, out.Message, out.Code)
	default:
		fmt.Fprintf(d.out, "%s\n", out.Status)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
