package main

import (
	"context"
	"encoding/json"
	"io"

	"github.com/spf13/cobra"

	"storygen-backend/internal/generation"
)

var statusCmd = &cobra.Command{
	Use:   "status <subject-id>",
	Short: "Print the generation status snapshot as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := loadApp()
		if err != nil {
			return err
		}
		defer app.Close()
		return printStatus(cmd.Context(), cmd.OutOrStdout(), app.Machine, args[0])
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

type statusReader interface {
	Status(ctx context.Context, subjectID string) (generation.StatusSnapshot, error)
}

func printStatus(ctx context.Context, w io.Writer, m statusReader, subjectID string) error {
	snap, err := m.Status(ctx, subjectID)
	if err != nil {
		return err
	}
	return writeJSON(w, snap)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
