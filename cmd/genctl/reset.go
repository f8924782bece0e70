package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var resetCmd = &cobra.Command{
	Use:   "reset <subject-id>",
	Short: "Clear generation state, stage artifacts and the final document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := loadApp()
		if err != nil {
			return err
		}
		defer app.Close()
		if err := app.Machine.Reset(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "reset %s\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(resetCmd)
}
