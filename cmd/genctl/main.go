// Command genctl inspects and drives subject generation from an operator shell.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"storygen-backend/internal/bootstrap"
	"storygen-backend/internal/shared/config"
)

var rootCmd = &cobra.Command{
	Use:           "genctl",
	Short:         "Inspect and drive staged document generation",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadApp builds the same dependency graph the API uses.
func loadApp() (*bootstrap.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return bootstrap.Build(cfg)
}
