package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Remove stale pending health data records and finish interrupted deletions, then exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		return sweep(cmd.Context())
	},
}

func sweep(ctx context.Context) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	removed, sweepErr := a.reconciler.Sweep(ctx)
	resumed, resumeErr := a.deletion.ResumePending(ctx)

	a.log.Info().
		Int("pending_removed", removed).
		Int("deletions_completed", resumed).
		Msg("sweep finished")

	if err := errors.Join(sweepErr, resumeErr); err != nil {
		return fmt.Errorf("sweep: %w", err)
	}
	return nil
}
