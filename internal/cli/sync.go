package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/opendatakr/npscache/internal/workplace/reconcile"
)

func newSyncCommand(opts *Options) *cobra.Command {
	var retryFailed bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Replay queued ledger entries against the authority",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(opts.AuthorityDSN) == "" {
				return fmt.Errorf("authority DSN is not configured")
			}
			s, err := openSession(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer s.Close()

			if !s.coordinator.AuthorityConnected() {
				return fmt.Errorf("authority is unreachable, changes stay queued")
			}

			var report reconcile.Report
			if retryFailed {
				report, err = s.coordinator.RetryFailed(cmd.Context())
			} else {
				report, err = s.coordinator.DrainPending(cmd.Context())
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "processed %d changes: %d synced, %d failed\n",
				report.Processed, report.Succeeded, report.Failed)
			return nil
		},
	}
	cmd.Flags().BoolVar(&retryFailed, "retry-failed", false, "replay previously failed entries instead of pending ones")
	return cmd
}
