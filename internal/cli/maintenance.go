package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/opendatakr/npscache/internal/workplace/reconcile"
)

func newSweepCommand(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Remove expired entries from the response cache",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer s.Close()

			removed, err := s.coordinator.SweepExpired(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d expired responses\n", removed)
			return nil
		},
	}
}

func newPurgeCommand(opts *Options) *cobra.Command {
	var retention time.Duration

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Remove synced ledger entries older than the retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer s.Close()

			purged, err := s.coordinator.PurgeSynced(cmd.Context(), retention)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "purged %d synced ledger entries\n", purged)
			return nil
		},
	}
	cmd.Flags().DurationVar(&retention, "retention", reconcile.DefaultLedgerRetention, "how long synced ledger entries are kept")
	return cmd
}
