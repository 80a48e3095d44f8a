package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/opendatakr/npscache/internal/workplace"
)

func newDeleteCommand(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <seq>",
		Short: "Remove one workplace locally and queue the deletion for the authority",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.coordinator.DeleteRecord(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "workplace %s deleted\n", workplace.NormalizeSeq(args[0]))
			return nil
		},
	}
}
