package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newSearchCommand(opts *Options) *cobra.Command {
	var registrationNo string

	cmd := &cobra.Command{
		Use:   "search <name>",
		Short: "Look up workplaces by name, reading through to the authority on a local miss",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer s.Close()

			records, err := s.coordinator.GetRecord(cmd.Context(), args[0], registrationNo)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				if strings.TrimSpace(opts.AuthorityDSN) != "" && !s.coordinator.AuthorityConnected() {
					fmt.Fprintln(cmd.OutOrStdout(), "no workplaces found (authority unreachable, local result may be incomplete)")
				} else {
					fmt.Fprintln(cmd.OutOrStdout(), "no workplaces found")
				}
				return nil
			}
			printRecords(cmd.OutOrStdout(), records)
			return nil
		},
	}
	cmd.Flags().StringVar(&registrationNo, "registration-no", "", "narrow the search to one business registration number")
	return cmd
}
