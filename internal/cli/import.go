package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newImportCommand(opts *Options) *cobra.Command {
	var registrationNo string

	cmd := &cobra.Command{
		Use:   "import <name>",
		Short: "Fetch workplaces from the enquiry API and save them locally",
		Long: `Fetch workplaces from the national pension enquiry API and save them locally.

Each matching workplace is enriched with its detail and monthly figures, the
average monthly salary is derived, and the rows are queued for reconciliation
with the authority. Raw API responses land in the fingerprint response cache,
so repeating an import does not re-hit the rate-limited API.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer s.Close()

			records, err := s.coordinator.Import(cmd.Context(), args[0], registrationNo)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no workplaces found upstream")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d workplaces\n\n", len(records))
			printRecords(cmd.OutOrStdout(), records)
			return nil
		},
	}
	cmd.Flags().StringVar(&registrationNo, "registration-no", "", "narrow the search to one business registration number")
	return cmd
}
