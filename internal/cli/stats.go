package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
)

func newStatsCommand(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Summarize the local store and authority connectivity",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer s.Close()

			stats, err := s.coordinator.Stats(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "cached responses: %s\n", numberPrinter.Sprintf("%d", stats.ResponseCount))
			kinds := make([]string, 0, len(stats.ResponsesByKind))
			for kind := range stats.ResponsesByKind {
				kinds = append(kinds, kind)
			}
			sort.Strings(kinds)
			for _, kind := range kinds {
				fmt.Fprintf(out, "  %s: %s\n", kind, numberPrinter.Sprintf("%d", stats.ResponsesByKind[kind]))
			}
			fmt.Fprintf(out, "workplace records: %s\n", numberPrinter.Sprintf("%d", stats.RecordCount))
			fmt.Fprintf(out, "pending changes: %s\n", numberPrinter.Sprintf("%d", stats.PendingChanges))
			fmt.Fprintf(out, "failed changes: %s\n", numberPrinter.Sprintf("%d", stats.FailedChanges))

			switch {
			case strings.TrimSpace(opts.AuthorityDSN) == "":
				fmt.Fprintln(out, "authority: not configured")
			case stats.AuthorityConnected:
				fmt.Fprintln(out, "authority: connected")
			default:
				fmt.Fprintln(out, "authority: unreachable")
			}

			if len(stats.TopAccessed) > 0 {
				fmt.Fprintln(out, "top accessed workplaces:")
				for i, record := range stats.TopAccessed {
					fmt.Fprintf(out, "  %d. %s (seq %s, %d reads)\n", i+1, record.Name, record.Seq, record.AccessCount)
				}
			}
			return nil
		},
	}
}
