// Package cli implements the npscache admin command tree: cache lookups,
// imports from the enquiry API, manual reconciliation passes, and store
// maintenance.
package cli

import (
	"github.com/spf13/cobra"

	entrypoint "github.com/opendatakr/npscache/internal/platform/cmd"
)

// Options holds configuration shared by every subcommand. Environment values
// load first; flags override them.
type Options struct {
	DBPath        string `env:"NPSCACHE_DB_PATH" envDefault:"data/npscache.db"`
	AuthorityDSN  string `env:"NPSCACHE_AUTHORITY_DSN"`
	APIBaseURL    string `env:"NPSCACHE_API_BASE_URL"`
	APIServiceKey string `env:"NPSCACHE_API_SERVICE_KEY"`
}

// NewRootCommand builds the npscache command tree.
func NewRootCommand() (*cobra.Command, error) {
	opts := &Options{}
	if err := entrypoint.ParseConfig(opts); err != nil {
		return nil, err
	}

	cmd := &cobra.Command{
		Use:           "npscache",
		Short:         "Manage the local workplace cache and its reconciliation ledger",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.DBPath, "db", opts.DBPath, "path to the workplace SQLite database")
	cmd.PersistentFlags().StringVar(&opts.AuthorityDSN, "authority-dsn", opts.AuthorityDSN, "remote authority Postgres DSN (empty for local-only)")
	cmd.PersistentFlags().StringVar(&opts.APIBaseURL, "api-base-url", opts.APIBaseURL, "workplace enquiry API base URL")
	cmd.PersistentFlags().StringVar(&opts.APIServiceKey, "api-service-key", opts.APIServiceKey, "workplace enquiry API service key")

	cmd.AddCommand(
		newSearchCommand(opts),
		newImportCommand(opts),
		newSaveCommand(opts),
		newDeleteCommand(opts),
		newSyncCommand(opts),
		newSweepCommand(opts),
		newPurgeCommand(opts),
		newStatsCommand(opts),
		newClearCommand(opts),
	)
	return cmd, nil
}
