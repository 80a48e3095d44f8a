// Package worker parses worker command flags and launches the worker runtime.
package worker

import (
	"context"
	"flag"
	"time"

	entrypoint "github.com/opendatakr/npscache/internal/platform/cmd"
	workerapp "github.com/opendatakr/npscache/internal/worker/app"
)

// Config holds worker command configuration.
type Config struct {
	DBPath          string        `env:"NPSCACHE_WORKER_DB_PATH" envDefault:"data/npscache.db"`
	AuthorityDSN    string        `env:"NPSCACHE_AUTHORITY_DSN"`
	APIBaseURL      string        `env:"NPSCACHE_API_BASE_URL"`
	APIServiceKey   string        `env:"NPSCACHE_API_SERVICE_KEY"`
	PollInterval    time.Duration `env:"NPSCACHE_WORKER_POLL_INTERVAL" envDefault:"1m"`
	PurgeInterval   time.Duration `env:"NPSCACHE_WORKER_PURGE_INTERVAL" envDefault:"24h"`
	LedgerRetention time.Duration `env:"NPSCACHE_WORKER_LEDGER_RETENTION" envDefault:"720h"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "The workplace SQLite database path")
	fs.StringVar(&cfg.AuthorityDSN, "authority-dsn", cfg.AuthorityDSN, "The remote authority Postgres DSN (empty for local-only)")
	fs.StringVar(&cfg.APIBaseURL, "api-base-url", cfg.APIBaseURL, "The workplace enquiry API base URL")
	fs.StringVar(&cfg.APIServiceKey, "api-service-key", cfg.APIServiceKey, "The workplace enquiry API service key")
	fs.DurationVar(&cfg.PollInterval, "poll-interval", cfg.PollInterval, "Reconciliation pass interval")
	fs.DurationVar(&cfg.PurgeInterval, "purge-interval", cfg.PurgeInterval, "How often old synced ledger entries are purged")
	fs.DurationVar(&cfg.LedgerRetention, "retention", cfg.LedgerRetention, "How long synced ledger entries are kept")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the worker runtime.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceWorker, func(context.Context) error {
		return workerapp.Run(ctx, workerapp.RuntimeConfig{
			DBPath:          cfg.DBPath,
			AuthorityDSN:    cfg.AuthorityDSN,
			APIBaseURL:      cfg.APIBaseURL,
			APIServiceKey:   cfg.APIServiceKey,
			PollInterval:    cfg.PollInterval,
			PurgeInterval:   cfg.PurgeInterval,
			LedgerRetention: cfg.LedgerRetention,
		})
	})
}
