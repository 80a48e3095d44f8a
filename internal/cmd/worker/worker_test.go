package worker

import (
	"flag"
	"testing"
	"time"
)

func TestParseConfig_ParsesDefaultsAndFlags(t *testing.T) {
	fs := flag.NewFlagSet("worker", flag.ContinueOnError)
	t.Setenv("NPSCACHE_WORKER_DB_PATH", "env/npscache.db")
	t.Setenv("NPSCACHE_AUTHORITY_DSN", "postgres://nps:secret@db:5432/nps")

	cfg, err := ParseConfig(fs, []string{"-poll-interval", "30s", "-retention", "168h"})
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.DBPath != "env/npscache.db" {
		t.Fatalf("db path = %q, want %q", cfg.DBPath, "env/npscache.db")
	}
	if cfg.AuthorityDSN != "postgres://nps:secret@db:5432/nps" {
		t.Fatalf("authority dsn = %q, want env value", cfg.AuthorityDSN)
	}
	if cfg.PollInterval != 30*time.Second {
		t.Fatalf("poll interval = %s, want 30s", cfg.PollInterval)
	}
	if cfg.LedgerRetention != 168*time.Hour {
		t.Fatalf("retention = %s, want 168h", cfg.LedgerRetention)
	}
}

func TestParseConfig_Defaults(t *testing.T) {
	fs := flag.NewFlagSet("worker", flag.ContinueOnError)

	cfg, err := ParseConfig(fs, nil)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.DBPath != "data/npscache.db" {
		t.Fatalf("db path = %q, want %q", cfg.DBPath, "data/npscache.db")
	}
	if cfg.AuthorityDSN != "" {
		t.Fatalf("authority dsn = %q, want empty for local-only", cfg.AuthorityDSN)
	}
	if cfg.PollInterval != time.Minute {
		t.Fatalf("poll interval = %s, want 1m", cfg.PollInterval)
	}
	if cfg.PurgeInterval != 24*time.Hour {
		t.Fatalf("purge interval = %s, want 24h", cfg.PurgeInterval)
	}
	if cfg.LedgerRetention != 720*time.Hour {
		t.Fatalf("retention = %s, want 720h", cfg.LedgerRetention)
	}
}

func TestParseConfig_FlagOverridesEnv(t *testing.T) {
	fs := flag.NewFlagSet("worker", flag.ContinueOnError)
	t.Setenv("NPSCACHE_WORKER_POLL_INTERVAL", "5m")

	cfg, err := ParseConfig(fs, []string{"-poll-interval", "10s"})
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.PollInterval != 10*time.Second {
		t.Fatalf("poll interval = %s, want flag value 10s", cfg.PollInterval)
	}
}
