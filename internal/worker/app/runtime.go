// Package app runs the reconciliation worker: it owns the local store, the
// remote authority connection, and the polling loop that drains pending
// changes and maintains the response cache.
package app

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/opendatakr/npscache/internal/authority"
	"github.com/opendatakr/npscache/internal/nps"
	"github.com/opendatakr/npscache/internal/workplace/reconcile"
	workplacesqlite "github.com/opendatakr/npscache/internal/workplace/storage/sqlite"
)

// RuntimeConfig controls worker startup, dependencies, and loop behavior.
type RuntimeConfig struct {
	DBPath          string
	AuthorityDSN    string
	APIBaseURL      string
	APIServiceKey   string
	PollInterval    time.Duration
	PurgeInterval   time.Duration
	LedgerRetention time.Duration
}

const (
	defaultWorkerDB      = "data/npscache.db"
	defaultPollInterval  = time.Minute
	defaultPurgeInterval = 24 * time.Hour
)

// Run starts worker runtime dependencies and the reconciliation loop. It
// returns once ctx is done or a dependency fails to start. A missing
// authority DSN means local-only mode: changes queue in the ledger until a
// configured run drains them.
func Run(ctx context.Context, cfg RuntimeConfig) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		cfg.DBPath = defaultWorkerDB
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.PurgeInterval <= 0 {
		cfg.PurgeInterval = defaultPurgeInterval
	}
	if cfg.LedgerRetention <= 0 {
		cfg.LedgerRetention = reconcile.DefaultLedgerRetention
	}

	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create worker storage dir: %w", err)
		}
	}

	store, err := workplacesqlite.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open workplace store: %w", err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			log.Printf("close workplace store: %v", closeErr)
		}
	}()

	var remote reconcile.Authority
	if strings.TrimSpace(cfg.AuthorityDSN) != "" {
		authorityClient, err := authority.Open(cfg.AuthorityDSN)
		if err != nil {
			return fmt.Errorf("open authority: %w", err)
		}
		defer func() {
			if closeErr := authorityClient.Close(); closeErr != nil {
				log.Printf("close authority connection: %v", closeErr)
			}
		}()
		remote = authorityClient
	}

	var source reconcile.Source
	if strings.TrimSpace(cfg.APIServiceKey) != "" {
		source = nps.NewClient(cfg.APIBaseURL, cfg.APIServiceKey, store, nil)
	}

	coordinator := reconcile.NewCoordinator(store, remote, source)
	switch {
	case remote == nil:
		log.Printf("no authority configured, running local-only")
	case !coordinator.RefreshAuthority(ctx):
		log.Printf("authority unreachable at boot, starting degraded")
	}

	loop := &Loop{
		Coordinator:     coordinator,
		PollInterval:    cfg.PollInterval,
		PurgeInterval:   cfg.PurgeInterval,
		LedgerRetention: cfg.LedgerRetention,
	}
	log.Printf("worker polling every %s (db %s)", cfg.PollInterval, cfg.DBPath)
	return loop.Run(ctx)
}
