package cli

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/opendatakr/npscache/internal/authority"
	"github.com/opendatakr/npscache/internal/nps"
	"github.com/opendatakr/npscache/internal/workplace/reconcile"
	workplacesqlite "github.com/opendatakr/npscache/internal/workplace/storage/sqlite"
)

// session owns the store and remote connections for one command invocation.
type session struct {
	coordinator *reconcile.Coordinator
	store       *workplacesqlite.Store
	authority   *authority.Client
}

// openSession wires a coordinator from the options. The authority probe runs
// once here so read-through and stats see current connectivity.
func openSession(ctx context.Context, opts *Options) (*session, error) {
	store, err := workplacesqlite.Open(opts.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open workplace store: %w", err)
	}
	s := &session{store: store}

	var remote reconcile.Authority
	if strings.TrimSpace(opts.AuthorityDSN) != "" {
		client, err := authority.Open(opts.AuthorityDSN)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("open authority: %w", err)
		}
		s.authority = client
		remote = client
	}

	var source reconcile.Source
	if strings.TrimSpace(opts.APIServiceKey) != "" {
		source = nps.NewClient(opts.APIBaseURL, opts.APIServiceKey, store, nil)
	}

	s.coordinator = reconcile.NewCoordinator(store, remote, source)
	s.coordinator.RefreshAuthority(ctx)
	return s, nil
}

// Close releases the session connections.
func (s *session) Close() {
	if s == nil {
		return
	}
	if s.authority != nil {
		if err := s.authority.Close(); err != nil {
			log.Printf("close authority connection: %v", err)
		}
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			log.Printf("close workplace store: %v", err)
		}
	}
}
