package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/opendatakr/npscache/internal/workplace/reconcile"
)

// Coordinator is the slice of the reconciliation coordinator the loop drives.
type Coordinator interface {
	RefreshAuthority(ctx context.Context) bool
	DrainPending(ctx context.Context) (reconcile.Report, error)
	SweepExpired(ctx context.Context) (int64, error)
	PurgeSynced(ctx context.Context, retention time.Duration) (int64, error)
	Stats(ctx context.Context) (reconcile.Stats, error)
}

// Loop runs reconciliation passes on a fixed interval from a single
// goroutine, so no two passes ever process the same ledger entry.
type Loop struct {
	Coordinator     Coordinator
	PollInterval    time.Duration
	PurgeInterval   time.Duration
	LedgerRetention time.Duration

	clock     func() time.Time
	lastPurge time.Time
}

// Run blocks until ctx is done. The first pass runs immediately; later
// passes follow the poll interval.
func (l *Loop) Run(ctx context.Context) error {
	if l == nil || l.Coordinator == nil {
		return fmt.Errorf("loop coordinator is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if l.PollInterval <= 0 {
		l.PollInterval = defaultPollInterval
	}
	if l.PurgeInterval <= 0 {
		l.PurgeInterval = defaultPurgeInterval
	}

	l.pass(ctx)

	ticker := time.NewTicker(l.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Printf("worker stopped")
			return nil
		case <-ticker.C:
			l.pass(ctx)
		}
	}
}

// pass runs one reconciliation cycle: re-probe the authority, drain pending
// changes, sweep expired responses, and purge old synced ledger entries once
// per purge interval. Failures are logged and the next tick tries again.
func (l *Loop) pass(ctx context.Context) {
	runID := uuid.Must(uuid.NewV7()).String()
	ctx, span := otel.Tracer("worker").Start(ctx, "reconcile.pass",
		trace.WithAttributes(attribute.String("run.id", runID)))
	defer span.End()

	if !l.Coordinator.RefreshAuthority(ctx) {
		if stats, err := l.Coordinator.Stats(ctx); err == nil && stats.PendingChanges > 0 {
			log.Printf("pass %s: authority unreachable, %d changes queued", runID, stats.PendingChanges)
		}
	}

	report, err := l.Coordinator.DrainPending(ctx)
	if err != nil {
		log.Printf("pass %s: drain pending: %v", runID, err)
	} else if report.Processed > 0 {
		log.Printf("pass %s: drained %d changes (%d synced, %d failed)",
			runID, report.Processed, report.Succeeded, report.Failed)
	}

	removed, err := l.Coordinator.SweepExpired(ctx)
	if err != nil {
		log.Printf("pass %s: sweep expired responses: %v", runID, err)
	} else if removed > 0 {
		log.Printf("pass %s: swept %d expired responses", runID, removed)
	}

	now := l.now()
	if l.lastPurge.IsZero() || now.Sub(l.lastPurge) >= l.PurgeInterval {
		purged, err := l.Coordinator.PurgeSynced(ctx, l.LedgerRetention)
		if err != nil {
			log.Printf("pass %s: purge synced changes: %v", runID, err)
		} else {
			l.lastPurge = now
			if purged > 0 {
				log.Printf("pass %s: purged %d synced changes", runID, purged)
			}
		}
	}
}

func (l *Loop) now() time.Time {
	if l.clock != nil {
		return l.clock()
	}
	return time.Now()
}
