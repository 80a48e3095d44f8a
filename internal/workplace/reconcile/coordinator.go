// Package reconcile keeps the local workplace cache and the remote authority
// converging: reads fall through to the authority and backfill the cache,
// writes land locally first and drain to the authority through the change
// ledger.
package reconcile

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opendatakr/npscache/internal/nps"
	"github.com/opendatakr/npscache/internal/workplace"
	"github.com/opendatakr/npscache/internal/workplace/storage"
)

// DefaultLedgerRetention is how long resolved ledger entries are kept before
// a purge pass removes them.
const DefaultLedgerRetention = 30 * 24 * time.Hour

// Source fetches workplace rows from the upstream enquiry API.
type Source interface {
	FetchBase(ctx context.Context, name, registrationNo string) ([]nps.BaseInfo, error)
	FetchDetail(ctx context.Context, seq string) (nps.DetailInfo, error)
	FetchMonthly(ctx context.Context, seq string) (nps.MonthlyStatus, error)
}

// Authority applies reconciled rows to the remote database. Every write is
// idempotent so the ledger can replay an entry after a partial failure.
type Authority interface {
	FindByName(ctx context.Context, name, registrationNo string) ([]workplace.Record, error)
	UpsertBase(ctx context.Context, record workplace.Record) error
	UpsertDetail(ctx context.Context, record workplace.Record) error
	UpsertMonthly(ctx context.Context, record workplace.Record) error
	DeleteAll(ctx context.Context, seq string) error
	Ping(ctx context.Context) error
}

// Report summarizes one reconciliation pass over the ledger.
type Report struct {
	Processed int
	Succeeded int
	Failed    int
}

// Stats extends the local store summary with remote health.
type Stats struct {
	storage.CacheStats
	AuthorityConnected bool
}

// Coordinator mediates between the local store, the upstream record source,
// and the remote authority. A nil authority or source leaves the coordinator
// in degraded mode for the operations that need them.
type Coordinator struct {
	store     storage.Store
	authority Authority
	source    Source
	clock     func() time.Time

	connected atomic.Bool
	drainMu   sync.Mutex
}

// NewCoordinator builds a coordinator over the given collaborators. The
// authority starts out assumed unreachable until RefreshAuthority probes it.
func NewCoordinator(store storage.Store, authority Authority, source Source) *Coordinator {
	return &Coordinator{
		store:     store,
		authority: authority,
		source:    source,
		clock:     nowUTC,
	}
}

func nowUTC() time.Time {
	return time.Now().UTC()
}

// AuthorityConnected reports the last observed health of the remote
// authority. Callers use it to tell "no data" apart from "no data while
// degraded".
func (c *Coordinator) AuthorityConnected() bool {
	if c == nil {
		return false
	}
	return c.connected.Load()
}

// RefreshAuthority probes the remote authority and records the result.
func (c *Coordinator) RefreshAuthority(ctx context.Context) bool {
	if c == nil {
		return false
	}
	up := c.authority != nil && c.authority.Ping(ctx) == nil
	c.connected.Store(up)
	return up
}

// GetRecord returns the workplaces matching a name, reading through to the
// remote authority on a local miss. Local hits never consult the authority.
// When the authority is unreachable the miss degrades to an empty result
// instead of failing.
func (c *Coordinator) GetRecord(ctx context.Context, name, registrationNo string) ([]workplace.Record, error) {
	if c == nil || c.store == nil {
		return nil, fmt.Errorf("reconciliation store is not configured")
	}
	name = strings.TrimSpace(name)
	registrationNo = strings.TrimSpace(registrationNo)
	if name == "" {
		return nil, fmt.Errorf("workplace name is required: %w", storage.ErrInvalid)
	}

	local, err := c.store.FindRecordsByName(ctx, name, registrationNo)
	if err != nil {
		return nil, err
	}
	if len(local) > 0 {
		return local, nil
	}

	if c.authority == nil || !c.connected.Load() {
		return []workplace.Record{}, nil
	}
	remote, err := c.authority.FindByName(ctx, name, registrationNo)
	if err != nil {
		c.connected.Store(false)
		return []workplace.Record{}, nil
	}

	// Backfill appends ledger entries that stay pending; replaying them
	// against the authority is an idempotent no-op.
	for _, record := range remote {
		if _, err := c.store.UpsertRecord(ctx, record, workplace.OperationInsert); err != nil {
			return nil, fmt.Errorf("backfill record %s: %w", record.Seq, err)
		}
	}
	return remote, nil
}

// SaveRecord writes one workplace locally and pushes the change to the
// authority right away when it is reachable. The local write alone decides
// success: a propagation failure stays on the ledger for the next drain and
// is not surfaced here.
func (c *Coordinator) SaveRecord(ctx context.Context, record workplace.Record, operation workplace.Operation) error {
	if c == nil || c.store == nil {
		return fmt.Errorf("reconciliation store is not configured")
	}
	switch operation {
	case workplace.OperationInsert, workplace.OperationUpdate:
	case workplace.OperationDelete:
		return c.DeleteRecord(ctx, record.Seq)
	default:
		return fmt.Errorf("operation %q is not recognized: %w", operation, storage.ErrInvalid)
	}

	if record.AvgMonthlySalary == nil {
		record.AvgMonthlySalary = workplace.DeriveAvgMonthlySalary(record.SubscriberCount, record.MonthlyNoticeAmount)
	}

	entryID, err := c.store.UpsertRecord(ctx, record, operation)
	if err != nil {
		return err
	}
	c.propagate(ctx, entryID, record, operation)
	return nil
}

// DeleteRecord removes one workplace locally and pushes the deletion to the
// authority right away when it is reachable. Deleting an absent record still
// ledgers the intent.
func (c *Coordinator) DeleteRecord(ctx context.Context, seq string) error {
	if c == nil || c.store == nil {
		return fmt.Errorf("reconciliation store is not configured")
	}
	entryID, err := c.store.DeleteRecord(ctx, seq)
	if err != nil {
		return err
	}
	c.propagate(ctx, entryID, workplace.Record{Seq: workplace.NormalizeSeq(seq)}, workplace.OperationDelete)
	return nil
}

// propagate applies one freshly ledgered change best-effort. Outcome marking
// failures leave the entry pending, which the next drain resolves.
func (c *Coordinator) propagate(ctx context.Context, entryID int64, record workplace.Record, operation workplace.Operation) {
	if c.authority == nil || !c.connected.Load() {
		return
	}

	var applyErr error
	if operation == workplace.OperationDelete {
		applyErr = c.authority.DeleteAll(ctx, record.Seq)
	} else {
		applyErr = c.applyRecord(ctx, record)
	}
	if applyErr != nil {
		_ = c.store.MarkChangeOutcome(ctx, entryID, false, applyErr.Error())
		_ = c.store.MarkRecordSyncError(ctx, record.Seq)
		return
	}
	_ = c.store.MarkChangeOutcome(ctx, entryID, true, "")
}

// Stats reports local store contents together with remote health.
func (c *Coordinator) Stats(ctx context.Context) (Stats, error) {
	if c == nil || c.store == nil {
		return Stats{}, fmt.Errorf("reconciliation store is not configured")
	}
	cacheStats, err := c.store.Stats(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Stats{CacheStats: cacheStats, AuthorityConnected: c.connected.Load()}, nil
}

// SweepExpired removes response cache entries whose TTL has passed.
func (c *Coordinator) SweepExpired(ctx context.Context) (int64, error) {
	if c == nil || c.store == nil {
		return 0, fmt.Errorf("reconciliation store is not configured")
	}
	return c.store.SweepExpiredResponses(ctx, c.clock())
}

// PurgeSynced removes resolved ledger entries older than the retention
// window. A non-positive retention falls back to DefaultLedgerRetention.
func (c *Coordinator) PurgeSynced(ctx context.Context, retention time.Duration) (int64, error) {
	if c == nil || c.store == nil {
		return 0, fmt.Errorf("reconciliation store is not configured")
	}
	if retention <= 0 {
		retention = DefaultLedgerRetention
	}
	return c.store.PurgeSyncedChanges(ctx, c.clock().Add(-retention))
}

// ClearAll wipes every local table: cached responses, records, and the
// ledger. Pending changes are lost, so callers gate this behind explicit
// confirmation.
func (c *Coordinator) ClearAll(ctx context.Context) error {
	if c == nil || c.store == nil {
		return fmt.Errorf("reconciliation store is not configured")
	}
	return c.store.ClearAll(ctx)
}
