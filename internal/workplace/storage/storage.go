// Package storage defines the persistence boundary for the workplace cache:
// the fingerprint-keyed response cache, the workplace record store, and the
// append-only change ledger that feeds remote reconciliation.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/opendatakr/npscache/internal/workplace"
)

var (
	// ErrNotFound indicates a requested cache entry, record, or ledger row is missing.
	ErrNotFound = errors.New("record not found")
	// ErrInvalid indicates a request carried missing or malformed fields.
	ErrInvalid = errors.New("invalid input")
)

// NoExpiration stores a response cache entry that never expires. A zero TTL
// stores an entry that is already expired.
const NoExpiration time.Duration = -1

// EntityKindWorkplace tags ledger entries produced by workplace record writes.
const EntityKindWorkplace = "workplace"

// CacheEntry stores one remote API response keyed by its request fingerprint.
type CacheEntry struct {
	Fingerprint    string
	APIKind        string
	RequestParams  string
	ResponseBody   string
	CreatedAt      time.Time
	ExpiresAt      *time.Time
	LastAccessedAt time.Time
	AccessCount    int64
}

// LedgerEntry stores one durable record mutation awaiting remote propagation.
// Before and After hold JSON snapshots of the row around the mutation; both
// are empty strings when the corresponding state did not exist.
type LedgerEntry struct {
	ID                int64
	EntityKind        string
	Operation         workplace.Operation
	RecordID          string
	Before            string
	After             string
	PropagationStatus workplace.SyncStatus
	ErrorDetail       string
	CreatedAt         time.Time
	PropagatedAt      *time.Time
}

// CacheStats summarizes local store contents for reporting.
type CacheStats struct {
	ResponseCount   int64
	ResponsesByKind map[string]int64
	RecordCount     int64
	TopAccessed     []workplace.Record
	PendingChanges  int64
	FailedChanges   int64
}

// ResponseCacheStore persists fingerprint-keyed API responses. GetResponse
// treats an expired row as a miss (ErrNotFound) and bumps access accounting
// on every hit.
type ResponseCacheStore interface {
	PutResponse(ctx context.Context, apiKind string, params map[string]string, body string, ttl time.Duration) error
	GetResponse(ctx context.Context, apiKind string, params map[string]string) (CacheEntry, error)
	SweepExpiredResponses(ctx context.Context, now time.Time) (int64, error)
}

// RecordStore persists workplace records with access accounting. Every
// mutation appends one ledger entry in the same transaction; the mutation is
// durable only if the append is. Upsert and delete return the appended ledger
// entry id.
type RecordStore interface {
	FindRecordsByName(ctx context.Context, name string, registrationNo string) ([]workplace.Record, error)
	UpsertRecord(ctx context.Context, record workplace.Record, operation workplace.Operation) (int64, error)
	DeleteRecord(ctx context.Context, seq string) (int64, error)
	MarkRecordSynced(ctx context.Context, seq string) error
	MarkRecordSyncError(ctx context.Context, seq string) error
}

// LedgerStore reads and resolves pending change ledger entries.
type LedgerStore interface {
	ListPendingChanges(ctx context.Context) ([]LedgerEntry, error)
	ListFailedChanges(ctx context.Context) ([]LedgerEntry, error)
	MarkChangeOutcome(ctx context.Context, id int64, success bool, errorDetail string) error
	PurgeSyncedChanges(ctx context.Context, olderThan time.Time) (int64, error)
}

// Store is the full persistence surface consumed by the reconciliation layer.
type Store interface {
	ResponseCacheStore
	RecordStore
	LedgerStore
	Stats(ctx context.Context) (CacheStats, error)
	ClearAll(ctx context.Context) error
}
