package reconcile

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/opendatakr/npscache/internal/nps"
	"github.com/opendatakr/npscache/internal/workplace"
	"github.com/opendatakr/npscache/internal/workplace/storage"
)

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

// fakeStore mirrors the sqlite store semantics in memory: every record
// mutation appends one ledger entry, and resolving an entry successfully
// flips the record to synced.
type fakeStore struct {
	mu        sync.Mutex
	responses map[string]storage.CacheEntry
	records   map[string]workplace.Record
	entries   []storage.LedgerEntry
	nextID    int64
	now       time.Time

	upsertErr  error
	deleteErr  error
	outcomeErr error

	sweptAt    []time.Time
	purgedAt   []time.Time
	clearCalls int
}

var _ storage.Store = (*fakeStore)(nil)

func newFakeStore(now time.Time) *fakeStore {
	return &fakeStore{
		responses: map[string]storage.CacheEntry{},
		records:   map[string]workplace.Record{},
		now:       now,
	}
}

func (f *fakeStore) PutResponse(_ context.Context, apiKind string, params map[string]string, body string, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[storage.Fingerprint(apiKind, params)] = storage.CacheEntry{
		APIKind:      apiKind,
		ResponseBody: body,
		AccessCount:  1,
	}
	return nil
}

func (f *fakeStore) GetResponse(_ context.Context, apiKind string, params map[string]string) (storage.CacheEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entry, ok := f.responses[storage.Fingerprint(apiKind, params)]
	if !ok {
		return storage.CacheEntry{}, storage.ErrNotFound
	}
	return entry, nil
}

func (f *fakeStore) SweepExpiredResponses(_ context.Context, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sweptAt = append(f.sweptAt, now)
	return 0, nil
}

func (f *fakeStore) FindRecordsByName(_ context.Context, name, registrationNo string) ([]workplace.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("workplace name is required: %w", storage.ErrInvalid)
	}

	var matches []workplace.Record
	for seq, record := range f.records {
		if record.Name != name {
			continue
		}
		if registrationNo != "" && record.RegistrationNo != registrationNo {
			continue
		}
		record.AccessCount++
		record.LastAccessedAt = f.now
		f.records[seq] = record
		matches = append(matches, record)
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Seq < matches[j].Seq })
	return matches, nil
}

func (f *fakeStore) UpsertRecord(_ context.Context, record workplace.Record, operation workplace.Operation) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return 0, f.upsertErr
	}
	record.Seq = workplace.NormalizeSeq(record.Seq)
	if record.Seq == "" || strings.TrimSpace(record.Name) == "" {
		return 0, fmt.Errorf("seq and name are required: %w", storage.ErrInvalid)
	}
	if operation != workplace.OperationInsert && operation != workplace.OperationUpdate {
		return 0, fmt.Errorf("operation %q is not an upsert: %w", operation, storage.ErrInvalid)
	}

	before := ""
	if prior, ok := f.records[record.Seq]; ok {
		before = mustSnapshot(prior)
	}
	record.CreatedAt = f.now
	record.UpdatedAt = f.now
	record.LastAccessedAt = f.now
	record.AccessCount = 1
	record.SyncStatus = workplace.SyncStatusPending
	f.records[record.Seq] = record

	return f.appendEntry(operation, record.Seq, before, mustSnapshot(record)), nil
}

func (f *fakeStore) DeleteRecord(_ context.Context, seq string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return 0, f.deleteErr
	}
	seq = workplace.NormalizeSeq(seq)
	if seq == "" {
		return 0, fmt.Errorf("seq is required: %w", storage.ErrInvalid)
	}

	before := ""
	if prior, ok := f.records[seq]; ok {
		before = mustSnapshot(prior)
		delete(f.records, seq)
	}
	return f.appendEntry(workplace.OperationDelete, seq, before, ""), nil
}

func (f *fakeStore) MarkRecordSynced(_ context.Context, seq string) error {
	return f.markRecord(seq, workplace.SyncStatusSynced)
}

func (f *fakeStore) MarkRecordSyncError(_ context.Context, seq string) error {
	return f.markRecord(seq, workplace.SyncStatusError)
}

func (f *fakeStore) markRecord(seq string, status workplace.SyncStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	record, ok := f.records[workplace.NormalizeSeq(seq)]
	if !ok {
		return nil
	}
	record.SyncStatus = status
	f.records[record.Seq] = record
	return nil
}

func (f *fakeStore) ListPendingChanges(_ context.Context) ([]storage.LedgerEntry, error) {
	return f.listByStatus(workplace.SyncStatusPending), nil
}

func (f *fakeStore) ListFailedChanges(_ context.Context) ([]storage.LedgerEntry, error) {
	return f.listByStatus(workplace.SyncStatusError), nil
}

func (f *fakeStore) listByStatus(status workplace.SyncStatus) []storage.LedgerEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	var matches []storage.LedgerEntry
	for _, entry := range f.entries {
		if entry.PropagationStatus == status {
			matches = append(matches, entry)
		}
	}
	return matches
}

func (f *fakeStore) MarkChangeOutcome(_ context.Context, id int64, success bool, errorDetail string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.outcomeErr != nil {
		return f.outcomeErr
	}
	for i := range f.entries {
		if f.entries[i].ID != id {
			continue
		}
		if success {
			propagatedAt := f.now
			f.entries[i].PropagationStatus = workplace.SyncStatusSynced
			f.entries[i].PropagatedAt = &propagatedAt
			f.entries[i].ErrorDetail = ""
			if record, ok := f.records[f.entries[i].RecordID]; ok {
				record.SyncStatus = workplace.SyncStatusSynced
				f.records[record.Seq] = record
			}
		} else {
			f.entries[i].PropagationStatus = workplace.SyncStatusError
			f.entries[i].ErrorDetail = strings.TrimSpace(errorDetail)
		}
		return nil
	}
	return storage.ErrNotFound
}

func (f *fakeStore) PurgeSyncedChanges(_ context.Context, olderThan time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.purgedAt = append(f.purgedAt, olderThan)

	var kept []storage.LedgerEntry
	var removed int64
	for _, entry := range f.entries {
		if entry.PropagationStatus == workplace.SyncStatusSynced && entry.CreatedAt.Before(olderThan) {
			removed++
			continue
		}
		kept = append(kept, entry)
	}
	f.entries = kept
	return removed, nil
}

func (f *fakeStore) Stats(_ context.Context) (storage.CacheStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stats := storage.CacheStats{
		ResponseCount:   int64(len(f.responses)),
		ResponsesByKind: map[string]int64{},
		RecordCount:     int64(len(f.records)),
	}
	for _, entry := range f.responses {
		stats.ResponsesByKind[entry.APIKind]++
	}
	for _, entry := range f.entries {
		switch entry.PropagationStatus {
		case workplace.SyncStatusPending:
			stats.PendingChanges++
		case workplace.SyncStatusError:
			stats.FailedChanges++
		}
	}
	return stats, nil
}

func (f *fakeStore) ClearAll(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clearCalls++
	f.responses = map[string]storage.CacheEntry{}
	f.records = map[string]workplace.Record{}
	f.entries = nil
	return nil
}

func (f *fakeStore) appendEntry(operation workplace.Operation, recordID, before, after string) int64 {
	f.nextID++
	f.entries = append(f.entries, storage.LedgerEntry{
		ID:                f.nextID,
		EntityKind:        storage.EntityKindWorkplace,
		Operation:         operation,
		RecordID:          recordID,
		Before:            before,
		After:             after,
		PropagationStatus: workplace.SyncStatusPending,
		CreatedAt:         f.now,
	})
	return f.nextID
}

func (f *fakeStore) record(seq string) (workplace.Record, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	record, ok := f.records[seq]
	return record, ok
}

func (f *fakeStore) entry(id int64) (storage.LedgerEntry, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, entry := range f.entries {
		if entry.ID == id {
			return entry, true
		}
	}
	return storage.LedgerEntry{}, false
}

func mustSnapshot(record workplace.Record) string {
	snapshot, err := storage.EncodeSnapshot(record)
	if err != nil {
		panic(err)
	}
	return snapshot
}

// fakeAuthority records the calls it receives and fails the seqs it is told
// to fail.
type fakeAuthority struct {
	mu      sync.Mutex
	pingErr error

	findRows  []workplace.Record
	findErr   error
	findCalls int

	baseErr   map[string]error
	deleteErr map[string]error

	baseCalls    []string
	detailCalls  []string
	monthlyCalls []string
	deleteCalls  []string

	onUpsertBase func(seq string)
}

var _ Authority = (*fakeAuthority)(nil)

func newFakeAuthority() *fakeAuthority {
	return &fakeAuthority{
		baseErr:   map[string]error{},
		deleteErr: map[string]error{},
	}
}

func (f *fakeAuthority) Ping(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pingErr
}

func (f *fakeAuthority) FindByName(_ context.Context, name, registrationNo string) ([]workplace.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.findCalls++
	if f.findErr != nil {
		return nil, f.findErr
	}
	var matches []workplace.Record
	for _, record := range f.findRows {
		if record.Name != name {
			continue
		}
		if registrationNo != "" && record.RegistrationNo != registrationNo {
			continue
		}
		matches = append(matches, record)
	}
	return matches, nil
}

func (f *fakeAuthority) UpsertBase(_ context.Context, record workplace.Record) error {
	f.mu.Lock()
	hook := f.onUpsertBase
	f.baseCalls = append(f.baseCalls, record.Seq)
	err := f.baseErr[record.Seq]
	f.mu.Unlock()
	if hook != nil {
		hook(record.Seq)
	}
	return err
}

func (f *fakeAuthority) UpsertDetail(_ context.Context, record workplace.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.detailCalls = append(f.detailCalls, record.Seq)
	return nil
}

func (f *fakeAuthority) UpsertMonthly(_ context.Context, record workplace.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.monthlyCalls = append(f.monthlyCalls, record.Seq)
	return nil
}

func (f *fakeAuthority) DeleteAll(_ context.Context, seq string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteCalls = append(f.deleteCalls, seq)
	return f.deleteErr[seq]
}

// fakeSource serves canned upstream rows keyed by seq.
type fakeSource struct {
	bases   []nps.BaseInfo
	baseErr error

	details    map[string]nps.DetailInfo
	detailErr  map[string]error
	monthlies  map[string]nps.MonthlyStatus
	monthlyErr map[string]error
}

var _ Source = (*fakeSource)(nil)

func newFakeSource() *fakeSource {
	return &fakeSource{
		details:    map[string]nps.DetailInfo{},
		detailErr:  map[string]error{},
		monthlies:  map[string]nps.MonthlyStatus{},
		monthlyErr: map[string]error{},
	}
}

func (f *fakeSource) FetchBase(_ context.Context, name, registrationNo string) ([]nps.BaseInfo, error) {
	if f.baseErr != nil {
		return nil, f.baseErr
	}
	return f.bases, nil
}

func (f *fakeSource) FetchDetail(_ context.Context, seq string) (nps.DetailInfo, error) {
	if err := f.detailErr[seq]; err != nil {
		return nps.DetailInfo{}, err
	}
	return f.details[seq], nil
}

func (f *fakeSource) FetchMonthly(_ context.Context, seq string) (nps.MonthlyStatus, error) {
	if err := f.monthlyErr[seq]; err != nil {
		return nps.MonthlyStatus{}, err
	}
	return f.monthlies[seq], nil
}

func int64Value(value int64) *int64 {
	return &value
}
