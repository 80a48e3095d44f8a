// Package sqlite provides SQLite-backed persistence for the workplace cache,
// the record store, and the change ledger.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	sqlitemigrate "github.com/opendatakr/npscache/internal/platform/storage/sqlitemigrate"
	"github.com/opendatakr/npscache/internal/workplace"
	"github.com/opendatakr/npscache/internal/workplace/storage"
	"github.com/opendatakr/npscache/internal/workplace/storage/sqlite/migrations"
	_ "modernc.org/sqlite"
)

// Store implements storage.Store on a single SQLite database file.
type Store struct {
	sqlDB *sql.DB
}

var _ storage.Store = (*Store)(nil)

const topAccessedLimit = 5

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

func nowUTC() time.Time {
	// Millisecond precision so snapshots agree with stored column values.
	return time.UnixMilli(time.Now().UnixMilli()).UTC()
}

// Open opens the workplace SQLite store at the provided path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One connection serializes every logical operation, including the
	// read-modify-write access accounting.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	store := &Store{sqlDB: sqlDB}
	if err := store.runMigrations(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return store, nil
}

// Close closes the underlying SQLite database.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) runMigrations() error {
	return sqlitemigrate.ApplyMigrations(s.sqlDB, migrations.FS, "")
}

// PutResponse upserts one fingerprint-keyed API response. Replacing an entry
// resets its access count. A negative ttl stores the entry without expiry; a
// zero ttl stores it already expired.
func (s *Store) PutResponse(ctx context.Context, apiKind string, params map[string]string, body string, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	apiKind = strings.TrimSpace(apiKind)
	if apiKind == "" {
		return fmt.Errorf("api kind is required: %w", storage.ErrInvalid)
	}

	now := nowUTC()
	var expiresAt sql.NullInt64
	if ttl >= 0 {
		expiresAt = sql.NullInt64{Int64: toMillis(now.Add(ttl)), Valid: true}
	}

	_, err := s.sqlDB.ExecContext(ctx, `
	INSERT INTO api_responses (
		fingerprint, api_kind, request_params, response_body, created_at, expires_at, last_accessed_at, access_count
	) VALUES (?, ?, ?, ?, ?, ?, ?, 1)
	ON CONFLICT(fingerprint) DO UPDATE SET
		api_kind = excluded.api_kind,
		request_params = excluded.request_params,
		response_body = excluded.response_body,
		created_at = excluded.created_at,
		expires_at = excluded.expires_at,
		last_accessed_at = excluded.last_accessed_at,
		access_count = 1
	`,
		storage.Fingerprint(apiKind, params),
		apiKind,
		storage.CanonicalParams(params),
		body,
		toMillis(now),
		expiresAt,
		toMillis(now),
	)
	if err != nil {
		return fmt.Errorf("put api response: %w", err)
	}
	return nil
}

// GetResponse returns the cached entry for one call and bumps its access
// accounting. An expired row behaves as a miss and is left for the sweep.
func (s *Store) GetResponse(ctx context.Context, apiKind string, params map[string]string) (storage.CacheEntry, error) {
	if err := ctx.Err(); err != nil {
		return storage.CacheEntry{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.CacheEntry{}, fmt.Errorf("storage is not configured")
	}
	apiKind = strings.TrimSpace(apiKind)
	if apiKind == "" {
		return storage.CacheEntry{}, fmt.Errorf("api kind is required: %w", storage.ErrInvalid)
	}

	fingerprint := storage.Fingerprint(apiKind, params)
	now := nowUTC()

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return storage.CacheEntry{}, fmt.Errorf("begin api response read: %w", err)
	}
	rollbackWith := func(cause error) error {
		if rollbackErr := tx.Rollback(); rollbackErr != nil {
			return fmt.Errorf("%w: rollback api response read: %v", cause, rollbackErr)
		}
		return cause
	}

	row := tx.QueryRowContext(ctx, `
	SELECT fingerprint, api_kind, request_params, response_body, created_at, expires_at, last_accessed_at, access_count
	FROM api_responses
	WHERE fingerprint = ?
	  AND (expires_at IS NULL OR expires_at > ?)
	`, fingerprint, toMillis(now))
	entry, err := scanCacheEntry(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.CacheEntry{}, rollbackWith(storage.ErrNotFound)
		}
		return storage.CacheEntry{}, rollbackWith(fmt.Errorf("get api response: %w", err))
	}

	if _, err := tx.ExecContext(ctx, `
	UPDATE api_responses
	SET access_count = access_count + 1, last_accessed_at = ?
	WHERE fingerprint = ?
	`, toMillis(now), fingerprint); err != nil {
		return storage.CacheEntry{}, rollbackWith(fmt.Errorf("update api response accounting: %w", err))
	}
	if err := tx.Commit(); err != nil {
		return storage.CacheEntry{}, fmt.Errorf("commit api response read: %w", err)
	}

	entry.AccessCount++
	entry.LastAccessedAt = now
	return entry, nil
}

// SweepExpiredResponses deletes responses whose expiry has passed.
func (s *Store) SweepExpiredResponses(ctx context.Context, now time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s == nil || s.sqlDB == nil {
		return 0, fmt.Errorf("storage is not configured")
	}
	if now.IsZero() {
		return 0, fmt.Errorf("now is required: %w", storage.ErrInvalid)
	}

	result, err := s.sqlDB.ExecContext(ctx, `
	DELETE FROM api_responses
	WHERE expires_at IS NOT NULL AND expires_at < ?
	`, toMillis(now.UTC()))
	if err != nil {
		return 0, fmt.Errorf("sweep expired responses: %w", err)
	}
	removed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sweep expired responses rows affected: %w", err)
	}
	return removed, nil
}

// FindRecordsByName returns records matching one workplace name, bumping each
// matched row's access accounting in the same transaction. registrationNo
// narrows the match when present.
func (s *Store) FindRecordsByName(ctx context.Context, name string, registrationNo string) ([]workplace.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	name = strings.TrimSpace(name)
	registrationNo = strings.TrimSpace(registrationNo)
	if name == "" {
		return nil, fmt.Errorf("workplace name is required: %w", storage.ErrInvalid)
	}

	now := nowUTC()
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin record lookup: %w", err)
	}
	rollbackWith := func(cause error) error {
		if rollbackErr := tx.Rollback(); rollbackErr != nil {
			return fmt.Errorf("%w: rollback record lookup: %v", cause, rollbackErr)
		}
		return cause
	}

	filter := "name = ?"
	args := []any{name}
	if registrationNo != "" {
		filter = "name = ? AND registration_no = ?"
		args = append(args, registrationNo)
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE workplace_records SET access_count = access_count + 1, last_accessed_at = ? WHERE "+filter,
		append([]any{toMillis(now)}, args...)...,
	); err != nil {
		return nil, rollbackWith(fmt.Errorf("update record accounting: %w", err))
	}

	rows, err := tx.QueryContext(ctx, `
	SELECT seq, name, registration_no, data_period, address,
	       subscriber_count, monthly_notice_amount, avg_monthly_salary,
	       new_hire_count, leaver_count,
	       created_at, updated_at, last_accessed_at, access_count, sync_status
	FROM workplace_records
	WHERE `+filter+`
	ORDER BY seq ASC
	`, args...)
	if err != nil {
		return nil, rollbackWith(fmt.Errorf("list records by name: %w", err))
	}

	records := make([]workplace.Record, 0)
	for rows.Next() {
		record, scanErr := scanRecord(rows.Scan)
		if scanErr != nil {
			_ = rows.Close()
			return nil, rollbackWith(fmt.Errorf("scan record row: %w", scanErr))
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, rollbackWith(fmt.Errorf("iterate record rows: %w", err))
	}
	if err := rows.Close(); err != nil {
		return nil, rollbackWith(fmt.Errorf("close record rows: %w", err))
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit record lookup: %w", err)
	}
	return records, nil
}

// UpsertRecord fully replaces the row keyed by record.Seq and appends the
// matching ledger entry in the same transaction. Replacement resets access
// accounting and returns the record to pending sync.
func (s *Store) UpsertRecord(ctx context.Context, record workplace.Record, operation workplace.Operation) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s == nil || s.sqlDB == nil {
		return 0, fmt.Errorf("storage is not configured")
	}
	normalized, err := normalizeRecord(record)
	if err != nil {
		return 0, err
	}
	if operation != workplace.OperationInsert && operation != workplace.OperationUpdate {
		return 0, fmt.Errorf("operation %q cannot upsert: %w", operation, storage.ErrInvalid)
	}

	now := nowUTC()
	normalized.CreatedAt = now
	normalized.UpdatedAt = now
	normalized.LastAccessedAt = now
	normalized.AccessCount = 1
	normalized.SyncStatus = workplace.SyncStatusPending

	after, err := storage.EncodeSnapshot(normalized)
	if err != nil {
		return 0, err
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin record upsert: %w", err)
	}
	rollbackWith := func(cause error) error {
		if rollbackErr := tx.Rollback(); rollbackErr != nil {
			return fmt.Errorf("%w: rollback record upsert: %v", cause, rollbackErr)
		}
		return cause
	}

	before, err := recordSnapshot(ctx, tx, normalized.Seq)
	if err != nil {
		return 0, rollbackWith(err)
	}

	if _, err := tx.ExecContext(ctx, `
	INSERT INTO workplace_records (
		seq, name, registration_no, data_period, address,
		subscriber_count, monthly_notice_amount, avg_monthly_salary,
		new_hire_count, leaver_count,
		created_at, updated_at, last_accessed_at, access_count, sync_status
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?)
	ON CONFLICT(seq) DO UPDATE SET
		name = excluded.name,
		registration_no = excluded.registration_no,
		data_period = excluded.data_period,
		address = excluded.address,
		subscriber_count = excluded.subscriber_count,
		monthly_notice_amount = excluded.monthly_notice_amount,
		avg_monthly_salary = excluded.avg_monthly_salary,
		new_hire_count = excluded.new_hire_count,
		leaver_count = excluded.leaver_count,
		created_at = excluded.created_at,
		updated_at = excluded.updated_at,
		last_accessed_at = excluded.last_accessed_at,
		access_count = 1,
		sync_status = excluded.sync_status
	`,
		normalized.Seq,
		normalized.Name,
		normalized.RegistrationNo,
		normalized.DataPeriod,
		normalized.Address,
		nullInt64(normalized.SubscriberCount),
		nullInt64(normalized.MonthlyNoticeAmount),
		nullFloat64(normalized.AvgMonthlySalary),
		nullInt64(normalized.NewHireCount),
		nullInt64(normalized.LeaverCount),
		toMillis(now),
		toMillis(now),
		toMillis(now),
		normalized.SyncStatus,
	); err != nil {
		return 0, rollbackWith(fmt.Errorf("upsert record: %w", err))
	}

	ledgerID, err := appendChangeExec(ctx, tx, storage.LedgerEntry{
		EntityKind: storage.EntityKindWorkplace,
		Operation:  operation,
		RecordID:   normalized.Seq,
		Before:     before,
		After:      after,
		CreatedAt:  now,
	})
	if err != nil {
		return 0, rollbackWith(err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit record upsert: %w", err)
	}
	return ledgerID, nil
}

// DeleteRecord removes the row when present and appends the delete ledger
// entry. Deleting an absent row still records the intent with no before
// state, since the authority-side removal is idempotent.
func (s *Store) DeleteRecord(ctx context.Context, seq string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s == nil || s.sqlDB == nil {
		return 0, fmt.Errorf("storage is not configured")
	}
	seq = workplace.NormalizeSeq(seq)
	if seq == "" {
		return 0, fmt.Errorf("record seq is required: %w", storage.ErrInvalid)
	}

	now := nowUTC()
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin record delete: %w", err)
	}
	rollbackWith := func(cause error) error {
		if rollbackErr := tx.Rollback(); rollbackErr != nil {
			return fmt.Errorf("%w: rollback record delete: %v", cause, rollbackErr)
		}
		return cause
	}

	before, err := recordSnapshot(ctx, tx, seq)
	if err != nil {
		return 0, rollbackWith(err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM workplace_records WHERE seq = ?", seq); err != nil {
		return 0, rollbackWith(fmt.Errorf("delete record: %w", err))
	}

	ledgerID, err := appendChangeExec(ctx, tx, storage.LedgerEntry{
		EntityKind: storage.EntityKindWorkplace,
		Operation:  workplace.OperationDelete,
		RecordID:   seq,
		Before:     before,
		CreatedAt:  now,
	})
	if err != nil {
		return 0, rollbackWith(err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit record delete: %w", err)
	}
	return ledgerID, nil
}

// MarkRecordSynced flips one record to synced without touching other fields.
// A record deleted since the attempt is a no-op.
func (s *Store) MarkRecordSynced(ctx context.Context, seq string) error {
	return s.markRecordStatus(ctx, seq, workplace.SyncStatusSynced)
}

// MarkRecordSyncError flips one record to error without touching other
// fields. A record deleted since the attempt is a no-op.
func (s *Store) MarkRecordSyncError(ctx context.Context, seq string) error {
	return s.markRecordStatus(ctx, seq, workplace.SyncStatusError)
}

func (s *Store) markRecordStatus(ctx context.Context, seq string, status workplace.SyncStatus) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	seq = workplace.NormalizeSeq(seq)
	if seq == "" {
		return fmt.Errorf("record seq is required: %w", storage.ErrInvalid)
	}

	if _, err := s.sqlDB.ExecContext(ctx,
		"UPDATE workplace_records SET sync_status = ? WHERE seq = ?",
		status, seq,
	); err != nil {
		return fmt.Errorf("mark record %s: %w", status, err)
	}
	return nil
}

// ListPendingChanges returns pending ledger entries oldest first. Replay
// order is what keeps the authority from seeing an older state after a newer
// one.
func (s *Store) ListPendingChanges(ctx context.Context) ([]storage.LedgerEntry, error) {
	return s.listChangesByStatus(ctx, workplace.SyncStatusPending)
}

// ListFailedChanges returns error ledger entries oldest first for an explicit
// retry pass.
func (s *Store) ListFailedChanges(ctx context.Context) ([]storage.LedgerEntry, error) {
	return s.listChangesByStatus(ctx, workplace.SyncStatusError)
}

func (s *Store) listChangesByStatus(ctx context.Context, status workplace.SyncStatus) ([]storage.LedgerEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
	SELECT id, entity_kind, operation, record_id, before_state, after_state,
	       propagation_status, error_detail, created_at, propagated_at
	FROM change_ledger
	WHERE propagation_status = ?
	ORDER BY created_at ASC, id ASC
	`, status)
	if err != nil {
		return nil, fmt.Errorf("list %s changes: %w", status, err)
	}
	defer rows.Close()

	entries := make([]storage.LedgerEntry, 0)
	for rows.Next() {
		entry, scanErr := scanLedgerEntry(rows.Scan)
		if scanErr != nil {
			return nil, fmt.Errorf("scan ledger row: %w", scanErr)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger rows: %w", err)
	}
	return entries, nil
}

// MarkChangeOutcome resolves one ledger entry after a propagation attempt.
// Success also flips the touched record to synced when it still exists;
// failure records the error detail and leaves the entry eligible for an
// explicit retry pass.
func (s *Store) MarkChangeOutcome(ctx context.Context, id int64, success bool, errorDetail string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if id <= 0 {
		return fmt.Errorf("ledger id is required: %w", storage.ErrInvalid)
	}

	now := nowUTC()
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin change outcome: %w", err)
	}
	rollbackWith := func(cause error) error {
		if rollbackErr := tx.Rollback(); rollbackErr != nil {
			return fmt.Errorf("%w: rollback change outcome: %v", cause, rollbackErr)
		}
		return cause
	}

	var recordID string
	row := tx.QueryRowContext(ctx, "SELECT record_id FROM change_ledger WHERE id = ?", id)
	if err := row.Scan(&recordID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return rollbackWith(storage.ErrNotFound)
		}
		return rollbackWith(fmt.Errorf("lookup ledger entry: %w", err))
	}

	if success {
		if _, err := tx.ExecContext(ctx, `
		UPDATE change_ledger
		SET propagation_status = ?, propagated_at = ?, error_detail = ''
		WHERE id = ?
		`, workplace.SyncStatusSynced, toMillis(now), id); err != nil {
			return rollbackWith(fmt.Errorf("mark change synced: %w", err))
		}
		if _, err := tx.ExecContext(ctx,
			"UPDATE workplace_records SET sync_status = ? WHERE seq = ?",
			workplace.SyncStatusSynced, recordID,
		); err != nil {
			return rollbackWith(fmt.Errorf("mark record synced: %w", err))
		}
	} else {
		if _, err := tx.ExecContext(ctx, `
		UPDATE change_ledger
		SET propagation_status = ?, error_detail = ?
		WHERE id = ?
		`, workplace.SyncStatusError, strings.TrimSpace(errorDetail), id); err != nil {
			return rollbackWith(fmt.Errorf("mark change error: %w", err))
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit change outcome: %w", err)
	}
	return nil
}

// PurgeSyncedChanges deletes synced ledger entries created before olderThan.
// Pending and error entries are never purged.
func (s *Store) PurgeSyncedChanges(ctx context.Context, olderThan time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s == nil || s.sqlDB == nil {
		return 0, fmt.Errorf("storage is not configured")
	}
	if olderThan.IsZero() {
		return 0, fmt.Errorf("older-than bound is required: %w", storage.ErrInvalid)
	}

	result, err := s.sqlDB.ExecContext(ctx, `
	DELETE FROM change_ledger
	WHERE propagation_status = ? AND created_at < ?
	`, workplace.SyncStatusSynced, toMillis(olderThan.UTC()))
	if err != nil {
		return 0, fmt.Errorf("purge synced changes: %w", err)
	}
	removed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge synced changes rows affected: %w", err)
	}
	return removed, nil
}

// Stats summarizes cache contents and the reconciliation backlog.
func (s *Store) Stats(ctx context.Context) (storage.CacheStats, error) {
	if err := ctx.Err(); err != nil {
		return storage.CacheStats{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.CacheStats{}, fmt.Errorf("storage is not configured")
	}

	stats := storage.CacheStats{ResponsesByKind: make(map[string]int64)}

	if err := s.sqlDB.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM api_responses",
	).Scan(&stats.ResponseCount); err != nil {
		return storage.CacheStats{}, fmt.Errorf("count api responses: %w", err)
	}

	if err := s.collectResponseKindCounts(ctx, stats.ResponsesByKind); err != nil {
		return storage.CacheStats{}, err
	}

	if err := s.sqlDB.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM workplace_records",
	).Scan(&stats.RecordCount); err != nil {
		return storage.CacheStats{}, fmt.Errorf("count workplace records: %w", err)
	}

	topAccessed, err := s.collectTopAccessed(ctx)
	if err != nil {
		return storage.CacheStats{}, err
	}
	stats.TopAccessed = topAccessed

	if err := s.sqlDB.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM change_ledger WHERE propagation_status = ?",
		workplace.SyncStatusPending,
	).Scan(&stats.PendingChanges); err != nil {
		return storage.CacheStats{}, fmt.Errorf("count pending changes: %w", err)
	}
	if err := s.sqlDB.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM change_ledger WHERE propagation_status = ?",
		workplace.SyncStatusError,
	).Scan(&stats.FailedChanges); err != nil {
		return storage.CacheStats{}, fmt.Errorf("count failed changes: %w", err)
	}

	return stats, nil
}

// ClearAll deletes every cached response, workplace record, and ledger entry.
// Callers own the confirmation step; the store does not second-guess it.
func (s *Store) ClearAll(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin clear all: %w", err)
	}
	rollbackWith := func(cause error) error {
		if rollbackErr := tx.Rollback(); rollbackErr != nil {
			return fmt.Errorf("%w: rollback clear all: %v", cause, rollbackErr)
		}
		return cause
	}

	for _, table := range []string{"api_responses", "workplace_records", "change_ledger"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return rollbackWith(fmt.Errorf("clear %s: %w", table, err))
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit clear all: %w", err)
	}
	return nil
}

func (s *Store) collectResponseKindCounts(ctx context.Context, byKind map[string]int64) error {
	rows, err := s.sqlDB.QueryContext(ctx,
		"SELECT api_kind, COUNT(1) FROM api_responses GROUP BY api_kind",
	)
	if err != nil {
		return fmt.Errorf("count api responses by kind: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var kind string
		var count int64
		if err := rows.Scan(&kind, &count); err != nil {
			return fmt.Errorf("scan api response kind row: %w", err)
		}
		byKind[kind] = count
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate api response kind rows: %w", err)
	}
	return nil
}

func (s *Store) collectTopAccessed(ctx context.Context) ([]workplace.Record, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `
	SELECT seq, name, registration_no, data_period, address,
	       subscriber_count, monthly_notice_amount, avg_monthly_salary,
	       new_hire_count, leaver_count,
	       created_at, updated_at, last_accessed_at, access_count, sync_status
	FROM workplace_records
	ORDER BY access_count DESC, seq ASC
	LIMIT ?
	`, topAccessedLimit)
	if err != nil {
		return nil, fmt.Errorf("list top accessed records: %w", err)
	}
	defer rows.Close()

	records := make([]workplace.Record, 0, topAccessedLimit)
	for rows.Next() {
		record, scanErr := scanRecord(rows.Scan)
		if scanErr != nil {
			return nil, fmt.Errorf("scan top accessed row: %w", scanErr)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate top accessed rows: %w", err)
	}
	return records, nil
}

type scanner func(dest ...any) error

type sqlQueryExecer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func normalizeRecord(record workplace.Record) (workplace.Record, error) {
	record.Seq = workplace.NormalizeSeq(record.Seq)
	record.Name = strings.TrimSpace(record.Name)
	record.RegistrationNo = strings.TrimSpace(record.RegistrationNo)
	record.DataPeriod = strings.TrimSpace(record.DataPeriod)
	record.Address = strings.TrimSpace(record.Address)
	if record.Seq == "" {
		return workplace.Record{}, fmt.Errorf("record seq is required: %w", storage.ErrInvalid)
	}
	if record.Name == "" {
		return workplace.Record{}, fmt.Errorf("record name is required: %w", storage.ErrInvalid)
	}
	return record, nil
}

// recordSnapshot returns the encoded prior state of one record, or an empty
// string when no row exists.
func recordSnapshot(ctx context.Context, execer sqlQueryExecer, seq string) (string, error) {
	row := execer.QueryRowContext(ctx, `
	SELECT seq, name, registration_no, data_period, address,
	       subscriber_count, monthly_notice_amount, avg_monthly_salary,
	       new_hire_count, leaver_count,
	       created_at, updated_at, last_accessed_at, access_count, sync_status
	FROM workplace_records
	WHERE seq = ?
	`, seq)
	record, err := scanRecord(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("load prior record state: %w", err)
	}
	return storage.EncodeSnapshot(record)
}

func appendChangeExec(ctx context.Context, execer sqlQueryExecer, entry storage.LedgerEntry) (int64, error) {
	result, err := execer.ExecContext(ctx, `
	INSERT INTO change_ledger (
		entity_kind, operation, record_id, before_state, after_state,
		propagation_status, error_detail, created_at
	) VALUES (?, ?, ?, ?, ?, ?, '', ?)
	`,
		entry.EntityKind,
		entry.Operation,
		entry.RecordID,
		entry.Before,
		entry.After,
		workplace.SyncStatusPending,
		toMillis(entry.CreatedAt),
	)
	if err != nil {
		return 0, fmt.Errorf("append ledger entry: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("append ledger entry id: %w", err)
	}
	return id, nil
}

func scanCacheEntry(scan scanner) (storage.CacheEntry, error) {
	var entry storage.CacheEntry
	var createdAt int64
	var expiresAt sql.NullInt64
	var lastAccessedAt int64
	if err := scan(
		&entry.Fingerprint,
		&entry.APIKind,
		&entry.RequestParams,
		&entry.ResponseBody,
		&createdAt,
		&expiresAt,
		&lastAccessedAt,
		&entry.AccessCount,
	); err != nil {
		return storage.CacheEntry{}, err
	}
	entry.CreatedAt = fromMillis(createdAt)
	if expiresAt.Valid {
		value := fromMillis(expiresAt.Int64)
		entry.ExpiresAt = &value
	}
	entry.LastAccessedAt = fromMillis(lastAccessedAt)
	return entry, nil
}

func scanRecord(scan scanner) (workplace.Record, error) {
	var record workplace.Record
	var subscriberCount sql.NullInt64
	var monthlyNoticeAmount sql.NullInt64
	var avgMonthlySalary sql.NullFloat64
	var newHireCount sql.NullInt64
	var leaverCount sql.NullInt64
	var createdAt int64
	var updatedAt int64
	var lastAccessedAt int64
	if err := scan(
		&record.Seq,
		&record.Name,
		&record.RegistrationNo,
		&record.DataPeriod,
		&record.Address,
		&subscriberCount,
		&monthlyNoticeAmount,
		&avgMonthlySalary,
		&newHireCount,
		&leaverCount,
		&createdAt,
		&updatedAt,
		&lastAccessedAt,
		&record.AccessCount,
		&record.SyncStatus,
	); err != nil {
		return workplace.Record{}, err
	}
	record.SubscriberCount = int64Ptr(subscriberCount)
	record.MonthlyNoticeAmount = int64Ptr(monthlyNoticeAmount)
	record.AvgMonthlySalary = float64Ptr(avgMonthlySalary)
	record.NewHireCount = int64Ptr(newHireCount)
	record.LeaverCount = int64Ptr(leaverCount)
	record.CreatedAt = fromMillis(createdAt)
	record.UpdatedAt = fromMillis(updatedAt)
	record.LastAccessedAt = fromMillis(lastAccessedAt)
	return record, nil
}

func scanLedgerEntry(scan scanner) (storage.LedgerEntry, error) {
	var entry storage.LedgerEntry
	var createdAt int64
	var propagatedAt sql.NullInt64
	if err := scan(
		&entry.ID,
		&entry.EntityKind,
		&entry.Operation,
		&entry.RecordID,
		&entry.Before,
		&entry.After,
		&entry.PropagationStatus,
		&entry.ErrorDetail,
		&createdAt,
		&propagatedAt,
	); err != nil {
		return storage.LedgerEntry{}, err
	}
	entry.CreatedAt = fromMillis(createdAt)
	if propagatedAt.Valid {
		value := fromMillis(propagatedAt.Int64)
		entry.PropagatedAt = &value
	}
	return entry, nil
}

func nullInt64(value *int64) sql.NullInt64 {
	if value == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *value, Valid: true}
}

func nullFloat64(value *float64) sql.NullFloat64 {
	if value == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *value, Valid: true}
}

func int64Ptr(value sql.NullInt64) *int64 {
	if !value.Valid {
		return nil
	}
	result := value.Int64
	return &result
}

func float64Ptr(value sql.NullFloat64) *float64 {
	if !value.Valid {
		return nil
	}
	result := value.Float64
	return &result
}
