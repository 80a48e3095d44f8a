package reconcile

import (
	"context"
	"fmt"
	"strings"

	"github.com/opendatakr/npscache/internal/workplace"
	"github.com/opendatakr/npscache/internal/workplace/storage"
)

// DrainPending replays every pending ledger entry against the authority in
// creation order. One entry's failure is recorded on that entry and the pass
// moves on. The pass stops cleanly between entries when ctx is done; already
// committed outcomes stand.
func (c *Coordinator) DrainPending(ctx context.Context) (Report, error) {
	if c == nil || c.store == nil {
		return Report{}, fmt.Errorf("reconciliation store is not configured")
	}
	c.drainMu.Lock()
	defer c.drainMu.Unlock()

	entries, err := c.store.ListPendingChanges(ctx)
	if err != nil {
		return Report{}, err
	}
	return c.drain(ctx, entries)
}

// RetryFailed replays every failed ledger entry against the authority, same
// rules as DrainPending.
func (c *Coordinator) RetryFailed(ctx context.Context) (Report, error) {
	if c == nil || c.store == nil {
		return Report{}, fmt.Errorf("reconciliation store is not configured")
	}
	c.drainMu.Lock()
	defer c.drainMu.Unlock()

	entries, err := c.store.ListFailedChanges(ctx)
	if err != nil {
		return Report{}, err
	}
	return c.drain(ctx, entries)
}

func (c *Coordinator) drain(ctx context.Context, entries []storage.LedgerEntry) (Report, error) {
	var report Report
	if len(entries) == 0 {
		return report, nil
	}
	if c.authority == nil || !c.connected.Load() {
		return report, nil
	}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		entryID := entry.ID
		report.Processed++

		if applyErr := c.applyChange(ctx, entry); applyErr != nil {
			report.Failed++
			if err := c.store.MarkChangeOutcome(ctx, entryID, false, applyErr.Error()); err != nil {
				return report, fmt.Errorf("record change failure: %w", err)
			}
			if err := c.store.MarkRecordSyncError(ctx, entry.RecordID); err != nil {
				return report, fmt.Errorf("flag record sync error: %w", err)
			}
			continue
		}

		report.Succeeded++
		if err := c.store.MarkChangeOutcome(ctx, entryID, true, ""); err != nil {
			return report, fmt.Errorf("record change outcome: %w", err)
		}
	}
	return report, nil
}

// applyChange pushes one ledger entry to the authority. Deletes carry only
// the record id; upserts rebuild the row from the after snapshot.
func (c *Coordinator) applyChange(ctx context.Context, entry storage.LedgerEntry) error {
	if entry.Operation == workplace.OperationDelete {
		return c.authority.DeleteAll(ctx, entry.RecordID)
	}

	record, err := storage.DecodeSnapshot(entry.After)
	if err != nil {
		return fmt.Errorf("decode change snapshot: %w", err)
	}
	if strings.TrimSpace(record.Seq) == "" {
		return fmt.Errorf("change snapshot carries no seq")
	}
	return c.applyRecord(ctx, record)
}

// applyRecord upserts one record across the authority's three tables. The
// base row always goes; the detail and monthly rows only go when they carry
// at least one nonzero figure.
func (c *Coordinator) applyRecord(ctx context.Context, record workplace.Record) error {
	if err := c.authority.UpsertBase(ctx, record); err != nil {
		return err
	}
	if hasCount(record.SubscriberCount) || hasCount(record.MonthlyNoticeAmount) || hasAmount(record.AvgMonthlySalary) {
		if err := c.authority.UpsertDetail(ctx, record); err != nil {
			return err
		}
	}
	if hasCount(record.NewHireCount) || hasCount(record.LeaverCount) {
		if err := c.authority.UpsertMonthly(ctx, record); err != nil {
			return err
		}
	}
	return nil
}

func hasCount(value *int64) bool {
	return value != nil && *value != 0
}

func hasAmount(value *float64) bool {
	return value != nil && *value != 0
}
