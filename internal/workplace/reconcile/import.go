package reconcile

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/opendatakr/npscache/internal/workplace"
)

// importConcurrency bounds per-workplace detail and monthly fetches so an
// import stays inside the upstream rate limit.
const importConcurrency = 4

// Import searches the upstream enquiry API for workplaces by name, enriches
// each hit with its detail and monthly figures, and saves everything locally.
// A failed detail or monthly fetch leaves those fields absent; a failed local
// save aborts the import.
func (c *Coordinator) Import(ctx context.Context, name, registrationNo string) ([]workplace.Record, error) {
	if c == nil || c.store == nil {
		return nil, fmt.Errorf("reconciliation store is not configured")
	}
	if c.source == nil {
		return nil, fmt.Errorf("record source is not configured")
	}

	bases, err := c.source.FetchBase(ctx, name, registrationNo)
	if err != nil {
		return nil, err
	}

	results := make([]workplace.Record, len(bases))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(importConcurrency)

	for i, base := range bases {
		if strings.TrimSpace(base.Seq) == "" {
			continue
		}
		group.Go(func() error {
			record := workplace.Record{
				Seq:            base.Seq,
				Name:           base.Name,
				RegistrationNo: base.RegistrationNo,
				DataPeriod:     base.DataPeriod,
				Address:        base.Address,
			}

			if detail, err := c.source.FetchDetail(groupCtx, base.Seq); err == nil {
				record.SubscriberCount = detail.SubscriberCount
				record.MonthlyNoticeAmount = detail.MonthlyNoticeAmount
			}
			if monthly, err := c.source.FetchMonthly(groupCtx, base.Seq); err == nil {
				record.NewHireCount = monthly.NewHireCount
				record.LeaverCount = monthly.LeaverCount
			}
			record.AvgMonthlySalary = workplace.DeriveAvgMonthlySalary(record.SubscriberCount, record.MonthlyNoticeAmount)

			if err := c.SaveRecord(groupCtx, record, workplace.OperationInsert); err != nil {
				return fmt.Errorf("save imported record %s: %w", base.Seq, err)
			}
			results[i] = record
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	imported := make([]workplace.Record, 0, len(results))
	for _, record := range results {
		if record.Seq != "" {
			imported = append(imported, record)
		}
	}
	return imported, nil
}
