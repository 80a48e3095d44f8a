package cli

import (
	"fmt"
	"io"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/opendatakr/npscache/internal/workplace"
)

// numberPrinter groups digits the way Korean statements do, so won amounts
// stay readable.
var numberPrinter = message.NewPrinter(language.Korean)

func printRecords(w io.Writer, records []workplace.Record) {
	for i, record := range records {
		if i > 0 {
			fmt.Fprintln(w)
		}
		printRecord(w, record)
	}
}

func printRecord(w io.Writer, record workplace.Record) {
	fmt.Fprintf(w, "%s (seq %s)\n", record.Name, record.Seq)
	if record.RegistrationNo != "" {
		fmt.Fprintf(w, "  registration no: %s\n", record.RegistrationNo)
	}
	if record.DataPeriod != "" {
		fmt.Fprintf(w, "  data period: %s\n", record.DataPeriod)
	}
	if record.Address != "" {
		fmt.Fprintf(w, "  address: %s\n", record.Address)
	}
	if record.SubscriberCount != nil {
		fmt.Fprintf(w, "  subscribers: %s\n", numberPrinter.Sprintf("%d", *record.SubscriberCount))
	}
	if record.MonthlyNoticeAmount != nil {
		fmt.Fprintf(w, "  notice amount: %s won\n", numberPrinter.Sprintf("%d", *record.MonthlyNoticeAmount))
	}
	if record.AvgMonthlySalary != nil {
		fmt.Fprintf(w, "  avg monthly salary: %s won\n", numberPrinter.Sprintf("%.0f", *record.AvgMonthlySalary))
	}
	if record.NewHireCount != nil {
		fmt.Fprintf(w, "  new hires: %d\n", *record.NewHireCount)
	}
	if record.LeaverCount != nil {
		fmt.Fprintf(w, "  leavers: %d\n", *record.LeaverCount)
	}
	fmt.Fprintf(w, "  sync status: %s\n", record.SyncStatus)
	if !record.LastAccessedAt.IsZero() {
		fmt.Fprintf(w, "  last accessed: %s (%d reads)\n",
			record.LastAccessedAt.UTC().Format("2006-01-02 15:04:05"), record.AccessCount)
	}
}
