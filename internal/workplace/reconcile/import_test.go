package reconcile

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/opendatakr/npscache/internal/nps"
	"github.com/opendatakr/npscache/internal/workplace"
)

func TestImportEnrichesEachWorkplace(t *testing.T) {
	t.Parallel()

	store := newFakeStore(testNow)
	source := newFakeSource()
	source.bases = []nps.BaseInfo{
		{Seq: "22003456", Name: "삼성전자", RegistrationNo: "1248100998", DataPeriod: "202607", Address: "경기도 수원시 영통구 삼성로 129"},
		{Seq: "22003457", Name: "삼성전자판매", DataPeriod: "202607"},
	}
	source.details["22003456"] = nps.DetailInfo{SubscriberCount: int64Value(10), MonthlyNoticeAmount: int64Value(1000000)}
	source.monthlies["22003456"] = nps.MonthlyStatus{NewHireCount: int64Value(3), LeaverCount: int64Value(1)}

	coordinator := NewCoordinator(store, nil, source)
	imported, err := coordinator.Import(context.Background(), "삼성전자", "")
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if len(imported) != 2 {
		t.Fatalf("imported %d records, want 2", len(imported))
	}
	if imported[0].Seq != "22003456" || imported[1].Seq != "22003457" {
		t.Fatalf("imported order = %q, %q, want search order kept", imported[0].Seq, imported[1].Seq)
	}

	first := imported[0]
	if first.SubscriberCount == nil || *first.SubscriberCount != 10 {
		t.Fatalf("subscriber count = %v, want 10", first.SubscriberCount)
	}
	if first.NewHireCount == nil || *first.NewHireCount != 3 {
		t.Fatalf("new hire count = %v, want 3", first.NewHireCount)
	}
	want := float64(1000000)/0.09/float64(10) + 200000
	if first.AvgMonthlySalary == nil || *first.AvgMonthlySalary != want {
		t.Fatalf("avg monthly salary = %v, want %v", first.AvgMonthlySalary, want)
	}

	second := imported[1]
	if second.SubscriberCount != nil || second.NewHireCount != nil || second.AvgMonthlySalary != nil {
		t.Fatalf("second record = %+v, want figures absent when the feed has none", second)
	}

	for _, seq := range []string{"22003456", "22003457"} {
		record, ok := store.record(seq)
		if !ok {
			t.Fatalf("record %s not saved", seq)
		}
		if record.SyncStatus != workplace.SyncStatusPending {
			t.Fatalf("record %s status = %q, want pending while offline", seq, record.SyncStatus)
		}
	}
	pending, err := store.ListPendingChanges(context.Background())
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("pending entries = %d, want 2", len(pending))
	}
}

func TestImportSkipsRowsWithoutSeq(t *testing.T) {
	t.Parallel()

	store := newFakeStore(testNow)
	source := newFakeSource()
	source.bases = []nps.BaseInfo{
		{Seq: "", Name: "국민연금공단"},
		{Seq: "22003456", Name: "삼성전자"},
		{Seq: "  ", Name: "국민연금공단 수원지사"},
	}

	coordinator := NewCoordinator(store, nil, source)
	imported, err := coordinator.Import(context.Background(), "국민", "")
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if len(imported) != 1 || imported[0].Seq != "22003456" {
		t.Fatalf("imported = %+v, want only the row with a seq", imported)
	}
	if _, ok := store.record("22003456"); !ok {
		t.Fatal("record 22003456 not saved")
	}
}

func TestImportContinuesWhenEnrichmentFails(t *testing.T) {
	t.Parallel()

	store := newFakeStore(testNow)
	source := newFakeSource()
	source.bases = []nps.BaseInfo{{Seq: "22003456", Name: "삼성전자"}}
	source.detailErr["22003456"] = errors.New("api result 22: LIMITED_NUMBER_OF_SERVICE_REQUESTS_EXCEEDS_ERROR")
	source.monthlies["22003456"] = nps.MonthlyStatus{NewHireCount: int64Value(2)}

	coordinator := NewCoordinator(store, nil, source)
	imported, err := coordinator.Import(context.Background(), "삼성전자", "")
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if len(imported) != 1 {
		t.Fatalf("imported %d records, want 1", len(imported))
	}
	record := imported[0]
	if record.SubscriberCount != nil || record.MonthlyNoticeAmount != nil {
		t.Fatalf("record = %+v, want detail fields absent after fetch failure", record)
	}
	if record.NewHireCount == nil || *record.NewHireCount != 2 {
		t.Fatalf("new hire count = %v, want monthly figures kept", record.NewHireCount)
	}
}

func TestImportRequiresSource(t *testing.T) {
	t.Parallel()

	coordinator := NewCoordinator(newFakeStore(testNow), nil, nil)
	if _, err := coordinator.Import(context.Background(), "삼성전자", ""); err == nil {
		t.Fatal("import without a source did not fail")
	}
}

func TestImportPropagatesSearchError(t *testing.T) {
	t.Parallel()

	store := newFakeStore(testNow)
	source := newFakeSource()
	source.baseErr = errors.New("api returned 500 Internal Server Error")

	coordinator := NewCoordinator(store, nil, source)
	if _, err := coordinator.Import(context.Background(), "삼성전자", ""); err == nil {
		t.Fatal("import did not surface the search failure")
	}
	stats, err := store.Stats(context.Background())
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.RecordCount != 0 {
		t.Fatalf("record count = %d, want nothing saved", stats.RecordCount)
	}
}

func TestImportAbortsWhenSaveFails(t *testing.T) {
	t.Parallel()

	store := newFakeStore(testNow)
	store.upsertErr = errors.New("disk I/O error")
	source := newFakeSource()
	source.bases = []nps.BaseInfo{{Seq: "22003456", Name: "삼성전자"}}

	coordinator := NewCoordinator(store, nil, source)
	_, err := coordinator.Import(context.Background(), "삼성전자", "")
	if err == nil {
		t.Fatal("import did not surface the save failure")
	}
	if !strings.Contains(err.Error(), "save imported record 22003456") {
		t.Fatalf("error = %v, want the failing seq named", err)
	}
}
