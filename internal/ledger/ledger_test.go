package ledger

import (
	"context"
	"testing"
	"time"
)

func TestDayWindow(t *testing.T) {
	at := time.Date(2026, 3, 4, 17, 42, 9, 0, time.UTC)
	from, to := DayWindow(at)

	if !from.Equal(time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("day window should open at midnight UTC, got %s", from)
	}
	if !to.Equal(from.AddDate(0, 0, 1)) {
		t.Fatalf("day window should close the next midnight, got %s", to)
	}
}

func TestWeekWindowStartsMonday(t *testing.T) {
	// 2026-03-04 is a Wednesday; its week opens Monday 2026-03-02.
	at := time.Date(2026, 3, 4, 17, 0, 0, 0, time.UTC)
	from, to := WeekWindow(at)

	if from.Weekday() != time.Monday {
		t.Fatalf("week window should open on Monday, got %s", from.Weekday())
	}
	if !from.Equal(time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected week start %s", from)
	}
	if !to.Equal(from.AddDate(0, 0, 7)) {
		t.Fatalf("week window should span seven days, got %s", to)
	}

	// A Monday belongs to the week it opens.
	from, _ = WeekWindow(time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC))
	if !from.Equal(time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("Monday should open its own week, got %s", from)
	}

	// A Sunday belongs to the week opened six days earlier.
	from, _ = WeekWindow(time.Date(2026, 3, 8, 23, 59, 0, 0, time.UTC))
	if !from.Equal(time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("Sunday should close the Monday week, got %s", from)
	}
}

func TestMemoryStoreWindowSums(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	entries := []Entry{
		{ID: "1", Destination: "bc1qa", Category: "operational", AmountSats: 10_000, RecordedAt: time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC)},
		{ID: "2", Destination: "bc1qb", Category: "operational", AmountSats: 5_000, RecordedAt: time.Date(2026, 3, 4, 15, 0, 0, 0, time.UTC)},
		{ID: "3", Destination: "bc1qa", Category: "operational", AmountSats: 7_000, RecordedAt: time.Date(2026, 3, 3, 12, 0, 0, 0, time.UTC)},
	}
	for _, entry := range entries {
		if err := store.AppendSpend(ctx, entry); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	at := time.Date(2026, 3, 4, 18, 0, 0, 0, time.UTC)
	from, to := DayWindow(at)

	total, err := store.SumSpentBetween(ctx, from, to)
	if err != nil {
		t.Fatalf("sum: %v", err)
	}
	if total != 15_000 {
		t.Fatalf("day total should exclude yesterday, got %d", total)
	}

	destTotal, err := store.SumSpentToBetween(ctx, "bc1qa", from, to)
	if err != nil {
		t.Fatalf("sum to destination: %v", err)
	}
	if destTotal != 10_000 {
		t.Fatalf("destination total wrong, got %d", destTotal)
	}

	weekFrom, weekTo := WeekWindow(at)
	weekTotal, err := store.SumSpentBetween(ctx, weekFrom, weekTo)
	if err != nil {
		t.Fatalf("week sum: %v", err)
	}
	if weekTotal != 22_000 {
		t.Fatalf("week total should include both days, got %d", weekTotal)
	}
}

func TestTakeSnapshotFailsWithoutStore(t *testing.T) {
	if _, err := TakeSnapshot(context.Background(), nil, "bc1qa", time.Now()); err == nil {
		t.Fatal("snapshot without a store must fail")
	}
}
