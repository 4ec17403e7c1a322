package ledger

import (
	"context"
	"errors"
	"time"
)

// ErrNotConfigured indicates the backing store was not initialised.
var ErrNotConfigured = errors.New("ledger: store not configured")

// Entry is an executed spend. Entries are append-only: they are written at
// validated-execution time and never rewritten.
type Entry struct {
	ID          string    `json:"id"`
	Destination string    `json:"destination"`
	Category    string    `json:"category"`
	AmountSats  int64     `json:"amount_sats"`
	TxID        string    `json:"txid,omitempty"`
	RecordedAt  time.Time `json:"recorded_at"`
}

// Snapshot holds the window totals a cap check is evaluated against. It is
// taken and consumed under the same exclusive section as the matching append,
// so two concurrent validations can never both see the same headroom.
type Snapshot struct {
	DaySpentSats         int64
	WeekSpentSats        int64
	DestinationSpentSats int64
	TakenAt              time.Time
}

// Store persists spend entries and answers window-total queries.
type Store interface {
	AppendSpend(ctx context.Context, entry Entry) error
	SumSpentBetween(ctx context.Context, from, to time.Time) (int64, error)
	SumSpentToBetween(ctx context.Context, destination string, from, to time.Time) (int64, error)
	ListSpendsBetween(ctx context.Context, from, to time.Time) ([]Entry, error)
}

// DayWindow returns the UTC calendar-day window containing at.
func DayWindow(at time.Time) (time.Time, time.Time) {
	at = at.UTC()
	from := time.Date(at.Year(), at.Month(), at.Day(), 0, 0, 0, 0, time.UTC)
	return from, from.AddDate(0, 0, 1)
}

// WeekWindow returns the ISO week window containing at: Monday 00:00 UTC
// through the following Monday.
func WeekWindow(at time.Time) (time.Time, time.Time) {
	at = at.UTC()
	day := time.Date(at.Year(), at.Month(), at.Day(), 0, 0, 0, 0, time.UTC)
	offset := (int(day.Weekday()) + 6) % 7
	from := day.AddDate(0, 0, -offset)
	return from, from.AddDate(0, 0, 7)
}

// TakeSnapshot reads the window totals relevant to a spend towards destination.
func TakeSnapshot(ctx context.Context, store Store, destination string, at time.Time) (Snapshot, error) {
	if store == nil {
		return Snapshot{}, ErrNotConfigured
	}

	dayFrom, dayTo := DayWindow(at)
	weekFrom, weekTo := WeekWindow(at)

	daySpent, err := store.SumSpentBetween(ctx, dayFrom, dayTo)
	if err != nil {
		return Snapshot{}, err
	}
	weekSpent, err := store.SumSpentBetween(ctx, weekFrom, weekTo)
	if err != nil {
		return Snapshot{}, err
	}
	destSpent, err := store.SumSpentToBetween(ctx, destination, dayFrom, dayTo)
	if err != nil {
		return Snapshot{}, err
	}

	return Snapshot{
		DaySpentSats:         daySpent,
		WeekSpentSats:        weekSpent,
		DestinationSpentSats: destSpent,
		TakenAt:              at,
	}, nil
}
