package policy

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"satsguard/internal/audit"
	"satsguard/internal/ledger"
)

func testDocument() *Document {
	return &Document{
		Version: "v1",
		Budgets: Budgets{
			DailySatsCap:    50_000,
			WeeklySatsCap:   200_000,
			MaxSingleTxSats: 40_000,
			PerCounterpartyCaps: map[string]int64{
				"bc1qvendor": 15_000,
			},
		},
		Actions: Actions{
			AllowedCategories: []string{"operational", "treasury_funding"},
			Denylist:          []string{"bc1qbanned"},
		},
	}
}

func testEngine(t *testing.T, doc *Document) (*Engine, *ledger.MemoryStore) {
	t.Helper()
	store := ledger.NewMemoryStore()
	recorder := audit.NewRecorder(audit.NewMemoryStore(), zerolog.Nop())
	return NewEngine(doc, store, recorder, zerolog.Nop()), store
}

func request(amount int64) Request {
	return Request{
		Category:    "operational",
		Destination: "bc1qsupplier",
		AmountSats:  amount,
		CreatedAt:   time.Now().UTC(),
	}
}

func TestEvaluateIsDeterministic(t *testing.T) {
	doc := testDocument()
	snap := ledger.Snapshot{DaySpentSats: 10_000}
	at := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)
	req := request(5_000)

	first := Evaluate(doc, req, snap, at)
	for i := 0; i < 10; i++ {
		if got := Evaluate(doc, req, snap, at); got != first {
			t.Fatalf("identical inputs produced different decisions: %+v vs %+v", got, first)
		}
	}
	if !first.Allowed {
		t.Fatalf("expected allow, got deny %q", first.Reason)
	}
}

func TestEvaluateDenyReasons(t *testing.T) {
	doc := testDocument()

	cases := []struct {
		name   string
		req    Request
		snap   ledger.Snapshot
		reason string
	}{
		{
			name:   "unknown category",
			req:    Request{Category: "gambling", Destination: "bc1qsupplier", AmountSats: 1_000},
			reason: ReasonCategoryNotAllowed,
		},
		{
			name:   "denylisted destination",
			req:    Request{Category: "operational", Destination: "bc1qbanned", AmountSats: 1_000},
			reason: ReasonDestinationDenied,
		},
		{
			name:   "single tx cap",
			req:    Request{Category: "operational", Destination: "bc1qsupplier", AmountSats: 45_000},
			reason: ReasonSingleTxCapExceeded,
		},
		{
			name:   "daily cap",
			req:    Request{Category: "operational", Destination: "bc1qsupplier", AmountSats: 10_000},
			snap:   ledger.Snapshot{DaySpentSats: 45_000},
			reason: ReasonDailyCapExceeded,
		},
		{
			name:   "weekly cap",
			req:    Request{Category: "operational", Destination: "bc1qsupplier", AmountSats: 10_000},
			snap:   ledger.Snapshot{WeekSpentSats: 195_000},
			reason: ReasonWeeklyCapExceeded,
		},
		{
			name:   "counterparty cap",
			req:    Request{Category: "operational", Destination: "bc1qvendor", AmountSats: 10_000},
			snap:   ledger.Snapshot{DestinationSpentSats: 8_000},
			reason: ReasonCounterpartyCapExceeded,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			decision := Evaluate(doc, tc.req, tc.snap, time.Now().UTC())
			if decision.Allowed {
				t.Fatalf("expected deny")
			}
			if decision.Reason != tc.reason {
				t.Fatalf("expected reason %q, got %q", tc.reason, decision.Reason)
			}
		})
	}
}

func TestEvaluateFirstFailureWins(t *testing.T) {
	doc := testDocument()
	// Request breaches category, denylist, and single-tx cap at once; the
	// category check runs first.
	req := Request{Category: "gambling", Destination: "bc1qbanned", AmountSats: 45_000}

	decision := Evaluate(doc, req, ledger.Snapshot{}, time.Now().UTC())
	if decision.Reason != ReasonCategoryNotAllowed {
		t.Fatalf("expected first-order reason %q, got %q", ReasonCategoryNotAllowed, decision.Reason)
	}
}

func TestEvaluateAllowlistRestricts(t *testing.T) {
	doc := testDocument()
	doc.Actions.Allowlist = []string{"bc1qtrusted"}

	decision := Evaluate(doc, request(1_000), ledger.Snapshot{}, time.Now().UTC())
	if decision.Reason != ReasonDestinationNotAllowed {
		t.Fatalf("expected %q, got %q", ReasonDestinationNotAllowed, decision.Reason)
	}
}

func TestAuthorizeSpendDailyCapAtBoundary(t *testing.T) {
	engine, store := testEngine(t, testDocument())
	ctx := context.Background()

	if err := store.AppendSpend(ctx, ledger.Entry{
		ID:          "seed",
		Destination: "bc1qother",
		Category:    "operational",
		AmountSats:  45_000,
		RecordedAt:  time.Now().UTC(),
	}); err != nil {
		t.Fatalf("seed spend: %v", err)
	}

	decision, err := engine.AuthorizeSpend(ctx, request(10_000))
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if decision.Allowed {
		t.Fatal("expected deny when request would breach the daily cap")
	}
	if decision.Reason != ReasonDailyCapExceeded {
		t.Fatalf("expected %q, got %q", ReasonDailyCapExceeded, decision.Reason)
	}

	// Exactly filling the cap is permitted.
	decision, err = engine.AuthorizeSpend(ctx, request(5_000))
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if !decision.Allowed {
		t.Fatalf("spend to the cap boundary should be allowed, denied with %q", decision.Reason)
	}
}

func TestAuthorizeSpendRecordsLedgerEntry(t *testing.T) {
	engine, store := testEngine(t, testDocument())
	ctx := context.Background()

	if _, err := engine.AuthorizeSpend(ctx, request(7_000)); err != nil {
		t.Fatalf("authorize: %v", err)
	}

	from, to := ledger.DayWindow(time.Now().UTC())
	total, err := store.SumSpentBetween(ctx, from, to)
	if err != nil {
		t.Fatalf("sum spent: %v", err)
	}
	if total != 7_000 {
		t.Fatalf("expected 7000 sats recorded, got %d", total)
	}
}

func TestConcurrentAuthorizationsCannotShareHeadroom(t *testing.T) {
	engine, _ := testEngine(t, testDocument())
	ctx := context.Background()

	// Two 30k requests against a 50k daily cap: at most one may pass.
	const workers = 2
	allowed := make([]bool, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			decision, err := engine.AuthorizeSpend(ctx, request(30_000))
			if err != nil {
				t.Errorf("authorize: %v", err)
				return
			}
			allowed[i] = decision.Allowed
		}(i)
	}
	wg.Wait()

	count := 0
	for _, ok := range allowed {
		if ok {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected exactly one authorization to pass, got %d", count)
	}
}

func TestAuthorizeSpendFailsClosedWithoutLedger(t *testing.T) {
	recorder := audit.NewRecorder(nil, zerolog.Nop())
	engine := NewEngine(testDocument(), nil, recorder, zerolog.Nop())

	decision, err := engine.AuthorizeSpend(context.Background(), request(1_000))
	if err == nil {
		t.Fatal("expected error when ledger state cannot be read")
	}
	if decision.Allowed {
		t.Fatal("unverifiable budget state must never authorize")
	}
}

func TestReloadSwapsPolicyAtomically(t *testing.T) {
	engine, _ := testEngine(t, testDocument())

	next := testDocument()
	next.Version = "v2"
	next.Budgets.DailySatsCap = 75_000

	if err := engine.Reload(next); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got := engine.Policy().Version; got != "v2" {
		t.Fatalf("expected active policy v2, got %s", got)
	}

	bad := testDocument()
	bad.Budgets.DailySatsCap = 0
	if err := engine.Reload(bad); err == nil {
		t.Fatal("invalid document must not replace the active policy")
	}
	if got := engine.Policy().Version; got != "v2" {
		t.Fatalf("failed reload must keep the previous policy, got %s", got)
	}
}

func TestValidateDoesNotReserveBudget(t *testing.T) {
	engine, store := testEngine(t, testDocument())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		decision, err := engine.Validate(ctx, request(30_000))
		if err != nil {
			t.Fatalf("validate: %v", err)
		}
		if !decision.Allowed {
			t.Fatalf("repeat validation should stay allowed, denied with %q", decision.Reason)
		}
	}

	from, to := ledger.DayWindow(time.Now().UTC())
	total, err := store.SumSpentBetween(ctx, from, to)
	if err != nil {
		t.Fatalf("sum spent: %v", err)
	}
	if total != 0 {
		t.Fatalf("validation must not write ledger entries, found %d sats", total)
	}
}
