package funding

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type fakePlanner struct {
	artifact []byte
	err      error
	calls    int
}

func (f *fakePlanner) Plan(context.Context, int64, string) ([]byte, error) {
	f.calls++
	return f.artifact, f.err
}

func newTestManager(planner Planner) (*Manager, *time.Time) {
	now := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)
	m := NewManager(Options{
		DefaultAmountSats: 100_000,
		MaxPending:        3,
		Expiry:            24 * time.Hour,
	}, NewMemoryStore(), planner, nil, zerolog.Nop())
	m.now = func() time.Time { return now }
	return m, &now
}

func testTrigger() TriggerContext {
	return TriggerContext{OperatingBalanceSats: 32_000, ThresholdSats: 50_000, DayAvgOutflowSats: 9_000}
}

func TestCreateFreezesJustification(t *testing.T) {
	m, _ := newTestManager(nil)
	ctx := context.Background()

	p, err := m.Create(ctx, 0, testTrigger())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if p.Status != StatusPending {
		t.Fatalf("new proposal should be pending, got %s", p.Status)
	}
	if p.AmountSats != 100_000 {
		t.Fatalf("zero amount should fall back to the default, got %d", p.AmountSats)
	}
	if p.Justification == "" || p.IntendedUse == "" || p.RiskAssessment == "" {
		t.Fatalf("justification fields must be filled at creation: %+v", p)
	}
	if p.Trigger != testTrigger() {
		t.Fatalf("trigger context not frozen: %+v", p.Trigger)
	}
	if !p.ExpiresAt.Equal(p.CreatedAt.Add(24 * time.Hour)) {
		t.Fatalf("expiry should be creation plus the configured window, got %s", p.ExpiresAt)
	}
}

func TestCreateRefusesAtPendingCap(t *testing.T) {
	m, _ := newTestManager(nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := m.Create(ctx, 10_000, testTrigger()); err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
	}

	if _, err := m.Create(ctx, 10_000, testTrigger()); !errors.Is(err, ErrTooManyPending) {
		t.Fatalf("expected ErrTooManyPending at the cap, got %v", err)
	}

	// Deciding one frees a slot.
	proposals, err := m.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if _, err := m.Reject(ctx, proposals[0].ID, "treasurer", "not now"); err != nil {
		t.Fatalf("reject: %v", err)
	}
	if _, err := m.Create(ctx, 10_000, testTrigger()); err != nil {
		t.Fatalf("create after freeing a slot: %v", err)
	}
}

func TestApproveBuildsArtifact(t *testing.T) {
	planner := &fakePlanner{artifact: []byte(`{"inputs":[]}`)}
	m, _ := newTestManager(planner)
	ctx := context.Background()

	p, err := m.Create(ctx, 10_000, testTrigger())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	approved, err := m.Approve(ctx, p.ID, "treasurer", "looks fine")
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if approved.Status != StatusApproved {
		t.Fatalf("expected approved, got %s", approved.Status)
	}
	if planner.calls != 1 {
		t.Fatalf("planner should run once, ran %d times", planner.calls)
	}
	if string(approved.Artifact) != `{"inputs":[]}` {
		t.Fatalf("artifact not stored: %q", approved.Artifact)
	}
	if approved.DecidedAt == nil || approved.DecidedBy != "treasurer" || approved.DecisionNote != "looks fine" {
		t.Fatalf("decision metadata missing: %+v", approved)
	}
}

func TestApproveSurvivesPlannerFailure(t *testing.T) {
	planner := &fakePlanner{err: errors.New("wallet offline")}
	m, _ := newTestManager(planner)
	ctx := context.Background()

	p, err := m.Create(ctx, 10_000, testTrigger())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	approved, err := m.Approve(ctx, p.ID, "treasurer", "")
	if err != nil {
		t.Fatalf("approval must stand even when the artifact cannot be built: %v", err)
	}
	if approved.Status != StatusApproved || approved.Artifact != nil {
		t.Fatalf("expected approved without artifact: %+v", approved)
	}
}

func TestLateApprovalConflictsWithExpiry(t *testing.T) {
	m, now := newTestManager(nil)
	ctx := context.Background()

	p, err := m.Create(ctx, 10_000, testTrigger())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	*now = now.Add(25 * time.Hour)

	_, err = m.Approve(ctx, p.ID, "treasurer", "")
	var conflict *StateConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected state conflict, got %v", err)
	}
	if conflict.Current != StatusExpired {
		t.Fatalf("conflict should report the expired state, got %s", conflict.Current)
	}

	stored, err := m.Get(ctx, p.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Status != StatusExpired {
		t.Fatalf("late decision must leave the proposal expired, got %s", stored.Status)
	}
}

func TestTerminalStatesRefuseTransitions(t *testing.T) {
	m, _ := newTestManager(nil)
	ctx := context.Background()

	p, err := m.Create(ctx, 10_000, testTrigger())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := m.Reject(ctx, p.ID, "treasurer", "no"); err != nil {
		t.Fatalf("reject: %v", err)
	}

	var conflict *StateConflictError
	if _, err := m.Approve(ctx, p.ID, "treasurer", ""); !errors.As(err, &conflict) {
		t.Fatalf("approving a rejected proposal must conflict, got %v", err)
	}
	if _, err := m.Reject(ctx, p.ID, "treasurer", ""); !errors.As(err, &conflict) {
		t.Fatalf("re-rejecting must conflict, got %v", err)
	}
	if _, err := m.MarkExecuted(ctx, p.ID, "txid"); !errors.As(err, &conflict) {
		t.Fatalf("executing a rejected proposal must conflict, got %v", err)
	}
}

func TestMarkExecutedRequiresApproval(t *testing.T) {
	m, _ := newTestManager(nil)
	ctx := context.Background()

	p, err := m.Create(ctx, 10_000, testTrigger())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	var conflict *StateConflictError
	if _, err := m.MarkExecuted(ctx, p.ID, "txid"); !errors.As(err, &conflict) {
		t.Fatalf("pending proposals must not execute, got %v", err)
	}

	if _, err := m.Approve(ctx, p.ID, "treasurer", ""); err != nil {
		t.Fatalf("approve: %v", err)
	}
	executed, err := m.MarkExecuted(ctx, p.ID, "txid123")
	if err != nil {
		t.Fatalf("mark executed: %v", err)
	}
	if executed.Status != StatusExecuted || executed.TxID != "txid123" || executed.ExecutedAt == nil {
		t.Fatalf("execution bookkeeping incomplete: %+v", executed)
	}
}

func TestExpireSweepIsIdempotent(t *testing.T) {
	m, now := newTestManager(nil)
	ctx := context.Background()

	first, err := m.Create(ctx, 10_000, testTrigger())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	*now = now.Add(10 * time.Hour)
	second, err := m.Create(ctx, 10_000, testTrigger())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	*now = now.Add(15 * time.Hour)

	expired, err := m.ExpireSweep(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if expired != 1 {
		t.Fatalf("only the first proposal has passed its deadline, swept %d", expired)
	}

	expired, err = m.ExpireSweep(ctx)
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if expired != 0 {
		t.Fatalf("second sweep must be a no-op, swept %d", expired)
	}

	stored, _ := m.Get(ctx, first.ID)
	if stored.Status != StatusExpired {
		t.Fatalf("first proposal should be expired, got %s", stored.Status)
	}
	stored, _ = m.Get(ctx, second.ID)
	if stored.Status != StatusPending {
		t.Fatalf("second proposal should still be pending, got %s", stored.Status)
	}
}

func TestSummarizeCounts(t *testing.T) {
	m, _ := newTestManager(nil)
	ctx := context.Background()

	a, _ := m.Create(ctx, 10_000, testTrigger())
	b, _ := m.Create(ctx, 10_000, testTrigger())
	if _, err := m.Approve(ctx, a.ID, "treasurer", ""); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, err := m.Reject(ctx, b.ID, "treasurer", ""); err != nil {
		t.Fatalf("reject: %v", err)
	}

	stats, err := m.Summarize(ctx)
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if stats.Approved != 1 || stats.Rejected != 1 || stats.Pending != 0 || stats.Total != 2 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}
