package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"satsguard/internal/config"
	"satsguard/internal/funding"
	"satsguard/internal/ledger"
)

type fakeBalance struct {
	sats int64
	err  error
}

func (f *fakeBalance) OperatingBalance(context.Context) (int64, error) {
	return f.sats, f.err
}

func newTestService(balance *fakeBalance) (*Service, *funding.Manager) {
	cfg := &config.Config{}
	cfg.Funding.Enabled = true
	cfg.Funding.ThresholdSats = 50_000
	cfg.Funding.DefaultAmountSats = 100_000

	manager := funding.NewManager(funding.Options{
		DefaultAmountSats: 100_000,
		MaxPending:        3,
		Expiry:            24 * time.Hour,
	}, funding.NewMemoryStore(), nil, nil, zerolog.Nop())

	svc := New(cfg, nil, balance, manager, ledger.NewMemoryStore(), zerolog.Nop())
	return svc, manager
}

func TestRunCycleOpensProposalOnShortfall(t *testing.T) {
	svc, manager := newTestService(&fakeBalance{sats: 32_000})
	ctx := context.Background()

	if err := svc.RunCycle(ctx, time.Now().UTC()); err != nil {
		t.Fatalf("cycle: %v", err)
	}

	stats, err := manager.Summarize(ctx)
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if stats.Pending != 1 {
		t.Fatalf("shortfall should open one proposal, got %d pending", stats.Pending)
	}

	proposals, _ := manager.List(ctx)
	p := proposals[0]
	if p.Trigger.OperatingBalanceSats != 32_000 || p.Trigger.ThresholdSats != 50_000 {
		t.Fatalf("trigger context not captured: %+v", p.Trigger)
	}
	if p.AmountSats != 100_000 {
		t.Fatalf("proposal should request the default amount, got %d", p.AmountSats)
	}
}

func TestRunCycleSkipsWhenBalanceHealthy(t *testing.T) {
	svc, manager := newTestService(&fakeBalance{sats: 80_000})

	if err := svc.RunCycle(context.Background(), time.Now().UTC()); err != nil {
		t.Fatalf("cycle: %v", err)
	}

	stats, _ := manager.Summarize(context.Background())
	if stats.Total != 0 {
		t.Fatalf("healthy balance must not open proposals, got %d", stats.Total)
	}
}

func TestRunCycleFailsClosedOnBalanceError(t *testing.T) {
	svc, manager := newTestService(&fakeBalance{err: errors.New("wallet unreachable")})

	if err := svc.RunCycle(context.Background(), time.Now().UTC()); err == nil {
		t.Fatal("unreadable balance must fail the cycle")
	}

	stats, _ := manager.Summarize(context.Background())
	if stats.Total != 0 {
		t.Fatalf("unverified shortfall must not open proposals, got %d", stats.Total)
	}
}

func TestRunCycleDoesNotStackProposals(t *testing.T) {
	svc, manager := newTestService(&fakeBalance{sats: 10_000})
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		if err := svc.RunCycle(ctx, time.Now().UTC()); err != nil {
			t.Fatalf("cycle %d: %v", i, err)
		}
	}

	stats, _ := manager.Summarize(ctx)
	if stats.Pending != 1 {
		t.Fatalf("repeat cycles must not stack proposals for one shortfall, got %d", stats.Pending)
	}
}
