// Package service orchestrates the unattended decision cycle: sweep expired
// proposals, read the operating balance, and open a funding proposal when the
// float runs low. The cycle only ever proposes; moving treasury funds always
// waits for a human decision.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"satsguard/internal/config"
	"satsguard/internal/funding"
	"satsguard/internal/ledger"
	"satsguard/internal/scheduler"
	"satsguard/internal/wallet"
)

// Service runs the periodic decision cycle.
type Service struct {
	scheduler *scheduler.Scheduler
	operating wallet.OperatingBalanceSource
	manager   *funding.Manager
	ledger    ledger.Store
	logger    zerolog.Logger

	fundingOn     bool
	thresholdSats int64
	amountSats    int64
}

// New constructs the decision-cycle service.
func New(cfg *config.Config, sched *scheduler.Scheduler, operating wallet.OperatingBalanceSource, manager *funding.Manager, ledgerStore ledger.Store, logger zerolog.Logger) *Service {
	return &Service{
		scheduler:     sched,
		operating:     operating,
		manager:       manager,
		ledger:        ledgerStore,
		logger:        logger.With().Str("component", "service").Logger(),
		fundingOn:     cfg.Funding.Enabled,
		thresholdSats: cfg.Funding.ThresholdSats,
		amountSats:    cfg.Funding.DefaultAmountSats,
	}
}

// Run begins the periodic cycle loop.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.scheduler.Run(ctx, s.RunCycle)
}

// RunCycle executes one decision cycle.
func (s *Service) RunCycle(ctx context.Context, started time.Time) error {
	if s.manager != nil {
		expired, err := s.manager.ExpireSweep(ctx)
		if err != nil {
			return fmt.Errorf("expire sweep: %w", err)
		}
		if expired > 0 {
			s.logger.Info().Int("expired", expired).Msg("stale proposals expired")
		}
	}

	if !s.fundingOn || s.manager == nil || s.operating == nil {
		return nil
	}

	balance, err := s.operating.OperatingBalance(ctx)
	if err != nil {
		// An unreadable balance never triggers funding; the shortfall must be
		// observed, not assumed.
		return fmt.Errorf("read operating balance: %w", err)
	}

	s.logger.Debug().Int64("balance_sats", balance).Int64("threshold_sats", s.thresholdSats).Msg("operating balance checked")
	if balance >= s.thresholdSats {
		return nil
	}

	return s.proposeFunding(ctx, started, balance)
}

func (s *Service) proposeFunding(ctx context.Context, started time.Time, balance int64) error {
	stats, err := s.manager.Summarize(ctx)
	if err != nil {
		return fmt.Errorf("summarize proposals: %w", err)
	}
	if stats.Pending > 0 {
		// The shortfall is already awaiting a decision.
		s.logger.Debug().Int("pending", stats.Pending).Msg("funding shortfall already proposed")
		return nil
	}

	trigger := funding.TriggerContext{
		OperatingBalanceSats: balance,
		ThresholdSats:        s.thresholdSats,
		DayAvgOutflowSats:    s.recentDayOutflow(ctx, started),
	}

	proposal, err := s.manager.Create(ctx, s.amountSats, trigger)
	if err != nil {
		if errors.Is(err, funding.ErrTooManyPending) {
			s.logger.Warn().Msg("funding needed but pending cap reached")
			return nil
		}
		return fmt.Errorf("create funding proposal: %w", err)
	}

	s.logger.Info().
		Str("proposal_id", proposal.ID).
		Int64("amount_sats", proposal.AmountSats).
		Int64("balance_sats", balance).
		Msg("funding proposal opened")
	return nil
}

// recentDayOutflow reports today's treasury outflow for proposal context.
// Missing ledger data degrades to zero rather than blocking the proposal.
func (s *Service) recentDayOutflow(ctx context.Context, at time.Time) int64 {
	if s.ledger == nil {
		return 0
	}
	from, to := ledger.DayWindow(at)
	total, err := s.ledger.SumSpentBetween(ctx, from, to)
	if err != nil {
		s.logger.Warn().Err(err).Msg("could not read day outflow for proposal context")
		return 0
	}
	return total
}
