package funding

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"satsguard/internal/notify"
)

// Store persists proposals. Implementations must make SaveProposal durable
// before returning; the manager serializes transitions above this interface.
type Store interface {
	SaveProposal(ctx context.Context, p Proposal) error
	GetProposal(ctx context.Context, id string) (Proposal, error)
	ListProposals(ctx context.Context) ([]Proposal, error)
}

// Planner builds the unsigned transaction artifact for an approved proposal.
type Planner interface {
	Plan(ctx context.Context, amountSats int64, note string) ([]byte, error)
}

// Options configure the proposal lifecycle.
type Options struct {
	DefaultAmountSats int64
	MaxPending        int
	Expiry            time.Duration
}

// Manager owns proposal state transitions. Every transition runs under one
// mutex so a sweep and an approval can never race into an invalid state.
type Manager struct {
	opts    Options
	store   Store
	planner Planner
	sender  notify.Sender
	logger  zerolog.Logger
	now     func() time.Time

	mu sync.Mutex
}

// NewManager constructs a Manager. The planner and sender are optional.
func NewManager(opts Options, store Store, planner Planner, sender notify.Sender, logger zerolog.Logger) *Manager {
	if opts.MaxPending <= 0 {
		opts.MaxPending = 3
	}
	if opts.Expiry <= 0 {
		opts.Expiry = 24 * time.Hour
	}

	return &Manager{
		opts:    opts,
		store:   store,
		planner: planner,
		sender:  sender,
		logger:  logger.With().Str("component", "funding_manager").Logger(),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Create opens a new pending proposal for the given trigger conditions. It
// refuses with ErrTooManyPending once the pending cap is reached; the cap
// bounds how much approval debt can accumulate unattended.
func (m *Manager) Create(ctx context.Context, amountSats int64, trigger TriggerContext) (*Proposal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if amountSats <= 0 {
		amountSats = m.opts.DefaultAmountSats
	}

	pending, err := m.countPendingLocked(ctx)
	if err != nil {
		return nil, err
	}
	if pending >= m.opts.MaxPending {
		return nil, ErrTooManyPending
	}

	now := m.now()
	p := Proposal{
		ID:              uuid.NewString(),
		Status:          StatusPending,
		AmountSats:      amountSats,
		Justification:   renderJustification(trigger),
		IntendedUse:     "replenish the Lightning operating float for routine agent payments",
		ExpectedROISats: estimatedReturnSats(amountSats),
		RiskAssessment:  "low: funds move between treasury-controlled wallets and require human signing",
		TimeHorizonDays: 30,
		Trigger:         trigger,
		CreatedAt:       now,
		ExpiresAt:       now.Add(m.opts.Expiry),
	}

	if err := m.store.SaveProposal(ctx, p); err != nil {
		return nil, fmt.Errorf("save proposal: %w", err)
	}

	m.logger.Info().
		Str("proposal_id", p.ID).
		Int64("amount_sats", p.AmountSats).
		Time("expires_at", p.ExpiresAt).
		Msg("funding proposal created")

	m.notifyAsync(p)
	return &p, nil
}

// Approve moves a pending proposal to approved and builds the unsigned
// transaction artifact. A proposal past its expiry is expired first and the
// late approval is refused with a state conflict.
func (m *Manager) Approve(ctx context.Context, id, approvedBy, note string) (*Proposal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, err := m.loadLocked(ctx, id)
	if err != nil {
		return nil, err
	}
	if conflict := m.refuseIfNotPendingLocked(ctx, &p, StatusApproved); conflict != nil {
		return nil, conflict
	}

	now := m.now()
	p.Status = StatusApproved
	p.DecidedBy = approvedBy
	p.DecisionNote = note
	p.DecidedAt = &now

	if m.planner != nil {
		artifact, err := m.planner.Plan(ctx, p.AmountSats, "funding proposal "+p.ID)
		if err != nil {
			// The approval itself stands without an artifact; a failed
			// plan records nothing in the spend ledger.
			m.logger.Error().Err(err).Str("proposal_id", p.ID).Msg("artifact construction failed after approval")
		} else {
			p.Artifact = artifact
		}
	}

	if err := m.store.SaveProposal(ctx, p); err != nil {
		return nil, fmt.Errorf("save proposal: %w", err)
	}

	m.logger.Info().Str("proposal_id", p.ID).Str("approved_by", approvedBy).Msg("funding proposal approved")
	return &p, nil
}

// Reject moves a pending proposal to rejected. Rejection is final: the same
// proposal is never resubmitted, a later shortfall opens a fresh one.
func (m *Manager) Reject(ctx context.Context, id, rejectedBy, note string) (*Proposal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, err := m.loadLocked(ctx, id)
	if err != nil {
		return nil, err
	}
	if conflict := m.refuseIfNotPendingLocked(ctx, &p, StatusRejected); conflict != nil {
		return nil, conflict
	}

	now := m.now()
	p.Status = StatusRejected
	p.DecidedBy = rejectedBy
	p.DecisionNote = note
	p.DecidedAt = &now

	if err := m.store.SaveProposal(ctx, p); err != nil {
		return nil, fmt.Errorf("save proposal: %w", err)
	}

	m.logger.Info().Str("proposal_id", p.ID).Msg("funding proposal rejected")
	return &p, nil
}

// MarkExecuted records the broadcast transaction for an approved proposal.
func (m *Manager) MarkExecuted(ctx context.Context, id, txid string) (*Proposal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, err := m.loadLocked(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Status != StatusApproved {
		return nil, &StateConflictError{ProposalID: p.ID, Current: p.Status, Attempted: StatusExecuted}
	}

	now := m.now()
	p.Status = StatusExecuted
	p.TxID = txid
	p.ExecutedAt = &now

	if err := m.store.SaveProposal(ctx, p); err != nil {
		return nil, fmt.Errorf("save proposal: %w", err)
	}

	m.logger.Info().Str("proposal_id", p.ID).Str("txid", txid).Msg("funding proposal executed")
	return &p, nil
}

// ExpireSweep marks every pending proposal past its deadline as expired and
// returns how many were flipped. Running it twice is harmless.
func (m *Manager) ExpireSweep(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	proposals, err := m.store.ListProposals(ctx)
	if err != nil {
		return 0, fmt.Errorf("list proposals: %w", err)
	}

	now := m.now()
	expired := 0
	for _, p := range proposals {
		if p.Status != StatusPending || now.Before(p.ExpiresAt) {
			continue
		}
		p.Status = StatusExpired
		if err := m.store.SaveProposal(ctx, p); err != nil {
			return expired, fmt.Errorf("save proposal: %w", err)
		}
		expired++
		m.logger.Info().Str("proposal_id", p.ID).Time("expired_at", p.ExpiresAt).Msg("funding proposal expired")
	}
	return expired, nil
}

// Get returns one proposal by identifier.
func (m *Manager) Get(ctx context.Context, id string) (*Proposal, error) {
	p, err := m.store.GetProposal(ctx, id)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// List returns all proposals, newest first.
func (m *Manager) List(ctx context.Context) ([]Proposal, error) {
	proposals, err := m.store.ListProposals(ctx)
	if err != nil {
		return nil, err
	}
	return proposals, nil
}

// Summarize aggregates proposal counts by state.
func (m *Manager) Summarize(ctx context.Context) (Stats, error) {
	proposals, err := m.store.ListProposals(ctx)
	if err != nil {
		return Stats{}, err
	}

	var stats Stats
	for _, p := range proposals {
		switch p.Status {
		case StatusPending:
			stats.Pending++
		case StatusApproved:
			stats.Approved++
		case StatusRejected:
			stats.Rejected++
		case StatusExpired:
			stats.Expired++
		case StatusExecuted:
			stats.Executed++
		}
	}
	stats.Total = len(proposals)
	return stats, nil
}

func (m *Manager) loadLocked(ctx context.Context, id string) (Proposal, error) {
	p, err := m.store.GetProposal(ctx, id)
	if err != nil {
		return Proposal{}, err
	}
	return p, nil
}

// refuseIfNotPendingLocked enforces that transitions originate from pending.
// A pending proposal past its deadline is expired in place first, so a late
// decision conflicts against the expired state it should have seen.
func (m *Manager) refuseIfNotPendingLocked(ctx context.Context, p *Proposal, attempted Status) error {
	if p.Status == StatusPending && !m.now().Before(p.ExpiresAt) {
		p.Status = StatusExpired
		if err := m.store.SaveProposal(ctx, *p); err != nil {
			return fmt.Errorf("save proposal: %w", err)
		}
	}
	if p.Status != StatusPending {
		return &StateConflictError{ProposalID: p.ID, Current: p.Status, Attempted: attempted}
	}
	return nil
}

func (m *Manager) countPendingLocked(ctx context.Context) (int, error) {
	proposals, err := m.store.ListProposals(ctx)
	if err != nil {
		return 0, fmt.Errorf("list proposals: %w", err)
	}
	pending := 0
	for _, p := range proposals {
		if p.Status == StatusPending {
			pending++
		}
	}
	return pending, nil
}

// notifyAsync delivers the approver notification without blocking or failing
// the creation path.
func (m *Manager) notifyAsync(p Proposal) {
	if m.sender == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		n := notify.Notification{
			ProposalID:       p.ID,
			AmountSats:       p.AmountSats,
			Justification:    p.Justification,
			IntendedUse:      p.IntendedUse,
			ExpectedROISats:  p.ExpectedROISats,
			RiskAssessment:   p.RiskAssessment,
			TimeHorizonDays:  p.TimeHorizonDays,
			OperatingBalSats: p.Trigger.OperatingBalanceSats,
			ExpiresAt:        p.ExpiresAt,
			CreatedAt:        p.CreatedAt,
		}
		if err := m.sender.Send(ctx, n); err != nil {
			m.logger.Error().Err(err).Str("proposal_id", p.ID).Msg("proposal notification failed")
		}
	}()
}

func renderJustification(t TriggerContext) string {
	return fmt.Sprintf(
		"operating balance %d sats fell below the %d sat floor; recent daily outflow averages %d sats",
		t.OperatingBalanceSats, t.ThresholdSats, t.DayAvgOutflowSats)
}

// estimatedReturnSats is a coarse projection of routing and uptime revenue
// unlocked by keeping the operating wallet funded.
func estimatedReturnSats(amountSats int64) int64 {
	return amountSats / 20
}
