package policy

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"satsguard/internal/audit"
	"satsguard/internal/ledger"
)

// Deny reasons. Exactly one reason is attached per denied decision; checks
// run in fixed order and the first failure wins.
const (
	ReasonCategoryNotAllowed      = "category_not_allowed"
	ReasonDestinationDenied       = "destination_denied"
	ReasonDestinationNotAllowed   = "destination_not_allowlisted"
	ReasonSingleTxCapExceeded     = "single_tx_cap_exceeded"
	ReasonDailyCapExceeded        = "daily_cap_exceeded"
	ReasonWeeklyCapExceeded       = "weekly_cap_exceeded"
	ReasonCounterpartyCapExceeded = "counterparty_cap_exceeded"
)

// Decision is the outcome of a policy validation. A Deny is final for the
// request; the caller must submit a revised request.
type Decision struct {
	Allowed       bool      `json:"allowed"`
	Reason        string    `json:"reason,omitempty"`
	PolicyVersion string    `json:"policy_version"`
	EvaluatedAt   time.Time `json:"evaluated_at"`
}

// Evaluate runs the fixed-order checks against one policy snapshot and one
// ledger snapshot. It is a pure function: identical inputs yield identical
// decisions.
func Evaluate(doc *Document, req Request, snap ledger.Snapshot, at time.Time) Decision {
	deny := func(reason string) Decision {
		return Decision{Allowed: false, Reason: reason, PolicyVersion: doc.Version, EvaluatedAt: at}
	}

	if len(doc.Actions.AllowedCategories) > 0 && !contains(doc.Actions.AllowedCategories, req.Category) {
		return deny(ReasonCategoryNotAllowed)
	}
	if contains(doc.Actions.Denylist, req.Destination) {
		return deny(ReasonDestinationDenied)
	}
	if len(doc.Actions.Allowlist) > 0 && !contains(doc.Actions.Allowlist, req.Destination) {
		return deny(ReasonDestinationNotAllowed)
	}
	if req.AmountSats > doc.Budgets.MaxSingleTxSats {
		return deny(ReasonSingleTxCapExceeded)
	}
	if snap.DaySpentSats+req.AmountSats > doc.Budgets.DailySatsCap {
		return deny(ReasonDailyCapExceeded)
	}
	if snap.WeekSpentSats+req.AmountSats > doc.Budgets.WeeklySatsCap {
		return deny(ReasonWeeklyCapExceeded)
	}
	if limit, ok := doc.Budgets.PerCounterpartyCaps[req.Destination]; ok {
		if snap.DestinationSpentSats+req.AmountSats > limit {
			return deny(ReasonCounterpartyCapExceeded)
		}
	}

	return Decision{Allowed: true, PolicyVersion: doc.Version, EvaluatedAt: at}
}

// Engine gates spends against the active policy document and the spend
// ledger. Ledger-window reads and the matching append are serialized so two
// concurrent requests can never both claim the same cap headroom.
type Engine struct {
	doc      atomic.Pointer[Document]
	store    ledger.Store
	recorder *audit.Recorder
	logger   zerolog.Logger
	now      func() time.Time

	// mu guards the snapshot-evaluate-append critical section.
	mu sync.Mutex
}

// NewEngine constructs an Engine over a loaded policy document.
func NewEngine(doc *Document, store ledger.Store, recorder *audit.Recorder, logger zerolog.Logger) *Engine {
	e := &Engine{
		store:    store,
		recorder: recorder,
		logger:   logger.With().Str("component", "policy_engine").Logger(),
		now:      func() time.Time { return time.Now().UTC() },
	}
	e.doc.Store(doc)
	return e
}

// Policy returns the active policy snapshot. Callers hold the returned
// pointer for the duration of one decision; it is never mutated.
func (e *Engine) Policy() *Document {
	return e.doc.Load()
}

// Reload atomically replaces the active policy. In-flight validations keep
// the snapshot they started with.
func (e *Engine) Reload(doc *Document) error {
	if err := doc.Validate(); err != nil {
		return err
	}
	old := e.doc.Swap(doc)
	e.logger.Info().Str("old_version", old.Version).Str("new_version", doc.Version).Msg("policy reloaded")
	return nil
}

// Validate checks a request without reserving budget. The decision is
// recorded in the audit trail; a ledger read failure fails closed.
func (e *Engine) Validate(ctx context.Context, req Request) (Decision, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.evaluateLocked(ctx, req)
}

// AuthorizeSpend validates the request and, when allowed, appends the spend
// to the ledger as a single unit under the engine's exclusive section.
func (e *Engine) AuthorizeSpend(ctx context.Context, req Request) (Decision, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	decision, err := e.evaluateLocked(ctx, req)
	if err != nil || !decision.Allowed {
		return decision, err
	}

	entry := ledger.Entry{
		ID:          uuid.NewString(),
		Destination: req.Destination,
		Category:    req.Category,
		AmountSats:  req.AmountSats,
		RecordedAt:  decision.EvaluatedAt,
	}
	if err := e.store.AppendSpend(ctx, entry); err != nil {
		// The spend is refused outright: without a durable ledger entry the
		// cap invariant cannot be guaranteed.
		return Decision{}, fmt.Errorf("append spend entry: %w", err)
	}

	e.logger.Info().
		Str("destination", req.Destination).
		Int64("amount_sats", req.AmountSats).
		Str("policy_version", decision.PolicyVersion).
		Msg("spend authorized and recorded")
	return decision, nil
}

func (e *Engine) evaluateLocked(ctx context.Context, req Request) (Decision, error) {
	doc := e.doc.Load()
	at := e.now()

	snap, err := ledger.TakeSnapshot(ctx, e.store, req.Destination, at)
	if err != nil {
		// Fail closed: if budget state cannot be verified, authorization is
		// refused rather than assumed safe.
		return Decision{}, fmt.Errorf("read ledger windows: %w", err)
	}

	decision := Evaluate(doc, req, snap, at)

	if e.recorder != nil {
		e.recorder.Record(ctx, audit.Event{
			Kind:        audit.KindDecision,
			Action:      req.Category,
			Destination: req.Destination,
			AmountSats:  req.AmountSats,
			Allowed:     decision.Allowed,
			Reason:      decision.Reason,
			CreatedAt:   at,
		})
		if !decision.Allowed {
			e.recorder.Record(ctx, audit.Event{
				Kind:        audit.KindViolation,
				Action:      req.Category,
				Destination: req.Destination,
				AmountSats:  req.AmountSats,
				Allowed:     false,
				Reason:      decision.Reason,
				CreatedAt:   at,
			})
		}
	}

	return decision, nil
}

func contains(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}
