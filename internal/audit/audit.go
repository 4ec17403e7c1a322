package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Kind classifies audit events.
type Kind string

const (
	// KindDecision records every policy decision, Allow or Deny.
	KindDecision Kind = "decision"
	// KindViolation records a policy Deny as a distinct violation event.
	KindViolation Kind = "policy_violation"
	// KindAuthFailure records a rejected webhook authentication attempt.
	KindAuthFailure Kind = "auth_failure"
)

// Event is one entry in the audit trail. The trail is distinct from the spend
// ledger and never drives cap arithmetic.
type Event struct {
	ID          string    `json:"id"`
	Kind        Kind      `json:"kind"`
	Action      string    `json:"action,omitempty"`
	Destination string    `json:"destination,omitempty"`
	AmountSats  int64     `json:"amount_sats,omitempty"`
	Allowed     bool      `json:"allowed"`
	Reason      string    `json:"reason,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store persists audit events.
type Store interface {
	AppendEvent(ctx context.Context, event Event) error
	ListRecentEvents(ctx context.Context, kind Kind, limit int) ([]Event, error)
}

// Recorder writes events to the store and mirrors them to the log. A nil
// store degrades to log-only so auditing never blocks a decision path.
type Recorder struct {
	store  Store
	logger zerolog.Logger
}

// NewRecorder constructs a Recorder.
func NewRecorder(store Store, logger zerolog.Logger) *Recorder {
	return &Recorder{store: store, logger: logger.With().Str("component", "audit").Logger()}
}

// Record persists the event, filling id and timestamp when absent.
func (r *Recorder) Record(ctx context.Context, event Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	entry := r.logger.Info()
	if !event.Allowed && event.Kind != KindDecision {
		entry = r.logger.Warn()
	}
	entry.Str("kind", string(event.Kind)).
		Str("action", event.Action).
		Str("destination", event.Destination).
		Int64("amount_sats", event.AmountSats).
		Bool("allowed", event.Allowed).
		Str("reason", event.Reason).
		Msg("audit event")

	if r.store == nil {
		return
	}
	if err := r.store.AppendEvent(ctx, event); err != nil {
		r.logger.Error().Err(err).Str("kind", string(event.Kind)).Msg("failed to persist audit event")
	}
}
