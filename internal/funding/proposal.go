// Package funding manages the treasury funding proposal lifecycle: creation
// against an operating-balance trigger, human approval or rejection over the
// webhook, expiry of stale requests, and execution bookkeeping.
package funding

import (
	"errors"
	"fmt"
	"time"
)

// Status is the lifecycle state of a proposal.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusExpired  Status = "expired"
	StatusExecuted Status = "executed"
)

var (
	// ErrNotFound reports an unknown proposal identifier.
	ErrNotFound = errors.New("proposal not found")

	// ErrTooManyPending reports that the pending cap is already reached and
	// no new proposal may be created.
	ErrTooManyPending = errors.New("too many pending proposals")
)

// StateConflictError reports a transition attempted from an incompatible
// state. The proposal is left untouched.
type StateConflictError struct {
	ProposalID string
	Current    Status
	Attempted  Status
}

func (e *StateConflictError) Error() string {
	return fmt.Sprintf("proposal %s is %s, cannot transition to %s", e.ProposalID, e.Current, e.Attempted)
}

// TriggerContext captures the conditions that motivated a proposal. It is
// frozen into the proposal at creation and never revised afterwards.
type TriggerContext struct {
	OperatingBalanceSats int64 `json:"operating_balance_sats"`
	ThresholdSats        int64 `json:"threshold_sats"`
	DayAvgOutflowSats    int64 `json:"day_avg_outflow_sats"`
}

// Proposal is one funding request. Justification fields are written once at
// creation; later balance or policy changes never alter them.
type Proposal struct {
	ID              string         `json:"id"`
	Status          Status         `json:"status"`
	AmountSats      int64          `json:"amount_sats"`
	Justification   string         `json:"justification"`
	IntendedUse     string         `json:"intended_use"`
	ExpectedROISats int64          `json:"expected_roi_sats"`
	RiskAssessment  string         `json:"risk_assessment"`
	TimeHorizonDays int            `json:"time_horizon_days"`
	Trigger         TriggerContext `json:"trigger"`
	Artifact        []byte         `json:"artifact,omitempty"`
	TxID            string         `json:"txid,omitempty"`
	DecidedBy       string         `json:"decided_by,omitempty"`
	DecisionNote    string         `json:"decision_note,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	ExpiresAt       time.Time      `json:"expires_at"`
	DecidedAt       *time.Time     `json:"decided_at,omitempty"`
	ExecutedAt      *time.Time     `json:"executed_at,omitempty"`
}

// Terminal reports whether the proposal can accept no further transitions
// other than executed-after-approved.
func (p *Proposal) Terminal() bool {
	switch p.Status {
	case StatusRejected, StatusExpired, StatusExecuted:
		return true
	}
	return false
}

// Stats aggregates proposal counts by state.
type Stats struct {
	Pending  int `json:"pending"`
	Approved int `json:"approved"`
	Rejected int `json:"rejected"`
	Expired  int `json:"expired"`
	Executed int `json:"executed"`
	Total    int `json:"total"`
}
