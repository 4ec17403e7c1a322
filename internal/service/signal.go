package service

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"satsguard/internal/policy"
)

// Signal is an inbound spend instruction submitted to the authorizer. The
// decoder is strict: an unknown field fails the whole signal rather than
// silently dropping an instruction the sender thought it gave.
type Signal struct {
	Category        string          `json:"category"`
	Destination     string          `json:"destination"`
	AmountSats      int64           `json:"amount_sats"`
	FeeRateSatPerVB decimal.Decimal `json:"fee_rate_sat_per_vb"`
	Note            string          `json:"note"`
}

// ParseSignal decodes and validates one spend signal.
func ParseSignal(data []byte) (Signal, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var sig Signal
	if err := dec.Decode(&sig); err != nil {
		return Signal{}, fmt.Errorf("decode spend signal: %w", err)
	}
	if err := sig.Validate(); err != nil {
		return Signal{}, err
	}
	return sig, nil
}

// Validate checks the signal's structural requirements.
func (s Signal) Validate() error {
	if s.Category == "" {
		return errors.New("signal: category is required")
	}
	if s.Destination == "" {
		return errors.New("signal: destination is required")
	}
	if s.AmountSats <= 0 {
		return errors.New("signal: amount_sats must be positive")
	}
	if s.FeeRateSatPerVB.IsNegative() {
		return errors.New("signal: fee rate cannot be negative")
	}
	return nil
}

// Request maps the signal onto a policy request.
func (s Signal) Request(at time.Time) policy.Request {
	return policy.Request{
		Category:        s.Category,
		Destination:     s.Destination,
		AmountSats:      s.AmountSats,
		FeeRateSatPerVB: s.FeeRateSatPerVB,
		Note:            s.Note,
		CreatedAt:       at,
	}
}
