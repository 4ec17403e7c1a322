package txbuilder

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Approximate P2WPKH weight figures used for vsize estimation.
const (
	inputVBytes    = 148
	outputVBytes   = 34
	overheadVBytes = 10

	// DustThresholdSats is the value below which an output is uneconomical.
	DustThresholdSats = 546
)

// ErrInsufficientFunds reports that the available outputs cannot cover the
// target amount plus fees. It is an ordinary typed result, not a fault.
var ErrInsufficientFunds = errors.New("insufficient funds")

// FeeError reports that honoring the request would exceed the configured
// fee-rate ceiling. The builder never silently overpays.
type FeeError struct {
	ImpliedSatPerVB decimal.Decimal
	CeilingSatPerVB decimal.Decimal
}

func (e *FeeError) Error() string {
	return fmt.Sprintf("fee rate %s sat/vB exceeds ceiling %s sat/vB",
		e.ImpliedSatPerVB.StringFixed(2), e.CeilingSatPerVB.StringFixed(2))
}

// UTXO is a spendable wallet output. It is a read-only input to selection and
// is never owned beyond the selection call.
type UTXO struct {
	TxID          string `json:"txid"`
	Vout          uint32 `json:"vout"`
	ValueSats     int64  `json:"value_sats"`
	Confirmations int64  `json:"confirmations"`
	Address       string `json:"address"`
}

// Input is a selected transaction input.
type Input struct {
	TxID      string `json:"txid"`
	Vout      uint32 `json:"vout"`
	ValueSats int64  `json:"value_sats"`
	Address   string `json:"address"`
}

// Output is a destination or change output.
type Output struct {
	Address   string `json:"address"`
	ValueSats int64  `json:"value_sats"`
	Change    bool   `json:"change,omitempty"`
}

// UnsignedTransaction is the serializable artifact handed off for offline,
// multi-party completion. It carries no key material and becomes stale if the
// UTXO set changes materially before signing.
type UnsignedTransaction struct {
	Inputs          []Input         `json:"inputs"`
	Outputs         []Output        `json:"outputs"`
	FeeSats         int64           `json:"fee_sats"`
	FeeRateSatPerVB decimal.Decimal `json:"fee_rate_sat_per_vb"`
	VSizeVB         int64           `json:"vsize_vb"`
	Note            string          `json:"note,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

// TotalInputSats sums the selected input values.
func (t *UnsignedTransaction) TotalInputSats() int64 {
	var total int64
	for _, in := range t.Inputs {
		total += in.ValueSats
	}
	return total
}

// TotalOutputSats sums the output values.
func (t *UnsignedTransaction) TotalOutputSats() int64 {
	var total int64
	for _, out := range t.Outputs {
		total += out.ValueSats
	}
	return total
}

// Encode serializes the artifact for downstream completion.
func (t *UnsignedTransaction) Encode() ([]byte, error) {
	data, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("encode unsigned transaction: %w", err)
	}
	return data, nil
}

// Decode parses a serialized artifact. Unknown fields are a decode failure.
func Decode(data []byte) (*UnsignedTransaction, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var tx UnsignedTransaction
	if err := dec.Decode(&tx); err != nil {
		return nil, fmt.Errorf("decode unsigned transaction: %w", err)
	}
	return &tx, nil
}

func estimateVSize(inputs, outputs int) int64 {
	return int64(inputs*inputVBytes + outputs*outputVBytes + overheadVBytes)
}

func feeFor(inputs, outputs int, rate decimal.Decimal) int64 {
	vsize := estimateVSize(inputs, outputs)
	return rate.Mul(decimal.NewFromInt(vsize)).Ceil().IntPart()
}
