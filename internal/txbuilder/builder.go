package txbuilder

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"satsguard/internal/policy"
)

const (
	// safetyBufferSats pads the selection target so fee re-estimation has
	// headroom to converge without a second pass over the UTXO set.
	safetyBufferSats = 1_000

	maxFreshAddressAttempts = 5
	maxConsolidationInputs  = 3
)

// AddressSource hands out fresh receive addresses for change.
type AddressSource interface {
	FreshAddress(ctx context.Context) (string, error)
}

// AddressBook answers whether an address has been seen before. Used to
// enforce the no-address-reuse rule; a nil book disables the history check.
type AddressBook interface {
	Seen(ctx context.Context, address string) (bool, error)
}

// BuildRequest describes the transaction to construct.
type BuildRequest struct {
	Destination     string
	AmountSats      int64
	FeeRateSatPerVB decimal.Decimal
	Note            string
}

// Builder constructs unsigned transactions under the active construction
// rules. Selection is a pure computation over the supplied snapshot; the
// builder holds no wallet state.
type Builder struct {
	rules  policy.PSBTRules
	addrs  AddressSource
	book   AddressBook
	logger zerolog.Logger
	now    func() time.Time
}

// NewBuilder constructs a Builder.
func NewBuilder(rules policy.PSBTRules, addrs AddressSource, book AddressBook, logger zerolog.Logger) *Builder {
	return &Builder{
		rules:  rules,
		addrs:  addrs,
		book:   book,
		logger: logger.With().Str("component", "tx_builder").Logger(),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Build selects inputs and constructs an unsigned transaction. It returns
// ErrInsufficientFunds when the outputs cannot cover the target, and a
// *FeeError when the fee-rate ceiling would be breached. No partial
// transaction is ever returned.
func (b *Builder) Build(ctx context.Context, req BuildRequest, available []UTXO) (*UnsignedTransaction, error) {
	if req.Destination == "" {
		return nil, errors.New("destination is required")
	}
	if req.AmountSats < DustThresholdSats {
		return nil, fmt.Errorf("amount %d sats is below the dust threshold", req.AmountSats)
	}
	if !req.FeeRateSatPerVB.IsPositive() {
		return nil, errors.New("fee rate must be positive")
	}
	if ceiling := b.rules.MaxFeeSatPerVB; ceiling.IsPositive() && req.FeeRateSatPerVB.GreaterThan(ceiling) {
		return nil, &FeeError{ImpliedSatPerVB: req.FeeRateSatPerVB, CeilingSatPerVB: ceiling}
	}

	spendable := spendableOutputs(available)
	if len(spendable) == 0 {
		return nil, ErrInsufficientFunds
	}

	selected, fee, ok := selectInputs(spendable, req.AmountSats, req.FeeRateSatPerVB)
	if !ok {
		return nil, ErrInsufficientFunds
	}

	if b.shouldConsolidate(req.FeeRateSatPerVB) {
		selected, fee = consolidate(spendable, selected, req.FeeRateSatPerVB)
	}

	var totalIn int64
	inputs := make([]Input, 0, len(selected))
	for _, u := range selected {
		totalIn += u.ValueSats
		inputs = append(inputs, Input{TxID: u.TxID, Vout: u.Vout, ValueSats: u.ValueSats, Address: u.Address})
	}

	outputs := []Output{{Address: req.Destination, ValueSats: req.AmountSats}}
	leftover := totalIn - req.AmountSats - fee

	if leftover > b.changeFloor() {
		changeAddr, err := b.changeAddress(ctx, req.Destination, selected)
		if err != nil {
			return nil, err
		}
		outputs = append(outputs, Output{Address: changeAddr, ValueSats: leftover, Change: true})
	} else {
		// Uneconomical leftover folds into the fee rather than creating a
		// dust-adjacent output.
		fee += leftover
	}

	vsize := estimateVSize(len(inputs), len(outputs))
	implied := decimal.NewFromInt(fee).Div(decimal.NewFromInt(vsize))
	if ceiling := b.rules.MaxFeeSatPerVB; ceiling.IsPositive() && implied.GreaterThan(ceiling) {
		return nil, &FeeError{ImpliedSatPerVB: implied, CeilingSatPerVB: ceiling}
	}

	tx := &UnsignedTransaction{
		Inputs:          inputs,
		Outputs:         outputs,
		FeeSats:         fee,
		FeeRateSatPerVB: implied,
		VSizeVB:         vsize,
		Note:            req.Note,
		CreatedAt:       b.now(),
	}

	b.logger.Info().
		Int("inputs", len(inputs)).
		Int("outputs", len(outputs)).
		Int64("fee_sats", fee).
		Str("fee_rate", implied.StringFixed(2)).
		Msg("unsigned transaction constructed")
	return tx, nil
}

// selectInputs accumulates outputs largest-first, re-estimating the fee after
// each addition until the running total covers amount + fee + buffer.
func selectInputs(spendable []UTXO, amount int64, rate decimal.Decimal) ([]UTXO, int64, bool) {
	var (
		selected []UTXO
		total    int64
	)
	for _, u := range spendable {
		selected = append(selected, u)
		total += u.ValueSats

		fee := feeFor(len(selected), 2, rate)
		if total >= amount+fee+safetyBufferSats {
			return selected, fee, true
		}
	}
	return nil, 0, false
}

func (b *Builder) shouldConsolidate(rate decimal.Decimal) bool {
	threshold := b.rules.ConsolidateWhenFeerateBelow
	return threshold.IsPositive() && rate.LessThan(threshold)
}

// consolidate sweeps a bounded number of small outputs into the transaction
// while the low fee rate keeps each extra input economical.
func consolidate(spendable, selected []UTXO, rate decimal.Decimal) ([]UTXO, int64) {
	chosen := make(map[string]bool, len(selected))
	for _, u := range selected {
		chosen[outpointKey(u)] = true
	}

	// Cost of one extra input at this rate.
	marginal := rate.Mul(decimal.NewFromInt(inputVBytes)).Ceil().IntPart()
	added := 0
	for i := len(spendable) - 1; i >= 0 && added < maxConsolidationInputs; i-- {
		u := spendable[i]
		if chosen[outpointKey(u)] || u.ValueSats <= marginal {
			continue
		}
		selected = append(selected, u)
		chosen[outpointKey(u)] = true
		added++
	}

	return selected, feeFor(len(selected), 2, rate)
}

func (b *Builder) changeFloor() int64 {
	if b.rules.MinChangeValueSats > 0 {
		return b.rules.MinChangeValueSats
	}
	return DustThresholdSats
}

// changeAddress obtains a fresh, rule-compliant change address. Under the
// no-reuse rule an address already observed anywhere is rejected and a new
// one requested, up to a bounded number of attempts.
func (b *Builder) changeAddress(ctx context.Context, destination string, selected []UTXO) (string, error) {
	if b.addrs == nil {
		return "", errors.New("no address source configured for change")
	}

	inputAddrs := make(map[string]bool, len(selected))
	for _, u := range selected {
		inputAddrs[u.Address] = true
	}

	for attempt := 0; attempt < maxFreshAddressAttempts; attempt++ {
		addr, err := b.addrs.FreshAddress(ctx)
		if err != nil {
			return "", fmt.Errorf("obtain change address: %w", err)
		}
		if !b.rules.NoAddressReuse {
			return addr, nil
		}
		if addr == destination || inputAddrs[addr] {
			continue
		}
		if b.book != nil {
			seen, err := b.book.Seen(ctx, addr)
			if err != nil {
				return "", fmt.Errorf("check address history: %w", err)
			}
			if seen {
				continue
			}
		}
		return addr, nil
	}
	return "", errors.New("could not obtain an unused change address")
}

func spendableOutputs(available []UTXO) []UTXO {
	spendable := make([]UTXO, 0, len(available))
	for _, u := range available {
		if u.Confirmations >= 1 && u.ValueSats > DustThresholdSats {
			spendable = append(spendable, u)
		}
	}
	sort.Slice(spendable, func(i, j int) bool { return spendable[i].ValueSats > spendable[j].ValueSats })
	return spendable
}

func outpointKey(u UTXO) string {
	return fmt.Sprintf("%s:%d", u.TxID, u.Vout)
}
