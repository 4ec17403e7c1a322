// Package wallet implements clients for the external Bitcoin collaborators:
// the Bitcoin Core node, an esplora-style block index, and the Lightning
// wallet service. All calls carry bounded timeouts; a failure is always a
// failed check, never an implicit success.
package wallet

import (
	"context"

	"github.com/shopspring/decimal"

	"satsguard/internal/txbuilder"
)

// BalanceSource reports the confirmed on-chain balance in satoshis.
type BalanceSource interface {
	Balance(ctx context.Context) (int64, error)
}

// UnspentSource enumerates spendable outputs.
type UnspentSource interface {
	ListUnspent(ctx context.Context) ([]txbuilder.UTXO, error)
}

// FeeEstimator returns a fee rate in sat/vB for a confirmation target.
type FeeEstimator interface {
	EstimateFeeRate(ctx context.Context, targetBlocks int) (decimal.Decimal, error)
}

// Broadcaster submits an already-finalized, signed raw transaction. This is
// the only path to the network and it never touches unsigned artifacts.
type Broadcaster interface {
	BroadcastRawTransaction(ctx context.Context, rawHex string) (string, error)
}

// OperatingBalanceSource reports the spendable Lightning balance in satoshis.
type OperatingBalanceSource interface {
	OperatingBalance(ctx context.Context) (int64, error)
}
