package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"

	"satsguard/internal/txbuilder"
)

var (
	satsPerBTC   = decimal.NewFromInt(100_000_000)
	vbytesPerKVB = decimal.NewFromInt(1_000)
)

// BitcoindOptions parameterise the Bitcoin Core RPC client.
type BitcoindOptions struct {
	URL     string
	RPCUser string
	RPCPass string
	Wallet  string
	Timeout time.Duration
}

// Bitcoind talks JSON-RPC to a Bitcoin Core node. Calls run through a
// circuit breaker: when the node is misbehaving the breaker opens and every
// caller sees an immediate error, which downstream policy treats fail-closed.
type Bitcoind struct {
	opts    BitcoindOptions
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	logger  zerolog.Logger
}

// NewBitcoind constructs a Bitcoin Core client.
func NewBitcoind(opts BitcoindOptions, logger zerolog.Logger) *Bitcoind {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "bitcoind-rpc",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
	})

	return &Bitcoind{
		opts:    opts,
		client:  &http.Client{Timeout: timeout},
		breaker: breaker,
		logger:  logger.With().Str("component", "bitcoind").Logger(),
	}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

func (b *Bitcoind) call(ctx context.Context, method string, params []any, out any) error {
	_, err := b.breaker.Execute(func() (any, error) {
		return nil, b.doCall(ctx, method, params, out)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("bitcoind unavailable: %w", err)
	}
	return err
}

func (b *Bitcoind) doCall(ctx context.Context, method string, params []any, out any) error {
	if params == nil {
		params = []any{}
	}
	payload, err := json.Marshal(rpcRequest{JSONRPC: "1.0", ID: "satsguard", Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("marshal rpc request: %w", err)
	}

	endpoint := strings.TrimRight(b.opts.URL, "/")
	if b.opts.Wallet != "" {
		endpoint += "/wallet/" + b.opts.Wallet
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create rpc request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(b.opts.RPCUser, b.opts.RPCPass)

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("rpc %s: %w", method, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("rpc %s: read response: %w", method, err)
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(body, &rpcResp); err != nil {
		return fmt.Errorf("rpc %s (%d): %s", method, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if rpcResp.Error != nil {
		return fmt.Errorf("rpc %s: %s (code %d)", method, rpcResp.Error.Message, rpcResp.Error.Code)
	}

	if out != nil {
		if err := json.Unmarshal(rpcResp.Result, out); err != nil {
			return fmt.Errorf("rpc %s: decode result: %w", method, err)
		}
	}
	return nil
}

// Balance returns the confirmed wallet balance in satoshis.
func (b *Bitcoind) Balance(ctx context.Context) (int64, error) {
	var btc decimal.Decimal
	if err := b.call(ctx, "getbalance", []any{"*", 1}, &btc); err != nil {
		return 0, err
	}
	return btc.Mul(satsPerBTC).Round(0).IntPart(), nil
}

type unspentEntry struct {
	TxID          string          `json:"txid"`
	Vout          uint32          `json:"vout"`
	Address       string          `json:"address"`
	Amount        decimal.Decimal `json:"amount"`
	Confirmations int64           `json:"confirmations"`
	Spendable     bool            `json:"spendable"`
}

// ListUnspent enumerates spendable outputs, amounts converted to satoshis.
func (b *Bitcoind) ListUnspent(ctx context.Context) ([]txbuilder.UTXO, error) {
	var entries []unspentEntry
	if err := b.call(ctx, "listunspent", []any{1}, &entries); err != nil {
		return nil, err
	}

	utxos := make([]txbuilder.UTXO, 0, len(entries))
	for _, e := range entries {
		if !e.Spendable {
			continue
		}
		utxos = append(utxos, txbuilder.UTXO{
			TxID:          e.TxID,
			Vout:          e.Vout,
			ValueSats:     e.Amount.Mul(satsPerBTC).Round(0).IntPart(),
			Confirmations: e.Confirmations,
			Address:       e.Address,
		})
	}
	return utxos, nil
}

// FreshAddress requests a new bech32 receive address from the wallet.
func (b *Bitcoind) FreshAddress(ctx context.Context) (string, error) {
	var addr string
	if err := b.call(ctx, "getnewaddress", []any{"", "bech32"}, &addr); err != nil {
		return "", err
	}
	return addr, nil
}

type smartFeeResult struct {
	FeeRate decimal.Decimal `json:"feerate"`
	Errors  []string        `json:"errors"`
	Blocks  int             `json:"blocks"`
}

// EstimateFeeRate asks the node for a fee rate, converted to sat/vB.
func (b *Bitcoind) EstimateFeeRate(ctx context.Context, targetBlocks int) (decimal.Decimal, error) {
	var result smartFeeResult
	if err := b.call(ctx, "estimatesmartfee", []any{targetBlocks}, &result); err != nil {
		return decimal.Decimal{}, err
	}
	if len(result.Errors) > 0 {
		return decimal.Decimal{}, fmt.Errorf("estimatesmartfee: %s", strings.Join(result.Errors, "; "))
	}
	if !result.FeeRate.IsPositive() {
		return decimal.Decimal{}, errors.New("estimatesmartfee returned no rate")
	}
	// feerate arrives in BTC/kvB.
	return result.FeeRate.Mul(satsPerBTC).Div(vbytesPerKVB), nil
}

// BroadcastRawTransaction submits a finalized signed transaction and returns
// its txid. It is the explicit, distinct broadcast step; unsigned artifacts
// never reach it.
func (b *Bitcoind) BroadcastRawTransaction(ctx context.Context, rawHex string) (string, error) {
	if rawHex == "" {
		return "", errors.New("raw transaction hex is required")
	}
	var txid string
	if err := b.call(ctx, "sendrawtransaction", []any{rawHex}, &txid); err != nil {
		return "", err
	}
	b.logger.Info().Str("txid", txid).Msg("raw transaction broadcast")
	return txid, nil
}

// ChainInfo is a subset of getblockchaininfo used for status reporting.
type ChainInfo struct {
	Chain  string `json:"chain"`
	Blocks int64  `json:"blocks"`
}

// BlockchainInfo reports node chain state.
func (b *Bitcoind) BlockchainInfo(ctx context.Context) (ChainInfo, error) {
	var info ChainInfo
	if err := b.call(ctx, "getblockchaininfo", nil, &info); err != nil {
		return ChainInfo{}, err
	}
	return info, nil
}

var (
	_ BalanceSource = (*Bitcoind)(nil)
	_ UnspentSource = (*Bitcoind)(nil)
	_ FeeEstimator  = (*Bitcoind)(nil)
	_ Broadcaster   = (*Bitcoind)(nil)
)
