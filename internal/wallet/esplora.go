package wallet

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// EsploraOptions parameterise the block-index REST client.
type EsploraOptions struct {
	BaseURL string
	Timeout time.Duration
}

// Esplora reads public chain data from an esplora-style block index. It is
// used for independent fee context and address history, never for spending.
type Esplora struct {
	baseURL string
	client  *http.Client
	logger  zerolog.Logger
}

// NewEsplora constructs an Esplora client.
func NewEsplora(opts EsploraOptions, logger zerolog.Logger) *Esplora {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Esplora{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		logger:  logger.With().Str("component", "esplora").Logger(),
	}
}

// get fetches a path with bounded retries for transient failures.
func (e *Esplora) get(ctx context.Context, path string, out any) error {
	r := retry.New(
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(500*time.Millisecond),
	)

	return r.Do(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+path, nil)
		if err != nil {
			return retry.Unrecoverable(fmt.Errorf("create request: %w", err))
		}

		resp, err := e.client.Do(req)
		if err != nil {
			return fmt.Errorf("esplora %s: %w", path, err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("esplora %s: read response: %w", path, err)
		}
		if resp.StatusCode != http.StatusOK {
			err := fmt.Errorf("esplora %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(body)))
			if resp.StatusCode >= 400 && resp.StatusCode < 500 {
				return retry.Unrecoverable(err)
			}
			return err
		}

		if err := json.Unmarshal(body, out); err != nil {
			return retry.Unrecoverable(fmt.Errorf("esplora %s: decode: %w", path, err))
		}
		return nil
	})
}

// TipHeight returns the current chain tip height.
func (e *Esplora) TipHeight(ctx context.Context) (int64, error) {
	var height int64
	if err := e.get(ctx, "/blocks/tip/height", &height); err != nil {
		return 0, err
	}
	return height, nil
}

// FeeEstimates returns the index's fee-rate estimates keyed by confirmation
// target (in blocks), in sat/vB.
func (e *Esplora) FeeEstimates(ctx context.Context) (map[string]decimal.Decimal, error) {
	estimates := make(map[string]decimal.Decimal)
	if err := e.get(ctx, "/fee-estimates", &estimates); err != nil {
		return nil, err
	}
	return estimates, nil
}

// EstimateFeeRate satisfies FeeEstimator using the index's estimate for the
// given confirmation target.
func (e *Esplora) EstimateFeeRate(ctx context.Context, targetBlocks int) (decimal.Decimal, error) {
	estimates, err := e.FeeEstimates(ctx)
	if err != nil {
		return decimal.Decimal{}, err
	}
	rate, ok := estimates[fmt.Sprintf("%d", targetBlocks)]
	if !ok || !rate.IsPositive() {
		return decimal.Decimal{}, fmt.Errorf("no fee estimate for target %d", targetBlocks)
	}
	return rate, nil
}

// TxStatus reports confirmation state for a transaction.
type TxStatus struct {
	Confirmed   bool  `json:"confirmed"`
	BlockHeight int64 `json:"block_height"`
}

// TransactionStatus looks up whether a broadcast transaction has confirmed.
func (e *Esplora) TransactionStatus(ctx context.Context, txid string) (TxStatus, error) {
	var status TxStatus
	if err := e.get(ctx, "/tx/"+url.PathEscape(txid)+"/status", &status); err != nil {
		return TxStatus{}, err
	}
	return status, nil
}

type addressStats struct {
	ChainStats struct {
		TxCount int64 `json:"tx_count"`
	} `json:"chain_stats"`
	MempoolStats struct {
		TxCount int64 `json:"tx_count"`
	} `json:"mempool_stats"`
}

// Seen reports whether an address has ever appeared on chain or in the
// mempool. This backs the no-address-reuse rule for change outputs.
func (e *Esplora) Seen(ctx context.Context, address string) (bool, error) {
	var stats addressStats
	if err := e.get(ctx, "/address/"+url.PathEscape(address), &stats); err != nil {
		return false, err
	}
	return stats.ChainStats.TxCount > 0 || stats.MempoolStats.TxCount > 0, nil
}

var _ FeeEstimator = (*Esplora)(nil)
