package wallet

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// LightningOptions parameterise the Lightning wallet client.
type LightningOptions struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Lightning reads the operating balance from an LNbits-style wallet service.
// Access is read-only: the API key grants balance and payment listing, never
// payment initiation.
type Lightning struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  zerolog.Logger
}

// NewLightning constructs a Lightning wallet client.
func NewLightning(opts LightningOptions, logger zerolog.Logger) *Lightning {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Lightning{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		apiKey:  opts.APIKey,
		client:  &http.Client{Timeout: timeout},
		logger:  logger.With().Str("component", "lightning").Logger(),
	}
}

func (l *Lightning) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("X-Api-Key", l.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := l.client.Do(req)
	if err != nil {
		return fmt.Errorf("lightning %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("lightning %s: read response: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("lightning %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("lightning %s: decode: %w", path, err)
	}
	return nil
}

type walletInfo struct {
	Name string `json:"name"`
	// Balance arrives in millisatoshis.
	Balance int64 `json:"balance"`
}

// OperatingBalance returns the spendable Lightning balance in satoshis.
func (l *Lightning) OperatingBalance(ctx context.Context) (int64, error) {
	var info walletInfo
	if err := l.get(ctx, "/api/v1/wallet", &info); err != nil {
		return 0, err
	}
	return info.Balance / 1_000, nil
}

// Payment is one settled Lightning payment.
type Payment struct {
	PaymentHash string `json:"payment_hash"`
	AmountMsat  int64  `json:"amount"`
	FeeMsat     int64  `json:"fee"`
	Memo        string `json:"memo"`
	Pending     bool   `json:"pending"`
	Time        int64  `json:"time"`
}

// RecentPayments lists recent wallet payments, newest first.
func (l *Lightning) RecentPayments(ctx context.Context, limit int) ([]Payment, error) {
	if limit <= 0 {
		limit = 20
	}
	var payments []Payment
	if err := l.get(ctx, fmt.Sprintf("/api/v1/payments?limit=%d", limit), &payments); err != nil {
		return nil, err
	}
	return payments, nil
}

var _ OperatingBalanceSource = (*Lightning)(nil)
