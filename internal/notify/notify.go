// Package notify delivers proposal notifications to the human approver's
// endpoint. Delivery is best effort: a lost notification never blocks or
// rolls back the proposal it announces.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/rs/zerolog"
)

// Notification carries the proposal context the approver needs to decide.
type Notification struct {
	ProposalID       string    `json:"proposal_id"`
	AmountSats       int64     `json:"amount_sats"`
	Justification    string    `json:"justification"`
	IntendedUse      string    `json:"intended_use"`
	ExpectedROISats  int64     `json:"expected_roi_sats"`
	RiskAssessment   string    `json:"risk_assessment"`
	TimeHorizonDays  int       `json:"time_horizon_days"`
	OperatingBalSats int64     `json:"operating_balance_sats"`
	ExpiresAt        time.Time `json:"expires_at"`
	CreatedAt        time.Time `json:"created_at"`
	Message          string    `json:"message"`
}

// Sender delivers a notification.
type Sender interface {
	Send(ctx context.Context, n Notification) error
}

// WebhookSender posts notifications as JSON to a configured URL.
type WebhookSender struct {
	url         string
	authToken   string
	maxAttempts int
	client      *http.Client
	logger      zerolog.Logger
}

// NewWebhookSender constructs a webhook notifier.
func NewWebhookSender(url, authToken string, timeout time.Duration, maxAttempts int, logger zerolog.Logger) *WebhookSender {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if maxAttempts <= 0 {
		maxAttempts = 3
	}

	return &WebhookSender{
		url:         url,
		authToken:   authToken,
		maxAttempts: maxAttempts,
		client:      &http.Client{Timeout: timeout},
		logger:      logger.With().Str("component", "notify_webhook").Logger(),
	}
}

// Send posts the notification, retrying transient failures a bounded number
// of times.
func (s *WebhookSender) Send(ctx context.Context, n Notification) error {
	if n.Message == "" {
		n.Message = RenderMessage(n)
	}

	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification payload: %w", err)
	}

	r := retry.New(
		retry.Context(ctx),
		retry.Attempts(uint(s.maxAttempts)),
		retry.Delay(time.Second),
	)

	err = r.Do(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
		if err != nil {
			return retry.Unrecoverable(fmt.Errorf("create notification request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")
		if s.authToken != "" {
			req.Header.Set("Authorization", "Bearer "+s.authToken)
		}

		resp, err := s.client.Do(req)
		if err != nil {
			return fmt.Errorf("send notification: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			err := fmt.Errorf("notification endpoint returned %d", resp.StatusCode)
			if resp.StatusCode >= 400 && resp.StatusCode < 500 {
				return retry.Unrecoverable(err)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info().
		Str("proposal_id", n.ProposalID).
		Int64("amount_sats", n.AmountSats).
		Msg("proposal notification delivered")
	return nil
}

// RenderMessage formats the human-readable summary shown to the approver.
func RenderMessage(n Notification) string {
	builder := strings.Builder{}
	builder.WriteString("[Treasury Funding Proposal]\n")
	builder.WriteString(fmt.Sprintf("Proposal: %s\n", n.ProposalID))
	builder.WriteString(fmt.Sprintf("Amount: %d sats\n", n.AmountSats))
	builder.WriteString(fmt.Sprintf("Operating balance: %d sats\n", n.OperatingBalSats))
	builder.WriteString(fmt.Sprintf("Justification: %s\n", n.Justification))
	builder.WriteString(fmt.Sprintf("Intended use: %s\n", n.IntendedUse))
	builder.WriteString(fmt.Sprintf("Expected return: %d sats over %d days\n", n.ExpectedROISats, n.TimeHorizonDays))
	builder.WriteString(fmt.Sprintf("Risk: %s\n", n.RiskAssessment))
	builder.WriteString(fmt.Sprintf("Expires: %s UTC\n", n.ExpiresAt.UTC().Format(time.RFC3339)))
	return builder.String()
}

var _ Sender = (*WebhookSender)(nil)
