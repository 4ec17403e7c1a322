package policy

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
)

// Document is the versioned, declarative ruleset constraining permitted
// spends. It is loaded once per version and immutable during a decision.
type Document struct {
	Version string    `json:"version"`
	Budgets Budgets   `json:"budgets"`
	Actions Actions   `json:"actions"`
	Rules   PSBTRules `json:"psbt_rules"`
}

// Budgets declares the spending caps.
type Budgets struct {
	DailySatsCap        int64            `json:"daily_sats_cap"`
	WeeklySatsCap       int64            `json:"weekly_sats_cap"`
	MaxSingleTxSats     int64            `json:"max_single_tx_sats"`
	PerCounterpartyCaps map[string]int64 `json:"per_counterparty_caps"`
}

// Actions declares category and destination constraints. An empty
// allowed_categories list means no category restriction; an empty allowlist
// means any destination not denylisted is acceptable.
type Actions struct {
	AllowedCategories []string `json:"allowed_categories"`
	Allowlist         []string `json:"allowlist_domains"`
	Denylist          []string `json:"denylist_domains"`
}

// PSBTRules constrain transaction construction.
type PSBTRules struct {
	MaxFeeSatPerVB              decimal.Decimal `json:"max_fee_sat_per_vb"`
	NoAddressReuse              bool            `json:"no_address_reuse"`
	MinChangeValueSats          int64           `json:"min_change_value_sats"`
	ConsolidateWhenFeerateBelow decimal.Decimal `json:"consolidate_when_feerate_below"`
}

// Request asks permission to spend. Immutable once created.
type Request struct {
	Category        string          `json:"category"`
	Destination     string          `json:"destination"`
	AmountSats      int64           `json:"amount_sats"`
	FeeRateSatPerVB decimal.Decimal `json:"fee_rate_sat_per_vb,omitempty"`
	Note            string          `json:"note,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

// LoadDocument reads and validates a policy document from disk. Unknown
// fields are a decode failure, never silently ignored.
func LoadDocument(path string) (*Document, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open policy document: %w", err)
	}
	defer file.Close()

	dec := json.NewDecoder(file)
	dec.DisallowUnknownFields()

	var doc Document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode policy document %s: %w", path, err)
	}

	if err := doc.Validate(); err != nil {
		return nil, fmt.Errorf("policy document %s: %w", path, err)
	}
	return &doc, nil
}

// Validate checks internal consistency of the document.
func (d *Document) Validate() error {
	if d.Version == "" {
		return fmt.Errorf("version is required")
	}
	if d.Budgets.DailySatsCap <= 0 {
		return fmt.Errorf("budgets.daily_sats_cap must be greater than zero")
	}
	if d.Budgets.WeeklySatsCap < d.Budgets.DailySatsCap {
		return fmt.Errorf("budgets.weekly_sats_cap must be at least the daily cap")
	}
	if d.Budgets.MaxSingleTxSats <= 0 {
		return fmt.Errorf("budgets.max_single_tx_sats must be greater than zero")
	}
	if d.Budgets.MaxSingleTxSats > d.Budgets.DailySatsCap {
		return fmt.Errorf("budgets.max_single_tx_sats must not exceed the daily cap")
	}
	for dest, limit := range d.Budgets.PerCounterpartyCaps {
		if limit <= 0 {
			return fmt.Errorf("budgets.per_counterparty_caps[%s] must be greater than zero", dest)
		}
	}
	if d.Rules.MaxFeeSatPerVB.IsNegative() {
		return fmt.Errorf("psbt_rules.max_fee_sat_per_vb cannot be negative")
	}
	if d.Rules.MinChangeValueSats < 0 {
		return fmt.Errorf("psbt_rules.min_change_value_sats cannot be negative")
	}
	return nil
}
