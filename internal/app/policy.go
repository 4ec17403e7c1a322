package app

import (
	"fmt"

	"satsguard/internal/policy"
)

// PolicyCheck loads and validates a policy document, printing its summary.
// Operators run this before swapping a new document in.
func (a *App) PolicyCheck(path string) error {
	if path == "" {
		path = a.Config.Policy.Path
	}

	doc, err := policy.LoadDocument(path)
	if err != nil {
		return err
	}

	fmt.Printf("policy %s is valid\n", doc.Version)
	fmt.Printf("  daily cap:      %d sats\n", doc.Budgets.DailySatsCap)
	fmt.Printf("  weekly cap:     %d sats\n", doc.Budgets.WeeklySatsCap)
	fmt.Printf("  single-tx cap:  %d sats\n", doc.Budgets.MaxSingleTxSats)
	fmt.Printf("  counterparties: %d capped\n", len(doc.Budgets.PerCounterpartyCaps))
	fmt.Printf("  categories:     %d allowed\n", len(doc.Actions.AllowedCategories))
	fmt.Printf("  allowlist:      %d entries\n", len(doc.Actions.Allowlist))
	fmt.Printf("  denylist:       %d entries\n", len(doc.Actions.Denylist))
	if doc.Rules.MaxFeeSatPerVB.IsPositive() {
		fmt.Printf("  fee ceiling:    %s sat/vB\n", doc.Rules.MaxFeeSatPerVB.StringFixed(2))
	}
	return nil
}
