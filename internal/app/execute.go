package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"satsguard/internal/funding"
)

// ExecuteOptions configure broadcasting a signed funding transaction.
type ExecuteOptions struct {
	ProposalID string
	RawHexPath string
	RawHex     string
}

// Execute broadcasts the externally signed transaction for an approved
// proposal and records the execution. The signed hex comes from the offline
// signing ceremony; this process never holds keys.
func (a *App) Execute(ctx context.Context, opts ExecuteOptions) error {
	rawHex := strings.TrimSpace(opts.RawHex)
	if rawHex == "" && opts.RawHexPath != "" {
		data, err := os.ReadFile(opts.RawHexPath)
		if err != nil {
			return fmt.Errorf("read signed transaction: %w", err)
		}
		rawHex = strings.TrimSpace(string(data))
	}
	if opts.ProposalID == "" || rawHex == "" {
		return errors.New("proposal id and signed transaction hex are required")
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if closeStore != nil {
		defer closeStore()
	}

	_, proposalStore, _ := a.stores(store)
	manager := a.newManager(proposalStore, nil)

	// Check the transition is possible before touching the network.
	p, err := manager.Get(ctx, opts.ProposalID)
	if err != nil {
		return err
	}
	if p.Status != funding.StatusApproved {
		return fmt.Errorf("proposal %s is %s, only approved proposals can be executed", p.ID, p.Status)
	}

	bitcoind, _, _ := a.newWallets()
	txid, err := bitcoind.BroadcastRawTransaction(ctx, rawHex)
	if err != nil {
		return fmt.Errorf("broadcast transaction: %w", err)
	}

	if _, err := manager.MarkExecuted(ctx, opts.ProposalID, txid); err != nil {
		// The broadcast already happened; surface the txid so the operator
		// can reconcile manually.
		return fmt.Errorf("transaction %s broadcast but proposal update failed: %w", txid, err)
	}

	fmt.Printf("broadcast %s for proposal %s\n", txid, opts.ProposalID)
	return nil
}
