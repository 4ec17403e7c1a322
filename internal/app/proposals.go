package app

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"satsguard/internal/funding"
)

// ProposalsOptions configure the proposals listing.
type ProposalsOptions struct {
	Limit int
}

// Proposals prints the proposal register and its state summary.
func (a *App) Proposals(ctx context.Context, opts ProposalsOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if closeStore != nil {
		defer closeStore()
	}

	_, proposalStore, _ := a.stores(store)
	manager := a.newManager(proposalStore, nil)

	proposals, err := manager.List(ctx)
	if err != nil {
		return err
	}
	stats, err := manager.Summarize(ctx)
	if err != nil {
		return err
	}

	if opts.Limit > 0 && len(proposals) > opts.Limit {
		proposals = proposals[:opts.Limit]
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tAMOUNT\tCREATED\tEXPIRES\tTXID")
	for _, p := range proposals {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\n",
			p.ID,
			p.Status,
			p.AmountSats,
			p.CreatedAt.Format(time.RFC3339),
			p.ExpiresAt.Format(time.RFC3339),
			p.TxID,
		)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Printf("\npending %d, approved %d, rejected %d, expired %d, executed %d (total %d)\n",
		stats.Pending, stats.Approved, stats.Rejected, stats.Expired, stats.Executed, stats.Total)
	return nil
}

// ShowProposal prints one proposal in full.
func (a *App) ShowProposal(ctx context.Context, id string) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if closeStore != nil {
		defer closeStore()
	}

	_, proposalStore, _ := a.stores(store)
	p, err := proposalStore.GetProposal(ctx, id)
	if err != nil {
		return err
	}

	printProposal(p)

	if p.TxID != "" {
		_, esplora, _ := a.newWallets()
		status, err := esplora.TransactionStatus(ctx, p.TxID)
		if err != nil {
			a.Logger.Warn().Err(err).Str("txid", p.TxID).Msg("transaction status unavailable")
		} else if status.Confirmed {
			fmt.Printf("  confirmed:     yes (block %d)\n", status.BlockHeight)
		} else {
			fmt.Println("  confirmed:     no (in mempool or unseen)")
		}
	}
	return nil
}

func printProposal(p funding.Proposal) {
	fmt.Printf("proposal %s\n", p.ID)
	fmt.Printf("  status:        %s\n", p.Status)
	fmt.Printf("  amount:        %d sats\n", p.AmountSats)
	fmt.Printf("  justification: %s\n", p.Justification)
	fmt.Printf("  intended use:  %s\n", p.IntendedUse)
	fmt.Printf("  expected roi:  %d sats over %d days\n", p.ExpectedROISats, p.TimeHorizonDays)
	fmt.Printf("  risk:          %s\n", p.RiskAssessment)
	fmt.Printf("  created:       %s\n", p.CreatedAt.Format(time.RFC3339))
	fmt.Printf("  expires:       %s\n", p.ExpiresAt.Format(time.RFC3339))
	if p.DecidedAt != nil {
		fmt.Printf("  decided:       %s by %s (%s)\n", p.DecidedAt.Format(time.RFC3339), p.DecidedBy, p.DecisionNote)
	}
	if p.TxID != "" {
		fmt.Printf("  txid:          %s\n", p.TxID)
	}
	if len(p.Artifact) > 0 {
		fmt.Printf("  artifact:\n%s\n", string(p.Artifact))
	}
}
