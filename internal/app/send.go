package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"satsguard/internal/policy"
	"satsguard/internal/service"
	"satsguard/internal/txbuilder"
)

// SendOptions configure a one-off spend authorization.
type SendOptions struct {
	SignalPath  string
	Category    string
	Destination string
	AmountSats  int64
	FeeRate     string
	Note        string
	DryRun      bool
}

// Send authorizes a spend and, when allowed, constructs the unsigned
// transaction artifact on stdout. With DryRun the policy decision is reported
// without reserving budget or touching the wallet.
func (a *App) Send(ctx context.Context, opts SendOptions) error {
	sig, err := a.resolveSignal(opts)
	if err != nil {
		return err
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if closeStore != nil {
		defer closeStore()
	}

	ledgerStore, _, auditStore := a.stores(store)
	engine, _, err := a.newEngine(ledgerStore, auditStore)
	if err != nil {
		return err
	}

	req := sig.Request(time.Now().UTC())

	var decision policy.Decision
	if opts.DryRun {
		decision, err = engine.Validate(ctx, req)
	} else {
		decision, err = engine.AuthorizeSpend(ctx, req)
	}
	if err != nil {
		return err
	}

	if !decision.Allowed {
		return fmt.Errorf("spend denied by policy %s: %s", decision.PolicyVersion, decision.Reason)
	}

	a.Logger.Info().
		Str("policy_version", decision.PolicyVersion).
		Str("destination", req.Destination).
		Int64("amount_sats", req.AmountSats).
		Bool("dry_run", opts.DryRun).
		Msg("spend allowed")

	if opts.DryRun {
		fmt.Println("allowed (dry run, no artifact built)")
		return nil
	}

	bitcoind, esplora, _ := a.newWallets()
	unspent, err := bitcoind.ListUnspent(ctx)
	if err != nil {
		return fmt.Errorf("list unspent outputs: %w", err)
	}

	builder := txbuilder.NewBuilder(engine.Policy().Rules, bitcoind, esplora, a.Logger)
	tx, err := builder.Build(ctx, txbuilder.BuildRequest{
		Destination:     req.Destination,
		AmountSats:      req.AmountSats,
		FeeRateSatPerVB: req.FeeRateSatPerVB,
		Note:            req.Note,
	}, unspent)
	if err != nil {
		return err
	}

	artifact, err := tx.Encode()
	if err != nil {
		return err
	}
	fmt.Println(string(artifact))
	return nil
}

// resolveSignal builds the spend signal from a file or from flags.
func (a *App) resolveSignal(opts SendOptions) (service.Signal, error) {
	if opts.SignalPath != "" {
		data, err := os.ReadFile(opts.SignalPath)
		if err != nil {
			return service.Signal{}, fmt.Errorf("read signal file: %w", err)
		}
		return service.ParseSignal(data)
	}

	if opts.Destination == "" || opts.AmountSats <= 0 {
		return service.Signal{}, errors.New("either --signal or --to and --amount are required")
	}

	rate := decimal.NewFromInt(1)
	if opts.FeeRate != "" {
		parsed, err := decimal.NewFromString(opts.FeeRate)
		if err != nil {
			return service.Signal{}, fmt.Errorf("parse fee rate: %w", err)
		}
		rate = parsed
	}

	category := opts.Category
	if category == "" {
		category = "operational"
	}

	sig := service.Signal{
		Category:        category,
		Destination:     opts.Destination,
		AmountSats:      opts.AmountSats,
		FeeRateSatPerVB: rate,
		Note:            opts.Note,
	}
	if err := sig.Validate(); err != nil {
		return service.Signal{}, err
	}
	return sig, nil
}
