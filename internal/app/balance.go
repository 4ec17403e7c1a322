package app

import (
	"context"
	"fmt"
)

// Balance prints treasury and operating balances alongside chain state.
func (a *App) Balance(ctx context.Context) error {
	bitcoind, esplora, lightning := a.newWallets()

	onchain, err := bitcoind.Balance(ctx)
	if err != nil {
		return fmt.Errorf("read treasury balance: %w", err)
	}

	info, err := bitcoind.BlockchainInfo(ctx)
	if err != nil {
		return fmt.Errorf("read chain info: %w", err)
	}

	fmt.Printf("treasury (on-chain): %d sats\n", onchain)
	fmt.Printf("chain: %s, height %d\n", info.Chain, info.Blocks)

	operating, err := lightning.OperatingBalance(ctx)
	if err != nil {
		a.Logger.Warn().Err(err).Msg("operating balance unavailable")
	} else {
		fmt.Printf("operating (lightning): %d sats\n", operating)
		if a.Config.Funding.Enabled && operating < a.Config.Funding.ThresholdSats {
			fmt.Printf("operating balance is below the %d sat funding threshold\n", a.Config.Funding.ThresholdSats)
		}

		if payments, err := lightning.RecentPayments(ctx, 10); err == nil && len(payments) > 0 {
			var outflowMsat int64
			for _, p := range payments {
				if !p.Pending && p.AmountMsat < 0 {
					outflowMsat += -p.AmountMsat
				}
			}
			fmt.Printf("recent lightning outflow (last %d payments): %d sats\n", len(payments), outflowMsat/1_000)
		}
	}

	tip, err := esplora.TipHeight(ctx)
	if err != nil {
		a.Logger.Warn().Err(err).Msg("block index unavailable")
	} else {
		fmt.Printf("block index tip: %d\n", tip)
		if tip != info.Blocks {
			fmt.Printf("node and block index disagree by %d blocks\n", info.Blocks-tip)
		}
	}

	return nil
}
