package app

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/shopspring/decimal"
)

// Fees prints a fee brief: the node's estimates next to the block index's,
// against the policy fee ceiling.
func (a *App) Fees(ctx context.Context) error {
	doc, err := a.loadPolicy()
	if err != nil {
		return err
	}

	bitcoind, esplora, _ := a.newWallets()

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TARGET\tNODE (sat/vB)\tINDEX (sat/vB)")

	indexEstimates, err := esplora.FeeEstimates(ctx)
	if err != nil {
		a.Logger.Warn().Err(err).Msg("block index fee estimates unavailable")
		indexEstimates = nil
	}

	for _, target := range []int{1, 3, 6, 144} {
		nodeCol := "-"
		if rate, err := bitcoind.EstimateFeeRate(ctx, target); err == nil {
			nodeCol = rate.StringFixed(2)
		}

		indexCol := "-"
		if rate, ok := indexEstimates[strconv.Itoa(target)]; ok {
			indexCol = rate.StringFixed(2)
		}

		fmt.Fprintf(w, "%d\t%s\t%s\n", target, nodeCol, indexCol)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if ceiling := doc.Rules.MaxFeeSatPerVB; ceiling.IsPositive() {
		fmt.Printf("\npolicy fee ceiling: %s sat/vB\n", ceiling.StringFixed(2))
		affordable := affordableTargets(indexEstimates, ceiling)
		switch {
		case len(affordable) > 0:
			labels := make([]string, len(affordable))
			for i, target := range affordable {
				labels[i] = strconv.Itoa(target)
			}
			fmt.Printf("targets within the ceiling: %s blocks\n", strings.Join(labels, ", "))
		case len(indexEstimates) > 0:
			fmt.Println("no confirmation target currently fits under the ceiling")
		}
	}
	return nil
}

// affordableTargets returns the confirmation targets whose estimated rate
// fits under the ceiling, ascending.
func affordableTargets(estimates map[string]decimal.Decimal, ceiling decimal.Decimal) []int {
	targets := make([]int, 0, len(estimates))
	for key, rate := range estimates {
		target, err := strconv.Atoi(key)
		if err != nil {
			continue
		}
		if !rate.GreaterThan(ceiling) {
			targets = append(targets, target)
		}
	}
	sort.Ints(targets)
	return targets
}
