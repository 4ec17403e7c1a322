package cli

import (
	"github.com/spf13/cobra"

	"satsguard/internal/app"
)

var sendOpts app.SendOptions

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Authorize a spend and build the unsigned transaction artifact",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Send(cmd.Context(), sendOpts)
	},
}

func init() {
	sendCmd.Flags().StringVar(&sendOpts.SignalPath, "signal", "", "Path to a JSON spend signal")
	sendCmd.Flags().StringVar(&sendOpts.Category, "category", "", "Spend category")
	sendCmd.Flags().StringVar(&sendOpts.Destination, "to", "", "Destination address")
	sendCmd.Flags().Int64Var(&sendOpts.AmountSats, "amount", 0, "Amount in satoshis")
	sendCmd.Flags().StringVar(&sendOpts.FeeRate, "fee-rate", "", "Fee rate in sat/vB")
	sendCmd.Flags().StringVar(&sendOpts.Note, "note", "", "Free-form note carried on the artifact")
	sendCmd.Flags().BoolVar(&sendOpts.DryRun, "dry-run", false, "Report the policy decision without reserving budget")
}
