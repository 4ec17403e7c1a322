package cli

import (
	"github.com/spf13/cobra"

	"satsguard/internal/app"
)

var executeOpts app.ExecuteOptions

var executeCmd = &cobra.Command{
	Use:   "execute <proposal-id>",
	Short: "Broadcast a signed funding transaction and record the execution",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		executeOpts.ProposalID = args[0]
		return getApp().Execute(cmd.Context(), executeOpts)
	},
}

func init() {
	executeCmd.Flags().StringVar(&executeOpts.RawHex, "raw", "", "Signed transaction hex")
	executeCmd.Flags().StringVar(&executeOpts.RawHexPath, "raw-file", "", "Path to a file containing the signed transaction hex")
}
