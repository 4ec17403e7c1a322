package cli

import (
	"github.com/spf13/cobra"

	"satsguard/internal/app"
)

var proposalsOpts app.ProposalsOptions

var proposalsCmd = &cobra.Command{
	Use:   "proposals [id]",
	Short: "List funding proposals or show one in full",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 1 {
			return getApp().ShowProposal(cmd.Context(), args[0])
		}
		return getApp().Proposals(cmd.Context(), proposalsOpts)
	},
}

func init() {
	proposalsCmd.Flags().IntVar(&proposalsOpts.Limit, "limit", 0, "Maximum proposals to list (0 for all)")
}
