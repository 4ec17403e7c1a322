package cli

import (
	"github.com/spf13/cobra"
)

var feesCmd = &cobra.Command{
	Use:   "fees",
	Short: "Show fee estimates against the policy ceiling",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Fees(cmd.Context())
	},
}
