package cli

import (
	"github.com/spf13/cobra"

	"satsguard/internal/app"
)

var reportOpts app.ReportOptions

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Render recent spending against the daily cap",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Report(cmd.Context(), reportOpts)
	},
}

func init() {
	reportCmd.Flags().IntVar(&reportOpts.Days, "days", 30, "Report window in days")
	reportCmd.Flags().StringVar(&reportOpts.PNGPath, "png", "", "Write a PNG chart to this path")
	reportCmd.Flags().StringVar(&reportOpts.CSVPath, "csv", "", "Write CSV data to this path")
}
