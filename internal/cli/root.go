package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"satsguard/internal/app"
	"satsguard/internal/config"
	"satsguard/internal/logging"
)

var (
	cfgFile   string
	logLevel  string
	appHandle *app.App
)

var rootCmd = &cobra.Command{
	Use:   "satsguard",
	Short: "Policy-gated Bitcoin treasury authorizer for unattended agents",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if appHandle != nil {
			return nil
		}

		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}

		if logLevel != "" {
			cfg.Logging.Level = logLevel
		}

		logger := logging.NewLogger(cfg.Logging)
		appHandle = app.NewApp(cfg, logger)
		return nil
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override log level defined in config")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(balanceCmd)
	rootCmd.AddCommand(proposalsCmd)
	rootCmd.AddCommand(executeCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(feesCmd)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(policyCmd)
	rootCmd.AddCommand(versionCmd)
}

func getApp() *app.App {
	if appHandle == nil {
		panic("application not initialized; PersistentPreRunE not executed")
	}
	return appHandle
}
