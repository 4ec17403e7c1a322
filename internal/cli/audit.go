package cli

import (
	"github.com/spf13/cobra"

	"satsguard/internal/app"
)

var auditOpts app.AuditOptions

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "List recent audit trail events",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Audit(cmd.Context(), auditOpts)
	},
}

func init() {
	auditCmd.Flags().StringVar(&auditOpts.Kind, "kind", "", "Filter by event kind (decision, policy_violation, auth_failure)")
	auditCmd.Flags().IntVar(&auditOpts.Limit, "limit", 50, "Maximum events to list")
}
