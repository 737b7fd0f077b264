package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"vapi/internal/app"
	"vapi/internal/credential"
)

var (
	issueScope      string
	issuePermission int
	issueDTL        int
)

var issueKeyCmd = &cobra.Command{
	Use:   "issue-key",
	Short: "Sign an API key offline",
	RunE: func(cmd *cobra.Command, args []string) error {
		ttl, err := credential.LifetimeDays(issueDTL)
		if err != nil {
			return fmt.Errorf("--dtl: %w", err)
		}
		opts := app.IssueKeyOptions{
			Scope:      issueScope,
			Permission: issuePermission,
			TTL:        ttl,
		}
		_, err = getApp().IssueKey(opts)
		return err
	},
}

func init() {
	issueKeyCmd.Flags().StringVar(&issueScope, "scope", "*", "Scope granted (gold, exchange_rate, interest_rate or *)")
	issueKeyCmd.Flags().IntVar(&issuePermission, "permission", 0, "Permission level: 0 read, 1 read-write, 2 admin")
	issueKeyCmd.Flags().IntVar(&issueDTL, "dtl", 0, "Lifetime in days (defaults to auth.default_ttl_days)")
}
