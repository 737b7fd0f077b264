package cli

import (
	"github.com/spf13/cobra"

	"vapi/internal/app"
)

var (
	notifyFeed   string
	notifyGroup  string
	notifyDryRun bool
)

var notifyTestCmd = &cobra.Command{
	Use:   "notify-test",
	Short: "Push the latest snapshot of a feed through the alert channels",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := getApp().NotifyTest(cmd.Context(), app.NotifyOptions{
			Feed:   notifyFeed,
			Group:  notifyGroup,
			DryRun: notifyDryRun,
		})
		return err
	},
}

func init() {
	notifyTestCmd.Flags().StringVar(&notifyFeed, "feed", "", "Feed key, e.g. gold:sjc")
	notifyTestCmd.Flags().StringVar(&notifyGroup, "group", "", "Only this currency")
	notifyTestCmd.Flags().BoolVar(&notifyDryRun, "dry-run", false, "Print the rendered notifications instead of sending")
	_ = notifyTestCmd.MarkFlagRequired("feed")
}
