package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"vapi/internal/app"
)

var (
	showFeed  string
	showLimit int
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display recent snapshots of a feed",
	RunE: func(cmd *cobra.Command, args []string) error {
		if showLimit <= 0 {
			return fmt.Errorf("--limit must be greater than zero")
		}

		opts := app.ShowOptions{
			Feed:  showFeed,
			Limit: showLimit,
		}

		return getApp().Show(cmd.Context(), opts)
	},
}

func init() {
	showCmd.Flags().StringVar(&showFeed, "feed", "", "Feed key, e.g. gold:sjc or exchange_rate:vcb")
	showCmd.Flags().IntVar(&showLimit, "limit", 20, "Number of snapshots to display")
	_ = showCmd.MarkFlagRequired("feed")
}
