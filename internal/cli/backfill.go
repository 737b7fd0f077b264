package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"vapi/internal/app"
)

var (
	backfillFeeds   []string
	backfillFrom    string
	backfillTo      string
	backfillDryRun  bool
	backfillWorkers int
)

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Import legacy price table history into the snapshot store",
	RunE: func(cmd *cobra.Command, args []string) error {
		if backfillFrom == "" {
			return fmt.Errorf("--from must be provided")
		}

		from, err := time.Parse(time.RFC3339, backfillFrom)
		if err != nil {
			return fmt.Errorf("invalid --from value: %w", err)
		}

		to := time.Now().UTC()
		if backfillTo != "" {
			if to, err = time.Parse(time.RFC3339, backfillTo); err != nil {
				return fmt.Errorf("invalid --to value: %w", err)
			}
		}

		if !from.Before(to) {
			return fmt.Errorf("--from must be before --to")
		}

		opts := app.BackfillOptions{
			Feeds:   backfillFeeds,
			From:    from,
			To:      to,
			DryRun:  backfillDryRun,
			Workers: backfillWorkers,
		}

		reports, err := getApp().Backfill(cmd.Context(), opts)
		for _, r := range reports {
			if r.Feed == "" {
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\tread=%d\timported=%d\tskipped=%d\n", r.Feed, r.Read, r.Imported, r.Skipped)
		}
		return err
	},
}

func init() {
	backfillCmd.Flags().StringSliceVar(&backfillFeeds, "feed", nil, "Feed keys to import (defaults to every legacy table)")
	backfillCmd.Flags().StringVar(&backfillFrom, "from", "", "Start timestamp (RFC3339, inclusive)")
	backfillCmd.Flags().StringVar(&backfillTo, "to", "", "End timestamp (RFC3339, exclusive, defaults to now)")
	backfillCmd.Flags().BoolVar(&backfillDryRun, "dry-run", false, "Run without writing to storage")
	backfillCmd.Flags().IntVar(&backfillWorkers, "workers", 2, "Number of feeds imported concurrently")
}
