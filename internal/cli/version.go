package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"vapi/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	// config is not needed to print the build identity
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s/%s %s\n", version.String(), runtime.GOOS, runtime.GOARCH, runtime.Version())
	},
}
