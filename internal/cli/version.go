package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print schedd version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("schedd %s (commit: %s, built: %s)\n", buildVersion, buildCommit, buildDate)
	},
}
