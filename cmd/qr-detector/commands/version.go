package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spherical/qr-detector/internal/api"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "qr-detector version %s\n", api.ServiceVersion)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
