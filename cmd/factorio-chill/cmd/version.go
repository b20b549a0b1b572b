package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := fmt.Fprintf(cmd.OutOrStdout(), "factorio-chill %s\ncommit: %s\nbuilt: %s\n",
			versionInfo.version, versionInfo.commit, versionInfo.date)
		return err
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
