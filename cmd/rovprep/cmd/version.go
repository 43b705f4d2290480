package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bluerov-ops/rovprep/version"
)

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the rovprep version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", version.Version.Name, version.Version.String())
		},
	}
}
