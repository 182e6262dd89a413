package cmd

import (
	"github.com/spf13/cobra"

	"github.com/markwell-app/markwell/cli/output"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Long:  `Display the version, commit hash, and build date of markwell.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := getFormatter()
		if err != nil {
			return err
		}
		f.Writer = cmd.OutOrStdout()
		return f.PrintFields([]output.Field{
			{Key: "version", Value: Version},
			{Key: "commit", Value: Commit},
			{Key: "build_date", Value: BuildDate},
		})
	},
}
