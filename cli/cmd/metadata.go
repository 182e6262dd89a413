package cmd

import (
	"github.com/spf13/cobra"

	"github.com/markwell-app/markwell/cli/output"
	"github.com/markwell-app/markwell/internal/metadata"
)

var metadataCmd = &cobra.Command{
	Use:   "metadata",
	Short: "Work with page metadata",
}

var metadataFetchCmd = &cobra.Command{
	Use:   "fetch [url]",
	Short: "Fetch and print a page's metadata",
	Long: `Fetch a page with the configured scraper settings and print what would be
stored for it. Nothing is saved.

Examples:
  markwell metadata fetch https://go.dev/blog
  markwell metadata fetch https://example.com -o json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if _, err := metadata.ParseURL(args[0]); err != nil {
			return err
		}

		res := metadata.NewFetcher(cfg.Metadata).Fetch(cmd.Context(), args[0])

		f, err := getFormatter()
		if err != nil {
			return err
		}
		if f.Format != output.FormatTable {
			return f.Print(res)
		}
		return f.PrintFields(resultFields(res))
	},
}

func init() {
	metadataCmd.AddCommand(metadataFetchCmd)
}

func resultFields(res metadata.Result) []output.Field {
	fields := []output.Field{
		{Key: "status", Value: string(res.Status)},
		{Key: "title", Value: res.Metadata.Title},
		{Key: "description", Value: res.Metadata.Description},
		{Key: "image", Value: res.Metadata.Image},
	}
	if res.Err != nil {
		fields = append(fields, output.Field{Key: "error", Value: res.Err.Error()})
	}
	return fields
}
