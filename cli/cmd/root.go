// Package cmd provides the Cobra commands for the markwell binary.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/markwell-app/markwell/cli/output"
	"github.com/markwell-app/markwell/internal/config"
	"github.com/markwell-app/markwell/internal/logging"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"

	// Global flags
	cfgFile   string
	outputFmt string
	noHeaders bool
	debug     bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "markwell",
	Short: "Markwell - bookmarks and action items",
	Long: `Markwell saves links with their page metadata, organizes them with tags
and tracks action items.

Get started:
  markwell migrate       Create or upgrade the database schema
  markwell serve         Run the HTTP server and background jobs
  markwell --help        Show available commands`,
	SilenceUsage: true,
}

// Execute runs the CLI
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default is ./markwell.yaml, ./config/markwell.yaml or /etc/markwell/markwell.yaml)")
	rootCmd.PersistentFlags().StringVarP(&outputFmt, "output", "o", "table",
		"output format: table, json, yaml")
	rootCmd.PersistentFlags().BoolVar(&noHeaders, "no-headers", false,
		"hide table headers")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false,
		"enable debug logging")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(ratelimitCmd)
	rootCmd.AddCommand(metadataCmd)
	rootCmd.AddCommand(mailCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(jobsCmd)
}

// loadConfig reads configuration and sets up logging from it. The --debug
// flag overrides the configured value.
func loadConfig() (*config.Config, error) {
	// Quiet until the configured level is known
	logging.Setup(debug, "")

	cfg, err := config.LoadFile(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if debug {
		cfg.Debug = true
	}

	logging.Setup(cfg.Debug, cfg.LogFormat)
	return cfg, nil
}

// getFormatter returns the output formatter selected by --output
func getFormatter() (*output.Formatter, error) {
	format, err := output.ParseFormat(outputFmt)
	if err != nil {
		return nil, err
	}
	return output.NewFormatter(format, noHeaders), nil
}
