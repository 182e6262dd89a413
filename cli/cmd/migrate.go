package cmd

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/markwell-app/markwell/internal/database"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	Long: `Apply the embedded schema migrations to the configured database.

A database left dirty by an interrupted run is forced back one version and
migrated again.

Examples:
  markwell migrate
  MARKWELL_DATABASE_URL=postgres://localhost/markwell markwell migrate`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		if err := database.RunMigrations(cfg.Database.ConnectionString()); err != nil {
			return err
		}
		log.Info().Msg("Database is up to date")
		return nil
	},
}
