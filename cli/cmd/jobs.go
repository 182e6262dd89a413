package cmd

import (
	"context"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/markwell-app/markwell/cli/output"
	"github.com/markwell-app/markwell/internal/jobs"
)

var jobsCmd = &cobra.Command{
	Use:     "jobs",
	Aliases: []string{"job"},
	Short:   "Inspect and run background jobs",
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the registered jobs",
	Long: `List the jobs serve would schedule with the current configuration.

Examples:
  markwell jobs list`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		a, err := buildApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.close(cmd.Context())

		infos := a.scheduler.GetScheduledJobs()

		f, err := getFormatter()
		if err != nil {
			return err
		}
		return f.PrintTable(jobsTable(infos))
	},
}

var jobsRunCmd = &cobra.Command{
	Use:   "run [name]",
	Short: "Run a job once, now",
	Long: `Run a registered job once in the foreground.

Examples:
  markwell jobs run metadata_backfill
  markwell jobs run task_digest`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		a, err := buildApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.close(ctx)

		ctx, cancel := context.WithTimeout(ctx, 10*time.Minute)
		defer cancel()

		if err := a.scheduler.RunNow(ctx, args[0]); err != nil {
			return err
		}
		log.Info().Str("job", args[0]).Msg("Job finished")
		return nil
	},
}

func init() {
	jobsCmd.AddCommand(jobsListCmd)
	jobsCmd.AddCommand(jobsRunCmd)
}

func jobsTable(infos []jobs.ScheduledJobInfo) output.Table {
	t := output.Table{Headers: []string{"NAME", "SCHEDULE", "NEXT RUN", "RUNNING"}}
	for _, j := range infos {
		next := "-"
		if !j.NextRun.IsZero() {
			next = j.NextRun.Local().Format(time.RFC3339)
		}
		t.Rows = append(t.Rows, []string{j.Name, j.Schedule, next, strconv.FormatBool(j.Running)})
	}
	return t
}
