package cmd

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/markwell-app/markwell/cli/output"
	"github.com/markwell-app/markwell/internal/config"
	"github.com/markwell-app/markwell/internal/database"
	"github.com/markwell-app/markwell/internal/ratelimit"
)

var ratelimitCmd = &cobra.Command{
	Use:     "ratelimit",
	Aliases: []string{"rl"},
	Short:   "Inspect and manage rate limit counters",
	Long: `Inspect and manage the counters kept by the configured rate limit backend.

Keys are "<rule>:ip:<address>" or "<rule>:user:<subject>", for example
"api:user:idp|42" or "debug:ip:203.0.113.7".`,
}

var (
	rlLimit  int64
	rlWindow time.Duration
)

var ratelimitCheckCmd = &cobra.Command{
	Use:   "check [key]",
	Short: "Count one request against a key",
	Long: `Run the limiter once for a key, as a request would, and report the decision.

Examples:
  markwell ratelimit check api:ip:203.0.113.7
  markwell ratelimit check share:user:idp|42 --limit 5 --window 1h`,
	Args: cobra.ExactArgs(1),
	RunE: runRatelimitCheck,
}

var ratelimitInspectCmd = &cobra.Command{
	Use:   "inspect [key]",
	Short: "Show a key's counter without counting",
	Long: `Show the current count and reset time for a key.

Examples:
  markwell ratelimit inspect api:user:idp|42 -o json`,
	Args: cobra.ExactArgs(1),
	RunE: runRatelimitInspect,
}

var ratelimitResetCmd = &cobra.Command{
	Use:   "reset [key]",
	Short: "Clear a key's counter",
	Long: `Remove the record for a key so its next request starts a new window.

Examples:
  markwell ratelimit reset api:user:idp|42`,
	Args: cobra.ExactArgs(1),
	RunE: runRatelimitReset,
}

func init() {
	ratelimitCheckCmd.Flags().Int64Var(&rlLimit, "limit", 0, "requests allowed per window (default ratelimit.default_limit)")
	ratelimitCheckCmd.Flags().DurationVar(&rlWindow, "window", 0, "window length (default ratelimit.default_window)")

	ratelimitCmd.AddCommand(ratelimitCheckCmd)
	ratelimitCmd.AddCommand(ratelimitInspectCmd)
	ratelimitCmd.AddCommand(ratelimitResetCmd)
}

// openStore opens the configured backend. Only the postgres backend needs a
// database connection.
func openStore(cfg *config.Config) (ratelimit.Store, func(), error) {
	if cfg.RateLimit.Backend != "postgres" && cfg.RateLimit.Backend != "" {
		store, err := ratelimit.NewStore(&cfg.RateLimit, nil)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	}

	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	store, err := ratelimit.NewStore(&cfg.RateLimit, db)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return store, func() {
		_ = store.Close()
		db.Close()
	}, nil
}

func runRatelimitCheck(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	limit, window := rlLimit, rlWindow
	if limit <= 0 {
		limit = cfg.RateLimit.DefaultLimit
	}
	if window <= 0 {
		window = cfg.RateLimit.DefaultWindow
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()

	res, err := ratelimit.Check(ctx, store, args[0], limit, window)
	if err != nil {
		return err
	}

	f, err := getFormatter()
	if err != nil {
		return err
	}
	return f.PrintFields(checkFields(args[0], res, time.Now()))
}

func checkFields(key string, res *ratelimit.Result, now time.Time) []output.Field {
	return []output.Field{
		{Key: "key", Value: key},
		{Key: "allowed", Value: strconv.FormatBool(res.Allowed)},
		{Key: "limit", Value: strconv.FormatInt(res.Limit, 10)},
		{Key: "remaining", Value: strconv.FormatInt(res.Remaining, 10)},
		{Key: "reset_at", Value: res.ResetAt.UTC().Format(time.RFC3339)},
		{Key: "retry_after", Value: res.RetryAfter(now).Round(time.Second).String()},
	}
}

func runRatelimitInspect(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()

	count, resetAt, err := store.Get(ctx, args[0])
	if err != nil {
		return fmt.Errorf("%w: %w", ratelimit.ErrStoreUnavailable, err)
	}

	f, err := getFormatter()
	if err != nil {
		return err
	}
	return f.PrintFields(inspectFields(args[0], count, resetAt))
}

func inspectFields(key string, count int64, resetAt time.Time) []output.Field {
	reset := "-"
	if !resetAt.IsZero() {
		reset = resetAt.UTC().Format(time.RFC3339)
	}
	return []output.Field{
		{Key: "key", Value: key},
		{Key: "count", Value: strconv.FormatInt(count, 10)},
		{Key: "reset_at", Value: reset},
	}
}

func runRatelimitReset(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()

	if err := store.Reset(ctx, args[0]); err != nil {
		return fmt.Errorf("%w: %w", ratelimit.ErrStoreUnavailable, err)
	}

	f, err := getFormatter()
	if err != nil {
		return err
	}
	f.PrintSuccess(fmt.Sprintf("Reset %s", args[0]))
	return nil
}
