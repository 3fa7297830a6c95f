package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/XavierBriggs/fortuna/services/sheet-engine/internal/config"
	"github.com/XavierBriggs/fortuna/services/sheet-engine/internal/logger"
	"github.com/XavierBriggs/fortuna/services/sheet-engine/internal/pricing"
	"github.com/XavierBriggs/fortuna/services/sheet-engine/internal/source"
)

func main() {
	os.Exit(run(newRootCmd()))
}

// run executes the command and returns the process exit code
func run(cmd *cobra.Command) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.ExecuteContext(ctx); err != nil {
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	cfg := config.LoadConfig()
	opts := auditOptions{
		Sport: cfg.SportKey,
		Limit: 500,
	}
	var (
		dsn      string
		redisURL string
		timeout  time.Duration
		logLevel string
	)

	cmd := &cobra.Command{
		Use:   "dupe-audit",
		Short: "Find storage rows that describe the same betting line",
		Long: `Group stored sheet rows by logical identity (event, entity, market,
line) and report every identity held under more than one storage id.

Duplicates are a normal finding and do not fail the command; only a
database or Redis error does.

Examples:
  dupe-audit --sport basketball_nba
  dupe-audit --market player_points --cross-check --limit 200
  dupe-audit --json > audit.json`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logger.New(logger.Options{Service: "dupe-audit", Level: logLevel, Format: "console", Out: cmd.ErrOrStderr()})

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			db, err := source.Connect(ctx, dsn)
			if err != nil {
				return fmt.Errorf("connect to sheet store: %w", err)
			}
			defer db.Close()

			deps := auditDeps{Identities: source.NewPostgresSource(db, timeout, log)}

			if opts.CrossCheck {
				client := redis.NewClient(&redis.Options{
					Addr:     redisURL,
					Password: cfg.Redis.Password,
					DB:       cfg.Redis.DB,
				})
				defer client.Close()
				deps.Ranked = pricing.NewRedisRankIndex(client)
			}

			log.Debug().Str("sport", opts.Sport).Str("market", opts.Market).Bool("cross_check", opts.CrossCheck).Msg("running audit")
			return runAudit(ctx, opts, deps, cmd.OutOrStdout())
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.Sport, "sport", opts.Sport, "sport key to audit")
	flags.StringVar(&opts.Market, "market", "", "restrict the audit to one market")
	flags.BoolVar(&opts.CrossCheck, "cross-check", false, "compare duplicate groups with the published ranking")
	flags.Int64Var(&opts.Limit, "limit", opts.Limit, "ranked entries to read for --cross-check (0 reads all)")
	flags.BoolVar(&opts.JSON, "json", false, "print the report as JSON")
	flags.StringVar(&dsn, "dsn", cfg.Postgres.DSN, "sheet store DSN (default from SHEETS_DSN)")
	flags.StringVar(&redisURL, "redis", cfg.Redis.URL, "Redis address (default from REDIS_URL)")
	flags.DurationVar(&timeout, "timeout", 30*time.Second, "overall audit timeout")
	flags.StringVar(&logLevel, "log-level", "warn", "log level (debug|info|warn|error)")

	return cmd
}
