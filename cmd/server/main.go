/*
main.go - Application entry point

PURPOSE:
  Command-line front of the progress tracker. Loads game configs, opens one
  SQLite store per game and either serves the HTTP API or prints a range of
  a game's ledger.

COMMANDS:
  serve   Start the HTTP server and the rollover scheduler
  show    Print a game's ledger for a date range

STARTUP SEQUENCE (serve):
  1. Load configuration (.env, environment, flags)
  2. Load game configs from the game data directory
  3. Open one SQLite store per game
  4. Create tracker, API handler and router
  5. Start rollover scheduler and HTTP server with graceful shutdown

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the scheduler and flush pending writes
  4. Close database connections

EXAMPLES:
  # Serve on a different port
  ./tracker serve --port=3000

  # Print the last week of a game
  ./tracker show demo --from=2024-06-01 --to=2024-06-07

SEE ALSO:
  - config/config.go: Environment variables
  - api/server.go: Router configuration
  - tracker/report.go: Ledger text output
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/warp/progress-tracker/api"
	"github.com/warp/progress-tracker/coalescer"
	"github.com/warp/progress-tracker/config"
	"github.com/warp/progress-tracker/factory"
	"github.com/warp/progress-tracker/ledger"
	"github.com/warp/progress-tracker/store/sqlite"
	"github.com/warp/progress-tracker/tracker"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// rootOptions holds flags shared by every command.
type rootOptions struct {
	cfg    config.Config
	logger *logrus.Logger
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	defaults := config.Defaults()
	var dbDir, gameData, logLevel, logFormat string

	cmd := &cobra.Command{
		Use:           "tracker",
		Short:         "Daily task and currency tracker for games",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("db-dir") {
				cfg.DBDir = dbDir
			}
			if flags.Changed("gamedata") {
				cfg.GameDataDir = gameData
			}
			if flags.Changed("log-level") {
				cfg.LogLevel = logLevel
			}
			if flags.Changed("log-format") {
				cfg.LogFormat = logFormat
			}
			opts.cfg = cfg
			opts.logger = config.NewLogger(cfg.LogLevel, cfg.LogFormat)
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&dbDir, "db-dir", defaults.DBDir, "directory holding one SQLite file per game")
	cmd.PersistentFlags().StringVar(&gameData, "gamedata", defaults.GameDataDir, "directory of game config folders")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", defaults.LogLevel, "log level")
	cmd.PersistentFlags().StringVar(&logFormat, "log-format", defaults.LogFormat, "log format (json|text)")

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newShowCommand(opts))
	return cmd
}

// =============================================================================
// SERVE
// =============================================================================

func newServeCommand(opts *rootOptions) *cobra.Command {
	var port int
	var debounce, interval time.Duration

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("port") {
				opts.cfg.Port = port
			}
			if cmd.Flags().Changed("debounce") {
				opts.cfg.Debounce = debounce
			}
			if cmd.Flags().Changed("rollover-interval") {
				opts.cfg.RolloverInterval = interval
			}
			return runServe(opts)
		},
	}

	defaults := config.Defaults()
	cmd.Flags().IntVar(&port, "port", defaults.Port, "HTTP server port")
	cmd.Flags().DurationVar(&debounce, "debounce", defaults.Debounce, "write coalescing delay")
	cmd.Flags().DurationVar(&interval, "rollover-interval", defaults.RolloverInterval, "day rollover check interval")
	return cmd
}

func runServe(opts *rootOptions) error {
	cfg, logger := opts.cfg, opts.logger

	tr, closeStores, err := openTracker(cfg, logger)
	if err != nil {
		return err
	}
	defer closeStores()

	handler := api.NewHandler(tr, logger.WithField("component", "api"))
	router := api.NewRouter(handler)

	scheduler := api.NewRolloverScheduler(tr, logger)
	scheduler.CheckInterval = cfg.RolloverInterval
	if err := scheduler.Start(); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	errc := make(chan error, 1)
	go func() {
		logger.WithField("port", cfg.Port).Info("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errc:
		scheduler.Stop()
		return fmt.Errorf("server failed: %w", err)
	}

	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("server forced to shutdown")
	}
	scheduler.Stop()

	logger.Info("server stopped")
	return nil
}

// =============================================================================
// SHOW
// =============================================================================

func newShowCommand(opts *rootOptions) *cobra.Command {
	var region, from, to string

	cmd := &cobra.Command{
		Use:   "show <game>",
		Short: "Print a game's ledger for a date range",
		Long: `Print the currency totals and sources of a game, one block per day.

Without --from/--to the week ending on the region's current day is shown.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tr, closeStores, err := openTracker(opts.cfg, opts.logger)
			if err != nil {
				return err
			}
			defer closeStores()

			ctx := cmd.Context()
			defer tr.FlushAll(ctx)
			gameID := args[0]
			if region != "" {
				if _, err := tr.SelectRegion(ctx, gameID, region); err != nil {
					return err
				}
			}
			view, err := tr.UpdateGameView(ctx, gameID)
			if err != nil {
				return err
			}

			end := view.Today
			if to != "" {
				if end, err = ledger.ParseDateKey(to); err != nil {
					return fmt.Errorf("--to: %w", err)
				}
			}
			start := end.AddDays(-6)
			if from != "" {
				if start, err = ledger.ParseDateKey(from); err != nil {
					return fmt.Errorf("--from: %w", err)
				}
			}
			return tr.RenderLedger(ctx, cmd.OutOrStdout(), gameID, start, end)
		},
	}

	cmd.Flags().StringVar(&region, "region", "", "region id (defaults to the game's first region)")
	cmd.Flags().StringVar(&from, "from", "", "first day, YYYY-MM-DD")
	cmd.Flags().StringVar(&to, "to", "", "last day, YYYY-MM-DD")
	return cmd
}

// =============================================================================
// WIRING
// =============================================================================

// openTracker loads every game and opens its store. The returned func
// closes the stores.
func openTracker(cfg config.Config, logger *logrus.Logger) (*tracker.Tracker, func(), error) {
	games, err := factory.NewLoader(logger.WithField("component", "factory")).LoadDir(cfg.GameDataDir)
	if err != nil {
		return nil, nil, err
	}
	if err := os.MkdirAll(cfg.DBDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create db dir: %w", err)
	}

	tr := tracker.New(tracker.Options{
		Logger: logger.WithField("component", "tracker"),
		Writes: coalescer.New(cfg.Debounce, coalescer.WithLogger(logger.WithField("component", "coalescer"))),
	})

	var stores []*sqlite.Store
	closeAll := func() {
		for _, s := range stores {
			s.Close()
		}
	}
	for _, g := range games {
		store, err := sqlite.New(sqlite.PathFor(cfg.DBDir, g.ID),
			sqlite.WithLogger(logger.WithFields(logrus.Fields{"component": "sqlite", "game": g.ID})))
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("open store for %s: %w", g.ID, err)
		}
		stores = append(stores, store)
		if err := tr.AddGame(g, store); err != nil {
			closeAll()
			return nil, nil, err
		}
	}
	return tr, closeAll, nil
}
