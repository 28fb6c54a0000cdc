package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/webrunhq/webrun/internal/ai"
	"github.com/webrunhq/webrun/internal/browser"
	"github.com/webrunhq/webrun/internal/config"
	"github.com/webrunhq/webrun/internal/engine"
	"github.com/webrunhq/webrun/internal/scheduler"
	"github.com/webrunhq/webrun/internal/server"
	"github.com/webrunhq/webrun/internal/signal"
	"github.com/webrunhq/webrun/internal/steps"
	"github.com/webrunhq/webrun/internal/store"
	"github.com/webrunhq/webrun/internal/tui"
)

// serveFlags holds command-specific flags for the serve command.
type serveFlags struct {
	addr        string
	dataDir     string
	noBrowser   bool
	noAI        bool
	noScheduler bool
}

// AddServeCommand adds the serve command to the root command.
func AddServeCommand(root *cobra.Command) {
	root.AddCommand(newServeCmd())
}

// newServeCmd creates the serve command.
func newServeCmd() *cobra.Command {
	flags := &serveFlags{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the webrun daemon",
		Long: `Start the webrun daemon: the HTTP API, the workflow engine, the
headless browser pool, the cron scheduler, and the AI client.

The daemon owns all state under the data directory. CLI commands such as
'webrun runs list' talk to it over HTTP, so it must be running before any
other command is useful.

Configuration is read from webrun.yaml (working directory or ~/.webrun),
WEBRUN_* environment variables, and the flags below, in ascending order of
precedence.

Examples:
  # Start with defaults (listens on :8080)
  webrun serve

  # Custom address and data directory
  webrun serve --addr :9090 --data-dir /var/lib/webrun

  # Dry-run friendly daemon: no browser, no AI credentials required
  webrun serve --no-browser --no-ai

Exit codes:
  0    - Clean shutdown after SIGINT or SIGTERM
  1    - Startup failure or listener error
  130  - Second interrupt while draining (forced exit)`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), cmd, os.Stdout, flags)
		},
	}

	cmd.Flags().StringVar(&flags.addr, "addr", "", "listen address (default \":8080\")")
	cmd.Flags().StringVar(&flags.dataDir, "data-dir", "", "data directory (default \"~/.webrun\")")
	cmd.Flags().BoolVar(&flags.noBrowser, "no-browser", false, "disable the browser; runs execute in simulation mode")
	cmd.Flags().BoolVar(&flags.noAI, "no-ai", false, "disable AI healing, summaries, and extraction")
	cmd.Flags().BoolVar(&flags.noScheduler, "no-scheduler", false, "disable cron scheduling")

	return cmd
}

// runServe wires the daemon together and blocks until an interrupt arrives,
// then shuts the pieces down in dependency order.
func runServe(ctx context.Context, cmd *cobra.Command, w io.Writer, flags *serveFlags) error {
	logger := GetLogger()
	outputFormat := cmd.Flag("output").Value.String()
	out := tui.NewOutput(w, outputFormat)

	cfg, err := config.LoadWithOverrides(ctx, &config.Config{
		Server: config.ServerConfig{Addr: flags.addr},
		Data:   config.DataConfig{Dir: flags.dataDir},
	})
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Boolean overrides bypass LoadWithOverrides: false is the zero value,
	// so the merge cannot distinguish "unset" from "disabled".
	if flags.noBrowser {
		cfg.Browser.Enabled = false
	}
	if flags.noAI {
		cfg.AI.Enabled = false
	}
	if flags.noScheduler {
		cfg.Scheduler.Enabled = false
	}

	handler := signal.NewHandler(ctx)
	defer handler.Stop()
	ctx = handler.Context()

	dataDir, err := config.DataDir(cfg)
	if err != nil {
		return fmt.Errorf("failed to resolve data directory: %w", err)
	}
	st, err := store.NewFileStore(dataDir)
	if err != nil {
		return fmt.Errorf("failed to open data directory: %w", err)
	}

	aiClient, err := ai.New(ctx, &cfg.AI, logger)
	if err != nil {
		// The daemon is useful without Bedrock; healing and summaries
		// degrade to disabled.
		logger.Warn().Err(err).Msg("ai client unavailable, continuing without healing")
		aiClient = nil
	}

	var mgr *browser.Manager
	if cfg.Browser.Enabled {
		mgr = browser.NewManager(&cfg.Browser, aiClient, logger)
	} else {
		logger.Info().Msg("browser disabled, runs will execute in simulation mode")
	}

	engOpts := []engine.Option{engine.WithAI(aiClient)}
	if mgr != nil {
		engOpts = append(engOpts, engine.WithSessions(&engine.BrowserSource{Manager: mgr}))
	}
	eng := engine.New(st, steps.NewDefaultRegistry(), cfg.Engine, logger, engOpts...)

	srvOpts := []server.Option{server.WithAI(aiClient)}
	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		sched = scheduler.New(st, eng, logger)
		loaded, loadErr := sched.LoadAll(ctx)
		if loadErr != nil {
			logger.Warn().Err(loadErr).Msg("failed to load scheduled workflows")
		} else if loaded > 0 {
			logger.Info().Int("workflows", loaded).Msg("scheduled workflows loaded")
		}
		sched.Start()
		srvOpts = append(srvOpts, server.WithScheduler(sched))
	}

	srv := server.New(st, eng, cfg.Server, logger, srvOpts...)

	out.Success(fmt.Sprintf("webrun listening on %s (data: %s)", cfg.Server.Addr, dataDir))

	// Two long-lived tasks: the listener and the shutdown watcher. A signal
	// cancels the group context; a listener failure does the same, so the
	// watcher tears components down in both cases.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if serveErr := srv.Start(); serveErr != nil {
			return fmt.Errorf("server error: %w", serveErr)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		select {
		case <-handler.Interrupted():
			out.Warning("shutting down")
		default:
			// Listener failure, not a signal; skip the banner.
		}
		shutdownComponents(cfg, sched, eng, mgr, logger)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
			logger.Error().Err(shutdownErr).Msg("http shutdown incomplete")
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	out.Success("shutdown complete")
	return nil
}

// shutdownComponents stops everything behind the HTTP listener: scheduler
// first so no new runs dispatch, then in-flight runs, then the browser.
func shutdownComponents(cfg *config.Config, sched *scheduler.Scheduler, eng *engine.Engine, mgr *browser.Manager, logger zerolog.Logger) {
	if sched != nil {
		drainCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		select {
		case <-sched.Stop().Done():
		case <-drainCtx.Done():
			logger.Warn().Msg("scheduler jobs still running at shutdown deadline")
		}
		cancel()
	}

	eng.Close()

	if mgr != nil {
		if err := mgr.Close(); err != nil {
			logger.Warn().Err(err).Msg("browser close failed")
		}
	}
}
