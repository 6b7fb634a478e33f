// pagepulse — Page performance telemetry & optimization advisor.
// Author: vesaa | License: MIT | https://github.com/vesaa/pagepulse
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/vesaa/pagepulse/internal/bundle"
	"github.com/vesaa/pagepulse/internal/cachestore"
	"github.com/vesaa/pagepulse/internal/config"
	"github.com/vesaa/pagepulse/internal/dispatch"
	"github.com/vesaa/pagepulse/internal/engine"
	"github.com/vesaa/pagepulse/internal/host"
	"github.com/vesaa/pagepulse/internal/server"
	"golang.org/x/sync/errgroup"
)

const asciiLogo = `
 ██████╗  █████╗  ██████╗ ███████╗██████╗ ██╗   ██╗██╗     ███████╗███████╗
 ██╔══██╗██╔══██╗██╔════╝ ██╔════╝██╔══██╗██║   ██║██║     ██╔════╝██╔════╝
 ██████╔╝███████║██║  ███╗█████╗  ██████╔╝██║   ██║██║     ███████╗█████╗
 ██╔═══╝ ██╔══██║██║   ██║██╔══╝  ██╔═══╝ ██║   ██║██║     ╚════██║██╔══╝
 ██║     ██║  ██║╚██████╔╝███████╗██║     ╚██████╔╝███████╗███████║███████╗
 ╚═╝     ╚═╝  ╚═╝ ╚═════╝ ╚══════╝╚═╝      ╚═════╝ ╚══════╝╚══════╝╚══════╝
`

const version = "v0.1.0"

func printBanner(mode string) {
	fmt.Print(asciiLogo + "\n")
	fmt.Printf("  ► pagepulse %s  |  Author: vesaa  |  Mode: %s\n\n", version, mode)
}

func newLogger(cfg *config.Config) *slog.Logger {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)
	return logger
}

// serveUntilDone runs srv until ctx is cancelled, then shuts it down.
func serveUntilDone(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func main() {
	root := &cobra.Command{
		Use:   "pagepulse",
		Short: "pagepulse — page performance telemetry & optimization advisor",
		Long: `pagepulse observes page-load and rendering timings, keeps bounded metric
history, raises threshold alerts, and posts a graded report with prioritized
optimization recommendations to a backend every reporting interval.`,
		SilenceUsage: true,
	}

	// ── agent subcommand ──────────────────────────────────────────────────────
	agentCmd := &cobra.Command{
		Use:   "agent",
		Short: "Observe a page (trace replay or live feed) and report to the backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			printBanner("AGENT")

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			// CLI flags override config values.
			if endpoint, _ := cmd.Flags().GetString("endpoint"); endpoint != "" {
				cfg.Endpoint = endpoint
			}
			if token, _ := cmd.Flags().GetString("token"); token != "" {
				cfg.Token = token
			}
			if trace, _ := cmd.Flags().GetString("trace"); trace != "" {
				cfg.Trace = trace
			}
			if follow, _ := cmd.Flags().GetBool("follow"); follow {
				cfg.Follow = true
			}
			if feed, _ := cmd.Flags().GetString("feed"); feed != "" {
				cfg.FeedURL = feed
			}
			if interval, _ := cmd.Flags().GetInt("interval"); interval > 0 {
				cfg.ReportIntervalSeconds = interval
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if cfg.Trace == "" && cfg.FeedURL == "" {
				return errors.New("nothing to observe: set --trace or --feed")
			}
			logger := newLogger(cfg)

			fmt.Printf("  ✓ Backend:         %s\n", cfg.Endpoint)
			if cfg.Trace != "" {
				fmt.Printf("  ✓ Trace:           %s (follow=%v)\n", cfg.Trace, cfg.Follow)
			}
			if cfg.FeedURL != "" {
				fmt.Printf("  ✓ Live feed:       %s\n", cfg.FeedURL)
			}
			fmt.Printf("  ✓ Report interval: %ds\n\n", cfg.ReportIntervalSeconds)

			return runAgent(cmd.Context(), cfg, logger)
		},
	}
	agentCmd.Flags().String("endpoint", "", "Backend base URL, e.g. http://127.0.0.1:8000 (overrides config)")
	agentCmd.Flags().String("token", "", "Bearer token sent to the backend (overrides config)")
	agentCmd.Flags().String("trace", "", "JSONL trace of host events to replay")
	agentCmd.Flags().Bool("follow", false, "Keep tailing the trace for new events")
	agentCmd.Flags().String("feed", "", "Websocket URL streaming host events")
	agentCmd.Flags().Int("interval", 0, "Report interval in seconds (overrides config)")

	// ── sink subcommand ───────────────────────────────────────────────────────
	sinkCmd := &cobra.Command{
		Use:   "sink",
		Short: "Run the reference backend that stores alerts and reports",
		RunE: func(cmd *cobra.Command, args []string) error {
			printBanner("SINK")

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			if port, _ := cmd.Flags().GetInt("port"); port > 0 {
				cfg.SinkPort = port
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			logger := newLogger(cfg)

			store, err := server.OpenStore(cfg.DBDriver, cfg.DBPath, logger)
			if err != nil {
				return fmt.Errorf("initializing database: %w", err)
			}
			defer store.Close()

			gin.SetMode(gin.ReleaseMode)
			srv := server.New(store, cfg.Token, logger)
			addr := cfg.SinkAddr()

			fmt.Printf("  ✓ Ingest  → http://%s%s, %s\n", addr, dispatch.AlertPath, dispatch.ReportPath)
			fmt.Printf("  ✓ Metrics → http://%s/metrics\n", addr)
			if cfg.Token != "" {
				fmt.Printf("  ✓ Ingest token required\n")
			}
			fmt.Println()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			err = serveUntilDone(ctx, &http.Server{Addr: addr, Handler: srv.Handler()})
			if ctx.Err() != nil {
				fmt.Println("\n  → Shutting down gracefully…")
			}
			return err
		},
	}
	sinkCmd.Flags().Int("port", 0, "Listen port (overrides config)")

	// ── bundle subcommand ─────────────────────────────────────────────────────
	bundleCmd := &cobra.Command{
		Use:   "bundle <build-dir>",
		Short: "Analyze a build-output directory for bundle size and code splitting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			dir, err := host.OpenBuildDir(args[0])
			if err != nil {
				return err
			}
			a := bundle.Analyze(dir, bundle.Options{ScriptPath: cfg.ScriptPath, Thresholds: cfg.Thresholds.Table()})
			format, _ := cmd.Flags().GetString("output")
			return writeOutput(cmd.OutOrStdout(), format, a)
		},
	}
	bundleCmd.Flags().StringP("output", "o", "json", "Output format: json or yaml")

	// ── caches subcommand ─────────────────────────────────────────────────────
	cachesCmd := &cobra.Command{
		Use:   "caches",
		Short: "List named caches and their stored requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			if d, _ := cmd.Flags().GetString("dir"); d != "" {
				cfg.CacheDir = d
			}

			var storage host.CacheStorage
			if cfg.CacheDir != "" {
				st, err := cachestore.Open(cachestore.Config{Dir: cfg.CacheDir})
				if err != nil {
					return err
				}
				defer st.Close()
				storage = st
			}
			infos, err := cachestore.Inspect(cmd.Context(), storage)
			if err != nil {
				return err
			}
			format, _ := cmd.Flags().GetString("output")
			return writeOutput(cmd.OutOrStdout(), format, infos)
		},
	}
	cachesCmd.Flags().String("dir", "", "Cache directory (overrides cache_dir)")
	cachesCmd.Flags().StringP("output", "o", "json", "Output format: json or yaml")

	// ── version subcommand ────────────────────────────────────────────────────
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print pagepulse version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("pagepulse %s  |  Author: vesaa\n", version)
		},
	}

	root.AddCommand(agentCmd, sinkCmd, bundleCmd, cachesCmd, versionCmd)

	if err := root.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

// runAgent wires the page host, dispatcher and engine, then runs every
// configured event source until SIGINT/SIGTERM. A plain trace replay (no
// follow, no feed) sends one final report after the trace ends and exits.
func runAgent(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	env := host.DetectEnvironment("pagepulse/"+version, "")
	pageOpts := []host.PageOption{host.WithEnvironment(env)}
	if cfg.CacheDir != "" {
		caches, err := cachestore.Open(cachestore.Config{Dir: cfg.CacheDir, Logger: logger})
		if err != nil {
			return err
		}
		defer caches.Close()
		pageOpts = append(pageOpts, host.WithCaches(caches))
	}
	page := host.NewPage(pageOpts...)

	client := dispatch.New(dispatch.Options{
		Endpoint:       cfg.Endpoint,
		Token:          cfg.Token,
		CoalesceWindow: cfg.CoalesceWindow(),
		Logger:         logger,
	})
	defer client.Wait()

	eng := engine.New(engine.Options{
		Thresholds:     cfg.Thresholds.Table(),
		ScriptPath:     cfg.ScriptPath,
		StylePath:      cfg.StylePath,
		SettleDelay:    cfg.SettleDelay(),
		ReportInterval: cfg.ReportInterval(),
	}, page, client, logger)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	once := cfg.Trace != "" && !cfg.Follow && cfg.FeedURL == ""
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)
	eng.Start(gctx)

	if cfg.MetricsAddr != "" {
		if err := prometheus.Register(eng.Collector()); err != nil {
			return fmt.Errorf("registering collector: %w", err)
		}
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		g.Go(func() error {
			return serveUntilDone(gctx, &http.Server{Addr: cfg.MetricsAddr, Handler: mux})
		})
		fmt.Printf("  ✓ Metrics → http://%s/metrics\n", cfg.MetricsAddr)
	}

	if cfg.Trace != "" {
		g.Go(func() error {
			r := &host.Replayer{Path: cfg.Trace, Follow: cfg.Follow, Logger: logger}
			if err := r.Run(gctx, page); err != nil {
				return fmt.Errorf("replaying trace: %w", err)
			}
			if once {
				// Let a trailing load event settle before the last report.
				time.Sleep(cfg.SettleDelay() + 50*time.Millisecond)
				client.SendReport(eng.BuildReport())
				cancel()
			}
			return nil
		})
	}
	if cfg.FeedURL != "" {
		g.Go(func() error {
			f := &host.Feed{URL: cfg.FeedURL, Logger: logger}
			if err := f.Run(gctx, page); err != nil {
				return fmt.Errorf("live feed: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	err := g.Wait()
	if ctx.Err() != nil {
		fmt.Println("\n  → Shutting down gracefully…")
	}
	return err
}
