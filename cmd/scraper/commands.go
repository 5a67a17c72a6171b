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

	"github.com/spf13/cobra"

	"github.com/aluiziolira/go-scrape-gamewiki/api"
	"github.com/aluiziolira/go-scrape-gamewiki/config"
	"github.com/aluiziolira/go-scrape-gamewiki/models"
	"github.com/aluiziolira/go-scrape-gamewiki/pipeline"
)

var listAliases = map[string]string{
	"ranks":   config.KindRank,
	"rank":    config.KindRank,
	"modes":   config.KindMode,
	"mode":    config.KindMode,
	"weapons": config.KindWeapon,
	"weapon":  config.KindWeapon,
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received, waiting for in-flight work to finish")
	}()
	return ctx, stop
}

func newListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:       "list <ranks|modes|weapons>...",
		Short:     "Scrape one or more game-data listing pages",
		Example:   "  scraper list ranks modes weapons --format csv --output output/gamedata.csv",
		Args:      cobra.MinimumNArgs(1),
		ValidArgs: []string{"ranks", "modes", "weapons"},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()
			defer a.startMetricsServer()()

			started := time.Now()
			results := make([]*models.ScrapeResult, 0, len(args))
			for _, arg := range args {
				kind, ok := listAliases[arg]
				if !ok {
					return fmt.Errorf("unknown source %q (want ranks, modes or weapons)", arg)
				}
				slog.Info("starting list scrape", slog.String("kind", kind))
				result, err := a.scraper.ScrapeList(ctx, kind)
				if err != nil {
					return fmt.Errorf("scraping %s: %w", arg, err)
				}
				results = append(results, result)
			}
			return a.export(ctx, started, results...)
		},
	}
}

func newEventCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "event <url>",
		Short: "Scrape a single forum discussion as an event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()
			defer a.startMetricsServer()()

			started := time.Now()
			ev, err := a.scraper.ScrapeEvent(ctx, args[0])
			if err != nil {
				return err
			}
			result := &models.ScrapeResult{Kind: ev.RecordKind(), SourceURL: ev.SourceURL, Events: []models.ScrapedEvent{*ev}}
			return a.export(ctx, started, result)
		},
	}
}

func newEventsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "events <url>...",
		Short: "Scrape several forum discussions, pacing requests",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()
			defer a.startMetricsServer()()

			started := time.Now()
			result, err := a.scraper.ScrapeEvents(ctx, args)
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			// An interrupted run still exports what it collected.
			return a.export(context.Background(), started, result)
		},
	}
}

func newForumCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "forum [listing-url]",
		Short: "Discover discussions on a forum listing or feed and scrape them",
		Long: `forum reads an HTML category page or an RSS/Atom feed, collects up to
--limit discussion links and scrapes each one as an event. Without an
argument the configured announcements listing is used.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()
			defer a.startMetricsServer()()

			listing := ""
			if len(args) == 1 {
				listing = args[0]
			}

			started := time.Now()
			result, err := a.scraper.ScrapeForum(ctx, listing, limit)
			if err != nil && (result == nil || !errors.Is(err, context.Canceled)) {
				return err
			}
			return a.export(context.Background(), started, result)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum discussions to scrape (0 for no limit)")
	return cmd
}

func newServeCmd(a *app) *cobra.Command {
	var (
		addr   string
		export bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Expose the scrapes as a JSON HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			if cmd.Flags().Changed("addr") {
				a.cfg.APIAddr = addr
			}

			opts := []api.Option{api.WithGatherer(a.scraper.Metrics.Registry)}

			var p *pipeline.Pipeline
			var writer pipeline.OutputWriter
			if export {
				var err error
				writer, err = createWriter(a.cfg.OutputFormat, a.cfg.OutputFile)
				if err != nil {
					return fmt.Errorf("creating writer: %w", err)
				}
				p = pipeline.NewPipeline(ctx, writer, a.cfg)
				p.Start(a.cfg.Workers)
				opts = append(opts, api.WithSink(p))
				slog.Info("exporting API results", slog.String("output", a.cfg.OutputFile), slog.String("format", a.cfg.OutputFormat))
			}

			server := api.NewServer(a.cfg.APIAddr, a.scraper, opts...)
			errCh := make(chan error, 1)
			go func() {
				errCh <- server.Start()
			}()

			var serveErr error
			select {
			case <-ctx.Done():
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				serveErr = server.Shutdown(shutdownCtx)
				cancel()
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					serveErr = err
				}
			}

			if p != nil {
				if err := p.Close(); err != nil {
					slog.Error("pipeline shutdown failed", slog.Any("error", err))
				}
				if err := writer.Close(); err != nil {
					slog.Error("close writer", slog.Any("error", err))
				}
			}
			return serveErr
		},
	}
	cmd.Flags().StringVar(&addr, "addr", config.DefaultConfig().APIAddr, "API listen address")
	cmd.Flags().BoolVar(&export, "export", false, "Also write every scraped record to --output")
	return cmd
}
