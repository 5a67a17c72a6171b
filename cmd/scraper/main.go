package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/aluiziolira/go-scrape-gamewiki/config"
	"github.com/aluiziolira/go-scrape-gamewiki/models"
	"github.com/aluiziolira/go-scrape-gamewiki/pipeline"
	"github.com/aluiziolira/go-scrape-gamewiki/scraper"
)

// app carries state shared by every subcommand once the root pre-run has
// resolved configuration.
type app struct {
	cfg      *config.Config
	profiles config.Profiles
	scraper  *scraper.Scraper

	verbose      bool
	outputFile   string
	outputFormat string
	metricsAddr  string
	profilesFile string
	assetDir     string
	workers      int
}

func main() {
	if err := newRootCmd(&app{}).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(a *app) *cobra.Command {
	defaults := config.DefaultConfig()

	root := &cobra.Command{
		Use:   "scraper",
		Short: "Scrape game data and forum announcements from the game wiki",
		Long: `scraper pulls ranks, game modes and weapons from the game site and
announcements from its forum, normalises them and exports the records
for review and import.

Settings are read from SCRAPER_* environment variables (and an optional
.env file); flags override them.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "Enable verbose logging")
	flags.StringVar(&a.outputFile, "output", defaults.OutputFile, "Output file path")
	flags.StringVar(&a.outputFormat, "format", defaults.OutputFormat, "Output format: json, csv, dual, or markdown")
	flags.StringVar(&a.metricsAddr, "metrics-addr", defaults.MetricsAddr, "Prometheus metrics listen address (e.g. :9090)")
	flags.StringVar(&a.profilesFile, "profiles", "", "YAML file overriding source profiles and the rank table")
	flags.StringVar(&a.assetDir, "asset-dir", defaults.AssetDir, "Local directory of bundled images")
	flags.IntVar(&a.workers, "workers", defaults.Workers, "Export pipeline workers")

	root.AddCommand(
		newListCmd(a),
		newEventCmd(a),
		newEventsCmd(a),
		newForumCmd(a),
		newServeCmd(a),
	)
	return root
}

// setup loads env configuration, applies explicitly set flags, and builds
// the logger and scraper.
func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("verbose") {
		cfg.Verbose = a.verbose
	}
	if flags.Changed("output") {
		cfg.OutputFile = a.outputFile
	}
	if flags.Changed("format") {
		cfg.OutputFormat = strings.ToLower(a.outputFormat)
	}
	if flags.Changed("metrics-addr") {
		cfg.MetricsAddr = a.metricsAddr
	}
	if flags.Changed("profiles") {
		cfg.ProfilesFile = a.profilesFile
	}
	if flags.Changed("asset-dir") {
		cfg.AssetDir = a.assetDir
	}
	if flags.Changed("workers") {
		cfg.Workers = a.workers
	}

	logger, level := newLogger(cfg.Verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	profiles := config.DefaultProfiles(cfg)
	if cfg.ProfilesFile != "" {
		profiles, err = config.LoadProfiles(cfg.ProfilesFile, cfg)
		if err != nil {
			return err
		}
	}

	s, err := scraper.NewScraper(cfg, profiles)
	if err != nil {
		return fmt.Errorf("initialising scraper: %w", err)
	}

	a.cfg = cfg
	a.profiles = profiles
	a.scraper = s
	return nil
}

// export streams results through the pipeline into the configured writer
// and prints the run summary.
func (a *app) export(ctx context.Context, started time.Time, results ...*models.ScrapeResult) error {
	writer, err := createWriter(a.cfg.OutputFormat, a.cfg.OutputFile)
	if err != nil {
		return fmt.Errorf("creating writer: %w", err)
	}

	p := pipeline.NewPipeline(ctx, writer, a.cfg)
	p.Start(a.cfg.Workers)
	if a.cfg.Verbose {
		p.StartMetricsReporting(10 * time.Second)
	}

	for _, result := range results {
		if err := p.ProcessResult(result); err != nil {
			slog.Error("queueing records", slog.Any("error", err))
			break
		}
	}

	if err := p.Close(); err != nil {
		writer.Close()
		return fmt.Errorf("pipeline shutdown failed: %w", err)
	}
	if err := writer.Validate(); err != nil {
		slog.Warn("output validation failed", slog.Any("error", err))
	}
	if err := writer.Close(); err != nil {
		slog.Error("close writer", slog.Any("error", err))
	}

	printSummary(results, time.Since(started), a.cfg.OutputFile, p.GetMetrics())
	return nil
}

// startMetricsServer serves the scraper registry when an address is set.
// The returned stop function is always safe to call.
func (a *app) startMetricsServer() func() {
	if a.cfg.MetricsAddr == "" || a.scraper.Metrics == nil {
		return func() {}
	}

	metricsServer := &http.Server{
		Addr:    a.cfg.MetricsAddr,
		Handler: promhttp.HandlerFor(a.scraper.Metrics.Registry, promhttp.HandlerOpts{}),
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", slog.Any("error", err))
		}
	}()
	slog.Info("metrics server enabled", slog.String("addr", a.cfg.MetricsAddr))

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", slog.Any("error", err))
		}
	}
}

func createWriter(format, filename string) (pipeline.OutputWriter, error) {
	switch format {
	case "json":
		return pipeline.NewJSONWriter(filename)
	case "csv":
		return pipeline.NewCSVWriter(filename)
	case "dual":
		base := strings.TrimSuffix(strings.TrimSuffix(filename, ".csv"), ".jsonl")
		return pipeline.NewDualWriter(base+".csv", base+".jsonl")
	case "markdown":
		return pipeline.NewMarkdownWriter(filename)
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

func printSummary(results []*models.ScrapeResult, duration time.Duration, outputFile string, metrics map[string]interface{}) {
	separator := "--------------------------------------------------"
	fmt.Println("\n" + separator)
	fmt.Println("Scrape complete")

	scraped, failed, skipped := 0, 0, 0
	var degraded []string
	for _, result := range results {
		if result == nil {
			continue
		}
		scraped += result.Count()
		failed += len(result.Failed)
		skipped += len(result.Skipped)
		if result.Degraded != "" {
			degraded = append(degraded, result.Kind+"="+result.Degraded)
		}
	}

	exported := int64(0)
	if processed, ok := metrics["processed_records"].(int64); ok {
		exported = processed
	}

	fmt.Printf("  Scraped:       %d\n", scraped)
	fmt.Printf("  Exported:      %d\n", exported)
	fmt.Printf("  Skipped:       %d\n", skipped)
	fmt.Printf("  Failed URLs:   %d\n", failed)
	if len(degraded) > 0 {
		fmt.Printf("  Degraded:      %s\n", strings.Join(degraded, ", "))
	}
	if valErrors, ok := metrics["validation_errors"].(map[string]int); ok && len(valErrors) > 0 {
		fmt.Printf("  Validation:    %v\n", valErrors)
	}
	fmt.Printf("  Duration:      %v\n", duration)
	fmt.Printf("  Output file:   %s\n", outputFile)
	fmt.Println(separator)
}

func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stdout) {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
