// Command crawl is the CLI entry point for the domain crawl engine: create
// sources, execute runs against them, and recover stuck queue items.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/oakhollow/domaincrawl/internal/config"
	"github.com/oakhollow/domaincrawl/internal/fetcher"
	"github.com/oakhollow/domaincrawl/internal/model"
	"github.com/oakhollow/domaincrawl/internal/orchestrator"
	"github.com/oakhollow/domaincrawl/internal/store"
	"github.com/oakhollow/domaincrawl/internal/visited"
)

var logFormat string

var rootCmd = &cobra.Command{
	Use:   "crawl",
	Short: "A durable, politeness-aware single-domain web crawler",
	Long: `crawl discovers and records every page of a single domain, persisting
its progress to Postgres so a run survives a crash and can be resumed.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogger()
	},
}

func setupLogger() {
	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if logFormat == "text" {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

var createCmd = &cobra.Command{
	Use:   "create <url>",
	Short: "Create a CrawlSource for a domain or single page",
	Args:  cobra.ExactArgs(1),
	RunE:  runCreate,
}

var sourceTypeFlag string

var runCmd = &cobra.Command{
	Use:   "run <source-id>",
	Short: "Execute one crawl run against a source",
	Args:  cobra.ExactArgs(1),
	RunE:  runRun,
}

var (
	delayFlag         float64
	batchSizeFlag     int
	concurrencyFlag   int
	maxDepthFlag      int
	resumeFlag        bool
	memoryLimitMBFlag int64
)

var resetStaleCmd = &cobra.Command{
	Use:   "reset-stale",
	Short: "Reclaim queue items stuck in processing past a timeout",
	Args:  cobra.NoArgs,
	RunE:  runResetStale,
}

var timeoutMinutesFlag int

func init() {
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "json", "log output format: json or text")

	createCmd.Flags().StringVar(&sourceTypeFlag, "type", "full_domain", "source type: single_page or full_domain")

	runCmd.Flags().Float64Var(&delayFlag, "delay", 0.5, "minimum seconds between requests to the same domain")
	runCmd.Flags().IntVar(&batchSizeFlag, "batch-size", 10, "number of queue items claimed per batch")
	runCmd.Flags().IntVar(&concurrencyFlag, "concurrency", 10, "number of concurrent fetch workers")
	runCmd.Flags().IntVar(&maxDepthFlag, "max-depth", 5, "maximum link depth to follow")
	runCmd.Flags().BoolVar(&resumeFlag, "resume", false, "continue an existing running run instead of starting a new one")
	runCmd.Flags().Int64Var(&memoryLimitMBFlag, "memory-limit-mb", 0, "soft heap limit in MB; throttles worker concurrency under pressure (0 disables)")

	resetStaleCmd.Flags().IntVar(&timeoutMinutesFlag, "timeout-minutes", 5, "minutes a queue item may sit in processing before being reclaimed")

	rootCmd.AddCommand(createCmd, runCmd, resetStaleCmd)
}

func runCreate(cmd *cobra.Command, args []string) error {
	entryURL := args[0]

	var sourceType model.SourceType
	switch sourceTypeFlag {
	case "single_page":
		sourceType = model.SourceTypeSinglePage
	case "full_domain":
		sourceType = model.SourceTypeFullDomain
	default:
		return fmt.Errorf("invalid --type %q (must be single_page or full_domain)", sourceTypeFlag)
	}

	ctx := cmd.Context()
	pg, err := connectStore(ctx)
	if err != nil {
		return err
	}
	defer pg.Close()

	o, cleanup := newOrchestrator(pg)
	defer cleanup()

	source, err := o.CreateSource(ctx, entryURL, sourceType)
	if err != nil {
		return fmt.Errorf("create source: %w", err)
	}

	fmt.Println(source.ID)
	return nil
}

func runRun(cmd *cobra.Command, args []string) error {
	sourceID, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid source id %q: %w", args[0], err)
	}

	ctx := cmd.Context()
	pg, err := connectStore(ctx)
	if err != nil {
		return err
	}
	defer pg.Close()

	o, cleanup := newOrchestrator(pg)
	defer cleanup()

	run, err := o.StartRun(ctx, sourceID, orchestrator.Options{
		Delay:       time.Duration(delayFlag * float64(time.Second)),
		BatchSize:   batchSizeFlag,
		Concurrency: concurrencyFlag,
		MaxDepth:      maxDepthFlag,
		Resume:        resumeFlag,
		MemoryLimitMB: memoryLimitMBFlag,
	})
	if err != nil {
		return fmt.Errorf("run crawl: %w", err)
	}

	fmt.Printf("crawled=%d failed=%d\n", run.PagesCrawled, run.PagesFailed)
	return nil
}

func runResetStale(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	pg, err := connectStore(ctx)
	if err != nil {
		return err
	}
	defer pg.Close()

	n, err := pg.Queue().ResetStale(ctx, time.Duration(timeoutMinutesFlag)*time.Minute)
	if err != nil {
		return fmt.Errorf("reset stale queue items: %w", err)
	}

	fmt.Printf("reset=%d\n", n)
	return nil
}

func connectStore(ctx context.Context) (*store.Postgres, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	pg, err := store.NewPostgres(ctx, cfg.DatastoreURL)
	if err != nil {
		return nil, fmt.Errorf("connect to datastore: %w", err)
	}
	if err := pg.ApplySchema(ctx); err != nil {
		pg.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return pg, nil
}

// newOrchestrator builds an Orchestrator backed by pg and a disk-backed
// visited cache. The returned cleanup func must be called once the
// orchestrator is done being used, to flush and remove the cache's backing
// file.
func newOrchestrator(pg *store.Postgres) (*orchestrator.Orchestrator, func()) {
	o := orchestrator.New(pg.Sources(), pg.Runs(), pg.Queue(), pg.Pages(), fetcher.New(), slog.Default())

	cache, err := visited.New()
	if err != nil {
		slog.Default().Warn("visited cache unavailable, every enqueue will round-trip to the datastore", "error", err)
		return o, func() {}
	}
	o.VisitedCache = cache
	return o, func() {
		if err := cache.Close(); err != nil {
			slog.Default().Warn("closing visited cache", "error", err)
		}
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
