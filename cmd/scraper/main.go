package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/aluiziolira/go-scrape-auctions/config"
	"github.com/aluiziolira/go-scrape-auctions/models"
	"github.com/aluiziolira/go-scrape-auctions/pipeline"
	"github.com/aluiziolira/go-scrape-auctions/scraper"
	"github.com/aluiziolira/go-scrape-auctions/storage"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	defaultCfg := config.DefaultConfig()

	query := flag.String("query", stringDefault("SCRAPER_QUERY", ""), "Search keywords")
	listingType := flag.String("listing-type", stringDefault("SCRAPER_LISTING_TYPE", defaultCfg.ListingType), "Listing type: all, offers, auction, or buy_now")
	showOnly := flag.String("show-only", stringDefault("SCRAPER_SHOW_ONLY", defaultCfg.ShowOnly), "Restrict to sold listings: empty or sold")
	location := flag.String("location", stringDefault("SCRAPER_LOCATION", defaultCfg.Location), "Preferred location: empty or usa")
	bidCompleted := flag.Bool("bid-completed", boolDefault("SCRAPER_BID_COMPLETED", defaultCfg.BidCompleted), "Listings are concluded auctions")
	useRelay := flag.Bool("relay", boolDefault("SCRAPER_RELAY", defaultCfg.UseRelay), "Route requests through the fetch relay")
	relayKey := flag.String("relay-key", stringDefault("SCRAPER_RELAY_KEY", ""), "Fetch relay API key")
	relayURL := flag.String("relay-url", stringDefault("SCRAPER_RELAY_URL", defaultCfg.RelayURL), "Fetch relay endpoint")
	batchSize := flag.Int("batch-size", intDefault("SCRAPER_BATCH_SIZE", defaultCfg.BatchSize), "Listings extracted between writes")
	throttle := flag.Int("throttle", intDefault("SCRAPER_THROTTLE", defaultCfg.Throttle), "Maximum listings per run (0 = unlimited)")
	downloadDir := flag.String("download-dir", stringDefault("SCRAPER_DOWNLOAD_DIR", defaultCfg.DownloadDir), "Directory for downloaded images")
	imageSize := flag.String("image-size", stringDefault("SCRAPER_IMAGE_SIZE", defaultCfg.ImageSize), "Image size: thumb or full")
	sink := flag.String("sink", stringDefault("SCRAPER_SINK", defaultCfg.Sink), "Storage: postgres, csv, json, or dual")
	databaseURL := flag.String("database-url", stringDefault("DATABASE_URL", ""), "PostgreSQL connection string")
	maxDBConns := flag.Int("db-conns", intDefault("SCRAPER_DB_CONNS", defaultCfg.MaxDBConns), "Maximum PostgreSQL connections")
	outputDir := flag.String("output-dir", stringDefault("SCRAPER_OUTPUT_DIR", defaultCfg.OutputDir), "Directory for file sinks")
	quarantineDir := flag.String("quarantine-dir", stringDefault("SCRAPER_QUARANTINE_DIR", defaultCfg.QuarantineDir), "Directory for quarantined record sets")
	metricsAddr := flag.String("metrics-addr", stringDefault("SCRAPER_METRICS_ADDR", defaultCfg.MetricsAddr), "Prometheus metrics listen address (e.g. :9090)")
	baseURL := flag.String("base-url", stringDefault("SCRAPER_BASE_URL", defaultCfg.BaseURL), "Marketplace base URL")
	timeout := flag.Duration("timeout", defaultCfg.Timeout, "Per-request timeout")
	userAgent := flag.String("user-agent", defaultCfg.UserAgent, "User-Agent header")
	pageCache := flag.Int("page-cache", defaultCfg.PageCacheSize, "Parsed pages kept in memory (0 disables)")
	respectRobots := flag.Bool("respect-robots", false, "Respect robots.txt directives")
	verbose := flag.Bool("v", false, "Enable verbose logging")

	flag.Parse()

	logger, level := newLogger(*verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	cfg := defaultCfg
	cfg.Query = strings.TrimSpace(*query)
	cfg.ListingType = *listingType
	cfg.ShowOnly = *showOnly
	cfg.Location = *location
	cfg.BidCompleted = *bidCompleted
	cfg.UseRelay = *useRelay
	cfg.RelayAPIKey = *relayKey
	cfg.RelayURL = *relayURL
	cfg.BatchSize = *batchSize
	cfg.Throttle = *throttle
	cfg.DownloadDir = *downloadDir
	cfg.ImageSize = strings.ToLower(*imageSize)
	cfg.Sink = strings.ToLower(*sink)
	cfg.DatabaseURL = *databaseURL
	cfg.MaxDBConns = *maxDBConns
	cfg.OutputDir = *outputDir
	cfg.QuarantineDir = *quarantineDir
	cfg.MetricsAddr = *metricsAddr
	cfg.BaseURL = *baseURL
	cfg.Timeout = *timeout
	cfg.UserAgent = *userAgent
	cfg.PageCacheSize = *pageCache
	cfg.RespectRobotsTxt = *respectRobots
	cfg.Verbose = *verbose

	if cfg.Query == "" {
		slog.Error("a search query is required (-query or SCRAPER_QUERY)")
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}
	opts, err := scraper.NewListingOptions(cfg.ListingType, cfg.ShowOnly, cfg.Location)
	if err != nil {
		slog.Error("invalid listing options", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received, finishing the current batch")
	}()

	s, err := scraper.NewScraper(cfg)
	if err != nil {
		slog.Error("initialising scraper", slog.Any("error", err))
		os.Exit(1)
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		slog.Error("opening store", slog.String("sink", cfg.Sink), slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := store.Close(); err != nil {
			slog.Error("close store", slog.Any("error", err))
		}
	}()

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" && s.Metrics != nil {
		metricsServer = &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: promhttp.HandlerFor(s.Metrics.Registry, promhttp.HandlerOpts{}),
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		slog.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))
	}

	slog.Info("starting scrape",
		slog.String("query", cfg.Query),
		slog.String("filters", opts.Query()),
		slog.Bool("relay", cfg.UseRelay),
		slog.String("sink", cfg.Sink),
		slog.Int("batch_size", cfg.BatchSize),
		slog.Int("throttle", cfg.Throttle),
	)

	candidates, err := s.Enumerate(ctx, cfg.Query, opts)
	if err != nil {
		slog.Error("enumerating listings failed", slog.Any("error", err))
		os.Exit(1)
	}
	fresh, err := pipeline.FilterNew(ctx, candidates, store)
	if err != nil {
		slog.Error("deduplicating listings failed", slog.Any("error", err))
		os.Exit(1)
	}
	selected := pipeline.Throttle(fresh, cfg.Throttle)
	slog.Info("candidates selected",
		slog.Int("found", len(candidates)),
		slog.Int("new", len(fresh)),
		slog.Int("selected", len(selected)),
	)

	ingestor := pipeline.NewIngestor(s, store, cfg, s.Metrics)
	summary, runErr := ingestor.Run(ctx, selected, cfg.BatchSize, cfg.UseRelay)
	if v, ok := store.(validator); ok {
		if err := v.Validate(); err != nil {
			slog.Error("output validation failed", slog.Any("error", err))
			runErr = errors.Join(runErr, err)
		}
	}
	if runErr != nil {
		slog.Error("ingestion finished with errors", slog.Any("error", runErr))
	}

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", slog.Any("error", err))
		}
		cancel()
	}

	if summary != nil {
		printSummary(summary, len(candidates), ingestor.GetMetrics())
	}
	if runErr != nil {
		os.Exit(1)
	}
}

// validator is implemented by the file sinks.
type validator interface {
	Validate() error
}

func openStore(ctx context.Context, cfg *config.Config) (pipeline.Store, error) {
	switch cfg.Sink {
	case "postgres":
		return storage.NewPostgresStore(ctx, cfg.DatabaseURL, cfg.MaxDBConns)
	case pipeline.FormatCSV, pipeline.FormatJSON:
		return pipeline.NewFileStore(cfg.OutputDir, cfg.Sink)
	case "dual":
		return pipeline.NewDualStore(cfg.OutputDir)
	default:
		return nil, fmt.Errorf("unsupported sink: %s", cfg.Sink)
	}
}

func printSummary(summary *models.RunSummary, found int, metrics map[string]interface{}) {
	separator := "--------------------------------------------------"
	fmt.Println("\n" + separator)
	if summary.Interrupted {
		fmt.Println("Scrape interrupted")
	} else {
		fmt.Println("Scrape complete")
	}

	fmt.Printf("  Listings found:     %d\n", found)
	fmt.Printf("  Candidates:         %d\n", summary.Candidates)
	fmt.Printf("  Processed:          %d\n", summary.Processed)
	fmt.Printf("  Items extracted:    %d\n", summary.ItemsExtracted)
	fmt.Printf("  Listings dropped:   %d\n", summary.ListingsDropped)
	fmt.Printf("  Batches:            %d (persisted %d, quarantined %d, aborted %d)\n",
		summary.Batches, summary.BatchesPersisted, summary.BatchesQuarantine, summary.BatchesAborted)

	tables := make([]string, 0, len(summary.RowsPersisted))
	for table := range summary.RowsPersisted {
		tables = append(tables, table)
	}
	sort.Strings(tables)
	for _, table := range tables {
		fmt.Printf("  Rows %-14s %d\n", table+":", summary.RowsPersisted[table])
	}
	if dropped, ok := metrics["dropped"].(map[string]int); ok && len(dropped) > 0 {
		fmt.Printf("  Drop reasons:       %v\n", dropped)
	}
	for _, path := range summary.QuarantineFiles {
		fmt.Printf("  Quarantined:        %s\n", path)
	}
	fmt.Printf("  Duration:           %v\n", summary.EndTime.Sub(summary.StartTime).Round(time.Millisecond))
	fmt.Println(separator)
}

func stringDefault(key, fallback string) string {
	if value, ok := config.EnvString(key); ok {
		return value
	}
	return fallback
}

func intDefault(key string, fallback int) int {
	value, ok, err := config.EnvInt(key)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid %s: %v\n", key, err)
		os.Exit(1)
	}
	if ok {
		return value
	}
	return fallback
}

func boolDefault(key string, fallback bool) bool {
	value, ok, err := config.EnvBool(key)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid %s: %v\n", key, err)
		os.Exit(1)
	}
	if ok {
		return value
	}
	return fallback
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
