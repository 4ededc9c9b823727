// historical-ingest backfills the full daily adjusted history of each symbol
// into the dataset cache and the stock_prices table. Re-running on the same
// day resumes after the last completed symbol.
//
// Usage:
//
//	go run ./cmd/historical-ingest --symbols AAPL,MSFT
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"marketml/internal/blob"
	"marketml/internal/config"
	"marketml/internal/dataset"
	"marketml/internal/ingest"
	"marketml/internal/quote"
	"marketml/internal/sink"
	"marketml/internal/util"
)

func main() {
	symbolsFlag := flag.String("symbols", "", "comma-separated symbols (default ingest.symbols / DEFAULT_SYMBOLS)")
	force := flag.Bool("force", false, "ignore today's progress and re-ingest every symbol")
	cfgFlag := flag.String("config", "", "path to YAML config")
	flag.Parse()

	cfgPath := *cfgFlag
	if cfgPath == "" {
		cfgPath = os.Getenv("MARKETML_CONFIG")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.Validate(config.NeedQuotes | config.NeedSink); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	handler := util.NewHandler(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)
	collector := sink.NewLogCollector(handler, slog.LevelInfo, sink.NewRunID(), "historical-ingest")
	logger := slog.New(collector)
	util.SetDefault(logger)

	symbols := cfg.Ingest.Symbols
	if *symbolsFlag != "" {
		symbols = config.ParseSymbols(*symbolsFlag)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	remote, err := blob.New(ctx, cfg.Storage.Remote)
	if err != nil {
		log.Fatalf("remote storage: %v", err)
	}
	cache := dataset.NewCache(cfg.Storage.DataDir, remote, cfg.Storage.Remote.Prefix, logger)

	out, err := sink.New(cfg.Sink, logger)
	if err != nil {
		log.Fatalf("sink: %v", err)
	}

	av := quote.NewAlphaVantage(cfg.AlphaVantage.APIKey, cfg.AlphaVantage.BaseURL, cfg.AlphaVantage.RateLimitPerMin, logger)
	job := ingest.NewJob(av, cache, out, symbols, cfg.Ingest.RateLimitPerMin, logger)
	job.Force = *force

	slog.Info("starting historical ingest", "symbols", len(symbols), "force", *force)
	runErr := job.Run(ctx)

	flushCtx, flushCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer flushCancel()
	if err := collector.Flush(flushCtx, out); err != nil {
		slog.Warn("failed to upload run logs", "error", err)
	}

	if runErr != nil {
		slog.Error("historical ingest finished with errors", "error", runErr)
		out.Close()
		os.Exit(1)
	}
	slog.Info("historical ingest complete")
	out.Close()
}
