package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"marketml/internal/dataset"
	"marketml/internal/domain"
	"marketml/internal/quote"
	"marketml/internal/sink"
)

// Gatherer is a long-running data collection job.
type Gatherer interface {
	// Name returns the gatherer identifier.
	Name() string
	// Run performs one pass and returns when done or when ctx is cancelled.
	Run(ctx context.Context) error
}

// RawFetcher returns raw daily adjusted payloads.
type RawFetcher interface {
	DailyAdjustedRaw(ctx context.Context, symbol, outputSize string) (quote.RawSeries, error)
}

var _ Gatherer = (*Job)(nil)

// Job ingests the full daily adjusted history of each symbol: fetch,
// normalize, cache under raw/<SYMBOL>/daily/full and upsert into
// stock_prices. Symbols finished earlier the same day are skipped.
type Job struct {
	fetcher RawFetcher
	cache   *dataset.Cache
	sink    sink.Sink
	limiter *rate.Limiter
	symbols []string
	log     *slog.Logger
	now     func() time.Time

	// Force ignores same-day progress and re-ingests every symbol.
	Force bool
}

// NewJob creates a Job that fetches at most perMinute symbols per minute.
func NewJob(fetcher RawFetcher, cache *dataset.Cache, s sink.Sink, symbols []string, perMinute int, log *slog.Logger) *Job {
	if log == nil {
		log = slog.Default()
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if perMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1)
	}
	return &Job{
		fetcher: fetcher,
		cache:   cache,
		sink:    s,
		limiter: limiter,
		symbols: symbols,
		log:     log.With("gatherer", "historical-ingest"),
		now:     time.Now,
	}
}

// Name returns the gatherer identifier.
func (j *Job) Name() string { return "historical-ingest" }

// Run processes every symbol once. Per-symbol failures are logged and
// counted; the returned error summarizes them.
func (j *Job) Run(ctx context.Context) error {
	runStart := j.now()
	day := runStart.UTC().Format("2006-01-02")

	progress, err := newProgressTracker(filepath.Join(j.cache.DataDir(), ".ingest"), day)
	if err != nil {
		return err
	}
	defer progress.Close()

	var failed []string
	ingested, skipped := 0, 0
	for _, sym := range j.symbols {
		sym = strings.ToUpper(strings.TrimSpace(sym))
		if sym == "" {
			continue
		}
		if !j.Force && progress.IsDone(sym) {
			j.log.Debug("already ingested today", "symbol", sym)
			skipped++
			continue
		}

		if err := j.limiter.Wait(ctx); err != nil {
			return err
		}

		n, err := j.ingestSymbol(ctx, sym)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			j.log.Error("symbol failed", "symbol", sym, "error", err)
			failed = append(failed, sym)
			continue
		}
		if n == 0 {
			continue
		}
		if err := progress.MarkDone(sym); err != nil {
			j.log.Warn("failed to record progress", "symbol", sym, "error", err)
		}
		ingested++
	}

	if len(failed) == 0 {
		if err := progress.MarkCompleted(day); err != nil {
			j.log.Warn("failed to mark run completed", "error", err)
		}
	}

	j.log.Info("ingest complete",
		"ingested", ingested,
		"skipped", skipped,
		"failed", len(failed),
		"elapsed", j.now().Sub(runStart).Round(time.Second),
	)
	if len(failed) > 0 {
		return fmt.Errorf("%d of %d symbols failed: %s", len(failed), len(j.symbols), strings.Join(failed, ","))
	}
	return nil
}

// ingestSymbol returns the number of rows written.
func (j *Job) ingestSymbol(ctx context.Context, sym string) (int, error) {
	j.log.Info("processing", "symbol", sym)

	raw, err := j.fetcher.DailyAdjustedRaw(ctx, sym, quote.OutputFull)
	if err != nil {
		return 0, fmt.Errorf("fetching: %w", err)
	}
	if len(raw) == 0 {
		j.log.Warn("no data returned", "symbol", sym)
		return 0, nil
	}

	rows := Normalize(sym, raw, j.now(), j.log)
	if len(rows) == 0 {
		j.log.Warn("no normalized records", "symbol", sym)
		return 0, nil
	}

	d := dataset.Descriptor{
		Type:       dataset.TypeRaw,
		Symbol:     sym,
		Mode:       quote.ModeDaily,
		OutputSize: quote.OutputFull,
		Version:    j.now().UTC().Format(dataset.VersionLayout),
	}
	path, err := j.cache.Save(ctx, d, PricesFrame(rows))
	if err != nil {
		if dataset.IsConfigError(err) {
			return 0, err
		}
		j.log.Warn("failed to cache dataset", "symbol", sym, "error", err)
	} else {
		j.log.Info("cached dataset", "symbol", sym, "path", path)
	}

	if err := j.sink.Upsert(ctx, domain.TableStockPrices, Records(rows)); err != nil {
		var upErr *sink.UploadError
		if errors.As(err, &upErr) {
			j.log.Error("partial upload", "symbol", sym, "sent", upErr.Sent, "batch", upErr.Batch)
		}
		return 0, fmt.Errorf("uploading: %w", err)
	}

	j.log.Info("records inserted", "symbol", sym, "count", len(rows))
	return len(rows), nil
}
