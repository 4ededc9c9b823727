package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/spf13/cobra"

	"marketml/internal/blob"
	"marketml/internal/config"
	"marketml/internal/dataset"
	"marketml/internal/quote"
	"marketml/internal/sink"
	"marketml/internal/store"
	"marketml/internal/util"
)

const defaultConfigPath = "config/marketml.yaml"

type rootOptions struct {
	configPath string
	logLevel   string
}

// app is the per-command wiring: config, logger with run-log capture, and
// lazily opened cache and sink.
type app struct {
	cfg       *config.Config
	log       *slog.Logger
	collector *sink.LogCollector

	cache   *dataset.Cache
	sink    sink.Sink
	closers []io.Closer
}

func newApp(opts *rootOptions, component string) (*app, error) {
	path := opts.configPath
	if path == "" {
		path = os.Getenv("MARKETML_CONFIG")
	}
	if path == "" {
		if _, err := os.Stat(defaultConfigPath); err == nil {
			path = defaultConfigPath
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if opts.logLevel != "" {
		cfg.Logging.Level = opts.logLevel
	}

	handler := util.NewHandler(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)
	collector := sink.NewLogCollector(handler, slog.LevelInfo, sink.NewRunID(), component)
	logger := slog.New(collector)
	util.SetDefault(logger)

	return &app{cfg: cfg, log: logger, collector: collector}, nil
}

// datasetCache opens the remote mirror selected by config and returns the
// cache bound to it.
func (a *app) datasetCache(ctx context.Context) (*dataset.Cache, error) {
	if a.cache != nil {
		return a.cache, nil
	}
	remote, err := blob.New(ctx, a.cfg.Storage.Remote)
	if err != nil {
		return nil, fmt.Errorf("remote storage: %w", err)
	}
	if c, ok := remote.(io.Closer); ok {
		a.closers = append(a.closers, c)
	}
	a.cache = dataset.NewCache(a.cfg.Storage.DataDir, remote, a.cfg.Storage.Remote.Prefix, a.log)
	return a.cache, nil
}

func (a *app) recordSink() (sink.Sink, error) {
	if a.sink != nil {
		return a.sink, nil
	}
	s, err := sink.New(a.cfg.Sink, a.log)
	if err != nil {
		return nil, err
	}
	a.sink = s
	a.closers = append(a.closers, s)
	return s, nil
}

func (a *app) provider(name string) (quote.Provider, error) {
	switch strings.ToLower(name) {
	case "", "alphavantage":
		if err := a.cfg.Validate(config.NeedQuotes); err != nil {
			return nil, err
		}
		av := a.cfg.AlphaVantage
		return quote.NewAlphaVantage(av.APIKey, av.BaseURL, av.RateLimitPerMin, a.log), nil
	case "alpaca":
		if a.cfg.Alpaca.APIKey == "" || a.cfg.Alpaca.APISecret == "" {
			return nil, fmt.Errorf("%w: APCA_API_KEY_ID, APCA_API_SECRET_KEY", config.ErrMissingSetting)
		}
		ap := a.cfg.Alpaca
		return quote.NewAlpaca(ap.APIKey, ap.APISecret, ap.DataURL, 0, a.log), nil
	}
	return nil, fmt.Errorf("unsupported provider %q (want alphavantage or alpaca)", name)
}

// finish uploads collected run logs when a sink is configured, then closes
// everything the command opened. Upload failures are logged, not returned.
func (a *app) finish(ctx context.Context) {
	if a.cfg.Sink.Type != "none" {
		if s, err := a.recordSink(); err != nil {
			a.log.Warn("run log upload skipped", "error", err)
		} else if err := a.collector.Flush(ctx, s); err != nil {
			a.log.Warn("failed to upload run logs", "error", err)
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.log.Debug("close failed", "error", err)
		}
	}
}

// run builds the app for component, runs fn and always finishes.
func run(cmd *cobra.Command, opts *rootOptions, component string, fn func(ctx context.Context, a *app) error) error {
	a, err := newApp(opts, component)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	defer a.finish(context.WithoutCancel(ctx))

	if err := fn(ctx, a); err != nil {
		a.log.Error(component+" failed", "error", err)
		return err
	}
	return nil
}

// ---------------------------------------------------------------------------
// Shared flags
// ---------------------------------------------------------------------------

// descriptorFlags binds the flags that identify a cached dataset.
type descriptorFlags struct {
	symbol     string
	mode       string
	interval   string
	outputSize string
}

func (f *descriptorFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.symbol, "symbol", "", "ticker symbol (e.g. AAPL)")
	cmd.Flags().StringVar(&f.mode, "mode", quote.ModeIntraday, "data mode: intraday or daily")
	cmd.Flags().StringVar(&f.interval, "interval", "60min", "intraday interval (ignored for daily)")
	cmd.Flags().StringVar(&f.outputSize, "outputsize", quote.OutputCompact, "output size tag: compact or full")
}

// descriptor returns the cache descriptor for typ. The interval only takes
// part in intraday descriptors.
func (f *descriptorFlags) descriptor(typ dataset.Type, version string) dataset.Descriptor {
	d := dataset.Descriptor{
		Type:       typ,
		Symbol:     f.symbol,
		Mode:       f.mode,
		OutputSize: f.outputSize,
		Version:    version,
	}
	if f.mode == quote.ModeIntraday {
		d.Interval = f.interval
	}
	return d
}

func (f *descriptorFlags) request() quote.Request {
	return quote.Request{
		Symbol:     f.symbol,
		Mode:       f.mode,
		Interval:   f.interval,
		OutputSize: f.outputSize,
	}
}

var errNotCached = errors.New("no cached dataset found")

// loadFrame reads df from path when given, otherwise from the cache.
func (a *app) loadFrame(ctx context.Context, path string, d dataset.Descriptor) (dataframe.DataFrame, error) {
	if path != "" {
		a.log.Info("loading dataset", "path", path)
		return store.ReadFrame(path)
	}
	cache, err := a.datasetCache(ctx)
	if err != nil {
		return dataframe.DataFrame{}, err
	}
	df, found, err := cache.Load(ctx, d)
	if err != nil {
		return dataframe.DataFrame{}, err
	}
	if !found {
		return dataframe.DataFrame{}, fmt.Errorf("%w for %s", errNotCached, d)
	}
	return df, nil
}

func preview(w io.Writer, df dataframe.DataFrame) {
	fmt.Fprintln(w, df)
}
