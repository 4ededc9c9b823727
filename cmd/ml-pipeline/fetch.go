package main

import (
	"context"
	"fmt"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/spf13/cobra"

	"marketml/internal/config"
	"marketml/internal/dataset"
	"marketml/internal/domain"
	"marketml/internal/ingest"
	"marketml/internal/store"
)

func newFetchCmd(opts *rootOptions) *cobra.Command {
	var (
		desc         descriptorFlags
		provider     string
		loadVersion  string
		cacheVersion string
		output       string
		noCache      bool
		forceRefresh bool
		upload       bool
	)

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch a quote series, cache-first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, opts, "fetch", func(ctx context.Context, a *app) error {
				if upload {
					if err := a.cfg.Validate(config.NeedSink); err != nil {
						return err
					}
				}

				var (
					df    dataframe.DataFrame
					found bool
				)
				raw := desc.descriptor(dataset.TypeRaw, "")
				if !noCache && !forceRefresh {
					cache, err := a.datasetCache(ctx)
					if err != nil {
						return err
					}
					df, found, err = cache.Load(ctx, raw.WithVersion(loadVersion))
					if err != nil {
						return err
					}
					if found {
						a.log.Info("loaded cached rows", "symbol", desc.symbol, "rows", df.Nrow(), "version", raw.WithVersion(loadVersion).String())
					}
				}

				if !found {
					p, err := a.provider(provider)
					if err != nil {
						return err
					}
					df, err = p.Fetch(ctx, desc.request())
					if err != nil {
						return fmt.Errorf("fetching %s from %s: %w", desc.symbol, p.Name(), err)
					}
					if df.Nrow() == 0 {
						a.log.Warn("no data returned", "symbol", desc.symbol)
						return nil
					}
					if !noCache {
						cache, err := a.datasetCache(ctx)
						if err != nil {
							return err
						}
						path, err := cache.Save(ctx, raw.WithVersion(cacheVersion), df)
						if err != nil {
							return err
						}
						a.log.Info("cached dataset", "path", path)
					}
				}

				if output != "" {
					if err := store.WriteFrame(output, df); err != nil {
						return err
					}
					a.log.Info("saved dataset", "path", output)
				}

				if upload {
					rows, err := ingest.FromFrame(desc.symbol, provider, df, time.Now())
					if err != nil {
						return err
					}
					s, err := a.recordSink()
					if err != nil {
						return err
					}
					if err := s.Upsert(ctx, domain.TableStockPrices, ingest.Records(rows)); err != nil {
						return err
					}
					a.log.Info("uploaded rows", "symbol", desc.symbol, "rows", len(rows), "table", domain.TableStockPrices)
				}

				preview(cmd.OutOrStdout(), df)
				return nil
			})
		},
	}

	desc.bind(cmd)
	cmd.Flags().StringVar(&provider, "provider", "alphavantage", "quote provider: alphavantage or alpaca")
	cmd.Flags().StringVar(&loadVersion, "load-version", "", "load a specific cached version instead of latest")
	cmd.Flags().StringVar(&cacheVersion, "cache-version", "", "version label when caching (default UTC timestamp)")
	cmd.Flags().StringVar(&output, "output", "", "also write the dataset to this .csv or .parquet file")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "skip loading from and saving to the cache")
	cmd.Flags().BoolVar(&forceRefresh, "force-refresh", false, "ignore cached data and fetch from the provider")
	cmd.Flags().BoolVar(&upload, "upload", false, "upsert the rows into stock_prices")
	_ = cmd.MarkFlagRequired("symbol")
	return cmd
}
