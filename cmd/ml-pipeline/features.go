package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"marketml/internal/config"
	"marketml/internal/dataset"
	"marketml/internal/features"
	"marketml/internal/store"
)

func newFeaturesCmd(opts *rootOptions) *cobra.Command {
	var (
		desc         descriptorFlags
		input        string
		inputVersion string
		output       string
		cacheVersion string
		addTarget    string
		targetColumn string
		noCache      bool
		head         bool
	)

	cmd := &cobra.Command{
		Use:   "features",
		Short: "Engineer technical-indicator features from a price dataset",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, opts, "features", func(ctx context.Context, a *app) error {
				if err := a.cfg.Validate(config.NeedIndicators); err != nil {
					return err
				}
				indicators, err := features.LoadIndicators(a.cfg.Storage.IndicatorsPath)
				if err != nil {
					return err
				}
				if err := features.Validate(indicators); err != nil {
					return err
				}

				if input == "" && desc.symbol == "" {
					return fmt.Errorf("either --input or --symbol is required")
				}
				src, err := a.loadFrame(ctx, input, desc.descriptor(dataset.TypeRaw, inputVersion))
				if err != nil {
					return err
				}
				a.log.Info("loaded rows", "rows", src.Nrow(), "columns", src.Ncol())

				out, err := features.NewEngine(indicators, a.log).Apply(src)
				if err != nil {
					return err
				}
				if addTarget != "" {
					kind, err := features.ParseTargetKind(addTarget)
					if err != nil {
						return err
					}
					if out, err = features.AddTarget(out, kind, targetColumn, "close"); err != nil {
						return err
					}
					a.log.Info("added target", "kind", kind, "column", targetColumn, "rows", out.Nrow())
				}

				switch {
				case noCache:
				case desc.symbol == "":
					a.log.Warn("skipping cache save because --symbol was not provided")
				default:
					cache, err := a.datasetCache(ctx)
					if err != nil {
						return err
					}
					path, err := cache.Save(ctx, desc.descriptor(dataset.TypeFeatures, cacheVersion), out)
					if err != nil {
						return err
					}
					a.log.Info("cached engineered features", "path", path)
				}

				if output != "" {
					if err := store.WriteFrame(output, out); err != nil {
						return err
					}
					a.log.Info("saved engineered features", "path", output)
				}
				if output == "" || head {
					preview(cmd.OutOrStdout(), out)
				}
				return nil
			})
		},
	}

	desc.bind(cmd)
	cmd.Flags().StringVar(&input, "input", "", "read prices from this .csv or .parquet file instead of the cache")
	cmd.Flags().StringVar(&inputVersion, "input-version", "", "cached raw version to read (default latest)")
	cmd.Flags().StringVar(&output, "output", "", "also write features to this .csv or .parquet file")
	cmd.Flags().StringVar(&cacheVersion, "cache-version", "", "version label when caching (default UTC timestamp)")
	cmd.Flags().StringVar(&addTarget, "add-target", "", "append a target column: return or direction")
	cmd.Flags().StringVar(&targetColumn, "target-column", features.DefaultTargetColumn, "name of the generated target column")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "do not save features to the cache")
	cmd.Flags().BoolVar(&head, "head", false, "print the result even when --output is set")
	return cmd
}
