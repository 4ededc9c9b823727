package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"marketml/internal/config"
	"marketml/internal/dataset"
	"marketml/internal/domain"
	"marketml/internal/model"
)

func newTrainCmd(opts *rootOptions) *cobra.Command {
	var (
		desc            descriptorFlags
		datasetPath     string
		featuresVersion string
		targetColumn    string
		task            string
		modelName       string
		testSize        float64
		nSplits         int
		hyperparams     string
		artifactDir     string
		metricsLog      string
		uploadMetadata  bool
	)

	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train a model on cached features",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, opts, "train", func(ctx context.Context, a *app) error {
				hp := map[string]any{}
				if err := json.Unmarshal([]byte(hyperparams), &hp); err != nil {
					return fmt.Errorf("--hyperparams: %w", err)
				}
				if uploadMetadata {
					if err := a.cfg.Validate(config.NeedSink); err != nil {
						return err
					}
				}

				d := desc.descriptor(dataset.TypeFeatures, featuresVersion)
				df, err := a.loadFrame(ctx, datasetPath, d)
				if err != nil {
					return err
				}
				datasetVersion := datasetPath
				if datasetPath == "" {
					datasetVersion = resolveVersion(ctx, a, d)
				}

				res, err := model.Train(df, model.TrainConfig{
					Symbol:         desc.symbol,
					ModelName:      modelName,
					Task:           model.Task(task),
					TargetColumn:   targetColumn,
					TestSize:       testSize,
					NSplits:        nSplits,
					Hyperparams:    hp,
					DatasetVersion: datasetVersion,
				}, a.log)
				if err != nil {
					return err
				}

				arts := model.Artifacts{Root: a.cfg.ModelDir(), Dir: artifactDir}
				if err := arts.Save(res.Model, &res.Metadata, time.Now()); err != nil {
					return err
				}
				a.log.Info("saved model artifact", "path", res.Metadata.ModelPath)
				a.log.Info("saved metadata", "path", res.Metadata.MetadataPath)

				if metricsLog != "" {
					record := res.Metadata.Record()
					record["dataset_source"] = "cache"
					if datasetPath != "" {
						record["dataset_source"] = "path"
					}
					if err := model.AppendMetricsLog(metricsLog, record); err != nil {
						return err
					}
					a.log.Info("appended metrics", "path", metricsLog)
				}

				if uploadMetadata {
					s, err := a.recordSink()
					if err == nil {
						err = s.Upsert(ctx, domain.TableModelMetadata, []domain.Record{res.Metadata.Record()})
					}
					if err != nil {
						a.log.Warn("metadata upload failed", "error", err)
					}
				}

				fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s validation=%v\n",
					res.Metadata.Symbol, res.Metadata.ModelName, res.Metadata.Version, res.Metadata.ValidationMetrics)
				return nil
			})
		},
	}

	desc.bind(cmd)
	cmd.Flags().StringVar(&datasetPath, "dataset-path", "", "read features from this .csv or .parquet file instead of the cache")
	cmd.Flags().StringVar(&featuresVersion, "features-version", dataset.Latest, "cached features version to train on")
	cmd.Flags().StringVar(&targetColumn, "target-column", "target", "column to predict")
	cmd.Flags().StringVar(&task, "task", "", "regression or classification (default: the model's task)")
	cmd.Flags().StringVar(&modelName, "model", "linear_regression", fmt.Sprintf("model to train %v", model.Names()))
	cmd.Flags().Float64Var(&testSize, "test-size", 0.2, "fraction of rows held out for validation")
	cmd.Flags().IntVar(&nSplits, "n-splits", 5, "time-series cross-validation folds (below 2 disables)")
	cmd.Flags().StringVar(&hyperparams, "hyperparams", "{}", `model hyperparameters as JSON, e.g. '{"alpha": 0.5}'`)
	cmd.Flags().StringVar(&artifactDir, "artifact-dir", "", "directory for artifacts (default <data_dir>/models/<SYMBOL>/<model>)")
	cmd.Flags().StringVar(&metricsLog, "metrics-log", "", "append the run record to this YAML file")
	cmd.Flags().BoolVar(&uploadMetadata, "upload-metadata", false, "upsert metadata into model_metadata")
	_ = cmd.MarkFlagRequired("symbol")
	return cmd
}

// resolveVersion pins the latest alias to the concrete version it mirrors
// when one can be found.
func resolveVersion(ctx context.Context, a *app, d dataset.Descriptor) string {
	if d.Version != "" && d.Version != dataset.Latest {
		return d.Version
	}
	cache, err := a.datasetCache(ctx)
	if err != nil {
		return dataset.Latest
	}
	v, ok, err := cache.LatestVersion(d)
	if err != nil || !ok {
		return dataset.Latest
	}
	return v
}
