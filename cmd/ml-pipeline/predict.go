package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"marketml/internal/dataset"
	"marketml/internal/domain"
	"marketml/internal/model"
	"marketml/internal/store"
)

func newPredictCmd(opts *rootOptions) *cobra.Command {
	var (
		desc            descriptorFlags
		modelName       string
		artifactPath    string
		metadataPath    string
		artifactDir     string
		datasetPath     string
		featuresVersion string
		targetColumn    string
		output          string
		withProba       bool
		upload          bool
		head            bool
	)

	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Run a trained model over a features dataset",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, opts, "predict", func(ctx context.Context, a *app) error {
				arts := model.Artifacts{Root: a.cfg.ModelDir(), Dir: artifactDir}
				m, meta, err := arts.Load(desc.symbol, modelName, artifactPath, metadataPath)
				if err != nil {
					return err
				}

				df, err := a.loadFrame(ctx, datasetPath, desc.descriptor(dataset.TypeFeatures, featuresVersion))
				if err != nil {
					return err
				}

				preds, err := model.Predict(m, meta, df, model.PredictConfig{
					Symbol:         desc.symbol,
					DatasetVersion: featuresVersion,
					TargetColumn:   targetColumn,
					WithProba:      withProba,
					Now:            time.Now(),
				}, a.log)
				if err != nil {
					return err
				}

				if output != "" {
					if err := store.WriteFrame(output, model.PredictionsFrame(preds)); err != nil {
						return err
					}
					a.log.Info("saved predictions", "path", output)
				}
				if head || output == "" {
					preview(cmd.OutOrStdout(), model.PredictionsFrame(preds))
				}

				if upload {
					records := make([]domain.Record, len(preds))
					for i, p := range preds {
						records[i] = p.Record()
					}
					s, err := a.recordSink()
					if err == nil {
						err = s.Upsert(ctx, domain.TableModelPredictions, records)
					}
					if err != nil {
						a.log.Warn("failed to upload predictions", "error", err)
					} else {
						a.log.Info("uploaded predictions", "rows", len(records), "table", domain.TableModelPredictions)
					}
				}
				return nil
			})
		},
	}

	desc.bind(cmd)
	cmd.Flags().StringVar(&modelName, "model", "linear_regression", "model name directory")
	cmd.Flags().StringVar(&artifactPath, "artifact-path", "", "specific model file (default latest.model.json)")
	cmd.Flags().StringVar(&metadataPath, "metadata-path", "", "specific metadata file (default latest.meta.json)")
	cmd.Flags().StringVar(&artifactDir, "artifact-dir", "", "override the artifact directory")
	cmd.Flags().StringVar(&datasetPath, "dataset-path", "", "read features from this .csv or .parquet file instead of the cache")
	cmd.Flags().StringVar(&featuresVersion, "features-version", dataset.Latest, "cached features version to score")
	cmd.Flags().StringVar(&targetColumn, "target-column", "target", "target column to ignore if present")
	cmd.Flags().StringVar(&output, "output", "", "write predictions to this .csv or .parquet file")
	cmd.Flags().BoolVar(&withProba, "predict-proba", false, "also emit the predicted-class probability for classifiers")
	cmd.Flags().BoolVar(&upload, "upload", false, "upsert predictions into model_predictions")
	cmd.Flags().BoolVar(&head, "head", false, "print predictions even when --output is set")
	_ = cmd.MarkFlagRequired("symbol")
	return cmd
}
