package model

import (
	"log/slog"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"marketml/internal/domain"
)

// PredictConfig parameterizes an inference run.
type PredictConfig struct {
	Symbol         string
	DatasetVersion string
	TargetColumn   string
	WithProba      bool
	Now            time.Time
}

// Predict scores every row of df with m. Columns are aligned to the feature
// list recorded in meta; the target column, if present, is ignored.
func Predict(m Model, meta domain.ModelMetadata, df dataframe.DataFrame, cfg PredictConfig, log *slog.Logger) ([]domain.Prediction, error) {
	if log == nil {
		log = slog.Default()
	}
	target := cfg.TargetColumn
	if target == "" {
		target = meta.TargetColumn
	}
	cols := meta.FeatureColumns
	if len(cols) == 0 {
		cols = FeatureColumns(df, target)
	}

	X, err := Matrix(df, cols)
	if err != nil {
		return nil, err
	}
	pred, err := m.Predict(X)
	if err != nil {
		return nil, err
	}

	var proba []float64
	if cfg.WithProba {
		if p, ok := m.(Prober); ok {
			proba, err = p.PredictProba(X)
			if err != nil {
				log.Warn("probabilities unavailable, continuing without them", "error", err)
				proba = nil
			}
		} else {
			log.Warn("model does not expose probabilities", "model", m.Name())
		}
	}

	now := cfg.Now
	if now.IsZero() {
		now = time.Now()
	}
	predictedAt := now.UTC().Format(time.RFC3339)
	keys := RowKeys(df)

	out := make([]domain.Prediction, len(pred))
	for i, v := range pred {
		out[i] = domain.Prediction{
			Timestamp:      keys[i],
			Symbol:         cfg.Symbol,
			ModelName:      m.Name(),
			DatasetVersion: cfg.DatasetVersion,
			Prediction:     v,
			PredictedAt:    predictedAt,
			TargetColumn:   meta.TargetColumn,
		}
		if proba != nil {
			p := proba[i]
			out[i].PredictionProba = &p
		}
	}
	log.Info("generated predictions", "symbol", cfg.Symbol, "rows", len(out))
	return out, nil
}

// PredictionsFrame lays predictions out as a frame for display or export.
func PredictionsFrame(preds []domain.Prediction) dataframe.DataFrame {
	n := len(preds)
	ts := make([]string, n)
	values := make([]float64, n)
	proba := make([]float64, n)
	hasProba := false
	for i, p := range preds {
		ts[i] = p.Timestamp
		values[i] = p.Prediction
		if p.PredictionProba != nil {
			proba[i] = *p.PredictionProba
			hasProba = true
		}
	}
	cols := []series.Series{
		series.New(ts, series.String, "timestamp"),
		series.New(values, series.Float, "prediction"),
	}
	if hasProba {
		cols = append(cols, series.New(proba, series.Float, "prediction_proba"))
	}
	return dataframe.New(cols...)
}
