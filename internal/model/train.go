package model

import (
	"fmt"
	"log/slog"

	"github.com/go-gota/gota/dataframe"

	"marketml/internal/dataset"
	"marketml/internal/domain"
)

// TrainConfig parameterizes a training run.
type TrainConfig struct {
	Symbol         string
	ModelName      string
	Task           Task // empty selects the model's own task
	TargetColumn   string
	TestSize       float64
	NSplits        int // below 2 skips cross-validation
	Hyperparams    map[string]any
	DatasetVersion string
}

// Result is a fitted model and its metadata. Version and paths are filled
// in by Artifacts.Save.
type Result struct {
	Model    Model
	Metadata domain.ModelMetadata
}

// Train fits cfg.ModelName on the chronological head of df, scores it on the
// tail and optionally cross-validates over the whole frame.
func Train(df dataframe.DataFrame, cfg TrainConfig, log *slog.Logger) (*Result, error) {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "train", "symbol", cfg.Symbol, "model", cfg.ModelName)

	task := cfg.Task
	if task == "" {
		t, err := TaskOf(cfg.ModelName)
		if err != nil {
			return nil, err
		}
		task = t
	}
	if cfg.TargetColumn == "" {
		cfg.TargetColumn = "target"
	}
	if _, err := Target(df, cfg.TargetColumn); err != nil {
		return nil, err
	}
	features := FeatureColumns(df, cfg.TargetColumn)

	trainDF, testDF, err := dataset.Split(df, cfg.TestSize)
	if err != nil {
		return nil, err
	}
	Xtrain, err := Matrix(trainDF, features)
	if err != nil {
		return nil, fmt.Errorf("training rows: %w", err)
	}
	ytrain, err := Target(trainDF, cfg.TargetColumn)
	if err != nil {
		return nil, err
	}
	Xtest, err := Matrix(testDF, features)
	if err != nil {
		return nil, fmt.Errorf("validation rows: %w", err)
	}
	ytest, err := Target(testDF, cfg.TargetColumn)
	if err != nil {
		return nil, err
	}

	m, err := New(cfg.ModelName, cfg.Hyperparams)
	if err != nil {
		return nil, err
	}
	if err := m.Fit(Xtrain, ytrain); err != nil {
		return nil, err
	}
	pred, err := m.Predict(Xtest)
	if err != nil {
		return nil, err
	}
	validation, err := Metrics(task, ytest, pred)
	if err != nil {
		return nil, err
	}
	log.Info("validation metrics", "metrics", validation)

	var cv map[string]float64
	if cfg.NSplits >= 2 {
		X, err := Matrix(df, features)
		if err != nil {
			return nil, err
		}
		y, err := Target(df, cfg.TargetColumn)
		if err != nil {
			return nil, err
		}
		cv, err = CrossValidate(cfg.ModelName, cfg.Hyperparams, task, X, y, cfg.NSplits)
		if err != nil {
			return nil, fmt.Errorf("cross-validation: %w", err)
		}
		log.Info("cross-validation metrics", "metrics", cv)
	}

	hp := cfg.Hyperparams
	if hp == nil {
		hp = map[string]any{}
	}
	return &Result{
		Model: m,
		Metadata: domain.ModelMetadata{
			Symbol:            cfg.Symbol,
			ModelName:         cfg.ModelName,
			Task:              string(task),
			DatasetVersion:    cfg.DatasetVersion,
			TargetColumn:      cfg.TargetColumn,
			FeatureColumns:    features,
			Hyperparameters:   hp,
			TrainRows:         trainDF.Nrow(),
			TestRows:          testDF.Nrow(),
			ValidationMetrics: validation,
			CVMetrics:         cv,
		},
	}, nil
}
