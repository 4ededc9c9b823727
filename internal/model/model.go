// Package model trains, evaluates, persists and applies the linear models
// used on engineered feature frames.
package model

import (
	"errors"
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// Task is the learning problem a model solves.
type Task string

const (
	TaskRegression     Task = "regression"
	TaskClassification Task = "classification"
)

var (
	// ErrUnknownModel is returned for a model name missing from the registry.
	ErrUnknownModel = errors.New("unsupported model")

	// ErrNotFitted is returned when a model is used before Fit.
	ErrNotFitted = errors.New("model is not fitted")
)

// Model is a trainable estimator over a dense feature matrix.
type Model interface {
	// Name returns the registry name of the model.
	Name() string

	// Task reports whether the model regresses or classifies.
	Task() Task

	// Fit estimates parameters from X (rows are samples) and targets y.
	Fit(X *mat.Dense, y []float64) error

	// Predict returns one prediction per row of X.
	Predict(X *mat.Dense) ([]float64, error)
}

// Prober is implemented by classifiers that expose class probabilities.
type Prober interface {
	// PredictProba returns the probability of the predicted class per row.
	PredictProba(X *mat.Dense) ([]float64, error)
}

// ---------------------------------------------------------------------------
// Registry
// ---------------------------------------------------------------------------

type factory func(hp map[string]any) (Model, error)

type entry struct {
	task Task
	new  factory
}

var registry = map[string]entry{
	"linear_regression":   {TaskRegression, newLinearRegression},
	"ridge_regression":    {TaskRegression, newRidgeRegression},
	"logistic_regression": {TaskClassification, newLogisticRegression},
}

// New builds an unfitted model by registry name.
func New(name string, hyperparams map[string]any) (Model, error) {
	e, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownModel, name)
	}
	return e.new(hyperparams)
}

// TaskOf returns the default task of a registered model.
func TaskOf(name string) (Task, error) {
	e, ok := registry[name]
	if !ok {
		return "", fmt.Errorf("%w %q", ErrUnknownModel, name)
	}
	return e.task, nil
}

// Names returns the registered model names in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ---------------------------------------------------------------------------
// Hyperparameter helpers
// ---------------------------------------------------------------------------

func floatHP(hp map[string]any, key string, def float64) (float64, error) {
	v, ok := hp[key]
	if !ok || v == nil {
		return def, nil
	}
	switch x := v.(type) {
	case float64:
		return x, nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	}
	return 0, fmt.Errorf("hyperparameter %s: unsupported value %v", key, v)
}

func intHP(hp map[string]any, key string, def int) (int, error) {
	f, err := floatHP(hp, key, float64(def))
	if err != nil {
		return 0, err
	}
	if f != float64(int(f)) {
		return 0, fmt.Errorf("hyperparameter %s: %v is not a whole number", key, f)
	}
	return int(f), nil
}

// checkHP rejects hyperparameters the model does not understand.
func checkHP(model string, hp map[string]any, allowed ...string) error {
	for key := range hp {
		known := false
		for _, a := range allowed {
			if key == a {
				known = true
				break
			}
		}
		if !known {
			return fmt.Errorf("%s: unknown hyperparameter %q", model, key)
		}
	}
	return nil
}
