package model

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gopkg.in/yaml.v3"

	"marketml/internal/domain"
)

// linearFrame builds n rows where target = 2*f1 - 3*f2 + 5 exactly.
func linearFrame(n int) dataframe.DataFrame {
	ts := make([]string, n)
	f1 := make([]float64, n)
	f2 := make([]float64, n)
	target := make([]float64, n)
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		ts[i] = start.AddDate(0, 0, i).Format(time.RFC3339)
		f1[i] = float64(i)
		f2[i] = float64((i * 7) % 5)
		target[i] = 2*f1[i] - 3*f2[i] + 5
	}
	return dataframe.New(
		series.New(ts, series.String, "timestamp"),
		series.New(f1, series.Float, "f1"),
		series.New(f2, series.Float, "f2"),
		series.New(target, series.Float, "target"),
	)
}

func TestRegistry(t *testing.T) {
	assert.Equal(t, []string{"linear_regression", "logistic_regression", "ridge_regression"}, Names())

	task, err := TaskOf("logistic_regression")
	require.NoError(t, err)
	assert.Equal(t, TaskClassification, task)

	_, err = New("random_forest", nil)
	assert.ErrorIs(t, err, ErrUnknownModel)

	_, err = New("ridge_regression", map[string]any{"n_estimators": 300})
	assert.Error(t, err)

	m, err := New("ridge_regression", map[string]any{"alpha": 0.5})
	require.NoError(t, err)
	assert.Equal(t, 0.5, m.(*LinearRegression).Alpha)
}

func TestLinearRegressionRecoversCoefficients(t *testing.T) {
	df := linearFrame(20)
	X, err := Matrix(df, []string{"f1", "f2"})
	require.NoError(t, err)
	y, err := Target(df, "target")
	require.NoError(t, err)

	m, err := New("linear_regression", nil)
	require.NoError(t, err)
	require.NoError(t, m.Fit(X, y))

	probe := mat.NewDense(2, 2, []float64{100, 1, -4, 3})
	pred, err := m.Predict(probe)
	require.NoError(t, err)
	assert.InDelta(t, 2*100-3*1+5, pred[0], 1e-6)
	assert.InDelta(t, 2*-4-3*3+5, pred[1], 1e-6)
}

func TestLinearRegressionCollinearFeatures(t *testing.T) {
	n := 15
	data := make([]float64, 0, 3*n)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		x := float64(i)
		data = append(data, x, 2*x, 7)
		y[i] = 3*x + 1
	}
	X := mat.NewDense(n, 3, data)

	m, err := New("linear_regression", nil)
	require.NoError(t, err)
	require.NoError(t, m.Fit(X, y))

	pred, err := m.Predict(X)
	require.NoError(t, err)
	for i := range y {
		assert.InDelta(t, y[i], pred[i], 1e-4)
	}
}

func TestRidgeShrinks(t *testing.T) {
	df := linearFrame(20)
	X, _ := Matrix(df, []string{"f1", "f2"})
	y, _ := Target(df, "target")

	ols, _ := New("linear_regression", nil)
	ridge, _ := New("ridge_regression", map[string]any{"alpha": 50})
	require.NoError(t, ols.Fit(X, y))
	require.NoError(t, ridge.Fit(X, y))

	olsW := ols.(*LinearRegression).Weights
	ridgeW := ridge.(*LinearRegression).Weights
	norm := func(w []float64) float64 {
		var s float64
		for _, v := range w[1:] {
			s += v * v
		}
		return math.Sqrt(s)
	}
	assert.Less(t, norm(ridgeW), norm(olsW))
	// The intercept is not penalized.
	assert.InDelta(t, olsW[0], ridgeW[0], 1e-9)
}

func TestPredictBeforeFit(t *testing.T) {
	m, _ := New("linear_regression", nil)
	_, err := m.Predict(mat.NewDense(1, 1, []float64{1}))
	assert.ErrorIs(t, err, ErrNotFitted)
}

func TestLogisticRegression(t *testing.T) {
	var xs, ys []float64
	for x := -10; x <= 10; x++ {
		if x == 0 {
			continue
		}
		xs = append(xs, float64(x))
		if x > 0 {
			ys = append(ys, 1)
		} else {
			ys = append(ys, 0)
		}
	}
	X := mat.NewDense(len(xs), 1, xs)

	m, err := New("logistic_regression", nil)
	require.NoError(t, err)
	require.NoError(t, m.Fit(X, ys))

	pred, err := m.Predict(X)
	require.NoError(t, err)
	assert.Equal(t, ys, pred)

	proba, err := m.(Prober).PredictProba(X)
	require.NoError(t, err)
	for i, p := range proba {
		assert.Greater(t, p, 0.5, "row %d", i)
		assert.LessOrEqual(t, p, 1.0, "row %d", i)
	}

	single, _ := New("logistic_regression", nil)
	assert.Error(t, single.Fit(mat.NewDense(2, 1, []float64{1, 2}), []float64{1, 1}))
}

func TestMetrics(t *testing.T) {
	reg, err := Metrics(TaskRegression, []float64{1, 2, 3, 4}, []float64{1, 2, 3, 6})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, reg["mae"], 1e-12)
	assert.InDelta(t, 1.0, reg["rmse"], 1e-12)
	assert.InDelta(t, 1-4.0/5.0, reg["r2"], 1e-12)

	cls, err := Metrics(TaskClassification, []float64{0, 1, 1, 0}, []float64{0, 1, 0, 0})
	require.NoError(t, err)
	assert.InDelta(t, 0.75, cls["accuracy"], 1e-12)
	assert.InDelta(t, (2.0/3.0+1)/2, cls["precision"], 1e-12)
	assert.InDelta(t, 0.75, cls["recall"], 1e-12)
	assert.InDelta(t, (0.8+2.0/3.0)/2, cls["f1"], 1e-12)

	_, err = Metrics(TaskRegression, []float64{1}, []float64{1, 2})
	assert.Error(t, err)
}

func TestTimeSeriesSplit(t *testing.T) {
	folds, err := TimeSeriesSplit(10, 3)
	require.NoError(t, err)
	require.Len(t, folds, 3)

	assert.Equal(t, []int{0, 1, 2, 3}, folds[0].Train)
	assert.Equal(t, []int{4, 5}, folds[0].Test)
	assert.Equal(t, []int{6, 7}, folds[1].Test)
	assert.Equal(t, []int{8, 9}, folds[2].Test)
	assert.Len(t, folds[2].Train, 8)

	for _, f := range folds {
		assert.Less(t, f.Train[len(f.Train)-1], f.Test[0])
	}

	_, err = TimeSeriesSplit(10, 1)
	assert.Error(t, err)
	_, err = TimeSeriesSplit(3, 5)
	assert.Error(t, err)
}

func TestCrossValidate(t *testing.T) {
	df := linearFrame(30)
	X, _ := Matrix(df, []string{"f1", "f2"})
	y, _ := Target(df, "target")

	cv, err := CrossValidate("linear_regression", nil, TaskRegression, X, y, 3)
	require.NoError(t, err)
	for _, k := range []string{"mae_mean", "mae_std", "rmse_mean", "rmse_std", "r2_mean", "r2_std"} {
		assert.Contains(t, cv, k)
	}
	assert.InDelta(t, 0, cv["mae_mean"], 1e-6)
}

func TestMatrixErrors(t *testing.T) {
	df := linearFrame(5)
	_, err := Matrix(df, []string{"f1", "missing_a", "missing_b"})
	require.ErrorIs(t, err, ErrMissingColumns)
	assert.Contains(t, err.Error(), "missing_a, missing_b")

	_, err = Target(df, "label")
	assert.ErrorIs(t, err, ErrMissingColumns)

	assert.Equal(t, []string{"f1", "f2"}, FeatureColumns(df, "target"))
}

func TestTrainSaveLoadPredict(t *testing.T) {
	df := linearFrame(30)
	res, err := Train(df, TrainConfig{
		Symbol:         "AAPL",
		ModelName:      "linear_regression",
		TargetColumn:   "target",
		TestSize:       0.2,
		NSplits:        3,
		DatasetVersion: "latest",
	}, nil)
	require.NoError(t, err)

	meta := res.Metadata
	assert.Equal(t, "regression", meta.Task)
	assert.Equal(t, []string{"f1", "f2"}, meta.FeatureColumns)
	assert.Equal(t, 24, meta.TrainRows)
	assert.Equal(t, 6, meta.TestRows)
	assert.InDelta(t, 0, meta.ValidationMetrics["mae"], 1e-6)
	assert.Contains(t, meta.CVMetrics, "r2_mean")

	arts := Artifacts{Root: t.TempDir()}
	now := time.Date(2024, 7, 26, 9, 30, 0, 0, time.UTC)
	require.NoError(t, arts.Save(res.Model, &meta, now))

	dir := arts.ModelDir("aapl", "linear_regression")
	assert.Equal(t, "20240726093000", meta.Version)
	assert.Equal(t, filepath.Join(dir, "20240726093000.model.json"), meta.ModelPath)
	for _, name := range []string{"20240726093000.model.json", "20240726093000.meta.json", "latest.model.json", "latest.meta.json"} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, name)
	}

	loaded, loadedMeta, err := arts.Load("AAPL", "linear_regression", "", "")
	require.NoError(t, err)
	assert.Equal(t, meta.Version, loadedMeta.Version)
	assert.Equal(t, meta.FeatureColumns, loadedMeta.FeatureColumns)

	// Reordered columns plus the target are aligned away.
	scoring := df.Select([]string{"target", "f2", "timestamp", "f1"})
	preds, err := Predict(loaded, loadedMeta, scoring, PredictConfig{
		Symbol:         "AAPL",
		DatasetVersion: "latest",
		WithProba:      true,
		Now:            now,
	}, nil)
	require.NoError(t, err)
	require.Len(t, preds, 30)

	want := df.Col("target").Float()
	for i, p := range preds {
		assert.InDelta(t, want[i], p.Prediction, 1e-6)
		assert.Nil(t, p.PredictionProba)
	}
	assert.Equal(t, "2024-03-01T00:00:00Z", preds[0].Timestamp)
	assert.Equal(t, "linear_regression", preds[0].ModelName)
	assert.Equal(t, "2024-07-26T09:30:00Z", preds[0].PredictedAt)
	assert.Equal(t, "target", preds[0].TargetColumn)

	frame := PredictionsFrame(preds)
	assert.Equal(t, []string{"timestamp", "prediction"}, frame.Names())
}

func TestPredictMissingFeature(t *testing.T) {
	df := linearFrame(10)
	m, _ := New("linear_regression", nil)
	meta := domain.ModelMetadata{FeatureColumns: []string{"f1", "RSI_14"}}
	_, err := Predict(m, meta, df, PredictConfig{}, nil)
	assert.ErrorIs(t, err, ErrMissingColumns)
}

func TestLoadMissingArtifact(t *testing.T) {
	arts := Artifacts{Root: t.TempDir()}
	_, _, err := arts.Load("AAPL", "ridge_regression", "", "")
	assert.ErrorIs(t, err, ErrArtifactNotFound)
}

func TestAppendMetricsLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "metrics.yaml")
	require.NoError(t, AppendMetricsLog(path, map[string]any{"model": "a", "mae": 0.1}))
	require.NoError(t, AppendMetricsLog(path, map[string]any{"model": "b", "mae": 0.2}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var entries []map[string]any
	require.NoError(t, yaml.Unmarshal(data, &entries))
	require.Len(t, entries, 2)
	assert.Equal(t, "b", entries[1]["model"])

	single := filepath.Join(t.TempDir(), "single.yaml")
	require.NoError(t, os.WriteFile(single, []byte("model: legacy\n"), 0o644))
	require.NoError(t, AppendMetricsLog(single, map[string]any{"model": "new"}))
	data, _ = os.ReadFile(single)
	entries = nil
	require.NoError(t, yaml.Unmarshal(data, &entries))
	assert.Len(t, entries, 2)
}
