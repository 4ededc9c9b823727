package model

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Fold is one expanding-window split: every training index precedes every
// test index.
type Fold struct {
	Train []int
	Test  []int
}

// TimeSeriesSplit partitions n ordered rows into nSplits folds. Each test
// window holds n/(nSplits+1) rows and the training window is everything
// before it.
func TimeSeriesSplit(n, nSplits int) ([]Fold, error) {
	if nSplits < 2 {
		return nil, fmt.Errorf("n_splits must be at least 2, got %d", nSplits)
	}
	if nSplits+1 > n {
		return nil, fmt.Errorf("cannot make %d folds from %d rows", nSplits, n)
	}

	testSize := n / (nSplits + 1)
	folds := make([]Fold, 0, nSplits)
	for start := n - nSplits*testSize; start < n; start += testSize {
		folds = append(folds, Fold{
			Train: seq(0, start),
			Test:  seq(start, start+testSize),
		})
	}
	return folds, nil
}

func seq(from, to int) []int {
	out := make([]int, 0, to-from)
	for i := from; i < to; i++ {
		out = append(out, i)
	}
	return out
}

// CrossValidate fits a fresh model on each fold and reports the mean and
// population standard deviation of every metric as <metric>_mean and
// <metric>_std.
func CrossValidate(name string, hyperparams map[string]any, task Task, X *mat.Dense, y []float64, nSplits int) (map[string]float64, error) {
	r, _ := X.Dims()
	folds, err := TimeSeriesSplit(r, nSplits)
	if err != nil {
		return nil, err
	}

	scores := make(map[string][]float64)
	for i, fold := range folds {
		m, err := New(name, hyperparams)
		if err != nil {
			return nil, err
		}
		if err := m.Fit(rows(X, fold.Train), pick(y, fold.Train)); err != nil {
			return nil, fmt.Errorf("fold %d: %w", i, err)
		}
		pred, err := m.Predict(rows(X, fold.Test))
		if err != nil {
			return nil, fmt.Errorf("fold %d: %w", i, err)
		}
		metrics, err := Metrics(task, pick(y, fold.Test), pred)
		if err != nil {
			return nil, fmt.Errorf("fold %d: %w", i, err)
		}
		for k, v := range metrics {
			scores[k] = append(scores[k], v)
		}
	}

	out := make(map[string]float64, 2*len(scores))
	for k, vals := range scores {
		mean, std := stat.PopMeanStdDev(vals, nil)
		out[k+"_mean"] = mean
		out[k+"_std"] = std
	}
	return out, nil
}

// rows copies the selected rows of X into a new matrix.
func rows(X *mat.Dense, idx []int) *mat.Dense {
	_, c := X.Dims()
	out := mat.NewDense(len(idx), c, nil)
	for i, src := range idx {
		out.SetRow(i, X.RawRowView(src))
	}
	return out
}

func pick(y []float64, idx []int) []float64 {
	out := make([]float64, len(idx))
	for i, src := range idx {
		out[i] = y[src]
	}
	return out
}
