package model

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Metrics returns the evaluation metrics for task.
func Metrics(task Task, yTrue, yPred []float64) (map[string]float64, error) {
	if len(yTrue) != len(yPred) {
		return nil, fmt.Errorf("metrics: %d targets vs %d predictions", len(yTrue), len(yPred))
	}
	if len(yTrue) == 0 {
		return nil, fmt.Errorf("metrics: no rows to score")
	}
	switch task {
	case TaskRegression:
		return regressionMetrics(yTrue, yPred), nil
	case TaskClassification:
		return classificationMetrics(yTrue, yPred), nil
	}
	return nil, fmt.Errorf("metrics: unsupported task %q", task)
}

// regressionMetrics reports mae, rmse and r2.
func regressionMetrics(yTrue, yPred []float64) map[string]float64 {
	var absSum, sqSum float64
	for i := range yTrue {
		d := yTrue[i] - yPred[i]
		absSum += math.Abs(d)
		sqSum += d * d
	}
	n := float64(len(yTrue))
	return map[string]float64{
		"mae":  absSum / n,
		"rmse": math.Sqrt(sqSum / n),
		"r2":   stat.RSquaredFrom(yPred, yTrue, nil),
	}
}

// classificationMetrics reports accuracy and support-weighted precision,
// recall and f1. Undefined ratios count as zero.
func classificationMetrics(yTrue, yPred []float64) map[string]float64 {
	labels := make(map[float64]bool)
	for i := range yTrue {
		labels[yTrue[i]] = true
		labels[yPred[i]] = true
	}
	sorted := make([]float64, 0, len(labels))
	for l := range labels {
		sorted = append(sorted, l)
	}
	sort.Float64s(sorted)

	var correct int
	for i := range yTrue {
		if yTrue[i] == yPred[i] {
			correct++
		}
	}

	var precision, recall, f1 float64
	n := float64(len(yTrue))
	for _, l := range sorted {
		var tp, fp, fn float64
		for i := range yTrue {
			switch {
			case yPred[i] == l && yTrue[i] == l:
				tp++
			case yPred[i] == l:
				fp++
			case yTrue[i] == l:
				fn++
			}
		}
		support := tp + fn
		if support == 0 {
			continue
		}
		p := ratio(tp, tp+fp)
		r := ratio(tp, tp+fn)
		weight := support / n
		precision += weight * p
		recall += weight * r
		f1 += weight * ratio(2*p*r, p+r)
	}

	return map[string]float64{
		"accuracy":  float64(correct) / n,
		"precision": precision,
		"recall":    recall,
		"f1":        f1,
	}
}

func ratio(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}
