package model

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// ---------------------------------------------------------------------------
// Standardization
// ---------------------------------------------------------------------------

// fitScaler returns per-column population mean and standard deviation.
// Constant columns get a scale of 1 so they standardize to zero.
func fitScaler(X *mat.Dense) (means, scales []float64) {
	r, c := X.Dims()
	means = make([]float64, c)
	scales = make([]float64, c)
	col := make([]float64, r)
	for j := 0; j < c; j++ {
		mat.Col(col, j, X)
		m, s := stat.PopMeanStdDev(col, nil)
		if s == 0 || math.IsNaN(s) {
			s = 1
		}
		means[j], scales[j] = m, s
	}
	return means, scales
}

// design standardizes X and prepends an intercept column of ones.
func design(X *mat.Dense, means, scales []float64) (*mat.Dense, error) {
	r, c := X.Dims()
	if c != len(means) {
		return nil, fmt.Errorf("feature count mismatch: got %d, model expects %d", c, len(means))
	}
	D := mat.NewDense(r, c+1, nil)
	for i := 0; i < r; i++ {
		D.Set(i, 0, 1)
		for j := 0; j < c; j++ {
			D.Set(i, j+1, (X.At(i, j)-means[j])/scales[j])
		}
	}
	return D, nil
}

func checkXY(X *mat.Dense, y []float64) error {
	r, _ := X.Dims()
	if r == 0 {
		return errors.New("no training rows")
	}
	if len(y) != r {
		return fmt.Errorf("target length %d does not match %d rows", len(y), r)
	}
	return nil
}

func finite(v []float64) bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

// ---------------------------------------------------------------------------
// Linear and ridge regression
// ---------------------------------------------------------------------------

// LinearRegression is ordinary least squares, or ridge regression when Alpha
// is positive. Weights live on the standardized scale with the intercept
// first.
type LinearRegression struct {
	Alpha   float64   `json:"alpha"`
	Means   []float64 `json:"means"`
	Scales  []float64 `json:"scales"`
	Weights []float64 `json:"weights"`

	name string
}

func newLinearRegression(hp map[string]any) (Model, error) {
	if err := checkHP("linear_regression", hp); err != nil {
		return nil, err
	}
	return &LinearRegression{name: "linear_regression"}, nil
}

func newRidgeRegression(hp map[string]any) (Model, error) {
	if err := checkHP("ridge_regression", hp, "alpha"); err != nil {
		return nil, err
	}
	alpha, err := floatHP(hp, "alpha", 1.0)
	if err != nil {
		return nil, err
	}
	if alpha < 0 {
		return nil, fmt.Errorf("ridge_regression: alpha must be non-negative, got %v", alpha)
	}
	return &LinearRegression{name: "ridge_regression", Alpha: alpha}, nil
}

func (l *LinearRegression) Name() string { return l.name }
func (l *LinearRegression) Task() Task   { return TaskRegression }

// Fit solves the (regularized) normal equations. A singular system, such as
// one with collinear or constant features, is retried with a tiny ridge
// penalty.
func (l *LinearRegression) Fit(X *mat.Dense, y []float64) error {
	if err := checkXY(X, y); err != nil {
		return err
	}
	l.Means, l.Scales = fitScaler(X)
	D, err := design(X, l.Means, l.Scales)
	if err != nil {
		return err
	}

	r, _ := D.Dims()
	w, err := solveNormal(D, y, l.Alpha)
	if err != nil || !finite(w) {
		w, err = solveNormal(D, y, l.Alpha+1e-9*float64(r))
	}
	if err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return fmt.Errorf("%s: %w", l.name, err)
		}
	}
	if len(w) == 0 || !finite(w) {
		return fmt.Errorf("%s: no finite solution", l.name)
	}
	l.Weights = w
	return nil
}

// solveNormal solves (DᵀD + alpha·I')w = Dᵀy where I' skips the intercept.
func solveNormal(D *mat.Dense, y []float64, alpha float64) ([]float64, error) {
	r, c := D.Dims()
	var A mat.Dense
	A.Mul(D.T(), D)
	for j := 1; j < c; j++ {
		A.Set(j, j, A.At(j, j)+alpha)
	}
	var b mat.VecDense
	b.MulVec(D.T(), mat.NewVecDense(r, y))

	var w mat.VecDense
	err := w.SolveVec(&A, &b)
	if w.Len() == 0 {
		return nil, err
	}
	return mat.Col(nil, 0, &w), err
}

func (l *LinearRegression) Predict(X *mat.Dense) ([]float64, error) {
	if l.Weights == nil {
		return nil, ErrNotFitted
	}
	D, err := design(X, l.Means, l.Scales)
	if err != nil {
		return nil, err
	}
	r, _ := D.Dims()
	var out mat.VecDense
	out.MulVec(D, mat.NewVecDense(len(l.Weights), l.Weights))
	pred := make([]float64, r)
	for i := range pred {
		pred[i] = out.AtVec(i)
	}
	return pred, nil
}

// ---------------------------------------------------------------------------
// Logistic regression
// ---------------------------------------------------------------------------

// LogisticRegression is a binary L2-regularized logistic classifier trained
// by batch gradient descent. Classes holds the two label values; predictions
// are returned as those values.
type LogisticRegression struct {
	C            float64   `json:"C"`
	MaxIter      int       `json:"max_iter"`
	LearningRate float64   `json:"learning_rate"`
	Tol          float64   `json:"tol"`
	Classes      []float64 `json:"classes"`
	Means        []float64 `json:"means"`
	Scales       []float64 `json:"scales"`
	Weights      []float64 `json:"weights"`
}

func newLogisticRegression(hp map[string]any) (Model, error) {
	if err := checkHP("logistic_regression", hp, "C", "max_iter", "learning_rate", "tol"); err != nil {
		return nil, err
	}
	m := &LogisticRegression{}
	var err error
	if m.C, err = floatHP(hp, "C", 1.0); err != nil {
		return nil, err
	}
	if m.MaxIter, err = intHP(hp, "max_iter", 1000); err != nil {
		return nil, err
	}
	if m.LearningRate, err = floatHP(hp, "learning_rate", 0.1); err != nil {
		return nil, err
	}
	if m.Tol, err = floatHP(hp, "tol", 1e-6); err != nil {
		return nil, err
	}
	if m.C <= 0 || m.MaxIter <= 0 || m.LearningRate <= 0 {
		return nil, errors.New("logistic_regression: C, max_iter and learning_rate must be positive")
	}
	return m, nil
}

func (m *LogisticRegression) Name() string { return "logistic_regression" }
func (m *LogisticRegression) Task() Task   { return TaskClassification }

func (m *LogisticRegression) Fit(X *mat.Dense, y []float64) error {
	if err := checkXY(X, y); err != nil {
		return err
	}
	classes := distinct(y)
	if len(classes) != 2 {
		return fmt.Errorf("logistic_regression: need exactly two classes, got %d", len(classes))
	}
	m.Classes = classes
	m.Means, m.Scales = fitScaler(X)
	D, err := design(X, m.Means, m.Scales)
	if err != nil {
		return err
	}

	r, c := D.Dims()
	labels := mat.NewVecDense(r, nil)
	for i, v := range y {
		if v == classes[1] {
			labels.SetVec(i, 1)
		}
	}

	w := mat.NewVecDense(c, nil)
	resid := mat.NewVecDense(r, nil)
	var z, grad mat.VecDense
	penalty := 1 / (m.C * float64(r))
	for iter := 0; iter < m.MaxIter; iter++ {
		z.MulVec(D, w)
		for i := 0; i < r; i++ {
			resid.SetVec(i, sigmoid(z.AtVec(i))-labels.AtVec(i))
		}
		grad.MulVec(D.T(), resid)
		grad.ScaleVec(1/float64(r), &grad)
		for j := 1; j < c; j++ {
			grad.SetVec(j, grad.AtVec(j)+penalty*w.AtVec(j))
		}
		w.AddScaledVec(w, -m.LearningRate, &grad)
		if mat.Norm(&grad, math.Inf(1)) < m.Tol {
			break
		}
	}

	m.Weights = mat.Col(nil, 0, w)
	if !finite(m.Weights) {
		return errors.New("logistic_regression: training diverged")
	}
	return nil
}

// positive returns P(class = Classes[1]) per row.
func (m *LogisticRegression) positive(X *mat.Dense) ([]float64, error) {
	if m.Weights == nil {
		return nil, ErrNotFitted
	}
	D, err := design(X, m.Means, m.Scales)
	if err != nil {
		return nil, err
	}
	r, _ := D.Dims()
	var z mat.VecDense
	z.MulVec(D, mat.NewVecDense(len(m.Weights), m.Weights))
	p := make([]float64, r)
	for i := range p {
		p[i] = sigmoid(z.AtVec(i))
	}
	return p, nil
}

func (m *LogisticRegression) Predict(X *mat.Dense) ([]float64, error) {
	p, err := m.positive(X)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(p))
	for i, v := range p {
		if v >= 0.5 {
			out[i] = m.Classes[1]
		} else {
			out[i] = m.Classes[0]
		}
	}
	return out, nil
}

// PredictProba returns the probability of the predicted class.
func (m *LogisticRegression) PredictProba(X *mat.Dense) ([]float64, error) {
	p, err := m.positive(X)
	if err != nil {
		return nil, err
	}
	for i, v := range p {
		p[i] = math.Max(v, 1-v)
	}
	return p, nil
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}

func distinct(y []float64) []float64 {
	seen := make(map[float64]bool)
	var out []float64
	for _, v := range y {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	sort.Float64s(out)
	return out
}
