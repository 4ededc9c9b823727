package model

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"gonum.org/v1/gonum/mat"
)

var (
	// ErrMissingColumns is returned when a frame lacks columns a model needs.
	ErrMissingColumns = errors.New("missing required columns")

	// ErrNoRows is returned when a frame has nothing to train or score on.
	ErrNoRows = errors.New("frame has no rows")
)

// timeKeys are the column names recognised as the row time key.
var timeKeys = []string{"timestamp", "date"}

func columnSet(df dataframe.DataFrame) map[string]series.Type {
	set := make(map[string]series.Type, df.Ncol())
	for i, name := range df.Names() {
		set[name] = df.Types()[i]
	}
	return set
}

// FeatureColumns lists the numeric columns of df in frame order, leaving out
// the target and the time key.
func FeatureColumns(df dataframe.DataFrame, target string) []string {
	var out []string
	types := df.Types()
	for i, name := range df.Names() {
		if name == target || isTimeKey(name) {
			continue
		}
		if types[i] == series.Float || types[i] == series.Int {
			out = append(out, name)
		}
	}
	return out
}

func isTimeKey(name string) bool {
	for _, k := range timeKeys {
		if name == k {
			return true
		}
	}
	return false
}

// Matrix copies the named columns of df into a dense row-major matrix.
// Missing columns are reported together; missing values are an error.
func Matrix(df dataframe.DataFrame, cols []string) (*mat.Dense, error) {
	if df.Err != nil {
		return nil, df.Err
	}
	have := columnSet(df)
	var missing []string
	for _, c := range cols {
		if _, ok := have[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(missing, ", "))
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("%w: no feature columns", ErrMissingColumns)
	}
	n := df.Nrow()
	if n == 0 {
		return nil, ErrNoRows
	}

	X := mat.NewDense(n, len(cols), nil)
	for j, c := range cols {
		vals := df.Col(c).Float()
		for i, v := range vals {
			if math.IsNaN(v) {
				return nil, fmt.Errorf("column %s row %d: missing value", c, i)
			}
			X.Set(i, j, v)
		}
	}
	return X, nil
}

// Target returns the values of column name as floats.
func Target(df dataframe.DataFrame, name string) ([]float64, error) {
	if _, ok := columnSet(df)[name]; !ok {
		return nil, fmt.Errorf("%w: target column %q not found", ErrMissingColumns, name)
	}
	y := df.Col(name).Float()
	for i, v := range y {
		if math.IsNaN(v) {
			return nil, fmt.Errorf("target %s row %d: missing value", name, i)
		}
	}
	return y, nil
}

// RowKeys returns the time key of each row, falling back to the row number
// when the frame has no time column.
func RowKeys(df dataframe.DataFrame) []string {
	have := columnSet(df)
	for _, k := range timeKeys {
		if _, ok := have[k]; ok {
			return df.Col(k).Records()
		}
	}
	keys := make([]string, df.Nrow())
	for i := range keys {
		keys[i] = strconv.Itoa(i)
	}
	return keys
}
