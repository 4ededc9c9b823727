package features

import (
	"fmt"
	"math"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

// TargetKind selects how the prediction target is derived.
type TargetKind string

const (
	// TargetReturn is the next-row fractional change of the price column.
	TargetReturn TargetKind = "return"
	// TargetDirection is 1 when the next-row return is positive, else 0.
	TargetDirection TargetKind = "direction"
)

// DefaultTargetColumn is the column name used for generated targets.
const DefaultTargetColumn = "target"

// ParseTargetKind maps a flag value onto a TargetKind.
func ParseTargetKind(s string) (TargetKind, error) {
	switch TargetKind(s) {
	case TargetReturn, "forward_return":
		return TargetReturn, nil
	case TargetDirection:
		return TargetDirection, nil
	}
	return "", fmt.Errorf("unsupported target kind %q (want return or direction)", s)
}

// AddTarget appends a forward-looking target column computed from
// priceColumn. The last row has no successor and is dropped along with any
// other row holding a missing value.
func AddTarget(df dataframe.DataFrame, kind TargetKind, name, priceColumn string) (dataframe.DataFrame, error) {
	if df.Err != nil {
		return df, df.Err
	}
	if name == "" {
		name = DefaultTargetColumn
	}
	if priceColumn == "" {
		priceColumn = "close"
	}
	found := false
	for _, n := range df.Names() {
		if n == priceColumn {
			found = true
			break
		}
	}
	if !found {
		return df, fmt.Errorf("%w: %s", ErrMissingColumn, priceColumn)
	}

	prices := df.Col(priceColumn).Float()
	target := make([]float64, len(prices))
	for i := range prices {
		if i == len(prices)-1 || prices[i] == 0 {
			target[i] = math.NaN()
			continue
		}
		ret := prices[i+1]/prices[i] - 1
		switch kind {
		case TargetReturn:
			target[i] = ret
		case TargetDirection:
			switch {
			case math.IsNaN(ret):
				target[i] = math.NaN()
			case ret > 0:
				target[i] = 1
			default:
				target[i] = 0
			}
		default:
			return df, fmt.Errorf("unsupported target kind %q", kind)
		}
	}

	out := df.Mutate(series.New(target, series.Float, name))
	if out.Err != nil {
		return out, out.Err
	}
	return DropMissing(out), nil
}
