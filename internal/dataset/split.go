package dataset

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/go-gota/gota/dataframe"
)

type splitOptions struct {
	shuffle bool
	seed    int64
}

// SplitOption configures Split.
type SplitOption func(*splitOptions)

// Shuffle permutes rows with a seeded generator before cutting.
func Shuffle(seed int64) SplitOption {
	return func(o *splitOptions) {
		o.shuffle = true
		o.seed = seed
	}
}

// ShuffleRandom permutes rows with a generator seeded from the clock. Use it
// when the split need not be reproducible.
func ShuffleRandom() SplitOption {
	return Shuffle(time.Now().UnixNano())
}

// Split cuts df into train and test frames. The first floor(n*(1-f)) rows go
// to train and the remainder to test, preserving order unless Shuffle is
// given. testFraction must lie strictly between 0 and 1.
func Split(df dataframe.DataFrame, testFraction float64, opts ...SplitOption) (train, test dataframe.DataFrame, err error) {
	if math.IsNaN(testFraction) || testFraction <= 0 || testFraction >= 1 {
		return dataframe.DataFrame{}, dataframe.DataFrame{}, fmt.Errorf("%w: got %v", ErrInvalidFraction, testFraction)
	}
	if df.Err != nil {
		return dataframe.DataFrame{}, dataframe.DataFrame{}, df.Err
	}

	var o splitOptions
	for _, opt := range opts {
		opt(&o)
	}

	n := df.Nrow()
	order := make([]int, n)
	if o.shuffle {
		order = rand.New(rand.NewSource(o.seed)).Perm(n)
	} else {
		for i := range order {
			order[i] = i
		}
	}

	cut := int(math.Floor(float64(n) * (1 - testFraction)))
	train = df.Subset(order[:cut])
	test = df.Subset(order[cut:])
	if train.Err != nil {
		return dataframe.DataFrame{}, dataframe.DataFrame{}, train.Err
	}
	if test.Err != nil {
		return dataframe.DataFrame{}, dataframe.DataFrame{}, test.Err
	}
	return train, test, nil
}
