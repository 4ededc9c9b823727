package dataset

import (
	"errors"
	"reflect"
	"sort"
	"testing"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

func rangeFrame(n int) dataframe.DataFrame {
	vals := make([]int, n)
	for i := range vals {
		vals[i] = i
	}
	return dataframe.New(series.New(vals, series.Int, "idx"))
}

func ints(t *testing.T, df dataframe.DataFrame) []int {
	t.Helper()
	v, err := df.Col("idx").Int()
	if err != nil {
		t.Fatalf("reading idx: %v", err)
	}
	return v
}

func TestSplitChronological(t *testing.T) {
	train, test, err := Split(rangeFrame(10), 0.2)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if got, want := ints(t, train), []int{0, 1, 2, 3, 4, 5, 6, 7}; !reflect.DeepEqual(got, want) {
		t.Errorf("train = %v, want %v", got, want)
	}
	if got, want := ints(t, test), []int{8, 9}; !reflect.DeepEqual(got, want) {
		t.Errorf("test = %v, want %v", got, want)
	}
}

func TestSplitInvalidFraction(t *testing.T) {
	for _, f := range []float64{0, 1, -0.1, 1.5} {
		if _, _, err := Split(rangeFrame(10), f); !errors.Is(err, ErrInvalidFraction) {
			t.Errorf("Split(f=%v) error = %v, want ErrInvalidFraction", f, err)
		}
	}
}

func TestSplitShuffleDeterministic(t *testing.T) {
	df := rangeFrame(20)

	train1, test1, err := Split(df, 0.25, Shuffle(42))
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	train2, test2, err := Split(df, 0.25, Shuffle(42))
	if err != nil {
		t.Fatalf("Split: %v", err)
	}

	if !reflect.DeepEqual(ints(t, train1), ints(t, train2)) || !reflect.DeepEqual(ints(t, test1), ints(t, test2)) {
		t.Error("same seed should give the same split")
	}
	if train1.Nrow() != 15 || test1.Nrow() != 5 {
		t.Errorf("sizes = %d/%d, want 15/5", train1.Nrow(), test1.Nrow())
	}

	all := append(ints(t, train1), ints(t, test1)...)
	sort.Ints(all)
	for i, v := range all {
		if v != i {
			t.Fatalf("shuffled split lost or duplicated rows: %v", all)
		}
	}
}

func TestSplitShuffleRandom(t *testing.T) {
	train, test, err := Split(rangeFrame(10), 0.2, ShuffleRandom())
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if train.Nrow() != 8 || test.Nrow() != 2 {
		t.Errorf("sizes = %d/%d, want 8/2", train.Nrow(), test.Nrow())
	}
	all := append(ints(t, train), ints(t, test)...)
	sort.Ints(all)
	if !reflect.DeepEqual(all, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}) {
		t.Errorf("shuffled split rows = %v", all)
	}
}
