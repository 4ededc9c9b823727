package features

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

// priceFrame builds n daily rows with close = 1..n and a one-point range.
func priceFrame(n int) dataframe.DataFrame {
	ts := make([]string, n)
	open := make([]float64, n)
	high := make([]float64, n)
	low := make([]float64, n)
	closes := make([]float64, n)
	volume := make([]int, n)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		ts[i] = start.AddDate(0, 0, i).Format(time.RFC3339)
		c := float64(i + 1)
		open[i], high[i], low[i], closes[i] = c, c+0.5, c-0.5, c
		volume[i] = 1000 + i
	}
	return dataframe.New(
		series.New(ts, series.String, "timestamp"),
		series.New(open, series.Float, "open"),
		series.New(high, series.Float, "high"),
		series.New(low, series.Float, "low"),
		series.New(closes, series.Float, "close"),
		series.New(volume, series.Int, "volume"),
	)
}

func hasColumn(df dataframe.DataFrame, name string) bool {
	for _, n := range df.Names() {
		if n == name {
			return true
		}
	}
	return false
}

func TestParseIndicators(t *testing.T) {
	got, err := ParseIndicators([]byte(`
indicators:
  - name: SMA
    params: {length: 3}
  - name: rsi
`))
	if err != nil {
		t.Fatalf("ParseIndicators: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Name != "sma" {
		t.Errorf("Name = %q, want lower-cased sma", got[0].Name)
	}
	if n, _ := intParam(got[0].Params, "length", 0); n != 3 {
		t.Errorf("length = %d, want 3", n)
	}

	_, err = ParseIndicators([]byte("indicators:\n  - params: {length: 3}\n"))
	if !errors.Is(err, ErrInvalidIndicators) {
		t.Errorf("missing name: err = %v, want ErrInvalidIndicators", err)
	}
}

func TestLoadIndicatorsMissingFile(t *testing.T) {
	_, err := LoadIndicators(filepath.Join(t.TempDir(), "nope.yaml"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("err = %v, want not-exist", err)
	}
}

func TestValidate(t *testing.T) {
	err := Validate([]Indicator{{Name: "sma"}, {Name: "vwap_magic"}})
	if !errors.Is(err, ErrUnknownIndicator) {
		t.Fatalf("err = %v, want ErrUnknownIndicator", err)
	}
	if !strings.Contains(err.Error(), "vwap_magic") {
		t.Errorf("error %q should name the indicator", err)
	}
	if err := Validate([]Indicator{{Name: "macd"}, {Name: "stoch"}}); err != nil {
		t.Errorf("Validate(known) = %v", err)
	}
}

func TestApplySMA(t *testing.T) {
	e := NewEngine([]Indicator{{Name: "sma", Params: map[string]any{"length": 3}}}, nil)
	out, err := e.Apply(priceFrame(10))
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if out.Nrow() != 8 {
		t.Fatalf("Nrow = %d, want 8 (two lookback rows dropped)", out.Nrow())
	}
	got := out.Col("SMA_3").Float()
	for i, v := range got {
		want := float64(i + 2)
		if math.Abs(v-want) > 1e-9 {
			t.Errorf("SMA_3[%d] = %v, want %v", i, v, want)
		}
	}
	if first := out.Col("timestamp").Records()[0]; first != "2024-01-03T00:00:00Z" {
		t.Errorf("first timestamp = %s, want 2024-01-03", first)
	}
}

func TestApplyRSIRisingSeries(t *testing.T) {
	e := NewEngine([]Indicator{{Name: "rsi", Params: map[string]any{"length": 3}}}, nil)
	out, err := e.Apply(priceFrame(10))
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if out.Nrow() != 7 {
		t.Fatalf("Nrow = %d, want 7", out.Nrow())
	}
	for i, v := range out.Col("RSI_3").Float() {
		if math.Abs(v-100) > 1e-6 {
			t.Errorf("RSI_3[%d] = %v, want 100 for a strictly rising series", i, v)
		}
	}
}

func TestApplyMultiOutputNames(t *testing.T) {
	e := NewEngine([]Indicator{
		{Name: "macd", Params: map[string]any{"fast": 3, "slow": 6, "signal": 2}},
		{Name: "bbands", Params: map[string]any{"length": 5, "std": 2.0}},
		{Name: "stoch"},
		{Name: "obv"},
	}, nil)
	out, err := e.Apply(priceFrame(40))
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	for _, name := range []string{
		"MACD_3_6_2", "MACDh_3_6_2", "MACDs_3_6_2",
		"BBL_5_2.0", "BBM_5_2.0", "BBU_5_2.0",
		"STOCHk_14_3_3", "STOCHd_14_3_3", "OBV",
	} {
		if !hasColumn(out, name) {
			t.Errorf("missing column %s in %v", name, out.Names())
		}
	}
	// stoch has the longest lookback: 14+3+3-3.
	if out.Nrow() != 40-17 {
		t.Errorf("Nrow = %d, want %d", out.Nrow(), 40-17)
	}
}

func TestApplySkipsUnknownAndFailing(t *testing.T) {
	df := priceFrame(10).Drop("volume")
	e := NewEngine([]Indicator{
		{Name: "nonexistent"},
		{Name: "obv"},
		{Name: "sma", Params: map[string]any{"length": -1}},
	}, nil)
	out, err := e.Apply(df)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if out.Ncol() != df.Ncol() {
		t.Errorf("Ncol = %d, want %d (nothing added)", out.Ncol(), df.Ncol())
	}
	if out.Nrow() != 10 {
		t.Errorf("Nrow = %d, want 10", out.Nrow())
	}
}

func TestApplyShortSeriesDropsEverything(t *testing.T) {
	e := NewEngine([]Indicator{{Name: "sma", Params: map[string]any{"length": 20}}}, nil)
	out, err := e.Apply(priceFrame(10))
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if out.Nrow() != 0 {
		t.Errorf("Nrow = %d, want 0", out.Nrow())
	}
	if !hasColumn(out, "SMA_20") {
		t.Errorf("empty result should keep its columns, got %v", out.Names())
	}
}

func TestApplyEmptyFrame(t *testing.T) {
	e := NewEngine(nil, nil)
	empty := dataframe.New(series.New([]float64{}, series.Float, "close"))
	if _, err := e.Apply(empty); !errors.Is(err, ErrEmptyFrame) {
		t.Errorf("err = %v, want ErrEmptyFrame", err)
	}
}

func TestAddTarget(t *testing.T) {
	df := dataframe.New(
		series.New([]string{"d1", "d2", "d3"}, series.String, "date"),
		series.New([]float64{100, 110, 99}, series.Float, "close"),
	)

	out, err := AddTarget(df, TargetReturn, "", "")
	if err != nil {
		t.Fatalf("AddTarget(return): %v", err)
	}
	if out.Nrow() != 2 {
		t.Fatalf("Nrow = %d, want 2", out.Nrow())
	}
	got := out.Col(DefaultTargetColumn).Float()
	want := []float64{0.1, -0.1}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-9 {
			t.Errorf("target[%d] = %v, want %v", i, got[i], want[i])
		}
	}

	out, err = AddTarget(df, TargetDirection, "up", "close")
	if err != nil {
		t.Fatalf("AddTarget(direction): %v", err)
	}
	dir := out.Col("up").Float()
	if dir[0] != 1 || dir[1] != 0 {
		t.Errorf("direction = %v, want [1 0]", dir)
	}

	if _, err := AddTarget(df, TargetReturn, "", "adjusted_close"); !errors.Is(err, ErrMissingColumn) {
		t.Errorf("missing price column: err = %v, want ErrMissingColumn", err)
	}
}

func TestParseTargetKind(t *testing.T) {
	for in, want := range map[string]TargetKind{
		"return":         TargetReturn,
		"forward_return": TargetReturn,
		"direction":      TargetDirection,
	} {
		got, err := ParseTargetKind(in)
		if err != nil || got != want {
			t.Errorf("ParseTargetKind(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseTargetKind("sideways"); err == nil {
		t.Error("ParseTargetKind(sideways) should fail")
	}
}
