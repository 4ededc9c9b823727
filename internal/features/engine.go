package features

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	talib "github.com/markcheno/go-talib"
)

var (
	// ErrEmptyFrame is returned when features are requested for a frame with
	// no rows.
	ErrEmptyFrame = errors.New("cannot engineer features on an empty frame")

	// ErrMissingColumn is returned when an input column is absent.
	ErrMissingColumn = errors.New("missing input column")
)

// ---------------------------------------------------------------------------
// Indicator registry
// ---------------------------------------------------------------------------

// column is one derived output.
type column struct {
	name   string
	values []float64
}

// inputs holds the OHLCV columns of the frame being processed. A nil slice
// means the column is absent.
type inputs struct {
	open, high, low, close, volume []float64
}

func (in inputs) require(names ...string) error {
	for _, name := range names {
		var s []float64
		switch name {
		case "open":
			s = in.open
		case "high":
			s = in.high
		case "low":
			s = in.low
		case "close":
			s = in.close
		case "volume":
			s = in.volume
		}
		if s == nil {
			return fmt.Errorf("%w: %s", ErrMissingColumn, name)
		}
	}
	return nil
}

type indicatorFunc func(in inputs, params map[string]any) ([]column, error)

var registry = map[string]indicatorFunc{
	"sma":    sma,
	"ema":    ema,
	"rsi":    rsi,
	"macd":   macd,
	"bbands": bbands,
	"atr":    atr,
	"adx":    adx,
	"obv":    obv,
	"roc":    roc,
	"stoch":  stoch,
}

// mask replaces the first lookback values with NaN. talib leaves them zero.
func mask(values []float64, lookback int) []float64 {
	for i := 0; i < lookback && i < len(values); i++ {
		values[i] = math.NaN()
	}
	return values
}

func nans(n int) []float64 {
	return mask(make([]float64, n), n)
}

// ---------------------------------------------------------------------------
// Engine
// ---------------------------------------------------------------------------

// Engine appends the configured indicators to price frames.
type Engine struct {
	indicators []Indicator
	log        *slog.Logger
}

// NewEngine returns an Engine for the given indicator list.
func NewEngine(indicators []Indicator, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{indicators: indicators, log: log.With("component", "features")}
}

// Apply computes every configured indicator over df and appends the results
// as float columns. Unknown indicators and indicators that fail are logged
// and skipped. Rows with any missing value are dropped from the result.
func (e *Engine) Apply(df dataframe.DataFrame) (dataframe.DataFrame, error) {
	if df.Err != nil {
		return df, df.Err
	}
	if df.Nrow() == 0 {
		e.log.Error("cannot engineer features on an empty frame")
		return df, ErrEmptyFrame
	}

	in := readInputs(df)
	out := df
	for _, ind := range e.indicators {
		fn, ok := registry[ind.Name]
		if !ok {
			e.log.Warn("skipping unknown indicator", "indicator", ind.Name)
			continue
		}

		cols, err := fn(in, ind.Params)
		if err != nil {
			e.log.Error("failed to add indicator", "indicator", ind.Name, "error", err)
			continue
		}
		for _, c := range cols {
			out = out.Mutate(series.New(c.values, series.Float, c.name))
			if out.Err != nil {
				return out, fmt.Errorf("adding %s: %w", c.name, out.Err)
			}
		}
		e.log.Info("added indicator", "indicator", ind.Name, "params", ind.Params)
	}

	out = DropMissing(out)
	e.log.Info("engineered features", "columns", out.Ncol(), "rows", out.Nrow())
	return out, nil
}

func readInputs(df dataframe.DataFrame) inputs {
	have := make(map[string]bool, df.Ncol())
	for _, name := range df.Names() {
		have[name] = true
	}
	get := func(name string) []float64 {
		if !have[name] {
			return nil
		}
		return df.Col(name).Float()
	}
	return inputs{
		open:   get("open"),
		high:   get("high"),
		low:    get("low"),
		close:  get("close"),
		volume: get("volume"),
	}
}

// DropMissing removes every row holding a NaN or NA value in any column.
func DropMissing(df dataframe.DataFrame) dataframe.DataFrame {
	n := df.Nrow()
	bad := make([]bool, n)
	for _, name := range df.Names() {
		col := df.Col(name)
		na := col.IsNaN()
		var vals []float64
		if col.Type() == series.Float {
			vals = col.Float()
		}
		for i := 0; i < n; i++ {
			if na[i] || (vals != nil && math.IsNaN(vals[i])) {
				bad[i] = true
			}
		}
	}

	keep := make([]int, 0, n)
	for i, b := range bad {
		if !b {
			keep = append(keep, i)
		}
	}
	switch len(keep) {
	case n:
		return df
	case 0:
		return emptyLike(df)
	}
	return df.Subset(keep)
}

// emptyLike returns a zero-row frame with the same columns and types as df.
func emptyLike(df dataframe.DataFrame) dataframe.DataFrame {
	cols := make([]series.Series, 0, df.Ncol())
	for _, name := range df.Names() {
		cols = append(cols, series.New([]string{}, df.Col(name).Type(), name))
	}
	return dataframe.New(cols...)
}

// ---------------------------------------------------------------------------
// Indicators
// ---------------------------------------------------------------------------

func sma(in inputs, p map[string]any) ([]column, error) {
	length, err := intParam(p, "length", 10)
	if err != nil {
		return nil, err
	}
	if err := in.require("close"); err != nil {
		return nil, err
	}
	name := fmt.Sprintf("SMA_%d", length)
	return single(name, in.close, length-1, func() []float64 {
		return talib.Sma(in.close, length)
	}), nil
}

func ema(in inputs, p map[string]any) ([]column, error) {
	length, err := intParam(p, "length", 10)
	if err != nil {
		return nil, err
	}
	if err := in.require("close"); err != nil {
		return nil, err
	}
	name := fmt.Sprintf("EMA_%d", length)
	return single(name, in.close, length-1, func() []float64 {
		return talib.Ema(in.close, length)
	}), nil
}

func rsi(in inputs, p map[string]any) ([]column, error) {
	length, err := intParam(p, "length", 14)
	if err != nil {
		return nil, err
	}
	if err := in.require("close"); err != nil {
		return nil, err
	}
	name := fmt.Sprintf("RSI_%d", length)
	return single(name, in.close, length, func() []float64 {
		return talib.Rsi(in.close, length)
	}), nil
}

func roc(in inputs, p map[string]any) ([]column, error) {
	length, err := intParam(p, "length", 10)
	if err != nil {
		return nil, err
	}
	if err := in.require("close"); err != nil {
		return nil, err
	}
	name := fmt.Sprintf("ROC_%d", length)
	return single(name, in.close, length, func() []float64 {
		return talib.Roc(in.close, length)
	}), nil
}

func atr(in inputs, p map[string]any) ([]column, error) {
	length, err := intParam(p, "length", 14)
	if err != nil {
		return nil, err
	}
	if err := in.require("high", "low", "close"); err != nil {
		return nil, err
	}
	name := fmt.Sprintf("ATRr_%d", length)
	return single(name, in.close, length, func() []float64 {
		return talib.Atr(in.high, in.low, in.close, length)
	}), nil
}

func adx(in inputs, p map[string]any) ([]column, error) {
	length, err := intParam(p, "length", 14)
	if err != nil {
		return nil, err
	}
	if err := in.require("high", "low", "close"); err != nil {
		return nil, err
	}
	name := fmt.Sprintf("ADX_%d", length)
	return single(name, in.close, 2*length-1, func() []float64 {
		return talib.Adx(in.high, in.low, in.close, length)
	}), nil
}

func obv(in inputs, _ map[string]any) ([]column, error) {
	if err := in.require("close", "volume"); err != nil {
		return nil, err
	}
	return single("OBV", in.close, 0, func() []float64 {
		return talib.Obv(in.close, in.volume)
	}), nil
}

func macd(in inputs, p map[string]any) ([]column, error) {
	fast, err := intParam(p, "fast", 12)
	if err != nil {
		return nil, err
	}
	slow, err := intParam(p, "slow", 26)
	if err != nil {
		return nil, err
	}
	signal, err := intParam(p, "signal", 9)
	if err != nil {
		return nil, err
	}
	if fast >= slow {
		return nil, fmt.Errorf("macd: fast (%d) must be shorter than slow (%d)", fast, slow)
	}
	if err := in.require("close"); err != nil {
		return nil, err
	}

	suffix := fmt.Sprintf("%d_%d_%d", fast, slow, signal)
	names := []string{"MACD_" + suffix, "MACDh_" + suffix, "MACDs_" + suffix}
	lookback := slow + signal - 2
	n := len(in.close)
	if n <= lookback {
		return allMissing(names, n), nil
	}
	line, sig, hist := talib.Macd(in.close, fast, slow, signal)
	return []column{
		{names[0], mask(line, lookback)},
		{names[1], mask(hist, lookback)},
		{names[2], mask(sig, lookback)},
	}, nil
}

func bbands(in inputs, p map[string]any) ([]column, error) {
	length, err := intParam(p, "length", 5)
	if err != nil {
		return nil, err
	}
	std, err := floatParam(p, "std", 2)
	if err != nil {
		return nil, err
	}
	if err := in.require("close"); err != nil {
		return nil, err
	}

	suffix := fmt.Sprintf("%d_%.1f", length, std)
	names := []string{"BBL_" + suffix, "BBM_" + suffix, "BBU_" + suffix}
	lookback := length - 1
	n := len(in.close)
	if n <= lookback {
		return allMissing(names, n), nil
	}
	upper, middle, lower := talib.BBands(in.close, length, std, std, talib.SMA)
	return []column{
		{names[0], mask(lower, lookback)},
		{names[1], mask(middle, lookback)},
		{names[2], mask(upper, lookback)},
	}, nil
}

func stoch(in inputs, p map[string]any) ([]column, error) {
	k, err := intParam(p, "k", 14)
	if err != nil {
		return nil, err
	}
	d, err := intParam(p, "d", 3)
	if err != nil {
		return nil, err
	}
	smoothK, err := intParam(p, "smooth_k", 3)
	if err != nil {
		return nil, err
	}
	if err := in.require("high", "low", "close"); err != nil {
		return nil, err
	}

	suffix := fmt.Sprintf("%d_%d_%d", k, d, smoothK)
	names := []string{"STOCHk_" + suffix, "STOCHd_" + suffix}
	lookback := k + smoothK + d - 3
	n := len(in.close)
	if n <= lookback {
		return allMissing(names, n), nil
	}
	slowK, slowD := talib.Stoch(in.high, in.low, in.close, k, smoothK, talib.SMA, d, talib.SMA)
	return []column{
		{names[0], mask(slowK, lookback)},
		{names[1], mask(slowD, lookback)},
	}, nil
}

// single runs a one-output indicator, skipping the computation entirely when
// the series is shorter than the lookback.
func single(name string, ref []float64, lookback int, compute func() []float64) []column {
	n := len(ref)
	if n <= lookback {
		return allMissing([]string{name}, n)
	}
	return []column{{name, mask(compute(), lookback)}}
}

func allMissing(names []string, n int) []column {
	cols := make([]column, len(names))
	for i, name := range names {
		cols[i] = column{name, nans(n)}
	}
	return cols
}
