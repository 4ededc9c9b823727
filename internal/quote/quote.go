// Package quote fetches OHLCV time series from market-data providers and
// returns them as frames ready for the dataset cache.
package quote

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

// Modes accepted by every provider.
const (
	ModeIntraday = "intraday"
	ModeDaily    = "daily"
)

// Output sizes. Compact returns roughly the latest 100 bars.
const (
	OutputCompact = "compact"
	OutputFull    = "full"
)

// DefaultInterval is used for intraday requests without an interval.
const DefaultInterval = "5min"

var (
	// ErrRateLimited means the provider throttled the request. It is the
	// only provider error worth retrying.
	ErrRateLimited = errors.New("quote: rate limited")

	// ErrMalformedResponse means the payload lacked the expected series.
	ErrMalformedResponse = errors.New("quote: malformed response")

	// ErrUnsupportedMode is returned for modes other than intraday or daily.
	ErrUnsupportedMode = errors.New("quote: unsupported mode")
)

// APIError is an explicit error reported by the provider.
type APIError struct {
	Provider string
	Message  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s api error: %s", e.Provider, e.Message)
}

// Request selects the series to fetch.
type Request struct {
	Symbol     string
	Mode       string
	Interval   string
	OutputSize string
}

// Normalized fills request defaults.
func (r Request) Normalized() (Request, error) {
	if r.Symbol == "" {
		return r, errors.New("quote: symbol is required")
	}
	if r.Mode == "" {
		r.Mode = ModeDaily
	}
	switch r.Mode {
	case ModeIntraday:
		if r.Interval == "" {
			r.Interval = DefaultInterval
		}
	case ModeDaily:
		r.Interval = ""
	default:
		return r, fmt.Errorf("%w: %q", ErrUnsupportedMode, r.Mode)
	}
	if r.OutputSize == "" {
		r.OutputSize = OutputCompact
	}
	return r, nil
}

// Provider fetches a time series for one symbol.
type Provider interface {
	Name() string
	Fetch(ctx context.Context, req Request) (dataframe.DataFrame, error)
}

// ---------------------------------------------------------------------------
// Bar frames
// ---------------------------------------------------------------------------

// Bar is one OHLCV observation. Adjusted fields are zero when the provider
// does not report them.
type Bar struct {
	Timestamp        time.Time
	Open             float64
	High             float64
	Low              float64
	Close            float64
	AdjustedClose    float64
	Volume           int64
	DividendAmount   float64
	SplitCoefficient float64
}

// Frame converts bars into a frame sorted by timestamp. The adjusted
// columns are included only when adjusted is set.
func Frame(bars []Bar, adjusted bool) dataframe.DataFrame {
	sorted := make([]Bar, len(bars))
	copy(sorted, bars)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	n := len(sorted)
	ts := make([]string, n)
	open, high, low, cls := make([]float64, n), make([]float64, n), make([]float64, n), make([]float64, n)
	adj, div, split := make([]float64, n), make([]float64, n), make([]float64, n)
	vol := make([]int, n)
	for i, b := range sorted {
		ts[i] = b.Timestamp.UTC().Format(time.RFC3339)
		open[i], high[i], low[i], cls[i] = b.Open, b.High, b.Low, b.Close
		adj[i], div[i], split[i] = b.AdjustedClose, b.DividendAmount, b.SplitCoefficient
		vol[i] = int(b.Volume)
	}

	cols := []series.Series{
		series.New(ts, series.String, "timestamp"),
		series.New(open, series.Float, "open"),
		series.New(high, series.Float, "high"),
		series.New(low, series.Float, "low"),
		series.New(cls, series.Float, "close"),
	}
	if adjusted {
		cols = append(cols, series.New(adj, series.Float, "adjusted_close"))
	}
	cols = append(cols, series.New(vol, series.Int, "volume"))
	if adjusted {
		cols = append(cols,
			series.New(div, series.Float, "dividend_amount"),
			series.New(split, series.Float, "split_coefficient"),
		)
	}
	return dataframe.New(cols...)
}

func parseFloat(fields map[string]string, key string) (float64, error) {
	v, ok := fields[key]
	if !ok {
		return 0, fmt.Errorf("missing %q", key)
	}
	return strconv.ParseFloat(v, 64)
}
