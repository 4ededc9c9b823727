package quote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-gota/gota/dataframe"
	"golang.org/x/time/rate"

	"marketml/internal/util"
)

const alphaVantageName = "alphavantage"

// RawSeries is the per-timestamp payload as returned by Alpha Vantage,
// keyed by date and then by field name ("1. open", "5. adjusted close").
type RawSeries map[string]map[string]string

// AlphaVantage is a client for the Alpha Vantage time-series API.
type AlphaVantage struct {
	apiKey  string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	log     *slog.Logger

	// Retry governs retries of throttled and transport failures.
	Retry util.RetryPolicy
}

var _ Provider = (*AlphaVantage)(nil)

// NewAlphaVantage creates a client allowing perMinute requests per minute.
// A non-positive perMinute disables client-side throttling.
func NewAlphaVantage(apiKey, baseURL string, perMinute int, log *slog.Logger) *AlphaVantage {
	if log == nil {
		log = slog.Default()
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if perMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1)
	}
	return &AlphaVantage{
		apiKey:  apiKey,
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
		limiter: limiter,
		log:     log.With("provider", alphaVantageName),
		Retry: util.RetryPolicy{
			MaxAttempts: 3,
			Delay:       20 * time.Second,
			Retryable:   Retryable,
		},
	}
}

// Retryable reports whether err is a throttling or transport failure.
// Explicit API errors and malformed payloads are final.
func Retryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) || errors.Is(err, ErrMalformedResponse) || errors.Is(err, ErrUnsupportedMode) {
		return false
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// Name returns the provider identifier.
func (c *AlphaVantage) Name() string { return alphaVantageName }

// Fetch downloads the series described by req and returns it as a frame.
func (c *AlphaVantage) Fetch(ctx context.Context, req Request) (dataframe.DataFrame, error) {
	req, err := req.Normalized()
	if err != nil {
		return dataframe.DataFrame{}, err
	}

	raw, err := c.series(ctx, req)
	if err != nil {
		return dataframe.DataFrame{}, err
	}

	layout := "2006-01-02"
	if req.Mode == ModeIntraday {
		layout = "2006-01-02 15:04:05"
	}

	bars := make([]Bar, 0, len(raw))
	for stamp, fields := range raw {
		b, err := parseAlphaVantageBar(stamp, layout, fields)
		if err != nil {
			return dataframe.DataFrame{}, fmt.Errorf("%w: %s: %v", ErrMalformedResponse, stamp, err)
		}
		bars = append(bars, b)
	}
	c.log.Info("fetched series", "symbol", req.Symbol, "mode", req.Mode, "rows", len(bars))
	return Frame(bars, req.Mode == ModeDaily), nil
}

// DailyAdjustedRaw returns the raw daily adjusted payload for symbol, for
// callers that normalize rows themselves.
func (c *AlphaVantage) DailyAdjustedRaw(ctx context.Context, symbol, outputSize string) (RawSeries, error) {
	return c.series(ctx, Request{Symbol: symbol, Mode: ModeDaily, OutputSize: outputSize})
}

func (c *AlphaVantage) series(ctx context.Context, req Request) (RawSeries, error) {
	req, err := req.Normalized()
	if err != nil {
		return nil, err
	}

	var out RawSeries
	err = c.Retry.Do(ctx, func() error {
		var err error
		out, err = c.fetchOnce(ctx, req)
		if err != nil && Retryable(err) {
			c.log.Warn("request failed, will retry", "symbol", req.Symbol, "error", err)
		}
		return err
	})
	return out, err
}

func (c *AlphaVantage) fetchOnce(ctx context.Context, req Request) (RawSeries, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("symbol", req.Symbol)
	params.Set("outputsize", req.OutputSize)
	params.Set("datatype", "json")
	params.Set("apikey", c.apiKey)
	seriesKey := "Time Series (Daily)"
	if req.Mode == ModeIntraday {
		params.Set("function", "TIME_SERIES_INTRADAY")
		params.Set("interval", req.Interval)
		seriesKey = fmt.Sprintf("Time Series (%s)", req.Interval)
	} else {
		params.Set("function", "TIME_SERIES_DAILY_ADJUSTED")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("alpha vantage request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, ErrRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("alpha vantage returned status %d", resp.StatusCode)
	}

	var payload map[string]json.RawMessage
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	for _, k := range []string{"Note", "Information"} {
		if msg, ok := payload[k]; ok {
			return nil, fmt.Errorf("%w: %s", ErrRateLimited, unquote(msg))
		}
	}
	if msg, ok := payload["Error Message"]; ok {
		return nil, &APIError{Provider: alphaVantageName, Message: unquote(msg)}
	}

	rawSeries, ok := payload[seriesKey]
	if !ok {
		return nil, fmt.Errorf("%w: missing %q", ErrMalformedResponse, seriesKey)
	}
	var out RawSeries
	if err := json.Unmarshal(rawSeries, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return out, nil
}

func unquote(msg json.RawMessage) string {
	var s string
	if err := json.Unmarshal(msg, &s); err != nil {
		return string(msg)
	}
	return s
}

// FieldName maps an Alpha Vantage field such as "5. adjusted close" to its
// column name "adjusted_close".
func FieldName(field string) string {
	switch field {
	case "1. open":
		return "open"
	case "2. high":
		return "high"
	case "3. low":
		return "low"
	case "4. close":
		return "close"
	case "5. adjusted close":
		return "adjusted_close"
	case "5. volume", "6. volume":
		return "volume"
	case "7. dividend amount":
		return "dividend_amount"
	case "8. split coefficient":
		return "split_coefficient"
	}
	return ""
}

// Fields renames the raw fields of one row to column names, dropping
// unknown fields.
func Fields(raw map[string]string) map[string]string {
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		if name := FieldName(k); name != "" {
			out[name] = v
		}
	}
	return out
}

func parseAlphaVantageBar(stamp, layout string, raw map[string]string) (Bar, error) {
	ts, err := time.ParseInLocation(layout, stamp, time.UTC)
	if err != nil {
		return Bar{}, err
	}
	f := Fields(raw)

	b := Bar{Timestamp: ts}
	if b.Open, err = parseFloat(f, "open"); err != nil {
		return Bar{}, err
	}
	if b.High, err = parseFloat(f, "high"); err != nil {
		return Bar{}, err
	}
	if b.Low, err = parseFloat(f, "low"); err != nil {
		return Bar{}, err
	}
	if b.Close, err = parseFloat(f, "close"); err != nil {
		return Bar{}, err
	}
	if v, ok := f["volume"]; ok {
		n, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return Bar{}, fmt.Errorf("volume: %w", err)
		}
		b.Volume = int64(n)
	}
	b.AdjustedClose = b.Close
	if _, ok := f["adjusted_close"]; ok {
		if b.AdjustedClose, err = parseFloat(f, "adjusted_close"); err != nil {
			return Bar{}, err
		}
	}
	if _, ok := f["dividend_amount"]; ok {
		b.DividendAmount, _ = parseFloat(f, "dividend_amount")
	}
	b.SplitCoefficient = 1
	if _, ok := f["split_coefficient"]; ok {
		b.SplitCoefficient, _ = parseFloat(f, "split_coefficient")
	}
	return b, nil
}
