package quote

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/go-gota/gota/dataframe"
	"golang.org/x/time/rate"

	"marketml/internal/util"
)

const alpacaName = "alpaca"

// compactBars is the number of bars kept for compact requests.
const compactBars = 100

// Alpaca fetches bars from the Alpaca market-data API.
type Alpaca struct {
	client  *marketdata.Client
	limiter *rate.Limiter
	log     *slog.Logger
	now     func() time.Time

	// Retry governs retries of throttled and transport failures.
	Retry util.RetryPolicy
}

var _ Provider = (*Alpaca)(nil)

// NewAlpaca creates an Alpaca provider. An empty dataURL uses the SDK
// default endpoint.
func NewAlpaca(apiKey, apiSecret, dataURL string, perMinute int, log *slog.Logger) *Alpaca {
	opts := marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
	if dataURL != "" {
		opts.BaseURL = dataURL
	}
	if log == nil {
		log = slog.Default()
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if perMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1)
	}

	return &Alpaca{
		client:  marketdata.NewClient(opts),
		limiter: limiter,
		log:     log.With("provider", alpacaName),
		now:     time.Now,
		Retry: util.RetryPolicy{
			MaxAttempts: 3,
			Delay:       5 * time.Second,
			Backoff:     2,
			Retryable:   Retryable,
		},
	}
}

// Name returns the provider identifier.
func (a *Alpaca) Name() string { return alpacaName }

// Fetch downloads bars for req. Daily bars are split and dividend adjusted,
// so adjusted_close equals close.
func (a *Alpaca) Fetch(ctx context.Context, req Request) (dataframe.DataFrame, error) {
	req, err := req.Normalized()
	if err != nil {
		return dataframe.DataFrame{}, err
	}
	tf, err := timeFrame(req)
	if err != nil {
		return dataframe.DataFrame{}, err
	}
	start, end := window(req, a.now())

	var bars []marketdata.Bar
	err = a.Retry.Do(ctx, func() error {
		if err := a.limiter.Wait(ctx); err != nil {
			return err
		}
		var err error
		bars, err = a.client.GetBars(strings.ToUpper(req.Symbol), marketdata.GetBarsRequest{
			TimeFrame:  tf,
			Start:      start,
			End:        end,
			Adjustment: marketdata.All,
		})
		if err != nil {
			// The SDK reports throttling only through the status text.
			if strings.Contains(err.Error(), "429") {
				return fmt.Errorf("%w: %v", ErrRateLimited, err)
			}
			return fmt.Errorf("GetBars: %w", err)
		}
		return nil
	})
	if err != nil {
		return dataframe.DataFrame{}, err
	}

	if req.OutputSize == OutputCompact && len(bars) > compactBars {
		bars = bars[len(bars)-compactBars:]
	}

	out := make([]Bar, len(bars))
	for i, b := range bars {
		out[i] = Bar{
			Timestamp:        b.Timestamp,
			Open:             b.Open,
			High:             b.High,
			Low:              b.Low,
			Close:            b.Close,
			AdjustedClose:    b.Close,
			Volume:           int64(b.Volume),
			SplitCoefficient: 1,
		}
	}
	a.log.Info("fetched series", "symbol", req.Symbol, "mode", req.Mode, "rows", len(out))
	return Frame(out, req.Mode == ModeDaily), nil
}

// timeFrame maps a request to an Alpaca bar time frame. Intraday intervals
// use the "<n>min" form.
func timeFrame(req Request) (marketdata.TimeFrame, error) {
	if req.Mode == ModeDaily {
		return marketdata.OneDay, nil
	}
	n, err := strconv.Atoi(strings.TrimSuffix(req.Interval, "min"))
	if err != nil || n <= 0 || !strings.HasSuffix(req.Interval, "min") {
		return marketdata.TimeFrame{}, fmt.Errorf("%w: interval %q", ErrUnsupportedMode, req.Interval)
	}
	return marketdata.NewTimeFrame(n, marketdata.Min), nil
}

// window picks a start time that yields enough bars for the output size.
func window(req Request, now time.Time) (time.Time, time.Time) {
	var back time.Duration
	switch {
	case req.Mode == ModeDaily && req.OutputSize == OutputFull:
		back = 20 * 365 * 24 * time.Hour
	case req.Mode == ModeDaily:
		back = 160 * 24 * time.Hour
	case req.OutputSize == OutputFull:
		back = 30 * 24 * time.Hour
	default:
		back = 5 * 24 * time.Hour
	}
	return now.Add(-back), now
}
