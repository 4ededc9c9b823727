// Package ingest loads full daily price histories into the dataset cache and
// the stock_prices table.
package ingest

import (
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"marketml/internal/domain"
	"marketml/internal/quote"
)

// Normalize converts a raw daily adjusted payload into flat price rows
// sorted by date. Rows with a bad date or a missing or unparsable field are
// dropped and logged.
func Normalize(symbol string, raw quote.RawSeries, now time.Time, log *slog.Logger) []domain.StockPrice {
	if log == nil {
		log = slog.Default()
	}
	symbol = strings.ToUpper(symbol)
	ingestedAt := now.UTC().Format(time.RFC3339)

	rows := make([]domain.StockPrice, 0, len(raw))
	for date, fields := range raw {
		row, err := normalizeRow(symbol, date, fields)
		if err != nil {
			log.Error("data normalization error", "symbol", symbol, "date", date, "error", err)
			continue
		}
		row.IngestedAt = ingestedAt
		rows = append(rows, row)
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].Date < rows[j].Date })
	return rows
}

func normalizeRow(symbol, date string, fields map[string]string) (domain.StockPrice, error) {
	day, err := time.ParseInLocation("2006-01-02", date, time.UTC)
	if err != nil {
		return domain.StockPrice{}, err
	}
	f := quote.Fields(fields)

	num := func(name string) (float64, error) {
		v, ok := f[name]
		if !ok {
			return 0, fmt.Errorf("missing %s", name)
		}
		return strconv.ParseFloat(v, 64)
	}

	p := domain.StockPrice{
		Symbol: symbol,
		Date:   day.Format(time.RFC3339),
		Source: domain.SourceHistorical,
	}
	if p.Open, err = num("open"); err != nil {
		return p, err
	}
	if p.High, err = num("high"); err != nil {
		return p, err
	}
	if p.Low, err = num("low"); err != nil {
		return p, err
	}
	if p.Close, err = num("close"); err != nil {
		return p, err
	}
	if p.AdjustedClose, err = num("adjusted_close"); err != nil {
		return p, err
	}
	v, ok := f["volume"]
	if !ok {
		return p, fmt.Errorf("missing volume")
	}
	if p.Volume, err = strconv.ParseInt(v, 10, 64); err != nil {
		return p, err
	}
	return p, nil
}

// PricesFrame lays out normalized rows as a frame keyed by the date column.
func PricesFrame(rows []domain.StockPrice) dataframe.DataFrame {
	n := len(rows)
	date, sym, src, ing := make([]string, n), make([]string, n), make([]string, n), make([]string, n)
	open, high, low, cls, adj := make([]float64, n), make([]float64, n), make([]float64, n), make([]float64, n), make([]float64, n)
	vol := make([]int, n)
	for i, r := range rows {
		date[i], sym[i], src[i], ing[i] = r.Date, r.Symbol, r.Source, r.IngestedAt
		open[i], high[i], low[i], cls[i], adj[i] = r.Open, r.High, r.Low, r.Close, r.AdjustedClose
		vol[i] = int(r.Volume)
	}
	return dataframe.New(
		series.New(date, series.String, "date"),
		series.New(sym, series.String, "symbol"),
		series.New(open, series.Float, "open"),
		series.New(high, series.Float, "high"),
		series.New(low, series.Float, "low"),
		series.New(cls, series.Float, "close"),
		series.New(adj, series.Float, "adjusted_close"),
		series.New(vol, series.Int, "volume"),
		series.New(src, series.String, "source"),
		series.New(ing, series.String, "ingested_at"),
	)
}

// Records converts rows into sink records.
func Records(rows []domain.StockPrice) []domain.Record {
	out := make([]domain.Record, len(rows))
	for i, r := range rows {
		out[i] = r.Record()
	}
	return out
}

// FromFrame converts a fetched quote frame into price rows tagged with
// source. The time key is read from "timestamp" or "date". Frames without
// adjusted_close use close in its place.
func FromFrame(symbol, source string, df dataframe.DataFrame, now time.Time) ([]domain.StockPrice, error) {
	if df.Err != nil {
		return nil, df.Err
	}
	have := make(map[string]bool, df.Ncol())
	for _, name := range df.Names() {
		have[name] = true
	}
	timeCol := ""
	for _, c := range []string{"timestamp", "date"} {
		if have[c] {
			timeCol = c
			break
		}
	}
	if timeCol == "" {
		return nil, fmt.Errorf("frame has no timestamp or date column")
	}
	for _, c := range []string{"open", "high", "low", "close", "volume"} {
		if !have[c] {
			return nil, fmt.Errorf("frame is missing column %s", c)
		}
	}

	dates := df.Col(timeCol).Records()
	open, high, low, cls := df.Col("open").Float(), df.Col("high").Float(), df.Col("low").Float(), df.Col("close").Float()
	adj := cls
	if have["adjusted_close"] {
		adj = df.Col("adjusted_close").Float()
	}
	vol := df.Col("volume").Float()

	symbol = strings.ToUpper(symbol)
	ingestedAt := now.UTC().Format(time.RFC3339)
	rows := make([]domain.StockPrice, len(dates))
	for i := range dates {
		rows[i] = domain.StockPrice{
			Symbol:        symbol,
			Date:          dates[i],
			Open:          open[i],
			High:          high[i],
			Low:           low[i],
			Close:         cls[i],
			AdjustedClose: adj[i],
			Volume:        int64(vol[i]),
			Source:        source,
			IngestedAt:    ingestedAt,
		}
	}
	return rows, nil
}
