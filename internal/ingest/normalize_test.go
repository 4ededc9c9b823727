package ingest

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"marketml/internal/quote"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func rawDay(open, high, low, close, adj, vol string) map[string]string {
	return map[string]string{
		"1. open":              open,
		"2. high":              high,
		"3. low":               low,
		"4. close":             close,
		"5. adjusted close":    adj,
		"6. volume":            vol,
		"7. dividend amount":   "0.0000",
		"8. split coefficient": "1.0",
	}
}

func TestNormalize(t *testing.T) {
	raw := quote.RawSeries{
		"2024-07-25": rawDay("201.00", "206.00", "199.00", "203.00", "203.00", "16000000"),
		"2024-07-24": rawDay("200.00", "205.00", "198.00", "202.00", "202.00", "15000000"),
	}
	now := time.Date(2024, 7, 26, 12, 0, 0, 0, time.FixedZone("EST", -5*3600))

	rows := Normalize("test", raw, now, quietLogger())
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}

	first := rows[0]
	if first.Symbol != "TEST" {
		t.Errorf("Symbol = %q, want TEST", first.Symbol)
	}
	if first.Date != "2024-07-24T00:00:00Z" {
		t.Errorf("Date = %q, want 2024-07-24T00:00:00Z", first.Date)
	}
	if rows[1].Date != "2024-07-25T00:00:00Z" {
		t.Errorf("rows not sorted by date: second Date = %q", rows[1].Date)
	}
	if first.Open != 200.00 {
		t.Errorf("Open = %v, want 200", first.Open)
	}
	if first.AdjustedClose != 202.00 {
		t.Errorf("AdjustedClose = %v, want 202", first.AdjustedClose)
	}
	if first.Volume != 15000000 {
		t.Errorf("Volume = %d, want 15000000", first.Volume)
	}
	if first.Source != "historical" {
		t.Errorf("Source = %q, want historical", first.Source)
	}
	if first.IngestedAt != "2024-07-26T17:00:00Z" {
		t.Errorf("IngestedAt = %q, want UTC timestamp", first.IngestedAt)
	}
}

func TestNormalizeDropsMalformedRows(t *testing.T) {
	missingAdj := rawDay("1", "1", "1", "1", "1", "1")
	delete(missingAdj, "5. adjusted close")

	raw := quote.RawSeries{
		"2024-07-24": rawDay("200.00", "205.00", "198.00", "202.00", "202.00", "15000000"),
		"not-a-date": rawDay("1", "1", "1", "1", "1", "1"),
		"2024-07-25": rawDay("abc", "1", "1", "1", "1", "1"),
		"2024-07-26": missingAdj,
		"2024-07-29": rawDay("1", "1", "1", "1", "1", "1.5"),
	}

	rows := Normalize("TEST", raw, time.Now(), quietLogger())
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1 valid row", len(rows))
	}
	if rows[0].Date != "2024-07-24T00:00:00Z" {
		t.Errorf("kept wrong row: %+v", rows[0])
	}
}

func TestPricesFrame(t *testing.T) {
	raw := quote.RawSeries{
		"2024-07-24": rawDay("200.00", "205.00", "198.00", "202.00", "202.00", "15000000"),
	}
	df := PricesFrame(Normalize("TEST", raw, time.Now(), quietLogger()))

	if df.Nrow() != 1 || df.Ncol() != 10 {
		t.Fatalf("got %dx%d frame, want 1x10", df.Nrow(), df.Ncol())
	}
	if df.Names()[0] != "date" {
		t.Errorf("first column = %q, want date", df.Names()[0])
	}
	if v := df.Col("adjusted_close").Elem(0).Float(); v != 202 {
		t.Errorf("adjusted_close = %v, want 202", v)
	}
}

func TestFromFrame(t *testing.T) {
	ts := time.Date(2024, 7, 24, 14, 0, 0, 0, time.UTC)
	df := quote.Frame([]quote.Bar{
		{Timestamp: ts.Add(time.Hour), Open: 2, High: 3, Low: 1, Close: 2.5, Volume: 20},
		{Timestamp: ts, Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 10},
	}, false)

	now := time.Date(2024, 7, 25, 0, 0, 0, 0, time.UTC)
	rows, err := FromFrame("msft", "alpaca", df, now)
	if err != nil {
		t.Fatalf("FromFrame: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("len = %d, want 2", len(rows))
	}
	first := rows[0]
	if first.Symbol != "MSFT" || first.Source != "alpaca" {
		t.Errorf("first = %+v", first)
	}
	if first.Date != "2024-07-24T14:00:00Z" {
		t.Errorf("Date = %q, want earliest bar first", first.Date)
	}
	if first.AdjustedClose != first.Close {
		t.Errorf("AdjustedClose = %v, want close %v when unadjusted", first.AdjustedClose, first.Close)
	}
	if first.Volume != 10 {
		t.Errorf("Volume = %d, want 10", first.Volume)
	}
	if first.IngestedAt != "2024-07-25T00:00:00Z" {
		t.Errorf("IngestedAt = %q", first.IngestedAt)
	}

	if _, err := FromFrame("MSFT", "x", df.Drop("volume"), now); err == nil {
		t.Error("FromFrame without volume should fail")
	}
}
