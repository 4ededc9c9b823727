// Package sink upserts pipeline records (prices, logs, model metadata and
// predictions) into a hosted relational backend.
package sink

import (
	"context"
	"fmt"
	"log/slog"

	"marketml/internal/config"
	"marketml/internal/domain"
)

// BatchSize is the maximum number of records sent per request.
const BatchSize = 100

// conflictKeys lists the natural key of each table used for upserts.
// Tables without an entry are append-only.
var conflictKeys = map[string][]string{
	domain.TableStockPrices:      {"symbol", "date"},
	domain.TableModelMetadata:    {"symbol", "model_name", "version"},
	domain.TableModelPredictions: {"symbol", "model_name", "timestamp"},
}

// ConflictKeys returns the upsert key columns for table.
func ConflictKeys(table string) []string {
	return conflictKeys[table]
}

// Sink writes records to named tables in batches of at most BatchSize. A
// failed batch aborts the call with an *UploadError; earlier batches stay
// committed.
type Sink interface {
	// Upsert inserts records, replacing rows that share the table's key.
	Upsert(ctx context.Context, table string, records []domain.Record) error

	// Insert appends records.
	Insert(ctx context.Context, table string, records []domain.Record) error

	Close() error
}

// UploadError reports the batch that failed and how many records had
// already been written.
type UploadError struct {
	Table string
	Batch int
	Sent  int
	Err   error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload to %s failed at batch %d (%d records sent): %v", e.Table, e.Batch, e.Sent, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// sendBatches splits records into batches and calls send for each one,
// stopping at the first failure.
func sendBatches(table string, records []domain.Record, send func([]domain.Record) error) error {
	sent := 0
	for b, start := 0, 0; start < len(records); b, start = b+1, start+BatchSize {
		end := start + BatchSize
		if end > len(records) {
			end = len(records)
		}
		if err := send(records[start:end]); err != nil {
			return &UploadError{Table: table, Batch: b, Sent: sent, Err: err}
		}
		sent += end - start
	}
	return nil
}

// Discard drops every record. It stands in when no sink is configured.
type Discard struct{}

var _ Sink = Discard{}

func (Discard) Upsert(context.Context, string, []domain.Record) error { return nil }
func (Discard) Insert(context.Context, string, []domain.Record) error { return nil }
func (Discard) Close() error                                          { return nil }

// New builds the sink selected by cfg.
func New(cfg config.Sink, log *slog.Logger) (Sink, error) {
	switch cfg.Type {
	case "", "none":
		return Discard{}, nil
	case "supabase":
		if cfg.URL == "" || cfg.Key == "" {
			return nil, fmt.Errorf("%w: supabase url and key", config.ErrMissingSetting)
		}
		return NewRESTSink(cfg.URL, cfg.Key, log), nil
	case "postgres":
		return OpenSQLSink(DialectPostgres, cfg.DSN, log)
	case "sqlite":
		return OpenSQLSink(DialectSQLite, cfg.SQLitePath, log)
	default:
		return nil, fmt.Errorf("unsupported sink type: %s", cfg.Type)
	}
}
