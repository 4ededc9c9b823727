package sink

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	_ "github.com/lib/pq"  // Postgres driver.
	_ "modernc.org/sqlite" // Pure-Go SQLite driver.

	"marketml/internal/domain"
)

// Dialect selects the SQL driver and placeholder style.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

var identRE = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// SQLSink writes records to Postgres or SQLite through database/sql.
type SQLSink struct {
	db      *sql.DB
	dialect Dialect
	log     *slog.Logger
}

var _ Sink = (*SQLSink)(nil)

// OpenSQLSink opens (or creates) the database and ensures the pipeline
// tables exist.
func OpenSQLSink(dialect Dialect, dsn string, log *slog.Logger) (*SQLSink, error) {
	if dsn == "" {
		return nil, fmt.Errorf("empty %s dsn", dialect)
	}
	db, err := sql.Open(string(dialect), dsn)
	if err != nil {
		return nil, err
	}
	s := NewSQLSink(db, dialect, log)
	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLSink wraps an open database handle.
func NewSQLSink(db *sql.DB, dialect Dialect, log *slog.Logger) *SQLSink {
	if log == nil {
		log = slog.Default()
	}
	return &SQLSink{db: db, dialect: dialect, log: log.With("component", "sink", "sink", string(dialect))}
}

// Close closes the underlying database connection.
func (s *SQLSink) Close() error {
	return s.db.Close()
}

// ---------------------------------------------------------------------------
// Schema
// ---------------------------------------------------------------------------

var schema = []string{
	`CREATE TABLE IF NOT EXISTS stock_prices (
		symbol TEXT NOT NULL,
		date TEXT NOT NULL,
		open DOUBLE PRECISION,
		high DOUBLE PRECISION,
		low DOUBLE PRECISION,
		close DOUBLE PRECISION,
		adjusted_close DOUBLE PRECISION,
		volume BIGINT,
		source TEXT,
		ingested_at TEXT,
		PRIMARY KEY (symbol, date)
	)`,
	`CREATE TABLE IF NOT EXISTS pipeline_logs (
		timestamp TEXT,
		level TEXT,
		message TEXT,
		run_id TEXT,
		component TEXT,
		context TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS model_metadata (
		symbol TEXT NOT NULL,
		model_name TEXT NOT NULL,
		task TEXT,
		version TEXT NOT NULL,
		trained_at TEXT,
		dataset_version TEXT,
		target_column TEXT,
		feature_columns TEXT,
		hyperparameters TEXT,
		train_rows BIGINT,
		test_rows BIGINT,
		validation_metrics TEXT,
		cv_metrics TEXT,
		model_path TEXT,
		metadata_path TEXT,
		PRIMARY KEY (symbol, model_name, version)
	)`,
	`CREATE TABLE IF NOT EXISTS model_predictions (
		timestamp TEXT NOT NULL,
		symbol TEXT NOT NULL,
		model_name TEXT NOT NULL,
		dataset_version TEXT,
		prediction DOUBLE PRECISION,
		predicted_at TEXT,
		prediction_proba DOUBLE PRECISION,
		target_column TEXT,
		PRIMARY KEY (symbol, model_name, timestamp)
	)`,
}

// Migrate creates the pipeline tables if they do not exist.
func (s *SQLSink) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrating schema: %w", err)
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Writes
// ---------------------------------------------------------------------------

// Upsert inserts records, updating rows that collide on the table's key.
func (s *SQLSink) Upsert(ctx context.Context, table string, records []domain.Record) error {
	return s.write(ctx, table, ConflictKeys(table), records)
}

// Insert appends records.
func (s *SQLSink) Insert(ctx context.Context, table string, records []domain.Record) error {
	return s.write(ctx, table, nil, records)
}

func (s *SQLSink) write(ctx context.Context, table string, keys []string, records []domain.Record) error {
	if !identRE.MatchString(table) {
		return fmt.Errorf("invalid table name %q", table)
	}

	err := sendBatches(table, records, func(batch []domain.Record) error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		for _, rec := range batch {
			query, args, err := s.buildInsert(table, keys, rec)
			if err != nil {
				_ = tx.Rollback()
				return err
			}
			if _, err := tx.ExecContext(ctx, query, args...); err != nil {
				_ = tx.Rollback()
				return err
			}
		}
		return tx.Commit()
	})
	if err != nil {
		return err
	}
	s.log.Info("records written", "table", table, "count", len(records))
	return nil
}

// buildInsert renders one INSERT statement with columns in sorted order.
func (s *SQLSink) buildInsert(table string, keys []string, rec domain.Record) (string, []any, error) {
	cols := make([]string, 0, len(rec))
	for c := range rec {
		if !identRE.MatchString(c) {
			return "", nil, fmt.Errorf("invalid column name %q", c)
		}
		cols = append(cols, c)
	}
	sort.Strings(cols)

	args := make([]any, len(cols))
	holders := make([]string, len(cols))
	for i, c := range cols {
		v, err := sqlValue(rec[c])
		if err != nil {
			return "", nil, fmt.Errorf("column %s: %w", c, err)
		}
		args[i] = v
		holders[i] = s.placeholder(i + 1)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(cols, ", "), strings.Join(holders, ", "))
	if len(keys) > 0 {
		isKey := make(map[string]bool, len(keys))
		for _, k := range keys {
			isKey[k] = true
		}
		var sets []string
		for _, c := range cols {
			if !isKey[c] {
				sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", c, c))
			}
		}
		if len(sets) == 0 {
			fmt.Fprintf(&b, " ON CONFLICT (%s) DO NOTHING", strings.Join(keys, ", "))
		} else {
			fmt.Fprintf(&b, " ON CONFLICT (%s) DO UPDATE SET %s", strings.Join(keys, ", "), strings.Join(sets, ", "))
		}
	}
	return b.String(), args, nil
}

func (s *SQLSink) placeholder(n int) string {
	if s.dialect == DialectPostgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// sqlValue passes scalars through and stores nested values as JSON text.
func sqlValue(v any) (any, error) {
	switch x := v.(type) {
	case nil, string, bool, int, int64, float64:
		return x, nil
	case *float64:
		if x == nil {
			return nil, nil
		}
		return *x, nil
	default:
		data, err := json.Marshal(x)
		if err != nil {
			return nil, err
		}
		return string(data), nil
	}
}
