package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"marketml/internal/domain"
)

// RESTSink writes to a Supabase project through its PostgREST endpoint.
type RESTSink struct {
	baseURL string
	key     string
	http    *http.Client
	log     *slog.Logger
}

var _ Sink = (*RESTSink)(nil)

// NewRESTSink creates a sink for the project at baseURL authenticated with
// a service-role key.
func NewRESTSink(baseURL, key string, log *slog.Logger) *RESTSink {
	if log == nil {
		log = slog.Default()
	}
	return &RESTSink{
		baseURL: strings.TrimRight(baseURL, "/"),
		key:     key,
		http:    &http.Client{Timeout: 30 * time.Second},
		log:     log.With("component", "sink", "sink", "supabase"),
	}
}

// Upsert merges records on the table's conflict key.
func (s *RESTSink) Upsert(ctx context.Context, table string, records []domain.Record) error {
	keys := ConflictKeys(table)
	if len(keys) == 0 {
		return s.Insert(ctx, table, records)
	}
	q := url.Values{}
	q.Set("on_conflict", strings.Join(keys, ","))
	return s.send(ctx, table, q, "resolution=merge-duplicates,return=minimal", records)
}

// Insert appends records.
func (s *RESTSink) Insert(ctx context.Context, table string, records []domain.Record) error {
	return s.send(ctx, table, nil, "return=minimal", records)
}

// Close is a no-op.
func (s *RESTSink) Close() error { return nil }

func (s *RESTSink) send(ctx context.Context, table string, q url.Values, prefer string, records []domain.Record) error {
	endpoint := s.baseURL + "/rest/v1/" + url.PathEscape(table)
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}

	err := sendBatches(table, records, func(batch []domain.Record) error {
		body, err := json.Marshal(batch)
		if err != nil {
			return fmt.Errorf("encoding batch: %w", err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("apikey", s.key)
		req.Header.Set("Authorization", "Bearer "+s.key)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Prefer", prefer)

		resp, err := s.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 300 {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.log.Info("records uploaded", "table", table, "count", len(records))
	return nil
}
