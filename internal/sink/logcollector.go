package sink

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"marketml/internal/domain"
)

// NewRunID returns a fresh identifier for one pipeline run.
func NewRunID() string {
	return uuid.NewString()
}

// logBuffer is shared by a collector and every handler derived from it.
type logBuffer struct {
	mu      sync.Mutex
	entries []domain.PipelineLog
}

// LogCollector is an slog.Handler that keeps a copy of every record at or
// above its level as a pipeline_logs entry, then forwards the record to the
// next handler.
type LogCollector struct {
	next      slog.Handler
	level     slog.Leveler
	runID     string
	component string
	group     string
	attrs     []slog.Attr
	buf       *logBuffer
}

var _ slog.Handler = (*LogCollector)(nil)

// NewLogCollector wraps next. Records below level are forwarded but not
// collected. The "component" attribute, when present, overrides the default
// component.
func NewLogCollector(next slog.Handler, level slog.Leveler, runID, component string) *LogCollector {
	return &LogCollector{
		next:      next,
		level:     level,
		runID:     runID,
		component: component,
		buf:       &logBuffer{},
	}
}

// RunID returns the run identifier stamped on collected entries.
func (h *LogCollector) RunID() string { return h.runID }

func (h *LogCollector) Enabled(ctx context.Context, l slog.Level) bool {
	return l >= h.level.Level() || h.next.Enabled(ctx, l)
}

func (h *LogCollector) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= h.level.Level() {
		h.collect(r)
	}
	if h.next.Enabled(ctx, r.Level) {
		return h.next.Handle(ctx, r)
	}
	return nil
}

func (h *LogCollector) collect(r slog.Record) {
	component := h.component
	fields := make(map[string]any)
	add := func(a slog.Attr) {
		if a.Key == "component" {
			component = a.Value.String()
			return
		}
		key := a.Key
		if h.group != "" {
			key = h.group + "." + key
		}
		fields[key] = a.Value.Resolve().Any()
	}
	for _, a := range h.attrs {
		add(a)
	}
	r.Attrs(func(a slog.Attr) bool {
		add(a)
		return true
	})
	if len(fields) == 0 {
		fields = nil
	}

	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	entry := domain.PipelineLog{
		Timestamp: ts.UTC().Format(time.RFC3339Nano),
		Level:     r.Level.String(),
		Message:   r.Message,
		RunID:     h.runID,
		Component: component,
		Context:   fields,
	}

	h.buf.mu.Lock()
	h.buf.entries = append(h.buf.entries, entry)
	h.buf.mu.Unlock()
}

func (h *LogCollector) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := *h
	c.next = h.next.WithAttrs(attrs)
	c.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return &c
}

func (h *LogCollector) WithGroup(name string) slog.Handler {
	c := *h
	c.next = h.next.WithGroup(name)
	if c.group == "" {
		c.group = name
	} else {
		c.group += "." + name
	}
	return &c
}

// Entries returns a copy of the collected entries.
func (h *LogCollector) Entries() []domain.PipelineLog {
	h.buf.mu.Lock()
	defer h.buf.mu.Unlock()
	return append([]domain.PipelineLog(nil), h.buf.entries...)
}

// Flush inserts the collected entries into pipeline_logs and clears them on
// success.
func (h *LogCollector) Flush(ctx context.Context, s Sink) error {
	entries := h.Entries()
	if len(entries) == 0 {
		return nil
	}
	records := make([]domain.Record, len(entries))
	for i, e := range entries {
		records[i] = e.Record()
	}
	if err := s.Insert(ctx, domain.TablePipelineLogs, records); err != nil {
		return err
	}

	h.buf.mu.Lock()
	h.buf.entries = h.buf.entries[len(entries):]
	h.buf.mu.Unlock()
	return nil
}
