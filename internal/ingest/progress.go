package ingest

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// progressTracker manages the .done-symbols and .last-completed files so an
// interrupted run can resume within the same day.
type progressTracker struct {
	mu     sync.Mutex
	done   map[string]struct{}
	writer *bufio.Writer
	file   *os.File
	dir    string
}

// newProgressTracker opens the tracker for day under dir. Progress recorded
// for any other day is discarded.
func newProgressTracker(dir, day string) (*progressTracker, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating progress dir: %w", err)
	}

	pt := &progressTracker{
		done: make(map[string]struct{}),
		dir:  dir,
	}

	dayPath := filepath.Join(dir, ".progress-day")
	donePath := filepath.Join(dir, ".done-symbols")

	prev, _ := os.ReadFile(dayPath)
	if strings.TrimSpace(string(prev)) != day {
		os.Remove(donePath)
		if err := os.WriteFile(dayPath, []byte(day), 0o644); err != nil {
			return nil, fmt.Errorf("writing .progress-day: %w", err)
		}
	} else if data, err := os.ReadFile(donePath); err == nil {
		for _, line := range strings.Split(string(data), "\n") {
			if sym := strings.TrimSpace(line); sym != "" {
				pt.done[sym] = struct{}{}
			}
		}
	}

	f, err := os.OpenFile(donePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening .done-symbols: %w", err)
	}
	pt.file = f
	pt.writer = bufio.NewWriter(f)

	return pt, nil
}

// IsDone returns true if the symbol was already ingested today.
func (p *progressTracker) IsDone(symbol string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.done[symbol]
	return ok
}

// MarkDone records a symbol as ingested.
func (p *progressTracker) MarkDone(symbol string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.done[symbol]; ok {
		return nil
	}
	p.done[symbol] = struct{}{}
	if _, err := p.writer.WriteString(symbol + "\n"); err != nil {
		return fmt.Errorf("writing to .done-symbols: %w", err)
	}
	return p.writer.Flush()
}

// MarkCompleted writes the given date to .last-completed.
func (p *progressTracker) MarkCompleted(date string) error {
	return os.WriteFile(filepath.Join(p.dir, ".last-completed"), []byte(date), 0o644)
}

// LastCompleted returns the date string from .last-completed, or empty string.
func (p *progressTracker) LastCompleted() string {
	data, err := os.ReadFile(filepath.Join(p.dir, ".last-completed"))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// Close flushes and closes the .done-symbols file.
func (p *progressTracker) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.writer != nil {
		p.writer.Flush()
	}
	if p.file != nil {
		return p.file.Close()
	}
	return nil
}
