package logger

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// MemorySink keeps event lines in memory. It formats exactly like FileSink.
type MemorySink struct {
	mu    sync.Mutex
	buf   strings.Builder
	lines []string
	h     *LineHandler
}

func NewMemorySink() *MemorySink {
	m := &MemorySink{}
	m.h = NewLineHandler(&m.buf, slog.LevelDebug, nil)
	return m
}

func (m *MemorySink) Record(level slog.Level, msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buf.Reset()
	_ = m.h.Handle(context.Background(), slog.NewRecord(time.Now(), level, msg, 0))
	m.lines = append(m.lines, strings.TrimSuffix(m.buf.String(), "\n"))
}

func (m *MemorySink) Tail(n int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n <= 0 {
		return []string{}, nil
	}
	start := len(m.lines) - n
	if start < 0 {
		start = 0
	}
	return append([]string(nil), m.lines[start:]...), nil
}

// Lines returns every recorded line.
func (m *MemorySink) Lines() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.lines...)
}
