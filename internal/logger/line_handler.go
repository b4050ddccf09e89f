package logger

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
)

// TimeLayout is the timestamp layout of event log lines.
const TimeLayout = "2006-01-02 15:04:05,000"

// lineEscaper keeps every record on a single line.
var lineEscaper = strings.NewReplacer("\r", `\r`, "\n", `\n`)

// LineHandler is a slog.Handler producing one plain-text line per record:
//
//	<timestamp> - <LEVEL> - <message>[ key=value ...]
type LineHandler struct {
	mu      *sync.Mutex
	w       io.Writer
	level   slog.Leveler
	attrs   []slog.Attr
	onError func(error)
}

// NewLineHandler creates a handler writing to w. onError, when non-nil,
// receives write failures; Handle still returns them.
func NewLineHandler(w io.Writer, level slog.Leveler, onError func(error)) *LineHandler {
	if level == nil {
		level = slog.LevelInfo
	}
	return &LineHandler{mu: &sync.Mutex{}, w: w, level: level, onError: onError}
}

func (h *LineHandler) Enabled(_ context.Context, l slog.Level) bool {
	return l >= h.level.Level()
}

func (h *LineHandler) Handle(_ context.Context, r slog.Record) error {
	var buf bytes.Buffer
	buf.WriteString(r.Time.Format(TimeLayout))
	buf.WriteString(" - ")
	buf.WriteString(r.Level.String())
	buf.WriteString(" - ")
	buf.WriteString(lineEscaper.Replace(r.Message))
	for _, a := range h.attrs {
		appendAttr(&buf, a)
	}
	r.Attrs(func(a slog.Attr) bool {
		appendAttr(&buf, a)
		return true
	})
	buf.WriteByte('\n')

	h.mu.Lock()
	_, err := h.w.Write(buf.Bytes())
	h.mu.Unlock()
	if err != nil && h.onError != nil {
		h.onError(err)
	}
	return err
}

func (h *LineHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	nh := *h
	nh.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return &nh
}

// WithGroup is a no-op; event lines are flat.
func (h *LineHandler) WithGroup(string) slog.Handler { return h }

func appendAttr(buf *bytes.Buffer, a slog.Attr) {
	if a.Equal(slog.Attr{}) {
		return
	}
	buf.WriteString(lineEscaper.Replace(fmt.Sprintf(" %s=%v", a.Key, a.Value.Resolve().Any())))
}
