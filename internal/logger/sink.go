package logger

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// FileSink is the manager's append-only event log backed by a rotating file.
type FileSink struct {
	path   string
	out    *lj.Logger
	h      *LineHandler
	errLog *slog.Logger
}

// Open ensures the log directory and file exist and returns a sink writing to
// them. It is safe to call when both already exist. Callers must Close it.
func Open(cfg Config) (*FileSink, error) {
	return OpenWithFallback(cfg, NewConsole(os.Stderr, slog.LevelWarn))
}

// OpenWithFallback is Open with an explicit logger for write failures.
func OpenWithFallback(cfg Config, fallback *slog.Logger) (*FileSink, error) {
	cfg = cfg.WithDefaults()
	if err := os.MkdirAll(cfg.Dir, 0o750); err != nil {
		return nil, fmt.Errorf("create log dir %s: %w", cfg.Dir, err)
	}
	path := cfg.Path()
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
	if err != nil {
		return nil, fmt.Errorf("create log file %s: %w", path, err)
	}
	_ = f.Close()

	s := &FileSink{
		path:   path,
		out:    cfg.rotating(path),
		errLog: fallback,
	}
	s.h = NewLineHandler(s.out, slog.LevelDebug, s.reportWriteError)
	return s, nil
}

// Path returns the event log file path.
func (s *FileSink) Path() string { return s.path }

// Record appends one line. Write failures never reach the caller.
func (s *FileSink) Record(level slog.Level, msg string) {
	r := slog.NewRecord(time.Now(), level, msg, 0)
	_ = s.h.Handle(context.Background(), r)
}

// Tail returns up to the last n lines of the event log, oldest first.
func (s *FileSink) Tail(n int) ([]string, error) {
	return TailFile(s.path, n)
}

func (s *FileSink) Close() error {
	return s.out.Close()
}

func (s *FileSink) reportWriteError(err error) {
	if s.errLog != nil {
		s.errLog.Warn("event log write failed", "path", s.path, "error", err)
	}
}
