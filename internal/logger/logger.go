package logger

import (
	"fmt"
	"os"
	"path/filepath"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Default logging configuration constants
const (
	DefaultDir        = "logs"
	DefaultFile       = "server.log"
	DefaultMaxSizeMB  = 10 // MB
	DefaultMaxBackups = 3  // number of backup files
	DefaultMaxAgeDays = 7  // days

	megabyte = 1024 * 1024
)

// Config describes the manager's event log and the files that receive the
// node's stdout/stderr. Rotation parameters follow lumberjack semantics.
type Config struct {
	Dir        string // base directory for all log files
	File       string // event log file name inside Dir
	MaxSizeMB  int    // megabytes before rotation (default 10)
	MaxBackups int    // number of backups to keep (default 3)
	MaxAgeDays int    // days to keep (default 7)
	Compress   bool   // gzip rotated files
}

// WithDefaults fills empty fields.
func (c Config) WithDefaults() Config {
	if c.Dir == "" {
		c.Dir = DefaultDir
	}
	if c.File == "" {
		c.File = DefaultFile
	}
	c.MaxSizeMB = valOr(c.MaxSizeMB, DefaultMaxSizeMB)
	c.MaxBackups = valOr(c.MaxBackups, DefaultMaxBackups)
	c.MaxAgeDays = valOr(c.MaxAgeDays, DefaultMaxAgeDays)
	return c
}

// Path returns the event log location.
func (c Config) Path() string {
	c = c.WithDefaults()
	return filepath.Join(c.Dir, c.File)
}

// ProcessFiles opens Dir/<name>.stdout.log and Dir/<name>.stderr.log for a
// child that may outlive the manager, so the child gets plain append-mode
// files. A file that reached MaxSizeMB is rotated first. Both are nil when
// Dir is empty. The caller closes its copies once the child has started.
func (c Config) ProcessFiles(name string) (*os.File, *os.File, error) {
	if c.Dir == "" {
		return nil, nil, nil
	}
	if err := os.MkdirAll(c.Dir, 0o750); err != nil {
		return nil, nil, err
	}
	outF, err := c.openRotated(filepath.Join(c.Dir, fmt.Sprintf("%s.stdout.log", name)))
	if err != nil {
		return nil, nil, err
	}
	errF, err := c.openRotated(filepath.Join(c.Dir, fmt.Sprintf("%s.stderr.log", name)))
	if err != nil {
		_ = outF.Close()
		return nil, nil, err
	}
	return outF, errF, nil
}

func (c Config) openRotated(path string) (*os.File, error) {
	if st, err := os.Stat(path); err == nil && st.Size() >= int64(valOr(c.MaxSizeMB, DefaultMaxSizeMB))*megabyte {
		l := c.rotating(path)
		if err := l.Rotate(); err != nil {
			return nil, fmt.Errorf("rotate %s: %w", path, err)
		}
		_ = l.Close()
	}
	return os.OpenFile(filepath.Clean(path), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
}

func (c Config) rotating(path string) *lj.Logger {
	return &lj.Logger{
		Filename:   path,
		MaxSize:    valOr(c.MaxSizeMB, DefaultMaxSizeMB),
		MaxBackups: valOr(c.MaxBackups, DefaultMaxBackups),
		MaxAge:     valOr(c.MaxAgeDays, DefaultMaxAgeDays),
		Compress:   c.Compress,
	}
}

func valOr(v int, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
