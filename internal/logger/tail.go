package logger

import (
	"bufio"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ErrLogUnavailable reports that the log destination does not exist yet.
// It is informational: callers print a notice instead of failing.
var ErrLogUnavailable = errors.New("log file does not exist")

const maxLineBytes = 1 << 20

// TailFile returns up to the last n lines of path in file order.
// A missing file yields an empty slice and ErrLogUnavailable.
func TailFile(path string, n int) ([]string, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []string{}, ErrLogUnavailable
		}
		return []string{}, err
	}
	defer func() { _ = f.Close() }()

	if n <= 0 {
		return []string{}, nil
	}
	ring := make([]string, n)
	count := 0
	r := bufio.NewReaderSize(f, 64*1024)
	for {
		line, err := readLine(r, maxLineBytes)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return []string{}, err
		}
		ring[count%n] = line
		count++
	}
	return unwindRing(ring, count), nil
}

// readLine returns the next line without its terminator. Bytes past limit are
// discarded so one oversized line cannot fail the whole tail. io.EOF is
// returned only when no bytes remain.
func readLine(r *bufio.Reader, limit int) (string, error) {
	var buf []byte
	read := false
	for {
		chunk, err := r.ReadSlice('\n')
		if len(chunk) > 0 {
			read = true
			if room := limit - len(buf); room > 0 {
				buf = append(buf, chunk[:min(room, len(chunk))]...)
			}
		}
		switch {
		case err == nil:
			return strings.TrimRight(string(buf), "\r\n"), nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF) && read:
			return strings.TrimRight(string(buf), "\r\n"), nil
		default:
			return "", err
		}
	}
}

// unwindRing orders the filled part of a ring buffer oldest first.
func unwindRing(ring []string, count int) []string {
	n := len(ring)
	if count < n {
		out := make([]string, count)
		copy(out, ring[:count])
		return out
	}
	out := make([]string, 0, n)
	start := count % n
	out = append(out, ring[start:]...)
	out = append(out, ring[:start]...)
	return out
}
