// Package logging configures the process-wide slog logger.
//
// While the terminal is in raw mode a bare newline does not return the
// cursor to the first column, so stderr output goes through a writer that
// resets the column after every line.
package logging

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/charmbracelet/x/ansi"
)

// EnvLevel names the environment variable consulted when no level flag is set.
const EnvLevel = "TELEOP_LOG"

// ParseLevel maps a level name to a slog level. The empty string is warn.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug", "trace":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "", "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelWarn, fmt.Errorf("unknown log level %q", s)
	}
}

// Setup installs a text handler as the slog default. An empty path logs to
// stderr. The returned close func releases the log file, if any.
func Setup(level slog.Level, path string) (*slog.Logger, func() error, error) {
	var (
		out     io.Writer
		closeFn = func() error { return nil }
	)
	if strings.TrimSpace(path) == "" {
		out = NewRawWriter(os.Stderr)
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, nil, fmt.Errorf("create log directory: %w", err)
		}
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		out, closeFn = f, f.Close
	}
	logger := New(out, level)
	slog.SetDefault(logger)
	return logger, closeFn, nil
}

// New returns a text logger writing to w.
func New(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// Subsystem tags a logger the way every component logs.
func Subsystem(logger *slog.Logger, name string) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With("subsystem", name)
}

var cursorHome = []byte(ansi.CursorHorizontalAbsolute(1))

// RawWriter appends a cursor column reset after each newline.
type RawWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func NewRawWriter(w io.Writer) *RawWriter {
	return &RawWriter{w: w}
}

func (r *RawWriter) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if bytes.IndexByte(p, '\n') < 0 {
		return r.w.Write(p)
	}
	var buf bytes.Buffer
	buf.Grow(len(p) + 4*len(cursorHome))
	for _, line := range bytes.SplitAfter(p, []byte{'\n'}) {
		buf.Write(line)
		if len(line) > 0 && line[len(line)-1] == '\n' {
			buf.Write(cursorHome)
		}
	}
	if _, err := r.w.Write(buf.Bytes()); err != nil {
		return 0, err
	}
	return len(p), nil
}
