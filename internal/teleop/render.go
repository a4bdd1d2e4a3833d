package teleop

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/charmbracelet/x/ansi"

	"teleop-bridge/internal/codec"
)

// Renderer prints /rosout records. The terminal is in raw mode, so every
// line is followed by a move back to the first column.
type Renderer struct {
	out    io.Writer
	logger *slog.Logger
}

func NewRenderer(out io.Writer, logger *slog.Logger) *Renderer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Renderer{out: out, logger: logger}
}

// Render decodes payload and prints it. It reports whether anything was
// printed.
func (r *Renderer) Render(payload []byte) bool {
	l, err := codec.UnmarshalLog(payload)
	if err != nil {
		r.logger.Warn("error decoding log", "bytes", len(payload), "error", err)
		return false
	}
	if _, err := fmt.Fprintf(r.out, "%s\n%s", l, ansi.CursorHorizontalAbsolute(1)); err != nil {
		r.logger.Warn("error writing log", "error", err)
		return false
	}
	return true
}
