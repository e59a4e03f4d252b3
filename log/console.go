package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

// formatterHandler adapts a LogFormatter to slog.Handler, so Logger can be
// backed by TextFormatter/ColorFormatter instead of slog's own handlers.
type formatterHandler struct {
	w         io.Writer
	formatter LogFormatter
	level     slog.Leveler
	attrs     []slog.Attr
}

func (h *formatterHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *formatterHandler) Handle(_ context.Context, r slog.Record) error {
	fields := make(map[string]interface{}, r.NumAttrs()+len(h.attrs))
	for _, a := range h.attrs {
		fields[a.Key] = a.Value.Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		fields[a.Key] = a.Value.Any()
		return true
	})
	line := h.formatter.Format(LogEntry{
		Timestamp: r.Time,
		Level:     fromSlogLevel(r.Level),
		Message:   r.Message,
		Fields:    fields,
	})
	_, err := fmt.Fprintln(h.w, line)
	return err
}

func (h *formatterHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &formatterHandler{w: h.w, formatter: h.formatter, level: h.level, attrs: merged}
}

// WithGroup is a no-op: LogFormatter has no notion of attribute groups.
func (h *formatterHandler) WithGroup(_ string) slog.Handler { return h }

func fromSlogLevel(l slog.Level) LogLevel {
	switch {
	case l < slog.LevelInfo:
		return DEBUG
	case l < slog.LevelWarn:
		return INFO
	case l < slog.LevelError:
		return WARN
	default:
		return ERROR
	}
}

// NewConsole creates a Logger meant for an interactive terminal rather than
// a log-aggregation pipeline: ANSI-colorized via ColorFormatter when stderr
// is a TTY (go-isatty), falling back to plain TextFormatter otherwise, and
// written through go-colorable so the ANSI codes still render correctly
// under the Windows console. Used by cmd/evmrun; the JSON handler from New
// remains the default for embedding in a service.
func NewConsole(level slog.Level) *Logger {
	out := colorable.NewColorable(os.Stderr)
	var f LogFormatter
	if isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd()) {
		f = &ColorFormatter{}
	} else {
		f = &TextFormatter{}
	}
	return &Logger{inner: slog.New(&formatterHandler{w: out, formatter: f, level: level})}
}
