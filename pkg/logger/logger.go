// Package logger builds the slog loggers used by the CLI and server.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
)

// Formats accepted by NewDefaultLogger.
const (
	FormatTerminal = "terminal"
	FormatText     = "text"
	FormatJSON     = "json"
)

// highlights are message prefixes rendered in color on terminals.
var highlights = []string{"route finished", "question answered"}

// NewTerminalHandler returns a leveled, colored slog handler for terminals.
// slog and charm levels share numeric values, so level converts directly.
func NewTerminalHandler(w io.Writer, level slog.Level) slog.Handler {
	styles := log.DefaultStyles()
	styles.Levels[log.WarnLevel] = styles.Levels[log.WarnLevel].Foreground(lipgloss.Color("214"))
	styles.Levels[log.ErrorLevel] = styles.Levels[log.ErrorLevel].Foreground(lipgloss.Color("204"))
	styles.Keys["run_id"] = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	styles.Keys["error"] = lipgloss.NewStyle().Foreground(lipgloss.Color("204"))

	l := log.NewWithOptions(w, log.Options{
		Level:           log.Level(level),
		ReportTimestamp: true,
		TimeFormat:      "15:04:05.000",
	})
	l.SetStyles(styles)
	return &highlightHandler{Handler: l, style: lipgloss.NewStyle().Foreground(lipgloss.Color("42"))}
}

// NewJSONHandler returns a JSON slog handler.
func NewJSONHandler(w io.Writer, level slog.Level) slog.Handler {
	return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
}

// NewDefaultLogger returns a logger writing to stderr in the given format.
// Unknown formats use the terminal handler.
func NewDefaultLogger(level slog.Level, format string) *slog.Logger {
	return New(os.Stderr, level, format)
}

// New returns a logger writing to w in the given format.
func New(w io.Writer, level slog.Level, format string) *slog.Logger {
	switch strings.ToLower(format) {
	case FormatJSON:
		return slog.New(NewJSONHandler(w, level))
	case FormatText:
		return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
	default:
		return slog.New(NewTerminalHandler(w, level))
	}
}

// ParseLevel maps debug, info, warn and error to slog levels. Anything else
// is info.
func ParseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo
	}
	return level
}

// highlightHandler colors the messages of a few milestone records.
type highlightHandler struct {
	slog.Handler
	style lipgloss.Style
}

func (h *highlightHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, prefix := range highlights {
		if strings.HasPrefix(r.Message, prefix) {
			r.Message = h.style.Render(r.Message)
			break
		}
	}
	return h.Handler.Handle(ctx, r)
}

func (h *highlightHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &highlightHandler{Handler: h.Handler.WithAttrs(attrs), style: h.style}
}

func (h *highlightHandler) WithGroup(name string) slog.Handler {
	return &highlightHandler{Handler: h.Handler.WithGroup(name), style: h.style}
}
