package logging

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/charmbracelet/log"
)

// Options selects the level, output format and destination of the logger.
type Options struct {
	Level  string // debug, info, warn, error
	Format string // logfmt, json, text
	Writer io.Writer
}

// New returns an slog.Logger backed by a charmbracelet/log handler with
// timestamps and caller reporting. Writer defaults to os.Stderr.
func New(opts Options) *slog.Logger {
	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}
	handler := log.NewWithOptions(w, log.Options{
		ReportCaller:    true,
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
		Prefix:          "playlistvault",
		Formatter:       Formatter(opts.Format),
		Level:           Level(opts.Level),
	})
	return slog.New(handler)
}

// Formatter maps a format name to a charmbracelet formatter. Unknown names get logfmt.
func Formatter(name string) log.Formatter {
	switch name {
	case "json":
		return log.JSONFormatter
	case "text":
		return log.TextFormatter
	default:
		return log.LogfmtFormatter
	}
}

// Level maps a level name to a charmbracelet level. Unknown names get info.
func Level(name string) log.Level {
	switch name {
	case "debug":
		return log.DebugLevel
	case "warn":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
