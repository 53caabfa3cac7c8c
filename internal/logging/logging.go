// Package logging builds the slog loggers used by the cmsim binaries and
// adapts them to the printf-style Logger interface of the solver.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/daniacca/cmsim/internal/solver"
)

// ParseLevel parses a level name (case-insensitive). Unknown names fall back
// to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New returns a logger writing to w. format is "json" or "text".
func New(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Adapter exposes a *slog.Logger as a solver.Logger.
type Adapter struct {
	l *slog.Logger
}

var _ solver.Logger = (*Adapter)(nil)

// Adapt wraps l. A nil l discards everything.
func Adapt(l *slog.Logger) *Adapter {
	if l == nil {
		l = slog.New(slog.DiscardHandler)
	}
	return &Adapter{l: l}
}

func (a *Adapter) logf(level slog.Level, format string, v ...any) {
	ctx := context.Background()
	if !a.l.Enabled(ctx, level) {
		return
	}
	a.l.Log(ctx, level, fmt.Sprintf(format, v...))
}

// Debugf logs a debug message
func (a *Adapter) Debugf(format string, v ...any) { a.logf(slog.LevelDebug, format, v...) }

// Infof logs an info message
func (a *Adapter) Infof(format string, v ...any) { a.logf(slog.LevelInfo, format, v...) }

// Warnf logs a warning message
func (a *Adapter) Warnf(format string, v ...any) { a.logf(slog.LevelWarn, format, v...) }

// Errorf logs an error message
func (a *Adapter) Errorf(format string, v ...any) { a.logf(slog.LevelError, format, v...) }
