// Package log builds the process-wide slog.Logger and the report trace.
//
// Without a log file, records below error go to stdout and errors to stderr.
// With a file, the console gets everything on stderr and the file gets a copy.
package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"strings"
)

// LevelTrace is below Debug and enables per-report tracing.
const LevelTrace slog.Level = -8

// ParseLevel maps a level name to a slog level. Unknown names are info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "trace":
		return LevelTrace
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

const levelMax slog.Level = math.MaxInt

// sink is one destination and the band of levels it takes.
type sink struct {
	h      slog.Handler
	lo, hi slog.Level
}

func (s sink) takes(l slog.Level) bool { return l >= s.lo && l <= s.hi }

// Router sends each record to every sink whose band holds its level.
type Router struct{ sinks []sink }

func (r *Router) add(h slog.Handler, lo, hi slog.Level) *Router {
	r.sinks = append(r.sinks, sink{h: h, lo: lo, hi: hi})
	return r
}

func (r *Router) Enabled(ctx context.Context, level slog.Level) bool {
	for _, s := range r.sinks {
		if s.takes(level) && s.h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (r *Router) Handle(ctx context.Context, rec slog.Record) error {
	var first error
	for _, s := range r.sinks {
		if !s.takes(rec.Level) || !s.h.Enabled(ctx, rec.Level) {
			continue
		}
		if err := s.h.Handle(ctx, rec.Clone()); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (r *Router) WithAttrs(attrs []slog.Attr) slog.Handler {
	return r.each(func(h slog.Handler) slog.Handler { return h.WithAttrs(attrs) })
}

func (r *Router) WithGroup(name string) slog.Handler {
	return r.each(func(h slog.Handler) slog.Handler { return h.WithGroup(name) })
}

func (r *Router) each(f func(slog.Handler) slog.Handler) *Router {
	out := &Router{sinks: make([]sink, len(r.sinks))}
	for i, s := range r.sinks {
		out.sinks[i] = sink{h: f(s.h), lo: s.lo, hi: s.hi}
	}
	return out
}

// text is a text handler at level that names the trace level.
func text(w io.Writer, level slog.Level) slog.Handler {
	return slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if l, ok := a.Value.Any().(slog.Level); ok && a.Key == slog.LevelKey && l <= LevelTrace {
				a.Value = slog.StringValue("TRACE")
			}
			return a
		},
	})
}

// NewConsole routes records below error to stdout and errors to stderr.
func NewConsole(level slog.Level, stdout, stderr io.Writer) *Router {
	return new(Router).
		add(text(stdout, level), level, slog.LevelError-1).
		add(text(stderr, slog.LevelError), slog.LevelError, levelMax)
}

// SetupLogger builds a logger at logLevel with console output and, if logFile
// is set, a truncated log file. The closers must be closed on exit.
func SetupLogger(logLevel, logFile string) (*slog.Logger, []io.Closer, error) {
	level := ParseLevel(logLevel)
	if logFile == "" {
		return slog.New(NewConsole(level, os.Stdout, os.Stderr)), nil, nil
	}

	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("log: open %s: %w", logFile, err)
	}
	r := new(Router).
		add(text(os.Stderr, level), level, levelMax).
		add(text(f, level), level, levelMax)
	return slog.New(r), []io.Closer{f}, nil
}
