// Package logger provides a leveled, tagged printf-style logger on top of log/slog.
//
// A message is emitted when its level is not None and is at or below the logger's
// threshold. The default threshold is Info. A nil *Logger discards everything, so
// components can hold one unconditionally.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"
)

// Level orders message severities from None (never emitted) to Verbose.
type Level int

const (
	None Level = iota
	Error
	Warn
	Info
	Debug
	Verbose
)

// LevelVerbose is the slog level used for Verbose records.
const LevelVerbose = slog.LevelDebug - 4

var levelNames = [...]string{"none", "error", "warn", "info", "debug", "verbose"}

func (l Level) String() string {
	if l < None || l > Verbose {
		return fmt.Sprintf("level(%d)", int(l))
	}
	return levelNames[l]
}

// ParseLevel maps a case-insensitive level name to a Level.
func ParseLevel(s string) (Level, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if name == "warning" {
		return Warn, nil
	}
	for i, n := range levelNames {
		if n == name {
			return Level(i), nil
		}
	}
	return None, fmt.Errorf("unknown log level %q", s)
}

func (l Level) slogLevel() slog.Level {
	switch l {
	case Error:
		return slog.LevelError
	case Warn:
		return slog.LevelWarn
	case Info:
		return slog.LevelInfo
	case Debug:
		return slog.LevelDebug
	default:
		return LevelVerbose
	}
}

// Logger is safe for concurrent use.
type Logger struct {
	handler   slog.Handler
	threshold atomic.Int32
}

// New returns a Logger writing through h with an Info threshold.
func New(h slog.Handler) *Logger {
	l := &Logger{handler: h}
	l.threshold.Store(int32(Info))
	return l
}

// NewText returns a Logger emitting slog text records to w.
func NewText(w io.Writer) *Logger {
	return New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: LevelVerbose}))
}

// NewJSON returns a Logger emitting slog JSON records to w.
func NewJSON(w io.Writer) *Logger {
	return New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: LevelVerbose}))
}

// Discard returns a Logger whose handler drops every record.
func Discard() *Logger {
	return New(slog.NewTextHandler(io.Discard, nil))
}

// SetLevel changes the threshold.
func (l *Logger) SetLevel(level Level) {
	if l == nil {
		return
	}
	l.threshold.Store(int32(level))
}

// Level returns the current threshold.
func (l *Logger) Level() Level {
	if l == nil {
		return None
	}
	return Level(l.threshold.Load())
}

// Enabled reports whether a message at level would be emitted.
func (l *Logger) Enabled(level Level) bool {
	if l == nil || l.handler == nil || level == None {
		return false
	}
	return level <= l.Level()
}

// Slog exposes the logger as a *slog.Logger for libraries that take one.
func (l *Logger) Slog() *slog.Logger {
	if l == nil || l.handler == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return slog.New(gate{Handler: l.handler, l: l})
}

// gate applies the logger's live threshold to records from a *slog.Logger.
type gate struct {
	slog.Handler
	l *Logger
}

func (g gate) Enabled(ctx context.Context, level slog.Level) bool {
	threshold := g.l.Level()
	if threshold == None || level < threshold.slogLevel() {
		return false
	}
	return g.Handler.Enabled(ctx, level)
}

func (g gate) Handle(ctx context.Context, r slog.Record) error {
	if !g.Enabled(ctx, r.Level) {
		return nil
	}
	return g.Handler.Handle(ctx, r)
}

func (g gate) WithAttrs(attrs []slog.Attr) slog.Handler {
	return gate{Handler: g.Handler.WithAttrs(attrs), l: g.l}
}

func (g gate) WithGroup(name string) slog.Handler {
	return gate{Handler: g.Handler.WithGroup(name), l: g.l}
}

func (l *Logger) Errorf(tag, format string, args ...any) {
	l.log(Error, tag, format, args)
}

func (l *Logger) Warnf(tag, format string, args ...any) {
	l.log(Warn, tag, format, args)
}

func (l *Logger) Infof(tag, format string, args ...any) {
	l.log(Info, tag, format, args)
}

func (l *Logger) Debugf(tag, format string, args ...any) {
	l.log(Debug, tag, format, args)
}

func (l *Logger) Verbosef(tag, format string, args ...any) {
	l.log(Verbose, tag, format, args)
}

func (l *Logger) log(level Level, tag, format string, args []any) {
	if !l.Enabled(level) {
		return
	}
	ctx := context.Background()
	sl := level.slogLevel()
	if !l.handler.Enabled(ctx, sl) {
		return
	}
	l.emit(ctx, sl, tag, fmt.Sprintf(format, args...))
}

func (l *Logger) emit(ctx context.Context, level slog.Level, tag, msg string) {
	r := slog.NewRecord(time.Now(), level, msg, 0)
	if tag != "" {
		r.AddAttrs(slog.String("tag", tag))
	}
	_ = l.handler.Handle(ctx, r)
}
