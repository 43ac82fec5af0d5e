// Package logging builds the zap logger and exposes the small Logger
// capability the queue components accept.
package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is an output sink. meta is a list of alternating keys and values.
type Logger interface {
	Debug(msg string, meta ...any)
	Verbose(msg string, meta ...any)
	Info(msg string, meta ...any)
	Warn(msg string, meta ...any)
	Error(msg string, meta ...any)
}

// New returns a JSON production logger, or a console logger when appEnv is
// "development".
func New(appEnv, level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(strings.ToLower(level))
	if err != nil {
		return nil, fmt.Errorf("log level %q: %w", level, err)
	}
	cfg := zap.NewProductionConfig()
	if appEnv == "development" {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}

type zapLogger struct{ s *zap.SugaredLogger }

// FromZap adapts l to Logger.
func FromZap(l *zap.Logger) Logger { return zapLogger{l.Sugar()} }

func (z zapLogger) Debug(msg string, meta ...any) { z.s.Debugw(msg, meta...) }

// Verbose is debug output flagged for high volume paths such as polling.
func (z zapLogger) Verbose(msg string, meta ...any) {
	z.s.Debugw(msg, append(meta, "verbose", true)...)
}

func (z zapLogger) Info(msg string, meta ...any)  { z.s.Infow(msg, meta...) }
func (z zapLogger) Warn(msg string, meta ...any)  { z.s.Warnw(msg, meta...) }
func (z zapLogger) Error(msg string, meta ...any) { z.s.Errorw(msg, meta...) }

// With returns l with meta attached to every entry. Loggers that are not
// backed by zap are returned unchanged.
func With(l Logger, meta ...any) Logger {
	if z, ok := l.(zapLogger); ok {
		return zapLogger{z.s.With(meta...)}
	}
	return l
}

func Nop() Logger { return FromZap(zap.NewNop()) }

// OrNop returns l, or a no-op logger when l is nil.
func OrNop(l Logger) Logger {
	if l == nil {
		return Nop()
	}
	return l
}
