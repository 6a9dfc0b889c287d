package log

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog"

	tkerrors "github.com/go-tabkit/tabkit/pkg/errors"
)

// ZerologProvider implements LoggerProvider on top of github.com/rs/zerolog.
// It is the default production provider: JSON lines to stderr with timestamps,
// structured warning types rendered through their MarshalZerologObject methods.
type ZerologProvider struct {
	mu    sync.Mutex
	level Level
	root  zerolog.Logger
}

// NewZerologProvider creates a provider writing JSON log lines to stderr.
func NewZerologProvider(level Level) *ZerologProvider {
	return NewZerologProviderWithWriter(level, os.Stderr)
}

// NewZerologProviderWithWriter creates a provider writing to the given writer.
// Useful for redirecting logs in tests or batch jobs.
func NewZerologProviderWithWriter(level Level, w io.Writer) *ZerologProvider {
	root := zerolog.New(w).With().Timestamp().Logger().Level(toZerologLevel(level))
	return &ZerologProvider{level: level, root: root}
}

// GetLogger implements LoggerProvider.GetLogger.
func (p *ZerologProvider) GetLogger() Logger {
	p.mu.Lock()
	defer p.mu.Unlock()
	return &zerologLogger{l: p.root, level: p.level}
}

// GetLoggerWithName implements LoggerProvider.GetLoggerWithName.
func (p *ZerologProvider) GetLoggerWithName(name string) Logger {
	p.mu.Lock()
	defer p.mu.Unlock()
	return &zerologLogger{
		l:     p.root.With().Str(ComponentKey, name).Logger(),
		level: p.level,
	}
}

// SetLevel implements LoggerProvider.SetLevel.
func (p *ZerologProvider) SetLevel(level Level) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.level = level
	p.root = p.root.Level(toZerologLevel(level))
}

// CaptureWarnings routes warnings raised through pkg/errors.Warn into the
// given provider as structured warn-level log records. Call once at startup:
//
//	provider := log.NewZerologProvider(log.LevelInfo)
//	log.CaptureWarnings(provider)
func CaptureWarnings(provider LoggerProvider) {
	logger := provider.GetLoggerWithName("warnings")
	tkerrors.SetZerologWarnFunc(func(w error) {
		logger.Warn(w.Error(), "warning", w)
	})
}

type zerologLogger struct {
	l     zerolog.Logger
	level Level
}

func (z *zerologLogger) Debug(msg string, fields ...any) {
	z.emit(z.l.Debug(), msg, fields)
}

func (z *zerologLogger) Info(msg string, fields ...any) {
	z.emit(z.l.Info(), msg, fields)
}

func (z *zerologLogger) Warn(msg string, fields ...any) {
	z.emit(z.l.Warn(), msg, fields)
}

func (z *zerologLogger) Error(msg string, fields ...any) {
	z.emit(z.l.Error(), msg, fields)
}

func (z *zerologLogger) With(fields ...any) Logger {
	ctx := z.l.With()
	for i := 0; i+1 < len(fields); i += 2 {
		key := fmt.Sprintf("%v", fields[i])
		ctx = ctx.Interface(key, fields[i+1])
	}
	return &zerologLogger{l: ctx.Logger(), level: z.level}
}

func (z *zerologLogger) Enabled(_ context.Context, level Level) bool {
	return z.level <= level
}

// emit attaches the field pairs to the event. Error values additionally get a
// stacktrace attribute when one is recoverable from the error chain, and
// zerolog.LogObjectMarshaler values (the structured error/warning types in
// pkg/errors) are embedded as nested objects.
func (z *zerologLogger) emit(e *zerolog.Event, msg string, fields []any) {
	for i := 0; i+1 < len(fields); i += 2 {
		key := fmt.Sprintf("%v", fields[i])
		switch v := fields[i+1].(type) {
		case zerolog.LogObjectMarshaler:
			e = e.Object(key, v)
		case error:
			e = e.AnErr(key, v)
			if st := extractStacktrace(v); st != "" {
				e = e.Str(StacktraceAttrKey, st)
			}
		default:
			e = e.Interface(key, v)
		}
	}
	e.Msg(msg)
}

func toZerologLevel(level Level) zerolog.Level {
	switch {
	case level <= LevelDebug:
		return zerolog.DebugLevel
	case level <= LevelInfo:
		return zerolog.InfoLevel
	case level <= LevelWarn:
		return zerolog.WarnLevel
	default:
		return zerolog.ErrorLevel
	}
}
