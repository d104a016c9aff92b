package log

import (
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// ZerologAdapter implements Logger using zerolog.
// Adapters derived with With share the level of their parent.
type ZerologAdapter struct {
	logger zerolog.Logger
	level  *atomic.Int32
}

type zerologOptions struct {
	out   io.Writer
	level Level
	json  bool
}

// Option configures NewZerologAdapter.
type Option func(*zerologOptions)

// WithLevel sets the initial level. Defaults to info.
func WithLevel(l Level) Option {
	return func(o *zerologOptions) { o.level = l }
}

// WithWriter sets the output. Defaults to stderr.
func WithWriter(w io.Writer) Option {
	return func(o *zerologOptions) { o.out = w }
}

// WithJSON writes JSON lines instead of the console format.
func WithJSON() Option {
	return func(o *zerologOptions) { o.json = true }
}

// NewZerologAdapter creates a new zerolog adapter with console output.
func NewZerologAdapter(opts ...Option) *ZerologAdapter {
	o := zerologOptions{out: os.Stderr, level: LevelInfo}
	for _, opt := range opts {
		opt(&o)
	}
	out := o.out
	if !o.json {
		out = zerolog.ConsoleWriter{
			Out:        o.out,
			TimeFormat: time.RFC3339,
		}
	}
	logger := zerolog.New(out).With().Timestamp().Logger()
	a := NewZerologAdapterWithLogger(logger)
	a.SetLevel(o.level)
	return a
}

// NewZerologAdapterWithLogger creates an adapter wrapping an existing zerolog.Logger.
func NewZerologAdapterWithLogger(logger zerolog.Logger) *ZerologAdapter {
	lvl := new(atomic.Int32)
	lvl.Store(int32(zerolog.DebugLevel))
	return &ZerologAdapter{logger: logger, level: lvl}
}

// SetLevel changes the level of the adapter and of every adapter derived from it.
func (z *ZerologAdapter) SetLevel(l Level) {
	z.level.Store(int32(toZerolog(l)))
}

// Level returns the current level.
func (z *ZerologAdapter) Level() Level {
	switch zerolog.Level(z.level.Load()) {
	case zerolog.DebugLevel:
		return LevelDebug
	case zerolog.WarnLevel:
		return LevelWarn
	case zerolog.ErrorLevel:
		return LevelError
	default:
		return LevelInfo
	}
}

// With returns an adapter that adds fields to every message.
func (z *ZerologAdapter) With(fields ...Field) *ZerologAdapter {
	ctx := z.logger.With()
	for _, f := range fields {
		ctx = ctx.Interface(f.Key, f.Value)
	}
	return &ZerologAdapter{logger: ctx.Logger(), level: z.level}
}

func toZerolog(l Level) zerolog.Level {
	switch l {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func (z *ZerologAdapter) log(lvl zerolog.Level, msg string, fields []Field) {
	if lvl < zerolog.Level(z.level.Load()) {
		return
	}
	event := z.logger.WithLevel(lvl)
	for _, f := range fields {
		event = addField(event, f)
	}
	event.Msg(msg)
}

// Debug logs a debug-level message.
func (z *ZerologAdapter) Debug(msg string, fields ...Field) {
	z.log(zerolog.DebugLevel, msg, fields)
}

// Info logs an info-level message.
func (z *ZerologAdapter) Info(msg string, fields ...Field) {
	z.log(zerolog.InfoLevel, msg, fields)
}

// Warn logs a warning-level message.
func (z *ZerologAdapter) Warn(msg string, fields ...Field) {
	z.log(zerolog.WarnLevel, msg, fields)
}

// Error logs an error-level message.
func (z *ZerologAdapter) Error(msg string, fields ...Field) {
	z.log(zerolog.ErrorLevel, msg, fields)
}

// addField adds a Field to a zerolog.Event.
func addField(event *zerolog.Event, f Field) *zerolog.Event {
	switch v := f.Value.(type) {
	case string:
		return event.Str(f.Key, v)
	case []string:
		return event.Strs(f.Key, v)
	case int:
		return event.Int(f.Key, v)
	case int32:
		return event.Int32(f.Key, v)
	case []int32:
		return event.Ints32(f.Key, v)
	case int64:
		return event.Int64(f.Key, v)
	case float64:
		return event.Float64(f.Key, v)
	case bool:
		return event.Bool(f.Key, v)
	case time.Duration:
		return event.Dur(f.Key, v)
	case error:
		return event.AnErr(f.Key, v)
	default:
		return event.Interface(f.Key, v)
	}
}

// Logger returns the underlying zerolog.Logger.
func (z *ZerologAdapter) Logger() zerolog.Logger {
	return z.logger
}
