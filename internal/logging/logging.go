package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Field is a structured logging attribute.
type Field struct {
	Key   string
	Value any
}

// Field constructors.
func String(key, value string) Field             { return Field{Key: key, Value: value} }
func Int(key string, value int) Field            { return Field{Key: key, Value: value} }
func Float64(key string, value float64) Field    { return Field{Key: key, Value: value} }
func Bool(key string, value bool) Field          { return Field{Key: key, Value: value} }
func Duration(key string, d time.Duration) Field { return Field{Key: key, Value: d} }
func Any(key string, value any) Field            { return Field{Key: key, Value: value} }

// Err records err under the "error" key.
func Err(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: nil}
	}
	return Field{Key: "error", Value: err.Error()}
}

// Logger is the structured logger passed through the engine. Every method
// takes the request or run context.
type Logger interface {
	Debug(ctx context.Context, msg string, fields ...Field)
	Info(ctx context.Context, msg string, fields ...Field)
	Warn(ctx context.Context, msg string, fields ...Field)
	Error(ctx context.Context, msg string, fields ...Field)
	With(fields ...Field) Logger
}

// Config is the logging section of the engine config.
type Config struct {
	Level     string    `yaml:"level"`
	Format    string    `yaml:"format"`
	AddSource bool      `yaml:"add_source"`
	Output    io.Writer `yaml:"-"` // defaults to os.Stderr
}

// New builds a slog-backed Logger. Unknown levels fall back to info and
// unknown formats to text.
func New(cfg Config) Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level), AddSource: cfg.AddSource}
	if strings.EqualFold(cfg.Format, "json") {
		return &slogger{l: slog.New(slog.NewJSONHandler(out, opts))}
	}
	return &slogger{l: slog.New(slog.NewTextHandler(out, opts))}
}

// NewFromEnv builds a logger from LOG_LEVEL and LOG_FORMAT. Used before the
// engine config has been loaded.
func NewFromEnv() Logger {
	return New(Config{Level: os.Getenv("LOG_LEVEL"), Format: os.Getenv("LOG_FORMAT")})
}

// Noop returns a logger that drops everything.
func Noop() Logger { return noopLogger{} }

type slogger struct {
	l *slog.Logger
}

func (s *slogger) With(fields ...Field) Logger {
	args := make([]any, len(fields))
	for i, a := range attrs(fields) {
		args[i] = a
	}
	return &slogger{l: s.l.With(args...)}
}

func (s *slogger) Debug(ctx context.Context, msg string, fields ...Field) {
	s.l.LogAttrs(ctx, slog.LevelDebug, msg, attrs(fields)...)
}

func (s *slogger) Info(ctx context.Context, msg string, fields ...Field) {
	s.l.LogAttrs(ctx, slog.LevelInfo, msg, attrs(fields)...)
}

func (s *slogger) Warn(ctx context.Context, msg string, fields ...Field) {
	s.l.LogAttrs(ctx, slog.LevelWarn, msg, attrs(fields)...)
}

func (s *slogger) Error(ctx context.Context, msg string, fields ...Field) {
	s.l.LogAttrs(ctx, slog.LevelError, msg, attrs(fields)...)
}

type noopLogger struct{}

func (noopLogger) With(...Field) Logger                    { return noopLogger{} }
func (noopLogger) Debug(context.Context, string, ...Field) {}
func (noopLogger) Info(context.Context, string, ...Field)  {}
func (noopLogger) Warn(context.Context, string, ...Field)  {}
func (noopLogger) Error(context.Context, string, ...Field) {}

func attrs(fields []Field) []slog.Attr {
	out := make([]slog.Attr, len(fields))
	for i, f := range fields {
		out[i] = slog.Any(f.Key, f.Value)
	}
	return out
}

func parseLevel(level string) slog.Level {
	if strings.EqualFold(level, "warning") {
		return slog.LevelWarn
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// Correlation ids carried on the context. run_id ties together the log
// lines, spans and history entries of one optimization run; request_id
// identifies one inbound RPC, which may start several runs.
type ctxKey uint8

const (
	runIDKey ctxKey = iota
	requestIDKey
	loggerKey
)

func idFrom(ctx context.Context, key ctxKey) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(key).(string)
	return id
}

func ensureID(ctx context.Context, key ctxKey) (context.Context, string) {
	if ctx == nil {
		ctx = context.Background()
	}
	if id := idFrom(ctx, key); id != "" {
		return ctx, id
	}
	id := uuid.NewString()
	return context.WithValue(ctx, key, id), id
}

// EnsureRunID returns ctx carrying a run_id, generating one if absent.
func EnsureRunID(ctx context.Context) (context.Context, string) { return ensureID(ctx, runIDKey) }

// RunIDFromContext returns the run_id on ctx, or "".
func RunIDFromContext(ctx context.Context) string { return idFrom(ctx, runIDKey) }

// ContextWithRunID pins the run_id used by subsequent runs on ctx.
func ContextWithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey, id)
}

// WithRunLogger ensures a run_id and returns a logger annotated with it.
func WithRunLogger(ctx context.Context, base Logger) (context.Context, Logger) {
	return withID(ctx, base, runIDKey, "run_id")
}

// EnsureRequestID returns ctx carrying a request_id, generating one if absent.
func EnsureRequestID(ctx context.Context) (context.Context, string) {
	return ensureID(ctx, requestIDKey)
}

// RequestIDFromContext returns the request_id on ctx, or "".
func RequestIDFromContext(ctx context.Context) string { return idFrom(ctx, requestIDKey) }

func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// WithRequestLogger ensures a request_id and returns a logger annotated with it.
func WithRequestLogger(ctx context.Context, base Logger) (context.Context, Logger) {
	return withID(ctx, base, requestIDKey, "request_id")
}

func withID(ctx context.Context, base Logger, key ctxKey, field string) (context.Context, Logger) {
	if base == nil {
		base = Noop()
	}
	ctx, id := ensureID(ctx, key)
	return ctx, base.With(String(field, id))
}

// ContextWithLogger stores l on ctx for handlers further down the chain.
func ContextWithLogger(ctx context.Context, l Logger) context.Context {
	if l == nil {
		l = Noop()
	}
	return context.WithValue(ctx, loggerKey, l)
}

// FromContext returns the logger stored on ctx, else fallback, else Noop.
func FromContext(ctx context.Context, fallback Logger) Logger {
	if ctx != nil {
		if l, ok := ctx.Value(loggerKey).(Logger); ok {
			return l
		}
	}
	if fallback == nil {
		return Noop()
	}
	return fallback
}
