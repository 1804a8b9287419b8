// Package observability carries the ambient logging, metrics, and tracing
// stack: a stdlib-backed structured Logger, Prometheus metrics via
// promauto, and OpenTelemetry tracing with a pluggable exporter.
package observability

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"
)

// Logger is the structured logging contract of this package. It satisfies
// the root Machine facade's narrower Logger interface; the engine,
// eventlog, archive, and lock packages take no logger.
type Logger interface {
	Error(msg string, fields ...any)
	Errorf(format string, args ...any)
	Warn(msg string, fields ...any)
	Warnf(format string, args ...any)
	Info(msg string, fields ...any)
	Infof(format string, args ...any)
	Debug(msg string, fields ...any)
	Debugf(format string, args ...any)
	WithFields(fields ...any) Logger
	WithContext(ctx context.Context) Logger
}

// Level is the minimum severity a Logger emits.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// Config configures a default Logger.
type Config struct {
	JSONOutput bool
	Level      Level
}

type defaultLogger struct {
	cfg    Config
	fields []any
	out    *log.Logger
}

// New returns a Logger backed by the standard library's log.Logger, either
// plain-text or one-JSON-object-per-line depending on cfg.JSONOutput.
func New(cfg Config) Logger {
	return &defaultLogger{cfg: cfg, out: log.New(os.Stderr, "", 0)}
}

// NewJSON is a convenience constructor for the common JSON-output case.
func NewJSON(level Level) Logger {
	return New(Config{JSONOutput: true, Level: level})
}

type logEntry struct {
	Time    string `json:"time"`
	Level   string `json:"level"`
	Message string `json:"message"`
	Fields  []any  `json:"fields,omitempty"`
}

func (l *defaultLogger) log(level Level, levelName, msg string, fields ...any) {
	if level < l.cfg.Level {
		return
	}
	all := append(append([]any(nil), l.fields...), fields...)
	if l.cfg.JSONOutput {
		entry := logEntry{Time: time.Now().Format(time.RFC3339Nano), Level: levelName, Message: msg, Fields: all}
		b, err := json.Marshal(entry)
		if err != nil {
			l.out.Printf("%s %s (marshal error: %v)", levelName, msg, err)
			return
		}
		l.out.Println(string(b))
		return
	}
	if len(all) > 0 {
		l.out.Printf("[%s] %s %v", levelName, msg, all)
	} else {
		l.out.Printf("[%s] %s", levelName, msg)
	}
}

func (l *defaultLogger) Error(msg string, fields ...any) { l.log(LevelError, "ERROR", msg, fields...) }
func (l *defaultLogger) Errorf(format string, args ...any) {
	l.log(LevelError, "ERROR", fmt.Sprintf(format, args...))
}
func (l *defaultLogger) Warn(msg string, fields ...any) { l.log(LevelWarn, "WARN", msg, fields...) }
func (l *defaultLogger) Warnf(format string, args ...any) {
	l.log(LevelWarn, "WARN", fmt.Sprintf(format, args...))
}
func (l *defaultLogger) Info(msg string, fields ...any) { l.log(LevelInfo, "INFO", msg, fields...) }
func (l *defaultLogger) Infof(format string, args ...any) {
	l.log(LevelInfo, "INFO", fmt.Sprintf(format, args...))
}
func (l *defaultLogger) Debug(msg string, fields ...any) { l.log(LevelDebug, "DEBUG", msg, fields...) }
func (l *defaultLogger) Debugf(format string, args ...any) {
	l.log(LevelDebug, "DEBUG", fmt.Sprintf(format, args...))
}

func (l *defaultLogger) WithFields(fields ...any) Logger {
	return &defaultLogger{cfg: l.cfg, out: l.out, fields: append(append([]any(nil), l.fields...), fields...)}
}

func (l *defaultLogger) WithContext(_ context.Context) Logger {
	// No request-scoped fields are threaded through context.Context in this
	// module; kept for Logger interface parity.
	return l
}
