package logging

import (
	"sync"

	"github.com/go-logr/logr"
)

const (
	LEVEL_INFO  = 0
	LEVEL_DEBUG = 1
	LEVEL_TRACE = 2
)

// NewLogger creates a new Logger instance wrapping the given logr.Logger. A zero logr.Logger
// is replaced with one that discards everything.
func NewLogger(log logr.Logger) *Logger {
	if log.GetSink() == nil {
		log = logr.Discard()
	}
	return &Logger{log: log}
}

// DefaultLogger returns a Logger that discards all output.
func DefaultLogger() *Logger {
	return &Logger{log: logr.Discard()}
}

// Logger is a struct that wraps the logr.Logger interface.
type Logger struct {
	log  logr.Logger
	once sync.Map
}

// Log methods (minimizing footprint in the rest of the library)
func (l *Logger) Debug(msg string, keysAndValues ...interface{}) {
	l.log.V(LEVEL_DEBUG).Info(msg, keysAndValues...)
}

func (l *Logger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Info(msg, keysAndValues...)
}

func (l *Logger) Trace(msg string, keysAndValues ...interface{}) {
	l.log.V(LEVEL_TRACE).Info(msg, keysAndValues...)
}

func (l *Logger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error(err, msg, keysAndValues...)
}

// Warn logs at info level with a "warning" marker so sinks without a warning level still
// single it out.
func (l *Logger) Warn(msg string, keysAndValues ...interface{}) {
	l.log.Info(msg, append([]interface{}{"severity", "warning"}, keysAndValues...)...)
}

// WarnOnce logs a warning the first time it is called with the given key on this Logger and
// reports whether it logged.
func (l *Logger) WarnOnce(key string, msg string, keysAndValues ...interface{}) bool {
	if _, seen := l.once.LoadOrStore(key, struct{}{}); seen {
		return false
	}
	l.Warn(msg, keysAndValues...)
	return true
}

// WithName returns a Logger whose messages are prefixed with the given name.
func (l *Logger) WithName(name string) *Logger {
	return &Logger{log: l.log.WithName(name)}
}

// Logr exposes the underlying logr.Logger.
func (l *Logger) Logr() logr.Logger {
	return l.log
}
