// Package telemetry adapts clue logging to runtime surfaces that expect a
// context-free logger, such as the engine worker and the Temporal client.
package telemetry

import (
	"context"

	"goa.design/clue/log"

	"github.com/flowplane/flowplane/engine"
)

// Logger emits logs through clue, bound to the context given at
// construction. Formatting and debug settings come from that context, set
// via log.Context and log.WithFormat/log.WithDebug.
type Logger struct {
	ctx context.Context
}

var _ engine.Logger = (*Logger)(nil)

// NewLogger returns a Logger bound to ctx.
func NewLogger(ctx context.Context) *Logger {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Logger{ctx: ctx}
}

// Debug emits a debug-level message with structured key-value pairs.
func (l *Logger) Debug(msg string, keyvals ...any) {
	log.Debug(l.ctx, fielders(msg, keyvals)...)
}

// Info emits an info-level message with structured key-value pairs.
func (l *Logger) Info(msg string, keyvals ...any) {
	log.Info(l.ctx, fielders(msg, keyvals)...)
}

// Warn emits a warning with structured key-value pairs.
func (l *Logger) Warn(msg string, keyvals ...any) {
	fs := []log.Fielder{log.KV{K: "msg", V: msg}, log.KV{K: "severity", V: "warning"}}
	fs = append(fs, kvFielders(keyvals)...)
	log.Warn(l.ctx, fs...)
}

// Error emits an error-level message with structured key-value pairs.
func (l *Logger) Error(msg string, keyvals ...any) {
	log.Error(l.ctx, nil, fielders(msg, keyvals)...)
}

func fielders(msg string, keyvals []any) []log.Fielder {
	return append([]log.Fielder{log.KV{K: "msg", V: msg}}, kvFielders(keyvals)...)
}

// kvFielders converts alternating key/value pairs into clue fielders.
// Non-string keys are skipped and an odd trailing key is paired with nil.
func kvFielders(keyvals []any) []log.Fielder {
	var fs []log.Fielder
	for i := 0; i < len(keyvals); i += 2 {
		k, ok := keyvals[i].(string)
		if !ok {
			continue
		}
		var v any
		if i+1 < len(keyvals) {
			v = keyvals[i+1]
		}
		fs = append(fs, log.KV{K: k, V: v})
	}
	return fs
}
