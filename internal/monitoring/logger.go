// Package monitoring owns the process-wide diagnostic log streams.
//
// Three streams are kept apart so operators can silence the noisy ones:
//   - ops: actionable warnings, errors, data loss
//   - diag: day-to-day diagnostics and tuning context
//   - trace: per-frame telemetry
package monitoring

import (
	"io"
	"log"
	"os"
)

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

var (
	opsLogger   = newLogger("[footfall] ", os.Stderr)
	diagLogger  = newLogger("[footfall] ", os.Stderr)
	traceLogger *log.Logger
)

// SetLogWriters configures the three logging streams.
// Pass nil for any writer to disable that stream.
func SetLogWriters(ops, diag, trace io.Writer) {
	opsLogger = newLogger("[footfall] ", ops)
	diagLogger = newLogger("[footfall] ", diag)
	traceLogger = newLogger("[footfall] ", trace)
}

func newLogger(prefix string, w io.Writer) *log.Logger {
	if w == nil {
		return nil
	}
	return log.New(w, prefix, log.LstdFlags|log.Lmicroseconds)
}

// Opsf logs to the ops stream (actionable warnings, errors, data loss).
func Opsf(format string, args ...interface{}) {
	if opsLogger != nil {
		opsLogger.Printf(format, args...)
	}
}

// Diagf logs to the diag stream (day-to-day diagnostics, tuning context).
func Diagf(format string, args ...interface{}) {
	if diagLogger != nil {
		diagLogger.Printf(format, args...)
	}
}

// Tracef logs to the trace stream (high-frequency frame telemetry).
func Tracef(format string, args ...interface{}) {
	if traceLogger != nil {
		traceLogger.Printf(format, args...)
	}
}
