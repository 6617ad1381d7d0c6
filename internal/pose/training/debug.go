package training

import (
	"io"
	"log"
)

var (
	opsLogger  *log.Logger
	diagLogger *log.Logger
)

// SetLogWriters configures the logging streams for the training package.
// Pass nil for any writer to disable that stream. Training has no
// per-frame output, so trace is ignored.
func SetLogWriters(ops, diag, trace io.Writer) {
	_ = trace
	opsLogger = newLogger("[training] ", ops)
	diagLogger = newLogger("[training] ", diag)
}

func newLogger(prefix string, w io.Writer) *log.Logger {
	if w == nil {
		return nil
	}
	return log.New(w, prefix, log.LstdFlags|log.Lmicroseconds)
}

// opsf logs to the ops stream (failed runs, ledger errors).
func opsf(format string, args ...interface{}) {
	if opsLogger != nil {
		opsLogger.Printf(format, args...)
	}
}

// diagf logs to the diag stream (dataset shape, run completion).
func diagf(format string, args ...interface{}) {
	if diagLogger != nil {
		diagLogger.Printf(format, args...)
	}
}
