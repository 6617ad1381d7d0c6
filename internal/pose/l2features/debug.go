package l2features

import (
	"io"
	"log"
)

var traceLogger *log.Logger

// SetLogWriters configures the logging streams for the l2features package.
// Normalization is pure, so only the trace stream is used; ops and diag are
// accepted to keep the signature uniform across layers.
func SetLogWriters(_, _, trace io.Writer) {
	if trace == nil {
		traceLogger = nil
		return
	}
	traceLogger = log.New(trace, "[l2features] ", log.LstdFlags|log.Lmicroseconds)
}

// tracef logs to the trace stream (per-frame telemetry).
func tracef(format string, args ...interface{}) {
	if traceLogger != nil {
		traceLogger.Printf(format, args...)
	}
}
