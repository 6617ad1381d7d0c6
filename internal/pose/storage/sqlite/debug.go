package sqlite

import (
	"io"
	"log"
)

var diagLogger *log.Logger

// SetLogWriters configures the logging streams for the sqlite package.
// Only diag is used, for migration progress.
func SetLogWriters(_, diag, _ io.Writer) {
	if diag == nil {
		diagLogger = nil
		return
	}
	diagLogger = log.New(diag, "[sqlite] ", log.LstdFlags|log.Lmicroseconds)
}

// diagf logs to the diag stream (schema migrations).
func diagf(format string, args ...interface{}) {
	if diagLogger != nil {
		diagLogger.Printf(format, args...)
	}
}
