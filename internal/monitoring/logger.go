// Package monitoring wires the process-level log streams used by the binaries.
//
// Core packages each expose SetLogWriters(ops, diag, trace). The binaries call
// OpenStreams once and hand the resulting writers to every package, so all
// three streams share rotation and retention settings.
package monitoring

import (
	"io"
	"log"
	"os"
	"path/filepath"

	"go.uber.org/multierr"
	"gopkg.in/natefinch/lumberjack.v2"
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

// StreamOptions controls where the ops, diag and trace streams are written.
type StreamOptions struct {
	// Dir holds the rotated ops.log, diag.log and trace.log files. Empty
	// means no files are written.
	Dir string
	// ToStdout mirrors ops and diag to stdout.
	ToStdout bool
	// Trace enables the high-frequency per-frame stream.
	Trace bool
	// MaxSizeMB is the rotation threshold per file (default 50).
	MaxSizeMB int
	// MaxBackups bounds retained rotated files (0 keeps all).
	MaxBackups int
}

// LogStreams holds the three writers plus the files behind them.
type LogStreams struct {
	Ops   io.Writer
	Diag  io.Writer
	Trace io.Writer

	closers []io.Closer
}

// OpenStreams builds the writers described by opts. A stream with no
// destination is returned as nil, which SetLogWriters treats as muted.
func OpenStreams(opts StreamOptions) *LogStreams {
	s := &LogStreams{}
	maxSize := opts.MaxSizeMB
	if maxSize <= 0 {
		maxSize = 50
	}

	rotating := func(name string) io.Writer {
		if opts.Dir == "" {
			return nil
		}
		lj := &lumberjack.Logger{
			Filename:   filepath.Join(opts.Dir, name),
			MaxSize:    maxSize, // megabytes
			MaxBackups: opts.MaxBackups,
			LocalTime:  false,
			Compress:   true,
		}
		s.closers = append(s.closers, lj)
		return lj
	}

	s.Ops = combine(rotating("ops.log"), opts.ToStdout)
	s.Diag = combine(rotating("diag.log"), opts.ToStdout)
	if opts.Trace {
		s.Trace = rotating("trace.log")
		if s.Trace == nil {
			s.Trace = os.Stdout
		}
	}
	return s
}

func combine(file io.Writer, stdout bool) io.Writer {
	switch {
	case file != nil && stdout:
		return io.MultiWriter(file, os.Stdout)
	case file != nil:
		return file
	case stdout:
		return os.Stdout
	default:
		return nil
	}
}

// Close closes every rotating file opened by OpenStreams.
func (s *LogStreams) Close() error {
	var err error
	for _, c := range s.closers {
		err = multierr.Append(err, c.Close())
	}
	s.closers = nil
	return err
}
