package util

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/fatih/color"
)

var (
	infoTag  = color.New(color.FgGreen).Sprint("INFO")
	warnTag  = color.New(color.FgYellow).Sprint("WARN")
	errTag   = color.New(color.FgRed, color.Bold).Sprint("ERR ")
	debugTag = color.New(color.FgCyan).Sprint("DBG ")
)

// Logger is a verbosity-gated wrapper around a *log.Logger.  Info, Warn and
// Error are always written; Debug(n, ...) is written when Verbosity >= n.
type Logger struct {
	*log.Logger

	Verbosity int
}

// NewLogger returns a Logger writing to w with the standard flags and the
// given prefix
func NewLogger(w io.Writer, prefix string, verbosity int) *Logger {
	if w == nil {
		w = os.Stderr
	}
	return &Logger{Logger: log.New(w, prefix, log.LstdFlags|log.Lmicroseconds), Verbosity: verbosity}
}

// Discard returns a Logger that writes nothing
func Discard() *Logger {
	return &Logger{Logger: log.New(io.Discard, "", 0)}
}

// Info logs an informational message
func (l *Logger) Info(format string, args ...interface{}) {
	l.Output(2, infoTag+" "+fmt.Sprintf(format, args...))
}

// Warn logs a warning
func (l *Logger) Warn(format string, args ...interface{}) {
	l.Output(2, warnTag+" "+fmt.Sprintf(format, args...))
}

// Error logs an error
func (l *Logger) Error(format string, args ...interface{}) {
	l.Output(2, errTag+" "+fmt.Sprintf(format, args...))
}

// Debug logs a message if the verbosity is at least level
func (l *Logger) Debug(level int, format string, args ...interface{}) {
	if l.Verbosity < level {
		return
	}
	l.Output(2, debugTag+" "+fmt.Sprintf(format, args...))
}
