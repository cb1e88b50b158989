package authcore

import (
	"io"
	"log"
	"os"
)

// Logger receives the engine's diagnostic messages.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

// StdLogger writes through a standard library logger. Debug output is off unless Verbose.
type StdLogger struct {
	Logger  *log.Logger
	Verbose bool
}

// NewStdLogger returns a logger writing to w with the "authcore: " prefix. A nil w means
// stderr.
func NewStdLogger(w io.Writer) *StdLogger {
	if w == nil {
		w = os.Stderr
	}
	return &StdLogger{Logger: log.New(w, "authcore: ", log.LstdFlags)}
}

func (l *StdLogger) Debugf(format string, args ...any) {
	if l.Verbose {
		l.Logger.Printf("DEBUG "+format, args...)
	}
}

func (l *StdLogger) Infof(format string, args ...any) {
	l.Logger.Printf("INFO "+format, args...)
}

func (l *StdLogger) Warnf(format string, args ...any) {
	l.Logger.Printf("WARN "+format, args...)
}

func (l *StdLogger) Errorf(format string, args ...any) {
	l.Logger.Printf("ERROR "+format, args...)
}

// NopLogger discards everything.
type NopLogger struct{}

func (NopLogger) Debugf(string, ...any) {}
func (NopLogger) Infof(string, ...any)  {}
func (NopLogger) Warnf(string, ...any)  {}
func (NopLogger) Errorf(string, ...any) {}
