package logging

import (
	"fmt"
	"log"
)

// Logger is the logging collaborator injected into the core. The core never
// owns process-wide log state; callers decide where output goes.
type Logger interface {
	Debug(category, format string, args ...any)
	Info(category, format string, args ...any)
	Warn(category, format string, args ...any)
	Error(category, format string, args ...any)
}

// StdLogger writes through a standard library *log.Logger.
type StdLogger struct {
	out     *log.Logger
	verbose bool
}

// New wraps a stdlib logger. Debug output is dropped unless verbose is set.
func New(out *log.Logger, verbose bool) *StdLogger {
	return &StdLogger{out: out, verbose: verbose}
}

func (l *StdLogger) Debug(category, format string, args ...any) {
	if !l.verbose {
		return
	}
	l.write("DEBUG", category, format, args...)
}

func (l *StdLogger) Info(category, format string, args ...any) {
	l.write("INFO", category, format, args...)
}

func (l *StdLogger) Warn(category, format string, args ...any) {
	l.write("WARN", category, format, args...)
}

func (l *StdLogger) Error(category, format string, args ...any) {
	l.write("ERROR", category, format, args...)
}

func (l *StdLogger) write(level, category, format string, args ...any) {
	l.out.Printf("%s [%s] %s", level, category, fmt.Sprintf(format, args...))
}

// Nop discards everything. Useful default for tests.
type Nop struct{}

func (Nop) Debug(string, string, ...any) {}
func (Nop) Info(string, string, ...any)  {}
func (Nop) Warn(string, string, ...any)  {}
func (Nop) Error(string, string, ...any) {}
