// Package logx provides the plain writer-backed logger used across the
// build engine and its collaborators: short, emoji-tagged lines gated
// by a debug flag rather than a structured logging library.
package logx

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

var isDebug = os.Getenv("TRUNK_DEBUG") != ""

// Logger writes human-readable build progress to an io.Writer.
type Logger struct {
	out io.Writer
}

// New creates a Logger writing to out.
func New(out io.Writer) *Logger {
	return &Logger{out: out}
}

// Default returns a Logger writing to stderr.
func Default() *Logger {
	return New(os.Stderr)
}

func (l *Logger) Info(format string, args ...any) {
	fmt.Fprintf(l.out, "ℹ️  %s\n", fmt.Sprintf(format, args...))
}

func (l *Logger) Success(format string, args ...any) {
	fmt.Fprintf(l.out, "✅ %s\n", fmt.Sprintf(format, args...))
}

func (l *Logger) Start(format string, args ...any) {
	fmt.Fprintf(l.out, "🚀 %s\n", fmt.Sprintf(format, args...))
}

func (l *Logger) Error(format string, args ...any) {
	fmt.Fprintf(l.out, "🔴 %s\n", fmt.Sprintf(format, args...))
}

func (l *Logger) Debug(format string, args ...any) {
	if !isDebug {
		return
	}
	fmt.Fprintf(l.out, "🔧 %s\n", fmt.Sprintf(format, args...))
}

func (l *Logger) Banner(title string) {
	fmt.Fprintf(l.out, "\n== %s ==\n\n", title)
}

// QuietWriter discards all output, used when a build stage is run with
// output suppressed (e.g. inside test harnesses).
func QuietWriter() io.Writer {
	return io.Discard
}

// FormatPath renders a filesystem path for a log line, shortening it to
// a relative-looking form when possible.
func FormatPath(path string) string {
	if wd, err := os.Getwd(); err == nil {
		if rel, err := filepath.Rel(wd, path); err == nil {
			return rel
		}
	}
	return path
}
