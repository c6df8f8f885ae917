// Package logging appends timestamped lines to the durable log files under
// the configured log directory and mirrors them to the console.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const (
	infoFile  = "application.log"
	errorFile = "error.log"
)

// Logger writes [INFO] lines to application.log and [ERROR] lines to both
// application.log and error.log. A nil *Logger discards everything, and no
// method ever returns a write failure to the caller.
type Logger struct {
	sink   *sink
	prefix string
}

type sink struct {
	mu      sync.Mutex
	console io.Writer
	info    io.Writer
	errs    io.Writer
	closers []io.Closer
	now     func() time.Time
}

// New creates (or reuses) the log files inside dir. console may be nil.
func New(dir string, console io.Writer) (*Logger, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("logging: ensure log dir: %w", err)
	}
	info, err := openAppend(filepath.Join(dir, infoFile))
	if err != nil {
		return nil, err
	}
	errs, err := openAppend(filepath.Join(dir, errorFile))
	if err != nil {
		info.Close()
		return nil, err
	}
	return &Logger{sink: &sink{
		console: console,
		info:    info,
		errs:    errs,
		closers: []io.Closer{info, errs},
		now:     time.Now,
	}}, nil
}

// NewWriter builds a Logger over arbitrary writers; errs may equal info.
func NewWriter(info, errs io.Writer) *Logger {
	return &Logger{sink: &sink{info: info, errs: errs, now: time.Now}}
}

func openAppend(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("logging: open %s: %w", filepath.Base(path), err)
	}
	return f, nil
}

// With returns a Logger that prefixes every message, e.g. with a session id.
func (l *Logger) With(prefix string) *Logger {
	if l == nil {
		return nil
	}
	p := prefix
	if l.prefix != "" {
		p = l.prefix + " " + prefix
	}
	return &Logger{sink: l.sink, prefix: p}
}

// Infof writes a single timestamped [INFO] line.
func (l *Logger) Infof(format string, args ...any) {
	if l == nil || l.sink == nil {
		return
	}
	l.sink.write("INFO", l.message(format, args...), nil)
}

// Errorf writes an [ERROR] line followed by the full error chain.
func (l *Logger) Errorf(err error, format string, args ...any) {
	if l == nil || l.sink == nil {
		return
	}
	l.sink.write("ERROR", l.message(format, args...), err)
}

// Stackf records a recovered panic together with its stack.
func (l *Logger) Stackf(stack []byte, format string, args ...any) {
	if l == nil || l.sink == nil {
		return
	}
	l.sink.write("ERROR", l.message(format, args...)+"\n"+strings.TrimRight(string(stack), "\n"), nil)
}

// Close releases the file handles.
func (l *Logger) Close() error {
	if l == nil || l.sink == nil {
		return nil
	}
	var first error
	for _, c := range l.sink.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (l *Logger) message(format string, args ...any) string {
	msg := strings.TrimRight(fmt.Sprintf(format, args...), "\n")
	if l.prefix != "" {
		msg = l.prefix + " " + msg
	}
	return msg
}

func (s *sink) write(level, msg string, err error) {
	line := fmt.Sprintf("[%s] %s: %s", level, s.now().UTC().Format(time.RFC3339), msg)
	if err != nil {
		line += "\n  cause: " + err.Error()
	}
	line += "\n"

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.console != nil {
		_, _ = io.WriteString(s.console, line)
	}
	if s.info != nil {
		_, _ = io.WriteString(s.info, line)
	}
	if level == "ERROR" && s.errs != nil && s.errs != s.info {
		_, _ = io.WriteString(s.errs, line)
	}
}
