package clog

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger is what the subsystems log through.
type Logger interface {
	Logf(format string, v ...any)
}

type subsystemLogger struct {
	name   string
	parent *SystemLogger
}

func (s *subsystemLogger) Logf(format string, v ...any) {
	s.parent.logf(s.name, format, v...)
}

// SystemLogger hands out per-subsystem loggers writing to one rotated file.
type SystemLogger struct {
	lock    sync.RWMutex
	base    *slog.Logger
	closer  io.Closer
	enabled bool
}

// NewSystemLogger writes JSON lines to path, rotating at maxSizeMB.
// An empty path logs to stderr.
func NewSystemLogger(path string, maxSizeMB int, enabled bool) *SystemLogger {
	var w io.Writer = os.Stderr
	var closer io.Closer
	if path != "" {
		lj := &lumberjack.Logger{
			Filename:   path,
			MaxSize:    maxSizeMB,
			MaxBackups: 3,
			Compress:   true,
		}
		w = lj
		closer = lj
	}

	return &SystemLogger{
		base:    slog.New(slog.NewJSONHandler(w, nil)),
		closer:  closer,
		enabled: enabled,
	}
}

func (l *SystemLogger) Subsystem(name string) Logger {
	return &subsystemLogger{name: name, parent: l}
}

func (l *SystemLogger) EnableLogging() {
	l.lock.Lock()
	l.enabled = true
	l.lock.Unlock()
}

func (l *SystemLogger) DisableLogging() {
	l.lock.Lock()
	l.enabled = false
	l.lock.Unlock()
}

func (l *SystemLogger) logf(subsystem, format string, v ...any) {
	l.lock.RLock()
	enabled := l.enabled
	l.lock.RUnlock()

	if !enabled {
		return
	}
	l.base.Info(fmt.Sprintf(format, v...), "subsystem", subsystem)
}

func (l *SystemLogger) Close() {
	if l.closer != nil {
		l.closer.Close()
	}
}

type nopLogger struct{}

func (nopLogger) Logf(string, ...any) {}

// Nop returns a logger that discards everything. Used in tests.
func Nop() Logger { return nopLogger{} }
