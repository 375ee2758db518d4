// Package logging builds the prefixed loggers used across atlas. Daemon
// output goes to stderr and to a size-rotated log file in the state
// directory.
package logging

import (
	"io"
	"log"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/steveyegge/atlas/internal/config"
)

// Sink is a shared writer loggers are created on.
type Sink struct {
	w      io.Writer
	closer io.Closer
}

// NewSink returns a sink writing to stderr and, when cfg.Log.File is set,
// to a rotated file.
func NewSink(cfg *config.Config) (*Sink, error) {
	path := cfg.LogPath()
	if path == "" {
		return &Sink{w: os.Stderr}, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	lj := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAgeDays,
		Compress:   true,
	}
	return &Sink{w: io.MultiWriter(os.Stderr, lj), closer: lj}, nil
}

// Discard returns a sink that drops everything. Used by tests and by
// one-shot CLI commands that print their own output.
func Discard() *Sink {
	return &Sink{w: io.Discard}
}

// Stderr returns a sink writing only to stderr.
func Stderr() *Sink {
	return &Sink{w: os.Stderr}
}

// Logger returns a logger with "[component] " prefix.
func (s *Sink) Logger(component string) *log.Logger {
	return log.New(s.w, "["+component+"] ", log.LstdFlags)
}

// Close flushes and closes the rotated file, if any.
func (s *Sink) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}
