// Package logger provides the component logger used across the marketplace service.
package logger

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logger is a logrus entry scoped to one component.
type Logger struct {
	*logrus.Entry
}

// Config controls logger construction.
type Config struct {
	Level     string    `yaml:"level"`
	Format    string    `yaml:"format"` // "text" or "json"
	Component string    `yaml:"-"`
	Output    io.Writer `yaml:"-"`
}

// New creates a logger from cfg. Unknown levels fall back to info.
func New(cfg Config) *Logger {
	base := logrus.New()

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	base.SetOutput(out)

	level, err := logrus.ParseLevel(strings.TrimSpace(cfg.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	base.SetLevel(level)

	if strings.EqualFold(cfg.Format, "json") {
		base.SetFormatter(&logrus.JSONFormatter{})
	} else {
		base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	entry := logrus.NewEntry(base)
	if cfg.Component != "" {
		entry = entry.WithField("component", cfg.Component)
	}
	return &Logger{Entry: entry}
}

// NewDefault creates an info-level text logger for component.
func NewDefault(component string) *Logger {
	return New(Config{Level: "info", Component: component})
}

// Named returns a child logger for a sub-component sharing the same output.
func (l *Logger) Named(component string) *Logger {
	return &Logger{Entry: l.Entry.WithField("component", component)}
}

// Discard returns a logger that drops everything. Used by tests.
func Discard() *Logger {
	return New(Config{Level: "panic", Output: io.Discard})
}
