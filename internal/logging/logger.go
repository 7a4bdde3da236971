// Package logging sets up structured logging with console and file output.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// Options configures the root logger.
type Options struct {
	Level   string // minimum level, zerolog names ("debug", "info", ...)
	LogDir  string // when set, also append to a date-stamped file there
	Console bool   // pretty console output on stderr
}

// Logger owns the root zerolog logger and its file handle.
type Logger struct {
	zerolog.Logger
	file *os.File
}

// New builds the root logger. A missing or unparseable level falls back to
// info; file setup failure is an error, not a silent console-only fallback.
func New(opts Options) (*Logger, error) {
	level, err := zerolog.ParseLevel(opts.Level)
	if err != nil || opts.Level == "" {
		level = zerolog.InfoLevel
	}

	var writers []io.Writer
	if opts.Console {
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: "15:04:05",
		})
	}

	var file *os.File
	if opts.LogDir != "" {
		if err := os.MkdirAll(opts.LogDir, 0755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
		name := fmt.Sprintf("talkinghead_%s.log", time.Now().Format("2006-01-02"))
		file, err = os.OpenFile(filepath.Join(opts.LogDir, name), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		writers = append(writers, file)
	}

	if len(writers) == 0 {
		writers = append(writers, os.Stderr)
	}

	root := zerolog.New(io.MultiWriter(writers...)).
		Level(level).
		With().
		Timestamp().
		Str("app", "talkinghead").
		Logger()

	return &Logger{Logger: root, file: file}, nil
}

// Close releases the log file, if one was opened.
func (l *Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}
