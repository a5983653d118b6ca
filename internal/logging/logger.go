// Package logging provides structured logging for the submission service.
package logging

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
)

// New creates the process logger. Verbose enables debug level.
func New(verbose bool) zerolog.Logger {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: "15:04:05",
	}

	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}

	return zerolog.New(output).
		Level(level).
		With().
		Timestamp().
		Logger()
}

// JobLogger is a logger bound to a per-job log file. The log file doubles as
// the "running" status marker, so it is created eagerly on open.
type JobLogger struct {
	zerolog.Logger
	file *os.File
}

// NewJobLogger opens (truncating) the log file at path and returns a logger
// writing plain-text lines to it. Callers must Close it when the job ends.
func NewJobLogger(path string) (*JobLogger, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open job log file: %w", err)
	}

	// Plain console format without colors so the file is readable in the
	// browser-facing log view.
	writer := zerolog.ConsoleWriter{
		Out:        f,
		NoColor:    true,
		TimeFormat: "2006-01-02 15:04:05",
	}

	logger := zerolog.New(writer).
		Level(zerolog.DebugLevel).
		With().
		Timestamp().
		Logger()

	return &JobLogger{Logger: logger, file: f}, nil
}

// Writer returns the underlying log file writer.
func (j *JobLogger) Writer() io.Writer {
	return j.file
}

// Close flushes and closes the underlying log file.
func (j *JobLogger) Close() error {
	return j.file.Close()
}
