package internal

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// LogSink mirrors every log line to the console and to a per-run log file
// named <Operation>_<yyyyMMdd_HHmmss>.log.
type LogSink struct {
	file   *os.File
	logger *slog.Logger
}

// LogFileName returns the name of the log file for a run of the named
// operation (e.g. "Start") started at the given time.
func LogFileName(operation string, startedAt time.Time) string {
	return fmt.Sprintf("%s_%s.log", operation, startedAt.Format("20060102_150405"))
}

// OpenLogSink creates the run log file in dir and returns a sink writing to
// both the file and console. Format is "text" or "json".
func OpenLogSink(dir, operation string, startedAt time.Time, console io.Writer, format string) (*LogSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("could not create log directory: %w", err)
	}

	path := filepath.Join(dir, LogFileName(operation, startedAt))

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("could not open log file: %w", err)
	}

	return &LogSink{
		file:   file,
		logger: slog.New(NewLogHandler(io.MultiWriter(console, file), format)),
	}, nil
}

// NewLogHandler returns the slog handler for the configured format.
func NewLogHandler(w io.Writer, format string) slog.Handler {
	if strings.EqualFold(format, "json") {
		return slog.NewJSONHandler(w, nil)
	}
	return slog.NewTextHandler(w, nil)
}

func (s *LogSink) Logger() *slog.Logger {
	return s.logger
}

// Path returns the location of the run log file.
func (s *LogSink) Path() string {
	return s.file.Name()
}

func (s *LogSink) Close() error {
	return s.file.Close()
}
