package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Redacted replaces every registered secret in log output.
const Redacted = "***"

// Logger defines the common logging interface used throughout the application.
// It separates internal (debug) logs, which go to the structured log file, from
// user-facing messages printed to the terminal.
type Logger interface {
	// Info logs an informational message to the structured log only.
	Info(format string, args ...interface{})

	// Warning logs a warning to the structured log, and to stdout in verbose mode.
	Warning(format string, args ...interface{})

	// Error logs an error to the structured log and always to stderr.
	Error(format string, args ...interface{})

	// InfoToUser logs an informational message to both the log and stdout.
	InfoToUser(format string, args ...interface{})

	// WarningToUser logs a warning to both the log and stdout.
	WarningToUser(format string, args ...interface{})

	// Success logs a success message to both the log and stdout.
	Success(format string, args ...interface{})

	// StatusMessage prints to stdout only.
	StatusMessage(format string, args ...interface{})

	// With returns a child logger that adds key=value to every structured entry.
	With(key, value string) Logger

	// AddSecret registers a value that must never appear verbatim in any output.
	// Secrets are shared by the logger and all of its children.
	AddSecret(secret string)

	// Close flushes and closes the log file, if one is open.
	Close() error
}

// sink holds the state shared between a logger and its children.
type sink struct {
	mu       sync.Mutex
	stdout   io.Writer
	stderr   io.Writer
	file     *os.File
	secrets  []string
	replacer *strings.Replacer
}

func (s *sink) redact(msg string) string {
	if s.replacer == nil {
		return msg
	}
	return s.replacer.Replace(msg)
}

// DefaultLogger implements Logger on top of zerolog.
type DefaultLogger struct {
	sink    *sink
	logger  zerolog.Logger
	enabled bool
	verbose bool
}

// New creates a Logger writing user messages to os.Stdout/os.Stderr.
// When enabled, structured entries are appended to logFile.
func New(enabled bool, logFile string, verbose bool) Logger {
	return NewWithOutput(enabled, logFile, verbose, os.Stdout, os.Stderr)
}

// NewWithOutput creates a DefaultLogger with custom output writers
func NewWithOutput(enabled bool, logFile string, verbose bool, stdout, stderr io.Writer) *DefaultLogger {
	s := &sink{stdout: stdout, stderr: stderr}
	zl := zerolog.Nop()

	if enabled {
		if dir := filepath.Dir(logFile); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				_, _ = fmt.Fprintf(stderr, "⚠️ Failed to create log directory: %v\n", err)
			}
		}

		f, err := os.OpenFile(logFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err == nil {
			s.file = f
			zl = zerolog.New(f).With().Timestamp().Logger()
			_, _ = fmt.Fprintf(stdout, "🔍 Debug logging enabled. Logs will be written to: %s\n", logFile)
		} else {
			zl = zerolog.New(zerolog.ConsoleWriter{Out: stderr, NoColor: true}).With().Timestamp().Logger()
			_, _ = fmt.Fprintf(stderr, "⚠️ Failed to open log file: %v, using stderr instead\n", err)
		}
		zl.Info().Msg("statebak debug logging started")
	}

	return &DefaultLogger{
		sink:    s,
		logger:  zl.Level(zerolog.InfoLevel),
		enabled: enabled,
		verbose: verbose,
	}
}

// SetLevel sets the minimum structured log level. Unknown levels fall back to info.
func (l *DefaultLogger) SetLevel(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	l.logger = l.logger.Level(lvl)
}

// With returns a child logger sharing this logger's outputs and secrets.
func (l *DefaultLogger) With(key, value string) Logger {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()

	return &DefaultLogger{
		sink:    l.sink,
		logger:  l.logger.With().Str(key, l.sink.redact(value)).Logger(),
		enabled: l.enabled,
		verbose: l.verbose,
	}
}

// AddSecret registers a secret for redaction. Empty strings are ignored.
func (l *DefaultLogger) AddSecret(secret string) {
	if secret == "" {
		return
	}

	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()

	for _, s := range l.sink.secrets {
		if s == secret {
			return
		}
	}
	l.sink.secrets = append(l.sink.secrets, secret)

	pairs := make([]string, 0, len(l.sink.secrets)*2)
	for _, s := range l.sink.secrets {
		pairs = append(pairs, s, Redacted)
	}
	l.sink.replacer = strings.NewReplacer(pairs...)
}

// format renders and redacts a message. Callers must hold sink.mu.
func (l *DefaultLogger) format(format string, args ...interface{}) string {
	return l.sink.redact(fmt.Sprintf(format, args...))
}

// Info logs an informational message (file only)
func (l *DefaultLogger) Info(format string, args ...interface{}) {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()

	if !l.enabled {
		return
	}
	l.logger.Info().Msg(l.format(format, args...))
}

// InfoToUser logs an informational message to both file and stdout
func (l *DefaultLogger) InfoToUser(format string, args ...interface{}) {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()

	msg := l.format(format, args...)
	if l.enabled {
		l.logger.Info().Msg(msg)
	}
	_, _ = fmt.Fprintf(l.sink.stdout, "ℹ️  %s\n", msg)
}

// Success logs a success message to both file and stdout
func (l *DefaultLogger) Success(format string, args ...interface{}) {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()

	msg := l.format(format, args...)
	if l.enabled {
		l.logger.Info().Bool("success", true).Msg(msg)
	}
	_, _ = fmt.Fprintf(l.sink.stdout, "✅ %s\n", msg)
}

// Warning logs a warning message
func (l *DefaultLogger) Warning(format string, args ...interface{}) {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()

	msg := l.format(format, args...)
	if l.enabled {
		l.logger.Warn().Msg(msg)
	}

	// Verbose mode surfaces warnings even without a log file.
	if l.verbose {
		_, _ = fmt.Fprintf(l.sink.stdout, "⚠️  %s\n", msg)
	}
}

// WarningToUser logs a warning message to both file and stdout
func (l *DefaultLogger) WarningToUser(format string, args ...interface{}) {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()

	msg := l.format(format, args...)
	if l.enabled {
		l.logger.Warn().Msg(msg)
	}
	_, _ = fmt.Fprintf(l.sink.stdout, "⚠️  %s\n", msg)
}

// Error logs an error message
func (l *DefaultLogger) Error(format string, args ...interface{}) {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()

	msg := l.format(format, args...)
	if l.enabled {
		l.logger.Error().Msg(msg)
	}
	_, _ = fmt.Fprintf(l.sink.stderr, "❌ %s\n", msg)
}

// StatusMessage prints a status message to stdout only (no logging)
func (l *DefaultLogger) StatusMessage(format string, args ...interface{}) {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()

	_, _ = fmt.Fprintln(l.sink.stdout, l.format(format, args...))
}

// Close ensures any buffered data is written and closes open log file handles
func (l *DefaultLogger) Close() error {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()

	if l.sink.file == nil {
		return nil
	}
	if err := l.sink.file.Sync(); err != nil {
		return err
	}
	err := l.sink.file.Close()
	l.sink.file = nil
	return err
}

// SetStdout sets a custom writer for user-facing stdout messages only.
// This method is thread-safe and is primarily intended for testing.
func (l *DefaultLogger) SetStdout(w io.Writer) {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	l.sink.stdout = w
}

// SetStderr sets a custom writer for user-facing stderr messages only.
// This method is thread-safe and is primarily intended for testing.
func (l *DefaultLogger) SetStderr(w io.Writer) {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	l.sink.stderr = w
}

// Discard returns a logger that drops everything. Useful in tests and for
// short-lived helpers that must not print.
func Discard() Logger {
	return NewWithOutput(false, "", false, io.Discard, io.Discard)
}
