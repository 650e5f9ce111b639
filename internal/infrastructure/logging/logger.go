package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/Dlizzz/catspaw/internal/infrastructure/config"
)

const (
	serviceName = "catspaw"

	logDirPermissions  = 0750
	logFilePermissions = 0640
)

// Logger wraps slog.Logger with Catspaw default fields.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Logger struct {
	*slog.Logger

	closer io.Closer
}

// New creates a Logger from configuration.
//
// When output is "file" and the file cannot be opened, the logger falls
// back to stderr and records why as its first entry.
//
// Parameters:
//   - cfg: Logging configuration from config.yaml
//   - version: Application version for default field
//
// Returns:
//   - *Logger: Configured logger ready for use
func New(cfg config.LoggingConfig, version string) *Logger {
	var (
		output  io.Writer = os.Stdout
		closer  io.Closer
		fileErr error
	)
	switch strings.ToLower(cfg.Output) {
	case "stderr":
		output = os.Stderr
	case "file":
		f, err := openLogFile(cfg.File)
		if err != nil {
			output, fileErr = os.Stderr, err
			break
		}
		output, closer = f, f
	}

	l := newWithWriter(output, cfg.Format, parseLevel(cfg.Level), version)
	l.closer = closer
	if fileErr != nil {
		l.Warn("log file unavailable, using stderr", "path", cfg.File, "error", fileErr)
	}
	return l
}

func newWithWriter(w io.Writer, format string, level slog.Level, version string) *Logger {
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.EqualFold(format, "text") {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	handler = handler.WithAttrs([]slog.Attr{
		slog.String("service", serviceName),
		slog.String("version", version),
	})

	return &Logger{Logger: slog.New(handler)}
}

func openLogFile(path string) (*os.File, error) {
	if path == "" {
		return nil, os.ErrInvalid
	}
	if err := os.MkdirAll(filepath.Dir(path), logDirPermissions); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermissions) //nolint:gosec // path comes from operator config
}

// parseLevel converts a string log level to slog.Level.
// Defaults to info if unrecognised.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// With returns a new Logger with additional default attributes.
//
// Example:
//
//	avrLogger := logger.With("component", "avr")
//	avrLogger.Info("connected") // Includes component=avr
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// Close releases the log file, if any. Derived loggers share the file
// with their parent and must not be closed separately.
func (l *Logger) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

// Default creates a logger for use before configuration is loaded.
func Default() *Logger {
	return newWithWriter(os.Stdout, "json", slog.LevelInfo, "dev")
}

// Discard returns a logger that drops everything. Used by tests and by
// the console client when verbose output is off.
func Discard() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))}
}
