package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"gopkg.in/natefinch/lumberjack.v2"

	"Actionboard/internal/config"
)

// Logger wraps the configured slog logger together with the rotating file
// writer it may own.
type Logger struct {
	*slog.Logger
	file *lumberjack.Logger
}

// ParseLevel maps a config level name onto a slog level. Unknown names fall
// back to info.
func ParseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Setup builds the process logger. Console output goes to out, as JSON or
// tinted text depending on cfg.Format. When cfg.File is set every record is
// also written to a rotating log file.
func Setup(cfg config.LogConfig, out io.Writer) (*Logger, error) {
	lvl := ParseLevel(cfg.Level)

	var console slog.Handler
	switch cfg.Format {
	case "text":
		console = tint.NewHandler(out, &tint.Options{
			Level:      lvl,
			TimeFormat: time.TimeOnly,
			NoColor:    noColor(out),
		})
	default:
		console = slog.NewJSONHandler(out, &slog.HandlerOptions{Level: lvl})
	}

	if cfg.File == "" {
		return &Logger{Logger: slog.New(console)}, nil
	}

	logDir := filepath.Dir(cfg.File)
	if logDir != "" && logDir != "." {
		if err := os.MkdirAll(logDir, 0755); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
	}

	file := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    50, // MB
		MaxBackups: 3,
		MaxAge:     14, // days
	}
	fileHandler := tint.NewHandler(file, &tint.Options{
		Level:      lvl,
		TimeFormat: time.RFC3339,
		NoColor:    true,
	})

	return &Logger{
		Logger: slog.New(&MultiHandler{handlers: []slog.Handler{console, fileHandler}}),
		file:   file,
	}, nil
}

// Close releases the log file, if any
func (l *Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

func noColor(out io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" {
		return true
	}
	f, ok := out.(*os.File)
	if !ok {
		return true
	}
	return !isatty.IsTerminal(f.Fd()) && !isatty.IsCygwinTerminal(f.Fd())
}

// MultiHandler fans a record out to several handlers
type MultiHandler struct {
	handlers []slog.Handler
}

func NewMultiHandler(handlers ...slog.Handler) *MultiHandler {
	return &MultiHandler{handlers: handlers}
}

func (m *MultiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (m *MultiHandler) Handle(ctx context.Context, record slog.Record) error {
	for _, h := range m.handlers {
		if !h.Enabled(ctx, record.Level) {
			continue
		}
		if err := h.Handle(ctx, record.Clone()); err != nil {
			return err
		}
	}
	return nil
}

func (m *MultiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	handlers := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		handlers[i] = h.WithAttrs(attrs)
	}
	return &MultiHandler{handlers: handlers}
}

func (m *MultiHandler) WithGroup(name string) slog.Handler {
	handlers := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		handlers[i] = h.WithGroup(name)
	}
	return &MultiHandler{handlers: handlers}
}
