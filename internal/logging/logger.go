package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/natefinch/lumberjack.v2"
)

// consoleHandler writes bare messages to the console, with no timestamp or
// level prefix, and can be silenced entirely once the renderer has taken
// over the screen.
type consoleHandler struct {
	writer    io.Writer
	debugMode bool
	quiet     *bool
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	if level == slog.LevelDebug {
		return h.debugMode
	}
	return true
}

func (h *consoleHandler) Handle(_ context.Context, record slog.Record) error {
	if *h.quiet {
		return nil
	}
	_, err := fmt.Fprintln(h.writer, record.Message)
	return err
}

func (h *consoleHandler) WithAttrs(_ []slog.Attr) slog.Handler { return h }
func (h *consoleHandler) WithGroup(_ string) slog.Handler      { return h }

// multiHandler fans a record out to every handler that accepts it.
type multiHandler struct {
	handlers []slog.Handler
}

func (h *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *multiHandler) Handle(ctx context.Context, record slog.Record) error {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, record.Level) {
			if err := handler.Handle(ctx, record); err != nil {
				return err
			}
		}
	}
	return nil
}

func (h *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		out[i] = handler.WithAttrs(attrs)
	}
	return &multiHandler{handlers: out}
}

func (h *multiHandler) WithGroup(name string) slog.Handler {
	out := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		out[i] = handler.WithGroup(name)
	}
	return &multiHandler{handlers: out}
}

func newLumberjackLogger(path string) *lumberjack.Logger {
	l := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    1,
		MaxBackups: 2,
		MaxAge:     30,
		Compress:   false,
	}
	if v := os.Getenv("BRANCHGRAPH_LOG_MAX_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			l.MaxSize = n
		}
	}
	if v := os.Getenv("BRANCHGRAPH_LOG_MAX_BACKUPS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			l.MaxBackups = n
		}
	}
	if v := os.Getenv("BRANCHGRAPH_LOG_MAX_AGE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			l.MaxAge = n
		}
	}
	return l
}

// Logger is the program's structured logger: a bare console sink (silenced
// while the renderer owns the terminal) plus a rotating file sink that is
// always active, so invalidation storms and trigger failures during a long
// watch session leave a record.
type Logger struct {
	logger    *slog.Logger
	writer    io.Writer
	logWriter io.WriteCloser
	quiet     bool
}

// New creates a Logger that writes to stdout and, if logFilePath is
// non-empty, also to a rotating file. Debug messages reach stdout only when
// the BRANCHGRAPH_DEBUG environment variable is set; the file always
// records them.
func New(logFilePath string) (*Logger, error) {
	writer := os.Stdout
	debugMode := os.Getenv("BRANCHGRAPH_DEBUG") != ""
	l := &Logger{writer: writer}

	console := &consoleHandler{writer: writer, debugMode: debugMode, quiet: &l.quiet}
	handlers := []slog.Handler{console}

	if logFilePath != "" {
		if err := os.MkdirAll(filepath.Dir(logFilePath), 0o750); err != nil {
			return nil, fmt.Errorf("creating log directory: %w", err)
		}
		lj := newLumberjackLogger(logFilePath)
		l.logWriter = lj
		fileHandler := slog.NewTextHandler(lj, &slog.HandlerOptions{
			Level: slog.LevelDebug,
			ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
				if a.Key == slog.TimeKey {
					return slog.Attr{Key: a.Key, Value: slog.StringValue(a.Value.Time().Format("2006-01-02 15:04:05.000"))}
				}
				return a
			},
		})
		handlers = append(handlers, fileHandler)
	}

	l.logger = slog.New(&multiHandler{handlers: handlers})
	return l, nil
}

// SetQuiet silences the console sink (the file sink keeps logging
// regardless), for use while the renderer has the terminal in raw mode.
func (l *Logger) SetQuiet(quiet bool) { l.quiet = quiet }

func (l *Logger) IsQuiet() bool { return l.quiet }

func (l *Logger) log(level slog.Level, format string, args ...interface{}) {
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	l.logger.Log(context.Background(), level, msg)
}

func (l *Logger) Info(format string, args ...interface{})  { l.log(slog.LevelInfo, format, args...) }
func (l *Logger) Debug(format string, args ...interface{}) { l.log(slog.LevelDebug, format, args...) }

func (l *Logger) Warn(format string, args ...interface{}) {
	l.log(slog.LevelWarn, "warning: "+format, args...)
}

func (l *Logger) Error(format string, args ...interface{}) {
	l.log(slog.LevelError, "error: "+format, args...)
}

// Close closes the rotating file sink, if one was opened.
func (l *Logger) Close() error {
	if l.logWriter != nil {
		return l.logWriter.Close()
	}
	return nil
}
