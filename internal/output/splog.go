// Package output provides the console logger and the rendering of versions,
// branches and merge conflicts.
package output

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/samber/lo"
	"gopkg.in/natefinch/lumberjack.v2"
)

// consoleHandler prints bare messages; debug records only under DEBUG
type consoleHandler struct {
	w     io.Writer
	debug bool
	quiet *bool
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level > slog.LevelDebug || h.debug
}

func (h *consoleHandler) Handle(_ context.Context, r slog.Record) error {
	if *h.quiet {
		return nil
	}
	_, err := fmt.Fprintln(h.w, r.Message)
	return err
}

func (h *consoleHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *consoleHandler) WithGroup(string) slog.Handler      { return h }

// teeHandler hands each record to every handler enabled for its level
type teeHandler []slog.Handler

func (t teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return lo.SomeBy(t, func(h slog.Handler) bool { return h.Enabled(ctx, level) })
}

func (t teeHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, h := range t {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			return err
		}
	}
	return nil
}

func (t teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return teeHandler(lo.Map(t, func(h slog.Handler, _ int) slog.Handler { return h.WithAttrs(attrs) }))
}

func (t teeHandler) WithGroup(name string) slog.Handler {
	return teeHandler(lo.Map(t, func(h slog.Handler, _ int) slog.Handler { return h.WithGroup(name) }))
}

// logSize reads a SITEVC_LOG_* rotation knob
func logSize(name string, def int) int {
	v, err := strconv.Atoi(os.Getenv(name))
	if err != nil || v < 0 {
		return def
	}
	return v
}

// Splog writes user-facing messages to the console and, when configured,
// everything including debug events to a rotating log file
type Splog struct {
	logger *slog.Logger
	w      io.Writer
	file   io.Closer
	quiet  bool
}

// NewSplogWithConfig creates a splog on w, logging to logFilePath when set
func NewSplogWithConfig(w io.Writer, logFilePath string) (*Splog, error) {
	s := &Splog{w: w}
	handlers := teeHandler{&consoleHandler{w: w, debug: os.Getenv("DEBUG") != "", quiet: &s.quiet}}
	if logFilePath != "" {
		if err := os.MkdirAll(filepath.Dir(logFilePath), 0750); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		file := &lumberjack.Logger{
			Filename:   logFilePath,
			MaxSize:    logSize("SITEVC_LOG_MAX_SIZE", 1),
			MaxBackups: logSize("SITEVC_LOG_MAX_BACKUPS", 2),
			MaxAge:     logSize("SITEVC_LOG_MAX_AGE", 30),
		}
		s.file = file
		handlers = append(handlers, slog.NewTextHandler(file, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	s.logger = slog.New(handlers)
	return s, nil
}

// GetLogFilePath returns SITEVC_LOG_FILE, or ~/.sitevc/logs/sitevc.log
func GetLogFilePath() string {
	if customPath := os.Getenv("SITEVC_LOG_FILE"); customPath != "" {
		return customPath
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "sitevc.log"
	}
	return filepath.Join(homeDir, ".sitevc", "logs", "sitevc.log")
}

// SetQuiet suppresses console output; the log file still receives everything
func (s *Splog) SetQuiet(quiet bool) {
	s.quiet = quiet
}

func (s *Splog) log(level slog.Level, prefix, format string, args []any) {
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	s.logger.Log(context.Background(), level, prefix+msg)
}

// Info writes an info message
func (s *Splog) Info(format string, args ...any) { s.log(slog.LevelInfo, "", format, args) }

// Warn writes a warning message
func (s *Splog) Warn(format string, args ...any) { s.log(slog.LevelWarn, "⚠️  ", format, args) }

// Debug writes a debug message
func (s *Splog) Debug(format string, args ...any) { s.log(slog.LevelDebug, "", format, args) }

// Tip writes a tip message
func (s *Splog) Tip(format string, args ...any) { s.log(slog.LevelInfo, "💡 ", format, args) }

// Event records a structured debug event, e.g. a merge state change
func (s *Splog) Event(msg string, attrs ...any) {
	s.logger.Log(context.Background(), slog.LevelDebug, msg, attrs...)
}

// Page writes preformatted output
func (s *Splog) Page(content string) {
	if !s.quiet {
		_, _ = fmt.Fprint(s.w, content)
	}
}

// Close closes the log file if one was opened
func (s *Splog) Close() error {
	if s.file == nil {
		return nil
	}
	return s.file.Close()
}
