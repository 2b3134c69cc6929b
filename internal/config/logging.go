package config

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	slogmulti "github.com/samber/slog-multi"
	"gopkg.in/natefinch/lumberjack.v2"
)

// ActivePath returns the active log location.
func (l LogConfig) ActivePath() string {
	return filepath.Join(l.Dir, l.Active)
}

// PreviousActivePath is where the previous run's active log is kept, e.g.
// logs/active.prev.log.
func (l LogConfig) PreviousActivePath() string {
	ext := filepath.Ext(l.Active)
	return filepath.Join(l.Dir, strings.TrimSuffix(l.Active, ext)+".prev"+ext)
}

// HistoricalPath returns the append-only historical log location.
func (l LogConfig) HistoricalPath() string {
	return filepath.Join(l.Dir, l.Historical)
}

// ErrorPath returns the error-only log location.
func (l LogConfig) ErrorPath() string {
	return filepath.Join(l.Dir, l.Error)
}

// SetupLogger creates the pipeline logger: text to stderr, to the active log
// (truncated per run, previous content kept at PreviousActivePath), to the
// rotating historical log and, for ERROR records only, to the error log.
// Sinks that cannot be opened are skipped. Returns the logger and a cleanup
// function closing the files.
func SetupLogger(cfg LogConfig, level slog.Level) (*slog.Logger, func() error) {
	stderrHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})

	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		slog.Error("failed to create log directory, using stderr only", "error", err, "dir", cfg.Dir)
		return slog.New(stderrHandler), func() error { return nil }
	}

	var closers []io.Closer
	var active, errLog io.Writer = io.Discard, io.Discard

	// Keep the previous run's active log for log-based resume.
	if err := os.Rename(cfg.ActivePath(), cfg.PreviousActivePath()); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("failed to keep previous active log", "error", err, "file", cfg.ActivePath())
	}
	if f, err := os.OpenFile(cfg.ActivePath(), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644); err != nil {
		slog.Error("failed to open active log", "error", err, "file", cfg.ActivePath())
	} else {
		active = f
		closers = append(closers, f)
	}

	if f, err := os.OpenFile(cfg.ErrorPath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err != nil {
		slog.Error("failed to open error log", "error", err, "file", cfg.ErrorPath())
	} else {
		errLog = f
		closers = append(closers, f)
	}

	historical := &lumberjack.Logger{
		Filename:   cfg.HistoricalPath(),
		MaxSize:    cfg.HistoricalMaxMB,
		MaxBackups: cfg.HistoricalFiles,
	}
	closers = append(closers, historical)

	logger := SetupLoggerWithWriters(os.Stderr, active, historical, errLog, level)

	cleanup := func() error {
		var errs []error
		for _, c := range closers {
			errs = append(errs, c.Close())
		}
		return errors.Join(errs...)
	}

	return logger, cleanup
}

// SetupLoggerWithWriters creates the fanout logger over custom writers (for
// testing). errLog only receives ERROR records.
func SetupLoggerWithWriters(stderr, active, historical, errLog io.Writer, level slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	return slog.New(slogmulti.Fanout(
		slog.NewTextHandler(stderr, opts),
		activeHandler{slog.NewTextHandler(active, opts)},
		slog.NewTextHandler(historical, opts),
		slog.NewTextHandler(errLog, &slog.HandlerOptions{Level: slog.LevelError}),
	))
}

type skipActiveKey struct{}

// SkipActiveLog marks ctx so records logged with it are left out of the
// active log. Only the tail of the active log is scanned for progress
// markers, so bulk output such as run statistics goes elsewhere.
func SkipActiveLog(ctx context.Context) context.Context {
	return context.WithValue(ctx, skipActiveKey{}, true)
}

func skipsActive(ctx context.Context) bool {
	skip, _ := ctx.Value(skipActiveKey{}).(bool)
	return skip
}

type activeHandler struct {
	slog.Handler
}

func (h activeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return !skipsActive(ctx) && h.Handler.Enabled(ctx, level)
}

func (h activeHandler) Handle(ctx context.Context, r slog.Record) error {
	if skipsActive(ctx) {
		return nil
	}
	return h.Handler.Handle(ctx, r)
}

func (h activeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return activeHandler{h.Handler.WithAttrs(attrs)}
}

func (h activeHandler) WithGroup(name string) slog.Handler {
	return activeHandler{h.Handler.WithGroup(name)}
}

// SetupConsoleLogger is the stderr-only logger used by read-only commands,
// which must not touch the pipeline's active log.
func SetupConsoleLogger(level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
