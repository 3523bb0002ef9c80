package infrastructure

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"switchboard/internal/config"
)

var (
	appLogger atomic.Pointer[slog.Logger]

	// initMu guards initialization and the log file
	initMu  sync.Mutex
	logFile io.Closer

	processDefault = slog.Default()
)

// InitializeLogger builds the process logger from cfg and installs it as the
// slog default. Once a call has succeeded, later calls return the same
// logger and ignore cfg.
func InitializeLogger(cfg config.LoggingConfig) (*slog.Logger, error) {
	initMu.Lock()
	defer initMu.Unlock()

	if logger := appLogger.Load(); logger != nil {
		return logger, nil
	}

	w, file, err := openLogOutput(cfg)
	if err != nil {
		return nil, err
	}
	logger := newLogger(w, cfg)

	logFile = file
	appLogger.Store(logger)
	slog.SetDefault(logger)
	return logger, nil
}

// GetLogger returns the process logger, or the slog default before
// InitializeLogger has run
func GetLogger() *slog.Logger {
	if logger := appLogger.Load(); logger != nil {
		return logger
	}
	return slog.Default()
}

// CloseLogger closes the log file, if the logger writes to one. Records
// logged afterwards to a file output are lost.
func CloseLogger() error {
	initMu.Lock()
	defer initMu.Unlock()

	if logFile == nil {
		return nil
	}
	err := logFile.Close()
	logFile = nil
	return err
}

// ResetLoggerForTesting closes the log file and restores the slog default
// that was installed when the process started
func ResetLoggerForTesting() {
	_ = CloseLogger()
	appLogger.Store(nil)
	slog.SetDefault(processDefault)
}

// newLogger builds a JSON logger writing to w that adds the trace ID of
// each record's context. Unknown levels mean info.
func newLogger(w io.Writer, cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		AddSource: cfg.Development,
		Level:     level,
	})
	return slog.New(&traceHandler{Handler: handler})
}

// openLogOutput returns the writer for cfg.Output and the file to close on
// shutdown, which is nil for console output
func openLogOutput(cfg config.LoggingConfig) (io.Writer, io.Closer, error) {
	if cfg.Output != "file" && cfg.Output != "both" {
		return os.Stdout, nil, nil
	}

	dir := filepath.Dir(cfg.FilePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("failed to create log directory %s: %w", dir, err)
	}
	file, err := os.OpenFile(cfg.FilePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file %s: %w", cfg.FilePath, err)
	}

	if cfg.Output == "file" {
		return file, file, nil
	}
	return io.MultiWriter(os.Stdout, file), file, nil
}

// traceHandler adds trace_id from the record's context
type traceHandler struct {
	slog.Handler
}

func (h *traceHandler) Handle(ctx context.Context, r slog.Record) error {
	if traceID := GetTraceID(ctx); traceID != "" {
		r.AddAttrs(slog.String("trace_id", traceID))
	}
	return h.Handler.Handle(ctx, r)
}

func (h *traceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &traceHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h *traceHandler) WithGroup(name string) slog.Handler {
	return &traceHandler{Handler: h.Handler.WithGroup(name)}
}
