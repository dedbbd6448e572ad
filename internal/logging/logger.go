// Package logging provides category-named loggers backed by zap.
// Until Init runs, every logger is a no-op, which keeps tests and
// library use quiet by default.
package logging

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu   sync.RWMutex
	root = zap.NewNop().Sugar()
)

// Init configures the process-wide logger. Level is one of debug,
// info, warn, error. With a non-empty path, logs go to that file,
// otherwise to stderr.
func Init(level string, path string) error {
	var lvl zapcore.Level
	if err := lvl.Set(level); err != nil {
		return fmt.Errorf("log level %q: %w", level, err)
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if path != "" {
		cfg.OutputPaths = []string{path}
		cfg.ErrorOutputPaths = []string{path}
	} else {
		cfg.OutputPaths = []string{"stderr"}
		cfg.ErrorOutputPaths = []string{"stderr"}
	}

	logger, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}

	mu.Lock()
	root = logger.Sugar()
	mu.Unlock()
	return nil
}

// Sync flushes buffered log entries. Call at shutdown.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	_ = root.Sync()
}

// Logger is a category-named handle. It resolves the configured root
// on every call, so handles created before Init pick up the real
// logger afterwards.
type Logger struct {
	category string
}

// For returns the logger for a category (catalog, rescan, search,
// control, learn, ...).
func For(category string) *Logger {
	return &Logger{category: category}
}

func (l *Logger) base() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return root.Named(l.category)
}

func (l *Logger) Debugw(msg string, keysAndValues ...any) {
	l.base().Debugw(msg, keysAndValues...)
}

func (l *Logger) Infow(msg string, keysAndValues ...any) {
	l.base().Infow(msg, keysAndValues...)
}

func (l *Logger) Warnw(msg string, keysAndValues ...any) {
	l.base().Warnw(msg, keysAndValues...)
}

func (l *Logger) Errorw(msg string, keysAndValues ...any) {
	l.base().Errorw(msg, keysAndValues...)
}
