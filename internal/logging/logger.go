// Package logging provides categorized zap logging for scout.
// Logs are written as JSON to <workdir>/.scout/logs/scout.log; warnings and
// errors are echoed to stderr. Until Initialize is called every logger is a
// no-op, which keeps tests quiet.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category names a subsystem. Each category gets a named child logger so log
// lines can be filtered per subsystem.
type Category string

const (
	CategoryBoot     Category = "boot"
	CategorySession  Category = "session"
	CategoryResearch Category = "research"
	CategorySearch   Category = "search"
	CategoryScraper  Category = "scraper"
	CategoryLLM      Category = "llm"
	CategoryFindings Category = "findings"
	CategoryUI       Category = "ui"
)

var (
	mu      sync.RWMutex
	base    = zap.NewNop()
	loggers = make(map[Category]*zap.Logger)
)

// Initialize builds the shared logger. level is one of debug/info/warn/error;
// anything unrecognized falls back to info. The logs directory is created on
// demand; failure to create it degrades to stderr-only logging.
func Initialize(workdir, level string) error {
	if workdir == "" {
		return fmt.Errorf("workdir required")
	}

	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = zapcore.InfoLevel
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	consoleCore := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encCfg),
		zapcore.Lock(os.Stderr),
		zapcore.WarnLevel,
	)

	cores := []zapcore.Core{consoleCore}

	logsDir := filepath.Join(workdir, ".scout", "logs")
	if err := os.MkdirAll(logsDir, 0o755); err == nil {
		f, ferr := os.OpenFile(filepath.Join(logsDir, "scout.log"),
			os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if ferr == nil {
			fileCore := zapcore.NewCore(
				zapcore.NewJSONEncoder(encCfg),
				zapcore.Lock(f),
				lvl,
			)
			cores = append(cores, fileCore)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	base = zap.New(zapcore.NewTee(cores...))
	loggers = make(map[Category]*zap.Logger)

	base.Named(string(CategoryBoot)).Info("logging initialized",
		zap.String("workdir", workdir),
		zap.String("level", lvl.String()))
	return nil
}

// L returns the shared base logger.
func L() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

// Get returns the named logger for a category.
func Get(cat Category) *zap.Logger {
	mu.RLock()
	if l, ok := loggers[cat]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[cat]; ok {
		return l
	}
	l := base.Named(string(cat))
	loggers[cat] = l
	return l
}

// Sync flushes buffered log entries. Called on shutdown.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	_ = base.Sync()
}
