// Package logging provides config-driven categorized logging for hotswap.
// Every subsystem logs through its own category so a noisy reload can be
// narrowed down to the compiler, the migration walk or the host replacement
// path without touching code.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/system
type Category string

const (
	CategoryBoot      Category = "boot"      // Process startup, config
	CategoryEngine    Category = "engine"    // Reload cycle orchestration
	CategoryCompiler  Category = "compiler"  // Source -> code unit
	CategoryResolver  Category = "resolver"  // Reference set assembly
	CategoryRegistry  Category = "registry"  // Managed instances
	CategoryMigration Category = "migration" // Snapshot and field transfer
	CategoryHost      Category = "host"      // Host-owned component replacement
	CategoryInvoke    Category = "invoke"    // Dynamic method invocation
	CategoryWatcher   Category = "watcher"   // Source file watcher
	CategoryStore     Category = "store"     // Reload history persistence
)

// Options mirrors config.LoggingConfig to avoid an import cycle.
type Options struct {
	Level      string
	Format     string // json, console
	File       string // empty = stderr
	DebugMode  bool   // false = warnings and errors only
	Categories map[string]bool
}

// Logger is a category-scoped sugared zap logger.
type Logger struct {
	category Category
	sugar    *zap.SugaredLogger
}

var (
	mu      sync.RWMutex
	base    = zap.NewNop()
	opts    Options
	loggers = make(map[Category]*Logger)
	sink    *os.File
)

// Initialize builds the process logger from options.
// Should be called once at startup; later calls replace the previous setup.
func Initialize(o Options) error {
	level := zapcore.InfoLevel
	if o.Level != "" {
		parsed, err := zapcore.ParseLevel(o.Level)
		if err != nil {
			return fmt.Errorf("invalid log level %q: %w", o.Level, err)
		}
		level = parsed
	}
	if !o.DebugMode && level < zapcore.WarnLevel {
		level = zapcore.WarnLevel
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	var enc zapcore.Encoder
	switch strings.ToLower(o.Format) {
	case "json":
		enc = zapcore.NewJSONEncoder(encCfg)
	default:
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	}

	var ws zapcore.WriteSyncer = zapcore.Lock(os.Stderr)
	var file *os.File
	if o.File != "" {
		if err := os.MkdirAll(filepath.Dir(o.File), 0755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
		f, err := os.OpenFile(o.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		file = f
		ws = zapcore.AddSync(f)
	}

	core := zapcore.NewCore(enc, ws, zap.NewAtomicLevelAt(level))

	mu.Lock()
	defer mu.Unlock()
	if sink != nil {
		_ = sink.Close()
	}
	sink = file
	opts = o
	base = zap.New(core)
	loggers = make(map[Category]*Logger)
	return nil
}

// SetBase installs an already-built zap logger, bypassing Initialize.
// All categories are enabled. Used by the CLI and by tests.
func SetBase(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	if l == nil {
		l = zap.NewNop()
	}
	base = l
	opts = Options{DebugMode: true}
	loggers = make(map[Category]*Logger)
}

// IsCategoryEnabled returns whether a specific category is enabled
func IsCategoryEnabled(category Category) bool {
	mu.RLock()
	defer mu.RUnlock()
	return categoryEnabled(category)
}

func categoryEnabled(category Category) bool {
	if opts.Categories == nil {
		return true
	}
	enabled, exists := opts.Categories[string(category)]
	if !exists {
		return true // Enable by default if not specified
	}
	return enabled
}

// Get returns (or creates) a logger for the given category.
// Returns a no-op logger if the category is disabled.
func Get(category Category) *Logger {
	mu.RLock()
	if l, ok := loggers[category]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()

	// Double-check after acquiring write lock
	if l, ok := loggers[category]; ok {
		return l
	}

	z := zap.NewNop()
	if categoryEnabled(category) {
		z = base.Named(string(category))
	}
	l := &Logger{category: category, sugar: z.Sugar()}
	loggers[category] = l
	return l
}

// Debug logs a debug message
func (l *Logger) Debug(format string, args ...interface{}) {
	l.sugar.Debugf(format, args...)
}

// Info logs an informational message
func (l *Logger) Info(format string, args ...interface{}) {
	l.sugar.Infof(format, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(format string, args ...interface{}) {
	l.sugar.Warnf(format, args...)
}

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) {
	l.sugar.Errorf(format, args...)
}

// With returns a logger carrying structured key-value context.
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	return &Logger{category: l.category, sugar: l.sugar.With(keysAndValues...)}
}

// Category returns the logger's category.
func (l *Logger) Category() Category {
	return l.category
}

// Sync flushes buffered entries (call at shutdown).
func Sync() error {
	mu.RLock()
	defer mu.RUnlock()
	return base.Sync()
}

// =============================================================================
// CONVENIENCE FUNCTIONS - Quick logging without getting a logger first
// =============================================================================

// Boot logs to the boot category
func Boot(format string, args ...interface{}) {
	Get(CategoryBoot).Info(format, args...)
}

// Engine logs to the engine category
func Engine(format string, args ...interface{}) {
	Get(CategoryEngine).Info(format, args...)
}

// EngineDebug logs debug to the engine category
func EngineDebug(format string, args ...interface{}) {
	Get(CategoryEngine).Debug(format, args...)
}

// Compiler logs to the compiler category
func Compiler(format string, args ...interface{}) {
	Get(CategoryCompiler).Info(format, args...)
}

// Migration logs to the migration category
func Migration(format string, args ...interface{}) {
	Get(CategoryMigration).Info(format, args...)
}

// MigrationWarn logs a warning to the migration category
func MigrationWarn(format string, args ...interface{}) {
	Get(CategoryMigration).Warn(format, args...)
}

// Host logs to the host category
func Host(format string, args ...interface{}) {
	Get(CategoryHost).Info(format, args...)
}

// Watcher logs to the watcher category
func Watcher(format string, args ...interface{}) {
	Get(CategoryWatcher).Info(format, args...)
}
