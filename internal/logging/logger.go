// Package logging provides categorized structured logging for the foodonto build.
// Every pipeline component logs through a named category backed by a shared zap
// logger; nothing is written until Initialize is called (the default is a no-op).
package logging

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/system
type Category string

const (
	CategoryBoot     Category = "boot"     // CLI bootstrap, config loading
	CategoryPipeline Category = "pipeline" // Stage sequencing, preflight
	CategoryStore    Category = "store"    // Artifact reads and writes

	// Stage categories
	CategoryTransforms Category = "transforms" // Stage A
	CategorySubstrates Category = "substrates" // Stage B
	CategorySeed       Category = "seed"       // Stage C
	CategoryFamilies   Category = "families"   // Stage D
	CategoryIdentity   Category = "identity"   // Stage E

	CategoryContract Category = "contract" // Contract verification
)

// Options controls how the base logger is built.
type Options struct {
	Level   string // debug, info, warn, error
	Format  string // json, console
	Verbose bool   // forces debug level
}

// Logger is a category-scoped printf-style logger.
type Logger struct {
	category Category
	sugar    *zap.SugaredLogger
}

var (
	base      = zap.NewNop()
	loggers   = make(map[Category]*Logger)
	loggersMu sync.RWMutex
)

// Initialize builds the process-wide base logger from opts and returns it.
// Category loggers created before the call are discarded.
func Initialize(opts Options) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if strings.EqualFold(opts.Format, "console") {
		cfg.Encoding = "console"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}
	if opts.Verbose {
		level = zapcore.DebugLevel
	}
	cfg.Level = zap.NewAtomicLevelAt(level)

	l, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	SetBase(l)
	return l, nil
}

// ParseLevel maps a config level string onto a zap level. Empty means info.
func ParseLevel(s string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return zapcore.InfoLevel, nil
	case "debug":
		return zapcore.DebugLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", s)
	}
}

// SetBase replaces the base logger. Tests use it to install an observer core.
func SetBase(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	loggersMu.Lock()
	defer loggersMu.Unlock()
	base = l
	loggers = make(map[Category]*Logger)
}

// WithFields rebases every category logger onto base.With(fields...).
func WithFields(fields ...zap.Field) {
	loggersMu.RLock()
	l := base
	loggersMu.RUnlock()
	SetBase(l.With(fields...))
}

// Base returns the current base logger.
func Base() *zap.Logger {
	loggersMu.RLock()
	defer loggersMu.RUnlock()
	return base
}

// Sync flushes the base logger.
func Sync() {
	_ = Base().Sync()
}

// Get returns (or creates) a logger for the given category.
func Get(category Category) *Logger {
	loggersMu.RLock()
	if l, ok := loggers[category]; ok {
		loggersMu.RUnlock()
		return l
	}
	loggersMu.RUnlock()

	loggersMu.Lock()
	defer loggersMu.Unlock()

	// Double-check after acquiring write lock
	if l, ok := loggers[category]; ok {
		return l
	}
	l := &Logger{
		category: category,
		sugar:    base.Named(string(category)).Sugar(),
	}
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

// With returns a logger carrying additional key-value context.
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	return &Logger{category: l.category, sugar: l.sugar.With(keysAndValues...)}
}

// Stats logs a stage statistics map as structured fields at info level.
func (l *Logger) Stats(msg string, stats map[string]int) {
	kv := make([]interface{}, 0, len(stats)*2)
	for k, v := range stats {
		kv = append(kv, k, v)
	}
	l.sugar.Infow(msg, kv...)
}

// Timer tracks elapsed time for an operation.
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing an operation logged under category.
func StartTimer(category Category, operation string) *Timer {
	return &Timer{
		category: category,
		op:       operation,
		start:    time.Now(),
	}
}

// Stop ends the timer and logs the duration
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	return elapsed
}

// StopWithInfo ends the timer and logs at info level
func (t *Timer) StopWithInfo() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Info("%s completed in %v", t.op, elapsed)
	return elapsed
}
