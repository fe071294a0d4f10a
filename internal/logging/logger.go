// Package logging provides config-driven categorized file-based logging.
// Logs are written to .studybuddy/logs/ with one file per category.
// When debug mode is off the whole package is a silent no-op.
package logging

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
)

// Category represents a log category/subsystem.
type Category string

const (
	CategoryBoot       Category = "boot"       // startup and wiring
	CategorySession    Category = "session"    // timeline mutations, hints
	CategoryStaging    Category = "staging"    // image validation and encoding
	CategoryVoice      Category = "voice"      // speech-capture state machine
	CategoryGeneration Category = "generation" // backend round-trips, cancellation
	CategoryStore      Category = "store"      // conversation store operations
)

// Log levels
const (
	LevelDebug = 0
	LevelInfo  = 1
	LevelWarn  = 2
	LevelError = 3
)

// Settings mirrors config.LoggingConfig to avoid a config import cycle.
type Settings struct {
	DebugMode  bool
	Categories map[string]bool
	Level      string
}

// Logger writes to a single category file.
type Logger struct {
	category Category
	logger   *log.Logger
	file     *os.File
}

var (
	mu       sync.RWMutex
	loggers  = make(map[Category]*Logger)
	logsDir  string
	settings Settings
	logLevel = LevelInfo
)

// Initialize sets up the logging directory from the given settings.
// Call once at startup with the workspace path.
func Initialize(workspace string, s Settings) error {
	if workspace == "" {
		return fmt.Errorf("workspace path required")
	}

	mu.Lock()
	settings = s
	switch s.Level {
	case "debug":
		logLevel = LevelDebug
	case "info", "":
		logLevel = LevelInfo
	case "warn", "warning":
		logLevel = LevelWarn
	case "error":
		logLevel = LevelError
	default:
		logLevel = LevelInfo
	}
	logsDir = filepath.Join(workspace, ".studybuddy", "logs")
	mu.Unlock()

	if !s.DebugMode {
		return nil // silent no-op in production mode
	}

	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}

	boot := Get(CategoryBoot)
	boot.Info("=== studybuddy logging initialized ===")
	boot.Info("Logs directory: %s", logsDir)
	boot.Info("Log level: %s", s.Level)
	return nil
}

// Shutdown closes all open log files.
func Shutdown() {
	mu.Lock()
	defer mu.Unlock()
	for _, l := range loggers {
		if l.file != nil {
			_ = l.file.Close()
		}
	}
	loggers = make(map[Category]*Logger)
}

func categoryEnabled(category Category) bool {
	mu.RLock()
	defer mu.RUnlock()
	if !settings.DebugMode {
		return false
	}
	if settings.Categories == nil {
		return true
	}
	enabled, ok := settings.Categories[string(category)]
	if !ok {
		return true
	}
	return enabled
}

// Get returns (or creates) the logger for a category.
// Returns a no-op logger when the category is disabled.
func Get(category Category) *Logger {
	if !categoryEnabled(category) {
		return &Logger{category: category}
	}

	mu.RLock()
	if l, ok := loggers[category]; ok {
		mu.RUnlock()
		return l
	}
	dir := logsDir
	mu.RUnlock()

	if dir == "" {
		return &Logger{category: category}
	}

	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[category]; ok {
		return l
	}

	path := filepath.Join(dir, string(category)+".log")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return &Logger{category: category}
	}

	l := &Logger{
		category: category,
		logger:   log.New(f, "", log.LstdFlags|log.Lmicroseconds),
		file:     f,
	}
	loggers[category] = l
	return l
}

func (l *Logger) write(level int, prefix, format string, args ...interface{}) {
	if l.logger == nil {
		return
	}
	mu.RLock()
	min := logLevel
	mu.RUnlock()
	if level < min {
		return
	}
	l.logger.Printf(prefix+format, args...)
}

// Debug logs at debug level.
func (l *Logger) Debug(format string, args ...interface{}) {
	l.write(LevelDebug, "[DEBUG] ", format, args...)
}

// Info logs at info level.
func (l *Logger) Info(format string, args ...interface{}) {
	l.write(LevelInfo, "[INFO] ", format, args...)
}

// Warn logs at warn level.
func (l *Logger) Warn(format string, args ...interface{}) {
	l.write(LevelWarn, "[WARN] ", format, args...)
}

// Error logs at error level.
func (l *Logger) Error(format string, args ...interface{}) {
	l.write(LevelError, "[ERROR] ", format, args...)
}

// Package-level helpers, one set per category, matching call sites
// like logging.Voice(...) / logging.VoiceError(...).

func Session(format string, args ...interface{})         { Get(CategorySession).Info(format, args...) }
func SessionDebug(format string, args ...interface{})    { Get(CategorySession).Debug(format, args...) }
func SessionError(format string, args ...interface{})    { Get(CategorySession).Error(format, args...) }
func Staging(format string, args ...interface{})         { Get(CategoryStaging).Info(format, args...) }
func StagingDebug(format string, args ...interface{})    { Get(CategoryStaging).Debug(format, args...) }
func StagingError(format string, args ...interface{})    { Get(CategoryStaging).Error(format, args...) }
func Voice(format string, args ...interface{})           { Get(CategoryVoice).Info(format, args...) }
func VoiceDebug(format string, args ...interface{})      { Get(CategoryVoice).Debug(format, args...) }
func VoiceError(format string, args ...interface{})      { Get(CategoryVoice).Error(format, args...) }
func Generation(format string, args ...interface{})      { Get(CategoryGeneration).Info(format, args...) }
func GenerationDebug(format string, args ...interface{}) { Get(CategoryGeneration).Debug(format, args...) }
func GenerationError(format string, args ...interface{}) { Get(CategoryGeneration).Error(format, args...) }
func Store(format string, args ...interface{})           { Get(CategoryStore).Info(format, args...) }
func StoreError(format string, args ...interface{})      { Get(CategoryStore).Error(format, args...) }
