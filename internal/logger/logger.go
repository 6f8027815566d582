package logger

import (
	"io"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level represents a logging level
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

// String returns the string representation of the log level
func (l Level) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func (l Level) zap() zapcore.Level {
	switch l {
	case DEBUG:
		return zapcore.DebugLevel
	case WARN:
		return zapcore.WarnLevel
	case ERROR:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// ParseLevel parses a string into a Level
func ParseLevel(s string) Level {
	switch strings.ToLower(s) {
	case "debug":
		return DEBUG
	case "info", "":
		return INFO
	case "warn", "warning":
		return WARN
	case "error":
		return ERROR
	default:
		return INFO
	}
}

// Config holds logger configuration
type Config struct {
	Level     string `yaml:"level"` // debug, info, warn, error
	Component string `yaml:"-"`
}

// Logger is a leveled, component-tagged logger backed by zap
type Logger struct {
	level     zap.AtomicLevel
	component string
	sink      *syncWriter
	z         *zap.SugaredLogger
}

// syncWriter lets SetOutput swap the destination under a live zap core
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

func (s *syncWriter) Sync() error { return nil }

var (
	defaultLogger = New(&Config{Level: "info", Component: "skyoracle"})
	defaultMu     sync.RWMutex
)

func encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:          "ts",
		LevelKey:         "level",
		NameKey:          "component",
		MessageKey:       "msg",
		LineEnding:       zapcore.DefaultLineEnding,
		EncodeTime:       zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05"),
		EncodeLevel:      zapcore.CapitalLevelEncoder,
		EncodeName:       func(n string, enc zapcore.PrimitiveArrayEncoder) { enc.AppendString("[" + n + "]") },
		EncodeDuration:   zapcore.StringDurationEncoder,
		ConsoleSeparator: " ",
	}
}

// New creates a new logger with the given configuration
func New(cfg *Config) *Logger {
	component := cfg.Component
	if component == "" {
		component = "skyoracle"
	}
	level := zap.NewAtomicLevelAt(ParseLevel(cfg.Level).zap())
	sink := &syncWriter{w: os.Stderr}
	return build(level, component, sink)
}

func build(level zap.AtomicLevel, component string, sink *syncWriter) *Logger {
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig()), sink, level)
	return &Logger{
		level:     level,
		component: component,
		sink:      sink,
		z:         zap.New(core).Named(component).Sugar(),
	}
}

// SetOutput sets the output writer
func (l *Logger) SetOutput(w io.Writer) {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	l.sink.w = w
}

// SetLevel sets the minimum logging level
func (l *Logger) SetLevel(level Level) {
	l.level.SetLevel(level.zap())
}

// GetLevel returns the current logging level
func (l *Logger) GetLevel() Level {
	switch l.level.Level() {
	case zapcore.DebugLevel:
		return DEBUG
	case zapcore.WarnLevel:
		return WARN
	case zapcore.ErrorLevel, zapcore.DPanicLevel, zapcore.PanicLevel, zapcore.FatalLevel:
		return ERROR
	default:
		return INFO
	}
}

// Component returns the component name
func (l *Logger) Component() string {
	return l.component
}

// WithComponent returns a logger sharing level and output under another component name
func (l *Logger) WithComponent(component string) *Logger {
	return build(l.level, component, l.sink)
}

// With returns a logger that appends the given key/value pairs to every line
func (l *Logger) With(keysAndValues ...any) *Logger {
	return &Logger{
		level:     l.level,
		component: l.component,
		sink:      l.sink,
		z:         l.z.With(keysAndValues...),
	}
}

// Debug logs a debug message
func (l *Logger) Debug(format string, args ...any) {
	l.z.Debugf(format, args...)
}

// Info logs an info message
func (l *Logger) Info(format string, args ...any) {
	l.z.Infof(format, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(format string, args ...any) {
	l.z.Warnf(format, args...)
}

// Error logs an error message
func (l *Logger) Error(format string, args ...any) {
	l.z.Errorf(format, args...)
}

// Package-level functions that use the default logger

// SetDefaultLogger sets the package-level default logger
func SetDefaultLogger(l *Logger) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultLogger = l
}

// GetDefaultLogger returns the package-level default logger
func GetDefaultLogger() *Logger {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultLogger
}

// SetLevel sets the default logger's level
func SetLevel(level Level) {
	GetDefaultLogger().SetLevel(level)
}

// Debug logs a debug message using the default logger
func Debug(format string, args ...any) {
	GetDefaultLogger().Debug(format, args...)
}

// Info logs an info message using the default logger
func Info(format string, args ...any) {
	GetDefaultLogger().Info(format, args...)
}

// Warn logs a warning message using the default logger
func Warn(format string, args ...any) {
	GetDefaultLogger().Warn(format, args...)
}

// Error logs an error message using the default logger
func Error(format string, args ...any) {
	GetDefaultLogger().Error(format, args...)
}
