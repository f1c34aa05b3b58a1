package utils

import (
	"fmt"
	"io"
	"os"
	"sort"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogFormat defines the output format for logs
type LogFormat int

const (
	FormatText LogFormat = iota
	FormatJSON
)

// StructuredLogger provides structured logging with levels, context fields
// and per-component levels on top of a zap core.
type StructuredLogger struct {
	mu              sync.RWMutex
	level           LogLevel
	zl              *zap.Logger
	contextFields   map[string]interface{}
	componentLevels map[string]LogLevel
	closer          io.Closer
}

// StructuredLoggerConfig holds configuration for the logger
type StructuredLoggerConfig struct {
	Level  LogLevel
	Output io.Writer
	File   string
	// Rotation of File; zero values keep a single ever-growing file.
	MaxSizeMB     int64
	MaxBackups    int
	Compress      bool
	Format        LogFormat
	IncludeCaller bool
	IncludeStack  bool
	// ComponentLevels override Level for loggers created with WithComponent.
	ComponentLevels map[string]LogLevel
}

// DefaultStructuredLoggerConfig returns default configuration
func DefaultStructuredLoggerConfig() *StructuredLoggerConfig {
	return &StructuredLoggerConfig{
		Level:         INFO,
		Output:        os.Stderr,
		Format:        FormatText,
		IncludeCaller: false,
		IncludeStack:  false,
	}
}

// NewStructuredLogger creates a new structured logger
func NewStructuredLogger(config *StructuredLoggerConfig) (*StructuredLogger, error) {
	if config == nil {
		config = DefaultStructuredLoggerConfig()
	}

	logger := &StructuredLogger{
		level:           config.Level,
		contextFields:   make(map[string]interface{}),
		componentLevels: make(map[string]LogLevel),
	}
	for component, level := range config.ComponentLevels {
		logger.SetComponentLevel(component, level)
	}

	output := config.Output
	if config.File != "" {
		file, err := OpenRotatingFile(RotationConfig{
			Filename:   config.File,
			MaxSizeMB:  config.MaxSizeMB,
			MaxBackups: config.MaxBackups,
			Compress:   config.Compress,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		output = file
		logger.closer = file
	}
	if output == nil {
		output = os.Stderr
	}

	var encoder zapcore.Encoder
	if config.Format == FormatJSON {
		encCfg := zap.NewProductionEncoderConfig()
		encCfg.TimeKey = "timestamp"
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		encoder = zapcore.NewJSONEncoder(encCfg)
	} else {
		encCfg := zap.NewDevelopmentEncoderConfig()
		encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05.000")
		encoder = zapcore.NewConsoleEncoder(encCfg)
	}

	// Level filtering happens in isEnabled so component overrides can
	// lower the threshold below the global one.
	core := zapcore.NewCore(encoder, zapcore.AddSync(output), zapcore.DebugLevel)

	opts := []zap.Option{zap.WithFatalHook(zapcore.WriteThenFatal)}
	if config.IncludeCaller {
		opts = append(opts, zap.AddCaller(), zap.AddCallerSkip(3))
	}
	if config.IncludeStack {
		opts = append(opts, zap.AddStacktrace(zapcore.ErrorLevel))
	}
	logger.zl = zap.New(core, opts...)

	return logger, nil
}

// NewNopLogger returns a logger that discards everything.
func NewNopLogger() *StructuredLogger {
	return &StructuredLogger{
		level:           FATAL + 1,
		zl:              zap.NewNop(),
		contextFields:   make(map[string]interface{}),
		componentLevels: make(map[string]LogLevel),
	}
}

func (sl *StructuredLogger) clone(fields map[string]interface{}) *StructuredLogger {
	return &StructuredLogger{
		level:           sl.level,
		zl:              sl.zl,
		contextFields:   fields,
		componentLevels: sl.componentLevels,
		closer:          sl.closer,
	}
}

// WithField returns a new logger with an additional context field
func (sl *StructuredLogger) WithField(key string, value interface{}) *StructuredLogger {
	return sl.WithFields(map[string]interface{}{key: value})
}

// WithFields returns a new logger with multiple context fields
func (sl *StructuredLogger) WithFields(fields map[string]interface{}) *StructuredLogger {
	sl.mu.RLock()
	defer sl.mu.RUnlock()

	newFields := make(map[string]interface{}, len(sl.contextFields)+len(fields))
	for k, v := range sl.contextFields {
		newFields[k] = v
	}
	for k, v := range fields {
		newFields[k] = v
	}

	return sl.clone(newFields)
}

// WithComponent returns a logger with a component field
func (sl *StructuredLogger) WithComponent(component string) *StructuredLogger {
	return sl.WithField("component", component)
}

// SetComponentLevel sets the log level for a specific component
func (sl *StructuredLogger) SetComponentLevel(component string, level LogLevel) {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	sl.componentLevels[component] = level
}

// isEnabled checks if a log level is enabled for the current component
func (sl *StructuredLogger) isEnabled(level LogLevel) bool {
	sl.mu.RLock()
	defer sl.mu.RUnlock()

	if component, ok := sl.contextFields["component"].(string); ok {
		if compLevel, exists := sl.componentLevels[component]; exists {
			return level >= compLevel
		}
	}

	return level >= sl.level
}

// log writes a log entry
func (sl *StructuredLogger) log(level LogLevel, message string, fields map[string]interface{}) {
	if !sl.isEnabled(level) {
		return
	}

	sl.mu.RLock()
	merged := make(map[string]interface{}, len(sl.contextFields)+len(fields))
	for k, v := range sl.contextFields {
		merged[k] = v
	}
	sl.mu.RUnlock()
	for k, v := range fields {
		merged[k] = v
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	zapFields := make([]zap.Field, 0, len(keys)+1)
	for _, k := range keys {
		zapFields = append(zapFields, zap.Any(k, merged[k]))
	}
	if level == TRACE {
		zapFields = append(zapFields, zap.Bool("trace", true))
	}

	sl.zl.Log(level.zapLevel(), message, zapFields...)
}

// logWithFields is a helper to log with optional field maps
func (sl *StructuredLogger) logWithFields(level LogLevel, message string, fieldMaps ...map[string]interface{}) {
	var fields map[string]interface{}
	if len(fieldMaps) > 0 && fieldMaps[0] != nil {
		fields = fieldMaps[0]
	}
	sl.log(level, message, fields)
}

// Trace logs a trace message
func (sl *StructuredLogger) Trace(message string, fields ...map[string]interface{}) {
	sl.logWithFields(TRACE, message, fields...)
}

// Debug logs a debug message
func (sl *StructuredLogger) Debug(message string, fields ...map[string]interface{}) {
	sl.logWithFields(DEBUG, message, fields...)
}

// Info logs an info message
func (sl *StructuredLogger) Info(message string, fields ...map[string]interface{}) {
	sl.logWithFields(INFO, message, fields...)
}

// Warn logs a warning message
func (sl *StructuredLogger) Warn(message string, fields ...map[string]interface{}) {
	sl.logWithFields(WARN, message, fields...)
}

// Error logs an error message
func (sl *StructuredLogger) Error(message string, fields ...map[string]interface{}) {
	sl.logWithFields(ERROR, message, fields...)
}

// Close flushes and closes the logger and any associated resources
func (sl *StructuredLogger) Close() error {
	_ = sl.zl.Sync()
	if sl.closer != nil {
		return sl.closer.Close()
	}
	return nil
}

// Sync flushes any buffered log entries
func (sl *StructuredLogger) Sync() error {
	return sl.zl.Sync()
}
