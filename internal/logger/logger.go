// Package logger wraps log/slog with the engine's domain conveniences:
// component/exchange/strategy/symbol-scoped child loggers, and a
// WithContext that pulls the ambient MethodContext/ExecutionContext (if
// present) onto the log line.
package logger

import (
	"context"
	"log/slog"
	"os"

	"github.com/guyghost/backtestkit/internal/ambient"
)

// Logger wraps slog.Logger with convenience methods.
type Logger struct {
	*slog.Logger
}

// Config holds logger configuration.
type Config struct {
	Level      slog.Level
	Format     string // "json" or "text"
	AddSource  bool
	OutputPath string // empty means stdout
}

// DefaultConfig returns default logger configuration.
func DefaultConfig() *Config {
	return &Config{
		Level:     slog.LevelInfo,
		Format:    "json",
		AddSource: false,
	}
}

// New creates a new structured logger.
func New(config *Config) *Logger {
	if config == nil {
		config = DefaultConfig()
	}

	opts := &slog.HandlerOptions{
		Level:     config.Level,
		AddSource: config.AddSource,
	}

	var handler slog.Handler
	output := os.Stdout
	if config.OutputPath != "" {
		file, err := os.OpenFile(config.OutputPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err == nil {
			output = file
		}
	}

	if config.Format == "text" {
		handler = slog.NewTextHandler(output, opts)
	} else {
		handler = slog.NewJSONHandler(output, opts)
	}

	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithContext returns a logger enriched with the ambient MethodContext
// and ExecutionContext fields present on ctx, if any. A missing frame is
// silently skipped rather than erroring — logging must never fail a call
// for want of an ambient frame.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	logger := l
	if mc, err := ambient.CurrentMethodContext(ctx); err == nil {
		logger = logger.WithFields(map[string]any{
			"strategy": mc.StrategyName,
			"exchange": mc.ExchangeName,
			"frame":    mc.FrameName,
		})
	}
	if ec, err := ambient.CurrentExecutionContext(ctx); err == nil {
		logger = logger.WithFields(map[string]any{
			"symbol":   ec.Symbol,
			"when":     ec.When,
			"backtest": ec.Backtest,
		})
	}
	return logger
}

// WithFields returns a logger with additional fields.
func (l *Logger) WithFields(fields map[string]any) *Logger {
	args := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return &Logger{
		Logger: l.Logger.With(args...),
	}
}

// WithField returns a logger with an additional field.
func (l *Logger) WithField(key string, value any) *Logger {
	return &Logger{
		Logger: l.Logger.With(key, value),
	}
}

// WithError returns a logger with an error field.
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return &Logger{
		Logger: l.Logger.With("error", err.Error()),
	}
}

// Component returns a logger for a specific component.
func (l *Logger) Component(name string) *Logger {
	return &Logger{
		Logger: l.Logger.With("component", name),
	}
}

// Exchange returns a logger scoped to a specific exchange schema.
func (l *Logger) Exchange(name string) *Logger {
	return &Logger{
		Logger: l.Logger.With("exchange", name),
	}
}

// Strategy returns a logger scoped to a specific strategy schema.
func (l *Logger) Strategy(name string) *Logger {
	return &Logger{
		Logger: l.Logger.With("strategy", name),
	}
}

// Symbol returns a logger scoped to a specific trading symbol.
func (l *Logger) Symbol(symbol string) *Logger {
	return &Logger{
		Logger: l.Logger.With("symbol", symbol),
	}
}

// Signal logs signal-lifecycle events (scheduled/opened/closed/etc).
func (l *Logger) Signal(fields map[string]any) {
	args := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	l.Logger.Info("signal", args...)
}

// Risk logs risk-management decisions.
func (l *Logger) Risk(fields map[string]any) {
	args := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	l.Logger.Warn("risk_event", args...)
}

// Global logger instance.
var defaultLogger *Logger

func init() {
	defaultLogger = New(DefaultConfig())
}

// SetDefault sets the default global logger.
func SetDefault(l *Logger) {
	if l != nil {
		defaultLogger = l
	}
}

// Default returns the default global logger.
func Default() *Logger {
	return defaultLogger
}

// Convenience functions using the default logger.

func Debug(msg string, args ...any) { defaultLogger.Debug(msg, args...) }
func Info(msg string, args ...any)  { defaultLogger.Info(msg, args...) }
func Warn(msg string, args ...any)  { defaultLogger.Warn(msg, args...) }
func Error(msg string, args ...any) { defaultLogger.Error(msg, args...) }

// Fatal logs a fatal message and exits.
func Fatal(msg string, args ...any) {
	defaultLogger.Error(msg, args...)
	os.Exit(1)
}

func WithFields(fields map[string]any) *Logger { return defaultLogger.WithFields(fields) }
func WithField(key string, value any) *Logger  { return defaultLogger.WithField(key, value) }
func WithError(err error) *Logger              { return defaultLogger.WithError(err) }
func Component(name string) *Logger            { return defaultLogger.Component(name) }
func Exchange(name string) *Logger             { return defaultLogger.Exchange(name) }
func Strategy(name string) *Logger             { return defaultLogger.Strategy(name) }
func Symbol(symbol string) *Logger             { return defaultLogger.Symbol(symbol) }
