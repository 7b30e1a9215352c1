package logger

import (
	"context"
	"os"
	"strings"

	"firestore-access/internal/shared/contextkeys"

	"github.com/sirupsen/logrus"
)

const (
	logFormatJSON = "json"

	envProduction = "production"
	envProd       = "prod"

	// BackendLogrus and BackendZap select the implementation used by New.
	BackendLogrus = "logrus"
	BackendZap    = "zap"

	timestampFormat = "2006-01-02T15:04:05.000Z07:00"
	textTimestamp   = "2006-01-02 15:04:05"
)

// Logger defines the interface for structured logging operations
type Logger interface {
	Debug(args ...interface{})
	Info(args ...interface{})
	Warn(args ...interface{})
	Error(args ...interface{})
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	WithFields(fields map[string]interface{}) Logger
	WithContext(ctx context.Context) Logger
	WithComponent(component string) Logger
}

// contextFields lists the context values lifted into log fields.
var contextFields = []struct {
	key  interface{}
	name string
}{
	{contextkeys.RequestIDKey, "request_id"},
	{contextkeys.AccountIDKey, "account_id"},
	{contextkeys.OperationKey, "operation"},
	{contextkeys.ComponentKey, "component"},
}

func fieldsFromContext(ctx context.Context) map[string]interface{} {
	fields := map[string]interface{}{}
	if ctx == nil {
		return fields
	}
	for _, f := range contextFields {
		if s, ok := ctx.Value(f.key).(string); ok && s != "" {
			fields[f.name] = s
		}
	}
	return fields
}

// New builds a logger for the given backend, level and format.
// Unknown backends fall back to logrus.
func New(backend, level, format string) Logger {
	if strings.EqualFold(backend, BackendZap) {
		return NewZapLogger(level, format)
	}
	return NewLoggerWithConfig(level, format)
}

// LogrusLogger implements the Logger interface using logrus
type LogrusLogger struct {
	entry *logrus.Entry
}

// NewLogger creates a logrus logger configured from LOG_LEVEL, LOG_FORMAT and ENVIRONMENT.
func NewLogger() Logger {
	logger := logrus.New()
	logger.SetLevel(parseLevel(os.Getenv("LOG_LEVEL")))
	logger.SetFormatter(formatterFor(os.Getenv("LOG_FORMAT"), os.Getenv("ENVIRONMENT")))
	logger.SetOutput(os.Stdout)

	return &LogrusLogger{entry: logrus.NewEntry(logger)}
}

// NewLoggerWithConfig creates a logrus logger with an explicit level and format.
func NewLoggerWithConfig(level string, format string) Logger {
	logger := logrus.New()
	logger.SetLevel(parseLevel(level))
	logger.SetFormatter(formatterFor(format, ""))
	logger.SetOutput(os.Stdout)

	return &LogrusLogger{entry: logrus.NewEntry(logger)}
}

func (l *LogrusLogger) Debug(args ...interface{}) { l.entry.Debug(args...) }
func (l *LogrusLogger) Info(args ...interface{})  { l.entry.Info(args...) }
func (l *LogrusLogger) Warn(args ...interface{})  { l.entry.Warn(args...) }
func (l *LogrusLogger) Error(args ...interface{}) { l.entry.Error(args...) }

func (l *LogrusLogger) Debugf(format string, args ...interface{}) { l.entry.Debugf(format, args...) }
func (l *LogrusLogger) Infof(format string, args ...interface{})  { l.entry.Infof(format, args...) }
func (l *LogrusLogger) Warnf(format string, args ...interface{})  { l.entry.Warnf(format, args...) }
func (l *LogrusLogger) Errorf(format string, args ...interface{}) { l.entry.Errorf(format, args...) }

// WithFields adds structured fields to the logger
func (l *LogrusLogger) WithFields(fields map[string]interface{}) Logger {
	return &LogrusLogger{entry: l.entry.WithFields(logrus.Fields(fields))}
}

// WithContext adds the request scoped values found in ctx
func (l *LogrusLogger) WithContext(ctx context.Context) Logger {
	return &LogrusLogger{entry: l.entry.WithFields(logrus.Fields(fieldsFromContext(ctx)))}
}

// WithComponent adds component name to the logger
func (l *LogrusLogger) WithComponent(component string) Logger {
	return &LogrusLogger{entry: l.entry.WithField("component", component)}
}

func parseLevel(level string) logrus.Level {
	switch strings.ToLower(level) {
	case "debug":
		return logrus.DebugLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	default:
		return logrus.InfoLevel
	}
}

func formatterFor(format, env string) logrus.Formatter {
	if format == logFormatJSON || env == envProduction || env == envProd {
		return &logrus.JSONFormatter{
			TimestampFormat: timestampFormat,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		}
	}
	return &logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: textTimestamp,
	}
}

// NoopLogger discards everything. Useful as a default for optional loggers.
type NoopLogger struct{}

func (NoopLogger) Debug(...interface{})                            {}
func (NoopLogger) Info(...interface{})                             {}
func (NoopLogger) Warn(...interface{})                             {}
func (NoopLogger) Error(...interface{})                            {}
func (NoopLogger) Debugf(string, ...interface{})                   {}
func (NoopLogger) Infof(string, ...interface{})                    {}
func (NoopLogger) Warnf(string, ...interface{})                    {}
func (NoopLogger) Errorf(string, ...interface{})                   {}
func (n NoopLogger) WithFields(map[string]interface{}) Logger      { return n }
func (n NoopLogger) WithContext(context.Context) Logger            { return n }
func (n NoopLogger) WithComponent(string) Logger                   { return n }
