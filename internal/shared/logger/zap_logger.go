package logger

import (
	"context"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapLogger implements Logger on top of a sugared zap logger.
type ZapLogger struct {
	sugar *zap.SugaredLogger
}

// NewZapLogger creates a zap backed logger. format "json" selects the
// production encoder, anything else the console encoder.
func NewZapLogger(level string, format string) Logger {
	cfg := zap.NewDevelopmentConfig()
	if format == logFormatJSON {
		cfg = zap.NewProductionConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(zapLevel(level))
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout(timestampFormat)

	z, err := cfg.Build()
	if err != nil {
		z = zap.NewNop()
	}
	return &ZapLogger{sugar: z.Sugar()}
}

// NewZapLoggerFrom wraps an existing zap logger.
func NewZapLoggerFrom(z *zap.Logger) Logger {
	return &ZapLogger{sugar: z.Sugar()}
}

func (l *ZapLogger) Debug(args ...interface{}) { l.sugar.Debug(args...) }
func (l *ZapLogger) Info(args ...interface{})  { l.sugar.Info(args...) }
func (l *ZapLogger) Warn(args ...interface{})  { l.sugar.Warn(args...) }
func (l *ZapLogger) Error(args ...interface{}) { l.sugar.Error(args...) }

func (l *ZapLogger) Debugf(format string, args ...interface{}) { l.sugar.Debugf(format, args...) }
func (l *ZapLogger) Infof(format string, args ...interface{})  { l.sugar.Infof(format, args...) }
func (l *ZapLogger) Warnf(format string, args ...interface{})  { l.sugar.Warnf(format, args...) }
func (l *ZapLogger) Errorf(format string, args ...interface{}) { l.sugar.Errorf(format, args...) }

// WithFields adds structured fields to the logger
func (l *ZapLogger) WithFields(fields map[string]interface{}) Logger {
	kv := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		kv = append(kv, k, v)
	}
	return &ZapLogger{sugar: l.sugar.With(kv...)}
}

// WithContext adds the request scoped values found in ctx
func (l *ZapLogger) WithContext(ctx context.Context) Logger {
	return l.WithFields(fieldsFromContext(ctx))
}

// WithComponent adds component name to the logger
func (l *ZapLogger) WithComponent(component string) Logger {
	return &ZapLogger{sugar: l.sugar.With("component", component)}
}

func zapLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "fatal":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}
