// nolint:forbidigo // allow usage of the "zap" package
package log

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	componentKey = "component"
	durationKey  = "duration"
)

// zapLogger is default implementation of the Logger interface.
type zapLogger struct {
	logger    *zap.Logger
	component string
}

func loggerFromZapCore(core zapcore.Core) *zapLogger {
	return &zapLogger{logger: zap.New(core)}
}

func (l *zapLogger) With(attrs ...attribute.KeyValue) Logger {
	fields := make([]zap.Field, 0, len(attrs))
	for _, attr := range attrs {
		fields = append(fields, zap.Any(string(attr.Key), attr.Value.AsInterface()))
	}
	clone := *l
	clone.logger = l.logger.With(fields...)
	return &clone
}

// WithComponent adds the component, nested components are separated by a dot.
func (l *zapLogger) WithComponent(component string) Logger {
	clone := *l
	if l.component == "" {
		clone.component = component
	} else {
		clone.component = l.component + "." + component
	}
	return &clone
}

func (l *zapLogger) WithDuration(v time.Duration) Logger {
	clone := *l
	clone.logger = l.logger.With(zap.String(durationKey, v.String()))
	return &clone
}

func (l *zapLogger) Debug(ctx context.Context, message string) {
	l.write(ctx, DebugLevel, message)
}

func (l *zapLogger) Info(ctx context.Context, message string) {
	l.write(ctx, InfoLevel, message)
}

func (l *zapLogger) Warn(ctx context.Context, message string) {
	l.write(ctx, WarnLevel, message)
}

func (l *zapLogger) Error(ctx context.Context, message string) {
	l.write(ctx, ErrorLevel, message)
}

func (l *zapLogger) Log(ctx context.Context, level string, message string) {
	lvl, err := zapcore.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = InfoLevel
	}
	l.write(ctx, lvl, message)
}

func (l *zapLogger) Debugf(ctx context.Context, template string, args ...any) {
	l.write(ctx, DebugLevel, fmt.Sprintf(template, args...))
}

func (l *zapLogger) Infof(ctx context.Context, template string, args ...any) {
	l.write(ctx, InfoLevel, fmt.Sprintf(template, args...))
}

func (l *zapLogger) Warnf(ctx context.Context, template string, args ...any) {
	l.write(ctx, WarnLevel, fmt.Sprintf(template, args...))
}

func (l *zapLogger) Errorf(ctx context.Context, template string, args ...any) {
	l.write(ctx, ErrorLevel, fmt.Sprintf(template, args...))
}

func (l *zapLogger) Sync() error {
	return l.logger.Sync()
}

func (l *zapLogger) write(_ context.Context, level zapcore.Level, message string) {
	ce := l.logger.Check(level, message)
	if ce == nil {
		return
	}
	if l.component != "" {
		ce.Write(zap.String(componentKey, l.component))
	} else {
		ce.Write()
	}
}
