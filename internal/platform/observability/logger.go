package observability

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Asimpl3-Hero/SPA-E-commerce-sub001/internal/platform/requestctx"
)

const defaultLogLevel = "info"

// NewLogger builds a JSON logger using Cloud Logging key names. Invalid levels fall back to info.
func NewLogger(level string) (*zap.Logger, error) {
	atom := zap.NewAtomicLevel()
	if err := atom.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(level)))); err != nil || strings.TrimSpace(level) == "" {
		_ = atom.UnmarshalText([]byte(defaultLogLevel))
	}

	cfg := zap.Config{
		Level:    atom,
		Encoding: "json",
		EncoderConfig: zapcore.EncoderConfig{
			MessageKey:    "message",
			TimeKey:       "timestamp",
			LevelKey:      "severity",
			NameKey:       "logger",
			CallerKey:     "caller",
			StacktraceKey: "stacktrace",
			EncodeTime:    zapcore.RFC3339NanoTimeEncoder,
			EncodeCaller:  zapcore.ShortCallerEncoder,
			EncodeLevel: func(level zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
				enc.AppendString(strings.ToUpper(level.String()))
			},
		},
		OutputPaths:       []string{"stdout"},
		ErrorOutputPaths:  []string{"stderr"},
		DisableStacktrace: true,
	}
	return cfg.Build()
}

// EventLogger adapts zap to the func(ctx, event, fields) hook the services accept. The request
// logger on ctx wins over base so request ids and trace ids are attached.
func EventLogger(base *zap.Logger) func(context.Context, string, map[string]any) {
	if base == nil {
		base = zap.NewNop()
	}
	return func(ctx context.Context, event string, fields map[string]any) {
		logger := base
		if requestctx.HasLogger(ctx) {
			logger = requestctx.Logger(ctx)
		}
		zapFields := make([]zap.Field, 0, len(fields)+1)
		zapFields = append(zapFields, zap.String("event", event))
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			zapFields = append(zapFields, zap.Any(k, fields[k]))
		}

		switch eventLevel(event) {
		case zapcore.ErrorLevel:
			logger.Error(event, zapFields...)
		case zapcore.WarnLevel:
			logger.Warn(event, zapFields...)
		default:
			logger.Info(event, zapFields...)
		}
	}
}

// events that need operator attention; other *.failed events are recoverable.
var errorEvents = map[string]bool{
	"payment.record.failed":       true,
	"webhook.processing.failed":   true,
	"reconcile.sweep.failed":      true,
	"checkout.stock.insufficient": true,
}

func eventLevel(event string) zapcore.Level {
	switch {
	case errorEvents[event]:
		return zapcore.ErrorLevel
	case strings.HasSuffix(event, ".failed"), strings.HasSuffix(event, ".invalid"),
		strings.HasSuffix(event, ".unknown"), strings.HasSuffix(event, ".conflict"):
		return zapcore.WarnLevel
	default:
		return zapcore.InfoLevel
	}
}
