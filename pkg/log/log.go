package log

import (
	"context"
	"os"
	"slices"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	EncodingConsole = "console"
	EncodingJSON    = "json"
)

const timeFormat = "2006-01-02 15:04:05.000"

// Logger is a context-aware structured logger. Implementations are safe for
// concurrent use.
type Logger interface {
	Debugf(ctx context.Context, template string, args ...any)
	Infof(ctx context.Context, template string, args ...any)
	Warnf(ctx context.Context, template string, args ...any)
	Errorf(ctx context.Context, template string, args ...any)
	With(keysAndValues ...any) Logger
}

// ZapConfig holds configuration for the zap logger.
type ZapConfig struct {
	Level    string
	Encoding string
}

type zapLogger struct {
	sugar *zap.SugaredLogger
	// fields mirrors what With attached to sugar, so WithContext can carry them.
	fields []any
}

var levels = map[string]zapcore.Level{
	"debug": zapcore.DebugLevel,
	"info":  zapcore.InfoLevel,
	"warn":  zapcore.WarnLevel,
	"error": zapcore.ErrorLevel,
}

func timeEncoder(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(t.UTC().Format(timeFormat))
}

// Init builds a Logger writing to stderr.
func Init(cfg ZapConfig) Logger {
	level, ok := levels[cfg.Level]
	if !ok {
		level = zapcore.InfoLevel
	}
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = timeEncoder
	var encoder zapcore.Encoder
	if cfg.Encoding == EncodingConsole {
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	}
	return New(zapcore.NewCore(encoder, zapcore.AddSync(os.Stderr), zap.NewAtomicLevelAt(level)))
}

// New builds a Logger over an existing zap core.
func New(core zapcore.Core) Logger {
	return &zapLogger{sugar: zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)).Sugar()}
}

// NewNop returns a Logger that discards everything.
func NewNop() Logger {
	return &zapLogger{sugar: zap.NewNop().Sugar()}
}

type fieldsKey struct{}

// WithContext carries l's fields in ctx. Any Logger called with the returned
// context adds them to its own, so a run or request id reaches code that was
// handed a different logger.
func WithContext(ctx context.Context, l Logger) context.Context {
	zl, ok := l.(*zapLogger)
	if !ok || len(zl.fields) == 0 {
		return ctx
	}
	fields := append(slices.Clip(contextFields(ctx)), zl.fields...)
	return context.WithValue(ctx, fieldsKey{}, fields)
}

func contextFields(ctx context.Context) []any {
	if ctx == nil {
		return nil
	}
	fields, _ := ctx.Value(fieldsKey{}).([]any)
	return fields
}

func (l *zapLogger) ctx(ctx context.Context) *zap.SugaredLogger {
	fields := contextFields(ctx)
	if len(fields) == 0 {
		return l.sugar
	}
	own := make(map[any]bool, len(l.fields)/2)
	for i := 0; i+1 < len(l.fields); i += 2 {
		own[l.fields[i]] = true
	}
	extra := make([]any, 0, len(fields))
	for i := 0; i+1 < len(fields); i += 2 {
		if !own[fields[i]] {
			extra = append(extra, fields[i], fields[i+1])
		}
	}
	if len(extra) == 0 {
		return l.sugar
	}
	return l.sugar.With(extra...)
}

func (l *zapLogger) Debugf(ctx context.Context, template string, args ...any) {
	l.ctx(ctx).Debugf(template, args...)
}

func (l *zapLogger) Infof(ctx context.Context, template string, args ...any) {
	l.ctx(ctx).Infof(template, args...)
}

func (l *zapLogger) Warnf(ctx context.Context, template string, args ...any) {
	l.ctx(ctx).Warnf(template, args...)
}

func (l *zapLogger) Errorf(ctx context.Context, template string, args ...any) {
	l.ctx(ctx).Errorf(template, args...)
}

func (l *zapLogger) With(keysAndValues ...any) Logger {
	return &zapLogger{
		sugar:  l.sugar.With(keysAndValues...),
		fields: append(slices.Clip(l.fields), keysAndValues...),
	}
}
