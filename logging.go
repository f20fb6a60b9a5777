package queueworker

import (
	"context"
	"log"
	"os"
	"strconv"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the minimal logging surface the worker needs. The zero value
// of the worker logs nothing; install a logger with WithLogger.
type Logger interface {
	Debug(ctx context.Context, msg string, kv ...any)
	Info(ctx context.Context, msg string, kv ...any)
	Warn(ctx context.Context, msg string, kv ...any)
	Error(ctx context.Context, msg string, kv ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(context.Context, string, ...any) {}
func (noopLogger) Info(context.Context, string, ...any)  {}
func (noopLogger) Warn(context.Context, string, ...any)  {}
func (noopLogger) Error(context.Context, string, ...any) {}

type zapLogger struct {
	lg *zap.SugaredLogger
}

// NewZapLogger adapts a zap logger to the Logger interface.
func NewZapLogger(lg *zap.Logger) Logger {
	return &zapLogger{lg: lg.WithOptions(zap.AddCallerSkip(1)).Sugar()}
}

func (z *zapLogger) Debug(_ context.Context, msg string, kv ...any) { z.lg.Debugw(msg, kv...) }
func (z *zapLogger) Info(_ context.Context, msg string, kv ...any)  { z.lg.Infow(msg, kv...) }
func (z *zapLogger) Warn(_ context.Context, msg string, kv ...any)  { z.lg.Warnw(msg, kv...) }
func (z *zapLogger) Error(_ context.Context, msg string, kv ...any) { z.lg.Errorw(msg, kv...) }

func initZap() (*zap.Logger, error) {
	logLevelEnv := os.Getenv("LOG_LEVEL")
	logLevelInt, err := strconv.Atoi(logLevelEnv)
	if err != nil {
		logLevelInt = int(zapcore.InfoLevel)
	}

	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(zapcore.Level(logLevelInt))
	zapCfg.EncoderConfig.CallerKey = "ln"
	zapCfg.EncoderConfig.FunctionKey = ""
	zapCfg.EncoderConfig.LevelKey = "severity"
	zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zapCfg.OutputPaths = []string{"stdout"}

	return zapCfg.Build()
}

// NewProductionLogger builds a JSON zap logger configured from LOG_LEVEL
// and returns it with a flush function.
func NewProductionLogger() (Logger, func()) {
	lg, err := initZap()
	if err != nil {
		log.Fatalf("fail to init logger, error: %v", err)
	}
	return NewZapLogger(lg), func() { _ = lg.Sync() }
}
