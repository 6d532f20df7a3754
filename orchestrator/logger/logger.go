package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var Logger *zap.SugaredLogger

var level = zap.NewAtomicLevelAt(zapcore.WarnLevel)

func init() {
	cfg := zap.NewProductionConfig()
	cfg.Level = level
	logger, err := cfg.Build()
	if err != nil {
		panic("Unable to initialize logger!")
	}
	Logger = logger.Sugar()
}

// SetVerbosity maps the count of -v flags to a log level.
func SetVerbosity(verbosity int) {
	switch {
	case verbosity <= 0:
		level.SetLevel(zapcore.WarnLevel)
	case verbosity == 1:
		level.SetLevel(zapcore.InfoLevel)
	default:
		level.SetLevel(zapcore.DebugLevel)
	}
}

// Leveled adapts the sugared logger to the retryablehttp.LeveledLogger interface.
type Leveled struct {
	S *zap.SugaredLogger
}

func (l Leveled) Error(msg string, keysAndValues ...interface{}) {
	l.S.Errorw(msg, keysAndValues...)
}

func (l Leveled) Info(msg string, keysAndValues ...interface{}) {
	l.S.Infow(msg, keysAndValues...)
}

func (l Leveled) Debug(msg string, keysAndValues ...interface{}) {
	l.S.Debugw(msg, keysAndValues...)
}

func (l Leveled) Warn(msg string, keysAndValues ...interface{}) {
	l.S.Warnw(msg, keysAndValues...)
}
