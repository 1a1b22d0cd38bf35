package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config selects the log level (debug, info, warn, error) and the encoding
// (console or json).
type Config struct {
	Level    string
	Encoding string
}

// New builds the process logger.
func New(cfg Config) *zap.Logger {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "timestamp"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	level := zapcore.InfoLevel
	if err := level.Set(cfg.Level); err != nil {
		level = zapcore.InfoLevel
	}

	var encoder zapcore.Encoder
	switch cfg.Encoding {
	case "json":
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	default:
		encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	}

	core := zapcore.NewCore(
		encoder,
		zapcore.AddSync(zapcore.Lock(os.Stdout)),
		level,
	)

	return zap.New(core, zap.AddCaller())
}

// ForBot returns a sugared logger in the bot's namespace.
func ForBot(l *zap.Logger, name string) *zap.SugaredLogger {
	return l.With(zap.String("ns", name)).Sugar()
}

// ForUser tags every entry with the chat user.
func ForUser(l *zap.SugaredLogger, usr int64) *zap.SugaredLogger {
	return l.With("usr", usr)
}
