// Package logging builds the zap loggers used across femstage.
package logging

import (
	"fmt"
	"io"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a logger. format is "json" or "console"; level is a zap level
// name such as "debug" or "info".
func New(level, format string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	var config zap.Config
	switch format {
	case "json", "":
		config = zap.NewProductionConfig()
	case "console":
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	default:
		return nil, fmt.Errorf("invalid log format %q", format)
	}
	config.Level = zap.NewAtomicLevelAt(lvl)
	config.DisableStacktrace = lvl > zapcore.DebugLevel

	logger, err := config.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}

// ToWriter builds a console logger writing to w. The live view routes
// engine logs through it so they do not tear the terminal.
func ToWriter(w io.Writer, level zapcore.Level) *zap.Logger {
	enc := zap.NewDevelopmentEncoderConfig()
	enc.TimeKey = ""
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(enc), zapcore.AddSync(w), level)
	return zap.New(core)
}

// EchoLevel maps a component echo_level to the level its logger should
// emit at. Levels above zero enable debug output.
func EchoLevel(echo int) zapcore.Level {
	if echo > 0 {
		return zapcore.DebugLevel
	}
	return zapcore.InfoLevel
}

// Component names logger after a component and raises its threshold to
// the component echo level. A logger already above info is left as is.
func Component(logger *zap.Logger, name string, echo int) *zap.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	named := logger.Named(name)
	if echo > 0 || !named.Core().Enabled(zapcore.DebugLevel) {
		return named
	}
	return named.WithOptions(zap.IncreaseLevel(zapcore.InfoLevel))
}
