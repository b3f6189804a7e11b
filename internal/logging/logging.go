// Package logging builds the process-wide structured logger and, through
// ForScope, per-scope child loggers (ambient stack:
// logging is carried regardless of which spec features are in scope).
package logging

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wasmind-go/wasmind/pkg/busmsg"
)

// Config mirrors the ambient [logging] table in wasmind.toml (§6.4).
type Config struct {
	// Level is one of "debug", "info", "warn", "error". Defaults to "info".
	Level string
	// Format is "json" or "console". Defaults to "json".
	Format string
	// OutputPath is a file path, or "stdout"/"stderr". Defaults to "stdout".
	OutputPath string
}

// New builds the root logger for a wasmindd process.
func New(cfg Config) (*zap.Logger, error) {
	level := parseLevel(cfg.Level)
	encoding := strings.ToLower(strings.TrimSpace(cfg.Format))
	if encoding == "" {
		encoding = "json"
	}
	output := strings.TrimSpace(cfg.OutputPath)
	if output == "" {
		output = "stdout"
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	if encoding == "console" {
		encoderCfg = zap.NewDevelopmentEncoderConfig()
	}

	zapCfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Encoding:         encoding,
		EncoderConfig:    encoderCfg,
		OutputPaths:      []string{output},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := zapCfg.Build()
	if err != nil {
		return nil, fmt.Errorf("logging: build logger: %w", err)
	}
	return logger, nil
}

// MustNew is like New but exits the process on failure, for use during
// early startup before there is any logger to report the error to.
func MustNew(cfg Config) *zap.Logger {
	logger, err := New(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	return logger
}

// ForScope returns a child logger tagged with an actor's scope and actor_id.
// The bus and hostcaps.Table (which serves `logger.log`) do not call it; they
// log through the logger they are given.
func ForScope(base *zap.Logger, scope busmsg.Scope, actorID string) *zap.Logger {
	return base.With(zap.String("scope", scope.String()), zap.String("actor_id", actorID))
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
