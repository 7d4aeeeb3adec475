// Package logging provides zap logger helpers.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a zap.Logger configured for development or production.
func New(development bool) (*zap.Logger, error) {
	if development {
		cfg := zap.NewDevelopmentConfig()
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		logger, err := cfg.Build()
		if err != nil {
			return nil, fmt.Errorf("build dev logger: %w", err)
		}
		return logger, nil
	}
	cfg := zap.NewProductionConfig()
	cfg.DisableStacktrace = false
	cfg.EncoderConfig.TimeKey = "ts"
	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build prod logger: %w", err)
	}
	return logger, nil
}

// NewRunLogger builds a logger that tees every entry to a per-run log file
// under logsDir in addition to the console. The file is named after the run
// start timestamp so each invocation leaves an independent audit trail.
// It returns the logger, the log file path, and a close func for the file.
func NewRunLogger(development bool, logsDir string, runStart time.Time) (*zap.Logger, string, func() error, error) {
	console, err := New(development)
	if err != nil {
		return nil, "", nil, err
	}
	if logsDir == "" {
		return console, "", func() error { return nil }, nil
	}

	if err := os.MkdirAll(logsDir, 0o750); err != nil {
		return nil, "", nil, fmt.Errorf("create logs directory: %w", err)
	}
	name := runStart.Format("2006-01-02-15-04-05") + "-run.log"
	path := filepath.Join(logsDir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, "", nil, fmt.Errorf("open run log file: %w", err)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	fileCore := zapcore.NewCore(
		zapcore.NewJSONEncoder(encCfg),
		zapcore.AddSync(f),
		zapcore.InfoLevel,
	)
	logger := console.WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return zapcore.NewTee(core, fileCore)
	}))
	return logger, path, f.Close, nil
}
