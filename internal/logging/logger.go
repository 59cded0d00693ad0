// Package logging builds the structured application logger. Lines go to
// .ragareview/logs/raga-review.log so the terminal stays free for the TUI.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// FileName is the log file created inside the logs directory.
const FileName = "raga-review.log"

// New creates a JSON logger appending to logsDir/raga-review.log at level.
// Unknown levels fall back to info.
func New(logsDir, level string) (*zap.Logger, error) {
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		return nil, fmt.Errorf("logging: ensure log dir: %w", err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(ParseLevel(level))
	cfg.OutputPaths = []string{filepath.Join(logsDir, FileName)}
	cfg.ErrorOutputPaths = []string{filepath.Join(logsDir, FileName)}
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.Sampling = nil
	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("logging: build logger: %w", err)
	}
	return logger.Named("raga-review"), nil
}

// NewConsole creates a human-readable logger on stderr, used in headless mode.
func NewConsole(level string) (*zap.Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(ParseLevel(level))
	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("logging: build console logger: %w", err)
	}
	return logger.Named("raga-review"), nil
}

// ParseLevel maps a config string onto a zap level.
func ParseLevel(level string) zapcore.Level {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(level)))); err != nil {
		return zapcore.InfoLevel
	}
	return lvl
}
