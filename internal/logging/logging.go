// Package logging builds the zap loggers used by the binaries.
package logging

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Rotation settings for the CLI log file.
const (
	MaxSizeMB  = 10
	MaxBackups = 3
	MaxAgeDays = 14
)

// Server returns a JSON logger on stderr, or a development logger when dev is set.
func Server(dev bool) (*zap.Logger, error) {
	if dev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// File returns a logger writing to a rotating file at path, so command output
// on stdout stays clean. debug lowers the level and switches to console encoding.
func File(path string, debug bool) (*zap.Logger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	return zap.New(newCore(zapcore.AddSync(newRotator(path)), debug), zap.AddCaller()), nil
}

func newRotator(path string) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    MaxSizeMB,
		MaxBackups: MaxBackups,
		MaxAge:     MaxAgeDays,
		Compress:   true,
	}
}

func newCore(w zapcore.WriteSyncer, debug bool) zapcore.Core {
	level := zapcore.InfoLevel
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	enc := zapcore.NewJSONEncoder(encCfg)
	if debug {
		level = zapcore.DebugLevel
		dev := zap.NewDevelopmentEncoderConfig()
		enc = zapcore.NewConsoleEncoder(dev)
	}
	return zapcore.NewCore(enc, w, level)
}

// To builds a file-style logger on an arbitrary sink.
func To(w zapcore.WriteSyncer, debug bool) *zap.Logger {
	return zap.New(newCore(w, debug))
}
