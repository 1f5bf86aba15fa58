package config

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// NewLogger creates a new logger based on configuration.
//
// Records are written to three sinks: logs/info/info.log (everything at or
// above the configured level), logs/error/error.log (errors only) and the
// console. Both files rotate by size. An empty Dir disables the file sinks.
func NewLogger(cfg LoggingConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	consoleEncCfg := zap.NewDevelopmentEncoderConfig()
	consoleEncCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	consoleEnc := zapcore.NewConsoleEncoder(consoleEncCfg)
	if cfg.Format == "json" {
		consoleEnc = zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	}

	cores := []zapcore.Core{
		zapcore.NewCore(consoleEnc, zapcore.Lock(os.Stderr), level),
	}

	if cfg.Dir != "" {
		fileEncCfg := zap.NewProductionEncoderConfig()
		fileEncCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		fileEnc := zapcore.NewConsoleEncoder(fileEncCfg)
		if cfg.Format == "json" {
			fileEnc = zapcore.NewJSONEncoder(fileEncCfg)
		}

		infoSink, err := rotatingSink(filepath.Join(cfg.Dir, "info", "info.log"), cfg)
		if err != nil {
			return nil, err
		}
		errorSink, err := rotatingSink(filepath.Join(cfg.Dir, "error", "error.log"), cfg)
		if err != nil {
			return nil, err
		}

		cores = append(cores,
			zapcore.NewCore(fileEnc, infoSink, level),
			zapcore.NewCore(fileEnc, errorSink, zapcore.ErrorLevel),
		)
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)), nil
}

func rotatingSink(path string, cfg LoggingConfig) (zapcore.WriteSyncer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log dir: %w", err)
	}
	return zapcore.AddSync(&lumberjack.Logger{
		Filename:   path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
	}), nil
}
