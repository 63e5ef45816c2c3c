package main

import (
	"os"

	"github.com/natefinch/lumberjack"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wippyai/wasi-crypto/cryptoctx"
)

const (
	logMaxSizeMB  = 10
	logMaxBackups = 3
	logMaxAgeDays = 28
)

// newLogger builds the process logger. With a file path, output goes to a
// size-rotated file; otherwise to stderr.
func newLogger(g *globalFlags) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(g.logLevel)
	if err != nil {
		return nil, err
	}

	encCfg := zap.NewProductionEncoderConfig()
	if g.logDev {
		encCfg = zap.NewDevelopmentEncoderConfig()
	}
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var enc zapcore.Encoder
	if g.logDev {
		enc = zapcore.NewConsoleEncoder(encCfg)
	} else {
		enc = zapcore.NewJSONEncoder(encCfg)
	}

	var out zapcore.WriteSyncer
	if g.logFile != "" {
		out = zapcore.AddSync(&lumberjack.Logger{
			Filename:   g.logFile,
			MaxSize:    logMaxSizeMB,
			MaxBackups: logMaxBackups,
			MaxAge:     logMaxAgeDays,
			Compress:   true,
		})
	} else {
		out = zapcore.Lock(os.Stderr)
	}

	logger := zap.New(zapcore.NewCore(enc, out, level), zap.AddCaller())
	cryptoctx.SetLogger(logger.Named("cryptoctx"))
	return logger, nil
}
