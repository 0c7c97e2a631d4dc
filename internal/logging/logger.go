package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/exp/zapslog"
	"go.uber.org/zap/zapcore"
)

// Logg is the process wide logger. It starts as a text logger on stderr so
// packages can log before main replaces it.
var Logg = slog.New(NewColorHandler(os.Stderr, nil))

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func zapLevel(level slog.Level) zapcore.Level {
	switch {
	case level >= slog.LevelError:
		return zapcore.ErrorLevel
	case level >= slog.LevelWarn:
		return zapcore.WarnLevel
	case level >= slog.LevelInfo:
		return zapcore.InfoLevel
	default:
		return zapcore.DebugLevel
	}
}

// NewLogger builds a slog logger. "json" goes through a zap production core,
// anything else is colored text.
func NewLogger(level, format string, out io.Writer) *slog.Logger {
	lvl := parseLevel(level)

	if strings.ToLower(format) != "json" {
		return slog.New(NewColorHandler(out, &slog.HandlerOptions{Level: lvl}))
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encCfg),
		zapcore.AddSync(out),
		zap.NewAtomicLevelAt(zapLevel(lvl)),
	)
	return slog.New(zapslog.NewHandler(core, nil))
}
