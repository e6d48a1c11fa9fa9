package xlog

import (
	"context"
	"io"
	"log/slog"
	"os"
	"runtime"
)

var logger *slog.Logger

func init() {
	Init(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"), os.Stdout)
}

// Init replaces the process logger. level is one of debug, info, warn,
// error (default debug); format "json" selects the JSON handler, anything
// else the text handler.
func Init(level, format string, w io.Writer) {
	var opts = &slog.HandlerOptions{
		Level: parseLevel(level),
	}

	var handler slog.Handler

	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	logger = slog.New(handler)
}

func parseLevel(level string) slog.Level {
	switch level {
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelDebug
}

func _log(level slog.Level, msg string, args ...any) {
	_, f, l, _ := runtime.Caller(2)
	group := slog.Group(
		"source",
		slog.Attr{
			Key:   "file",
			Value: slog.AnyValue(f),
		},
		slog.Attr{
			Key:   "L",
			Value: slog.AnyValue(l),
		},
	)
	args = append(args, group)
	logger.Log(context.Background(), level, msg, args...)
}

func Info(msg string, args ...any) {
	_log(slog.LevelInfo, msg, args...)
}

func Debug(msg string, args ...any) {
	_log(slog.LevelDebug, msg, args...)
}

func Error(msg string, args ...any) {
	_log(slog.LevelError, msg, args...)
}

func Warn(msg string, args ...any) {
	_log(slog.LevelWarn, msg, args...)
}
