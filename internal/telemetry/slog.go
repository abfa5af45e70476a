package telemetry

import (
	"log/slog"
	"os"
	"strings"
)

// logLevel is the live level gate shared by the installed handler. Keeping it
// in a LevelVar lets the config hot-reload watcher change verbosity at
// runtime without rebuilding the logger.
var logLevel = new(slog.LevelVar)

// SetupLogger configures the global slog default logger based on the supplied format and level
// strings read from application configuration.
//
// format: "json"  → JSONHandler (machine readable; recommended for production)
//
//	anything else → TextHandler (human readable; suitable for local development)
//
// level: "debug", "info", "warn", "error" (case-insensitive); defaults to "info".
//
// The configured logger is installed as the default so all slog.Info/Warn/Error calls elsewhere
// in the application automatically use it without needing to carry a *slog.Logger in context.
func SetupLogger(format, level string) {
	logLevel.Set(parseLevel(level))

	opts := &slog.HandlerOptions{
		Level:     logLevel,
		AddSource: logLevel.Level() == slog.LevelDebug, // include file:line only when debugging
	}

	var handler slog.Handler
	if strings.ToLower(format) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialised", "format", format, "level", logLevel.Level().String())
}

// SetLevel changes the active log level at runtime. Called by the config
// watcher when the logging section of the config file changes.
func SetLevel(level string) {
	parsed := parseLevel(level)
	if parsed == logLevel.Level() {
		return
	}
	logLevel.Set(parsed)
	slog.Info("log level changed", "level", parsed.String())
}

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
