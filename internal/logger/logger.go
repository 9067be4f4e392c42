// Package logger wraps log/slog behind a package-level instance shared by
// the daemon and its helpers, so call sites don't have to thread a logger
// through every constructor.
package logger

import (
	"io"
	"log/slog"
	"os"
)

var Log = slog.Default()

var levelByName = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// Init points the package logger at a text handler writing to stdout and,
// if logFile is non-empty, to that file as well (opened append-only,
// created if missing). An unrecognized level name falls back to debug so a
// mistyped level fails loud rather than going silent.
func Init(level string, logFile string) error {
	logLevel, ok := levelByName[level]
	if !ok {
		logLevel = slog.LevelDebug
	}

	sinks := []io.Writer{os.Stdout}
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return err
		}
		sinks = append(sinks, f)
	}

	handler := slog.NewTextHandler(io.MultiWriter(sinks...), &slog.HandlerOptions{
		Level:       logLevel,
		ReplaceAttr: shortenTimestamp,
	})

	Log = slog.New(handler)
	slog.SetDefault(Log)
	return nil
}

// shortenTimestamp drops the date from logged timestamps — the daemon's
// log file already rolls by nothing, so a bare wall-clock time reads
// better than a full RFC3339 stamp on every line.
func shortenTimestamp(groups []string, a slog.Attr) slog.Attr {
	if a.Key == slog.TimeKey {
		return slog.String("time", a.Value.Time().Format("15:04:05"))
	}
	return a
}

func Debug(msg string, args ...any) { Log.Debug(msg, args...) }
func Info(msg string, args ...any)  { Log.Info(msg, args...) }
func Warn(msg string, args ...any)  { Log.Warn(msg, args...) }
func Error(msg string, args ...any) { Log.Error(msg, args...) }
