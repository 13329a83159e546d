package regrader

import (
	"io"
	"log/slog"
	"os"
	"path"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	slogmulti "github.com/samber/slog-multi"
	"gopkg.in/natefinch/lumberjack.v2"
)

func logColors(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}

	if os.Getenv("NO_COLOR") != "" {
		return false
	}

	if !isatty.IsTerminal(f.Fd()) {
		return false
	}

	return os.Getenv("TERM") != "dumb"
}

func GetSlogHandler(debug bool, out io.Writer) slog.Handler {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}

	return tint.NewHandler(out, &tint.Options{
		AddSource: true,
		Level:     level,
		ReplaceAttr: func(groups []string, attr slog.Attr) slog.Attr {
			if _, ok := attr.Value.Any().(error); attr.Key == "err" || ok {
				return tint.Attr(9, attr)
			}
			return attr
		},
		TimeFormat: time.RFC3339,
		NoColor:    !logColors(out),
	})
}

// NewGraderLogger returns a logger that writes both to the console handler and to
// a rotated grader.log inside logDir. The returned closer releases the log file.
func NewGraderLogger(debug bool, logDir string, console io.Writer) (*slog.Logger, io.Closer) {
	file := &lumberjack.Logger{
		Filename:   path.Join(logDir, "grader.log"),
		MaxSize:    50, // megabytes
		MaxBackups: 5,
		Compress:   true,
	}
	handler := slogmulti.Fanout(
		GetSlogHandler(debug, console),
		GetSlogHandler(debug, file),
	)
	return slog.New(handler).With(slog.String("component", "grader")), file
}
