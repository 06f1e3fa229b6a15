package logger

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// New builds the agent logger: console on stdout, plus a size-rotated
// file when one is configured.
func New(level, file string, rotateBytes, backups int) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	var w io.Writer = zerolog.ConsoleWriter{Out: os.Stdout}
	if file != "" {
		rotated := &lumberjack.Logger{
			Filename:   file,
			MaxSize:    maxMegabytes(rotateBytes),
			MaxBackups: backups,
		}
		w = io.MultiWriter(w, rotated)
	}
	return zerolog.New(w).With().Timestamp().Logger().Level(lvl)
}

func maxMegabytes(bytes int) int {
	mb := bytes / (1024 * 1024)
	if mb < 1 {
		mb = 1
	}
	return mb
}
