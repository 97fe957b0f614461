package log

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// NewConsoleWriter returns a human-friendly writer for interactive use.
func NewConsoleWriter(out io.Writer, noColor bool) io.Writer {
	if out == nil {
		out = os.Stderr
	}

	return zerolog.ConsoleWriter{
		Out:        out,
		NoColor:    noColor,
		TimeFormat: time.Kitchen,
	}
}

// FileConfig controls the rotating log file sink.
type FileConfig struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// NewFileWriter returns a size-rotated JSON log file at cfg.Path.
func NewFileWriter(cfg FileConfig) io.WriteCloser {
	if cfg.MaxSizeMB <= 0 {
		cfg.MaxSizeMB = 64
	}

	return &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}
}
