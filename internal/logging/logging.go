// Package logging configures the process-wide slog logger.
package logging

import (
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options for Setup.
type Options struct {
	// Verbose lowers the level to Debug.
	Verbose bool

	// Quiet raises the level to Error.
	Quiet bool

	// File, when set, mirrors log records to a rotating file.
	File       string
	MaxSizeMB  int
	MaxBackups int
}

// Setup installs the default logger: a text handler on stderr, with
// an optional rotating file sink.
func Setup(opts Options) {
	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	if opts.Quiet {
		level = slog.LevelError
	}

	var w io.Writer = os.Stderr
	if opts.File != "" {
		rotating := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    max(opts.MaxSizeMB, 1),
			MaxBackups: opts.MaxBackups,
		}
		w = io.MultiWriter(os.Stderr, rotating)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
}
