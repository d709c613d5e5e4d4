// Package debug builds the console logger the minipy command attaches to
// its context.
package debug

import (
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
)

// NewConsoleLogger returns a logger writing human-readable lines to out.
// Verbose mode lowers the level to debug and annotates every line with the
// emitting call site so pipeline stages can be traced.
func NewConsoleLogger(out io.Writer, verbose bool) zerolog.Logger {
	writer := zerolog.ConsoleWriter{
		Out:          out,
		TimeFormat:   "15:04:05.000",
		FormatCaller: formatCaller,
	}
	logger := zerolog.New(writer).With().Timestamp().Logger()
	if verbose {
		return logger.Level(zerolog.DebugLevel).With().Caller().Logger()
	}
	return logger.Level(zerolog.InfoLevel)
}

// formatCaller shortens file paths to their base name. The full path just
// pushes the message off the right edge of the terminal.
func formatCaller(i interface{}) string {
	caller, ok := i.(string)
	if !ok || caller == "" {
		return ""
	}
	file, line, found := strings.Cut(caller, ":")
	if idx := strings.LastIndexByte(file, '/'); idx >= 0 {
		file = file[idx+1:]
	}
	if !found {
		return color.New(color.Bold).Sprint(file)
	}
	return color.New(color.Bold).Sprint(file) + ":" + line
}
