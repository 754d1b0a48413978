// Package logger provides the structured logger shared by httpsession
// packages.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

var (
	once   sync.Once
	logger *zerolog.Logger
)

// Get returns the singleton logger instance, initializing it on first call.
func Get() *zerolog.Logger {
	once.Do(func() {
		logger = newLogger()
	})
	return logger
}

// New builds a logger writing JSON to w at the given level. An unknown
// level falls back to info.
func New(w io.Writer, level string) zerolog.Logger {
	return zerolog.New(w).Level(ParseLevel(level)).With().Timestamp().Logger()
}

// ParseLevel maps a level name to a zerolog level, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	if level == "" {
		return zerolog.InfoLevel
	}
	parsed, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || parsed == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return parsed
}

// newLogger creates a logger based on the ENV and LOG_LEVEL environment variables
func newLogger() *zerolog.Logger {
	levelStr := os.Getenv("LOG_LEVEL")
	level := ParseLevel(levelStr)
	if levelStr != "" && level == zerolog.InfoLevel && !strings.EqualFold(levelStr, "info") {
		fmt.Fprintf(os.Stderr, "Invalid LOG_LEVEL %q; defaulting to 'info'\n", levelStr)
	}

	env := os.Getenv("ENV")
	if env == "development" || env == "dev" || env == "" {
		output := zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: "2006-01-02 15:04:05",
		}
		zl := zerolog.New(output).Level(level).With().Timestamp().Logger()
		return &zl
	}

	zl := zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()
	return &zl
}
