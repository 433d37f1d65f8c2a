package util

import (
	"log/slog"
	"os"
)

var logger *slog.Logger

// InitLogger initializes the global slog logger with appropriate level
func InitLogger(verbose bool) {
	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo, // Default level
	}

	if verbose {
		opts.Level = slog.LevelDebug
	}

	handler := slog.NewTextHandler(os.Stderr, opts)
	logger = slog.New(handler)
	slog.SetDefault(logger)
}

// GetLogger returns the configured logger instance
func GetLogger() *slog.Logger {
	if logger == nil {
		// Fallback initialization with INFO level
		InitLogger(IsVerbose())
	}
	return logger
}

// IsVerbose checks if verbose mode is enabled via command line or environment
func IsVerbose() bool {
	if os.Getenv("REELCAP_VERBOSE") == "true" {
		return true
	}
	for _, arg := range os.Args {
		if arg == "--verbose" {
			return true
		}
	}
	return false
}
