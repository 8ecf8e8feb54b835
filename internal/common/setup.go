// Package common holds the shared CLI wiring: logger construction and
// config/data-dir setup used by every command action.
package common

import (
	"log/slog"
	"os"

	"github.com/workshopdl/workshopdl/models"
)

// NewLogger builds the application logger. Quiet mode only surfaces errors;
// the human-readable batch report goes to stdout separately and is not
// affected.
func NewLogger(quiet bool) *slog.Logger {
	level := slog.LevelInfo
	if quiet {
		level = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// Setup resolves the data directory and loads the persisted config.
func Setup() (string, *models.Config, error) {
	dataDir, err := models.DataDir()
	if err != nil {
		return "", nil, err
	}
	cfg, err := models.LoadConfig(dataDir)
	if err != nil {
		return "", nil, err
	}
	return dataDir, cfg, nil
}
