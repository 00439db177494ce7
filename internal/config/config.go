// Package config loads the pnnxgen YAML configuration.
package config

import (
	"errors"
	"log/slog"
)

// ErrInvalid is returned when a configuration file fails schema validation.
var ErrInvalid = errors.New("invalid configuration")

// Config holds everything the export command needs.
type Config struct {
	Model      string    `json:"model"                 yaml:"model"`
	Weights    string    `json:"weights,omitempty"     yaml:"weights,omitempty"`
	OutputDir  string    `json:"output_dir"            yaml:"output_dir"`
	Seed       int64     `json:"seed"                  yaml:"seed"`
	Verify     bool      `json:"verify"                yaml:"verify"`
	Tolerance  float64   `json:"tolerance"             yaml:"tolerance"`
	ScratchDir string    `json:"scratch_dir,omitempty" yaml:"scratch_dir,omitempty"`
	Workers    int       `json:"workers,omitempty"     yaml:"workers,omitempty"`
	Log        LogConfig `json:"log"                   yaml:"log"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `json:"level"          yaml:"level"`
	File  string `json:"file,omitempty" yaml:"file,omitempty"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Model:     "test_net",
		OutputDir: "out",
		Verify:    true,
		Tolerance: 1e-5,
		Log:       LogConfig{Level: "info"},
	}
}

// SlogLevel maps Level to a slog level. Unknown names mean info.
func (l LogConfig) SlogLevel() slog.Level {
	switch l.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
