// Package config provides the configuration schema, loader, and file watcher
// for the voxalign sync server.
package config

import "log/slog"

// LogLevel controls log verbosity for the voxalign server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// SlogLevel maps l to the corresponding [slog.Level]. Unknown values map to
// [slog.LevelInfo].
func (l LogLevel) SlogLevel() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Config is the root configuration for the voxalign server.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Sync   SyncConfig   `yaml:"sync"`
}

// ServerConfig holds network and logging settings for the voxalign server.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// SyncConfig holds tunables for timing normalization and playback sync.
// All of these can be hot-reloaded; changes apply to sessions loaded after
// the reload.
type SyncConfig struct {
	// PauseThresholdMs is the minimum inter-word silence, in milliseconds,
	// that ends a sentence when no terminal punctuation is present.
	PauseThresholdMs int64 `yaml:"pause_threshold_ms"`

	// TerminalMarks is the set of characters treated as sentence-ending
	// punctuation.
	TerminalMarks string `yaml:"terminal_marks"`

	// Abbreviations lists lowercase tokens (without the trailing period)
	// whose periods never end a sentence, e.g. "dr" or "e.g". When empty,
	// a built-in English list is used.
	Abbreviations []string `yaml:"abbreviations"`

	// AlignmentSearchRadius is the maximum distance, in characters, that the
	// character alignment resolver scans around a reported span.
	AlignmentSearchRadius int `yaml:"alignment_search_radius"`
}

// ApplyDefaults fills zero-valued fields with production defaults.
func (c *Config) ApplyDefaults() {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = ":8080"
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = LogInfo
	}
	if c.Sync.PauseThresholdMs == 0 {
		c.Sync.PauseThresholdMs = 350
	}
	if c.Sync.TerminalMarks == "" {
		c.Sync.TerminalMarks = ".!?"
	}
	if c.Sync.AlignmentSearchRadius == 0 {
		c.Sync.AlignmentSearchRadius = 5
	}
}
