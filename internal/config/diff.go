package config

import "slices"

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked; listen_addr
// changes require a restart and are deliberately absent.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// SyncChanged is true when any sentence inference or alignment tunable
	// changed. New values apply to content loaded after the reload; already
	// loaded sessions keep their indices.
	SyncChanged bool
	NewSync     SyncConfig
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if !syncEqual(old.Sync, new.Sync) {
		d.SyncChanged = true
		d.NewSync = new.Sync
	}

	return d
}

func syncEqual(a, b SyncConfig) bool {
	return a.PauseThresholdMs == b.PauseThresholdMs &&
		a.TerminalMarks == b.TerminalMarks &&
		a.AlignmentSearchRadius == b.AlignmentSearchRadius &&
		slices.Equal(a.Abbreviations, b.Abbreviations)
}
