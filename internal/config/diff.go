package config

// Diff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked; provider
// credential or endpoint changes require a restart and are reported so the
// operator can be warned.
type Diff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// PollingChanged is true if interval, max_attempts, or max_sessions
	// changed. Applies to jobs launched after the reload; in-flight polls
	// keep their original settings.
	PollingChanged bool
	NewPolling     PollingConfig

	// ProvidersChanged lists provider blocks whose key, URL, or model
	// changed ("runway", "luma", "enhancer"). These are not hot-applied.
	ProvidersChanged []string
}

// Empty reports whether the diff contains no changes.
func (d Diff) Empty() bool {
	return !d.LogLevelChanged && !d.PollingChanged && len(d.ProvidersChanged) == 0
}

// ComputeDiff compares old and new configs and returns what changed.
func ComputeDiff(old, new *Config) Diff {
	d := Diff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Polling != new.Polling {
		d.PollingChanged = true
		d.NewPolling = new.Polling
	}

	if !entryEqual(old.Providers.Runway, new.Providers.Runway) {
		d.ProvidersChanged = append(d.ProvidersChanged, "runway")
	}
	if !entryEqual(old.Providers.Luma, new.Providers.Luma) {
		d.ProvidersChanged = append(d.ProvidersChanged, "luma")
	}
	if !entryEqual(old.Providers.Enhancer, new.Providers.Enhancer) {
		d.ProvidersChanged = append(d.ProvidersChanged, "enhancer")
	}

	return d
}

// entryEqual compares the standard fields of two provider entries.
// The free-form Options map is ignored; option changes alone do not
// trigger a provider-changed warning.
func entryEqual(a, b ProviderEntry) bool {
	return a.Name == b.Name && a.APIKey == b.APIKey && a.BaseURL == b.BaseURL && a.Model == b.Model
}
