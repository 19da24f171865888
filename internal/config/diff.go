package config

import "slices"

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// PersonaChanged is true if the council model, voice or instructions
	// changed. The new persona applies from the next council connect.
	PersonaChanged bool

	// ModelsChanged lists the studio model fields that changed, by YAML key.
	ModelsChanged []string

	// RestartRequired lists settings that changed but only take effect after
	// a restart.
	RestartRequired []string
}

// Changed reports whether any hot-reloadable setting changed.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.PersonaChanged || len(d.ModelsChanged) > 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Council.Persona != new.Council.Persona {
		d.PersonaChanged = true
	}

	om, nm := old.Studio.Models, new.Studio.Models
	for _, f := range []struct {
		key      string
		old, new string
	}{
		{"strategy", om.Strategy, nm.Strategy},
		{"creative", om.Creative, nm.Creative},
		{"editor", om.Editor, nm.Editor},
		{"video", om.Video, nm.Video},
		{"forge", om.Forge, nm.Forge},
	} {
		if f.old != f.new {
			d.ModelsChanged = append(d.ModelsChanged, f.key)
		}
	}

	if old.Server.ListenAddr != new.Server.ListenAddr {
		d.RestartRequired = append(d.RestartRequired, "server.listen_addr")
	}
	if old.Gemini.APIKey != new.Gemini.APIKey {
		d.RestartRequired = append(d.RestartRequired, "gemini.api_key")
	}
	if old.Providers.Live.Name != new.Providers.Live.Name ||
		old.Providers.Media.Name != new.Providers.Media.Name ||
		old.Providers.Input.Name != new.Providers.Input.Name ||
		old.Providers.Output.Name != new.Providers.Output.Name ||
		!slices.EqualFunc(old.Providers.MediaFallbacks, new.Providers.MediaFallbacks, func(a, b ProviderEntry) bool {
			return a.Name == b.Name
		}) {
		d.RestartRequired = append(d.RestartRequired, "providers")
	}

	return d
}
