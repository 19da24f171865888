// Package config provides the configuration schema, loader, hot-reload watcher
// and provider registry for the War Room server.
package config

import "time"

// LogLevel controls log verbosity for the War Room server.
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

// Config is the root configuration structure for War Room.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Gemini    GeminiConfig    `yaml:"gemini"`
	Providers ProvidersConfig `yaml:"providers"`
	Council   CouncilConfig   `yaml:"council"`
	Studio    StudioConfig    `yaml:"studio"`
	Artifacts ArtifactsConfig `yaml:"artifacts"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the HTTP API listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// LogFile, when set, additionally writes logs to a rotating file.
	LogFile *LogFileConfig `yaml:"log_file"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// LogFileConfig configures the rotating log file.
type LogFileConfig struct {
	Path       string `yaml:"path"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// GeminiConfig holds the credentials shared by every Gemini-backed provider.
type GeminiConfig struct {
	// APIKey authenticates all Gemini calls. When empty it is taken from the
	// GEMINI_API_KEY or API_KEY environment variables.
	APIKey string `yaml:"api_key"`
}

// ProvidersConfig selects the implementation for each external collaborator.
// Each field names a provider registered in the [Registry].
type ProvidersConfig struct {
	Live   ProviderEntry `yaml:"live"`
	Media  ProviderEntry `yaml:"media"`
	Input  ProviderEntry `yaml:"input"`
	Output ProviderEntry `yaml:"output"`

	// MediaFallbacks are tried in order when the media provider fails or
	// its circuit breaker is open.
	MediaFallbacks []ProviderEntry `yaml:"media_fallbacks"`
}

// ProviderEntry is the common configuration block shared by all provider types.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "gemini-live").
	Name string `yaml:"name"`

	// APIKey overrides gemini.api_key for this provider.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	BaseURL string `yaml:"base_url"`

	// Options holds provider-specific values not covered by the standard
	// fields above.
	Options map[string]any `yaml:"options"`
}

// CouncilConfig configures the Live Council session.
type CouncilConfig struct {
	Persona PersonaConfig `yaml:"persona"`

	// FrameSize is the number of microphone samples per outbound frame.
	FrameSize int `yaml:"frame_size"`

	// StopOnInterrupt drops queued model audio when the model reports the
	// user talked over it. Defaults to true.
	StopOnInterrupt *bool `yaml:"stop_on_interrupt"`
}

// PersonaConfig is the model side of the council. Hot-reloadable.
type PersonaConfig struct {
	Model        string `yaml:"model"`
	Voice        string `yaml:"voice"`
	Instructions string `yaml:"instructions"`
}

// StudioConfig configures the generation workflows.
type StudioConfig struct {
	Models ModelsConfig `yaml:"models"`

	// PollInterval is how often a running video generation is polled.
	PollInterval time.Duration `yaml:"poll_interval"`
}

// ModelsConfig names the model for each workflow step. Hot-reloadable.
// Empty fields use the built-in defaults.
type ModelsConfig struct {
	Strategy string `yaml:"strategy"`
	Creative string `yaml:"creative"`
	Editor   string `yaml:"editor"`
	Video    string `yaml:"video"`
	Forge    string `yaml:"forge"`
}

// ArtifactsConfig bounds the in-memory artifact store.
type ArtifactsConfig struct {
	MaxEntries int           `yaml:"max_entries"`
	MaxAge     time.Duration `yaml:"max_age"`
}

// StopOnInterruptOrDefault returns c.StopOnInterrupt, defaulting to true.
func (c CouncilConfig) StopOnInterruptOrDefault() bool {
	if c.StopOnInterrupt == nil {
		return true
	}
	return *c.StopOnInterrupt
}

// KeyFor returns the API key for entry, falling back to the shared Gemini key.
func (c *Config) KeyFor(entry ProviderEntry) string {
	if entry.APIKey != "" {
		return entry.APIKey
	}
	return c.Gemini.APIKey
}
