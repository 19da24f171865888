package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// Default provider names, applied when a providers entry is left empty.
const (
	DefaultLiveProvider   = "gemini-live"
	DefaultMediaProvider  = "gemini"
	DefaultInputProvider  = "microphone"
	DefaultOutputProvider = "speaker"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"live":   {"gemini-live"},
	"media":  {"gemini"},
	"input":  {"microphone"},
	"output": {"speaker"},
}

// KnownVoices lists the prebuilt voices of the live model.
var KnownVoices = []string{"Puck", "Charon", "Kore", "Fenrir", "Aoede"}

// apiKeyEnv lists the environment variables consulted, in order, when no API
// key is configured.
var apiKeyEnv = []string{"GEMINI_API_KEY", "API_KEY"}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and
// environment fallbacks, and validates the result. An empty document yields
// the default configuration.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyEnv(cfg, os.LookupEnv)
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv fills the API key from the environment when the file leaves it
// empty. lookup is usually [os.LookupEnv].
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) {
	if cfg.Gemini.APIKey != "" {
		return
	}
	for _, name := range apiKeyEnv {
		if v, ok := lookup(name); ok && v != "" {
			cfg.Gemini.APIKey = v
			return
		}
	}
}

// ApplyDefaults fills unset provider names and the listen address.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":8080"
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	setDefault(&cfg.Providers.Live.Name, DefaultLiveProvider)
	setDefault(&cfg.Providers.Media.Name, DefaultMediaProvider)
	setDefault(&cfg.Providers.Input.Name, DefaultInputProvider)
	setDefault(&cfg.Providers.Output.Name, DefaultOutputProvider)
}

func setDefault(field *string, v string) {
	if *field == "" {
		*field = v
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if lf := cfg.Server.LogFile; lf != nil && lf.Path == "" {
		errs = append(errs, errors.New("server.log_file.path is required when server.log_file is set"))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	validateProviderName("live", cfg.Providers.Live.Name)
	validateProviderName("media", cfg.Providers.Media.Name)
	validateProviderName("input", cfg.Providers.Input.Name)
	validateProviderName("output", cfg.Providers.Output.Name)
	for i, fb := range cfg.Providers.MediaFallbacks {
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("providers.media_fallbacks[%d].name is required", i))
			continue
		}
		validateProviderName("media", fb.Name)
	}

	if cfg.Gemini.APIKey == "" {
		slog.Warn("no Gemini API key configured; council and generation requests will be denied",
			"env", apiKeyEnv,
		)
	}

	// Council
	if cfg.Council.FrameSize < 0 {
		errs = append(errs, fmt.Errorf("council.frame_size %d must not be negative", cfg.Council.FrameSize))
	}
	if v := cfg.Council.Persona.Voice; v != "" && !slices.Contains(KnownVoices, v) {
		slog.Warn("council.persona.voice is not a known prebuilt voice", "voice", v, "known", KnownVoices)
	}

	// Studio
	if cfg.Studio.PollInterval < 0 {
		errs = append(errs, fmt.Errorf("studio.poll_interval %s must not be negative", cfg.Studio.PollInterval))
	}

	// Artifacts
	if cfg.Artifacts.MaxEntries < 0 {
		errs = append(errs, fmt.Errorf("artifacts.max_entries %d must not be negative", cfg.Artifacts.MaxEntries))
	}
	if cfg.Artifacts.MaxAge < 0 {
		errs = append(errs, fmt.Errorf("artifacts.max_age %s must not be negative", cfg.Artifacts.MaxAge))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name; may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
