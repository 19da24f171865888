package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/MrWong99/warroom/pkg/audio"
	"github.com/MrWong99/warroom/pkg/provider/live"
	"github.com/MrWong99/warroom/pkg/provider/media"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Factory builds a provider from its entry and the full config (for shared
// credentials).
type Factory[T any] func(cfg *Config, entry ProviderEntry) (T, error)

// Registry maps provider names to their constructor functions for each
// provider type. It is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	live   map[string]Factory[live.Transport]
	media  map[string]Factory[media.Generator]
	input  map[string]Factory[audio.InputDevice]
	output map[string]Factory[audio.OutputDevice]
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		live:   make(map[string]Factory[live.Transport]),
		media:  make(map[string]Factory[media.Generator]),
		input:  make(map[string]Factory[audio.InputDevice]),
		output: make(map[string]Factory[audio.OutputDevice]),
	}
}

// RegisterLive registers a live transport factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterLive(name string, f Factory[live.Transport]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.live[name] = f
}

// RegisterMedia registers a media generator factory under name.
func (r *Registry) RegisterMedia(name string, f Factory[media.Generator]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.media[name] = f
}

// RegisterInput registers an input device factory under name.
func (r *Registry) RegisterInput(name string, f Factory[audio.InputDevice]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.input[name] = f
}

// RegisterOutput registers an output device factory under name.
func (r *Registry) RegisterOutput(name string, f Factory[audio.OutputDevice]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.output[name] = f
}

// CreateLive instantiates the live transport named by cfg.Providers.Live.
// Returns [ErrProviderNotRegistered] if no factory has been registered for that name.
func (r *Registry) CreateLive(cfg *Config) (live.Transport, error) {
	r.mu.RLock()
	f, ok := r.live[cfg.Providers.Live.Name]
	r.mu.RUnlock()
	return create(f, ok, "live", cfg, cfg.Providers.Live)
}

// CreateMedia instantiates the media generator named by cfg.Providers.Media.
func (r *Registry) CreateMedia(cfg *Config) (media.Generator, error) {
	r.mu.RLock()
	f, ok := r.media[cfg.Providers.Media.Name]
	r.mu.RUnlock()
	return create(f, ok, "media", cfg, cfg.Providers.Media)
}

// CreateMediaFallbacks instantiates every entry of cfg.Providers.MediaFallbacks
// in order.
func (r *Registry) CreateMediaFallbacks(cfg *Config) ([]media.Generator, error) {
	out := make([]media.Generator, 0, len(cfg.Providers.MediaFallbacks))
	for _, entry := range cfg.Providers.MediaFallbacks {
		r.mu.RLock()
		f, ok := r.media[entry.Name]
		r.mu.RUnlock()
		g, err := create(f, ok, "media", cfg, entry)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, nil
}

// CreateInput instantiates the input device named by cfg.Providers.Input.
func (r *Registry) CreateInput(cfg *Config) (audio.InputDevice, error) {
	r.mu.RLock()
	f, ok := r.input[cfg.Providers.Input.Name]
	r.mu.RUnlock()
	return create(f, ok, "input", cfg, cfg.Providers.Input)
}

// CreateOutput instantiates the output device named by cfg.Providers.Output.
func (r *Registry) CreateOutput(cfg *Config) (audio.OutputDevice, error) {
	r.mu.RLock()
	f, ok := r.output[cfg.Providers.Output.Name]
	r.mu.RUnlock()
	return create(f, ok, "output", cfg, cfg.Providers.Output)
}

func create[T any](f Factory[T], ok bool, kind string, cfg *Config, entry ProviderEntry) (T, error) {
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s/%q", ErrProviderNotRegistered, kind, entry.Name)
	}
	return f(cfg, entry)
}
