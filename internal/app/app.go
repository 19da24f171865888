// Package app wires the war room subsystems into a running application.
//
// The App struct owns the full lifecycle: New builds the council session,
// the generation studio and the HTTP API from the configured providers, Run
// serves until the context is cancelled, and Shutdown tears everything down
// in order.
//
// For testing, inject a listener and provider mocks; New never touches real
// devices or networks on its own.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/warroom/internal/artifact"
	"github.com/MrWong99/warroom/internal/config"
	"github.com/MrWong99/warroom/internal/council"
	"github.com/MrWong99/warroom/internal/health"
	"github.com/MrWong99/warroom/internal/observe"
	"github.com/MrWong99/warroom/internal/resilience"
	"github.com/MrWong99/warroom/internal/studio"
	"github.com/MrWong99/warroom/internal/web"
	"github.com/MrWong99/warroom/pkg/audio"
	"github.com/MrWong99/warroom/pkg/provider/live"
	"github.com/MrWong99/warroom/pkg/provider/media"
)

const (
	defaultArtifactEntries = 32
	defaultArtifactAge     = time.Hour

	readHeaderTimeout = 10 * time.Second
	serverStopTimeout = 10 * time.Second
)

// Providers holds one interface value per collaborator. Populated by main.go
// via the config registry. All fields are required.
type Providers struct {
	Live   live.Transport
	Media  media.Generator
	Input  audio.InputDevice
	Output audio.OutputDevice

	// MediaFallbacks are optional backups for Media, tried in order.
	MediaFallbacks []media.Generator
}

func (p *Providers) validate() error {
	if p == nil {
		return errors.New("providers are required")
	}
	var errs []error
	if p.Live == nil {
		errs = append(errs, errors.New("live transport is not configured"))
	}
	if p.Media == nil {
		errs = append(errs, errors.New("media generator is not configured"))
	}
	if p.Input == nil {
		errs = append(errs, errors.New("input device is not configured"))
	}
	if p.Output == nil {
		errs = append(errs, errors.New("output device is not configured"))
	}
	return errors.Join(errs...)
}

// App owns all subsystem lifetimes.
type App struct {
	mu  sync.RWMutex
	cfg *config.Config

	providers *Providers
	metrics   *observe.Metrics
	logLevel  *slog.LevelVar
	watcher   *config.Watcher
	listener  net.Listener

	council   *council.Session
	studio    *studio.Studio
	media     *resilience.MediaFallback
	artifacts *artifact.Store
	tracker   *sessionTracker
	server    *http.Server

	// closers are called in order during Shutdown.
	closers []func() error

	stopOnce sync.Once
}

// Option is a functional option for New.
type Option func(*App)

// WithWatcher runs w alongside the HTTP server so configuration edits are
// applied while running. Pass [App.ApplyConfig] as its change callback.
func WithWatcher(w *config.Watcher) Option {
	return func(a *App) { a.watcher = w }
}

// WithLogLevel lets hot reloads adjust the level of the process logger.
func WithLogLevel(lv *slog.LevelVar) Option {
	return func(a *App) { a.logLevel = lv }
}

// WithMetrics sets the metrics recorder. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithListener serves on ln instead of listening on server.listen_addr.
func WithListener(ln net.Listener) Option {
	return func(a *App) { a.listener = ln }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry).
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if err := providers.validate(); err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Artifact store ────────────────────────────────────────────────
	entries, age := cfg.Artifacts.MaxEntries, cfg.Artifacts.MaxAge
	if entries == 0 {
		entries = defaultArtifactEntries
	}
	if age == 0 {
		age = defaultArtifactAge
	}
	a.artifacts = artifact.NewStore(entries, age, a.metrics)

	// ── 2. Studio ────────────────────────────────────────────────────────
	mf, err := newMediaFallback(cfg, providers)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	a.media = mf
	gate := studio.KeyGate{Key: a.apiKey}
	studioOpts := []studio.Option{
		studio.WithModels(studioModels(cfg.Studio.Models)),
		studio.WithArtifacts(a.artifacts),
		studio.WithMetrics(a.metrics),
	}
	if cfg.Studio.PollInterval > 0 {
		studioOpts = append(studioOpts, studio.WithPollInterval(cfg.Studio.PollInterval))
	}
	a.studio = studio.New(a.media, gate, studioOpts...)

	// ── 3. Council ───────────────────────────────────────────────────────
	councilOpts := []council.Option{
		council.WithPersona(councilPersona(cfg.Council.Persona)),
		council.WithStopOnInterrupt(cfg.Council.StopOnInterruptOrDefault()),
		council.WithMetrics(a.metrics),
		council.WithLogger(slog.Default().With("component", "council")),
		council.WithNotifier(council.NotifierFunc(func(n council.Notice) {
			slog.Warn("council notice", "kind", n.Kind, "message", n.Message, "err", n.Err)
		})),
	}
	if cfg.Council.FrameSize > 0 {
		councilOpts = append(councilOpts, council.WithFrameSize(cfg.Council.FrameSize))
	}
	a.council = council.New(providers.Live, providers.Input, providers.Output, councilOpts...)
	a.closers = append(a.closers, a.council.Close)

	a.tracker = newSessionTracker(a.council)

	// ── 4. HTTP API ──────────────────────────────────────────────────────
	checks := health.New(
		health.APIKey(a.apiKey),
		health.Checker{Name: "media", Check: a.media.Check},
		health.Checker{Name: "config", Check: func(context.Context) error {
			return config.Validate(a.Config())
		}},
	)
	api := web.New(web.Config{
		Studio:       a.studio,
		Artifacts:    a.artifacts,
		Council:      a.council,
		Gate:         gate,
		Health:       checks,
		Metrics:      a.metrics,
		ServeMetrics: true,
		Logger:       slog.Default().With("component", "web"),
	})
	a.server = &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	return a, nil
}

// Config returns the configuration currently in effect.
func (a *App) Config() *config.Config {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cfg
}

func (a *App) apiKey() string {
	return a.Config().Gemini.APIKey
}

// Council returns the live council session.
func (a *App) Council() *council.Session { return a.council }

// Studio returns the generation studio.
func (a *App) Studio() *studio.Studio { return a.studio }

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves the HTTP API, follows council sessions and, when configured,
// watches the config file. It blocks until ctx is cancelled or the server
// fails.
func (a *App) Run(ctx context.Context) error {
	ln := a.listener
	if ln == nil {
		var err error
		ln, err = net.Listen("tcp", a.server.Addr)
		if err != nil {
			return fmt.Errorf("app: listen %q: %w", a.server.Addr, err)
		}
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("http server listening", "addr", ln.Addr().String())
		var err error
		if tls := a.Config().Server.TLS; tls != nil {
			err = a.server.ServeTLS(ln, tls.CertFile, tls.KeyFile)
		} else {
			err = a.server.Serve(ln)
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: serve: %w", err)
	})

	g.Go(func() error {
		<-ctx.Done()
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), serverStopTimeout)
		defer cancel()
		if err := a.server.Shutdown(stopCtx); err != nil {
			slog.Warn("http server shutdown error", "err", err)
		}
		return nil
	})

	g.Go(func() error {
		a.tracker.run(ctx)
		return nil
	})

	if a.watcher != nil {
		g.Go(func() error { return a.watcher.Run(ctx) })
	}

	return g.Wait()
}

// ─── Hot reload ──────────────────────────────────────────────────────────────

// ApplyConfig applies the hot-reloadable differences between old and new:
// the log level, the council persona and the studio models. Settings that
// need a restart are logged and otherwise ignored.
func (a *App) ApplyConfig(old, new *config.Config) {
	d := config.Diff(old, new)

	a.mu.Lock()
	a.cfg = new
	a.mu.Unlock()

	if d.LogLevelChanged && a.logLevel != nil {
		a.logLevel.Set(SlogLevel(d.NewLogLevel))
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.PersonaChanged {
		p := councilPersona(new.Council.Persona)
		a.council.SetPersona(p)
		slog.Info("council persona updated; applies from the next connect", "model", p.Model, "voice", p.Voice)
	}
	if len(d.ModelsChanged) > 0 {
		a.studio.SetModels(studioModels(new.Studio.Models))
		slog.Info("studio models updated", "changed", d.ModelsChanged)
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("configuration changes require a restart", "settings", d.RestartRequired)
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in order. The council is disposed first
// and its pending transport closes are awaited within ctx.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		if err := a.council.Wait(ctx); err != nil {
			slog.Warn("council transport close still pending", "err", err)
			shutdownErr = err
			return
		}
		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// SlogLevel converts a config log level to its slog equivalent.
func SlogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// newMediaFallback puts the configured media generator and its backups
// behind per-backend circuit breakers. Entries are named after their
// provider config where it lines up with the injected generators.
func newMediaFallback(cfg *config.Config, p *Providers) (*resilience.MediaFallback, error) {
	name := cfg.Providers.Media.Name
	if name == "" {
		name = "media"
	}
	fallbacks := make([]resilience.MediaEntry, 0, len(p.MediaFallbacks))
	for i, g := range p.MediaFallbacks {
		fbName := fmt.Sprintf("fallback-%d", i+1)
		if i < len(cfg.Providers.MediaFallbacks) && cfg.Providers.MediaFallbacks[i].Name != "" {
			fbName = fmt.Sprintf("%s-%d", cfg.Providers.MediaFallbacks[i].Name, i+1)
		}
		fallbacks = append(fallbacks, resilience.MediaEntry{Name: fbName, Generator: g})
	}
	return resilience.NewMediaFallback(
		resilience.MediaEntry{Name: name, Generator: p.Media},
		fallbacks,
		resilience.FallbackConfig{},
	)
}

func councilPersona(p config.PersonaConfig) council.Persona {
	return council.Persona{
		Model:        p.Model,
		Voice:        p.Voice,
		Instructions: p.Instructions,
	}.WithDefaults()
}

func studioModels(m config.ModelsConfig) studio.Models {
	return studio.Models{
		Strategy: m.Strategy,
		Creative: m.Creative,
		Editor:   m.Editor,
		Video:    m.Video,
		Forge:    m.Forge,
	}
}
