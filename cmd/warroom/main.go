// Command warroom is the main entry point for the War Room server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/MrWong99/warroom/internal/app"
	"github.com/MrWong99/warroom/internal/config"
	"github.com/MrWong99/warroom/internal/observe"
	"github.com/MrWong99/warroom/pkg/audio"
	"github.com/MrWong99/warroom/pkg/audio/capture/microphone"
	"github.com/MrWong99/warroom/pkg/audio/speaker"
	"github.com/MrWong99/warroom/pkg/provider/live"
	livegemini "github.com/MrWong99/warroom/pkg/provider/live/gemini"
	"github.com/MrWong99/warroom/pkg/provider/media"
	mediagemini "github.com/MrWong99/warroom/pkg/provider/media/gemini"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	// The watcher performs the initial load; polling starts with app.Run.
	var application *app.App
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		application.ApplyConfig(old, new)
	})
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "warroom: config file %q not found; copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "warroom: %v\n", err)
		}
		return 1
	}
	cfg := watcher.Current()

	// ── Logger ────────────────────────────────────────────────────────────────
	var level slog.LevelVar
	level.Set(app.SlogLevel(cfg.Server.LogLevel))
	logger, closeLog := newLogger(&level, cfg.Server.LogFile)
	defer closeLog()
	slog.SetDefault(logger)

	slog.Info("warroom starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	telemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := telemetry.Shutdown(flushCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(ctx, reg)

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg)

	application, err = app.New(ctx, cfg, providers,
		app.WithWatcher(watcher),
		app.WithLogLevel(&level),
	)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	slog.Info("server ready; press Ctrl+C to shut down")

	runErr := application.Run(ctx)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		slog.Error("run error", "err", runErr)
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// builtinProviders maps provider kinds to the implementations that ship with
// the War Room. Used for startup logging.
var builtinProviders = map[string][]string{
	"live":   {"gemini-live"},
	"media":  {"gemini"},
	"input":  {"microphone"},
	"output": {"speaker"},
}

// registerBuiltinProviders wires all built-in provider factories into reg.
// ctx bounds client construction for providers that need it.
func registerBuiltinProviders(ctx context.Context, reg *config.Registry) {
	reg.RegisterLive("gemini-live", func(cfg *config.Config, entry config.ProviderEntry) (live.Transport, error) {
		opts := []livegemini.Option{livegemini.WithLogger(slog.Default().With("provider", "gemini-live"))}
		if model := optString(entry.Options, "model"); model != "" {
			opts = append(opts, livegemini.WithModel(model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, livegemini.WithBaseURL(entry.BaseURL))
		}
		return livegemini.New(cfg.KeyFor(entry), opts...), nil
	})

	reg.RegisterMedia("gemini", func(cfg *config.Config, entry config.ProviderEntry) (media.Generator, error) {
		opts := []mediagemini.Option{mediagemini.WithLogger(slog.Default().With("provider", "gemini"))}
		if entry.BaseURL != "" {
			opts = append(opts, mediagemini.WithBaseURL(entry.BaseURL))
		}
		if d := optString(entry.Options, "download_timeout"); d != "" {
			timeout, err := time.ParseDuration(d)
			if err != nil {
				return nil, fmt.Errorf("options.download_timeout: %w", err)
			}
			opts = append(opts, mediagemini.WithDownloadTimeout(timeout))
		}
		return mediagemini.New(ctx, cfg.KeyFor(entry), opts...)
	})

	reg.RegisterInput("microphone", func(*config.Config, config.ProviderEntry) (audio.InputDevice, error) {
		return microphone.New(), nil
	})

	reg.RegisterOutput("speaker", func(_ *config.Config, entry config.ProviderEntry) (audio.OutputDevice, error) {
		var opts []speaker.Option
		if b := optString(entry.Options, "buffer"); b != "" {
			d, err := time.ParseDuration(b)
			if err != nil {
				return nil, fmt.Errorf("options.buffer: %w", err)
			}
			opts = append(opts, speaker.WithBufferSize(d))
		}
		return speaker.New(opts...), nil
	})

	for kind, names := range builtinProviders {
		for _, name := range names {
			slog.Debug("registered provider", "kind", kind, "name", name)
		}
	}
}

// buildProviders instantiates all providers named in cfg using the registry
// and returns them in an [app.Providers] struct for the application to consume.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}
	var err error

	if ps.Live, err = reg.CreateLive(cfg); err != nil {
		return nil, fmt.Errorf("create live provider %q: %w", cfg.Providers.Live.Name, err)
	}
	slog.Info("provider created", "kind", "live", "name", cfg.Providers.Live.Name)

	if ps.Media, err = reg.CreateMedia(cfg); err != nil {
		return nil, fmt.Errorf("create media provider %q: %w", cfg.Providers.Media.Name, err)
	}
	slog.Info("provider created", "kind", "media", "name", cfg.Providers.Media.Name)

	if ps.MediaFallbacks, err = reg.CreateMediaFallbacks(cfg); err != nil {
		return nil, fmt.Errorf("create media fallbacks: %w", err)
	}
	if n := len(ps.MediaFallbacks); n > 0 {
		slog.Info("provider created", "kind", "media_fallback", "count", n)
	}

	if ps.Input, err = reg.CreateInput(cfg); err != nil {
		return nil, fmt.Errorf("create input provider %q: %w", cfg.Providers.Input.Name, err)
	}
	slog.Info("provider created", "kind", "input", "name", cfg.Providers.Input.Name)

	if ps.Output, err = reg.CreateOutput(cfg); err != nil {
		return nil, fmt.Errorf("create output provider %q: %w", cfg.Providers.Output.Name, err)
	}
	slog.Info("provider created", "kind", "output", "name", cfg.Providers.Output.Name)

	return ps, nil
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║        War Room — startup summary     ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("Live", cfg.Providers.Live.Name, optString(cfg.Providers.Live.Options, "model"))
	printProvider("Media", cfg.Providers.Media.Name, "")
	printProvider("Microphone", cfg.Providers.Input.Name, "")
	printProvider("Speaker", cfg.Providers.Output.Name, "")
	voice := cfg.Council.Persona.Voice
	if voice == "" {
		voice = livegemini.DefaultVoice
	}
	fmt.Printf("║  Council voice   : %-19s ║\n", voice)
	if cfg.Gemini.APIKey != "" {
		fmt.Printf("║  API key         : %-19s ║\n", "configured")
	} else {
		fmt.Printf("║  API key         : %-19s ║\n", "(missing)")
	}
	if cfg.Server.ListenAddr != "" {
		fmt.Printf("║  Listen addr     : %-19s ║\n", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	if len([]rune(value)) > 19 {
		value = string([]rune(value)[:16]) + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

// newLogger writes text logs to stderr and, when lf is set, JSON logs to a
// rotating file. The returned func closes the file.
func newLogger(level slog.Leveler, lf *config.LogFileConfig) (*slog.Logger, func()) {
	opts := &slog.HandlerOptions{Level: level}
	stderr := slog.NewTextHandler(os.Stderr, opts)
	if lf == nil {
		return slog.New(stderr), func() {}
	}

	file := &lumberjack.Logger{
		Filename:   lf.Path,
		MaxSize:    lf.MaxSizeMB,
		MaxBackups: lf.MaxBackups,
		MaxAge:     lf.MaxAgeDays,
		Compress:   lf.Compress,
	}
	return slog.New(slog.NewMultiHandler(stderr, slog.NewJSONHandler(file, opts))), closer(file)
}

func closer(c io.Closer) func() {
	return func() { _ = c.Close() }
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	v, ok := opts[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}
