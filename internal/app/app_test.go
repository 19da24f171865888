package app_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/MrWong99/warroom/internal/app"
	"github.com/MrWong99/warroom/internal/config"
	"github.com/MrWong99/warroom/internal/council"
	"github.com/MrWong99/warroom/pkg/audio"
	audiomock "github.com/MrWong99/warroom/pkg/audio/mock"
	"github.com/MrWong99/warroom/pkg/provider/media"
	livemock "github.com/MrWong99/warroom/pkg/provider/live/mock"
	mediamock "github.com/MrWong99/warroom/pkg/provider/media/mock"
)

// testConfig returns a minimal valid config for tests.
func testConfig(apiKey string) *config.Config {
	cfg := &config.Config{
		Server: config.ServerConfig{LogLevel: config.LogInfo},
		Gemini: config.GeminiConfig{APIKey: apiKey},
		Council: config.CouncilConfig{
			Persona:   config.PersonaConfig{Voice: "Fenrir"},
			FrameSize: 4,
		},
		Studio: config.StudioConfig{PollInterval: time.Millisecond},
	}
	config.ApplyDefaults(cfg)
	return cfg
}

type mocks struct {
	transport *livemock.Transport
	gen       *mediamock.Generator
}

// testProviders returns mock providers wired like a real deployment.
func testProviders() (*app.Providers, mocks) {
	m := mocks{
		transport: &livemock.Transport{Session: &livemock.Session{}},
		gen: &mediamock.Generator{
			ImageResponse: &media.ImageResponse{Image: &media.Image{Data: []byte("png"), MIMEType: "image/png"}},
		},
	}
	return &app.Providers{
		Live:  m.transport,
		Media: m.gen,
		Input: &audiomock.InputDevice{
			OpenResult: audiomock.NewInputStream(audio.Format{SampleRate: audio.CaptureRate, Channels: 1}),
		},
		Output: &audiomock.OutputDevice{OpenResult: &audiomock.OutputContext{}},
	}, m
}

// running starts application on a loopback listener and returns its base URL.
// The app is stopped and shut down on cleanup.
func running(t *testing.T, cfg *config.Config, providers *app.Providers) (*app.App, string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	application, err := app.New(context.Background(), cfg, providers, app.WithListener(ln))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- application.Run(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-errCh:
			if err != nil {
				t.Errorf("Run() returned unexpected error: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("Run() did not return within 5s after context cancellation")
		}
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := application.Shutdown(shutdownCtx); err != nil {
			t.Errorf("Shutdown() error: %v", err)
		}
	})
	return application, "http://" + ln.Addr().String()
}

func TestNew_RequiresProviders(t *testing.T) {
	t.Parallel()

	providers, _ := testProviders()
	providers.Media = nil
	providers.Output = nil

	_, err := app.New(context.Background(), testConfig("k"), providers)
	if err == nil {
		t.Fatal("expected error for missing providers")
	}
	for _, want := range []string{"media generator", "output device"} {
		if !bytes.Contains([]byte(err.Error()), []byte(want)) {
			t.Errorf("error %q should mention %q", err, want)
		}
	}
	if _, err := app.New(context.Background(), testConfig("k"), nil); err == nil {
		t.Error("expected error for nil providers")
	}
}

func TestNew_AppliesConfig(t *testing.T) {
	t.Parallel()

	cfg := testConfig("k")
	cfg.Council.Persona = config.PersonaConfig{Voice: "Kore"}
	cfg.Studio.Models.Forge = "custom-forge"
	providers, _ := testProviders()

	application, err := app.New(context.Background(), cfg, providers)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	p := application.Council().Persona()
	if p.Voice != "Kore" || p.Instructions != council.DefaultInstructions {
		t.Errorf("persona = %+v", p)
	}
	if got := application.Studio().Models().Forge; got != "custom-forge" {
		t.Errorf("forge model = %q", got)
	}
}

func TestApp_ServesHealth(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		key       string
		wantReady int
	}{
		{name: "with key", key: "k", wantReady: http.StatusOK},
		{name: "without key", key: "", wantReady: http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			providers, _ := testProviders()
			_, base := running(t, testConfig(tt.key), providers)

			resp, err := http.Get(base + "/healthz")
			if err != nil {
				t.Fatalf("GET /healthz: %v", err)
			}
			resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				t.Errorf("/healthz = %d", resp.StatusCode)
			}

			resp, err = http.Get(base + "/readyz")
			if err != nil {
				t.Fatalf("GET /readyz: %v", err)
			}
			resp.Body.Close()
			if resp.StatusCode != tt.wantReady {
				t.Errorf("/readyz = %d, want %d", resp.StatusCode, tt.wantReady)
			}
		})
	}
}

func TestApp_ForgeThroughAPI(t *testing.T) {
	t.Parallel()
	providers, m := testProviders()
	_, base := running(t, testConfig("k"), providers)

	resp, err := http.Post(base+"/api/forge", "application/json", bytes.NewBufferString(`{"prompt":"a crown"}`))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	var body struct {
		Image string `json:"image"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.StatusCode != http.StatusOK || body.Image != "data:image/png;base64,cG5n" {
		t.Errorf("forge = %d %q", resp.StatusCode, body.Image)
	}
	if n := m.gen.CallCountImage(); n != 1 {
		t.Errorf("image calls = %d, want 1", n)
	}
}

func TestApp_ForgeFailsOverToBackup(t *testing.T) {
	t.Parallel()
	providers, m := testProviders()
	m.gen.ImageErr = errors.New("backend down")
	backup := &mediamock.Generator{
		ImageResponse: &media.ImageResponse{Image: &media.Image{Data: []byte("jpg"), MIMEType: "image/jpeg"}},
	}
	providers.MediaFallbacks = []media.Generator{backup}
	_, base := running(t, testConfig("k"), providers)

	resp, err := http.Post(base+"/api/forge", "application/json", bytes.NewBufferString(`{"prompt":"a crown"}`))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	var body struct {
		Image string `json:"image"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.StatusCode != http.StatusOK || body.Image != "data:image/jpeg;base64,anBn" {
		t.Errorf("forge = %d %q", resp.StatusCode, body.Image)
	}
	if m.gen.CallCountImage() != 1 || backup.CallCountImage() != 1 {
		t.Errorf("image calls = %d/%d, want 1/1", m.gen.CallCountImage(), backup.CallCountImage())
	}
}

func TestApp_CouncilDeniedWithoutKey(t *testing.T) {
	t.Parallel()
	providers, m := testProviders()
	_, base := running(t, testConfig(""), providers)

	resp, err := http.Post(base+"/api/council/connect", "application/json", nil)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want 403", resp.StatusCode)
	}
	if n := m.transport.CallCountConnect(); n != 0 {
		t.Errorf("transport connected %d times", n)
	}
}

func TestApp_CouncilSessionTracked(t *testing.T) {
	t.Parallel()
	providers, m := testProviders()
	application, base := running(t, testConfig("k"), providers)

	resp, err := http.Post(base+"/api/council/connect", "application/json", nil)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("connect = %d", resp.StatusCode)
	}
	m.transport.Open()

	deadline := time.Now().Add(2 * time.Second)
	for {
		if info, ok := application.CouncilSession(); ok {
			if info.SessionID == "" || info.StartedAt.IsZero() {
				t.Errorf("session info = %+v", info)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("council session was never tracked")
		}
		time.Sleep(5 * time.Millisecond)
	}

	application.Council().Disconnect()
	deadline = time.Now().Add(2 * time.Second)
	for {
		if _, ok := application.CouncilSession(); !ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("council session still tracked after disconnect")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestApp_ApplyConfig(t *testing.T) {
	t.Parallel()

	old := testConfig("k")
	providers, _ := testProviders()
	var level slog.LevelVar
	application, err := app.New(context.Background(), old, providers, app.WithLogLevel(&level))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	updated := testConfig("k")
	updated.Server.LogLevel = config.LogDebug
	updated.Council.Persona = config.PersonaConfig{Voice: "Puck", Instructions: "Be brief."}
	updated.Studio.Models.Video = "veo-next"
	updated.Server.ListenAddr = ":9999"

	application.ApplyConfig(old, updated)

	if level.Level() != slog.LevelDebug {
		t.Errorf("log level = %v, want debug", level.Level())
	}
	if p := application.Council().Persona(); p.Voice != "Puck" || p.Instructions != "Be brief." {
		t.Errorf("persona = %+v", p)
	}
	if got := application.Studio().Models().Video; got != "veo-next" {
		t.Errorf("video model = %q", got)
	}
	if application.Config() != updated {
		t.Error("Config() does not return the applied config")
	}
}

func TestApp_ShutdownClosesCouncil(t *testing.T) {
	t.Parallel()
	providers, _ := testProviders()
	application, err := app.New(context.Background(), testConfig("k"), providers)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := application.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error: %v", err)
	}
	if err := application.Council().Connect(context.Background()); !errors.Is(err, council.ErrClosed) {
		t.Errorf("Connect after shutdown = %v, want ErrClosed", err)
	}
	// Idempotent.
	if err := application.Shutdown(ctx); err != nil {
		t.Errorf("second Shutdown() error: %v", err)
	}
}

func TestSlogLevel(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   config.LogLevel
		want slog.Level
	}{
		{config.LogDebug, slog.LevelDebug},
		{config.LogInfo, slog.LevelInfo},
		{config.LogWarn, slog.LevelWarn},
		{config.LogError, slog.LevelError},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := app.SlogLevel(tt.in); got != tt.want {
			t.Errorf("SlogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
