// Package web exposes the war room over HTTP: the four generation workflows,
// artifact downloads, council control with a WebSocket event stream, and
// the health and metrics probes.
package web

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/warroom/internal/artifact"
	"github.com/MrWong99/warroom/internal/council"
	"github.com/MrWong99/warroom/internal/health"
	"github.com/MrWong99/warroom/internal/observe"
	"github.com/MrWong99/warroom/internal/studio"
)

// maxBodyBytes bounds request bodies; source images arrive base64-encoded.
const maxBodyBytes = 32 << 20

// Studio runs the generation workflows.
type Studio interface {
	Strategist(ctx context.Context, req studio.StrategistRequest) (*studio.Creative, error)
	Edit(ctx context.Context, req studio.EditRequest) (string, error)
	Propaganda(ctx context.Context, req studio.VideoRequest) (*artifact.Artifact, error)
	Forge(ctx context.Context, req studio.ForgeRequest) (string, error)
}

// Artifacts resolves stored artifacts by ID.
type Artifacts interface {
	Get(id string) (*artifact.Artifact, error)
}

// Council is the live session controlled through the API.
type Council interface {
	Connect(ctx context.Context) error
	Disconnect()
	Status() council.Status
	Level() float64
	Subscribe(buffer int) (<-chan council.Update, func())
}

// Config wires the [Server] to its collaborators. Studio, Artifacts and
// Council are required.
type Config struct {
	Studio    Studio
	Artifacts Artifacts
	Council   Council

	// Gate is checked before a council connect. Defaults to [studio.OpenGate].
	Gate studio.Gate

	// Health serves /healthz and /readyz. Defaults to a handler without
	// checkers.
	Health *health.Handler

	// Metrics instruments requests. Defaults to [observe.DefaultMetrics].
	Metrics *observe.Metrics

	// ServeMetrics exposes the default Prometheus registry at /metrics.
	ServeMetrics bool

	Logger *slog.Logger
}

// Server routes the HTTP API.
type Server struct {
	cfg Config
	log *slog.Logger
	mux *http.ServeMux
}

// New creates a [Server] and registers its routes.
func New(cfg Config) *Server {
	if cfg.Gate == nil {
		cfg.Gate = studio.OpenGate{}
	}
	if cfg.Health == nil {
		cfg.Health = health.New()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	s := &Server{cfg: cfg, log: log, mux: http.NewServeMux()}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.cfg.Health.Register(s.mux)
	if s.cfg.ServeMetrics {
		s.mux.Handle("GET /metrics", promhttp.Handler())
	}

	s.mux.HandleFunc("POST /api/strategist", s.handleStrategist)
	s.mux.HandleFunc("POST /api/editor", s.handleEditor)
	s.mux.HandleFunc("POST /api/propaganda", s.handlePropaganda)
	s.mux.HandleFunc("POST /api/forge", s.handleForge)
	s.mux.HandleFunc("GET /api/artifacts/{id}", s.handleArtifact)

	s.mux.HandleFunc("GET /api/council", s.handleCouncilStatus)
	s.mux.HandleFunc("POST /api/council/connect", s.handleCouncilConnect)
	s.mux.HandleFunc("POST /api/council/disconnect", s.handleCouncilDisconnect)
	s.mux.HandleFunc("GET /api/council/events", s.handleCouncilEvents)
}

// Handler returns the routed handler wrapped in panic recovery and request
// instrumentation.
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = recoverer(s.log, h)
	h = observe.Middleware(s.cfg.Metrics)(h)
	return h
}

func recoverer(log *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				if v == http.ErrAbortHandler {
					panic(v)
				}
				observe.Logger(r.Context()).Error("web: panic serving request",
					"path", r.URL.Path,
					"panic", fmt.Sprint(v),
					"stack", string(debug.Stack()),
				)
				writeError(w, http.StatusInternalServerError, "internal error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}
