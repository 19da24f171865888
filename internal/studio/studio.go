// Package studio implements the War Room generation workflows on top of a
// [media.Generator]:
//
//   - Strategist: image + draft copy → strategy, headline and a finished ad
//     creative with the headline rendered onto the image.
//   - Editor: image + instruction → edited image.
//   - Propaganda: image + prompt → short video, stored as a downloadable
//     artifact.
//   - Forge: prompt → image at a chosen aspect ratio and size.
//
// Every workflow checks the access [Gate] first and is a single blocking call
// that honours context cancellation.
package studio

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/MrWong99/warroom/internal/artifact"
	"github.com/MrWong99/warroom/internal/observe"
	"github.com/MrWong99/warroom/pkg/provider/media"
)

var (
	// ErrGenerationFailed is returned when the model produced no usable
	// result.
	ErrGenerationFailed = errors.New("studio: generation failed")

	// ErrInvalidConfig is returned for missing inputs or out-of-range options.
	ErrInvalidConfig = errors.New("studio: invalid config")
)

// RefusalError reports that the model answered with text instead of an
// image. It matches [ErrGenerationFailed] with errors.Is.
type RefusalError struct {
	Text string
}

func (e *RefusalError) Error() string { return e.Text }

// Is reports whether target is [ErrGenerationFailed].
func (e *RefusalError) Is(target error) bool { return target == ErrGenerationFailed }

// Models names the model used by each workflow step.
type Models struct {
	Strategy string `yaml:"strategy"`
	Creative string `yaml:"creative"`
	Editor   string `yaml:"editor"`
	Video    string `yaml:"video"`
	Forge    string `yaml:"forge"`
}

// DefaultModels returns the stock model selection.
func DefaultModels() Models {
	return Models{
		Strategy: "gemini-3-pro-preview",
		Creative: "gemini-2.5-flash-image",
		Editor:   "gemini-2.5-flash-image",
		Video:    "veo-3.1-fast-generate-preview",
		Forge:    "gemini-3-turbo-image-preview",
	}
}

// withDefaults fills empty fields from [DefaultModels].
func (m Models) withDefaults() Models {
	d := DefaultModels()
	if m.Strategy == "" {
		m.Strategy = d.Strategy
	}
	if m.Creative == "" {
		m.Creative = d.Creative
	}
	if m.Editor == "" {
		m.Editor = d.Editor
	}
	if m.Video == "" {
		m.Video = d.Video
	}
	if m.Forge == "" {
		m.Forge = d.Forge
	}
	return m
}

// Option is a functional option for configuring a Studio.
type Option func(*Studio)

// WithModels sets the initial model selection. Empty fields keep defaults.
func WithModels(m Models) Option {
	return func(s *Studio) { s.models = m.withDefaults() }
}

// WithPollInterval sets how often a running video generation is polled.
func WithPollInterval(d time.Duration) Option {
	return func(s *Studio) { s.pollInterval = d }
}

// WithArtifacts sets the store that receives generated videos.
func WithArtifacts(st *artifact.Store) Option {
	return func(s *Studio) { s.artifacts = st }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Studio) { s.metrics = m }
}

// Studio runs generation workflows. All methods are safe for concurrent use.
type Studio struct {
	gen          media.Generator
	gate         Gate
	artifacts    *artifact.Store
	pollInterval time.Duration
	metrics      *observe.Metrics

	mu     sync.RWMutex
	models Models
}

// New creates a Studio. A nil gate admits every request.
func New(gen media.Generator, gate Gate, opts ...Option) *Studio {
	if gate == nil {
		gate = OpenGate{}
	}
	s := &Studio{
		gen:          gen,
		gate:         gate,
		pollInterval: 5 * time.Second,
		models:       DefaultModels(),
	}
	for _, o := range opts {
		o(s)
	}
	if s.artifacts == nil {
		s.artifacts = artifact.NewStore(32, time.Hour, s.metrics)
	}
	return s
}

// Models returns the current model selection.
func (s *Studio) Models() Models {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.models
}

// SetModels replaces the model selection. Runs already in progress keep the
// models they started with.
func (s *Studio) SetModels(m Models) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.models = m.withDefaults()
}

// Artifacts returns the artifact store.
func (s *Studio) Artifacts() *artifact.Store { return s.artifacts }

// run wraps one workflow invocation with the gate, a span, logging and
// metrics.
func (s *Studio) run(ctx context.Context, workflow string, fn func(context.Context, Models) error) error {
	ctx, span := observe.StartSpan(ctx, "studio."+workflow)
	defer span.End()
	log := observe.Logger(ctx).With("workflow", workflow)

	if err := s.gate.Check(ctx); err != nil {
		observe.FailSpan(span, err, "access denied")
		return err
	}

	models := s.Models()
	start := time.Now()
	err := fn(ctx, models)
	elapsed := time.Since(start)

	status := "ok"
	if err != nil {
		status = "error"
		observe.FailSpan(span, err, "")
		log.Warn("studio: workflow failed", "err", err, "elapsed", elapsed)
	} else {
		log.Info("studio: workflow done", "elapsed", elapsed)
	}
	span.SetAttributes(attribute.String("workflow.status", status))
	if s.metrics != nil {
		s.metrics.RecordGeneration(ctx, workflow, status, elapsed)
	}
	return err
}

func (s *Studio) providerCall(ctx context.Context, kind string, err error) {
	if s.metrics == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
		s.metrics.RecordProviderError(ctx, "media", kind)
	}
	s.metrics.RecordProviderRequest(ctx, "media", kind, status)
}

// DataURI encodes img as a base64 data URI. Images without a MIME type are
// labelled image/png.
func DataURI(img *media.Image) string {
	mime := img.MIMEType
	if mime == "" {
		mime = "image/png"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
}

func requireImage(img media.Image) error {
	if len(img.Data) == 0 {
		return fmt.Errorf("%w: image is required", ErrInvalidConfig)
	}
	return nil
}
