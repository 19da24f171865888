package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/MrWong99/warroom/pkg/provider/media"
)

// Compile-time interface assertion.
var _ media.Generator = (*MediaFallback)(nil)

// ErrUnknownOperation is returned when a video operation or video URI is
// presented that no entry of the [MediaFallback] issued.
var ErrUnknownOperation = errors.New("resilience: unknown video operation")

// routeTTL bounds how long an operation or video URI is remembered. Callers
// that abandon a poll loop would otherwise leak their entries.
const routeTTL = 6 * time.Hour

// route records which entry owns an operation or video.
type route struct {
	owner string
	seen  time.Time
}

// MediaEntry names one media backend for a [MediaFallback].
type MediaEntry struct {
	Name      string
	Generator media.Generator
}

// MediaFallback implements [media.Generator] over an ordered list of
// backends. One-shot calls and StartVideo fail over between entries.
// PollVideo and FetchVideo are pinned to the entry that started the
// operation, since operation names and video URIs are backend-specific.
type MediaFallback struct {
	group  *FallbackGroup[media.Generator]
	byName map[string]media.Generator

	mu     sync.Mutex
	now    func() time.Time
	ops    map[string]route // by operation name
	videos map[string]route // by video URI
}

// IgnoreMediaError reports errors that do not reflect backend health: caller
// cancellation and remote operations that completed with an error.
func IgnoreMediaError(err error) bool {
	return errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, media.ErrOperationFailed)
}

// NewMediaFallback creates a [MediaFallback] with primary as the first entry
// and fallbacks after it. When cfg.CircuitBreaker.Ignore is nil it defaults to
// [IgnoreMediaError].
func NewMediaFallback(primary MediaEntry, fallbacks []MediaEntry, cfg FallbackConfig) (*MediaFallback, error) {
	if cfg.CircuitBreaker.Ignore == nil {
		cfg.CircuitBreaker.Ignore = IgnoreMediaError
	}
	m := &MediaFallback{
		byName: make(map[string]media.Generator, 1+len(fallbacks)),
		now:    time.Now,
		ops:    make(map[string]route),
		videos: make(map[string]route),
	}
	for i, e := range append([]MediaEntry{primary}, fallbacks...) {
		if e.Generator == nil {
			return nil, fmt.Errorf("resilience: media entry %d (%q) has no generator", i, e.Name)
		}
		if _, dup := m.byName[e.Name]; dup {
			return nil, fmt.Errorf("resilience: duplicate media entry name %q", e.Name)
		}
		m.byName[e.Name] = e.Generator
		if i == 0 {
			m.group = NewFallbackGroup(e.Generator, e.Name, cfg)
		} else {
			m.group.AddFallback(e.Name, e.Generator)
		}
	}
	return m, nil
}

// GenerateText implements [media.Generator].
func (m *MediaFallback) GenerateText(ctx context.Context, req media.TextRequest) (*media.TextResponse, error) {
	return ExecuteWithResult(m.group, func(g media.Generator) (*media.TextResponse, error) {
		return g.GenerateText(ctx, req)
	})
}

// GenerateImage implements [media.Generator].
func (m *MediaFallback) GenerateImage(ctx context.Context, req media.ImageRequest) (*media.ImageResponse, error) {
	return ExecuteWithResult(m.group, func(g media.Generator) (*media.ImageResponse, error) {
		return g.GenerateImage(ctx, req)
	})
}

// StartVideo implements [media.Generator]. The serving entry is remembered
// for later polls of the returned operation.
func (m *MediaFallback) StartVideo(ctx context.Context, req media.VideoRequest) (*media.Operation, error) {
	op, owner, err := executeEntry(m.group, func(_ string, g media.Generator) (*media.Operation, error) {
		return g.StartVideo(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	m.track(op, owner)
	return op, nil
}

// PollVideo implements [media.Generator].
func (m *MediaFallback) PollVideo(ctx context.Context, op *media.Operation) (*media.Operation, error) {
	if op == nil {
		return nil, fmt.Errorf("%w: nil operation", ErrUnknownOperation)
	}
	m.mu.Lock()
	r, ok := m.ops[op.Name]
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownOperation, op.Name)
	}

	next, err := m.byName[r.owner].PollVideo(ctx, op)
	if err != nil {
		if errors.Is(err, media.ErrOperationFailed) {
			m.forget(op.Name)
		}
		return nil, err
	}
	m.track(next, r.owner)
	return next, nil
}

// FetchVideo implements [media.Generator]. Videos carrying inline data are
// returned without consulting any backend.
func (m *MediaFallback) FetchVideo(ctx context.Context, v media.Video) ([]byte, error) {
	if len(v.Data) > 0 {
		return v.Data, nil
	}
	m.mu.Lock()
	r, ok := m.videos[v.URI]
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: video %q", ErrUnknownOperation, v.URI)
	}

	data, err := m.byName[r.owner].FetchVideo(ctx, v)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	delete(m.videos, v.URI)
	m.mu.Unlock()
	return data, nil
}

// Check returns nil while at least one entry has a closed or half-open
// breaker. It fits a readiness probe.
func (m *MediaFallback) Check(context.Context) error {
	if m.group.Healthy() {
		return nil
	}
	return fmt.Errorf("%w: every circuit is open", ErrAllFailed)
}

// States returns the breaker state of every entry keyed by name.
func (m *MediaFallback) States() map[string]State {
	return m.group.States()
}

// track records owner for op, moving finished operations to the video table.
func (m *MediaFallback) track(op *media.Operation, owner string) {
	if op == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	m.pruneLocked(now)
	if !op.Done {
		m.ops[op.Name] = route{owner: owner, seen: now}
		return
	}
	delete(m.ops, op.Name)
	for _, v := range op.Videos {
		if v.URI != "" {
			m.videos[v.URI] = route{owner: owner, seen: now}
		}
	}
}

func (m *MediaFallback) pruneLocked(now time.Time) {
	for k, r := range m.ops {
		if now.Sub(r.seen) > routeTTL {
			delete(m.ops, k)
		}
	}
	for k, r := range m.videos {
		if now.Sub(r.seen) > routeTTL {
			delete(m.videos, k)
		}
	}
}

func (m *MediaFallback) forget(opName string) {
	m.mu.Lock()
	delete(m.ops, opName)
	m.mu.Unlock()
}
