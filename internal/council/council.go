// Package council runs the Live Council: a realtime voice conversation with a
// model persona. It owns the microphone capture pipeline, the live transport
// session and the playback scheduler for one connection at a time, and drives
// them through a three-state lifecycle:
//
//	Disconnected → Connecting → Connected → Disconnected
//
// Every path back to Disconnected (user disconnect, remote close, transport
// error, acquisition failure, disposal) goes through a single idempotent
// teardown routine.
package council

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/warroom/internal/observe"
	"github.com/MrWong99/warroom/pkg/audio"
	"github.com/MrWong99/warroom/pkg/audio/capture"
	"github.com/MrWong99/warroom/pkg/audio/playback"
	"github.com/MrWong99/warroom/pkg/provider/live"
)

// ErrAlreadyActive is returned by [Session.Connect] when the session is not
// Disconnected.
var ErrAlreadyActive = errors.New("council: session already active")

// ErrClosed is returned by [Session.Connect] after [Session.Close].
var ErrClosed = errors.New("council: session closed")

// Status is the lifecycle state of a [Session].
type Status int

const (
	// StatusDisconnected means no resources are held.
	StatusDisconnected Status = iota

	// StatusConnecting means devices and the transport are being acquired.
	StatusConnecting

	// StatusConnected means the transport is open and audio is streaming.
	StatusConnected
)

// String returns the lower-case name of the status.
func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// MarshalText implements [encoding.TextMarshaler].
func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// DefaultInstructions is the directive the council speaks under unless
// configured otherwise.
const DefaultInstructions = "You are a Machiavellian strategist advising a Prince. " +
	"Be succinct, strategic, cunning, and focused on power dynamics. Speak with authority."

// Persona configures the model side of a council session.
type Persona struct {
	Model        string
	Voice        string
	Instructions string
}

// DefaultPersona returns the native-audio model, the Fenrir voice and
// [DefaultInstructions].
func DefaultPersona() Persona {
	return Persona{
		Model:        "gemini-2.5-flash-native-audio-preview-09-2025",
		Voice:        "Fenrir",
		Instructions: DefaultInstructions,
	}
}

// WithDefaults fills empty fields from [DefaultPersona].
func (p Persona) WithDefaults() Persona {
	d := DefaultPersona()
	if p.Model == "" {
		p.Model = d.Model
	}
	if p.Voice == "" {
		p.Voice = d.Voice
	}
	if p.Instructions == "" {
		p.Instructions = d.Instructions
	}
	return p
}

// ── Options ────────────────────────────────────────────────────────────────────

// Option is a functional option for configuring a Session.
type Option func(*Session)

// WithPersona sets the persona used for the next connection.
func WithPersona(p Persona) Option {
	return func(s *Session) { s.persona = p }
}

// WithFrameSize sets the number of microphone samples per outbound frame.
func WithFrameSize(n int) Option {
	return func(s *Session) { s.frameSize = n }
}

// WithStopOnInterrupt controls whether queued model audio is dropped when the
// model reports that the user interrupted it.
func WithStopOnInterrupt(v bool) Option {
	return func(s *Session) { s.stopOnInterrupt = v }
}

// WithNotifier sets the sink for user-visible failure notices.
func WithNotifier(n Notifier) Option {
	return func(s *Session) { s.notifier = n }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

// WithLogger sets the session logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.log = l }
}

// ── Session ────────────────────────────────────────────────────────────────────

// connection holds the resources of one connect attempt. Fields are set as
// they are acquired and cleared by teardown.
type connection struct {
	epoch     uint64
	transport live.Session
	input     audio.InputStream
	output    audio.OutputContext
	capture   *capture.Handle
	scheduler *playback.Scheduler

	// opened records an OnOpen that arrived before Connect attached the
	// transport handle.
	opened bool
}

// Session is a Live Council session. The zero value is not usable; create one
// with [New]. All methods are safe for concurrent use.
type Session struct {
	transport live.Transport
	input     audio.InputDevice
	output    audio.OutputDevice

	frameSize       int
	stopOnInterrupt bool
	notifier        Notifier
	metrics         *observe.Metrics
	log             *slog.Logger

	mu            sync.Mutex
	persona       Persona
	status        Status
	epoch         uint64
	conn          *connection
	cancelConnect context.CancelFunc
	closed        bool

	level   atomic.Uint64 // math.Float64bits
	closers sync.WaitGroup
	hub     hub
}

// New creates a Disconnected session that acquires audio from input, plays
// model audio on output and talks to the model through transport.
func New(transport live.Transport, input audio.InputDevice, output audio.OutputDevice, opts ...Option) *Session {
	s := &Session{
		transport:       transport,
		input:           input,
		output:          output,
		frameSize:       capture.DefaultFrameSize,
		stopOnInterrupt: true,
		log:             slog.Default(),
		persona:         DefaultPersona(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Status returns the current lifecycle state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Level returns the microphone volume (RMS × 100) of the most recent frame,
// or 0 when not capturing.
func (s *Session) Level() float64 {
	return math.Float64frombits(s.level.Load())
}

// Persona returns the persona used for the next connection.
func (s *Session) Persona() Persona {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persona
}

// SetPersona replaces the persona. An active connection keeps the persona it
// was opened with; the change applies from the next Connect.
func (s *Session) SetPersona(p Persona) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.persona = p
}

// Connect acquires the output device, the microphone and a live transport
// session, in that order. It returns once all three are held; the session
// becomes Connected when the transport reports it is open.
//
// Connect fails with [ErrAlreadyActive] unless the session is Disconnected.
// Any acquisition failure tears down whatever was acquired, returns the
// session to Disconnected, raises a notice and is returned wrapped. A
// concurrent [Session.Disconnect] cancels an in-flight Connect.
func (s *Session) Connect(ctx context.Context) error {
	start := time.Now()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.status != StatusDisconnected {
		s.mu.Unlock()
		return ErrAlreadyActive
	}
	s.epoch++
	ep := s.epoch
	ctx, cancel := context.WithCancel(ctx)
	s.cancelConnect = cancel
	s.conn = &connection{epoch: ep}
	persona := s.persona
	s.setStatusLocked(StatusConnecting)
	s.mu.Unlock()
	defer cancel()

	log := s.log.With("epoch", ep)
	log.Info("council: connecting", "model", persona.Model, "voice", persona.Voice)

	out, err := s.output.Open(ctx, audio.Format{SampleRate: audio.PlaybackRate, Channels: 1})
	if err != nil {
		return s.abort(ep, fmt.Errorf("council: open output: %w", err))
	}
	if !s.attach(ep, func(c *connection) {
		c.output = out
		c.scheduler = playback.New(out)
	}) {
		_ = out.Close()
		return s.cancelled()
	}

	in, err := s.input.Open(ctx, audio.Format{SampleRate: audio.CaptureRate, Channels: 1})
	if err != nil {
		return s.abort(ep, fmt.Errorf("council: open microphone: %w", err))
	}
	if !s.attach(ep, func(c *connection) { c.input = in }) {
		_ = in.Close()
		return s.cancelled()
	}

	tr, err := s.transport.Connect(ctx, live.Config{
		Model:              persona.Model,
		Voice:              persona.Voice,
		Instructions:       persona.Instructions,
		ResponseModalities: []live.Modality{live.ModalityAudio},
	}, s.callbacks(ep))
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordProviderError(context.Background(), "live", "open")
		}
		return s.abort(ep, fmt.Errorf("council: open transport: %w", err))
	}
	if !s.attach(ep, func(c *connection) {
		c.transport = tr
		if c.opened {
			s.startStreamingLocked(c)
		}
	}) {
		s.closeAsync(tr)
		return s.cancelled()
	}

	s.mu.Lock()
	if s.epoch == ep {
		s.cancelConnect = nil
	}
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.CouncilConnectDuration.Record(context.Background(), time.Since(start).Seconds())
	}
	log.Info("council: resources acquired", "elapsed", time.Since(start))
	return nil
}

// Disconnect tears down the active connection, if any. It cancels an
// in-flight Connect. Calling it while Disconnected is a no-op.
func (s *Session) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == StatusDisconnected {
		return
	}
	s.log.Info("council: disconnecting")
	s.teardownLocked()
}

// Close disposes of the session: it tears down any active connection and
// rejects further Connect calls. Idempotent.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.status != StatusDisconnected {
		s.teardownLocked()
	}
	s.hub.closeAll()
	return nil
}

// Wait blocks until every transport close dispatched by teardown has
// completed, or ctx is done.
func (s *Session) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.closers.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// attach runs fn on the current connection if ep is still current.
func (s *Session) attach(ep uint64, fn func(*connection)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != ep || s.conn == nil {
		return false
	}
	fn(s.conn)
	return true
}

// abort handles a failed acquisition for connection ep.
func (s *Session) abort(ep uint64, err error) error {
	s.mu.Lock()
	current := s.epoch == ep && s.conn != nil
	if current {
		s.teardownLocked()
	}
	s.mu.Unlock()

	if !current {
		// A Disconnect already tore this attempt down.
		return s.cancelled()
	}
	s.log.Warn("council: connect failed", "err", err)
	s.notify(Notice{Kind: NoticeConnectFailed, Message: connectFailedMessage(err), Err: err})
	return err
}

func (s *Session) cancelled() error {
	return fmt.Errorf("council: connect: %w", context.Canceled)
}

// teardownLocked releases every resource of the current connection and
// returns the session to Disconnected. The transport is closed
// asynchronously. Safe to call when nothing is held. s.mu must be held.
func (s *Session) teardownLocked() {
	if s.cancelConnect != nil {
		s.cancelConnect()
		s.cancelConnect = nil
	}
	// Invalidate callbacks and in-flight acquisitions of the old connection.
	s.epoch++

	c := s.conn
	s.conn = nil
	if c != nil {
		if c.transport != nil {
			s.closeAsync(c.transport)
			c.transport = nil
		}
		if c.capture != nil {
			c.capture.Stop()
			c.capture = nil
			c.input = nil
		}
		if c.input != nil {
			if err := c.input.Close(); err != nil {
				s.log.Debug("council: close microphone", "err", err)
			}
			c.input = nil
		}
		if c.scheduler != nil {
			c.scheduler.StopAll()
			c.scheduler.Reset()
			c.scheduler = nil
		}
		if c.output != nil {
			if err := c.output.Close(); err != nil {
				s.log.Debug("council: close output", "err", err)
			}
			c.output = nil
		}
	}

	s.setStatusLocked(StatusDisconnected)
	s.setLevel(0)
}

// closeAsync closes tr on a separate goroutine. Failures are logged and
// otherwise ignored.
func (s *Session) closeAsync(tr live.Session) {
	s.closers.Add(1)
	go func() {
		defer s.closers.Done()
		if err := tr.Close(); err != nil {
			s.log.Debug("council: close transport", "err", err)
		}
	}()
}

func (s *Session) setStatusLocked(st Status) {
	if s.status == st {
		return
	}
	prev := s.status
	s.status = st
	if s.metrics != nil {
		switch {
		case st == StatusConnected:
			s.metrics.ActiveSessions.Add(context.Background(), 1)
		case prev == StatusConnected:
			s.metrics.ActiveSessions.Add(context.Background(), -1)
		}
	}
	s.log.Debug("council: status", "from", prev, "to", st)
	s.hub.publish(Update{Status: st, Level: s.Level()})
}

func (s *Session) setLevel(l float64) {
	s.level.Store(math.Float64bits(l))
}
