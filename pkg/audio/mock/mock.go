// Package mock provides in-memory mock implementations of the
// [audio.InputDevice], [audio.InputStream], [audio.OutputDevice] and
// [audio.OutputContext] interfaces for use in unit tests.
//
// All mocks are safe for concurrent use. They record every method call so that
// tests can assert on call counts and arguments, and they expose exported fields
// that the test can set to control return values.
//
// Typical usage:
//
//	stream := mock.NewInputStream(audio.Format{SampleRate: 16000, Channels: 1})
//	mic := &mock.InputDevice{OpenResult: stream}
//	out := &mock.OutputContext{}
//	speaker := &mock.OutputDevice{OpenResult: out}
//	stream.Push(make([]float32, 4096))
package mock

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/MrWong99/warroom/pkg/audio"
)

// Compile-time interface assertions.
var (
	_ audio.InputDevice   = (*InputDevice)(nil)
	_ audio.InputStream   = (*InputStream)(nil)
	_ audio.OutputDevice  = (*OutputDevice)(nil)
	_ audio.OutputContext = (*OutputContext)(nil)
	_ audio.Voice         = (*Voice)(nil)
)

// ─── InputDevice ──────────────────────────────────────────────────────────────

// InputDevice is a mock implementation of [audio.InputDevice].
type InputDevice struct {
	mu sync.Mutex

	// OpenResult is the stream returned by Open.
	OpenResult audio.InputStream

	// OpenError is the error returned by Open.
	OpenError error

	// Block, if non-nil, makes Open wait until it is closed or ctx is done,
	// simulating a pending permission prompt.
	Block chan struct{}

	// OpenCalls records the format passed to each Open call.
	OpenCalls []audio.Format
}

// Open implements [audio.InputDevice].
func (d *InputDevice) Open(ctx context.Context, want audio.Format) (audio.InputStream, error) {
	d.mu.Lock()
	d.OpenCalls = append(d.OpenCalls, want)
	block := d.Block
	d.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.OpenError != nil {
		return nil, d.OpenError
	}
	return d.OpenResult, nil
}

// CallCountOpen returns how many times Open was called.
func (d *InputDevice) CallCountOpen() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.OpenCalls)
}

// ─── InputStream ──────────────────────────────────────────────────────────────

// InputStream is a mock [audio.InputStream] fed by [InputStream.Push].
type InputStream struct {
	format audio.Format
	chunks chan []float32

	mu        sync.Mutex
	closed    bool
	done      chan struct{}
	readErr   error
	closeHits int
}

// NewInputStream returns a stream reporting format. Pushed chunks are
// buffered up to 64 deep.
func NewInputStream(format audio.Format) *InputStream {
	return &InputStream{
		format: format,
		chunks: make(chan []float32, 64),
		done:   make(chan struct{}),
	}
}

// Push queues a chunk for the next Read.
func (s *InputStream) Push(chunk []float32) {
	select {
	case s.chunks <- chunk:
	case <-s.done:
	}
}

// Fail makes the next Read return err once all queued chunks are drained.
func (s *InputStream) Fail(err error) {
	s.mu.Lock()
	s.readErr = err
	s.mu.Unlock()
	close(s.chunks)
}

// Format implements [audio.InputStream].
func (s *InputStream) Format() audio.Format { return s.format }

// Read implements [audio.InputStream].
func (s *InputStream) Read() ([]float32, error) {
	select {
	case c, ok := <-s.chunks:
		if ok {
			return c, nil
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.readErr != nil {
			return nil, s.readErr
		}
		return nil, io.EOF
	case <-s.done:
		return nil, io.EOF
	}
}

// Close implements [audio.InputStream].
func (s *InputStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeHits++
	if !s.closed {
		s.closed = true
		close(s.done)
	}
	return nil
}

// Closed reports whether Close has been called.
func (s *InputStream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// CallCountClose returns how many times Close was called.
func (s *InputStream) CallCountClose() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeHits
}

// ─── OutputDevice ─────────────────────────────────────────────────────────────

// OutputDevice is a mock implementation of [audio.OutputDevice].
type OutputDevice struct {
	mu sync.Mutex

	// OpenResult is the context returned by Open.
	OpenResult audio.OutputContext

	// OpenError is the error returned by Open.
	OpenError error

	// OpenCalls records the format passed to each Open call.
	OpenCalls []audio.Format
}

// Open implements [audio.OutputDevice].
func (d *OutputDevice) Open(_ context.Context, format audio.Format) (audio.OutputContext, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.OpenCalls = append(d.OpenCalls, format)
	if d.OpenError != nil {
		return nil, d.OpenError
	}
	return d.OpenResult, nil
}

// CallCountOpen returns how many times Open was called.
func (d *OutputDevice) CallCountOpen() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.OpenCalls)
}

// ─── OutputContext ────────────────────────────────────────────────────────────

// PlayCall records a single [OutputContext.Play] invocation.
type PlayCall struct {
	Buffer  *audio.Buffer
	At      time.Duration
	Voice   *Voice
	onEnded func()
}

// OutputContext is a mock [audio.OutputContext] with a manually driven clock.
// The zero value is ready to use.
type OutputContext struct {
	mu sync.Mutex

	now time.Duration

	// PlayError is returned by Play when set.
	PlayError error

	// PlayCalls records all Play invocations in order.
	PlayCalls []PlayCall

	closeHits int
}

// SetNow moves the output clock to d.
func (o *OutputContext) SetNow(d time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.now = d
}

// Now implements [audio.OutputContext].
func (o *OutputContext) Now() time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.now
}

// Play implements [audio.OutputContext].
func (o *OutputContext) Play(buf *audio.Buffer, at time.Duration, onEnded func()) (audio.Voice, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.PlayError != nil {
		return nil, o.PlayError
	}
	v := &Voice{}
	o.PlayCalls = append(o.PlayCalls, PlayCall{Buffer: buf, At: at, Voice: v, onEnded: onEnded})
	return v, nil
}

// Calls returns a snapshot of recorded Play calls.
func (o *OutputContext) Calls() []PlayCall {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]PlayCall, len(o.PlayCalls))
	copy(out, o.PlayCalls)
	return out
}

// Finish fires the end notification of the i-th Play call, simulating natural
// completion of that buffer.
func (o *OutputContext) Finish(i int) {
	o.mu.Lock()
	cb := o.PlayCalls[i].onEnded
	o.mu.Unlock()
	if cb != nil {
		cb()
	}
}

// Close implements [audio.OutputContext].
func (o *OutputContext) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closeHits++
	return nil
}

// CallCountClose returns how many times Close was called.
func (o *OutputContext) CallCountClose() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closeHits
}

// ─── Voice ────────────────────────────────────────────────────────────────────

// Voice is a mock [audio.Voice].
type Voice struct {
	mu    sync.Mutex
	stops int
}

// Stop implements [audio.Voice].
func (v *Voice) Stop() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.stops++
}

// Stopped reports whether Stop has been called.
func (v *Voice) Stopped() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.stops > 0
}
