// Package mock provides test doubles for the live package interfaces.
//
// Use Transport to verify Connect calls and to drive the session callbacks
// from a test. Use Session to inspect which chunks were sent and whether the
// session was closed.
//
// Example:
//
//	sess := &mock.Session{}
//	tr := &mock.Transport{Session: sess}
//	handle, _ := tr.Connect(ctx, cfg, cb)
//	tr.Open()                      // fires cb.OnOpen
//	tr.Message(live.Message{...})  // fires cb.OnMessage
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/warroom/pkg/audio"
	"github.com/MrWong99/warroom/pkg/provider/live"
)

// ConnectCall records a single invocation of Transport.Connect.
type ConnectCall struct {
	Config    live.Config
	Callbacks live.Callbacks
}

// Transport is a mock implementation of live.Transport.
type Transport struct {
	mu sync.Mutex

	// Session is returned by Connect. If nil, a fresh *Session is created.
	Session *Session

	// ConnectErr, if non-nil, is returned by Connect.
	ConnectErr error

	// Block, if non-nil, makes Connect wait until it is closed or ctx is done.
	Block chan struct{}

	// ConnectCalls records all Connect invocations.
	ConnectCalls []ConnectCall
}

// Connect records the call and returns Session or ConnectErr.
func (t *Transport) Connect(ctx context.Context, cfg live.Config, cb live.Callbacks) (live.Session, error) {
	t.mu.Lock()
	t.ConnectCalls = append(t.ConnectCalls, ConnectCall{Config: cfg, Callbacks: cb})
	block := t.Block
	t.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ConnectErr != nil {
		return nil, t.ConnectErr
	}
	if t.Session == nil {
		t.Session = &Session{}
	}
	return t.Session, nil
}

// CallCountConnect returns how many times Connect was called.
func (t *Transport) CallCountConnect() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.ConnectCalls)
}

// LastConfig returns the Config of the most recent Connect call.
func (t *Transport) LastConfig() live.Config {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.ConnectCalls) == 0 {
		return live.Config{}
	}
	return t.ConnectCalls[len(t.ConnectCalls)-1].Config
}

func (t *Transport) callbacks() live.Callbacks {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.ConnectCalls) == 0 {
		return live.Callbacks{}
	}
	return t.ConnectCalls[len(t.ConnectCalls)-1].Callbacks
}

// Open fires OnOpen of the most recent Connect call.
func (t *Transport) Open() {
	if cb := t.callbacks(); cb.OnOpen != nil {
		cb.OnOpen()
	}
}

// Message fires OnMessage of the most recent Connect call.
func (t *Transport) Message(m live.Message) {
	if cb := t.callbacks(); cb.OnMessage != nil {
		cb.OnMessage(m)
	}
}

// RemoteClose fires OnClose of the most recent Connect call.
func (t *Transport) RemoteClose(reason string) {
	if cb := t.callbacks(); cb.OnClose != nil {
		cb.OnClose(reason)
	}
}

// Fail fires OnError of the most recent Connect call.
func (t *Transport) Fail(err error) {
	if cb := t.callbacks(); cb.OnError != nil {
		cb.OnError(err)
	}
}

// Ensure Transport implements live.Transport at compile time.
var _ live.Transport = (*Transport)(nil)

// Session is a mock implementation of live.Session.
type Session struct {
	mu sync.Mutex

	// SendErr, if non-nil, is returned by SendRealtimeInput.
	SendErr error

	// Sent records every blob passed to SendRealtimeInput, in order.
	Sent []audio.Blob

	closeCount int
	closed     chan struct{}
}

// SendRealtimeInput records the call and returns SendErr.
func (s *Session) SendRealtimeInput(blob audio.Blob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Sent = append(s.Sent, blob)
	return s.SendErr
}

// Close records the call. The first call closes the channel returned by
// Closed.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeCount++
	s.initLocked()
	if s.closeCount == 1 {
		close(s.closed)
	}
	return nil
}

func (s *Session) initLocked() {
	if s.closed == nil {
		s.closed = make(chan struct{})
	}
}

// Closed returns a channel that is closed once Close has been called.
func (s *Session) Closed() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.initLocked()
	return s.closed
}

// CallCountClose returns how many times Close was called.
func (s *Session) CallCountClose() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeCount
}

// SentCount returns the number of blobs sent so far.
func (s *Session) SentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Sent)
}

// Ensure Session implements live.Session at compile time.
var _ live.Session = (*Session)(nil)

// SentBlobs returns a snapshot of the blobs sent so far.
func (s *Session) SentBlobs() []audio.Blob {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]audio.Blob, len(s.Sent))
	copy(out, s.Sent)
	return out
}
