package council

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrWong99/warroom/pkg/audio"
	"github.com/MrWong99/warroom/pkg/audio/capture"
	"github.com/MrWong99/warroom/pkg/provider/live"
)

// callbacks binds transport events to connection ep. Events for any other
// connection are ignored.
func (s *Session) callbacks(ep uint64) live.Callbacks {
	return live.Callbacks{
		OnOpen:    func() { s.handleOpen(ep) },
		OnMessage: func(m live.Message) { s.handleMessage(ep, m) },
		OnClose:   func(reason string) { s.handleClose(ep, reason) },
		OnError:   func(err error) { s.handleError(ep, err) },
	}
}

func (s *Session) handleOpen(ep uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.current(ep)
	if c == nil {
		return
	}
	if c.transport == nil {
		// Connect has not attached the session handle yet.
		c.opened = true
		return
	}
	s.startStreamingLocked(c)
}

// startStreamingLocked starts microphone capture and marks the session
// Connected. s.mu must be held.
func (s *Session) startStreamingLocked(c *connection) {
	if c.capture != nil || c.input == nil {
		return
	}
	tr := c.transport
	metrics := s.metrics
	log := s.log.With("epoch", c.epoch)

	// Runs on the capture goroutine. Must not take s.mu: teardown waits for
	// this goroutine while holding it.
	onFrame := func(frame []float32) {
		if err := tr.SendRealtimeInput(audio.Encode(frame)); err != nil {
			if !errors.Is(err, live.ErrSessionClosed) {
				log.Warn("council: send frame", "err", err)
			}
			return
		}
		if metrics != nil {
			metrics.CouncilFramesSent.Add(context.Background(), 1)
		}
	}
	c.capture = capture.Start(c.input, capture.Config{
		SampleRate: audio.CaptureRate,
		FrameSize:  s.frameSize,
		OnLevel:    s.publishLevel,
	}, onFrame)

	ep := c.epoch
	h := c.capture
	go func() {
		if err := h.Err(); err != nil {
			s.handleCaptureFailure(ep, err)
		}
	}()

	s.setStatusLocked(StatusConnected)
	log.Info("council: connected")
}

func (s *Session) handleMessage(ep uint64, m live.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.current(ep)
	if c == nil || c.scheduler == nil {
		return
	}

	if m.Interrupted && s.stopOnInterrupt {
		s.log.Debug("council: model interrupted, dropping queued audio", "pending", c.scheduler.Pending())
		c.scheduler.StopAll()
		c.scheduler.Reset()
	}

	for _, p := range m.Parts {
		if p.InlineData == nil || p.InlineData.Data == "" {
			continue
		}
		buf, err := audio.Decode(p.InlineData.Data, audio.PlaybackRate, 1)
		if err != nil {
			s.log.Warn("council: dropping audio chunk", "mime", p.InlineData.MIMEType, "err", err)
			s.countChunk(false)
			continue
		}
		if _, err := c.scheduler.Schedule(buf); err != nil {
			s.log.Warn("council: schedule audio chunk", "err", err)
			s.countChunk(false)
			continue
		}
		s.countChunk(true)
	}
}

func (s *Session) handleClose(ep uint64, reason string) {
	s.mu.Lock()
	if s.current(ep) == nil {
		s.mu.Unlock()
		return
	}
	// A close before setupComplete means the server rejected the session.
	setup := s.status == StatusConnecting
	s.log.Info("council: remote closed session", "reason", reason, "during_setup", setup)
	s.teardownLocked()
	s.mu.Unlock()

	if setup {
		err := fmt.Errorf("%w: closed during setup: %s", live.ErrTransportOpen, reason)
		if s.metrics != nil {
			s.metrics.RecordProviderError(context.Background(), "live", "open")
		}
		s.notify(Notice{Kind: NoticeConnectFailed, Message: connectFailedMessage(err), Err: err})
		return
	}
	s.notify(Notice{Kind: NoticeClosed, Message: "The council has adjourned."})
}

func (s *Session) handleError(ep uint64, err error) {
	s.mu.Lock()
	if s.current(ep) == nil {
		s.mu.Unlock()
		return
	}
	s.log.Error("council: transport error", "err", err)
	s.teardownLocked()
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.RecordProviderError(context.Background(), "live", "runtime")
	}
	s.notify(Notice{Kind: NoticeTransportError, Message: "Connection to the council was lost.", Err: err})
}

func (s *Session) handleCaptureFailure(ep uint64, err error) {
	s.mu.Lock()
	if s.current(ep) == nil {
		s.mu.Unlock()
		return
	}
	s.log.Error("council: microphone failed", "err", err)
	s.teardownLocked()
	s.mu.Unlock()

	s.notify(Notice{Kind: NoticeTransportError, Message: "The microphone stopped responding.", Err: err})
}

// current returns the active connection if it belongs to ep. s.mu must be
// held.
func (s *Session) current(ep uint64) *connection {
	if s.epoch != ep || s.conn == nil || s.conn.epoch != ep {
		return nil
	}
	return s.conn
}

func (s *Session) countChunk(played bool) {
	if s.metrics == nil {
		return
	}
	if played {
		s.metrics.CouncilChunksPlayed.Add(context.Background(), 1)
	} else {
		s.metrics.CouncilChunksDropped.Add(context.Background(), 1)
	}
}
