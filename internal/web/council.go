package web

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/MrWong99/warroom/internal/council"
	"github.com/MrWong99/warroom/internal/observe"
)

const (
	// connectTimeout bounds device and transport acquisition. Connect
	// outlives the request so a closed tab does not abort it halfway.
	connectTimeout = 30 * time.Second

	eventWriteTimeout = 5 * time.Second
	eventBuffer       = 32
)

type councilState struct {
	Status council.Status `json:"status"`
	Level  float64        `json:"level"`
}

func (s *Server) state() councilState {
	return councilState{Status: s.cfg.Council.Status(), Level: s.cfg.Council.Level()}
}

func (s *Server) handleCouncilStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.state())
}

func (s *Server) handleCouncilConnect(w http.ResponseWriter, r *http.Request) {
	if err := s.cfg.Gate.Check(r.Context()); err != nil {
		s.fail(w, r, "council.connect", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), connectTimeout)
	defer cancel()
	if err := s.cfg.Council.Connect(ctx); err != nil {
		s.fail(w, r, "council.connect", err)
		return
	}
	writeJSON(w, http.StatusAccepted, s.state())
}

func (s *Server) handleCouncilDisconnect(w http.ResponseWriter, _ *http.Request) {
	s.cfg.Council.Disconnect()
	writeJSON(w, http.StatusOK, s.state())
}

// handleCouncilEvents upgrades to a WebSocket and streams council updates as
// JSON, starting with the current state. Client messages are ignored.
func (s *Server) handleCouncilEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		observe.Logger(r.Context()).Warn("web: websocket accept failed", "err", err)
		return
	}
	defer conn.CloseNow()

	updates, unsubscribe := s.cfg.Council.Subscribe(eventBuffer)
	defer unsubscribe()

	ctx := conn.CloseRead(r.Context())
	log := observe.Logger(ctx)

	st := s.state()
	if err := s.writeEvent(ctx, conn, council.Update{Status: st.Status, Level: st.Level}); err != nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-updates:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "council closed")
				return
			}
			if err := s.writeEvent(ctx, conn, u); err != nil {
				if !errors.Is(err, context.Canceled) {
					log.Debug("web: event stream ended", "err", err)
				}
				return
			}
		}
	}
}

func (s *Server) writeEvent(ctx context.Context, conn *websocket.Conn, u council.Update) error {
	ctx, cancel := context.WithTimeout(ctx, eventWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, u)
}
