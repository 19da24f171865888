package app

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/warroom/internal/council"
)

// SessionInfo describes the council session currently connected.
type SessionInfo struct {
	// SessionID identifies one connected period, for log correlation.
	SessionID string

	// StartedAt is when the council reported it was connected.
	StartedAt time.Time
}

// sessionTracker follows council status updates and labels each connected
// period with a fresh ID.
type sessionTracker struct {
	updates     <-chan council.Update
	unsubscribe func()
	now         func() time.Time

	mu     sync.Mutex
	active bool
	info   SessionInfo
}

func newSessionTracker(c *council.Session) *sessionTracker {
	updates, unsubscribe := c.Subscribe(64)
	return &sessionTracker{updates: updates, unsubscribe: unsubscribe, now: time.Now}
}

// run consumes updates until ctx is done or the council is closed.
func (t *sessionTracker) run(ctx context.Context) {
	defer t.unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-t.updates:
			if !ok {
				return
			}
			t.observe(u)
		}
	}
}

func (t *sessionTracker) observe(u council.Update) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch {
	case u.Status == council.StatusConnected && !t.active:
		t.active = true
		t.info = SessionInfo{SessionID: uuid.NewString(), StartedAt: t.now()}
		slog.Info("council session started", "session_id", t.info.SessionID)
	case u.Status == council.StatusDisconnected && t.active:
		slog.Info("council session ended",
			"session_id", t.info.SessionID,
			"duration", t.now().Sub(t.info.StartedAt).Round(time.Second),
		)
		t.active = false
		t.info = SessionInfo{}
	}
	if u.Notice != nil {
		slog.Debug("council notice delivered", "kind", u.Notice.Kind)
	}
}

func (t *sessionTracker) current() (SessionInfo, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.info, t.active
}

// CouncilSession returns the connected council session, if any.
func (a *App) CouncilSession() (SessionInfo, bool) {
	return a.tracker.current()
}
