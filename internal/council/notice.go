package council

import (
	"errors"
	"sync"

	"github.com/MrWong99/warroom/pkg/audio"
)

// NoticeKind classifies a [Notice].
type NoticeKind string

const (
	NoticeConnectFailed  NoticeKind = "connect_failed"
	NoticeTransportError NoticeKind = "transport_error"
	NoticeClosed         NoticeKind = "closed"
)

// Notice is a user-visible message about a session failure or remote close.
type Notice struct {
	Kind    NoticeKind `json:"kind"`
	Message string     `json:"message"`
	Err     error      `json:"-"`
}

// Notifier receives notices. Notify is called without any session lock held.
type Notifier interface {
	Notify(Notice)
}

// NotifierFunc adapts a function to [Notifier].
type NotifierFunc func(Notice)

// Notify calls f(n).
func (f NotifierFunc) Notify(n Notice) { f(n) }

func connectFailedMessage(err error) string {
	if errors.Is(err, audio.ErrDeviceUnavailable) {
		return "Could not access microphone. Please allow microphone access."
	}
	return "Could not reach the council. Please try again."
}

func (s *Session) notify(n Notice) {
	if s.notifier != nil {
		s.notifier.Notify(n)
	}
	s.hub.publish(Update{Status: s.Status(), Level: s.Level(), Notice: &n})
}

func (s *Session) publishLevel(l float64) {
	s.setLevel(l)
	s.hub.publish(Update{Status: StatusConnected, Level: l})
}

// ── Subscriptions ──────────────────────────────────────────────────────────────

// Update is a snapshot pushed to subscribers on status changes, level
// changes and notices.
type Update struct {
	Status Status  `json:"status"`
	Level  float64 `json:"level"`
	Notice *Notice `json:"notice,omitempty"`
}

// Subscribe returns a channel of updates and a function that cancels the
// subscription. Updates are dropped for subscribers that fall behind. The
// channel is closed on cancel and when the session is closed.
func (s *Session) Subscribe(buffer int) (<-chan Update, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	return s.hub.subscribe(buffer)
}

type hub struct {
	mu     sync.Mutex
	next   int
	subs   map[int]chan Update
	closed bool
}

func (h *hub) subscribe(buffer int) (<-chan Update, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch := make(chan Update, buffer)
	if h.closed {
		close(ch)
		return ch, func() {}
	}
	if h.subs == nil {
		h.subs = make(map[int]chan Update)
	}
	id := h.next
	h.next++
	h.subs[id] = ch
	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if c, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(c)
		}
	}
}

func (h *hub) publish(u Update) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		select {
		case ch <- u:
		default:
		}
	}
}

func (h *hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}
