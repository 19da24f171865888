// Package playback schedules decoded audio chunks back-to-back on an
// [audio.OutputContext] so that consecutive chunks play without gaps or
// overlap.
//
// The scheduler keeps a cursor (the timeline position at which the next chunk
// begins) and the set of voices that have been scheduled but have not yet
// finished. A chunk that arrives after the cursor has fallen behind the output
// clock starts at the current clock time.
package playback

import (
	"fmt"
	"sync"
	"time"

	"github.com/MrWong99/warroom/pkg/audio"
)

// Scheduler places buffers gaplessly on an output timeline.
//
// All methods are safe for concurrent use; end notifications from the output
// context may arrive on any goroutine.
type Scheduler struct {
	out audio.OutputContext

	mu      sync.Mutex
	next    time.Duration
	pending map[uint64]audio.Voice
	seq     uint64
}

// New creates a Scheduler for out with the cursor at zero.
func New(out audio.OutputContext) *Scheduler {
	return &Scheduler{
		out:     out,
		pending: make(map[uint64]audio.Voice),
	}
}

// Schedule starts buf at max(cursor, now) and advances the cursor by the
// buffer's duration. The voice is tracked as pending until its end
// notification fires. It returns the start position.
func (s *Scheduler) Schedule(buf *audio.Buffer) (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := max(s.next, s.out.Now())

	s.seq++
	id := s.seq
	voice, err := s.out.Play(buf, start, func() { s.release(id) })
	if err != nil {
		return 0, fmt.Errorf("playback: schedule: %w", err)
	}

	s.next = start + buf.Duration()
	s.pending[id] = voice
	return start, nil
}

// release removes a finished voice from the pending set. The voice may
// already be gone if StopAll ran first.
func (s *Scheduler) release(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, id)
}

// StopAll stops every pending voice and empties the pending set.
func (s *Scheduler) StopAll() {
	s.mu.Lock()
	voices := make([]audio.Voice, 0, len(s.pending))
	for id, v := range s.pending {
		voices = append(voices, v)
		delete(s.pending, id)
	}
	s.mu.Unlock()

	for _, v := range voices {
		v.Stop()
	}
}

// Reset moves the cursor back to zero.
func (s *Scheduler) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next = 0
}

// Pending returns the number of scheduled voices that have not finished.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Next returns the cursor: the position at which the next buffer will start
// unless the clock has moved past it.
func (s *Scheduler) Next() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}
