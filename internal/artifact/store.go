// Package artifact holds generated media in memory so clients can download
// it by ID. Nothing is written to disk; artifacts are lost on restart.
package artifact

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/warroom/internal/observe"
)

// ErrNotFound is returned by [Store.Get] for unknown or evicted IDs.
var ErrNotFound = errors.New("artifact: not found")

// Artifact is one stored media blob.
type Artifact struct {
	ID        string
	Name      string
	MIMEType  string
	Data      []byte
	CreatedAt time.Time
}

// Store is a bounded in-memory artifact store. It enforces both a maximum
// entry count and a maximum age; entries exceeding either limit are evicted
// oldest first on every [Store.Put].
//
// All methods are safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	entries []*Artifact // insertion order, oldest first
	byID    map[string]*Artifact
	maxSize int
	maxAge  time.Duration
	metrics *observe.Metrics
	now     func() time.Time
}

// NewStore creates a store retaining at most maxSize artifacts, each for at
// most maxAge. A maxAge of zero disables age eviction. m may be nil.
func NewStore(maxSize int, maxAge time.Duration, m *observe.Metrics) *Store {
	if maxSize <= 0 {
		maxSize = 1
	}
	return &Store{
		byID:    make(map[string]*Artifact),
		maxSize: maxSize,
		maxAge:  maxAge,
		metrics: m,
		now:     time.Now,
	}
}

// Put stores data under a fresh ID and returns the stored artifact.
func (s *Store) Put(name, mimeType string, data []byte) *Artifact {
	a := &Artifact{
		ID:       uuid.NewString(),
		Name:     name,
		MIMEType: mimeType,
		Data:     data,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	a.CreatedAt = s.now()
	s.entries = append(s.entries, a)
	s.byID[a.ID] = a
	s.gauge(1)
	s.evict()
	return a
}

// Get returns the artifact with the given ID.
func (s *Store) Get(id string) (*Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.byID[id]
	if !ok || s.expired(a) {
		return nil, ErrNotFound
	}
	return a, nil
}

// Len returns the number of stored artifacts, including expired entries not
// yet evicted.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *Store) expired(a *Artifact) bool {
	return s.maxAge > 0 && s.now().Sub(a.CreatedAt) > s.maxAge
}

// evict drops expired entries and entries beyond maxSize. s.mu must be held.
func (s *Store) evict() {
	start := 0
	for start < len(s.entries) && s.expired(s.entries[start]) {
		start++
	}
	if over := len(s.entries) - start - s.maxSize; over > 0 {
		start += over
	}
	if start == 0 {
		return
	}
	for _, a := range s.entries[:start] {
		delete(s.byID, a.ID)
	}
	s.gauge(-int64(start))

	// Fresh backing array so evicted payloads can be collected.
	fresh := make([]*Artifact, len(s.entries)-start, s.maxSize)
	copy(fresh, s.entries[start:])
	s.entries = fresh
}

func (s *Store) gauge(delta int64) {
	if s.metrics != nil {
		s.metrics.StoredArtifacts.Add(context.Background(), delta)
	}
}
