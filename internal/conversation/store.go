// Package conversation keeps the short-lived per-sender state the
// dispatcher needs between events: an open input capture.
package conversation

import (
	"sync"
	"time"

	"github.com/garyellow/menubot-go/internal/catalog"
	"github.com/garyellow/menubot-go/internal/event"
)

// Pending is an input capture opened by a trigger and waiting for the
// sender's next free-text message.
type Pending struct {
	Trigger catalog.TriggerKey
	Capture catalog.Capture
	Since   time.Time
}

type key struct {
	channel event.Channel
	sender  string
}

// Store is an in-memory, TTL-bounded map of pending captures.
// Each Dispatcher owns its own Store.
type Store struct {
	mu      sync.Mutex
	pending map[key]Pending
	ttl     time.Duration
	now     func() time.Time
}

// NewStore creates a store whose entries expire after ttl.
// A non-positive ttl keeps entries until cleared.
func NewStore(ttl time.Duration) *Store {
	return &Store{
		pending: make(map[key]Pending),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (s *Store) expired(p Pending, now time.Time) bool {
	return s.ttl > 0 && now.Sub(p.Since) >= s.ttl
}

// Get returns the sender's open capture, if any and not expired.
func (s *Store) Get(r event.Recipient) (Pending, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key{r.Channel, r.ID}
	p, ok := s.pending[k]
	if !ok {
		return Pending{}, false
	}
	if s.expired(p, s.now()) {
		delete(s.pending, k)
		return Pending{}, false
	}
	return p, true
}

// Set opens (or replaces) a capture for the sender.
func (s *Store) Set(r event.Recipient, trigger catalog.TriggerKey, c catalog.Capture) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[key{r.Channel, r.ID}] = Pending{Trigger: trigger, Capture: c, Since: s.now()}
}

// Clear removes the sender's capture and reports whether one was open.
func (s *Store) Clear(r event.Recipient) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key{r.Channel, r.ID}
	_, ok := s.pending[k]
	delete(s.pending, k)
	return ok
}

// Sweep drops expired entries and returns how many were removed.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for k, p := range s.pending {
		if s.expired(p, now) {
			delete(s.pending, k)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored captures, expired or not.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}
