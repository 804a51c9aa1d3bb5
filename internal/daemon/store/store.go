package store

import (
	"sync"
	"time"
)

// DefaultCapacity is how many updates the feed retains.
const DefaultCapacity = 200

// Store is the in-memory activity feed for the daemon.
// It is thread-safe and supports pub/sub for real-time updates.
type Store struct {
	mu          sync.RWMutex
	recent      []Update
	capacity    int
	counts      map[UpdateType]int
	subscribers map[chan Update]struct{}
	now         func() time.Time
}

// New creates a new Store instance.
func New() *Store {
	return NewWithCapacity(DefaultCapacity)
}

// NewWithCapacity creates a Store retaining at most capacity updates.
func NewWithCapacity(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{
		capacity:    capacity,
		counts:      make(map[UpdateType]int),
		subscribers: make(map[chan Update]struct{}),
		now:         time.Now,
	}
}

// Record appends an update and notifies subscribers.
func (s *Store) Record(u Update) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u.Timestamp.IsZero() {
		u.Timestamp = s.now()
	}
	s.recent = append(s.recent, u)
	if over := len(s.recent) - s.capacity; over > 0 {
		s.recent = append([]Update(nil), s.recent[over:]...)
	}
	s.counts[u.Type]++

	for ch := range s.subscribers {
		select {
		case ch <- u:
		default:
			// Non-blocking send to prevent slow clients from stalling the daemon
		}
	}
}

// Recent returns up to n of the newest updates, oldest first. n <= 0 returns all.
func (s *Store) Recent(n int) []Update {
	s.mu.RLock()
	defer s.mu.RUnlock()
	start := 0
	if n > 0 && n < len(s.recent) {
		start = len(s.recent) - n
	}
	return append([]Update(nil), s.recent[start:]...)
}

// Get returns a copy of the current state.
func (s *Store) Get() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[UpdateType]int, len(s.counts))
	for k, v := range s.counts {
		counts[k] = v
	}
	return State{
		Recent: append([]Update(nil), s.recent...),
		Counts: counts,
	}
}

// Subscribe creates a new subscription channel for updates.
func (s *Store) Subscribe() chan Update {
	_, ch := s.SubscribeWithBacklog(0)
	return ch
}

// SubscribeWithBacklog returns up to n of the newest updates together with
// a channel that receives every later one. Each update is in exactly one of
// the two. n == 0 returns no backlog; n < 0 returns all retained updates.
func (s *Store) SubscribeWithBacklog(n int) ([]Update, chan Update) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var backlog []Update
	if n != 0 {
		start := 0
		if n > 0 && n < len(s.recent) {
			start = len(s.recent) - n
		}
		backlog = append([]Update(nil), s.recent[start:]...)
	}

	ch := make(chan Update, 100)
	s.subscribers[ch] = struct{}{}
	return backlog, ch
}

// Unsubscribe removes a subscription and closes its channel.
func (s *Store) Unsubscribe(ch chan Update) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subscribers[ch]; !ok {
		return
	}
	delete(s.subscribers, ch)
	close(ch)
}

// BroadcastConfigReload records that the config file changed.
// This is used by the ConfigWatcher to notify clients when the config file changes.
func (s *Store) BroadcastConfigReload(file string) {
	s.Record(Update{
		Type:   UpdateConfigReload,
		Source: "config",
		Detail: file, // The file that changed
	})
}
