package notify

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/agchavez/interlace/internal/models"
)

// Event is published to subscribers after the store changes
type Event struct {
	Type          EventType             `json:"type"`
	Notification  *models.Notification  `json:"notification,omitempty"`
	ID            int                   `json:"id,omitempty"`
	Notifications []models.Notification `json:"notifications"`
}

// Store is the in-memory list of unread notifications
type Store struct {
	mu     sync.RWMutex
	items  []models.Notification
	subs   map[int]chan Event
	nextID int
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{subs: make(map[int]chan Event)}
}

// Apply updates the store from a live channel envelope
func (s *Store) Apply(env Envelope) error {
	switch env.Type {
	case EventNew:
		n, err := env.Notification()
		if err != nil {
			return err
		}
		s.Add(n)
	case EventSnapshot:
		list, err := env.Snapshot()
		if err != nil {
			return err
		}
		s.Replace(list)
	case EventRead:
		id, err := env.ReadID()
		if err != nil {
			return err
		}
		s.MarkRead(id)
	case EventAllRead:
		s.Clear()
	default:
		return ErrUnknownEvent
	}
	return nil
}

// Add appends a notification. A notification already held is replaced in
// place.
func (s *Store) Add(n models.Notification) {
	s.mu.Lock()
	replaced := false
	for i := range s.items {
		if s.items[i].ID == n.ID {
			s.items[i] = n
			replaced = true
			break
		}
	}
	if !replaced {
		s.items = append(s.items, n)
	}
	s.publishLocked(Event{Type: EventNew, Notification: &n})
	s.mu.Unlock()
}

// Replace swaps the whole list for a snapshot
func (s *Store) Replace(list []models.Notification) {
	s.mu.Lock()
	s.items = append([]models.Notification(nil), list...)
	s.publishLocked(Event{Type: EventSnapshot})
	s.mu.Unlock()
}

// MarkRead drops a notification and reports whether it was held
func (s *Store) MarkRead(id int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.items[:0]
	found := false
	for _, n := range s.items {
		if n.ID == id {
			found = true
			continue
		}
		kept = append(kept, n)
	}
	s.items = kept
	if found {
		s.publishLocked(Event{Type: EventRead, ID: id})
	}
	return found
}

// Clear drops every notification
func (s *Store) Clear() {
	s.mu.Lock()
	s.items = nil
	s.publishLocked(Event{Type: EventAllRead})
	s.mu.Unlock()
}

// List returns a copy of the held notifications
func (s *Store) List() []models.Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Notification(nil), s.items...)
}

// Len is the number of unread notifications
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Subscribe registers a listener for store changes. Slow subscribers miss
// events rather than block the store; every event carries the full list so
// the next one delivered resynchronizes them.
func (s *Store) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Event, buffer)

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = ch
	s.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			close(ch)
			s.mu.Unlock()
		})
	}
	return ch, cancel
}

func (s *Store) publishLocked(ev Event) {
	if len(s.subs) == 0 {
		return
	}
	ev.Notifications = append([]models.Notification(nil), s.items...)
	for id, ch := range s.subs {
		select {
		case ch <- ev:
		default:
			log.Warn().Int("subscriber", id).Str("event", string(ev.Type)).Msg("Notification subscriber is behind, dropping event")
		}
	}
}
