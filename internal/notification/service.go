package notification

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/ayane-dev/zombiewatch-go/internal/logging"
)

const (
	defaultMaxStored     = 100
	subscriberBufferSize = 16
)

// Service stores recent notifications and broadcasts new ones to
// subscribers. Broadcast is non-blocking: a subscriber that cannot keep up
// loses events rather than stalling the pipeline.
type Service struct {
	mu          sync.RWMutex
	stored      map[string]*Notification
	order       []string
	maxStored   int
	subscribers map[chan *Notification]struct{}
	log         *slog.Logger
}

// NewService creates a notification service keeping at most maxStored events.
func NewService(maxStored int) *Service {
	if maxStored <= 0 {
		maxStored = defaultMaxStored
	}
	return &Service{
		stored:      make(map[string]*Notification),
		maxStored:   maxStored,
		subscribers: make(map[chan *Notification]struct{}),
		log:         logging.ForService("notification"),
	}
}

// Publish stores the notification and fans it out to all subscribers.
func (s *Service) Publish(n *Notification) {
	s.mu.Lock()

	s.stored[n.ID] = n
	s.order = append(s.order, n.ID)
	for len(s.order) > s.maxStored {
		delete(s.stored, s.order[0])
		s.order = s.order[1:]
	}

	subscribers := make([]chan *Notification, 0, len(s.subscribers))
	for ch := range s.subscribers {
		subscribers = append(subscribers, ch)
	}
	s.mu.Unlock()

	for _, ch := range subscribers {
		select {
		case ch <- n.Clone():
		default:
			s.log.Warn("subscriber channel full, dropping notification",
				"id", n.ID, "type", n.Type)
		}
	}
}

// Subscribe returns a channel of future notifications and a cancel function.
func (s *Service) Subscribe() (<-chan *Notification, func()) {
	ch := make(chan *Notification, subscriberBufferSize)

	s.mu.Lock()
	s.subscribers[ch] = struct{}{}
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subscribers[ch]; ok {
			delete(s.subscribers, ch)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

// List returns stored notifications, newest first.
func (s *Service) List() []*Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Notification, 0, len(s.stored))
	for _, n := range s.stored {
		out = append(out, n.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out
}

// Get returns a stored notification by id.
func (s *Service) Get(id string) (*Notification, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.stored[id]
	if !ok {
		return nil, false
	}
	return n.Clone(), true
}

// SubscriberCount reports the number of active subscribers.
func (s *Service) SubscriberCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subscribers)
}
