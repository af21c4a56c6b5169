package realtime

import (
	"log/slog"
	"sync"

	"github.com/8by8-org/challenge-api/internal/dto"
)

const defaultSubscriberBuffer = 16

// Hub routes badge events to the websocket subscribers of the user that
// received the badge.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[*Subscriber]struct{}
	buffer int
	logger *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		subs:   make(map[string]map[*Subscriber]struct{}),
		buffer: defaultSubscriberBuffer,
		logger: logger,
	}
}

type Subscriber struct {
	hub    *Hub
	userID string
	events chan dto.BadgeEvent
	once   sync.Once
}

func (h *Hub) Subscribe(userID string) *Subscriber {
	s := &Subscriber{hub: h, userID: userID, events: make(chan dto.BadgeEvent, h.buffer)}
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subs[userID]
	if !ok {
		set = make(map[*Subscriber]struct{})
		h.subs[userID] = set
	}
	set[s] = struct{}{}
	return s
}

// Publish never blocks. A subscriber whose buffer is full misses the event.
func (h *Hub) Publish(ev dto.BadgeEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.subs[ev.Record.UserID] {
		select {
		case s.events <- ev:
		default:
			h.logger.Warn("dropping badge event for slow subscriber", "component", "realtime", "user_id", s.userID)
		}
	}
}

func (h *Hub) Subscribers(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[userID])
}

func (s *Subscriber) Events() <-chan dto.BadgeEvent { return s.events }

// Close unregisters the subscriber and closes its event channel.
func (s *Subscriber) Close() {
	s.once.Do(func() {
		h := s.hub
		h.mu.Lock()
		defer h.mu.Unlock()
		if set, ok := h.subs[s.userID]; ok {
			delete(set, s)
			if len(set) == 0 {
				delete(h.subs, s.userID)
			}
		}
		close(s.events)
	})
}
