package session

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// EventType names a session-change notification. The values match what
// clients expect on the wire.
type EventType string

const (
	EventSignedIn       EventType = "SIGNED_IN"
	EventSignedOut      EventType = "SIGNED_OUT"
	EventSessionExpired EventType = "SESSION_EXPIRED"
)

// Event is a change to one session.
type Event struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	At        time.Time `json:"at"`
}

// NewEvent stamps an event for the given session record.
func NewEvent(t EventType, rec *Record) Event {
	return Event{
		Type:      t,
		SessionID: rec.ID,
		UserID:    rec.UserID,
		At:        time.Now().UTC(),
	}
}

// Publisher delivers session events to whoever is listening. The Hub
// delivers in-process; RedisRelay delivers across server instances.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

const subscriberBuffer = 8

// Subscriber receives the events of exactly one session.
type Subscriber struct {
	sessionID string
	events    chan Event
}

// Events is closed when the subscriber is removed from the hub.
func (s *Subscriber) Events() <-chan Event { return s.events }

// Hub maintains the set of event subscribers and routes each event to the
// subscribers of its session.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[*Subscriber]struct{}
	logger      *slog.Logger
}

var _ Publisher = (*Hub)(nil)

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		subscribers: make(map[*Subscriber]struct{}),
		logger:      logger,
	}
}

// Subscribe registers interest in the events of one session.
func (h *Hub) Subscribe(sessionID string) *Subscriber {
	s := &Subscriber{
		sessionID: sessionID,
		events:    make(chan Event, subscriberBuffer),
	}
	h.mu.Lock()
	h.subscribers[s] = struct{}{}
	h.mu.Unlock()
	return s
}

// Unsubscribe removes a subscriber and closes its channel. Calling it twice
// is harmless.
func (h *Hub) Unsubscribe(s *Subscriber) {
	h.mu.Lock()
	if _, ok := h.subscribers[s]; ok {
		delete(h.subscribers, s)
		close(s.events)
	}
	h.mu.Unlock()
}

// Publish delivers ev to every subscriber of ev.SessionID. It never blocks:
// a subscriber whose buffer is full misses the event.
func (h *Hub) Publish(_ context.Context, ev Event) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for s := range h.subscribers {
		if s.sessionID != ev.SessionID {
			continue
		}
		select {
		case s.events <- ev:
		default:
			h.logger.Warn("dropping session event for slow subscriber",
				slog.String("session_id", ev.SessionID),
				slog.String("type", string(ev.Type)),
			)
		}
	}
	return nil
}

// SubscriberCount returns the number of registered subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}
