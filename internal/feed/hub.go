package feed

import (
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	MessageChanged      = "tasks_changed"
	MessageNotification = "notification"

	subscriberBuffer = 16
)

// Message is one server-sent event.
type Message struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

type ChangedData struct {
	Type   EventType `json:"type"`
	TaskID uuid.UUID `json:"task_id"`
}

type Subscription struct {
	userID uuid.UUID
	ch     chan Message
}

func (s *Subscription) C() <-chan Message {
	return s.ch
}

// Hub fans change events out to connected users. Slow subscribers lose
// messages instead of blocking the feed.
type Hub struct {
	mu     sync.RWMutex
	subs   map[*Subscription]struct{}
	closed bool
	log    zerolog.Logger
}

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		subs: make(map[*Subscription]struct{}),
		log:  log.With().Str("component", "feed_hub").Logger(),
	}
}

func (h *Hub) Subscribe(userID uuid.UUID) *Subscription {
	sub := &Subscription{userID: userID, ch: make(chan Message, subscriberBuffer)}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(sub.ch)
		return sub
	}
	h.subs[sub] = struct{}{}
	return sub
}

func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[sub]; ok {
		delete(h.subs, sub)
		close(sub.ch)
	}
}

// Close ends every subscription. Later subscriptions start closed.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for sub := range h.subs {
		delete(h.subs, sub)
		close(sub.ch)
	}
	h.log.Debug().Msg("event streams closed")
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *Hub) Publish(ev Event) {
	changed := Message{Event: MessageChanged, Data: ChangedData{Type: ev.Type, TaskID: ev.TaskID()}}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs {
		h.send(sub, changed)
		if n, ok := Decide(ev, sub.userID); ok {
			h.send(sub, Message{Event: MessageNotification, Data: n})
		}
	}
}

func (h *Hub) send(sub *Subscription, msg Message) {
	select {
	case sub.ch <- msg:
	default:
		h.log.Debug().Str("user_id", sub.userID.String()).Str("event", msg.Event).Msg("subscriber buffer full, message dropped")
	}
}
