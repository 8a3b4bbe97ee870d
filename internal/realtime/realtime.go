// Package realtime fans out change notifications to connected clients so
// they can refresh conversations, threads, notifications and feeds without
// polling.
//
// Services publish an Event after their transaction commits. Events are
// invalidation hints, not data: clients re-query the affected lists. In a
// single-process deployment the Hub delivers events directly; with Redis
// configured every instance publishes to Redis and relays what it receives
// to its own Hub.
package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// Event types.
const (
	EventMessage      = "message"
	EventConversation = "conversation"
	EventGroup        = "group"
	EventFriendship   = "friendship"
	EventNotification = "notification"
	EventPost         = "post"
)

// Event tells UserIDs that something they can see changed.
type Event struct {
	Type       string    `json:"type"`
	Thread     string    `json:"thread,omitempty"`
	ResourceID string    `json:"resource_id,omitempty"`
	At         time.Time `json:"at"`
	UserIDs    []string  `json:"-"`
}

// Publisher delivers events to their recipients.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Nop discards events.
type Nop struct{}

// Publish implements Publisher.
func (Nop) Publish(context.Context, Event) error { return nil }

// Subscription receives encoded events for one user.
type Subscription struct {
	UserID string
	C      <-chan []byte

	ch  chan []byte
	hub *Hub
}

// Close detaches the subscription from its hub.
func (s *Subscription) Close() { s.hub.remove(s) }

// Hub routes encoded events to the local subscriptions of each user.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[*Subscription]struct{}
}

// NewHub returns an empty Hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[*Subscription]struct{})}
}

// Subscribe registers a subscription for userID with a buffer of size buf.
func (h *Hub) Subscribe(userID string, buf int) *Subscription {
	if buf <= 0 {
		buf = 16
	}
	ch := make(chan []byte, buf)
	s := &Subscription{UserID: userID, C: ch, ch: ch, hub: h}
	h.mu.Lock()
	set, ok := h.subs[userID]
	if !ok {
		set = make(map[*Subscription]struct{})
		h.subs[userID] = set
	}
	set[s] = struct{}{}
	h.mu.Unlock()
	return s
}

func (h *Hub) remove(s *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subs[s.UserID]
	if !ok {
		return
	}
	if _, ok := set[s]; !ok {
		return
	}
	delete(set, s)
	close(s.ch)
	if len(set) == 0 {
		delete(h.subs, s.UserID)
	}
}

// Deliver hands payload to every subscription of userID. Slow consumers
// whose buffer is full miss the event.
func (h *Hub) Deliver(userID string, payload []byte) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for s := range h.subs[userID] {
		select {
		case s.ch <- payload:
			n++
		default:
		}
	}
	return n
}

// Publish implements Publisher by delivering straight to local
// subscriptions.
func (h *Hub) Publish(_ context.Context, ev Event) error {
	payload, err := encode(ev)
	if err != nil {
		return err
	}
	for _, uid := range unique(ev.UserIDs) {
		h.Deliver(uid, payload)
	}
	return nil
}

func encode(ev Event) ([]byte, error) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	return json.Marshal(ev)
}

func unique(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
